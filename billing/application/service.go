package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/billing/domain"
	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatDomain "github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/pkg/phone"
	"github.com/AzielCF/az-engage/pkg/timeutils"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Messenger stores an outbound message and hands it to the send queue.
type Messenger interface {
	CreateOutgoing(ctx context.Context, in chatApp.OutgoingInput) (*chatDomain.Message, *chatDomain.Conversation, error)
	Enqueue(ctx context.Context, msg *chatDomain.Message) error
}

var _ Messenger = (*chatApp.ChatService)(nil)

type Deps struct {
	DB        *gorm.DB
	Cycles    domain.CycleRepository
	Emissions domain.EmissionRepository
	Plans     domain.PlanRepository
	Chat      Messenger
	Config    *config.Config
}

type BillingService struct {
	db        *gorm.DB
	cycles    domain.CycleRepository
	emissions domain.EmissionRepository
	plans     domain.PlanRepository
	chat      Messenger
	cfg       *config.Config
	now       func() time.Time
}

func NewBillingService(d Deps) *BillingService {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &BillingService{
		db:        d.DB,
		cycles:    d.Cycles,
		emissions: d.Emissions,
		plans:     d.Plans,
		chat:      d.Chat,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *BillingService) SetClock(now func() time.Time) {
	s.now = now
}

// CycleInput is one item of a batch create. BillingData stays untyped so a non-object
// value is reported against its item instead of failing the whole request body.
type CycleInput struct {
	ExternalBillingID string `json:"external_billing_id"`
	Phone             string `json:"phone"`
	Name              string `json:"name"`
	DueDate           string `json:"due_date"`
	BillingData       any    `json:"billing_data"`
	NotifyBeforeDue   *bool  `json:"notify_before_due"`
	NotifyAfterDue    *bool  `json:"notify_after_due"`
}

type BatchResult struct {
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Emissions int             `json:"emissions"`
	Cycles    []*domain.Cycle `json:"cycles"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Steps returns the tenant's reminder plan, falling back to the configured offsets.
func (s *BillingService) Steps(ctx context.Context, tenant string) ([]domain.PlanStep, error) {
	p, err := s.plans.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if p != nil && len(p.Steps) > 0 {
		return p.Steps, nil
	}
	return domain.ParseOffsets(s.cfg.Billing.DefaultPlan)
}

func (s *BillingService) SavePlan(ctx context.Context, tenant string, steps []domain.PlanStep) (*domain.Plan, error) {
	for i := range steps {
		if strings.TrimSpace(steps[i].Template) == "" {
			steps[i].Template = domain.DefaultTemplate(steps[i].OffsetDays)
		}
	}
	p := &domain.Plan{Tenant: tenant, Steps: steps}
	if err := s.plans.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateBatch upserts the active cycle of every item and plans its reminders. An item
// whose cycle is already active gets its details replaced and its unfired reminders
// planned again; reminders already sent are kept.
func (s *BillingService) CreateBatch(ctx context.Context, tenant string, items []CycleInput) (*BatchResult, error) {
	steps, err := s.Steps(ctx, tenant)
	if err != nil {
		return nil, err
	}
	res := &BatchResult{Cycles: make([]*domain.Cycle, 0, len(items))}
	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		for _, item := range items {
			c, created, err := s.upsert(ctx, tenant, item)
			if err != nil {
				return err
			}
			n, err := s.plan(ctx, c, steps)
			if err != nil {
				return err
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
			res.Emissions += n
			res.Cycles = append(res.Cycles, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.Infof("[BILLING] tenant %s: %d cycle(s) created, %d updated, %d reminder(s) planned",
		tenant, res.Created, res.Updated, res.Emissions)
	return res, nil
}

func (s *BillingService) upsert(ctx context.Context, tenant string, in CycleInput) (*domain.Cycle, bool, error) {
	data, _ := in.BillingData.(map[string]any)
	c, err := s.cycles.GetActive(ctx, tenant, in.ExternalBillingID)
	if errors.Is(err, domain.ErrCycleNotFound) {
		c = &domain.Cycle{
			Tenant:            tenant,
			ExternalBillingID: in.ExternalBillingID,
			Phone:             phone.Normalize(in.Phone),
			Name:              strings.TrimSpace(in.Name),
			DueDate:           in.DueDate,
			BillingData:       data,
			NotifyBeforeDue:   boolOr(in.NotifyBeforeDue, true),
			NotifyAfterDue:    boolOr(in.NotifyAfterDue, true),
			Status:            domain.CycleActive,
		}
		err = s.cycles.Create(ctx, c)
		if err == nil {
			return c, true, nil
		}
		if !errors.Is(err, domain.ErrDuplicateCycle) {
			return nil, false, err
		}
		c, err = s.cycles.GetActive(ctx, tenant, in.ExternalBillingID)
	}
	if err != nil {
		return nil, false, err
	}
	c.Phone = phone.Normalize(in.Phone)
	c.Name = strings.TrimSpace(in.Name)
	c.DueDate = in.DueDate
	c.BillingData = data
	c.NotifyBeforeDue = boolOr(in.NotifyBeforeDue, c.NotifyBeforeDue)
	c.NotifyAfterDue = boolOr(in.NotifyAfterDue, c.NotifyAfterDue)
	if err := s.cycles.UpdateDetails(ctx, c); err != nil {
		return nil, false, err
	}
	return c, false, nil
}

// plan replaces the pending reminders of c. A cycle left with nothing to send is
// completed right away.
func (s *BillingService) plan(ctx context.Context, c *domain.Cycle, steps []domain.PlanStep) (int, error) {
	emissions, err := domain.Schedule(c, steps, s.cfg.Billing.SendHour, s.cfg.Location(), s.now())
	if err != nil {
		return 0, err
	}
	if err := s.emissions.ReplacePending(ctx, c.ID, emissions); err != nil {
		return 0, err
	}
	c.TotalMessages = c.SentMessages + len(emissions)
	if err := s.cycles.SetTotal(ctx, c.ID, c.TotalMessages); err != nil {
		return 0, err
	}
	c.Emissions = emissions
	if len(emissions) == 0 {
		open, err := s.emissions.CountOpen(ctx, c.ID)
		if err != nil {
			return 0, err
		}
		if open == 0 {
			now := s.now()
			if _, err := s.cycles.Close(ctx, c.ID, domain.CycleCompleted, now); err != nil {
				return 0, err
			}
			c.Status = domain.CycleCompleted
			c.ClosedAt = &now
		}
	}
	return len(emissions), nil
}

func (s *BillingService) Get(ctx context.Context, tenant, id string) (*domain.Cycle, error) {
	c, err := s.cycles.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if c.Emissions, err = s.emissions.ListByCycle(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *BillingService) List(ctx context.Context, tenant string, status domain.CycleStatus, limit, offset int) ([]*domain.Cycle, error) {
	return s.cycles.List(ctx, tenant, status, limit, offset)
}

// Pay closes the active cycle of externalID as paid.
func (s *BillingService) Pay(ctx context.Context, tenant, externalID string) (*domain.Cycle, error) {
	return s.close(ctx, tenant, externalID, domain.CyclePaid)
}

// Cancel closes the active cycle of externalID as cancelled.
func (s *BillingService) Cancel(ctx context.Context, tenant, externalID string) (*domain.Cycle, error) {
	return s.close(ctx, tenant, externalID, domain.CycleCancelled)
}

// close stops every unfired reminder. Reminders already sent are not touched.
func (s *BillingService) close(ctx context.Context, tenant, externalID string, status domain.CycleStatus) (*domain.Cycle, error) {
	c, err := s.cycles.GetActive(ctx, tenant, externalID)
	if err != nil {
		return nil, err
	}
	var cancelled int64
	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		ok, err := s.cycles.Close(ctx, c.ID, status, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCycleClosed
		}
		cancelled, err = s.emissions.CancelPending(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logrus.Infof("[BILLING] cycle %s (%s) %s, %d reminder(s) cancelled", c.ID, externalID, status, cancelled)
	return s.Get(ctx, tenant, c.ID)
}

// Render fills an emission template with the cycle's data. Keys of billing_data are
// variables too, next to nome, primeiro_nome and vencimento (DD/MM/YYYY).
func Render(template string, c *domain.Cycle) string {
	vars := utils.StringVars(c.BillingData)
	for _, k := range []string{"valor", "link_pagamento"} {
		if _, ok := vars[k]; !ok {
			vars[k] = ""
		}
	}
	vars["nome"] = c.Name
	vars["primeiro_nome"] = utils.FirstName(c.Name)
	vars["vencimento"] = c.DueDate
	if due, err := time.Parse(timeutils.DateLayout, c.DueDate); err == nil {
		vars["vencimento"] = due.Format("02/01/2006")
	}
	return utils.RenderVars(template, vars)
}
