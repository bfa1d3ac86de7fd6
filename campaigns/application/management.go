package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	contactsDomain "github.com/AzielCF/az-engage/contacts/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/sirupsen/logrus"
)

const (
	defaultIntervalMin = 30
	defaultIntervalMax = 60
)

type VariantInput struct {
	Content  string `json:"content"`
	MediaURL string `json:"media_url"`
}

type CreateInput struct {
	Name                  string         `json:"name"`
	RotationMode          string         `json:"rotation_mode"`
	IntervalMin           int            `json:"interval_min"`
	IntervalMax           int            `json:"interval_max"`
	DailyLimitPerInstance int            `json:"daily_limit_per_instance"`
	PauseOnHealthBelow    int            `json:"pause_on_health_below"`
	ScheduledAt           *time.Time     `json:"scheduled_at"`
	Messages              []VariantInput `json:"messages"`
	InstanceIDs           []string       `json:"instance_ids"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Name                  *string         `json:"name"`
	RotationMode          *string         `json:"rotation_mode"`
	IntervalMin           *int            `json:"interval_min"`
	IntervalMax           *int            `json:"interval_max"`
	DailyLimitPerInstance *int            `json:"daily_limit_per_instance"`
	PauseOnHealthBelow    *int            `json:"pause_on_health_below"`
	ScheduledAt           *time.Time      `json:"scheduled_at"`
	Messages              *[]VariantInput `json:"messages"`
	InstanceIDs           *[]string       `json:"instance_ids"`
}

type ContactInput struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type AddContactsResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Invalid []string `json:"invalid,omitempty"`
	Total   int      `json:"total"`
}

// Stats is the live view of a campaign's progress.
type Stats struct {
	CampaignID             string          `json:"campaign_id"`
	Status                 domain.Status   `json:"status"`
	Counters               domain.Counters `json:"counters"`
	ProgressPct            float64         `json:"progress_pct"`
	NextMessageScheduledAt *time.Time      `json:"next_message_scheduled_at,omitempty"`
	NextContactName        string          `json:"next_contact_name,omitempty"`
	NextContactPhone       string          `json:"next_contact_phone,omitempty"`
	StartedAt              *time.Time      `json:"started_at,omitempty"`
	CompletedAt            *time.Time      `json:"completed_at,omitempty"`
}

func variants(in []VariantInput) []*domain.Variant {
	out := make([]*domain.Variant, 0, len(in))
	for _, v := range in {
		if strings.TrimSpace(v.Content) == "" && v.MediaURL == "" {
			continue
		}
		out = append(out, &domain.Variant{Content: v.Content, MediaURL: v.MediaURL})
	}
	return out
}

// checkInstances rejects ids that are unknown or owned by another tenant.
func (s *CampaignService) checkInstances(ctx context.Context, tenant string, ids []string) ([]string, error) {
	unique := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return unique, nil
	}
	found, err := s.instances.ListByIDs(ctx, tenant, unique)
	if err != nil {
		return nil, err
	}
	if len(found) != len(unique) {
		return nil, domain.ErrForeignInstance
	}
	return unique, nil
}

func (s *CampaignService) Create(ctx context.Context, tenant string, in CreateInput) (*domain.Campaign, error) {
	ids, err := s.checkInstances(ctx, tenant, in.InstanceIDs)
	if err != nil {
		return nil, err
	}
	c := &domain.Campaign{
		Tenant:                tenant,
		Name:                  strings.TrimSpace(in.Name),
		RotationMode:          domain.RotationMode(in.RotationMode),
		IntervalMin:           in.IntervalMin,
		IntervalMax:           in.IntervalMax,
		DailyLimitPerInstance: in.DailyLimitPerInstance,
		PauseOnHealthBelow:    in.PauseOnHealthBelow,
		ScheduledAt:           in.ScheduledAt,
		Status:                domain.StatusDraft,
		Messages:              variants(in.Messages),
		InstanceIDs:           ids,
	}
	if c.RotationMode == "" {
		c.RotationMode = domain.RotationRoundRobin
	}
	if c.IntervalMin <= 0 {
		c.IntervalMin = defaultIntervalMin
	}
	if c.IntervalMax < c.IntervalMin {
		c.IntervalMax = max(c.IntervalMin, defaultIntervalMax)
	}
	if c.ScheduledAt != nil {
		c.Status = domain.StatusScheduled
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	logrus.Infof("[CAMPAIGN] Created %s (%s) for tenant %s", c.Name, c.ID, tenant)
	return c, nil
}

func (s *CampaignService) Get(ctx context.Context, tenant, id string) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, tenant, id)
}

func (s *CampaignService) List(ctx context.Context, tenant string, status domain.Status) ([]*domain.Campaign, error) {
	return s.campaigns.List(ctx, tenant, status)
}

func (s *CampaignService) Update(ctx context.Context, tenant, id string, in UpdateInput) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !c.Editable() {
		return nil, domain.ErrNotEditable
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.RotationMode != nil {
		c.RotationMode = domain.RotationMode(*in.RotationMode)
	}
	if in.IntervalMin != nil {
		c.IntervalMin = *in.IntervalMin
	}
	if in.IntervalMax != nil {
		c.IntervalMax = *in.IntervalMax
	}
	if c.IntervalMax < c.IntervalMin {
		c.IntervalMax = c.IntervalMin
	}
	if in.DailyLimitPerInstance != nil {
		c.DailyLimitPerInstance = *in.DailyLimitPerInstance
	}
	if in.PauseOnHealthBelow != nil {
		c.PauseOnHealthBelow = *in.PauseOnHealthBelow
	}
	if in.ScheduledAt != nil {
		c.ScheduledAt = in.ScheduledAt
	}
	var ids []string
	if in.InstanceIDs != nil {
		if ids, err = s.checkInstances(ctx, tenant, *in.InstanceIDs); err != nil {
			return nil, err
		}
	}

	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		if err := s.campaigns.UpdateSettings(ctx, c); err != nil {
			return err
		}
		if in.Messages != nil {
			c.Messages = variants(*in.Messages)
			if err := s.campaigns.ReplaceVariants(ctx, c.ID, c.Messages); err != nil {
				return err
			}
		}
		if in.InstanceIDs != nil {
			c.InstanceIDs = ids
			if err := s.campaigns.ReplaceInstances(ctx, c.ID, ids); err != nil {
				return err
			}
		}
		if c.Status == domain.StatusDraft && c.ScheduledAt != nil {
			if _, err := s.campaigns.Transition(ctx, c.ID, []domain.Status{domain.StatusDraft}, domain.StatusScheduled, nil); err != nil {
				return err
			}
			c.Status = domain.StatusScheduled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a campaign that is not running.
func (s *CampaignService) Delete(ctx context.Context, tenant, id string) error {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	if c.Status == domain.StatusRunning {
		return domain.ErrInvalidTransition
	}
	return s.campaigns.Delete(ctx, tenant, id)
}

// AddContacts puts recipients in the campaign, creating phone book entries as needed.
// Invalid phones are reported back; contacts already in the campaign are skipped.
func (s *CampaignService) AddContacts(ctx context.Context, tenant, id string, in []ContactInput) (*AddContactsResult, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, domain.ErrInvalidTransition
	}

	res := &AddContactsResult{}
	rows := make([]*domain.CampaignContact, 0, len(in))
	seen := map[string]bool{}
	for _, item := range in {
		contact, err := s.phonebook.Upsert(ctx, tenant, item.Phone, strings.TrimSpace(item.Name))
		if errors.Is(err, contactsDomain.ErrInvalidPhone) {
			res.Invalid = append(res.Invalid, item.Phone)
			continue
		}
		if err != nil {
			return nil, err
		}
		if seen[contact.ID] {
			res.Skipped++
			continue
		}
		seen[contact.ID] = true
		name := contact.Name
		if name == "" {
			name = strings.TrimSpace(item.Name)
		}
		rows = append(rows, &domain.CampaignContact{
			Tenant:     tenant,
			CampaignID: c.ID,
			ContactID:  contact.ID,
			Phone:      contact.Phone,
			Name:       name,
		})
	}

	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		added, err := s.contacts.Add(ctx, rows)
		if err != nil {
			return err
		}
		res.Added = added
		res.Skipped += len(rows) - added
		counters, err := s.contacts.Count(ctx, c.ID)
		if err != nil {
			return err
		}
		res.Total = counters.Total
		return s.campaigns.StoreCounters(ctx, c.ID, counters)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *CampaignService) ListContacts(ctx context.Context, tenant, id string, status domain.ContactStatus, limit, offset int) ([]*domain.CampaignContact, error) {
	if _, err := s.campaigns.Get(ctx, tenant, id); err != nil {
		return nil, err
	}
	return s.contacts.List(ctx, id, status, limit, offset)
}

func (s *CampaignService) Logs(ctx context.Context, tenant, id string, logType domain.LogType, limit, offset int) ([]*domain.Log, error) {
	if _, err := s.campaigns.Get(ctx, tenant, id); err != nil {
		return nil, err
	}
	return s.logs.List(ctx, id, logType, limit, offset)
}

func (s *CampaignService) Stats(ctx context.Context, tenant, id string) (*Stats, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	counters, err := s.contacts.Count(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		CampaignID:             c.ID,
		Status:                 c.Status,
		Counters:               counters,
		NextMessageScheduledAt: c.NextMessageScheduledAt,
		NextContactName:        c.NextContactName,
		NextContactPhone:       c.NextContactPhone,
		StartedAt:              c.StartedAt,
		CompletedAt:            c.CompletedAt,
	}
	if counters.Total > 0 {
		done := counters.Sent + counters.Delivered + counters.Read + counters.Failed
		st.ProgressPct = float64(done) * 100 / float64(counters.Total)
	}
	return st, nil
}

// Start moves a draft or scheduled campaign to running and asks the supervisor for
// an executor.
func (s *CampaignService) Start(ctx context.Context, tenant, id string) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if len(c.Messages) == 0 {
		return nil, domain.ErrNoVariants
	}
	counters, err := s.contacts.Count(ctx, id)
	if err != nil {
		return nil, err
	}
	if counters.Pending+counters.Sending == 0 {
		return nil, domain.ErrNoContacts
	}
	now := s.now()
	return s.control(ctx, c, []domain.Status{domain.StatusDraft, domain.StatusScheduled}, domain.StatusRunning,
		map[string]any{"started_at": now}, jobs.CampaignStart, domain.LogStarted, "campaign started")
}

func (s *CampaignService) Pause(ctx context.Context, tenant, id string) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return s.control(ctx, c, []domain.Status{domain.StatusRunning}, domain.StatusPaused, nil,
		jobs.CampaignPause, domain.LogPaused, "campaign paused by operator")
}

func (s *CampaignService) Resume(ctx context.Context, tenant, id string) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return s.control(ctx, c, []domain.Status{domain.StatusPaused}, domain.StatusRunning, nil,
		jobs.CampaignResume, domain.LogResumed, "campaign resumed by operator")
}

func (s *CampaignService) Cancel(ctx context.Context, tenant, id string) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.control(ctx, c, []domain.Status{domain.StatusDraft, domain.StatusScheduled, domain.StatusRunning, domain.StatusPaused},
		domain.StatusCancelled, map[string]any{"completed_at": now, "next_message_scheduled_at": nil},
		jobs.CampaignCancel, domain.LogCancelled, "campaign cancelled by operator")
}

func (s *CampaignService) control(ctx context.Context, c *domain.Campaign, from []domain.Status, to domain.Status,
	extra map[string]any, action jobs.CampaignAction, logType domain.LogType, message string) (*domain.Campaign, error) {
	ok, err := s.campaigns.Transition(ctx, c.ID, from, to, extra)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	s.log(ctx, c, domain.Log{Type: logType, Severity: domain.SeverityInfo, Message: message,
		Details: map[string]any{"from": string(c.Status), "to": string(to)}})
	if s.bus != nil {
		if err := s.bus.Publish(ctx, jobs.StreamCampaignControl, c.ID, jobs.CampaignControl{
			Tenant: c.Tenant, CampaignID: c.ID, Action: action,
		}); err != nil {
			// the supervisor tick still picks running campaigns up
			logrus.WithError(err).Warnf("[CAMPAIGN] could not publish %s for %s", action, c.ID)
		}
	}
	logrus.Infof("[CAMPAIGN] %s: %s -> %s", c.ID, c.Status, to)
	return s.campaigns.Get(ctx, c.Tenant, c.ID)
}
