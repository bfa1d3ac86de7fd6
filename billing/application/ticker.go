package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/billing/domain"
	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatDomain "github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/database"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/sirupsen/logrus"
)

const (
	tickBatch   = 200
	staleClaim  = 10 * time.Minute
	defaultTick = time.Minute
)

// Run fires due reminders every tick until ctx ends. Several processes may run it: the
// claim hands each reminder to exactly one of them.
func (s *BillingService) Run(ctx context.Context) error {
	tick := s.cfg.Campaign.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	logrus.Infof("[BILLING] ticker started, tick %s", tick)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("[BILLING] tick failed")
		}
		select {
		case <-ctx.Done():
			logrus.Info("[BILLING] ticker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick claims and fires every due reminder. It returns how many were handed to the
// send queue.
func (s *BillingService) Tick(ctx context.Context) (int, error) {
	now := s.now()
	if n, err := s.emissions.ReleaseStale(ctx, now.Add(-staleClaim)); err != nil {
		return 0, err
	} else if n > 0 {
		logrus.Warnf("[BILLING] %d reminder(s) stuck in sending were released", n)
	}

	fired := 0
	for ctx.Err() == nil {
		batch, err := s.emissions.ClaimDue(ctx, now, tickBatch)
		if err != nil {
			return fired, err
		}
		released := false
		for _, e := range batch {
			ok, err := s.fire(ctx, e)
			if err != nil {
				logrus.WithError(err).Warnf("[BILLING] reminder %s released for the next tick", e.ID)
				if rerr := s.emissions.Release(context.WithoutCancel(ctx), e.ID); rerr != nil {
					logrus.WithError(rerr).Errorf("[BILLING] could not release reminder %s", e.ID)
				}
				released = true
				continue
			}
			if ok {
				fired++
			}
		}
		if len(batch) < tickBatch || released {
			break
		}
	}
	if fired > 0 {
		logrus.Infof("[BILLING] %d reminder(s) queued", fired)
	}
	return fired, nil
}

// fire sends one claimed reminder. Terminal problems mark it failed and return
// (false, nil); an error means the reminder should be retried.
func (s *BillingService) fire(ctx context.Context, e *domain.Emission) (bool, error) {
	c, err := s.cycles.Get(ctx, e.Tenant, e.CycleID)
	if errors.Is(err, domain.ErrCycleNotFound) {
		return false, s.emissions.MarkFailed(ctx, e.ID, err.Error())
	}
	if err != nil {
		return false, err
	}
	if c.Status != domain.CycleActive {
		return false, s.emissions.MarkFailed(ctx, e.ID, domain.ErrCycleClosed.Error())
	}

	emissionID := e.ID
	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		msg, _, err := s.chat.CreateOutgoing(ctx, chatApp.OutgoingInput{
			Tenant:            c.Tenant,
			Remote:            c.Phone,
			Name:              c.Name,
			Content:           Render(e.Template, c),
			Origin:            chatDomain.OriginSystem,
			BillingEmissionID: &emissionID,
			Metadata: map[string]any{
				"billing_cycle_id":    c.ID,
				"external_billing_id": c.ExternalBillingID,
				"offset_days":         e.OffsetDays,
			},
		})
		if err != nil {
			return err
		}
		if err := s.emissions.MarkSent(ctx, e.ID, msg.ID, s.now()); err != nil {
			return err
		}
		if err := s.cycles.IncrementSent(ctx, c.ID); err != nil {
			return err
		}
		// published last so a failed publish rolls the message back
		return s.chat.Enqueue(ctx, msg)
	})
	if err != nil {
		var generic pkgError.GenericError
		if !errors.As(err, &generic) && !errors.Is(err, chatDomain.ErrEmptyMessage) {
			return false, err
		}
		logrus.WithError(err).Warnf("[BILLING] reminder %s of cycle %s failed", e.ID, c.ID)
		if err := s.emissions.MarkFailed(ctx, e.ID, err.Error()); err != nil {
			return false, err
		}
		s.completeIfDone(ctx, c.ID)
		return false, nil
	}
	s.completeIfDone(ctx, c.ID)
	return true, nil
}

// completeIfDone closes a cycle once none of its reminders is pending or sending.
func (s *BillingService) completeIfDone(ctx context.Context, cycleID string) {
	open, err := s.emissions.CountOpen(ctx, cycleID)
	if err != nil {
		logrus.WithError(err).Warnf("[BILLING] could not count reminders of cycle %s", cycleID)
		return
	}
	if open > 0 {
		return
	}
	ok, err := s.cycles.Close(ctx, cycleID, domain.CycleCompleted, s.now())
	if err != nil {
		logrus.WithError(err).Warnf("[BILLING] could not complete cycle %s", cycleID)
		return
	}
	if ok {
		logrus.Infof("[BILLING] cycle %s completed", cycleID)
	}
}
