package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/core/jobs"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/webhooks/domain"
	"github.com/sirupsen/logrus"
)

// stalePending is how long a pending event may wait before a sweep requeues it.
const stalePending = 5 * time.Minute

func (s *WebhookService) List(ctx context.Context, tenant string, f domain.Filter) ([]*domain.Event, error) {
	if f.Event != "" {
		f.Event = domain.Normalize(f.Event)
	}
	return s.events.List(ctx, tenant, f)
}

func (s *WebhookService) Get(ctx context.Context, tenant, eventID string) (*domain.Event, error) {
	e, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.Tenant != tenant {
		return nil, domain.ErrEventNotFound
	}
	return e, nil
}

// Reprocess queues the given events again, or every failed and stale pending event of
// the tenant when ids is empty. It returns the event ids that were queued.
func (s *WebhookService) Reprocess(ctx context.Context, tenant string, ids []string) ([]string, error) {
	var targets []*domain.Event
	if len(ids) == 0 {
		due, err := s.events.Reprocessable(ctx, tenant, s.now().Add(-stalePending), 100)
		if err != nil {
			return nil, err
		}
		targets = due
	} else {
		for _, id := range ids {
			e, err := s.events.GetByEventID(ctx, id)
			if errors.Is(err, domain.ErrEventNotFound) {
				return nil, pkgError.NotFoundError("webhook event " + id + " not found")
			}
			if err != nil {
				return nil, err
			}
			if e.Tenant == "" {
				// the instance may have been registered after the event arrived
				resolved, err := s.instances.ResolveTenant(ctx, e.InstanceName)
				if err != nil {
					return nil, err
				}
				e.Tenant = resolved
			}
			if e.Tenant != tenant {
				return nil, pkgError.NotFoundError("webhook event " + id + " not found")
			}
			targets = append(targets, e)
		}
	}

	queued := make([]string, 0, len(targets))
	for _, e := range targets {
		if err := s.events.SetPending(ctx, e.ID, e.Tenant); err != nil {
			return queued, err
		}
		if err := s.bus.Publish(ctx, jobs.StreamWebhook, e.EventID, jobs.WebhookReceived{EventID: e.EventID}); err != nil {
			return queued, err
		}
		queued = append(queued, e.EventID)
	}
	if len(queued) > 0 {
		logrus.Infof("[WEBHOOK] requeued %d events for tenant %s", len(queued), tenant)
	}
	return queued, nil
}
