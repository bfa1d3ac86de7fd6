package application

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/webhooks/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const reasonUnknownInstance = "unknown instance"

// IngestResult is what the ingress endpoint answers with.
type IngestResult struct {
	EventID   string `json:"event_id"`
	Event     string `json:"event"`
	Duplicate bool   `json:"duplicate"`
	Queued    bool   `json:"queued"`
}

// NewEventID builds first8(md5(event|instance|server_url|now)) + "|" + first8(uuid).
func NewEventID(event, instance, serverURL string, now time.Time) string {
	sum := md5.Sum([]byte(event + "|" + instance + "|" + serverURL + "|" + now.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:8] + "|" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// DedupeKey identifies a gateway retransmission: the message key and status when
// the payload has one, the payload hash otherwise.
func DedupeKey(event, instance string, payload map[string]any, raw []byte) string {
	var parts []string
	for _, item := range items(payload) {
		key := mapAt(item, "key")
		id := firstStr(key, "id")
		if id == "" {
			id = firstStr(item, "keyId", "messageId", "id")
		}
		if id == "" {
			continue
		}
		fromMe := boolean(key, "fromMe") || boolean(item, "fromMe")
		parts = append(parts, fmt.Sprintf("%s|%s|%t", id, str(item, "status"), fromMe))
	}
	var sum [sha1.Size]byte
	if len(parts) > 0 {
		sum = sha1.Sum([]byte(event + "|" + instance + "|" + strings.Join(parts, ",")))
	} else {
		sum = sha1.Sum(append([]byte(event+"|"+instance+"|"), raw...))
	}
	return hex.EncodeToString(sum[:])
}

// Ingest records one callback and queues it. Retransmissions land on the stored row;
// only a row that ended in error is queued again.
func (s *WebhookService) Ingest(ctx context.Context, raw []byte) (*IngestResult, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
	}
	event := domain.Normalize(str(payload, "event"))
	if event == "" {
		return nil, fmt.Errorf("%w: missing event", domain.ErrBadPayload)
	}
	instance := str(payload, "instance")
	if instance == "" {
		// older gateway builds nest the name
		instance = firstStr(mapAt(payload, "data"), "instance", "instanceName")
	}

	tenant, err := s.instances.ResolveTenant(ctx, instance)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e := &domain.Event{
		EventID:      NewEventID(event, instance, str(payload, "server_url"), now),
		DedupeKey:    DedupeKey(event, instance, payload, raw),
		Tenant:       tenant,
		InstanceName: instance,
		Event:        event,
		Payload:      payload,
		Status:       domain.StatusPending,
		CreatedAt:    now,
	}
	if tenant == "" {
		e.Status = domain.StatusError
		e.Error = reasonUnknownInstance
	}

	stored, created, err := s.events.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	res := &IngestResult{EventID: stored.EventID, Event: stored.Event, Duplicate: !created}
	log := logrus.WithFields(logrus.Fields{"event_id": stored.EventID, "event": event, "instance": instance})

	if created {
		if err := s.cache.Set(ctx, rawKey(stored.EventID), raw, s.rawTTL); err != nil {
			log.WithError(err).Warn("[WEBHOOK] hot cache write failed")
		}
	}
	if stored.Tenant == "" && tenant == "" {
		log.Warn("[WEBHOOK] stored event for unknown instance")
		return res, nil
	}
	if !created && stored.Status != domain.StatusError {
		log.Debug("[WEBHOOK] retransmission ignored")
		return res, nil
	}
	if !created {
		if err := s.events.SetPending(ctx, stored.ID, tenant); err != nil {
			return nil, err
		}
	}
	if err := s.bus.Publish(ctx, jobs.StreamWebhook, stored.EventID, jobs.WebhookReceived{EventID: stored.EventID}); err != nil {
		if merr := s.events.MarkError(ctx, stored.ID, "publish failed: "+err.Error()); merr != nil {
			log.WithError(merr).Error("[WEBHOOK] could not flag unpublished event")
		}
		return nil, err
	}
	res.Queued = true
	log.Debug("[WEBHOOK] queued")
	return res, nil
}
