package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	chatApp "github.com/AzielCF/az-engage/chat/application"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/AzielCF/az-engage/pkg/phone"
	"github.com/AzielCF/az-engage/webhooks/domain"
	"github.com/sirupsen/logrus"
)

const statusBroadcastJID = "status@broadcast"

// HandleWebhook is the chat.webhook consumer. Upstream hiccups are retried until the
// last attempt; every other outcome is acked with the event flagged.
func (s *WebhookService) HandleWebhook(ctx context.Context, job jobs.WebhookReceived, d jobs.Delivery) error {
	e, err := s.events.GetByEventID(ctx, job.EventID)
	if errors.Is(err, domain.ErrEventNotFound) {
		logrus.Warnf("[WEBHOOK] job for unknown event %s", job.EventID)
		return nil
	}
	if err != nil {
		return err
	}
	if e.Status == domain.StatusProcessed {
		return nil
	}

	payload := s.loadPayload(ctx, e)
	err = s.route(ctx, e, payload)
	if err == nil {
		if err := s.events.MarkProcessed(ctx, e.ID, s.now()); err != nil {
			logrus.WithError(err).Errorf("[WEBHOOK] could not mark %s processed", e.EventID)
		}
		return nil
	}

	log := logrus.WithError(err).WithFields(logrus.Fields{"event_id": e.EventID, "event": e.Event, "attempt": d.Attempt})
	if merr := s.events.MarkError(ctx, e.ID, err.Error()); merr != nil {
		log.WithError(merr).Error("[WEBHOOK] could not flag failed event")
	}
	if gateway.IsTransient(err) && !d.LastAttempt() {
		log.Warn("[WEBHOOK] transient failure, retrying")
		return err
	}
	log.Error("[WEBHOOK] processing failed")
	return nil
}

// loadPayload prefers the hot cache copy and falls back to the stored row.
func (s *WebhookService) loadPayload(ctx context.Context, e *domain.Event) map[string]any {
	raw, err := s.cache.Get(ctx, rawKey(e.EventID))
	if err == nil {
		var payload map[string]any
		if json.Unmarshal(raw, &payload) == nil {
			return payload
		}
	} else if !errors.Is(err, kvcache.ErrMiss) {
		logrus.WithError(err).Warn("[WEBHOOK] hot cache read failed")
	}
	return e.Payload
}

func (s *WebhookService) route(ctx context.Context, e *domain.Event, payload map[string]any) error {
	switch e.Event {
	case domain.EventMessagesUpsert:
		inst, err := s.instances.GetByName(ctx, e.InstanceName)
		if err != nil && !errors.Is(err, instancesDomain.ErrInstanceNotFound) {
			return err
		}
		for _, item := range items(payload) {
			if err := s.upsert(ctx, e, inst, item); err != nil {
				return err
			}
		}
	case domain.EventMessagesUpdate:
		for _, item := range items(payload) {
			id := firstStr(mapAt(item, "key"), "id")
			if id == "" {
				id = firstStr(item, "keyId", "messageId")
			}
			if err := s.chat.ApplyStatus(ctx, e.Tenant, id, item["status"], unixTime(item, "messageTimestamp")); err != nil {
				return err
			}
		}
	case domain.EventMessagesDelete:
		for _, item := range items(payload) {
			id := firstStr(mapAt(item, "key"), "id")
			if id == "" {
				id = firstStr(item, "id", "keyId", "messageId")
			}
			if id == "" {
				continue
			}
			if err := s.chat.ApplyRemoteDelete(ctx, e.Tenant, id); err != nil {
				return err
			}
		}
	case domain.EventConnectionUpdate:
		data := mapAt(payload, "data")
		state := strings.ToLower(str(data, "state"))
		if state == "" {
			return nil
		}
		return s.instances.ApplyConnectionUpdate(ctx, e.InstanceName, state, str(data, "wuid"))
	default:
		logrus.Debugf("[WEBHOOK] ignoring %s from %s", e.Event, e.InstanceName)
	}
	return nil
}

func (s *WebhookService) upsert(ctx context.Context, e *domain.Event, inst *instancesDomain.Instance, item map[string]any) error {
	key := mapAt(item, "key")
	remote := str(key, "remoteJid")
	if remote == "" || remote == statusBroadcastJID {
		return nil
	}
	fromMe := boolean(key, "fromMe")
	gatewayID := str(key, "id")
	participant := firstStr(key, "participantAlt", "participant")
	at := unixTime(item, "messageTimestamp")

	msg := mapAt(item, "message")
	if reaction := mapAt(msg, "reactionMessage"); reaction != nil {
		if fromMe {
			// our own reactions are stored when they are sent
			return nil
		}
		reactor := participant
		if reactor == "" {
			reactor = remote
		}
		if p := phone.Normalize(reactor); p != "" {
			reactor = p
		}
		return s.chat.ApplyInboundReaction(ctx, e.Tenant, str(mapAt(reaction, "key"), "id"), reactor, str(reaction, "text"))
	}
	if proto := mapAt(msg, "protocolMessage"); proto != nil {
		if isRevoke(proto["type"]) {
			return s.chat.ApplyRemoteDelete(ctx, e.Tenant, str(mapAt(proto, "key"), "id"))
		}
		return nil
	}

	c := parseContent(item)
	in := chatApp.InboundMessage{
		Tenant:        e.Tenant,
		InstanceName:  e.InstanceName,
		RemoteJID:     remote,
		Participant:   participant,
		FromMe:        fromMe,
		GatewayID:     gatewayID,
		Kind:          c.kind,
		Content:       c.text,
		Pushname:      str(item, "pushName"),
		ProfilePicURL: str(item, "profilePicUrl"),
		AttachmentURL: c.mediaURL,
		MimeType:      c.mimeType,
		Filename:      c.filename,
		Timestamp:     at,
	}
	if inst != nil {
		in.InstanceID = inst.ID
	}
	if _, err := s.chat.RecordInbound(ctx, in); err != nil {
		return fmt.Errorf("record %s: %w", gatewayID, err)
	}
	if fromMe && gatewayID != "" {
		// the echo confirms the upstream accepted our send
		return s.chat.ApplyStatus(ctx, e.Tenant, gatewayID, "SERVER_ACK", at)
	}
	return nil
}

func isRevoke(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "REVOKE")
	case float64:
		return t == 0
	}
	return false
}
