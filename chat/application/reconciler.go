package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/sirupsen/logrus"
)

var gatewayStatusNames = map[string]domain.MessageStatus{
	"PENDING":      domain.StatusPending,
	"SERVER_ACK":   domain.StatusSent,
	"DELIVERY_ACK": domain.StatusDelivered,
	"READ":         domain.StatusSeen,
	"PLAYED":       domain.StatusSeen,
}

var gatewayStatusCodes = map[int]domain.MessageStatus{
	1: domain.StatusPending,
	2: domain.StatusSent,
	3: domain.StatusDelivered,
	4: domain.StatusSeen,
}

// MapGatewayStatus accepts the status names and numeric ack codes the gateway emits.
func MapGatewayStatus(raw any) (domain.MessageStatus, bool) {
	switch v := raw.(type) {
	case string:
		if st, ok := gatewayStatusNames[strings.ToUpper(strings.TrimSpace(v))]; ok {
			return st, true
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			st, ok := gatewayStatusCodes[n]
			return st, ok
		}
	case float64:
		st, ok := gatewayStatusCodes[int(v)]
		return st, ok
	case int:
		st, ok := gatewayStatusCodes[v]
		return st, ok
	case int64:
		st, ok := gatewayStatusCodes[int(v)]
		return st, ok
	}
	return "", false
}

// ApplyStatus moves the tenant's message identified by its gateway id forward. The campaign
// listener runs in the same transaction so message and contact never disagree.
// Unknown messages, unknown codes and backward moves are acked without error.
func (s *ChatService) ApplyStatus(ctx context.Context, tenant, gatewayID string, raw any, at time.Time) error {
	status, ok := MapGatewayStatus(raw)
	if !ok {
		logrus.Warnf("[RECONCILER] unknown status %v for %s", raw, gatewayID)
		return nil
	}
	if gatewayID == "" {
		return nil
	}
	if at.IsZero() {
		at = s.now()
	}

	var msg *domain.Message
	applied := false
	err := database.Transaction(ctx, s.db, func(ctx context.Context) error {
		m, err := s.messages.GetByGatewayID(ctx, tenant, gatewayID)
		if err != nil {
			return err
		}
		msg = m
		if !m.Status.CanAdvanceTo(status) {
			return nil
		}
		ok, err := s.messages.Advance(ctx, m.ID, status, at)
		if err != nil || !ok {
			return err
		}
		applied = true
		if s.listener != nil && (m.CampaignContactID != nil || m.CampaignID != nil) {
			if err := s.listener.MessageStatusChanged(ctx, m, status, at); err != nil {
				return fmt.Errorf("delivery listener: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrMessageNotFound) {
		logrus.Debugf("[RECONCILER] no message for gateway id %s", gatewayID)
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		logrus.WithError(domain.ErrStatusRegression).Warnf("[RECONCILER] dropping %s -> %s for message %s", msg.Status, status, msg.ID)
		return nil
	}

	msg.Status = status
	s.announceStatus(ctx, msg, status)
	if conv, err := s.conversations.Get(ctx, msg.Tenant, msg.ConversationID); err == nil {
		s.announceConversation(ctx, conv, map[string]any{"message_id": msg.ID, "message_status": status})
	}
	return nil
}
