package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	"github.com/sirupsen/logrus"
)

const (
	defaultMarkAsReadMax = 1000
	receiptSweepBatch    = 200
	// receiptGrace leaves the queued job time to run before the sweep republishes it.
	receiptGrace = 5 * time.Minute
)

// MarkAsRead flips the unread incoming messages of a conversation to seen and queues one
// read receipt per message the gateway knows. It returns how many rows changed.
func (s *ChatService) MarkAsRead(ctx context.Context, tenant, conversationID string) (int, error) {
	conv, err := s.conversations.Get(ctx, tenant, conversationID)
	if err != nil {
		return 0, err
	}
	limit := s.cfg.Chat.MarkAsReadMax
	if limit <= 0 {
		limit = defaultMarkAsReadMax
	}

	flipped, err := s.messages.MarkConversationSeen(ctx, tenant, conv.ID, limit, s.now())
	if err != nil {
		return 0, err
	}
	for _, m := range flipped {
		if m.GatewayID == nil {
			continue
		}
		s.publishReceipt(ctx, m)
	}

	conv.UnreadCount = 0
	s.announceConversation(ctx, conv, map[string]any{"unread_count": 0})
	return len(flipped), nil
}

func (s *ChatService) publishReceipt(ctx context.Context, m *domain.Message) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, jobs.StreamMarkRead, m.ConversationID, jobs.MarkRead{Tenant: m.Tenant, MessageID: m.ID})
	if err != nil {
		logrus.WithError(err).Warnf("[READ_RECEIPT] could not queue receipt for %s", m.ID)
	}
}

// HandleMarkRead confirms one read message upstream.
func (s *ChatService) HandleMarkRead(ctx context.Context, job jobs.MarkRead, d jobs.Delivery) error {
	msg, err := s.messages.Get(ctx, job.Tenant, job.MessageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if msg.ReadReceiptSent || msg.GatewayID == nil {
		return nil
	}

	inst, err := s.instances.PickForSend(ctx, msg.Tenant, instanceOf(msg))
	if err != nil {
		if d.LastAttempt() {
			logrus.WithError(err).Warnf("[READ_RECEIPT] giving up on %s", msg.ID)
			return nil
		}
		return err
	}

	remote := msg.MetaString(domain.MetaRemoteJID)
	if remote == "" {
		conv, err := s.conversations.Get(ctx, msg.Tenant, msg.ConversationID)
		if err != nil {
			return err
		}
		remote = s.destination(conv)
	}

	err = s.gw.MarkRead(ctx, instancesApp.Target(inst), []gateway.ReadKey{{RemoteJID: remote, ID: *msg.GatewayID}})
	if err != nil && !errors.Is(err, gateway.ErrGone) {
		if gateway.IsTransient(err) && !d.LastAttempt() {
			return err
		}
		logrus.WithError(err).Warnf("[READ_RECEIPT] receipt for %s rejected", msg.ID)
		return nil
	}
	return s.messages.SetReceiptSent(ctx, msg.ID)
}

// SweepReadReceipts republishes receipts that were never confirmed.
func (s *ChatService) SweepReadReceipts(ctx context.Context) (int, error) {
	pending, err := s.messages.PendingReceipts(ctx, s.now().Add(-receiptGrace), receiptSweepBatch)
	if err != nil {
		return 0, err
	}
	for _, m := range pending {
		s.publishReceipt(ctx, m)
	}
	if len(pending) > 0 {
		logrus.Infof("[READ_RECEIPT] republished %d receipts", len(pending))
	}
	return len(pending), nil
}

func instanceOf(m *domain.Message) string {
	if m.InstanceID == nil {
		return ""
	}
	return *m.InstanceID
}
