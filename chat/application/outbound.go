package application

import (
	"context"
	"errors"
	"strings"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/jobs"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/phone"
)

// OutgoingInput describes a message the platform wants to send. ConversationID wins over
// Remote; Remote is a phone or a group JID.
type OutgoingInput struct {
	Tenant            string
	ConversationID    string
	Remote            string
	Name              string
	Content           string
	SenderUserID      *string
	Origin            string
	CampaignID        *string
	CampaignContactID *string
	BillingEmissionID *string
	InstanceID        *string
	ReplyToID         *string
	Metadata          map[string]any
	IsInternal        bool
}

// EnsureConversation returns the conversation for a phone or group JID, creating it open.
func (s *ChatService) EnsureConversation(ctx context.Context, tenant, remote, name string) (*domain.Conversation, bool, error) {
	kind := domain.KindIndividual
	key := remote
	switch {
	case phone.IsGroupJID(remote):
		kind = domain.KindGroup
	case phone.IsLID(remote):
	default:
		key = phone.Normalize(remote)
		if !phone.IsE164(key) {
			return nil, false, pkgError.ValidationError("invalid phone " + remote)
		}
	}

	conv, err := s.conversations.GetByRemote(ctx, tenant, key)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, domain.ErrConversationNotFound) {
		return nil, false, err
	}
	conv = &domain.Conversation{
		Tenant:       tenant,
		Kind:         kind,
		ContactPhone: key,
		Name:         name,
		Status:       domain.ConversationOpen,
	}
	if kind == domain.KindGroup {
		conv.SetMeta(domain.MetaGroupJID, key)
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		if errors.Is(err, domain.ErrDuplicateConversation) {
			conv, err = s.conversations.GetByRemote(ctx, tenant, key)
			return conv, false, err
		}
		return nil, false, err
	}
	if kind == domain.KindIndividual && name != "" {
		_, _ = s.contacts.Upsert(ctx, tenant, key, name)
	}
	return conv, true, nil
}

// CreateOutgoing stores a pending outbound message. It does not enqueue it.
func (s *ChatService) CreateOutgoing(ctx context.Context, in OutgoingInput) (*domain.Message, *domain.Conversation, error) {
	draft := domain.Message{Metadata: in.Metadata}
	if strings.TrimSpace(in.Content) == "" && len(draft.AttachmentURLs()) == 0 {
		return nil, nil, domain.ErrEmptyMessage
	}

	var conv *domain.Conversation
	var err error
	created := false
	if in.ConversationID != "" {
		conv, err = s.conversations.Get(ctx, in.Tenant, in.ConversationID)
	} else {
		conv, created, err = s.EnsureConversation(ctx, in.Tenant, in.Remote, in.Name)
	}
	if err != nil {
		return nil, nil, err
	}

	msg := &domain.Message{
		Tenant:            in.Tenant,
		ConversationID:    conv.ID,
		Direction:         domain.Outgoing,
		Content:           in.Content,
		Status:            domain.StatusPending,
		SenderUserID:      in.SenderUserID,
		Origin:            in.Origin,
		IsInternal:        in.IsInternal,
		ReplyToID:         in.ReplyToID,
		Metadata:          in.Metadata,
		CampaignID:        in.CampaignID,
		CampaignContactID: in.CampaignContactID,
		BillingEmissionID: in.BillingEmissionID,
		InstanceID:        in.InstanceID,
		CreatedAt:         s.now(),
	}
	if !msg.HasSender() {
		msg.Origin = domain.OriginSystem
	}
	if in.IsInternal {
		// internal notes never leave the platform
		msg.Status = domain.StatusSent
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, err
	}
	if err := s.conversations.Touch(ctx, conv.ID, msg.CreatedAt); err != nil {
		return nil, nil, err
	}
	at := msg.CreatedAt
	conv.LastMessageAt = &at
	if created {
		s.bc.Broadcast(ctx, broadcast.TenantRoom(conv.Tenant), broadcast.EventNewConversation, conv)
	}
	return msg, conv, nil
}

// CampaignMessage returns the newest message created for a campaign recipient.
func (s *ChatService) CampaignMessage(ctx context.Context, tenant, campaignContactID string) (*domain.Message, error) {
	return s.messages.LatestForCampaignContact(ctx, tenant, campaignContactID)
}

// Enqueue publishes chat.send for a pending message, keyed by conversation.
func (s *ChatService) Enqueue(ctx context.Context, msg *domain.Message) error {
	return s.bus.Publish(ctx, jobs.StreamChatSend, msg.ConversationID, jobs.SendMessage{
		Tenant:         msg.Tenant,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	})
}

// SendText is the API path: store, enqueue and show the message in the room.
func (s *ChatService) SendText(ctx context.Context, tenant, userID, conversationID, content, replyTo string) (*domain.Message, error) {
	msg, conv, err := s.CreateOutgoing(ctx, OutgoingInput{
		Tenant:         tenant,
		ConversationID: conversationID,
		Content:        content,
		SenderUserID:   strPtr(userID),
		ReplyToID:      strPtr(replyTo),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Enqueue(ctx, msg); err != nil {
		return nil, err
	}
	s.bc.Broadcast(ctx, broadcast.ConversationRoom(tenant, conv.ID), broadcast.EventMessageReceived, msg)
	s.announceConversation(ctx, conv, nil)
	return msg, nil
}
