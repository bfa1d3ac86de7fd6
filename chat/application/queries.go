package application

import (
	"context"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
)

const defaultMessagePage = 50

func (s *ChatService) ListConversations(ctx context.Context, tenant string, filter domain.ConversationFilter) ([]*domain.Conversation, error) {
	convs, err := s.conversations.List(ctx, tenant, filter)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		if c.UnreadCount, err = s.messages.UnreadCount(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *ChatService) GetConversation(ctx context.Context, tenant, id string) (*domain.Conversation, error) {
	conv, err := s.conversations.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if conv.UnreadCount, err = s.messages.UnreadCount(ctx, conv.ID); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListMessages returns the page of messages before the cursor, oldest first, with attachments.
func (s *ChatService) ListMessages(ctx context.Context, tenant, conversationID string, limit int, before *time.Time) ([]*domain.Message, error) {
	if _, err := s.conversations.Get(ctx, tenant, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	msgs, err := s.messages.List(ctx, tenant, conversationID, limit, before)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	ids := make([]string, 0, len(msgs))
	byID := make(map[string]*domain.Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}
	atts, err := s.attachments.ListByMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range atts {
		if m := byID[a.MessageID]; m != nil {
			m.Attachments = append(m.Attachments, a)
		}
	}
	return msgs, nil
}

func (s *ChatService) Reactions(ctx context.Context, tenant, messageID string) ([]*domain.Reaction, error) {
	if _, err := s.messages.Get(ctx, tenant, messageID); err != nil {
		return nil, err
	}
	return s.reactions.List(ctx, messageID)
}
