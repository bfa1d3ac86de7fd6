package application

import (
	"context"
	"errors"
	"strings"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	"github.com/sirupsen/logrus"
)

// React toggles the reaction of the tenant's sending identity on a message and returns
// the resulting set. Upstream calls go first so a gateway failure leaves the rows untouched.
func (s *ChatService) React(ctx context.Context, tenant, userID, messageID, emoji string) ([]*domain.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if !domain.ValidEmoji(emoji) {
		return nil, domain.ErrInvalidEmoji
	}
	msg, err := s.messages.Get(ctx, tenant, messageID)
	if err != nil {
		return nil, err
	}
	if msg.GatewayID == nil {
		return nil, domain.ErrNoGatewayID
	}
	inst, err := s.instances.PickForSend(ctx, tenant, instanceOf(msg))
	if err != nil {
		return nil, err
	}
	remote, err := s.remoteJIDOf(ctx, msg)
	if err != nil {
		return nil, err
	}

	reactor := inst.Phone
	if reactor == "" {
		reactor = domain.UserReactor(userID)
	}
	target := instancesApp.Target(inst)
	fromMe := msg.Direction == domain.Outgoing
	send := func(e string) error {
		return s.gw.SendReaction(ctx, target, remote, *msg.GatewayID, fromMe, e)
	}

	prior, err := s.reactions.Find(ctx, msg.ID, reactor)
	if err != nil {
		return nil, err
	}
	switch {
	case prior != nil && prior.Emoji == emoji:
		if err := send(""); err != nil {
			return nil, err
		}
		err = s.reactions.Delete(ctx, prior.ID)
	case prior != nil:
		if err := send(""); err != nil {
			return nil, err
		}
		if err := send(emoji); err != nil {
			return nil, err
		}
		err = s.reactions.UpdateEmoji(ctx, prior.ID, emoji)
	default:
		if err := send(emoji); err != nil {
			return nil, err
		}
		err = s.reactions.Create(ctx, &domain.Reaction{MessageID: msg.ID, Emoji: emoji, Reactor: reactor})
	}
	if err != nil {
		return nil, err
	}
	return s.announceReactions(ctx, msg)
}

// ApplyInboundReaction records a reaction made on the phone side. An empty emoji removes it.
func (s *ChatService) ApplyInboundReaction(ctx context.Context, tenant, targetGatewayID, reactor, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	msg, err := s.messages.GetByGatewayID(ctx, tenant, targetGatewayID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		logrus.Debugf("[CHAT] reaction to unknown message %s", targetGatewayID)
		return nil
	}
	if err != nil {
		return err
	}
	prior, err := s.reactions.Find(ctx, msg.ID, reactor)
	if err != nil {
		return err
	}
	switch {
	case emoji == "" && prior == nil:
		return nil
	case emoji == "":
		err = s.reactions.Delete(ctx, prior.ID)
	case prior != nil:
		if prior.Emoji == emoji {
			return nil
		}
		err = s.reactions.UpdateEmoji(ctx, prior.ID, emoji)
	default:
		err = s.reactions.Create(ctx, &domain.Reaction{MessageID: msg.ID, Emoji: emoji, Reactor: reactor})
		if errors.Is(err, domain.ErrDuplicateReaction) {
			err = nil
		}
	}
	if err != nil {
		return err
	}
	_, err = s.announceReactions(ctx, msg)
	return err
}

func (s *ChatService) announceReactions(ctx context.Context, msg *domain.Message) ([]*domain.Reaction, error) {
	all, err := s.reactions.List(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	s.bc.Broadcast(ctx, broadcast.ConversationRoom(msg.Tenant, msg.ConversationID), broadcast.EventMessageReactionUpdate,
		map[string]any{"message_id": msg.ID, "reactions": all})
	return all, nil
}

func (s *ChatService) remoteJIDOf(ctx context.Context, msg *domain.Message) (string, error) {
	if r := msg.MetaString(domain.MetaRemoteJID); r != "" {
		return r, nil
	}
	conv, err := s.conversations.Get(ctx, msg.Tenant, msg.ConversationID)
	if err != nil {
		return "", err
	}
	return s.destination(conv), nil
}
