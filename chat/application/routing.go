package application

import (
	"context"
	"errors"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	"github.com/sirupsen/logrus"
)

type TransferInput struct {
	DepartmentID   *string `json:"department_id"`
	AssignedUserID *string `json:"assigned_user_id"`
}

// Transfer routes a conversation to a department and assignee, leaves an internal note
// and sends the department greeting when one is configured.
func (s *ChatService) Transfer(ctx context.Context, tenant, userID, conversationID string, in TransferInput) (*domain.Conversation, error) {
	conv, err := s.conversations.Get(ctx, tenant, conversationID)
	if err != nil {
		return nil, err
	}
	var dept *domain.Department
	if in.DepartmentID != nil && *in.DepartmentID != "" {
		if dept, err = s.departments.Get(ctx, tenant, *in.DepartmentID); err != nil {
			return nil, err
		}
	}

	label := "outro atendente"
	if dept != nil {
		label = dept.Name
	}
	var note, greeting *domain.Message
	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		if err := s.conversations.Route(ctx, tenant, conv.ID, in.DepartmentID, in.AssignedUserID); err != nil {
			return err
		}
		var err error
		note, _, err = s.CreateOutgoing(ctx, OutgoingInput{
			Tenant:         tenant,
			ConversationID: conv.ID,
			Content:        "Conversa transferida para " + label,
			SenderUserID:   strPtr(userID),
			IsInternal:     true,
		})
		if err != nil {
			return err
		}
		if dept != nil && dept.TransferMessage != "" {
			greeting, _, err = s.CreateOutgoing(ctx, OutgoingInput{
				Tenant:         tenant,
				ConversationID: conv.ID,
				Content:        dept.TransferMessage,
				Origin:         domain.OriginSystem,
			})
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if greeting != nil {
		if err := s.Enqueue(ctx, greeting); err != nil {
			logrus.WithError(err).Errorf("[CHAT] could not queue transfer message of %s", conv.ID)
		}
	}

	conv.DepartmentID = in.DepartmentID
	conv.AssignedUserID = in.AssignedUserID
	room := broadcast.ConversationRoom(tenant, conv.ID)
	s.bc.Broadcast(ctx, room, broadcast.EventMessageReceived, note)
	if greeting != nil {
		s.bc.Broadcast(ctx, room, broadcast.EventMessageReceived, greeting)
	}
	s.bc.Broadcast(ctx, room, broadcast.EventConversationTransferred, map[string]any{
		"conversation_id":  conv.ID,
		"department_id":    in.DepartmentID,
		"assigned_user_id": in.AssignedUserID,
		"transferred_by":   userID,
	})
	s.announceConversation(ctx, conv, nil)
	return conv, nil
}

// Assign sets the assignee and opens a pending conversation.
func (s *ChatService) Assign(ctx context.Context, tenant, conversationID string, userID *string) (*domain.Conversation, error) {
	conv, err := s.conversations.Get(ctx, tenant, conversationID)
	if err != nil {
		return nil, err
	}
	conv.AssignedUserID = userID
	if conv.Status == domain.ConversationPending {
		conv.Status = domain.ConversationOpen
	}
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	s.announceConversation(ctx, conv, nil)
	return conv, nil
}

func (s *ChatService) Close(ctx context.Context, tenant, conversationID string) (*domain.Conversation, error) {
	conv, err := s.conversations.Get(ctx, tenant, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Status = domain.ConversationClosed
	conv.DepartmentID = nil
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	s.announceConversation(ctx, conv, nil)
	return conv, nil
}

// DeleteMessage revokes a sent outgoing message for everyone.
func (s *ChatService) DeleteMessage(ctx context.Context, tenant, messageID string) error {
	msg, err := s.messages.Get(ctx, tenant, messageID)
	if err != nil {
		return err
	}
	if msg.Direction != domain.Outgoing || msg.GatewayID == nil {
		return domain.ErrNotDeletable
	}
	if msg.IsDeleted {
		return nil
	}
	inst, err := s.instances.PickForSend(ctx, tenant, instanceOf(msg))
	if err != nil {
		return err
	}
	remote, err := s.remoteJIDOf(ctx, msg)
	if err != nil {
		return err
	}
	err = s.gw.DeleteForEveryone(ctx, instancesApp.Target(inst), remote, *msg.GatewayID, true)
	if err != nil && !errors.Is(err, gateway.ErrGone) {
		return err
	}
	return s.markDeleted(ctx, msg)
}

// ApplyRemoteDelete mirrors a revoke that happened on the device.
func (s *ChatService) ApplyRemoteDelete(ctx context.Context, tenant, gatewayID string) error {
	msg, err := s.messages.GetByGatewayID(ctx, tenant, gatewayID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return nil
	}
	return s.markDeleted(ctx, msg)
}

func (s *ChatService) markDeleted(ctx context.Context, msg *domain.Message) error {
	if err := s.messages.SetDeleted(ctx, msg.Tenant, msg.ID); err != nil {
		return err
	}
	s.bc.Broadcast(ctx, broadcast.ConversationRoom(msg.Tenant, msg.ConversationID), broadcast.EventMessageDeleted,
		map[string]any{"message_id": msg.ID, "gateway_id": msg.GatewayIDValue()})
	return nil
}
