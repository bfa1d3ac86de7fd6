package application

import (
	"context"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	contactsDomain "github.com/AzielCF/az-engage/contacts/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	"github.com/AzielCF/az-engage/infrastructure/objectstore"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"gorm.io/gorm"
)

// Deps wires the chat pipeline.
type Deps struct {
	DB            *gorm.DB
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Attachments   domain.AttachmentRepository
	Reactions     domain.ReactionRepository
	Departments   domain.DepartmentRepository
	Contacts      contactsDomain.ContactRepository
	Instances     *instancesApp.InstanceService
	Gateway       gateway.API
	Bus           jobs.Publisher
	Cache         kvcache.Cache
	Store         objectstore.Store
	Broadcaster   broadcast.Broadcaster
	Config        *config.Config
}

// ChatService runs the conversation and message pipeline: inbound recording, the send
// worker, status reconciliation, read receipts, reactions, media and routing.
type ChatService struct {
	db            *gorm.DB
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	attachments   domain.AttachmentRepository
	reactions     domain.ReactionRepository
	departments   domain.DepartmentRepository
	contacts      contactsDomain.ContactRepository
	instances     *instancesApp.InstanceService
	gw            gateway.API
	bus           jobs.Publisher
	cache         kvcache.Cache
	store         objectstore.Store
	bc            broadcast.Broadcaster
	cfg           *config.Config
	listener      domain.DeliveryListener

	now func() time.Time
}

func NewChatService(d Deps) *ChatService {
	bc := d.Broadcaster
	if bc == nil {
		bc = broadcast.Nop{}
	}
	cache := d.Cache
	if cache == nil {
		cache = kvcache.NewMemory()
	}
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &ChatService{
		db:            d.DB,
		conversations: d.Conversations,
		messages:      d.Messages,
		attachments:   d.Attachments,
		reactions:     d.Reactions,
		departments:   d.Departments,
		contacts:      d.Contacts,
		instances:     d.Instances,
		gw:            d.Gateway,
		bus:           d.Bus,
		cache:         cache,
		store:         d.Store,
		bc:            bc,
		cfg:           cfg,
		now:           time.Now,
	}
}

// SetDeliveryListener registers the campaign hook run inside status transactions.
func (s *ChatService) SetDeliveryListener(l domain.DeliveryListener) {
	s.listener = l
}

func (s *ChatService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ChatService) local(t time.Time) time.Time {
	return t.In(s.cfg.Location())
}

func (s *ChatService) announceConversation(ctx context.Context, conv *domain.Conversation, extra map[string]any) {
	data := map[string]any{
		"conversation_id":  conv.ID,
		"status":           conv.Status,
		"department_id":    conv.DepartmentID,
		"assigned_user_id": conv.AssignedUserID,
	}
	if conv.LastMessageAt != nil {
		data["last_message_at"] = conv.LastMessageAt
	}
	for k, v := range extra {
		data[k] = v
	}
	s.bc.Broadcast(ctx, broadcast.TenantRoom(conv.Tenant), broadcast.EventConversationUpdated, data)
}

func (s *ChatService) announceStatus(ctx context.Context, msg *domain.Message, status domain.MessageStatus) {
	s.bc.Broadcast(ctx, broadcast.ConversationRoom(msg.Tenant, msg.ConversationID), broadcast.EventMessageStatusUpdate,
		map[string]any{"message_id": msg.ID, "status": status, "gateway_id": msg.GatewayIDValue()})
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
