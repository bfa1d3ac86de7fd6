package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type messageModel struct {
	ID                string  `gorm:"primaryKey"`
	Tenant            string  `gorm:"index;uniqueIndex:idx_messages_tenant_gateway_id,priority:1;not null"`
	ConversationID    string  `gorm:"index:idx_messages_conversation,priority:1;not null"`
	Direction         string  `gorm:"not null"`
	Content           string  `gorm:"type:text"`
	GatewayID         *string `gorm:"uniqueIndex:idx_messages_tenant_gateway_id,priority:2"`
	Status            string  `gorm:"index;default:'pending'"`
	SentAt            *time.Time
	DeliveredAt       *time.Time
	SeenAt            *time.Time
	FailedAt          *time.Time
	Error             string `gorm:"type:text"`
	SenderUserID      *string
	Origin            string
	IsInternal        bool `gorm:"default:false"`
	IsDeleted         bool `gorm:"default:false"`
	ReplyToID         *string
	Metadata          datatypes.JSON
	CampaignID        *string `gorm:"index"`
	CampaignContactID *string `gorm:"index"`
	BillingEmissionID *string `gorm:"index"`
	InstanceID        *string
	ReadReceiptSent   bool      `gorm:"default:false"`
	CreatedAt         time.Time `gorm:"index:idx_messages_conversation,priority:2;not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (messageModel) TableName() string {
	return "messages"
}

type MessageGormRepository struct {
	db *gorm.DB
}

var _ domain.MessageRepository = (*MessageGormRepository)(nil)

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

func (r *MessageGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageModel{})
}

func (r *MessageGormRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	m := toMessageModel(msg)
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if database.IsDuplicate(err) {
			return domain.ErrDuplicateMessage
		}
		return err
	}
	return nil
}

func (r *MessageGormRepository) first(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	var m messageModel
	if err := database.Conn(ctx, r.db).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return fromMessageModel(m), nil
}

func (r *MessageGormRepository) Get(ctx context.Context, tenant, id string) (*domain.Message, error) {
	return r.first(ctx, "tenant = ? AND id = ?", tenant, id)
}

// GetByGatewayID looks a key id up inside one tenant. The same WhatsApp key id shows up
// on both ends of a chat, so two tenants may each hold a row for it.
func (r *MessageGormRepository) GetByGatewayID(ctx context.Context, tenant, gatewayID string) (*domain.Message, error) {
	if gatewayID == "" {
		return nil, domain.ErrMessageNotFound
	}
	return r.first(ctx, "tenant = ? AND gateway_id = ?", tenant, gatewayID)
}

func (r *MessageGormRepository) LatestForCampaignContact(ctx context.Context, tenant, campaignContactID string) (*domain.Message, error) {
	var m messageModel
	err := database.Conn(ctx, r.db).Where("tenant = ? AND campaign_contact_id = ?", tenant, campaignContactID).
		Order("created_at DESC").Order("id DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromMessageModel(m), nil
}

func (r *MessageGormRepository) List(ctx context.Context, tenant, conversationID string, limit int, before *time.Time) ([]*domain.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := database.Conn(ctx, r.db).Where("tenant = ? AND conversation_id = ?", tenant, conversationID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var models []messageModel
	if err := q.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	// oldest first for the client
	out := make([]*domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		out = append(out, fromMessageModel(models[i]))
	}
	return out, nil
}

func (r *MessageGormRepository) RecentIncomingMetadata(ctx context.Context, conversationID string, limit int) ([]map[string]any, error) {
	var raws []datatypes.JSON
	err := database.Conn(ctx, r.db).Model(&messageModel{}).
		Where("conversation_id = ? AND direction = ?", conversationID, string(domain.Incoming)).
		Order("created_at DESC").Limit(limit).Pluck("metadata", &raws).Error
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(raws))
	for _, raw := range raws {
		if m := fromJSON(raw); m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MessageGormRepository) UnreadCount(ctx context.Context, conversationID string) (int, error) {
	var n int64
	err := database.Conn(ctx, r.db).Model(&messageModel{}).
		Where("conversation_id = ? AND direction = ? AND status IN ?", conversationID,
			string(domain.Incoming), unreadStatuses()).
		Count(&n).Error
	return int(n), err
}

func unreadStatuses() []string {
	return []string{string(domain.StatusPending), string(domain.StatusSent), string(domain.StatusDelivered)}
}

func (r *MessageGormRepository) MarkSent(ctx context.Context, id, gatewayID, instanceID string, at time.Time) (bool, error) {
	updates := map[string]any{
		"gateway_id": gatewayID,
		"status":     string(domain.StatusSent),
		"sent_at":    at,
		"error":      "",
		"updated_at": time.Now(),
	}
	if instanceID != "" {
		updates["instance_id"] = instanceID
	}
	res := database.Conn(ctx, r.db).Model(&messageModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(updates)
	if res.Error != nil {
		if database.IsDuplicate(res.Error) {
			return false, domain.ErrDuplicateMessage
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *MessageGormRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return database.Conn(ctx, r.db).Model(&messageModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]any{
			"status":     string(domain.StatusFailed),
			"failed_at":  at,
			"error":      reason,
			"updated_at": time.Now(),
		}).Error
}

func statusColumn(s domain.MessageStatus) string {
	switch s {
	case domain.StatusSent:
		return "sent_at"
	case domain.StatusDelivered:
		return "delivered_at"
	case domain.StatusSeen:
		return "seen_at"
	}
	return ""
}

func (r *MessageGormRepository) Advance(ctx context.Context, id string, next domain.MessageStatus, at time.Time) (bool, error) {
	prev := next.Precedes()
	if len(prev) == 0 {
		return false, nil
	}
	from := make([]string, 0, len(prev))
	for _, s := range prev {
		from = append(from, string(s))
	}
	updates := map[string]any{"status": string(next), "updated_at": time.Now()}
	if col := statusColumn(next); col != "" {
		updates[col] = at
	}
	res := database.Conn(ctx, r.db).Model(&messageModel{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *MessageGormRepository) MarkConversationSeen(ctx context.Context, tenant, conversationID string, limit int, at time.Time) ([]*domain.Message, error) {
	var flipped []*domain.Message
	err := database.Transaction(ctx, r.db, func(ctx context.Context) error {
		tx := database.Conn(ctx, r.db)
		var candidates []messageModel
		if err := tx.Where("tenant = ? AND conversation_id = ? AND direction = ? AND status IN ?",
			tenant, conversationID, string(domain.Incoming), unreadStatuses()).
			Order("created_at ASC").Limit(limit).Find(&candidates).Error; err != nil {
			return err
		}
		for _, m := range candidates {
			res := tx.Model(&messageModel{}).
				Where("id = ? AND status IN ?", m.ID, unreadStatuses()).
				Updates(map[string]any{"status": string(domain.StatusSeen), "seen_at": at, "updated_at": time.Now()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				m.Status = string(domain.StatusSeen)
				m.SeenAt = &at
				flipped = append(flipped, fromMessageModel(m))
			}
		}
		return nil
	})
	return flipped, err
}

func (r *MessageGormRepository) PendingReceipts(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Message, error) {
	var models []messageModel
	err := database.Conn(ctx, r.db).
		Where("direction = ? AND status = ? AND read_receipt_sent = ? AND gateway_id IS NOT NULL AND seen_at < ?",
			string(domain.Incoming), string(domain.StatusSeen), false, olderThan).
		Order("seen_at ASC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Message, 0, len(models))
	for _, m := range models {
		out = append(out, fromMessageModel(m))
	}
	return out, nil
}

func (r *MessageGormRepository) SetReceiptSent(ctx context.Context, id string) error {
	return database.Conn(ctx, r.db).Model(&messageModel{}).Where("id = ?", id).
		Update("read_receipt_sent", true).Error
}

func (r *MessageGormRepository) SetDeleted(ctx context.Context, tenant, id string) error {
	res := database.Conn(ctx, r.db).Model(&messageModel{}).Where("tenant = ? AND id = ?", tenant, id).
		Updates(map[string]any{"is_deleted": true, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *MessageGormRepository) SetMetadata(ctx context.Context, id string, metadata map[string]any) error {
	return database.Conn(ctx, r.db).Model(&messageModel{}).Where("id = ?", id).
		Updates(map[string]any{"metadata": toJSON(metadata), "updated_at": time.Now()}).Error
}

func (r *MessageGormRepository) Delete(ctx context.Context, id string) error {
	return database.Conn(ctx, r.db).Delete(&messageModel{}, "id = ?", id).Error
}

func toMessageModel(m *domain.Message) messageModel {
	return messageModel{
		ID:                m.ID,
		Tenant:            m.Tenant,
		ConversationID:    m.ConversationID,
		Direction:         string(m.Direction),
		Content:           m.Content,
		GatewayID:         m.GatewayID,
		Status:            string(m.Status),
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		SeenAt:            m.SeenAt,
		FailedAt:          m.FailedAt,
		Error:             m.Error,
		SenderUserID:      m.SenderUserID,
		Origin:            m.Origin,
		IsInternal:        m.IsInternal,
		IsDeleted:         m.IsDeleted,
		ReplyToID:         m.ReplyToID,
		Metadata:          toJSON(m.Metadata),
		CampaignID:        m.CampaignID,
		CampaignContactID: m.CampaignContactID,
		BillingEmissionID: m.BillingEmissionID,
		InstanceID:        m.InstanceID,
		ReadReceiptSent:   m.ReadReceiptSent,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func fromMessageModel(m messageModel) *domain.Message {
	return &domain.Message{
		ID:                m.ID,
		Tenant:            m.Tenant,
		ConversationID:    m.ConversationID,
		Direction:         domain.Direction(m.Direction),
		Content:           m.Content,
		GatewayID:         m.GatewayID,
		Status:            domain.MessageStatus(m.Status),
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		SeenAt:            m.SeenAt,
		FailedAt:          m.FailedAt,
		Error:             m.Error,
		SenderUserID:      m.SenderUserID,
		Origin:            m.Origin,
		IsInternal:        m.IsInternal,
		IsDeleted:         m.IsDeleted,
		ReplyToID:         m.ReplyToID,
		Metadata:          fromJSON(m.Metadata),
		CampaignID:        m.CampaignID,
		CampaignContactID: m.CampaignContactID,
		BillingEmissionID: m.BillingEmissionID,
		InstanceID:        m.InstanceID,
		ReadReceiptSent:   m.ReadReceiptSent,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
