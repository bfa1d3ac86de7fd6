package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contactModel struct {
	ID               string `gorm:"primaryKey"`
	Tenant           string `gorm:"index;not null"`
	CampaignID       string `gorm:"uniqueIndex:idx_campaign_contact;index:idx_campaign_contacts_status;not null"`
	ContactID        string `gorm:"uniqueIndex:idx_campaign_contact;not null"`
	Phone            string `gorm:"not null"`
	Name             string
	Status           string `gorm:"index:idx_campaign_contacts_status;default:'pending'"`
	Error            string `gorm:"type:text"`
	RetryCount       int    `gorm:"default:0"`
	InstanceID       *string
	VariantID        *string
	GatewayMessageID *string `gorm:"index"`
	MessageID        *string `gorm:"index"`
	SendingAt        *time.Time
	SentAt           *time.Time
	DeliveredAt      *time.Time
	ReadAt           *time.Time
	FailedAt         *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (contactModel) TableName() string {
	return "campaign_contacts"
}

type ContactGormRepository struct {
	db *gorm.DB
}

var _ domain.ContactRepository = (*ContactGormRepository)(nil)

func NewContactGormRepository(db *gorm.DB) *ContactGormRepository {
	return &ContactGormRepository{db: db}
}

func (r *ContactGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&contactModel{})
}

func (r *ContactGormRepository) Add(ctx context.Context, contacts []*domain.CampaignContact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	now := time.Now()
	models := make([]contactModel, 0, len(contacts))
	for i, c := range contacts {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.Status = domain.ContactPending
		// distinct timestamps keep the oldest-first order stable within a batch
		c.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		c.UpdatedAt = now
		models = append(models, toContactModel(c))
	}
	res := database.Conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&models, 500)
	return int(res.RowsAffected), res.Error
}

func (r *ContactGormRepository) Get(ctx context.Context, id string) (*domain.CampaignContact, error) {
	var m contactModel
	if err := database.Conn(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrContactNotFound
		}
		return nil, err
	}
	return fromContactModel(m), nil
}

func (r *ContactGormRepository) List(ctx context.Context, campaignID string, status domain.ContactStatus, limit, offset int) ([]*domain.CampaignContact, error) {
	q := database.Conn(ctx, r.db).Where("campaign_id = ?", campaignID)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []contactModel
	if err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.CampaignContact, 0, len(models))
	for _, m := range models {
		out = append(out, fromContactModel(m))
	}
	return out, nil
}

func (r *ContactGormRepository) NextPending(ctx context.Context, campaignID string) (*domain.CampaignContact, error) {
	var m contactModel
	err := database.Conn(ctx, r.db).Where("campaign_id = ? AND status = ?", campaignID, string(domain.ContactPending)).
		Order("created_at ASC").Order("id ASC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromContactModel(m), nil
}

func (r *ContactGormRepository) Claim(ctx context.Context, id, instanceID, variantID string, at time.Time) (bool, error) {
	res := database.Conn(ctx, r.db).Model(&contactModel{}).
		Where("id = ? AND status = ?", id, string(domain.ContactPending)).
		Updates(map[string]any{
			"status":      string(domain.ContactSending),
			"instance_id": instanceID,
			"variant_id":  variantID,
			"sending_at":  at,
			"updated_at":  at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *ContactGormRepository) MarkSent(ctx context.Context, id, messageID, gatewayID string, at time.Time) error {
	return database.Conn(ctx, r.db).Model(&contactModel{}).
		Where("id = ? AND status IN ?", id, []string{string(domain.ContactPending), string(domain.ContactSending)}).
		Updates(map[string]any{
			"status":             string(domain.ContactSent),
			"message_id":         messageID,
			"gateway_message_id": gatewayID,
			"sent_at":            at,
			"error":              "",
			"updated_at":         at,
		}).Error
}

func (r *ContactGormRepository) MarkFailed(ctx context.Context, id, messageID, reason string, at time.Time) error {
	updates := map[string]any{
		"status":      string(domain.ContactFailed),
		"error":       reason,
		"retry_count": gorm.Expr("retry_count + 1"),
		"failed_at":   at,
		"updated_at":  at,
	}
	if messageID != "" {
		updates["message_id"] = messageID
	}
	return database.Conn(ctx, r.db).Model(&contactModel{}).Where("id = ?", id).Updates(updates).Error
}

func (r *ContactGormRepository) Advance(ctx context.Context, id string, status domain.ContactStatus, at time.Time) (bool, error) {
	below := status.Below()
	if len(below) == 0 {
		return false, nil
	}
	raw := make([]string, 0, len(below))
	for _, s := range below {
		raw = append(raw, string(s))
	}
	updates := map[string]any{"status": string(status), "updated_at": at}
	switch status {
	case domain.ContactSent:
		updates["sent_at"] = at
	case domain.ContactDelivered:
		updates["delivered_at"] = at
	case domain.ContactRead:
		updates["read_at"] = at
	}
	res := database.Conn(ctx, r.db).Model(&contactModel{}).Where("id = ? AND status IN ?", id, raw).Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *ContactGormRepository) ResetSending(ctx context.Context, campaignID string) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&contactModel{}).
		Where("campaign_id = ? AND status = ?", campaignID, string(domain.ContactSending)).
		Updates(map[string]any{"status": string(domain.ContactPending), "sending_at": nil, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *ContactGormRepository) Count(ctx context.Context, campaignID string) (domain.Counters, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := database.Conn(ctx, r.db).Model(&contactModel{}).Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).Group("status").Scan(&rows).Error
	if err != nil {
		return domain.Counters{}, err
	}
	var c domain.Counters
	for _, row := range rows {
		c.Total += row.N
		switch domain.ContactStatus(row.Status) {
		case domain.ContactPending:
			c.Pending = row.N
		case domain.ContactSending:
			c.Sending = row.N
		case domain.ContactSent:
			c.Sent = row.N
		case domain.ContactDelivered:
			c.Delivered = row.N
		case domain.ContactRead:
			c.Read = row.N
		case domain.ContactFailed:
			c.Failed = row.N
		}
	}
	return c, nil
}

func toContactModel(c *domain.CampaignContact) contactModel {
	return contactModel{
		ID:               c.ID,
		Tenant:           c.Tenant,
		CampaignID:       c.CampaignID,
		ContactID:        c.ContactID,
		Phone:            c.Phone,
		Name:             c.Name,
		Status:           string(c.Status),
		Error:            c.Error,
		RetryCount:       c.RetryCount,
		InstanceID:       c.InstanceID,
		VariantID:        c.VariantID,
		GatewayMessageID: c.GatewayMessageID,
		MessageID:        c.MessageID,
		SendingAt:        c.SendingAt,
		SentAt:           c.SentAt,
		DeliveredAt:      c.DeliveredAt,
		ReadAt:           c.ReadAt,
		FailedAt:         c.FailedAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func fromContactModel(m contactModel) *domain.CampaignContact {
	return &domain.CampaignContact{
		ID:               m.ID,
		Tenant:           m.Tenant,
		CampaignID:       m.CampaignID,
		ContactID:        m.ContactID,
		Phone:            m.Phone,
		Name:             m.Name,
		Status:           domain.ContactStatus(m.Status),
		Error:            m.Error,
		RetryCount:       m.RetryCount,
		InstanceID:       m.InstanceID,
		VariantID:        m.VariantID,
		GatewayMessageID: m.GatewayMessageID,
		MessageID:        m.MessageID,
		SendingAt:        m.SendingAt,
		SentAt:           m.SentAt,
		DeliveredAt:      m.DeliveredAt,
		ReadAt:           m.ReadAt,
		FailedAt:         m.FailedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
