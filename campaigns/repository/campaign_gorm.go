package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type campaignModel struct {
	ID                     string `gorm:"primaryKey"`
	Tenant                 string `gorm:"index:idx_campaigns_tenant_status;not null"`
	Name                   string `gorm:"not null"`
	RotationMode           string `gorm:"default:'round_robin'"`
	IntervalMin            int
	IntervalMax            int
	DailyLimitPerInstance  int
	PauseOnHealthBelow     int
	TotalCount             int    `gorm:"default:0"`
	SentCount              int    `gorm:"default:0"`
	DeliveredCount         int    `gorm:"default:0"`
	ReadCount              int    `gorm:"default:0"`
	FailedCount            int    `gorm:"default:0"`
	Status                 string `gorm:"index:idx_campaigns_tenant_status;default:'draft'"`
	ScheduledAt            *time.Time
	StartedAt              *time.Time
	CompletedAt            *time.Time
	CurrentInstanceIndex   int `gorm:"default:0"`
	NextMessageScheduledAt *time.Time
	NextContactName        string
	NextContactPhone       string
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time `gorm:"not null"`
}

func (campaignModel) TableName() string {
	return "campaigns"
}

type variantModel struct {
	ID         string `gorm:"primaryKey"`
	CampaignID string `gorm:"index;not null"`
	Content    string `gorm:"type:text"`
	MediaURL   string
	Position   int
	TimesUsed  int `gorm:"default:0"`
}

func (variantModel) TableName() string {
	return "campaign_messages"
}

type campaignInstanceModel struct {
	CampaignID string `gorm:"primaryKey"`
	InstanceID string `gorm:"primaryKey"`
}

func (campaignInstanceModel) TableName() string {
	return "campaign_instances"
}

type CampaignGormRepository struct {
	db *gorm.DB
}

var _ domain.CampaignRepository = (*CampaignGormRepository)(nil)

func NewCampaignGormRepository(db *gorm.DB) *CampaignGormRepository {
	return &CampaignGormRepository{db: db}
}

func (r *CampaignGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&campaignModel{}, &variantModel{}, &campaignInstanceModel{})
}

func (r *CampaignGormRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = domain.StatusDraft
	}
	return database.Transaction(ctx, r.db, func(ctx context.Context) error {
		m := toCampaignModel(c)
		if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
			return err
		}
		if err := r.ReplaceVariants(ctx, c.ID, c.Messages); err != nil {
			return err
		}
		return r.ReplaceInstances(ctx, c.ID, c.InstanceIDs)
	})
}

func (r *CampaignGormRepository) load(ctx context.Context, m campaignModel) (*domain.Campaign, error) {
	c := fromCampaignModel(m)
	var variants []variantModel
	if err := database.Conn(ctx, r.db).Where("campaign_id = ?", m.ID).Order("position ASC").Find(&variants).Error; err != nil {
		return nil, err
	}
	for _, v := range variants {
		c.Messages = append(c.Messages, fromVariantModel(v))
	}
	var links []campaignInstanceModel
	if err := database.Conn(ctx, r.db).Where("campaign_id = ?", m.ID).Order("instance_id ASC").Find(&links).Error; err != nil {
		return nil, err
	}
	c.InstanceIDs = make([]string, 0, len(links))
	for _, l := range links {
		c.InstanceIDs = append(c.InstanceIDs, l.InstanceID)
	}
	return c, nil
}

func (r *CampaignGormRepository) Get(ctx context.Context, tenant, id string) (*domain.Campaign, error) {
	var m campaignModel
	if err := database.Conn(ctx, r.db).Where("tenant = ? AND id = ?", tenant, id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, err
	}
	return r.load(ctx, m)
}

func (r *CampaignGormRepository) find(ctx context.Context, q *gorm.DB) ([]*domain.Campaign, error) {
	var models []campaignModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Campaign, 0, len(models))
	for _, m := range models {
		c, err := r.load(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *CampaignGormRepository) List(ctx context.Context, tenant string, status domain.Status) ([]*domain.Campaign, error) {
	q := database.Conn(ctx, r.db).Where("tenant = ?", tenant)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return r.find(ctx, q.Order("created_at DESC"))
}

func (r *CampaignGormRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Campaign, error) {
	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, string(s))
	}
	return r.find(ctx, database.Conn(ctx, r.db).Where("status IN ?", raw).Order("id ASC"))
}

func (r *CampaignGormRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*domain.Campaign, error) {
	return r.find(ctx, database.Conn(ctx, r.db).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", string(domain.StatusScheduled), now).
		Order("scheduled_at ASC"))
}

func (r *CampaignGormRepository) UpdateSettings(ctx context.Context, c *domain.Campaign) error {
	c.UpdatedAt = time.Now()
	res := database.Conn(ctx, r.db).Model(&campaignModel{}).Where("tenant = ? AND id = ?", c.Tenant, c.ID).
		Updates(map[string]any{
			"name":                     c.Name,
			"rotation_mode":            string(c.RotationMode),
			"interval_min":             c.IntervalMin,
			"interval_max":             c.IntervalMax,
			"daily_limit_per_instance": c.DailyLimitPerInstance,
			"pause_on_health_below":    c.PauseOnHealthBelow,
			"scheduled_at":             c.ScheduledAt,
			"updated_at":               c.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignGormRepository) Delete(ctx context.Context, tenant, id string) error {
	return database.Transaction(ctx, r.db, func(ctx context.Context) error {
		tx := database.Conn(ctx, r.db)
		res := tx.Delete(&campaignModel{}, "tenant = ? AND id = ?", tenant, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrCampaignNotFound
		}
		if err := tx.Delete(&variantModel{}, "campaign_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&campaignInstanceModel{}, "campaign_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&contactModel{}, "campaign_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&logModel{}, "campaign_id = ?", id).Error
	})
}

func (r *CampaignGormRepository) Transition(ctx context.Context, id string, from []domain.Status, to domain.Status, extra map[string]any) (bool, error) {
	raw := make([]string, 0, len(from))
	for _, s := range from {
		raw = append(raw, string(s))
	}
	updates := map[string]any{"status": string(to), "updated_at": time.Now()}
	for k, v := range extra {
		updates[k] = v
	}
	res := database.Conn(ctx, r.db).Model(&campaignModel{}).Where("id = ? AND status IN ?", id, raw).Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *CampaignGormRepository) SetInstanceIndex(ctx context.Context, id string, index int) error {
	return database.Conn(ctx, r.db).Model(&campaignModel{}).Where("id = ?", id).
		Update("current_instance_index", index).Error
}

func (r *CampaignGormRepository) SetNextMessage(ctx context.Context, id string, at *time.Time, name, phone string) error {
	return database.Conn(ctx, r.db).Model(&campaignModel{}).Where("id = ?", id).Updates(map[string]any{
		"next_message_scheduled_at": at,
		"next_contact_name":         name,
		"next_contact_phone":        phone,
	}).Error
}

func (r *CampaignGormRepository) AddCounters(ctx context.Context, id string, sent, failed int) error {
	return database.Conn(ctx, r.db).Model(&campaignModel{}).Where("id = ?", id).Updates(map[string]any{
		"sent_count":   gorm.Expr("sent_count + ?", sent),
		"failed_count": gorm.Expr("failed_count + ?", failed),
		"updated_at":   time.Now(),
	}).Error
}

func (r *CampaignGormRepository) StoreCounters(ctx context.Context, id string, c domain.Counters) error {
	return database.Conn(ctx, r.db).Model(&campaignModel{}).Where("id = ?", id).Updates(map[string]any{
		"total_count":     c.Total,
		"sent_count":      c.Sent + c.Delivered + c.Read,
		"delivered_count": c.Delivered + c.Read,
		"read_count":      c.Read,
		"failed_count":    c.Failed,
	}).Error
}

func (r *CampaignGormRepository) ReplaceVariants(ctx context.Context, campaignID string, variants []*domain.Variant) error {
	return database.Transaction(ctx, r.db, func(ctx context.Context) error {
		tx := database.Conn(ctx, r.db)
		if err := tx.Delete(&variantModel{}, "campaign_id = ?", campaignID).Error; err != nil {
			return err
		}
		for i, v := range variants {
			if v.ID == "" {
				v.ID = uuid.New().String()
			}
			v.CampaignID = campaignID
			v.Position = i
			m := variantModel(*v)
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CampaignGormRepository) PickVariant(ctx context.Context, campaignID string) (*domain.Variant, error) {
	var picked *domain.Variant
	err := database.Transaction(ctx, r.db, func(ctx context.Context) error {
		tx := database.Conn(ctx, r.db)
		var m variantModel
		err := tx.Where("campaign_id = ?", campaignID).Order("times_used ASC").Order("position ASC").First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNoVariants
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&variantModel{}).Where("id = ?", m.ID).
			Update("times_used", gorm.Expr("times_used + 1")).Error; err != nil {
			return err
		}
		m.TimesUsed++
		picked = fromVariantModel(m)
		return nil
	})
	return picked, err
}

func (r *CampaignGormRepository) ReplaceInstances(ctx context.Context, campaignID string, instanceIDs []string) error {
	return database.Transaction(ctx, r.db, func(ctx context.Context) error {
		tx := database.Conn(ctx, r.db)
		if err := tx.Delete(&campaignInstanceModel{}, "campaign_id = ?", campaignID).Error; err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, id := range instanceIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if err := tx.Create(&campaignInstanceModel{CampaignID: campaignID, InstanceID: id}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func toCampaignModel(c *domain.Campaign) campaignModel {
	return campaignModel{
		ID:                     c.ID,
		Tenant:                 c.Tenant,
		Name:                   c.Name,
		RotationMode:           string(c.RotationMode),
		IntervalMin:            c.IntervalMin,
		IntervalMax:            c.IntervalMax,
		DailyLimitPerInstance:  c.DailyLimitPerInstance,
		PauseOnHealthBelow:     c.PauseOnHealthBelow,
		TotalCount:             c.TotalCount,
		SentCount:              c.SentCount,
		DeliveredCount:         c.DeliveredCount,
		ReadCount:              c.ReadCount,
		FailedCount:            c.FailedCount,
		Status:                 string(c.Status),
		ScheduledAt:            c.ScheduledAt,
		StartedAt:              c.StartedAt,
		CompletedAt:            c.CompletedAt,
		CurrentInstanceIndex:   c.CurrentInstanceIndex,
		NextMessageScheduledAt: c.NextMessageScheduledAt,
		NextContactName:        c.NextContactName,
		NextContactPhone:       c.NextContactPhone,
		CreatedAt:              c.CreatedAt,
		UpdatedAt:              c.UpdatedAt,
	}
}

func fromCampaignModel(m campaignModel) *domain.Campaign {
	return &domain.Campaign{
		ID:                     m.ID,
		Tenant:                 m.Tenant,
		Name:                   m.Name,
		RotationMode:           domain.RotationMode(m.RotationMode),
		IntervalMin:            m.IntervalMin,
		IntervalMax:            m.IntervalMax,
		DailyLimitPerInstance:  m.DailyLimitPerInstance,
		PauseOnHealthBelow:     m.PauseOnHealthBelow,
		TotalCount:             m.TotalCount,
		SentCount:              m.SentCount,
		DeliveredCount:         m.DeliveredCount,
		ReadCount:              m.ReadCount,
		FailedCount:            m.FailedCount,
		Status:                 domain.Status(m.Status),
		ScheduledAt:            m.ScheduledAt,
		StartedAt:              m.StartedAt,
		CompletedAt:            m.CompletedAt,
		CurrentInstanceIndex:   m.CurrentInstanceIndex,
		NextMessageScheduledAt: m.NextMessageScheduledAt,
		NextContactName:        m.NextContactName,
		NextContactPhone:       m.NextContactPhone,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func fromVariantModel(m variantModel) *domain.Variant {
	v := domain.Variant(m)
	return &v
}
