package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/billing/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type cycleModel struct {
	ID                string `gorm:"primaryKey"`
	Tenant            string `gorm:"uniqueIndex:idx_billing_cycles_active,where:status = 'active';index:idx_billing_cycles_tenant;not null"`
	ExternalBillingID string `gorm:"uniqueIndex:idx_billing_cycles_active;not null"`
	Phone             string `gorm:"not null"`
	Name              string
	DueDate           string `gorm:"size:10;not null"`
	BillingData       datatypes.JSON
	NotifyBeforeDue   bool
	NotifyAfterDue    bool
	Status            string `gorm:"index;default:'active'"`
	TotalMessages     int    `gorm:"default:0"`
	SentMessages      int    `gorm:"default:0"`
	ClosedAt          *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (cycleModel) TableName() string {
	return "billing_cycles"
}

type CycleGormRepository struct {
	db *gorm.DB
}

var _ domain.CycleRepository = (*CycleGormRepository)(nil)

func NewCycleGormRepository(db *gorm.DB) *CycleGormRepository {
	return &CycleGormRepository{db: db}
}

func (r *CycleGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&cycleModel{})
}

func (r *CycleGormRepository) Create(ctx context.Context, c *domain.Cycle) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = domain.CycleActive
	}
	m := toCycleModel(c)
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if database.IsDuplicate(err) {
			return domain.ErrDuplicateCycle
		}
		return err
	}
	return nil
}

func (r *CycleGormRepository) first(ctx context.Context, query string, args ...any) (*domain.Cycle, error) {
	var m cycleModel
	if err := database.Conn(ctx, r.db).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCycleNotFound
		}
		return nil, err
	}
	return fromCycleModel(m), nil
}

func (r *CycleGormRepository) Get(ctx context.Context, tenant, id string) (*domain.Cycle, error) {
	return r.first(ctx, "tenant = ? AND id = ?", tenant, id)
}

func (r *CycleGormRepository) GetActive(ctx context.Context, tenant, externalID string) (*domain.Cycle, error) {
	return r.first(ctx, "tenant = ? AND external_billing_id = ? AND status = ?", tenant, externalID, string(domain.CycleActive))
}

func (r *CycleGormRepository) List(ctx context.Context, tenant string, status domain.CycleStatus, limit, offset int) ([]*domain.Cycle, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := database.Conn(ctx, r.db).Where("tenant = ?", tenant)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var models []cycleModel
	if err := q.Order("created_at DESC, id ASC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Cycle, 0, len(models))
	for _, m := range models {
		out = append(out, fromCycleModel(m))
	}
	return out, nil
}

func (r *CycleGormRepository) UpdateDetails(ctx context.Context, c *domain.Cycle) error {
	c.UpdatedAt = time.Now()
	m := toCycleModel(c)
	res := database.Conn(ctx, r.db).Model(&cycleModel{}).Where("id = ?", c.ID).
		Select("phone", "name", "due_date", "billing_data", "notify_before_due", "notify_after_due", "updated_at").
		Updates(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCycleNotFound
	}
	return nil
}

func (r *CycleGormRepository) Close(ctx context.Context, id string, status domain.CycleStatus, at time.Time) (bool, error) {
	res := database.Conn(ctx, r.db).Model(&cycleModel{}).
		Where("id = ? AND status = ?", id, string(domain.CycleActive)).
		Updates(map[string]any{"status": string(status), "closed_at": at, "updated_at": time.Now()})
	return res.RowsAffected == 1, res.Error
}

func (r *CycleGormRepository) SetTotal(ctx context.Context, id string, total int) error {
	return database.Conn(ctx, r.db).Model(&cycleModel{}).Where("id = ?", id).
		Updates(map[string]any{"total_messages": total, "updated_at": time.Now()}).Error
}

func (r *CycleGormRepository) IncrementSent(ctx context.Context, id string) error {
	return database.Conn(ctx, r.db).Model(&cycleModel{}).Where("id = ?", id).
		Updates(map[string]any{"sent_messages": gorm.Expr("sent_messages + 1"), "updated_at": time.Now()}).Error
}

func toCycleModel(c *domain.Cycle) cycleModel {
	return cycleModel{
		ID:                c.ID,
		Tenant:            c.Tenant,
		ExternalBillingID: c.ExternalBillingID,
		Phone:             c.Phone,
		Name:              c.Name,
		DueDate:           c.DueDate,
		BillingData:       toJSON(c.BillingData),
		NotifyBeforeDue:   c.NotifyBeforeDue,
		NotifyAfterDue:    c.NotifyAfterDue,
		Status:            string(c.Status),
		TotalMessages:     c.TotalMessages,
		SentMessages:      c.SentMessages,
		ClosedAt:          c.ClosedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func fromCycleModel(m cycleModel) *domain.Cycle {
	return &domain.Cycle{
		ID:                m.ID,
		Tenant:            m.Tenant,
		ExternalBillingID: m.ExternalBillingID,
		Phone:             m.Phone,
		Name:              m.Name,
		DueDate:           m.DueDate,
		BillingData:       fromJSON(m.BillingData),
		NotifyBeforeDue:   m.NotifyBeforeDue,
		NotifyAfterDue:    m.NotifyAfterDue,
		Status:            domain.CycleStatus(m.Status),
		TotalMessages:     m.TotalMessages,
		SentMessages:      m.SentMessages,
		ClosedAt:          m.ClosedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func fromJSON(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
