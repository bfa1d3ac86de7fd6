package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/instances/domain"
	"github.com/AzielCF/az-engage/pkg/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type instanceModel struct {
	ID                string `gorm:"primaryKey"`
	Tenant            string `gorm:"index:idx_instances_tenant;not null"`
	FriendlyName      string
	InstanceName      string `gorm:"uniqueIndex:idx_instances_name;not null"`
	BaseURL           string
	APIKey            string `gorm:"column:api_key;type:text"`
	Status            string `gorm:"default:'active'"`
	ConnectionState   string `gorm:"default:'close'"`
	Phone             string
	MsgsSentToday     int    `gorm:"default:0"`
	LastResetDate     string `gorm:"size:10"`
	ConsecutiveErrors int    `gorm:"default:0"`
	HealthScore       int    `gorm:"default:100"`
	IsDefault         bool   `gorm:"default:false"`
	LastStateAt       *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (instanceModel) TableName() string {
	return "whatsapp_instances"
}

// --- Repository Implementation ---

type InstanceGormRepository struct {
	db *gorm.DB
}

var _ domain.InstanceRepository = (*InstanceGormRepository)(nil)

func NewInstanceGormRepository(db *gorm.DB) *InstanceGormRepository {
	return &InstanceGormRepository{db: db}
}

func (r *InstanceGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&instanceModel{})
}

func (r *InstanceGormRepository) Create(ctx context.Context, inst *domain.Instance) error {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	m, err := toInstanceModel(inst)
	if err != nil {
		return err
	}
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if database.IsDuplicate(err) {
			return domain.ErrDuplicateInstance
		}
		return err
	}
	return nil
}

func (r *InstanceGormRepository) first(ctx context.Context, query string, args ...any) (*domain.Instance, error) {
	var m instanceModel
	if err := database.Conn(ctx, r.db).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, err
	}
	return fromInstanceModel(m), nil
}

func (r *InstanceGormRepository) GetByID(ctx context.Context, tenant, id string) (*domain.Instance, error) {
	return r.first(ctx, "tenant = ? AND id = ?", tenant, id)
}

func (r *InstanceGormRepository) GetByName(ctx context.Context, instanceName string) (*domain.Instance, error) {
	return r.first(ctx, "instance_name = ?", instanceName)
}

func (r *InstanceGormRepository) GetDefault(ctx context.Context, tenant string) (*domain.Instance, error) {
	return r.first(ctx, "tenant = ? AND is_default = ?", tenant, true)
}

func (r *InstanceGormRepository) find(ctx context.Context, q *gorm.DB) ([]*domain.Instance, error) {
	var models []instanceModel
	if err := q.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Instance, 0, len(models))
	for _, m := range models {
		out = append(out, fromInstanceModel(m))
	}
	return out, nil
}

func (r *InstanceGormRepository) List(ctx context.Context, tenant string) ([]*domain.Instance, error) {
	return r.find(ctx, database.Conn(ctx, r.db).Where("tenant = ?", tenant))
}

func (r *InstanceGormRepository) ListByIDs(ctx context.Context, tenant string, ids []string) ([]*domain.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, database.Conn(ctx, r.db).Where("tenant = ? AND id IN ?", tenant, ids))
}

func (r *InstanceGormRepository) ListConnected(ctx context.Context, tenant string) ([]*domain.Instance, error) {
	return r.find(ctx, database.Conn(ctx, r.db).Where("tenant = ? AND status = ? AND connection_state = ?",
		tenant, string(domain.StatusActive), domain.StateOpen))
}

func (r *InstanceGormRepository) ListAll(ctx context.Context) ([]*domain.Instance, error) {
	return r.find(ctx, database.Conn(ctx, r.db).Model(&instanceModel{}))
}

func (r *InstanceGormRepository) Update(ctx context.Context, inst *domain.Instance) error {
	inst.UpdatedAt = time.Now()
	m, err := toInstanceModel(inst)
	if err != nil {
		return err
	}
	result := database.Conn(ctx, r.db).Model(&instanceModel{}).
		Where("tenant = ? AND id = ?", inst.Tenant, inst.ID).
		Select("friendly_name", "base_url", "api_key", "status", "updated_at").
		Updates(&m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInstanceNotFound
	}
	return nil
}

func (r *InstanceGormRepository) Delete(ctx context.Context, tenant, id string) error {
	result := database.Conn(ctx, r.db).Delete(&instanceModel{}, "tenant = ? AND id = ?", tenant, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInstanceNotFound
	}
	return nil
}

// SetDefault clears the tenant's previous default and marks id, in one transaction.
func (r *InstanceGormRepository) SetDefault(ctx context.Context, tenant, id string) error {
	return database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&instanceModel{}).Where("tenant = ? AND id = ?", tenant, id).
			Updates(map[string]any{"is_default": true, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInstanceNotFound
		}
		return tx.Model(&instanceModel{}).
			Where("tenant = ? AND id <> ? AND is_default = ?", tenant, id, true).
			Update("is_default", false).Error
	})
}

func (r *InstanceGormRepository) UpdateConnection(ctx context.Context, id, state, phone string) error {
	now := time.Now()
	updates := map[string]any{"connection_state": state, "last_state_at": now, "updated_at": now}
	if phone != "" {
		updates["phone"] = phone
	}
	return database.Conn(ctx, r.db).Model(&instanceModel{}).Where("id = ?", id).Updates(updates).Error
}

func (r *InstanceGormRepository) RecordSuccess(ctx context.Context, id, date string) error {
	return database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&instanceModel{}).
			Where("id = ? AND (last_reset_date IS NULL OR last_reset_date <> ?)", id, date).
			Updates(map[string]any{"msgs_sent_today": 0, "last_reset_date": date}).Error
		if err != nil {
			return err
		}
		return tx.Model(&instanceModel{}).Where("id = ?", id).Updates(map[string]any{
			"msgs_sent_today":    gorm.Expr("msgs_sent_today + 1"),
			"consecutive_errors": 0,
			"health_score": gorm.Expr("CASE WHEN health_score + ? > ? THEN ? ELSE health_score + ? END",
				domain.HealthGainOnSend, domain.MaxHealth, domain.MaxHealth, domain.HealthGainOnSend),
			"updated_at": time.Now(),
		}).Error
	})
}

func (r *InstanceGormRepository) RecordFailure(ctx context.Context, id string) error {
	return database.Conn(ctx, r.db).Model(&instanceModel{}).Where("id = ?", id).Updates(map[string]any{
		"consecutive_errors": gorm.Expr("consecutive_errors + 1"),
		"health_score": gorm.Expr("CASE WHEN health_score - ? < 0 THEN 0 ELSE health_score - ? END",
			domain.HealthLossOnFail, domain.HealthLossOnFail),
		"updated_at": time.Now(),
	}).Error
}

// --- Converters ---

func toInstanceModel(inst *domain.Instance) (instanceModel, error) {
	key := inst.APIKey
	if key != "" && !crypto.IsEncrypted(key) {
		enc, err := crypto.Encrypt(key)
		if err != nil {
			return instanceModel{}, err
		}
		key = enc
	}
	return instanceModel{
		ID:                inst.ID,
		Tenant:            inst.Tenant,
		FriendlyName:      inst.FriendlyName,
		InstanceName:      inst.InstanceName,
		BaseURL:           inst.BaseURL,
		APIKey:            key,
		Status:            string(inst.Status),
		ConnectionState:   inst.ConnectionState,
		Phone:             inst.Phone,
		MsgsSentToday:     inst.MsgsSentToday,
		LastResetDate:     inst.LastResetDate,
		ConsecutiveErrors: inst.ConsecutiveErrors,
		HealthScore:       inst.HealthScore,
		IsDefault:         inst.IsDefault,
		LastStateAt:       inst.LastStateAt,
		CreatedAt:         inst.CreatedAt,
		UpdatedAt:         inst.UpdatedAt,
	}, nil
}

func fromInstanceModel(m instanceModel) *domain.Instance {
	key, err := crypto.Decrypt(m.APIKey)
	if err != nil {
		logrus.WithError(err).Warnf("[INSTANCES] could not decrypt api key of %s", m.InstanceName)
		key = ""
	}
	return &domain.Instance{
		ID:                m.ID,
		Tenant:            m.Tenant,
		FriendlyName:      m.FriendlyName,
		InstanceName:      m.InstanceName,
		BaseURL:           m.BaseURL,
		APIKey:            key,
		Status:            domain.Status(m.Status),
		ConnectionState:   m.ConnectionState,
		Phone:             m.Phone,
		MsgsSentToday:     m.MsgsSentToday,
		LastResetDate:     m.LastResetDate,
		ConsecutiveErrors: m.ConsecutiveErrors,
		HealthScore:       m.HealthScore,
		IsDefault:         m.IsDefault,
		LastStateAt:       m.LastStateAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
