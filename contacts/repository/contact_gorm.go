package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/contacts/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/pkg/phone"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type contactModel struct {
	ID        string `gorm:"primaryKey"`
	Tenant    string `gorm:"uniqueIndex:idx_contacts_tenant_phone,priority:1;not null"`
	Phone     string `gorm:"uniqueIndex:idx_contacts_tenant_phone,priority:2;not null"`
	Name      string
	Metadata  datatypes.JSON
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (contactModel) TableName() string {
	return "contacts"
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

func (r *ContactGormRepository) Upsert(ctx context.Context, tenant, rawPhone, name string) (*domain.Contact, error) {
	p := phone.Normalize(rawPhone)
	if !phone.IsE164(p) {
		return nil, domain.ErrInvalidPhone
	}

	existing, err := r.GetByPhone(ctx, tenant, p)
	if err == nil {
		if name != "" && existing.Name == "" {
			existing.Name = name
			if err := database.Conn(ctx, r.db).Model(&contactModel{}).Where("id = ?", existing.ID).
				Updates(map[string]any{"name": name, "updated_at": time.Now()}).Error; err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if !errors.Is(err, domain.ErrContactNotFound) {
		return nil, err
	}

	now := time.Now()
	m := contactModel{ID: uuid.New().String(), Tenant: tenant, Phone: p, Name: name,
		Metadata: datatypes.JSON("{}"), CreatedAt: now, UpdatedAt: now}
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if database.IsDuplicate(err) {
			// lost the race with a concurrent insert
			logrus.Debugf("[CONTACTS] duplicate %s for tenant %s, re-reading", p, tenant)
			return r.GetByPhone(ctx, tenant, p)
		}
		return nil, err
	}
	return fromContactModel(m), nil
}

func (r *ContactGormRepository) GetByID(ctx context.Context, tenant, id string) (*domain.Contact, error) {
	var m contactModel
	if err := database.Conn(ctx, r.db).Where("tenant = ? AND id = ?", tenant, id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrContactNotFound
		}
		return nil, err
	}
	return fromContactModel(m), nil
}

func (r *ContactGormRepository) GetByPhone(ctx context.Context, tenant, p string) (*domain.Contact, error) {
	var m contactModel
	if err := database.Conn(ctx, r.db).Where("tenant = ? AND phone = ?", tenant, phone.Normalize(p)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrContactNotFound
		}
		return nil, err
	}
	return fromContactModel(m), nil
}

func (r *ContactGormRepository) ListByIDs(ctx context.Context, tenant string, ids []string) ([]*domain.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []contactModel
	if err := database.Conn(ctx, r.db).Where("tenant = ? AND id IN ?", tenant, ids).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Contact, 0, len(models))
	for _, m := range models {
		out = append(out, fromContactModel(m))
	}
	return out, nil
}

func (r *ContactGormRepository) UpdateMetadata(ctx context.Context, tenant, id string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	res := database.Conn(ctx, r.db).Model(&contactModel{}).Where("tenant = ? AND id = ?", tenant, id).
		Updates(map[string]any{"metadata": datatypes.JSON(raw), "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrContactNotFound
	}
	return nil
}

func fromContactModel(m contactModel) *domain.Contact {
	c := &domain.Contact{
		ID:        m.ID,
		Tenant:    m.Tenant,
		Phone:     m.Phone,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &c.Metadata)
	}
	return c
}
