package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/billing/domain"
	"github.com/AzielCF/az-engage/core/database"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type planModel struct {
	Tenant    string `gorm:"primaryKey"`
	Steps     datatypes.JSON
	UpdatedAt time.Time `gorm:"not null"`
}

func (planModel) TableName() string {
	return "billing_plans"
}

type PlanGormRepository struct {
	db *gorm.DB
}

var _ domain.PlanRepository = (*PlanGormRepository)(nil)

func NewPlanGormRepository(db *gorm.DB) *PlanGormRepository {
	return &PlanGormRepository{db: db}
}

func (r *PlanGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&planModel{})
}

func (r *PlanGormRepository) Get(ctx context.Context, tenant string) (*domain.Plan, error) {
	var m planModel
	if err := database.Conn(ctx, r.db).Where("tenant = ?", tenant).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	p := &domain.Plan{Tenant: m.Tenant, UpdatedAt: m.UpdatedAt}
	if len(m.Steps) > 0 {
		if err := json.Unmarshal(m.Steps, &p.Steps); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *PlanGormRepository) Save(ctx context.Context, p *domain.Plan) error {
	raw, err := json.Marshal(p.Steps)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	m := planModel{Tenant: p.Tenant, Steps: datatypes.JSON(raw), UpdatedAt: p.UpdatedAt}
	return database.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant"}},
		DoUpdates: clause.AssignmentColumns([]string{"steps", "updated_at"}),
	}).Create(&m).Error
}
