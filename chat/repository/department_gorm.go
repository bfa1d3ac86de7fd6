package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type departmentModel struct {
	ID              string `gorm:"primaryKey"`
	Tenant          string `gorm:"index;not null"`
	Name            string `gorm:"not null"`
	TransferMessage string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (departmentModel) TableName() string {
	return "departments"
}

type DepartmentGormRepository struct {
	db *gorm.DB
}

var _ domain.DepartmentRepository = (*DepartmentGormRepository)(nil)

func NewDepartmentGormRepository(db *gorm.DB) *DepartmentGormRepository {
	return &DepartmentGormRepository{db: db}
}

func (r *DepartmentGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&departmentModel{})
}

func (r *DepartmentGormRepository) Create(ctx context.Context, d *domain.Department) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	m := departmentModel(*d)
	return database.Conn(ctx, r.db).Create(&m).Error
}

func (r *DepartmentGormRepository) Get(ctx context.Context, tenant, id string) (*domain.Department, error) {
	var m departmentModel
	if err := database.Conn(ctx, r.db).Where("tenant = ? AND id = ?", tenant, id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDepartmentNotFound
		}
		return nil, err
	}
	d := domain.Department(m)
	return &d, nil
}

func (r *DepartmentGormRepository) List(ctx context.Context, tenant string) ([]*domain.Department, error) {
	var models []departmentModel
	if err := database.Conn(ctx, r.db).Where("tenant = ?", tenant).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Department, 0, len(models))
	for _, m := range models {
		d := domain.Department(m)
		out = append(out, &d)
	}
	return out, nil
}

func (r *DepartmentGormRepository) Update(ctx context.Context, d *domain.Department) error {
	d.UpdatedAt = time.Now()
	res := database.Conn(ctx, r.db).Model(&departmentModel{}).Where("tenant = ? AND id = ?", d.Tenant, d.ID).
		Updates(map[string]any{"name": d.Name, "transfer_message": d.TransferMessage, "updated_at": d.UpdatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrDepartmentNotFound
	}
	return nil
}

func (r *DepartmentGormRepository) Delete(ctx context.Context, tenant, id string) error {
	res := database.Conn(ctx, r.db).Delete(&departmentModel{}, "tenant = ? AND id = ?", tenant, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrDepartmentNotFound
	}
	return nil
}
