package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-engage/billing/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type emissionModel struct {
	ID               string `gorm:"primaryKey"`
	Tenant           string `gorm:"not null"`
	CycleID          string `gorm:"index;not null"`
	OffsetDays       int
	Template         string    `gorm:"type:text"`
	SendAt           time.Time `gorm:"index:idx_billing_emissions_due;not null"`
	Status           string    `gorm:"index:idx_billing_emissions_due;default:'pending'"`
	NotificationSent bool      `gorm:"default:false"`
	MessageID        *string
	Error            string `gorm:"type:text"`
	ClaimedAt        *time.Time
	SentAt           *time.Time
	CreatedAt        time.Time `gorm:"not null"`
}

func (emissionModel) TableName() string {
	return "billing_emissions"
}

type EmissionGormRepository struct {
	db *gorm.DB
}

var _ domain.EmissionRepository = (*EmissionGormRepository)(nil)

func NewEmissionGormRepository(db *gorm.DB) *EmissionGormRepository {
	return &EmissionGormRepository{db: db}
}

func (r *EmissionGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&emissionModel{})
}

func (r *EmissionGormRepository) ReplacePending(ctx context.Context, cycleID string, emissions []*domain.Emission) error {
	return database.Transaction(ctx, r.db, func(ctx context.Context) error {
		err := database.Conn(ctx, r.db).
			Where("cycle_id = ? AND status = ?", cycleID, string(domain.EmissionPending)).
			Delete(&emissionModel{}).Error
		if err != nil {
			return err
		}
		if len(emissions) == 0 {
			return nil
		}
		now := time.Now()
		models := make([]emissionModel, 0, len(emissions))
		for _, e := range emissions {
			if e.ID == "" {
				e.ID = uuid.New().String()
			}
			e.CycleID = cycleID
			e.CreatedAt = now
			if e.Status == "" {
				e.Status = domain.EmissionPending
			}
			models = append(models, toEmissionModel(e))
		}
		return database.Conn(ctx, r.db).Create(&models).Error
	})
}

func (r *EmissionGormRepository) ListByCycle(ctx context.Context, cycleID string) ([]*domain.Emission, error) {
	var models []emissionModel
	if err := database.Conn(ctx, r.db).Where("cycle_id = ?", cycleID).Order("send_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Emission, 0, len(models))
	for _, m := range models {
		out = append(out, fromEmissionModel(m))
	}
	return out, nil
}

// ClaimDue locks the due rows on postgres so parallel tickers skip each other's batch.
// Every row is still flipped with a conditional update, which is what guards sqlite.
func (r *EmissionGormRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.Emission, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()
	var claimed []*domain.Emission
	err := database.Transaction(ctx, r.db, func(ctx context.Context) error {
		q := database.Conn(ctx, r.db).
			Where("status = ? AND send_at <= ?", string(domain.EmissionPending), now).
			Order("send_at ASC, id ASC").Limit(limit)
		if database.IsPostgres(r.db) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var models []emissionModel
		if err := q.Find(&models).Error; err != nil {
			return err
		}
		for _, m := range models {
			res := database.Conn(ctx, r.db).Model(&emissionModel{}).
				Where("id = ? AND status = ?", m.ID, string(domain.EmissionPending)).
				Updates(map[string]any{"status": string(domain.EmissionSending), "claimed_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				continue
			}
			at := now
			m.Status = string(domain.EmissionSending)
			m.ClaimedAt = &at
			claimed = append(claimed, fromEmissionModel(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *EmissionGormRepository) MarkSent(ctx context.Context, id, messageID string, at time.Time) error {
	res := database.Conn(ctx, r.db).Model(&emissionModel{}).
		Where("id = ? AND status = ?", id, string(domain.EmissionSending)).
		Updates(map[string]any{
			"status":            string(domain.EmissionSent),
			"notification_sent": true,
			"message_id":        messageID,
			"sent_at":           at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEmissionNotFound
	}
	return nil
}

func (r *EmissionGormRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return database.Conn(ctx, r.db).Model(&emissionModel{}).
		Where("id = ? AND status = ?", id, string(domain.EmissionSending)).
		Updates(map[string]any{"status": string(domain.EmissionFailed), "error": reason}).Error
}

func (r *EmissionGormRepository) Release(ctx context.Context, id string) error {
	return database.Conn(ctx, r.db).Model(&emissionModel{}).
		Where("id = ? AND status = ?", id, string(domain.EmissionSending)).
		Updates(map[string]any{"status": string(domain.EmissionPending), "claimed_at": nil}).Error
}

func (r *EmissionGormRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&emissionModel{}).
		Where("status = ? AND claimed_at < ?", string(domain.EmissionSending), cutoff.UTC()).
		Updates(map[string]any{"status": string(domain.EmissionPending), "claimed_at": nil})
	return res.RowsAffected, res.Error
}

func (r *EmissionGormRepository) CancelPending(ctx context.Context, cycleID string) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&emissionModel{}).
		Where("cycle_id = ? AND status = ?", cycleID, string(domain.EmissionPending)).
		Update("status", string(domain.EmissionCancelled))
	return res.RowsAffected, res.Error
}

func (r *EmissionGormRepository) CountOpen(ctx context.Context, cycleID string) (int64, error) {
	var n int64
	err := database.Conn(ctx, r.db).Model(&emissionModel{}).
		Where("cycle_id = ? AND status IN ?", cycleID,
			[]string{string(domain.EmissionPending), string(domain.EmissionSending)}).
		Count(&n).Error
	return n, err
}

func toEmissionModel(e *domain.Emission) emissionModel {
	return emissionModel{
		ID:               e.ID,
		Tenant:           e.Tenant,
		CycleID:          e.CycleID,
		OffsetDays:       e.OffsetDays,
		Template:         e.Template,
		SendAt:           e.SendAt.UTC(),
		Status:           string(e.Status),
		NotificationSent: e.NotificationSent,
		MessageID:        e.MessageID,
		Error:            e.Error,
		ClaimedAt:        e.ClaimedAt,
		SentAt:           e.SentAt,
		CreatedAt:        e.CreatedAt,
	}
}

func fromEmissionModel(m emissionModel) *domain.Emission {
	return &domain.Emission{
		ID:               m.ID,
		Tenant:           m.Tenant,
		CycleID:          m.CycleID,
		OffsetDays:       m.OffsetDays,
		Template:         m.Template,
		SendAt:           m.SendAt,
		Status:           domain.EmissionStatus(m.Status),
		NotificationSent: m.NotificationSent,
		MessageID:        m.MessageID,
		Error:            m.Error,
		ClaimedAt:        m.ClaimedAt,
		SentAt:           m.SentAt,
		CreatedAt:        m.CreatedAt,
	}
}
