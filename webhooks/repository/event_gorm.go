package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/webhooks/domain"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type eventModel struct {
	ID           string `gorm:"primaryKey"`
	EventID      string `gorm:"uniqueIndex:idx_webhook_events_event_id;not null"`
	DedupeKey    string `gorm:"uniqueIndex:idx_webhook_events_dedupe;not null"`
	Tenant       string `gorm:"index:idx_webhook_events_tenant_status"`
	InstanceName string `gorm:"index"`
	Event        string `gorm:"index;not null"`
	Payload      datatypes.JSON
	Status       string `gorm:"index:idx_webhook_events_tenant_status;default:'pending'"`
	RetryCount   int    `gorm:"default:0"`
	Error        string `gorm:"type:text"`
	ProcessedAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (eventModel) TableName() string {
	return "webhook_events"
}

type EventGormRepository struct {
	db *gorm.DB
}

var _ domain.EventRepository = (*EventGormRepository)(nil)

func NewEventGormRepository(db *gorm.DB) *EventGormRepository {
	return &EventGormRepository{db: db}
}

func (r *EventGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&eventModel{})
}

func (r *EventGormRepository) Create(ctx context.Context, e *domain.Event) (*domain.Event, bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = domain.StatusPending
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	m := toEventModel(e)
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if !database.IsDuplicate(err) {
			return nil, false, err
		}
		stored, gerr := r.first(ctx, "dedupe_key = ?", e.DedupeKey)
		if gerr != nil {
			return nil, false, gerr
		}
		return stored, false, nil
	}
	return e, true, nil
}

func (r *EventGormRepository) first(ctx context.Context, query string, args ...any) (*domain.Event, error) {
	var m eventModel
	if err := database.Conn(ctx, r.db).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m), nil
}

func (r *EventGormRepository) GetByEventID(ctx context.Context, eventID string) (*domain.Event, error) {
	return r.first(ctx, "event_id = ?", eventID)
}

func (r *EventGormRepository) List(ctx context.Context, tenant string, f domain.Filter) ([]*domain.Event, error) {
	q := database.Conn(ctx, r.db).Where("tenant = ?", tenant)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Event != "" {
		q = q.Where("event = ?", f.Event)
	}
	if f.InstanceName != "" {
		q = q.Where("instance_name = ?", f.InstanceName)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.find(q.Order("created_at DESC").Limit(limit).Offset(f.Offset))
}

func (r *EventGormRepository) Reprocessable(ctx context.Context, tenant string, olderThan time.Time, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := database.Conn(ctx, r.db).
		Where("tenant = ? AND (status = ? OR (status = ? AND created_at < ?))",
			tenant, string(domain.StatusError), string(domain.StatusPending), olderThan).
		Order("created_at ASC").Limit(limit)
	return r.find(q)
}

func (r *EventGormRepository) find(q *gorm.DB) ([]*domain.Event, error) {
	var models []eventModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Event, 0, len(models))
	for _, m := range models {
		out = append(out, fromEventModel(m))
	}
	return out, nil
}

func (r *EventGormRepository) update(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now()
	res := database.Conn(ctx, r.db).Model(&eventModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventGormRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":       string(domain.StatusProcessed),
		"processed_at": at,
		"error":        "",
	})
}

func (r *EventGormRepository) MarkError(ctx context.Context, id, reason string) error {
	return r.update(ctx, id, map[string]any{
		"status":      string(domain.StatusError),
		"error":       reason,
		"retry_count": gorm.Expr("retry_count + 1"),
	})
}

// SetPending puts an event back in line, filling a tenant resolved late.
func (r *EventGormRepository) SetPending(ctx context.Context, id, tenant string) error {
	updates := map[string]any{"status": string(domain.StatusPending)}
	if tenant != "" {
		updates["tenant"] = tenant
	}
	return r.update(ctx, id, updates)
}

func toEventModel(e *domain.Event) eventModel {
	payload := datatypes.JSON("{}")
	if len(e.Payload) > 0 {
		if b, err := json.Marshal(e.Payload); err == nil {
			payload = b
		}
	}
	return eventModel{
		ID:           e.ID,
		EventID:      e.EventID,
		DedupeKey:    e.DedupeKey,
		Tenant:       e.Tenant,
		InstanceName: e.InstanceName,
		Event:        e.Event,
		Payload:      payload,
		Status:       string(e.Status),
		RetryCount:   e.RetryCount,
		Error:        e.Error,
		ProcessedAt:  e.ProcessedAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func fromEventModel(m eventModel) *domain.Event {
	var payload map[string]any
	if len(m.Payload) > 0 {
		_ = json.Unmarshal(m.Payload, &payload)
	}
	return &domain.Event{
		ID:           m.ID,
		EventID:      m.EventID,
		DedupeKey:    m.DedupeKey,
		Tenant:       m.Tenant,
		InstanceName: m.InstanceName,
		Event:        m.Event,
		Payload:      payload,
		Status:       domain.Status(m.Status),
		RetryCount:   m.RetryCount,
		Error:        m.Error,
		ProcessedAt:  m.ProcessedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
