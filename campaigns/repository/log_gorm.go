package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type logModel struct {
	ID         string `gorm:"primaryKey"`
	Tenant     string `gorm:"index;not null"`
	CampaignID string `gorm:"index:idx_campaign_logs_campaign;not null"`
	Type       string `gorm:"index;not null"`
	Severity   string `gorm:"default:'info'"`
	Message    string `gorm:"type:text"`
	Details    datatypes.JSON
	InstanceID *string
	ContactID  *string
	Request    datatypes.JSON
	Response   datatypes.JSON
	HTTPStatus int
	DurationMs int64
	CreatedAt  time.Time `gorm:"index:idx_campaign_logs_campaign;not null"`
}

func (logModel) TableName() string {
	return "campaign_logs"
}

type LogGormRepository struct {
	db *gorm.DB
}

var _ domain.LogRepository = (*LogGormRepository)(nil)

func NewLogGormRepository(db *gorm.DB) *LogGormRepository {
	return &LogGormRepository{db: db}
}

func (r *LogGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&logModel{})
}

func (r *LogGormRepository) Append(ctx context.Context, l *domain.Log) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	if l.Severity == "" {
		l.Severity = domain.SeverityInfo
	}
	m := logModel{
		ID:         l.ID,
		Tenant:     l.Tenant,
		CampaignID: l.CampaignID,
		Type:       string(l.Type),
		Severity:   string(l.Severity),
		Message:    l.Message,
		Details:    toJSON(l.Details),
		InstanceID: l.InstanceID,
		ContactID:  l.ContactID,
		Request:    toJSON(l.Request),
		Response:   toJSON(l.Response),
		HTTPStatus: l.HTTPStatus,
		DurationMs: l.DurationMs,
		CreatedAt:  l.CreatedAt,
	}
	return database.Conn(ctx, r.db).Create(&m).Error
}

func (r *LogGormRepository) List(ctx context.Context, campaignID string, logType domain.LogType, limit, offset int) ([]*domain.Log, error) {
	q := database.Conn(ctx, r.db).Where("campaign_id = ?", campaignID)
	if logType != "" {
		q = q.Where("type = ?", string(logType))
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []logModel
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Log, 0, len(models))
	for _, m := range models {
		out = append(out, &domain.Log{
			ID:         m.ID,
			Tenant:     m.Tenant,
			CampaignID: m.CampaignID,
			Type:       domain.LogType(m.Type),
			Severity:   domain.Severity(m.Severity),
			Message:    m.Message,
			Details:    fromJSON(m.Details),
			InstanceID: m.InstanceID,
			ContactID:  m.ContactID,
			Request:    fromJSON(m.Request),
			Response:   fromJSON(m.Response),
			HTTPStatus: m.HTTPStatus,
			DurationMs: m.DurationMs,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}

func toJSON(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
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
