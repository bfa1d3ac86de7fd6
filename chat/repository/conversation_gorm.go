package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type conversationModel struct {
	ID              string `gorm:"primaryKey"`
	Tenant          string `gorm:"uniqueIndex:idx_conversations_remote,priority:1;not null"`
	Kind            string `gorm:"default:'individual'"`
	ContactPhone    string `gorm:"uniqueIndex:idx_conversations_remote,priority:2;not null"`
	Name            string
	ProfileImageURL string
	DepartmentID    *string `gorm:"index"`
	AssignedUserID  *string `gorm:"index"`
	Status          string  `gorm:"index;default:'pending'"`
	LastMessageAt   *time.Time
	Metadata        datatypes.JSON
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (conversationModel) TableName() string {
	return "conversations"
}

type ConversationGormRepository struct {
	db *gorm.DB
}

var _ domain.ConversationRepository = (*ConversationGormRepository)(nil)

func NewConversationGormRepository(db *gorm.DB) *ConversationGormRepository {
	return &ConversationGormRepository{db: db}
}

func (r *ConversationGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&conversationModel{})
}

func (r *ConversationGormRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	m := toConversationModel(conv)
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if database.IsDuplicate(err) {
			return domain.ErrDuplicateConversation
		}
		return err
	}
	return nil
}

func (r *ConversationGormRepository) first(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	var m conversationModel
	if err := database.Conn(ctx, r.db).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return fromConversationModel(m), nil
}

func (r *ConversationGormRepository) Get(ctx context.Context, tenant, id string) (*domain.Conversation, error) {
	return r.first(ctx, "tenant = ? AND id = ?", tenant, id)
}

func (r *ConversationGormRepository) GetByRemote(ctx context.Context, tenant, remote string) (*domain.Conversation, error) {
	return r.first(ctx, "tenant = ? AND contact_phone = ?", tenant, remote)
}

func (r *ConversationGormRepository) List(ctx context.Context, tenant string, f domain.ConversationFilter) ([]*domain.Conversation, error) {
	q := database.Conn(ctx, r.db).Model(&conversationModel{}).Where("tenant = ?", tenant)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Inbox {
		q = q.Where("department_id IS NULL")
	} else if f.DepartmentID != "" {
		q = q.Where("department_id = ?", f.DepartmentID)
	}
	if f.AssignedTo != "" {
		q = q.Where("assigned_user_id = ?", f.AssignedTo)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("name LIKE ? OR contact_phone LIKE ?", like, like)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []conversationModel
	if err := q.Order("last_message_at DESC").Order("created_at DESC").
		Limit(limit).Offset(f.Offset).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Conversation, 0, len(models))
	for _, m := range models {
		out = append(out, fromConversationModel(m))
	}
	return out, nil
}

func (r *ConversationGormRepository) Save(ctx context.Context, conv *domain.Conversation) error {
	conv.UpdatedAt = time.Now()
	m := toConversationModel(conv)
	res := database.Conn(ctx, r.db).Model(&conversationModel{}).
		Where("tenant = ? AND id = ?", conv.Tenant, conv.ID).
		Select("kind", "contact_phone", "name", "profile_image_url", "department_id",
			"assigned_user_id", "status", "metadata", "updated_at").
		Updates(&m)
	if res.Error != nil {
		if database.IsDuplicate(res.Error) {
			return domain.ErrDuplicateConversation
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationGormRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return database.Conn(ctx, r.db).Model(&conversationModel{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Updates(map[string]any{"last_message_at": at, "updated_at": time.Now()}).Error
}

func (r *ConversationGormRepository) Route(ctx context.Context, tenant, id string, departmentID, assignedUserID *string) error {
	res := database.Conn(ctx, r.db).Model(&conversationModel{}).
		Where("tenant = ? AND id = ?", tenant, id).
		Updates(map[string]any{
			"department_id":    departmentID,
			"assigned_user_id": assignedUserID,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func toConversationModel(c *domain.Conversation) conversationModel {
	return conversationModel{
		ID:              c.ID,
		Tenant:          c.Tenant,
		Kind:            string(c.Kind),
		ContactPhone:    c.ContactPhone,
		Name:            c.Name,
		ProfileImageURL: c.ProfileImageURL,
		DepartmentID:    c.DepartmentID,
		AssignedUserID:  c.AssignedUserID,
		Status:          string(c.Status),
		LastMessageAt:   c.LastMessageAt,
		Metadata:        toJSON(c.Metadata),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromConversationModel(m conversationModel) *domain.Conversation {
	return &domain.Conversation{
		ID:              m.ID,
		Tenant:          m.Tenant,
		Kind:            domain.ConversationKind(m.Kind),
		ContactPhone:    m.ContactPhone,
		Name:            m.Name,
		ProfileImageURL: m.ProfileImageURL,
		DepartmentID:    m.DepartmentID,
		AssignedUserID:  m.AssignedUserID,
		Status:          domain.ConversationStatus(m.Status),
		LastMessageAt:   m.LastMessageAt,
		Metadata:        fromJSON(m.Metadata),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
