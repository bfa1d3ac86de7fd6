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

type reactionModel struct {
	ID        string    `gorm:"primaryKey"`
	MessageID string    `gorm:"uniqueIndex:idx_reactions_message_reactor,priority:1;not null"`
	Reactor   string    `gorm:"uniqueIndex:idx_reactions_message_reactor,priority:2;not null"`
	Emoji     string    `gorm:"size:64;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (reactionModel) TableName() string {
	return "message_reactions"
}

type ReactionGormRepository struct {
	db *gorm.DB
}

var _ domain.ReactionRepository = (*ReactionGormRepository)(nil)

func NewReactionGormRepository(db *gorm.DB) *ReactionGormRepository {
	return &ReactionGormRepository{db: db}
}

func (r *ReactionGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&reactionModel{})
}

func (r *ReactionGormRepository) Find(ctx context.Context, messageID, reactor string) (*domain.Reaction, error) {
	var m reactionModel
	err := database.Conn(ctx, r.db).Where("message_id = ? AND reactor = ?", messageID, reactor).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromReactionModel(m), nil
}

func (r *ReactionGormRepository) Create(ctx context.Context, re *domain.Reaction) error {
	if re.ID == "" {
		re.ID = uuid.New().String()
	}
	if re.CreatedAt.IsZero() {
		re.CreatedAt = time.Now()
	}
	m := reactionModel{ID: re.ID, MessageID: re.MessageID, Reactor: re.Reactor, Emoji: re.Emoji, CreatedAt: re.CreatedAt}
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if database.IsDuplicate(err) {
			return domain.ErrDuplicateReaction
		}
		return err
	}
	return nil
}

func (r *ReactionGormRepository) UpdateEmoji(ctx context.Context, id, emoji string) error {
	return database.Conn(ctx, r.db).Model(&reactionModel{}).Where("id = ?", id).
		Updates(map[string]any{"emoji": emoji, "created_at": time.Now()}).Error
}

func (r *ReactionGormRepository) Delete(ctx context.Context, id string) error {
	return database.Conn(ctx, r.db).Delete(&reactionModel{}, "id = ?", id).Error
}

func (r *ReactionGormRepository) List(ctx context.Context, messageID string) ([]*domain.Reaction, error) {
	var models []reactionModel
	if err := database.Conn(ctx, r.db).Where("message_id = ?", messageID).
		Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Reaction, 0, len(models))
	for _, m := range models {
		out = append(out, fromReactionModel(m))
	}
	return out, nil
}

func fromReactionModel(m reactionModel) *domain.Reaction {
	return &domain.Reaction{ID: m.ID, MessageID: m.MessageID, Reactor: m.Reactor, Emoji: m.Emoji, CreatedAt: m.CreatedAt}
}
