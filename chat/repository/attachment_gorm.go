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

type attachmentModel struct {
	ID             string `gorm:"primaryKey"`
	Tenant         string `gorm:"uniqueIndex:idx_attachments_hash,priority:1;not null"`
	MessageID      string `gorm:"index"`
	Filename       string
	MimeType       string
	ObjectKey      string `gorm:"column:s3_key"`
	Size           int64
	ExpiresAt      *time.Time
	ContentHash    *string `gorm:"uniqueIndex:idx_attachments_hash,priority:2"`
	PublicURL      string
	StorageType    string `gorm:"default:'s3'"`
	DownloadStatus string `gorm:"default:'ready'"`
	SourceURL      string `gorm:"type:text"`
	ThumbnailKey   string
	CreatedAt      time.Time `gorm:"not null"`
}

func (attachmentModel) TableName() string {
	return "message_attachments"
}

type AttachmentGormRepository struct {
	db *gorm.DB
}

var _ domain.AttachmentRepository = (*AttachmentGormRepository)(nil)

func NewAttachmentGormRepository(db *gorm.DB) *AttachmentGormRepository {
	return &AttachmentGormRepository{db: db}
}

func (r *AttachmentGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&attachmentModel{})
}

func (r *AttachmentGormRepository) Create(ctx context.Context, a *domain.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m := attachmentModel{
		ID:             a.ID,
		Tenant:         a.Tenant,
		MessageID:      a.MessageID,
		Filename:       a.Filename,
		MimeType:       a.MimeType,
		ObjectKey:      a.ObjectKey,
		Size:           a.Size,
		ExpiresAt:      a.ExpiresAt,
		ContentHash:    a.ContentHash,
		PublicURL:      a.PublicURL,
		StorageType:    a.StorageType,
		DownloadStatus: string(a.DownloadStatus),
		SourceURL:      a.SourceURL,
		ThumbnailKey:   a.ThumbnailKey,
		CreatedAt:      a.CreatedAt,
	}
	if err := database.Conn(ctx, r.db).Create(&m).Error; err != nil {
		if database.IsDuplicate(err) {
			return domain.ErrDuplicateHash
		}
		return err
	}
	return nil
}

func (r *AttachmentGormRepository) first(ctx context.Context, query string, args ...any) (*domain.Attachment, error) {
	var m attachmentModel
	if err := database.Conn(ctx, r.db).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAttachmentNotFound
		}
		return nil, err
	}
	return fromAttachmentModel(m), nil
}

func (r *AttachmentGormRepository) Get(ctx context.Context, tenant, id string) (*domain.Attachment, error) {
	return r.first(ctx, "tenant = ? AND id = ?", tenant, id)
}

func (r *AttachmentGormRepository) GetByHash(ctx context.Context, tenant, hash string) (*domain.Attachment, error) {
	return r.first(ctx, "tenant = ? AND content_hash = ?", tenant, hash)
}

func (r *AttachmentGormRepository) ListByMessages(ctx context.Context, messageIDs []string) ([]*domain.Attachment, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var models []attachmentModel
	if err := database.Conn(ctx, r.db).Where("message_id IN ?", messageIDs).
		Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Attachment, 0, len(models))
	for _, m := range models {
		out = append(out, fromAttachmentModel(m))
	}
	return out, nil
}

func (r *AttachmentGormRepository) MarkReady(ctx context.Context, id, key string, size int64, hash, thumbnailKey string) error {
	updates := map[string]any{
		"s3_key":          key,
		"size":            size,
		"download_status": string(domain.DownloadReady),
		"thumbnail_key":   thumbnailKey,
	}
	if hash != "" {
		updates["content_hash"] = hash
	}
	res := database.Conn(ctx, r.db).Model(&attachmentModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if database.IsDuplicate(res.Error) {
			return domain.ErrDuplicateHash
		}
		return res.Error
	}
	return nil
}

func (r *AttachmentGormRepository) MarkFailed(ctx context.Context, id string) error {
	return database.Conn(ctx, r.db).Model(&attachmentModel{}).Where("id = ?", id).
		Update("download_status", string(domain.DownloadFailed)).Error
}

func fromAttachmentModel(m attachmentModel) *domain.Attachment {
	return &domain.Attachment{
		ID:             m.ID,
		Tenant:         m.Tenant,
		MessageID:      m.MessageID,
		Filename:       m.Filename,
		MimeType:       m.MimeType,
		ObjectKey:      m.ObjectKey,
		Size:           m.Size,
		ExpiresAt:      m.ExpiresAt,
		ContentHash:    m.ContentHash,
		PublicURL:      m.PublicURL,
		StorageType:    m.StorageType,
		DownloadStatus: domain.DownloadStatus(m.DownloadStatus),
		SourceURL:      m.SourceURL,
		ThumbnailKey:   m.ThumbnailKey,
		CreatedAt:      m.CreatedAt,
	}
}
