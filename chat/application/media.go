package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/infrastructure/objectstore"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	attachmentLifetime  = 365 * 24 * time.Hour
	defaultUploadTTL    = 5 * time.Minute
	defaultDownloadTTL  = 15 * time.Minute
	defaultMaxSizeBytes = 50 << 20
)

type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

type UploadTicket struct {
	UploadURL    string `json:"upload_url"`
	AttachmentID string `json:"attachment_id"`
	S3Key        string `json:"s3_key"`
	ExpiresIn    int    `json:"expires_in"`
}

type ConfirmUploadInput struct {
	AttachmentID string `json:"attachment_id"`
	S3Key        string `json:"s3_key"`
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	FileSize     int64  `json:"file_size"`
	Caption      string `json:"caption"`
	MediaHash    string `json:"media_hash"`
}

func (s *ChatService) maxUploadBytes() int64 {
	if s.cfg.Storage.MaxSizeMB > 0 {
		return s.cfg.Storage.MaxSizeMB << 20
	}
	return defaultMaxSizeBytes
}

func (s *ChatService) uploadTTL() time.Duration {
	if ttl := s.cfg.Storage.UploadURLExpires; ttl > 0 && ttl <= defaultUploadTTL {
		return ttl
	}
	return defaultUploadTTL
}

func (s *ChatService) downloadTTL() time.Duration {
	if ttl := s.cfg.Storage.DownloadURLExpires; ttl > 0 && ttl <= defaultDownloadTTL {
		return ttl
	}
	return defaultDownloadTTL
}

// MimeAllowed matches contentType against entries such as "image/*" or "application/pdf".
func MimeAllowed(contentType string, allowed []string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ct == "" {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == ct || a == "*/*" {
			return true
		}
		if strings.HasSuffix(a, "/*") && strings.HasPrefix(ct, strings.TrimSuffix(a, "*")) {
			return true
		}
	}
	return false
}

func (s *ChatService) checkUpload(size int64, contentType string) error {
	if limit := s.maxUploadBytes(); size > limit {
		return fmt.Errorf("%w: %s is over %s", domain.ErrFileTooLarge,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
	}
	if !MimeAllowed(contentType, s.cfg.Storage.AllowedMIME) {
		return fmt.Errorf("%w: %s", domain.ErrMimeNotAllowed, contentType)
	}
	return nil
}

// RequestUpload hands out a presigned PUT under the tenant prefix.
func (s *ChatService) RequestUpload(ctx context.Context, tenant string, req UploadRequest) (*UploadTicket, error) {
	if err := s.checkUpload(req.FileSize, req.ContentType); err != nil {
		return nil, err
	}
	key := objectstore.AttachmentKey(tenant, req.Filename, req.ContentType)
	ttl := s.uploadTTL()
	url, err := s.store.PresignPut(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return &UploadTicket{
		UploadURL:    url,
		AttachmentID: uuid.NewString(),
		S3Key:        key,
		ExpiresIn:    int(ttl / time.Second),
	}, nil
}

// ConfirmUpload turns an uploaded object into an outgoing media message and queues it.
func (s *ChatService) ConfirmUpload(ctx context.Context, tenant, userID, conversationID string, in ConfirmUploadInput) (*domain.Message, error) {
	if !objectstore.BelongsTo(tenant, in.S3Key) {
		return nil, domain.ErrForeignKey
	}
	if err := s.checkUpload(in.FileSize, in.ContentType); err != nil {
		return nil, err
	}
	conv, err := s.conversations.Get(ctx, tenant, conversationID)
	if err != nil {
		return nil, err
	}
	info, err := s.store.Stat(ctx, in.S3Key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, domain.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, err
	}

	key, contentType, size := in.S3Key, in.ContentType, info.Size
	if objectstore.NeedsTranscode(contentType, key) {
		if out, err := s.transcode(ctx, key); err != nil {
			logrus.WithError(err).Warnf("[MEDIA] keeping original audio %s", key)
		} else {
			key, contentType, size = out.Key, out.ContentType, out.Size
		}
	}

	hash := strings.TrimSpace(in.MediaHash)
	if hash == "" {
		hash = strings.Trim(info.ETag, `"`)
	}
	reused := false
	if hash != "" {
		if existing, err := s.attachments.GetByHash(ctx, tenant, hash); err == nil && existing.ObjectKey != "" && existing.ObjectKey != key {
			if err := s.store.Remove(ctx, key); err != nil {
				logrus.WithError(err).Warnf("[MEDIA] could not drop duplicate upload %s", key)
			}
			key, size, reused = existing.ObjectKey, existing.Size, true
		}
	}

	evolutionURL, err := s.store.PresignGet(ctx, key, s.downloadTTL())
	if err != nil {
		return nil, err
	}

	msg, conv, err := s.CreateOutgoing(ctx, OutgoingInput{
		Tenant:         tenant,
		ConversationID: conv.ID,
		Content:        in.Caption,
		SenderUserID:   strPtr(userID),
		Metadata:       map[string]any{domain.MetaAttachmentURLs: []string{evolutionURL}},
	})
	if err != nil {
		return nil, err
	}

	attID := in.AttachmentID
	if _, err := uuid.Parse(attID); err != nil {
		attID = uuid.NewString()
	}
	expires := s.now().Add(attachmentLifetime)
	att := &domain.Attachment{
		ID:             attID,
		Tenant:         tenant,
		MessageID:      msg.ID,
		Filename:       in.Filename,
		MimeType:       contentType,
		ObjectKey:      key,
		Size:           size,
		ExpiresAt:      &expires,
		PublicURL:      s.AttachmentPublicURL(attID),
		StorageType:    domain.StorageS3,
		DownloadStatus: domain.DownloadReady,
	}
	if !reused && hash != "" {
		att.ContentHash = &hash
	}
	err = s.attachments.Create(ctx, att)
	if errors.Is(err, domain.ErrDuplicateHash) {
		att.ContentHash = nil
		err = s.attachments.Create(ctx, att)
	}
	if err != nil {
		return nil, err
	}
	msg.Attachments = []*domain.Attachment{att}

	if err := s.Enqueue(ctx, msg); err != nil {
		return nil, err
	}
	s.bc.Broadcast(ctx, broadcast.ConversationRoom(tenant, conv.ID), broadcast.EventMessageReceived, msg)
	s.announceConversation(ctx, conv, nil)
	return msg, nil
}

func (s *ChatService) transcode(ctx context.Context, key string) (objectstore.ObjectInfo, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return objectstore.ObjectInfo{}, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return objectstore.ObjectInfo{}, err
	}
	mp3, err := objectstore.TranscodeToMP3(ctx, data)
	if err != nil {
		return objectstore.ObjectInfo{}, err
	}
	target := objectstore.SiblingKey(key, ".mp3")
	info, err := s.store.Put(ctx, target, bytes.NewReader(mp3), int64(len(mp3)), "audio/mpeg")
	if err != nil {
		return objectstore.ObjectInfo{}, err
	}
	if err := s.store.Remove(ctx, key); err != nil {
		logrus.WithError(err).Warnf("[MEDIA] could not remove transcoded source %s", key)
	}
	info.ContentType = "audio/mpeg"
	return info, nil
}

// AttachmentPublicURL is the stable link that redirects to a fresh presigned GET.
func (s *ChatService) AttachmentPublicURL(id string) string {
	return strings.TrimSuffix(s.cfg.App.BaseUrl, "/") + "/api/chat/attachments/" + id + "/file"
}

// AttachmentURL presigns a GET for a stored attachment of the tenant.
func (s *ChatService) AttachmentURL(ctx context.Context, tenant, id string) (string, error) {
	att, err := s.attachments.Get(ctx, tenant, id)
	if err != nil {
		return "", err
	}
	if att.ObjectKey == "" {
		if att.SourceURL != "" {
			return att.SourceURL, nil
		}
		return "", domain.ErrAttachmentNotFound
	}
	return s.store.PresignGet(ctx, att.ObjectKey, s.downloadTTL())
}
