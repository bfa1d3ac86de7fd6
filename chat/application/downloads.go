package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	"github.com/AzielCF/az-engage/infrastructure/objectstore"
	"github.com/sirupsen/logrus"
)

const thumbnailWidth = 320

// HandleDownload copies inbound media from the gateway into the object store.
func (s *ChatService) HandleDownload(ctx context.Context, job jobs.DownloadAttachment, d jobs.Delivery) error {
	att, err := s.attachments.Get(ctx, job.Tenant, job.AttachmentID)
	if errors.Is(err, domain.ErrAttachmentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if att.DownloadStatus == domain.DownloadReady {
		return nil
	}

	data, contentType, err := s.gw.DownloadMedia(ctx, att.SourceURL)
	if err != nil {
		if gateway.IsTransient(err) && !d.LastAttempt() {
			return err
		}
		logrus.WithError(err).Warnf("[MEDIA] download of attachment %s failed", att.ID)
		return s.attachments.MarkFailed(ctx, att.ID)
	}
	if att.MimeType == "" {
		att.MimeType = contentType
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if existing, err := s.attachments.GetByHash(ctx, att.Tenant, hash); err == nil && existing.ObjectKey != "" {
		return s.attachments.MarkReady(ctx, att.ID, existing.ObjectKey, existing.Size, "", existing.ThumbnailKey)
	}

	key := objectstore.AttachmentKey(att.Tenant, att.Filename, att.MimeType)
	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), att.MimeType); err != nil {
		return err
	}

	thumbKey := ""
	if strings.HasPrefix(att.MimeType, "image/") {
		if thumb, err := objectstore.Thumbnail(data, thumbnailWidth); err != nil {
			logrus.WithError(err).Debugf("[MEDIA] no thumbnail for %s", att.ID)
		} else {
			thumbKey = objectstore.ThumbnailKey(key)
			if _, err := s.store.Put(ctx, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
				logrus.WithError(err).Warnf("[MEDIA] could not store thumbnail of %s", att.ID)
				thumbKey = ""
			}
		}
	}

	err = s.attachments.MarkReady(ctx, att.ID, key, int64(len(data)), hash, thumbKey)
	if errors.Is(err, domain.ErrDuplicateHash) {
		// a concurrent download stored the same bytes first
		err = s.attachments.MarkReady(ctx, att.ID, key, int64(len(data)), "", thumbKey)
	}
	return err
}
