package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	contactsDomain "github.com/AzielCF/az-engage/contacts/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/jobs"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/phone"
	"github.com/sirupsen/logrus"
)

// InboundMessage is a normalized messages.upsert item.
type InboundMessage struct {
	Tenant        string
	InstanceName  string
	InstanceID    string
	RemoteJID     string
	Participant   string
	FromMe        bool
	GatewayID     string
	Kind          string
	Content       string
	Pushname      string
	ProfilePicURL string
	AttachmentURL string
	MimeType      string
	Filename      string
	Timestamp     time.Time
}

// MetaSource marks message rows created from our own device echoes.
const (
	MetaSource        = "source"
	SourceDeviceEcho  = "device_echo"
	MetaInstanceName  = "instance"
	MetaParticipantID = "participant"
)

// remoteOf maps a JID to the conversation key and kind.
func remoteOf(in InboundMessage) (string, domain.ConversationKind, error) {
	jid := in.RemoteJID
	switch {
	case phone.IsGroupJID(jid):
		return jid, domain.KindGroup, nil
	case phone.IsLID(jid):
		if in.Participant != "" {
			return jid, domain.KindGroup, nil
		}
		return jid, domain.KindIndividual, nil
	}
	p := phone.Normalize(jid)
	if p == "" {
		return "", "", pkgError.ValidationError("unrecognized remote jid " + jid)
	}
	return p, domain.KindIndividual, nil
}

// RecordInbound stores a message pushed by the gateway. Redelivered gateway ids are
// no-ops. Echoes of our own sends (fromMe) are stored as sent device echoes; the send
// worker folds an echo into its own row when both carry the same gateway id.
func (s *ChatService) RecordInbound(ctx context.Context, in InboundMessage) (*domain.Message, error) {
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}

	if in.GatewayID != "" {
		existing, err := s.messages.GetByGatewayID(ctx, in.Tenant, in.GatewayID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrMessageNotFound) {
			return nil, err
		}
	}

	remote, kind, err := remoteOf(in)
	if err != nil {
		return nil, err
	}

	conv, created, err := s.upsertConversation(ctx, in, remote, kind)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		domain.MetaRemoteJID: in.RemoteJID,
		MetaInstanceName:     in.InstanceName,
	}
	if in.Kind != "" {
		meta[domain.MetaKind] = in.Kind
	}
	if in.Pushname != "" && !in.FromMe {
		meta[domain.MetaPushname] = in.Pushname
	}
	if in.Participant != "" {
		meta[MetaParticipantID] = in.Participant
	}

	msg := &domain.Message{
		Tenant:         in.Tenant,
		ConversationID: conv.ID,
		Direction:      domain.Incoming,
		Content:        in.Content,
		GatewayID:      strPtr(in.GatewayID),
		Status:         domain.StatusDelivered,
		Metadata:       meta,
		InstanceID:     strPtr(in.InstanceID),
		CreatedAt:      in.Timestamp,
	}
	if in.FromMe {
		msg.Direction = domain.Outgoing
		msg.Status = domain.StatusSent
		msg.SentAt = &in.Timestamp
		msg.Origin = domain.OriginSystem
		meta[MetaSource] = SourceDeviceEcho
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			return s.messages.GetByGatewayID(ctx, in.Tenant, in.GatewayID)
		}
		return nil, err
	}

	if kind == domain.KindIndividual && !phone.IsLID(remote) && !in.FromMe {
		if _, err := s.contacts.Upsert(ctx, in.Tenant, remote, in.Pushname); err != nil &&
			!errors.Is(err, contactsDomain.ErrInvalidPhone) {
			logrus.WithError(err).Warnf("[CHAT] contact upsert failed for %s", remote)
		}
	}

	if in.AttachmentURL != "" {
		if err := s.queueDownload(ctx, msg, in); err != nil {
			logrus.WithError(err).Errorf("[CHAT] could not queue download for message %s", msg.ID)
		}
	}

	if err := s.conversations.Touch(ctx, conv.ID, in.Timestamp); err != nil {
		return nil, err
	}
	conv.LastMessageAt = &in.Timestamp

	s.bc.Broadcast(ctx, broadcast.ConversationRoom(conv.Tenant, conv.ID), broadcast.EventMessageReceived, msg)
	tenantRoom := broadcast.TenantRoom(conv.Tenant)
	if created {
		s.bc.Broadcast(ctx, tenantRoom, broadcast.EventNewConversation, conv)
	}
	s.bc.Broadcast(ctx, tenantRoom, broadcast.EventNewMessageNotification, map[string]any{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
		"direction":       msg.Direction,
		"preview":         preview(msg.Content),
		"name":            conv.Name,
	})
	return msg, nil
}

func (s *ChatService) upsertConversation(ctx context.Context, in InboundMessage, remote string, kind domain.ConversationKind) (*domain.Conversation, bool, error) {
	conv, err := s.conversations.GetByRemote(ctx, in.Tenant, remote)
	if errors.Is(err, domain.ErrConversationNotFound) {
		conv = &domain.Conversation{
			Tenant:          in.Tenant,
			Kind:            kind,
			ContactPhone:    remote,
			Status:          domain.ConversationPending,
			ProfileImageURL: in.ProfilePicURL,
		}
		if !in.FromMe && kind == domain.KindIndividual {
			conv.Name = in.Pushname
		}
		if in.FromMe {
			conv.Status = domain.ConversationOpen
		}
		if kind == domain.KindGroup && phone.IsGroupJID(remote) {
			conv.SetMeta(domain.MetaGroupJID, remote)
		}
		err = s.conversations.Create(ctx, conv)
		if err == nil {
			return conv, true, nil
		}
		if !errors.Is(err, domain.ErrDuplicateConversation) {
			return nil, false, err
		}
		conv, err = s.conversations.GetByRemote(ctx, in.Tenant, remote)
	}
	if err != nil {
		return nil, false, err
	}

	changed := false
	if conv.Status == domain.ConversationClosed {
		if in.FromMe {
			conv.Status = domain.ConversationOpen
		} else {
			conv.Status = domain.ConversationPending
		}
		changed = true
	}
	if !in.FromMe && kind == domain.KindIndividual && in.Pushname != "" && conv.Name != in.Pushname {
		conv.Name = in.Pushname
		changed = true
	}
	if in.ProfilePicURL != "" && conv.ProfileImageURL != in.ProfilePicURL {
		conv.ProfileImageURL = in.ProfilePicURL
		changed = true
	}
	if changed {
		if err := s.conversations.Save(ctx, conv); err != nil {
			return nil, false, err
		}
	}
	return conv, false, nil
}

func (s *ChatService) queueDownload(ctx context.Context, msg *domain.Message, in InboundMessage) error {
	att := &domain.Attachment{
		Tenant:         in.Tenant,
		MessageID:      msg.ID,
		Filename:       in.Filename,
		MimeType:       in.MimeType,
		StorageType:    domain.StorageS3,
		DownloadStatus: domain.DownloadPending,
		SourceURL:      in.AttachmentURL,
	}
	if err := s.attachments.Create(ctx, att); err != nil {
		return err
	}
	return s.bus.Publish(ctx, jobs.StreamAttachmentDownload, att.ID,
		jobs.DownloadAttachment{Tenant: in.Tenant, AttachmentID: att.ID})
}

func preview(content string) string {
	r := []rune(content)
	if len(r) > 80 {
		return string(r[:80]) + "…"
	}
	return content
}
