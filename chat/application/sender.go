package application

import (
	"context"
	"errors"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/AzielCF/az-engage/pkg/phone"
	"github.com/AzielCF/az-engage/pkg/timeutils"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const sendLockTTL = 2 * time.Minute

func sendLockKey(messageID string) string {
	return "lock:send:" + messageID
}

// HandleSend is the chat.send consumer. A nil return acks the job; an error asks the
// queue for another attempt.
func (s *ChatService) HandleSend(ctx context.Context, job jobs.SendMessage, d jobs.Delivery) error {
	_, err := s.send(ctx, job.Tenant, job.MessageID, d.LastAttempt())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrMessageNotFound):
		logrus.Warnf("[SEND_WORKER] message %s vanished, dropping job", job.MessageID)
		return nil
	case errors.Is(err, domain.ErrSendInProgress) && d.LastAttempt():
		return nil
	}
	return err
}

// SendNow delivers a pending message in the caller's goroutine with no queue retry.
// Terminal failures come back as a message in status failed and a nil error.
func (s *ChatService) SendNow(ctx context.Context, tenant, messageID string) (*domain.Message, error) {
	return s.send(ctx, tenant, messageID, true)
}

func (s *ChatService) send(ctx context.Context, tenant, messageID string, final bool) (*domain.Message, error) {
	lock, err := kvcache.Acquire(ctx, s.cache, sendLockKey(messageID), uuid.NewString(), sendLockTTL)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, domain.ErrSendInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Warnf("[SEND_WORKER] release lock of %s", messageID)
		}
	}()

	msg, err := s.messages.Get(ctx, tenant, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status != domain.StatusPending {
		logrus.Debugf("[SEND_WORKER] message %s already %s, skipping", msg.ID, msg.Status)
		return msg, nil
	}
	conv, err := s.conversations.Get(ctx, tenant, msg.ConversationID)
	if err != nil {
		return nil, err
	}

	preferred := ""
	if msg.InstanceID != nil {
		preferred = *msg.InstanceID
	}
	inst, err := s.instances.PickForSend(ctx, tenant, preferred)
	if err != nil {
		if errors.Is(err, instancesDomain.ErrNoActiveInstance) && !final {
			logrus.Warnf("[SEND_WORKER] no connected instance for tenant %s, message %s will retry", tenant, msg.ID)
			return msg, err
		}
		if errors.Is(err, instancesDomain.ErrNoActiveInstance) || errors.Is(err, instancesDomain.ErrInstanceNotFound) ||
			errors.Is(err, instancesDomain.ErrInstanceInactive) {
			s.fail(ctx, msg, err.Error())
			return msg, nil
		}
		return msg, err
	}

	text := s.render(ctx, msg, conv)
	gatewayID, sendErr := s.dispatch(ctx, instancesApp.Target(inst), s.destination(conv), text, msg.AttachmentURLs())
	if sendErr != nil {
		if err := s.instances.RecordSendFailure(ctx, inst.ID); err != nil {
			logrus.WithError(err).Warnf("[SEND_WORKER] could not record failure on %s", inst.InstanceName)
		}
		if gateway.IsTransient(sendErr) && !final {
			logrus.WithError(sendErr).Warnf("[SEND_WORKER] transient failure for message %s", msg.ID)
			return msg, sendErr
		}
		logrus.WithError(sendErr).Errorf("[SEND_WORKER] message %s failed", msg.ID)
		s.fail(ctx, msg, sendErr.Error())
		return msg, nil
	}

	at := s.now()
	ok, err := s.messages.MarkSent(ctx, msg.ID, gatewayID, inst.ID, at)
	if errors.Is(err, domain.ErrDuplicateMessage) {
		// the fromMe echo won the race and stored its own row
		if echo, e := s.messages.GetByGatewayID(ctx, tenant, gatewayID); e == nil && echo.MetaString(MetaSource) == SourceDeviceEcho {
			if e := s.messages.Delete(ctx, echo.ID); e == nil {
				ok, err = s.messages.MarkSent(ctx, msg.ID, gatewayID, inst.ID, at)
			}
		}
	}
	if err != nil {
		return msg, err
	}
	if err := s.instances.RecordSendSuccess(ctx, inst.ID); err != nil {
		logrus.WithError(err).Warnf("[SEND_WORKER] could not record success on %s", inst.InstanceName)
	}
	if !ok {
		return s.messages.Get(ctx, tenant, msg.ID)
	}

	msg.GatewayID = &gatewayID
	msg.Status = domain.StatusSent
	msg.SentAt = &at
	instID := inst.ID
	msg.InstanceID = &instID
	s.announceStatus(ctx, msg, domain.StatusSent)
	logrus.Debugf("[SEND_WORKER] message %s sent as %s via %s", msg.ID, gatewayID, inst.InstanceName)
	return msg, nil
}

func (s *ChatService) fail(ctx context.Context, msg *domain.Message, reason string) {
	at := s.now()
	if err := s.messages.MarkFailed(ctx, msg.ID, reason, at); err != nil {
		logrus.WithError(err).Errorf("[SEND_WORKER] could not mark %s failed", msg.ID)
		return
	}
	msg.Status = domain.StatusFailed
	msg.Error = reason
	msg.FailedAt = &at
	s.announceStatus(ctx, msg, domain.StatusFailed)
}

// dispatch sends text, or one media item per URL with the text as caption of the first.
func (s *ChatService) dispatch(ctx context.Context, target gateway.Target, to, text string, media []string) (string, error) {
	if len(media) == 0 {
		return s.gw.SendText(ctx, target, to, text)
	}
	var first string
	for i, u := range media {
		caption := ""
		if i == 0 {
			caption = text
		}
		id, err := s.gw.SendMedia(ctx, target, to, u, caption, MediaKindOf(u))
		if err != nil {
			return "", err
		}
		if first == "" {
			first = id
		}
	}
	return first, nil
}

// MediaKindOf guesses the gateway media kind from the URL path extension.
func MediaKindOf(rawURL string) gateway.MediaKind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ct := mime.TypeByExtension(strings.ToLower(path.Ext(p)))
	return mediaKindFor(ct)
}

func mediaKindFor(contentType string) gateway.MediaKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return gateway.MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return gateway.MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return gateway.MediaAudio
	}
	return gateway.MediaDocument
}

// groupJIDOf returns the best known group JID of a group conversation.
func groupJIDOf(conv *domain.Conversation) string {
	if phone.IsGroupJID(conv.ContactPhone) {
		return conv.ContactPhone
	}
	if jid, _ := conv.Meta(domain.MetaGroupJID).(string); jid != "" {
		return jid
	}
	return ""
}

func (s *ChatService) destination(conv *domain.Conversation) string {
	if conv.IsGroup() {
		if jid := groupJIDOf(conv); jid != "" {
			return phone.GroupJID(jid)
		}
		return conv.ContactPhone
	}
	if phone.IsLID(conv.ContactPhone) {
		return conv.ContactPhone
	}
	return phone.UserJID(conv.ContactPhone)
}

// render fills the personalization variables of an outbound text.
func (s *ChatService) render(ctx context.Context, msg *domain.Message, conv *domain.Conversation) string {
	if !strings.Contains(msg.Content, "{{") {
		return msg.Content
	}
	name := conv.Name
	referrer := msg.MetaString(domain.MetaReferrerName)
	if !conv.IsGroup() && !phone.IsLID(conv.ContactPhone) {
		if c, err := s.contacts.GetByPhone(ctx, conv.Tenant, conv.ContactPhone); err == nil {
			if c.Name != "" {
				name = c.Name
			}
			if referrer == "" {
				referrer = c.Referrer()
			}
		}
	}
	now := s.local(s.now())
	return utils.RenderVars(msg.Content, map[string]string{
		"nome":                    name,
		"primeiro_nome":           utils.FirstName(name),
		"saudacao":                timeutils.Greeting(now),
		"dia_semana":              timeutils.WeekdayPT(now),
		"quem_indicou":            referrer,
		"primeiro_nome_indicador": utils.FirstName(referrer),
	})
}
