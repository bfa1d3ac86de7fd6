package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/AzielCF/az-engage/pkg/phone"
	"github.com/sirupsen/logrus"
)

// WarnGroupUsesLID is reported when a LID conversation cannot be tied to a group JID.
const WarnGroupUsesLID = "group_uses_lid"

const (
	defaultRefreshCooldown  = 15 * time.Minute
	defaultParticipantsTTL  = 5 * time.Minute
	defaultProfilePicTTL    = 7 * 24 * time.Hour
	defaultParticipantStale = time.Hour
	lidScanDepth            = 50
)

type ParticipantView struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
	Admin string `json:"admin,omitempty"`
}

type RefreshResult struct {
	Conversation *domain.Conversation `json:"conversation"`
	Refreshed    bool                 `json:"refreshed"`
	Warning      string               `json:"warning,omitempty"`
}

func participantsKey(conversationID string) string {
	return "participants:" + conversationID
}

func profilePictureKey(tenant, phoneNumber string) string {
	return "profile_pic:" + tenant + ":" + phoneNumber
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// ResolveParticipantPhone prefers phoneNumber, then a classic user JID id. LID-only
// participants resolve to "".
func ResolveParticipantPhone(p gateway.Participant) string {
	if p.PhoneNumber != "" {
		local := strings.SplitN(p.PhoneNumber, "@", 2)[0]
		if n := phone.Normalize(local); phone.IsE164(n) {
			return n
		}
	}
	if phone.IsUserJID(p.ID) {
		if n := phone.Normalize(p.ID); phone.IsE164(n) {
			return n
		}
	}
	return ""
}

// RefreshInfo reloads group metadata or the profile picture of a conversation from the
// gateway, at most once per cooldown.
func (s *ChatService) RefreshInfo(ctx context.Context, tenant, conversationID string) (*RefreshResult, error) {
	conv, err := s.conversations.Get(ctx, tenant, conversationID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if last, ok := conv.MetaTime(domain.MetaLastRefreshAt); ok && now.Sub(last) < orDefault(s.cfg.Chat.RefreshCooldown, defaultRefreshCooldown) {
		return &RefreshResult{Conversation: conv}, nil
	}

	inst, err := s.instances.PickForSend(ctx, tenant, "")
	if err != nil {
		return nil, err
	}
	target := instancesApp.Target(inst)

	res := &RefreshResult{Conversation: conv, Refreshed: true}
	if conv.IsGroup() {
		res.Warning, err = s.refreshGroup(ctx, target, conv)
	} else {
		err = s.refreshContact(ctx, target, conv)
	}
	if err != nil {
		return nil, err
	}

	conv.SetMeta(domain.MetaLastRefreshAt, now.UTC().Format(time.RFC3339))
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	s.announceConversation(ctx, conv, map[string]any{"name": conv.Name, "profile_image_url": conv.ProfileImageURL})
	return res, nil
}

// resolveGroupJID promotes the group JID seen on recent inbound messages of a LID thread.
func (s *ChatService) resolveGroupJID(ctx context.Context, conv *domain.Conversation) string {
	if jid := groupJIDOf(conv); jid != "" {
		return jid
	}
	metas, err := s.messages.RecentIncomingMetadata(ctx, conv.ID, lidScanDepth)
	if err != nil {
		logrus.WithError(err).Warnf("[GROUPS] could not scan messages of %s", conv.ID)
		return ""
	}
	for _, m := range metas {
		if jid, _ := m[domain.MetaRemoteJID].(string); phone.IsGroupJID(jid) {
			conv.SetMeta(domain.MetaGroupJID, jid)
			return jid
		}
	}
	return ""
}

func (s *ChatService) refreshGroup(ctx context.Context, target gateway.Target, conv *domain.Conversation) (string, error) {
	jid := s.resolveGroupJID(ctx, conv)
	if jid == "" {
		logrus.Warnf("[GROUPS] %s: conversation %s has no group jid, keeping cached metadata", WarnGroupUsesLID, conv.ID)
		return WarnGroupUsesLID, nil
	}
	info, err := s.gw.FindGroupInfo(ctx, target, jid, true)
	if errors.Is(err, gateway.ErrGone) {
		logrus.Warnf("[GROUPS] group %s is gone upstream", jid)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.Subject != "" {
		conv.Name = info.Subject
	}
	if info.PictureURL != "" {
		conv.ProfileImageURL = info.PictureURL
	}
	s.storeParticipants(ctx, target, conv, info.Participants)
	if err := s.cache.Delete(ctx, participantsKey(conv.ID)); err != nil {
		logrus.WithError(err).Debug("[GROUPS] participants cache invalidation failed")
	}
	return "", nil
}

func (s *ChatService) refreshContact(ctx context.Context, target gateway.Target, conv *domain.Conversation) error {
	if phone.IsLID(conv.ContactPhone) {
		return nil
	}
	if pic := s.profilePicture(ctx, target, conv); pic != "" {
		conv.ProfileImageURL = pic
	}
	if conv.Name == "" {
		if name, err := s.gw.FetchPushname(ctx, target, conv.ContactPhone); err == nil && name != "" {
			conv.Name = name
		}
	}
	return nil
}

func (s *ChatService) profilePicture(ctx context.Context, target gateway.Target, conv *domain.Conversation) string {
	key := profilePictureKey(conv.Tenant, conv.ContactPhone)
	if b, err := s.cache.Get(ctx, key); err == nil {
		return string(b)
	}
	pic, err := s.gw.FetchProfilePicture(ctx, target, conv.ContactPhone)
	if err != nil {
		if !errors.Is(err, gateway.ErrGone) {
			logrus.WithError(err).Warnf("[CHAT] profile picture of %s", conv.ContactPhone)
		}
		return ""
	}
	if err := s.cache.Set(ctx, key, []byte(pic), orDefault(s.cfg.Chat.ProfilePictureTTL, defaultProfilePicTTL)); err != nil {
		logrus.WithError(err).Debug("[CHAT] profile picture cache write failed")
	}
	return pic
}

func (s *ChatService) storeParticipants(ctx context.Context, target gateway.Target, conv *domain.Conversation, raw []gateway.Participant) []ParticipantView {
	views := make([]ParticipantView, 0, len(raw))
	for _, p := range raw {
		ph := ResolveParticipantPhone(p)
		if ph == "" {
			continue
		}
		views = append(views, ParticipantView{ID: p.ID, Phone: ph, Name: s.participantName(ctx, target, conv.Tenant, ph), Admin: p.Admin})
	}
	conv.SetMeta(domain.MetaParticipants, views)
	conv.SetMeta(domain.MetaParticipantsCount, len(raw))
	conv.SetMeta(domain.MetaParticipantsUpdatedAt, s.now().UTC().Format(time.RFC3339))
	return views
}

// participantName prefers the tenant's contact name over the gateway pushname. An
// empty name lets the UI show the formatted phone.
func (s *ChatService) participantName(ctx context.Context, target gateway.Target, tenant, ph string) string {
	if c, err := s.contacts.GetByPhone(ctx, tenant, ph); err == nil && c.Name != "" {
		return c.Name
	}
	if name, err := s.gw.FetchPushname(ctx, target, ph); err == nil {
		return name
	}
	return ""
}

func participantsFromMeta(v any) []ParticipantView {
	if v == nil {
		return nil
	}
	if views, ok := v.([]ParticipantView); ok {
		return views
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out []ParticipantView
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// needsReload reports stored participants that are stale, inconsistent with the stored
// count, or mostly missing phones.
func (s *ChatService) needsReload(conv *domain.Conversation, views []ParticipantView) bool {
	updated, ok := conv.MetaTime(domain.MetaParticipantsUpdatedAt)
	if !ok || s.now().Sub(updated) > orDefault(s.cfg.Chat.ParticipantsStaleAt, defaultParticipantStale) {
		return true
	}
	count := 0
	switch n := conv.Meta(domain.MetaParticipantsCount).(type) {
	case int:
		count = n
	case float64:
		count = int(n)
	}
	if count > 0 && len(views) == 0 {
		return true
	}
	if len(views) == 0 {
		return false
	}
	valid := 0
	for _, v := range views {
		if phone.IsE164(v.Phone) {
			valid++
		}
	}
	return valid*2 < len(views)
}

// Participants lists the members of a group conversation, from cache when possible.
func (s *ChatService) Participants(ctx context.Context, tenant, conversationID string) ([]ParticipantView, error) {
	conv, err := s.conversations.Get(ctx, tenant, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, nil
	}
	key := participantsKey(conv.ID)
	if b, err := s.cache.Get(ctx, key); err == nil {
		var cached []ParticipantView
		if json.Unmarshal(b, &cached) == nil {
			return cached, nil
		}
	} else if !errors.Is(err, kvcache.ErrMiss) {
		logrus.WithError(err).Debug("[GROUPS] participants cache read failed")
	}

	views := participantsFromMeta(conv.Meta(domain.MetaParticipants))
	if s.needsReload(conv, views) {
		if fresh, err := s.reloadParticipants(ctx, conv); err != nil {
			logrus.WithError(err).Warnf("[GROUPS] serving stored participants of %s", conv.ID)
		} else {
			views = fresh
		}
	}

	if b, err := json.Marshal(views); err == nil {
		if err := s.cache.Set(ctx, key, b, orDefault(s.cfg.Chat.ParticipantsTTL, defaultParticipantsTTL)); err != nil {
			logrus.WithError(err).Debug("[GROUPS] participants cache write failed")
		}
	}
	return views, nil
}

func (s *ChatService) reloadParticipants(ctx context.Context, conv *domain.Conversation) ([]ParticipantView, error) {
	jid := s.resolveGroupJID(ctx, conv)
	if jid == "" {
		return nil, errors.New(WarnGroupUsesLID)
	}
	inst, err := s.instances.PickForSend(ctx, conv.Tenant, "")
	if err != nil {
		return nil, err
	}
	target := instancesApp.Target(inst)
	raw, err := s.gw.FetchParticipants(ctx, target, jid)
	if err != nil {
		return nil, err
	}
	views := s.storeParticipants(ctx, target, conv, raw)
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	return views, nil
}
