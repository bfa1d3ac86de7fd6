package domain

import (
	"strings"
	"time"
	"unicode"
)

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
	StatusFailed    MessageStatus = "failed"
)

var statusRank = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusSeen:      3,
}

// Rank orders the delivery statuses; failed and unknown values rank -1.
func (s MessageStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Precedes returns the statuses that may move forward to s.
func (s MessageStatus) Precedes() []MessageStatus {
	r := s.Rank()
	var out []MessageStatus
	for _, st := range []MessageStatus{StatusPending, StatusSent, StatusDelivered, StatusSeen} {
		if st.Rank() < r {
			out = append(out, st)
		}
	}
	return out
}

// CanAdvanceTo reports whether a message in s may take next.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Rank() > s.Rank() && s != StatusFailed
}

// OriginSystem tags outgoing messages created by the platform itself.
const OriginSystem = "system"

// Metadata keys kept on a message.
const (
	MetaAttachmentURLs = "attachment_urls"
	MetaRemoteJID      = "remoteJid"
	MetaForwardFrom    = "forward_from"
	MetaReferrerName   = "referrer_name"
	MetaPushname       = "pushname"
	MetaKind           = "kind"
)

type Message struct {
	ID                string         `json:"id"`
	Tenant            string         `json:"tenant"`
	ConversationID    string         `json:"conversation_id"`
	Direction         Direction      `json:"direction"`
	Content           string         `json:"content"`
	GatewayID         *string        `json:"gateway_id"`
	Status            MessageStatus  `json:"status"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
	SeenAt            *time.Time     `json:"seen_at,omitempty"`
	FailedAt          *time.Time     `json:"failed_at,omitempty"`
	Error             string         `json:"error,omitempty"`
	SenderUserID      *string        `json:"sender_user_id,omitempty"`
	Origin            string         `json:"origin,omitempty"`
	IsInternal        bool           `json:"is_internal"`
	IsDeleted         bool           `json:"is_deleted"`
	ReplyToID         *string        `json:"reply_to_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CampaignID        *string        `json:"campaign_id,omitempty"`
	CampaignContactID *string        `json:"campaign_contact_id,omitempty"`
	BillingEmissionID *string        `json:"billing_emission_id,omitempty"`
	InstanceID        *string        `json:"instance_id,omitempty"`
	ReadReceiptSent   bool           `json:"-"`
	Attachments       []*Attachment  `json:"attachments,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (m *Message) GatewayIDValue() string {
	if m.GatewayID == nil {
		return ""
	}
	return *m.GatewayID
}

// AttachmentURLs returns metadata.attachment_urls as strings.
func (m *Message) AttachmentURLs() []string {
	if m.Metadata == nil {
		return nil
	}
	switch v := m.Metadata[MetaAttachmentURLs].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (m *Message) MetaString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[key].(string)
	return s
}

// HasSender reports whether an outgoing message carries one of the accepted origins.
func (m *Message) HasSender() bool {
	return m.SenderUserID != nil || m.CampaignID != nil || m.BillingEmissionID != nil || m.Origin == OriginSystem
}

type DownloadStatus string

const (
	DownloadPending DownloadStatus = "pending"
	DownloadReady   DownloadStatus = "ready"
	DownloadFailed  DownloadStatus = "failed"
)

const StorageS3 = "s3"

type Attachment struct {
	ID             string         `json:"id"`
	Tenant         string         `json:"tenant"`
	MessageID      string         `json:"message_id"`
	Filename       string         `json:"filename"`
	MimeType       string         `json:"mime_type"`
	ObjectKey      string         `json:"s3_key"`
	Size           int64          `json:"file_size"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	ContentHash    *string        `json:"content_hash,omitempty"`
	PublicURL      string         `json:"public_url,omitempty"`
	StorageType    string         `json:"storage_type"`
	DownloadStatus DownloadStatus `json:"download_status"`
	SourceURL      string         `json:"source_url,omitempty"`
	ThumbnailKey   string         `json:"thumbnail_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Emoji     string    `json:"emoji"`
	Reactor   string    `json:"reactor"`
	CreatedAt time.Time `json:"created_at"`
}

// UserReactor is the reactor identity of a platform user.
func UserReactor(userID string) string {
	return "user:" + userID
}

const maxEmojiRunes = 10

// ValidEmoji accepts up to ten runes, each a symbol or combining mark, or a ZWJ / VS16.
func ValidEmoji(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	n := 0
	for _, r := range s {
		n++
		if n > maxEmojiRunes {
			return false
		}
		if r == '\u200d' || r == '\ufe0f' {
			continue
		}
		if !unicode.In(r, unicode.So, unicode.Sk, unicode.Mn, unicode.Mc) {
			return false
		}
	}
	return true
}
