package domain

import "time"

type ConversationKind string

const (
	KindIndividual ConversationKind = "individual"
	KindGroup      ConversationKind = "group"
)

type ConversationStatus string

const (
	ConversationPending ConversationStatus = "pending"
	ConversationOpen    ConversationStatus = "open"
	ConversationClosed  ConversationStatus = "closed"
)

// Metadata keys kept on a conversation.
const (
	MetaLastRefreshAt         = "last_refresh_at"
	MetaParticipants          = "participants"
	MetaParticipantsCount     = "participants_count"
	MetaParticipantsUpdatedAt = "participants_updated_at"
	MetaGroupJID              = "group_jid"
)

// Conversation is the thread with one remote party: a phone, a group JID or a LID.
type Conversation struct {
	ID              string             `json:"id"`
	Tenant          string             `json:"tenant"`
	Kind            ConversationKind   `json:"kind"`
	ContactPhone    string             `json:"contact_phone"`
	Name            string             `json:"name,omitempty"`
	ProfileImageURL string             `json:"profile_image_url,omitempty"`
	DepartmentID    *string            `json:"department_id"`
	AssignedUserID  *string            `json:"assigned_user_id"`
	Status          ConversationStatus `json:"status"`
	LastMessageAt   *time.Time         `json:"last_message_at,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
	UnreadCount     int                `json:"unread_count"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (c *Conversation) IsGroup() bool {
	return c.Kind == KindGroup
}

func (c *Conversation) Meta(key string) any {
	if c.Metadata == nil {
		return nil
	}
	return c.Metadata[key]
}

func (c *Conversation) SetMeta(key string, v any) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = v
}

// MetaTime reads an RFC3339 timestamp from metadata.
func (c *Conversation) MetaTime(key string) (time.Time, bool) {
	s, ok := c.Meta(key).(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Department routes conversations to a team.
type Department struct {
	ID              string    `json:"id"`
	Tenant          string    `json:"tenant"`
	Name            string    `json:"name"`
	TransferMessage string    `json:"transfer_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ConversationFilter struct {
	Status       ConversationStatus
	DepartmentID string
	Inbox        bool
	AssignedTo   string
	Search       string
	Limit        int
	Offset       int
}
