package domain

import (
	"context"
	"time"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, tenant, id string) (*Conversation, error)
	GetByRemote(ctx context.Context, tenant, remote string) (*Conversation, error)
	List(ctx context.Context, tenant string, filter ConversationFilter) ([]*Conversation, error)
	// Save writes the mutable columns (name, picture, remote, status, routing, metadata).
	Save(ctx context.Context, conv *Conversation) error
	// Touch moves last_message_at forward, never backwards.
	Touch(ctx context.Context, id string, at time.Time) error
	// Route sets department and assignee together.
	Route(ctx context.Context, tenant, id string, departmentID, assignedUserID *string) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	Get(ctx context.Context, tenant, id string) (*Message, error)
	GetByGatewayID(ctx context.Context, tenant, gatewayID string) (*Message, error)
	// LatestForCampaignContact returns the newest message created for a campaign recipient.
	LatestForCampaignContact(ctx context.Context, tenant, campaignContactID string) (*Message, error)
	List(ctx context.Context, tenant, conversationID string, limit int, before *time.Time) ([]*Message, error)
	// RecentIncomingMetadata returns the metadata of the latest incoming messages of a conversation.
	RecentIncomingMetadata(ctx context.Context, conversationID string, limit int) ([]map[string]any, error)
	UnreadCount(ctx context.Context, conversationID string) (int, error)

	// MarkSent moves a pending message to sent with its gateway id. It reports false when
	// the message was no longer pending.
	MarkSent(ctx context.Context, id, gatewayID, instanceID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
	// Advance applies a strictly later status. It reports false when the stored status is
	// already at or past next.
	Advance(ctx context.Context, id string, next MessageStatus, at time.Time) (bool, error)
	// MarkConversationSeen flips up to limit incoming unread messages to seen and returns them.
	MarkConversationSeen(ctx context.Context, tenant, conversationID string, limit int, at time.Time) ([]*Message, error)
	// PendingReceipts lists seen incoming messages whose read receipt was not confirmed.
	PendingReceipts(ctx context.Context, olderThan time.Time, limit int) ([]*Message, error)
	SetReceiptSent(ctx context.Context, id string) error
	SetDeleted(ctx context.Context, tenant, id string) error
	SetMetadata(ctx context.Context, id string, metadata map[string]any) error
	Delete(ctx context.Context, id string) error
}

type AttachmentRepository interface {
	Create(ctx context.Context, att *Attachment) error
	Get(ctx context.Context, tenant, id string) (*Attachment, error)
	GetByHash(ctx context.Context, tenant, hash string) (*Attachment, error)
	ListByMessages(ctx context.Context, messageIDs []string) ([]*Attachment, error)
	MarkReady(ctx context.Context, id, key string, size int64, hash, thumbnailKey string) error
	MarkFailed(ctx context.Context, id string) error
}

type ReactionRepository interface {
	Find(ctx context.Context, messageID, reactor string) (*Reaction, error)
	Create(ctx context.Context, r *Reaction) error
	UpdateEmoji(ctx context.Context, id, emoji string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, messageID string) ([]*Reaction, error)
}

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	Get(ctx context.Context, tenant, id string) (*Department, error)
	List(ctx context.Context, tenant string) ([]*Department, error)
	Update(ctx context.Context, d *Department) error
	Delete(ctx context.Context, tenant, id string) error
}

// DeliveryListener is told about every applied status change of a message that carries
// a campaign tag. It runs inside the reconciler transaction.
type DeliveryListener interface {
	MessageStatusChanged(ctx context.Context, msg *Message, status MessageStatus, at time.Time) error
}
