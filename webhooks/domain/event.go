package domain

import (
	"context"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusError     Status = "error"
)

// Gateway event names after Normalize.
const (
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
	EventMessagesDelete   = "messages.delete"
	EventConnectionUpdate = "connection.update"
)

// Normalize maps "MESSAGES_UPSERT" and "messages.upsert" to the same name.
func Normalize(event string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(event)), "_", ".")
}

// Event is one stored gateway callback.
type Event struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	DedupeKey    string         `json:"-"`
	Tenant       string         `json:"tenant"`
	InstanceName string         `json:"instance_name"`
	Event        string         `json:"event"`
	Payload      map[string]any `json:"payload,omitempty"`
	Status       Status         `json:"status"`
	RetryCount   int            `json:"retry_count"`
	Error        string         `json:"error,omitempty"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Filter struct {
	Status       Status
	Event        string
	InstanceName string
	Limit        int
	Offset       int
}

type EventRepository interface {
	// Create stores e unless its dedupe key exists, in which case the stored row is
	// returned with created=false.
	Create(ctx context.Context, e *Event) (stored *Event, created bool, err error)
	GetByEventID(ctx context.Context, eventID string) (*Event, error)
	List(ctx context.Context, tenant string, filter Filter) ([]*Event, error)
	// Reprocessable returns the tenant's events in error or still pending before olderThan.
	Reprocessable(ctx context.Context, tenant string, olderThan time.Time, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id, reason string) error
	SetPending(ctx context.Context, id, tenant string) error
}
