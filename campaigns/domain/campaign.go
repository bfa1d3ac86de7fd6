package domain

import "time"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type RotationMode string

const (
	RotationRoundRobin  RotationMode = "round_robin"
	RotationBalanced    RotationMode = "balanced"
	RotationIntelligent RotationMode = "intelligent"
)

func (m RotationMode) Valid() bool {
	switch m {
	case RotationRoundRobin, RotationBalanced, RotationIntelligent:
		return true
	}
	return false
}

type Campaign struct {
	ID                     string       `json:"id"`
	Tenant                 string       `json:"tenant"`
	Name                   string       `json:"name"`
	RotationMode           RotationMode `json:"rotation_mode"`
	IntervalMin            int          `json:"interval_min"`
	IntervalMax            int          `json:"interval_max"`
	DailyLimitPerInstance  int          `json:"daily_limit_per_instance"`
	PauseOnHealthBelow     int          `json:"pause_on_health_below"`
	TotalCount             int          `json:"total_count"`
	SentCount              int          `json:"sent_count"`
	DeliveredCount         int          `json:"delivered_count"`
	ReadCount              int          `json:"read_count"`
	FailedCount            int          `json:"failed_count"`
	Status                 Status       `json:"status"`
	ScheduledAt            *time.Time   `json:"scheduled_at,omitempty"`
	StartedAt              *time.Time   `json:"started_at,omitempty"`
	CompletedAt            *time.Time   `json:"completed_at,omitempty"`
	CurrentInstanceIndex   int          `json:"current_instance_index"`
	NextMessageScheduledAt *time.Time   `json:"next_message_scheduled_at,omitempty"`
	NextContactName        string       `json:"next_contact_name,omitempty"`
	NextContactPhone       string       `json:"next_contact_phone,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`

	Messages    []*Variant `json:"messages,omitempty"`
	InstanceIDs []string   `json:"instance_ids"`
}

// Editable reports whether settings, variants and instances may still change.
func (c *Campaign) Editable() bool {
	return c.Status == StatusDraft || c.Status == StatusScheduled || c.Status == StatusPaused
}

// Variant is one message body a campaign rotates through.
type Variant struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url,omitempty"`
	Position   int    `json:"position"`
	TimesUsed  int    `json:"times_used"`
}

type ContactStatus string

const (
	ContactPending   ContactStatus = "pending"
	ContactSending   ContactStatus = "sending"
	ContactSent      ContactStatus = "sent"
	ContactDelivered ContactStatus = "delivered"
	ContactRead      ContactStatus = "read"
	ContactFailed    ContactStatus = "failed"
)

var contactRank = map[ContactStatus]int{
	ContactPending:   0,
	ContactSending:   1,
	ContactSent:      2,
	ContactDelivered: 3,
	ContactRead:      4,
}

func (s ContactStatus) Rank() int {
	if r, ok := contactRank[s]; ok {
		return r
	}
	return -1
}

// Below returns the statuses that may move forward to s.
func (s ContactStatus) Below() []ContactStatus {
	var out []ContactStatus
	for _, st := range []ContactStatus{ContactPending, ContactSending, ContactSent, ContactDelivered, ContactRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// CampaignContact is the per-recipient state of a campaign.
type CampaignContact struct {
	ID               string        `json:"id"`
	Tenant           string        `json:"tenant"`
	CampaignID       string        `json:"campaign_id"`
	ContactID        string        `json:"contact_id"`
	Phone            string        `json:"phone"`
	Name             string        `json:"name,omitempty"`
	Status           ContactStatus `json:"status"`
	Error            string        `json:"error,omitempty"`
	RetryCount       int           `json:"retry_count"`
	InstanceID       *string       `json:"instance_id,omitempty"`
	VariantID        *string       `json:"variant_id,omitempty"`
	GatewayMessageID *string       `json:"gateway_message_id,omitempty"`
	MessageID        *string       `json:"message_id,omitempty"`
	SendingAt        *time.Time    `json:"sending_at,omitempty"`
	SentAt           *time.Time    `json:"sent_at,omitempty"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	ReadAt           *time.Time    `json:"read_at,omitempty"`
	FailedAt         *time.Time    `json:"failed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type LogType string

const (
	LogStarted          LogType = "started"
	LogPaused           LogType = "paused"
	LogResumed          LogType = "resumed"
	LogCompleted        LogType = "completed"
	LogCancelled        LogType = "cancelled"
	LogMessageSent      LogType = "message_sent"
	LogMessageFailed    LogType = "message_failed"
	LogInstanceSelected LogType = "instance_selected"
	LogLimitReached     LogType = "limit_reached"
	LogHealthIssue      LogType = "health_issue"
	LogError            LogType = "error"
	LogRecovered        LogType = "recovered"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Log is an append-only campaign event.
type Log struct {
	ID         string         `json:"id"`
	Tenant     string         `json:"tenant"`
	CampaignID string         `json:"campaign_id"`
	Type       LogType        `json:"type"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	InstanceID *string        `json:"instance_id,omitempty"`
	ContactID  *string        `json:"contact_id,omitempty"`
	Request    map[string]any `json:"request,omitempty"`
	Response   map[string]any `json:"response,omitempty"`
	HTTPStatus int            `json:"http_status,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Counters is the per-status breakdown of a campaign's contacts.
type Counters struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sending   int `json:"sending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`
}
