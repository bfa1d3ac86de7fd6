package domain

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

const (
	StateOpen       = "open"
	StateClose      = "close"
	StateConnecting = "connecting"
)

const (
	MaxHealth        = 100
	HealthGainOnSend = 1
	HealthLossOnFail = 5
)

// Instance is one WhatsApp sender registered at the gateway.
type Instance struct {
	ID                string     `json:"id"`
	Tenant            string     `json:"tenant"`
	FriendlyName      string     `json:"friendly_name"`
	InstanceName      string     `json:"instance_name"`
	BaseURL           string     `json:"base_url,omitempty"`
	APIKey            string     `json:"-"`
	Status            Status     `json:"status"`
	ConnectionState   string     `json:"connection_state"`
	Phone             string     `json:"phone,omitempty"`
	MsgsSentToday     int        `json:"msgs_sent_today"`
	LastResetDate     string     `json:"last_reset_date,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	HealthScore       int        `json:"health_score"`
	IsDefault         bool       `json:"is_default"`
	LastStateAt       *time.Time `json:"last_state_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Connected reports whether the instance can send right now.
func (i *Instance) Connected() bool {
	return i.Status == StatusActive && i.ConnectionState == StateOpen
}

// SentOn returns the daily counter as seen on date (YYYY-MM-DD). A counter from
// another day counts as zero until the next write resets it.
func (i *Instance) SentOn(date string) int {
	if i.LastResetDate != date {
		return 0
	}
	return i.MsgsSentToday
}

// RemainingPct is the share of dailyLimit still available on date, in [0,100].
func (i *Instance) RemainingPct(date string, dailyLimit int) float64 {
	if dailyLimit <= 0 {
		return 100
	}
	left := dailyLimit - i.SentOn(date)
	if left <= 0 {
		return 0
	}
	return float64(left) * 100 / float64(dailyLimit)
}
