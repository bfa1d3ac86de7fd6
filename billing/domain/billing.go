package domain

import (
	"sort"
	"time"

	"github.com/AzielCF/az-engage/pkg/timeutils"
)

type CycleStatus string

const (
	CycleActive    CycleStatus = "active"
	CyclePaid      CycleStatus = "paid"
	CycleCancelled CycleStatus = "cancelled"
	CycleCompleted CycleStatus = "completed"
)

type EmissionStatus string

const (
	EmissionPending   EmissionStatus = "pending"
	EmissionSending   EmissionStatus = "sending"
	EmissionSent      EmissionStatus = "sent"
	EmissionFailed    EmissionStatus = "failed"
	EmissionCancelled EmissionStatus = "cancelled"
)

// Cycle is one invoice the platform reminds a contact about. A tenant has at most one
// active cycle per external billing id.
type Cycle struct {
	ID                string         `json:"id"`
	Tenant            string         `json:"tenant"`
	ExternalBillingID string         `json:"external_billing_id"`
	Phone             string         `json:"phone"`
	Name              string         `json:"name"`
	DueDate           string         `json:"due_date"`
	BillingData       map[string]any `json:"billing_data,omitempty"`
	NotifyBeforeDue   bool           `json:"notify_before_due"`
	NotifyAfterDue    bool           `json:"notify_after_due"`
	Status            CycleStatus    `json:"status"`
	TotalMessages     int            `json:"total_messages"`
	SentMessages      int            `json:"sent_messages"`
	ClosedAt          *time.Time     `json:"closed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`

	Emissions []*Emission `json:"emissions,omitempty"`
}

// Emission is one planned reminder of a cycle.
type Emission struct {
	ID               string         `json:"id"`
	Tenant           string         `json:"tenant"`
	CycleID          string         `json:"cycle_id"`
	OffsetDays       int            `json:"offset_days"`
	Template         string         `json:"template"`
	SendAt           time.Time      `json:"send_at"`
	Status           EmissionStatus `json:"status"`
	NotificationSent bool           `json:"notification_sent"`
	MessageID        *string        `json:"message_id,omitempty"`
	Error            string         `json:"error,omitempty"`
	ClaimedAt        *time.Time     `json:"claimed_at,omitempty"`
	SentAt           *time.Time     `json:"sent_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// PlanStep sends Template OffsetDays away from the due date; negative is before it.
type PlanStep struct {
	OffsetDays int    `json:"offset_days"`
	Template   string `json:"template"`
}

// Plan is the tenant's reminder schedule.
type Plan struct {
	Tenant    string     `json:"tenant"`
	Steps     []PlanStep `json:"steps"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Schedule plans the emissions of c at hour:00 of each step's day in loc. Steps before
// the due date need NotifyBeforeDue, steps after it NotifyAfterDue, and times not after
// now are dropped.
func Schedule(c *Cycle, steps []PlanStep, hour int, loc *time.Location, now time.Time) ([]*Emission, error) {
	due, err := timeutils.ParseDate(c.DueDate, loc)
	if err != nil {
		return nil, err
	}
	sorted := append([]PlanStep(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OffsetDays < sorted[j].OffsetDays })

	var out []*Emission
	seen := map[int]bool{}
	for _, st := range sorted {
		if seen[st.OffsetDays] {
			continue
		}
		seen[st.OffsetDays] = true
		if (st.OffsetDays < 0 && !c.NotifyBeforeDue) || (st.OffsetDays > 0 && !c.NotifyAfterDue) {
			continue
		}
		at := timeutils.AtOffset(due, st.OffsetDays, hour)
		if !at.After(now) {
			continue
		}
		out = append(out, &Emission{
			Tenant:     c.Tenant,
			CycleID:    c.ID,
			OffsetDays: st.OffsetDays,
			Template:   st.Template,
			SendAt:     at,
			Status:     EmissionPending,
		})
	}
	return out, nil
}
