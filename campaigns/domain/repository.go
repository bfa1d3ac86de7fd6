package domain

import (
	"context"
	"time"
)

type CampaignRepository interface {
	// Create stores the campaign with its variants and instance links.
	Create(ctx context.Context, c *Campaign) error
	Get(ctx context.Context, tenant, id string) (*Campaign, error)
	List(ctx context.Context, tenant string, status Status) ([]*Campaign, error)
	// ListByStatus spans every tenant; the supervisor uses it.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Campaign, error)
	ListDueScheduled(ctx context.Context, now time.Time) ([]*Campaign, error)
	UpdateSettings(ctx context.Context, c *Campaign) error
	Delete(ctx context.Context, tenant, id string) error

	// Transition flips the status only while it is one of from. Extra columns are
	// written in the same statement.
	Transition(ctx context.Context, id string, from []Status, to Status, extra map[string]any) (bool, error)
	SetInstanceIndex(ctx context.Context, id string, index int) error
	SetNextMessage(ctx context.Context, id string, at *time.Time, name, phone string) error
	AddCounters(ctx context.Context, id string, sent, failed int) error
	// StoreCounters writes the aggregate computed from the contacts.
	StoreCounters(ctx context.Context, id string, c Counters) error

	ReplaceVariants(ctx context.Context, campaignID string, variants []*Variant) error
	// PickVariant returns the least used variant and bumps its times_used.
	PickVariant(ctx context.Context, campaignID string) (*Variant, error)
	ReplaceInstances(ctx context.Context, campaignID string, instanceIDs []string) error
}

type ContactRepository interface {
	// Add inserts the recipients, skipping contacts already in the campaign.
	Add(ctx context.Context, contacts []*CampaignContact) (int, error)
	Get(ctx context.Context, id string) (*CampaignContact, error)
	List(ctx context.Context, campaignID string, status ContactStatus, limit, offset int) ([]*CampaignContact, error)
	// NextPending returns the oldest pending contact, or nil.
	NextPending(ctx context.Context, campaignID string) (*CampaignContact, error)
	// Claim moves a pending contact to sending.
	Claim(ctx context.Context, id, instanceID, variantID string, at time.Time) (bool, error)
	MarkSent(ctx context.Context, id, messageID, gatewayID string, at time.Time) error
	MarkFailed(ctx context.Context, id, messageID, reason string, at time.Time) error
	// Advance moves a contact forward to status; backward moves report false.
	Advance(ctx context.Context, id string, status ContactStatus, at time.Time) (bool, error)
	ResetSending(ctx context.Context, campaignID string) (int64, error)
	Count(ctx context.Context, campaignID string) (Counters, error)
}

type LogRepository interface {
	Append(ctx context.Context, l *Log) error
	List(ctx context.Context, campaignID string, logType LogType, limit, offset int) ([]*Log, error)
}
