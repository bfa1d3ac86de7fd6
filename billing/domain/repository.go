package domain

import (
	"context"
	"time"
)

type CycleRepository interface {
	Create(ctx context.Context, c *Cycle) error
	Get(ctx context.Context, tenant, id string) (*Cycle, error)
	// GetActive finds the active cycle of an external billing id.
	GetActive(ctx context.Context, tenant, externalID string) (*Cycle, error)
	List(ctx context.Context, tenant string, status CycleStatus, limit, offset int) ([]*Cycle, error)
	UpdateDetails(ctx context.Context, c *Cycle) error
	// Close flips an active cycle to status; it reports false when the cycle was not active.
	Close(ctx context.Context, id string, status CycleStatus, at time.Time) (bool, error)
	SetTotal(ctx context.Context, id string, total int) error
	IncrementSent(ctx context.Context, id string) error
}

type EmissionRepository interface {
	// ReplacePending drops the unfired emissions of a cycle and stores the new plan.
	ReplacePending(ctx context.Context, cycleID string, emissions []*Emission) error
	ListByCycle(ctx context.Context, cycleID string) ([]*Emission, error)
	// ClaimDue moves up to limit due pending emissions to sending and returns them.
	// Concurrent tickers never receive the same emission.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Emission, error)
	MarkSent(ctx context.Context, id, messageID string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	// Release returns a claimed emission to pending.
	Release(ctx context.Context, id string) error
	// ReleaseStale returns emissions claimed before cutoff to pending.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	CancelPending(ctx context.Context, cycleID string) (int64, error)
	// CountOpen counts the pending and sending emissions of a cycle.
	CountOpen(ctx context.Context, cycleID string) (int64, error)
}

type PlanRepository interface {
	// Get returns the tenant's plan, or nil when it uses the default.
	Get(ctx context.Context, tenant string) (*Plan, error)
	Save(ctx context.Context, p *Plan) error
}
