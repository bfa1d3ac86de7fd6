package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/billing/domain"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repos struct {
	cycles    *CycleGormRepository
	emissions *EmissionGormRepository
	plans     *PlanGormRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	db := dbtest.Open(t)
	r := repos{
		cycles:    NewCycleGormRepository(db),
		emissions: NewEmissionGormRepository(db),
		plans:     NewPlanGormRepository(db),
	}
	dbtest.Migrate(t, r.cycles, r.emissions, r.plans)
	return r
}

func seedCycle(t *testing.T, r repos, external string) *domain.Cycle {
	t.Helper()
	c := &domain.Cycle{
		Tenant:            "t1",
		ExternalBillingID: external,
		Phone:             "+5511988887701",
		Name:              "Ana Souza",
		DueDate:           "2026-03-20",
		BillingData:       map[string]any{"valor": "R$ 99,90"},
		NotifyBeforeDue:   true,
	}
	require.NoError(t, r.cycles.Create(context.Background(), c))
	return c
}

func TestCycle_OneActivePerExternalID(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCycle(t, r, "INV-1")

	dup := &domain.Cycle{Tenant: "t1", ExternalBillingID: "INV-1", Phone: "+5511", DueDate: "2026-04-01"}
	assert.ErrorIs(t, r.cycles.Create(ctx, dup), domain.ErrDuplicateCycle)

	other := &domain.Cycle{Tenant: "t2", ExternalBillingID: "INV-1", Phone: "+5511", DueDate: "2026-04-01"}
	require.NoError(t, r.cycles.Create(ctx, other), "another tenant may reuse the id")

	ok, err := r.cycles.Close(ctx, c.ID, domain.CyclePaid, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.cycles.Close(ctx, c.ID, domain.CycleCancelled, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "closing twice is a no-op")

	_, err = r.cycles.GetActive(ctx, "t1", "INV-1")
	assert.ErrorIs(t, err, domain.ErrCycleNotFound)
	require.NoError(t, r.cycles.Create(ctx, &domain.Cycle{Tenant: "t1", ExternalBillingID: "INV-1", Phone: "+5511", DueDate: "2026-04-01"}))

	got, err := r.cycles.Get(ctx, "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CyclePaid, got.Status)
	assert.NotNil(t, got.ClosedAt)
	assert.Equal(t, "R$ 99,90", got.BillingData["valor"])
}

func TestCycle_UpdateDetailsAndCounters(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCycle(t, r, "INV-2")

	c.DueDate = "2026-03-25"
	c.NotifyAfterDue = true
	c.BillingData = map[string]any{"valor": "R$ 120,00"}
	require.NoError(t, r.cycles.UpdateDetails(ctx, c))
	require.NoError(t, r.cycles.SetTotal(ctx, c.ID, 4))
	require.NoError(t, r.cycles.IncrementSent(ctx, c.ID))

	got, err := r.cycles.GetActive(ctx, "t1", "INV-2")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-25", got.DueDate)
	assert.True(t, got.NotifyAfterDue)
	assert.Equal(t, "R$ 120,00", got.BillingData["valor"])
	assert.Equal(t, 4, got.TotalMessages)
	assert.Equal(t, 1, got.SentMessages)

	list, err := r.cycles.List(ctx, "t1", domain.CycleActive, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEmissions_ClaimIsExclusive(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCycle(t, r, "INV-3")
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.emissions.ReplacePending(ctx, c.ID, []*domain.Emission{
		{Tenant: "t1", OffsetDays: -3, SendAt: now.Add(-24 * time.Hour)},
		{Tenant: "t1", OffsetDays: -1, SendAt: now.Add(-time.Hour)},
		{Tenant: "t1", OffsetDays: 0, SendAt: now.Add(48 * time.Hour)},
	}))

	first, err := r.emissions.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, -3, first[0].OffsetDays)
	assert.Equal(t, domain.EmissionSending, first[0].Status)

	again, err := r.emissions.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, r.emissions.MarkSent(ctx, first[0].ID, "m1", now))
	assert.ErrorIs(t, r.emissions.MarkSent(ctx, first[0].ID, "m1", now), domain.ErrEmissionNotFound)
	require.NoError(t, r.emissions.MarkFailed(ctx, first[1].ID, "invalid phone"))

	open, err := r.emissions.CountOpen(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	list, err := r.emissions.ListByCycle(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.EmissionSent, list[0].Status)
	assert.True(t, list[0].NotificationSent)
	assert.Equal(t, "m1", *list[0].MessageID)
	assert.Equal(t, domain.EmissionFailed, list[1].Status)
	assert.Equal(t, "invalid phone", list[1].Error)
}

func TestEmissions_ReplaceKeepsFiredAndCancelStopsTheRest(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCycle(t, r, "INV-4")
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.emissions.ReplacePending(ctx, c.ID, []*domain.Emission{
		{Tenant: "t1", OffsetDays: -3, SendAt: now.Add(-time.Hour)},
		{Tenant: "t1", OffsetDays: 0, SendAt: now.Add(time.Hour)},
	}))
	claimed, err := r.emissions.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, r.emissions.MarkSent(ctx, claimed[0].ID, "m1", now))

	require.NoError(t, r.emissions.ReplacePending(ctx, c.ID, []*domain.Emission{
		{Tenant: "t1", OffsetDays: 1, SendAt: now.Add(24 * time.Hour)},
		{Tenant: "t1", OffsetDays: 3, SendAt: now.Add(72 * time.Hour)},
	}))
	list, err := r.emissions.ListByCycle(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.EmissionSent, list[0].Status)

	n, err := r.emissions.CancelPending(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	open, err := r.emissions.CountOpen(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestEmissions_ReleaseStale(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCycle(t, r, "INV-5")
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.emissions.ReplacePending(ctx, c.ID, []*domain.Emission{
		{Tenant: "t1", SendAt: now.Add(-time.Hour)},
	}))
	claimed, err := r.emissions.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := r.emissions.ReleaseStale(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "fresh claims stay")

	n, err = r.emissions.ReleaseStale(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claimed, err = r.emissions.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestPlans_Upsert(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	p, err := r.plans.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, r.plans.Save(ctx, &domain.Plan{Tenant: "t1", Steps: []domain.PlanStep{{OffsetDays: -2, Template: "a"}}}))
	require.NoError(t, r.plans.Save(ctx, &domain.Plan{Tenant: "t1", Steps: []domain.PlanStep{{OffsetDays: 5, Template: "b"}}}))

	p, err = r.plans.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []domain.PlanStep{{OffsetDays: 5, Template: "b"}}, p.Steps)
}
