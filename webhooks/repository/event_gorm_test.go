package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/webhooks/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *EventGormRepository {
	t.Helper()
	db := dbtest.Open(t)
	repo := NewEventGormRepository(db)
	dbtest.Migrate(t, repo)
	return repo
}

func TestCreate_SameDedupeKeyReturnsStoredRow(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	first := &domain.Event{EventID: "e1", DedupeKey: "k1", Tenant: "t1", InstanceName: "main",
		Event: domain.EventMessagesUpsert, Payload: map[string]any{"data": map[string]any{"x": 1.0}}}
	stored, created, err := repo.Create(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.StatusPending, stored.Status)

	again, created, err := repo.Create(ctx, &domain.Event{EventID: "e2", DedupeKey: "k1", Event: domain.EventMessagesUpsert})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "e1", again.EventID)
	assert.Equal(t, 1.0, again.Payload["data"].(map[string]any)["x"])
}

func TestMarkErrorThenProcessed(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	e, _, err := repo.Create(ctx, &domain.Event{EventID: "e1", DedupeKey: "k1", Tenant: "t1", Event: "x"})
	require.NoError(t, err)

	require.NoError(t, repo.MarkError(ctx, e.ID, "boom"))
	require.NoError(t, repo.MarkError(ctx, e.ID, "boom again"))
	got, err := repo.GetByEventID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "boom again", got.Error)

	require.NoError(t, repo.MarkProcessed(ctx, e.ID, time.Now()))
	got, err = repo.GetByEventID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, got.Status)
	assert.Empty(t, got.Error)
	assert.NotNil(t, got.ProcessedAt)

	assert.ErrorIs(t, repo.MarkProcessed(ctx, "missing", time.Now()), domain.ErrEventNotFound)
	_, err = repo.GetByEventID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestListAndReprocessable(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	mk := func(id, tenant, event string, created time.Time) *domain.Event {
		e, _, err := repo.Create(ctx, &domain.Event{EventID: id, DedupeKey: id, Tenant: tenant, Event: event, CreatedAt: created})
		require.NoError(t, err)
		return e
	}
	stale := mk("stale", "t1", domain.EventMessagesUpsert, old)
	mk("fresh", "t1", domain.EventMessagesUpdate, time.Now())
	failed := mk("failed", "t1", domain.EventMessagesUpsert, time.Now())
	mk("other", "t2", domain.EventMessagesUpsert, old)
	require.NoError(t, repo.MarkError(ctx, failed.ID, "x"))

	all, err := repo.List(ctx, "t1", domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	upserts, err := repo.List(ctx, "t1", domain.Filter{Event: domain.EventMessagesUpsert, Status: domain.StatusError})
	require.NoError(t, err)
	require.Len(t, upserts, 1)
	assert.Equal(t, "failed", upserts[0].EventID)

	due, err := repo.Reprocessable(ctx, "t1", time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	ids := []string{}
	for _, e := range due {
		ids = append(ids, e.EventID)
	}
	assert.ElementsMatch(t, []string{stale.EventID, failed.EventID}, ids)
}

func TestSetPendingFillsTenant(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	e, _, err := repo.Create(ctx, &domain.Event{EventID: "e1", DedupeKey: "k1", Event: "x", Status: domain.StatusError})
	require.NoError(t, err)

	require.NoError(t, repo.SetPending(ctx, e.ID, "t9"))
	got, err := repo.GetByEventID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "t9", got.Tenant)
	assert.Equal(t, domain.StatusPending, got.Status)
}
