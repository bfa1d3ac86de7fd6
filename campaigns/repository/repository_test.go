package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repos struct {
	campaigns *CampaignGormRepository
	contacts  *ContactGormRepository
	logs      *LogGormRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	db := dbtest.Open(t)
	r := repos{
		campaigns: NewCampaignGormRepository(db),
		contacts:  NewContactGormRepository(db),
		logs:      NewLogGormRepository(db),
	}
	dbtest.Migrate(t, r.campaigns, r.contacts, r.logs)
	return r
}

func seedCampaign(t *testing.T, r repos) *domain.Campaign {
	t.Helper()
	c := &domain.Campaign{
		Tenant:       "t1",
		Name:         "Black Friday",
		RotationMode: domain.RotationRoundRobin,
		IntervalMin:  1,
		IntervalMax:  2,
		Messages:     []*domain.Variant{{Content: "A"}, {Content: "B"}},
		InstanceIDs:  []string{"i2", "i1", "i1"},
	}
	require.NoError(t, r.campaigns.Create(context.Background(), c))
	return c
}

func TestCampaignCreate_LoadsVariantsAndInstances(t *testing.T) {
	r := newRepos(t)
	c := seedCampaign(t, r)

	got, err := r.campaigns.Get(context.Background(), "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "A", got.Messages[0].Content)
	assert.Equal(t, 1, got.Messages[1].Position)
	assert.Equal(t, []string{"i1", "i2"}, got.InstanceIDs)

	_, err = r.campaigns.Get(context.Background(), "t2", c.ID)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestTransition_OnlyFromAllowedStatus(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCampaign(t, r)

	ok, err := r.campaigns.Transition(ctx, c.ID, []domain.Status{domain.StatusPaused}, domain.StatusRunning, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Now()
	ok, err = r.campaigns.Transition(ctx, c.ID, []domain.Status{domain.StatusDraft}, domain.StatusRunning,
		map[string]any{"started_at": now})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := r.campaigns.Get(ctx, "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestPickVariant_LeastUsedFirst(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCampaign(t, r)

	var picked []string
	for i := 0; i < 4; i++ {
		v, err := r.campaigns.PickVariant(ctx, c.ID)
		require.NoError(t, err)
		picked = append(picked, v.Content)
	}
	assert.Equal(t, []string{"A", "B", "A", "B"}, picked)

	require.NoError(t, r.campaigns.ReplaceVariants(ctx, c.ID, nil))
	_, err := r.campaigns.PickVariant(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNoVariants)
}

func TestListDueScheduled(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := &domain.Campaign{Tenant: "t1", Name: "due", Status: domain.StatusScheduled, ScheduledAt: &past}
	later := &domain.Campaign{Tenant: "t1", Name: "later", Status: domain.StatusScheduled, ScheduledAt: &future}
	require.NoError(t, r.campaigns.Create(ctx, due))
	require.NoError(t, r.campaigns.Create(ctx, later))

	got, err := r.campaigns.ListDueScheduled(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func addContacts(t *testing.T, r repos, campaignID string, phones ...string) []*domain.CampaignContact {
	t.Helper()
	var out []*domain.CampaignContact
	for _, p := range phones {
		out = append(out, &domain.CampaignContact{Tenant: "t1", CampaignID: campaignID, ContactID: "c" + p, Phone: p})
	}
	n, err := r.contacts.Add(context.Background(), out)
	require.NoError(t, err)
	require.Equal(t, len(phones), n)
	return out
}

func TestContactAdd_SkipsContactAlreadyInCampaign(t *testing.T) {
	r := newRepos(t)
	c := seedCampaign(t, r)
	addContacts(t, r, c.ID, "+5511", "+5522")

	n, err := r.contacts.Add(context.Background(), []*domain.CampaignContact{
		{Tenant: "t1", CampaignID: c.ID, ContactID: "c+5511", Phone: "+5511"},
		{Tenant: "t1", CampaignID: c.ID, ContactID: "c+5533", Phone: "+5533"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counters, err := r.contacts.Count(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, counters.Total)
	assert.Equal(t, 3, counters.Pending)
}

func TestContactLifecycle(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCampaign(t, r)
	added := addContacts(t, r, c.ID, "+5511", "+5522")

	next, err := r.contacts.NextPending(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, added[0].ID, next.ID)

	now := time.Now()
	ok, err := r.contacts.Claim(ctx, next.ID, "i1", "v1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.contacts.Claim(ctx, next.ID, "i1", "v1", now)
	require.NoError(t, err)
	assert.False(t, ok, "a contact is claimed once")

	require.NoError(t, r.contacts.MarkSent(ctx, next.ID, "m1", "GW1", now))
	ok, err = r.contacts.Advance(ctx, next.ID, domain.ContactRead, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.contacts.Advance(ctx, next.ID, domain.ContactDelivered, now)
	require.NoError(t, err)
	assert.False(t, ok, "status never moves backward")

	got, err := r.contacts.Get(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactRead, got.Status)
	assert.Equal(t, "GW1", *got.GatewayMessageID)
	assert.Equal(t, "i1", *got.InstanceID)

	second, err := r.contacts.NextPending(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, r.contacts.MarkFailed(ctx, second.ID, "", "number invalid", now))

	none, err := r.contacts.NextPending(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	counters, err := r.contacts.Count(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Total: 2, Read: 1, Failed: 1}, counters)

	require.NoError(t, r.campaigns.StoreCounters(ctx, c.ID, counters))
	stored, err := r.campaigns.Get(ctx, "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SentCount)
	assert.Equal(t, 1, stored.DeliveredCount)
	assert.Equal(t, 1, stored.ReadCount)
	assert.Equal(t, 1, stored.FailedCount)
}

func TestResetSending(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCampaign(t, r)
	added := addContacts(t, r, c.ID, "+5511", "+5522")

	_, err := r.contacts.Claim(ctx, added[0].ID, "i1", "v1", time.Now())
	require.NoError(t, err)

	n, err := r.contacts.ResetSending(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := r.contacts.Get(ctx, added[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactPending, got.Status)
	assert.Nil(t, got.SendingAt)
}

func TestLogs_NewestFirstAndFilteredByType(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCampaign(t, r)
	base := time.Now()

	require.NoError(t, r.logs.Append(ctx, &domain.Log{Tenant: "t1", CampaignID: c.ID, Type: domain.LogStarted, CreatedAt: base}))
	require.NoError(t, r.logs.Append(ctx, &domain.Log{Tenant: "t1", CampaignID: c.ID, Type: domain.LogMessageSent,
		Details: map[string]any{"phone": "+5511"}, DurationMs: 12, CreatedAt: base.Add(time.Second)}))

	all, err := r.logs.List(ctx, c.ID, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.LogMessageSent, all[0].Type)
	assert.Equal(t, "+5511", all[0].Details["phone"])
	assert.Equal(t, domain.SeverityInfo, all[1].Severity)

	sent, err := r.logs.List(ctx, c.ID, domain.LogStarted, 10, 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
}

func TestDelete_RemovesChildren(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := seedCampaign(t, r)
	addContacts(t, r, c.ID, "+5511")
	require.NoError(t, r.logs.Append(ctx, &domain.Log{Tenant: "t1", CampaignID: c.ID, Type: domain.LogStarted}))

	require.NoError(t, r.campaigns.Delete(ctx, "t1", c.ID))
	assert.ErrorIs(t, r.campaigns.Delete(ctx, "t1", c.ID), domain.ErrCampaignNotFound)

	counters, err := r.contacts.Count(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, counters.Total)
	logs, err := r.logs.List(ctx, c.ID, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
