package application

import (
	"context"
	"testing"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendOne(t *testing.T, f *fixture) (*domain.Campaign, *domain.CampaignContact) {
	t.Helper()
	ctx := context.Background()
	f.instance(t, "main")
	c := f.campaign(t, CreateInput{}, "+5511988887701")
	_, err := f.svc.Start(ctx, tenant, c.ID)
	require.NoError(t, err)
	f.drain(t, c.ID)

	sent, err := f.contacts.List(ctx, c.ID, domain.ContactSent, 10, 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	return c, sent[0]
}

func TestDeliveryReceipts_AdvanceContactAndCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, contact := sendOne(t, f)

	require.NoError(t, f.chat.ApplyStatus(ctx, tenant, *contact.GatewayMessageID, "DELIVERY_ACK", baseTime))
	got, err := f.contacts.Get(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.Equal(t, 1, f.reload(t, c.ID).DeliveredCount)

	require.NoError(t, f.chat.ApplyStatus(ctx, tenant, *contact.GatewayMessageID, "READ", baseTime))
	got, err = f.contacts.Get(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactRead, got.Status)

	stored := f.reload(t, c.ID)
	assert.Equal(t, 1, stored.SentCount)
	assert.Equal(t, 1, stored.DeliveredCount)
	assert.Equal(t, 1, stored.ReadCount)
}

func TestDeliveryReceipts_LateDeliveryNeverRegresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, contact := sendOne(t, f)

	require.NoError(t, f.chat.ApplyStatus(ctx, tenant, *contact.GatewayMessageID, 4, baseTime))
	require.NoError(t, f.chat.ApplyStatus(ctx, tenant, *contact.GatewayMessageID, 3, baseTime))

	got, err := f.contacts.Get(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactRead, got.Status)
	assert.Equal(t, 1, f.reload(t, c.ID).ReadCount)
}
