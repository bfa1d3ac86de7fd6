package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listenerCall struct {
	MessageID string
	Status    domain.MessageStatus
}

type recordingListener struct {
	calls []listenerCall
	err   error
}

func (l *recordingListener) MessageStatusChanged(_ context.Context, msg *domain.Message, status domain.MessageStatus, _ time.Time) error {
	l.calls = append(l.calls, listenerCall{MessageID: msg.ID, Status: status})
	return l.err
}

func sentMessage(t *testing.T, f *fixture, in OutgoingInput) *domain.Message {
	t.Helper()
	ctx := context.Background()
	if in.Tenant == "" {
		in.Tenant = tenant
	}
	if in.Remote == "" && in.ConversationID == "" {
		in.Remote = "+5511988887777"
	}
	if in.Content == "" {
		in.Content = "oi"
	}
	msg, _, err := f.svc.CreateOutgoing(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleSend(ctx, sendJob(msg), delivery(0)))
	got := f.reload(t, msg.ID)
	require.Equal(t, domain.StatusSent, got.Status)
	return got
}

func TestMapGatewayStatus(t *testing.T) {
	cases := []struct {
		raw  any
		want domain.MessageStatus
		ok   bool
	}{
		{"SERVER_ACK", domain.StatusSent, true},
		{"delivery_ack", domain.StatusDelivered, true},
		{"READ", domain.StatusSeen, true},
		{"PLAYED", domain.StatusSeen, true},
		{"3", domain.StatusDelivered, true},
		{float64(4), domain.StatusSeen, true},
		{2, domain.StatusSent, true},
		{int64(1), domain.StatusPending, true},
		{"ERROR", "", false},
		{float64(9), "", false},
		{nil, "", false},
	}
	for _, c := range cases {
		got, ok := MapGatewayStatus(c.raw)
		assert.Equal(t, c.ok, ok, "%v", c.raw)
		assert.Equal(t, c.want, got, "%v", c.raw)
	}
}

func TestApplyStatus_MovesForwardOnly(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	msg := sentMessage(t, f, OutgoingInput{SenderUserID: strPtr("u1")})

	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, "GW0001", "DELIVERY_ACK", time.Time{}))
	got := f.reload(t, msg.ID)
	assert.Equal(t, domain.StatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)

	ev, ok := f.bc.Last(broadcast.EventConversationUpdated)
	require.True(t, ok)
	assert.Equal(t, domain.StatusDelivered, ev.Data.(map[string]any)["message_status"])

	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, "GW0001", float64(4), time.Time{}))
	assert.Equal(t, domain.StatusSeen, f.reload(t, msg.ID).Status)

	// late delivery ack after read
	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, "GW0001", "DELIVERY_ACK", time.Time{}))
	assert.Equal(t, domain.StatusSeen, f.reload(t, msg.ID).Status)
}

func TestApplyStatus_IgnoresUnknownMessagesAndCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.NoError(t, f.svc.ApplyStatus(ctx, tenant, "NOPE", "READ", time.Time{}))
	assert.NoError(t, f.svc.ApplyStatus(ctx, tenant, "NOPE", "WHATEVER", time.Time{}))
	assert.NoError(t, f.svc.ApplyStatus(ctx, tenant, "", "READ", time.Time{}))
	assert.Empty(t, f.bc.Events)
}

func TestApplyStatus_FailedIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	msg := sentMessage(t, f, OutgoingInput{SenderUserID: strPtr("u1")})
	require.NoError(t, f.messages.MarkFailed(ctx, msg.ID, "boom", f.now()))

	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, "GW0001", "READ", time.Time{}))
	assert.Equal(t, domain.StatusFailed, f.reload(t, msg.ID).Status)
}

func TestApplyStatus_NotifiesListenerForCampaignMessages(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	l := &recordingListener{}
	f.svc.SetDeliveryListener(l)

	plain := sentMessage(t, f, OutgoingInput{SenderUserID: strPtr("u1")})
	tagged := sentMessage(t, f, OutgoingInput{Remote: "+5511977776666", CampaignID: strPtr("c1"), CampaignContactID: strPtr("cc1")})

	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, plain.GatewayIDValue(), "DELIVERY_ACK", time.Time{}))
	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, tagged.GatewayIDValue(), "DELIVERY_ACK", time.Time{}))
	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, tagged.GatewayIDValue(), "DELIVERY_ACK", time.Time{}))

	assert.Equal(t, []listenerCall{{MessageID: tagged.ID, Status: domain.StatusDelivered}}, l.calls)
}

func TestApplyStatus_ListenerErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	f.svc.SetDeliveryListener(&recordingListener{err: errors.New("contact row locked")})

	tagged := sentMessage(t, f, OutgoingInput{CampaignID: strPtr("c1"), CampaignContactID: strPtr("cc1")})
	err := f.svc.ApplyStatus(ctx, tenant, tagged.GatewayIDValue(), "READ", time.Time{})
	assert.ErrorContains(t, err, "delivery listener")
	assert.Equal(t, domain.StatusSent, f.reload(t, tagged.ID).Status)
}

func TestApplyStatus_SharedGatewayIDStaysInsideTenant(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	ours := sentMessage(t, f, OutgoingInput{SenderUserID: strPtr("u1")})

	// the other tenant receives the very same key id from the other end of the chat
	theirs := f.inbound(t, InboundMessage{
		Tenant:       "t2",
		InstanceName: "other",
		RemoteJID:    "5511900000000@s.whatsapp.net",
		GatewayID:    ours.GatewayIDValue(),
		Content:      "oi",
	})
	assert.Equal(t, "t2", theirs.Tenant)
	assert.NotEqual(t, ours.ID, theirs.ID)
	assert.Equal(t, domain.Incoming, theirs.Direction)

	require.NoError(t, f.svc.ApplyStatus(ctx, "t2", ours.GatewayIDValue(), "READ", time.Time{}))
	assert.Equal(t, domain.StatusSent, f.reload(t, ours.ID).Status)

	require.NoError(t, f.svc.ApplyStatus(ctx, tenant, ours.GatewayIDValue(), "DELIVERY_ACK", time.Time{}))
	assert.Equal(t, domain.StatusDelivered, f.reload(t, ours.ID).Status)
}
