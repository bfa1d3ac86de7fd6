package application

import (
	"context"
	"testing"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	thumbsUp = "\U0001F44D"
	heart    = "\u2764\ufe0f"
)

func TestReact_TogglesAndReplaces(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	msg := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})

	got, err := f.svc.React(ctx, tenant, "u1", msg.ID, thumbsUp)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, thumbsUp, got[0].Emoji)
	assert.Equal(t, "+5511900000000", got[0].Reactor)

	calls := f.gw.Called("SendReaction")
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"5511988887777@s.whatsapp.net", "IN1", false, thumbsUp}, calls[0].Args)

	// a different emoji replaces: clear upstream, then set
	got, err = f.svc.React(ctx, tenant, "u1", msg.ID, heart)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, heart, got[0].Emoji)
	calls = f.gw.Called("SendReaction")
	require.Len(t, calls, 3)
	assert.Equal(t, "", calls[1].Args[3])
	assert.Equal(t, heart, calls[2].Args[3])

	// the same emoji again removes it
	got, err = f.svc.React(ctx, tenant, "u1", msg.ID, heart)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, ok := f.bc.Last(broadcast.EventMessageReactionUpdate)
	assert.True(t, ok)
}

func TestReact_PaddedEmojiMatchesStoredOne(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	msg := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})

	got, err := f.svc.React(ctx, tenant, "u1", msg.ID, " "+thumbsUp+"\n")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, thumbsUp, got[0].Emoji)
	calls := f.gw.Called("SendReaction")
	require.Len(t, calls, 1)
	assert.Equal(t, thumbsUp, calls[0].Args[3])

	// the bare emoji toggles the padded one off
	got, err = f.svc.React(ctx, tenant, "u1", msg.ID, thumbsUp)
	require.NoError(t, err)
	assert.Empty(t, got)
	calls = f.gw.Called("SendReaction")
	require.Len(t, calls, 2)
	assert.Equal(t, "", calls[1].Args[3])
}

func TestReact_UpstreamFailureLeavesRowsAlone(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	msg := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})
	f.gw.SetErr("SendReaction", assert.AnError)

	_, err := f.svc.React(ctx, tenant, "u1", msg.ID, thumbsUp)
	assert.ErrorIs(t, err, assert.AnError)
	list, err := f.svc.Reactions(ctx, tenant, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReact_Rejections(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	pending := f.outgoing(t, "+5511988887777", "ainda nao enviada")

	_, err := f.svc.React(ctx, tenant, "u1", pending.ID, "ok")
	assert.ErrorIs(t, err, domain.ErrInvalidEmoji)
	_, err = f.svc.React(ctx, tenant, "u1", pending.ID, thumbsUp)
	assert.ErrorIs(t, err, domain.ErrNoGatewayID)
	_, err = f.svc.React(ctx, tenant, "u1", "missing", thumbsUp)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestReact_OwnMessageIsFromMe(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	msg := sentMessage(t, f, OutgoingInput{SenderUserID: strPtr("u1")})

	_, err := f.svc.React(ctx, tenant, "u1", msg.ID, thumbsUp)
	require.NoError(t, err)
	calls := f.gw.Called("SendReaction")
	require.Len(t, calls, 1)
	assert.Equal(t, "5511988887777@s.whatsapp.net", calls[0].Args[0])
	assert.Equal(t, true, calls[0].Args[2])
}

func TestApplyInboundReaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})

	require.NoError(t, f.svc.ApplyInboundReaction(ctx, tenant, "IN1", "+5511988887777", thumbsUp))
	require.NoError(t, f.svc.ApplyInboundReaction(ctx, tenant, "IN1", "+5511988887777", thumbsUp))
	list, err := f.svc.Reactions(ctx, tenant, msg.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.svc.ApplyInboundReaction(ctx, tenant, "IN1", "+5511988887777", heart))
	list, err = f.svc.Reactions(ctx, tenant, msg.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, heart, list[0].Emoji)

	require.NoError(t, f.svc.ApplyInboundReaction(ctx, tenant, "IN1", "+5511988887777", ""))
	list, err = f.svc.Reactions(ctx, tenant, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.NoError(t, f.svc.ApplyInboundReaction(ctx, tenant, "UNKNOWN", "+5511988887777", thumbsUp))
}
