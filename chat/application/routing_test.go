package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_NoteGreetingAndRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dept, err := f.svc.CreateDepartment(ctx, tenant, DepartmentInput{Name: "Financeiro", TransferMessage: "Olá! Aqui é o financeiro."})
	require.NoError(t, err)
	in := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "boleto?"})
	f.advance(time.Second)

	conv, err := f.svc.Transfer(ctx, tenant, "u1", in.ConversationID, TransferInput{DepartmentID: &dept.ID, AssignedUserID: strPtr("u2")})
	require.NoError(t, err)
	assert.Equal(t, dept.ID, *conv.DepartmentID)
	assert.Equal(t, "u2", *conv.AssignedUserID)

	msgs, err := f.svc.ListMessages(ctx, tenant, in.ConversationID, 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, in.ID, msgs[0].ID)
	var note, greeting *domain.Message
	for _, m := range msgs[1:] {
		if m.IsInternal {
			note = m
		} else {
			greeting = m
		}
	}
	require.NotNil(t, note)
	require.NotNil(t, greeting)
	assert.Equal(t, "Conversa transferida para Financeiro", note.Content)
	assert.Equal(t, domain.StatusPending, greeting.Status)
	assert.Equal(t, domain.OriginSystem, greeting.Origin)

	queued := f.bus.On(jobs.StreamChatSend)
	require.Len(t, queued, 1)
	var job jobs.SendMessage
	require.NoError(t, json.Unmarshal(queued[0].Body, &job))
	assert.Equal(t, greeting.ID, job.MessageID)

	assert.Contains(t, f.bc.Types(broadcast.ConversationRoom(tenant, in.ConversationID)), broadcast.EventConversationTransferred)
}

func TestTransfer_WithoutDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})
	f.advance(time.Second)

	_, err := f.svc.Transfer(ctx, tenant, "u1", in.ConversationID, TransferInput{AssignedUserID: strPtr("u2")})
	require.NoError(t, err)
	msgs, err := f.svc.ListMessages(ctx, tenant, in.ConversationID, 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Conversa transferida para outro atendente", msgs[1].Content)
	assert.Empty(t, f.bus.On(jobs.StreamChatSend))

	_, err = f.svc.Transfer(ctx, tenant, "u1", in.ConversationID, TransferInput{DepartmentID: strPtr("nope")})
	assert.ErrorIs(t, err, domain.ErrDepartmentNotFound)
}

func TestAssignAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})
	conv, err := f.convs.Get(ctx, tenant, in.ConversationID)
	require.NoError(t, err)
	require.Equal(t, domain.ConversationPending, conv.Status)

	conv, err = f.svc.Assign(ctx, tenant, in.ConversationID, strPtr("u1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationOpen, conv.Status)
	assert.Equal(t, "u1", *conv.AssignedUserID)

	dept, err := f.svc.CreateDepartment(ctx, tenant, DepartmentInput{Name: "Suporte"})
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, tenant, "u1", in.ConversationID, TransferInput{DepartmentID: &dept.ID})
	require.NoError(t, err)

	conv, err = f.svc.Close(ctx, tenant, in.ConversationID)
	require.NoError(t, err)
	stored, err := f.convs.Get(ctx, tenant, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationClosed, stored.Status)
	assert.Nil(t, stored.DepartmentID)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	sent := sentMessage(t, f, OutgoingInput{SenderUserID: strPtr("u1")})
	in := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})

	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, tenant, in.ID), domain.ErrNotDeletable)

	require.NoError(t, f.svc.DeleteMessage(ctx, tenant, sent.ID))
	calls := f.gw.Called("DeleteForEveryone")
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"5511988887777@s.whatsapp.net", "GW0001", true}, calls[0].Args)
	assert.True(t, f.reload(t, sent.ID).IsDeleted)

	// already deleted
	require.NoError(t, f.svc.DeleteMessage(ctx, tenant, sent.ID))
	assert.Len(t, f.gw.Called("DeleteForEveryone"), 1)
}

func TestDeleteMessage_GoneUpstreamStillDeletes(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()
	sent := sentMessage(t, f, OutgoingInput{SenderUserID: strPtr("u1")})
	f.gw.SetErr("DeleteForEveryone", gateway.ErrGone)

	require.NoError(t, f.svc.DeleteMessage(ctx, tenant, sent.ID))
	assert.True(t, f.reload(t, sent.ID).IsDeleted)
}

func TestApplyRemoteDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.inbound(t, InboundMessage{RemoteJID: "5511988887777@s.whatsapp.net", GatewayID: "IN1", Content: "oi"})

	require.NoError(t, f.svc.ApplyRemoteDelete(ctx, tenant, "IN1"))
	assert.True(t, f.reload(t, in.ID).IsDeleted)
	ev, ok := f.bc.Last(broadcast.EventMessageDeleted)
	require.True(t, ok)
	assert.Equal(t, in.ID, ev.Data.(map[string]any)["message_id"])

	assert.NoError(t, f.svc.ApplyRemoteDelete(ctx, tenant, "UNKNOWN"))
}

func TestDepartmentsCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDepartment(ctx, tenant, DepartmentInput{Name: "  "})
	var verr pkgError.ValidationError
	assert.ErrorAs(t, err, &verr)

	d, err := f.svc.CreateDepartment(ctx, tenant, DepartmentInput{Name: "Vendas"})
	require.NoError(t, err)
	d, err = f.svc.UpdateDepartment(ctx, tenant, d.ID, DepartmentInput{TransferMessage: "Oi, vendas aqui"})
	require.NoError(t, err)
	assert.Equal(t, "Vendas", d.Name)

	list, err := f.svc.ListDepartments(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Oi, vendas aqui", list[0].TransferMessage)

	require.NoError(t, f.svc.DeleteDepartment(ctx, tenant, d.ID))
	_, err = f.svc.GetDepartment(ctx, tenant, d.ID)
	assert.ErrorIs(t, err, domain.ErrDepartmentNotFound)
}
