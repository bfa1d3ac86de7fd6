package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/billing/domain"
	"github.com/AzielCF/az-engage/billing/repository"
	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatRepo "github.com/AzielCF/az-engage/chat/repository"
	contactsRepo "github.com/AzielCF/az-engage/contacts/repository"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	instancesRepo "github.com/AzielCF/az-engage/instances/repository"
	"github.com/AzielCF/az-engage/pkg/crypto"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const tenant = "t1"

// 2026-03-10 09:00 in Sao Paulo
var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	bus      *jobs.Recorder
	messages *chatRepo.MessageGormRepository
	svc      *BillingService
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, crypto.SetEncryptionKey("test-secret"))
	db := dbtest.Open(t)

	instRepo := instancesRepo.NewInstanceGormRepository(db)
	phonebook := contactsRepo.NewContactGormRepository(db)
	convs := chatRepo.NewConversationGormRepository(db)
	messages := chatRepo.NewMessageGormRepository(db)
	atts := chatRepo.NewAttachmentGormRepository(db)
	reactions := chatRepo.NewReactionGormRepository(db)
	depts := chatRepo.NewDepartmentGormRepository(db)
	cycles := repository.NewCycleGormRepository(db)
	emissions := repository.NewEmissionGormRepository(db)
	plans := repository.NewPlanGormRepository(db)
	dbtest.Migrate(t, instRepo, phonebook, depts, convs, messages, atts, reactions, cycles, emissions, plans)

	cfg := &config.Config{App: config.AppConfig{Timezone: "America/Sao_Paulo"}}
	cfg.Billing = config.BillingConfig{SendHour: 9, DefaultPlan: "-3,-1,0,1,3,7", MaxBatch: 10000}

	f := &fixture{db: db, bus: &jobs.Recorder{}, messages: messages, clock: baseTime}
	gw := gateway.NewFake()
	instances := instancesApp.NewInstanceService(instRepo, gw, nil, cfg)
	chat := chatApp.NewChatService(chatApp.Deps{
		DB:            db,
		Conversations: convs,
		Messages:      messages,
		Attachments:   atts,
		Reactions:     reactions,
		Departments:   depts,
		Contacts:      phonebook,
		Instances:     instances,
		Gateway:       gw,
		Bus:           f.bus,
		Cache:         kvcache.NewMemory(),
		Config:        cfg,
	})
	f.svc = NewBillingService(Deps{
		DB:        db,
		Cycles:    cycles,
		Emissions: emissions,
		Plans:     plans,
		Chat:      chat,
		Config:    cfg,
	})
	f.svc.SetClock(func() time.Time { return f.clock })
	return f
}

func boolPtr(b bool) *bool { return &b }

func item(external, due string) CycleInput {
	return CycleInput{
		ExternalBillingID: external,
		Phone:             "+55 11 98888-7701",
		Name:              "Ana Souza",
		DueDate:           due,
		BillingData:       map[string]any{"valor": "R$ 99,90", "link_pagamento": "https://pay.test/1"},
	}
}

func (f *fixture) cycle(t *testing.T, external string) *domain.Cycle {
	t.Helper()
	list, err := f.svc.List(context.Background(), tenant, "", 100, 0)
	require.NoError(t, err)
	for _, c := range list {
		if c.ExternalBillingID == external && c.Status == domain.CycleActive {
			got, err := f.svc.Get(context.Background(), tenant, c.ID)
			require.NoError(t, err)
			return got
		}
	}
	t.Fatalf("no active cycle %s", external)
	return nil
}

func statuses(es []*domain.Emission) map[int]domain.EmissionStatus {
	out := map[int]domain.EmissionStatus{}
	for _, e := range es {
		out[e.OffsetDays] = e.Status
	}
	return out
}

func TestCreateBatch_PlansTheDefaultSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	onlyBefore := item("INV-2", "2026-03-20")
	onlyBefore.NotifyAfterDue = boolPtr(false)
	res, err := f.svc.CreateBatch(ctx, tenant, []CycleInput{item("INV-1", "2026-03-20"), onlyBefore})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 6+3, res.Emissions)

	c := f.cycle(t, "INV-1")
	assert.Equal(t, "+5511988887701", c.Phone)
	assert.Equal(t, 6, c.TotalMessages)
	require.Len(t, c.Emissions, 6)
	// D-3 at 09:00 local
	assert.Equal(t, time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC), c.Emissions[0].SendAt.UTC())

	c = f.cycle(t, "INV-2")
	assert.Equal(t, map[int]domain.EmissionStatus{-3: domain.EmissionPending, -1: domain.EmissionPending, 0: domain.EmissionPending}, statuses(c.Emissions))
}

func TestCreateBatch_UpsertReplansUnfiredReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateBatch(ctx, tenant, []CycleInput{item("INV-1", "2026-03-12")})
	require.NoError(t, err)

	// D-1 fires on the 11th
	f.clock = time.Date(2026, 3, 11, 12, 30, 0, 0, time.UTC)
	fired, err := f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	moved := item("INV-1", "2026-03-30")
	moved.BillingData = map[string]any{"valor": "R$ 120,00"}
	res, err := f.svc.CreateBatch(ctx, tenant, []CycleInput{moved})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 6, res.Emissions)

	c := f.cycle(t, "INV-1")
	assert.Equal(t, "2026-03-30", c.DueDate)
	assert.Equal(t, "R$ 120,00", c.BillingData["valor"])
	assert.Len(t, c.Emissions, 7, "the fired reminder is kept")
	assert.Equal(t, 7, c.TotalMessages)
	assert.Equal(t, domain.EmissionSent, c.Emissions[0].Status)
}

func TestCreateBatch_PastDueWithoutRemindersCompletes(t *testing.T) {
	f := newFixture(t)
	in := item("INV-1", "2026-01-01")
	in.NotifyAfterDue = boolPtr(false)
	res, err := f.svc.CreateBatch(context.Background(), tenant, []CycleInput{in})
	require.NoError(t, err)
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, domain.CycleCompleted, res.Cycles[0].Status)
	assert.Zero(t, res.Emissions)
}

func TestTick_QueuesRenderedReminderAndCompletesCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SavePlan(ctx, tenant, []domain.PlanStep{
		{OffsetDays: 0},
		{OffsetDays: 1, Template: "{{nome}}, {{valor}} em aberto desde {{vencimento}} ({{plano}})"},
	})
	require.NoError(t, err)
	in := item("INV-1", "2026-03-10")
	in.BillingData = map[string]any{"valor": 99.9, "plano": "Gold"}
	_, err = f.svc.CreateBatch(ctx, tenant, []CycleInput{in})
	require.NoError(t, err)

	// D0 at 09:00 was not after the creation time, so only D+1 is planned
	c := f.cycle(t, "INV-1")
	require.Len(t, c.Emissions, 1)

	fired, err := f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired, "nothing is due yet")

	f.clock = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	fired, err = f.svc.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	sends := f.bus.On(jobs.StreamChatSend)
	require.Len(t, sends, 1)
	var job jobs.SendMessage
	require.NoError(t, json.Unmarshal(sends[0].Body, &job))
	msg, err := f.messages.Get(ctx, tenant, job.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza, 99.90 em aberto desde 10/03/2026 (Gold)", msg.Content)
	require.NotNil(t, msg.BillingEmissionID)
	assert.Equal(t, c.Emissions[0].ID, *msg.BillingEmissionID)

	got, err := f.svc.Get(ctx, tenant, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleCompleted, got.Status)
	assert.Equal(t, 1, got.SentMessages)
	assert.True(t, got.Emissions[0].NotificationSent)
	assert.Equal(t, job.MessageID, *got.Emissions[0].MessageID)

	fired, err = f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Len(t, f.bus.On(jobs.StreamChatSend), 1)
}

func TestTick_InvalidPhoneFailsTheReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := item("INV-1", "2026-03-12")
	in.Phone = "not a phone"
	_, err := f.svc.CreateBatch(ctx, tenant, []CycleInput{in})
	require.NoError(t, err)

	f.clock = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	fired, err := f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)

	c := f.cycle(t, "INV-1")
	assert.Equal(t, domain.EmissionFailed, c.Emissions[0].Status)
	assert.NotEmpty(t, c.Emissions[0].Error)
	assert.Empty(t, f.bus.On(jobs.StreamChatSend))
}

func TestTick_QueueOutageReleasesTheReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateBatch(ctx, tenant, []CycleInput{item("INV-1", "2026-03-12")})
	require.NoError(t, err)

	f.clock = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	f.bus.Err = errors.New("broker down")
	fired, err := f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)

	c := f.cycle(t, "INV-1")
	assert.Equal(t, domain.EmissionPending, c.Emissions[0].Status)
	var stored int64
	require.NoError(t, f.db.Table("messages").Count(&stored).Error)
	assert.Zero(t, stored, "the message is rolled back with the claim")

	f.bus.Err = nil
	fired, err = f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestPayAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateBatch(ctx, tenant, []CycleInput{item("INV-1", "2026-03-12"), item("INV-2", "2026-03-12")})
	require.NoError(t, err)

	f.clock = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	_, err = f.svc.Tick(ctx)
	require.NoError(t, err)

	paid, err := f.svc.Pay(ctx, tenant, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CyclePaid, paid.Status)
	st := statuses(paid.Emissions)
	assert.Equal(t, domain.EmissionSent, st[-1], "fired reminders stay")
	assert.Equal(t, domain.EmissionCancelled, st[0])
	assert.Equal(t, domain.EmissionCancelled, st[7])

	_, err = f.svc.Pay(ctx, tenant, "INV-1")
	assert.ErrorIs(t, err, domain.ErrCycleNotFound)

	cancelled, err := f.svc.Cancel(ctx, tenant, "INV-2")
	require.NoError(t, err)
	assert.Equal(t, domain.CycleCancelled, cancelled.Status)

	f.clock = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	fired, err := f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func TestRender_DefaultsMissingKeys(t *testing.T) {
	c := &domain.Cycle{Name: "Ana Souza", DueDate: "2026-03-20"}
	got := Render(domain.TemplateBeforeDue, c)
	assert.Equal(t, "Olá Ana, lembrando que sua fatura de  vence em 20/03/2026. Pague pelo link: ", got)
}
