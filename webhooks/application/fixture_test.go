package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatDomain "github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/core/jobs"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/AzielCF/az-engage/webhooks/repository"
	"github.com/stretchr/testify/require"
)

type fakeInstances struct {
	mu      sync.Mutex
	tenants map[string]string
	updates [][3]string
}

func (f *fakeInstances) ResolveTenant(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tenants[name], nil
}

func (f *fakeInstances) GetByName(_ context.Context, name string) (*instancesDomain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[name]
	if !ok {
		return nil, instancesDomain.ErrInstanceNotFound
	}
	return &instancesDomain.Instance{ID: "inst-" + name, Tenant: t, InstanceName: name}, nil
}

func (f *fakeInstances) ApplyConnectionUpdate(_ context.Context, name, state, wuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, [3]string{name, state, wuid})
	return nil
}

type statusCall struct {
	tenant string
	id     string
	raw    any
	at     time.Time
}

type fakeChat struct {
	inbound   []chatApp.InboundMessage
	statuses  []statusCall
	reactions [][3]string
	deletes   []string
	err       error
}

func (f *fakeChat) RecordInbound(_ context.Context, in chatApp.InboundMessage) (*chatDomain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inbound = append(f.inbound, in)
	return &chatDomain.Message{ID: "m" + in.GatewayID}, nil
}

func (f *fakeChat) ApplyStatus(_ context.Context, tenant, id string, raw any, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.statuses = append(f.statuses, statusCall{tenant: tenant, id: id, raw: raw, at: at})
	return nil
}

func (f *fakeChat) ApplyInboundReaction(_ context.Context, _, target, reactor, emoji string) error {
	f.reactions = append(f.reactions, [3]string{target, reactor, emoji})
	return f.err
}

func (f *fakeChat) ApplyRemoteDelete(_ context.Context, _, id string) error {
	f.deletes = append(f.deletes, id)
	return f.err
}

type fixture struct {
	svc       *WebhookService
	repo      *repository.EventGormRepository
	bus       *jobs.Recorder
	cache     *kvcache.Memory
	chat      *fakeChat
	instances *fakeInstances
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	repo := repository.NewEventGormRepository(db)
	dbtest.Migrate(t, repo)

	f := &fixture{
		repo:      repo,
		bus:       &jobs.Recorder{},
		cache:     kvcache.NewMemory(),
		chat:      &fakeChat{},
		instances: &fakeInstances{tenants: map[string]string{"main": "t1"}},
		clock:     time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}
	cfg := &config.Config{}
	cfg.Webhook.AllowedOrigins = []string{"127.0.0.1"}
	f.svc = NewWebhookService(Deps{
		Events:    repo,
		Instances: f.instances,
		Chat:      f.chat,
		Bus:       f.bus,
		Cache:     f.cache,
		Config:    cfg,
	})
	f.svc.SetClock(func() time.Time { return f.clock })
	return f
}

func body(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func upsertPayload(id, remote string, fromMe bool, message map[string]any) map[string]any {
	return map[string]any{
		"event":      "messages.upsert",
		"instance":   "main",
		"server_url": "http://gw",
		"data": map[string]any{
			"key":              map[string]any{"remoteJid": remote, "fromMe": fromMe, "id": id},
			"pushName":         "Ana",
			"message":          message,
			"messageTimestamp": 1773151200.0,
		},
	}
}

// ingestAndRun ingests raw and runs the queued job, as the worker would.
func (f *fixture) ingestAndRun(t *testing.T, raw []byte) *IngestResult {
	t.Helper()
	res, err := f.svc.Ingest(context.Background(), raw)
	require.NoError(t, err)
	require.True(t, res.Queued)
	err = f.svc.HandleWebhook(context.Background(), jobs.WebhookReceived{EventID: res.EventID},
		jobs.Delivery{Stream: jobs.StreamWebhook, MaxRetries: 3})
	require.NoError(t, err)
	return res
}
