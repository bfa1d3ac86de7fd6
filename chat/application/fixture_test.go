package application

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/chat/repository"
	contactsRepo "github.com/AzielCF/az-engage/contacts/repository"
	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	"github.com/AzielCF/az-engage/infrastructure/objectstore"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	instancesRepo "github.com/AzielCF/az-engage/instances/repository"
	"github.com/AzielCF/az-engage/pkg/crypto"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const tenant = "t1"

var baseTime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	gw        *gateway.Fake
	bus       *jobs.Recorder
	bc        *broadcast.Recorder
	cache     *kvcache.Memory
	store     *objectstore.Memory
	messages  *repository.MessageGormRepository
	convs     *repository.ConversationGormRepository
	atts      *repository.AttachmentGormRepository
	depts     *repository.DepartmentGormRepository
	contacts  *contactsRepo.ContactGormRepository
	instances *instancesApp.InstanceService
	inst      *instancesDomain.Instance
	svc       *ChatService
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, crypto.SetEncryptionKey("test-secret"))
	db := dbtest.Open(t)

	instRepo := instancesRepo.NewInstanceGormRepository(db)
	contacts := contactsRepo.NewContactGormRepository(db)
	convs := repository.NewConversationGormRepository(db)
	messages := repository.NewMessageGormRepository(db)
	atts := repository.NewAttachmentGormRepository(db)
	reactions := repository.NewReactionGormRepository(db)
	depts := repository.NewDepartmentGormRepository(db)
	dbtest.Migrate(t, instRepo, contacts, depts, convs, messages, atts, reactions)

	cfg := &config.Config{App: config.AppConfig{Timezone: "UTC", BaseUrl: "http://engage.local"}}
	cfg.Storage.MaxSizeMB = 1
	cfg.Storage.AllowedMIME = []string{"image/*", "audio/*", "application/pdf"}

	f := &fixture{
		db:       db,
		gw:       gateway.NewFake(),
		bus:      &jobs.Recorder{},
		bc:       &broadcast.Recorder{},
		cache:    kvcache.NewMemory(),
		store:    objectstore.NewMemory("engage"),
		messages: messages,
		convs:    convs,
		atts:     atts,
		depts:    depts,
		contacts: contacts,
		clock:    baseTime,
	}
	f.instances = instancesApp.NewInstanceService(instRepo, f.gw, f.bc, cfg)
	f.instances.SetClock(f.now)

	f.svc = NewChatService(Deps{
		DB:            db,
		Conversations: convs,
		Messages:      messages,
		Attachments:   atts,
		Reactions:     reactions,
		Departments:   depts,
		Contacts:      contacts,
		Instances:     f.instances,
		Gateway:       f.gw,
		Bus:           f.bus,
		Cache:         f.cache,
		Store:         f.store,
		Broadcaster:   f.bc,
		Config:        cfg,
	})
	f.svc.SetClock(f.now)
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// connect registers and opens the tenant's default instance.
func (f *fixture) connect(t *testing.T) *instancesDomain.Instance {
	t.Helper()
	ctx := context.Background()
	inst, err := f.instances.Create(ctx, tenant, instancesApp.CreateInput{InstanceName: "main", APIKey: "k-main"})
	require.NoError(t, err)
	require.NoError(t, f.instances.ApplyConnectionUpdate(ctx, "main", instancesDomain.StateOpen, "5511900000000@s.whatsapp.net"))
	f.inst, err = f.instances.Get(ctx, tenant, inst.ID)
	require.NoError(t, err)
	return f.inst
}

func (f *fixture) inbound(t *testing.T, in InboundMessage) *domain.Message {
	t.Helper()
	if in.Tenant == "" {
		in.Tenant = tenant
	}
	if in.InstanceName == "" {
		in.InstanceName = "main"
	}
	msg, err := f.svc.RecordInbound(context.Background(), in)
	require.NoError(t, err)
	return msg
}

func (f *fixture) outgoing(t *testing.T, remote, content string) *domain.Message {
	t.Helper()
	msg, _, err := f.svc.CreateOutgoing(context.Background(), OutgoingInput{
		Tenant:       tenant,
		Remote:       remote,
		Content:      content,
		SenderUserID: strPtr("u1"),
	})
	require.NoError(t, err)
	return msg
}

func (f *fixture) reload(t *testing.T, id string) *domain.Message {
	t.Helper()
	msg, err := f.messages.Get(context.Background(), tenant, id)
	require.NoError(t, err)
	return msg
}

func delivery(attempt int) jobs.Delivery {
	return jobs.Delivery{Stream: jobs.StreamChatSend, Attempt: attempt, MaxRetries: 3}
}

func sendJob(m *domain.Message) jobs.SendMessage {
	return jobs.SendMessage{Tenant: m.Tenant, ConversationID: m.ConversationID, MessageID: m.ID}
}
