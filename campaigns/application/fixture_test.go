package application

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/AzielCF/az-engage/campaigns/repository"
	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatRepo "github.com/AzielCF/az-engage/chat/repository"
	contactsRepo "github.com/AzielCF/az-engage/contacts/repository"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
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
	cache     *kvcache.Memory
	cfg       *config.Config
	campaigns *repository.CampaignGormRepository
	contacts  *repository.ContactGormRepository
	logs      *repository.LogGormRepository
	phonebook *contactsRepo.ContactGormRepository
	messages  *chatRepo.MessageGormRepository
	instances *instancesApp.InstanceService
	chat      *chatApp.ChatService
	svc       *CampaignService
	clock     time.Time
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
	campaigns := repository.NewCampaignGormRepository(db)
	contacts := repository.NewContactGormRepository(db)
	logs := repository.NewLogGormRepository(db)
	dbtest.Migrate(t, instRepo, phonebook, depts, convs, messages, atts, reactions, campaigns, contacts, logs)

	cfg := &config.Config{App: config.AppConfig{Timezone: "UTC"}}
	cfg.Campaign.Tick = time.Minute
	cfg.Campaign.RecoveryWindow = 2 * time.Hour
	cfg.Queue.BackpressureThreshold = 1000

	f := &fixture{
		db:        db,
		gw:        gateway.NewFake(),
		bus:       &jobs.Recorder{},
		cache:     kvcache.NewMemory(),
		cfg:       cfg,
		campaigns: campaigns,
		contacts:  contacts,
		logs:      logs,
		phonebook: phonebook,
		messages:  messages,
		clock:     baseTime,
	}
	f.instances = instancesApp.NewInstanceService(instRepo, f.gw, nil, cfg)
	f.instances.SetClock(f.now)
	f.chat = chatApp.NewChatService(chatApp.Deps{
		DB:            db,
		Conversations: convs,
		Messages:      messages,
		Attachments:   atts,
		Reactions:     reactions,
		Departments:   depts,
		Contacts:      phonebook,
		Instances:     f.instances,
		Gateway:       f.gw,
		Bus:           f.bus,
		Cache:         f.cache,
		Config:        cfg,
	})
	f.chat.SetClock(f.now)

	f.useContacts(contacts)
	return f
}

// useContacts rebuilds the service over another campaign contact store.
func (f *fixture) useContacts(contacts domain.ContactRepository) {
	f.svc = NewCampaignService(Deps{
		DB:        f.db,
		Campaigns: f.campaigns,
		Contacts:  contacts,
		Logs:      f.logs,
		Phonebook: f.phonebook,
		Instances: f.instances,
		Chat:      f.chat,
		Bus:       f.bus,
		Config:    f.cfg,
	})
	f.svc.SetClock(f.now)
	f.svc.SetRand(func(lo, hi int) int { return 0 })
	f.chat.SetDeliveryListener(f.svc)
}

func (f *fixture) now() time.Time { return f.clock }

// instance registers an instance and opens its connection.
func (f *fixture) instance(t *testing.T, name string) *instancesDomain.Instance {
	t.Helper()
	ctx := context.Background()
	inst, err := f.instances.Create(ctx, tenant, instancesApp.CreateInput{InstanceName: name, APIKey: "k-" + name})
	require.NoError(t, err)
	require.NoError(t, f.instances.ApplyConnectionUpdate(ctx, name, instancesDomain.StateOpen, ""))
	inst, err = f.instances.Get(ctx, tenant, inst.ID)
	require.NoError(t, err)
	return inst
}

// campaign creates a campaign over instances with the given recipients.
func (f *fixture) campaign(t *testing.T, in CreateInput, phones ...string) *domain.Campaign {
	t.Helper()
	ctx := context.Background()
	if in.Name == "" {
		in.Name = "Promo"
	}
	if len(in.Messages) == 0 {
		in.Messages = []VariantInput{{Content: "Oi {{primeiro_nome}}"}}
	}
	c, err := f.svc.Create(ctx, tenant, in)
	require.NoError(t, err)
	var contacts []ContactInput
	for _, p := range phones {
		contacts = append(contacts, ContactInput{Phone: p, Name: "Cliente " + p[len(p)-2:]})
	}
	if len(contacts) > 0 {
		_, err = f.svc.AddContacts(ctx, tenant, c.ID, contacts)
		require.NoError(t, err)
	}
	return c
}

// drain steps the campaign until the executor would stop.
func (f *fixture) drain(t *testing.T, id string) *RunState {
	t.Helper()
	st := &RunState{}
	for i := 0; i < 50; i++ {
		res, err := f.svc.Step(context.Background(), tenant, id, st)
		require.NoError(t, err)
		if res.Done {
			return st
		}
	}
	t.Fatal("campaign never stopped")
	return st
}

func (f *fixture) reload(t *testing.T, id string) *domain.Campaign {
	t.Helper()
	c, err := f.campaigns.Get(context.Background(), tenant, id)
	require.NoError(t, err)
	return c
}

func (f *fixture) logTypes(t *testing.T, id string) []domain.LogType {
	t.Helper()
	logs, err := f.logs.List(context.Background(), id, "", 200, 0)
	require.NoError(t, err)
	out := make([]domain.LogType, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Type)
	}
	return out
}

func sortedIDs(insts ...*instancesDomain.Instance) []*instancesDomain.Instance {
	out := append([]*instancesDomain.Instance(nil), insts...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
