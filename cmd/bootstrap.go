package cmd

import (
	"context"
	"fmt"

	billingApp "github.com/AzielCF/az-engage/billing/application"
	billingRepo "github.com/AzielCF/az-engage/billing/repository"
	campaignsApp "github.com/AzielCF/az-engage/campaigns/application"
	campaignsRepo "github.com/AzielCF/az-engage/campaigns/repository"
	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatRepo "github.com/AzielCF/az-engage/chat/repository"
	contactsRepo "github.com/AzielCF/az-engage/contacts/repository"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	"github.com/AzielCF/az-engage/infrastructure/objectstore"
	"github.com/AzielCF/az-engage/infrastructure/rabbitmq"
	"github.com/AzielCF/az-engage/infrastructure/valkey"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	instancesRepo "github.com/AzielCF/az-engage/instances/repository"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/AzielCF/az-engage/pkg/msgworker"
	"github.com/AzielCF/az-engage/ui/websocket"
	webhooksApp "github.com/AzielCF/az-engage/webhooks/application"
	webhooksRepo "github.com/AzielCF/az-engage/webhooks/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// repositories holds every gorm repository; it needs nothing but the database.
type repositories struct {
	instances     *instancesRepo.InstanceGormRepository
	contacts      *contactsRepo.ContactGormRepository
	conversations *chatRepo.ConversationGormRepository
	messages      *chatRepo.MessageGormRepository
	attachments   *chatRepo.AttachmentGormRepository
	reactions     *chatRepo.ReactionGormRepository
	departments   *chatRepo.DepartmentGormRepository
	events        *webhooksRepo.EventGormRepository
	campaigns     *campaignsRepo.CampaignGormRepository
	campaignLeads *campaignsRepo.ContactGormRepository
	campaignLogs  *campaignsRepo.LogGormRepository
	cycles        *billingRepo.CycleGormRepository
	emissions     *billingRepo.EmissionGormRepository
	plans         *billingRepo.PlanGormRepository
}

func newRepositories(db *gorm.DB) *repositories {
	return &repositories{
		instances:     instancesRepo.NewInstanceGormRepository(db),
		contacts:      contactsRepo.NewContactGormRepository(db),
		conversations: chatRepo.NewConversationGormRepository(db),
		messages:      chatRepo.NewMessageGormRepository(db),
		attachments:   chatRepo.NewAttachmentGormRepository(db),
		reactions:     chatRepo.NewReactionGormRepository(db),
		departments:   chatRepo.NewDepartmentGormRepository(db),
		events:        webhooksRepo.NewEventGormRepository(db),
		campaigns:     campaignsRepo.NewCampaignGormRepository(db),
		campaignLeads: campaignsRepo.NewContactGormRepository(db),
		campaignLogs:  campaignsRepo.NewLogGormRepository(db),
		cycles:        billingRepo.NewCycleGormRepository(db),
		emissions:     billingRepo.NewEmissionGormRepository(db),
		plans:         billingRepo.NewPlanGormRepository(db),
	}
}

// migrators lists the repositories in creation order.
func (r *repositories) migrators() []database.Migrator {
	return []database.Migrator{
		r.instances,
		r.contacts,
		r.departments,
		r.conversations,
		r.messages,
		r.attachments,
		r.reactions,
		r.events,
		r.campaigns,
		r.campaignLeads,
		r.campaignLogs,
		r.cycles,
		r.emissions,
		r.plans,
	}
}

// runtime is one process's wiring. Roles add what they own (pool, supervisor).
type runtime struct {
	cfg   *config.Config
	db    *gorm.DB
	repos *repositories
	vk    *valkey.Client
	cache kvcache.Cache
	bus   jobs.Bus
	store objectstore.Store
	hub   *websocket.Hub
	gw    gateway.API

	instances *instancesApp.InstanceService
	chat      *chatApp.ChatService
	webhooks  *webhooksApp.WebhookService
	campaigns *campaignsApp.CampaignService
	billing   *billingApp.BillingService

	pool       *msgworker.Pool
	supervisor *campaignsApp.Supervisor
}

func bootstrap(ctx context.Context, cfg *config.Config) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	if rt.db, err = database.NewDatabase(cfg); err != nil {
		return nil, err
	}
	rt.repos = newRepositories(rt.db)

	if rt.vk, err = valkey.FromConfig(cfg.Database); err != nil {
		return nil, fmt.Errorf("valkey: %w", err)
	}
	var fanout websocket.Fanout
	if rt.vk != nil {
		rt.cache = valkey.NewCache(rt.vk)
		fanout = rt.vk
	} else {
		logrus.Warn("[BOOT] Valkey disabled: locks, caches and websocket rooms stay in this process")
		rt.cache = kvcache.NewMemory()
	}

	if cfg.Queue.RabbitURL != "" {
		if rt.bus, err = rabbitmq.NewClient(ctx, rabbitmq.OptionsFromConfig(cfg.Queue)); err != nil {
			return nil, err
		}
	} else {
		logrus.Warn("[BOOT] RABBITMQ_URL empty: using the in-process queue")
		rt.bus = jobs.NewMemoryBus(jobs.MemoryOptions{MaxRetries: cfg.Queue.MaxRetries, RetryDelays: cfg.Queue.RetryDelays})
	}

	if cfg.Storage.AccessKey != "" {
		if rt.store, err = objectstore.NewS3(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	} else {
		logrus.Warn("[BOOT] S3_ACCESS_KEY empty: attachments are kept in memory")
		rt.store = objectstore.NewMemory(cfg.Storage.Bucket)
	}

	// the hub id must differ per process so api replicas deliver each other's events
	rt.hub = websocket.NewHub(fanout, uuid.NewString())
	rt.gw = gateway.NewClient(cfg.Gateway)

	r := rt.repos
	rt.instances = instancesApp.NewInstanceService(r.instances, rt.gw, rt.hub, cfg)
	rt.chat = chatApp.NewChatService(chatApp.Deps{
		DB:            rt.db,
		Conversations: r.conversations,
		Messages:      r.messages,
		Attachments:   r.attachments,
		Reactions:     r.reactions,
		Departments:   r.departments,
		Contacts:      r.contacts,
		Instances:     rt.instances,
		Gateway:       rt.gw,
		Bus:           rt.bus,
		Cache:         rt.cache,
		Store:         rt.store,
		Broadcaster:   rt.hub,
		Config:        cfg,
	})
	rt.webhooks = webhooksApp.NewWebhookService(webhooksApp.Deps{
		Events:    r.events,
		Instances: rt.instances,
		Chat:      rt.chat,
		Bus:       rt.bus,
		Cache:     rt.cache,
		Config:    cfg,
	})
	rt.campaigns = campaignsApp.NewCampaignService(campaignsApp.Deps{
		DB:        rt.db,
		Campaigns: r.campaigns,
		Contacts:  r.campaignLeads,
		Logs:      r.campaignLogs,
		Phonebook: r.contacts,
		Instances: rt.instances,
		Chat:      rt.chat,
		Bus:       rt.bus,
		Config:    cfg,
	})
	rt.chat.SetDeliveryListener(rt.campaigns)
	rt.billing = billingApp.NewBillingService(billingApp.Deps{
		DB:        rt.db,
		Cycles:    r.cycles,
		Emissions: r.emissions,
		Plans:     r.plans,
		Chat:      rt.chat,
		Config:    cfg,
	})
	return rt, nil
}

func (rt *runtime) close() {
	if rt.bus != nil {
		rt.bus.Close()
	}
	if rt.vk != nil {
		rt.vk.Close()
	}
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	logrus.Info("[APP] Application stopped cleanly.")
}
