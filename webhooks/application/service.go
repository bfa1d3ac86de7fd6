package application

import (
	"context"
	"time"

	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatDomain "github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/jobs"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/AzielCF/az-engage/webhooks/domain"
)

// Instances is the part of the instance service the webhook path needs.
type Instances interface {
	ResolveTenant(ctx context.Context, instanceName string) (string, error)
	GetByName(ctx context.Context, instanceName string) (*instancesDomain.Instance, error)
	ApplyConnectionUpdate(ctx context.Context, instanceName, state, wuid string) error
}

// Chat receives the routed message events.
type Chat interface {
	RecordInbound(ctx context.Context, in chatApp.InboundMessage) (*chatDomain.Message, error)
	ApplyStatus(ctx context.Context, tenant, gatewayID string, raw any, at time.Time) error
	ApplyInboundReaction(ctx context.Context, tenant, targetGatewayID, reactor, emoji string) error
	ApplyRemoteDelete(ctx context.Context, tenant, gatewayID string) error
}

var (
	_ Instances = (*instancesApp.InstanceService)(nil)
	_ Chat      = (*chatApp.ChatService)(nil)
)

type Deps struct {
	Events    domain.EventRepository
	Instances Instances
	Chat      Chat
	Bus       jobs.Publisher
	Cache     kvcache.Cache
	Config    *config.Config
}

// WebhookService ingests gateway callbacks and routes them to the pipelines.
type WebhookService struct {
	events    domain.EventRepository
	instances Instances
	chat      Chat
	bus       jobs.Publisher
	cache     kvcache.Cache
	guard     *OriginGuard
	rawTTL    time.Duration

	now func() time.Time
}

func NewWebhookService(d Deps) *WebhookService {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	cache := d.Cache
	if cache == nil {
		cache = kvcache.NewMemory()
	}
	ttl := cfg.Webhook.HotCacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WebhookService{
		events:    d.Events,
		instances: d.Instances,
		chat:      d.Chat,
		bus:       d.Bus,
		cache:     cache,
		guard:     NewOriginGuard(cfg.Webhook.AllowedOrigins, cfg.Webhook.AllowAll),
		rawTTL:    ttl,
		now:       time.Now,
	}
}

func (s *WebhookService) SetClock(now func() time.Time) {
	s.now = now
}

// Guard exposes the origin check to the HTTP adapter.
func (s *WebhookService) Guard() *OriginGuard {
	return s.guard
}

// RegisterConsumers binds chat.webhook to the router.
func (s *WebhookService) RegisterConsumers(bus jobs.Bus, concurrency int) {
	if concurrency <= 0 {
		concurrency = 8
	}
	bus.Handle(jobs.StreamWebhook, concurrency, jobs.JSON(s.HandleWebhook))
}

func rawKey(eventID string) string {
	return "webhook:raw:" + eventID
}
