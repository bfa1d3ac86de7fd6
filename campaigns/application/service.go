package application

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatDomain "github.com/AzielCF/az-engage/chat/domain"
	contactsDomain "github.com/AzielCF/az-engage/contacts/domain"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/jobs"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Instances is the slice of the instance service the engine reads.
type Instances interface {
	ListByIDs(ctx context.Context, tenant string, ids []string) ([]*instancesDomain.Instance, error)
	ListConnected(ctx context.Context, tenant string) ([]*instancesDomain.Instance, error)
	Today() string
}

// Sender creates and synchronously delivers one outbound message.
type Sender interface {
	CreateOutgoing(ctx context.Context, in chatApp.OutgoingInput) (*chatDomain.Message, *chatDomain.Conversation, error)
	SendNow(ctx context.Context, tenant, messageID string) (*chatDomain.Message, error)
	// CampaignMessage returns the newest message created for a campaign recipient.
	CampaignMessage(ctx context.Context, tenant, campaignContactID string) (*chatDomain.Message, error)
}

var (
	_ Instances                   = (*instancesApp.InstanceService)(nil)
	_ Sender                      = (*chatApp.ChatService)(nil)
	_ chatDomain.DeliveryListener = (*CampaignService)(nil)
)

type Deps struct {
	DB        *gorm.DB
	Campaigns domain.CampaignRepository
	Contacts  domain.ContactRepository
	Logs      domain.LogRepository
	Phonebook contactsDomain.ContactRepository
	Instances Instances
	Chat      Sender
	Bus       jobs.Publisher
	Config    *config.Config
}

// CampaignService owns campaign management and the per-message executor step. The
// supervisor drives the steps; the API only flips statuses and publishes control jobs.
type CampaignService struct {
	db        *gorm.DB
	campaigns domain.CampaignRepository
	contacts  domain.ContactRepository
	logs      domain.LogRepository
	phonebook contactsDomain.ContactRepository
	instances Instances
	chat      Sender
	bus       jobs.Publisher
	cfg       *config.Config

	now     func() time.Time
	randInt func(lo, hi int) int
}

func NewCampaignService(d Deps) *CampaignService {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &CampaignService{
		db:        d.DB,
		campaigns: d.Campaigns,
		contacts:  d.Contacts,
		logs:      d.Logs,
		phonebook: d.Phonebook,
		instances: d.Instances,
		chat:      d.Chat,
		bus:       d.Bus,
		cfg:       cfg,
		now:       time.Now,
		randInt:   uniformInt,
	}
}

func (s *CampaignService) SetClock(now func() time.Time) {
	s.now = now
}

// SetRand replaces the pacing source; it must return an integer in [lo, hi].
func (s *CampaignService) SetRand(fn func(lo, hi int) int) {
	s.randInt = fn
}

func uniformInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

// log appends a campaign log. Failures to log never stop the campaign.
func (s *CampaignService) log(ctx context.Context, c *domain.Campaign, l domain.Log) {
	l.Tenant = c.Tenant
	l.CampaignID = c.ID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if err := s.logs.Append(ctx, &l); err != nil {
		logrus.WithError(err).Warnf("[CAMPAIGN] could not write %s log for %s", l.Type, c.ID)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
