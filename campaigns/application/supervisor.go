package application

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/pkg/kvcache"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	leaderLockKey      = "lock:campaign:scheduler"
	defaultTick        = time.Minute
	defaultThreshold   = 1000
	stepErrorBackoff   = 5 * time.Second
	maxStepErrorsInRow = 5
)

// QueueDepth reports how many jobs wait on a stream.
type QueueDepth interface {
	Depth(ctx context.Context, stream string) (int, error)
}

type command struct {
	campaignID string
	tenant     string
	action     jobs.CampaignAction
}

type executor struct {
	id     string
	cancel context.CancelFunc
	wake   chan struct{}
}

// Supervisor owns the scheduler loop and one executor goroutine per running campaign.
// Only the process holding the leader lock promotes campaigns or runs executors.
type Supervisor struct {
	svc   *CampaignService
	queue QueueDepth
	cache kvcache.Cache
	tick  time.Duration
	token string

	cmds     chan command
	finished chan *executor

	// owned by the Run goroutine
	executors map[string]*executor
	lock      *kvcache.Lock

	wg sync.WaitGroup
}

func NewSupervisor(svc *CampaignService, queue QueueDepth, cache kvcache.Cache) *Supervisor {
	if cache == nil {
		cache = kvcache.NewMemory()
	}
	tick := svc.cfg.Campaign.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Supervisor{
		svc:       svc,
		queue:     queue,
		cache:     cache,
		tick:      tick,
		token:     uuid.NewString(),
		cmds:      make(chan command, 64),
		finished:  make(chan *executor, 64),
		executors: map[string]*executor{},
	}
}

// RegisterConsumers subscribes the supervisor to campaign.control.
func (p *Supervisor) RegisterConsumers(bus jobs.Bus) {
	bus.Handle(jobs.StreamCampaignControl, 1, jobs.JSON(p.HandleControl))
}

// HandleControl forwards an API control action to the Run loop.
func (p *Supervisor) HandleControl(ctx context.Context, job jobs.CampaignControl, _ jobs.Delivery) error {
	select {
	case p.cmds <- command{campaignID: job.CampaignID, tenant: job.Tenant, action: job.Action}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx ends. Executors stop with it.
func (p *Supervisor) Run(ctx context.Context) error {
	logrus.Infof("[CAMPAIGN] supervisor started, tick %s", p.tick)
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	p.onTick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.stopAll()
			p.wg.Wait()
			if p.lock != nil {
				_ = p.lock.Release(context.WithoutCancel(ctx))
			}
			logrus.Info("[CAMPAIGN] supervisor stopped")
			return nil
		case <-ticker.C:
			p.onTick(ctx)
		case cmd := <-p.cmds:
			p.apply(ctx, cmd)
		case e := <-p.finished:
			if p.executors[e.id] == e {
				delete(p.executors, e.id)
			}
		}
	}
}

func (p *Supervisor) onTick(ctx context.Context) {
	if !p.lead(ctx) {
		return
	}
	if p.backpressure(ctx) {
		logrus.Warnf("[CAMPAIGN] %s is backed up, skipping promotion this tick", jobs.StreamChatSend)
	} else {
		p.promote(ctx)
	}
	p.adopt(ctx)
}

// lead takes or refreshes the leader lock. Gaining it runs recovery; losing it stops
// every executor.
func (p *Supervisor) lead(ctx context.Context) bool {
	ttl := 2 * p.tick
	if p.lock != nil {
		ok, err := p.lock.Refresh(ctx, ttl)
		if err == nil && ok {
			return true
		}
		logrus.WithError(err).Warn("[CAMPAIGN] lost the scheduler lock, stopping executors")
		p.lock = nil
		p.stopAll()
		return false
	}

	lock, err := kvcache.Acquire(ctx, p.cache, leaderLockKey, p.token, ttl)
	if err != nil {
		logrus.WithError(err).Error("[CAMPAIGN] scheduler lock unavailable")
		return false
	}
	if lock == nil {
		logrus.Debug("[CAMPAIGN] another scheduler holds the lock")
		return false
	}
	p.lock = lock
	logrus.Info("[CAMPAIGN] this process is the campaign scheduler")
	if _, err := p.svc.Recover(ctx); err != nil {
		logrus.WithError(err).Error("[CAMPAIGN] recovery failed")
	}
	return true
}

func (p *Supervisor) backpressure(ctx context.Context) bool {
	if p.queue == nil {
		return false
	}
	threshold := p.svc.cfg.Queue.BackpressureThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	depth, err := p.queue.Depth(ctx, jobs.StreamChatSend)
	if err != nil {
		logrus.WithError(err).Warn("[CAMPAIGN] could not read send queue depth")
		return false
	}
	return depth > threshold
}

// promote starts scheduled campaigns whose time has come.
func (p *Supervisor) promote(ctx context.Context) {
	due, err := p.svc.campaigns.ListDueScheduled(ctx, p.svc.now())
	if err != nil {
		logrus.WithError(err).Error("[CAMPAIGN] could not list scheduled campaigns")
		return
	}
	for _, c := range due {
		now := p.svc.now()
		ok, err := p.svc.campaigns.Transition(ctx, c.ID, []domain.Status{domain.StatusScheduled}, domain.StatusRunning,
			map[string]any{"started_at": now})
		if err != nil {
			logrus.WithError(err).Errorf("[CAMPAIGN] could not start scheduled %s", c.ID)
			continue
		}
		if !ok {
			continue
		}
		p.svc.log(ctx, c, domain.Log{Type: domain.LogStarted, Severity: domain.SeverityInfo,
			Message: "scheduled campaign started", Details: map[string]any{"scheduled_at": c.ScheduledAt}})
		logrus.Infof("[CAMPAIGN] scheduled campaign %s started", c.ID)
		p.spawn(ctx, c.Tenant, c.ID)
	}
}

// adopt makes sure every running campaign has an executor.
func (p *Supervisor) adopt(ctx context.Context) {
	list, err := p.svc.campaigns.ListByStatus(ctx, domain.StatusRunning)
	if err != nil {
		logrus.WithError(err).Error("[CAMPAIGN] could not list running campaigns")
		return
	}
	for _, c := range list {
		p.spawn(ctx, c.Tenant, c.ID)
	}
}

func (p *Supervisor) apply(ctx context.Context, cmd command) {
	if p.lock == nil {
		logrus.Debugf("[CAMPAIGN] not the scheduler, ignoring %s of %s", cmd.action, cmd.campaignID)
		return
	}
	switch cmd.action {
	case jobs.CampaignStart, jobs.CampaignResume:
		c, err := p.svc.campaigns.Get(ctx, cmd.tenant, cmd.campaignID)
		if err != nil {
			logrus.WithError(err).Warnf("[CAMPAIGN] %s of %s ignored", cmd.action, cmd.campaignID)
			return
		}
		if c.Status == domain.StatusRunning {
			p.spawn(ctx, c.Tenant, c.ID)
		}
	case jobs.CampaignPause, jobs.CampaignCancel:
		if e, ok := p.executors[cmd.campaignID]; ok {
			select {
			case e.wake <- struct{}{}:
			default:
			}
		}
	default:
		logrus.Warnf("[CAMPAIGN] unknown control action %q", cmd.action)
	}
}

func (p *Supervisor) spawn(ctx context.Context, tenant, id string) {
	if _, ok := p.executors[id]; ok {
		return
	}
	ectx, cancel := context.WithCancel(ctx)
	e := &executor{id: id, cancel: cancel, wake: make(chan struct{}, 1)}
	p.executors[id] = e
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		p.execute(ectx, tenant, e)
		select {
		case p.finished <- e:
		case <-ctx.Done():
		}
	}()
}

func (p *Supervisor) stopAll() {
	for id, e := range p.executors {
		e.cancel()
		delete(p.executors, id)
	}
}

// execute steps one campaign until it leaves running, sleeping the paced delay in
// between. A wake signal cuts the sleep short so pause and cancel apply at once.
func (p *Supervisor) execute(ctx context.Context, tenant string, e *executor) {
	logrus.Infof("[CAMPAIGN] executor for %s started", e.id)
	st := &RunState{}
	failures := 0
	for ctx.Err() == nil {
		res, err := p.svc.Step(ctx, tenant, e.id, st)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			logrus.WithError(err).Errorf("[CAMPAIGN] step of %s failed (%d in a row)", e.id, failures)
			if failures >= maxStepErrorsInRow {
				// the next tick adopts the campaign again
				break
			}
			res.Delay = stepErrorBackoff
		} else {
			failures = 0
		}
		if res.Done {
			break
		}
		if res.Delay <= 0 {
			continue
		}
		timer := time.NewTimer(res.Delay)
		select {
		case <-ctx.Done():
		case <-e.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
	logrus.Infof("[CAMPAIGN] executor for %s stopped (%d sent, %d failed)", e.id, st.Sent, st.Failed)
}
