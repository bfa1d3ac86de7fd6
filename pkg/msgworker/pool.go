package msgworker

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// ErrPoolStopped is returned when a job is submitted after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// ErrQueueFull is returned by TryDispatch when the shard queue has no room.
var ErrQueueFull = errors.New("worker queue full")

// Job is one unit of work bound to a conversation of a tenant.
// Jobs sharing (Tenant, ConversationID) always land on the same worker and run in order.
type Job struct {
	Tenant         string
	ConversationID string
	Label          string
	Handler        func(ctx context.Context) error

	done chan error
}

func (j Job) key() string {
	return j.Tenant + "|" + j.ConversationID
}

// PoolStats is a live snapshot of the pool.
type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	Uptime          string         `json:"uptime"`
	Processed       string         `json:"processed_human"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActiveChats     map[string]int `json:"active_conversations"`
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

type activeEntry struct {
	workerID  int
	updatedAt time.Time
}

// Pool is a fixed set of workers, each with its own queue, sharded by conversation.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
	activeMu        sync.RWMutex
	active          map[string]activeEntry
	startTime       time.Time

	OnWorkerStart func(workerID int, key string)
	OnWorkerEnd   func(workerID int, key string, err error)
}

type worker struct {
	id            int
	jobQueue      chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *Pool
}

// NewPool builds a pool; Start must be called before dispatching.
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 3
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
		active:     make(map[string]activeEntry),
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.expireActive(time.Now())
			}
		}
	}()

	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan Job, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[SEND_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues without blocking. It returns ErrQueueFull when the shard is saturated.
func (p *Pool) TryDispatch(job Job) error {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return ErrPoolStopped
	}
	shard := p.shardFor(job.Tenant, job.ConversationID)
	p.track(job.key(), shard)
	atomic.AddInt64(&p.totalDispatched, 1)

	if p.enqueue(shard, job, nil) {
		return nil
	}
	p.untrack(job.key())
	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[SEND_POOL] Worker %d queue full, dropping job for %s", shard, job.key())
	return ErrQueueFull
}

// Submit enqueues the job, waiting for room, and blocks until the handler returns.
// The handler error is returned to the caller so queue consumers can ack or retry.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if atomic.LoadInt32(&p.stopped) == 1 {
		return ErrPoolStopped
	}
	shard := p.shardFor(job.Tenant, job.ConversationID)
	job.done = make(chan error, 1)
	p.track(job.key(), shard)
	atomic.AddInt64(&p.totalDispatched, 1)

	if !p.enqueue(shard, job, ctx.Done()) {
		p.untrack(job.key())
		atomic.AddInt64(&p.totalDropped, 1)
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrPoolStopped
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue blocks on wait when non-nil, otherwise it gives up immediately.
func (p *Pool) enqueue(shard int, job Job, wait <-chan struct{}) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if wait == nil {
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}
	select {
	case p.workers[shard].jobQueue <- job:
		return true
	case <-wait:
		return false
	case <-p.stopCh:
		return false
	}
}

func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[SEND_POOL] Stopping workers...")

		for _, w := range p.workers {
			if w == nil {
				continue
			}
			w.cancel()
			close(w.jobQueue)
		}
		p.wg.Wait()
		logrus.Info("[SEND_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(tenant, conversationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenant + "|" + conversationID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) track(key string, shard int) {
	p.activeMu.Lock()
	p.active[key] = activeEntry{workerID: shard, updatedAt: time.Now()}
	p.activeMu.Unlock()
}

func (p *Pool) untrack(key string) {
	p.activeMu.Lock()
	delete(p.active, key)
	p.activeMu.Unlock()
}

func (p *Pool) expireActive(now time.Time) {
	p.activeMu.Lock()
	for k, v := range p.active {
		if now.Sub(v.updatedAt) > 2*time.Second {
			delete(p.active, k)
		}
	}
	p.activeMu.Unlock()
}

// Depth is the number of queued jobs across all shards.
func (p *Pool) Depth() int {
	total := 0
	for _, w := range p.workers {
		if w != nil {
			total += len(w.jobQueue)
		}
	}
	return total
}

func (p *Pool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, 0, len(p.workers))
	activeWorkers := 0
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		processing := atomic.LoadInt32(&w.isProcessing) == 1
		if processing {
			activeWorkers++
		}
		workerStats = append(workerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  processing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		})
	}

	p.expireActive(time.Now())
	p.activeMu.RLock()
	snapshot := make(map[string]int, len(p.active))
	for k, v := range p.active {
		snapshot[k] = v.workerID
	}
	p.activeMu.RUnlock()

	processed := atomic.LoadInt64(&p.totalProcessed)
	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  processed,
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		Uptime:          humanize.RelTime(p.startTime, time.Now(), "", ""),
		Processed:       humanize.Comma(processed),
		WorkerStats:     workerStats,
		ActiveChats:     snapshot,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[SEND_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[SEND_POOL] Worker %d shutting down", w.id)
				return
			}
			w.process(job)
		case <-w.ctx.Done():
			logrus.Debugf("[SEND_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drain()
			return
		}
	}
}

func (w *worker) drain() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.process(job)
		default:
			return
		}
	}
}

func (w *worker) process(job Job) {
	key := job.key()
	var err error

	if w.pool.OnWorkerStart != nil {
		w.pool.OnWorkerStart(w.id, key)
	}
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("job panicked")
			logrus.Errorf("[SEND_POOL] Worker %d panic for %s: %v", w.id, key, r)
		}
		if err != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
		}
		if w.pool.OnWorkerEnd != nil {
			w.pool.OnWorkerEnd(w.id, key, err)
		}
		if job.done != nil {
			job.done <- err
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	// drained jobs run after cancel
	ctx := w.ctx
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	err = job.Handler(ctx)
	if err != nil {
		logrus.WithError(err).Warnf("[SEND_POOL] Worker %d job %s failed for %s", w.id, job.Label, key)
	}
}
