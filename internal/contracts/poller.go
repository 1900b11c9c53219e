package contracts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/tariffwatch/internal/logger"
)

// DefaultInterval is the refresh period of a contract entity.
const DefaultInterval = 5 * time.Minute

// Notifier is told about the first failure of a contract and its recovery.
type Notifier interface {
	SendError(err error) error
	SendRecovery(failures int) error
}

// Poller refreshes every tracked entity on its own schedule. A slow
// refresh delays only the next run of the same entity.
type Poller struct {
	cron     *cron.Cron
	fetcher  LivePriceFetcher
	interval time.Duration
	timeout  time.Duration
	notifier Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[string]cron.EntryID
	entities map[string]*Entity
}

// NewPoller creates a stopped poller. A zero interval selects
// DefaultInterval; timeout bounds each refresh.
func NewPoller(fetcher LivePriceFetcher, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		cron:     cron.New(cron.WithChain(cron.Recover(logger.CronLogger{}))),
		fetcher:  fetcher,
		interval: interval,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]cron.EntryID),
		entities: make(map[string]*Entity),
	}
}

// SetNotifier enables failure and recovery notifications.
func (p *Poller) SetNotifier(n Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifier = n
}

// Track schedules e. Tracking an id twice is a no-op.
func (p *Poller) Track(e *Entity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.jobs[e.ID()]; ok {
		return nil
	}
	job := cron.NewChain(cron.SkipIfStillRunning(logger.CronLogger{})).Then(cron.FuncJob(func() {
		p.refresh(e)
	}))
	id, err := p.cron.AddJob(fmt.Sprintf("@every %s", p.interval), job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", e.ID(), err)
	}
	p.jobs[e.ID()] = id
	p.entities[e.ID()] = e
	logger.Debug("Scheduled refresh of %s every %s", e.ID(), p.interval)
	return nil
}

// Untrack stops refreshing the entity with identity id.
func (p *Poller) Untrack(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if jobID, ok := p.jobs[id]; ok {
		p.cron.Remove(jobID)
		delete(p.jobs, id)
		delete(p.entities, id)
	}
}

// Entities returns the tracked entities.
func (p *Poller) Entities() []*Entity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entity, 0, len(p.entities))
	for _, e := range p.entities {
		out = append(out, e)
	}
	return out
}

// RefreshAll runs one refresh of every tracked entity concurrently and
// waits for all of them.
func (p *Poller) RefreshAll() {
	var wg sync.WaitGroup
	for _, e := range p.Entities() {
		wg.Add(1)
		go func(e *Entity) {
			defer wg.Done()
			p.refresh(e)
		}(e)
	}
	wg.Wait()
}

func (p *Poller) refresh(e *Entity) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	before := e.ConsecutiveFailures()
	err := e.Refresh(ctx, p.fetcher)

	p.mu.Lock()
	n := p.notifier
	p.mu.Unlock()

	if err != nil {
		failures := e.ConsecutiveFailures()
		logger.Warn("Refresh of %s failed (%d consecutive): %v", e.ID(), failures, err)
		if failures == 1 && n != nil {
			if sendErr := n.SendError(fmt.Errorf("refresh of %s: %w", e.ID(), err)); sendErr != nil {
				logger.Warn("Failed to send error notification: %v", sendErr)
			}
		}
		return
	}
	if before > 0 {
		logger.Info("Refresh of %s recovered after %d failures", e.ID(), before)
		if n != nil {
			if sendErr := n.SendRecovery(before); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
	}
	logger.Debug("Refreshed %s: %.5f", e.ID(), e.Value())
}

// Start begins scheduled refreshes.
func (p *Poller) Start() {
	p.cron.Start()
}

// Stop halts scheduling, cancels in-flight refreshes and waits for them.
func (p *Poller) Stop() {
	p.cancel()
	<-p.cron.Stop().Done()
}
