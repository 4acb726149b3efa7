// Package coordinator drives the polling cadence for one config entry and
// distributes fresh popularity results to subscribed listeners.
package coordinator

import (
	"context"
	"sync"
	"time"

	"populartimes/internal/clock"
	"populartimes/internal/config"
	"populartimes/internal/populartimes"

	"go.uber.org/zap"
)

// DefaultInterval is the shared poll cadence for all entries.
const DefaultInterval = 10 * time.Minute

// Update is pushed to listeners after every fetch attempt. Result is the
// latest successful fetch (retained across failures for attribute
// continuity); Err is non-nil when the most recent attempt failed.
type Update struct {
	Result *populartimes.Result
	Err    error
}

// Listener receives coordinator updates.
type Listener func(Update)

// Coordinator owns the latest popularity result for one entry and refreshes
// it on a fixed interval. At most one fetch is in flight at a time; a tick
// that lands while a fetch is outstanding is skipped, not queued.
type Coordinator struct {
	entry        config.Entry
	fetcher      populartimes.Fetcher
	clock        clock.Clock
	logger       *zap.Logger
	interval     time.Duration
	fetchTimeout time.Duration

	mu        sync.Mutex
	inFlight  bool
	last      *populartimes.Result
	lastErr   error
	listeners []Listener

	ctx         context.Context
	cancel      context.CancelFunc
	stopChan    chan struct{}
	stoppedChan chan struct{}
	started     bool
}

// New creates a coordinator for the entry. interval <= 0 selects the default.
func New(entry config.Entry, fetcher populartimes.Fetcher, clk clock.Clock, logger *zap.Logger, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		entry:        entry,
		fetcher:      fetcher,
		clock:        clk,
		logger:       logger.Named("coordinator").With(zap.String("entry_id", entry.ID)),
		interval:     interval,
		fetchTimeout: populartimes.DefaultTimeout,
		ctx:          ctx,
		cancel:       cancel,
		stopChan:     make(chan struct{}),
		stoppedChan:  make(chan struct{}),
	}
}

// Entry returns the config entry this coordinator serves.
func (c *Coordinator) Entry() config.Entry {
	return c.entry
}

// Subscribe registers a listener invoked after every fetch attempt.
func (c *Coordinator) Subscribe(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Last returns the latest successful result and the error of the most
// recent attempt.
func (c *Coordinator) Last() (*populartimes.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.lastErr
}

// Start performs an initial refresh and begins the poll loop.
func (c *Coordinator) Start() {
	c.logger.Info("Starting coordinator",
		zap.String("name", c.entry.Name),
		zap.Duration("interval", c.interval))

	c.Refresh()
	// Arm the first tick before returning so a clock advance issued right
	// after Start is never missed.
	go c.pollLoop(c.clock.After(c.interval))
	c.started = true
}

// Stop halts polling and cancels any pending fetch. The result of a fetch
// cancelled this way is discarded.
func (c *Coordinator) Stop() {
	if !c.started {
		return
	}

	close(c.stopChan)
	c.cancel()
	<-c.stoppedChan
	c.started = false

	c.logger.Info("Coordinator stopped")
}

// pollLoop schedules refreshes at the configured interval. Failures do not
// change the cadence; the next attempt happens one interval later.
func (c *Coordinator) pollLoop(tick <-chan time.Time) {
	defer close(c.stoppedChan)

	for {
		select {
		case <-tick:
			// Re-arm before refreshing so the next tick is scheduled even
			// while a refresh is running.
			tick = c.clock.After(c.interval)
			c.Refresh()

			// A tick that fired while the refresh was running is skipped,
			// not replayed; the next attempt waits a full interval.
			select {
			case <-tick:
				tick = c.clock.After(c.interval)
			default:
			}
		case <-c.stopChan:
			return
		}
	}
}

// Refresh fetches popularity data once. If a fetch is already in flight the
// call returns immediately without issuing a second request.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		c.logger.Debug("Fetch already in flight, skipping refresh")
		return
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	defer cancel()

	result, err := c.fetcher.Fetch(ctx, c.entry.Query())

	select {
	case <-c.stopChan:
		// Entry removed or reloaded while the fetch was pending.
		return
	default:
	}

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		c.logger.Warn("Fetch failed",
			zap.String("query", c.entry.Query().SearchString()),
			zap.Error(err))
	} else {
		c.last = result
		c.lastErr = nil
		c.logger.Debug("Fetch succeeded",
			zap.Bool("live", result.HasLive()))
	}
	update := Update{Result: c.last, Err: c.lastErr}
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, listener := range listeners {
		listener(update)
	}
}
