package stats

import (
	"context"
	"sync"

	"xray/internal/app/store"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// Totals is a full recomputation of the aggregate counters. Counters are
// always derived from the raw store, never from the filtered view: hiding
// logs behind a filter must not change any count.
type Totals struct {
	Counts   store.Counts
	Projects []string
	Err      error
}

// Counters exposes live aggregate counts over the whole store
type Counters interface {
	Current() Totals
	Subscribe(ctx context.Context) <-chan Totals
	Refresh()
	StoreChanged(ev store.Event)
}

// counters implements the Counters interface
type counters struct {
	store       store.Store
	buffer      int
	totals      Totals
	subscribers map[chan Totals]struct{}
	mu          sync.RWMutex
	log         logger.Logger
}

// NewCounters creates a counter engine bound to the store's mutation feed
func NewCounters(cfg *config.Config, s store.Store, log logger.Logger) Counters {
	c := &counters{
		store:       s,
		buffer:      cfg.Feed.Buffer,
		subscribers: make(map[chan Totals]struct{}),
		log:         log.WithComponent("STATS"),
	}

	c.Refresh()
	s.Subscribe(c)

	return c
}

// Current returns the latest computed totals
func (c *counters) Current() Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.totals
}

// Subscribe returns a channel of totals, primed with the current ones.
// Slow subscribers may miss intermediate totals but always receive the most
// recent state.
func (c *counters) Subscribe(ctx context.Context) <-chan Totals {
	ch := make(chan Totals, c.buffer)

	// priming under the lock keeps the buffer ordered: a concurrent Refresh
	// cannot enqueue newer totals ahead of the primed ones
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.totals
	c.mu.Unlock()

	go func() {
		<-ctx.Done()

		c.mu.Lock()
		delete(c.subscribers, ch)
		c.mu.Unlock()

		close(ch)
	}()

	return ch
}

// StoreChanged implements store.Observer: every committed mutation
// invalidates the totals
func (c *counters) StoreChanged(ev store.Event) {
	c.Refresh()
}

// Refresh recomputes the totals from the store and republishes them
func (c *counters) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totals = c.compute()

	for ch := range c.subscribers {
		send(ch, c.totals)
	}
}

// compute queries the raw store. Called with the counters lock held.
func (c *counters) compute() Totals {
	counts, err := c.store.Counts()
	if err != nil {
		if c.log != nil {
			c.log.Error().Err(err).Msg("Count query failed")
		}

		return Totals{Err: err}
	}

	projects, err := c.store.AllProjects()
	if err != nil {
		if c.log != nil {
			c.log.Error().Err(err).Msg("Project query failed")
		}

		return Totals{Err: err}
	}

	return Totals{Counts: counts, Projects: projects}
}

// send delivers latest-wins: when the subscriber buffer is full the oldest
// pending totals are evicted so the final state always gets through
func send(ch chan Totals, totals Totals) {
	for {
		select {
		case ch <- totals:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}
