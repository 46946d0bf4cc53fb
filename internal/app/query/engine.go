package query

import (
	"context"
	"sync"

	"xray/internal/app/filter"
	"xray/internal/app/record"
	"xray/internal/app/store"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// Snapshot is a full recomputation of the filtered log list. Subscribers
// always receive complete snapshots, never incremental diffs. A store
// failure travels on the snapshot instead of being swallowed.
type Snapshot struct {
	Records   []record.Record
	Bookmarks map[string]bool
	Err       error
}

// Engine keeps the filtered log list up to date. It observes store
// mutations and filter changes, recomputes synchronously on the mutating
// goroutine and republishes to all subscribers. By the time a mutation or
// filter update returns to its caller, the current snapshot reflects it.
type Engine interface {
	SetFilter(f filter.Filter)
	Filter() filter.Filter
	Current() Snapshot
	Subscribe(ctx context.Context) <-chan Snapshot
	Refresh()
	StoreChanged(ev store.Event)
}

// engine implements the Engine interface
type engine struct {
	store       store.Store
	buffer      int
	filter      filter.Filter
	snapshot    Snapshot
	subscribers map[chan Snapshot]struct{}
	mu          sync.RWMutex
	log         logger.Logger
}

// NewEngine creates a live query engine bound to the store's mutation feed
func NewEngine(cfg *config.Config, s store.Store, log logger.Logger) Engine {
	e := &engine{
		store:       s,
		buffer:      cfg.Feed.Buffer,
		filter:      filter.Default(),
		subscribers: make(map[chan Snapshot]struct{}),
		log:         log.WithComponent("QUERY"),
	}

	e.Refresh()
	s.Subscribe(e)

	return e
}

// SetFilter replaces the active filter and synchronously recomputes the
// snapshot. When this returns, no subscriber can observe a result computed
// against the previous filter.
func (e *engine) SetFilter(f filter.Filter) {
	e.mu.Lock()
	e.filter = f
	e.mu.Unlock()

	e.Refresh()
}

// Filter returns the active filter
func (e *engine) Filter() filter.Filter {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.filter
}

// Current returns the latest computed snapshot
func (e *engine) Current() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.snapshot
}

// Subscribe returns a channel of snapshots, primed with the current one.
// Slow subscribers may miss intermediate snapshots but always receive the
// most recent state.
func (e *engine) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, e.buffer)

	// priming under the lock keeps the buffer ordered: a concurrent Refresh
	// cannot enqueue a newer snapshot ahead of the primed one
	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	ch <- e.snapshot
	e.mu.Unlock()

	go func() {
		<-ctx.Done()

		e.mu.Lock()
		delete(e.subscribers, ch)
		e.mu.Unlock()

		close(ch)
	}()

	return ch
}

// StoreChanged implements store.Observer: every committed mutation
// invalidates the snapshot
func (e *engine) StoreChanged(ev store.Event) {
	e.Refresh()
}

// Refresh recomputes the snapshot from the store and republishes it
func (e *engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snapshot = e.compute()

	for ch := range e.subscribers {
		send(ch, e.snapshot)
	}
}

// compute runs the filtered query. Called with the engine lock held.
func (e *engine) compute() Snapshot {
	records, err := e.store.ListLogs(e.filter)
	if err != nil {
		if e.log != nil {
			e.log.Error().Err(err).Msg("Live query failed")
		}

		return Snapshot{Err: err}
	}

	bookmarks, err := e.store.Bookmarks()
	if err != nil {
		if e.log != nil {
			e.log.Error().Err(err).Msg("Bookmark lookup failed")
		}

		return Snapshot{Err: err}
	}

	return Snapshot{Records: records, Bookmarks: bookmarks}
}

// send delivers latest-wins: when the subscriber buffer is full the oldest
// pending snapshot is evicted so the final state always gets through
func send(ch chan Snapshot, snapshot Snapshot) {
	for {
		select {
		case ch <- snapshot:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}
