package session

import (
	"context"
	"sync"

	"xray/internal/app/envelope"
	"xray/internal/app/filter"
	"xray/internal/app/query"
	"xray/internal/app/record"
	"xray/internal/app/selection"
	"xray/internal/app/stats"
	"xray/internal/app/store"
	"xray/internal/config/logger"
)

// Session is the single surface the UI layer talks to. It owns the ephemeral
// per-run state (active filter, selection) and routes every mutation through
// the store, so that by the time an operation returns, the live snapshot and
// counters already reflect it.
type Session interface {
	Ingest(raw []byte) (record.Record, error)
	DeleteLog(id string) error
	ClearAll() error
	ToggleBookmark(id string) error
	UpdateFilters(u filter.Update) filter.Filter
	ToggleSelect(id string) bool
	StartComparison() bool
	CancelComparison()

	Filter() filter.Filter
	Selected() []string
	IsComparing() bool
	Snapshot() query.Snapshot
	Totals() stats.Totals
	WatchLogs(ctx context.Context) <-chan query.Snapshot
	WatchTotals(ctx context.Context) <-chan stats.Totals

	StoreChanged(ev store.Event)
}

// session implements the Session interface
type session struct {
	decoder  envelope.Decoder
	store    store.Store
	engine   query.Engine
	tracker  selection.Tracker
	counters stats.Counters
	mu       sync.Mutex
	log      logger.Logger
}

// NewSession creates the session and registers it on the store's mutation
// feed so deletions prune the selection. The engine and counters subscribe
// in their own constructors, before the session does: when the session's
// observer runs, the snapshot is already current.
func NewSession(
	decoder envelope.Decoder,
	s store.Store,
	engine query.Engine,
	tracker selection.Tracker,
	counters stats.Counters,
	log logger.Logger,
) Session {
	sess := &session{
		decoder:  decoder,
		store:    s,
		engine:   engine,
		tracker:  tracker,
		counters: counters,
		log:      log.WithComponent("SESSION"),
	}

	s.Subscribe(sess)

	return sess
}

// Ingest decodes a raw envelope and persists the resulting record
func (s *session) Ingest(raw []byte) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.decoder.Decode(raw)
	if err != nil {
		return record.Record{}, err
	}

	if err := s.store.InsertLog(rec); err != nil {
		return record.Record{}, err
	}

	s.log.Debug().
		Str("id", rec.ID).
		Str("project", rec.Project).
		Str("level", string(rec.Level)).
		Msg("Log ingested")

	return rec, nil
}

// DeleteLog removes a single log. Its bookmark goes with it, and the
// selection is pruned through the store notification.
func (s *session) DeleteLog(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.DeleteLog(id)
}

// ClearAll wipes every log and bookmark and empties the selection
func (s *session) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.ClearAll()
}

// ToggleBookmark flips the bookmark on a log. Toggling an unknown id is a
// no-op, matching the store's bookmark semantics.
func (s *session) ToggleBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookmarks, err := s.store.Bookmarks()
	if err != nil {
		return err
	}

	if bookmarks[id] {
		return s.store.RemoveBookmark(id)
	}

	return s.store.AddBookmark(id)
}

// UpdateFilters merges a partial filter update into the active filter.
// Untouched fields keep their values. The snapshot reflects the merged
// filter before this returns.
func (s *session) UpdateFilters(u filter.Update) filter.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.engine.Filter().Merge(u)
	s.engine.SetFilter(merged)

	return merged
}

// ToggleSelect adds or removes a log from the comparison selection
func (s *session) ToggleSelect(id string) bool {
	return s.tracker.ToggleSelect(id)
}

// StartComparison enters comparison mode when exactly two logs are selected
// and both are present in the current filtered snapshot
func (s *session) StartComparison() bool {
	snapshot := s.engine.Current()

	visible := make(map[string]bool, len(snapshot.Records))
	for _, rec := range snapshot.Records {
		visible[rec.ID] = true
	}

	return s.tracker.StartComparison(visible)
}

// CancelComparison clears the selection entirely
func (s *session) CancelComparison() {
	s.tracker.CancelComparison()
}

// Filter returns the filter currently in effect
func (s *session) Filter() filter.Filter {
	return s.engine.Filter()
}

// Selected returns the selected log ids in selection order
func (s *session) Selected() []string {
	return s.tracker.Selected()
}

// IsComparing reports whether comparison mode is active
func (s *session) IsComparing() bool {
	return s.tracker.IsComparing()
}

// Snapshot returns the current filtered snapshot
func (s *session) Snapshot() query.Snapshot {
	return s.engine.Current()
}

// Totals returns the current aggregate counters
func (s *session) Totals() stats.Totals {
	return s.counters.Current()
}

// WatchLogs subscribes to filtered snapshots
func (s *session) WatchLogs(ctx context.Context) <-chan query.Snapshot {
	return s.engine.Subscribe(ctx)
}

// WatchTotals subscribes to aggregate counters
func (s *session) WatchTotals(ctx context.Context) <-chan stats.Totals {
	return s.counters.Subscribe(ctx)
}

// StoreChanged implements store.Observer. It runs synchronously on the
// mutating goroutine, which may already hold the session mutex, so it only
// touches the tracker.
func (s *session) StoreChanged(ev store.Event) {
	switch ev.Type {
	case store.EventLogDeleted:
		if s.tracker.Drop(ev.ID) {
			s.log.Debug().Str("id", ev.ID).Msg("Selection pruned after delete")
		}
	case store.EventCleared:
		s.tracker.Clear()
	}
}
