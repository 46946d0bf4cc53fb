package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"xray/internal/app/errors"
	"xray/internal/app/filter"
	"xray/internal/app/record"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// EventType represents the kind of store mutation
type EventType string

// Mutation event types
const (
	EventLogInserted     EventType = "log_inserted"
	EventLogDeleted      EventType = "log_deleted"
	EventCleared         EventType = "cleared"
	EventBookmarkAdded   EventType = "bookmark_added"
	EventBookmarkRemoved EventType = "bookmark_removed"
)

// Event describes a committed store mutation
type Event struct {
	Type   EventType
	ID     string
	Record record.Record
}

// Observer receives mutation events. StoreChanged is invoked synchronously
// on the goroutine that committed the mutation, after the transaction has
// committed.
type Observer interface {
	StoreChanged(ev Event)
}

// Counts holds the aggregate counters derived from the unfiltered store
type Counts struct {
	Total      int            `json:"total"`
	PerProject map[string]int `json:"perProject"`
	Bookmarked int            `json:"bookmarked"`
}

// Store is the durable, transactional home of log records and bookmarks.
// It is the single source of truth: nothing else may mutate either
// collection.
type Store interface {
	InsertLog(rec record.Record) error
	DeleteLog(id string) error
	ClearAll() error
	AddBookmark(id string) error
	RemoveBookmark(id string) error
	ListLogs(f filter.Filter) ([]record.Record, error)
	Bookmarks() (map[string]bool, error)
	AllProjects() ([]string, error)
	Counts() (Counts, error)
	Subscribe(o Observer)
	Close() error
}

// store implements the Store interface on an embedded SQLite database
type store struct {
	db        *sql.DB
	observers []Observer
	mu        sync.RWMutex
	log       logger.Logger
}

// NewStore opens the store at the configured path
func NewStore(cfg *config.Config, log logger.Logger) (Store, error) {
	return Open(cfg.Store.Path, log.WithComponent("STORE"))
}

// Open opens (creating if necessary) a store at the given path and applies
// any pending schema migrations
func Open(path string, log logger.Logger) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	// SQLite supports one writer at a time; a single connection keeps the
	// driver from returning SQLITE_BUSY under concurrent mutations.
	db.SetMaxOpenConns(1)

	s := &store{db: db, log: log}

	if err := s.migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// migrate brings the schema up to the current version
func (s *store) migrate() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return mapError(err)
	}

	for ; version < len(migrations); version++ {
		tx, err := s.db.Begin()
		if err != nil {
			return mapError(err)
		}

		for _, stmt := range migrations[version] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()

				return mapError(err)
			}
		}

		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version+1)); err != nil {
			tx.Rollback()

			return mapError(err)
		}

		if err := tx.Commit(); err != nil {
			return mapError(err)
		}

		if s.log != nil {
			s.log.Debug().Msgf("Schema migrated to version %d", version+1)
		}
	}

	return nil
}

// Subscribe registers a mutation observer. Observers must be registered
// before mutations begin flowing; registration is not re-entrant.
func (s *store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, o)
}

// InsertLog inserts a new log record. Inserting an id that already exists
// fails with ErrDuplicateLog and has no effect.
func (s *store) InsertLog(rec record.Record) error {
	var trace interface{}
	if rec.HasTrace() {
		trace = string(rec.Trace)
	}

	_, err := s.db.Exec(
		`INSERT INTO logs (id, ts, level, project, message, trace) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), string(rec.Level), rec.Project, rec.Message, trace,
	)
	if err != nil {
		return mapError(err)
	}

	s.notify(Event{Type: EventLogInserted, ID: rec.ID, Record: rec})

	return nil
}

// DeleteLog removes a log record and any bookmark for it in one atomic
// unit. Deleting an absent id is a successful no-op.
func (s *store) DeleteLog(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return mapError(err)
	}

	if _, err := tx.Exec(`DELETE FROM bookmarks WHERE log_id = ?`, id); err != nil {
		tx.Rollback()

		return mapError(err)
	}

	res, err := tx.Exec(`DELETE FROM logs WHERE id = ?`, id)
	if err != nil {
		tx.Rollback()

		return mapError(err)
	}

	deleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}

	if deleted > 0 {
		s.notify(Event{Type: EventLogDeleted, ID: id})
	}

	return nil
}

// ClearAll empties both collections atomically
func (s *store) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return mapError(err)
	}

	for _, stmt := range []string{`DELETE FROM bookmarks`, `DELETE FROM logs`} {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()

			return mapError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}

	s.notify(Event{Type: EventCleared})

	return nil
}

// AddBookmark marks a log id as bookmarked. Idempotent; bookmarking an id
// with no stored record is a no-op so a bookmark can never outlive its log.
func (s *store) AddBookmark(id string) error {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO bookmarks (log_id) SELECT id FROM logs WHERE id = ?`, id,
	)
	if err != nil {
		return mapError(err)
	}

	if added, _ := res.RowsAffected(); added > 0 {
		s.notify(Event{Type: EventBookmarkAdded, ID: id})
	}

	return nil
}

// RemoveBookmark unmarks a log id. Removing a missing bookmark is not an
// error.
func (s *store) RemoveBookmark(id string) error {
	res, err := s.db.Exec(`DELETE FROM bookmarks WHERE log_id = ?`, id)
	if err != nil {
		return mapError(err)
	}

	if removed, _ := res.RowsAffected(); removed > 0 {
		s.notify(Event{Type: EventBookmarkRemoved, ID: id})
	}

	return nil
}

// ListLogs returns all records satisfying the filter, newest first. Every
// consumer relies on the descending timestamp ordering.
func (s *store) ListLogs(f filter.Filter) ([]record.Record, error) {
	if len(f.Levels) == 0 {
		return []record.Record{}, nil
	}

	query := strings.Builder{}
	query.WriteString(`SELECT l.id, l.ts, l.level, l.project, l.message, l.trace FROM logs l`)

	if f.BookmarksOnly {
		query.WriteString(` JOIN bookmarks b ON b.log_id = l.id`)
	}

	args := make([]interface{}, 0, len(f.Levels)+1)
	placeholders := make([]string, 0, len(f.Levels))

	for _, level := range record.Levels() {
		if f.Levels.Has(level) {
			placeholders = append(placeholders, "?")
			args = append(args, string(level))
		}
	}

	query.WriteString(` WHERE l.level IN (` + strings.Join(placeholders, ", ") + `)`)

	if f.Project != "" {
		query.WriteString(` AND l.project = ?`)
		args = append(args, f.Project)
	}

	query.WriteString(` ORDER BY l.ts DESC, l.rowid DESC`)

	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	records := []record.Record{}

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapError(err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return records, nil
}

// Bookmarks returns the set of bookmarked log ids
func (s *store) Bookmarks() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT log_id FROM bookmarks`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	ids := make(map[string]bool)

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}

		ids[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return ids, nil
}

// AllProjects returns the distinct project names across all stored logs,
// sorted for stable presentation
func (s *store) AllProjects() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT project FROM logs`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	projects := []string{}

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, mapError(err)
		}

		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	sort.Strings(projects)

	return projects, nil
}

// Counts returns the aggregate counters over the unfiltered store
func (s *store) Counts() (Counts, error) {
	counts := Counts{PerProject: make(map[string]int)}

	rows, err := s.db.Query(`SELECT project, COUNT(*) FROM logs GROUP BY project`)
	if err != nil {
		return Counts{}, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			project string
			n       int
		)

		if err := rows.Scan(&project, &n); err != nil {
			return Counts{}, mapError(err)
		}

		counts.PerProject[project] = n
		counts.Total += n
	}

	if err := rows.Err(); err != nil {
		return Counts{}, mapError(err)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bookmarks`).Scan(&counts.Bookmarked); err != nil {
		return Counts{}, mapError(err)
	}

	return counts, nil
}

// Close closes the underlying database
func (s *store) Close() error {
	return s.db.Close()
}

// notify delivers a mutation event to all observers, synchronously, in
// registration order
func (s *store) notify(ev Event) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, o := range observers {
		o.StoreChanged(ev)
	}
}

// scanRecord reads one record row
func scanRecord(rows *sql.Rows) (record.Record, error) {
	var (
		rec   record.Record
		ts    int64
		level string
		trace sql.NullString
	)

	if err := rows.Scan(&rec.ID, &ts, &level, &rec.Project, &rec.Message, &trace); err != nil {
		return record.Record{}, err
	}

	rec.Timestamp = time.Unix(0, ts).UTC()
	rec.Level = record.Level(level)

	if trace.Valid && trace.String != "" {
		rec.Trace = json.RawMessage(trace.String)
	}

	return rec, nil
}

// mapError translates driver errors onto the store error taxonomy
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %w", errors.ErrDuplicateLog, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %w", errors.ErrStoreCorrupt, err)
		case sqlite3.ErrFull:
			return fmt.Errorf("%w: %w", errors.ErrQuotaExceeded, err)
		}
	}

	return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
}
