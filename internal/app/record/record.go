package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"xray/internal/app/errors"
)

// Level represents the severity of a log record
type Level string

// Known log levels
const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// Levels lists all known levels in display order
func Levels() []Level {
	return []Level{LevelError, LevelWarning, LevelInfo, LevelDebug}
}

// ParseLevel normalizes a level string against the known levels.
// Unknown levels are rejected rather than defaulted.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelError:
		return LevelError, nil
	case LevelWarning:
		return LevelWarning, nil
	case LevelInfo:
		return LevelInfo, nil
	case LevelDebug:
		return LevelDebug, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownLevel, s)
	}
}

// LevelSet is a set of log levels
type LevelSet map[Level]bool

// NewLevelSet creates a set containing the given levels
func NewLevelSet(levels ...Level) LevelSet {
	set := make(LevelSet, len(levels))
	for _, l := range levels {
		set[l] = true
	}

	return set
}

// AllLevels returns a set containing every known level
func AllLevels() LevelSet {
	return NewLevelSet(Levels()...)
}

// Has reports whether the set contains the given level
func (s LevelSet) Has(level Level) bool {
	return s[level]
}

// Clone returns an independent copy of the set
func (s LevelSet) Clone() LevelSet {
	clone := make(LevelSet, len(s))
	for l, ok := range s {
		if ok {
			clone[l] = true
		}
	}

	return clone
}

// Record represents a single decoded log entry. Records are immutable once
// created; they are only ever inserted and deleted, never updated.
type Record struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     Level           `json:"level"`
	Project   string          `json:"project"`
	Message   string          `json:"message"`
	Trace     json.RawMessage `json:"trace,omitempty"`
}

// HasTrace reports whether the record carries trace data
func (r Record) HasTrace() bool {
	return len(r.Trace) > 0
}
