package filter

import (
	"xray/internal/app/record"
)

// Filter is the predicate applied to produce the visible log list. The zero
// Project value means "all projects". An empty level set matches nothing;
// a misconfigured filter must never silently show everything.
type Filter struct {
	Levels        record.LevelSet
	Project       string
	BookmarksOnly bool
}

// Update is a partial filter change. Nil fields leave the corresponding
// filter field untouched; merges are shallow by contract.
type Update struct {
	Levels        *record.LevelSet
	Project       *string
	BookmarksOnly *bool
}

// Default returns the initial filter: every level, all projects, bookmarks
// and non-bookmarks alike.
func Default() Filter {
	return Filter{Levels: record.AllLevels()}
}

// Merge applies a partial update and returns the resulting filter. The
// receiver is not modified.
func (f Filter) Merge(u Update) Filter {
	merged := f
	merged.Levels = f.Levels.Clone()

	if u.Levels != nil {
		merged.Levels = u.Levels.Clone()
	}

	if u.Project != nil {
		merged.Project = *u.Project
	}

	if u.BookmarksOnly != nil {
		merged.BookmarksOnly = *u.BookmarksOnly
	}

	return merged
}

// Matches reports whether a record satisfies the filter given the current
// bookmark id set. Pure and stateless.
func Matches(rec record.Record, f Filter, bookmarks map[string]bool) bool {
	if !f.Levels.Has(rec.Level) {
		return false
	}

	if f.Project != "" && rec.Project != f.Project {
		return false
	}

	if f.BookmarksOnly && !bookmarks[rec.ID] {
		return false
	}

	return true
}
