package store

// migrations holds the schema migration steps, applied in order. The
// schema version is tracked with PRAGMA user_version; adding a step must
// preserve existing records.
var migrations = [][]string{
	// v1: base collections
	{
		`CREATE TABLE IF NOT EXISTS logs (
			id      TEXT PRIMARY KEY,
			ts      INTEGER NOT NULL,
			level   TEXT NOT NULL,
			project TEXT NOT NULL,
			message TEXT NOT NULL,
			trace   TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS bookmarks (
			log_id TEXT PRIMARY KEY
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_project ON logs(project)`,
	},
	// v2: timestamp index for newest-first listing
	{
		`CREATE INDEX IF NOT EXISTS idx_logs_ts ON logs(ts)`,
	},
}
