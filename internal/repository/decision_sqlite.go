package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var sqliteDialect = dialect{
	name: "SQLite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS error_decisions (
			id TEXT PRIMARY KEY,
			cache_key TEXT NOT NULL,
			operation TEXT NOT NULL,
			message TEXT NOT NULL,
			reason TEXT NOT NULL,
			visible BOOLEAN NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_key ON error_decisions(cache_key)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_recorded_at ON error_decisions(recorded_at)`,
	},
	placeholder: questionPlaceholder,
	sizeQuery:   `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
}

// NewSQLiteDecisionRepository opens (or creates) a SQLite decision log at dbPath.
func NewSQLiteDecisionRepository(dbPath string) (*SQLDecisionRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	repo, err := newSQLDecisionRepository(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("decision log initialized", "backend", "sqlite", "path", dbPath)
	return repo, nil
}
