package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes live in the table DDL.
// Cache keys embed canonical variables and have no length bound, so cache_key
// is TEXT with a prefix index.
var mysqlDialect = dialect{
	name: "MySQL",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS error_decisions (
			id CHAR(36) PRIMARY KEY,
			cache_key TEXT NOT NULL,
			operation VARCHAR(256) NOT NULL,
			message TEXT NOT NULL,
			reason VARCHAR(32) NOT NULL,
			visible BOOLEAN NOT NULL,
			retry_count INT NOT NULL DEFAULT 0,
			recorded_at DATETIME(6) NOT NULL,
			INDEX idx_decisions_key (cache_key(255)),
			INDEX idx_decisions_recorded_at (recorded_at)
		)`,
	},
	placeholder: questionPlaceholder,
	sizeQuery: `SELECT COALESCE(data_length + index_length, 0) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = 'error_decisions'`,
}

// NewMySQLDecisionRepository connects to MySQL. The DSN must set parseTime=true.
func NewMySQLDecisionRepository(dsn string) (*SQLDecisionRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	repo, err := newSQLDecisionRepository(db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("decision log initialized", "backend", "mysql")
	return repo, nil
}
