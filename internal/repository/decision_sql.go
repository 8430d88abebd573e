package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"grandgold-errcache/internal/model"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	schema      []string
	placeholder func(n int) string
	sizeQuery   string
}

// SQLDecisionRepository implements DecisionRepository on database/sql.
// Use NewSQLiteDecisionRepository, NewPostgresDecisionRepository or
// NewMySQLDecisionRepository to construct one.
type SQLDecisionRepository struct {
	db      *sql.DB
	dialect dialect
	log     *slog.Logger
}

func newSQLDecisionRepository(db *sql.DB, d dialect) (*SQLDecisionRepository, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return &SQLDecisionRepository{
		db:      db,
		dialect: d,
		log:     slog.With("component", d.name+"DecisionRepository"),
	}, nil
}

// BatchInsert inserts decisions inside one transaction using a prepared statement.
func (r *SQLDecisionRepository) BatchInsert(ctx context.Context, decisions []model.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.insertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range decisions {
		_, err := stmt.ExecContext(ctx,
			d.ID, d.Key, d.Operation, d.Message, d.Reason, d.Visible, d.RetryCount, d.RecordedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert decision %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLDecisionRepository) insertQuery() string {
	ph := make([]string, 8)
	for i := range ph {
		ph[i] = r.dialect.placeholder(i + 1)
	}
	return `INSERT INTO error_decisions
		(id, cache_key, operation, message, reason, visible, retry_count, recorded_at)
		VALUES (` + strings.Join(ph, ", ") + `)`
}

// ListRecent returns up to limit decisions, newest first.
func (r *SQLDecisionRepository) ListRecent(ctx context.Context, key string, limit int) ([]model.Decision, error) {
	query := `SELECT id, cache_key, operation, message, reason, visible, retry_count, recorded_at
		FROM error_decisions`
	args := []interface{}{}

	if key != "" {
		query += ` WHERE cache_key = ` + r.dialect.placeholder(1)
		args = append(args, key)
	}
	query += ` ORDER BY recorded_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	decisions := make([]model.Decision, 0, limit)
	for rows.Next() {
		var d model.Decision
		if err := rows.Scan(&d.ID, &d.Key, &d.Operation, &d.Message, &d.Reason, &d.Visible, &d.RetryCount, &d.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}

	return decisions, nil
}

// DeleteOlderThan removes decisions recorded before cutoff.
func (r *SQLDecisionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM error_decisions WHERE recorded_at < ` + r.dialect.placeholder(1)
	result, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old decisions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		r.log.Info("pruned decision log", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// GetStats returns statistics about the decision log.
func (r *SQLDecisionRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["backend"] = r.dialect.name

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM error_decisions").Scan(&count); err != nil {
		return nil, err
	}
	stats["total_decisions"] = count

	var visible int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM error_decisions WHERE visible = "+r.dialect.placeholder(1), true).Scan(&visible); err == nil {
		stats["visible_decisions"] = visible
	}

	if r.dialect.sizeQuery != "" {
		var size int64
		if err := r.db.QueryRowContext(ctx, r.dialect.sizeQuery).Scan(&size); err == nil {
			stats["db_size_bytes"] = size
		}
	}

	dbStats := r.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}

	return stats, nil
}

// Close closes the database connection.
func (r *SQLDecisionRepository) Close() error {
	return r.db.Close()
}

var _ DecisionRepository = (*SQLDecisionRepository)(nil)

func questionPlaceholder(int) string { return "?" }

func dollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }
