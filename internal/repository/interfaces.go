package repository

import (
	"context"
	"time"

	"grandgold-errcache/internal/model"
)

// DecisionRepository defines decision log data access methods.
type DecisionRepository interface {
	// BatchInsert stores multiple decisions efficiently.
	BatchInsert(ctx context.Context, decisions []model.Decision) error

	// ListRecent returns the newest decisions first. An empty key lists all keys.
	ListRecent(ctx context.Context, key string, limit int) ([]model.Decision, error)

	// DeleteOlderThan removes decisions recorded before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// GetStats returns statistics about the decision log.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}
