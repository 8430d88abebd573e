package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"grandgold-errcache/internal/errorcache"
	"grandgold-errcache/internal/metrics"
	"grandgold-errcache/internal/model"
	"grandgold-errcache/internal/repository"
	"grandgold-errcache/pkg/uid"
)

// ErrDecisionLogDisabled is returned by Recent when no decision log is configured.
var ErrDecisionLogDisabled = errors.New("decision log is not configured")

// Verdict is the answer to a reported outcome.
type Verdict struct {
	Key     string            `json:"key"`
	Visible bool              `json:"visible"`
	Reason  errorcache.Reason `json:"reason"`
	Entry   *errorcache.Entry `json:"entry,omitempty"`
}

// RetryAdvice describes the retry state of a key.
type RetryAdvice struct {
	Key        string        `json:"key"`
	Allowed    bool          `json:"allowed"`
	RetryCount int           `json:"retry_count"`
	Delay      time.Duration `json:"-"`
}

// SuppressionService handles error suppression business logic for remote
// consumers: it derives keys, applies the cache policy, logs decisions and
// records metrics.
type SuppressionService struct {
	cache    *errorcache.Cache
	recorder *Recorder
	repo     repository.DecisionRepository
	enabled  bool
	log      *slog.Logger
}

// NewSuppressionService creates a new suppression service.
// recorder and repo may be nil when no decision log is configured.
func NewSuppressionService(
	cache *errorcache.Cache,
	recorder *Recorder,
	repo repository.DecisionRepository,
	enabled bool,
) *SuppressionService {
	return &SuppressionService{
		cache:    cache,
		recorder: recorder,
		repo:     repo,
		enabled:  enabled,
		log:      slog.With("component", "SuppressionService"),
	}
}

// Enabled reports whether errors may be displayed at all.
func (s *SuppressionService) Enabled() bool { return s.enabled }

// Cache returns the underlying error cache.
func (s *SuppressionService) Cache() *errorcache.Cache { return s.cache }

// Report feeds one outcome for an operation. A nil message is a success.
// When display is disabled the store is still updated but nothing is visible.
func (s *SuppressionService) Report(ctx context.Context, operation string, variables map[string]any, message *string) Verdict {
	key, err := errorcache.DeriveKey(operation, variables)
	if err != nil {
		s.log.Warn("cannot derive cache key, showing error", "operation", operation, "error", err)
		v := Verdict{Visible: message != nil && s.enabled, Reason: errorcache.ReasonKeyError}
		s.observe(operation, "", message, v)
		return v
	}

	if message == nil {
		if err := s.cache.Clear(ctx, key); err != nil {
			metrics.StoreErrors.WithLabelValues("clear").Inc()
			s.log.Warn("failed to clear entry on success", "key", key, "error", err)
		}
		v := Verdict{Key: key, Reason: errorcache.ReasonSuccess}
		s.observe(operation, key, nil, v)
		return v
	}

	d := s.cache.Evaluate(ctx, key, *message)
	if d.Reason == errorcache.ReasonStoreError {
		metrics.StoreErrors.WithLabelValues("update").Inc()
	}

	v := Verdict{
		Key:     key,
		Visible: d.Show && s.enabled,
		Reason:  d.Reason,
	}
	if d.Reason != errorcache.ReasonStoreError {
		entry := d.Entry
		v.Entry = &entry
	}

	s.observe(operation, key, message, v)
	return v
}

// observe records metrics and buffers the decision for the decision log.
func (s *SuppressionService) observe(operation, key string, message *string, v Verdict) {
	metrics.Decisions.WithLabelValues(string(v.Reason), strconv.FormatBool(v.Visible)).Inc()

	if s.recorder == nil {
		return
	}

	d := model.Decision{
		ID:         uid.New(),
		Key:        key,
		Operation:  operation,
		Reason:     string(v.Reason),
		Visible:    v.Visible,
		RecordedAt: s.cache.Clock().Now(),
	}
	if message != nil {
		d.Message = *message
	}
	if v.Entry != nil {
		d.RetryCount = v.Entry.RetryCount
	}
	s.recorder.Add(d)
}

// Dismiss marks the operation's current error as dismissed.
func (s *SuppressionService) Dismiss(ctx context.Context, operation string, variables map[string]any) (string, error) {
	key, err := errorcache.DeriveKey(operation, variables)
	if err != nil {
		return "", err
	}

	if err := s.cache.Dismiss(ctx, key); err != nil {
		metrics.StoreErrors.WithLabelValues("dismiss").Inc()
		return key, err
	}

	metrics.Dismissals.Inc()
	s.log.Debug("dismissed", "key", key)
	return key, nil
}

// CheckRetry reports whether a retry of the operation is due.
func (s *SuppressionService) CheckRetry(ctx context.Context, operation string, variables map[string]any) (RetryAdvice, error) {
	key, err := errorcache.DeriveKey(operation, variables)
	if err != nil {
		return RetryAdvice{}, err
	}

	advice := s.advice(ctx, key, s.cache.ShouldRetry(ctx, key))
	metrics.Retries.WithLabelValues(checkResult(advice.Allowed)).Inc()
	return advice, nil
}

// RecordRetry records a retry of the operation if one is due.
func (s *SuppressionService) RecordRetry(ctx context.Context, operation string, variables map[string]any) (RetryAdvice, error) {
	key, err := errorcache.DeriveKey(operation, variables)
	if err != nil {
		return RetryAdvice{}, err
	}

	advice := s.advice(ctx, key, s.cache.RecordRetry(ctx, key))
	if advice.Allowed {
		metrics.Retries.WithLabelValues("recorded").Inc()
	} else {
		metrics.Retries.WithLabelValues("rejected").Inc()
	}
	return advice, nil
}

func (s *SuppressionService) advice(ctx context.Context, key string, allowed bool) RetryAdvice {
	advice := RetryAdvice{
		Key:     key,
		Allowed: allowed,
		Delay:   s.cache.RetryDelay(ctx, key),
	}
	if entry, err := s.cache.Lookup(ctx, key); err == nil {
		advice.RetryCount = entry.RetryCount
	}
	return advice
}

func checkResult(allowed bool) string {
	if allowed {
		return "due"
	}
	return "not_due"
}

// Inspect returns the cached entry for an operation.
func (s *SuppressionService) Inspect(ctx context.Context, operation string, variables map[string]any) (string, errorcache.Entry, error) {
	key, err := errorcache.DeriveKey(operation, variables)
	if err != nil {
		return "", errorcache.Entry{}, err
	}

	entry, err := s.cache.Lookup(ctx, key)
	return key, entry, err
}

// Clear removes the cached entry for an operation.
func (s *SuppressionService) Clear(ctx context.Context, operation string, variables map[string]any) (string, error) {
	key, err := errorcache.DeriveKey(operation, variables)
	if err != nil {
		return "", err
	}

	if err := s.cache.Clear(ctx, key); err != nil {
		metrics.StoreErrors.WithLabelValues("clear").Inc()
		return key, err
	}
	return key, nil
}

// ClearAll empties the error cache.
func (s *SuppressionService) ClearAll(ctx context.Context) error {
	if err := s.cache.ClearAll(ctx); err != nil {
		metrics.StoreErrors.WithLabelValues("clear_all").Inc()
		return err
	}
	s.log.Info("error cache cleared")
	return nil
}

// Recent returns the newest logged decisions, optionally for one key.
func (s *SuppressionService) Recent(ctx context.Context, key string, limit int) ([]model.Decision, error) {
	if s.repo == nil {
		return nil, ErrDecisionLogDisabled
	}
	return s.repo.ListRecent(ctx, key, limit)
}

// Stats summarises the cache, the recorder and the decision log.
func (s *SuppressionService) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"enabled":          s.enabled,
		"ttl_seconds":      s.cache.TTL().Seconds(),
		"max_retries":      s.cache.MaxRetries(),
		"base_retry_delay": s.cache.BaseRetryDelay().String(),
	}

	if n, err := s.cache.Store().Len(ctx); err == nil {
		stats["entries"] = n
	} else {
		stats["entries_error"] = err.Error()
	}

	if s.recorder != nil {
		stats["pending_decisions"] = s.recorder.Count()
	}

	if s.repo != nil {
		if repoStats, err := s.repo.GetStats(ctx); err == nil {
			repoStats["status"] = "connected"
			stats["decision_log"] = repoStats
		} else {
			stats["decision_log"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["decision_log"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	return stats
}

// Ping checks the error cache store.
func (s *SuppressionService) Ping(ctx context.Context) error {
	if err := s.cache.Store().Ping(ctx); err != nil {
		return fmt.Errorf("error cache store unreachable: %w", err)
	}
	return nil
}

// NewDecisionFlushFunc adapts a decision repository to the recorder.
func NewDecisionFlushFunc(repo repository.DecisionRepository) FlushFunc {
	return func(ctx context.Context, decisions []model.Decision) error {
		return repo.BatchInsert(ctx, decisions)
	}
}
