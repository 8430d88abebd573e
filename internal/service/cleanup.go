package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"grandgold-errcache/internal/repository"
)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// Retention is how long decisions are kept.
	// Default: 72 hours
	Retention time.Duration

	// CleanupInterval is how often the cleanup runs.
	// Default: 1 hour
	CleanupInterval time.Duration

	// InitialDelay postpones the first run after Start.
	// Default: 1 minute
	InitialDelay time.Duration
}

// CleanupScheduler periodically prunes old decisions from the decision log.
type CleanupScheduler struct {
	repo      repository.DecisionRepository
	config    CleanupConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	log       *slog.Logger
	now       func() time.Time
}

// NewCleanupScheduler creates a new cleanup scheduler.
func NewCleanupScheduler(repo repository.DecisionRepository, config CleanupConfig) *CleanupScheduler {
	if config.Retention == 0 {
		config.Retention = 72 * time.Hour
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Hour
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = time.Minute
	}

	return &CleanupScheduler{
		repo:   repo,
		config: config,
		stopCh: make(chan struct{}),
		log:    slog.With("component", "CleanupScheduler"),
		now:    time.Now,
	}
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.CleanupInterval)
	s.mu.Unlock()

	s.log.Info("started", "interval", s.config.CleanupInterval, "retention", s.config.Retention)

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runCleanup()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

func (s *CleanupScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.log.Info("stopped")
			return
		}
	}
}

func (s *CleanupScheduler) runCleanup() {
	deleted, err := s.RunNow()
	if err != nil {
		s.log.Error("cleanup failed", "error", err)
		return
	}
	s.log.Debug("cleanup finished", "deleted", deleted)
}

// Stop stops the cleanup scheduler.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow deletes decisions older than the retention period.
func (s *CleanupScheduler) RunNow() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return s.repo.DeleteOlderThan(ctx, s.now().Add(-s.config.Retention))
}
