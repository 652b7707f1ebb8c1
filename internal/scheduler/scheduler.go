// Package scheduler runs the periodic points reconciliation.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sakif/matchday/internal/model"
)

// Reconciler rebuilds every user's total from the finished matches.
type Reconciler interface {
	Recompute(ctx context.Context) (*model.RecomputeSummary, error)
}

// Scheduler triggers a Reconciler on a fixed interval.
type Scheduler struct {
	sched      gocron.Scheduler
	reconciler Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

// New registers a reconcile job that runs every interval. A run that is still
// in progress when the next one is due causes that tick to be skipped.
func New(reconciler Reconciler, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	s := &Scheduler{
		sched:      sched,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.reconcile),
		gocron.WithName("reconcile-points"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("scheduler: registering job: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("reconcile scheduler started", "interval", s.interval)
	s.sched.Start()
}

// Stop waits for a running job to finish and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	start := time.Now()
	summary, err := s.reconciler.Recompute(ctx)
	if err != nil {
		s.logger.Error("scheduled reconcile failed", "error", err)
		return
	}
	s.logger.Info("scheduled reconcile finished",
		"duration", time.Since(start),
		"matches", summary.UpdatedMatches,
		"scoredPredictions", summary.ScoredPredictions,
		"updatedPredictions", summary.UpdatedPredictions,
		"updatedUsers", summary.UpdatedUsers,
	)
}
