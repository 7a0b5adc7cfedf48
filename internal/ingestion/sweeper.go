package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

// SilenceChecker is the alerting capability the sweeper drives.
type SilenceChecker interface {
	SweepSilence(ctx context.Context) error
}

// Sweeper runs the silent-station check on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	checker SilenceChecker
	metrics *observability.Metrics
}

func NewSweeper(ctx context.Context, schedule string, checker SilenceChecker, metrics *observability.Metrics) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(),
		checker: checker,
		metrics: metrics,
	}
	_, err := s.cron.AddFunc(schedule, func() { s.run(ctx) })
	if err != nil {
		return nil, fmt.Errorf("invalid silence sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.checker.SweepSilence(ctx); err != nil {
		slog.Error("silence sweep failed", "error", err)
	}
	s.metrics.SilenceSweeps.Inc()
}

func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("silence sweeper started", "entries", len(s.cron.Entries()))
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
