// Package worker runs the background comparison recalculation loop.
//
// Comparison charts carry period-sensitive data; when a new period begins,
// existing comparisons go stale. The worker periodically scans for
// comparisons whose last calculated period is behind the current one,
// recomputes their charts and advances the period marker. Recalculation
// never charges anyone: the account paid at creation time.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/astraea-labs/astraea/internal/calc"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/metrics"
	"github.com/astraea-labs/astraea/internal/store"
)

// Worker manages the periodic recalculation scan.
type Worker struct {
	store  store.Store
	engine calc.Engine
	config Config
	logger *slog.Logger

	// Synchronization
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Worker. The worker must be started with Start() and
// stopped with Stop().
func New(st store.Store, engine calc.Engine, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		store:  st,
		engine: engine,
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins the scan loop. An initial scan runs immediately so a restart
// right after a period boundary does not wait a full interval.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("recalculation worker started", "interval", w.config.Interval)
}

// Stop signals the worker to stop and waits for the running scan to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("stopping recalculation worker")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("recalculation worker stopped")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("recalculation worker shutdown timeout exceeded")
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.scan(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan recalculates one batch of stale comparisons. Failures are logged and
// skipped; the comparison stays stale and the next scan retries it.
func (w *Worker) scan(ctx context.Context) {
	period := time.Now().UTC().Format("2006-01")

	stale, err := w.store.ListStaleComparisons(ctx, period, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to list stale comparisons", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	w.logger.Info("recalculating stale comparisons", "count", len(stale), "period", period)

	for _, artifact := range stale {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err := w.recalculate(ctx, artifact, period); err != nil {
			w.logger.Warn("recalculation failed",
				"artifact_id", artifact.ID, "period", period, "error", err)
			continue
		}
		metrics.RecalculationsTotal.Inc()
	}
}

func (w *Worker) recalculate(ctx context.Context, artifact *domain.Artifact, period string) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	chart, err := w.engine.CalculateChart(jobCtx, calc.ChartRequest{
		Action:       artifact.Type,
		Subject:      artifact.Subject,
		Partner:      artifact.Partner,
		TargetPeriod: period,
	})
	if err != nil {
		return fmt.Errorf("calculate chart: %w", err)
	}

	if err := w.store.SetComparisonCalculated(ctx, artifact.ID, chart.Data, period); err != nil {
		return fmt.Errorf("store recalculated chart: %w", err)
	}
	return nil
}
