/**
 * @description
 * Background reconciliation job. Runs on a cron schedule and repairs
 * recommendation rows that drifted out of sync with the cart: an
 * added_to_cart recommendation whose cart entry was since removed is
 * reverted to pending so it becomes eligible again.
 *
 * @dependencies
 * - log/slog: For structured logging of job runs.
 * - github.com/robfig/cron/v3: For cron-style scheduling.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/veluna/marketplace-core/internal/domain"
	"github.com/veluna/marketplace-core/internal/store"
)

// reconcileBatchSize bounds how many stale rows one run repairs.
const reconcileBatchSize = 200

// Reconciler periodically repairs cart-linked recommendation state.
type Reconciler struct {
	repo     store.Repository
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron
}

// NewReconciler creates a reconciler with the given cron schedule
// (e.g. "*/5 * * * *").
func NewReconciler(repo store.Repository, logger *slog.Logger, schedule string) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	return &Reconciler{
		repo:     repo,
		logger:   logger.With("component", "reconciler"),
		schedule: schedule,
	}
}

// Start registers the job and launches the scheduler in its own goroutine.
func (r *Reconciler) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("reconciliation run failed", "error", err)
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("reconciler started", "schedule", r.schedule)
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("reconciler stopped")
}

// RunOnce executes a single reconciliation pass and returns how many
// recommendations it reverted to pending.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.repo.ListStaleCartLinkedRecommendations(ctx, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, rec := range stale {
		if err := r.repo.UpdateRecommendationStatus(ctx, rec.ID, domain.RecommendationPending, nil, nil); err != nil {
			r.logger.Error("failed to revert recommendation", "recommendation_id", rec.ID, "error", err)
			continue
		}
		reverted++
	}

	if reverted > 0 {
		r.logger.Info("reverted stale cart-linked recommendations", "count", reverted)
	}
	return reverted, nil
}
