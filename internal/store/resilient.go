/**
 * @description
 * This file implements the resilient storage dispatcher. Every Repository
 * method is routed to a primary implementation first and, on any error, is
 * immediately retried once against a fallback implementation. The failover is
 * decided per call, not per process: a transient primary outage degrades only
 * the calls that hit it.
 *
 * Dispatch is a single-attempt failover, not a retry loop. Callers that need
 * retries against the primary must wrap the repository themselves. No lock is
 * held across the primary/fallback attempt; the only shared state is an
 * atomic fallback counter.
 *
 * @dependencies
 * - context, log, sync/atomic, time: Standard Go libraries.
 * - internal/domain: Domain models moved through the dispatcher.
 */

package store

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

// FallbackObserver is notified whenever a call bypasses the primary store.
// The operation name and the primary's error are reported so degraded writes
// can be queued for manual reconciliation instead of silently dropped.
type FallbackObserver func(operation string, primaryErr error)

// Resilient wraps a primary and a fallback Repository behind the Repository
// interface. Both dependencies are injected at construction; lifecycle is
// owned by the composing application.
type Resilient struct {
	primary  Repository
	fallback Repository
	observer FallbackObserver

	fallbackUses atomic.Int64
}

// NewResilient creates a resilient repository dispatching to primary first and
// fallback second. observer may be nil.
func NewResilient(primary, fallback Repository, observer FallbackObserver) *Resilient {
	return &Resilient{
		primary:  primary,
		fallback: fallback,
		observer: observer,
	}
}

// FallbackUses reports how many calls have been served by the fallback store
// since construction. Tests and health checks use this to observe degradation.
func (r *Resilient) FallbackUses() int64 {
	return r.fallbackUses.Load()
}

// dispatch runs op against the primary repository and fails over to the
// fallback on any error. If both fail, the fallback's error is returned.
func dispatch[T any](r *Resilient, operation string, fn func(Repository) (T, error)) (T, error) {
	result, err := fn(r.primary)
	if err == nil {
		return result, nil
	}

	log.Printf("level=warn component=resilient_store msg=\"primary store failed; dispatching to fallback\" op=%s err=%v", operation, err)
	r.fallbackUses.Add(1)
	if r.observer != nil {
		r.observer(operation, err)
	}

	result, fbErr := fn(r.fallback)
	if fbErr != nil {
		log.Printf("level=error component=resilient_store msg=\"fallback store failed; storage unavailable\" op=%s primary_err=%v fallback_err=%v", operation, err, fbErr)
		return result, fbErr
	}
	return result, nil
}

// dispatchErr is dispatch for operations that return only an error.
func dispatchErr(r *Resilient, operation string, fn func(Repository) error) error {
	_, err := dispatch(r, operation, func(repo Repository) (struct{}, error) {
		return struct{}{}, fn(repo)
	})
	return err
}

func (r *Resilient) AppendCoinTransaction(ctx context.Context, tx *domain.CoinTransaction) error {
	return dispatchErr(r, "append_coin_transaction", func(repo Repository) error {
		return repo.AppendCoinTransaction(ctx, tx)
	})
}

func (r *Resilient) SumCoinTransactionsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return dispatch(r, "sum_coin_transactions", func(repo Repository) (int64, error) {
		return repo.SumCoinTransactionsByUser(ctx, userID)
	})
}

func (r *Resilient) ListCoinTransactionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CoinTransaction, error) {
	return dispatch(r, "list_coin_transactions", func(repo Repository) ([]domain.CoinTransaction, error) {
		return repo.ListCoinTransactionsByUser(ctx, userID, limit)
	})
}

func (r *Resilient) CreateRecommendation(ctx context.Context, rec *domain.Recommendation) error {
	return dispatchErr(r, "create_recommendation", func(repo Repository) error {
		return repo.CreateRecommendation(ctx, rec)
	})
}

func (r *Resilient) FindRecommendationByID(ctx context.Context, recommendationID uuid.UUID) (*domain.Recommendation, error) {
	return dispatch(r, "find_recommendation", func(repo Repository) (*domain.Recommendation, error) {
		return repo.FindRecommendationByID(ctx, recommendationID)
	})
}

func (r *Resilient) UpdateRecommendationStatus(ctx context.Context, recommendationID uuid.UUID, status string, rejectedReason *string, purchasedAt *time.Time) error {
	return dispatchErr(r, "update_recommendation_status", func(repo Repository) error {
		return repo.UpdateRecommendationStatus(ctx, recommendationID, status, rejectedReason, purchasedAt)
	})
}

func (r *Resilient) ListRecommendationsByUser(ctx context.Context, userID uuid.UUID, opts RecommendationListOptions) ([]domain.Recommendation, error) {
	return dispatch(r, "list_recommendations", func(repo Repository) ([]domain.Recommendation, error) {
		return repo.ListRecommendationsByUser(ctx, userID, opts)
	})
}

func (r *Resilient) RecommendationExistsForProduct(ctx context.Context, userID uuid.UUID, productID int64) (bool, error) {
	return dispatch(r, "recommendation_exists", func(repo Repository) (bool, error) {
		return repo.RecommendationExistsForProduct(ctx, userID, productID)
	})
}

func (r *Resilient) UpsertCartEntry(ctx context.Context, entry *domain.CartEntry) (*domain.CartEntry, error) {
	return dispatch(r, "upsert_cart_entry", func(repo Repository) (*domain.CartEntry, error) {
		return repo.UpsertCartEntry(ctx, entry)
	})
}

func (r *Resilient) RemoveCartEntry(ctx context.Context, entryID uuid.UUID) error {
	return dispatchErr(r, "remove_cart_entry", func(repo Repository) error {
		return repo.RemoveCartEntry(ctx, entryID)
	})
}

func (r *Resilient) ListCartEntriesByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartEntry, error) {
	return dispatch(r, "list_cart_entries", func(repo Repository) ([]domain.CartEntry, error) {
		return repo.ListCartEntriesByUser(ctx, userID)
	})
}

func (r *Resilient) FindCartEntryByRecommendationID(ctx context.Context, recommendationID uuid.UUID) (*domain.CartEntry, error) {
	return dispatch(r, "find_cart_entry_by_recommendation", func(repo Repository) (*domain.CartEntry, error) {
		return repo.FindCartEntryByRecommendationID(ctx, recommendationID)
	})
}

func (r *Resilient) GetAutomationSettings(ctx context.Context, userID uuid.UUID) (*domain.AutomationSettings, error) {
	return dispatch(r, "get_automation_settings", func(repo Repository) (*domain.AutomationSettings, error) {
		return repo.GetAutomationSettings(ctx, userID)
	})
}

func (r *Resilient) SaveAutomationSettings(ctx context.Context, settings *domain.AutomationSettings) error {
	return dispatchErr(r, "save_automation_settings", func(repo Repository) error {
		return repo.SaveAutomationSettings(ctx, settings)
	})
}

func (r *Resilient) ListPurchaseHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PurchaseRecord, error) {
	return dispatch(r, "list_purchase_history", func(repo Repository) ([]domain.PurchaseRecord, error) {
		return repo.ListPurchaseHistory(ctx, userID, limit)
	})
}

func (r *Resilient) ListSearchHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SearchRecord, error) {
	return dispatch(r, "list_search_history", func(repo Repository) ([]domain.SearchRecord, error) {
		return repo.ListSearchHistory(ctx, userID, limit)
	})
}

func (r *Resilient) ListCategoryPreferences(ctx context.Context, userID uuid.UUID) ([]domain.CategoryPreference, error) {
	return dispatch(r, "list_category_preferences", func(repo Repository) ([]domain.CategoryPreference, error) {
		return repo.ListCategoryPreferences(ctx, userID)
	})
}

func (r *Resilient) ListStaleCartLinkedRecommendations(ctx context.Context, limit int) ([]domain.Recommendation, error) {
	return dispatch(r, "list_stale_cart_linked_recommendations", func(repo Repository) ([]domain.Recommendation, error) {
		return repo.ListStaleCartLinkedRecommendations(ctx, limit)
	})
}

var _ Repository = (*Resilient)(nil)
