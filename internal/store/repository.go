/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the commerce core. By defining an
 * interface, we decouple the business logic from the specific database
 * implementation (PostgreSQL primary, in-memory fallback), which is what lets
 * the resilient dispatcher swap implementations on a per-call basis.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the core's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

var (
	ErrRecommendationNotFound = errors.New("recommendation not found")
	ErrCartEntryNotFound      = errors.New("cart entry not found")
	ErrSettingsNotFound       = errors.New("automation settings not found")
	ErrDuplicateTransaction   = errors.New("coin transaction already recorded")
)

// RecommendationListOptions controls pagination and filtering for listings.
// Permanently rejected rows are excluded unless IncludePermanent is set.
type RecommendationListOptions struct {
	Limit            int
	Offset           int
	Status           string
	IncludePermanent bool
}

// Repository defines the set of methods for interacting with durable storage.
type Repository interface {
	// Coin ledger methods. The transaction log is append-only: there are no
	// update or delete operations.
	AppendCoinTransaction(ctx context.Context, tx *domain.CoinTransaction) error
	SumCoinTransactionsByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListCoinTransactionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CoinTransaction, error)

	// Recommendation methods
	CreateRecommendation(ctx context.Context, rec *domain.Recommendation) error
	FindRecommendationByID(ctx context.Context, recommendationID uuid.UUID) (*domain.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, recommendationID uuid.UUID, status string, rejectedReason *string, purchasedAt *time.Time) error
	ListRecommendationsByUser(ctx context.Context, userID uuid.UUID, opts RecommendationListOptions) ([]domain.Recommendation, error)
	RecommendationExistsForProduct(ctx context.Context, userID uuid.UUID, productID int64) (bool, error)

	// Cart methods. Upsert merges by product: adding a product already in the
	// cart increments its quantity instead of inserting a second row.
	UpsertCartEntry(ctx context.Context, entry *domain.CartEntry) (*domain.CartEntry, error)
	RemoveCartEntry(ctx context.Context, entryID uuid.UUID) error
	ListCartEntriesByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartEntry, error)
	FindCartEntryByRecommendationID(ctx context.Context, recommendationID uuid.UUID) (*domain.CartEntry, error)

	// Automation settings methods
	GetAutomationSettings(ctx context.Context, userID uuid.UUID) (*domain.AutomationSettings, error)
	SaveAutomationSettings(ctx context.Context, settings *domain.AutomationSettings) error

	// History reads consumed by the recommendation scorer.
	ListPurchaseHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PurchaseRecord, error)
	ListSearchHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SearchRecord, error)
	ListCategoryPreferences(ctx context.Context, userID uuid.UUID) ([]domain.CategoryPreference, error)

	// ListStaleCartLinkedRecommendations returns added_to_cart recommendations
	// whose cart entry no longer exists. Used by the reconciliation job.
	ListStaleCartLinkedRecommendations(ctx context.Context, limit int) ([]domain.Recommendation, error)
}
