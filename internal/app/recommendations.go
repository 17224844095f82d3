/**
 * @description
 * Recommendation lifecycle operations: generating ranked recommendations from
 * user history, listing them with product details joined in, manual rejection
 * (with optional permanent removal), and the add-to-cart transition.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/catalogclient: For product detail joins.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
	"github.com/veluna/marketplace-core/internal/store"
	"github.com/veluna/marketplace-core/pkg/catalogclient"
)

// ErrRecommendationFinalized is returned when a lifecycle transition is
// requested on a recommendation that already reached a terminal state.
var ErrRecommendationFinalized = errors.New("recommendation already finalized")

// historyWindow bounds how much history feeds one scoring pass.
const historyWindow = 50

// GenerateRecommendations scores the candidate products against the user's
// purchase, search, and preference history and persists the top results as
// pending recommendations. Products the user already has an active
// recommendation for are skipped rather than duplicated.
func (s *Service) GenerateRecommendations(ctx context.Context, userID uuid.UUID, candidates []domain.Product, limit int) ([]domain.Recommendation, error) {
	if limit <= 0 {
		limit = 10
	}

	purchases, err := s.repo.ListPurchaseHistory(ctx, userID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase history: %w", err)
	}
	searches, err := s.repo.ListSearchHistory(ctx, userID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load search history: %w", err)
	}
	preferences, err := s.repo.ListCategoryPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category preferences: %w", err)
	}

	scored := s.scorer.Score(candidates, purchases, searches, preferences)

	now := time.Now().UTC()
	created := make([]domain.Recommendation, 0, limit)
	for _, sc := range scored {
		if len(created) >= limit {
			break
		}

		exists, err := s.repo.RecommendationExistsForProduct(ctx, userID, sc.Product.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check for existing recommendation: %w", err)
		}
		if exists {
			continue
		}

		rec := domain.Recommendation{
			ID:         uuid.New(),
			UserID:     userID,
			ProductID:  sc.Product.ID,
			Reason:     sc.Reason,
			Confidence: ConfidenceFor(sc.Score),
			Status:     domain.RecommendationPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.CreateRecommendation(ctx, &rec); err != nil {
			return nil, fmt.Errorf("failed to persist recommendation: %w", err)
		}
		created = append(created, rec)
	}

	return created, nil
}

// ListRecommendations returns the user's recommendations, newest first, with
// product details joined in from the catalog. Filters are re-applied here so
// the result is correct even when the storage layer is running on its
// degraded fallback, which may return a superset.
func (s *Service) ListRecommendations(ctx context.Context, userID uuid.UUID, opts store.RecommendationListOptions) ([]domain.Recommendation, error) {
	recs, err := s.repo.ListRecommendationsByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}

	// Pagination is owned by the store; only the idempotent filters (status,
	// permanent marker, limit) are re-applied here, so a degraded fallback
	// superset narrows correctly while a correctly paged primary result
	// passes through unchanged. Offset must not be re-applied: the primary
	// already consumed it in SQL.
	filtered := make([]domain.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if !opts.IncludePermanent && rec.IsPermanentlyRejected() {
			continue
		}
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		filtered = append(filtered, rec)
		if opts.Limit > 0 && len(filtered) >= opts.Limit {
			break
		}
	}

	for i := range filtered {
		// An added_to_cart row whose cart entry was since removed is shown as
		// pending; the reconciliation job makes the stored row catch up.
		if filtered[i].Status == domain.RecommendationAddedToCart {
			if _, err := s.repo.FindCartEntryByRecommendationID(ctx, filtered[i].ID); errors.Is(err, store.ErrCartEntryNotFound) {
				filtered[i].Status = domain.RecommendationPending
			}
		}

		product, err := s.catalog.GetProductByID(ctx, filtered[i].ProductID)
		if err != nil {
			if errors.Is(err, catalogclient.ErrProductNotFound) {
				// The product was delisted after the recommendation was
				// stored; surface the row without details.
				continue
			}
			log.Printf("level=warn component=orchestrator msg=\"failed to join product details\" product_id=%d err=%v", filtered[i].ProductID, err)
			continue
		}
		filtered[i].Product = product
	}

	return filtered, nil
}

// AddToCart moves a pending recommendation into the user's cart and
// transitions it to added_to_cart. The cart entry keeps a back-reference to
// the recommendation so the reconciliation job can detect removals.
func (s *Service) AddToCart(ctx context.Context, recommendationID uuid.UUID) (*domain.CartEntry, error) {
	rec, err := s.repo.FindRecommendationByID(ctx, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find recommendation: %w", err)
	}
	if rec.Status != domain.RecommendationPending {
		return nil, fmt.Errorf("%w: status is %s", ErrRecommendationFinalized, rec.Status)
	}

	if _, err := s.catalog.GetProductByID(ctx, rec.ProductID); err != nil {
		if errors.Is(err, catalogclient.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load product %d: %w", rec.ProductID, err)
	}

	entry := &domain.CartEntry{
		ID:               uuid.New(),
		UserID:           rec.UserID,
		ProductID:        rec.ProductID,
		Quantity:         1,
		Source:           domain.CartSourceAIRecommendation,
		RecommendationID: &rec.ID,
	}
	saved, err := s.repo.UpsertCartEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart entry: %w", err)
	}

	if err := s.repo.UpdateRecommendationStatus(ctx, rec.ID, domain.RecommendationAddedToCart, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to update recommendation status: %w", err)
	}

	return saved, nil
}

// RejectRecommendation marks a recommendation as rejected with the given
// reason. When permanent is set the stored reason carries the removal marker
// and the recommendation is excluded from future default listings and from
// re-processing.
func (s *Service) RejectRecommendation(ctx context.Context, recommendationID uuid.UUID, reason string, permanent bool) error {
	rec, err := s.repo.FindRecommendationByID(ctx, recommendationID)
	if err != nil {
		return fmt.Errorf("failed to find recommendation: %w", err)
	}
	if rec.Status == domain.RecommendationPurchased {
		return fmt.Errorf("%w: status is %s", ErrRecommendationFinalized, rec.Status)
	}

	if reason == "" {
		reason = "rejected by user"
	}
	if permanent {
		reason += domain.PermanentRejectionMarker
	}

	if err := s.repo.UpdateRecommendationStatus(ctx, rec.ID, domain.RecommendationRejected, &reason, nil); err != nil {
		return fmt.Errorf("failed to update recommendation status: %w", err)
	}
	return nil
}

// ListCart returns the user's cart entries in insertion order.
func (s *Service) ListCart(ctx context.Context, userID uuid.UUID) ([]domain.CartEntry, error) {
	entries, err := s.repo.ListCartEntriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart entries: %w", err)
	}
	return entries, nil
}

// RemoveFromCart deletes a cart entry. Recommendations linked to the removed
// entry are reverted to pending by the reconciliation job, not inline here.
func (s *Service) RemoveFromCart(ctx context.Context, entryID uuid.UUID) error {
	if err := s.repo.RemoveCartEntry(ctx, entryID); err != nil {
		return fmt.Errorf("failed to remove cart entry: %w", err)
	}
	return nil
}

// GetAutomationSettings returns the user's automation settings, or a disabled
// zero configuration when none has been saved yet.
func (s *Service) GetAutomationSettings(ctx context.Context, userID uuid.UUID) (*domain.AutomationSettings, error) {
	settings, err := s.repo.GetAutomationSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSettingsNotFound) {
			return &domain.AutomationSettings{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to load automation settings: %w", err)
	}
	return settings, nil
}

// SaveAutomationSettings validates and persists the user's automation
// configuration.
func (s *Service) SaveAutomationSettings(ctx context.Context, settings *domain.AutomationSettings) error {
	if settings.BudgetLimit < 0 {
		return fmt.Errorf("budget limit must not be negative")
	}
	if settings.MinimumTrustScore < 0 || settings.MinimumTrustScore > 100 {
		return fmt.Errorf("minimum trust score must be between 0 and 100")
	}
	settings.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveAutomationSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to save automation settings: %w", err)
	}
	return nil
}
