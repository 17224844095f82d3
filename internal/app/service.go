/**
 * @description
 * This file contains the core business logic for the commerce core. The
 * `Service` struct orchestrates automated purchases, coordinating between the
 * storage repository, the coin ledger, the product catalog, the external
 * payment gateway, and the message broker.
 *
 * Key features:
 * - Drives a recommendation through its lifecycle:
 *   pending -> {added_to_cart, purchased, rejected}.
 * - Implements the coins path (ledger debit, then cart upsert) and the card
 *   path (payment gateway charge) of ProcessAutoPurchase.
 * - Business denials (failed validation, insufficient balance) are returned
 *   as structured PurchaseResult failures, never as errors or panics.
 * - Publishes terminal outcomes to RabbitMQ for asynchronous consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/catalogclient, pkg/rabbitmq: For external service communication.
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
	"github.com/veluna/marketplace-core/pkg/rabbitmq"
)

// KoboPerCoin is how many minor currency units one coin is worth.
const KoboPerCoin = 100

// ErrRateLimited is returned when a caller exceeds the purchase-processing
// rate limit. No recommendation state changes on this path.
var ErrRateLimited = errors.New("purchase processing rate limit exceeded")

// ProductCatalog is the read-only product collaborator. Implementations must
// return catalogclient.ErrProductNotFound for unknown ids.
type ProductCatalog interface {
	GetProductByID(ctx context.Context, productID int64) (*domain.Product, error)
}

// PaymentGateway is the external payment collaborator for the card path.
// GetDefaultPaymentMethod returns (nil, nil) when the user has none on file.
type PaymentGateway interface {
	GetDefaultPaymentMethod(ctx context.Context, userID uuid.UUID) (*domain.PaymentMethodRef, error)
	Charge(ctx context.Context, charge domain.ChargeRequest) (*domain.ChargeResult, error)
}

// RateLimiter limits how often a subject may perform an operation in a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for automated purchasing.
type Service struct {
	repo      store.Repository
	ledger    *CoinLedger
	validator PurchaseValidator
	scorer    RecommendationScorer
	catalog   ProductCatalog
	payments  PaymentGateway
	events    rabbitmq.Publisher
	currency  string

	coinsPerUnit int64

	rateLimiter           RateLimiter
	purchaseRateLimit     int
	purchaseRateLimitSpan time.Duration
}

// NewService creates a new orchestration service instance. producer may be
// nil; events are then skipped with a warning.
func NewService(
	repo store.Repository,
	ledger *CoinLedger,
	validator PurchaseValidator,
	catalog ProductCatalog,
	payments PaymentGateway,
	producer rabbitmq.Publisher,
	currency string,
) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	if currency == "" {
		currency = "NGN"
	}
	return &Service{
		repo:         repo,
		ledger:       ledger,
		validator:    validator,
		catalog:      catalog,
		payments:     payments,
		events:       producer,
		currency:     currency,
		coinsPerUnit: KoboPerCoin,
	}
}

// SetCoinsPerUnit overrides how many minor currency units one coin is worth
// (COINS_PER_CURRENCY_UNIT). Non-positive values keep the default.
func (s *Service) SetCoinsPerUnit(perUnit int64) {
	if perUnit > 0 {
		s.coinsPerUnit = perUnit
	}
}

// SetScorer overrides the recommendation scorer. The zero-value scorer is
// used otherwise.
func (s *Service) SetScorer(scorer RecommendationScorer) {
	s.scorer = scorer
}

// SetPurchaseRateLimiter enables distributed rate limiting of auto-purchase
// processing. limitPerMinute <= 0 disables it.
func (s *Service) SetPurchaseRateLimiter(limiter RateLimiter, limitPerMinute int) {
	s.rateLimiter = limiter
	s.purchaseRateLimit = limitPerMinute
	s.purchaseRateLimitSpan = time.Minute
}

// PriceInCoins converts a kobo price to whole coins at the default rate,
// rounding up.
func PriceInCoins(price int64) int64 {
	return priceInCoins(price, KoboPerCoin)
}

func priceInCoins(price, perUnit int64) int64 {
	return (price + perUnit - 1) / perUnit
}

// ProcessAutoPurchase drives one recommendation through validation and, when
// allowed, payment. Business denials are reported in the returned
// PurchaseResult; errors are reserved for missing entities and
// infrastructure faults.
func (s *Service) ProcessAutoPurchase(ctx context.Context, recommendationID uuid.UUID) (*domain.PurchaseResult, error) {
	// 1. Load the recommendation.
	rec, err := s.repo.FindRecommendationByID(ctx, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find recommendation: %w", err)
	}

	// Re-invoking on a terminal recommendation is a no-op that reports the
	// existing state; it never re-validates or re-debits.
	if rec.Status == domain.RecommendationPurchased {
		return &domain.PurchaseResult{
			Success:          true,
			Status:           rec.Status,
			Message:          "Recommendation already purchased",
			RecommendationID: rec.ID,
		}, nil
	}
	if rec.IsPermanentlyRejected() {
		return &domain.PurchaseResult{
			Success:          false,
			Status:           rec.Status,
			Message:          "Recommendation was permanently rejected: " + *rec.RejectedReason,
			RecommendationID: rec.ID,
		}, nil
	}

	if s.rateLimiter != nil && s.purchaseRateLimit > 0 {
		count, retryAfter, limitErr := s.rateLimiter.ConsumeRateLimit(ctx, "auto_purchase", rec.UserID.String(), s.purchaseRateLimit, s.purchaseRateLimitSpan)
		if limitErr != nil {
			log.Printf("level=warn component=orchestrator msg=\"rate limiter unavailable; continuing\" user_id=%s err=%v", rec.UserID, limitErr)
		} else if count > s.purchaseRateLimit {
			return nil, fmt.Errorf("%w: retry in %ds", ErrRateLimited, retryAfter)
		}
	}

	// 2. Load the product.
	product, err := s.catalog.GetProductByID(ctx, rec.ProductID)
	if err != nil {
		if errors.Is(err, catalogclient.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load product %d: %w", rec.ProductID, err)
	}

	// 3. Load the user's automation settings. A user with none configured is
	// treated as having automation disabled.
	settings, err := s.repo.GetAutomationSettings(ctx, rec.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrSettingsNotFound) {
			return nil, fmt.Errorf("failed to load automation settings: %w", err)
		}
		settings = &domain.AutomationSettings{UserID: rec.UserID}
	}

	// 4. Validate. A denial is a terminal business decision for this
	// candidate, not a transient error; it is recorded and not retried.
	candidate := domain.Candidate{ProductID: rec.ProductID, Confidence: rec.Confidence}
	if allowed, reason := s.validator.Validate(*settings, candidate, *product); !allowed {
		return s.reject(ctx, rec, product, reason)
	}

	// 5. Branch on the configured funding source.
	if settings.UseCoins {
		return s.purchaseWithCoins(ctx, rec, product)
	}
	return s.purchaseWithCard(ctx, rec, product)
}

// purchaseWithCoins executes the ledger-funded path. The debit is the last
// reversible step: the cart entry is only added after a successful debit, and
// once the debit is durable the remaining steps run to completion even if the
// caller abandons the request.
func (s *Service) purchaseWithCoins(ctx context.Context, rec *domain.Recommendation, product *domain.Product) (*domain.PurchaseResult, error) {
	required := priceInCoins(product.Price, s.coinsPerUnit)

	available, err := s.ledger.Balance(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to read coin balance: %w", err)
	}
	if available < required {
		reason := fmt.Sprintf("Insufficient coin balance: required %d, available %d", required, available)
		return s.reject(ctx, rec, product, reason)
	}

	tx, err := s.ledger.Debit(ctx, rec.UserID, required, fmt.Sprintf("Auto-purchase of product %d", product.ID), map[string]string{
		"recommendation_id": rec.ID.String(),
		"product_id":        fmt.Sprintf("%d", product.ID),
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			// Lost the race against a concurrent spend.
			return s.reject(ctx, rec, product, fmt.Sprintf("Insufficient coin balance: %v", err))
		}
		log.Printf("level=error component=orchestrator msg=\"ledger debit failed\" recommendation_id=%s err=%v", rec.ID, err)
		return s.reject(ctx, rec, product, fmt.Sprintf("Coin ledger failure: %v", err))
	}

	// Point of no return: the debit is durable. Detach from the caller's
	// cancellation so the cart and status updates always run.
	ctx = context.WithoutCancel(ctx)

	entry := &domain.CartEntry{
		ID:               uuid.New(),
		UserID:           rec.UserID,
		ProductID:        product.ID,
		Quantity:         1,
		Source:           domain.CartSourceAIShopper,
		RecommendationID: &rec.ID,
	}
	if _, err := s.repo.UpsertCartEntry(ctx, entry); err != nil {
		// Storage exhausted both primary and fallback. The debit stands, so
		// flag the stranded spend for manual reconciliation instead of
		// failing silently.
		log.Printf("level=error component=orchestrator msg=\"cart upsert failed after debit; needs manual reconciliation\" recommendation_id=%s transaction_id=%s err=%v", rec.ID, tx.ID, err)
		s.publishFallbackNotice(ctx, "upsert_cart_entry", err)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateRecommendationStatus(ctx, rec.ID, domain.RecommendationPurchased, nil, &now); err != nil {
		log.Printf("level=error component=orchestrator msg=\"status transition failed after debit; needs manual reconciliation\" recommendation_id=%s transaction_id=%s err=%v", rec.ID, tx.ID, err)
		s.publishFallbackNotice(ctx, "update_recommendation_status", err)
	}

	result := &domain.PurchaseResult{
		Success:          true,
		Status:           domain.RecommendationPurchased,
		Message:          fmt.Sprintf("Purchased with %d coins", required),
		RecommendationID: rec.ID,
		CoinsSpent:       required,
		TransactionID:    &tx.ID,
	}
	s.publishOutcome(ctx, rec, product, result)
	return result, nil
}

// purchaseWithCard executes the gateway-funded path.
func (s *Service) purchaseWithCard(ctx context.Context, rec *domain.Recommendation, product *domain.Product) (*domain.PurchaseResult, error) {
	method, err := s.payments.GetDefaultPaymentMethod(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load default payment method: %w", err)
	}
	if method == nil {
		return s.reject(ctx, rec, product, "No default payment method on file")
	}

	charge := domain.ChargeRequest{
		Amount:          product.Price,
		Currency:        s.currency,
		PaymentMethodID: method.ID,
		Description:     fmt.Sprintf("Auto-purchase of product %d", product.ID),
		Metadata: map[string]string{
			"recommendation_id": rec.ID.String(),
			"user_id":           rec.UserID.String(),
		},
	}
	chargeResult, err := s.payments.Charge(ctx, charge)
	if err != nil {
		// Surface the gateway's own message on the recommendation.
		return s.reject(ctx, rec, product, fmt.Sprintf("Payment failed: %v", err))
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateRecommendationStatus(ctx, rec.ID, domain.RecommendationPurchased, nil, &now); err != nil {
		log.Printf("level=error component=orchestrator msg=\"status transition failed after charge; needs manual reconciliation\" recommendation_id=%s charge_id=%s err=%v", rec.ID, chargeResult.ChargeID, err)
		s.publishFallbackNotice(ctx, "update_recommendation_status", err)
	}

	result := &domain.PurchaseResult{
		Success:          true,
		Status:           domain.RecommendationPurchased,
		Message:          fmt.Sprintf("Purchased with card ending %s", method.Last4),
		RecommendationID: rec.ID,
	}
	s.publishOutcome(ctx, rec, product, result)
	return result, nil
}

// reject transitions a recommendation to rejected with the given reason and
// returns the corresponding structured failure.
func (s *Service) reject(ctx context.Context, rec *domain.Recommendation, product *domain.Product, reason string) (*domain.PurchaseResult, error) {
	if err := s.repo.UpdateRecommendationStatus(ctx, rec.ID, domain.RecommendationRejected, &reason, nil); err != nil {
		// The denial stands either way; a failed write only loses the audit
		// trail, so record it loudly.
		log.Printf("level=error component=orchestrator msg=\"failed to record rejection\" recommendation_id=%s reason=%q err=%v", rec.ID, reason, err)
	}

	result := &domain.PurchaseResult{
		Success:          false,
		Status:           domain.RecommendationRejected,
		Message:          reason,
		RecommendationID: rec.ID,
	}
	s.publishOutcome(ctx, rec, product, result)
	return result, nil
}

func (s *Service) publishOutcome(ctx context.Context, rec *domain.Recommendation, product *domain.Product, result *domain.PurchaseResult) {
	event := rabbitmq.PurchaseOutcomeEvent{
		RecommendationID: rec.ID,
		UserID:           rec.UserID,
		Status:           result.Status,
		Message:          result.Message,
		CoinsSpent:       result.CoinsSpent,
		Timestamp:        time.Now().UTC(),
	}
	if product != nil {
		event.ProductID = product.ID
	}
	if err := s.events.PublishPurchaseOutcome(ctx, event); err != nil {
		log.Printf("level=warn component=orchestrator msg=\"failed to publish purchase outcome event\" recommendation_id=%s err=%v", rec.ID, err)
	}
}

func (s *Service) publishFallbackNotice(ctx context.Context, operation string, cause error) {
	event := rabbitmq.StorageFallbackEvent{
		Operation:  operation,
		PrimaryErr: cause.Error(),
		Timestamp:  time.Now().UTC(),
	}
	if err := s.events.PublishStorageFallback(ctx, event); err != nil {
		log.Printf("level=warn component=orchestrator msg=\"failed to publish storage fallback event\" op=%s err=%v", operation, err)
	}
}
