/**
 * @description
 * This file defines the core domain models for the marketplace commerce core.
 * These structs represent the main entities used throughout the coin ledger,
 * the purchase orchestration logic, and the storage layer.
 *
 * @notes
 * - Prices and budget limits are stored as `int64` in the smallest currency
 *   unit (kobo), which avoids floating-point inaccuracies with financial data.
 * - Coin amounts are whole coins; one coin corresponds to a configurable
 *   number of minor currency units (default 100).
 * - CoinTransaction records are append-only. A user's coin balance is always
 *   derived from the log, never stored as a mutable counter.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Coin transaction kinds. Credit kinds increase the balance, Spend decreases it.
const (
	CoinKindPurchase = "purchase"
	CoinKindReward   = "reward"
	CoinKindRefund   = "refund"
	CoinKindAdmin    = "admin"
	CoinKindSpend    = "spend"
)

// CreditKinds lists the transaction kinds accepted by CoinLedger.Credit.
var CreditKinds = []string{CoinKindPurchase, CoinKindReward, CoinKindRefund, CoinKindAdmin}

// IsCreditKind reports whether kind is a balance-increasing transaction kind.
func IsCreditKind(kind string) bool {
	for _, k := range CreditKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// CoinTransaction is one immutable entry in a user's coin ledger.
// Once written it is never updated or deleted.
type CoinTransaction struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Amount      int64             `json:"amount"` // always positive; sign comes from Kind
	Kind        string            `json:"kind"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Recommendation statuses.
const (
	RecommendationPending     = "pending"
	RecommendationAddedToCart = "added_to_cart"
	RecommendationPurchased   = "purchased"
	RecommendationRejected    = "rejected"
)

// PermanentRejectionMarker is appended to RejectedReason when a rejection is
// permanent. Permanently rejected recommendations are excluded from default
// listings but the row is retained for audit.
const PermanentRejectionMarker = " [permanently_removed]"

// Recommendation is a system-proposed candidate purchase with its own
// lifecycle: pending -> {added_to_cart, purchased, rejected}.
type Recommendation struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	ProductID      int64      `json:"product_id"`
	Reason         string     `json:"reason"`
	Confidence     int        `json:"confidence"` // 0-100
	Status         string     `json:"status"`
	RejectedReason *string    `json:"rejected_reason,omitempty"`
	PurchasedAt    *time.Time `json:"purchased_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Product details are joined from the catalog at read time, never
	// duplicated into the stored row.
	Product *Product `json:"product,omitempty"`
}

// IsPermanentlyRejected reports whether the recommendation carries the
// permanent-removal marker in its rejected reason.
func (r *Recommendation) IsPermanentlyRejected() bool {
	if r.Status != RecommendationRejected || r.RejectedReason == nil {
		return false
	}
	return len(*r.RejectedReason) >= len(PermanentRejectionMarker) &&
		(*r.RejectedReason)[len(*r.RejectedReason)-len(PermanentRejectionMarker):] == PermanentRejectionMarker
}

// AutomationSettings is the per-user configuration gating automated purchases.
// Every recognized field is enumerated here; unknown keys are rejected at the
// storage boundary rather than silently passed through.
type AutomationSettings struct {
	UserID              uuid.UUID `json:"user_id"`
	Enabled             bool      `json:"enabled"`
	AutoPurchase        bool      `json:"auto_purchase"`
	BudgetLimit         int64     `json:"budget_limit"` // in kobo, recurring cap
	PreferredCategories []string  `json:"preferred_categories"`
	AvoidTags           []string  `json:"avoid_tags"`
	MinimumTrustScore   int       `json:"minimum_trust_score"` // 0-100
	UseCoins            bool      `json:"use_coins"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Cart entry sources.
const (
	CartSourceManual           = "manual"
	CartSourceAIShopper        = "ai_shopper"
	CartSourceAIRecommendation = "ai_recommendation"
	CartSourceSavedForLater    = "saved_for_later"
)

// CartEntry is one product in a user's cart. Adding a product that is already
// present increments the quantity instead of inserting a second row.
type CartEntry struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	ProductID        int64      `json:"product_id"`
	Quantity         int        `json:"quantity"`
	Source           string     `json:"source"`
	RecommendationID *uuid.UUID `json:"recommendation_id,omitempty"` // lookup-only back-reference
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Product is the read-time view of a catalog product, as returned by the
// product catalog collaborator.
type Product struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       int64    `json:"price"` // in kobo
	TrustScore  int      `json:"trust_score"`
	CategoryID  int64    `json:"category_id"`
	Tags        []string `json:"tags"`
}

// Candidate pairs a product with the confidence the scorer assigned to it.
type Candidate struct {
	ProductID  int64 `json:"product_id"`
	Confidence int   `json:"confidence"` // 0-100
}

// ScoredCandidate is one ranked entry in the scorer's output.
type ScoredCandidate struct {
	Product Product `json:"product"`
	Score   int     `json:"score"`
	Reason  string  `json:"reason"`
}

// PurchaseRecord is one past purchase, used as scoring history.
type PurchaseRecord struct {
	ProductID   int64     `json:"product_id"`
	CategoryID  int64     `json:"category_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// SearchRecord is one past search, used as scoring history. ClickedCategoryID
// is set when the user clicked through to a product from the results.
type SearchRecord struct {
	Term              string `json:"term"`
	ClickedCategoryID *int64 `json:"clicked_category_id,omitempty"`
}

// CategoryPreference is a stored per-category preference weight.
type CategoryPreference struct {
	CategoryID int64 `json:"category_id"`
	Score      int   `json:"score"`
}

// PaymentMethodRef identifies a stored payment method at the payment gateway.
type PaymentMethodRef struct {
	ID    string `json:"id"`
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// ChargeRequest is the payment instruction sent to the external gateway on
// the card path.
type ChargeRequest struct {
	Amount          int64             `json:"amount"` // in kobo
	Currency        string            `json:"currency"`
	PaymentMethodID string            `json:"payment_method_id"`
	Description     string            `json:"description"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ChargeResult is the gateway's acknowledgement of a submitted charge.
type ChargeResult struct {
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
}

// PurchaseResult is the structured outcome of ProcessAutoPurchase. Business
// denials (failed validation, insufficient funds) are reported here, not as
// errors.
type PurchaseResult struct {
	Success          bool       `json:"success"`
	Status           string     `json:"status"` // terminal recommendation status
	Message          string     `json:"message"`
	RecommendationID uuid.UUID  `json:"recommendation_id"`
	CoinsSpent       int64      `json:"coins_spent,omitempty"`
	TransactionID    *uuid.UUID `json:"transaction_id,omitempty"`
}
