package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
	"github.com/veluna/marketplace-core/internal/store"
)

func TestGenerateRecommendations_RanksAndPersists(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	f.repo.SeedPurchaseHistory(f.userID, []domain.PurchaseRecord{{ProductID: 1, CategoryID: 3}})

	candidates := []domain.Product{
		{ID: 42, Title: "Wireless Earbuds", CategoryID: 3},
		{ID: 43, Title: "Desk Lamp", CategoryID: 9},
	}
	created, err := f.service.GenerateRecommendations(ctx, f.userID, candidates, 10)
	if err != nil {
		t.Fatalf("GenerateRecommendations returned error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(created))
	}
	// The category match ranks first and carries the boosted confidence.
	if created[0].ProductID != 42 {
		t.Fatalf("expected product 42 first, got %d", created[0].ProductID)
	}
	if created[0].Confidence != 55 {
		t.Fatalf("expected confidence 55 (base + category weight), got %d", created[0].Confidence)
	}
	if created[0].Status != domain.RecommendationPending {
		t.Fatalf("expected pending status, got %q", created[0].Status)
	}

	// A second run must not duplicate active recommendations.
	again, err := f.service.GenerateRecommendations(ctx, f.userID, candidates, 10)
	if err != nil {
		t.Fatalf("second GenerateRecommendations returned error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no duplicates, got %d", len(again))
	}
}

func TestListRecommendations_FiltersAndJoinsProducts(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	f.saveSettings(t, true)

	active := f.createRecommendation(t, 42)
	permanent := f.createRecommendation(t, 42)
	if err := f.service.RejectRecommendation(ctx, permanent.ID, "never again", true); err != nil {
		t.Fatalf("RejectRecommendation returned error: %v", err)
	}

	listed, err := f.service.ListRecommendations(ctx, f.userID, store.RecommendationListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecommendations returned error: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected permanent rejection excluded, got %d rows", len(listed))
	}
	if listed[0].ID != active.ID {
		t.Fatalf("expected the active recommendation, got %s", listed[0].ID)
	}
	if listed[0].Product == nil || listed[0].Product.Title != "Wireless Earbuds" {
		t.Fatalf("expected product details joined in, got %+v", listed[0].Product)
	}

	// IncludePermanent surfaces the audit row.
	all, err := f.service.ListRecommendations(ctx, f.userID, store.RecommendationListOptions{Limit: 10, IncludePermanent: true})
	if err != nil {
		t.Fatalf("ListRecommendations returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both rows with IncludePermanent, got %d", len(all))
	}

	// Status filter is applied even over a superset result.
	rejected, err := f.service.ListRecommendations(ctx, f.userID, store.RecommendationListOptions{Limit: 10, Status: domain.RecommendationRejected, IncludePermanent: true})
	if err != nil {
		t.Fatalf("ListRecommendations returned error: %v", err)
	}
	if len(rejected) != 1 || rejected[0].ID != permanent.ID {
		t.Fatalf("expected only the rejected row, got %+v", rejected)
	}
}

// pagingRepository lists recommendations the way the SQL primary does: the
// Status filter, Offset, and Limit are all consumed inside the store.
type pagingRepository struct {
	*store.MemoryRepository
}

func (p *pagingRepository) ListRecommendationsByUser(ctx context.Context, userID uuid.UUID, opts store.RecommendationListOptions) ([]domain.Recommendation, error) {
	all, err := p.MemoryRepository.ListRecommendationsByUser(ctx, userID, store.RecommendationListOptions{IncludePermanent: opts.IncludePermanent})
	if err != nil {
		return nil, err
	}
	var out []domain.Recommendation
	skipped := 0
	for _, rec := range all {
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func TestListRecommendations_OffsetAppliedOnce(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	repo := &pagingRepository{MemoryRepository: f.repo}
	service := NewService(repo, f.ledger, PurchaseValidator{}, f.catalog, f.payments, f.events, "NGN")

	for i := 0; i < 4; i++ {
		f.createRecommendation(t, 42)
	}

	listed, err := service.ListRecommendations(ctx, f.userID, store.RecommendationListOptions{Offset: 1})
	if err != nil {
		t.Fatalf("ListRecommendations returned error: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 recommendations after Offset=1 over 4 rows, got %d", len(listed))
	}

	// A store-applied limit passes through untouched as well.
	page, err := service.ListRecommendations(ctx, f.userID, store.RecommendationListOptions{Offset: 2, Limit: 1})
	if err != nil {
		t.Fatalf("ListRecommendations returned error: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected a single row for Offset=2 Limit=1, got %d", len(page))
	}
}

func TestRejectRecommendation_PermanentCarriesMarker(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	rec := f.createRecommendation(t, 42)

	if err := f.service.RejectRecommendation(ctx, rec.ID, "too expensive", true); err != nil {
		t.Fatalf("RejectRecommendation returned error: %v", err)
	}

	stored, err := f.repo.FindRecommendationByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("failed to reload recommendation: %v", err)
	}
	if !stored.IsPermanentlyRejected() {
		t.Fatalf("expected permanent rejection, got reason %v", stored.RejectedReason)
	}
	if !strings.HasPrefix(*stored.RejectedReason, "too expensive") {
		t.Fatalf("expected original reason preserved, got %q", *stored.RejectedReason)
	}
}

func TestRejectRecommendation_NonPermanentStaysReprocessable(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	rec := f.createRecommendation(t, 42)

	if err := f.service.RejectRecommendation(ctx, rec.ID, "maybe later", false); err != nil {
		t.Fatalf("RejectRecommendation returned error: %v", err)
	}

	stored, _ := f.repo.FindRecommendationByID(ctx, rec.ID)
	if stored.IsPermanentlyRejected() {
		t.Fatal("plain rejection must not carry the permanent marker")
	}
}

func TestRejectRecommendation_PurchasedIsFinal(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	f.saveSettings(t, true)
	rec := f.createRecommendation(t, 42)

	if _, err := f.ledger.Credit(ctx, f.userID, 50, domain.CoinKindReward, "funding", nil); err != nil {
		t.Fatalf("failed to fund ledger: %v", err)
	}
	if _, err := f.service.ProcessAutoPurchase(ctx, rec.ID); err != nil {
		t.Fatalf("ProcessAutoPurchase returned error: %v", err)
	}

	err := f.service.RejectRecommendation(ctx, rec.ID, "changed my mind", false)
	if !errors.Is(err, ErrRecommendationFinalized) {
		t.Fatalf("expected ErrRecommendationFinalized, got %v", err)
	}
}

func TestAddToCart_TransitionsAndLinks(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	rec := f.createRecommendation(t, 42)

	entry, err := f.service.AddToCart(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	if entry.Source != domain.CartSourceAIRecommendation {
		t.Fatalf("expected source %q, got %q", domain.CartSourceAIRecommendation, entry.Source)
	}
	if entry.RecommendationID == nil || *entry.RecommendationID != rec.ID {
		t.Fatalf("expected back-reference to recommendation, got %v", entry.RecommendationID)
	}

	stored, _ := f.repo.FindRecommendationByID(ctx, rec.ID)
	if stored.Status != domain.RecommendationAddedToCart {
		t.Fatalf("expected added_to_cart status, got %q", stored.Status)
	}

	// A non-pending recommendation cannot be added again.
	if _, err := f.service.AddToCart(ctx, rec.ID); !errors.Is(err, ErrRecommendationFinalized) {
		t.Fatalf("expected ErrRecommendationFinalized on re-add, got %v", err)
	}
}

func TestListRecommendations_StaleCartLinkShownAsPending(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	rec := f.createRecommendation(t, 42)

	entry, err := f.service.AddToCart(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	if err := f.service.RemoveFromCart(ctx, entry.ID); err != nil {
		t.Fatalf("RemoveFromCart returned error: %v", err)
	}

	// Before any reconciliation pass, the listing already presents the row
	// as pending.
	listed, err := f.service.ListRecommendations(ctx, f.userID, store.RecommendationListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecommendations returned error: %v", err)
	}
	if len(listed) != 1 || listed[0].Status != domain.RecommendationPending {
		t.Fatalf("expected stale cart link presented as pending, got %+v", listed)
	}

	// The stored row still says added_to_cart until the reconciler runs.
	stored, _ := f.repo.FindRecommendationByID(ctx, rec.ID)
	if stored.Status != domain.RecommendationAddedToCart {
		t.Fatalf("expected stored status untouched, got %q", stored.Status)
	}
}

func TestReconciler_RevertsStaleCartLinks(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	rec := f.createRecommendation(t, 42)

	entry, err := f.service.AddToCart(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AddToCart returned error: %v", err)
	}
	if err := f.service.RemoveFromCart(ctx, entry.ID); err != nil {
		t.Fatalf("RemoveFromCart returned error: %v", err)
	}

	reconciler := NewReconciler(f.repo, nil, "")
	reverted, err := reconciler.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if reverted != 1 {
		t.Fatalf("expected 1 reverted recommendation, got %d", reverted)
	}

	stored, _ := f.repo.FindRecommendationByID(ctx, rec.ID)
	if stored.Status != domain.RecommendationPending {
		t.Fatalf("expected recommendation reverted to pending, got %q", stored.Status)
	}

	// A second pass finds nothing.
	if reverted, err := reconciler.RunOnce(ctx); err != nil || reverted != 0 {
		t.Fatalf("expected idempotent second pass, got %d, %v", reverted, err)
	}
}
