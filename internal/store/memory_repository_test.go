package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

func TestMemoryRepository_LedgerSumAndOrdering(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	userID := uuid.New()

	base := time.Now().UTC()
	amounts := []struct {
		amount int64
		kind   string
	}{
		{100, domain.CoinKindReward},
		{40, domain.CoinKindPurchase},
		{30, domain.CoinKindSpend},
	}
	for i, a := range amounts {
		tx := &domain.CoinTransaction{
			ID:        uuid.New(),
			UserID:    userID,
			Amount:    a.amount,
			Kind:      a.kind,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.AppendCoinTransaction(ctx, tx); err != nil {
			t.Fatalf("AppendCoinTransaction returned error: %v", err)
		}
	}

	sum, err := repo.SumCoinTransactionsByUser(ctx, userID)
	if err != nil {
		t.Fatalf("SumCoinTransactionsByUser returned error: %v", err)
	}
	if sum != 110 {
		t.Fatalf("expected sum 110 (credits minus spend), got %d", sum)
	}

	// Newest first, limit respected.
	list, err := repo.ListCoinTransactionsByUser(ctx, userID, 2)
	if err != nil {
		t.Fatalf("ListCoinTransactionsByUser returned error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries with limit 2, got %d", len(list))
	}
	if list[0].Kind != domain.CoinKindSpend {
		t.Fatalf("expected newest entry first, got kind %q", list[0].Kind)
	}

	// Another user's ledger is isolated.
	otherSum, _ := repo.SumCoinTransactionsByUser(ctx, uuid.New())
	if otherSum != 0 {
		t.Fatalf("expected isolated zero balance, got %d", otherSum)
	}
}

func TestMemoryRepository_DuplicateTransactionRejected(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	tx := &domain.CoinTransaction{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Amount:    10,
		Kind:      domain.CoinKindReward,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.AppendCoinTransaction(ctx, tx); err != nil {
		t.Fatalf("first append returned error: %v", err)
	}
	if err := repo.AppendCoinTransaction(ctx, tx); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestMemoryRepository_CartUpsertMergesQuantity(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	userID := uuid.New()

	first, err := repo.UpsertCartEntry(ctx, &domain.CartEntry{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: 42,
		Quantity:  1,
		Source:    domain.CartSourceManual,
	})
	if err != nil {
		t.Fatalf("first upsert returned error: %v", err)
	}

	second, err := repo.UpsertCartEntry(ctx, &domain.CartEntry{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: 42,
		Quantity:  2,
		Source:    domain.CartSourceManual,
	})
	if err != nil {
		t.Fatalf("second upsert returned error: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected merge into the existing row, got a new id")
	}
	if second.Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", second.Quantity)
	}

	entries, err := repo.ListCartEntriesByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListCartEntriesByUser returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single merged cart row, got %d", len(entries))
	}
}

func TestMemoryRepository_RecommendationLifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	userID := uuid.New()

	rec := &domain.Recommendation{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: 42,
		Status:    domain.RecommendationPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("CreateRecommendation returned error: %v", err)
	}

	exists, err := repo.RecommendationExistsForProduct(ctx, userID, 42)
	if err != nil || !exists {
		t.Fatalf("expected existing recommendation for product 42, got %v, %v", exists, err)
	}

	reason := "out of budget"
	if err := repo.UpdateRecommendationStatus(ctx, rec.ID, domain.RecommendationRejected, &reason, nil); err != nil {
		t.Fatalf("UpdateRecommendationStatus returned error: %v", err)
	}

	stored, err := repo.FindRecommendationByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindRecommendationByID returned error: %v", err)
	}
	if stored.Status != domain.RecommendationRejected || stored.RejectedReason == nil || *stored.RejectedReason != reason {
		t.Fatalf("unexpected stored state: %+v", stored)
	}

	// A rejected recommendation no longer blocks regeneration.
	exists, _ = repo.RecommendationExistsForProduct(ctx, userID, 42)
	if exists {
		t.Fatal("rejected recommendation must not count as active")
	}

	if _, err := repo.FindRecommendationByID(ctx, uuid.New()); !errors.Is(err, ErrRecommendationNotFound) {
		t.Fatalf("expected ErrRecommendationNotFound, got %v", err)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec := &domain.Recommendation{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ProductID: 42,
		Status:    domain.RecommendationPending,
	}
	if err := repo.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("CreateRecommendation returned error: %v", err)
	}

	loaded, err := repo.FindRecommendationByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindRecommendationByID returned error: %v", err)
	}
	loaded.Status = domain.RecommendationPurchased // caller mutates its copy

	fresh, _ := repo.FindRecommendationByID(ctx, rec.ID)
	if fresh.Status != domain.RecommendationPending {
		t.Fatal("mutating a returned recommendation must not affect stored state")
	}
}
