package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
	"github.com/veluna/marketplace-core/internal/store"
)

func newTestLedger() *CoinLedger {
	return NewCoinLedger(store.NewMemoryRepository(), nil)
}

func TestCoinLedger_BalanceStartsAtZero(t *testing.T) {
	ledger := newTestLedger()

	balance, err := ledger.Balance(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance for fresh user, got %d", balance)
	}
}

func TestCoinLedger_CreditThenDebitConservesBalance(t *testing.T) {
	ledger := newTestLedger()
	userID := uuid.New()
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, userID, 100, domain.CoinKindReward, "signup bonus", nil); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if _, err := ledger.Credit(ctx, userID, 50, domain.CoinKindPurchase, "order coins", nil); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if _, err := ledger.Debit(ctx, userID, 30, "auto purchase", nil); err != nil {
		t.Fatalf("Debit returned error: %v", err)
	}

	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if balance != 120 {
		t.Fatalf("expected balance 120, got %d", balance)
	}

	history, err := ledger.History(ctx, userID, 10)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(history))
	}
	spends := 0
	for _, tx := range history {
		if tx.Kind == domain.CoinKindSpend {
			spends++
		}
	}
	if spends != 1 {
		t.Fatalf("expected exactly one spend entry, got %d", spends)
	}
}

func TestCoinLedger_DebitRejectsInsufficientFunds(t *testing.T) {
	ledger := newTestLedger()
	userID := uuid.New()
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, userID, 2, domain.CoinKindReward, "tiny grant", nil); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}

	_, err := ledger.Debit(ctx, userID, 5, "too expensive", nil)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !strings.Contains(err.Error(), "required 5, available 2") {
		t.Fatalf("expected amounts in error message, got %q", err.Error())
	}

	// A failed debit must not touch the ledger.
	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if balance != 2 {
		t.Fatalf("expected balance unchanged at 2, got %d", balance)
	}
}

func TestCoinLedger_RejectsInvalidAmountsAndKinds(t *testing.T) {
	ledger := newTestLedger()
	userID := uuid.New()
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, userID, 0, domain.CoinKindReward, "", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero credit, got %v", err)
	}
	if _, err := ledger.Credit(ctx, userID, -5, domain.CoinKindReward, "", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative credit, got %v", err)
	}
	if _, err := ledger.Debit(ctx, userID, 0, "", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero debit, got %v", err)
	}
	if _, err := ledger.Credit(ctx, userID, 10, domain.CoinKindSpend, "", nil); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind when crediting with spend kind, got %v", err)
	}
	if _, err := ledger.Credit(ctx, userID, 10, "bogus", "", nil); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind for unknown kind, got %v", err)
	}
}

func TestCoinLedger_ConcurrentDebitsNeverOverspend(t *testing.T) {
	ledger := newTestLedger()
	userID := uuid.New()
	ctx := context.Background()

	const (
		workers = 10
		amount  = int64(7)
	)
	// Fund exactly workers-1 debits so the race has a loser.
	if _, err := ledger.Credit(ctx, userID, amount*(workers-1), domain.CoinKindAdmin, "race funding", nil); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(ctx, userID, amount, "concurrent spend", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, insufficient := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	if succeeded != workers-1 || insufficient != 1 {
		t.Fatalf("expected %d successes and 1 insufficient-funds failure, got %d and %d", workers-1, succeeded, insufficient)
	}

	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected fully drained balance, got %d", balance)
	}
}
