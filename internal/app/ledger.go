/**
 * @description
 * This file implements the coin ledger, the sole source of truth for a user's
 * virtual-currency balance. The ledger is an append-only transaction log:
 * balance is derived by summing the log, never stored as a mutable counter.
 * Deriving it keeps every write commutative and makes the debit check a
 * re-read-then-check under per-user serialization instead of a silently
 * divergent counter.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/google/uuid: Transaction ids.
 * - internal/domain, internal/store: Domain models and the storage contract.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

var (
	ErrInvalidAmount     = errors.New("transaction amount must be positive")
	ErrInvalidKind       = errors.New("invalid credit transaction kind")
	ErrInsufficientFunds = errors.New("insufficient coin balance")
)

// LedgerStore is the slice of the storage contract the ledger needs.
// *store.Resilient and the concrete repositories all satisfy it.
type LedgerStore interface {
	AppendCoinTransaction(ctx context.Context, tx *domain.CoinTransaction) error
	SumCoinTransactionsByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListCoinTransactionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CoinTransaction, error)
}

// CoinLedger validates and appends coin transactions. All mutations for a
// user are serialized through the injected locker.
type CoinLedger struct {
	store  LedgerStore
	locker UserLocker
}

// NewCoinLedger creates a ledger over the given store. A nil locker defaults
// to in-process per-user mutexes.
func NewCoinLedger(store LedgerStore, locker UserLocker) *CoinLedger {
	if locker == nil {
		locker = NewMutexUserLocker()
	}
	return &CoinLedger{store: store, locker: locker}
}

// Balance derives the user's balance from the transaction log. A user with no
// history has balance 0, never an error.
func (l *CoinLedger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return l.store.SumCoinTransactionsByUser(ctx, userID)
}

// Credit appends a balance-increasing transaction. kind must be one of the
// credit kinds (purchase, reward, refund, admin).
func (l *CoinLedger) Credit(ctx context.Context, userID uuid.UUID, amount int64, kind, description string, metadata map[string]string) (*domain.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !domain.IsCreditKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	unlock, err := l.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx := &domain.CoinTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.store.AppendCoinTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to append credit transaction: %w", err)
	}
	return tx, nil
}

// Debit appends a spend transaction after re-checking the balance under the
// user's lock. Two concurrent debits can never both observe sufficient funds.
func (l *CoinLedger) Debit(ctx context.Context, userID uuid.UUID, amount int64, description string, metadata map[string]string) (*domain.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	unlock, err := l.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	balance, err := l.store.SumCoinTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance for debit check: %w", err)
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: required %d, available %d", ErrInsufficientFunds, amount, balance)
	}

	tx := &domain.CoinTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Kind:        domain.CoinKindSpend,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.store.AppendCoinTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to append spend transaction: %w", err)
	}
	return tx, nil
}

// History returns the user's transactions newest-first. A non-positive limit
// means unbounded.
func (l *CoinLedger) History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CoinTransaction, error) {
	return l.store.ListCoinTransactionsByUser(ctx, userID, limit)
}
