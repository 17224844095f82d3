/**
 * @description
 * Coin-facing operations on the service: credit grants for rewards, refunds,
 * and admin adjustments, plus balance and history reads. These are thin,
 * audited entry points over the append-only ledger.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

// GrantPurchaseCoins credits coins earned from a completed marketplace
// purchase.
func (s *Service) GrantPurchaseCoins(ctx context.Context, userID uuid.UUID, amount int64, orderRef string) (*domain.CoinTransaction, error) {
	return s.ledger.Credit(ctx, userID, amount, domain.CoinKindPurchase,
		fmt.Sprintf("Coins earned from order %s", orderRef),
		map[string]string{"order_ref": orderRef})
}

// GrantReward credits promotional or engagement reward coins.
func (s *Service) GrantReward(ctx context.Context, userID uuid.UUID, amount int64, description string) (*domain.CoinTransaction, error) {
	if description == "" {
		description = "Reward coins"
	}
	return s.ledger.Credit(ctx, userID, amount, domain.CoinKindReward, description, nil)
}

// RefundPurchase credits back coins from a reversed spend. transactionID
// references the original spend entry; the ledger stays append-only, so a
// refund is a new row, never a mutation of the original.
func (s *Service) RefundPurchase(ctx context.Context, userID uuid.UUID, amount int64, transactionID uuid.UUID) (*domain.CoinTransaction, error) {
	return s.ledger.Credit(ctx, userID, amount, domain.CoinKindRefund,
		"Refund of coin purchase",
		map[string]string{"refunded_transaction_id": transactionID.String()})
}

// AdminAdjust applies a manual correction. Positive amounts credit the user;
// negative amounts are debited and subject to the usual balance check.
func (s *Service) AdminAdjust(ctx context.Context, userID uuid.UUID, amount int64, reason string) (*domain.CoinTransaction, error) {
	if reason == "" {
		return nil, fmt.Errorf("admin adjustments require a reason")
	}
	meta := map[string]string{"reason": reason}
	if amount >= 0 {
		return s.ledger.Credit(ctx, userID, amount, domain.CoinKindAdmin, "Admin adjustment: "+reason, meta)
	}
	return s.ledger.Debit(ctx, userID, -amount, "Admin adjustment: "+reason, meta)
}

// GetCoinBalance returns the user's current balance derived from the ledger.
func (s *Service) GetCoinBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// GetCoinHistory returns the user's most recent ledger entries, newest first.
func (s *Service) GetCoinHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CoinTransaction, error) {
	return s.ledger.History(ctx, userID, limit)
}
