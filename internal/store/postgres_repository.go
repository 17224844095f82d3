/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the necessary SQL queries to interact with the
 * database tables backing the coin ledger, recommendations, cart entries,
 * automation settings, and the history tables read by the scorer.
 *
 * @dependencies
 * - context, encoding/json, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veluna/marketplace-core/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AppendCoinTransaction inserts one immutable ledger entry. The table carries
// no update path; corrections are represented by compensating entries.
func (r *PostgresRepository) AppendCoinTransaction(ctx context.Context, tx *domain.CoinTransaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode transaction metadata: %w", err)
	}

	query := `
		INSERT INTO coin_transactions (id, user_id, amount, kind, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Amount,
		tx.Kind,
		tx.Description,
		metadata,
		tx.CreatedAt,
	)
	return err
}

// SumCoinTransactionsByUser derives the user's balance from the full log:
// credit kinds count positive, spends count negative. A user with no history
// sums to zero, never an error.
func (r *PostgresRepository) SumCoinTransactionsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	query := `
		SELECT COALESCE(SUM(CASE WHEN kind = 'spend' THEN -amount ELSE amount END), 0)
		FROM coin_transactions
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ListCoinTransactionsByUser returns the user's ledger entries newest-first.
// A non-positive limit means unbounded.
func (r *PostgresRepository) ListCoinTransactionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CoinTransaction, error) {
	query := `
		SELECT id, user_id, amount, kind, description, metadata, created_at
		FROM coin_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.CoinTransaction
	for rows.Next() {
		var tx domain.CoinTransaction
		var metadata []byte
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Kind, &tx.Description, &metadata, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
			}
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// CreateRecommendation inserts a new recommendation row.
func (r *PostgresRepository) CreateRecommendation(ctx context.Context, rec *domain.Recommendation) error {
	query := `
		INSERT INTO recommendations (id, user_id, product_id, reason, confidence, status, rejected_reason, purchased_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.ProductID,
		rec.Reason,
		rec.Confidence,
		rec.Status,
		rec.RejectedReason,
		rec.PurchasedAt,
	)
	return err
}

// FindRecommendationByID retrieves a recommendation by its ID.
func (r *PostgresRepository) FindRecommendationByID(ctx context.Context, recommendationID uuid.UUID) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	query := `
		SELECT id, user_id, product_id, reason, confidence, status, rejected_reason, purchased_at, created_at, updated_at
		FROM recommendations
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, recommendationID).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ProductID,
		&rec.Reason,
		&rec.Confidence,
		&rec.Status,
		&rec.RejectedReason,
		&rec.PurchasedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRecommendationNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateRecommendationStatus transitions a recommendation, recording the
// rejection reason and purchase timestamp where applicable.
func (r *PostgresRepository) UpdateRecommendationStatus(ctx context.Context, recommendationID uuid.UUID, status string, rejectedReason *string, purchasedAt *time.Time) error {
	query := `
		UPDATE recommendations
		SET status = $1, rejected_reason = $2, purchased_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, status, rejectedReason, purchasedAt, recommendationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecommendationNotFound
	}
	return nil
}

// ListRecommendationsByUser returns the user's recommendations newest-first.
// Permanently rejected rows (marker suffix on rejected_reason) are filtered in
// SQL unless opts.IncludePermanent is set.
func (r *PostgresRepository) ListRecommendationsByUser(ctx context.Context, userID uuid.UUID, opts RecommendationListOptions) ([]domain.Recommendation, error) {
	query := `
		SELECT id, user_id, product_id, reason, confidence, status, rejected_reason, purchased_at, created_at, updated_at
		FROM recommendations
		WHERE user_id = $1
	`
	args := []interface{}{userID}

	if !opts.IncludePermanent {
		args = append(args, "%"+domain.PermanentRejectionMarker)
		query += fmt.Sprintf(" AND (rejected_reason IS NULL OR rejected_reason NOT LIKE $%d)", len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.Recommendation
	for rows.Next() {
		var rec domain.Recommendation
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ProductID,
			&rec.Reason,
			&rec.Confidence,
			&rec.Status,
			&rec.RejectedReason,
			&rec.PurchasedAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RecommendationExistsForProduct reports whether the user already has a live
// (non-rejected) recommendation for the product.
func (r *PostgresRepository) RecommendationExistsForProduct(ctx context.Context, userID uuid.UUID, productID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM recommendations
			WHERE user_id = $1 AND product_id = $2 AND status <> 'rejected'
		)
	`
	err := r.db.QueryRow(ctx, query, userID, productID).Scan(&exists)
	return exists, err
}

// UpsertCartEntry inserts a cart entry, or increments the quantity of the
// existing row when the user already has the product in their cart.
func (r *PostgresRepository) UpsertCartEntry(ctx context.Context, entry *domain.CartEntry) (*domain.CartEntry, error) {
	var saved domain.CartEntry
	query := `
		INSERT INTO cart_entries (id, user_id, product_id, quantity, source, recommendation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_entries.quantity + EXCLUDED.quantity,
		    source = EXCLUDED.source,
		    recommendation_id = COALESCE(EXCLUDED.recommendation_id, cart_entries.recommendation_id),
		    updated_at = NOW()
		RETURNING id, user_id, product_id, quantity, source, recommendation_id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		entry.ProductID,
		entry.Quantity,
		entry.Source,
		entry.RecommendationID,
	).Scan(
		&saved.ID,
		&saved.UserID,
		&saved.ProductID,
		&saved.Quantity,
		&saved.Source,
		&saved.RecommendationID,
		&saved.CreatedAt,
		&saved.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// RemoveCartEntry deletes a cart entry by its ID.
func (r *PostgresRepository) RemoveCartEntry(ctx context.Context, entryID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM cart_entries WHERE id = $1", entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCartEntryNotFound
	}
	return nil
}

// ListCartEntriesByUser returns all cart entries for a user, oldest-first.
func (r *PostgresRepository) ListCartEntriesByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartEntry, error) {
	query := `
		SELECT id, user_id, product_id, quantity, source, recommendation_id, created_at, updated_at
		FROM cart_entries
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CartEntry
	for rows.Next() {
		var entry domain.CartEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.ProductID,
			&entry.Quantity,
			&entry.Source,
			&entry.RecommendationID,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindCartEntryByRecommendationID looks up the cart entry produced by a
// recommendation, if any.
func (r *PostgresRepository) FindCartEntryByRecommendationID(ctx context.Context, recommendationID uuid.UUID) (*domain.CartEntry, error) {
	var entry domain.CartEntry
	query := `
		SELECT id, user_id, product_id, quantity, source, recommendation_id, created_at, updated_at
		FROM cart_entries
		WHERE recommendation_id = $1
	`
	err := r.db.QueryRow(ctx, query, recommendationID).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.ProductID,
		&entry.Quantity,
		&entry.Source,
		&entry.RecommendationID,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCartEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// GetAutomationSettings retrieves a user's automation settings.
func (r *PostgresRepository) GetAutomationSettings(ctx context.Context, userID uuid.UUID) (*domain.AutomationSettings, error) {
	var settings domain.AutomationSettings
	query := `
		SELECT user_id, enabled, auto_purchase, budget_limit, preferred_categories, avoid_tags, minimum_trust_score, use_coins, updated_at
		FROM automation_settings
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&settings.UserID,
		&settings.Enabled,
		&settings.AutoPurchase,
		&settings.BudgetLimit,
		&settings.PreferredCategories,
		&settings.AvoidTags,
		&settings.MinimumTrustScore,
		&settings.UseCoins,
		&settings.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &settings, nil
}

// SaveAutomationSettings upserts a user's automation settings.
func (r *PostgresRepository) SaveAutomationSettings(ctx context.Context, settings *domain.AutomationSettings) error {
	query := `
		INSERT INTO automation_settings (user_id, enabled, auto_purchase, budget_limit, preferred_categories, avoid_tags, minimum_trust_score, use_coins, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    auto_purchase = EXCLUDED.auto_purchase,
		    budget_limit = EXCLUDED.budget_limit,
		    preferred_categories = EXCLUDED.preferred_categories,
		    avoid_tags = EXCLUDED.avoid_tags,
		    minimum_trust_score = EXCLUDED.minimum_trust_score,
		    use_coins = EXCLUDED.use_coins,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		settings.UserID,
		settings.Enabled,
		settings.AutoPurchase,
		settings.BudgetLimit,
		settings.PreferredCategories,
		settings.AvoidTags,
		settings.MinimumTrustScore,
		settings.UseCoins,
	)
	return err
}

// ListPurchaseHistory returns the user's most recent purchases, newest-first.
func (r *PostgresRepository) ListPurchaseHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PurchaseRecord, error) {
	query := `
		SELECT product_id, category_id, purchased_at
		FROM purchase_history
		WHERE user_id = $1
		ORDER BY purchased_at DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PurchaseRecord
	for rows.Next() {
		var rec domain.PurchaseRecord
		if err := rows.Scan(&rec.ProductID, &rec.CategoryID, &rec.PurchasedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListSearchHistory returns the user's most recent searches, newest-first.
func (r *PostgresRepository) ListSearchHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SearchRecord, error) {
	query := `
		SELECT term, clicked_category_id
		FROM search_history
		WHERE user_id = $1
		ORDER BY searched_at DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SearchRecord
	for rows.Next() {
		var rec domain.SearchRecord
		if err := rows.Scan(&rec.Term, &rec.ClickedCategoryID); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListCategoryPreferences returns the user's stored category preference scores.
func (r *PostgresRepository) ListCategoryPreferences(ctx context.Context, userID uuid.UUID) ([]domain.CategoryPreference, error) {
	query := `
		SELECT category_id, score
		FROM category_preferences
		WHERE user_id = $1
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []domain.CategoryPreference
	for rows.Next() {
		var pref domain.CategoryPreference
		if err := rows.Scan(&pref.CategoryID, &pref.Score); err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

// ListStaleCartLinkedRecommendations returns added_to_cart recommendations
// whose cart entry was removed out-of-band, for the reconciliation job.
func (r *PostgresRepository) ListStaleCartLinkedRecommendations(ctx context.Context, limit int) ([]domain.Recommendation, error) {
	query := `
		SELECT r.id, r.user_id, r.product_id, r.reason, r.confidence, r.status, r.rejected_reason, r.purchased_at, r.created_at, r.updated_at
		FROM recommendations r
		WHERE r.status = 'added_to_cart'
		  AND NOT EXISTS (
			SELECT 1 FROM cart_entries c WHERE c.recommendation_id = r.id
		  )
		ORDER BY r.updated_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.Recommendation
	for rows.Next() {
		var rec domain.Recommendation
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ProductID,
			&rec.Reason,
			&rec.Confidence,
			&rec.Status,
			&rec.RejectedReason,
			&rec.PurchasedAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
