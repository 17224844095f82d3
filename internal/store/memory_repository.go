/**
 * @description
 * This file provides an in-memory implementation of the `Repository` interface.
 * It is the secondary store behind the resilient dispatcher: when the primary
 * PostgreSQL store fails, individual calls fall back here so a transient
 * outage degrades gracefully instead of failing the request.
 *
 * The fallback is behaviorally equivalent, not identical. Known degradations:
 *   - ListRecommendationsByUser ignores the Status filter and Offset and
 *     returns a superset; callers that need the filter must post-filter.
 *   - Data written here is process-local and is surfaced to operators through
 *     fallback events for manual reconciliation; it is not replayed into the
 *     primary automatically.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

// MemoryRepository is a mutex-guarded, process-local Repository implementation.
// The zero value is not usable; construct with NewMemoryRepository. Lifecycle
// is owned by the composing application, not a package-level singleton.
type MemoryRepository struct {
	mu              sync.RWMutex
	transactions    map[uuid.UUID][]domain.CoinTransaction // keyed by user
	recommendations map[uuid.UUID]domain.Recommendation
	cartEntries     map[uuid.UUID]domain.CartEntry
	settings        map[uuid.UUID]domain.AutomationSettings
	purchases       map[uuid.UUID][]domain.PurchaseRecord
	searches        map[uuid.UUID][]domain.SearchRecord
	preferences     map[uuid.UUID][]domain.CategoryPreference
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		transactions:    make(map[uuid.UUID][]domain.CoinTransaction),
		recommendations: make(map[uuid.UUID]domain.Recommendation),
		cartEntries:     make(map[uuid.UUID]domain.CartEntry),
		settings:        make(map[uuid.UUID]domain.AutomationSettings),
		purchases:       make(map[uuid.UUID][]domain.PurchaseRecord),
		searches:        make(map[uuid.UUID][]domain.SearchRecord),
		preferences:     make(map[uuid.UUID][]domain.CategoryPreference),
	}
}

func (m *MemoryRepository) AppendCoinTransaction(ctx context.Context, tx *domain.CoinTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.transactions[tx.UserID] {
		if existing.ID == tx.ID {
			return ErrDuplicateTransaction
		}
	}

	stored := *tx
	if stored.Metadata != nil {
		stored.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			stored.Metadata[k] = v
		}
	}
	m.transactions[tx.UserID] = append(m.transactions[tx.UserID], stored)
	return nil
}

func (m *MemoryRepository) SumCoinTransactionsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var balance int64
	for _, tx := range m.transactions[userID] {
		if tx.Kind == domain.CoinKindSpend {
			balance -= tx.Amount
		} else {
			balance += tx.Amount
		}
	}
	return balance, nil
}

func (m *MemoryRepository) ListCoinTransactionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CoinTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.transactions[userID]
	out := make([]domain.CoinTransaction, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) CreateRecommendation(ctx context.Context, rec *domain.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.recommendations[stored.ID] = stored
	return nil
}

func (m *MemoryRepository) FindRecommendationByID(ctx context.Context, recommendationID uuid.UUID) (*domain.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.recommendations[recommendationID]
	if !ok {
		return nil, ErrRecommendationNotFound
	}
	out := rec
	return &out, nil
}

func (m *MemoryRepository) UpdateRecommendationStatus(ctx context.Context, recommendationID uuid.UUID, status string, rejectedReason *string, purchasedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recommendations[recommendationID]
	if !ok {
		return ErrRecommendationNotFound
	}
	rec.Status = status
	rec.RejectedReason = rejectedReason
	rec.PurchasedAt = purchasedAt
	rec.UpdatedAt = time.Now().UTC()
	m.recommendations[recommendationID] = rec
	return nil
}

// ListRecommendationsByUser honors the permanent-rejection exclusion and the
// Limit, but ignores Status and Offset (documented degradation: callers get a
// superset and must post-filter).
func (m *MemoryRepository) ListRecommendationsByUser(ctx context.Context, userID uuid.UUID, opts RecommendationListOptions) ([]domain.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []domain.Recommendation
	for _, rec := range m.recommendations {
		if rec.UserID != userID {
			continue
		}
		if !opts.IncludePermanent && rec.IsPermanentlyRejected() {
			continue
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

func (m *MemoryRepository) RecommendationExistsForProduct(ctx context.Context, userID uuid.UUID, productID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.recommendations {
		if rec.UserID == userID && rec.ProductID == productID && rec.Status != domain.RecommendationRejected {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) UpsertCartEntry(ctx context.Context, entry *domain.CartEntry) (*domain.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id, existing := range m.cartEntries {
		if existing.UserID == entry.UserID && existing.ProductID == entry.ProductID {
			existing.Quantity += entry.Quantity
			existing.Source = entry.Source
			if entry.RecommendationID != nil {
				existing.RecommendationID = entry.RecommendationID
			}
			existing.UpdatedAt = now
			m.cartEntries[id] = existing
			out := existing
			return &out, nil
		}
	}

	stored := *entry
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.cartEntries[stored.ID] = stored
	out := stored
	return &out, nil
}

func (m *MemoryRepository) RemoveCartEntry(ctx context.Context, entryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cartEntries[entryID]; !ok {
		return ErrCartEntryNotFound
	}
	delete(m.cartEntries, entryID)
	return nil
}

func (m *MemoryRepository) ListCartEntriesByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []domain.CartEntry
	for _, entry := range m.cartEntries {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (m *MemoryRepository) FindCartEntryByRecommendationID(ctx context.Context, recommendationID uuid.UUID) (*domain.CartEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, entry := range m.cartEntries {
		if entry.RecommendationID != nil && *entry.RecommendationID == recommendationID {
			out := entry
			return &out, nil
		}
	}
	return nil, ErrCartEntryNotFound
}

func (m *MemoryRepository) GetAutomationSettings(ctx context.Context, userID uuid.UUID) (*domain.AutomationSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings, ok := m.settings[userID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	out := settings
	out.PreferredCategories = append([]string(nil), settings.PreferredCategories...)
	out.AvoidTags = append([]string(nil), settings.AvoidTags...)
	return &out, nil
}

func (m *MemoryRepository) SaveAutomationSettings(ctx context.Context, settings *domain.AutomationSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *settings
	stored.PreferredCategories = append([]string(nil), settings.PreferredCategories...)
	stored.AvoidTags = append([]string(nil), settings.AvoidTags...)
	stored.UpdatedAt = time.Now().UTC()
	m.settings[stored.UserID] = stored
	return nil
}

func (m *MemoryRepository) ListPurchaseHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PurchaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.purchases[userID]
	out := make([]domain.PurchaseRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchasedAt.After(out[j].PurchasedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListSearchHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.searches[userID]
	out := make([]domain.SearchRecord, len(records))
	copy(out, records)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListCategoryPreferences(ctx context.Context, userID uuid.UUID) ([]domain.CategoryPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefs := m.preferences[userID]
	out := make([]domain.CategoryPreference, len(prefs))
	copy(out, prefs)
	return out, nil
}

func (m *MemoryRepository) ListStaleCartLinkedRecommendations(ctx context.Context, limit int) ([]domain.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	linked := make(map[uuid.UUID]bool)
	for _, entry := range m.cartEntries {
		if entry.RecommendationID != nil {
			linked[*entry.RecommendationID] = true
		}
	}

	var stale []domain.Recommendation
	for _, rec := range m.recommendations {
		if rec.Status != domain.RecommendationAddedToCart || linked[rec.ID] {
			continue
		}
		stale = append(stale, rec)
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// SeedPurchaseHistory loads purchase history records, for tests and for
// warm-starting a fallback process.
func (m *MemoryRepository) SeedPurchaseHistory(userID uuid.UUID, records []domain.PurchaseRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases[userID] = append([]domain.PurchaseRecord(nil), records...)
}

// SeedSearchHistory loads search history records.
func (m *MemoryRepository) SeedSearchHistory(userID uuid.UUID, records []domain.SearchRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches[userID] = append([]domain.SearchRecord(nil), records...)
}

// SeedCategoryPreferences loads category preference scores.
func (m *MemoryRepository) SeedCategoryPreferences(userID uuid.UUID, prefs []domain.CategoryPreference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[userID] = append([]domain.CategoryPreference(nil), prefs...)
}

var _ Repository = (*MemoryRepository)(nil)
