package app

import (
	"strings"
	"testing"

	"github.com/veluna/marketplace-core/internal/domain"
)

func scoringCandidates() []domain.Product {
	return []domain.Product{
		{ID: 1, Title: "Mechanical Keyboard", Description: "Clicky keys", CategoryID: 10},
		{ID: 2, Title: "Ergonomic Mouse", Description: "Wireless mouse for long sessions", CategoryID: 10},
		{ID: 3, Title: "Desk Lamp", Description: "Warm light", CategoryID: 20},
	}
}

func TestScore_WeightsAndOrdering(t *testing.T) {
	scorer := RecommendationScorer{}
	purchases := []domain.PurchaseRecord{{ProductID: 99, CategoryID: 10}}
	searches := []domain.SearchRecord{{Term: "mouse"}}

	scored := scorer.Score(scoringCandidates(), purchases, searches, nil)
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored candidates, got %d", len(scored))
	}

	// Product 2: category match (5) + title match (3) + description match (1).
	if scored[0].Product.ID != 2 || scored[0].Score != 9 {
		t.Fatalf("expected product 2 on top with score 9, got product %d with score %d", scored[0].Product.ID, scored[0].Score)
	}
	// Product 1: category match only.
	if scored[1].Product.ID != 1 || scored[1].Score != 5 {
		t.Fatalf("expected product 1 second with score 5, got product %d with score %d", scored[1].Product.ID, scored[1].Score)
	}
	if scored[2].Product.ID != 3 || scored[2].Score != 0 {
		t.Fatalf("expected product 3 last with score 0, got product %d with score %d", scored[2].Product.ID, scored[2].Score)
	}

	if !strings.Contains(scored[0].Reason, "past purchases") || !strings.Contains(scored[0].Reason, "recent searches") {
		t.Fatalf("expected reason to mention both signals, got %q", scored[0].Reason)
	}
}

func TestScore_ClickedCategoryAndPreferences(t *testing.T) {
	scorer := RecommendationScorer{}
	clicked := int64(20)
	searches := []domain.SearchRecord{{Term: "unrelated gadget", ClickedCategoryID: &clicked}}
	preferences := []domain.CategoryPreference{{CategoryID: 10, Score: 3}}

	scored := scorer.Score(scoringCandidates(), nil, searches, preferences)

	byID := make(map[int64]domain.ScoredCandidate, len(scored))
	for _, sc := range scored {
		byID[sc.Product.ID] = sc
	}

	// Products in category 10 get 2 * preference score 3.
	if byID[1].Score != 6 {
		t.Fatalf("expected preference score 6 for product 1, got %d", byID[1].Score)
	}
	// Product 3 is in the clicked category.
	if byID[3].Score != 4 {
		t.Fatalf("expected clicked-category score 4 for product 3, got %d", byID[3].Score)
	}
}

func TestScore_TiesBreakByAscendingProductID(t *testing.T) {
	scorer := RecommendationScorer{}
	candidates := []domain.Product{
		{ID: 7, CategoryID: 10},
		{ID: 3, CategoryID: 10},
		{ID: 5, CategoryID: 10},
	}
	purchases := []domain.PurchaseRecord{{ProductID: 1, CategoryID: 10}}

	for run := 0; run < 5; run++ {
		scored := scorer.Score(candidates, purchases, nil, nil)
		if scored[0].Product.ID != 3 || scored[1].Product.ID != 5 || scored[2].Product.ID != 7 {
			t.Fatalf("run %d: expected deterministic order 3,5,7, got %d,%d,%d",
				run, scored[0].Product.ID, scored[1].Product.ID, scored[2].Product.ID)
		}
	}
}

func TestScore_EmptyHistoryFallsBackToSeededShuffle(t *testing.T) {
	first := RecommendationScorer{Seed: 12345}.Score(scoringCandidates(), nil, nil, nil)
	second := RecommendationScorer{Seed: 12345}.Score(scoringCandidates(), nil, nil, nil)

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected full candidate set back, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Product.ID != second[i].Product.ID {
			t.Fatalf("expected identical order for identical seeds, diverged at index %d", i)
		}
		if first[i].Score != 0 {
			t.Fatalf("expected neutral score in shuffle mode, got %d", first[i].Score)
		}
		if first[i].Reason != "picked for you" {
			t.Fatalf("unexpected shuffle reason: %q", first[i].Reason)
		}
	}

	// RandomMode forces the shuffle even with history present.
	forced := RecommendationScorer{RandomMode: true, Seed: 12345}.Score(scoringCandidates(), []domain.PurchaseRecord{{CategoryID: 10}}, nil, nil)
	for i := range forced {
		if forced[i].Score != 0 {
			t.Fatalf("expected neutral scores in forced random mode, got %d", forced[i].Score)
		}
	}
}

func TestConfidenceFor_ClampsToScale(t *testing.T) {
	cases := []struct {
		score, want int
	}{
		{0, 50},
		{10, 60},
		{50, 100},
		{80, 100},
		{-60, 0},
	}
	for _, tc := range cases {
		if got := ConfidenceFor(tc.score); got != tc.want {
			t.Fatalf("ConfidenceFor(%d) = %d, want %d", tc.score, got, tc.want)
		}
	}
}
