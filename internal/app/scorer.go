/**
 * @description
 * Recommendation scoring. Score is a pure function over the supplied history
 * data: it ranks candidate products for a user from purchase history, search
 * history, and stored category preferences. When the user has no history, or
 * when random mode is requested, a uniformly-shuffled sample is returned
 * instead; that path draws from a seedable source so tests are deterministic.
 */

package app

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/veluna/marketplace-core/internal/domain"
)

// Scoring weights. Tunable design defaults.
const (
	purchaseCategoryWeight = 5
	titleMatchWeight       = 3
	descriptionMatchWeight = 1
	clickedCategoryWeight  = 4
	preferenceWeight       = 2
)

// confidenceBase anchors derived confidence so that any positively scored
// candidate lands in the actionable band; the cap is the 0-100 scale.
const confidenceBase = 50

// RecommendationScorer ranks candidates. The zero value scores normally; set
// RandomMode to force the shuffled-sample path. Seed feeds the shuffle source.
type RecommendationScorer struct {
	RandomMode bool
	Seed       int64
}

// Score ranks candidates descending by score, ties broken by ascending
// product id for determinism. With no history at all, or in random mode, it
// returns a uniform shuffle of the candidates with a neutral score.
func (s RecommendationScorer) Score(
	candidates []domain.Product,
	purchases []domain.PurchaseRecord,
	searches []domain.SearchRecord,
	preferences []domain.CategoryPreference,
) []domain.ScoredCandidate {
	if s.RandomMode || (len(purchases) == 0 && len(searches) == 0 && len(preferences) == 0) {
		return s.shuffled(candidates)
	}

	purchasedCategories := make(map[int64]bool, len(purchases))
	for _, p := range purchases {
		purchasedCategories[p.CategoryID] = true
	}

	clickedCategories := make(map[int64]bool)
	var terms []string
	for _, rec := range searches {
		if term := strings.ToLower(strings.TrimSpace(rec.Term)); term != "" {
			terms = append(terms, term)
		}
		if rec.ClickedCategoryID != nil {
			clickedCategories[*rec.ClickedCategoryID] = true
		}
	}

	preferenceScores := make(map[int64]int, len(preferences))
	for _, pref := range preferences {
		preferenceScores[pref.CategoryID] = pref.Score
	}

	scored := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, product := range candidates {
		var score int
		var reasons []string

		if purchasedCategories[product.CategoryID] {
			score += purchaseCategoryWeight
			reasons = append(reasons, "similar to your past purchases")
		}

		title := strings.ToLower(product.Title)
		description := strings.ToLower(product.Description)
		matchedTerms := 0
		for _, term := range terms {
			if strings.Contains(title, term) {
				score += titleMatchWeight
				matchedTerms++
			}
			if strings.Contains(description, term) {
				score += descriptionMatchWeight
			}
		}
		if matchedTerms > 0 {
			reasons = append(reasons, "matching your recent searches")
		}

		if clickedCategories[product.CategoryID] {
			score += clickedCategoryWeight
			reasons = append(reasons, "in a category you browsed")
		}

		if prefScore, ok := preferenceScores[product.CategoryID]; ok {
			score += preferenceWeight * prefScore
			reasons = append(reasons, "in a category you prefer")
		}

		scored = append(scored, domain.ScoredCandidate{
			Product: product,
			Score:   score,
			Reason:  buildReason(reasons),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Product.ID < scored[j].Product.ID
	})
	return scored
}

// shuffled returns the candidates in uniformly random order with a neutral
// score, using the scorer's seed.
func (s RecommendationScorer) shuffled(candidates []domain.Product) []domain.ScoredCandidate {
	rng := rand.New(rand.NewSource(s.Seed))

	out := make([]domain.ScoredCandidate, len(candidates))
	for i, product := range candidates {
		out[i] = domain.ScoredCandidate{
			Product: product,
			Score:   0,
			Reason:  "picked for you",
		}
	}
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// ConfidenceFor maps a raw score onto the 0-100 confidence scale consumed by
// the purchase validator. Unscored (random) picks sit exactly at the base.
func ConfidenceFor(score int) int {
	confidence := confidenceBase + score
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

func buildReason(reasons []string) string {
	if len(reasons) == 0 {
		return "picked for you"
	}
	return fmt.Sprintf("Recommended because it is %s", strings.Join(reasons, ", and "))
}
