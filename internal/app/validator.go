/**
 * @description
 * Purchase validation for the automated shopper. Rules are evaluated in a
 * fixed order and the first failure wins; a denial is terminal for the
 * candidate only and never disables automation globally.
 */

package app

import (
	"fmt"

	"github.com/veluna/marketplace-core/internal/domain"
)

// DefaultMinimumConfidence is the floor applied to scorer confidence when no
// override is configured.
const DefaultMinimumConfidence = 50

// PurchaseValidator decides whether an automated purchase may proceed.
type PurchaseValidator struct {
	// MinimumConfidence is the lowest scorer confidence (0-100) accepted.
	// Zero means DefaultMinimumConfidence.
	MinimumConfidence int
}

// Validate applies the rules in order: automation enabled, trust score,
// avoided tags, budget, confidence. It returns whether the purchase is
// allowed and, when denied, a human-readable reason.
func (v PurchaseValidator) Validate(settings domain.AutomationSettings, candidate domain.Candidate, product domain.Product) (bool, string) {
	if !settings.Enabled || !settings.AutoPurchase {
		return false, "automated purchasing disabled"
	}

	if product.TrustScore < settings.MinimumTrustScore {
		return false, fmt.Sprintf("seller trust score %d is below your minimum of %d", product.TrustScore, settings.MinimumTrustScore)
	}

	for _, tag := range product.Tags {
		for _, avoided := range settings.AvoidTags {
			if tag == avoided {
				return false, fmt.Sprintf("product carries avoided tag %q", tag)
			}
		}
	}

	if product.Price > settings.BudgetLimit {
		return false, fmt.Sprintf("price %d exceeds your budget limit of %d", product.Price, settings.BudgetLimit)
	}

	minimum := v.MinimumConfidence
	if minimum <= 0 {
		minimum = DefaultMinimumConfidence
	}
	if candidate.Confidence < minimum {
		return false, fmt.Sprintf("confidence %d is below the minimum of %d", candidate.Confidence, minimum)
	}

	return true, ""
}
