package compare

import (
	"sort"

	"github.com/patabima/pricing-engine/internal/model"
)

// Rank orders entries by base premium, then underwriter code, and assigns
// market positions. Positions are relative to this slice only.
func Rank(entries []model.ComparisonEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Breakdown.BasePremium, entries[j].Breakdown.BasePremium
		if c := a.Cmp(b); c != 0 {
			return c < 0
		}
		return entries[i].UnderwriterCode < entries[j].UnderwriterCode
	})

	last := len(entries) - 1
	for i := range entries {
		switch {
		case i == 0:
			entries[i].MarketPosition = model.PositionCheapest
		case i == last:
			entries[i].MarketPosition = model.PositionMostExpensive
		default:
			entries[i].MarketPosition = model.PositionMidRange
		}
	}
}
