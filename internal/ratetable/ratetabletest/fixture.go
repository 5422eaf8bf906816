// Package ratetabletest provides a small, realistic rate feed for tests.
package ratetabletest

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/patabima/pricing-engine/internal/model"
	"github.com/patabima/pricing-engine/internal/ratetable"
)

// Version is the feed version of Feed().
const Version = "2025-07-test"

// D parses a decimal literal, panicking on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// P returns a pointer to the decimal parsed from s.
func P(s string) *decimal.Decimal {
	v := D(s)
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

// Feed returns a fresh feed covering fixed, percentage and bracketed
// subcategories. AMACO is listed as an underwriter but holds no rates.
func Feed() *ratetable.Feed {
	return &ratetable.Feed{
		Version: Version,
		Subcategories: []model.Subcategory{
			{Code: "PRIVATE_THIRD_PARTY", Name: "Private Third Party", Category: "PRIVATE", PricingModel: model.PricingFixed},
			{Code: "PRIVATE_COMPREHENSIVE", Name: "Private Comprehensive", Category: "PRIVATE", PricingModel: model.PricingPercentage},
			{Code: "PRIVATE_TOR", Name: "Private Time on Risk", Category: "PRIVATE", PricingModel: model.PricingFixed, DefaultCoverDays: 30},
			{Code: "COMMERCIAL_COMPREHENSIVE", Name: "Commercial Comprehensive", Category: "COMMERCIAL", PricingModel: model.PricingPercentage},
		},
		Underwriters: []model.Underwriter{
			{Code: "MADISON", DisplayName: "Madison Insurance"},
			{Code: "UAP", DisplayName: "UAP Old Mutual"},
			{Code: "BRITISH", DisplayName: "Britam General"},
			{Code: "SANLAM", DisplayName: "Sanlam General"},
			{Code: "AMACO", DisplayName: "Africa Merchant Assurance"},
		},
		Rates: []ratetable.Row{
			{Subcategory: "PRIVATE_THIRD_PARTY", Underwriter: "MADISON", PricingModel: model.PricingFixed, FlatAmount: P("2500.00")},
			{Subcategory: "PRIVATE_THIRD_PARTY", Underwriter: "UAP", PricingModel: model.PricingFixed, FlatAmount: P("2500.00")},
			{Subcategory: "PRIVATE_THIRD_PARTY", Underwriter: "BRITISH", PricingModel: model.PricingFixed, FlatAmount: P("3000.00")},
			{Subcategory: "PRIVATE_THIRD_PARTY", Underwriter: "SANLAM", PricingModel: model.PricingFixed, FlatAmount: P("2800.00")},

			{Subcategory: "PRIVATE_COMPREHENSIVE", Underwriter: "MADISON", PricingModel: model.PricingPercentage, Rate: P("0.035"), MinPremium: P("10000")},
			{Subcategory: "PRIVATE_COMPREHENSIVE", Underwriter: "UAP", PricingModel: model.PricingPercentage, Rate: P("0.04"), MinPremium: P("15000"), MaxPremium: P("50000")},
			{Subcategory: "PRIVATE_COMPREHENSIVE", Underwriter: "BRITISH", PricingModel: model.PricingPercentage, Rate: P("0.03"), MinPremium: P("20000")},
			{Subcategory: "PRIVATE_COMPREHENSIVE", Underwriter: "SANLAM", PricingModel: model.PricingPercentage, Rate: P("0.035"), MinPremium: P("10000"), MinSumInsured: P("500000")},

			{Subcategory: "PRIVATE_TOR", Underwriter: "MADISON", FlatAmount: P("1200"),
				Bracket: &ratetable.BracketRow{Dimension: model.DimensionCoverDays, Low: D("1"), High: P("8")}},
			{Subcategory: "PRIVATE_TOR", Underwriter: "MADISON", FlatAmount: P("3300"),
				Bracket: &ratetable.BracketRow{Dimension: model.DimensionCoverDays, Low: D("8"), High: P("31")}},
			{Subcategory: "PRIVATE_TOR", Underwriter: "MADISON", FlatAmount: P("4500"),
				Bracket: &ratetable.BracketRow{Dimension: model.DimensionCoverDays, Low: D("31")}},
			{Subcategory: "PRIVATE_TOR", Underwriter: "UAP", FlatAmount: P("3500"),
				Bracket: &ratetable.BracketRow{Dimension: model.DimensionCoverDays, Low: D("1"), High: P("31")}},
			{Subcategory: "PRIVATE_TOR", Underwriter: "UAP", FlatAmount: P("5000"),
				Bracket: &ratetable.BracketRow{Dimension: model.DimensionCoverDays, Low: D("31")}},

			{Subcategory: "COMMERCIAL_COMPREHENSIVE", Underwriter: "SANLAM", Rate: P("0.045"), MinPremium: P("30000"), MaxVehicleAge: Int(15),
				Bracket: &ratetable.BracketRow{Dimension: model.DimensionSumInsured, Low: D("0"), High: P("1000000")}},
			{Subcategory: "COMMERCIAL_COMPREHENSIVE", Underwriter: "SANLAM", Rate: P("0.04"), MinPremium: P("30000"), MaxVehicleAge: Int(15),
				Bracket: &ratetable.BracketRow{Dimension: model.DimensionSumInsured, Low: D("1000000")}},
		},
	}
}

// Snapshot builds a snapshot from Feed, failing the test on error.
func Snapshot(t testing.TB) *ratetable.Snapshot {
	t.Helper()
	snap, err := ratetable.NewSnapshot(Feed())
	if err != nil {
		t.Fatalf("build fixture snapshot: %v", err)
	}
	return snap
}

// Table wraps Snapshot in a Table.
func Table(t testing.TB) *ratetable.Table {
	t.Helper()
	return ratetable.NewTable(Snapshot(t))
}
