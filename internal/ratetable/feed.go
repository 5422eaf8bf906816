package ratetable

import (
	"github.com/shopspring/decimal"

	"github.com/patabima/pricing-engine/internal/model"
)

// Feed is one versioned delivery of reference data from the
// rate-management system.
type Feed struct {
	Version       string              `json:"version" yaml:"version"`
	Subcategories []model.Subcategory `json:"subcategories" yaml:"subcategories"`
	Underwriters  []model.Underwriter `json:"underwriters" yaml:"underwriters"`
	Rates         []Row               `json:"rates" yaml:"rates"`
}

// Row is a single rate line as delivered by the feed. Exactly one of
// FlatAmount (FIXED) or Rate (PERCENTAGE) is expected.
type Row struct {
	Subcategory   string             `json:"subcategory" yaml:"subcategory"`
	Underwriter   string             `json:"underwriter" yaml:"underwriter"`
	PricingModel  model.PricingModel `json:"pricing_model" yaml:"pricing_model"`
	FlatAmount    *decimal.Decimal   `json:"flat_amount,omitempty" yaml:"flat_amount"`
	Rate          *decimal.Decimal   `json:"rate,omitempty" yaml:"rate"`
	MinPremium    *decimal.Decimal   `json:"min_premium,omitempty" yaml:"min_premium"`
	MaxPremium    *decimal.Decimal   `json:"max_premium,omitempty" yaml:"max_premium"`
	Bracket       *BracketRow        `json:"bracket,omitempty" yaml:"bracket"`
	MaxVehicleAge *int               `json:"max_vehicle_age,omitempty" yaml:"max_vehicle_age"`
	MinSumInsured *decimal.Decimal   `json:"min_sum_insured,omitempty" yaml:"min_sum_insured"`
}

// BracketRow is the feed form of model.Bracket.
type BracketRow struct {
	Dimension model.BracketDimension `json:"dimension" yaml:"dimension"`
	Low       decimal.Decimal        `json:"low" yaml:"low"`
	High      *decimal.Decimal       `json:"high,omitempty" yaml:"high"`
}
