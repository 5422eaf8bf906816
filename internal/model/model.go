// Package model defines the core domain types shared across the pricing engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every premium and levy is
// expressed in (currency minor units).
const MoneyScale int32 = 2

// PricingModel is the closed set of ways a subcategory turns inputs into a
// base premium.
type PricingModel string

const (
	PricingFixed      PricingModel = "FIXED"
	PricingPercentage PricingModel = "PERCENTAGE"
)

// Valid reports whether m is one of the known pricing models.
func (m PricingModel) Valid() bool {
	return m == PricingFixed || m == PricingPercentage
}

// BracketDimension names the input a bracketed rate is selected on.
type BracketDimension string

const (
	DimensionSumInsured   BracketDimension = "SUM_INSURED"
	DimensionCoverDays    BracketDimension = "COVER_DAYS"
	DimensionVehicleAge   BracketDimension = "VEHICLE_AGE"
	DimensionVehicleValue BracketDimension = "VEHICLE_VALUE"
)

// Valid reports whether d is one of the known bracket dimensions.
func (d BracketDimension) Valid() bool {
	switch d {
	case DimensionSumInsured, DimensionCoverDays, DimensionVehicleAge, DimensionVehicleValue:
		return true
	}
	return false
}

// Subcategory identifies a motor product variant, e.g. PRIVATE_THIRD_PARTY.
type Subcategory struct {
	Code             string       `json:"code" yaml:"code"`
	Name             string       `json:"name" yaml:"name"`
	Category         string       `json:"category" yaml:"category"` // e.g. PRIVATE, COMMERCIAL
	PricingModel     PricingModel `json:"pricing_model" yaml:"pricing_model"`
	DefaultCoverDays int          `json:"default_cover_days,omitempty" yaml:"default_cover_days"`
}

// Underwriter is an insurance carrier offering rates.
type Underwriter struct {
	Code        string `json:"code" yaml:"code"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Bracket restricts a rule to inputs whose dimension value falls in the
// half-open interval [Low, High). A nil High is unbounded.
type Bracket struct {
	Dimension BracketDimension `json:"dimension"`
	Low       decimal.Decimal  `json:"low"`
	High      *decimal.Decimal `json:"high,omitempty"`
}

// Contains reports whether v lies in [Low, High).
func (b Bracket) Contains(v decimal.Decimal) bool {
	if v.LessThan(b.Low) {
		return false
	}
	return b.High == nil || v.LessThan(*b.High)
}

// RateRule is the rate applicable to one (subcategory, underwriter) pair,
// optionally narrowed to a bracket.
type RateRule struct {
	SubcategoryCode string       `json:"subcategory_code"`
	UnderwriterCode string       `json:"underwriter_code"`
	PricingModel    PricingModel `json:"pricing_model"`

	FlatAmount decimal.Decimal  `json:"flat_amount"` // FIXED
	Rate       decimal.Decimal  `json:"rate"`        // PERCENTAGE, fraction of sum insured
	MinPremium *decimal.Decimal `json:"min_premium,omitempty"`
	MaxPremium *decimal.Decimal `json:"max_premium,omitempty"`

	Bracket *Bracket `json:"bracket,omitempty"`

	// Underwriting acceptance limits. Nil means no limit.
	MaxVehicleAge *int             `json:"max_vehicle_age,omitempty"`
	MinSumInsured *decimal.Decimal `json:"min_sum_insured,omitempty"`
}

// RiskInputs are the optional risk attributes a rule may depend on.
type RiskInputs struct {
	VehicleValue   *decimal.Decimal `json:"vehicle_value,omitempty"`
	VehicleAge     *int             `json:"vehicle_age,omitempty"`
	CoverDays      int              `json:"cover_days,omitempty"`
	CoverStartDate *time.Time       `json:"cover_start_date,omitempty"`
}

// Inputs carries everything about a pricing request except the codes.
// SumInsured is required and positive for PERCENTAGE subcategories and
// ignored otherwise, unless a rule brackets on it.
type Inputs struct {
	SumInsured *decimal.Decimal `json:"sum_insured,omitempty"`
	Risk       RiskInputs       `json:"risk"`
}

// PolicyTerm is the cover window a quote applies to. EndDate is inclusive.
type PolicyTerm struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      int       `json:"days"`
}

// PremiumBreakdown is the result of pricing one underwriter.
// TotalPremium == BasePremium + TrainingLevy + PCFLevy + StampDuty exactly.
type PremiumBreakdown struct {
	UnderwriterCode string          `json:"underwriter_code"`
	UnderwriterName string          `json:"underwriter_name"`
	SubcategoryCode string          `json:"subcategory_code"`
	BasePremium     decimal.Decimal `json:"base_premium"`
	TrainingLevy    decimal.Decimal `json:"training_levy"`
	PCFLevy         decimal.Decimal `json:"pcf_levy"`
	StampDuty       decimal.Decimal `json:"stamp_duty"`
	TotalPremium    decimal.Decimal `json:"total_premium"`
	RatesVersion    string          `json:"rates_version"`
	PolicyTerm      *PolicyTerm     `json:"policy_term,omitempty"`
}

// MarketPosition labels an entry relative to the rest of its comparison.
// It carries no meaning outside the comparison it was computed for.
type MarketPosition string

const (
	PositionCheapest      MarketPosition = "cheapest"
	PositionMidRange      MarketPosition = "mid-range"
	PositionMostExpensive MarketPosition = "most expensive"
)

// ComparisonEntry is one successfully priced underwriter within a comparison.
type ComparisonEntry struct {
	UnderwriterCode string           `json:"underwriter_code"`
	UnderwriterName string           `json:"underwriter_name"`
	Breakdown       PremiumBreakdown `json:"result"`
	MarketPosition  MarketPosition   `json:"market_position"`
}

// ComparisonFailure reports an underwriter that could not be priced.
type ComparisonFailure struct {
	UnderwriterCode string `json:"underwriter_code"`
	Code            string `json:"code"`
	Error           string `json:"error"`
}

// ComparisonResult is the ranked outcome of pricing one request across
// several underwriters. Entries are ordered cheapest first.
type ComparisonResult struct {
	ID              string              `json:"comparison_id"`
	SubcategoryCode string              `json:"subcategory"`
	RatesVersion    string              `json:"rates_version"`
	Entries         []ComparisonEntry   `json:"comparisons"`
	Failures        []ComparisonFailure `json:"errors"`
	CreatedAt       time.Time           `json:"created_at"`
}

// DefaultCoverDays is the cover period assumed when neither the request nor
// the subcategory names one.
const DefaultCoverDays = 365

// CoverDays returns the cover period in days for a request asking for
// requested days (0 meaning unspecified).
func (s Subcategory) CoverDays(requested int) int {
	if requested > 0 {
		return requested
	}
	if s.DefaultCoverDays > 0 {
		return s.DefaultCoverDays
	}
	return DefaultCoverDays
}

// NormalizeCode canonicalises a subcategory or underwriter code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
