// Package premium turns a subcategory, an underwriter and risk inputs into a
// premium breakdown.
//
// Engine.Price is the only code path in the module that computes a premium.
// Single quotes and comparisons both go through it, which is what makes a
// quote priced on its own identical to the same quote inside a comparison.
package premium

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/patabima/pricing-engine/internal/levy"
	"github.com/patabima/pricing-engine/internal/model"
	"github.com/patabima/pricing-engine/internal/ratetable"
)

// Engine prices quotes against a rate table snapshot. It is stateless; the
// snapshot is passed per call so callers control which reference data a
// batch of prices sees.
type Engine struct{}

// NewEngine creates a premium engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Price resolves one (subcategory, underwriter, inputs) triple into a
// PremiumBreakdown using snap.
func (e *Engine) Price(ctx context.Context, snap *ratetable.Snapshot, subcategory, underwriter string, in model.Inputs) (*model.PremiumBreakdown, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: rate table not loaded", model.ErrRateNotFound)
	}

	sc, ok := snap.Subcategory(subcategory)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubcategory, model.NormalizeCode(subcategory))
	}
	uw, ok := snap.Underwriter(underwriter)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownUnderwriter, model.NormalizeCode(underwriter))
	}

	if sc.PricingModel == model.PricingPercentage {
		if in.SumInsured == nil || !in.SumInsured.IsPositive() {
			return nil, fmt.Errorf("%w: sum insured must be greater than zero for %s", model.ErrInvalidInput, sc.Code)
		}
	}
	if in.Risk.CoverDays < 0 {
		return nil, fmt.Errorf("%w: cover days must not be negative", model.ErrInvalidInput)
	}

	rule, err := snap.Resolve(sc.Code, uw.Code, in)
	if err != nil {
		return nil, err
	}
	if err := checkAcceptance(rule, in); err != nil {
		return nil, fmt.Errorf("%w (%s/%s)", err, sc.Code, uw.Code)
	}

	base := basePremium(sc.PricingModel, rule, in)
	levies := levy.Compute(base)

	b := &model.PremiumBreakdown{
		UnderwriterCode: uw.Code,
		UnderwriterName: uw.DisplayName,
		SubcategoryCode: sc.Code,
		BasePremium:     base,
		TrainingLevy:    levies.TrainingLevy,
		PCFLevy:         levies.PCFLevy,
		StampDuty:       levies.StampDuty,
		TotalPremium:    base.Add(levies.Total()),
		RatesVersion:    snap.Version(),
	}
	if start := in.Risk.CoverStartDate; start != nil {
		b.PolicyTerm = policyTerm(*start, sc.CoverDays(in.Risk.CoverDays))
	}
	return b, nil
}

// basePremium applies the subcategory's pricing model to the resolved rule.
func basePremium(pm model.PricingModel, rule model.RateRule, in model.Inputs) decimal.Decimal {
	switch pm {
	case model.PricingPercentage:
		return clamp(levy.RoundMoney(in.SumInsured.Mul(rule.Rate)), rule.MinPremium, rule.MaxPremium)
	default:
		return levy.RoundMoney(rule.FlatAmount)
	}
}

// clamp bounds v to [lo, hi]; nil bounds are open.
func clamp(v decimal.Decimal, lo, hi *decimal.Decimal) decimal.Decimal {
	if lo != nil && v.LessThan(*lo) {
		v = levy.RoundMoney(*lo)
	}
	if hi != nil && v.GreaterThan(*hi) {
		v = levy.RoundMoney(*hi)
	}
	return v
}

func checkAcceptance(rule model.RateRule, in model.Inputs) error {
	if rule.MaxVehicleAge != nil && in.Risk.VehicleAge != nil && *in.Risk.VehicleAge > *rule.MaxVehicleAge {
		return fmt.Errorf("%w: vehicle age %d exceeds maximum %d",
			model.ErrRiskDeclined, *in.Risk.VehicleAge, *rule.MaxVehicleAge)
	}
	if rule.MinSumInsured != nil && in.SumInsured != nil && in.SumInsured.LessThan(*rule.MinSumInsured) {
		return fmt.Errorf("%w: sum insured %s below minimum %s",
			model.ErrRiskDeclined, in.SumInsured.StringFixed(model.MoneyScale), rule.MinSumInsured.StringFixed(model.MoneyScale))
	}
	return nil
}
