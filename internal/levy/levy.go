// Package levy computes the statutory charges added on top of every base
// premium: the Insurance Training Levy, the Policyholders Compensation Fund
// levy and stamp duty.
//
// Compute is a pure function over decimals. It holds no state and may be
// called from any number of goroutines.
package levy

import (
	"github.com/shopspring/decimal"

	"github.com/patabima/pricing-engine/internal/model"
)

var (
	// TrainingLevyRate is the Insurance Training Levy, 0.25% of base premium.
	TrainingLevyRate = decimal.RequireFromString("0.0025")

	// PCFLevyRate is the Policyholders Compensation Fund levy, 0.25% of base premium.
	PCFLevyRate = decimal.RequireFromString("0.0025")

	// StampDuty is charged per policy regardless of premium size.
	StampDuty = decimal.RequireFromString("40.00")
)

// Levies is the statutory breakdown for one base premium.
type Levies struct {
	TrainingLevy decimal.Decimal `json:"training_levy"`
	PCFLevy      decimal.Decimal `json:"pcf_levy"`
	StampDuty    decimal.Decimal `json:"stamp_duty"`
}

// Total is the sum of all levies.
func (l Levies) Total() decimal.Decimal {
	return l.TrainingLevy.Add(l.PCFLevy).Add(l.StampDuty)
}

// Compute returns the levies due on base.
func Compute(base decimal.Decimal) Levies {
	return Levies{
		TrainingLevy: RoundMoney(base.Mul(TrainingLevyRate)),
		PCFLevy:      RoundMoney(base.Mul(PCFLevyRate)),
		StampDuty:    StampDuty,
	}
}

// RoundMoney rounds half-up to model.MoneyScale places. Every monetary
// rounding in the engine goes through here.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative amounts the engine deals in.
	return v.Round(model.MoneyScale)
}
