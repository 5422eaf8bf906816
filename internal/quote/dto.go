package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patabima/pricing-engine/internal/model"
)

// dateLayout is the wire format for cover dates.
const dateLayout = "2006-01-02"

// --- Request types ---

// RiskRequest carries optional risk attributes.
type RiskRequest struct {
	VehicleValue   *decimal.Decimal `json:"vehicle_value,omitempty"`
	VehicleAge     *int             `json:"vehicle_age,omitempty" validate:"omitempty,gte=0,lte=100"`
	CoverDays      int              `json:"cover_days,omitempty" validate:"gte=0,lte=366"`
	CoverStartDate string           `json:"cover_start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// QuoteRequest is the JSON body for POST /quotes.
type QuoteRequest struct {
	Subcategory string           `json:"subcategory" validate:"required"`
	Underwriter string           `json:"underwriter" validate:"required"`
	SumInsured  *decimal.Decimal `json:"sum_insured,omitempty"`
	Risk        *RiskRequest     `json:"risk,omitempty"`
}

// CompareRequest is the JSON body for POST /quotes/compare.
type CompareRequest struct {
	Subcategory  string           `json:"subcategory" validate:"required"`
	Underwriters []string         `json:"underwriters" validate:"required,min=1,dive,required"`
	SumInsured   *decimal.Decimal `json:"sum_insured,omitempty"`
	Risk         *RiskRequest     `json:"risk,omitempty"`
}

func toInputs(sumInsured *decimal.Decimal, risk *RiskRequest) (model.Inputs, error) {
	in := model.Inputs{SumInsured: sumInsured}
	if risk == nil {
		return in, nil
	}
	in.Risk = model.RiskInputs{
		VehicleValue: risk.VehicleValue,
		VehicleAge:   risk.VehicleAge,
		CoverDays:    risk.CoverDays,
	}
	if risk.CoverStartDate != "" {
		start, err := time.Parse(dateLayout, risk.CoverStartDate)
		if err != nil {
			return in, fmt.Errorf("%w: cover_start_date must be YYYY-MM-DD", model.ErrInvalidInput)
		}
		in.Risk.CoverStartDate = &start
	}
	return in, nil
}

// --- Response types ---

// BreakdownResponse is a PremiumBreakdown with money as fixed two-decimal strings.
type BreakdownResponse struct {
	UnderwriterCode string              `json:"underwriter_code"`
	UnderwriterName string              `json:"underwriter_name"`
	SubcategoryCode string              `json:"subcategory_code"`
	BasePremium     string              `json:"base_premium"`
	TrainingLevy    string              `json:"training_levy"`
	PCFLevy         string              `json:"pcf_levy"`
	StampDuty       string              `json:"stamp_duty"`
	TotalPremium    string              `json:"total_premium"`
	RatesVersion    string              `json:"rates_version"`
	PolicyTerm      *PolicyTermResponse `json:"policy_term,omitempty"`
}

// PolicyTermResponse is the cover window, end date inclusive.
type PolicyTermResponse struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

// ComparisonEntryResponse is one ranked underwriter.
type ComparisonEntryResponse struct {
	UnderwriterCode string            `json:"underwriter_code"`
	UnderwriterName string            `json:"underwriter_name"`
	MarketPosition  string            `json:"market_position"`
	Result          BreakdownResponse `json:"result"`
}

// FailureResponse reports an underwriter that could not be priced.
type FailureResponse struct {
	UnderwriterCode string `json:"underwriter_code"`
	Code            string `json:"code"`
	Error           string `json:"error"`
}

// ComparisonResponse is the JSON body returned from POST /quotes/compare.
type ComparisonResponse struct {
	ComparisonID string                    `json:"comparison_id"`
	Subcategory  string                    `json:"subcategory"`
	RatesVersion string                    `json:"rates_version"`
	Count        int                       `json:"count"`
	Comparisons  []ComparisonEntryResponse `json:"comparisons"`
	Errors       []FailureResponse         `json:"errors"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Errors []FailureResponse `json:"errors,omitempty"`
}

// RatesResponse describes the live rate table.
type RatesResponse struct {
	Version       string    `json:"version"`
	LoadedAt      time.Time `json:"loaded_at"`
	Subcategories int       `json:"subcategories"`
	Underwriters  int       `json:"underwriters"`
	Rules         int       `json:"rules"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(model.MoneyScale)
}

// NewBreakdownResponse converts a breakdown for the wire.
func NewBreakdownResponse(b *model.PremiumBreakdown) BreakdownResponse {
	resp := BreakdownResponse{
		UnderwriterCode: b.UnderwriterCode,
		UnderwriterName: b.UnderwriterName,
		SubcategoryCode: b.SubcategoryCode,
		BasePremium:     money(b.BasePremium),
		TrainingLevy:    money(b.TrainingLevy),
		PCFLevy:         money(b.PCFLevy),
		StampDuty:       money(b.StampDuty),
		TotalPremium:    money(b.TotalPremium),
		RatesVersion:    b.RatesVersion,
	}
	if t := b.PolicyTerm; t != nil {
		resp.PolicyTerm = &PolicyTermResponse{
			StartDate: t.StartDate.Format(dateLayout),
			EndDate:   t.EndDate.Format(dateLayout),
			Days:      t.Days,
		}
	}
	return resp
}

func newFailures(fs []model.ComparisonFailure) []FailureResponse {
	out := make([]FailureResponse, 0, len(fs))
	for _, f := range fs {
		out = append(out, FailureResponse(f))
	}
	return out
}

// NewComparisonResponse converts a comparison result for the wire.
func NewComparisonResponse(res *model.ComparisonResult) ComparisonResponse {
	entries := make([]ComparisonEntryResponse, 0, len(res.Entries))
	for i := range res.Entries {
		e := &res.Entries[i]
		entries = append(entries, ComparisonEntryResponse{
			UnderwriterCode: e.UnderwriterCode,
			UnderwriterName: e.UnderwriterName,
			MarketPosition:  string(e.MarketPosition),
			Result:          NewBreakdownResponse(&e.Breakdown),
		})
	}
	return ComparisonResponse{
		ComparisonID: res.ID,
		Subcategory:  res.SubcategoryCode,
		RatesVersion: res.RatesVersion,
		Count:        len(entries),
		Comparisons:  entries,
		Errors:       newFailures(res.Failures),
	}
}
