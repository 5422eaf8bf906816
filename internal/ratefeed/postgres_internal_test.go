package ratefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patabima/pricing-engine/internal/model"
)

func str(s string) *string { return &s }

func TestOptionalDecimal(t *testing.T) {
	tests := []struct {
		name    string
		in      *string
		want    string // empty means nil
		wantErr bool
	}{
		{"null column", nil, "", false},
		{"integer numeric", str("2500"), "2500", false},
		{"scale preserved", str("0.0350"), "0.035", false},
		{"large amount", str("123456789012.34"), "123456789012.34", false},
		{"garbage", str("12,5"), "", true},
		{"empty text", str(""), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := optionalDecimal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestRuleColumns_Row(t *testing.T) {
	age := 15
	c := ruleColumns{
		subcategory:   "COMMERCIAL_COMPREHENSIVE",
		underwriter:   "SANLAM",
		pricingModel:  "PERCENTAGE",
		rate:          str("0.045"),
		minPremium:    str("30000.00"),
		dimension:     str("SUM_INSURED"),
		bracketLow:    str("0"),
		bracketHigh:   str("1000000"),
		maxVehicleAge: &age,
	}

	row, err := c.row()
	require.NoError(t, err)
	assert.Equal(t, model.PricingPercentage, row.PricingModel)
	assert.Nil(t, row.FlatAmount)
	assert.Nil(t, row.MaxPremium)
	require.NotNil(t, row.Rate)
	assert.Equal(t, "0.045", row.Rate.String())
	assert.Equal(t, "30000", row.MinPremium.String())
	assert.Equal(t, &age, row.MaxVehicleAge)
	require.NotNil(t, row.Bracket)
	assert.Equal(t, model.DimensionSumInsured, row.Bracket.Dimension)
	assert.True(t, row.Bracket.Low.IsZero())
	assert.Equal(t, "1000000", row.Bracket.High.String())
}

func TestRuleColumns_RowUnboundedBracket(t *testing.T) {
	row, err := ruleColumns{
		subcategory: "PRIVATE_TOR", underwriter: "MADISON", pricingModel: "FIXED",
		flat: str("4500"), dimension: str("COVER_DAYS"), bracketLow: str("31"),
	}.row()
	require.NoError(t, err)
	require.NotNil(t, row.Bracket)
	assert.Nil(t, row.Bracket.High)
}

func TestRuleColumns_RowErrors(t *testing.T) {
	tests := []struct {
		name    string
		c       ruleColumns
		wantMsg string
	}{
		{"bracket_low missing", ruleColumns{subcategory: "PRIVATE_TOR", underwriter: "UAP", flat: str("3500"),
			dimension: str("COVER_DAYS")}, "PRIVATE_TOR/UAP bracket_low"},
		{"bracket_low invalid", ruleColumns{subcategory: "PRIVATE_TOR", underwriter: "UAP", flat: str("3500"),
			dimension: str("COVER_DAYS"), bracketLow: str("one")}, "bracket_low"},
		{"bracket_high invalid", ruleColumns{subcategory: "PRIVATE_TOR", underwriter: "UAP", flat: str("3500"),
			dimension: str("COVER_DAYS"), bracketLow: str("1"), bracketHigh: str("x")}, "bracket_high"},
		{"bad flat amount", ruleColumns{subcategory: "PRIVATE_THIRD_PARTY", underwriter: "UAP", flat: str("n/a")},
			"PRIVATE_THIRD_PARTY/UAP flat_amount"},
		{"bad min sum insured", ruleColumns{subcategory: "PRIVATE_COMPREHENSIVE", underwriter: "UAP", rate: str("0.04"),
			minSumInsured: str("lots")}, "min_sum_insured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.c.row()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
