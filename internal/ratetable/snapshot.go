// Package ratetable holds the immutable reference data every quote is priced
// against: subcategories, underwriters and their rate rules.
//
// A Snapshot is built once from a Feed and never mutated. Table publishes the
// current Snapshot behind an atomic pointer so a reload is a single swap and
// in-flight requests keep reading the snapshot they started with.
package ratetable

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patabima/pricing-engine/internal/model"
)

// ErrInvalidFeed is returned when a feed cannot be turned into a snapshot.
var ErrInvalidFeed = errors.New("ratetable: invalid feed")

type ruleKey struct {
	subcategory string
	underwriter string
}

// ruleSet is every rule for one key: either a single unbracketed rule or
// brackets on one dimension sorted by lower bound.
type ruleSet struct {
	flat      *model.RateRule
	dimension model.BracketDimension
	brackets  []model.RateRule
}

// Snapshot is a read-only, versioned view of the reference data.
type Snapshot struct {
	version       string
	loadedAt      time.Time
	subcategories map[string]model.Subcategory
	underwriters  map[string]model.Underwriter
	rules         map[ruleKey]*ruleSet
	offered       map[string][]string // subcategory → underwriter codes, sorted
	ruleCount     int
}

// NewSnapshot validates feed and indexes it for lookup. All validation
// problems are reported together.
func NewSnapshot(feed *Feed) (*Snapshot, error) {
	if feed == nil {
		return nil, fmt.Errorf("%w: nil feed", ErrInvalidFeed)
	}

	s := &Snapshot{
		version:       feed.Version,
		loadedAt:      time.Now().UTC(),
		subcategories: make(map[string]model.Subcategory, len(feed.Subcategories)),
		underwriters:  make(map[string]model.Underwriter, len(feed.Underwriters)),
		rules:         make(map[ruleKey]*ruleSet),
		offered:       make(map[string][]string),
	}

	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidFeed}, args...)...))
	}

	if feed.Version == "" {
		fail("version is required")
	}

	for _, sc := range feed.Subcategories {
		sc.Code = model.NormalizeCode(sc.Code)
		switch {
		case sc.Code == "":
			fail("subcategory with empty code")
			continue
		case !sc.PricingModel.Valid():
			fail("subcategory %s: unknown pricing model %q", sc.Code, sc.PricingModel)
			continue
		}
		if _, dup := s.subcategories[sc.Code]; dup {
			fail("duplicate subcategory %s", sc.Code)
			continue
		}
		s.subcategories[sc.Code] = sc
	}

	for _, uw := range feed.Underwriters {
		uw.Code = model.NormalizeCode(uw.Code)
		if uw.Code == "" {
			fail("underwriter with empty code")
			continue
		}
		if _, dup := s.underwriters[uw.Code]; dup {
			fail("duplicate underwriter %s", uw.Code)
			continue
		}
		if uw.DisplayName == "" {
			uw.DisplayName = uw.Code
		}
		s.underwriters[uw.Code] = uw
	}

	for i, row := range feed.Rates {
		rule, err := s.ruleFromRow(row)
		if err != nil {
			fail("rate row %d: %v", i, err)
			continue
		}
		key := ruleKey{rule.SubcategoryCode, rule.UnderwriterCode}
		set, ok := s.rules[key]
		if !ok {
			set = &ruleSet{}
			s.rules[key] = set
		}
		if err := set.add(rule); err != nil {
			fail("rate row %d (%s/%s): %v", i, key.subcategory, key.underwriter, err)
			continue
		}
		s.ruleCount++
	}

	for key, set := range s.rules {
		if err := set.seal(); err != nil {
			fail("%s/%s: %v", key.subcategory, key.underwriter, err)
			continue
		}
		s.offered[key.subcategory] = append(s.offered[key.subcategory], key.underwriter)
	}
	for _, codes := range s.offered {
		sort.Strings(codes)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func (s *Snapshot) ruleFromRow(row Row) (model.RateRule, error) {
	rule := model.RateRule{
		SubcategoryCode: model.NormalizeCode(row.Subcategory),
		UnderwriterCode: model.NormalizeCode(row.Underwriter),
		PricingModel:    row.PricingModel,
		MinPremium:      row.MinPremium,
		MaxPremium:      row.MaxPremium,
		MaxVehicleAge:   row.MaxVehicleAge,
		MinSumInsured:   row.MinSumInsured,
	}

	sc, ok := s.subcategories[rule.SubcategoryCode]
	if !ok {
		return rule, fmt.Errorf("unknown subcategory %q", row.Subcategory)
	}
	if _, ok := s.underwriters[rule.UnderwriterCode]; !ok {
		return rule, fmt.Errorf("unknown underwriter %q", row.Underwriter)
	}
	if rule.PricingModel == "" {
		rule.PricingModel = sc.PricingModel
	}
	if rule.PricingModel != sc.PricingModel {
		return rule, fmt.Errorf("pricing model %s does not match subcategory model %s",
			rule.PricingModel, sc.PricingModel)
	}

	switch rule.PricingModel {
	case model.PricingFixed:
		if row.FlatAmount == nil || !row.FlatAmount.IsPositive() {
			return rule, errors.New("FIXED rule needs a positive flat_amount")
		}
		rule.FlatAmount = *row.FlatAmount
	case model.PricingPercentage:
		if row.Rate == nil || !row.Rate.IsPositive() {
			return rule, errors.New("PERCENTAGE rule needs a positive rate")
		}
		rule.Rate = *row.Rate
	}

	if rule.MinPremium != nil && rule.MinPremium.IsNegative() {
		return rule, errors.New("min_premium must not be negative")
	}
	if rule.MinPremium != nil && rule.MaxPremium != nil && rule.MinPremium.GreaterThan(*rule.MaxPremium) {
		return rule, fmt.Errorf("min_premium %s exceeds max_premium %s", rule.MinPremium, rule.MaxPremium)
	}
	if rule.MaxVehicleAge != nil && *rule.MaxVehicleAge < 0 {
		return rule, errors.New("max_vehicle_age must not be negative")
	}

	if b := row.Bracket; b != nil {
		if !b.Dimension.Valid() {
			return rule, fmt.Errorf("unknown bracket dimension %q", b.Dimension)
		}
		if b.Low.IsNegative() {
			return rule, errors.New("bracket low must not be negative")
		}
		if b.High != nil && !b.High.GreaterThan(b.Low) {
			return rule, fmt.Errorf("bracket high %s must exceed low %s", b.High, b.Low)
		}
		rule.Bracket = &model.Bracket{Dimension: b.Dimension, Low: b.Low, High: b.High}
	}
	return rule, nil
}

func (rs *ruleSet) add(rule model.RateRule) error {
	if rule.Bracket == nil {
		if rs.flat != nil || len(rs.brackets) > 0 {
			return errors.New("more than one rule for the same pair without brackets")
		}
		rs.flat = &rule
		return nil
	}
	if rs.flat != nil {
		return errors.New("bracketed rule mixed with an unbracketed rule")
	}
	if len(rs.brackets) > 0 && rs.dimension != rule.Bracket.Dimension {
		return fmt.Errorf("bracket dimension %s differs from %s", rule.Bracket.Dimension, rs.dimension)
	}
	rs.dimension = rule.Bracket.Dimension
	rs.brackets = append(rs.brackets, rule)
	return nil
}

// seal sorts brackets and rejects overlaps. Only the last bracket may be
// unbounded.
func (rs *ruleSet) seal() error {
	sort.Slice(rs.brackets, func(i, j int) bool {
		return rs.brackets[i].Bracket.Low.LessThan(rs.brackets[j].Bracket.Low)
	})
	for i := 1; i < len(rs.brackets); i++ {
		prev, next := rs.brackets[i-1].Bracket, rs.brackets[i].Bracket
		if prev.High == nil {
			return fmt.Errorf("unbounded bracket from %s overlaps bracket from %s", prev.Low, next.Low)
		}
		if prev.High.GreaterThan(next.Low) {
			return fmt.Errorf("bracket [%s, %s) overlaps bracket from %s", prev.Low, prev.High, next.Low)
		}
	}
	return nil
}

// Resolve returns the single rate rule for subcategory and underwriter that
// applies to in. A missing rule is ErrRateNotFound, never a zero rate.
func (s *Snapshot) Resolve(subcategory, underwriter string, in model.Inputs) (model.RateRule, error) {
	subcategory = model.NormalizeCode(subcategory)
	underwriter = model.NormalizeCode(underwriter)

	set, ok := s.rules[ruleKey{subcategory, underwriter}]
	if !ok {
		return model.RateRule{}, fmt.Errorf("%w: %s/%s", model.ErrRateNotFound, subcategory, underwriter)
	}
	if set.flat != nil {
		return *set.flat, nil
	}

	v, err := s.dimensionValue(set.dimension, subcategory, in)
	if err != nil {
		return model.RateRule{}, err
	}

	// First bracket whose lower bound is above v; the candidate is the one before it.
	i := sort.Search(len(set.brackets), func(i int) bool {
		return set.brackets[i].Bracket.Low.GreaterThan(v)
	})
	if i == 0 || !set.brackets[i-1].Bracket.Contains(v) {
		return model.RateRule{}, fmt.Errorf("%w: %s/%s has no %s bracket for %s",
			model.ErrRateNotFound, subcategory, underwriter, set.dimension, v)
	}
	return set.brackets[i-1], nil
}

func (s *Snapshot) dimensionValue(dim model.BracketDimension, subcategory string, in model.Inputs) (decimal.Decimal, error) {
	switch dim {
	case model.DimensionSumInsured:
		if in.SumInsured == nil || !in.SumInsured.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: sum insured is required for %s", model.ErrInvalidInput, subcategory)
		}
		return *in.SumInsured, nil
	case model.DimensionCoverDays:
		days := s.subcategories[subcategory].CoverDays(in.Risk.CoverDays)
		return decimal.NewFromInt(int64(days)), nil
	case model.DimensionVehicleAge:
		if in.Risk.VehicleAge == nil || *in.Risk.VehicleAge < 0 {
			return decimal.Zero, fmt.Errorf("%w: vehicle age is required for %s", model.ErrInvalidInput, subcategory)
		}
		return decimal.NewFromInt(int64(*in.Risk.VehicleAge)), nil
	case model.DimensionVehicleValue:
		if in.Risk.VehicleValue == nil || !in.Risk.VehicleValue.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: vehicle value is required for %s", model.ErrInvalidInput, subcategory)
		}
		return *in.Risk.VehicleValue, nil
	}
	return decimal.Zero, fmt.Errorf("%w: unsupported bracket dimension %s", model.ErrRateNotFound, dim)
}

// Subcategory looks up a subcategory by code.
func (s *Snapshot) Subcategory(code string) (model.Subcategory, bool) {
	sc, ok := s.subcategories[model.NormalizeCode(code)]
	return sc, ok
}

// Underwriter looks up an underwriter by code.
func (s *Snapshot) Underwriter(code string) (model.Underwriter, bool) {
	uw, ok := s.underwriters[model.NormalizeCode(code)]
	return uw, ok
}

// Subcategories returns every subcategory ordered by code.
func (s *Snapshot) Subcategories() []model.Subcategory {
	out := make([]model.Subcategory, 0, len(s.subcategories))
	for _, sc := range s.subcategories {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Underwriters returns every underwriter ordered by code.
func (s *Snapshot) Underwriters() []model.Underwriter {
	out := make([]model.Underwriter, 0, len(s.underwriters))
	for _, uw := range s.underwriters {
		out = append(out, uw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// UnderwritersFor returns the underwriters holding at least one rate for
// subcategory, ordered by code.
func (s *Snapshot) UnderwritersFor(subcategory string) []model.Underwriter {
	codes := s.offered[model.NormalizeCode(subcategory)]
	out := make([]model.Underwriter, 0, len(codes))
	for _, code := range codes {
		out = append(out, s.underwriters[code])
	}
	return out
}

// Version is the feed version the snapshot was built from.
func (s *Snapshot) Version() string { return s.version }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// RuleCount is the number of rate rules in the snapshot.
func (s *Snapshot) RuleCount() int { return s.ruleCount }
