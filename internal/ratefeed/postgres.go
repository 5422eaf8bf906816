package ratefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/patabima/pricing-engine/internal/model"
	"github.com/patabima/pricing-engine/internal/ratetable"
)

// ErrNoPublishedFeed is returned when the database holds no published feed version.
var ErrNoPublishedFeed = errors.New("ratefeed: no published feed version")

// PostgresSource reads the latest published feed from PostgreSQL. Monetary
// and rate columns are NUMERIC and are scanned as text to keep exact
// decimal precision.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a PostgreSQL-backed feed source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Load(ctx context.Context) (*ratetable.Feed, error) {
	var feed ratetable.Feed

	err := s.pool.QueryRow(ctx,
		`SELECT version FROM rate_feed_versions
		 WHERE published_at IS NOT NULL
		 ORDER BY published_at DESC LIMIT 1`).Scan(&feed.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPublishedFeed
	}
	if err != nil {
		return nil, fmt.Errorf("latest feed version: %w", err)
	}

	if feed.Subcategories, err = s.subcategories(ctx); err != nil {
		return nil, err
	}
	if feed.Underwriters, err = s.underwriters(ctx); err != nil {
		return nil, err
	}
	if feed.Rates, err = s.rates(ctx, feed.Version); err != nil {
		return nil, err
	}
	return &feed, nil
}

func (s *PostgresSource) subcategories(ctx context.Context) ([]model.Subcategory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, name, category, pricing_model, COALESCE(default_cover_days, 0)
		 FROM subcategories ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer rows.Close()

	var out []model.Subcategory
	for rows.Next() {
		var sc model.Subcategory
		var pm string
		if err := rows.Scan(&sc.Code, &sc.Name, &sc.Category, &pm, &sc.DefaultCoverDays); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		sc.PricingModel = model.PricingModel(pm)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresSource) underwriters(ctx context.Context) ([]model.Underwriter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, display_name FROM underwriters WHERE active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list underwriters: %w", err)
	}
	defer rows.Close()

	var out []model.Underwriter
	for rows.Next() {
		var uw model.Underwriter
		if err := rows.Scan(&uw.Code, &uw.DisplayName); err != nil {
			return nil, fmt.Errorf("scan underwriter: %w", err)
		}
		out = append(out, uw)
	}
	return out, rows.Err()
}

func (s *PostgresSource) rates(ctx context.Context, version string) ([]ratetable.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT subcategory_code, underwriter_code, pricing_model,
		        flat_amount::TEXT, rate::TEXT,
		        min_premium::TEXT, max_premium::TEXT,
		        bracket_dimension, bracket_low::TEXT, bracket_high::TEXT,
		        max_vehicle_age, min_sum_insured::TEXT
		 FROM rate_rules
		 WHERE feed_version = $1
		 ORDER BY subcategory_code, underwriter_code, bracket_low NULLS FIRST`, version)
	if err != nil {
		return nil, fmt.Errorf("list rate rules %s: %w", version, err)
	}
	defer rows.Close()

	var out []ratetable.Row
	for rows.Next() {
		var c ruleColumns
		if err := rows.Scan(&c.subcategory, &c.underwriter, &c.pricingModel,
			&c.flat, &c.rate,
			&c.minPremium, &c.maxPremium,
			&c.dimension, &c.bracketLow, &c.bracketHigh,
			&c.maxVehicleAge, &c.minSumInsured); err != nil {
			return nil, fmt.Errorf("scan rate rule: %w", err)
		}
		row, err := c.row()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ruleColumns is one rate_rules row as scanned. NUMERIC columns arrive as
// text so no precision is lost on the way to decimal.
type ruleColumns struct {
	subcategory, underwriter, pricingModel string

	flat, rate, minPremium, maxPremium, minSumInsured *string
	dimension, bracketLow, bracketHigh                *string
	maxVehicleAge                                     *int
}

func (c ruleColumns) row() (ratetable.Row, error) {
	row := ratetable.Row{
		Subcategory:   c.subcategory,
		Underwriter:   c.underwriter,
		PricingModel:  model.PricingModel(c.pricingModel),
		MaxVehicleAge: c.maxVehicleAge,
	}

	var err error
	for _, f := range []struct {
		dst **decimal.Decimal
		src *string
		col string
	}{
		{&row.FlatAmount, c.flat, "flat_amount"},
		{&row.Rate, c.rate, "rate"},
		{&row.MinPremium, c.minPremium, "min_premium"},
		{&row.MaxPremium, c.maxPremium, "max_premium"},
		{&row.MinSumInsured, c.minSumInsured, "min_sum_insured"},
	} {
		if *f.dst, err = optionalDecimal(f.src); err != nil {
			return ratetable.Row{}, fmt.Errorf("%s/%s %s: %w", row.Subcategory, row.Underwriter, f.col, err)
		}
	}

	if c.dimension != nil {
		low, err := optionalDecimal(c.bracketLow)
		if err != nil || low == nil {
			return ratetable.Row{}, fmt.Errorf("%s/%s bracket_low: missing or invalid", row.Subcategory, row.Underwriter)
		}
		high, err := optionalDecimal(c.bracketHigh)
		if err != nil {
			return ratetable.Row{}, fmt.Errorf("%s/%s bracket_high: %w", row.Subcategory, row.Underwriter, err)
		}
		row.Bracket = &ratetable.BracketRow{
			Dimension: model.BracketDimension(*c.dimension),
			Low:       *low,
			High:      high,
		}
	}
	return row, nil
}

func optionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
