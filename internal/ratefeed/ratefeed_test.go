package ratefeed_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patabima/pricing-engine/internal/model"
	"github.com/patabima/pricing-engine/internal/ratefeed"
	"github.com/patabima/pricing-engine/internal/ratetable"
	fixture "github.com/patabima/pricing-engine/internal/ratetable/ratetabletest"
)

const yamlFeed = `
version: "2025-07-01"
subcategories:
  - code: PRIVATE_THIRD_PARTY
    name: Private Third Party
    category: PRIVATE
    pricing_model: FIXED
  - code: PRIVATE_COMPREHENSIVE
    name: Private Comprehensive
    category: PRIVATE
    pricing_model: PERCENTAGE
underwriters:
  - code: MADISON
    display_name: Madison Insurance
rates:
  - subcategory: PRIVATE_THIRD_PARTY
    underwriter: MADISON
    pricing_model: FIXED
    flat_amount: 2500.00
  - subcategory: PRIVATE_COMPREHENSIVE
    underwriter: MADISON
    pricing_model: PERCENTAGE
    rate: 0.035
    min_premium: 10000
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileSource_YAML(t *testing.T) {
	src := ratefeed.NewFileSource(writeFile(t, "rates.yaml", yamlFeed))

	snap, err := ratefeed.LoadSnapshot(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-01", snap.Version())
	assert.Equal(t, 2, snap.RuleCount())

	rule, err := snap.Resolve("PRIVATE_COMPREHENSIVE", "MADISON", model.Inputs{SumInsured: fixture.P("800000")})
	require.NoError(t, err)
	assert.True(t, rule.Rate.Equal(fixture.D("0.035")))
	require.NotNil(t, rule.MinPremium)
	assert.True(t, rule.MinPremium.Equal(fixture.D("10000")))
}

func TestFileSource_JSON(t *testing.T) {
	body := `{
	  "version": "v-json",
	  "subcategories": [{"code": "PRIVATE_TOR", "name": "TOR", "category": "PRIVATE", "pricing_model": "FIXED", "default_cover_days": 30}],
	  "underwriters": [{"code": "UAP", "display_name": "UAP Old Mutual"}],
	  "rates": [
	    {"subcategory": "PRIVATE_TOR", "underwriter": "UAP", "pricing_model": "FIXED", "flat_amount": "3500",
	     "bracket": {"dimension": "COVER_DAYS", "low": "1", "high": "31"}},
	    {"subcategory": "PRIVATE_TOR", "underwriter": "UAP", "pricing_model": "FIXED", "flat_amount": 5000,
	     "bracket": {"dimension": "COVER_DAYS", "low": 31}}
	  ]
	}`
	src := ratefeed.NewFileSource(writeFile(t, "rates.json", body))

	snap, err := ratefeed.LoadSnapshot(context.Background(), src)
	require.NoError(t, err)

	rule, err := snap.Resolve("PRIVATE_TOR", "UAP", model.Inputs{Risk: model.RiskInputs{CoverDays: 90}})
	require.NoError(t, err)
	assert.True(t, rule.FlatAmount.Equal(fixture.D("5000")))
}

func TestFileSource_RejectsUnknownFields(t *testing.T) {
	src := ratefeed.NewFileSource(writeFile(t, "rates.yaml", yamlFeed+"\nsurprise: true\n"))
	_, err := src.Load(context.Background())
	assert.Error(t, err)
}

func TestFileSource_MissingFile(t *testing.T) {
	src := ratefeed.NewFileSource(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := src.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestShippedRatesFileIsValid(t *testing.T) {
	snap, err := ratefeed.LoadSnapshot(context.Background(), ratefeed.NewFileSource("../../configs/rates.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Version())
	assert.NotEmpty(t, snap.UnderwritersFor("PRIVATE_THIRD_PARTY"))
}

func TestLoadSnapshot_Errors(t *testing.T) {
	_, err := ratefeed.LoadSnapshot(context.Background(), ratefeed.NewMemorySource(&ratetable.Feed{Version: "empty"}))
	assert.ErrorIs(t, err, ratefeed.ErrEmptyFeed)

	bad := fixture.Feed()
	bad.Rates[0].FlatAmount = fixture.P("0")
	_, err = ratefeed.LoadSnapshot(context.Background(), ratefeed.NewMemorySource(bad))
	assert.ErrorIs(t, err, ratetable.ErrInvalidFeed)
}

func TestMemorySource_ReturnsCopies(t *testing.T) {
	src := ratefeed.NewMemorySource(fixture.Feed())

	a, err := src.Load(context.Background())
	require.NoError(t, err)
	a.Rates = a.Rates[:1]
	a.Version = "mutated"

	b, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixture.Version, b.Version)
	assert.Len(t, b.Rates, len(fixture.Feed().Rates))
	assert.Equal(t, 2, src.Loads())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedSource_ReadThrough(t *testing.T) {
	mr, rdb := newRedis(t)
	primary := ratefeed.NewMemorySource(fixture.Feed())
	cached := ratefeed.NewCachedSource(primary, rdb, time.Minute, zerolog.Nop())
	ctx := context.Background()

	first, err := cached.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.Loads())
	assert.True(t, mr.Exists(ratefeed.DefaultCacheKey))

	second, err := cached.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.Loads(), "second load served from cache")
	assert.Equal(t, first.Version, second.Version)
	require.Len(t, second.Rates, len(first.Rates))

	// Decimals survive the round trip through Redis.
	snap, err := ratetable.NewSnapshot(second)
	require.NoError(t, err)
	rule, err := snap.Resolve("PRIVATE_COMPREHENSIVE", "UAP", model.Inputs{SumInsured: fixture.P("800000")})
	require.NoError(t, err)
	assert.True(t, rule.Rate.Equal(fixture.D("0.04")))
	require.NotNil(t, rule.MaxPremium)
	assert.True(t, rule.MaxPremium.Equal(fixture.D("50000")))
}

func TestCachedSource_InvalidateAndExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	primary := ratefeed.NewMemorySource(fixture.Feed())
	cached := ratefeed.NewCachedSource(primary, rdb, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := cached.Load(ctx)
	require.NoError(t, err)

	next := fixture.Feed()
	next.Version = "2025-08-next"
	primary.Set(next)

	require.NoError(t, cached.Invalidate(ctx))
	feed, err := cached.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-next", feed.Version)
	assert.Equal(t, 2, primary.Loads())

	mr.FastForward(2 * time.Minute)
	_, err = cached.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.Loads(), "expired entry goes back to the primary")
}

func TestCachedSource_CorruptEntryFallsBack(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set(ratefeed.DefaultCacheKey, "{not json"))

	primary := ratefeed.NewMemorySource(fixture.Feed())
	cached := ratefeed.NewCachedSource(primary, rdb, time.Minute, zerolog.Nop())

	feed, err := cached.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixture.Version, feed.Version)
	assert.Equal(t, 1, primary.Loads())
}

func TestCachedSource_RedisDownUsesPrimary(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	primary := ratefeed.NewMemorySource(fixture.Feed())
	cached := ratefeed.NewCachedSource(primary, rdb, time.Minute, zerolog.Nop())

	feed, err := cached.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixture.Version, feed.Version)
}

type failingSource struct{ err error }

func (f failingSource) Load(context.Context) (*ratetable.Feed, error) { return nil, f.err }

func TestCachedSource_PrimaryErrorPropagates(t *testing.T) {
	_, rdb := newRedis(t)
	boom := errors.New("db down")
	cached := ratefeed.NewCachedSource(failingSource{err: boom}, rdb, time.Minute, zerolog.Nop())

	_, err := cached.Load(context.Background())
	assert.ErrorIs(t, err, boom)
}
