package ratefeed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/patabima/pricing-engine/internal/ratetable"
)

// DefaultCacheKey is where CachedSource stores the serialised feed.
const DefaultCacheKey = "ratefeed:current"

// CachedSource wraps a primary Source (usually PostgreSQL) with a Redis
// read-through cache. Load checks Redis first and falls back to the primary,
// repopulating the cache on a miss. Several engine replicas can then share
// one database read per TTL window.
type CachedSource struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
	key     string
	log     zerolog.Logger
}

// NewCachedSource creates a cached wrapper around a primary source.
func NewCachedSource(primary Source, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedSource {
	return &CachedSource{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		key:     DefaultCacheKey,
		log:     log.With().Str("component", "ratefeed").Logger(),
	}
}

func (s *CachedSource) Load(ctx context.Context) (*ratetable.Feed, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	switch {
	case err == nil:
		var feed ratetable.Feed
		if jerr := json.Unmarshal(data, &feed); jerr == nil {
			return &feed, nil
		}
		s.log.Warn().Str("key", s.key).Msg("discarding undecodable cached feed")
	case !errors.Is(err, redis.Nil):
		// Redis being down must not stop pricing; go to the primary.
		s.log.Warn().Err(err).Msg("rate feed cache unavailable")
	}

	feed, err := s.primary.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, feed)
	return feed, nil
}

// Invalidate drops the cached feed so the next Load reads the primary.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *CachedSource) store(ctx context.Context, feed *ratetable.Feed) {
	data, err := json.Marshal(feed)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Msg("rate feed cache write failed")
	}
}
