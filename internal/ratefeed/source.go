// Package ratefeed loads versioned reference data (subcategories,
// underwriters and rate rows) from the rate-management collaborator.
//
// Sources include a YAML/JSON feed file, PostgreSQL (source of truth), a
// Redis read-through cache in front of either, and an in-memory source for
// tests and development.
package ratefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/patabima/pricing-engine/internal/ratetable"
)

// ErrEmptyFeed is returned when a source yields no rate rows.
var ErrEmptyFeed = errors.New("ratefeed: feed has no rates")

// Source yields one complete feed per call.
type Source interface {
	Load(ctx context.Context) (*ratetable.Feed, error)
}

// Invalidator is implemented by caching sources that can drop their cached
// copy so the next Load reaches the primary.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// LoadSnapshot loads a feed from src and builds a validated snapshot.
func LoadSnapshot(ctx context.Context, src Source) (*ratetable.Snapshot, error) {
	feed, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate feed: %w", err)
	}
	if len(feed.Rates) == 0 {
		return nil, ErrEmptyFeed
	}
	snap, err := ratetable.NewSnapshot(feed)
	if err != nil {
		return nil, fmt.Errorf("build rate table %s: %w", feed.Version, err)
	}
	return snap, nil
}
