package ratefeed

import (
	"context"
	"sync"

	"github.com/patabima/pricing-engine/internal/ratetable"
)

// MemorySource serves a feed held in memory. Used for testing and
// development; Set replaces the feed for the next Load.
type MemorySource struct {
	mu    sync.RWMutex
	feed  *ratetable.Feed
	loads int
}

// NewMemorySource creates a memory source serving feed.
func NewMemorySource(feed *ratetable.Feed) *MemorySource {
	return &MemorySource{feed: feed}
}

func (s *MemorySource) Load(ctx context.Context) (*ratetable.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.feed == nil {
		return &ratetable.Feed{}, nil
	}
	// Return a copy so callers cannot mutate the stored feed.
	cp := *s.feed
	cp.Subcategories = append(cp.Subcategories[:0:0], s.feed.Subcategories...)
	cp.Underwriters = append(cp.Underwriters[:0:0], s.feed.Underwriters...)
	cp.Rates = append(cp.Rates[:0:0], s.feed.Rates...)
	return &cp, nil
}

// Set replaces the served feed.
func (s *MemorySource) Set(feed *ratetable.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = feed
}

// Loads reports how many times Load has been called.
func (s *MemorySource) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}
