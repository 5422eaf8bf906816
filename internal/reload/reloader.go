// Package reload swaps the live rate table for a freshly loaded snapshot.
//
// Reloads are triggered by SIGHUP, a Redis pub/sub message, or a cron
// schedule. Every trigger goes through Reloader.Reload, which builds the new
// snapshot completely before publishing it with one atomic swap. Comparisons
// already running keep the snapshot they started with.
package reload

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/patabima/pricing-engine/internal/metrics"
	"github.com/patabima/pricing-engine/internal/ratefeed"
	"github.com/patabima/pricing-engine/internal/ratetable"
)

// Triggers label where a reload came from.
const (
	TriggerStartup  = "startup"
	TriggerSignal   = "signal"
	TriggerPubSub   = "pubsub"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Hook runs after a new snapshot has been swapped in.
type Hook func(prev, next *ratetable.Snapshot)

// Reloader loads feeds from a source into a table.
type Reloader struct {
	src   ratefeed.Source
	table *ratetable.Table
	log   zerolog.Logger

	mu    sync.Mutex // serialises reloads
	hooks []Hook
}

// New creates a reloader for table fed by src.
func New(src ratefeed.Source, table *ratetable.Table, log zerolog.Logger) *Reloader {
	return &Reloader{
		src:   src,
		table: table,
		log:   log.With().Str("component", "reload").Logger(),
	}
}

// OnSwap registers a hook called after each successful swap.
func (r *Reloader) OnSwap(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Reload loads the feed and swaps it in. On failure the current snapshot
// stays live. A feed whose version matches the live snapshot is not swapped
// and changed is false.
func (r *Reloader) Reload(ctx context.Context, trigger string) (snap *ratetable.Snapshot, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inv, ok := r.src.(ratefeed.Invalidator); ok && trigger != TriggerStartup {
		if err := inv.Invalidate(ctx); err != nil {
			r.log.Warn().Err(err).Msg("could not invalidate cached feed")
		}
	}

	next, err := ratefeed.LoadSnapshot(ctx, r.src)
	if err != nil {
		metrics.RateReloads.WithLabelValues(trigger, "error").Inc()
		r.log.Error().Err(err).Str("trigger", trigger).Msg("rate reload failed, keeping current rates")
		return r.table.Current(), false, err
	}

	cur := r.table.Current()
	if cur != nil && cur.Version() == next.Version() {
		metrics.RateReloads.WithLabelValues(trigger, "unchanged").Inc()
		r.log.Debug().Str("trigger", trigger).Str("version", next.Version()).Msg("rates unchanged")
		return cur, false, nil
	}

	prev := r.table.Swap(next)
	metrics.RateReloads.WithLabelValues(trigger, "swapped").Inc()
	metrics.RateRules.Set(float64(next.RuleCount()))

	evt := r.log.Info().
		Str("trigger", trigger).
		Str("version", next.Version()).
		Int("rules", next.RuleCount())
	if prev != nil {
		evt = evt.Str("previous_version", prev.Version())
	}
	evt.Msg("rate table reloaded")

	for _, h := range r.hooks {
		h(prev, next)
	}
	return next, true, nil
}
