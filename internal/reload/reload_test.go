package reload_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patabima/pricing-engine/internal/ratefeed"
	"github.com/patabima/pricing-engine/internal/ratetable"
	fixture "github.com/patabima/pricing-engine/internal/ratetable/ratetabletest"
	"github.com/patabima/pricing-engine/internal/reload"
)

func nextFeed(version string) *ratetable.Feed {
	f := fixture.Feed()
	f.Version = version
	return f
}

func TestReload_SwapsAndRunsHooks(t *testing.T) {
	table := fixture.Table(t)
	src := ratefeed.NewMemorySource(nextFeed("v2"))
	r := reload.New(src, table, zerolog.Nop())

	var seen []string
	r.OnSwap(func(prev, next *ratetable.Snapshot) {
		seen = append(seen, prev.Version()+"->"+next.Version())
	})

	snap, changed, err := r.Reload(context.Background(), reload.TriggerManual)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "v2", snap.Version())
	assert.Same(t, snap, table.Current())
	assert.Equal(t, []string{fixture.Version + "->v2"}, seen)
}

func TestReload_SameVersionIsNoop(t *testing.T) {
	table := fixture.Table(t)
	before := table.Current()
	r := reload.New(ratefeed.NewMemorySource(fixture.Feed()), table, zerolog.Nop())

	hooks := 0
	r.OnSwap(func(_, _ *ratetable.Snapshot) { hooks++ })

	snap, changed, err := r.Reload(context.Background(), reload.TriggerSignal)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, before, snap)
	assert.Same(t, before, table.Current())
	assert.Zero(t, hooks)
}

func TestReload_BadFeedKeepsCurrentRates(t *testing.T) {
	table := fixture.Table(t)
	before := table.Current()

	bad := nextFeed("v-bad")
	bad.Rates[0].FlatAmount = fixture.P("-1")
	r := reload.New(ratefeed.NewMemorySource(bad), table, zerolog.Nop())

	snap, changed, err := r.Reload(context.Background(), reload.TriggerPubSub)
	require.ErrorIs(t, err, ratetable.ErrInvalidFeed)
	assert.False(t, changed)
	assert.Same(t, before, snap)
	assert.Same(t, before, table.Current())
}

func TestReload_EmptyTableAtStartup(t *testing.T) {
	table := ratetable.NewTable(nil)
	r := reload.New(ratefeed.NewMemorySource(fixture.Feed()), table, zerolog.Nop())

	snap, changed, err := r.Reload(context.Background(), reload.TriggerStartup)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, fixture.Version, snap.Version())
}

type invalidatingSource struct {
	*ratefeed.MemorySource
	invalidations atomic.Int32
}

func (s *invalidatingSource) Invalidate(context.Context) error {
	s.invalidations.Add(1)
	return nil
}

func TestReload_InvalidatesCacheExceptAtStartup(t *testing.T) {
	src := &invalidatingSource{MemorySource: ratefeed.NewMemorySource(fixture.Feed())}
	r := reload.New(src, ratetable.NewTable(nil), zerolog.Nop())

	_, _, err := r.Reload(context.Background(), reload.TriggerStartup)
	require.NoError(t, err)
	assert.EqualValues(t, 0, src.invalidations.Load())

	_, _, err = r.Reload(context.Background(), reload.TriggerSignal)
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.invalidations.Load())
}

func TestWatch_ReloadsOnPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	table := fixture.Table(t)
	src := ratefeed.NewMemorySource(fixture.Feed())
	r := reload.New(src, table, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, rdb, "pricing:rates:reload") }()

	// Wait until the watcher is subscribed.
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("pricing:rates:reload")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	src.Set(nextFeed("v-pubsub"))
	n, err := reload.Announce(ctx, rdb, "pricing:rates:reload", "v-pubsub")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.Eventually(t, func() bool {
		return table.Current().Version() == "v-pubsub"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestScheduler_RunsReloadJob(t *testing.T) {
	table := fixture.Table(t)
	src := ratefeed.NewMemorySource(nextFeed("v-cron"))
	r := reload.New(src, table, zerolog.Nop())

	s := reload.NewScheduler(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1s", reload.ReloadJob{Reloader: r}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return table.Current().Version() == "v-cron"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := reload.NewScheduler(zerolog.Nop())
	err := s.AddJob("every so often", reload.ReloadJob{})
	assert.Error(t, err)
}
