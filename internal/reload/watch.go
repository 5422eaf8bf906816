package reload

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Watch reloads on every message published to channel until ctx ends. The
// message body is informational (usually the new feed version).
func (r *Reloader) Watch(ctx context.Context, rdb *redis.Client, channel string) error {
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info().Str("channel", channel).Msg("watching for rate reload requests")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.log.Info().Str("channel", channel).Str("payload", msg.Payload).Msg("rate reload requested")
			_, _, _ = r.Reload(ctx, TriggerPubSub)
		}
	}
}

// Announce asks every engine watching channel to reload.
func Announce(ctx context.Context, rdb *redis.Client, channel, version string) (int64, error) {
	return rdb.Publish(ctx, channel, version).Result()
}
