package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// ErrChannelUnavailable is returned when the cue bus has no backing Redis
// client.  Cues are best-effort; callers log and move on, relying on the
// change-feed and polling for anything that matters.
var ErrChannelUnavailable = errors.New("cue bus unavailable")

// cueChannel returns the room-scoped pub/sub channel name.
func cueChannel(roomID uint64) string { return fmt.Sprintf("room:%d:cues", roomID) }

// cuePattern matches every room's cue channel.
const cuePattern = "room:*:cues"

// CueBus publishes and subscribes ephemeral cues over Redis pub/sub.
// Delivery is at-most-once with no history: Redis drops messages for absent
// subscribers, which is exactly the contract of this channel.  A nil Redis
// client degrades the bus to a no-op so the service keeps running without
// realtime hints.
type CueBus struct {
	rdb *redis.Client
}

// NewCueBus wraps the given Redis client; rdb may be nil.
func NewCueBus(rdb *redis.Client) *CueBus { return &CueBus{rdb: rdb} }

// Publish sends one cue to the room's channel.
func (b *CueBus) Publish(ctx context.Context, cue Cue) error {
	if b.rdb == nil {
		return ErrChannelUnavailable
	}
	body, err := json.Marshal(cue)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, cueChannel(cue.RoomID), body).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	return nil
}

// Subscribe consumes every room's cues and hands them to the handler until
// the context is cancelled.  It is intended to run once per server
// instance, feeding the in-process hub; each instance forwards only to its
// own websocket subscribers.
func (b *CueBus) Subscribe(ctx context.Context, handler func(Cue)) {
	if b.rdb == nil {
		log.Printf("cues: no redis client, ephemeral cues disabled")
		return
	}
	sub := b.rdb.PSubscribe(ctx, cuePattern)
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var cue Cue
			if err := json.Unmarshal([]byte(msg.Payload), &cue); err != nil {
				log.Printf("cues: unmarshal failed: %v", err)
				continue
			}
			handler(cue)
		}
	}
}
