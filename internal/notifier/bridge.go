package notifier

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// forcedLogoutChannel is the Redis pub/sub channel used to fan
// forced-logout signals out across instances, so a revocation handled
// on one instance reaches a device whose socket lives on another.
const forcedLogoutChannel = "session.forced_logout"

// Fanout satisfies the authority's Notifier dependency. With a Redis
// client it publishes the displaced device id and lets every
// subscribed instance (including this one) deliver locally; without
// one it degrades to direct, single-instance delivery through the
// hub.
type Fanout struct {
	hub *Hub
	rdb *redis.Client
}

func NewFanout(hub *Hub, rdb *redis.Client) *Fanout {
	return &Fanout{hub: hub, rdb: rdb}
}

// Notify routes a forced-logout signal toward a device. Fire and
// forget: a publish failure falls back to local delivery and is only
// logged.
func (f *Fanout) Notify(deviceID string) {
	if deviceID == "" {
		return
	}
	if f.rdb == nil {
		f.hub.Notify(deviceID)
		return
	}
	if err := f.rdb.Publish(context.Background(), forcedLogoutChannel, deviceID).Err(); err != nil {
		log.Printf("notifier: publish for device %s failed: %v; delivering locally", deviceID, err)
		f.hub.Notify(deviceID)
	}
}

// Run subscribes to the fan-out channel and delivers incoming signals
// to the local hub until ctx is cancelled. It is a no-op without a
// Redis client. Intended to run as a background goroutine.
func (f *Fanout) Run(ctx context.Context) {
	if f.rdb == nil {
		return
	}
	sub := f.rdb.Subscribe(ctx, forcedLogoutChannel)
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
			f.hub.Notify(msg.Payload)
		}
	}
}
