package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const FanoutChannel = "musico:relay"

type fanoutEnvelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Frame  json.RawMessage `json:"frame"`
}

// Fanout forwards relayed frames between service instances over Redis pub/sub.
type Fanout struct {
	rdb      redis.UniversalClient
	hub      *Hub
	instance string

	ready     chan struct{}
	readyOnce sync.Once

	log zerolog.Logger
}

func NewFanout(rdb redis.UniversalClient, hub *Hub, log zerolog.Logger) *Fanout {
	instance := uuid.NewString()
	return &Fanout{
		rdb:      rdb,
		hub:      hub,
		instance: instance,
		ready:    make(chan struct{}),
		log:      log.With().Str("component", "relay-fanout").Str("instance", instance).Logger(),
	}
}

// Ready is closed once the subscription is active.
func (f *Fanout) Ready() <-chan struct{} { return f.ready }

// Publish sends a frame for room to the other instances. Failures are logged.
func (f *Fanout) Publish(ctx context.Context, room string, frame []byte) {
	payload, err := json.Marshal(fanoutEnvelope{Origin: f.instance, Room: room, Frame: frame})
	if err != nil {
		f.log.Error().Err(err).Msg("encode fanout envelope failed")
		return
	}
	if err := f.rdb.Publish(ctx, FanoutChannel, payload).Err(); err != nil {
		f.log.Warn().Err(err).Str("room", room).Msg("publish failed")
	}
}

// Run delivers frames published by other instances to local room members
// until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, FanoutChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", FanoutChannel, err)
	}
	f.readyOnce.Do(func() { close(f.ready) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.log.Warn().Err(err).Msg("dropping malformed fanout message")
				continue
			}
			if env.Origin == f.instance || env.Room == "" {
				continue
			}
			f.hub.Broadcast(env.Room, env.Frame, nil)
		}
	}
}
