package realtime

import (
	"context"
	"encoding/json"
)

// namespace is the event handling behind one websocket route.
type namespace interface {
	name() string
	// connect runs once the client is registered, before any frame is read.
	connect(c *Client)
	handle(ctx context.Context, c *Client, msg Message)
}

// emitter delivers frames to local room members and, if configured, to the
// other instances.
type emitter struct {
	hub    *Hub
	fanout *Fanout
}

func (e emitter) emit(ctx context.Context, room string, frame []byte, exclude *Client) {
	e.hub.Broadcast(room, frame, exclude)
	if e.fanout != nil {
		e.fanout.Publish(ctx, room, frame)
	}
}

// relayFrame re-encodes msg without touching its payload.
func relayFrame(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
