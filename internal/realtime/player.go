package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"musico/internal/metrics"
	"musico/internal/queue"
)

const (
	EventPlaybackState = "playback:state"
	EventQueueUpdate   = "queue:update"
	EventTrackChange   = "track:change"
	EventSeek          = "seek"
)

// QueueStore is the part of the queue store the player namespace needs.
type QueueStore interface {
	GetQueue(ctx context.Context, userID string) (*queue.Queue, bool)
	SetCurrentIndex(ctx context.Context, userID string, index int) (*queue.Queue, bool)
}

type trackChangeRequest struct {
	TrackID   string `json:"trackId,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Direction string `json:"direction,omitempty"`
}

type trackChangeResult struct {
	Index int          `json:"index"`
	Queue *queue.Queue `json:"queue"`
}

// playerNamespace keeps the devices of one user in sync. Every connection
// joins player:{userId} on connect.
type playerNamespace struct {
	hub    *Hub
	out    emitter
	queues QueueStore
	log    zerolog.Logger
}

func newPlayerNamespace(hub *Hub, out emitter, queues QueueStore, log zerolog.Logger) *playerNamespace {
	return &playerNamespace{
		hub:    hub,
		out:    out,
		queues: queues,
		log:    log.With().Str("namespace", "player").Logger(),
	}
}

func (p *playerNamespace) name() string { return "player" }

func (p *playerNamespace) connect(c *Client) {
	p.hub.Join(c, playerRoom(c.userID))
}

func (p *playerNamespace) handle(ctx context.Context, c *Client, msg Message) {
	switch msg.Event {
	case EventPlaybackState, EventQueueUpdate, EventSeek:
		frame, err := relayFrame(msg)
		if err != nil {
			metrics.RecordFrame(p.name(), msg.Event, "invalid")
			return
		}
		p.out.emit(ctx, playerRoom(c.userID), frame, c)
		metrics.RecordFrame(p.name(), msg.Event, "relayed")

	case EventTrackChange:
		p.handleTrackChange(ctx, c, msg)

	default:
		metrics.RecordFrame(p.name(), "unknown", "dropped")
		p.log.Debug().Str("event", msg.Event).Str("conn_id", c.id).Msg("unknown event")
	}
}

func (p *playerNamespace) handleTrackChange(ctx context.Context, c *Client, msg Message) {
	var req trackChangeRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			metrics.RecordFrame(p.name(), msg.Event, "invalid")
			p.log.Debug().Err(err).Str("conn_id", c.id).Msg("bad track:change payload")
			return
		}
	}

	q, ok := p.queues.GetQueue(ctx, c.userID)
	if !ok || len(q.Tracks) == 0 {
		metrics.RecordFrame(p.name(), msg.Event, "dropped")
		return
	}
	index, ok := resolveTarget(q, req)
	if !ok {
		metrics.RecordFrame(p.name(), msg.Event, "dropped")
		p.log.Debug().Str("conn_id", c.id).Msg("track:change target not found")
		return
	}

	updated, saved := p.queues.SetCurrentIndex(ctx, c.userID, index)
	if updated == nil {
		metrics.RecordFrame(p.name(), msg.Event, "dropped")
		return
	}
	if !saved {
		p.log.Warn().Str("user_id", c.userID).Int("index", index).Msg("track change not persisted")
	}

	frame, err := encodeFrame(EventTrackChange, trackChangeResult{Index: index, Queue: updated})
	if err != nil {
		metrics.RecordFrame(p.name(), msg.Event, "invalid")
		return
	}
	p.out.emit(ctx, playerRoom(c.userID), frame, c)
	metrics.RecordFrame(p.name(), msg.Event, "relayed")
}

// resolveTarget picks the new current index: an explicit index first, then a
// next/previous step from current, then the first track with the given id.
func resolveTarget(q *queue.Queue, req trackChangeRequest) (int, bool) {
	var index int
	switch {
	case req.Index != nil:
		index = *req.Index
	case req.Direction == "next":
		index = q.Current + 1
	case req.Direction == "previous":
		index = q.Current - 1
	case req.TrackID != "":
		index = q.IndexOf(req.TrackID)
	default:
		return 0, false
	}
	return index, q.Valid(index)
}
