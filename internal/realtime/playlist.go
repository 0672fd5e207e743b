package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"musico/internal/metrics"
)

const (
	EventJoinPlaylist           = "join:playlist"
	EventLeavePlaylist          = "leave:playlist"
	EventPlaylistTrackAdded     = "playlist:track:added"
	EventPlaylistTrackRemoved   = "playlist:track:removed"
	EventPlaylistTrackReordered = "playlist:track:reordered"
	EventPlaylistUpdated        = "playlist:updated"
)

// playlistNamespace lets collaborators of a playlist see each other's edits.
// Connections start in no room and join playlists explicitly.
type playlistNamespace struct {
	hub *Hub
	out emitter
	log zerolog.Logger
}

func newPlaylistNamespace(hub *Hub, out emitter, log zerolog.Logger) *playlistNamespace {
	return &playlistNamespace{
		hub: hub,
		out: out,
		log: log.With().Str("namespace", "playlists").Logger(),
	}
}

func (p *playlistNamespace) name() string { return "playlists" }

func (p *playlistNamespace) connect(*Client) {}

func (p *playlistNamespace) handle(ctx context.Context, c *Client, msg Message) {
	switch msg.Event {
	case EventJoinPlaylist, EventLeavePlaylist:
		id, ok := playlistIDFromString(msg.Data)
		if !ok {
			metrics.RecordFrame(p.name(), msg.Event, "invalid")
			p.log.Debug().Str("conn_id", c.id).Str("event", msg.Event).Msg("ignoring membership change without playlist id")
			return
		}
		if msg.Event == EventJoinPlaylist {
			p.hub.Join(c, playlistRoom(id))
		} else {
			p.hub.Leave(c, playlistRoom(id))
		}
		metrics.RecordFrame(p.name(), msg.Event, "ok")

	case EventPlaylistTrackAdded, EventPlaylistTrackRemoved, EventPlaylistTrackReordered, EventPlaylistUpdated:
		id, ok := playlistIDFromPayload(msg.Data)
		if !ok {
			metrics.RecordFrame(p.name(), msg.Event, "invalid")
			p.log.Warn().Str("conn_id", c.id).Str("event", msg.Event).Msg("dropping event without playlistId")
			return
		}
		frame, err := relayFrame(msg)
		if err != nil {
			metrics.RecordFrame(p.name(), msg.Event, "invalid")
			return
		}
		p.out.emit(ctx, playlistRoom(id), frame, c)
		metrics.RecordFrame(p.name(), msg.Event, "relayed")

	default:
		metrics.RecordFrame(p.name(), "unknown", "dropped")
		p.log.Debug().Str("event", msg.Event).Str("conn_id", c.id).Msg("unknown event")
	}
}

func playlistIDFromString(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

func playlistIDFromPayload(data json.RawMessage) (string, bool) {
	var payload struct {
		PlaylistID string `json:"playlistId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	id := strings.TrimSpace(payload.PlaylistID)
	return id, id != ""
}
