package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"musico/internal/auth"
	"musico/internal/httpx"
	"musico/internal/metrics"
)

const EventConnected = "connected"

type Options struct {
	// FrontendBaseURL is the only origin allowed to open websockets. Empty allows any.
	FrontendBaseURL string
	// Fanout is optional and forwards relayed frames to other instances.
	Fanout *Fanout
}

type Server struct {
	hub      *Hub
	authn    *auth.Authenticator
	upgrader websocket.Upgrader
	out      emitter

	player    *playerNamespace
	playlists *playlistNamespace

	ctx context.Context
	log zerolog.Logger
}

// NewServer wires the relay namespaces. ctx bounds the lifetime of every
// connection the server accepts.
func NewServer(ctx context.Context, hub *Hub, authn *auth.Authenticator, queues QueueStore, opts Options, log zerolog.Logger) *Server {
	log = log.With().Str("component", "relay").Logger()
	out := emitter{hub: hub, fanout: opts.Fanout}
	return &Server{
		hub:   hub,
		authn: authn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(opts.FrontendBaseURL),
		},
		out:       out,
		player:    newPlayerNamespace(hub, out, queues, log),
		playlists: newPlaylistNamespace(hub, out, log),
		ctx:       ctx,
		log:       log,
	}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/ws/player", s.handleWS(s.player))
	r.Get("/ws/playlists", s.handleWS(s.playlists))
	r.Post("/events", s.handleEvents)
}

func checkOrigin(allowed string) func(*http.Request) bool {
	allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
	return func(r *http.Request) bool {
		if allowed == "" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || strings.EqualFold(strings.TrimRight(origin, "/"), allowed)
	}
}

func (s *Server) handleWS(ns namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authn.Authenticate(r)
		if err != nil {
			s.log.Debug().Err(err).Str("namespace", ns.name()).Msg("rejecting unauthenticated connection")
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn().Err(err).Str("namespace", ns.name()).Msg("ws upgrade failed")
			return
		}

		client := newClient(s.hub, conn, userID, ns.name(), s.log)
		s.hub.Register(client)
		ns.connect(client)

		if welcome, err := encodeFrame(EventConnected, map[string]any{
			"connectionId": client.id,
			"userId":       userID,
			"now":          time.Now().UTC().Format(time.RFC3339Nano),
		}); err == nil {
			s.hub.Send(client, welcome)
		}

		metrics.RelayConnections.WithLabelValues(ns.name()).Inc()
		defer metrics.RelayConnections.WithLabelValues(ns.name()).Dec()
		client.log.Debug().Msg("connected")

		go client.writePump()
		client.readPump(s.ctx, ns.handle)
		client.log.Debug().Msg("disconnected")
	}
}

type eventRequest struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleEvents lets other services push a frame to every member of a room.
// It trusts the caller completely and must only be reachable from inside the
// deployment, never through the public gateway routes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req eventRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.Room = strings.TrimSpace(req.Room)
	req.Event = strings.TrimSpace(req.Event)
	if req.Room == "" || req.Event == "" {
		httpx.WriteError(w, http.StatusBadRequest, "room and event are required")
		return
	}

	frame, err := json.Marshal(Message{Event: req.Event, Data: req.Data})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid event data")
		return
	}
	s.out.emit(r.Context(), req.Room, frame, nil)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
