package queue

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"musico/internal/httpx"
)

// TrackResolver looks up display metadata for track ids. Unknown ids are
// left out of the result.
type TrackResolver interface {
	LookupTracks(ctx context.Context, ids []string) ([]Track, error)
}

type Handler struct {
	store    *Store
	resolver TrackResolver
	log      zerolog.Logger
}

// NewHandler builds the REST handler. resolver may be nil, in which case
// track ids are queued without metadata.
func NewHandler(store *Store, resolver TrackResolver, log zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		resolver: resolver,
		log:      log.With().Str("component", "queue-http").Logger(),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/queue", h.handleGetQueue)
	r.Get("/queue/next", h.handleNextTrack)
	r.Get("/queue/previous", h.handlePreviousTrack)
	r.Post("/queue/add", h.handleAddTracks)
	r.Delete("/queue/remove", h.handleRemoveTracks)
	r.Put("/queue/reorder", h.handleReorder)
	r.Delete("/queue/clear", h.handleClear)
	r.Put("/queue/current", h.handleSetCurrent)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := httpx.UserID(r)
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing user context")
		return "", false
	}
	return userID, true
}

func (h *Handler) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	q, ok := h.store.GetQueue(r.Context(), userID)
	if !ok {
		q = NewQueue()
	}
	httpx.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) handleNextTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	t, ok := h.store.GetNextTrack(r.Context(), userID)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "no next track")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handlePreviousTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	t, ok := h.store.GetPreviousTrack(r.Context(), userID)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "no previous track")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleAddTracks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		TrackIDs []string  `json:"trackIds"`
		Tracks   []Track   `json:"tracks"`
		Position *Position `json:"position"`
	}
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	tracks := make([]Track, 0, len(body.Tracks)+len(body.TrackIDs))
	for _, t := range body.Tracks {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "every track needs an id")
			return
		}
		tracks = append(tracks, t)
	}

	ids := cleanIDs(body.TrackIDs)
	if len(ids) > 0 {
		resolved, err := h.resolve(r.Context(), ids)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("resolve tracks")
			httpx.WriteError(w, http.StatusBadGateway, "track catalog unavailable")
			return
		}
		tracks = append(tracks, resolved...)
	}
	if len(tracks) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "no tracks to add")
		return
	}

	pos := Last
	if body.Position != nil {
		pos = *body.Position
	}

	q, saved := h.store.AddTracks(r.Context(), userID, tracks, pos)
	h.respondMutation(w, q, saved)
}

func (h *Handler) handleRemoveTracks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ids, ok := decodeTrackIDs(w, r)
	if !ok {
		return
	}
	q, saved := h.store.RemoveTracks(r.Context(), userID, ids)
	h.respondMutation(w, q, saved)
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ids, ok := decodeTrackIDs(w, r)
	if !ok {
		return
	}
	q, saved := h.store.ReorderQueue(r.Context(), userID, ids)
	h.respondMutation(w, q, saved)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !h.store.ClearQueue(r.Context(), userID) {
		httpx.WriteError(w, http.StatusServiceUnavailable, "queue store unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Index *int `json:"index"`
	}
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}
	if body.Index == nil {
		httpx.WriteError(w, http.StatusBadRequest, "index is required")
		return
	}
	q, saved := h.store.SetCurrentIndex(r.Context(), userID, *body.Index)
	h.respondMutation(w, q, saved)
}

func (h *Handler) respondMutation(w http.ResponseWriter, q *Queue, saved bool) {
	if q == nil {
		httpx.WriteError(w, http.StatusNotFound, "queue not found")
		return
	}
	if !saved {
		httpx.WriteError(w, http.StatusServiceUnavailable, "queue store unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) resolve(ctx context.Context, ids []string) ([]Track, error) {
	if h.resolver == nil {
		out := make([]Track, len(ids))
		for i, id := range ids {
			out[i] = Track{ID: id}
		}
		return out, nil
	}
	return h.resolver.LookupTracks(ctx, ids)
}

func decodeTrackIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var body struct {
		TrackIDs []string `json:"trackIds"`
	}
	if !httpx.DecodeJSON(w, r, &body) {
		return nil, false
	}
	ids := cleanIDs(body.TrackIDs)
	if len(ids) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "trackIds must not be empty")
		return nil, false
	}
	return ids, true
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
