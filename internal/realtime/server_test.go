package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musico/internal/auth"
	"musico/internal/queue"
)

type testRelay struct {
	hub    *Hub
	store  *queue.Store
	server *httptest.Server
}

func newTestRelay(t *testing.T, opts Options) *testRelay {
	t.Helper()
	return newTestRelayWithAuth(t, opts, auth.NewAuthenticator(nil))
}

func newTestRelayWithAuth(t *testing.T, opts Options, authn *auth.Authenticator) *testRelay {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	store := queue.NewStore(rdb, "", 0, zerolog.Nop())
	s := NewServer(ctx, hub, authn, store, opts, zerolog.Nop())

	r := chi.NewRouter()
	s.Routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &testRelay{hub: hub, store: store, server: ts}
}

func (tr *testRelay) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(tr.server.URL, "http") + path
}

// dial connects as userID and consumes the welcome frame.
func (tr *testRelay) dial(t *testing.T, path, userID string) *websocket.Conn {
	t.Helper()
	creds := url.QueryEscape(`{"userId":"` + userID + `"}`)
	conn, resp, err := websocket.DefaultDialer.Dial(tr.wsURL(path)+"?auth="+creds, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	msg := readFrame(t, conn)
	require.Equal(t, EventConnected, msg.Event)
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := encodeFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
}

func (tr *testRelay) waitMembers(t *testing.T, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return tr.hub.Members(room) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_PlaylistEventsReachOthersOnly(t *testing.T) {
	tr := newTestRelay(t, Options{})
	alice := tr.dial(t, "/ws/playlists", "alice")
	bob := tr.dial(t, "/ws/playlists", "bob")

	sendFrame(t, alice, EventJoinPlaylist, "p1")
	sendFrame(t, bob, EventJoinPlaylist, "p1")
	tr.waitMembers(t, "playlist:p1", 2)

	payload := map[string]any{
		"playlistId":     "p1",
		"tracks":         []string{"t1"},
		"playlistTracks": []map[string]any{{"trackId": "t1", "position": 0}},
	}
	sendFrame(t, alice, EventPlaylistTrackAdded, payload)

	got := readFrame(t, bob)
	assert.Equal(t, EventPlaylistTrackAdded, got.Event)
	want, _ := json.Marshal(payload)
	assert.JSONEq(t, string(want), string(got.Data))

	expectSilence(t, alice)
}

func TestServer_PlaylistEventWithoutIDIsDropped(t *testing.T) {
	tr := newTestRelay(t, Options{})
	alice := tr.dial(t, "/ws/playlists", "alice")
	bob := tr.dial(t, "/ws/playlists", "bob")

	sendFrame(t, alice, EventJoinPlaylist, "p1")
	sendFrame(t, bob, EventJoinPlaylist, "p1")
	tr.waitMembers(t, "playlist:p1", 2)

	sendFrame(t, alice, EventPlaylistUpdated, map[string]any{"updates": map[string]any{"name": "x"}})
	sendFrame(t, alice, EventPlaylistTrackRemoved, map[string]any{"playlistId": "", "trackIds": []string{"t1"}})
	sendFrame(t, alice, EventPlaylistTrackReordered, map[string]any{"playlistId": "p1", "trackIds": []string{"t2", "t1"}})

	got := readFrame(t, bob)
	assert.Equal(t, EventPlaylistTrackReordered, got.Event)
	expectSilence(t, alice)
}

func TestServer_InvalidJoinIsNoop(t *testing.T) {
	tr := newTestRelay(t, Options{})
	conn := tr.dial(t, "/ws/playlists", "alice")

	sendFrame(t, conn, EventJoinPlaylist, 42)
	sendFrame(t, conn, EventJoinPlaylist, "")
	sendFrame(t, conn, EventJoinPlaylist, map[string]string{"id": "p1"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	sendFrame(t, conn, EventJoinPlaylist, "p9")

	tr.waitMembers(t, "playlist:p9", 1)
	assert.Equal(t, []string{"playlist:p9"}, tr.hub.Rooms())
	expectSilence(t, conn)
}

func TestServer_LeavePlaylist(t *testing.T) {
	tr := newTestRelay(t, Options{})
	alice := tr.dial(t, "/ws/playlists", "alice")
	bob := tr.dial(t, "/ws/playlists", "bob")

	sendFrame(t, alice, EventJoinPlaylist, "p1")
	sendFrame(t, bob, EventJoinPlaylist, "p1")
	tr.waitMembers(t, "playlist:p1", 2)

	sendFrame(t, bob, EventLeavePlaylist, "p1")
	tr.waitMembers(t, "playlist:p1", 1)

	sendFrame(t, alice, EventPlaylistUpdated, map[string]any{"playlistId": "p1", "updates": map[string]any{}})
	expectSilence(t, bob)
}

func TestServer_PlayerRelaysWithinUserRoom(t *testing.T) {
	tr := newTestRelay(t, Options{})
	phone := tr.dial(t, "/ws/player", "u1")
	laptop := tr.dial(t, "/ws/player", "u1")
	stranger := tr.dial(t, "/ws/player", "u2")
	tr.waitMembers(t, "player:u1", 2)

	sendFrame(t, phone, EventPlaybackState, map[string]any{"isPlaying": true, "position": 1200})
	got := readFrame(t, laptop)
	assert.Equal(t, EventPlaybackState, got.Event)
	assert.JSONEq(t, `{"isPlaying":true,"position":1200}`, string(got.Data))

	sendFrame(t, laptop, EventSeek, map[string]any{"position": 42})
	got = readFrame(t, phone)
	assert.Equal(t, EventSeek, got.Event)
	assert.JSONEq(t, `{"position":42}`, string(got.Data))

	expectSilence(t, stranger)
}

func TestServer_TrackChange(t *testing.T) {
	tr := newTestRelay(t, Options{})
	ctx := context.Background()
	q := &queue.Queue{Current: 0, Tracks: []queue.Track{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	require.True(t, tr.store.SetQueue(ctx, "u1", q))

	phone := tr.dial(t, "/ws/player", "u1")
	laptop := tr.dial(t, "/ws/player", "u1")

	var result trackChangeResult

	sendFrame(t, phone, EventTrackChange, map[string]any{"direction": "next"})
	got := readFrame(t, laptop)
	require.Equal(t, EventTrackChange, got.Event)
	require.NoError(t, json.Unmarshal(got.Data, &result))
	assert.Equal(t, 1, result.Index)
	assert.Equal(t, 1, result.Queue.Current)

	sendFrame(t, phone, EventTrackChange, map[string]any{"trackId": "c"})
	got = readFrame(t, laptop)
	require.NoError(t, json.Unmarshal(got.Data, &result))
	assert.Equal(t, 2, result.Index)

	// index wins over trackId
	sendFrame(t, phone, EventTrackChange, map[string]any{"index": 0, "trackId": "c"})
	got = readFrame(t, laptop)
	require.NoError(t, json.Unmarshal(got.Data, &result))
	assert.Equal(t, 0, result.Index)

	stored, ok := tr.store.GetQueue(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, 0, stored.Current)

	// unresolvable targets are ignored
	sendFrame(t, phone, EventTrackChange, map[string]any{"direction": "previous"})
	sendFrame(t, phone, EventTrackChange, map[string]any{"trackId": "zzz"})
	sendFrame(t, phone, EventTrackChange, map[string]any{"index": 7})
	expectSilence(t, laptop)
	expectSilence(t, phone)

	stored, _ = tr.store.GetQueue(ctx, "u1")
	assert.Equal(t, 0, stored.Current)
}

func TestServer_TrackChangeWithoutQueue(t *testing.T) {
	tr := newTestRelay(t, Options{})
	phone := tr.dial(t, "/ws/player", "u1")
	laptop := tr.dial(t, "/ws/player", "u1")

	sendFrame(t, phone, EventTrackChange, map[string]any{"index": 0})
	expectSilence(t, laptop)
}

func TestServer_RejectsMissingIdentity(t *testing.T) {
	tr := newTestRelay(t, Options{})

	_, resp, err := websocket.DefaultDialer.Dial(tr.wsURL("/ws/player"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(tr.wsURL("/ws/player")+"?auth="+url.QueryEscape(`{"name":"x"}`), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_GatewayHeaderIdentity(t *testing.T) {
	tr := newTestRelay(t, Options{})
	header := http.Header{"X-User-Id": []string{"u7"}}

	conn, _, err := websocket.DefaultDialer.Dial(tr.wsURL("/ws/player"), header)
	require.NoError(t, err)
	defer conn.Close()

	msg := readFrame(t, conn)
	require.Equal(t, EventConnected, msg.Event)
	assert.Equal(t, []string{"player:u7"}, tr.hub.Rooms())
}

func TestServer_OriginCheck(t *testing.T) {
	tr := newTestRelay(t, Options{FrontendBaseURL: "http://app.example.com/"})
	creds := "?auth=" + url.QueryEscape(`{"userId":"u1"}`)

	_, resp, err := websocket.DefaultDialer.Dial(tr.wsURL("/ws/player")+creds, http.Header{"Origin": []string{"http://evil.example.com"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(tr.wsURL("/ws/player")+creds, http.Header{"Origin": []string{"http://app.example.com"}})
	require.NoError(t, err)
	conn.Close()
}

func TestServer_DisconnectLeavesRooms(t *testing.T) {
	tr := newTestRelay(t, Options{})
	conn := tr.dial(t, "/ws/playlists", "alice")
	sendFrame(t, conn, EventJoinPlaylist, "p1")
	sendFrame(t, conn, EventJoinPlaylist, "p2")
	tr.waitMembers(t, "playlist:p2", 1)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(tr.hub.Rooms()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_Events(t *testing.T) {
	tr := newTestRelay(t, Options{})
	alice := tr.dial(t, "/ws/playlists", "alice")
	sendFrame(t, alice, EventJoinPlaylist, "p1")
	tr.waitMembers(t, "playlist:p1", 1)

	body := `{"room":"playlist:p1","event":"playlist:updated","data":{"playlistId":"p1","updates":{"name":"Road trip"}}}`
	resp, err := http.Post(tr.server.URL+"/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := readFrame(t, alice)
	assert.Equal(t, EventPlaylistUpdated, got.Event)
	assert.JSONEq(t, `{"playlistId":"p1","updates":{"name":"Road trip"}}`, string(got.Data))
}

func TestServer_EventsValidation(t *testing.T) {
	tr := newTestRelay(t, Options{})

	for _, body := range []string{`{`, `{"room":"playlist:p1"}`, `{"event":"x"}`} {
		resp, err := http.Post(tr.server.URL+"/events", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/player", nil)
	assert.True(t, checkOrigin("")(req))
	assert.True(t, checkOrigin("http://a.com")(req))

	req.Header.Set("Origin", "http://a.com")
	assert.True(t, checkOrigin("http://a.com/")(req))
	assert.False(t, checkOrigin("http://b.com")(req))
}

func signAccessToken(t *testing.T, secret, userID string) string {
	t.Helper()
	claims := &auth.TokenClaims{
		UserID:    userID,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestServer_SecretRequiresVerifiedToken(t *testing.T) {
	const secret = "relay-secret"
	tr := newTestRelayWithAuth(t, Options{}, auth.NewAuthenticator(auth.NewVerifier(secret)))
	spoofed := "?auth=" + url.QueryEscape(`{"userId":"victim"}`)

	_, resp, err := websocket.DefaultDialer.Dial(tr.wsURL("/ws/player")+spoofed, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(tr.wsURL("/ws/player"), http.Header{"X-User-Id": []string{"victim"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(tr.wsURL("/ws/player")+spoofed, http.Header{"Authorization": []string{"Bearer garbage"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, tr.hub.Rooms())

	conn, _, err := websocket.DefaultDialer.Dial(tr.wsURL("/ws/player")+"?token="+signAccessToken(t, secret, "u1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, EventConnected, readFrame(t, conn).Event)
	assert.Equal(t, []string{"player:u1"}, tr.hub.Rooms())
}
