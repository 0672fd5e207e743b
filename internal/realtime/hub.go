package realtime

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"musico/internal/metrics"
)

// envelope is a frame addressed either to a room or to a single client.
type envelope struct {
	room    string
	to      *Client
	exclude *Client
	frame   []byte
}

type membership struct {
	client *Client
	room   string
}

// Hub owns every connection and room membership. All state is touched only
// by the Run goroutine; everything else talks to it over channels.
type Hub struct {
	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	join       chan membership
	leave      chan membership
	broadcast  chan envelope
	query      chan func()
	done       chan struct{}

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]map[string]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		broadcast:  make(chan envelope),
		query:      make(chan func()),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "relay-hub").Logger(),
	}
}

// Run processes hub requests until ctx is cancelled. On exit every client's
// send channel is closed so its write pump shuts the connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			if _, ok := h.clients[c]; !ok {
				h.clients[c] = make(map[string]struct{})
			}

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.join:
			rooms, ok := h.clients[m.client]
			if !ok {
				continue
			}
			rooms[m.room] = struct{}{}
			if h.rooms[m.room] == nil {
				h.rooms[m.room] = make(map[*Client]struct{})
			}
			h.rooms[m.room][m.client] = struct{}{}

		case m := <-h.leave:
			if rooms, ok := h.clients[m.client]; ok {
				delete(rooms, m.room)
			}
			h.removeMember(m.room, m.client)

		case e := <-h.broadcast:
			h.deliver(e)

		case fn := <-h.query:
			fn()
		}
	}
}

func (h *Hub) deliver(e envelope) {
	if e.to != nil {
		if _, ok := h.clients[e.to]; ok {
			h.push(e.to, e.frame)
		}
		return
	}
	for c := range h.rooms[e.room] {
		if c == e.exclude {
			continue
		}
		h.push(c, e.frame)
	}
}

// push never blocks. A client whose buffer is full is disconnected.
func (h *Hub) push(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		metrics.RelaySlowConsumers.Inc()
		h.log.Warn().Str("conn_id", c.id).Str("user_id", c.userID).Msg("send buffer full, dropping connection")
		h.drop(c)
	}
}

// drop removes c from all of its rooms and closes its send channel.
func (h *Hub) drop(c *Client) {
	rooms, ok := h.clients[c]
	if !ok {
		return
	}
	for room := range rooms {
		h.removeMember(room, c)
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) removeMember(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Join(c *Client, room string) {
	select {
	case h.join <- membership{client: c, room: room}:
	case <-h.done:
	}
}

func (h *Hub) Leave(c *Client, room string) {
	select {
	case h.leave <- membership{client: c, room: room}:
	case <-h.done:
	}
}

// Broadcast sends frame to every member of room except exclude, which may be nil.
func (h *Hub) Broadcast(room string, frame []byte, exclude *Client) {
	h.enqueue(envelope{room: room, exclude: exclude, frame: frame})
}

// Send delivers frame to a single registered client.
func (h *Hub) Send(c *Client, frame []byte) {
	h.enqueue(envelope{to: c, frame: frame})
}

func (h *Hub) enqueue(e envelope) {
	select {
	case h.broadcast <- e:
	case <-h.done:
	}
}

// inspect runs fn on the hub goroutine and waits for it.
func (h *Hub) inspect(fn func()) bool {
	finished := make(chan struct{})
	select {
	case h.query <- func() { fn(); close(finished) }:
	case <-h.done:
		return false
	}
	<-finished
	return true
}

// Members returns the number of connections in room.
func (h *Hub) Members(room string) int {
	n := 0
	h.inspect(func() { n = len(h.rooms[room]) })
	return n
}

// Rooms lists the rooms that currently have members.
func (h *Hub) Rooms() []string {
	var out []string
	h.inspect(func() {
		for room := range h.rooms {
			out = append(out, room)
		}
	})
	sort.Strings(out)
	return out
}

// RoomsOf lists the rooms c belongs to.
func (h *Hub) RoomsOf(c *Client) []string {
	var out []string
	h.inspect(func() {
		for room := range h.clients[c] {
			out = append(out, room)
		}
	})
	sort.Strings(out)
	return out
}
