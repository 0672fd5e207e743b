package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Track is a queue entry: a track id plus display metadata copied from the catalog.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	ArtworkURL string `json:"artwork,omitempty"`
	AudioURL   string `json:"url,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
}

// Queue is a user's playback queue. Current is -1 when nothing is active.
type Queue struct {
	Current int     `json:"current"`
	Tracks  []Track `json:"tracks"`
}

// NewQueue returns an empty queue with nothing active.
func NewQueue() *Queue {
	return &Queue{Current: -1, Tracks: []Track{}}
}

type PositionKind int

const (
	PositionLast PositionKind = iota
	PositionNext
	PositionIndex
)

// Position says where AddTracks inserts: "next", "last" or an explicit index.
type Position struct {
	Kind  PositionKind
	Index int
}

var (
	Last = Position{Kind: PositionLast}
	Next = Position{Kind: PositionNext}
)

func At(index int) Position {
	return Position{Kind: PositionIndex, Index: index}
}

func (p Position) String() string {
	switch p.Kind {
	case PositionNext:
		return "next"
	case PositionIndex:
		return strconv.Itoa(p.Index)
	default:
		return "last"
	}
}

func (p Position) MarshalJSON() ([]byte, error) {
	if p.Kind == PositionIndex {
		return []byte(strconv.Itoa(p.Index)), nil
	}
	return json.Marshal(p.String())
}

func (p *Position) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = Last
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "next":
			*p = Next
		case "last", "":
			*p = Last
		default:
			return fmt.Errorf("invalid position %q", s)
		}
		return nil
	}
	var i int
	if err := json.Unmarshal(b, &i); err != nil {
		return fmt.Errorf("invalid position %s", b)
	}
	*p = At(i)
	return nil
}
