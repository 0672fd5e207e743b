package realtime

import "encoding/json"

// Message is the frame exchanged with clients in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: raw})
}

func playerRoom(userID string) string { return "player:" + userID }

func playlistRoom(playlistID string) string { return "playlist:" + playlistID }
