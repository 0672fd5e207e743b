package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"musico/internal/queue"
)

// DB is implemented by *pgxpool.Pool and can be mocked for testing.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Catalog resolves track ids to the display metadata stored in queue entries.
type Catalog struct {
	db  DB
	log zerolog.Logger
}

func New(db DB, log zerolog.Logger) *Catalog {
	return &Catalog{
		db:  db,
		log: log.With().Str("component", "catalog").Logger(),
	}
}

// LookupTracks returns the tracks for ids in request order. Unknown ids are skipped.
func (c *Catalog) LookupTracks(ctx context.Context, ids []string) ([]queue.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := c.db.Query(ctx, `
		SELECT id, title, artist, album, artwork_url, audio_url, duration_ms
		FROM tracks
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	found := make(map[string]queue.Track, len(ids))
	for rows.Next() {
		var t queue.Track
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.ArtworkURL, &t.AudioURL, &t.DurationMs); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		found[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}

	out := make([]queue.Track, 0, len(ids))
	for _, id := range ids {
		t, ok := found[id]
		if !ok {
			c.log.Debug().Str("track_id", id).Msg("unknown track id skipped")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
