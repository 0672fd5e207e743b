package catalog

import (
	"context"
	"fmt"
)

func AutoMigrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS tracks (
          id          TEXT PRIMARY KEY,
          title       TEXT NOT NULL,
          artist      TEXT NOT NULL DEFAULT '',
          album       TEXT NOT NULL DEFAULT '',
          artwork_url TEXT NOT NULL DEFAULT '',
          audio_url   TEXT NOT NULL DEFAULT '',
          duration_ms INT NOT NULL DEFAULT 0,
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return fmt.Errorf("migrate tracks: %w", err)
	}
	return nil
}
