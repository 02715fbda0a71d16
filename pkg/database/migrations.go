package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// migrationScript represents a single schema migration
type migrationScript struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
}

func (m migrationScript) checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

var migrations = []migrationScript{
	{
		Version:     1,
		Name:        "history_schema",
		Description: "play sessions and track plays",
		UpSQL: `
		CREATE TABLE IF NOT EXISTS play_sessions (
			id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			loop INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			end_reason TEXT
		);

		CREATE TABLE IF NOT EXISTS track_plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES play_sessions(id) ON DELETE CASCADE,
			guild_id TEXT NOT NULL,
			track_name TEXT NOT NULL,
			track_path TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			outcome TEXT NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_track_plays_session ON track_plays(session_id);
		`,
	},
	{
		Version:     2,
		Name:        "history_indexes",
		Description: "lookups by guild and retention sweeps",
		UpSQL: `
		CREATE INDEX IF NOT EXISTS idx_track_plays_guild_started ON track_plays(guild_id, started_at);
		CREATE INDEX IF NOT EXISTS idx_play_sessions_guild ON play_sessions(guild_id);
		CREATE INDEX IF NOT EXISTS idx_play_sessions_ended ON play_sessions(ended_at);
		`,
	},
}

// migrate applies every migration newer than the schema's current version.
// An applied migration whose text has since changed is an error.
func migrate(ctx context.Context, db *sql.DB) (int, error) {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		checksum TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied := make(map[int]string)
	rows, err := db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return 0, err
		}
		applied[version] = checksum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	sorted := append([]migrationScript(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	current := 0
	for _, m := range sorted {
		if checksum, ok := applied[m.Version]; ok {
			if checksum != m.checksum() {
				return current, fmt.Errorf("%w: version %d (%s)", ErrChecksumChanged, m.Version, m.Name)
			}
			current = m.Version
			continue
		}

		if err := applyMigration(ctx, db, m); err != nil {
			return current, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, m.Version, m.Name, err)
		}
		current = m.Version
	}
	return current, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migrationScript) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, description, checksum, applied_at) VALUES (?, ?, ?, ?, ?)",
		m.Version, m.Name, m.Description, m.checksum(), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}
