package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Migration is one schema step.
type Migration struct {
	Version     int
	Description string
	Up          string
}

func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create bridge_incidents table",
			Up: `
				CREATE TABLE IF NOT EXISTS bridge_incidents (
					id TEXT PRIMARY KEY,
					session_id INTEGER NOT NULL DEFAULT 0,
					kind TEXT NOT NULL DEFAULT '-',
					stage TEXT NOT NULL,
					message TEXT NOT NULL,
					details_json TEXT NOT NULL DEFAULT '{}',
					created_at TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_incidents_session ON bridge_incidents(session_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_incidents_created ON bridge_incidents(created_at);
			`,
		},
		{
			Version:     2,
			Description: "Create bridge_interpretations table",
			Up: `
				CREATE TABLE IF NOT EXISTS bridge_interpretations (
					id TEXT PRIMARY KEY,
					session_id INTEGER NOT NULL,
					model TEXT NOT NULL DEFAULT '-',
					result_json TEXT NOT NULL DEFAULT '{}',
					created_at TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_interpretations_session ON bridge_interpretations(session_id, created_at);
			`,
		},
	}
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const track = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`
	if _, err := db.ExecContext(ctx, track); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations() {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("failed to check migration status for version %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, description) VALUES (?, ?)", m.Version, m.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
