// Package migrations embeds the schema files and applies them in order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"labdash/pkg/database"
	"labdash/pkg/logging"
)

//go:embed *.sql
var files embed.FS

// Direction selects which half of each migration runs
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up" or "down"
func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case Up, Down:
		return d, nil
	default:
		return "", fmt.Errorf("unknown migration direction %q, expected up or down", raw)
	}
}

// Migration is one embedded SQL file
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Load returns the migrations for direction in execution order: ascending
// versions for up, descending for down.
func Load(direction Direction) ([]Migration, error) {
	suffix := "." + string(direction) + ".sql"

	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		version, _, _ := strings.Cut(name, "_")
		out = append(out, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(out, func(i, j int) bool {
		if direction == Down {
			return out[i].Version > out[j].Version
		}
		return out[i].Version < out[j].Version
	})

	return out, nil
}

const trackingTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Apply runs every pending migration for direction, each in its own
// transaction, and returns the names of the files it executed.
func Apply(ctx context.Context, db *database.PostgresDB, direction Direction, logger *logging.StructuredLogger) ([]string, error) {
	migrations, err := Load(direction)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "create_schema_migrations", trackingTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var applied []string
	if err := db.SelectContext(ctx, "list_schema_migrations", &applied, "SELECT version FROM schema_migrations"); err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var ran []string
	for _, m := range migrations {
		if (direction == Up) == done[m.Version] {
			continue
		}

		logger.Info(ctx, "[MIGRATION_RUN] Running migration", logging.Fields{
			"file":      m.Name,
			"direction": direction,
		})

		if err := run(ctx, db, direction, m); err != nil {
			return ran, err
		}
		ran = append(ran, m.Name)
	}

	return ran, nil
}

func run(ctx context.Context, db *database.PostgresDB, direction Direction, m Migration) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", m.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.Name, err)
	}

	bookkeeping := "INSERT INTO schema_migrations (version) VALUES ($1)"
	if direction == Down {
		bookkeeping = "DELETE FROM schema_migrations WHERE version = $1"
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, m.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
	}

	return tx.Commit()
}
