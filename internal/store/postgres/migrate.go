package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the embedded SQL migrations in filename order and
// records each one with its checksum in schema_migrations.
type Migrator struct {
	pool   *pgxpool.Pool
	files  fs.FS
	logger *slog.Logger
}

// NewMigrator creates a Migrator over the embedded migrations.
func NewMigrator(pool *pgxpool.Pool, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	sub, _ := fs.Sub(migrationFS, "migrations")
	return &Migrator{pool: pool, files: sub, logger: logger.With("component", "migrator")}
}

// ApplyAll applies every pending migration. An already applied migration
// whose content changed is an error.
func (m *Migrator) ApplyAll(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := m.migrationFiles()
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}

	for _, filename := range files {
		content, err := fs.ReadFile(m.files, filename)
		if err != nil {
			return err
		}
		checksum := fmt.Sprintf("%x", sha256.Sum256(content))

		if stored, ok := applied[filename]; ok {
			if stored != checksum {
				return fmt.Errorf("migration %s has been modified (expected checksum %s, got %s)", filename, stored, checksum)
			}
			continue
		}

		if err := m.apply(ctx, filename, string(content), checksum); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", filename, err)
		}
	}
	return nil
}

func (m *Migrator) appliedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := m.pool.Query(ctx, "SELECT filename, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, err
		}
		applied[filename] = checksum
	}
	return applied, rows.Err()
}

func (m *Migrator) migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func (m *Migrator) apply(ctx context.Context, filename, content, checksum string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, m.logger)

	if _, err := tx.Exec(ctx, content); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (filename, checksum) VALUES ($1, $2)",
		filename, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.logger.Info("applied migration", "file", filename, "checksum", checksum[:8])
	return nil
}
