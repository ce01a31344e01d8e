package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite metadata database: the row-aligned case metadata
// table and the history of artifact builds.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// The metadata file is shipped as a single artifact, so keep the
	// rollback journal instead of WAL side files.
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Case metadata ---

// ReplaceMetadata swaps the whole metadata table for entries in one
// transaction. Entries must carry distinct row indexes.
func (s *Store) ReplaceMetadata(ctx context.Context, entries []CaseMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning metadata transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM case_metadata"); err != nil {
		return fmt.Errorf("clearing metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO case_metadata (row_index, case_id, title, summary, court, year, outcome, legal_area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.RowIndex, e.CaseID, e.Title, e.Summary, e.Court, e.Year, e.Outcome, e.LegalArea); err != nil {
			return fmt.Errorf("inserting row %d: %w", e.RowIndex, err)
		}
	}

	return tx.Commit()
}

// ListMetadata returns every metadata row ordered by row index.
func (s *Store) ListMetadata(ctx context.Context) ([]CaseMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_index, case_id, title, summary, court, year, outcome, legal_area
		FROM case_metadata ORDER BY row_index ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	var out []CaseMetadata
	for rows.Next() {
		var e CaseMetadata
		if err := rows.Scan(&e.RowIndex, &e.CaseID, &e.Title, &e.Summary, &e.Court, &e.Year, &e.Outcome, &e.LegalArea); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountMetadata returns the number of metadata rows and distinct case IDs.
func (s *Store) CountMetadata(ctx context.Context) (rows, cases int, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT case_id) FROM case_metadata").Scan(&rows, &cases)
	return rows, cases, err
}

// --- Builds ---

// RecordBuild appends a build to the history.
func (s *Store) RecordBuild(ctx context.Context, b Build) error {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (id, created_at, encoder, model, dimension, metric, rows, cases, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, createdAt.UTC().Format(time.RFC3339Nano), b.Encoder, b.Model, b.Dimension, b.Metric, b.Rows, b.Cases, b.Skipped,
	)
	return err
}

// LatestBuild returns the most recently recorded build or ErrNotFound.
func (s *Store) LatestBuild(ctx context.Context) (Build, error) {
	var b Build
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, encoder, model, dimension, metric, rows, cases, skipped
		FROM builds ORDER BY created_at DESC LIMIT 1`,
	).Scan(&b.ID, &createdAt, &b.Encoder, &b.Model, &b.Dimension, &b.Metric, &b.Rows, &b.Cases, &b.Skipped)
	if err == sql.ErrNoRows {
		return Build{}, ErrNotFound
	}
	if err != nil {
		return Build{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Build{}, fmt.Errorf("parsing created_at: %w", err)
	}
	b.CreatedAt = t
	return b, nil
}
