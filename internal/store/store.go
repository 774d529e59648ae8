package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite record of rewritten output files.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the state tables and adds columns missing from
// databases written by older versions. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := s.addColumn("files", "config_hash", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) addColumn(table, column, decl string) error {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT NOT NULL,
  config_hash     TEXT NOT NULL DEFAULT '',
  specifiers      INTEGER NOT NULL DEFAULT 0,
  rewritten_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id                  INTEGER PRIMARY KEY,
  config_file         TEXT NOT NULL,
  started_at          TIMESTAMP NOT NULL,
  finished_at         TIMESTAMP,
  files_scanned       INTEGER DEFAULT 0,
  files_changed       INTEGER DEFAULT 0,
  files_skipped       INTEGER DEFAULT 0,
  specifiers_rewritten INTEGER DEFAULT 0,
  diagnostics         INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_config ON runs(config_file, started_at);
`

// --- File state ---

// States returns the recorded state of every file, keyed by path.
func (s *Store) States() (map[string]FileState, error) {
	rows, err := s.db.Query("SELECT id, path, hash, config_hash, specifiers, rewritten_at FROM files")
	if err != nil {
		return nil, fmt.Errorf("states: %w", err)
	}
	defer rows.Close()
	out := make(map[string]FileState)
	for rows.Next() {
		var f FileState
		var at sql.NullTime
		if err := rows.Scan(&f.ID, &f.Path, &f.Hash, &f.ConfigHash, &f.Specifiers, &at); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		if at.Valid {
			f.RewrittenAt = at.Time
		}
		out[f.Path] = f
	}
	return out, rows.Err()
}

// UpsertFile records f, replacing any earlier state for the same path.
func (s *Store) UpsertFile(f *FileState) error {
	return upsertFileTx(s.db, f)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertFileTx(db execer, f *FileState) error {
	_, err := db.Exec(
		`INSERT INTO files (path, hash, config_hash, specifiers, rewritten_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   hash = excluded.hash,
		   config_hash = excluded.config_hash,
		   specifiers = excluded.specifiers,
		   rewritten_at = excluded.rewritten_at`,
		f.Path, f.Hash, f.ConfigHash, f.Specifiers, f.RewrittenAt,
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	return nil
}

// DeleteFile forgets path. Deleting an unknown path is not an error.
func (s *Store) DeleteFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Reset drops all recorded file state so the next run rewrites everything.
// Run history is kept.
func (s *Store) Reset() error {
	if _, err := s.db.Exec("DELETE FROM files"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// --- Runs ---

// InsertRun records the start of a run and sets r.ID.
func (s *Store) InsertRun(r *Run) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs (config_file, started_at) VALUES (?, ?)",
		r.ConfigFile, r.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// FinishRun stores the totals of a completed run.
func (s *Store) FinishRun(r *Run) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, files_scanned = ?, files_changed = ?,
		   files_skipped = ?, specifiers_rewritten = ?, diagnostics = ?
		 WHERE id = ?`,
		r.FinishedAt, r.FilesScanned, r.FilesChanged, r.FilesSkipped,
		r.SpecifiersRewritten, r.Diagnostics, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run for configFile, or nil.
func (s *Store) LastRun(configFile string) (*Run, error) {
	r := &Run{}
	var finished sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, config_file, started_at, finished_at, files_scanned, files_changed,
		   files_skipped, specifiers_rewritten, diagnostics
		 FROM runs WHERE config_file = ? ORDER BY started_at DESC, id DESC LIMIT 1`, configFile,
	).Scan(&r.ID, &r.ConfigFile, &r.StartedAt, &finished, &r.FilesScanned, &r.FilesChanged,
		&r.FilesSkipped, &r.SpecifiersRewritten, &r.Diagnostics)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, nil
}
