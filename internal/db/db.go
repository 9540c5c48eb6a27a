package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/errors"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Init initializes the SQLite database at baseDir/salon.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.salon.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the connection string apply to every pooled connection.
	// _txlock=immediate takes the write lock at BeginTx.
	dbPath := filepath.Join(baseDir, "salon.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageIO(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStorageIO(err)
	}
	return nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS topics (
		  id               TEXT PRIMARY KEY,
		  title            TEXT NOT NULL,
		  description      TEXT NOT NULL DEFAULT '',
		  category         TEXT NOT NULL,
		  max_participants INTEGER NOT NULL,
		  max_rounds       INTEGER NOT NULL,
		  current_round    INTEGER NOT NULL DEFAULT 0,
		  phase            TEXT NOT NULL,
		  lector_id        TEXT,
		  created_at       INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_topics_phase_created
		ON topics(phase, created_at DESC);

		CREATE TABLE IF NOT EXISTS topic_participants (
		  topic_id       TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		  participant_id TEXT NOT NULL,
		  position       INTEGER NOT NULL,
		  name           TEXT NOT NULL,
		  domain         TEXT,
		  expertise_json TEXT,
		  role           TEXT NOT NULL,
		  scores_json    TEXT NOT NULL,
		  PRIMARY KEY (topic_id, participant_id)
		);

		CREATE TABLE IF NOT EXISTS contributions (
		  id               TEXT PRIMARY KEY,
		  topic_id         TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		  contributor_id   TEXT NOT NULL,
		  contributor_name TEXT NOT NULL,
		  role             TEXT NOT NULL,
		  round            INTEGER NOT NULL,
		  phase            TEXT NOT NULL,
		  text             TEXT NOT NULL,
		  scores_json      TEXT NOT NULL,
		  created_at       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_contributions_topic
		ON contributions(topic_id);

		CREATE TABLE IF NOT EXISTS insights (
		  id              TEXT PRIMARY KEY,
		  topic_id        TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		  text            TEXT NOT NULL,
		  source_ids_json TEXT NOT NULL,
		  insight_type    TEXT NOT NULL,
		  confidence      REAL NOT NULL,
		  created_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_insights_topic
		ON insights(topic_id);

		CREATE TABLE IF NOT EXISTS capsules (
		  id                        TEXT PRIMARY KEY,
		  topic_id                  TEXT NOT NULL,
		  title                     TEXT NOT NULL,
		  summary                   TEXT NOT NULL DEFAULT '',
		  insight                   TEXT NOT NULL DEFAULT '',
		  evidence_json             TEXT NOT NULL,
		  action_items_json         TEXT NOT NULL,
		  questions_json            TEXT NOT NULL,
		  truth_score               INTEGER NOT NULL DEFAULT 0,
		  goodness_score            INTEGER NOT NULL DEFAULT 0,
		  beauty_score              INTEGER NOT NULL DEFAULT 0,
		  intelligence_score        INTEGER NOT NULL DEFAULT 0,
		  confidence                REAL NOT NULL DEFAULT 0,
		  quality_score             REAL NOT NULL DEFAULT 0,
		  grade                     TEXT NOT NULL,
		  source_agents_json        TEXT NOT NULL,
		  source_contributions_json TEXT NOT NULL,
		  keywords_json             TEXT NOT NULL,
		  category                  TEXT NOT NULL,
		  status                    TEXT NOT NULL,
		  version                   INTEGER NOT NULL DEFAULT 1,
		  created_at                INTEGER NOT NULL,
		  updated_at                INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_capsules_quality_created
		ON capsules(quality_score DESC, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_capsules_status
		ON capsules(status);

		CREATE INDEX IF NOT EXISTS idx_capsules_category
		ON capsules(category);

		CREATE INDEX IF NOT EXISTS idx_capsules_topic
		ON capsules(topic_id);

		CREATE TABLE IF NOT EXISTS capsule_versions (
		  capsule_id    TEXT NOT NULL REFERENCES capsules(id) ON DELETE CASCADE,
		  version       INTEGER NOT NULL,
		  changes       TEXT NOT NULL DEFAULT '',
		  editor        TEXT NOT NULL DEFAULT '',
		  edited_at     INTEGER NOT NULL,
		  snapshot_json TEXT NOT NULL,
		  PRIMARY KEY (capsule_id, version)
		);

		-- Full-text index over the searchable capsule fields. List columns are
		-- flattened from their JSON arrays so the tokenizer sees plain words.
		CREATE VIRTUAL TABLE IF NOT EXISTS capsules_fts USING fts5(
		  title, insight, evidence, action_items, questions, keywords
		);

		CREATE TRIGGER IF NOT EXISTS capsules_ai AFTER INSERT ON capsules BEGIN
		  INSERT INTO capsules_fts(rowid, title, insight, evidence, action_items, questions, keywords)
		  VALUES (
		    new.rowid, new.title, new.insight,
		    (SELECT group_concat(value, ' ') FROM json_each(new.evidence_json)),
		    (SELECT group_concat(value, ' ') FROM json_each(new.action_items_json)),
		    (SELECT group_concat(value, ' ') FROM json_each(new.questions_json)),
		    (SELECT group_concat(value, ' ') FROM json_each(new.keywords_json))
		  );
		END;

		CREATE TRIGGER IF NOT EXISTS capsules_ad AFTER DELETE ON capsules BEGIN
		  DELETE FROM capsules_fts WHERE rowid = old.rowid;
		END;

		CREATE TRIGGER IF NOT EXISTS capsules_au AFTER UPDATE ON capsules BEGIN
		  DELETE FROM capsules_fts WHERE rowid = old.rowid;
		  INSERT INTO capsules_fts(rowid, title, insight, evidence, action_items, questions, keywords)
		  VALUES (
		    new.rowid, new.title, new.insight,
		    (SELECT group_concat(value, ' ') FROM json_each(new.evidence_json)),
		    (SELECT group_concat(value, ' ') FROM json_each(new.action_items_json)),
		    (SELECT group_concat(value, ' ') FROM json_each(new.questions_json)),
		    (SELECT group_concat(value, ' ') FROM json_each(new.keywords_json))
		  );
		END;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
