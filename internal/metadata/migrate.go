package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// migration is one forward-only schema step. Checksum guards against a
// migration's SQL being edited after it has already been applied to a
// database — the runner refuses to continue rather than silently diverge.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations is the append-only ledger. Add new entries at the end; never
// edit or remove an applied one.
var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		sql: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL,
			mod_time INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			language TEXT NOT NULL,
			content_type TEXT NOT NULL,
			indexed_at INTEGER NOT NULL,
			inode_device TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_files_inode ON files(inode_device);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			content_type TEXT NOT NULL,
			language TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			start_byte INTEGER NOT NULL,
			end_byte INTEGER NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);
		`,
	},
	{
		version: 2,
		name:    "tags_and_relations",
		sql: `
		CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			depth INTEGER NOT NULL DEFAULT 0,
			sensitive INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tags_parent ON tags(parent_id);

		CREATE TABLE IF NOT EXISTS file_tags (
			file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			confirmed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (file_id, tag_id)
		);

		CREATE TABLE IF NOT EXISTS file_relations (
			id TEXT PRIMARY KEY,
			file_a_id TEXT NOT NULL,
			file_b_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			similarity REAL NOT NULL DEFAULT 0,
			feedback TEXT NOT NULL DEFAULT 'none',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_relations_a ON file_relations(file_a_id);
		CREATE INDEX IF NOT EXISTS idx_relations_b ON file_relations(file_b_id);

		CREATE TABLE IF NOT EXISTS block_rules (
			id TEXT PRIMARY KEY,
			path_a TEXT NOT NULL,
			path_b TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		`,
	},
	{
		version: 3,
		name:    "sessions_and_tasks",
		sql: `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS session_file_access (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			file_id TEXT NOT NULL,
			accessed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_access_file ON session_file_access(file_id);
		CREATE INDEX IF NOT EXISTS idx_session_access_session ON session_file_access(session_id);

		CREATE TABLE IF NOT EXISTS index_tasks (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			enqueued_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_state ON index_tasks(state, priority);
		`,
	},
	{
		version: 4,
		name:    "cloud_usage",
		sql: `
		CREATE TABLE IF NOT EXISTS cloud_usage (
			month TEXT PRIMARY KEY,
			request_count INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			cost_estimate_micros INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);
		`,
	},
	{
		version: 5,
		name:    "relation_feedback_detail_and_block_rule_kinds",
		sql: `
		ALTER TABLE file_relations ADD COLUMN user_strength REAL NOT NULL DEFAULT 0;
		ALTER TABLE file_relations ADD COLUMN reject_reason TEXT NOT NULL DEFAULT '';
		ALTER TABLE file_relations ADD COLUMN block_similar INTEGER NOT NULL DEFAULT 0;

		ALTER TABLE block_rules ADD COLUMN rule_type TEXT NOT NULL DEFAULT 'file_pair';
		ALTER TABLE block_rules ADD COLUMN tag_a TEXT NOT NULL DEFAULT '';
		ALTER TABLE block_rules ADD COLUMN tag_b TEXT NOT NULL DEFAULT '';
		ALTER TABLE block_rules ADD COLUMN relation_kind TEXT NOT NULL DEFAULT '';
		ALTER TABLE block_rules ADD COLUMN expires_at INTEGER NOT NULL DEFAULT 0;
		`,
	},
	{
		version: 6,
		name:    "index_task_next_retry_at",
		sql: `
		ALTER TABLE index_tasks ADD COLUMN next_retry_at INTEGER NOT NULL DEFAULT 0;
		CREATE INDEX IF NOT EXISTS idx_tasks_retry ON index_tasks(state, next_retry_at);
		`,
	},
	{
		version: 7,
		name:    "file_privacy_level",
		sql: `
		ALTER TABLE files ADD COLUMN privacy_level TEXT NOT NULL DEFAULT 'normal';
		`,
	},
}

// migrate applies all pending migrations in a single transaction each,
// verifying the checksum of already-applied migrations against the running
// binary's copy before applying anything new. On any failure, the file-level
// snapshot taken before this call is left untouched for the caller to
// restore from.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}

	applied := make(map[int]string)
	rows, err := s.db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	for rows.Next() {
		var v int
		var sum string
		if err := rows.Scan(&v, &sum); err != nil {
			_ = rows.Close()
			return errors.Wrap(errors.ErrCodeInternal, err)
		}
		applied[v] = sum
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	_ = rows.Close()

	for _, m := range migrations {
		sum := checksum(m.sql)
		if existing, ok := applied[m.version]; ok {
			if existing != sum {
				return errors.New(errors.ErrCodeCorruptIndex,
					fmt.Sprintf("migration %d (%s) checksum mismatch: database was migrated by a different binary version", m.version, m.name), nil)
			}
			continue
		}

		if err := s.applyMigration(ctx, m, sum); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, m migration, sum string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return errors.New(errors.ErrCodeCorruptIndex, fmt.Sprintf("migration %d (%s) failed", m.version, m.name), err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`,
		m.version, m.name, sum, time.Now().Unix()); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}

	return tx.Commit()
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// snapshotBeforeMigration copies the database file aside before a risky
// operation, following the same "copy then mutate" idiom as the user
// config's BackupUserConfig (internal/config/backup.go), applied here to a
// SQLite file instead of a YAML one.
func snapshotBeforeMigration(path string) (string, error) {
	if path == "" {
		return "", nil // in-memory database, nothing to snapshot
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.IOError("failed to read database for snapshot", err)
	}

	snapshotPath := fmt.Sprintf("%s.backup.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(snapshotPath, data, 0644); err != nil {
		return "", errors.IOError("failed to write database snapshot", err)
	}
	return snapshotPath, nil
}

// restoreSnapshot copies a prior snapshot back over path, used when a
// migration fails partway and the caller chooses to roll back rather than
// retry forward.
func restoreSnapshot(snapshotPath, path string) error {
	if snapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return errors.IOError("failed to read snapshot", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.IOError("failed to restore snapshot", err)
	}
	return nil
}
