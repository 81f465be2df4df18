package textindex

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// SQLiteIndex implements Index using SQLite FTS5, the default backend.
// WAL mode lets the watchdog-supervised daemon and an
// interactive CLI query the same data directory concurrently.
type SQLiteIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    Config
	closed    bool
	stopWords map[string]struct{}
}

var _ Index = (*SQLiteIndex)(nil)

// validateSQLiteIntegrity mirrors the corruption check used for the HNSW
// vector store: a FTS5 index that fails PRAGMA integrity_check or is
// missing its virtual table is cleared and rebuilt rather than left to
// fail opaquely on the next query.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_content'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_content' missing")
	}

	return nil
}

// NewSQLiteIndex opens (or creates) a FTS5-backed index at path. An empty
// path opens an in-memory index, used by tests.
func NewSQLiteIndex(path string, config Config) (*SQLiteIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.IOError(fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("textindex_sqlite_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, errors.New(errors.ErrCodeCorruptIndex,
					fmt.Sprintf("BM25 index corrupted at %s and cannot remove", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("textindex_sqlite_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.IOError("failed to open BM25 database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
	}

	idx := &SQLiteIndex{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordSet(config.StopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (doc_id TEXT PRIMARY KEY);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteIndex) preprocess(content string) string {
	tokens := Tokenize(content)
	tokens = FilterStopWords(tokens, s.stopWords)
	return strings.Join(tokens, " ")
}

// Index inserts or replaces documents. FTS5 has no native upsert, so each
// document is deleted then reinserted within the same batch.
func (s *SQLiteIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.InternalError("BM25 index is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, doc.ID); err != nil {
			return errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fts_content (doc_id, content) VALUES (?, ?)`, doc.ID, s.preprocess(doc.Content)); err != nil {
			return errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO doc_ids (doc_id) VALUES (?)`, doc.ID); err != nil {
			return errors.Wrap(errors.ErrCodeIndexFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// Search tokenizes the query the same way documents were indexed, then
// runs a FTS5 MATCH. bm25() returns negative values where lower is
// better; the sign is flipped so higher-is-better holds across backends.
func (s *SQLiteIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.InternalError("BM25 index is closed", nil)
	}

	if strings.TrimSpace(query) == "" {
		return []*Result{}, nil
	}

	processed := s.preprocess(query)
	if processed == "" {
		return []*Result{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE fts_content MATCH ?
		ORDER BY score
		LIMIT ?`, processed, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Result
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}
		results = append(results, &Result{DocID: docID, Score: -score})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}

	return results, nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.InternalError("BM25 index is closed", nil)
	}

	placeholders := make([]string, len(docIDs))
	args := make([]interface{}, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM fts_content WHERE doc_id IN (%s)`, in), args...); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM doc_ids WHERE doc_id IN (%s)`, in), args...); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}

	return tx.Commit()
}

func (s *SQLiteIndex) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.InternalError("BM25 index is closed", nil)
	}

	rows, err := s.db.Query(`SELECT doc_id FROM doc_ids`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteIndex) Stats() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &Stats{}
	}

	var count int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count)
	return &Stats{DocumentCount: count}
}

// Save forces a WAL checkpoint so the on-disk file reflects all committed
// writes without waiting for SQLite's automatic checkpoint.
func (s *SQLiteIndex) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.InternalError("BM25 index is closed", nil)
	}
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// Load closes the current connection and reopens at path, re-running
// integrity validation and schema setup.
func (s *SQLiteIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil && !s.closed {
		_ = s.db.Close()
	}

	reopened, err := NewSQLiteIndex(path, s.config)
	if err != nil {
		return err
	}

	s.db = reopened.db
	s.path = path
	s.closed = false
	return nil
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
		return s.db.Close()
	}
	return nil
}
