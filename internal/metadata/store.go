package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// SQLiteStore implements Store on top of a single SQLite database file in
// WAL mode with a single writer connection.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// DB exposes the underlying connection for sibling stores that share the
// same database file (the local query-telemetry tables live here too).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// NewSQLiteStore opens or creates the metadata database at path, applies
// WAL journaling and the pragmas needed for concurrent access, then runs
// any pending schema migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != "" {
		if dir := dirOf(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.IOError("failed to create metadata directory", err)
			}
		}
	}

	dsn := path
	if path == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.IOError("failed to open metadata database", err)
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
		"PRAGMA mmap_size = 268435456",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.IOError("failed to set pragma "+pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}

	snapshotPath, err := snapshotBeforeMigration(path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		if restoreErr := restoreSnapshot(snapshotPath, path); restoreErr != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("migration failed (%w) and rollback failed: %v", err, restoreErr))
		}
		return nil, err
	}

	return s, nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// -- Files -------------------------------------------------------------

func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, path, size, mod_time, content_hash, language, content_type, privacy_level, indexed_at, inode_device)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path=excluded.path, size=excluded.size, mod_time=excluded.mod_time,
			content_hash=excluded.content_hash, language=excluded.language,
			content_type=excluded.content_type,
			indexed_at=excluded.indexed_at, inode_device=excluded.inode_device`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = stmt.Close() }()

	// privacy_level is only set on first insert; a reindex must not reset
	// a level the user changed, so the conflict clause leaves it alone and
	// updates go through SetFilePrivacy.
	for _, f := range files {
		privacy := f.PrivacyLevel
		if privacy == "" {
			privacy = PrivacyNormal
		}
		if _, err := stmt.ExecContext(ctx, f.ID, f.Path, f.Size, f.ModTime.Unix(),
			f.ContentHash, f.Language, string(f.ContentType), string(privacy), f.IndexedAt.Unix(), f.InodeDevice); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err)
		}
	}

	return tx.Commit()
}

// GetFileByPath looks up a file by path, returning (nil, nil) when no file
// is recorded there.
func (s *SQLiteStore) GetFileByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, size, mod_time, content_hash, language, content_type, privacy_level, indexed_at, inode_device
		FROM files WHERE path = ?`, path)
	f, err := scanFile(row)
	if e, ok := err.(*errors.EngineError); ok && e.Code == errors.ErrCodeFileNotFound {
		return nil, nil
	}
	return f, err
}

// GetFile looks up a file by its content-addressable ID, used by the search
// engine to resolve a chunk's owning path for scope filtering and display.
func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, size, mod_time, content_hash, language, content_type, privacy_level, indexed_at, inode_device
		FROM files WHERE id = ?`, id)
	return scanFile(row)
}

func scanFile(row *sql.Row) (*File, error) {
	var f File
	var modTime, indexedAt int64
	var contentType, privacy string
	if err := row.Scan(&f.ID, &f.Path, &f.Size, &modTime, &f.ContentHash, &f.Language, &contentType, &privacy, &indexedAt, &f.InodeDevice); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeFileNotFound, "file not found", err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	f.ModTime = time.Unix(modTime, 0)
	f.IndexedAt = time.Unix(indexedAt, 0)
	f.ContentType = ContentType(contentType)
	f.PrivacyLevel = PrivacyLevel(privacy)
	return &f, nil
}

// SetFilePrivacy updates one file's privacy level (the "privacy change"
// mutation of the file lifecycle).
func (s *SQLiteStore) SetFilePrivacy(ctx context.Context, fileID string, level PrivacyLevel) error {
	res, err := s.db.ExecContext(ctx, `UPDATE files SET privacy_level = ? WHERE id = ?`,
		string(level), fileID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeFileNotFound, "file not found", nil)
	}
	return nil
}

func (s *SQLiteStore) GetFilesForReconciliation(ctx context.Context) (map[string]*File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, size, mod_time, content_hash, language, content_type, privacy_level, indexed_at, inode_device FROM files`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*File)
	for rows.Next() {
		var f File
		var modTime, indexedAt int64
		var contentType, privacy string
		if err := rows.Scan(&f.ID, &f.Path, &f.Size, &modTime, &f.ContentHash, &f.Language, &contentType, &privacy, &indexedAt, &f.InodeDevice); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		f.ModTime = time.Unix(modTime, 0)
		f.IndexedAt = time.Unix(indexedAt, 0)
		f.ContentType = ContentType(contentType)
		f.PrivacyLevel = PrivacyLevel(privacy)
		out[f.Path] = &f
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = ?`, fileID); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return tx.Commit()
}

// -- Chunks --------------------------------------------------------------

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_id, content, content_type, language, start_line, end_line, start_byte, end_byte, page, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, metadata=excluded.metadata, updated_at=excluded.updated_at`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		meta, _ := json.Marshal(c.Metadata)
		if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, c.Content, string(c.ContentType), c.Language,
			c.StartLine, c.EndLine, c.StartByte, c.EndByte, c.Page, string(meta), c.CreatedAt.Unix(), c.UpdatedAt.Unix()); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, content, content_type, language, start_line, end_line, start_byte, end_byte, page, metadata, created_at, updated_at
		FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

func scanChunk(row *sql.Row) (*Chunk, error) {
	var c Chunk
	var contentType, meta string
	var created, updated int64
	if err := row.Scan(&c.ID, &c.FileID, &c.Content, &contentType, &c.Language, &c.StartLine, &c.EndLine,
		&c.StartByte, &c.EndByte, &c.Page, &meta, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeFileNotFound, "chunk not found", err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	c.ContentType = ContentType(contentType)
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &c.Metadata)
	}
	return &c, nil
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, content, content_type, language, start_line, end_line, start_byte, end_byte, page, metadata, created_at, updated_at
		FROM chunks WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Chunk
	for rows.Next() {
		var c Chunk
		var contentType, meta string
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.FileID, &c.Content, &contentType, &c.Language, &c.StartLine, &c.EndLine,
			&c.StartByte, &c.EndByte, &c.Page, &meta, &created, &updated); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		c.ContentType = ContentType(contentType)
		c.CreatedAt = time.Unix(created, 0)
		c.UpdatedAt = time.Unix(updated, 0)
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &c.Metadata)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// -- Tags --------------------------------------------------------------

const maxTagDepth = 3

func (s *SQLiteStore) SaveTag(ctx context.Context, tag *Tag) error {
	if tag.Depth >= maxTagDepth {
		return errors.ValidationError(fmt.Sprintf("tag depth %d exceeds maximum of %d", tag.Depth, maxTagDepth), nil)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, parent_id, depth, sensitive, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, sensitive=excluded.sensitive`,
		tag.ID, tag.Name, tag.ParentID, tag.Depth, tag.Sensitive, tag.CreatedAt.Unix())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) GetTag(ctx context.Context, id string) (*Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, parent_id, depth, sensitive, created_at FROM tags WHERE id = ?`, id)
	var t Tag
	var created int64
	if err := row.Scan(&t.ID, &t.Name, &t.ParentID, &t.Depth, &t.Sensitive, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeFileNotFound, "tag not found", err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	t.CreatedAt = time.Unix(created, 0)
	return &t, nil
}

func (s *SQLiteStore) FindTagByName(ctx context.Context, parentID, name string) (*Tag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, parent_id, depth, sensitive, created_at
		FROM tags WHERE parent_id = ? AND name = ?`, parentID, name)
	var t Tag
	var created int64
	if err := row.Scan(&t.ID, &t.Name, &t.ParentID, &t.Depth, &t.Sensitive, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeFileNotFound, "tag not found", err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	t.CreatedAt = time.Unix(created, 0)
	return &t, nil
}

func (s *SQLiteStore) ListAllTags(ctx context.Context) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id, depth, sensitive, created_at FROM tags`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Tag
	for rows.Next() {
		var t Tag
		var created int64
		if err := rows.Scan(&t.ID, &t.Name, &t.ParentID, &t.Depth, &t.Sensitive, &created); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		t.CreatedAt = time.Unix(created, 0)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// DeleteTag removes a tag and, via the tags/file_tags foreign keys'
// ON DELETE CASCADE, every file_tags row referencing it. Reparenting any
// children of the deleted tag is the caller's responsibility (internal/tag
// resolves that before calling this, since the desired destination for
// orphaned children is a tag-command policy choice, not a storage one).
func (s *SQLiteStore) DeleteTag(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) ReparentTag(ctx context.Context, tagID, newParentID string, newDepth int) error {
	if newDepth >= maxTagDepth {
		return errors.ValidationError(fmt.Sprintf("tag depth %d exceeds maximum of %d", newDepth, maxTagDepth), nil)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tags SET parent_id = ?, depth = ? WHERE id = ?`, newParentID, newDepth, tagID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) ListChildTags(ctx context.Context, parentID string) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id, depth, sensitive, created_at FROM tags WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Tag
	for rows.Next() {
		var t Tag
		var created int64
		if err := rows.Scan(&t.ID, &t.Name, &t.ParentID, &t.Depth, &t.Sensitive, &created); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		t.CreatedAt = time.Unix(created, 0)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AssignTag(ctx context.Context, rel *FileTagRelation) error {
	confirmed := rel.Confirmed
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_tags (file_id, tag_id, source, confidence, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, tag_id) DO UPDATE SET
			source=excluded.source, confidence=excluded.confidence, confirmed=excluded.confirmed`,
		rel.FileID, rel.TagID, string(rel.Source), rel.Confidence, confirmed, rel.CreatedAt.Unix())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) ConfirmTag(ctx context.Context, fileID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE file_tags SET confirmed = 1 WHERE file_id = ? AND tag_id = ?`, fileID, tagID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveFileTag(ctx context.Context, fileID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = ? AND tag_id = ?`, fileID, tagID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) ListFilesByTag(ctx context.Context, tagID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_id FROM file_tags WHERE tag_id = ?`, tagID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReassignFileTags moves every file_tags row from oldTagID to newTagID,
// used by tag merge. A file already tagged with both keeps the newTagID
// row (INSERT OR IGNORE) and its old-tag row is dropped, so merging never
// produces a duplicate (file_id, tag_id) primary key violation.
func (s *SQLiteStore) ReassignFileTags(ctx context.Context, oldTagID, newTagID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO file_tags (file_id, tag_id, source, confidence, confirmed, created_at)
		SELECT file_id, ?, source, confidence, confirmed, created_at FROM file_tags WHERE tag_id = ?`,
		newTagID, oldTagID); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE tag_id = ?`, oldTagID); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) GetFileTags(ctx context.Context, fileID string) ([]*FileTagRelation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, tag_id, source, confidence, confirmed, created_at FROM file_tags WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*FileTagRelation
	for rows.Next() {
		var r FileTagRelation
		var source string
		var created int64
		if err := rows.Scan(&r.FileID, &r.TagID, &source, &r.Confidence, &r.Confirmed, &created); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		r.Source = TagSource(source)
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// -- Relations ---------------------------------------------------------

func (s *SQLiteStore) SaveRelation(ctx context.Context, rel *FileRelation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_relations (id, file_a_id, file_b_id, kind, similarity, feedback, user_strength, reject_reason, block_similar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			similarity=excluded.similarity, feedback=excluded.feedback,
			user_strength=excluded.user_strength, reject_reason=excluded.reject_reason,
			block_similar=excluded.block_similar, updated_at=excluded.updated_at`,
		rel.ID, rel.FileAID, rel.FileBID, string(rel.Kind), rel.Similarity, string(rel.Feedback),
		rel.UserStrength, rel.RejectReason, rel.BlockSimilar, rel.CreatedAt.Unix(), rel.UpdatedAt.Unix())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func scanFileRelation(row interface {
	Scan(dest ...any) error
}) (*FileRelation, error) {
	var r FileRelation
	var kind, feedback string
	var created, updated int64
	if err := row.Scan(&r.ID, &r.FileAID, &r.FileBID, &kind, &r.Similarity, &feedback,
		&r.UserStrength, &r.RejectReason, &r.BlockSimilar, &created, &updated); err != nil {
		return nil, err
	}
	r.Kind = RelationKind(kind)
	r.Feedback = FeedbackState(feedback)
	r.CreatedAt = time.Unix(created, 0)
	r.UpdatedAt = time.Unix(updated, 0)
	return &r, nil
}

const relationColumns = `id, file_a_id, file_b_id, kind, similarity, feedback, user_strength, reject_reason, block_similar, created_at, updated_at`

func (s *SQLiteStore) GetRelation(ctx context.Context, id string) (*FileRelation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+relationColumns+` FROM file_relations WHERE id = ?`, id)
	r, err := scanFileRelation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeFileNotFound, "relation not found", err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	return r, nil
}

// SetRelationFeedback applies a feedback transition, validating it against
// FeedbackState.CanTransitionTo. rejectReason/blockSimilar are only
// meaningful when feedback is FeedbackRejected; userStrength only when
// feedback is FeedbackAdjusted.
func (s *SQLiteStore) SetRelationFeedback(ctx context.Context, id string, feedback FeedbackState, userStrength float64, rejectReason string, blockSimilar bool) error {
	existing, err := s.GetRelation(ctx, id)
	if err != nil {
		return err
	}
	if !existing.Feedback.CanTransitionTo(feedback) {
		return errors.ValidationError(fmt.Sprintf("illegal feedback transition %s -> %s", existing.Feedback, feedback), nil)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE file_relations
		SET feedback = ?, user_strength = ?, reject_reason = ?, block_similar = ?, updated_at = ?
		WHERE id = ?`,
		string(feedback), userStrength, rejectReason, blockSimilar, time.Now().Unix(), id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) ListRelationsForFile(ctx context.Context, fileID string) ([]*FileRelation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationColumns+`
		FROM file_relations WHERE file_a_id = ? OR file_b_id = ?`, fileID, fileID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*FileRelation
	for rows.Next() {
		r, err := scanFileRelation(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsBlocked reports whether an active file_pair rule exists for the pair,
// order-independent. internal/relation's rule engine uses
// ListActiveBlockRules for the other four rule types (file-to-tag,
// tag-pair, file-all-ai, relation-kind), which need tag/kind context this
// store layer doesn't have.
func (s *SQLiteStore) IsBlocked(ctx context.Context, pathA, pathB string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM block_rules
		WHERE rule_type = 'file_pair'
		  AND ((path_a = ? AND path_b = ?) OR (path_a = ? AND path_b = ?))
		  AND (expires_at = 0 OR expires_at > ?)`,
		pathA, pathB, pathB, pathA, time.Now().Unix())
	var count int
	if err := row.Scan(&count); err != nil {
		return false, errors.Wrap(errors.ErrCodeInternal, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) AddBlockRule(ctx context.Context, rule *BlockRule) error {
	ruleType := rule.Type
	if ruleType == "" {
		ruleType = BlockRuleFilePair
	}
	var expires int64
	if !rule.ExpiresAt.IsZero() {
		expires = rule.ExpiresAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_rules (id, path_a, path_b, rule_type, tag_a, tag_b, relation_kind, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.PathA, rule.PathB, string(ruleType), rule.TagA, rule.TagB, string(rule.RelationKind),
		expires, rule.CreatedAt.Unix())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// ListActiveBlockRules returns every rule whose expiry (if any) has not
// passed, for internal/relation's full rule-type evaluation.
func (s *SQLiteStore) ListActiveBlockRules(ctx context.Context) ([]*BlockRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path_a, path_b, rule_type, tag_a, tag_b, relation_kind, expires_at, created_at
		FROM block_rules
		WHERE expires_at = 0 OR expires_at > ?`, time.Now().Unix())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*BlockRule
	for rows.Next() {
		var r BlockRule
		var ruleType, relKind string
		var expires, created int64
		if err := rows.Scan(&r.ID, &r.PathA, &r.PathB, &ruleType, &r.TagA, &r.TagB, &relKind, &expires, &created); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		r.Type = BlockRuleType(ruleType)
		r.RelationKind = RelationKind(relKind)
		if expires > 0 {
			r.ExpiresAt = time.Unix(expires, 0)
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// -- Sessions ----------------------------------------------------------

func (s *SQLiteStore) OpenSession(ctx context.Context) (*Session, error) {
	sess := &Session{ID: newSessionID(), StartedAt: time.Now()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, started_at, ended_at) VALUES (?, ?, 0)`,
		sess.ID, sess.StartedAt.Unix())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	return sess, nil
}

func (s *SQLiteStore) RecordSessionAccess(ctx context.Context, access *SessionFileAccess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_file_access (session_id, file_id, accessed_at) VALUES (?, ?, ?)`,
		access.SessionID, access.FileID, access.AccessedAt.Unix())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now().Unix(), sessionID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// GetCoOccurringFiles returns, for the given file, how many sessions within
// the lookback window also touched each other file, the raw co-occurrence
// signal behind same-session relations.
func (s *SQLiteStore) GetCoOccurringFiles(ctx context.Context, fileID string, within time.Duration) (map[string]int, error) {
	cutoff := time.Now().Add(-within).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.file_id, COUNT(*) FROM session_file_access a
		JOIN session_file_access b ON a.session_id = b.session_id AND b.file_id != a.file_id
		WHERE a.file_id = ? AND a.accessed_at >= ?
		GROUP BY b.file_id`, fileID, cutoff)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		out[id] = count
	}
	return out, rows.Err()
}

// -- Index tasks -------------------------------------------------------

func (s *SQLiteStore) EnqueueTask(ctx context.Context, task *IndexTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_tasks (id, file_path, priority, state, retry_count, last_error, next_retry_at, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state=excluded.state, priority=excluded.priority, updated_at=excluded.updated_at`,
		task.ID, task.FilePath, task.Priority, string(task.State), task.RetryCount, task.LastError,
		unixOrZero(task.NextRetryAt), task.EnqueuedAt.Unix(), task.UpdatedAt.Unix())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// NextTask returns the next runnable task: pending ones, plus failed ones
// whose persisted backoff deadline has passed. Ordering prefers priority,
// then the earliest-due retry, then enqueue order.
func (s *SQLiteStore) NextTask(ctx context.Context) (*IndexTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, priority, state, retry_count, last_error, next_retry_at, enqueued_at, updated_at
		FROM index_tasks
		WHERE state = ? OR (state = ? AND next_retry_at <= ?)
		ORDER BY priority DESC, next_retry_at ASC, enqueued_at ASC LIMIT 1`,
		string(TaskPending), string(TaskFailed), time.Now().Unix())
	return scanTask(row)
}

func scanTask(row *sql.Row) (*IndexTask, error) {
	var t IndexTask
	var state string
	var nextRetry, enqueued, updated int64
	if err := row.Scan(&t.ID, &t.FilePath, &t.Priority, &state, &t.RetryCount, &t.LastError, &nextRetry, &enqueued, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	t.State = TaskState(state)
	if nextRetry > 0 {
		t.NextRetryAt = time.Unix(nextRetry, 0)
	}
	t.EnqueuedAt = time.Unix(enqueued, 0)
	t.UpdatedAt = time.Unix(updated, 0)
	return &t, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (s *SQLiteStore) UpdateTaskState(ctx context.Context, id string, state TaskState, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_tasks SET state = ?, last_error = ?, next_retry_at = 0, updated_at = ?
		WHERE id = ?`, string(state), lastErr, time.Now().Unix(), id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// ScheduleTaskRetry moves a task to failed with its backoff deadline
// persisted, so the task survives a restart mid-wait; NextTask picks it
// back up once nextRetryAt passes.
func (s *SQLiteStore) ScheduleTaskRetry(ctx context.Context, id string, lastErr string, nextRetryAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_tasks SET state = ?, last_error = ?, next_retry_at = ?,
			retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?`, string(TaskFailed), lastErr, nextRetryAt.Unix(), time.Now().Unix(), id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// RequeueProcessingTasks resets tasks stranded in processing back to
// pending. Run at startup: a task can only still be processing then if a
// previous run died mid-task.
func (s *SQLiteStore) RequeueProcessingTasks(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE index_tasks SET state = ?, updated_at = ? WHERE state = ?`,
		string(TaskPending), time.Now().Unix(), string(TaskProcessing))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) CountTasksByState(ctx context.Context, state TaskState) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_tasks WHERE state = ?`, string(state))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err)
	}
	return count, nil
}

func (s *SQLiteStore) ListDeadLetter(ctx context.Context, limit int) ([]*IndexTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, priority, state, retry_count, last_error, next_retry_at, enqueued_at, updated_at
		FROM index_tasks WHERE state = ? ORDER BY updated_at DESC LIMIT ?`, string(TaskDeadLetter), limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*IndexTask
	for rows.Next() {
		var t IndexTask
		var state string
		var nextRetry, enqueued, updated int64
		if err := rows.Scan(&t.ID, &t.FilePath, &t.Priority, &state, &t.RetryCount, &t.LastError, &nextRetry, &enqueued, &updated); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		t.State = TaskState(state)
		if nextRetry > 0 {
			t.NextRetryAt = time.Unix(nextRetry, 0)
		}
		t.EnqueuedAt = time.Unix(enqueued, 0)
		t.UpdatedAt = time.Unix(updated, 0)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RequeueDeadLetter(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_tasks SET state = ?, retry_count = 0, next_retry_at = 0, updated_at = ? WHERE id = ? AND state = ?`,
		string(TaskPending), time.Now().Unix(), id, string(TaskDeadLetter))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// ClearDeadLetter deletes every dead-lettered task, for the command
// surface's "clear_dead_letter" operation. Returns the count
// removed.
func (s *SQLiteStore) ClearDeadLetter(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM index_tasks WHERE state = ?`, string(TaskDeadLetter))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err)
	}
	return int(n), nil
}

// -- State key/value (checkpoints, embedding dimension tracking) -----------

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.Wrap(errors.ErrCodeInternal, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// -- Cloud usage -----------------------------------

// GetCloudUsage returns the aggregate for month ("YYYY-MM"), or a zero-value
// record if nothing has been recorded yet.
func (s *SQLiteStore) GetCloudUsage(ctx context.Context, month string) (*CloudUsage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT month, request_count, token_count, cost_estimate_micros, updated_at
		FROM cloud_usage WHERE month = ?`, month)

	var u CloudUsage
	var updated int64
	if err := row.Scan(&u.Month, &u.RequestCount, &u.TokenCount, &u.CostEstimateMicros, &updated); err != nil {
		if err == sql.ErrNoRows {
			return &CloudUsage{Month: month}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	u.UpdatedAt = time.Unix(updated, 0)
	return &u, nil
}

// RecordCloudUsage adds requests/tokens/costMicros to month's running total
// and returns the updated aggregate. The caller (internal/infer's cost
// tracker) calls this once per completed remote call.
func (s *SQLiteStore) RecordCloudUsage(ctx context.Context, month string, requests, tokens, costMicros int64) (*CloudUsage, error) {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cloud_usage (month, request_count, token_count, cost_estimate_micros, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(month) DO UPDATE SET
			request_count = request_count + excluded.request_count,
			token_count = token_count + excluded.token_count,
			cost_estimate_micros = cost_estimate_micros + excluded.cost_estimate_micros,
			updated_at = excluded.updated_at`,
		month, requests, tokens, costMicros, now)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	return s.GetCloudUsage(ctx, month)
}

// AppliedMigrations returns the schema_migrations ledger.
func (s *SQLiteStore) AppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var out []MigrationRecord
	for rows.Next() {
		var m MigrationRecord
		var applied int64
		if err := rows.Scan(&m.Version, &m.Name, &m.Checksum, &applied); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err)
		}
		m.AppliedAt = time.Unix(applied, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}
