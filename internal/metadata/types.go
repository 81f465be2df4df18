// Package metadata persists the engine's durable state: files, content
// chunks, tags, relations, block rules, sessions, index tasks, and schema
// migration records, all in a single SQLite database.
package metadata

import (
	"context"
	"fmt"
	"time"
)

// ContentType classifies a chunk's source content.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypePDF      ContentType = "pdf"
	ContentTypeImage    ContentType = "image"
	ContentTypeText     ContentType = "text"
)

// PrivacyLevel grades how freely a file's existence and content may be
// used outside plain local search.
type PrivacyLevel string

const (
	// PrivacyNormal files participate everywhere.
	PrivacyNormal PrivacyLevel = "normal"
	// PrivacySensitive files surface in search but are flagged for the
	// shell to render guarded.
	PrivacySensitive PrivacyLevel = "sensitive"
	// PrivacyPrivate files are excluded from relation generation and
	// from any remote inference dispatch.
	PrivacyPrivate PrivacyLevel = "private"
)

// File is a tracked filesystem entry.
type File struct {
	ID          string // SHA256(absolute_path)
	Path        string // Absolute path
	Size        int64
	ModTime     time.Time
	ContentHash string // SHA256 of content, empty until first successful index
	Language    string
	ContentType ContentType
	// PrivacyLevel defaults to normal; private suppresses relation
	// generation and remote inference for this file.
	PrivacyLevel PrivacyLevel
	IndexedAt    time.Time
	// InodeDevice identifies the file across renames on platforms that
	// expose stable inode numbers.
	InodeDevice string
}

// Chunk is a retrievable content unit produced by parsing.
type Chunk struct {
	ID          string // SHA256(file_id + content) — content-addressable, stable across line shifts
	FileID      string
	Content     string
	ContentType ContentType
	Language    string
	// Location is format-specific: byte/line range for text, page+bbox for PDFs/images.
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
	Page      int // 0 for non-paginated formats
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TagSource records how a tag assignment was produced.
type TagSource string

const (
	TagSourceManual  TagSource = "manual"
	TagSourceAuto    TagSource = "auto"
	TagSourceLLM     TagSource = "llm"
)

// Tag is a user- or engine-assigned label, optionally hierarchical to a
// maximum depth of 3.
type Tag struct {
	ID        string
	Name      string
	ParentID  string // empty for root tags
	Depth     int    // 0-2, enforced at creation
	Sensitive bool   // never auto-confirmed when true
	CreatedAt time.Time
}

// FileTagRelation links a file to a tag with confidence and confirmation
// state.
type FileTagRelation struct {
	FileID     string
	TagID      string
	Source     TagSource
	Confidence float64 // 0-1, 1.0 for manual
	Confirmed  bool
	CreatedAt  time.Time
}

// RelationKind classifies a file-to-file relationship.
type RelationKind string

const (
	RelationSimilarContent RelationKind = "similar_content"
	RelationCoOccurrence   RelationKind = "co_occurrence"
	RelationManual         RelationKind = "manual"
)

// FeedbackState is the human-in-the-loop state machine for AI-suggested
// relations. Allowed transitions:
//
//	None      -> Confirmed | Rejected | Adjusted
//	Confirmed -> Rejected | Adjusted
//	Rejected  -> Confirmed                        (Adjusted forbidden from Rejected)
//	Adjusted  -> Confirmed | Rejected
//
// Rejected and Adjusted are terminal from the engine's perspective: once a
// relation carries either state, only a human correction (via one of the
// transitions above) ever moves it again, never an automatic re-suggestion.
type FeedbackState string

const (
	FeedbackNone      FeedbackState = "none"
	FeedbackConfirmed FeedbackState = "confirmed"
	FeedbackRejected  FeedbackState = "rejected"
	FeedbackAdjusted  FeedbackState = "adjusted"
)

// CanTransitionTo reports whether moving from s to next is a legal feedback
// transition.
func (s FeedbackState) CanTransitionTo(next FeedbackState) bool {
	switch s {
	case FeedbackNone:
		return next == FeedbackConfirmed || next == FeedbackRejected || next == FeedbackAdjusted
	case FeedbackConfirmed:
		return next == FeedbackRejected || next == FeedbackAdjusted
	case FeedbackRejected:
		return next == FeedbackConfirmed
	case FeedbackAdjusted:
		return next == FeedbackConfirmed || next == FeedbackRejected
	default:
		return false
	}
}

// FileRelation is a directed or undirected relationship between two files.
type FileRelation struct {
	ID         string
	FileAID    string
	FileBID    string
	Kind       RelationKind
	Similarity float64
	Feedback   FeedbackState
	// UserStrength is the effective strength for an Adjusted relation,
	// overriding Similarity.
	UserStrength float64
	// RejectReason is an optional free-text reason recorded on Rejected.
	RejectReason string
	// BlockSimilar, when set on a Rejected relation, also installs a
	// file-pair BlockRule so the same pair is never re-suggested.
	BlockSimilar bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectiveStrength returns the relation's strength for ranking purposes:
// 0 for a user-rejected relation, UserStrength when adjusted, Similarity
// otherwise.
func (r *FileRelation) EffectiveStrength() float64 {
	switch r.Feedback {
	case FeedbackRejected:
		return 0
	case FeedbackAdjusted:
		return r.UserStrength
	default:
		return r.Similarity
	}
}

// BlockRuleType classifies what a BlockRule matches against: a file pair,
// a file against a tag, a tag pair, everything AI-generated for one file,
// or an entire relation kind.
type BlockRuleType string

const (
	BlockRuleFilePair     BlockRuleType = "file_pair"
	BlockRuleFileToTag    BlockRuleType = "file_to_tag"
	BlockRuleTagPair      BlockRuleType = "tag_pair"
	BlockRuleFileAllAI    BlockRuleType = "file_all_ai"
	BlockRuleRelationKind BlockRuleType = "relation_kind"
)

// BlockRule prevents automatic relation creation matching its scope.
// Which fields are meaningful depends on Type:
//
//	file_pair:     PathA, PathB
//	file_to_tag:   PathA, TagB
//	tag_pair:      TagA, TagB
//	file_all_ai:   PathA
//	relation_kind: RelationKind
type BlockRule struct {
	ID           string
	Type         BlockRuleType
	PathA        string
	PathB        string
	TagA         string
	TagB         string
	RelationKind RelationKind
	ExpiresAt    time.Time // zero value means no expiry
	CreatedAt    time.Time
}

// Active reports whether the rule has not yet expired.
func (r *BlockRule) Active(now time.Time) bool {
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

// QueryType classifies a search request for weight selection.
type QueryType string

const (
	QueryTypeExactKeyword    QueryType = "exact_keyword"
	QueryTypeNaturalLanguage QueryType = "natural_language"
	QueryTypeMixed           QueryType = "mixed"
)

// SearchRequest is a hybrid search query.
type SearchRequest struct {
	Query       string
	QueryType   QueryType // empty triggers automatic classification
	Limit       int
	TagFilter   []string
	PathFilter  string
}

// SearchResult is one scored hit from hybrid search.
type SearchResult struct {
	ChunkID       string
	FileID        string
	Path          string
	Score         float64
	BM25Score     float64
	SemanticScore float64
	Snippet       string
}

// SearchResponse is the full result set for a request.
type SearchResponse struct {
	Results        []*SearchResult
	ClassifiedType QueryType
	TookMS         int64
}

// Session tracks a bounded window of file-access activity used to infer
// co-occurrence relations.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time // zero value while open
	Events    []SessionEvent
}

// SessionFileAccess records a single file touched within a session.
type SessionFileAccess struct {
	SessionID  string
	FileID     string
	AccessedAt time.Time
}

// SessionEventKind classifies a session event.
type SessionEventKind string

const (
	SessionEventOpen   SessionEventKind = "open"
	SessionEventEdit   SessionEventKind = "edit"
	SessionEventSearch SessionEventKind = "search"
)

// SessionEvent is one recorded action within a session.
type SessionEvent struct {
	Kind      SessionEventKind
	FileID    string
	Detail    string
	Timestamp time.Time
}

// TaskState is the indexer task state machine:
//
//	Pending -> Processing -> Completed
//	Processing -> Failed -> Pending (retry, up to the retry budget)
//	Processing -> Failed -> DeadLetter (retry budget exhausted)
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
	TaskDeadLetter TaskState = "dead_letter"
)

// IndexTask is a unit of indexing work tracked for retry/backoff.
type IndexTask struct {
	ID         string
	FilePath   string
	Priority   int
	State      TaskState
	RetryCount int
	LastError  string
	// NextRetryAt is when a failed task becomes eligible again. Zero for
	// tasks not waiting out a backoff. Persisted, so a restart mid-backoff
	// never strands the task.
	NextRetryAt time.Time
	EnqueuedAt  time.Time
	UpdatedAt   time.Time
}

// MigrationRecord tracks an applied schema migration.
type MigrationRecord struct {
	Version   int
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// CloudUsage is the monthly aggregate of remote inference calls, keyed by
// a "YYYY-MM" month string.
type CloudUsage struct {
	Month              string
	RequestCount       int64
	TokenCount         int64
	CostEstimateMicros int64
	UpdatedAt          time.Time
}

// ErrDimensionMismatch indicates the embedder's vector width no longer
// matches the vector store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'neuralfsd --reindex')", e.Expected, e.Got)
}

// Store is the durable state layer interface.
type Store interface {
	SaveFiles(ctx context.Context, files []*File) error
	SetFilePrivacy(ctx context.Context, fileID string, level PrivacyLevel) error
	GetFileByPath(ctx context.Context, path string) (*File, error)
	GetFile(ctx context.Context, id string) (*File, error)
	GetFilesForReconciliation(ctx context.Context) (map[string]*File, error)
	DeleteFile(ctx context.Context, fileID string) error

	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error)
	DeleteChunksByFile(ctx context.Context, fileID string) error

	SaveTag(ctx context.Context, tag *Tag) error
	GetTag(ctx context.Context, id string) (*Tag, error)
	FindTagByName(ctx context.Context, parentID, name string) (*Tag, error)
	ListChildTags(ctx context.Context, parentID string) ([]*Tag, error)
	ListAllTags(ctx context.Context) ([]*Tag, error)
	DeleteTag(ctx context.Context, id string) error
	ReparentTag(ctx context.Context, tagID, newParentID string, newDepth int) error
	AssignTag(ctx context.Context, rel *FileTagRelation) error
	ConfirmTag(ctx context.Context, fileID, tagID string) error
	RemoveFileTag(ctx context.Context, fileID, tagID string) error
	GetFileTags(ctx context.Context, fileID string) ([]*FileTagRelation, error)
	ListFilesByTag(ctx context.Context, tagID string) ([]string, error)
	ReassignFileTags(ctx context.Context, oldTagID, newTagID string) error

	SaveRelation(ctx context.Context, rel *FileRelation) error
	GetRelation(ctx context.Context, id string) (*FileRelation, error)
	SetRelationFeedback(ctx context.Context, id string, feedback FeedbackState, userStrength float64, rejectReason string, blockSimilar bool) error
	ListRelationsForFile(ctx context.Context, fileID string) ([]*FileRelation, error)
	IsBlocked(ctx context.Context, pathA, pathB string) (bool, error)
	AddBlockRule(ctx context.Context, rule *BlockRule) error
	ListActiveBlockRules(ctx context.Context) ([]*BlockRule, error)

	OpenSession(ctx context.Context) (*Session, error)
	RecordSessionAccess(ctx context.Context, access *SessionFileAccess) error
	CloseSession(ctx context.Context, sessionID string) error
	GetCoOccurringFiles(ctx context.Context, fileID string, within time.Duration) (map[string]int, error)

	EnqueueTask(ctx context.Context, task *IndexTask) error
	NextTask(ctx context.Context) (*IndexTask, error)
	UpdateTaskState(ctx context.Context, id string, state TaskState, lastErr string) error
	ScheduleTaskRetry(ctx context.Context, id string, lastErr string, nextRetryAt time.Time) error
	RequeueProcessingTasks(ctx context.Context) (int, error)
	CountTasksByState(ctx context.Context, state TaskState) (int, error)
	ListDeadLetter(ctx context.Context, limit int) ([]*IndexTask, error)
	RequeueDeadLetter(ctx context.Context, id string) error
	ClearDeadLetter(ctx context.Context) (int, error)

	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	GetCloudUsage(ctx context.Context, month string) (*CloudUsage, error)
	RecordCloudUsage(ctx context.Context, month string, requests, tokens, costMicros int64) (*CloudUsage, error)

	AppliedMigrations(ctx context.Context) ([]MigrationRecord, error)

	Close() error
}
