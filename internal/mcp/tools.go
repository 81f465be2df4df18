package mcp

import (
	"time"

	"github.com/aimerfeng/neuralfs/internal/router"
)

// SearchFilesInput is the search_files tool's typed input
// (search_files(SearchRequest) -> SearchResponse).
type SearchFilesInput struct {
	Query          string   `json:"query" jsonschema:"the search query to execute"`
	Intent         string   `json:"intent,omitempty" jsonschema:"find-file, find-content, or ambiguous"`
	FileTypes      []string `json:"file_types,omitempty" jsonschema:"restrict to these file extensions or content types"`
	IncludeTags    []string `json:"include_tags,omitempty" jsonschema:"only files carrying all of these tags"`
	ExcludeTags    []string `json:"exclude_tags,omitempty" jsonschema:"exclude files carrying any of these tags"`
	PathPrefix     string   `json:"path_prefix,omitempty" jsonschema:"restrict to files under this path"`
	MinScore       float64  `json:"min_score,omitempty" jsonschema:"minimum relevance score (0-1)"`
	ExcludePrivate bool     `json:"exclude_private,omitempty" jsonschema:"exclude files carrying a sensitive tag"`
	Offset         int      `json:"offset,omitempty" jsonschema:"pagination offset, default 0"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	EnableRemote   bool     `json:"enable_remote,omitempty" jsonschema:"allow dispatching this query to remote inference"`
}

// SearchFilesOutput is the search_files tool's typed output.
type SearchFilesOutput struct {
	RequestID      string                    `json:"request_id"`
	Status         string                    `json:"status"`
	Results        []SearchHitOutput         `json:"results"`
	TotalCount     int                       `json:"total_count"`
	HasMore        bool                      `json:"has_more"`
	DurationMS     int64                     `json:"duration_ms"`
	Sources        []string                  `json:"sources"`
	Clarifications []ClarificationOutput     `json:"clarifications,omitempty"`
}

// SearchHitOutput is one ranked result.
type SearchHitOutput struct {
	FileID   string  `json:"file_id"`
	ChunkID  string  `json:"chunk_id"`
	Path     string  `json:"path"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
	Language string  `json:"language,omitempty"`
}

// ClarificationOutput is one disambiguating option.
type ClarificationOutput struct {
	Label          string `json:"label"`
	Description    string `json:"description"`
	EstimatedCount int    `json:"estimated_count"`
}

func toSearchFilesOutput(resp *router.SearchResponse) SearchFilesOutput {
	out := SearchFilesOutput{
		RequestID:  resp.RequestID,
		Status:     string(resp.Status),
		TotalCount: resp.TotalCount,
		HasMore:    resp.HasMore,
		DurationMS: resp.Duration.Milliseconds(),
		Sources:    resp.Sources,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, SearchHitOutput{
			FileID: r.FileID, ChunkID: r.ChunkID, Path: r.Path,
			Score: r.Score, Snippet: r.Snippet, Language: r.Language,
		})
	}
	for _, c := range resp.Clarifications {
		out.Clarifications = append(out.Clarifications, ClarificationOutput{
			Label: c.Label, Description: c.Description, EstimatedCount: c.EstimatedCount,
		})
	}
	return out
}

func toSearchRequest(in SearchFilesInput) router.SearchRequest {
	return router.SearchRequest{
		Timestamp: time.Now(),
		Query:     in.Query,
		Intent:    router.Intent(in.Intent),
		Filters: router.Filters{
			FileTypes:      in.FileTypes,
			IncludeTags:    in.IncludeTags,
			ExcludeTags:    in.ExcludeTags,
			PathPrefix:     in.PathPrefix,
			MinScore:       in.MinScore,
			ExcludePrivate: in.ExcludePrivate,
		},
		Offset:       in.Offset,
		Limit:        in.Limit,
		EnableRemote: in.EnableRemote,
	}
}

// GetSearchSuggestionsInput/Output back get_search_suggestions(query) -> [string].
type GetSearchSuggestionsInput struct {
	Query string `json:"query" jsonschema:"partial query to complete"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of suggestions, default 5"`
}

type GetSearchSuggestionsOutput struct {
	Suggestions []string `json:"suggestions"`
}

// GetTagsInput/Output back get_tags() -> [Tag].
type GetTagsInput struct{}

type TagOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
	Depth     int    `json:"depth"`
	Sensitive bool   `json:"sensitive"`
}

type GetTagsOutput struct {
	Tags []TagOutput `json:"tags"`
}

// GetFileTagsInput/Output back get_file_tags(file_id) -> [FileTag].
type GetFileTagsInput struct {
	FileID string `json:"file_id" jsonschema:"file to list tags for"`
}

type FileTagOutput struct {
	TagID      string  `json:"tag_id"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Confirmed  bool    `json:"confirmed"`
}

type GetFileTagsOutput struct {
	Tags []FileTagOutput `json:"tags"`
}

// SuggestTagsInput/Output back suggest_tags(file_id) -> [TagSuggestion].
type SuggestTagsInput struct {
	FileID string `json:"file_id" jsonschema:"file to suggest tags for"`
}

type TagSuggestionOutput struct {
	Name       string  `json:"name"`
	TagID      string  `json:"tag_id,omitempty"`
	Confidence float64 `json:"confidence"`
	Sensitive  bool    `json:"sensitive"`
}

type SuggestTagsOutput struct {
	Suggestions []TagSuggestionOutput `json:"suggestions"`
}

// ExecuteTagCommandInput/Output back execute_tag_command(cmd) -> ().
type ExecuteTagCommandInput struct {
	Type           string   `json:"type" jsonschema:"confirm, reject, add, remove, batch, create, merge, rename, delete, or set_parent"`
	FileID         string   `json:"file_id,omitempty"`
	TagID          string   `json:"tag_id,omitempty"`
	BlockSimilar   bool     `json:"block_similar,omitempty"`
	Source         string   `json:"source,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	FileIDs        []string `json:"file_ids,omitempty"`
	Name           string   `json:"name,omitempty"`
	ParentID       string   `json:"parent_id,omitempty"`
	ForceSensitive bool     `json:"force_sensitive,omitempty"`
	SourceTagID    string   `json:"source_tag_id,omitempty"`
}

type ExecuteTagCommandOutput struct {
	Tag *TagOutput `json:"tag,omitempty"`
}

// ConfirmTagInput/RejectTagInput/AddTagInput/RemoveTagInput back the
// single-purpose tag verbs.
type ConfirmTagInput struct {
	FileID string `json:"file_id"`
	TagID  string `json:"tag_id"`
}

type RejectTagInput struct {
	FileID       string `json:"file_id"`
	TagID        string `json:"tag_id"`
	BlockSimilar bool   `json:"block_similar,omitempty"`
}

type AddTagInput struct {
	FileID string `json:"file_id"`
	TagID  string `json:"tag_id"`
}

type RemoveTagInput struct {
	FileID string `json:"file_id"`
	TagID  string `json:"tag_id"`
}

// EmptyOutput is returned by commands whose effect is purely side-effectful.
type EmptyOutput struct {
	OK bool `json:"ok"`
}

// GetRelationsInput/Output back get_relations(file_id) -> [Relation].
type GetRelationsInput struct {
	FileID string `json:"file_id"`
}

type RelationOutput struct {
	ID         string  `json:"id"`
	FileAID    string  `json:"file_a_id"`
	FileBID    string  `json:"file_b_id"`
	Kind       string  `json:"kind"`
	Similarity float64 `json:"similarity"`
	Feedback   string  `json:"feedback"`
	Strength   float64 `json:"effective_strength"`
}

type GetRelationsOutput struct {
	Relations []RelationOutput `json:"relations"`
}

// GetRelationGraphInput/Output back get_relation_graph(file_id, depth=2) -> Graph.
type GetRelationGraphInput struct {
	FileID string `json:"file_id"`
	Depth  int    `json:"depth,omitempty"`
}

type GraphNodeOutput struct {
	FileID string `json:"file_id"`
	Depth  int    `json:"depth"`
}

type GetRelationGraphOutput struct {
	Center    string            `json:"center"`
	Nodes     []GraphNodeOutput `json:"nodes"`
	Relations []RelationOutput  `json:"relations"`
}

// ExecuteRelationCommandInput/Output back execute_relation_command(cmd) -> ().
type ExecuteRelationCommandInput struct {
	Type         string  `json:"type" jsonschema:"feedback or batch_reject"`
	RelationID   string  `json:"relation_id,omitempty"`
	Feedback     string  `json:"feedback,omitempty" jsonschema:"confirmed, rejected, or adjusted"`
	UserStrength float64 `json:"user_strength,omitempty"`
	RejectReason string  `json:"reject_reason,omitempty"`
	BlockSimilar bool    `json:"block_similar,omitempty"`
	Scope        string  `json:"scope,omitempty" jsonschema:"pair, file_to_tag, or tag_pair"`
	FileID       string  `json:"file_id,omitempty"`
	TargetTagID  string  `json:"target_tag_id,omitempty"`
	TagA         string  `json:"tag_a,omitempty"`
	TagB         string  `json:"tag_b,omitempty"`
}

type ExecuteRelationCommandOutput struct {
	AffectedCount int `json:"affected_count"`
}

// GetConfigInput/Output back get_config().
type GetConfigInput struct{}

type GetConfigOutput struct {
	ConfigYAML string `json:"config_yaml"`
}

// SetConfigInput/Output back set_config(...). Path is dotted
// (e.g. "search.bm25_weight"); the MCP layer only knows how to route the
// handful of operator-settable fields.
type SetConfigInput struct {
	Path  string `json:"path" jsonschema:"dotted config field, e.g. search.bm25_weight"`
	Value string `json:"value"`
}

type SetConfigOutput struct {
	OK bool `json:"ok"`
}

// GetCloudStatusInput/Output back get_cloud_status().
type GetCloudStatusInput struct {
	Month string `json:"month,omitempty" jsonschema:"YYYY-MM, defaults to the current month"`
}

type GetCloudStatusOutput struct {
	Month              string `json:"month"`
	RequestCount       int64  `json:"request_count"`
	TokenCount         int64  `json:"token_count"`
	CostEstimateMicros int64  `json:"cost_estimate_micros"`
}

// BrowseDirectoryInput/Output back browse_directory().
type BrowseDirectoryInput struct {
	Path string `json:"path,omitempty"`
}

type DirEntryOutput struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

type BrowseDirectoryOutput struct {
	Entries []DirEntryOutput `json:"entries"`
}

// GetScanProgressInput/Output back get_scan_progress().
type GetScanProgressInput struct{}

type GetScanProgressOutput struct {
	TotalFiles     int  `json:"total_files"`
	ProcessedFiles int  `json:"processed_files"`
	CurrentPath    string `json:"current_path"`
	Done           bool `json:"done"`
}

// StartInitialScanInput/Output back start_initial_scan(paths).
type StartInitialScanInput struct {
	Paths []string `json:"paths"`
}

type StartInitialScanOutput struct {
	OK bool `json:"ok"`
}

// GetSessionTokenInput/Output back get_session_token() -> {token,
// protocol_url, http_url}.
type GetSessionTokenInput struct{}

type GetSessionTokenOutput struct {
	Token       string `json:"token"`
	ProtocolURL string `json:"protocol_url"`
	HTTPURL     string `json:"http_url"`
}
