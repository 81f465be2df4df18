// Package mcp exposes the command router (internal/router) over the Model
// Context Protocol:
// one typed input/output struct pair per tool, registered via
// mcp.AddTool, with errors mapped through MapError rather than returned
// raw to the client.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	gosdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/relation"
	"github.com/aimerfeng/neuralfs/internal/router"
	"github.com/aimerfeng/neuralfs/internal/tag"
	"github.com/aimerfeng/neuralfs/pkg/version"
)

// ToolInfo describes one registered tool, for ListTools callers that want
// the catalog without round-tripping through the SDK's own introspection.
type ToolInfo struct {
	Name        string
	Description string
}

// Server bridges MCP clients (the shell UI, or any MCP-speaking agent) to
// the command router.
type Server struct {
	mcp    *gosdk.Server
	router *router.Service
	logger *slog.Logger
}

// NewServer builds an MCP server over r. Registration of every engine
// command happens here; CallTool is never used directly because each tool
// is wired through mcp.AddTool's typed dispatch.
func NewServer(r *router.Service) (*Server, error) {
	if r == nil {
		return nil, fmt.Errorf("router service is required")
	}
	s := &Server{
		router: r,
		logger: slog.Default(),
		mcp: gosdk.NewServer(&gosdk.Implementation{
			Name:    "neuralfs",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server instance.
func (s *Server) MCPServer() *gosdk.Server { return s.mcp }

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) { return "neuralfs", version.Version }

// ListTools returns the full command catalog.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "search_files", Description: "Hybrid BM25+semantic search over indexed files, with filters, pagination, and clarification when results are ambiguous."},
		{Name: "get_search_suggestions", Description: "Query-completion suggestions derived from matching file names."},
		{Name: "get_tags", Description: "List the full tag hierarchy."},
		{Name: "get_file_tags", Description: "List the tags assigned to one file."},
		{Name: "suggest_tags", Description: "Preview the tags auto-tagging would assign to a file without writing them."},
		{Name: "execute_tag_command", Description: "Apply a tag correction command: confirm, reject, add, remove, batch, create, merge, rename, delete, set_parent."},
		{Name: "confirm_tag", Description: "Confirm a suggested tag assignment."},
		{Name: "reject_tag", Description: "Reject a suggested tag assignment."},
		{Name: "add_tag", Description: "Manually assign a tag to a file."},
		{Name: "remove_tag", Description: "Remove a tag from a file."},
		{Name: "get_relations", Description: "List every relation touching a file."},
		{Name: "get_relation_graph", Description: "Bounded-depth traversal of a file's relation neighborhood."},
		{Name: "execute_relation_command", Description: "Apply human feedback to a relation, or batch-reject a pattern of relations."},
		{Name: "get_config", Description: "Return the current engine configuration as YAML."},
		{Name: "set_config", Description: "Update one configuration field."},
		{Name: "get_cloud_status", Description: "Report this month's remote-inference usage."},
		{Name: "browse_directory", Description: "List the children of a directory under the monitored root."},
		{Name: "get_scan_progress", Description: "Report the initial-scan sweep's current position."},
		{Name: "start_initial_scan", Description: "Enqueue a set of paths for indexing."},
		{Name: "get_session_token", Description: "Mint (or retrieve) the asset-stream session token and its URLs."},
	}
}

func (s *Server) registerTools() {
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "search_files", Description: "Hybrid BM25+semantic search over indexed files."}, s.handleSearchFiles)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_search_suggestions", Description: "Query-completion suggestions."}, s.handleGetSearchSuggestions)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_tags", Description: "List the full tag hierarchy."}, s.handleGetTags)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_file_tags", Description: "List the tags assigned to one file."}, s.handleGetFileTags)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "suggest_tags", Description: "Preview tags for a file."}, s.handleSuggestTags)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "execute_tag_command", Description: "Apply a tag correction command."}, s.handleExecuteTagCommand)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "confirm_tag", Description: "Confirm a suggested tag."}, s.handleConfirmTag)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "reject_tag", Description: "Reject a suggested tag."}, s.handleRejectTag)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "add_tag", Description: "Manually assign a tag."}, s.handleAddTag)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "remove_tag", Description: "Remove a tag from a file."}, s.handleRemoveTag)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_relations", Description: "List relations touching a file."}, s.handleGetRelations)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_relation_graph", Description: "Traverse a file's relation neighborhood."}, s.handleGetRelationGraph)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "execute_relation_command", Description: "Apply feedback to a relation."}, s.handleExecuteRelationCommand)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_config", Description: "Return the engine configuration."}, s.handleGetConfig)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "set_config", Description: "Update a configuration field."}, s.handleSetConfig)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_cloud_status", Description: "Report remote-inference usage."}, s.handleGetCloudStatus)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "browse_directory", Description: "List a directory's children."}, s.handleBrowseDirectory)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_scan_progress", Description: "Report the scan sweep's progress."}, s.handleGetScanProgress)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "start_initial_scan", Description: "Enqueue paths for indexing."}, s.handleStartInitialScan)
	gosdk.AddTool(s.mcp, &gosdk.Tool{Name: "get_session_token", Description: "Mint the asset-stream session token."}, s.handleGetSessionToken)
	s.logger.Info("mcp tools registered", slog.Int("count", len(s.ListTools())))
}

func (s *Server) handleSearchFiles(ctx context.Context, _ *gosdk.CallToolRequest, in SearchFilesInput) (*gosdk.CallToolResult, SearchFilesOutput, error) {
	if in.Query == "" {
		return nil, SearchFilesOutput{}, NewInvalidParamsError("query is required")
	}
	resp, err := s.router.SearchFiles(ctx, toSearchRequest(in))
	if err != nil {
		return nil, SearchFilesOutput{}, MapError(err)
	}
	return nil, toSearchFilesOutput(resp), nil
}

func (s *Server) handleGetSearchSuggestions(ctx context.Context, _ *gosdk.CallToolRequest, in GetSearchSuggestionsInput) (*gosdk.CallToolResult, GetSearchSuggestionsOutput, error) {
	suggestions, err := s.router.GetSearchSuggestions(ctx, in.Query, in.Limit)
	if err != nil {
		return nil, GetSearchSuggestionsOutput{}, MapError(err)
	}
	return nil, GetSearchSuggestionsOutput{Suggestions: suggestions}, nil
}

func toTagOutput(t *metadata.Tag) *TagOutput {
	if t == nil {
		return nil
	}
	return &TagOutput{ID: t.ID, Name: t.Name, ParentID: t.ParentID, Depth: t.Depth, Sensitive: t.Sensitive}
}

func (s *Server) handleGetTags(ctx context.Context, _ *gosdk.CallToolRequest, _ GetTagsInput) (*gosdk.CallToolResult, GetTagsOutput, error) {
	tags, err := s.router.GetTags(ctx)
	if err != nil {
		return nil, GetTagsOutput{}, MapError(err)
	}
	out := GetTagsOutput{}
	for _, t := range tags {
		out.Tags = append(out.Tags, *toTagOutput(t))
	}
	return nil, out, nil
}

func (s *Server) handleGetFileTags(ctx context.Context, _ *gosdk.CallToolRequest, in GetFileTagsInput) (*gosdk.CallToolResult, GetFileTagsOutput, error) {
	if in.FileID == "" {
		return nil, GetFileTagsOutput{}, NewInvalidParamsError("file_id is required")
	}
	rels, err := s.router.GetFileTags(ctx, in.FileID)
	if err != nil {
		return nil, GetFileTagsOutput{}, MapError(err)
	}
	out := GetFileTagsOutput{}
	for _, r := range rels {
		out.Tags = append(out.Tags, FileTagOutput{TagID: r.TagID, Source: string(r.Source), Confidence: r.Confidence, Confirmed: r.Confirmed})
	}
	return nil, out, nil
}

func (s *Server) handleSuggestTags(ctx context.Context, _ *gosdk.CallToolRequest, in SuggestTagsInput) (*gosdk.CallToolResult, SuggestTagsOutput, error) {
	if in.FileID == "" {
		return nil, SuggestTagsOutput{}, NewInvalidParamsError("file_id is required")
	}
	suggestions, err := s.router.SuggestTags(ctx, in.FileID)
	if err != nil {
		return nil, SuggestTagsOutput{}, MapError(err)
	}
	out := SuggestTagsOutput{}
	for _, sg := range suggestions {
		out.Suggestions = append(out.Suggestions, TagSuggestionOutput{Name: sg.Name, TagID: sg.TagID, Confidence: sg.Confidence, Sensitive: sg.Sensitive})
	}
	return nil, out, nil
}

func (s *Server) handleExecuteTagCommand(ctx context.Context, _ *gosdk.CallToolRequest, in ExecuteTagCommandInput) (*gosdk.CallToolResult, ExecuteTagCommandOutput, error) {
	cmd := tag.Command{
		Type:           tag.CommandType(in.Type),
		FileID:         in.FileID,
		TagID:          in.TagID,
		BlockSimilar:   in.BlockSimilar,
		Source:         metadata.TagSource(in.Source),
		Confidence:     in.Confidence,
		FileIDs:        in.FileIDs,
		Name:           in.Name,
		ParentID:       in.ParentID,
		ForceSensitive: in.ForceSensitive,
		SourceTagID:    in.SourceTagID,
	}
	res, err := s.router.ExecuteTagCommand(ctx, cmd)
	if err != nil {
		return nil, ExecuteTagCommandOutput{}, MapError(err)
	}
	return nil, ExecuteTagCommandOutput{Tag: toTagOutput(res.Tag)}, nil
}

func (s *Server) handleConfirmTag(ctx context.Context, _ *gosdk.CallToolRequest, in ConfirmTagInput) (*gosdk.CallToolResult, EmptyOutput, error) {
	if err := s.router.ConfirmTag(ctx, in.FileID, in.TagID); err != nil {
		return nil, EmptyOutput{}, MapError(err)
	}
	return nil, EmptyOutput{OK: true}, nil
}

func (s *Server) handleRejectTag(ctx context.Context, _ *gosdk.CallToolRequest, in RejectTagInput) (*gosdk.CallToolResult, EmptyOutput, error) {
	if err := s.router.RejectTag(ctx, in.FileID, in.TagID, in.BlockSimilar); err != nil {
		return nil, EmptyOutput{}, MapError(err)
	}
	return nil, EmptyOutput{OK: true}, nil
}

func (s *Server) handleAddTag(ctx context.Context, _ *gosdk.CallToolRequest, in AddTagInput) (*gosdk.CallToolResult, EmptyOutput, error) {
	if err := s.router.AddTag(ctx, in.FileID, in.TagID); err != nil {
		return nil, EmptyOutput{}, MapError(err)
	}
	return nil, EmptyOutput{OK: true}, nil
}

func (s *Server) handleRemoveTag(ctx context.Context, _ *gosdk.CallToolRequest, in RemoveTagInput) (*gosdk.CallToolResult, EmptyOutput, error) {
	if err := s.router.RemoveTag(ctx, in.FileID, in.TagID); err != nil {
		return nil, EmptyOutput{}, MapError(err)
	}
	return nil, EmptyOutput{OK: true}, nil
}

func toRelationOutput(r *metadata.FileRelation) RelationOutput {
	return RelationOutput{
		ID: r.ID, FileAID: r.FileAID, FileBID: r.FileBID, Kind: string(r.Kind),
		Similarity: r.Similarity, Feedback: string(r.Feedback), Strength: r.EffectiveStrength(),
	}
}

func (s *Server) handleGetRelations(ctx context.Context, _ *gosdk.CallToolRequest, in GetRelationsInput) (*gosdk.CallToolResult, GetRelationsOutput, error) {
	if in.FileID == "" {
		return nil, GetRelationsOutput{}, NewInvalidParamsError("file_id is required")
	}
	rels, err := s.router.GetRelations(ctx, in.FileID)
	if err != nil {
		return nil, GetRelationsOutput{}, MapError(err)
	}
	out := GetRelationsOutput{}
	for _, r := range rels {
		out.Relations = append(out.Relations, toRelationOutput(r))
	}
	return nil, out, nil
}

func (s *Server) handleGetRelationGraph(ctx context.Context, _ *gosdk.CallToolRequest, in GetRelationGraphInput) (*gosdk.CallToolResult, GetRelationGraphOutput, error) {
	if in.FileID == "" {
		return nil, GetRelationGraphOutput{}, NewInvalidParamsError("file_id is required")
	}
	depth := in.Depth
	if depth <= 0 {
		depth = relation.DefaultGraphDepth
	}
	g, err := s.router.GetRelationGraph(ctx, in.FileID, depth)
	if err != nil {
		return nil, GetRelationGraphOutput{}, MapError(err)
	}
	out := GetRelationGraphOutput{Center: g.Center}
	for _, n := range g.Nodes {
		out.Nodes = append(out.Nodes, GraphNodeOutput{FileID: n.FileID, Depth: n.Depth})
	}
	for _, e := range g.Edges {
		out.Relations = append(out.Relations, toRelationOutput(e.Relation))
	}
	return nil, out, nil
}

func (s *Server) handleExecuteRelationCommand(ctx context.Context, _ *gosdk.CallToolRequest, in ExecuteRelationCommandInput) (*gosdk.CallToolResult, ExecuteRelationCommandOutput, error) {
	cmd := router.RelationCommand{
		Type:         router.RelationCommandType(in.Type),
		RelationID:   in.RelationID,
		Feedback:     metadata.FeedbackState(in.Feedback),
		UserStrength: in.UserStrength,
		RejectReason: in.RejectReason,
		BlockSimilar: in.BlockSimilar,
		Scope:        relation.BatchRejectScope(in.Scope),
		FileID:       in.FileID,
		TargetTagID:  in.TargetTagID,
		TagA:         in.TagA,
		TagB:         in.TagB,
	}
	n, err := s.router.ExecuteRelationCommand(ctx, cmd)
	if err != nil {
		return nil, ExecuteRelationCommandOutput{}, MapError(err)
	}
	return nil, ExecuteRelationCommandOutput{AffectedCount: n}, nil
}

func (s *Server) handleGetConfig(_ context.Context, _ *gosdk.CallToolRequest, _ GetConfigInput) (*gosdk.CallToolResult, GetConfigOutput, error) {
	cfg := s.router.GetConfig()
	if cfg == nil {
		return nil, GetConfigOutput{}, MapError(fmt.Errorf("no configuration available"))
	}
	return nil, GetConfigOutput{ConfigYAML: fmt.Sprintf("%+v", cfg)}, nil
}

func (s *Server) handleSetConfig(ctx context.Context, _ *gosdk.CallToolRequest, in SetConfigInput) (*gosdk.CallToolResult, SetConfigOutput, error) {
	mutate, err := configMutation(in.Path, in.Value)
	if err != nil {
		return nil, SetConfigOutput{}, err
	}
	if err := s.router.SetConfig(ctx, "", mutate); err != nil {
		return nil, SetConfigOutput{}, MapError(err)
	}
	return nil, SetConfigOutput{OK: true}, nil
}

// configMutation routes a dotted field path and string value onto the
// typed configuration, returning the mutator Service.SetConfig applies.
// Only the operator-settable fields are routed; anything else is an
// invalid-params error naming the path.
func configMutation(path, value string) (func(*config.Config), error) {
	parseBool := func() (bool, error) { return strconv.ParseBool(value) }
	parseFloat := func() (float64, error) { return strconv.ParseFloat(value, 64) }
	parseInt := func() (int, error) { return strconv.Atoi(value) }

	switch path {
	case "search.bm25_weight":
		f, err := parseFloat()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects a number")
		}
		return func(c *config.Config) { c.Search.BM25Weight = f }, nil
	case "search.semantic_weight":
		f, err := parseFloat()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects a number")
		}
		return func(c *config.Config) { c.Search.SemanticWeight = f }, nil
	case "search.max_results":
		n, err := parseInt()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects an integer")
		}
		return func(c *config.Config) { c.Search.MaxResults = n }, nil
	case "cloud.enabled":
		b, err := parseBool()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects true or false")
		}
		return func(c *config.Config) { c.Cloud.Enabled = b }, nil
	case "cloud.endpoint":
		return func(c *config.Config) { c.Cloud.Endpoint = value }, nil
	case "cloud.api_key":
		return func(c *config.Config) { c.Cloud.APIKey = value }, nil
	case "cloud.provider":
		return func(c *config.Config) { c.Cloud.Provider = value }, nil
	case "cloud.model":
		return func(c *config.Config) { c.Cloud.Model = value }, nil
	case "cloud.monthly_cost_limit":
		f, err := parseFloat()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects a number")
		}
		return func(c *config.Config) { c.Cloud.MonthlyCostLimit = f }, nil
	case "cloud.requests_per_minute":
		n, err := parseInt()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects an integer")
		}
		return func(c *config.Config) { c.Cloud.RequestsPerMinute = n }, nil
	case "privacy.privacy_mode":
		b, err := parseBool()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects true or false")
		}
		return func(c *config.Config) { c.Privacy.PrivacyMode = b }, nil
	case "privacy.telemetry":
		b, err := parseBool()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects true or false")
		}
		return func(c *config.Config) { c.Privacy.Telemetry = b }, nil
	case "performance.indexing_threads":
		n, err := parseInt()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects an integer")
		}
		return func(c *config.Config) { c.Performance.IndexingThreads = n }, nil
	case "performance.max_vram_mb":
		n, err := parseInt()
		if err != nil {
			return nil, NewInvalidParamsError(path + " expects an integer")
		}
		return func(c *config.Config) { c.Performance.MaxVRAMMB = n }, nil
	default:
		return nil, NewInvalidParamsError("unknown or non-settable config field " + path)
	}
}

func (s *Server) handleGetCloudStatus(ctx context.Context, _ *gosdk.CallToolRequest, in GetCloudStatusInput) (*gosdk.CallToolResult, GetCloudStatusOutput, error) {
	usage, err := s.router.GetCloudStatus(ctx, in.Month)
	if err != nil {
		return nil, GetCloudStatusOutput{}, MapError(err)
	}
	return nil, GetCloudStatusOutput{
		Month: usage.Month, RequestCount: usage.RequestCount,
		TokenCount: usage.TokenCount, CostEstimateMicros: usage.CostEstimateMicros,
	}, nil
}

func (s *Server) handleBrowseDirectory(_ context.Context, _ *gosdk.CallToolRequest, in BrowseDirectoryInput) (*gosdk.CallToolResult, BrowseDirectoryOutput, error) {
	entries, err := s.router.BrowseDirectory(in.Path)
	if err != nil {
		return nil, BrowseDirectoryOutput{}, MapError(err)
	}
	out := BrowseDirectoryOutput{}
	for _, e := range entries {
		out.Entries = append(out.Entries, DirEntryOutput{Name: e.Name, Path: e.Path, IsDir: e.IsDir, Size: e.Size})
	}
	return nil, out, nil
}

func (s *Server) handleGetScanProgress(_ context.Context, _ *gosdk.CallToolRequest, _ GetScanProgressInput) (*gosdk.CallToolResult, GetScanProgressOutput, error) {
	p := s.router.GetScanProgress()
	return nil, GetScanProgressOutput{
		TotalFiles: p.TotalFiles, ProcessedFiles: p.ProcessedFiles,
		CurrentPath: p.CurrentPath, Done: p.Done,
	}, nil
}

func (s *Server) handleStartInitialScan(ctx context.Context, _ *gosdk.CallToolRequest, in StartInitialScanInput) (*gosdk.CallToolResult, StartInitialScanOutput, error) {
	if len(in.Paths) == 0 {
		return nil, StartInitialScanOutput{}, NewInvalidParamsError("paths is required")
	}
	if err := s.router.StartInitialScan(ctx, in.Paths); err != nil {
		return nil, StartInitialScanOutput{}, MapError(err)
	}
	return nil, StartInitialScanOutput{OK: true}, nil
}

func (s *Server) handleGetSessionToken(_ context.Context, _ *gosdk.CallToolRequest, _ GetSessionTokenInput) (*gosdk.CallToolResult, GetSessionTokenOutput, error) {
	token, protocolURL, httpURL, err := s.router.GetSessionToken()
	if err != nil {
		return nil, GetSessionTokenOutput{}, MapError(err)
	}
	return nil, GetSessionTokenOutput{Token: token, ProtocolURL: protocolURL, HTTPURL: httpURL}, nil
}

// Serve runs the MCP server until ctx is cancelled. Only "stdio" is
// implemented; there is no remote MCP transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "", "stdio":
		s.logger.Info("starting mcp server", slog.String("transport", "stdio"))
		err := s.mcp.Run(ctx, &gosdk.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		}
		return err
	default:
		return fmt.Errorf("unknown transport %q (supported: stdio)", transport)
	}
}

// Close releases server resources. The SDK server itself has no explicit
// close; it stops when Serve's context is cancelled.
func (s *Server) Close() error { return nil }
