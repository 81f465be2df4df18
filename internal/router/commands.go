package router

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/errors"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/relation"
	"github.com/aimerfeng/neuralfs/internal/tag"
)

// GetTags lists the full tag hierarchy (the command surface's "get_tags() -> [Tag]").
func (s *Service) GetTags(ctx context.Context) ([]*metadata.Tag, error) {
	return s.metadata.ListAllTags(ctx)
}

// GetFileTags lists the tags assigned to one file (the command surface's
// "get_file_tags(file_id) -> [FileTag]").
func (s *Service) GetFileTags(ctx context.Context, fileID string) ([]*metadata.FileTagRelation, error) {
	return s.metadata.GetFileTags(ctx, fileID)
}

// SuggestTags previews the tags AutoTag would assign to a file without
// writing them (the command surface's "suggest_tags(file_id) -> [TagSuggestion]").
func (s *Service) SuggestTags(ctx context.Context, fileID string) ([]tag.Suggestion, error) {
	file, err := s.metadata.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, errors.New(errors.ErrCodeFileNotFound, "file not found", nil)
	}
	chunks, err := s.metadata.GetChunksByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return s.tags.Suggest(ctx, file, chunks)
}

// ExecuteTagCommand dispatches a tag correction command (the command
// surface's "execute_tag_command(cmd) -> ()", with confirm/reject/add/remove exposed
// as dedicated shortcuts below).
func (s *Service) ExecuteTagCommand(ctx context.Context, cmd tag.Command) (*tag.Result, error) {
	return s.tags.Execute(ctx, cmd)
}

// ConfirmTag, RejectTag, AddTag, and RemoveTag are thin shortcuts onto
// ExecuteTagCommand for the command surface's single-purpose verbs.
func (s *Service) ConfirmTag(ctx context.Context, fileID, tagID string) error {
	_, err := s.ExecuteTagCommand(ctx, tag.Command{Type: tag.CommandConfirm, FileID: fileID, TagID: tagID})
	return err
}

func (s *Service) RejectTag(ctx context.Context, fileID, tagID string, blockSimilar bool) error {
	_, err := s.ExecuteTagCommand(ctx, tag.Command{Type: tag.CommandReject, FileID: fileID, TagID: tagID, BlockSimilar: blockSimilar})
	return err
}

func (s *Service) AddTag(ctx context.Context, fileID, tagID string) error {
	_, err := s.ExecuteTagCommand(ctx, tag.Command{Type: tag.CommandAdd, FileID: fileID, TagID: tagID, Source: metadata.TagSourceManual, Confidence: 1.0})
	return err
}

func (s *Service) RemoveTag(ctx context.Context, fileID, tagID string) error {
	_, err := s.ExecuteTagCommand(ctx, tag.Command{Type: tag.CommandRemove, FileID: fileID, TagID: tagID})
	return err
}

// SetFilePrivacy changes a file's privacy level. Moving a file to
// private takes effect immediately for relation generation and remote
// inference; existing relations are left for the user to prune.
func (s *Service) SetFilePrivacy(ctx context.Context, fileID string, level metadata.PrivacyLevel) error {
	switch level {
	case metadata.PrivacyNormal, metadata.PrivacySensitive, metadata.PrivacyPrivate:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown privacy level "+string(level), nil)
	}
	return s.metadata.SetFilePrivacy(ctx, fileID, level)
}

// GetRelations lists every relation touching a file (the command surface's
// "get_relations(file_id) -> [Relation]").
func (s *Service) GetRelations(ctx context.Context, fileID string) ([]*metadata.FileRelation, error) {
	return s.relations.GetRelationsForFile(ctx, fileID)
}

// GetRelationGraph performs a bounded-depth traversal from a center file
// (the command surface's "get_relation_graph(file_id, depth=2) -> Graph").
func (s *Service) GetRelationGraph(ctx context.Context, fileID string, depth int) (*relation.Graph, error) {
	return s.relations.GetRelationGraph(ctx, fileID, depth)
}

// RelationCommandType enumerates the relation feedback commands
// execute_relation_command accepts.
type RelationCommandType string

const (
	RelationCommandFeedback    RelationCommandType = "feedback"
	RelationCommandBatchReject RelationCommandType = "batch_reject"
)

// RelationCommand is the parsed form of an execute_relation_command request.
type RelationCommand struct {
	Type RelationCommandType

	// feedback
	RelationID   string
	Feedback     metadata.FeedbackState
	UserStrength float64
	RejectReason string
	BlockSimilar bool

	// batch_reject
	Scope       relation.BatchRejectScope
	FileID      string
	TargetTagID string
	TagA        string
	TagB        string
}

// ExecuteRelationCommand dispatches a relation correction command (the
// command surface's "execute_relation_command(cmd) -> ()").
func (s *Service) ExecuteRelationCommand(ctx context.Context, cmd RelationCommand) (int, error) {
	switch cmd.Type {
	case RelationCommandFeedback:
		if err := s.relations.ApplyFeedback(ctx, cmd.RelationID, cmd.Feedback, cmd.UserStrength, cmd.RejectReason, cmd.BlockSimilar); err != nil {
			return 0, err
		}
		return 1, nil
	case RelationCommandBatchReject:
		return s.relations.BatchReject(ctx, cmd.Scope, cmd.FileID, cmd.TargetTagID, cmd.TagA, cmd.TagB, cmd.RejectReason)
	default:
		return 0, errors.ValidationError("unknown relation command type", nil)
	}
}

// GetConfig returns the engine's current configuration (the command
// surface's "get_config()").
func (s *Service) GetConfig() *config.Config {
	return s.cfg
}

// SetConfig applies mutate to the shared in-memory configuration,
// validates the result, and writes the config.json snapshot in the data
// directory (the command surface's "set_config(...)"). The mutator
// pattern keeps this package from having to know every settable field;
// callers (the MCP layer) build the mutation from the typed tool input.
// On a validation failure the prior configuration is left untouched.
// path overrides the snapshot location; empty uses the data directory.
func (s *Service) SetConfig(ctx context.Context, path string, mutate func(*config.Config)) error {
	before := *s.cfg
	mutate(s.cfg)
	if err := s.cfg.Validate(); err != nil {
		*s.cfg = before
		return err
	}
	if path == "" {
		path = filepath.Join(s.rootPath, ".neuralfs", "config.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return s.cfg.WriteJSON(path)
}

// GetCloudStatus reports the current month's remote-inference usage (the
// command surface's "get_cloud_status()", backed by internal/metadata's
// cost tracker).
func (s *Service) GetCloudStatus(ctx context.Context, month string) (*metadata.CloudUsage, error) {
	return s.metadata.GetCloudUsage(ctx, month)
}

// GetScanProgress reports the initial-scan sweep's current position (the
// command surface's "get_scan_progress()").
func (s *Service) GetScanProgress() ScanProgress {
	return s.progress.Snapshot()
}

// GetSessionToken mints (or returns the already-minted) asset-stream
// session token and the URLs a caller uses it with (the command surface's
// "get_session_token() -> {token, protocol_url, http_url}"). Returns an
// error when the router was built without an asset server.
func (s *Service) GetSessionToken() (token, protocolURL, httpURL string, err error) {
	if s.assets == nil {
		return "", "", "", errors.New(errors.ErrCodeInvalidInput, "asset stream server not enabled", nil)
	}
	return s.assets.Token(), "nfs://", "http://127.0.0.1", nil
}

// StartInitialScan enqueues every file under paths for indexing at low
// priority (the command surface's "start_initial_scan(paths)"). Returns an error when
// the router was built without an indexer (e.g. a read-only CLI instance).
func (s *Service) StartInitialScan(ctx context.Context, paths []string) error {
	if s.idx == nil {
		return errNoIndexer
	}
	for _, p := range paths {
		if err := s.idx.Enqueue(ctx, p, 0); err != nil {
			return err
		}
	}
	return nil
}
