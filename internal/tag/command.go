package tag

import (
	"context"

	"github.com/aimerfeng/neuralfs/internal/errors"
	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// CommandType enumerates the tag correction commands the command surface
// (the command surface's "execute_tag_command") accepts.
type CommandType string

const (
	CommandConfirm    CommandType = "confirm"
	CommandReject     CommandType = "reject"
	CommandAdd        CommandType = "add"
	CommandRemove     CommandType = "remove"
	CommandBatch      CommandType = "batch"
	CommandCreate     CommandType = "create"
	CommandMerge      CommandType = "merge"
	CommandRename     CommandType = "rename"
	CommandDelete     CommandType = "delete"
	CommandSetParent  CommandType = "set_parent"
)

// Command is the parsed form of an execute_tag_command request. Which
// fields apply depends on Type; see the per-type comments below.
type Command struct {
	Type CommandType

	// confirm, reject, add, remove: single-file operations
	FileID string
	TagID  string

	// reject: also block future re-suggestion of this tag for this file
	// through the attached SimilarBlocker (see Reject)
	BlockSimilar bool

	// add: new assignment's provenance
	Source     metadata.TagSource
	Confidence float64

	// batch: multi-file confirm/reject/add/remove
	FileIDs []string

	// create: new tag under ParentID (may be empty for a root tag)
	Name           string
	ParentID       string
	ForceSensitive bool

	// merge: SourceTagID's files and children move onto TagID, then
	// SourceTagID is deleted
	SourceTagID string

	// rename: TagID's display name becomes Name

	// delete: TagID is removed, its children reparented to its own parent

	// set_parent: TagID moves under ParentID
}

// Result is the outcome of executing a Command.
type Result struct {
	Tag *metadata.Tag
}

// Execute dispatches a Command to the matching Service method.
func (s *Service) Execute(ctx context.Context, cmd Command) (*Result, error) {
	switch cmd.Type {
	case CommandConfirm:
		if err := s.Confirm(ctx, cmd.FileID, cmd.TagID); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case CommandReject:
		if err := s.Reject(ctx, cmd.FileID, cmd.TagID, cmd.BlockSimilar); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case CommandAdd:
		source := cmd.Source
		if source == "" {
			source = metadata.TagSourceManual
		}
		if err := s.Assign(ctx, cmd.FileID, cmd.TagID, source, cmd.Confidence); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case CommandRemove:
		if err := s.Remove(ctx, cmd.FileID, cmd.TagID); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case CommandBatch:
		if len(cmd.FileIDs) == 0 {
			return nil, errors.ValidationError("batch command requires at least one file", nil)
		}
		if cmd.TagID == "" {
			return nil, errors.ValidationError("batch requires TagID (create the tag first if needed)", nil)
		}
		source := cmd.Source
		if source == "" {
			source = metadata.TagSourceManual
		}
		if err := s.BatchAssign(ctx, cmd.FileIDs, cmd.TagID, source, cmd.Confidence); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case CommandCreate:
		t, err := s.CreateTag(ctx, cmd.Name, cmd.ParentID, cmd.ForceSensitive)
		if err != nil {
			return nil, err
		}
		return &Result{Tag: t}, nil

	case CommandMerge:
		if err := s.MergeTag(ctx, cmd.SourceTagID, cmd.TagID); err != nil {
			return nil, err
		}
		t, err := s.Get(ctx, cmd.TagID)
		if err != nil {
			return nil, err
		}
		return &Result{Tag: t}, nil

	case CommandRename:
		t, err := s.RenameTag(ctx, cmd.TagID, cmd.Name)
		if err != nil {
			return nil, err
		}
		return &Result{Tag: t}, nil

	case CommandDelete:
		if err := s.DeleteTag(ctx, cmd.TagID); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case CommandSetParent:
		if err := s.SetParent(ctx, cmd.TagID, cmd.ParentID); err != nil {
			return nil, err
		}
		t, err := s.Get(ctx, cmd.TagID)
		if err != nil {
			return nil, err
		}
		return &Result{Tag: t}, nil

	default:
		return nil, errors.ValidationError("unknown tag command type: "+string(cmd.Type), nil)
	}
}
