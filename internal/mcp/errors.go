package mcp

import (
	stderrors "errors"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// MCPError is a JSON-RPC-shaped error, reusing the protocol's numeric
// error codes rather than inventing a parallel numbering scheme.
type MCPError struct {
	Code    int
	Message string
}

func (e *MCPError) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes, used when a request itself is malformed
// rather than when the engine rejects a well-formed one.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

var (
	ErrToolNotFound     = &MCPError{Code: ErrCodeMethodNotFound, Message: "tool not found"}
	ErrResourceNotFound = &MCPError{Code: -32001, Message: "resource not found"}
)

// NewInvalidParamsError builds a parameter-validation error for a
// malformed tool call.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError builds an unknown-tool error.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: "unknown tool: " + name}
}

// NewResourceNotFoundError builds an unknown-resource error.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrResourceNotFound.Code, Message: "resource not found: " + uri}
}

// MapError translates an internal/errors.EngineError (or any other error)
// into the MCP wire error shape, by Kind rather than by the engine's
// numeric Code, so new ERR_XXX codes never need a new case here.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var ee *errors.EngineError
	if stderrors.As(err, &ee) {
		return mapEngineError(ee)
	}
	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}

func mapEngineError(ee *errors.EngineError) *MCPError {
	switch ee.Kind {
	case errors.KindNotFound:
		return &MCPError{Code: ErrResourceNotFound.Code, Message: ee.Message}
	case errors.KindInvalidArgument:
		return &MCPError{Code: ErrCodeInvalidParams, Message: ee.Message}
	case errors.KindTimeout, errors.KindTransientNetwork, errors.KindTransientIO,
		errors.KindTransientStorage, errors.KindTransientLock, errors.KindFileLocked:
		return &MCPError{Code: -32002, Message: ee.Message}
	case errors.KindRateLimited:
		return &MCPError{Code: -32003, Message: ee.Message}
	case errors.KindPermissionDenied:
		return &MCPError{Code: -32004, Message: ee.Message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: ee.Message}
	}
}
