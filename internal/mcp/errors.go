// Package mcp exposes the memory service as Model Context Protocol tools
// and resources.
package mcp

import (
	"context"
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
)

// MCP error codes. The -3200x block is server-defined.
const (
	ErrCodeEmbeddingFailed  = -32002
	ErrCodeTimeout          = -32003
	ErrCodeEmbeddingPending = -32004
	ErrCodeStorage          = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a tool failure with a JSON-RPC style code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// ErrorCode is the amanmem code (ERR_xxx) when the cause carried one.
	ErrorCode string            `json:"error_code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts a service error into an MCPError. It returns nil for a
// nil error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if me, ok := amerrors.As(err); ok {
		return mapMemError(me)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapMemError(me *amerrors.MemError) *MCPError {
	message := me.Error()
	if me.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", message, me.Suggestion)
	}
	out := &MCPError{
		Code:      ErrCodeInternalError,
		Message:   message,
		ErrorCode: me.Code,
		Details:   me.Details,
	}

	switch me.Category {
	case amerrors.CategoryValidation:
		out.Code = ErrCodeInvalidParams
	case amerrors.CategoryNetwork:
		out.Code = ErrCodeTimeout
	case amerrors.CategoryStorage:
		out.Code = ErrCodeStorage
	case amerrors.CategoryInternal:
		switch me.Code {
		case amerrors.ErrCodeEmbeddingFailed:
			out.Code = ErrCodeEmbeddingFailed
		case amerrors.ErrCodeEmbeddingPending:
			out.Code = ErrCodeEmbeddingPending
		}
	}
	return out
}
