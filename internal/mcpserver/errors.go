package mcpserver

import (
	"fmt"

	"github.com/filecompass/compass/internal/cerrors"
)

// Custom MCP error codes, in the implementation-defined server-error range
// reserved by JSON-RPC (-32000 to -32099), one per error kind that
// isn't already a standard JSON-RPC code.
const (
	codeNotIndexed         = -32001
	codeNotFound           = -32002
	codeAccessDenied       = -32003
	codeBackendUnavailable = -32004
	codeBackendProtocol    = -32005
	codeIndexCorrupt       = -32006
	codeInvalidParams      = -32602
	codeInternalError      = -32603
)

// MCPError is a JSON-RPC-shaped error surfaced to MCP clients.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// MapError converts a structured cerrors.Error into an MCPError, keeping
// the error taxonomy visible to the client without leaking internal
// detail for Internal-kind failures.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch cerrors.GetKind(err) {
	case cerrors.NotIndexed:
		return &MCPError{Code: codeNotIndexed, Message: "project has not been indexed yet; run the scan tool first"}
	case cerrors.NotFound:
		return &MCPError{Code: codeNotFound, Message: err.Error()}
	case cerrors.AccessDenied:
		return &MCPError{Code: codeAccessDenied, Message: "path is not accessible"}
	case cerrors.InvalidArgument:
		return &MCPError{Code: codeInvalidParams, Message: err.Error()}
	case cerrors.BackendUnavailable:
		return &MCPError{Code: codeBackendUnavailable, Message: "embedding backend is unreachable"}
	case cerrors.BackendProtocol:
		return &MCPError{Code: codeBackendProtocol, Message: "embedding backend returned an invalid response"}
	case cerrors.IndexCorrupt:
		return &MCPError{Code: codeIndexCorrupt, Message: "index is corrupt and requires a full rebuild"}
	default:
		return &MCPError{Code: codeInternalError, Message: "internal error"}
	}
}
