// Package mcp implements the Model Context Protocol endpoint at /api/mcp:
// a stateless JSON-RPC 2.0 surface exposing file operations as tools to AI
// agent clients. Authentication is the same Bearer API key as /api/v2.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
)

const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// toolDescriptor is one entry in the tools/list response.
type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// toolResult is the MCP tools/call result shape: text content blocks plus an
// error flag for tool-level failures (as opposed to protocol errors).
type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Handlers serves the MCP endpoint.
type Handlers struct {
	svc *services.FileService
}

// NewHandlers creates the MCP handlers.
func NewHandlers(svc *services.FileService) *Handlers {
	return &Handlers{svc: svc}
}

// Get handles GET /api/mcp. The server is stateless and offers no standalone
// event stream, which the protocol signals with 405.
func (h *Handlers) Get(c *gin.Context) {
	c.Header("Allow", "POST")
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "stateless server; use POST"})
}

// Post handles POST /api/mcp: one JSON-RPC request per HTTP request.
func (h *Handlers) Post(c *gin.Context) {
	var req rpcRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error"},
		})
		return
	}

	// Notifications carry no id and get no response body.
	if len(req.ID) == 0 {
		c.Status(http.StatusAccepted)
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = gin.H{
			"protocolVersion": protocolVersion,
			"capabilities":    gin.H{"tools": gin.H{}},
			"serverInfo":      gin.H{"name": "easybits", "version": "2.0"},
		}
	case "ping":
		resp.Result = gin.H{}
	case "tools/list":
		resp.Result = gin.H{"tools": toolCatalog()}
	case "tools/call":
		result, rpcErr := h.callTool(c.Request.Context(), middleware.UserID(c), req.Params)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
	c.JSON(http.StatusOK, resp)
}

func toolCatalog() []toolDescriptor {
	obj := func(props gin.H, required ...string) gin.H {
		schema := gin.H{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}
	return []toolDescriptor{
		{
			Name:        "list_files",
			Description: "List the caller's files, newest first.",
			InputSchema: obj(gin.H{
				"limit": gin.H{"type": "integer", "description": "max files to return (default 50)"},
			}),
		},
		{
			Name:        "get_file",
			Description: "Fetch one file's metadata by id.",
			InputSchema: obj(gin.H{
				"file_id": gin.H{"type": "string"},
			}, "file_id"),
		},
		{
			Name:        "upload_file",
			Description: "Create a file record and return a presigned upload URL.",
			InputSchema: obj(gin.H{
				"name":         gin.H{"type": "string"},
				"content_type": gin.H{"type": "string"},
				"size":         gin.H{"type": "integer", "description": "size in bytes"},
			}, "name", "content_type", "size"),
		},
		{
			Name:        "delete_file",
			Description: "Soft-delete a file by id.",
			InputSchema: obj(gin.H{
				"file_id": gin.H{"type": "string"},
			}, "file_id"),
		},
	}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (h *Handlers) callTool(ctx context.Context, userID string, raw json.RawMessage) (*toolResult, *rpcError) {
	var params callParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
	}

	var (
		out any
		err error
	)
	switch params.Name {
	case "list_files":
		var args struct {
			Limit int `json:"limit"`
		}
		if len(params.Arguments) > 0 {
			if uerr := json.Unmarshal(params.Arguments, &args); uerr != nil {
				return nil, &rpcError{Code: codeInvalidParams, Message: "invalid arguments"}
			}
		}
		if args.Limit <= 0 || args.Limit > 200 {
			args.Limit = 50
		}
		out, err = h.svc.List(ctx, userID, repositories.ListFilter{Limit: args.Limit})
	case "get_file":
		var args struct {
			FileID string `json:"file_id"`
		}
		if uerr := json.Unmarshal(params.Arguments, &args); uerr != nil || args.FileID == "" {
			return nil, &rpcError{Code: codeInvalidParams, Message: "file_id is required"}
		}
		out, err = h.svc.Get(ctx, userID, args.FileID)
	case "upload_file":
		var args struct {
			Name        string `json:"name"`
			ContentType string `json:"content_type"`
			Size        int64  `json:"size"`
		}
		if uerr := json.Unmarshal(params.Arguments, &args); uerr != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid arguments"}
		}
		out, err = h.svc.CreateUpload(ctx, userID, services.CreateFileInput{
			Name:        args.Name,
			ContentType: args.ContentType,
			Size:        args.Size,
		})
	case "delete_file":
		var args struct {
			FileID string `json:"file_id"`
		}
		if uerr := json.Unmarshal(params.Arguments, &args); uerr != nil || args.FileID == "" {
			return nil, &rpcError{Code: codeInvalidParams, Message: "file_id is required"}
		}
		if err = h.svc.Delete(ctx, userID, args.FileID); err == nil {
			out = gin.H{"deleted": true, "file_id": args.FileID}
		}
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown tool %q", params.Name)}
	}

	// Domain failures surface as tool errors, not protocol errors, so the
	// agent can read them.
	if err != nil {
		if isExpected(err) {
			return &toolResult{
				Content: []toolContent{{Type: "text", Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return nil, &rpcError{Code: codeInternalError, Message: "internal error"}
	}

	text, merr := json.Marshal(out)
	if merr != nil {
		return nil, &rpcError{Code: codeInternalError, Message: "internal error"}
	}
	return &toolResult{Content: []toolContent{{Type: "text", Text: string(text)}}}, nil
}

func isExpected(err error) bool {
	return errors.Is(err, services.ErrNotFound) ||
		errors.Is(err, services.ErrForbidden) ||
		errors.Is(err, services.ErrValidation) ||
		errors.Is(err, services.ErrConflict) ||
		errors.Is(err, services.ErrRetentionExpired)
}
