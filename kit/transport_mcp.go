package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/discordweb/idgen"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// ErrorEnvelope is the JSON body of a failed tool call.
type ErrorEnvelope struct {
	Error     string          `json:"error"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// RequestIDs mints the per-call request id put in the context.
var RequestIDs = idgen.Prefixed("req_", idgen.Default)

// RegisterMCPTool registers an Endpoint as an MCP tool on the given server.
// The decode function extracts the typed request from the raw arguments.
// Decode and endpoint failures become an ErrorEnvelope result flagged
// IsError; they are never returned as protocol errors.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*MCPDecodeResult, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := rawArguments(req)
		ctx = WithTool(ctx, tool.Name)
		ctx = WithRequestID(ctx, RequestIDs())
		ctx = WithArguments(ctx, args)

		decoded, err := decode(req)
		if err != nil {
			return errorResult(tool.Name, args, fmt.Errorf("invalid arguments: %w", err)), nil
		}
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return errorResult(tool.Name, args, err), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return errorResult(tool.Name, args, fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// DecodeJSON returns a decode function unmarshalling the arguments into a
// fresh T. Empty arguments decode to the zero T.
func DecodeJSON[T any]() func(*mcp.CallToolRequest) (*MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var r T
		if args := rawArguments(req); len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, err
			}
		}
		return &MCPDecodeResult{Request: &r}, nil
	}
}

func rawArguments(req *mcp.CallToolRequest) json.RawMessage {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return json.RawMessage("{}")
	}
	return req.Params.Arguments
}

func errorResult(tool string, args json.RawMessage, err error) *mcp.CallToolResult {
	if !json.Valid(args) {
		args = json.RawMessage("{}")
	}
	data, _ := json.Marshal(ErrorEnvelope{Error: err.Error(), Tool: tool, Arguments: args})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
