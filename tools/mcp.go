package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/discordweb/kit"
)

// Implementation identifies the MCP server.
var Implementation = &mcp.Implementation{Name: "discordweb", Version: "0.3.0"}

// NewServer returns an MCP server with every tool registered. mws wrap
// each tool endpoint, outermost first.
func (s *Service) NewServer(mws ...kit.Middleware) *mcp.Server {
	srv := mcp.NewServer(Implementation, nil)
	s.Register(srv, mws...)
	return srv
}

// Register adds every tool to srv.
func (s *Service) Register(srv *mcp.Server, mws ...kit.Middleware) {
	chain := kit.Chain(mws...)
	add := func(tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
		kit.RegisterMCPTool(srv, tool, chain(endpoint), decode)
	}

	add(getServersTool, func(ctx context.Context, _ any) (any, error) {
		return s.Servers(ctx)
	}, kit.DecodeJSON[struct{}]())

	add(getChannelsTool, func(ctx context.Context, req any) (any, error) {
		return s.Channels(ctx, req.(*ChannelsRequest))
	}, kit.DecodeJSON[ChannelsRequest]())

	add(readMessagesTool, func(ctx context.Context, req any) (any, error) {
		return s.Messages(ctx, req.(*MessagesRequest))
	}, kit.DecodeJSON[MessagesRequest]())

	add(sendMessageTool, func(ctx context.Context, req any) (any, error) {
		return s.Send(ctx, req.(*SendRequest))
	}, kit.DecodeJSON[SendRequest]())

	add(discoverChannelsTool, func(ctx context.Context, req any) (any, error) {
		return s.Discover(ctx, req.(*DiscoverRequest))
	}, kit.DecodeJSON[DiscoverRequest]())

	add(sessionStatusTool, func(ctx context.Context, _ any) (any, error) {
		return s.SessionStatus(ctx)
	}, kit.DecodeJSON[struct{}]())

	add(logoutTool, func(ctx context.Context, _ any) (any, error) {
		return s.Logout(ctx)
	}, kit.DecodeJSON[struct{}]())
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var (
	serverID  = map[string]any{"type": "string", "description": "Discord server (guild) ID"}
	channelID = map[string]any{"type": "string", "description": "Discord channel ID"}
)

var getServersTool = &mcp.Tool{
	Name:        "get_servers",
	Description: "List all Discord servers (guilds) you have access to",
	InputSchema: inputSchema(map[string]any{}, nil),
}

var getChannelsTool = &mcp.Tool{
	Name:        "get_channels",
	Description: "List all channels in a specific Discord server",
	InputSchema: inputSchema(map[string]any{"server_id": serverID}, []string{"server_id"}),
}

var readMessagesTool = &mcp.Tool{
	Name:        "read_messages",
	Description: "Read recent messages from a specific channel, newest first",
	InputSchema: inputSchema(map[string]any{
		"server_id":    serverID,
		"channel_id":   channelID,
		"hours_back":   map[string]any{"type": "integer", "minimum": MinHoursBack, "maximum": MaxHoursBack, "description": "How many hours back to read messages (default 24)"},
		"max_messages": map[string]any{"type": "integer", "minimum": 1, "description": "Maximum number of messages to read (default 100)"},
		"summary":      map[string]any{"type": "boolean", "description": "Also return batch statistics"},
	}, []string{"server_id", "channel_id"}),
}

var sendMessageTool = &mcp.Tool{
	Name:        "send_message",
	Description: "Send a message to a specific Discord channel",
	InputSchema: inputSchema(map[string]any{
		"server_id":  serverID,
		"channel_id": channelID,
		"content":    map[string]any{"type": "string", "minLength": 1, "maxLength": MaxContentRunes, "description": "Message content to send"},
	}, []string{"server_id", "channel_id", "content"}),
}

var discoverChannelsTool = &mcp.Tool{
	Name:        "discover_channels",
	Description: "Find channels by name across servers using keywords, a keyword preset or a regular expression",
	InputSchema: inputSchema(map[string]any{
		"keywords":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Case-insensitive substrings"},
		"preset":     map[string]any{"type": "string", "enum": []any{"announcements", "feedback"}, "description": "Keyword preset"},
		"pattern":    map[string]any{"type": "string", "description": "Case-insensitive regular expression"},
		"server_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Servers to search (default: configured servers, else all)"},
	}, nil),
}

var sessionStatusTool = &mcp.Tool{
	Name:        "session_status",
	Description: "Report the browser session: policy, liveness, login state and saved session file",
	InputSchema: inputSchema(map[string]any{}, nil),
}

var logoutTool = &mcp.Tool{
	Name:        "logout",
	Description: "Close the browser and delete the saved session so the next call logs in again",
	InputSchema: inputSchema(map[string]any{}, nil),
}
