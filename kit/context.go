package kit

import "context"

type contextKey string

const (
	ToolKey      contextKey = "kit_tool"
	TransportKey contextKey = "kit_transport" // "mcp_stdio", "cli"
	RequestIDKey contextKey = "kit_request_id"
	ArgumentsKey contextKey = "kit_arguments"
)

func WithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ToolKey, name)
}
func GetTool(ctx context.Context) string {
	v, _ := ctx.Value(ToolKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "mcp_stdio"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// WithArguments stores the raw JSON arguments of the call.
func WithArguments(ctx context.Context, args []byte) context.Context {
	return context.WithValue(ctx, ArgumentsKey, args)
}
func GetArguments(ctx context.Context) []byte {
	v, _ := ctx.Value(ArgumentsKey).([]byte)
	return v
}
