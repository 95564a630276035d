// CLAUDE:SUMMARY Endpoint and Middleware types shared by every transport, plus Chain to compose middleware.
// Package kit holds the transport-neutral endpoint type the tool surface is
// built from, its middleware chain, and the MCP adapter.
package kit

import "context"

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
