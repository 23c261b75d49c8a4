package network

import (
	"context"
	"fmt"
	"net/http"

	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// NextFunc sends the request and returns the normalized response.
type NextFunc func(ctx context.Context, req *request.Request) (*response.Response, error)

// Middleware wraps a NextFunc, it works with the normalized response.
//
// A middleware may modify the request before calling next, inspect or replace the result after,
// or return without calling next at all (short-circuit).
type Middleware func(next NextFunc) NextFunc

// RawNextFunc sends the request and returns the raw HTTP response.
type RawNextFunc func(ctx context.Context, req *request.Request) (*http.Response, error)

// RawMiddleware wraps a RawNextFunc, it works with the raw HTTP response.
type RawMiddleware func(next RawNextFunc) RawNextFunc

// Adapter is the boundary between raw and normalized middlewares, see ConvertResponse.
type Adapter func(next RawNextFunc) NextFunc

// Compose builds one NextFunc from the middlewares, the adapter, the raw middlewares and the terminal function.
//
// The composition is folded from right to left over [middlewares..., adapter, rawMiddlewares...]:
// each item wraps everything on its right, the last raw middleware wraps the terminal.
// So the first middleware is the outermost one.
//
// Each item is called exactly once, the composition itself does no I/O.
// Nil items are skipped, a nil adapter is replaced by ConvertResponse.
func Compose(middlewares []Middleware, adapter Adapter, rawMiddlewares []RawMiddleware, terminal RawNextFunc) NextFunc {
	if terminal == nil {
		panic(fmt.Errorf("terminal function cannot be nil"))
	}
	if adapter == nil {
		adapter = ConvertResponse
	}

	raw := terminal
	for i := len(rawMiddlewares) - 1; i >= 0; i-- {
		if rawMiddlewares[i] != nil {
			raw = rawMiddlewares[i](raw)
		}
	}

	next := adapter(raw)
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			next = middlewares[i](next)
		}
	}

	return next
}
