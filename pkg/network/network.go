// Package network dispatches GraphQL requests through a chain of middlewares to the GraphQL server.
//
// The chain consists of:
//   - Middleware list, it works with the normalized response.Response.
//   - Adapter, it converts the raw *http.Response to the response.Response, see ConvertResponse.
//   - RawMiddleware list, it works with the raw *http.Response.
//   - Fetcher, it sends the request to the server, it is called by the innermost link.
//
// The first Middleware is the outermost one, the last RawMiddleware is the closest to the Fetcher.
//
// Network is an immutable value, With* methods return a modified clone.
// It is safe for concurrent use, each Execute call composes its own chain.
package network

import (
	"context"
	"fmt"

	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// Executor sends a GraphQL request and returns the normalized response.
type Executor interface {
	Execute(ctx context.Context, req *request.Request) (*response.Response, error)
}

// Network holds the Fetcher and the middleware chain configuration.
type Network struct {
	fetcher        Fetcher
	middlewares    []Middleware
	rawMiddlewares []RawMiddleware
	noThrow        bool
}

// New creates the Network with the default Fetcher and no middlewares.
func New() Network {
	return Network{fetcher: NewFetcher()}
}

// Fetcher returns the transport invoker.
func (n Network) Fetcher() Fetcher {
	return n.fetcher
}

// WithFetcher returns a clone of the Network with the Fetcher set.
func (n Network) WithFetcher(f Fetcher) Network {
	n.fetcher = f
	return n
}

// WithBaseURL is a shortcut for the Fetcher.WithBaseURL.
func (n Network) WithBaseURL(baseURL string) Network {
	n.fetcher = n.fetcher.WithBaseURL(baseURL)
	return n
}

// WithMiddlewares returns a clone of the Network with the middlewares list replaced.
func (n Network) WithMiddlewares(middlewares ...Middleware) Network {
	n.middlewares = append([]Middleware(nil), middlewares...)
	return n
}

// AndMiddleware returns a clone of the Network with the middleware appended, it becomes the innermost one.
func (n Network) AndMiddleware(middlewares ...Middleware) Network {
	n.middlewares = append(append([]Middleware(nil), n.middlewares...), middlewares...)
	return n
}

// WithRawMiddlewares returns a clone of the Network with the raw middlewares list replaced.
func (n Network) WithRawMiddlewares(middlewares ...RawMiddleware) Network {
	n.rawMiddlewares = append([]RawMiddleware(nil), middlewares...)
	return n
}

// AndRawMiddleware returns a clone of the Network with the raw middleware appended.
func (n Network) AndRawMiddleware(middlewares ...RawMiddleware) Network {
	n.rawMiddlewares = append(append([]RawMiddleware(nil), n.rawMiddlewares...), middlewares...)
	return n
}

// WithNoThrow returns a clone of the Network, if noThrow is true,
// a response with GraphQL errors or without data is returned without an error.
// An error status >= 400 is always an error.
func (n Network) WithNoThrow(noThrow bool) Network {
	n.noThrow = noThrow
	return n
}

// Execute sends the request through the chain, see FetchWithMiddleware.
func (n Network) Execute(ctx context.Context, req *request.Request) (*response.Response, error) {
	// Method cannot be called on an empty value
	if n.fetcher.transport == nil {
		panic(fmt.Errorf("network value is not initialized"))
	}
	return FetchWithMiddleware(ctx, n.fetcher.Fetch, req, n.middlewares, n.rawMiddlewares, n.noThrow)
}

// Query creates the request from the operation and executes it.
func (n Network) Query(ctx context.Context, op request.Operation) (*response.Response, error) {
	return n.Execute(ctx, request.New(op))
}
