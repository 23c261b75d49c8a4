package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// RequestIDHeader is the header set by the RequestID middleware.
const RequestIDHeader = "X-Request-Id"

// RequestID sets a unique X-Request-Id header, an id already set in the request is kept.
// Retries of the request keep the same id.
func RequestID() network.Middleware {
	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			if req.Header == nil {
				req.Header = make(http.Header)
			}
			if req.Header.Get(RequestIDHeader) == "" {
				req.Header.Set(RequestIDHeader, uuid.New().String())
			}
			return next(ctx, req)
		}
	}
}
