package network

import (
	"context"

	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// FetchWithMiddleware sends the request through the middlewares and the fetch function.
//
// The chain is [middlewares..., ConvertResponse, rawMiddlewares...] wrapping the fetch function, see Compose.
// Any error from the chain is returned unchanged.
// If the chain succeeds, the response must contain "data" and no GraphQL errors,
// otherwise the RequestError is returned. This check is skipped if noThrow is true.
func FetchWithMiddleware(
	ctx context.Context,
	fetch RawNextFunc,
	req *request.Request,
	middlewares []Middleware,
	rawMiddlewares []RawMiddleware,
	noThrow bool,
) (*response.Response, error) {
	wrappedFetch := Compose(middlewares, ConvertResponse, rawMiddlewares, fetch)

	res, err := wrappedFetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if !noThrow && (res == nil || len(res.Errors) > 0 || res.Data == nil) {
		return res, NewRequestError(req, res)
	}

	return res, nil
}
