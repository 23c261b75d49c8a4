package network

import (
	"context"

	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// ConvertResponse is the default Adapter.
//
// It converts the raw response to the normalized response,
// a conversion error is returned as it is.
// If the raw status code is >= 400, the RequestError with the normalized response is returned.
func ConvertResponse(next RawNextFunc) NextFunc {
	return func(ctx context.Context, req *request.Request) (*response.Response, error) {
		raw, err := next(ctx, req)
		if err != nil {
			return nil, err
		}

		res, err := response.FromHTTP(raw)
		if err != nil {
			return nil, err
		}

		// Status is checked on the raw response, the error carries the normalized one
		if raw.StatusCode >= 400 {
			return nil, NewRequestError(req, res)
		}

		return res, nil
	}
}
