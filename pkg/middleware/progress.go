package middleware

import (
	"context"
	"net/http"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/network/counter"
	"github.com/relaynet/go-relay-network/pkg/request"
)

// ProgressFunc receives the number of downloaded bytes of the response body
// and the expected total, it is -1 if the Content-Length is unknown.
type ProgressFunc func(ctx context.Context, req *request.Request, downloaded, total int64)

// Progress reports the download of the response body.
// It is a raw middleware: counted are the bytes on the wire, before decompression.
func Progress(fn ProgressFunc) network.RawMiddleware {
	return func(next network.RawNextFunc) network.RawNextFunc {
		return func(ctx context.Context, req *request.Request) (*http.Response, error) {
			res, err := next(ctx, req)
			if err != nil || res == nil || res.Body == nil || fn == nil {
				return res, err
			}

			total := res.ContentLength
			res.Body = counter.NewReadCloser(res.Body, nil).WithOnRead(func(_ int, downloaded int64) {
				fn(ctx, req, downloaded, total)
			})
			return res, nil
		}
	}
}
