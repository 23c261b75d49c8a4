package network

import (
	"context"

	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// Parallel executes the requests concurrently by a WaitGroup.
// Responses are returned in the order of the requests, the response of a failed request is nil.
// The error contains all errors that have occurred.
func Parallel(ctx context.Context, executor Executor, requests ...*request.Request) ([]*response.Response, error) {
	out := make([]*response.Response, len(requests))
	wg := NewWaitGroup(ctx, executor)
	for i, req := range requests {
		wg.Execute(req, func(_ context.Context, res *response.Response, err error) error {
			if err == nil {
				out[i] = res
			}
			return err
		})
	}
	return out, wg.Wait()
}
