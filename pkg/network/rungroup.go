package network

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// RunGroupConcurrencyLimit is the maximum number of concurrent requests in one RunGroup.
const RunGroupConcurrencyLimit = 16

// Listener is called when the request is completed, with the response, the error or both.
// The returned error replaces the original one, so the listener can ignore or wrap it.
type Listener func(ctx context.Context, res *response.Response, err error) error

// RunGroup schedules requests by the Add method
// and then executes them concurrently by the RunAndWait method.
//
// The execution stops when the first error occurs, it is returned from the RunAndWait method.
// Use WaitGroup to execute requests immediately or to collect all errors.
type RunGroup struct {
	ctx      context.Context
	executor Executor
	start    chan struct{}
	group    *errgroup.Group
	sem      *semaphore.Weighted
}

// NewRunGroup creates a new RunGroup.
func NewRunGroup(ctx context.Context, executor Executor) *RunGroup {
	return NewRunGroupWithLimit(ctx, executor, RunGroupConcurrencyLimit)
}

// NewRunGroupWithLimit creates a new RunGroup with given concurrent requests limit.
func NewRunGroupWithLimit(ctx context.Context, executor Executor, limit int64) *RunGroup {
	group, ctx := errgroup.WithContext(ctx)
	return &RunGroup{
		ctx:      ctx,
		executor: executor,
		start:    make(chan struct{}),
		group:    group,
		sem:      semaphore.NewWeighted(limit),
	}
}

// Add schedules the request, it is executed after the RunAndWait call.
// Requests can be added from a listener, while RunAndWait is not finished.
func (g *RunGroup) Add(req *request.Request, listeners ...Listener) {
	g.group.Go(func() error {
		<-g.start

		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			// Ctx is done
			return err
		}
		defer g.sem.Release(1)

		return executeWithListeners(g.ctx, g.executor, req, listeners)
	})
}

// RunAndWait starts the execution and waits for all requests.
// After the first error the execution stops and the error is returned.
func (g *RunGroup) RunAndWait() error {
	close(g.start)
	return g.group.Wait()
}

func executeWithListeners(ctx context.Context, executor Executor, req *request.Request, listeners []Listener) error {
	res, err := executor.Execute(ctx, req)
	for _, fn := range listeners {
		err = fn(ctx, res, err)
	}
	return err
}
