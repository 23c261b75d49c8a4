package network

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/relaynet/go-relay-network/pkg/request"
)

// WaitGroupConcurrencyLimit is the maximum number of concurrent requests in one WaitGroup.
const WaitGroupConcurrencyLimit = 8

// WaitGroup executes requests concurrently by the Execute method
// and waits for them by the Wait method.
//
// A request starts immediately, an error doesn't stop other requests.
// The Wait method returns all errors that have occurred.
// Use RunGroup to schedule requests or to stop at the first error.
type WaitGroup struct {
	ctx      context.Context
	executor Executor
	wg       *sync.WaitGroup
	sem      *semaphore.Weighted

	lock *sync.Mutex
	err  *multierror.Error
}

// NewWaitGroup creates new WaitGroup.
func NewWaitGroup(ctx context.Context, executor Executor) *WaitGroup {
	return NewWaitGroupWithLimit(ctx, executor, WaitGroupConcurrencyLimit)
}

// NewWaitGroupWithLimit creates new WaitGroup with given concurrent requests limit.
func NewWaitGroupWithLimit(ctx context.Context, executor Executor, limit int64) *WaitGroup {
	return &WaitGroup{ctx: ctx, executor: executor, wg: &sync.WaitGroup{}, sem: semaphore.NewWeighted(limit), lock: &sync.Mutex{}}
}

// Wait for all requests. All errors that have occurred are returned.
func (g *WaitGroup) Wait() error {
	g.wg.Wait()
	g.lock.Lock()
	defer g.lock.Unlock()
	// Single error is not wrapped
	if g.err != nil && len(g.err.Errors) == 1 {
		return g.err.Errors[0]
	}
	return g.err.ErrorOrNil()
}

// Execute starts the request in a goroutine.
func (g *WaitGroup) Execute(req *request.Request, listeners ...Listener) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			g.addError(err)
			return
		}
		defer g.sem.Release(1)

		if err := executeWithListeners(g.ctx, g.executor, req, listeners); err != nil {
			g.addError(err)
		}
	}()
}

func (g *WaitGroup) addError(err error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.err = multierror.Append(g.err, err)
}
