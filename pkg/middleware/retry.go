package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// RetriesCount - default retries count.
const RetriesCount = 5

// RetryTotalTimeout - default maximum time spent by all attempts.
const RetryTotalTimeout = 60 * time.Second

// RetryWaitTimeStart - default retry interval.
const RetryWaitTimeStart = 100 * time.Millisecond

// RetryWaitTimeMax - default maximum retry interval.
const RetryWaitTimeMax = 3 * time.Second

type retryAttemptCtxKey struct{}

// RetryConfig configures the Retry middleware.
type RetryConfig struct {
	Condition           RetryCondition
	Count               int
	TotalRequestTimeout time.Duration
	WaitTimeStart       time.Duration
	WaitTimeMax         time.Duration
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(ctx context.Context, req *request.Request, attempt int, delay time.Duration, err error)
}

// RetryCondition defines which results should retry.
// The response is nil on a transport error, on an error status it is taken from the *network.RequestError.
type RetryCondition func(res *response.Response, err error) bool

// TestingRetry - fast retry for use in tests.
func TestingRetry() RetryConfig {
	v := DefaultRetry()
	v.WaitTimeStart = 1 * time.Millisecond
	v.WaitTimeMax = 1 * time.Millisecond
	return v
}

// DefaultRetry returns a default RetryConfig.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		TotalRequestTimeout: RetryTotalTimeout,
		Count:               RetriesCount,
		WaitTimeStart:       RetryWaitTimeStart,
		WaitTimeMax:         RetryWaitTimeMax,
		Condition:           DefaultRetryCondition(),
	}
}

// DefaultRetryCondition retries on common network and HTTP errors.
func DefaultRetryCondition() RetryCondition {
	return func(res *response.Response, err error) bool {
		// A broken payload or an interrupted context never recovers
		switch {
		case err == nil:
			return false
		case errors.Is(err, response.ErrInvalidPayload):
			return false
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return false
		}

		// On network errors - except hostname not found
		if res == nil || res.Status == 0 {
			switch {
			case strings.Contains(err.Error(), "No address associated with hostname"):
				return false
			case strings.Contains(err.Error(), "no such host"):
				return false
			default:
				return true
			}
		}

		// On HTTP status codes
		switch res.Status {
		case
			http.StatusRequestTimeout,
			http.StatusConflict,
			http.StatusLocked,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
}

// NewBackoff returns an exponential backoff for retries.
func (c RetryConfig) NewBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.WaitTimeStart
	b.MaxInterval = c.WaitTimeMax
	b.MaxElapsedTime = c.TotalRequestTimeout
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// ContextRetryAttempt returns the number of the current retry attempt, it is 0 for the first call.
func ContextRetryAttempt(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(retryAttemptCtxKey{}).(int)
	return v, ok
}

// Retry calls next again while the condition matches, up to the configured count.
//
// The request body is encoded by the transport on each call, so it is sent again unchanged.
// Waiting between attempts is interrupted by the context.
func Retry(cfg RetryConfig) network.Middleware {
	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			state := cfg.NewBackoff()
			attempt := 0
			for {
				res, err := next(context.WithValue(ctx, retryAttemptCtxKey{}, attempt), req)

				// Check if we should retry
				if cfg.Condition == nil || !cfg.Condition(resultResponse(res, err), err) || attempt >= cfg.Count {
					return res, err
				}

				// Get next delay
				delay := state.NextBackOff()
				if delay == backoff.Stop {
					return res, err
				}

				attempt++
				if cfg.OnRetry != nil {
					cfg.OnRetry(ctx, req, attempt, delay, err)
				}

				// Wait
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
					// time elapsed, retry
				}
			}
		}
	}
}

// resultResponse returns the response or the response carried by the request error.
func resultResponse(res *response.Response, err error) *response.Response {
	if res != nil {
		return res
	}
	var reqErr *network.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Response
	}
	return nil
}
