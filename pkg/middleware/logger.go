package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// Log field names.
const (
	FieldOperation     = "operation"
	FieldOperationType = "operation_type"
	FieldURL           = "url"
	FieldMethod        = "method"
	FieldStatus        = "status"
	FieldDuration      = "duration"
	FieldRequestID     = "request_id"
	FieldPath          = "path"
)

// Logger logs each request when its response is received.
// A successful request is logged at debug level, a failed one at warn level.
func Logger(logger zerolog.Logger) network.Middleware {
	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			startedAt := time.Now()
			res, err := next(ctx, req)

			var event *zerolog.Event
			if err != nil {
				event = logger.Warn().Err(err)
			} else {
				event = logger.Debug()
			}
			if !event.Enabled() {
				return res, err
			}

			event = withRequest(event, req).
				Str(FieldURL, req.URL).
				Str(FieldMethod, req.Method).
				Dur(FieldDuration, time.Since(startedAt))
			if status := responseStatus(res, err); status != 0 {
				event = event.Int(FieldStatus, status)
			}
			event.Msg("relay request done")

			return res, err
		}
	}
}

// Error logs GraphQL errors of the response, the result is returned unchanged.
func Error(logger zerolog.Logger) network.Middleware {
	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			res, err := next(ctx, req)

			result := resultResponse(res, err)
			if result == nil {
				return res, err
			}
			for _, item := range result.Errors {
				event := withRequest(logger.Error(), req)
				if len(item.Path) > 0 {
					event = event.Interface(FieldPath, item.Path)
				}
				event.Msg(item.Message)
			}

			return res, err
		}
	}
}

func withRequest(event *zerolog.Event, req *request.Request) *zerolog.Event {
	operationType := "query"
	if req.IsMutation() {
		operationType = "mutation"
	}
	event = event.Str(FieldOperation, req.OperationName()).Str(FieldOperationType, operationType)
	if id := req.Header.Get(RequestIDHeader); id != "" {
		event = event.Str(FieldRequestID, id)
	}
	return event
}

func responseStatus(res *response.Response, err error) int {
	if res := resultResponse(res, err); res != nil {
		return res.Status
	}
	return 0
}
