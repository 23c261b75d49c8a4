package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

var (
	// ErrNoResponse is matched by a RequestError without a response.
	ErrNoResponse = errors.New("server does not return response")
	// ErrErrorStatus is matched by a RequestError with the response status >= 400.
	ErrErrorStatus = errors.New("server response had an error status")
	// ErrGraphQL is matched by a RequestError with GraphQL errors in the response.
	ErrGraphQL = errors.New("server response contains GraphQL errors")
	// ErrNoData is matched by a RequestError without "data" in the response.
	ErrNoData = errors.New(`server does not return "data" in response`)
)

// RequestError is the uniform error of a failed request.
// It carries the request and the normalized response, if any.
//
// Use errors.Is with ErrNoResponse, ErrErrorStatus, ErrGraphQL or ErrNoData to check the reason,
// GraphQL errors can be extracted by errors.As to the response.GraphQLError type.
type RequestError struct {
	Request  *request.Request
	Response *response.Response
}

// NewRequestError creates the RequestError, the response can be nil.
func NewRequestError(req *request.Request, res *response.Response) *RequestError {
	return &RequestError{Request: req, Response: res}
}

// StatusCode returns the response status code or 0 if there is no response.
func (e *RequestError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.Status
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(`relay request for "%s" failed`, e.operationName()))

	res := e.Response
	switch {
	case res == nil:
		b.WriteString(": " + ErrNoResponse.Error())
	case res.Status >= 400:
		b.WriteString(fmt.Sprintf(": %s: %d %s", ErrErrorStatus, res.Status, res.StatusText))
		if text := strings.TrimSpace(res.Text); text != "" {
			b.WriteString("\n" + truncate(text, 500))
		}
	case len(res.Errors) > 0:
		b.WriteString(" by the following reasons:")
		for i, item := range res.Errors {
			b.WriteString(fmt.Sprintf("\n%d. %s", i+1, item.Message))
			for _, l := range item.Locations {
				b.WriteString(fmt.Sprintf("\n   at line %d, column %d", l.Line, l.Column))
			}
			if len(item.Path) > 0 {
				b.WriteString(fmt.Sprintf("\n   path: %v", item.Path))
			}
		}
	case res.Data == nil:
		b.WriteString(": " + ErrNoData.Error())
	default:
		b.WriteString(": unknown reason")
	}

	return b.String()
}

// Unwrap returns the reason sentinel followed by GraphQL errors of the response.
func (e *RequestError) Unwrap() []error {
	res := e.Response
	switch {
	case res == nil:
		return []error{ErrNoResponse}
	case res.Status >= 400:
		return []error{ErrErrorStatus}
	case len(res.Errors) > 0:
		out := []error{ErrGraphQL}
		for _, item := range res.Errors {
			out = append(out, item)
		}
		return out
	case res.Data == nil:
		return []error{ErrNoData}
	default:
		return nil
	}
}

func (e *RequestError) operationName() string {
	if e.Request == nil {
		return "unknown"
	}
	return e.Request.OperationName()
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length] + "..."
}
