// Package response provides the normalized GraphQL Response.
//
// The Response is created from a raw *http.Response by the FromHTTP function.
// A successful (2xx) body is decoded as a GraphQL JSON payload,
// a body of any other status is kept only as a text.
package response

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/relaynet/go-relay-network/pkg/response/decode"
)

// ErrInvalidPayload is wrapped by errors of a response body which cannot be decoded.
var ErrInvalidPayload = errors.New("invalid response payload")

// Response is the normalized result of one request.
type Response struct {
	Status     int            `json:"status"`
	StatusText string         `json:"statusText,omitempty"`
	OK         bool           `json:"ok"`
	URL        string         `json:"url,omitempty"`
	Header     http.Header    `json:"header,omitempty"`
	Text       string         `json:"text,omitempty"`
	JSON       any            `json:"json,omitempty"`
	Data       any            `json:"data,omitempty"`
	Errors     []GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Location of a GraphQL error in the query.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is one item of the "errors" list of a GraphQL response.
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// payload is the GraphQL response object.
type payload struct {
	Data       any            `json:"data"`
	Errors     []GraphQLError `json:"errors"`
	Extensions map[string]any `json:"extensions"`
}

// FromHTTP converts the raw response to the Response, the raw body is read and closed.
func FromHTTP(raw *http.Response) (*Response, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no response", ErrInvalidPayload)
	}

	out := &Response{
		Status:     raw.StatusCode,
		StatusText: http.StatusText(raw.StatusCode),
		OK:         raw.StatusCode > 199 && raw.StatusCode < 300,
		Header:     raw.Header,
	}
	if raw.Request != nil && raw.Request.URL != nil {
		out.URL = raw.Request.URL.String()
	}

	body, err := readBody(raw)
	if err != nil {
		return nil, err
	}

	if !out.OK {
		out.Text = string(body)
		return out, nil
	}

	if err := out.setJSON(body); err != nil {
		return nil, err
	}
	return out, nil
}

// FromJSON creates the Response from a status code and a JSON body.
func FromJSON(status int, body []byte) (*Response, error) {
	out := &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		OK:         status > 199 && status < 300,
		Header:     make(http.Header),
	}
	if err := out.setJSON(body); err != nil {
		return nil, err
	}
	return out, nil
}

// HasErrors returns true if the response contains GraphQL errors.
func (r *Response) HasErrors() bool {
	return len(r.Errors) > 0
}

// DecodeData maps the "data" field to the target value.
func (r *Response) DecodeData(target any) error {
	bytes, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf(`cannot encode data: %w`, err)
	}
	if err := json.Unmarshal(bytes, target); err != nil {
		return fmt.Errorf(`cannot decode data to %T: %w`, target, err)
	}
	return nil
}

func (r *Response) setJSON(body []byte) error {
	r.Text = string(body)

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf(`%w: cannot decode JSON: %w`, ErrInvalidPayload, err)
	}
	r.JSON = value

	// Only an object is a GraphQL payload
	if _, ok := value.(map[string]any); !ok {
		return nil
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf(`%w: cannot decode GraphQL payload: %w`, ErrInvalidPayload, err)
	}
	r.Data = p.Data
	r.Errors = p.Errors
	r.Extensions = p.Extensions
	return nil
}

func readBody(raw *http.Response) ([]byte, error) {
	if raw.Body == nil || raw.StatusCode == http.StatusNoContent {
		if raw.Body != nil {
			_ = raw.Body.Close()
		}
		return nil, nil
	}

	body, err := decode.Decode(raw.Body, raw.Header.Get("Content-Encoding"))
	if err != nil {
		_ = raw.Body.Close()
		return nil, fmt.Errorf(`%w: %w`, ErrInvalidPayload, err)
	}
	defer body.Close()

	bytes, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf(`cannot read response body: %w`, err)
	}
	return bytes, nil
}
