// Package request defines the Request sent through the network layer, see New function.
//
// A Request is owned by the caller for the duration of one dispatch.
// Middlewares may modify its Header and Body, but they always forward the same *Request value.
//
// The Body is usually the JSON payload of a GraphQL Operation.
// Use WithUploadables to convert it to a multipart FormData body.
package request

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Operation is a GraphQL operation: a query text or a persisted query ID, and its variables.
type Operation struct {
	// ID of a persisted query, it is sent instead of the Query if set.
	ID string
	// Name of the operation, it is used in errors, logs and metrics.
	Name string
	// Query text.
	Query string
	// Variables of the operation.
	Variables map[string]any
}

// CacheConfig contains per-request cache options.
type CacheConfig struct {
	// Force skips the cache read, the response is fetched and stored again.
	Force bool
	// Skip disables the cache for the request.
	Skip bool
}

// Request describes one outbound call.
type Request struct {
	// URL of the endpoint, the transport uses "/graphql" if empty.
	URL string
	// Method is the HTTP method, the transport uses POST if empty.
	Method string
	// Header is a case-insensitive header map.
	Header http.Header
	// Body is a structured JSON payload, a string, []byte, io.ReadSeeker or *FormData.
	Body any
	// Operation is the GraphQL operation the Body was created from.
	Operation Operation
	// Cache options.
	Cache CacheConfig
}

// New creates a POST request with a JSON body of the operation.
func New(op Operation) *Request {
	return &Request{
		Method:    http.MethodPost,
		Header:    make(http.Header),
		Body:      op.Payload(),
		Operation: op,
	}
}

// Payload returns the JSON body of the operation.
func (op Operation) Payload() map[string]any {
	out := map[string]any{"variables": op.variables()}
	if op.ID != "" {
		out["id"] = op.ID
	} else {
		out["query"] = op.Query
	}
	return out
}

// QueryParams returns the operation encoded as URL query parameters, it is used by GET requests.
func (op Operation) QueryParams() url.Values {
	out := make(url.Values)
	for k, v := range ToFormBody(op.Payload()) {
		out.Set(k, v)
	}
	return out
}

// IsMutation returns true if the operation query is a mutation.
func (op Operation) IsMutation() bool {
	return strings.HasPrefix(strings.TrimSpace(op.Query), "mutation")
}

func (op Operation) variables() map[string]any {
	if op.Variables == nil {
		return map[string]any{}
	}
	return op.Variables
}

// IsFormData returns true if the body is multipart form data.
func (r *Request) IsFormData() bool {
	_, ok := r.Body.(*FormData)
	return ok
}

// IsMutation returns true if the request contains a mutation.
func (r *Request) IsMutation() bool {
	return r.Operation.IsMutation()
}

// OperationName returns name of the operation, or the ID if the name is not set.
func (r *Request) OperationName() string {
	switch {
	case r.Operation.Name != "":
		return r.Operation.Name
	case r.Operation.ID != "":
		return r.Operation.ID
	default:
		return "unknown"
	}
}

// ID returns a key which identifies the operation and its variables, it is used by caches.
// An error is returned if the variables cannot be encoded.
func (r *Request) ID() (string, error) {
	key := r.Operation.ID
	if key == "" {
		key = r.Operation.Query
	}
	variables, err := json.Marshal(r.Operation.variables())
	if err != nil {
		return "", fmt.Errorf(`cannot encode variables of the operation "%s": %w`, r.OperationName(), err)
	}
	return key + ":" + string(variables), nil
}

// WithUploadables converts the body to multipart form data.
// The operation is sent in the "query"/"id" and "variables" fields, followed by one part per file.
func (r *Request) WithUploadables(files map[string]File) *Request {
	form := NewFormData()
	fields := ToFormBody(r.Operation.Payload())
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		form.Set(k, fields[k])
	}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		form.SetFile(name, files[name])
	}
	r.Body = form
	return r
}
