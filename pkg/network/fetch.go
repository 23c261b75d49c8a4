package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/relaynet/go-relay-network/pkg/network/counter"
	"github.com/relaynet/go-relay-network/pkg/network/trace"
	"github.com/relaynet/go-relay-network/pkg/request"
)

// DefaultURL is used if the request URL is empty.
const DefaultURL = "/graphql"

// DefaultAccept is used if the request has no Accept header.
const DefaultAccept = "*/*"

// Fetcher is the transport invoker, the innermost link of the chain.
// It sends the request once, without retries, and returns the raw response.
//
// Fetcher is an immutable value, With* methods return a modified clone.
type Fetcher struct {
	transport    http.RoundTripper
	baseURL      *url.URL
	header       http.Header
	timeout      time.Duration
	traceFactory trace.Factory
}

// NewFetcher creates a Fetcher with the DefaultTransport.
func NewFetcher() Fetcher {
	f := Fetcher{transport: DefaultTransport(), header: make(http.Header), timeout: RequestTimeout}
	f.header.Set("User-Agent", "go-relay-network")
	f.header.Set("Accept-Encoding", "gzip, br")
	return f
}

// WithBaseURL returns a clone of the Fetcher with base url set, the request URL is resolved against it.
func (f Fetcher) WithBaseURL(baseURLStr string) Fetcher {
	baseURL, err := url.Parse(baseURLStr)
	if err != nil {
		panic(fmt.Errorf(`base url "%s" is not valid: %w`, baseURLStr, err))
	}
	f.baseURL = baseURL
	return f
}

// WithUserAgent returns a clone of the Fetcher with user agent set.
func (f Fetcher) WithUserAgent(v string) Fetcher {
	f.header = f.header.Clone()
	f.header.Set("User-Agent", v)
	return f
}

// WithHeader returns a clone of the Fetcher with common header set.
func (f Fetcher) WithHeader(key, value string) Fetcher {
	f.header = f.header.Clone()
	f.header.Set(key, value)
	return f
}

// WithTransport returns a clone of the Fetcher with a HTTP transport set.
func (f Fetcher) WithTransport(transport http.RoundTripper) Fetcher {
	if transport == nil {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	f.transport = transport
	return f
}

// WithTimeout returns a clone of the Fetcher with the total request timeout set, 0 means no timeout.
func (f Fetcher) WithTimeout(timeout time.Duration) Fetcher {
	f.timeout = timeout
	return f
}

// AndTrace returns a clone of the Fetcher with the trace factory added.
// Hooks of previously registered factories are called first.
func (f Fetcher) AndTrace(fn trace.Factory) Fetcher {
	if f.traceFactory == nil {
		f.traceFactory = fn
		return f
	}
	prev := f.traceFactory
	f.traceFactory = func(ctx context.Context, req *request.Request) (context.Context, *trace.ClientTrace) {
		ctx, oldTrace := prev(ctx, req)
		ctx, newTrace := fn(ctx, req)
		if newTrace == nil {
			return ctx, oldTrace
		}
		newTrace.Compose(oldTrace)
		return ctx, newTrace
	}
	return f
}

// Fetch sends the request and returns the raw response, it implements the RawNextFunc.
//
// Defaults are written to the request: the Accept header, and for non-GET requests
// without multipart body, the "application/json" Content-Type.
// The body of a GET request is not sent.
func (f Fetcher) Fetch(ctx context.Context, req *request.Request) (res *http.Response, err error) {
	// Method cannot be called on an empty value
	if f.transport == nil {
		panic(fmt.Errorf("fetcher value is not initialized"))
	}

	// Init trace
	var tc *trace.ClientTrace
	if f.traceFactory != nil {
		ctx, tc = f.traceFactory(ctx, req)
		if tc != nil {
			ctx = httptrace.WithClientTrace(ctx, &tc.ClientTrace)
		}
	}
	defer func() {
		if err != nil && tc != nil && tc.RequestProcessed != nil {
			tc.RequestProcessed(0, err)
		}
	}()

	// URL
	reqURLStr := req.URL
	if reqURLStr == "" {
		reqURLStr = DefaultURL
	}
	var reqURL *url.URL
	if f.baseURL == nil {
		reqURL, err = url.Parse(reqURLStr)
	} else {
		reqURL, err = f.baseURL.Parse(reqURLStr)
	}
	if err != nil {
		return nil, fmt.Errorf(`request url "%s" is not valid: %w`, reqURLStr, err)
	}

	// Method
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	// Default headers
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", DefaultAccept)
	}

	// Body, GET request has no body
	var body io.Reader
	var bodyContentType string
	if method != http.MethodGet {
		if req.Header.Get("Content-Type") == "" && !req.IsFormData() {
			req.Header.Set("Content-Type", ContentTypeApplicationJSON)
		}
		body, bodyContentType, err = requestBody(req)
		if err != nil {
			return nil, fmt.Errorf(`request %s "%s": cannot prepare request body: %w`, method, reqURL.String(), err)
		}
	}

	// Create request
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, err
	}

	// Global headers
	for k, values := range f.header {
		for _, v := range values {
			httpReq.Header.Set(k, v)
		}
	}

	// Request headers
	for k, values := range req.Header {
		httpReq.Header.Del(k) // clear global values
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	// Multipart boundary is known only on the wire
	if bodyContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", bodyContentType)
	}

	// Setup native client
	nativeClient := http.Client{
		Timeout:   f.timeout,
		Transport: roundTripper{trace: tc, wrapped: f.transport},
	}

	// Send request
	startedAt := time.Now()
	res, err = nativeClient.Do(httpReq)
	if err != nil {
		return nil, handleSendError(startedAt, f.timeout, httpReq, err)
	}

	// Trace body processing
	if tc != nil && tc.RequestProcessed != nil {
		res.Body = counter.NewReadCloser(res.Body, counter.OnClose(tc.RequestProcessed))
	}

	return res, nil
}

// requestBody returns the encoded body and the content type of a multipart body.
func requestBody(r *request.Request) (io.Reader, string, error) {
	switch v := r.Body.(type) {
	case nil:
		return nil, "", nil
	case *request.FormData:
		contentType, body, err := v.Encode()
		return body, contentType, err
	case string:
		return strings.NewReader(v), "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case io.ReadSeeker:
		if _, err := v.Seek(0, io.SeekStart); err != nil {
			return nil, "", err
		}
		return v, "", nil
	}

	contentType := r.Header.Get("Content-Type")
	if !isJSONContentType(contentType) {
		return nil, "", fmt.Errorf(`body of type %T cannot be encoded as "%s"`, r.Body, contentType)
	}
	c, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf(`cannot encode JSON body: %w`, err)
	}
	return bytes.NewReader(c), "", nil
}

func handleSendError(startedAt time.Time, clientTimeout time.Duration, req *http.Request, err error) error {
	// Timeout
	var netErr net.Error
	if deadline, ok := req.Context().Deadline(); ok && errors.Is(err, context.DeadlineExceeded) {
		err = urlError(req, fmt.Errorf("timeout after %s: %w", deadline.Sub(startedAt), context.DeadlineExceeded))
	} else if errors.Is(err, context.Canceled) {
		err = urlError(req, fmt.Errorf("canceled after %s: %w", time.Since(startedAt), context.Canceled))
	} else if errors.As(err, &netErr) && netErr.Timeout() {
		if strings.Contains(err.Error(), "Client.Timeout exceeded") {
			err = urlError(req, fmt.Errorf("timeout after %s", clientTimeout))
		} else {
			err = urlError(req, fmt.Errorf("timeout after %s", time.Since(startedAt)))
		}
	}

	// Url error
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf(`request %s "%s" failed: %w`, strings.ToUpper(urlErr.Op), urlErr.URL, urlErr.Err)
	}

	return err
}

// roundTripper wraps a http.RoundTripper and adds trace functionality.
type roundTripper struct {
	trace   *trace.ClientTrace
	wrapped http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Trace request start
	if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
		rt.trace.HTTPRequestStart(req)
	}

	// Send
	res, err := rt.wrapped.RoundTrip(req)

	// Trace request done
	if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
		rt.trace.HTTPRequestDone(res, err)
	}

	return res, err
}

func urlError(req *http.Request, err error) *url.Error {
	return &url.Error{Op: req.Method, URL: req.URL.String(), Err: err}
}
