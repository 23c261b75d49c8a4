package trace_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/relaynet/go-relay-network/pkg/network"
	. "github.com/relaynet/go-relay-network/pkg/network/trace"
	"github.com/relaynet/go-relay-network/pkg/request"
)

func TestTrace(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", `https://example.com/redirect`, func(r *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Location", "https://example.com/graphql")
		return &http.Response{StatusCode: http.StatusTemporaryRedirect, Header: header}, nil
	})
	transport.RegisterResponder("POST", `https://example.com/graphql`, httpmock.NewStringResponder(200, `{"data":{"ok":true}}`))

	// Logs for trace testing
	var logs strings.Builder

	// Create network
	ctx := context.Background()
	n := New().WithFetcher(NewFetcher().
		WithTransport(transport).
		AndTrace(func(ctx context.Context, reqDef *request.Request) (context.Context, *ClientTrace) {
			logs.WriteString(fmt.Sprintf("GotRequest        %s\n", reqDef.OperationName()))
			return ctx, &ClientTrace{
				RequestProcessed: func(bodyBytes int64, err error) {
					logs.WriteString(fmt.Sprintf("RequestProcessed  bytes=%s err=%v\n", strings.TrimSpace(spew.Sdump(bodyBytes)), err))
				},
				HTTPRequestStart: func(r *http.Request) {
					logs.WriteString(fmt.Sprintf("HTTPRequestStart  %s %s\n", r.Method, r.URL))
				},
				HTTPRequestDone: func(response *http.Response, err error) {
					logs.WriteString(fmt.Sprintf("HttpRequestDone   %d %s err=%v\n", response.StatusCode, http.StatusText(response.StatusCode), err))
				},
			}
		}),
	)

	// Expected events
	expected := `
GotRequest        MyQuery
HTTPRequestStart  POST https://example.com/redirect
HttpRequestDone   307 Temporary Redirect err=<nil>
HTTPRequestStart  POST https://example.com/graphql
HttpRequestDone   200 OK err=<nil>
RequestProcessed  bytes=(int64) 20 err=<nil>
`

	// Test
	req := request.New(request.Operation{Name: "MyQuery", Query: "query MyQuery { ok }"})
	req.URL = "https://example.com/redirect"
	res, err := n.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, res.Data)
	assert.Equal(t, strings.TrimLeft(expected, "\n"), logs.String())
}

func TestTrace_Multiple(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", `https://example.com/graphql`, httpmock.NewStringResponder(200, `{"data":{"ok":true}}`))

	// Logs for trace testing
	var logs strings.Builder

	// Create network
	ctx := context.Background()
	n := New().WithFetcher(NewFetcher().
		WithBaseURL("https://example.com").
		WithTransport(transport).
		AndTrace(func(ctx context.Context, reqDef *request.Request) (context.Context, *ClientTrace) {
			logs.WriteString(fmt.Sprintf("1: GotRequest        %s\n", reqDef.OperationName()))
			return ctx, &ClientTrace{
				RequestProcessed: func(bodyBytes int64, err error) {
					logs.WriteString(fmt.Sprintf("1: RequestProcessed  bytes=%d err=%v\n", bodyBytes, err))
				},
				HTTPRequestStart: func(r *http.Request) {
					logs.WriteString(fmt.Sprintf("1: HTTPRequestStart  %s %s\n", r.Method, r.URL))
				},
				HTTPRequestDone: func(response *http.Response, err error) {
					logs.WriteString(fmt.Sprintf("1: HttpRequestDone   %d err=%v\n", response.StatusCode, err))
				},
			}
		}).
		AndTrace(func(ctx context.Context, reqDef *request.Request) (context.Context, *ClientTrace) {
			logs.WriteString(fmt.Sprintf("2: GotRequest        %s\n", reqDef.OperationName()))
			return ctx, &ClientTrace{
				HTTPRequestStart: func(r *http.Request) {
					logs.WriteString(fmt.Sprintf("2: HTTPRequestStart  %s %s\n", r.Method, r.URL))
				},
				HTTPRequestDone: func(response *http.Response, err error) {
					logs.WriteString(fmt.Sprintf("2: HttpRequestDone   %d err=%v\n", response.StatusCode, err))
				},
			}
		}).
		AndTrace(func(ctx context.Context, _ *request.Request) (context.Context, *ClientTrace) {
			return ctx, &ClientTrace{
				RequestProcessed: func(bodyBytes int64, err error) {
					logs.WriteString(fmt.Sprintf("3: RequestProcessed  bytes=%d err=%v\n", bodyBytes, err))
				},
				HTTPRequestStart: func(r *http.Request) {
					logs.WriteString(fmt.Sprintf("3: HTTPRequestStart  %s %s\n", r.Method, r.URL))
				},
				HTTPRequestDone: func(response *http.Response, err error) {
					logs.WriteString(fmt.Sprintf("3: HttpRequestDone   %d err=%v\n", response.StatusCode, err))
				},
			}
		}).
		AndTrace(func(ctx context.Context, _ *request.Request) (context.Context, *ClientTrace) {
			// No hooks
			return ctx, nil
		}),
	)

	// Expected events
	expected := `
1: GotRequest        MyQuery
2: GotRequest        MyQuery
1: HTTPRequestStart  POST https://example.com/graphql
2: HTTPRequestStart  POST https://example.com/graphql
3: HTTPRequestStart  POST https://example.com/graphql
1: HttpRequestDone   200 err=<nil>
2: HttpRequestDone   200 err=<nil>
3: HttpRequestDone   200 err=<nil>
1: RequestProcessed  bytes=20 err=<nil>
3: RequestProcessed  bytes=20 err=<nil>
`

	// Test
	_, err := n.Query(ctx, request.Operation{Name: "MyQuery", Query: "query MyQuery { ok }"})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimLeft(expected, "\n"), logs.String())
}

func TestTrace_RequestFailed(t *testing.T) {
	t.Parallel()

	// Logs for trace testing
	var logs strings.Builder

	n := New().WithFetcher(NewFetcher().
		WithTransport(httpmock.NewMockTransport()).
		AndTrace(func(ctx context.Context, reqDef *request.Request) (context.Context, *ClientTrace) {
			return ctx, &ClientTrace{
				RequestProcessed: func(bodyBytes int64, err error) {
					logs.WriteString(fmt.Sprintf("RequestProcessed  bytes=%d err=%v\n", bodyBytes, err))
				},
			}
		}),
	)

	// Invalid URL, the request is not sent
	req := request.New(request.Operation{Name: "MyQuery", Query: "query MyQuery { ok }"})
	req.URL = "%%"
	_, err := n.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, `request url "%%" is not valid: parse "%%": invalid URL escape "%%"`, err.Error())
	assert.Equal(t, "RequestProcessed  bytes=0 err="+err.Error()+"\n", logs.String())
}
