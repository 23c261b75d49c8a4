package trace_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/network/trace"
	"github.com/relaynet/go-relay-network/pkg/request"
)

func TestLogTracer(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", `https://example.com/graphql`, httpmock.ResponderFromMultipleResponses([]*http.Response{
		{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"data":{"ok":true}}`))},
		{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(strings.NewReader(`error`))},
	}))

	// Logs for trace testing
	var logs strings.Builder

	// Create network
	ctx := context.Background()
	n := network.New().WithFetcher(network.NewFetcher().
		WithBaseURL("https://example.com").
		WithTransport(transport).
		AndTrace(trace.LogTracer(&logs)),
	)

	// Expected trace
	expected := `
HTTP_REQUEST[0001] START POST "https://example.com/graphql" | MyQuery
HTTP_REQUEST[0001] DONE  POST "https://example.com/graphql" | 200 | %s
HTTP_REQUEST[0001] BODY  POST "https://example.com/graphql" | 20B | %s
HTTP_REQUEST[0002] START POST "https://example.com/graphql" | MyQuery
HTTP_REQUEST[0002] DONE  POST "https://example.com/graphql" | 500 | %s
HTTP_REQUEST[0002] BODY  POST "https://example.com/graphql" | 5B | %s
HTTP_REQUEST[0003] FAIL  MyQuery | error=request url %s is not valid: %s
`

	// Test
	op := request.Operation{Name: "MyQuery", Query: "query MyQuery { ok }"}
	_, err := n.Query(ctx, op)
	require.NoError(t, err)
	_, err = n.Query(ctx, op)
	require.Error(t, err)
	assert.ErrorIs(t, err, network.ErrErrorStatus)
	req := request.New(op)
	req.URL = "%%"
	_, err = n.Execute(ctx, req)
	require.Error(t, err)
	wildcards.Assert(t, strings.TrimLeft(expected, "\n"), logs.String())
}
