package network

import (
	"os"

	"github.com/jarcoal/httpmock"

	"github.com/relaynet/go-relay-network/pkg/network/trace"
)

var testTransport = DefaultTransport() //nolint:gochecknoglobals

// NewTestNetwork creates the Network for tests.
//
// If the TEST_HTTP_CLIENT_VERBOSE environment variable is set to "true",
// then all HTTP requests and responses are dumped to stdout.
//
// Output may contain unmasked tokens, do not use it in production.
func NewTestNetwork() Network {
	fetcher := NewFetcher().WithTransport(testTransport)
	if os.Getenv("TEST_HTTP_CLIENT_VERBOSE") == "true" { //nolint:forbidigo
		fetcher = fetcher.AndTrace(trace.DumpTracer(os.Stdout))
	}
	return New().WithFetcher(fetcher)
}

// NewMockedNetwork creates the Network with mocked HTTP transport.
func NewMockedNetwork() (Network, *httpmock.MockTransport) {
	mockTransport := httpmock.NewMockTransport()
	n := NewTestNetwork()
	return n.WithFetcher(n.Fetcher().WithTransport(mockTransport)), mockTransport
}
