package middleware_test

import (
	"context"
	"net/http"

	"github.com/jarcoal/httpmock"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
)

const testURL = "https://example.com/graphql"

func newMockedNetwork() (network.Network, *httpmock.MockTransport) {
	n, transport := network.NewMockedNetwork()
	return n.WithBaseURL("https://example.com"), transport
}

// recordingTerminal returns a terminal function which records copies of sent requests and responds with the status and body.
func recordingTerminal(status int, body string, sent *[]request.Request) network.RawNextFunc {
	return func(ctx context.Context, req *request.Request) (*http.Response, error) {
		clone := *req
		clone.Header = req.Header.Clone()
		*sent = append(*sent, clone)
		return jsonResponse(status, body), nil
	}
}

func jsonResponse(status int, body string) *http.Response {
	res := httpmock.NewStringResponse(status, body)
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	res.Header.Set("Content-Type", "application/json")
	return res
}
