package network_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	. "github.com/relaynet/go-relay-network/pkg/network"
)

func TestDefaultTransport(t *testing.T) {
	t.Parallel()
	transport, ok := DefaultTransport().(*http.Transport)
	require.True(t, ok)
	assert.True(t, transport.ForceAttemptHTTP2)
	assert.Equal(t, MaxConnectionsPerHost, transport.MaxConnsPerHost)
	assert.Equal(t, ResponseHeaderTimeout, transport.ResponseHeaderTimeout)
}

func TestHTTP2Transport(t *testing.T) {
	t.Parallel()
	transport, ok := HTTP2Transport().(*http2.Transport)
	require.True(t, ok)
	assert.NotNil(t, transport.DialTLSContext)
}

func TestDialer(t *testing.T) {
	t.Parallel()
	d := Dialer()
	assert.Equal(t, DialTimeout, d.Timeout)
	assert.Equal(t, KeepAlive, d.KeepAlive)
}
