package network

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const (
	// RequestTimeout specifies default total timeout of one fetch, including reading of the response body.
	RequestTimeout = 60 * time.Second
	// DialTimeout specifies default maximum connection initialization time.
	DialTimeout = 3 * time.Second
	// KeepAlive specifies default interval between keep-alive probes.
	KeepAlive = 10 * time.Second
	// TLSHandshakeTimeout specifies default timeout of TLS handshake.
	TLSHandshakeTimeout = 5 * time.Second
	// ResponseHeaderTimeout specifies default amount of time to wait for the GraphQL server response headers.
	ResponseHeaderTimeout = 30 * time.Second
	// MaxConnectionsPerHost specifies default maximum number of open connections to the GraphQL server.
	MaxConnectionsPerHost = 16
)

// DefaultTransport returns the transport used by NewFetcher.
func DefaultTransport() http.RoundTripper {
	dialer := Dialer()
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: ResponseHeaderTimeout,
		MaxConnsPerHost:       MaxConnectionsPerHost,
		MaxIdleConnsPerHost:   MaxConnectionsPerHost,
	}
}

// HTTP2Transport forces HTTP2 protocol, it is used by servers with many parallel queries.
func HTTP2Transport() http.RoundTripper {
	dialer := Dialer()
	return &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			d := &tls.Dialer{NetDialer: dialer, Config: cfg}
			return d.DialContext(ctx, network, addr)
		},
		ReadIdleTimeout:  5 * time.Second,
		PingTimeout:      5 * time.Second,
		WriteByteTimeout: 5 * time.Second,
	}
}

func Dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   DialTimeout,
		KeepAlive: KeepAlive,
	}
}
