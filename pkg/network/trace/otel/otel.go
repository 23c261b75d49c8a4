// Package otel provides OpenTelemetry tracing and metrics for the network.Fetcher.
//
// Spans:
//   - "relay.network.fetch" wraps one fetch of a GraphQL operation, including redirects and the response body.
//   - "http.request" is created for each sent HTTP request, it ends when the response body is read.
//   - "http.receive" tracks receiving of the response, from the first byte.
//   - Low-level spans from the httptrace package: "http.dns", "http.getconn", "http.connect", "http.tls", "http.headers", "http.send".
//
// Metrics names start with "relay.network.", see the meters struct.
package otel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelMetric "go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/relaynet/go-relay-network/pkg/network/trace"
	"github.com/relaynet/go-relay-network/pkg/request"
)

const (
	traceAppName     = "github.com/relaynet/go-relay-network"
	attrResourceName = attribute.Key("resource.name")
	fetchSpanName    = "relay.network.fetch"
	// Low-level tracing, for each redirect.
	httpSpanPrefix             = "http."
	httpRequestSpanName        = httpSpanPrefix + "request"
	httpDNSSpanName            = httpSpanPrefix + "dns"
	httpGetConnSpanName        = httpSpanPrefix + "getconn"
	httpConnectSpanName        = httpSpanPrefix + "connect"
	httpTLSHandshakeSpanName   = httpSpanPrefix + "tls"
	httpHeadersSpanName        = httpSpanPrefix + "headers"
	httpSendSpanName           = httpSpanPrefix + "send"
	httpReceiveSpanName        = httpSpanPrefix + "receive"
	attrDNSAddresses           = attribute.Key("http.dns.addrs")
	attrRemoteAddr             = attribute.Key("http.remote")
	attrLocalAddr              = attribute.Key("http.local")
	attrConnectionReused       = attribute.Key("http.conn.reused")
	attrConnectionWasIdle      = attribute.Key("http.conn.wasidle")
	attrConnectionIdleTime     = attribute.Key("http.conn.idletime")
	attrConnectionStartNetwork = attribute.Key("http.conn.start.network")
	attrConnectionDoneNetwork  = attribute.Key("http.conn.done.network")
	attrConnectionDoneAddr     = attribute.Key("http.conn.done.addr")
	attrReadBytes              = attribute.Key("http.read_bytes")
	attrRedirects              = attribute.Key("http.redirects")
	// Extra attributes for DataDog.
	attrSpanKind            = attribute.Key("span.kind")
	attrSpanKindValueClient = "client"
	attrSpanType            = attribute.Key("span.type")
	attrSpanTypeValueHTTP   = "http"
)

// NewTrace creates the trace.Factory which reports spans and metrics of each fetch.
// Nil providers are replaced by no-op implementations.
func NewTrace(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...Option) trace.Factory {
	cfg := newConfig(opts)
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	tracer := tracerProvider.Tracer(traceAppName)
	m := newMeters(meterProvider.Meter(traceAppName))

	return func(ctx context.Context, req *request.Request) (context.Context, *trace.ClientTrace) {
		t := &fetchTrace{config: cfg, tracer: tracer, meters: m, attrs: newAttributes(cfg, req)}
		ctx = t.start(ctx, req)

		tc := &trace.ClientTrace{}
		tc.RequestProcessed = t.requestProcessed
		tc.HTTPRequestStart = t.httpRequestStart
		tc.HTTPRequestDone = t.httpRequestDone
		tc.GotFirstResponseByte = t.gotFirstResponseByte
		tc.DNSStart = t.dnsStart
		tc.DNSDone = t.dnsDone
		tc.GetConn = t.getConn
		tc.GotConn = t.gotConn
		tc.ConnectStart = t.connectStart
		tc.ConnectDone = t.connectDone
		tc.TLSHandshakeStart = t.tlsHandshakeStart
		tc.TLSHandshakeDone = t.tlsHandshakeDone
		tc.WroteHeaderField = t.wroteHeaderField
		tc.WroteHeaders = t.wroteHeaders
		tc.WroteRequest = t.wroteRequest
		return ctx, tc
	}
}

// fetchTrace holds state of one fetch, hooks may be called from multiple goroutines.
type fetchTrace struct {
	config config
	tracer otelTrace.Tracer
	meters *meters
	attrs  *attributes

	lock          sync.Mutex
	rootCtx       context.Context
	httpCtx       context.Context
	startTime     time.Time
	httpStartTime time.Time
	redirects     int
	httpErr       error

	rootSpan        otelTrace.Span
	httpRequestSpan otelTrace.Span
	receiveSpan     otelTrace.Span
	dnsSpan         otelTrace.Span
	getConnSpan     otelTrace.Span
	connectSpan     otelTrace.Span
	tlsSpan         otelTrace.Span
	headersSpan     otelTrace.Span
	sendSpan        otelTrace.Span
}

func (t *fetchTrace) start(ctx context.Context, req *request.Request) context.Context {
	t.startTime = time.Now()
	t.meters.fetch.inFlight.Add(ctx, 1, otelMetric.WithAttributes(t.attrs.definition...))
	t.rootCtx, t.rootSpan = t.tracer.Start(
		ctx,
		fetchSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(
			attrResourceName.String(req.OperationName()),
			attrSpanKind.String(attrSpanKindValueClient),
			attrSpanType.String(attrSpanTypeValueHTTP),
		),
		otelTrace.WithAttributes(t.attrs.definition...),
		otelTrace.WithAttributes(t.attrs.definitionExtra...),
	)
	t.httpCtx = t.rootCtx
	return t.rootCtx
}

// requestProcessed is called once, when the body is closed or the fetch failed.
func (t *fetchTrace) requestProcessed(bodyBytes int64, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	elapsedTime := float64(time.Since(t.startTime)) / float64(time.Millisecond)

	// Metrics
	meterAttrs := t.attrs.metricAttrs()
	t.meters.fetch.inFlight.Add(t.rootCtx, -1, otelMetric.WithAttributes(t.attrs.definition...)) // same attributes as in start!
	t.meters.fetch.duration.Record(t.rootCtx, elapsedTime, otelMetric.WithAttributes(meterAttrs...))
	t.meters.fetch.bodySize.Record(t.rootCtx, bodyBytes, otelMetric.WithAttributes(meterAttrs...))

	// Error status of the last response
	if err == nil {
		err = t.httpErr
	}

	// Tracing
	if t.receiveSpan != nil {
		t.receiveSpan.SetAttributes(attrReadBytes.Int64(bodyBytes))
		endSpan(&t.receiveSpan, err)
	}
	if t.httpRequestSpan != nil {
		t.httpRequestSpan.SetAttributes(attrReadBytes.Int64(bodyBytes))
		endSpan(&t.httpRequestSpan, err)
	}
	if t.rootSpan != nil {
		t.rootSpan.SetAttributes(t.attrs.httpResponse...)
		t.rootSpan.SetAttributes(t.attrs.httpResponseExtra...)
		t.rootSpan.SetAttributes(attrReadBytes.Int64(bodyBytes), attrRedirects.Int(t.redirects))
		if err == nil {
			t.rootSpan.End()
		} else {
			t.rootSpan.RecordError(err)
			t.rootSpan.SetStatus(codes.Error, err.Error())
			t.rootSpan.End(otelTrace.WithStackTrace(true))
		}
		t.rootSpan = nil
	}
}

func (t *fetchTrace) httpRequestStart(req *http.Request) {
	t.lock.Lock()
	defer t.lock.Unlock()

	// Previous request was a redirect
	if t.receiveSpan != nil {
		endSpan(&t.receiveSpan, nil)
	}

	t.httpCtx, t.httpRequestSpan = t.tracer.Start(
		t.rootCtx,
		httpRequestSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(
			attrSpanKind.String(attrSpanKindValueClient),
			attrSpanType.String(attrSpanTypeValueHTTP),
		),
	)

	// Inject trace headers
	if t.config.propagators != nil {
		t.config.propagators.Inject(t.httpCtx, propagation.HeaderCarrier(req.Header))
	}

	t.httpStartTime = time.Now()
	t.attrs.SetFromRequest(req)
	t.meters.http.inFlight.Add(t.rootCtx, 1, otelMetric.WithAttributes(t.attrs.httpRequest...))
	t.httpRequestSpan.SetAttributes(attrResourceName.String(req.URL.Path))
	t.httpRequestSpan.SetAttributes(t.attrs.httpRequest...)
	t.httpRequestSpan.SetAttributes(t.attrs.httpRequestExtra...)
}

func (t *fetchTrace) httpRequestDone(res *http.Response, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	elapsedTime := float64(time.Since(t.httpStartTime)) / float64(time.Millisecond)
	t.attrs.SetFromResponse(res, err)

	// Metrics
	t.meters.http.inFlight.Add(t.rootCtx, -1, otelMetric.WithAttributes(t.attrs.httpRequest...)) // same attributes as in httpRequestStart!
	t.meters.http.duration.Record(
		t.rootCtx,
		elapsedTime,
		otelMetric.WithAttributes(t.attrs.httpRequest...),
		otelMetric.WithAttributes(t.attrs.httpResponse...),
	)

	// Tracing
	if t.httpRequestSpan == nil {
		return
	}
	t.httpRequestSpan.SetAttributes(t.attrs.httpResponse...)
	t.httpRequestSpan.SetAttributes(t.attrs.httpResponseExtra...)
	switch {
	case err != nil:
		endSpan(&t.httpRequestSpan, err)
	case res != nil && res.StatusCode >= http.StatusBadRequest:
		// The body with error details is read, so the span is ended by requestProcessed
		t.httpErr = fmt.Errorf(`HTTP status code: %d %s`, res.StatusCode, http.StatusText(res.StatusCode))
	case isRedirection(res):
		t.redirects++
		endSpan(&t.httpRequestSpan, nil)
	}
}

func (t *fetchTrace) gotFirstResponseByte() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.receiveSpan = t.startSpan(httpReceiveSpanName)
}

func (t *fetchTrace) dnsStart(info httptrace.DNSStartInfo) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.dnsSpan = t.startSpan(httpDNSSpanName, semconv.NetHostName(info.Host))
}

func (t *fetchTrace) dnsDone(info httptrace.DNSDoneInfo) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.dnsSpan != nil {
		var addrs []string
		for _, netAddr := range info.Addrs {
			addrs = append(addrs, netAddr.String())
		}
		t.dnsSpan.SetAttributes(attrDNSAddresses.String(strings.Join(addrs, ";")))
		endSpan(&t.dnsSpan, info.Err)
	}
}

func (t *fetchTrace) getConn(host string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.getConnSpan = t.startSpan(httpGetConnSpanName, semconv.NetHostName(host))
}

func (t *fetchTrace) gotConn(info httptrace.GotConnInfo) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.getConnSpan != nil {
		t.getConnSpan.SetAttributes(
			attrRemoteAddr.String(info.Conn.RemoteAddr().String()),
			attrLocalAddr.String(info.Conn.LocalAddr().String()),
			attrConnectionReused.Bool(info.Reused),
			attrConnectionWasIdle.Bool(info.WasIdle),
		)
		if info.WasIdle {
			t.getConnSpan.SetAttributes(attrConnectionIdleTime.String(info.IdleTime.String()))
		}
		endSpan(&t.getConnSpan, nil)
	}
}

func (t *fetchTrace) connectStart(network, addr string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.connectSpan = t.startSpan(httpConnectSpanName, attrRemoteAddr.String(addr), attrConnectionStartNetwork.String(network))
}

func (t *fetchTrace) connectDone(network, addr string, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.connectSpan != nil {
		t.connectSpan.SetAttributes(attrConnectionDoneAddr.String(addr), attrConnectionDoneNetwork.String(network))
		endSpan(&t.connectSpan, err)
	}
}

// tlsHandshakeStart is not reported if the http2.Transport is used directly.
func (t *fetchTrace) tlsHandshakeStart() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.tlsSpan = t.startSpan(httpTLSHandshakeSpanName)
}

func (t *fetchTrace) tlsHandshakeDone(_ tls.ConnectionState, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.tlsSpan != nil {
		endSpan(&t.tlsSpan, err)
	}
}

func (t *fetchTrace) wroteHeaderField(_ string, _ []string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	// Start headers span at the first header
	if t.headersSpan == nil {
		t.headersSpan = t.startSpan(httpHeadersSpanName)
	}
}

func (t *fetchTrace) wroteHeaders() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.headersSpan != nil {
		endSpan(&t.headersSpan, nil)
	}
	t.sendSpan = t.startSpan(httpSendSpanName)
}

func (t *fetchTrace) wroteRequest(info httptrace.WroteRequestInfo) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.sendSpan != nil {
		endSpan(&t.sendSpan, info.Err)
	}
}

func (t *fetchTrace) startSpan(name string, attrs ...attribute.KeyValue) otelTrace.Span {
	_, span := t.tracer.Start(
		t.httpCtx,
		name,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(attrs...),
	)
	return span
}

// endSpan records the error, if any, ends the span and clears the reference.
func endSpan(span *otelTrace.Span, err error) {
	if err != nil {
		(*span).RecordError(err)
		(*span).SetStatus(codes.Error, err.Error())
	}
	(*span).End()
	*span = nil
}
