package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// DurationBuckets of the request duration histogram, in seconds.
var DurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30} //nolint:gochecknoglobals

// Metrics records Prometheus metrics of requests, see the Middleware method.
type Metrics struct {
	// RequestsTotal counts requests by operation, operation type and status class.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration records request duration in seconds by operation and operation type.
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them, prometheus.DefaultRegisterer is used if registerer is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_requests_total",
				Help: "Total GraphQL requests",
			},
			[]string{"operation", "type", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_request_duration_seconds",
				Help:    "GraphQL request duration",
				Buckets: DurationBuckets,
			},
			[]string{"operation", "type"},
		),
	}
	registerer.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}

// Middleware records each request.
// The status label is the class of the HTTP status ("2xx", "4xx", ...),
// "graphql_error" for a response with GraphQL errors and "error" if there is no response.
func (m *Metrics) Middleware() network.Middleware {
	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			startedAt := time.Now()
			res, err := next(ctx, req)

			operationType := "query"
			if req.IsMutation() {
				operationType = "mutation"
			}
			operation := req.OperationName()

			m.RequestsTotal.WithLabelValues(operation, operationType, statusLabel(resultResponse(res, err))).Inc()
			m.RequestDuration.WithLabelValues(operation, operationType).Observe(time.Since(startedAt).Seconds())
			return res, err
		}
	}
}

func statusLabel(res *response.Response) string {
	switch {
	case res == nil || res.Status == 0:
		return "error"
	case res.HasErrors():
		return "graphql_error"
	default:
		return strconv.Itoa(res.Status/100) + "xx"
	}
}
