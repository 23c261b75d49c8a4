package otel

import otelMetric "go.opentelemetry.io/otel/metric"

const (
	meterPrefix      = "relay.network."
	fetchMeterPrefix = meterPrefix + "fetch."
	httpMeterPrefix  = meterPrefix + "http."
)

type meters struct {
	fetch fetchMeters
	http  httpMeters
}

// fetchMeters are recorded once per fetch, it may contain multiple HTTP requests (redirects).
type fetchMeters struct {
	inFlight otelMetric.Int64UpDownCounter
	duration otelMetric.Float64Histogram
	bodySize otelMetric.Int64Histogram
}

// httpMeters are recorded for each HTTP request.
type httpMeters struct {
	inFlight otelMetric.Int64UpDownCounter
	duration otelMetric.Float64Histogram
}

func newMeters(meter otelMetric.Meter) *meters {
	return &meters{
		fetch: fetchMeters{
			inFlight: upDownCounter(meter, fetchMeterPrefix+"in_flight", "GraphQL fetch: in flight operations."),
			duration: histogram(meter, fetchMeterPrefix+"duration", "GraphQL fetch: duration including the response body.", "ms"),
			bodySize: intHistogram(meter, fetchMeterPrefix+"body_size", "GraphQL fetch: size of the response body.", "By"),
		},
		http: httpMeters{
			inFlight: upDownCounter(meter, httpMeterPrefix+"in_flight", "HTTP request: in flight requests."),
			duration: histogram(meter, httpMeterPrefix+"duration", "HTTP request: duration until the response headers.", "ms"),
		},
	}
}

func upDownCounter(meter otelMetric.Meter, name, desc string) otelMetric.Int64UpDownCounter {
	return mustInstrument(meter.Int64UpDownCounter(name, otelMetric.WithDescription(desc)))
}

func histogram(meter otelMetric.Meter, name, desc string, unit string) otelMetric.Float64Histogram {
	return mustInstrument(meter.Float64Histogram(name, otelMetric.WithDescription(desc), otelMetric.WithUnit(unit)))
}

func intHistogram(meter otelMetric.Meter, name, desc string, unit string) otelMetric.Int64Histogram {
	return mustInstrument(meter.Int64Histogram(name, otelMetric.WithDescription(desc), otelMetric.WithUnit(unit)))
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
