package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricHTTPRequests = "storesync.http.requests"
	metricHTTPDuration = "storesync.http.request.duration"
)

// HTTPMetrics records served requests by route template. A nil *HTTPMetrics
// is valid and records nothing.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewHTTPMetrics(mt metric.Meter) (*HTTPMetrics, error) {
	b := newMetricBuilder(mt)
	m := &HTTPMetrics{
		requests: b.counter(metricHTTPRequests, "HTTP requests served", "{request}"),
		duration: b.histogram(metricHTTPDuration, "HTTP request latency", "s", 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

func (m *HTTPMetrics) RequestServed(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
