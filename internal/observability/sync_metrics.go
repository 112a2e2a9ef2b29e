package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricJobsStarted   = "storesync.sync.jobs.started"
	metricJobsFinished  = "storesync.sync.jobs.finished"
	metricJobsActive    = "storesync.sync.jobs.active"
	metricBatches       = "storesync.sync.batches"
	metricRecords       = "storesync.sync.records"
	metricBatchDuration = "storesync.sync.batch.duration"

	attrResourceType = "resource_type"
	attrStatus       = "status"
	attrOutcome      = "outcome"
)

// SyncMetrics records the sync loop. A nil *SyncMetrics is valid and records
// nothing.
type SyncMetrics struct {
	jobsStarted   metric.Int64Counter
	jobsFinished  metric.Int64Counter
	jobsActive    metric.Int64UpDownCounter
	batches       metric.Int64Counter
	records       metric.Int64Counter
	batchDuration metric.Float64Histogram
}

// BatchCounts are the per-batch numbers reported by the orchestrator.
type BatchCounts struct {
	Persisted          int
	TransformFailures  int
	NormalizedFailures int
	MirrorFailures     int
}

func NewSyncMetrics(mt metric.Meter) (*SyncMetrics, error) {
	b := newMetricBuilder(mt)
	m := &SyncMetrics{
		jobsStarted:   b.counter(metricJobsStarted, "Sync jobs started", "{job}"),
		jobsFinished:  b.counter(metricJobsFinished, "Sync jobs that reached a terminal state", "{job}"),
		jobsActive:    b.upDownCounter(metricJobsActive, "Sync loops currently running", "{job}"),
		batches:       b.counter(metricBatches, "Batches processed", "{batch}"),
		records:       b.counter(metricRecords, "Records processed by outcome", "{record}"),
		batchDuration: b.histogram(metricBatchDuration, "Time to fetch and persist one batch", "s", 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

func (m *SyncMetrics) JobStarted(ctx context.Context, resourceType string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrResourceType, resourceType))
	m.jobsStarted.Add(ctx, 1, attrs)
	m.jobsActive.Add(ctx, 1, attrs)
}

func (m *SyncMetrics) JobFinished(ctx context.Context, resourceType, status string) {
	if m == nil {
		return
	}
	m.jobsActive.Add(ctx, -1, metric.WithAttributes(attribute.String(attrResourceType, resourceType)))
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResourceType, resourceType),
		attribute.String(attrStatus, status),
	))
}

func (m *SyncMetrics) BatchProcessed(ctx context.Context, resourceType string, counts BatchCounts, elapsed time.Duration) {
	if m == nil {
		return
	}
	rt := attribute.String(attrResourceType, resourceType)
	status := "success"
	if counts.NormalizedFailures > 0 {
		status = "failed"
	}
	m.batches.Add(ctx, 1, metric.WithAttributes(rt, attribute.String(attrStatus, status)))
	m.batchDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(rt))

	for outcome, n := range map[string]int{
		"persisted":         counts.Persisted,
		"transform_failed":  counts.TransformFailures,
		"normalized_failed": counts.NormalizedFailures,
		"mirror_failed":     counts.MirrorFailures,
	} {
		if n > 0 {
			m.records.Add(ctx, int64(n), metric.WithAttributes(rt, attribute.String(attrOutcome, outcome)))
		}
	}
}
