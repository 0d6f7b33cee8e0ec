package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authguard library
type Metrics struct {
	// Rate Limiter Metrics
	RateLimitChecksTotal   metric.Int64Counter
	RateLimitDeniedTotal   metric.Int64Counter
	RateLimitStoreFailures metric.Int64Counter

	// Security Event Metrics
	SecurityEventsLogged  metric.Int64Counter
	SecurityEventsDropped metric.Int64Counter
	AnomaliesFlagged      metric.Int64Counter
	AnomalyChecksTotal    metric.Int64Counter

	// Scheduler Metrics
	JobsScheduled       metric.Int64Counter
	JobsDispatched      metric.Int64Counter
	JobDispatchFailures metric.Int64Counter
	JobsDeactivated     metric.Int64Counter
	JobDispatchDuration metric.Float64Histogram
	SchedulerTicksTotal metric.Int64Counter

	// Storage Metrics
	StorageRateLimitCount metric.Int64ObservableGauge
	StorageJobCount       metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	ratelimitMeter := inst.Meter("ratelimit")
	securityMeter := inst.Meter("security")
	schedulerMeter := inst.Meter("scheduler")
	storageMeter := inst.Meter("storage")

	var err error

	// Rate Limiter Metrics
	m.RateLimitChecksTotal, err = ratelimitMeter.Int64Counter(
		"authguard.ratelimit.checks.total",
		metric.WithDescription("Total number of rate limit checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.checks.total counter: %w", err)
	}

	m.RateLimitDeniedTotal, err = ratelimitMeter.Int64Counter(
		"authguard.ratelimit.denied.total",
		metric.WithDescription("Number of rate limit checks that were denied"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.denied.total counter: %w", err)
	}

	m.RateLimitStoreFailures, err = ratelimitMeter.Int64Counter(
		"authguard.ratelimit.store_failures.total",
		metric.WithDescription("Number of rate limit store failures that degraded to allow"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.store_failures.total counter: %w", err)
	}

	// Security Event Metrics
	m.SecurityEventsLogged, err = securityMeter.Int64Counter(
		"authguard.security.events.logged",
		metric.WithDescription("Number of security events appended to the event store"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.events.logged counter: %w", err)
	}

	m.SecurityEventsDropped, err = securityMeter.Int64Counter(
		"authguard.security.events.dropped",
		metric.WithDescription("Number of security events evicted from the recent-history window"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.events.dropped counter: %w", err)
	}

	m.AnomalyChecksTotal, err = securityMeter.Int64Counter(
		"authguard.security.anomaly_checks.total",
		metric.WithDescription("Number of suspicious-activity evaluations"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.anomaly_checks.total counter: %w", err)
	}

	m.AnomaliesFlagged, err = securityMeter.Int64Counter(
		"authguard.security.anomalies.flagged",
		metric.WithDescription("Number of suspicious-activity evaluations that flagged"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.anomalies.flagged counter: %w", err)
	}

	// Scheduler Metrics
	m.JobsScheduled, err = schedulerMeter.Int64Counter(
		"authguard.scheduler.jobs.scheduled",
		metric.WithDescription("Number of jobs accepted by Schedule"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler.jobs.scheduled counter: %w", err)
	}

	m.JobsDispatched, err = schedulerMeter.Int64Counter(
		"authguard.scheduler.jobs.dispatched",
		metric.WithDescription("Number of successful job dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler.jobs.dispatched counter: %w", err)
	}

	m.JobDispatchFailures, err = schedulerMeter.Int64Counter(
		"authguard.scheduler.dispatch_failures.total",
		metric.WithDescription("Number of failed job dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler.dispatch_failures.total counter: %w", err)
	}

	m.JobsDeactivated, err = schedulerMeter.Int64Counter(
		"authguard.scheduler.jobs.deactivated",
		metric.WithDescription("Number of jobs deactivated after exhausting dispatch retries"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler.jobs.deactivated counter: %w", err)
	}

	m.JobDispatchDuration, err = schedulerMeter.Float64Histogram(
		"authguard.scheduler.dispatch.duration",
		metric.WithDescription("Job dispatch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler.dispatch.duration histogram: %w", err)
	}

	m.SchedulerTicksTotal, err = schedulerMeter.Int64Counter(
		"authguard.scheduler.ticks.total",
		metric.WithDescription("Number of scheduler tick evaluations"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler.ticks.total counter: %w", err)
	}

	// Storage Metrics
	m.StorageRateLimitCount, err = storageMeter.Int64ObservableGauge(
		"authguard.storage.ratelimit.count",
		metric.WithDescription("Current number of tracked rate-limit windows"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.ratelimit.count gauge: %w", err)
	}

	m.StorageJobCount, err = storageMeter.Int64ObservableGauge(
		"authguard.storage.jobs.count",
		metric.WithDescription("Current number of stored jobs"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.jobs.count gauge: %w", err)
	}

	return m, nil
}

// RecordRateLimitCheck records a rate limit check outcome (nil-safe)
func (m *Metrics) RecordRateLimitCheck(ctx context.Context, scope string, allowed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrRateLimitScope, scope))
	m.RateLimitChecksTotal.Add(ctx, 1, attrs)
	if !allowed {
		m.RateLimitDeniedTotal.Add(ctx, 1, attrs)
	}
}

// RecordAnomalyCheck records a suspicious-activity evaluation outcome (nil-safe)
func (m *Metrics) RecordAnomalyCheck(ctx context.Context, suspicious bool) {
	if m == nil {
		return
	}
	m.AnomalyChecksTotal.Add(ctx, 1)
	if suspicious {
		m.AnomaliesFlagged.Add(ctx, 1)
	}
}

// RecordDispatch records a job dispatch outcome and duration (nil-safe)
func (m *Metrics) RecordDispatch(ctx context.Context, jobType string, success bool, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrJobType, jobType))
	if success {
		m.JobsDispatched.Add(ctx, 1, attrs)
	} else {
		m.JobDispatchFailures.Add(ctx, 1, attrs)
	}
	m.JobDispatchDuration.Record(ctx, durationMs, attrs)
}
