package review

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("recognition-review.review")

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_decisions_total",
		Help: "Document decisions by stage, outcome and result code",
	}, []string{"role", "outcome", "result"})

	decisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_decision_duration_seconds",
		Help:    "Decide latency including lock waits and retries",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	recomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_recognition_recomputes_total",
		Help: "Recognition recomputes by resulting status",
	}, []string{"status"})

	lockRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_owner_lock_retries_total",
		Help: "Owner transactions retried after a concurrency conflict",
	})

	visibleBatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_visible_batches",
		Help:    "Batches returned per compliance queue listing",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_notification_failures_total",
		Help: "Notifications the dispatcher failed to accept",
	}, []string{"kind"})
)

// invalidLabel stands in for role and outcome values that failed validation.
const invalidLabel = "invalid"

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if c := CodeOf(err); c != CodeNone {
		return c.String()
	}
	return "error"
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resultLabel(err))
	}
	span.End()
}
