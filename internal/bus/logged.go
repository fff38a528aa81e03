package bus

import (
	"context"
	"time"

	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

// LoggedPublisher wraps another Publisher and logs every publish.
type LoggedPublisher struct {
	inner Publisher
	log   *logger.Logger
}

// NewLoggedPublisher creates a publisher that logs before delegating to inner.
func NewLoggedPublisher(inner Publisher, log *logger.Logger) *LoggedPublisher {
	if log == nil {
		log = logger.Default()
	}
	return &LoggedPublisher{inner: inner, log: log}
}

// Publish delegates to the inner publisher and logs the result.
func (p *LoggedPublisher) Publish(ctx context.Context, topic string, event Event) error {
	if err := p.inner.Publish(ctx, topic, event); err != nil {
		p.log.WithError(err).Warn("Failed to publish event",
			"topic", topic,
			"event_id", event.ID,
		)
		return err
	}

	p.log.Debug("Published event",
		"topic", topic,
		"event_id", event.ID,
		"correlation_id", event.CorrelationID,
	)
	return nil
}

// Close closes the inner publisher.
func (p *LoggedPublisher) Close() error {
	return p.inner.Close()
}

// MetricsRecorder records publish outcomes. It is satisfied by
// metrics.Collector and kept here to avoid an import cycle.
type MetricsRecorder interface {
	RecordBusPublish(topic string, latency time.Duration, err error)
}

// InstrumentedPublisher wraps a Publisher with metrics instrumentation.
type InstrumentedPublisher struct {
	inner   Publisher
	metrics MetricsRecorder
}

// NewInstrumentedPublisher creates a publisher that records metrics.
func NewInstrumentedPublisher(inner Publisher, metrics MetricsRecorder) *InstrumentedPublisher {
	return &InstrumentedPublisher{inner: inner, metrics: metrics}
}

// Publish publishes an event and records its latency and outcome.
func (p *InstrumentedPublisher) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := p.inner.Publish(ctx, topic, event)
	if p.metrics != nil {
		p.metrics.RecordBusPublish(topic, time.Since(start), err)
	}
	return err
}

// Close closes the inner publisher.
func (p *InstrumentedPublisher) Close() error {
	return p.inner.Close()
}
