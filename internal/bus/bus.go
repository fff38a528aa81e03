// Package bus publishes evaluation events to in-process subscribers, Kafka,
// or an append-only event log.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/rice-eval/internal/report"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Publisher defines the interface for event sinks.
type Publisher interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "eval.run.completed").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links related events. Run events carry the run ID.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics for different event types.
const (
	TopicRunCompleted = "eval.run.completed"
)

// Source is stamped on every event this module creates.
const Source = "rice-eval"

// NewRunEvent wraps a finished run.
func NewRunEvent(run *report.Run) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          TopicRunCompleted,
		Source:        Source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: run.ID,
		Payload:       run,
	}
}
