// Package audit defines the sink that receives a structured event for every
// state-changing operation in the trust engine. Production deployments plug
// in the platform audit-trail collaborator; the default sink writes to the
// service logger.
package audit

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event represents a single auditable action.
type Event struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Subject   string         `json:"subject"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an event with a fresh id and the given timestamp.
func NewEvent(action, subject string, at time.Time, details map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Action:    action,
		Subject:   subject,
		Details:   details,
		Timestamp: at,
	}
}

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(event Event)
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a logger-backed audit sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(event Event) {
	s.logger.Info("audit event",
		"event_id", event.ID,
		"action", event.Action,
		"subject", event.Subject,
		"details", event.Details,
		"timestamp", event.Timestamp)
}

// NopSink discards all events.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(Event) {}
