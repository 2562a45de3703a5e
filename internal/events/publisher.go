package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event names published by the classroom service.
const (
	GradingCompleted   = "grading.completed"
	GradingFailed      = "grading.failed"
	SubmissionCreated  = "submission.created"
	SubmissionReviewed = "submission.reviewed"
	VisibilityChanged  = "visibility.changed"
)

// Envelope is the wire format of every published event.
type Envelope struct {
	Event      string      `json:"event"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// Publisher fans domain events out to NATS. A nil connection turns it into a no-op.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// NewPublisher builds a publisher that prefixes subjects with prefix.
func NewPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: strings.Trim(strings.ReplaceAll(prefix, ":", "."), "."),
		logger: logger.With().Str("component", "event_publisher").Logger(),
		now:    time.Now,
	}
}

// Subject returns the full NATS subject for an event name.
func (p *Publisher) Subject(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

// Publish emits the event. Delivery is best effort: failures are logged, never returned.
func (p *Publisher) Publish(_ context.Context, event string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(Envelope{Event: event, OccurredAt: p.now().UTC(), Payload: payload})
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	if err := p.conn.Publish(p.Subject(event), data); err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("failed to publish event")
	}
}
