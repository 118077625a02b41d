package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher forwards events outside the process.
type Publisher interface {
	Forward(ctx context.Context, event Event) error
}

// NATSPublisher publishes events as JSON on "<prefix>.<event type>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType EventType) string {
	if p.prefix == "" {
		return string(eventType)
	}
	return p.prefix + "." + string(eventType)
}

// Forward publishes event. Delivery is at-most-once.
func (p *NATSPublisher) Forward(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
