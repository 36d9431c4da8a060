// Package notify dispatches domain events to parties and downstream
// consumers over NATS. Dispatch is fire-and-forget: the workflow core never
// blocks on, or fails because of, notification delivery. Failures are
// logged and the event is dropped; consumers needing reliability subscribe
// to the JetStream stream rather than depending on synchronous delivery.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
)

// Event is a domain event that can be dispatched.
// Implementations live next to the code that emits them (dispute,
// negotiation) and are registered as semstreams payloads. The method set
// is a superset of message.Payload so events go straight into the wire
// envelope.
type Event interface {
	// Schema returns the message type for the wire envelope.
	Schema() message.Type

	// Subject returns the NATS subject the event is published to.
	Subject() string

	// Validate checks the event is well-formed before publishing.
	Validate() error

	// MarshalJSON and UnmarshalJSON round-trip the event payload.
	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
}

// Events must satisfy the envelope payload contract.
var _ message.Payload = (Event)(nil)

// Notifier is the capability the workflow core is handed. The state machine
// and negotiation engine emit events through it after a committed write,
// never inside transition logic.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Dispatcher publishes events to the JetStream outbox stream.
type Dispatcher struct {
	nc     *natsclient.Client
	logger *slog.Logger
	source string
}

// NewDispatcher creates a dispatcher publishing as the given source name.
func NewDispatcher(nc *natsclient.Client, source string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{nc: nc, logger: logger, source: source}
}

// Notify publishes an event. Never returns an error: a dispatch failure is
// logged and swallowed so the caller's state change stands regardless.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d.nc == nil {
		return // Skip publishing if no NATS client (graceful degradation)
	}

	if err := event.Validate(); err != nil {
		d.logger.Warn("Dropping invalid notification event",
			"subject", event.Subject(),
			"error", err)
		return
	}

	baseMsg := message.NewBaseMessage(event.Schema(), event, d.source)
	data, err := json.Marshal(baseMsg)
	if err != nil {
		d.logger.Warn("Failed to marshal notification event",
			"subject", event.Subject(),
			"error", err)
		return
	}

	if err := d.nc.PublishToStream(ctx, event.Subject(), data); err != nil {
		d.logger.Warn("Failed to publish notification event",
			"subject", event.Subject(),
			"error", err)
	}
}

// Nop is a Notifier that discards all events. Used in tests and in
// store-only tooling where no NATS connection exists.
type Nop struct{}

// Notify discards the event.
func (Nop) Notify(context.Context, Event) {}

// Recorder is a Notifier that captures events in order. Test helper.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify appends the event to the recorded list.
func (r *Recorder) Notify(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
