package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Type names a kind of domain event
type Type string

const (
	TypePasswordChanged Type = "password_changed"
)

// Event is a domain event emitted by the identity core
type Event interface {
	EventType() Type
}

// PasswordChangedEvent is published after a user's password has been written
type PasswordChangedEvent struct {
	Username   string
	OccurredAt time.Time
}

func (e PasswordChangedEvent) EventType() Type { return TypePasswordChanged }

// Publisher delivers events. Publishing is fire-and-forget: callers are never
// told whether delivery happened.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// NoopPublisher discards every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) {}

// LogPublisher writes every event to a structured logger
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs events at Info level
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "event-publisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) {
	switch ev := e.(type) {
	case PasswordChangedEvent:
		p.logger.InfoContext(ctx, "Event published", "type", ev.EventType(), "username", ev.Username, "occurred_at", ev.OccurredAt)
	default:
		p.logger.InfoContext(ctx, "Event published", "type", e.EventType())
	}
}

// MultiPublisher fans an event out to several publishers in order
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}

// RecordingPublisher keeps every published event in memory
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingPublisher) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *RecordingPublisher) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
