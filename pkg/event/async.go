package event

import (
	"context"
	"log/slog"
	"sync"
)

const defaultQueueSize = 64

// AsyncPublisher hands events to a background worker so publishing never
// blocks the caller. Events are dropped with a warning when the queue is full.
type AsyncPublisher struct {
	next   Publisher
	queue  chan Event
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAsyncPublisher starts a worker delivering to next. A non-positive
// queueSize uses the default.
func NewAsyncPublisher(next Publisher, queueSize int, logger *slog.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &AsyncPublisher{
		next:   next,
		queue:  make(chan Event, queueSize),
		logger: logger.With("component", "async-publisher"),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for e := range p.queue {
		// Delivery outlives the publishing request
		p.next.Publish(context.Background(), e)
	}
}

func (p *AsyncPublisher) Publish(ctx context.Context, e Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.WarnContext(ctx, "Publisher closed, dropping event", "type", e.EventType())
		return
	}
	select {
	case p.queue <- e:
	default:
		p.logger.WarnContext(ctx, "Event queue full, dropping event", "type", e.EventType())
	}
}

// Close stops accepting events and waits until queued ones are delivered or ctx ends
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
