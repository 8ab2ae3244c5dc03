// Package notify delivers ledger events outside the request path.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
)

// Sender delivers one event. Errors are logged by the Dispatcher.
type Sender interface {
	Send(ctx context.Context, event ledger.Event) error
}

type DispatcherOptions struct {
	QueueSize int
	Workers   int
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Dispatcher is an in-process queue in front of a Sender. Notify never
// blocks: when the queue is full the event is dropped and logged.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	timeout time.Duration
	queue   chan ledger.Event
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		sender:  sender,
		logger:  opts.Logger,
		timeout: opts.SendTimeout,
		queue:   make(chan ledger.Event, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) Notify(_ context.Context, event ledger.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event ledger.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, event); err != nil {
		d.logger.Error("notification delivery failed",
			"event", "notify_send_failed",
			"module", "notify",
			"layer", "platform",
			"event_id", event.ID,
			"event_type", event.Type,
			"recipient_id", event.RecipientID,
			"error", err.Error(),
		)
		return
	}
	d.logger.Debug("notification delivered",
		"event", "notify_sent",
		"module", "notify",
		"layer", "platform",
		"event_id", event.ID,
		"event_type", event.Type,
	)
}

func (d *Dispatcher) drop(event ledger.Event, reason string) {
	d.logger.Warn("dropping notification",
		"event", "notify_drop",
		"module", "notify",
		"layer", "platform",
		"reason", reason,
		"event_id", event.ID,
		"event_type", event.Type,
	)
}

var _ ledger.Notifier = (*Dispatcher)(nil)
