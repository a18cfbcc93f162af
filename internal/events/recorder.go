package events

import (
	"context"
	"log/slog"
	"time"
)

// Sink is the durable audit append. Implemented by the SQLite store.
type Sink interface {
	AppendEvent(ctx context.Context, e Event) error
}

// Recorder pairs the audit sink with the realtime bus. Audit failures are
// logged and swallowed; they must never block the state transition that
// produced the event.
type Recorder struct {
	bus    *Bus
	sink   Sink
	logger *slog.Logger

	// nowFunc allows tests to control timestamps.
	nowFunc func() time.Time
}

// NewRecorder creates a recorder writing to sink and broadcasting on bus.
func NewRecorder(bus *Bus, sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{
		bus:     bus,
		sink:    sink,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Bus returns the underlying bus for subscription.
func (r *Recorder) Bus() *Bus {
	return r.bus
}

// Emit stamps, persists, and broadcasts an event.
func (r *Recorder) Emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = r.nowFunc().UTC()
	}
	if r.sink != nil {
		if err := r.sink.AppendEvent(ctx, e); err != nil {
			r.logger.Error("append audit event", "type", e.Type, "task_id", e.TaskID, "error", err)
		}
	}
	r.bus.Publish(e)
}
