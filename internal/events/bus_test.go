package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestSubscribeReceivesPublished(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(Event{Type: TaskStarted, TaskID: "t1"})

	select {
	case e := <-ch:
		if e.Type != TaskStarted || e.TaskID != "t1" {
			t.Errorf("got %+v, want task.started for t1", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe()
	unsub()

	b.Publish(Event{Type: TaskStarted})

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after unsubscribe")
		}
	default:
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe()
	defer unsub()

	// Overflow the subscriber buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(Event{Type: TaskProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	if got := len(ch); got != subscriberBufferSize {
		t.Errorf("buffered events = %d, want %d", got, subscriberBufferSize)
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBus()
	b.Close()

	ch, _ := b.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("channel from closed bus delivered an event")
	}
}

// failSink always fails, to verify audit failures do not block Emit.
type failSink struct{ calls int }

func (f *failSink) AppendEvent(_ context.Context, _ Event) error {
	f.calls++
	return errors.New("disk full")
}

func TestEmitSurvivesAuditFailure(t *testing.T) {
	b := NewBus()
	sink := &failSink{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	r := NewRecorder(b, sink, logger)

	ch, unsub := b.Subscribe()
	defer unsub()

	r.Emit(context.Background(), Event{Type: TaskStarted, TaskID: "t1"})

	if sink.calls != 1 {
		t.Errorf("sink calls = %d, want 1", sink.calls)
	}
	select {
	case e := <-ch:
		if e.At.IsZero() {
			t.Error("Emit did not stamp the event time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not broadcast despite audit failure")
	}
}
