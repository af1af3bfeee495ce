package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	ctx := context.Background()
	d.Emit(ctx, Event{EventType: "first"})
	d.Emit(ctx, Event{EventType: "second"})
	d.Close()

	for _, want := range []string{"first", "second"} {
		select {
		case event := <-sink.Events():
			if event.EventType != want {
				t.Fatalf("expected %q, got %q", want, event.EventType)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}

	// Nil receivers are usable no-ops.
	d.Emit(context.Background(), Event{EventType: "ignored"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	d.Close()

	d.Emit(context.Background(), Event{EventType: "late"})

	select {
	case event := <-sink.Events():
		t.Fatalf("unexpected event after close: %+v", event)
	default:
	}
}

type stallSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *stallSink) Emit(ctx context.Context, event Event) {
	s.entered <- struct{}{}
	<-s.release
}

func TestDropIfFullCountsDrops(t *testing.T) {
	sink := &stallSink{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()
	d.Emit(ctx, Event{EventType: "a"})

	// Wait until the run loop is stuck inside the sink, then fill the buffer.
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("sink never entered")
	}
	d.Emit(ctx, Event{EventType: "b"})
	d.Emit(ctx, Event{EventType: "c"})

	if d.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", d.Dropped())
	}

	close(sink.release)
	d.Close()
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{ID: "1", EventType: "multiple_failed_logins", Identifier: "alice"})

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not one JSON line: %v", err)
	}
	if decoded.EventType != "multiple_failed_logins" || decoded.Identifier != "alice" {
		t.Fatalf("unexpected event %+v", decoded)
	}
}
