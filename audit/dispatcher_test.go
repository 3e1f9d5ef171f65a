package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(sink, 8, zerolog.Nop())
	defer d.Close()

	d.Emit(Event{Action: "login_success", ActorID: "u1", Success: true})

	select {
	case got := <-sink.Events():
		if got.Action != "login_success" || got.ActorID != "u1" || !got.Success {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the sink")
	}
}

func TestDispatcherDropsWhenFullInsteadOfBlocking(t *testing.T) {
	blocked := make(chan struct{})
	sink := sinkFunc(func(ctx context.Context, _ Event) {
		<-blocked
	})
	d := NewDispatcher(sink, 1, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			d.Emit(Event{Action: "burst"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked the caller")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops under a stalled sink")
	}
	close(blocked)
	d.Close()
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := sinkFunc(func(context.Context, Event) { panic("bad sink") })
	d := NewDispatcher(sink, 4, zerolog.Nop())

	d.Emit(Event{Action: "a"})
	d.Emit(Event{Action: "b"})
	d.Close() // blocks until drained; would hang or crash if a panic escaped
}

func TestCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(64)
	d := NewDispatcher(sink, 64, zerolog.Nop())

	for i := 0; i < 10; i++ {
		d.Emit(Event{Action: "evt"})
	}
	d.Close()

	got := 0
	for {
		select {
		case <-sink.Events():
			got++
		default:
			if got != 10 {
				t.Fatalf("expected 10 drained events, got %d", got)
			}
			return
		}
	}
}

func TestEmitAfterCloseIsSafe(t *testing.T) {
	d := NewDispatcher(NoOpSink{}, 4, zerolog.Nop())
	d.Close()
	d.Emit(Event{Action: "late"}) // must not panic or block
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{Action: "logout_success", ActorID: "u9", Success: true})

	line := buf.String()
	if !strings.Contains(line, `"action":"logout_success"`) || !strings.HasSuffix(line, "\n") {
		t.Fatalf("unexpected output: %q", line)
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
