package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{}, nil)
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	// Safe on nil.
	d.Emit(context.Background(), Event{Action: ActionLogin})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestEmitStampsIDAndTimestamp(t *testing.T) {
	sink := NewChannelSink(4)
	now := time.Unix(1700000000, 0)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, func() time.Time { return now })
	defer d.Close()

	d.Emit(context.Background(), Event{Action: ActionLogin, UserID: 1, Success: true})

	select {
	case got := <-sink.Events():
		if got.ID == uuid.Nil {
			t.Fatal("event ID not stamped")
		}
		if !got.At.Equal(now.UTC()) {
			t.Fatalf("event At = %v, want %v", got.At, now.UTC())
		}
		if got.Action != ActionLogin {
			t.Fatalf("action = %q, want %q", got.Action, ActionLogin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached sink")
	}
}

func TestCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink, nil)

	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), Event{Action: ActionLogout})
	}
	d.Close()

	received := 0
	for {
		select {
		case <-sink.Events():
			received++
			if received == 8 {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 8 events after Close", received)
		}
	}
}

func TestDropIfFullCountsDrops(t *testing.T) {
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, Event) { <-block })
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)
	defer func() {
		close(block)
		d.Close()
	}()

	// First event may be in flight, second fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Action: ActionRefresh})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops under backpressure")
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
