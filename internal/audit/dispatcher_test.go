package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for _, typ := range []string{"login", "refresh", "logout"} {
		d.Emit(context.Background(), Event{EventType: typ, Success: true})
	}
	d.Close()

	got := make([]string, 0, 3)
	for len(got) < 3 {
		select {
		case ev := <-sink.Events():
			got = append(got, ev.EventType)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "login" || got[2] != "logout" {
		t.Fatalf("unexpected order %v", got)
	}

	d.Emit(context.Background(), Event{EventType: "late"})
	select {
	case ev := <-sink.Events():
		t.Fatalf("event emitted after close: %+v", ev)
	default:
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}
	close(sink.gate)
	d.Close()
}

type panicSink struct {
	next *ChannelSink
}

func (s panicSink) Emit(ctx context.Context, ev Event) {
	if ev.EventType == "boom" {
		panic("sink failure")
	}
	s.next.Emit(ctx, ev)
}

func TestDispatcherStampsMissingTimestamp(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := NewChannelSink(2)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2, Now: func() time.Time { return fixed }}, sink)

	explicit := fixed.Add(-time.Hour)
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Emit(context.Background(), Event{EventType: "logout", Timestamp: explicit})
	d.Close()

	if ev := <-sink.Events(); !ev.Timestamp.Equal(fixed) {
		t.Fatalf("expected stamped time %v, got %v", fixed, ev.Timestamp)
	}
	if ev := <-sink.Events(); !ev.Timestamp.Equal(explicit) {
		t.Fatalf("explicit timestamp overwritten: %v", ev.Timestamp)
	}
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := panicSink{next: NewChannelSink(2)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: zap.New(core)}, sink)

	d.Emit(context.Background(), Event{EventType: "boom"})
	d.Emit(context.Background(), Event{EventType: "refresh"})
	d.Close()

	select {
	case ev := <-sink.next.Events():
		if ev.EventType != "refresh" {
			t.Fatalf("unexpected event %q", ev.EventType)
		}
	default:
		t.Fatal("event after panic was not delivered")
	}
	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatal("expected panic to be logged")
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			d.Emit(ctx, Event{EventType: "refresh"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit did not return after context expiry")
	}
	if d.Dropped() != 0 {
		t.Fatal("blocking mode must not count drops")
	}
}

func TestJSONWriterSinkOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "logout", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "login", Error: "invalid credentials"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal(lines[1], &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != "login" || ev.Error != "invalid credentials" || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestZapSinkWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))
	sink.Emit(context.Background(), Event{
		EventType: "foreign_logout",
		UserID:    "u1",
		Metadata:  map[string]string{"source": "storage"},
	})

	entries := logs.FilterMessage("foreign_logout").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "u1" || fields["meta.source"] != "storage" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
