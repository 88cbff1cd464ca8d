package vault

import (
	"context"
	"testing"
	"time"
)

func TestMemoryWatchReportsOtherHandles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	space := NewMemorySpace()
	tabA := space.Open()
	tabB := space.Open()

	changes, err := tabA.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	_ = tabA.Save(ctx, "k", "own")
	_ = tabB.Save(ctx, "k", "foreign")
	_ = tabB.Delete(ctx, "k")
	_ = tabB.Delete(ctx, "k")

	want := []Change{{Key: "k"}, {Key: "k", Deleted: true}}
	for _, w := range want {
		select {
		case got := <-changes:
			if got != w {
				t.Fatalf("expected %+v, got %+v", w, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %+v", w)
		}
	}
	select {
	case got := <-changes:
		t.Fatalf("unexpected change %+v", got)
	default:
	}
}

func TestMemoryWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	space := NewMemorySpace()
	changes, _ := space.Open().Watch(ctx)
	cancel()

	select {
	case _, ok := <-changes:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}

	// Writes after close must not panic.
	space.Put("k", "v")
}

func TestMemoryWatchDropsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	space := NewMemorySpace()
	changes, _ := space.Open().Watch(ctx)
	for i := 0; i < watchBuffer*2; i++ {
		space.Put("k", "v")
	}
	if len(changes) != watchBuffer {
		t.Fatalf("expected buffered changes capped at %d, got %d", watchBuffer, len(changes))
	}
}
