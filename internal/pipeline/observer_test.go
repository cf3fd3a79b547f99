package pipeline

import (
	"testing"

	"voxelstream/internal/world"
)

func drainInterest(t *testing.T, b *Bus) []world.ChunkCoord {
	t.Helper()
	evs := b.Drain(StageManager, EvInterest)
	if len(evs) != 1 {
		t.Fatalf("drained %d interest events, want 1", len(evs))
	}
	return evs[0].Coords
}

func TestObserver_InterestIsSortedUnion(t *testing.T) {
	b := NewBus()
	b.Subscribe(StageManager, EvInterest)
	o := NewObserver(b, 1)

	// Overlapping balls: each viewer covers 27 chunks, 9 shared.
	o.SetViewer("a", world.ChunkCoord{X: 0, Y: 0, Z: 0})
	o.SetViewer("b", world.ChunkCoord{X: 2, Y: 0, Z: 0})

	n := o.Step(0)
	coords := drainInterest(t, b)
	if len(coords) != n {
		t.Fatalf("Step returned %d, drained %d coords", n, len(coords))
	}
	if want := 27 + 27 - 9; len(coords) != want {
		t.Fatalf("interest size = %d, want %d", len(coords), want)
	}
	for i := 1; i < len(coords); i++ {
		if coords[i] == coords[i-1] {
			t.Fatalf("duplicate coordinate %s in interest set", coords[i])
		}
		if coords[i].Less(coords[i-1]) {
			t.Fatalf("interest not sorted at index %d: %s before %s", i, coords[i-1], coords[i])
		}
	}
}

func TestObserver_RemoveViewerShrinksInterest(t *testing.T) {
	b := NewBus()
	b.Subscribe(StageManager, EvInterest)
	o := NewObserver(b, 1)

	o.SetViewer("a", world.ChunkCoord{})
	if n := o.Step(0); n != 27 {
		t.Fatalf("interest = %d, want 27", n)
	}
	drainInterest(t, b)

	o.RemoveViewer("a")
	if n := o.Step(1); n != 0 {
		t.Fatalf("interest after removal = %d, want 0", n)
	}
}

func TestObserver_HintLastsOneTick(t *testing.T) {
	b := NewBus()
	b.Subscribe(StageManager, EvInterest)
	o := NewObserver(b, 1)

	hint := world.ChunkCoord{X: 50, Y: 0, Z: 0}
	b.Publish(Event{Kind: EvLoadHint, Coord: hint})

	o.Step(0)
	coords := drainInterest(t, b)
	found := false
	for _, c := range coords {
		if c == hint {
			found = true
		}
	}
	if !found {
		t.Fatalf("hinted coordinate %s missing from interest set", hint)
	}

	// Consumed: the next tick's interest no longer carries it.
	o.Step(1)
	for _, c := range drainInterest(t, b) {
		if c == hint {
			t.Fatalf("hint %s leaked into the next tick", hint)
		}
	}
}
