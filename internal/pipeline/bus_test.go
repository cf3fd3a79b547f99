package pipeline

import (
	"testing"

	"voxelstream/internal/world"
)

func TestBus_BroadcastToAllConsumers(t *testing.T) {
	b := NewBus()
	b.Subscribe(StageManager, EvLoadOK)
	b.Subscribe(StageRecorder, EvLoadOK)

	c := world.ChunkCoord{X: 1, Y: 2, Z: 3}
	b.Publish(Event{Kind: EvLoadOK, Coord: c})

	got := b.Drain(StageManager, EvLoadOK)
	if len(got) != 1 || got[0].Coord != c {
		t.Fatalf("manager drain = %+v, want one event at %s", got, c)
	}
	// Draining one consumer must not touch the other's queue.
	got = b.Drain(StageRecorder, EvLoadOK)
	if len(got) != 1 || got[0].Coord != c {
		t.Fatalf("recorder drain = %+v, want one event at %s", got, c)
	}
}

func TestBus_DrainPreservesPublicationOrder(t *testing.T) {
	b := NewBus()
	b.Subscribe(StagePopulation, EvLoad)

	coords := []world.ChunkCoord{{X: 2}, {X: 0}, {X: 1}}
	for _, c := range coords {
		b.Publish(Event{Kind: EvLoad, Coord: c})
	}

	got := b.Drain(StagePopulation, EvLoad)
	if len(got) != len(coords) {
		t.Fatalf("drained %d events, want %d", len(got), len(coords))
	}
	for i, ev := range got {
		if ev.Coord != coords[i] {
			t.Fatalf("event %d = %s, want %s", i, ev.Coord, coords[i])
		}
	}
}

func TestBus_DrainClearsOnlyThatConsumer(t *testing.T) {
	b := NewBus()
	b.Subscribe(StageManager, EvUnloadOK)
	b.Publish(Event{Kind: EvUnloadOK, Coord: world.ChunkCoord{X: 5}})

	if got := len(b.Drain(StageManager, EvUnloadOK)); got != 1 {
		t.Fatalf("first drain = %d events, want 1", got)
	}
	if got := len(b.Drain(StageManager, EvUnloadOK)); got != 0 {
		t.Fatalf("second drain = %d events, want 0", got)
	}
}

func TestBus_UnsubscribedKindDeliversNothing(t *testing.T) {
	b := NewBus()
	b.Subscribe(StageManager, EvInterest)

	b.Publish(Event{Kind: EvLoadHint, Coord: world.ChunkCoord{X: 9}})

	for s := StageObserver; s < stageCount; s++ {
		if n := b.Pending(s, EvLoadHint); n != 0 {
			t.Fatalf("stage %s has %d pending LOAD_HINT events, want 0", s, n)
		}
	}
}
