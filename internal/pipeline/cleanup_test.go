package pipeline

import (
	"errors"
	"testing"

	"voxelstream/internal/storage"
	"voxelstream/internal/world"
)

func newCleanupHarness(t *testing.T, store storage.Store, attempts int) (*Bus, *world.Registry, *Cleanup) {
	t.Helper()
	b := NewBus()
	b.Subscribe(StageManager, EvUnloadOK)
	reg := world.NewRegistry()
	c := NewCleanup(b, reg, store, 1, nil)
	c.Attempts = attempts
	t.Cleanup(c.Close)
	return b, reg, c
}

func requestUnload(t *testing.T, b *Bus, reg *world.Registry, c world.ChunkCoord, dirty bool) {
	t.Helper()
	makeReady(t, reg, c)
	if dirty {
		if !reg.MarkDirty(c) {
			t.Fatalf("MarkDirty(%s) refused", c)
		}
	}
	if err := reg.BeginUnload(c); err != nil {
		t.Fatalf("BeginUnload(%s): %v", c, err)
	}
	b.Publish(Event{Kind: EvUnload, Coord: c})
}

func TestCleanup_PersistsDirtyContentThenRemoves(t *testing.T) {
	store := storage.NewMemStore()
	b, reg, cl := newCleanupHarness(t, store, 0)
	c := world.ChunkCoord{X: 1, Y: 2, Z: 3}

	requestUnload(t, b, reg, c, true)
	stepUntil(t, cl.Step, func() bool { return reg.State(c) == world.StateUnloaded })

	if !store.Has(c) {
		t.Fatalf("dirty chunk %s was not persisted", c)
	}
	oks := b.Drain(StageManager, EvUnloadOK)
	if len(oks) != 1 || oks[0].Coord != c {
		t.Fatalf("UNLOAD_OK events = %+v, want one for %s", oks, c)
	}
}

func TestCleanup_CleanChunkSkipsSave(t *testing.T) {
	store := storage.NewMemStore()
	saves := 0
	store.SaveErr = func(world.ChunkCoord) error { saves++; return nil }
	b, reg, cl := newCleanupHarness(t, store, 0)
	c := world.ChunkCoord{X: 0}

	requestUnload(t, b, reg, c, false)
	stepUntil(t, cl.Step, func() bool { return reg.State(c) == world.StateUnloaded })

	if saves != 0 {
		t.Fatalf("clean chunk hit the store %d times, want 0", saves)
	}
	if got := len(b.Drain(StageManager, EvUnloadOK)); got != 1 {
		t.Fatalf("UNLOAD_OK events = %d, want 1", got)
	}
}

func TestCleanup_SaveFailureRetainsContentAndRetries(t *testing.T) {
	store := storage.NewMemStore()
	fails := 2
	store.SaveErr = func(world.ChunkCoord) error {
		if fails > 0 {
			fails--
			return errors.New("volume detached")
		}
		return nil
	}
	b, reg, cl := newCleanupHarness(t, store, 0)
	c := world.ChunkCoord{X: 5}

	requestUnload(t, b, reg, c, true)

	// While saves fail the chunk must stay in Unloading with content intact.
	if err := cl.Step(0); err != nil {
		t.Fatalf("Step(0): %v", err)
	}
	if got := reg.State(c); got != world.StateUnloading {
		t.Fatalf("state after dispatch = %s, want UNLOADING", got)
	}

	stepUntil(t, cl.Step, func() bool { return reg.State(c) == world.StateUnloaded })

	if !store.Has(c) {
		t.Fatalf("content lost across retries: %s never persisted", c)
	}
	if fails != 0 {
		t.Fatalf("store fault not exhausted: %d injected failures left", fails)
	}
	if got := len(b.Drain(StageManager, EvUnloadOK)); got != 1 {
		t.Fatalf("UNLOAD_OK events = %d, want exactly 1", got)
	}
}

func TestCleanup_AbandonsAfterBoundedAttempts(t *testing.T) {
	store := storage.NewMemStore()
	attempts := 0
	store.SaveErr = func(world.ChunkCoord) error {
		attempts++
		return errors.New("volume detached")
	}
	b, reg, cl := newCleanupHarness(t, store, 3)
	c := world.ChunkCoord{X: 6}

	requestUnload(t, b, reg, c, true)
	stepUntil(t, cl.Step, func() bool { return reg.State(c) == world.StateUnloaded })

	if attempts != 3 {
		t.Fatalf("save attempted %d times, want 3", attempts)
	}
	if store.Has(c) {
		t.Fatalf("abandoned chunk %s unexpectedly persisted", c)
	}
	// Abandoned unloads still finalize: downstream sees a normal removal.
	if got := len(b.Drain(StageManager, EvUnloadOK)); got != 1 {
		t.Fatalf("UNLOAD_OK events = %d, want 1", got)
	}
	if cl.abandoned != 1 {
		t.Fatalf("abandoned counter = %d, want 1", cl.abandoned)
	}
}
