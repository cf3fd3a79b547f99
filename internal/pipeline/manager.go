package pipeline

import (
	"log"

	"voxelstream/internal/world"
)

// Manager is the only component permitted to initiate load/unload. Each tick
// it reconciles the Observer's interest set against the registry, applying the
// two-radius hysteresis model: a chunk leaving the interest set is retained
// while it stays inside the buffer margin, and is unloaded only once it has
// been outside the margin for a full tick.
type Manager struct {
	bus    *Bus
	reg    *world.Registry
	margin int
	logger *log.Logger

	// firstOutside records the tick a retained coordinate was first seen
	// outside the buffer. Cleared the moment it re-enters.
	firstOutside map[world.ChunkCoord]uint64
}

func NewManager(bus *Bus, reg *world.Registry, margin int, logger *log.Logger) *Manager {
	bus.Subscribe(StageManager, EvInterest, EvLoadOK, EvLoadFail, EvUnloadOK)
	return &Manager{
		bus:          bus,
		reg:          reg,
		margin:       margin,
		logger:       logger,
		firstOutside: map[world.ChunkCoord]uint64{},
	}
}

func (m *Manager) Step(tick uint64) error {
	// Population/cleanup outcomes from the previous tick first: readiness
	// fans out to presentation, unloads clear hysteresis bookkeeping.
	for _, ev := range m.bus.Drain(StageManager, EvLoadOK) {
		m.bus.Publish(Event{Kind: EvChunkReady, Coord: ev.Coord})
	}
	for _, ev := range m.bus.Drain(StageManager, EvUnloadOK) {
		delete(m.firstOutside, ev.Coord)
		m.bus.Publish(Event{Kind: EvChunkRemoved, Coord: ev.Coord})
	}
	for _, ev := range m.bus.Drain(StageManager, EvLoadFail) {
		// A failed load is indistinguishable from "not yet loaded"; it is
		// retried naturally when the coordinate re-enters the interest set.
		delete(m.firstOutside, ev.Coord)
		if m.logger != nil {
			m.logger.Printf("manager: load failed for %s: %s", ev.Coord, ev.Err)
		}
	}

	var interest []world.ChunkCoord
	for _, ev := range m.bus.Drain(StageManager, EvInterest) {
		interest = ev.Coords
	}
	inInterest := make(map[world.ChunkCoord]struct{}, len(interest))
	for _, c := range interest {
		inInterest[c] = struct{}{}
	}
	// LoadBuffer: the interest set dilated by the hysteresis margin. It
	// contains the interest set itself, which is what makes load win any
	// load/unload tie: a coordinate in interest can never be outside the
	// buffer, so its eviction timer is cleared before eviction is considered.
	inBuffer := dilate(inInterest, m.margin)

	// toLoad = interest - retained. Absent coordinates are by definition not
	// mid-transition; anything present (in any state) is left alone.
	for _, c := range interest {
		if m.reg.State(c) != world.StateUnloaded {
			continue
		}
		if err := m.reg.BeginLoad(c); err != nil {
			return err
		}
		m.bus.Publish(Event{Kind: EvLoad, Coord: c})
	}

	// toUnload = retained - buffer, after a full tick outside. Chunks in
	// Loading/Populating/Unloading keep their pending transition; a reversal
	// of interest is honored only once that transition completes.
	for _, c := range m.reg.Coords() {
		if _, ok := inBuffer[c]; ok {
			delete(m.firstOutside, c)
			continue
		}
		since, seen := m.firstOutside[c]
		if !seen {
			m.firstOutside[c] = tick
			continue
		}
		if tick <= since {
			continue
		}
		if m.reg.State(c) != world.StateReady {
			continue
		}
		if err := m.reg.BeginUnload(c); err != nil {
			return err
		}
		m.bus.Publish(Event{Kind: EvUnload, Coord: c})
	}

	// Drop stale timers for coordinates no longer retained.
	for c := range m.firstOutside {
		if m.reg.State(c) == world.StateUnloaded {
			delete(m.firstOutside, c)
		}
	}
	return nil
}

func dilate(set map[world.ChunkCoord]struct{}, r int) map[world.ChunkCoord]struct{} {
	if r <= 0 {
		return set
	}
	out := make(map[world.ChunkCoord]struct{}, len(set))
	for c := range set {
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					out[world.ChunkCoord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}] = struct{}{}
				}
			}
		}
	}
	return out
}
