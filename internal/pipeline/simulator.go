package pipeline

import "voxelstream/internal/world"

// Rule is a pluggable world-simulation step. Advance mutates blocks in place
// and reports whether anything changed.
type Rule interface {
	Advance(c world.ChunkCoord, blocks *world.Blocks, tick uint64) bool
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(c world.ChunkCoord, blocks *world.Blocks, tick uint64) bool

func (f RuleFunc) Advance(c world.ChunkCoord, blocks *world.Blocks, tick uint64) bool {
	return f(c, blocks, tick)
}

// Simulator advances the content of every Ready chunk once per tick, in
// coordinate order. Script-driven content updates arrive as events and count
// as mutations of the same tick, so however many sources touch a chunk it
// emits at most one ChunkUpdate.
type Simulator struct {
	bus  *Bus
	reg  *world.Registry
	rule Rule
}

func NewSimulator(bus *Bus, reg *world.Registry, rule Rule) *Simulator {
	bus.Subscribe(StageSimulator, EvScriptUpdate)
	return &Simulator{bus: bus, reg: reg, rule: rule}
}

func (s *Simulator) Step(tick uint64) {
	changed := map[world.ChunkCoord]struct{}{}

	for _, ev := range s.bus.Drain(StageSimulator, EvScriptUpdate) {
		// Updates for chunks not (or no longer) Ready are dropped: the script
		// raced an unload, and partial content must never surface.
		if s.reg.MarkDirty(ev.Coord) {
			changed[ev.Coord] = struct{}{}
		}
	}

	if s.rule != nil {
		for _, c := range s.reg.ReadyCoords() {
			blocks, ok := s.reg.Blocks(c)
			if !ok {
				continue
			}
			if s.rule.Advance(c, blocks, tick) {
				s.reg.MarkDirty(c)
				changed[c] = struct{}{}
			}
		}
	}

	coords := make([]world.ChunkCoord, 0, len(changed))
	for c := range changed {
		coords = append(coords, c)
	}
	world.SortCoords(coords)
	for _, c := range coords {
		s.bus.Publish(Event{Kind: EvChunkUpdate, Coord: c})
	}
}
