package pipeline

import "voxelstream/internal/world"

// Observer recomputes the interest set each tick from the registered viewer
// positions and the configured view distance, plus any should-load hints from
// the scripting collaborator. It never touches chunk state: its only output is
// the EvInterest event the Manager reconciles against.
type Observer struct {
	bus          *Bus
	viewDistance int

	// Viewer chunk positions keyed by session id. Deterministic output does
	// not depend on map order because the interest set is sorted.
	viewers map[string]world.ChunkCoord
}

func NewObserver(bus *Bus, viewDistance int) *Observer {
	bus.Subscribe(StageObserver, EvLoadHint)
	return &Observer{
		bus:          bus,
		viewDistance: viewDistance,
		viewers:      map[string]world.ChunkCoord{},
	}
}

func (o *Observer) SetViewer(id string, at world.ChunkCoord) {
	o.viewers[id] = at
}

func (o *Observer) RemoveViewer(id string) {
	delete(o.viewers, id)
}

func (o *Observer) Viewers() int { return len(o.viewers) }

// Step publishes the interest set for this tick and returns its size.
// Hints force a coordinate in for the tick they are consumed; the Manager's
// hysteresis provides the retention tail after that.
func (o *Observer) Step(tick uint64) int {
	set := map[world.ChunkCoord]struct{}{}
	d := o.viewDistance
	for _, at := range o.viewers {
		for dx := -d; dx <= d; dx++ {
			for dy := -d; dy <= d; dy++ {
				for dz := -d; dz <= d; dz++ {
					set[world.ChunkCoord{X: at.X + dx, Y: at.Y + dy, Z: at.Z + dz}] = struct{}{}
				}
			}
		}
	}
	for _, ev := range o.bus.Drain(StageObserver, EvLoadHint) {
		set[ev.Coord] = struct{}{}
	}

	coords := make([]world.ChunkCoord, 0, len(set))
	for c := range set {
		coords = append(coords, c)
	}
	world.SortCoords(coords)

	o.bus.Publish(Event{Kind: EvInterest, Coords: coords})
	return len(coords)
}
