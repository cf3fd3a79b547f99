package world

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate reports an insert for a coordinate already present.
	ErrDuplicate = errors.New("registry: coordinate already present")
	// ErrBadTransition reports a transition requested on a chunk that is not
	// in the expected state. Both are programming errors, fatal to the
	// pipeline's consistency guarantees; callers must not swallow them.
	ErrBadTransition = errors.New("registry: transition not admitted")
)

// Registry owns every chunk record and its state machine. A coordinate appears
// at most once; absence means Unloaded. Accessed only from the pipeline
// goroutine; exclusivity per chunk is enforced by the state machine (one
// in-flight transition per coordinate), not by locking.
type Registry struct {
	chunks map[ChunkCoord]*Chunk
}

func NewRegistry() *Registry {
	return &Registry{chunks: map[ChunkCoord]*Chunk{}}
}

func (r *Registry) Len() int { return len(r.chunks) }

// State returns the chunk's current state; StateUnloaded for absent coordinates.
func (r *Registry) State(c ChunkCoord) State {
	ch, ok := r.chunks[c]
	if !ok {
		return StateUnloaded
	}
	return ch.state
}

// Coords returns every registered coordinate in deterministic order.
func (r *Registry) Coords() []ChunkCoord {
	out := make([]ChunkCoord, 0, len(r.chunks))
	for c := range r.chunks {
		out = append(out, c)
	}
	sortCoords(out)
	return out
}

// ReadyCoords returns the coordinates of all Ready chunks in deterministic order.
func (r *Registry) ReadyCoords() []ChunkCoord {
	out := make([]ChunkCoord, 0, len(r.chunks))
	for c, ch := range r.chunks {
		if ch.state == StateReady {
			out = append(out, c)
		}
	}
	sortCoords(out)
	return out
}

// CountState returns how many chunks occupy the given state.
func (r *Registry) CountState(s State) int {
	n := 0
	for _, ch := range r.chunks {
		if ch.state == s {
			n++
		}
	}
	return n
}

// BeginLoad registers a coordinate and moves it Unloaded -> Loading.
func (r *Registry) BeginLoad(c ChunkCoord) error {
	if _, ok := r.chunks[c]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, c)
	}
	r.chunks[c] = &Chunk{Coord: c, state: StateLoading}
	return nil
}

// BeginPopulate moves a chunk Loading -> Populating (population dispatched).
func (r *Registry) BeginPopulate(c ChunkCoord) error {
	return r.advance(c, StateLoading, StatePopulating)
}

// CompletePopulate installs content and moves a chunk Populating -> Ready.
// Content becomes visible atomically here; Populating chunks expose none.
func (r *Registry) CompletePopulate(c ChunkCoord, blocks *Blocks) error {
	ch, ok := r.chunks[c]
	if !ok || ch.state != StatePopulating {
		return fmt.Errorf("%w: complete populate %s in state %s", ErrBadTransition, c, r.State(c))
	}
	if blocks == nil {
		return fmt.Errorf("%w: complete populate %s with nil content", ErrBadTransition, c)
	}
	ch.blocks = blocks
	ch.state = StateReady
	ch.dirty = false
	return nil
}

// FailPopulate reverts a chunk Populating -> Unloaded after both the restore
// and generate paths failed. The entry is removed, so a later Load retries.
func (r *Registry) FailPopulate(c ChunkCoord) error {
	ch, ok := r.chunks[c]
	if !ok || ch.state != StatePopulating {
		return fmt.Errorf("%w: fail populate %s in state %s", ErrBadTransition, c, r.State(c))
	}
	delete(r.chunks, c)
	return nil
}

// BeginUnload moves a chunk Ready -> Unloading. Content is retained until the
// persist completes.
func (r *Registry) BeginUnload(c ChunkCoord) error {
	return r.advance(c, StateReady, StateUnloading)
}

// CompleteUnload finalizes Unloading -> Unloaded after a successful persist,
// freeing content and removing the entry.
func (r *Registry) CompleteUnload(c ChunkCoord) error {
	return r.removeUnloading(c, "complete unload")
}

// AbandonUnload finalizes Unloading -> Unloaded without a persist. Only the
// cleanup stage's abandon policy may invoke this; it accepts data loss.
func (r *Registry) AbandonUnload(c ChunkCoord) error {
	return r.removeUnloading(c, "abandon unload")
}

func (r *Registry) removeUnloading(c ChunkCoord, op string) error {
	ch, ok := r.chunks[c]
	if !ok || ch.state != StateUnloading {
		return fmt.Errorf("%w: %s %s in state %s", ErrBadTransition, op, c, r.State(c))
	}
	ch.blocks = nil
	delete(r.chunks, c)
	return nil
}

func (r *Registry) advance(c ChunkCoord, from, to State) error {
	ch, ok := r.chunks[c]
	if !ok || ch.state != from {
		return fmt.Errorf("%w: %s -> %s for %s in state %s", ErrBadTransition, from, to, c, r.State(c))
	}
	ch.state = to
	return nil
}

// Blocks returns the mutable content of a Ready chunk. The handle is scoped to
// the tick in which the caller acts on the chunk; callers must not retain it.
func (r *Registry) Blocks(c ChunkCoord) (*Blocks, bool) {
	ch, ok := r.chunks[c]
	if !ok || ch.state != StateReady {
		return nil, false
	}
	return ch.blocks, true
}

// View returns a read-only borrow of a Ready chunk's content (the physics read
// contract). Chunks in any other state expose nothing.
func (r *Registry) View(c ChunkCoord) (BlockView, bool) {
	ch, ok := r.chunks[c]
	if !ok || ch.state != StateReady {
		return BlockView{}, false
	}
	return BlockView{b: ch.blocks}, true
}

// ContentForUnload returns the retained content and dirty flag of an Unloading
// chunk so cleanup can persist it before it is freed.
func (r *Registry) ContentForUnload(c ChunkCoord) (*Blocks, bool, bool) {
	ch, ok := r.chunks[c]
	if !ok || ch.state != StateUnloading {
		return nil, false, false
	}
	return ch.blocks, ch.dirty, true
}

// MarkDirty flags a Ready chunk as mutated since its last persist.
func (r *Registry) MarkDirty(c ChunkCoord) bool {
	ch, ok := r.chunks[c]
	if !ok || ch.state != StateReady {
		return false
	}
	ch.dirty = true
	return true
}

func (r *Registry) Dirty(c ChunkCoord) bool {
	ch, ok := r.chunks[c]
	return ok && ch.dirty
}
