package storage

import (
	"errors"

	"voxelstream/internal/world"
)

// ErrNotFound reports that no persisted content exists for a coordinate.
// Population treats it as "generate fresh", not as a failure.
var ErrNotFound = errors.New("storage: chunk not found")

// Store is the persistence boundary for chunk content. Load and Save must be
// safe to call concurrently for distinct coordinates; the pipeline never
// issues concurrent calls for the same coordinate (one in-flight transition
// per chunk). Save is idempotent per coordinate: redoing a persist after a
// crash is a no-op.
type Store interface {
	Load(c world.ChunkCoord) (*world.Blocks, error)
	Save(c world.ChunkCoord, b *world.Blocks) error
	Close() error
}
