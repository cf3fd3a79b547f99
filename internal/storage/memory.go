package storage

import (
	"fmt"
	"sync"

	"voxelstream/internal/world"
)

// MemStore is an in-memory Store for tests. LoadErr/SaveErr inject transient
// faults per coordinate.
type MemStore struct {
	mu     sync.Mutex
	chunks map[world.ChunkCoord][]uint16

	LoadErr func(c world.ChunkCoord) error
	SaveErr func(c world.ChunkCoord) error
}

func NewMemStore() *MemStore {
	return &MemStore{chunks: map[world.ChunkCoord][]uint16{}}
}

func (m *MemStore) Load(c world.ChunkCoord) (*world.Blocks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		if err := m.LoadErr(c); err != nil {
			return nil, err
		}
	}
	cells, ok := m.chunks[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
	}
	b := world.NewBlocks()
	copy(b.Cells, cells)
	return b, nil
}

func (m *MemStore) Save(c world.ChunkCoord, b *world.Blocks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		if err := m.SaveErr(c); err != nil {
			return err
		}
	}
	cells := make([]uint16, len(b.Cells))
	copy(cells, b.Cells)
	m.chunks[c] = cells
	return nil
}

// Has reports whether persisted content exists for a coordinate.
func (m *MemStore) Has(c world.ChunkCoord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.chunks[c]
	return ok
}

func (m *MemStore) Close() error { return nil }
