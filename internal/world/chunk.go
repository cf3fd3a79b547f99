package world

import "sort"

const (
	ChunkSize   = 16
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// Blocks is the voxel payload of one chunk: a dense 16^3 grid of palette ids.
type Blocks struct {
	Cells []uint16 // len = ChunkVolume
}

func NewBlocks() *Blocks {
	return &Blocks{Cells: make([]uint16, ChunkVolume)}
}

func (b *Blocks) index(x, y, z int) int {
	// x fastest, then y, then z
	return x + y*ChunkSize + z*ChunkSize*ChunkSize
}

func (b *Blocks) Get(x, y, z int) uint16 {
	return b.Cells[b.index(x, y, z)]
}

// Set writes a block and reports whether the cell actually changed.
func (b *Blocks) Set(x, y, z int, v uint16) bool {
	i := b.index(x, y, z)
	if b.Cells[i] == v {
		return false
	}
	b.Cells[i] = v
	return true
}

// BlockView is a read-only borrow of chunk content, handed out to collaborators
// (physics collision queries) that must never become a second writer.
type BlockView struct {
	b *Blocks
}

func (v BlockView) Get(x, y, z int) uint16 {
	return v.b.Get(x, y, z)
}

// Cell reads by flat index, for serializers that walk the whole grid.
func (v BlockView) Cell(i int) uint16 {
	return v.b.Cells[i]
}

// State is the position of a chunk in its load/unload lifecycle. A chunk
// occupies exactly one state at any instant; the registry admits only the
// transitions in its method set.
type State uint8

const (
	StateUnloaded State = iota
	StateLoading
	StatePopulating
	StateReady
	StateUnloading
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "UNLOADED"
	case StateLoading:
		return "LOADING"
	case StatePopulating:
		return "POPULATING"
	case StateReady:
		return "READY"
	case StateUnloading:
		return "UNLOADING"
	default:
		return "INVALID"
	}
}

// Chunk is the unit of streaming. Owned exclusively by the Registry; stages
// act on it through registry accessors, never by holding the struct.
type Chunk struct {
	Coord ChunkCoord

	state  State
	blocks *Blocks
	dirty  bool
}

func sortCoords(coords []ChunkCoord) {
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
}
