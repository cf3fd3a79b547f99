package world

import "fmt"

// ChunkCoord identifies a chunk's position on the regular grid.
// Coordinates refer to chunks, not blocks: (1, 0, 0) is the chunk holding
// blocks 16..31 on the X axis.
type ChunkCoord struct {
	X, Y, Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.X, c.Y, c.Z)
}

// Less orders coordinates lexicographically (X, then Y, then Z).
// Registry iteration uses this order so per-tick work is deterministic.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// Chebyshev returns the Chebyshev (chessboard) distance to o.
// Interest and buffer radii are Chebyshev balls.
func (c ChunkCoord) Chebyshev(o ChunkCoord) int {
	d := absInt(c.X - o.X)
	if dy := absInt(c.Y - o.Y); dy > d {
		d = dy
	}
	if dz := absInt(c.Z - o.Z); dz > d {
		d = dz
	}
	return d
}

// ChunkOf maps a block position to the chunk containing it.
func ChunkOf(x, y, z int) ChunkCoord {
	return ChunkCoord{
		X: floorDiv(x, ChunkSize),
		Y: floorDiv(y, ChunkSize),
		Z: floorDiv(z, ChunkSize),
	}
}

func SortCoords(coords []ChunkCoord) {
	sortCoords(coords)
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
