package gen

import "voxelstream/internal/world"

// Generator produces fresh chunk content. Implementations must be pure with
// respect to the world seed: the same coordinate always yields the same
// blocks, so a failed or abandoned chunk can be regenerated at any time.
type Generator interface {
	Generate(c world.ChunkCoord) (*world.Blocks, error)
}

// Palette ids for core blocks.
type Palette struct {
	Air        uint16
	Dirt       uint16
	Grass      uint16
	Sand       uint16
	Stone      uint16
	Gravel     uint16
	Log        uint16
	CoalOre    uint16
	IronOre    uint16
	CopperOre  uint16
	CrystalOre uint16
}

func DefaultPalette() Palette {
	return Palette{
		Air:        0,
		Stone:      1,
		Dirt:       2,
		Grass:      3,
		Sand:       4,
		Gravel:     5,
		Log:        6,
		CoalOre:    7,
		IronOre:    8,
		CopperOre:  9,
		CrystalOre: 10,
	}
}

// HashGen fills chunks from a seeded avalanche hash: solid terrain below a
// jittered surface level, ore/terrain rolls per cell, air above.
type HashGen struct {
	Seed     int64
	SurfaceY int // world block height of the nominal surface
	Palette  Palette
}

func NewHashGen(seed int64) *HashGen {
	return &HashGen{Seed: seed, SurfaceY: 0, Palette: DefaultPalette()}
}

func (g *HashGen) Generate(c world.ChunkCoord) (*world.Blocks, error) {
	blocks := world.NewBlocks()
	p := g.Palette
	for z := 0; z < world.ChunkSize; z++ {
		for y := 0; y < world.ChunkSize; y++ {
			for x := 0; x < world.ChunkSize; x++ {
				wx := c.X*world.ChunkSize + x
				wy := c.Y*world.ChunkSize + y
				wz := c.Z*world.ChunkSize + z

				// Surface height jitters a few blocks around SurfaceY per column.
				surface := g.SurfaceY + int(hash2(g.Seed, wx, wz)%5) - 2
				if wy > surface {
					continue // air
				}

				b := p.Stone
				switch {
				case wy == surface:
					if biomeFrom(hash2(g.Seed, wx, wz)) == "DESERT" {
						b = p.Sand
					} else {
						b = p.Grass
					}
				case wy > surface-4:
					b = p.Dirt
				default:
					roll := hash3(g.Seed, wx, wy, wz) % 1000
					switch {
					case roll < 5:
						b = p.CrystalOre
					case roll < 20:
						b = p.IronOre
					case roll < 40:
						b = p.CopperOre
					case roll < 70:
						b = p.CoalOre
					case roll < 90:
						b = p.Gravel
					case roll < 100:
						b = p.Log
					default:
						b = p.Stone
					}
				}
				blocks.Set(x, y, z, b)
			}
		}
	}
	return blocks, nil
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func biomeFrom(noise uint64) string {
	// 3-way split.
	switch noise % 3 {
	case 0:
		return "PLAINS"
	case 1:
		return "FOREST"
	default:
		return "DESERT"
	}
}
