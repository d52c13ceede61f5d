package gen

import (
	"math"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
)

// Volume is the block storage the generator writes into. Generation writes
// must not trigger geometry updates.
type Volume interface {
	GetBlock(x, y, z int) block.ID
	SetBlock(x, y, z int, id block.ID)
	// EnsureChunk creates the chunk even when every block stays air.
	EnsureChunk(c coords.Vec3i)
}

// Settings holds terrain generation parameters.
type Settings struct {
	Seed        int64
	Octaves     int
	Persistence float64
	Frequency   float64
	Amplitude   float64

	BaseHeight  int
	HeightScale float64
	DirtDepth   int

	Caves         bool
	WormChance    float64 // per-region probability of a worm start
	WormLength    int
	WormStep      float64
	WormRadius    float64
	WormMinDepth  int // blocks below the surface for the start point
	WormFrequency float64
}

// DefaultSettings mirrors the reference terrain: seed 12345, six octaves.
func DefaultSettings() Settings {
	return Settings{
		Seed:          12345,
		Octaves:       6,
		Persistence:   0.5,
		Frequency:     0.01,
		Amplitude:     1.0,
		BaseHeight:    32,
		HeightScale:   32,
		DirtDepth:     3,
		Caves:         true,
		WormChance:    0.35,
		WormLength:    60,
		WormStep:      1.5,
		WormRadius:    2.5,
		WormMinDepth:  6,
		WormFrequency: 0.1,
	}
}

// Generator produces block ids for absolute coordinates deterministically.
type Generator struct {
	settings Settings
	height   *Perlin
	worm     *Perlin
}

// NewGenerator creates a generator from settings.
func NewGenerator(s Settings) *Generator {
	return &Generator{
		settings: s,
		height:   NewPerlin(s.Seed, s.Octaves, s.Persistence, s.Frequency, 1.0),
		worm:     NewPerlin(s.Seed, 4, 0.5, s.WormFrequency, 1.0),
	}
}

// Settings returns the parameters the generator was built with.
func (g *Generator) Settings() Settings {
	return g.settings
}

// HeightAt computes the surface height (block Y) of column (worldX, worldZ).
func (g *Generator) HeightAt(worldX, worldZ int) int {
	n := g.height.Noise2D(float64(worldX), float64(worldZ)) * g.settings.Amplitude
	return int(math.Floor(n*g.settings.HeightScale)) + g.settings.BaseHeight
}

// Classify returns the block at height y of a column whose surface is h.
func (g *Generator) Classify(y, h int) block.ID {
	switch {
	case y > h:
		return block.Air
	case y == h:
		return block.Grass
	case y >= h-g.settings.DirtDepth:
		return block.Dirt
	default:
		return block.Stone
	}
}

// BlockAt returns the uncarved terrain block at an absolute coordinate.
func (g *Generator) BlockAt(x, y, z int) block.ID {
	return g.Classify(y, g.HeightAt(x, z))
}

// FillRegion writes the height-classified terrain of every chunk of region r
// into v and, when caves are enabled, carves the region's worms.
func (g *Generator) FillRegion(v Volume, r coords.Vec3i) {
	coords.RegionChunks(r, func(c coords.Vec3i) {
		v.EnsureChunk(c)
		g.fillChunk(v, c)
	})
	if !g.settings.Caves {
		return
	}
	for _, start := range g.WormStarts(r) {
		g.CarveTunnels(v, start)
	}
}

func (g *Generator) fillChunk(v Volume, c coords.Vec3i) {
	base := c.Mul(coords.ChunkSize)
	for lx := 0; lx < coords.ChunkSize; lx++ {
		for lz := 0; lz < coords.ChunkSize; lz++ {
			wx, wz := base.X+lx, base.Z+lz
			h := g.HeightAt(wx, wz)
			for ly := 0; ly < coords.ChunkSize; ly++ {
				wy := base.Y + ly
				if id := g.Classify(wy, h); id != block.Air {
					v.SetBlock(wx, wy, wz, id)
				}
			}
		}
	}
}
