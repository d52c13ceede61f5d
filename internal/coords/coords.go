package coords

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

const (
	// ChunkSize is the edge length of a chunk in blocks.
	ChunkSize = 16
	// RegionSize is the edge length of a region in blocks.
	RegionSize = 2 * ChunkSize
	// ChunksPerRegion is the number of chunks along one axis of a region.
	ChunksPerRegion = RegionSize / ChunkSize
	// ChunkVolume is the number of blocks in a chunk.
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// Vec3i is an integer triple used for block, chunk and region coordinates.
type Vec3i struct {
	X, Y, Z int
}

// Add returns the component-wise sum v+o.
func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
// Sub returns the component-wise difference v-o.
func (v Vec3i) Sub(o Vec3i) Vec3i { return Vec3i{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
// Mul scales every component by s.
func (v Vec3i) Mul(s int) Vec3i { return Vec3i{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3i) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}

// FloorDiv divides rounding towards negative infinity.
func FloorDiv[T constraints.Integer](a, b T) T {
	if a < 0 {
		return (a+1)/b - 1
	}
	return a / b
}

// FloorMod returns the non-negative remainder of a / b.
func FloorMod[T constraints.Integer](a, b T) T {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ChunkOf returns the coordinate of the chunk owning block (x, y, z).
func ChunkOf(x, y, z int) Vec3i {
	return Vec3i{FloorDiv(x, ChunkSize), FloorDiv(y, ChunkSize), FloorDiv(z, ChunkSize)}
}

// RegionOf returns the coordinate of the region owning block (x, y, z).
func RegionOf(x, y, z int) Vec3i {
	return Vec3i{FloorDiv(x, RegionSize), FloorDiv(y, RegionSize), FloorDiv(z, RegionSize)}
}

// LocalOf returns the offset of block (x, y, z) inside its chunk.
func LocalOf(x, y, z int) Vec3i {
	return Vec3i{FloorMod(x, ChunkSize), FloorMod(y, ChunkSize), FloorMod(z, ChunkSize)}
}

// RegionOfChunk returns the region owning the given chunk coordinate.
func RegionOfChunk(c Vec3i) Vec3i {
	return Vec3i{FloorDiv(c.X, ChunksPerRegion), FloorDiv(c.Y, ChunksPerRegion), FloorDiv(c.Z, ChunksPerRegion)}
}

// RegionChunkMin returns the lowest chunk coordinate inside region r.
func RegionChunkMin(r Vec3i) Vec3i {
	return r.Mul(ChunksPerRegion)
}

// RegionChunks calls fn for every chunk coordinate inside region r, x outer.
func RegionChunks(r Vec3i, fn func(c Vec3i)) {
	base := RegionChunkMin(r)
	for x := 0; x < ChunksPerRegion; x++ {
		for y := 0; y < ChunksPerRegion; y++ {
			for z := 0; z < ChunksPerRegion; z++ {
				fn(base.Add(Vec3i{x, y, z}))
			}
		}
	}
}
