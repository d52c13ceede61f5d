package world

import (
	"slices"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
)

// Staging collects the chunks of one region while it is loaded or
// generated. It is owned by a single worker until handed to the consumer,
// so it needs no locking. Writes outside the region are ignored.
type Staging struct {
	region coords.Vec3i
	chunks map[coords.Vec3i]*Chunk
}

// NewStaging returns an empty staging cache for region r.
func NewStaging(r coords.Vec3i) *Staging {
	return &Staging{
		region: r,
		chunks: make(map[coords.Vec3i]*Chunk, coords.ChunksPerRegion*coords.ChunksPerRegion*coords.ChunksPerRegion),
	}
}

// Region returns the region being staged.
func (s *Staging) Region() coords.Vec3i { return s.region }

func (s *Staging) owns(c coords.Vec3i) bool {
	return coords.RegionOfChunk(c) == s.region
}

// EnsureChunk creates chunk c if it is inside the region and missing.
func (s *Staging) EnsureChunk(c coords.Vec3i) {
	if !s.owns(c) {
		return
	}
	if _, ok := s.chunks[c]; !ok {
		s.chunks[c] = NewChunk(c)
	}
}

// Put stores a decoded chunk. It reports false if the chunk lies outside
// the region.
func (s *Staging) Put(ch *Chunk) bool {
	if !s.owns(ch.Pos()) {
		return false
	}
	s.chunks[ch.Pos()] = ch
	return true
}

// Chunk returns the staged chunk at c.
func (s *Staging) Chunk(c coords.Vec3i) *Chunk {
	return s.chunks[c]
}

// GetBlock reads an absolute coordinate; missing chunks read as air.
func (s *Staging) GetBlock(x, y, z int) block.ID {
	ch := s.chunks[coords.ChunkOf(x, y, z)]
	if ch == nil {
		return block.Air
	}
	l := coords.LocalOf(x, y, z)
	return ch.GetBlock(l.X, l.Y, l.Z)
}

// SetBlock writes an absolute coordinate, creating the chunk on demand.
func (s *Staging) SetBlock(x, y, z int, id block.ID) {
	c := coords.ChunkOf(x, y, z)
	if !s.owns(c) {
		return
	}
	s.EnsureChunk(c)
	l := coords.LocalOf(x, y, z)
	s.chunks[c].SetBlock(l.X, l.Y, l.Z, id)
}

// Len returns the number of staged chunks.
func (s *Staging) Len() int { return len(s.chunks) }

// Chunks returns the staged chunks ordered by coordinate, x outer.
func (s *Staging) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(s.chunks))
	for _, ch := range s.chunks {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b *Chunk) int { return compareVec(a.Pos(), b.Pos()) })
	return out
}

func compareVec(a, b coords.Vec3i) int {
	switch {
	case a.X != b.X:
		return a.X - b.X
	case a.Y != b.Y:
		return a.Y - b.Y
	default:
		return a.Z - b.Z
	}
}
