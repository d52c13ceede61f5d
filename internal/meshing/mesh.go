package meshing

import (
	"voxelstream/internal/block"
	"voxelstream/internal/coords"
)

// VertexStride is the number of float32 per vertex (pos.xyz + normal.xyz).
const VertexStride = 6

// VerticesPerFace is two triangles per quad.
const VerticesPerFace = 6

// BlockSource answers block queries in absolute coordinates. Lookups may
// cross chunk boundaries.
type BlockSource interface {
	GetBlock(x, y, z int) block.ID
}

// Mesh is the CPU-side triangle list of one chunk, interleaved pos+normal in
// world space.
type Mesh struct {
	Chunk    coords.Vec3i
	Vertices []float32
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices) / VertexStride
}

// Faces returns the number of emitted block faces.
func (m *Mesh) Faces() int {
	return m.VertexCount() / VerticesPerFace
}

// Empty reports whether the mesh has nothing to draw.
func (m *Mesh) Empty() bool {
	return m.VertexCount() == 0
}

// Snapshot is a copy of the occupied sub-volume of a chunk. Blocks holds the
// ids between Min and Max inclusive, x outer, y middle, z inner. An empty
// chunk has Min > Max and no blocks.
type Snapshot struct {
	Chunk  coords.Vec3i
	Min    coords.Vec3i
	Max    coords.Vec3i
	Blocks []block.ID
}

// IsEmpty reports whether the snapshot contains no blocks.
func (s *Snapshot) IsEmpty() bool {
	return s.Min.X > s.Max.X || s.Min.Y > s.Max.Y || s.Min.Z > s.Max.Z
}

func (s *Snapshot) size() coords.Vec3i {
	return coords.Vec3i{X: s.Max.X - s.Min.X + 1, Y: s.Max.Y - s.Min.Y + 1, Z: s.Max.Z - s.Min.Z + 1}
}

// at returns the id at a local chunk coordinate. Anything outside the box
// but inside the chunk is air.
func (s *Snapshot) at(lx, ly, lz int) block.ID {
	if lx < s.Min.X || ly < s.Min.Y || lz < s.Min.Z || lx > s.Max.X || ly > s.Max.Y || lz > s.Max.Z {
		return block.Air
	}
	d := s.size()
	return s.Blocks[((lx-s.Min.X)*d.Y+(ly-s.Min.Y))*d.Z+(lz-s.Min.Z)]
}
