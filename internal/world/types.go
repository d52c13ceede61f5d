package world

import (
	"context"

	"voxelstream/internal/coords"
	"voxelstream/internal/meshing"
)

// Handle is renderer-owned geometry attached to a chunk.
type Handle any

// Uploader turns CPU meshes into renderer handles. Called only from the
// consumer goroutine.
type Uploader interface {
	Upload(m *meshing.Mesh) (Handle, error)
	Release(h Handle)
}

// Drawer draws one uploaded chunk.
type Drawer interface {
	Draw(chunk coords.Vec3i, h Handle)
}

// RegionStore persists regions. Implementations must be safe for use from
// worker goroutines; a region is never in two calls at once.
type RegionStore interface {
	// Load fills dst from the saved region. It returns false when nothing
	// was saved for r.
	Load(ctx context.Context, r coords.Vec3i, dst *Staging) (bool, error)
	// Save writes chunks, all belonging to r, replacing any earlier save.
	Save(ctx context.Context, r coords.Vec3i, chunks []*Chunk) error
}

// Priority selects a rebuild lane.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityLow
	numPriorities
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

// nopUploader discards meshes. Used when the world runs headless.
type nopUploader struct{}

func (nopUploader) Upload(*meshing.Mesh) (Handle, error) { return nil, nil }
func (nopUploader) Release(Handle)                       {}
