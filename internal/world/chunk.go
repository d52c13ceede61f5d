package world

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
	"voxelstream/internal/meshing"
)

var (
	// ErrRebuildInterrupted is returned by Rebuild when its context is
	// cancelled before the mesh is complete.
	ErrRebuildInterrupted = errors.New("world: rebuild interrupted")
	// ErrBadChunkData is returned when a serialized chunk is malformed.
	ErrBadChunkData = errors.New("world: malformed chunk data")
)

// Chunk is a 16x16x16 block cube. Block data is guarded by an RW lock so
// workers can snapshot it while the consumer edits. Geometry state
// (pending mesh, GPU handle, in-flight rebuild) has its own lock; the GPU
// handle itself is only touched from the consumer goroutine.
type Chunk struct {
	pos coords.Vec3i

	mu     sync.RWMutex
	blocks [coords.ChunkVolume]block.ID
	min    coords.Vec3i
	max    coords.Vec3i

	geomMu     sync.Mutex
	pending    *meshing.Mesh
	rebuilding bool
	cancel     context.CancelFunc

	handle   Handle
	disposed bool
}

// NewChunk creates an empty chunk at chunk coordinate pos.
func NewChunk(pos coords.Vec3i) *Chunk {
	c := &Chunk{pos: pos}
	c.resetBounds()
	return c
}

func (c *Chunk) resetBounds() {
	c.min = coords.Vec3i{X: coords.ChunkSize, Y: coords.ChunkSize, Z: coords.ChunkSize}
	c.max = coords.Vec3i{X: -1, Y: -1, Z: -1}
}

// Pos returns the chunk coordinate.
func (c *Chunk) Pos() coords.Vec3i { return c.pos }

func index(lx, ly, lz int) int {
	return (lx*coords.ChunkSize+ly)*coords.ChunkSize + lz
}

func inChunk(lx, ly, lz int) bool {
	return lx >= 0 && ly >= 0 && lz >= 0 && lx < coords.ChunkSize && ly < coords.ChunkSize && lz < coords.ChunkSize
}

// GetBlock returns the id at a local coordinate, or air when out of range.
func (c *Chunk) GetBlock(lx, ly, lz int) block.ID {
	if !inChunk(lx, ly, lz) {
		return block.Air
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[index(lx, ly, lz)]
}

// SetBlock stores id at a local coordinate and grows the bounding box. It
// reports whether the chunk changed.
func (c *Chunk) SetBlock(lx, ly, lz int, id block.ID) bool {
	if !inChunk(lx, ly, lz) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := index(lx, ly, lz)
	if c.blocks[i] == id {
		return false
	}
	c.blocks[i] = id
	c.min = coords.Vec3i{X: min(c.min.X, lx), Y: min(c.min.Y, ly), Z: min(c.min.Z, lz)}
	c.max = coords.Vec3i{X: max(c.max.X, lx), Y: max(c.max.Y, ly), Z: max(c.max.Z, lz)}
	return true
}

// Bounds returns the dirty bounding box corners.
func (c *Chunk) Bounds() (lo, hi coords.Vec3i) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.min, c.max
}

// IsEmpty reports whether no block was ever set.
func (c *Chunk) IsEmpty() bool {
	lo, hi := c.Bounds()
	return lo.X > hi.X
}

// snapshot copies the bounding box sub-volume.
func (c *Chunk) snapshot() *meshing.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := &meshing.Snapshot{Chunk: c.pos, Min: c.min, Max: c.max}
	if c.min.X > c.max.X {
		return s
	}
	s.Blocks = make([]block.ID, 0, (c.max.X-c.min.X+1)*(c.max.Y-c.min.Y+1)*(c.max.Z-c.min.Z+1))
	for x := c.min.X; x <= c.max.X; x++ {
		for y := c.min.Y; y <= c.max.Y; y++ {
			row := index(x, y, 0)
			s.Blocks = append(s.Blocks, c.blocks[row+c.min.Z:row+c.max.Z+1]...)
		}
	}
	return s
}

// tryBeginRebuild marks the chunk as having a rebuild in flight and returns
// the context the rebuild must observe. It fails if one is already running.
func (c *Chunk) tryBeginRebuild(parent context.Context) (context.Context, bool) {
	c.geomMu.Lock()
	defer c.geomMu.Unlock()
	if c.rebuilding || c.disposed {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	c.rebuilding = true
	c.cancel = cancel
	return ctx, true
}

func (c *Chunk) endRebuild() {
	c.geomMu.Lock()
	defer c.geomMu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.rebuilding = false
}

// RebuildInFlight reports whether a rebuild has been started and not ended.
func (c *Chunk) RebuildInFlight() bool {
	c.geomMu.Lock()
	defer c.geomMu.Unlock()
	return c.rebuilding
}

// Interrupt cancels the in-flight rebuild, if any.
func (c *Chunk) Interrupt() {
	c.geomMu.Lock()
	defer c.geomMu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Rebuild meshes the chunk's bounding box, resolving neighbours outside the
// chunk through src. The result is kept until Publish. A cancelled ctx
// leaves the previous pending mesh untouched and returns
// ErrRebuildInterrupted.
func (c *Chunk) Rebuild(ctx context.Context, src meshing.BlockSource) error {
	mesh, err := meshing.Build(ctx, c.snapshot(), src)
	if err != nil {
		return fmt.Errorf("%w: chunk %v: %w", ErrRebuildInterrupted, c.pos, err)
	}
	c.geomMu.Lock()
	c.pending = mesh
	c.geomMu.Unlock()
	return nil
}

// HasPending reports whether a rebuilt mesh is waiting for Publish.
func (c *Chunk) HasPending() bool {
	c.geomMu.Lock()
	defer c.geomMu.Unlock()
	return c.pending != nil
}

// Publish hands the pending mesh to up and replaces the current GPU handle.
// Consumer goroutine only. On upload failure the old handle stays.
func (c *Chunk) Publish(up Uploader) error {
	c.geomMu.Lock()
	mesh := c.pending
	c.pending = nil
	disposed := c.disposed
	c.geomMu.Unlock()
	if mesh == nil || disposed {
		return nil
	}

	var h Handle
	if !mesh.Empty() {
		var err error
		if h, err = up.Upload(mesh); err != nil {
			return fmt.Errorf("upload chunk %v: %w", c.pos, err)
		}
	}
	if c.handle != nil {
		up.Release(c.handle)
	}
	c.handle = h
	return nil
}

// HasGeometry reports whether an uploaded mesh is attached.
func (c *Chunk) HasGeometry() bool {
	return c.handle != nil
}

// Draw asks d to draw the uploaded mesh. No-op without one.
func (c *Chunk) Draw(d Drawer) {
	if c.handle == nil {
		return
	}
	d.Draw(c.pos, c.handle)
}

// Dispose releases the GPU handle. Later calls do nothing.
func (c *Chunk) Dispose(up Uploader) {
	c.geomMu.Lock()
	if c.disposed {
		c.geomMu.Unlock()
		return
	}
	c.disposed = true
	c.pending = nil
	c.geomMu.Unlock()

	if c.handle != nil {
		up.Release(c.handle)
		c.handle = nil
	}
}

// WriteTo serializes the bounding box corners followed by the enclosed ids
// (x outer, y middle, z inner), all little-endian.
func (c *Chunk) WriteTo(w io.Writer) (int64, error) {
	snap := c.snapshot()
	buf := make([]byte, 0, 24+4*len(snap.Blocks))
	for _, v := range [6]int{snap.Min.X, snap.Min.Y, snap.Min.Z, snap.Max.X, snap.Max.Y, snap.Max.Z} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(v)))
	}
	for _, id := range snap.Blocks {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadChunkFrom decodes a chunk written by WriteTo.
func ReadChunkFrom(r io.Reader, pos coords.Vec3i) (*Chunk, error) {
	var corners [6]int32
	if err := binary.Read(r, binary.LittleEndian, &corners); err != nil {
		return nil, fmt.Errorf("read bounds: %w", err)
	}
	c := NewChunk(pos)
	lo := coords.Vec3i{X: int(corners[0]), Y: int(corners[1]), Z: int(corners[2])}
	hi := coords.Vec3i{X: int(corners[3]), Y: int(corners[4]), Z: int(corners[5])}
	if lo.X > hi.X || lo.Y > hi.Y || lo.Z > hi.Z {
		return c, nil
	}
	if !inChunk(lo.X, lo.Y, lo.Z) || !inChunk(hi.X, hi.Y, hi.Z) {
		return nil, fmt.Errorf("%w: bounds %v..%v", ErrBadChunkData, lo, hi)
	}

	dx, dy, dz := hi.X-lo.X+1, hi.Y-lo.Y+1, hi.Z-lo.Z+1
	payload := make([]byte, 4*dx*dy*dz)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	i := 0
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				c.blocks[index(x, y, z)] = block.ID(binary.LittleEndian.Uint32(payload[i:]))
				i += 4
			}
		}
	}
	c.min, c.max = lo, hi
	return c, nil
}
