package world

import (
	"sync"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
)

// ChunkStore is the live chunk table. The consumer goroutine is the only
// writer; rebuild workers read through GetBlock.
type ChunkStore struct {
	chunks   map[coords.Vec3i]*Chunk
	mu       sync.RWMutex
	modCount uint64 // increases on any chunk add/remove
}

// NewChunkStore creates an empty table.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[coords.Vec3i]*Chunk)}
}

// Get returns the chunk at c, or nil.
func (cs *ChunkStore) Get(c coords.Vec3i) *Chunk {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.chunks[c]
}

// Has reports whether c is present.
func (cs *ChunkStore) Has(c coords.Vec3i) bool {
	return cs.Get(c) != nil
}

// GetOrCreate returns the chunk at c, creating an empty one if absent.
func (cs *ChunkStore) GetOrCreate(c coords.Vec3i) *Chunk {
	if ch := cs.Get(c); ch != nil {
		return ch
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if existing, ok := cs.chunks[c]; ok {
		return existing
	}
	ch := NewChunk(c)
	cs.chunks[c] = ch
	cs.modCount++
	return ch
}

// Add inserts ch unless its coordinate is taken. It reports whether ch was
// inserted.
func (cs *ChunkStore) Add(ch *Chunk) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.chunks[ch.Pos()]; ok {
		return false
	}
	cs.chunks[ch.Pos()] = ch
	cs.modCount++
	return true
}

// Remove deletes and returns the chunk at c.
func (cs *ChunkStore) Remove(c coords.Vec3i) *Chunk {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ch, ok := cs.chunks[c]
	if !ok {
		return nil
	}
	delete(cs.chunks, c)
	cs.modCount++
	return ch
}

// GetBlock returns the block at an absolute coordinate; unloaded space is
// air.
func (cs *ChunkStore) GetBlock(x, y, z int) block.ID {
	ch := cs.Get(coords.ChunkOf(x, y, z))
	if ch == nil {
		return block.Air
	}
	l := coords.LocalOf(x, y, z)
	return ch.GetBlock(l.X, l.Y, l.Z)
}

// InRegion returns the present chunks of region r, x outer.
func (cs *ChunkStore) InRegion(r coords.Vec3i) []*Chunk {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*Chunk, 0, coords.ChunksPerRegion*coords.ChunksPerRegion*coords.ChunksPerRegion)
	coords.RegionChunks(r, func(c coords.Vec3i) {
		if ch, ok := cs.chunks[c]; ok {
			out = append(out, ch)
		}
	})
	return out
}

// Regions returns the set of regions that own at least one chunk.
func (cs *ChunkStore) Regions() map[coords.Vec3i]struct{} {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[coords.Vec3i]struct{})
	for c := range cs.chunks {
		out[coords.RegionOfChunk(c)] = struct{}{}
	}
	return out
}

// AppendAll appends every chunk to dst.
func (cs *ChunkStore) AppendAll(dst []*Chunk) []*Chunk {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, ch := range cs.chunks {
		dst = append(dst, ch)
	}
	return dst
}

// Len returns the number of chunks.
func (cs *ChunkStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.chunks)
}

// ModCount returns the add/remove counter, letting renderers cache the
// chunk list between changes.
func (cs *ChunkStore) ModCount() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.modCount
}
