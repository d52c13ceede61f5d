package world

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
	"voxelstream/internal/gen"
	"voxelstream/internal/physics"
	"voxelstream/internal/profiling"
	"voxelstream/internal/queue"
	"voxelstream/internal/worker"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Settings are the scheduler limits. All are fixed at construction.
type Settings struct {
	RenderRadius          int // regions, horizontal circle
	HeightRegions         int // regions stacked from y=0
	VerticalRadius        int // regions above and below the observer
	MaxWorkers            int // concurrent rebuilds
	RebuildBatch          int // rebuild dispatches per lane per tick
	UploadBatch           int // uploads per lane per tick
	MaxRegionLoadsPerTick int
	RegionLoadsPerSecond  float64
	SlowTick              time.Duration // log the top phases of ticks slower than this
}

// DefaultSettings returns the stock scheduler limits.
func DefaultSettings() Settings {
	return Settings{
		RenderRadius:          4,
		HeightRegions:         8,
		VerticalRadius:        8,
		MaxWorkers:            4,
		RebuildBatch:          32,
		UploadBatch:           32,
		MaxRegionLoadsPerTick: 4,
		RegionLoadsPerSecond:  32,
		SlowTick:              50 * time.Millisecond,
	}
}

// Options wires a World to its collaborators. Generator is required; a nil
// Store keeps the world in memory, a nil Uploader discards meshes.
type Options struct {
	Settings  Settings
	Generator *gen.Generator
	Store     RegionStore
	Uploader  Uploader
	Logger    *zap.Logger
}

type lane struct {
	pending *queue.Dedup[coords.Vec3i]
	ready   *queue.Dedup[coords.Vec3i]
}

// World owns the live chunk table and schedules region streaming and mesh
// rebuilds. Update, SetBlock and the other mutating methods must be called
// from one goroutine (the consumer); GetBlock may be called from any.
type World struct {
	settings Settings
	gen      *gen.Generator
	store    RegionStore
	uploader Uploader
	log      *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	pool     *worker.Pool
	rebuilds *worker.Gate
	limiter  *rate.Limiter

	chunks    *ChunkStore
	regions   map[coords.Vec3i]*regionEntry
	generated map[coords.Vec3i]struct{}
	edits     map[coords.Vec3i]map[coords.Vec3i]block.ID // per region, made while not resident
	lanes     [numPriorities]lane
	adds      queue.Mailbox[loadResult]
	removals  queue.Mailbox[saveResult]
	retired   []*Chunk

	want       []coords.Vec3i
	wantCenter coords.Vec3i

	uploads     atomic.Uint64
	rebuilt     atomic.Uint64
	interrupted atomic.Uint64
	closed      bool
	closeErr    error
}

// New creates a world. It starts the worker pool but loads nothing until
// the first Update.
func New(opts Options) *World {
	s := opts.Settings
	if s.MaxWorkers < 1 {
		s.MaxWorkers = 1
	}
	if s.MaxRegionLoadsPerTick < 1 {
		s.MaxRegionLoadsPerTick = 1
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	up := opts.Uploader
	if up == nil {
		up = nopUploader{}
	}
	limit := rate.Inf
	if s.RegionLoadsPerSecond > 0 {
		limit = rate.Limit(s.RegionLoadsPerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &World{
		settings:  s,
		gen:       opts.Generator,
		store:     opts.Store,
		uploader:  up,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		pool:      worker.NewPool(s.MaxWorkers+2, log.Named("pool")),
		rebuilds:  worker.NewGate(s.MaxWorkers),
		limiter:   rate.NewLimiter(limit, s.MaxRegionLoadsPerTick),
		chunks:    NewChunkStore(),
		regions:   make(map[coords.Vec3i]*regionEntry),
		generated: make(map[coords.Vec3i]struct{}),
		edits:     make(map[coords.Vec3i]map[coords.Vec3i]block.ID),
	}
	if w.gen == nil {
		w.gen = gen.NewGenerator(gen.DefaultSettings())
	}
	for p := range w.lanes {
		w.lanes[p] = lane{
			pending: queue.NewDedup[coords.Vec3i](),
			ready:   queue.NewDedup[coords.Vec3i](),
		}
	}
	return w
}

// Settings returns the limits the world was built with.
func (w *World) Settings() Settings { return w.settings }

// Generator returns the terrain generator.
func (w *World) Generator() *gen.Generator { return w.gen }

// observerRegion maps a world-space position to its region.
func observerRegion(p mgl32.Vec3) coords.Vec3i {
	return coords.RegionOf(
		int(math.Floor(float64(p.X()))),
		int(math.Floor(float64(p.Y()))),
		int(math.Floor(float64(p.Z()))),
	)
}

// Update runs one scheduler tick around the observer. It never waits for
// workers.
func (w *World) Update(observer mgl32.Vec3) {
	if w.closed {
		return
	}
	defer profiling.Track("world.Update")()
	start := time.Now()

	center := observerRegion(observer)
	w.drainRemovals()
	w.unloadPass(center, false)
	w.loadPass(center)
	w.dispatchRebuilds()
	w.uploadReady(w.settings.UploadBatch)
	w.drainRegionAdds()
	w.disposeRetired()

	if d := time.Since(start); w.settings.SlowTick > 0 && d > w.settings.SlowTick {
		w.log.Debug("slow tick", zap.Duration("took", d), zap.String("top", profiling.TopN(3)))
	}
}

// queueRebuild enqueues c on lane p if the chunk exists.
func (w *World) queueRebuild(c coords.Vec3i, p Priority) {
	if !w.chunks.Has(c) {
		return
	}
	w.lanes[p].pending.EnqueueIfAbsent(c)
}

// dispatchRebuilds submits up to RebuildBatch rebuilds per lane, high lane
// first, while the in-flight count is below MaxWorkers.
func (w *World) dispatchRebuilds() {
	defer profiling.Track("world.dispatchRebuilds")()
	for p := PriorityHigh; p < numPriorities; p++ {
		l := w.lanes[p]
		var busy []coords.Vec3i
		for i, n := 0, w.settings.RebuildBatch; i < n; i++ {
			if w.rebuilds.InFlight() >= w.rebuilds.Limit() {
				break
			}
			pos, ok := l.pending.Dequeue()
			if !ok {
				break
			}
			ch := w.chunks.Get(pos)
			if ch == nil {
				continue
			}
			if e := w.regions[coords.RegionOfChunk(pos)]; e != nil && e.get() == RegionPendingUnload {
				continue
			}
			p := p
			ctx, ok := ch.tryBeginRebuild(w.ctx)
			if !ok {
				busy = append(busy, pos)
				continue
			}
			if !w.pool.TrySubmit(w.rebuilds, "rebuild chunk", func() { w.rebuild(ctx, ch, p) }) {
				ch.endRebuild()
				busy = append(busy, pos)
				break
			}
		}
		for _, pos := range busy {
			l.pending.EnqueueIfAbsent(pos)
		}
	}
}

// rebuild runs on a worker.
func (w *World) rebuild(ctx context.Context, ch *Chunk, p Priority) {
	defer ch.endRebuild()
	err := ch.Rebuild(ctx, w.chunks)
	switch {
	case err == nil:
		w.rebuilt.Add(1)
		w.lanes[p].ready.EnqueueIfAbsent(ch.Pos())
	case errors.Is(err, ErrRebuildInterrupted):
		w.interrupted.Add(1)
		w.lanes[p].pending.EnqueueIfAbsent(ch.Pos())
	default:
		w.log.Warn("chunk rebuild failed", zap.Stringer("chunk", ch.Pos()), zap.Error(err))
	}
}

// uploadReady publishes up to limit meshes per lane on the consumer.
func (w *World) uploadReady(limit int) int {
	defer profiling.Track("world.uploadReady")()
	n := 0
	for p := range w.lanes {
		for _, pos := range w.lanes[p].ready.DequeueN(limit) {
			ch := w.chunks.Get(pos)
			if ch == nil {
				continue
			}
			if err := ch.Publish(w.uploader); err != nil {
				w.log.Warn("chunk upload failed", zap.Stringer("chunk", pos), zap.Error(err))
				continue
			}
			n++
		}
	}
	w.uploads.Add(uint64(n))
	return n
}

// ForceUploadAll publishes every ready mesh now.
func (w *World) ForceUploadAll() int {
	return w.uploadReady(math.MaxInt)
}

// SetBlock writes a block with high rebuild priority.
func (w *World) SetBlock(x, y, z int, id block.ID) {
	w.SetBlockPriority(x, y, z, id, PriorityHigh)
}

// SetBlockPriority writes a block, creating its chunk if needed, and queues
// the chunk plus any neighbour across a touched boundary on lane p. Edits to
// a region that is not resident are also kept until its terrain is loaded.
func (w *World) SetBlockPriority(x, y, z int, id block.ID, p Priority) {
	c := coords.ChunkOf(x, y, z)
	w.recordEdit(x, y, z, id)
	if id == block.Air && !w.chunks.Has(c) {
		return
	}
	l := coords.LocalOf(x, y, z)
	if !w.chunks.GetOrCreate(c).SetBlock(l.X, l.Y, l.Z, id) {
		return
	}
	w.queueRebuild(c, p)

	const last = coords.ChunkSize - 1
	if l.X == 0 {
		w.queueRebuild(c.Add(coords.Vec3i{X: -1}), p)
	} else if l.X == last {
		w.queueRebuild(c.Add(coords.Vec3i{X: 1}), p)
	}
	if l.Y == 0 {
		w.queueRebuild(c.Add(coords.Vec3i{Y: -1}), p)
	} else if l.Y == last {
		w.queueRebuild(c.Add(coords.Vec3i{Y: 1}), p)
	}
	if l.Z == 0 {
		w.queueRebuild(c.Add(coords.Vec3i{Z: -1}), p)
	} else if l.Z == last {
		w.queueRebuild(c.Add(coords.Vec3i{Z: 1}), p)
	}
}

// recordEdit remembers an edit to a region that is not resident so it can be
// replayed onto the region's terrain once that is loaded or generated.
func (w *World) recordEdit(x, y, z int, id block.ID) {
	r := coords.RegionOf(x, y, z)
	if e := w.regions[r]; e != nil && e.get() == RegionResident {
		return
	}
	m := w.edits[r]
	if m == nil {
		m = make(map[coords.Vec3i]block.ID)
		w.edits[r] = m
	}
	m[coords.Vec3i{X: x, Y: y, Z: z}] = id
}

// GetBlock returns the block at an absolute coordinate. Unloaded space reads
// as air.
func (w *World) GetBlock(x, y, z int) block.ID {
	return w.chunks.GetBlock(x, y, z)
}

// BlockRaytrace returns the closest block face hit along the ray.
func (w *World) BlockRaytrace(origin, dir mgl32.Vec3, maxRange float32) (physics.Hit, bool) {
	return physics.Raytrace(w.chunks, origin, dir, maxRange)
}

// Chunks returns the live chunks ordered by coordinate.
func (w *World) Chunks() []*Chunk {
	out := w.chunks.AppendAll(nil)
	sort.Slice(out, func(i, j int) bool { return compareVec(out[i].Pos(), out[j].Pos()) < 0 })
	return out
}

// ChunkVersion changes whenever a chunk is added or removed, so callers can
// cache the result of Chunks between changes.
func (w *World) ChunkVersion() uint64 {
	return w.chunks.ModCount()
}

// Chunk returns the live chunk at c, or nil.
func (w *World) Chunk(c coords.Vec3i) *Chunk {
	return w.chunks.Get(c)
}

// RegionState reports the residency state of r.
func (w *World) RegionState(r coords.Vec3i) RegionState {
	if e := w.regions[r]; e != nil {
		return e.get()
	}
	return RegionUnloaded
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Chunks          int
	ResidentRegions int
	PendingLoads    int
	PendingUnloads  int
	QueuedHigh      int
	QueuedLow       int
	ReadyHigh       int
	ReadyLow        int
	InFlight        int
	PeakInFlight    int
	Retired         int
	Rebuilt         uint64
	Interrupted     uint64
	Uploaded        uint64
}

// Idle reports whether nothing is queued, loading, saving or in flight.
func (s Stats) Idle() bool {
	return s.PendingLoads == 0 && s.PendingUnloads == 0 &&
		s.QueuedHigh == 0 && s.QueuedLow == 0 &&
		s.ReadyHigh == 0 && s.ReadyLow == 0 &&
		s.InFlight == 0 && s.Retired == 0
}

// Stats returns the current counters.
func (w *World) Stats() Stats {
	st := Stats{
		Chunks:       w.chunks.Len(),
		QueuedHigh:   w.lanes[PriorityHigh].pending.Len(),
		QueuedLow:    w.lanes[PriorityLow].pending.Len(),
		ReadyHigh:    w.lanes[PriorityHigh].ready.Len(),
		ReadyLow:     w.lanes[PriorityLow].ready.Len(),
		InFlight:     w.rebuilds.InFlight(),
		PeakInFlight: w.rebuilds.Peak(),
		Retired:      len(w.retired),
		Rebuilt:      w.rebuilt.Load(),
		Interrupted:  w.interrupted.Load(),
		Uploaded:     w.uploads.Load(),
	}
	for _, e := range w.regions {
		switch e.get() {
		case RegionResident:
			st.ResidentRegions++
		case RegionPendingUnload:
			st.PendingUnloads++
		default:
			st.PendingLoads++
		}
	}
	return st
}

// WaitIdle blocks until all submitted worker tasks have returned. Results
// are picked up by the next Update.
func (w *World) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close saves and unloads every region, disposes all chunks and stops the
// workers. It returns the save errors, if any. If ctx expires while workers
// are still running Close returns ctx's error and leaves the world open, so
// it can be called again; once it has completed, later calls return the
// same result.
func (w *World) Close(ctx context.Context) error {
	if w.closed {
		return w.closeErr
	}
	if err := w.WaitIdle(ctx); err != nil {
		return err
	}
	w.drainRegionAdds()
	w.drainRemovals()
	w.unloadPass(coords.Vec3i{}, true)
	if err := w.WaitIdle(ctx); err != nil {
		return err
	}
	errs := w.drainRemovals()
	w.disposeRetired()
	for _, ch := range w.chunks.AppendAll(nil) {
		ch.Dispose(w.uploader)
	}
	w.pool.Stop()
	w.cancel()
	w.closed = true
	w.closeErr = errors.Join(errs...)
	w.log.Info("world closed",
		zap.Uint64("rebuilt", w.rebuilt.Load()),
		zap.Uint64("uploaded", w.uploads.Load()),
		zap.Int("save_errors", len(errs)))
	return w.closeErr
}
