package world

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
	"voxelstream/internal/profiling"

	"go.uber.org/zap"
)

// RegionState is the residency state of a region.
type RegionState int32

const (
	RegionUnloaded RegionState = iota
	RegionPendingLoad
	RegionLoadedFromDisk
	RegionGenerating
	RegionResident
	RegionPendingUnload
)

func (s RegionState) String() string {
	switch s {
	case RegionUnloaded:
		return "unloaded"
	case RegionPendingLoad:
		return "pending-load"
	case RegionLoadedFromDisk:
		return "loaded-from-disk"
	case RegionGenerating:
		return "generating"
	case RegionResident:
		return "resident"
	case RegionPendingUnload:
		return "pending-unload"
	default:
		return "unknown"
	}
}

// regionEntry is owned by the consumer; a load worker may advance state
// from PendingLoad to LoadedFromDisk or Generating.
type regionEntry struct {
	state   atomic.Int32
	partial bool // only edits were live; saved from a completed staging
}

func newRegionEntry(s RegionState) *regionEntry {
	e := &regionEntry{}
	e.set(s)
	return e
}

func (e *regionEntry) get() RegionState  { return RegionState(e.state.Load()) }
func (e *regionEntry) set(s RegionState) { e.state.Store(int32(s)) }

type loadResult struct {
	region   coords.Vec3i
	staging  *Staging
	fromDisk bool
	err      error
}

type saveResult struct {
	region coords.Vec3i
	err    error
}

// wantedRegions returns the regions that should be resident around center,
// nearest first. The list is cached until the observer changes region.
func (w *World) wantedRegions(center coords.Vec3i) []coords.Vec3i {
	if w.want != nil && w.wantCenter == center {
		return w.want
	}
	s := w.settings
	var out []coords.Vec3i
	for dy := -s.VerticalRadius; dy <= s.VerticalRadius; dy++ {
		y := center.Y + dy
		if y < 0 || y >= s.HeightRegions {
			continue
		}
		for dx := -s.RenderRadius; dx <= s.RenderRadius; dx++ {
			for dz := -s.RenderRadius; dz <= s.RenderRadius; dz++ {
				if dx*dx+dz*dz > s.RenderRadius*s.RenderRadius {
					continue
				}
				out = append(out, coords.Vec3i{X: center.X + dx, Y: y, Z: center.Z + dz})
			}
		}
	}
	dist := func(r coords.Vec3i) int {
		d := r.Sub(center)
		return d.X*d.X + d.Y*d.Y + d.Z*d.Z
	}
	slices.SortStableFunc(out, func(a, b coords.Vec3i) int {
		if da, db := dist(a), dist(b); da != db {
			return da - db
		}
		return compareVec(a, b)
	})
	w.want, w.wantCenter = out, center
	return out
}

func (w *World) inRange(r, center coords.Vec3i) bool {
	s := w.settings
	if r.Y < 0 || r.Y >= s.HeightRegions {
		return false
	}
	if dy := r.Y - center.Y; dy < -s.VerticalRadius || dy > s.VerticalRadius {
		return false
	}
	dx, dz := r.X-center.X, r.Z-center.Z
	return dx*dx+dz*dz <= s.RenderRadius*s.RenderRadius
}

// loadPass dispatches loads for missing regions around center, bounded by
// the per-tick cap and the rate limiter.
func (w *World) loadPass(center coords.Vec3i) {
	defer profiling.Track("world.loadPass")()
	budget := w.settings.MaxRegionLoadsPerTick
	for _, r := range w.wantedRegions(center) {
		if budget <= 0 {
			return
		}
		if _, tracked := w.regions[r]; tracked {
			continue
		}
		if _, done := w.generated[r]; done {
			continue
		}
		if !w.limiter.Allow() {
			return
		}
		r := r
		e := newRegionEntry(RegionPendingLoad)
		w.regions[r] = e
		if !w.pool.Go("load region", func() { w.loadRegion(r, e) }) {
			delete(w.regions, r)
			return
		}
		budget--
	}
}

// loadRegion runs on a worker: disk first, generation on a miss or a
// corrupt file.
func (w *World) loadRegion(r coords.Vec3i, e *regionEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			w.adds.Push(loadResult{region: r, err: fmt.Errorf("panic: %v", rec)})
			panic(rec)
		}
	}()
	st, found := w.stageRegion(r, e)
	w.adds.Push(loadResult{region: r, staging: st, fromDisk: found})
}

// stageRegion reads r from the store into a fresh staging cache, or
// generates it when nothing usable was saved. e, if set, tracks progress.
func (w *World) stageRegion(r coords.Vec3i, e *regionEntry) (*Staging, bool) {
	st := NewStaging(r)
	found := false
	if w.store != nil {
		var err error
		found, err = w.store.Load(w.ctx, r, st)
		if err != nil {
			w.log.Warn("region load failed, regenerating",
				zap.Stringer("region", r), zap.Error(err))
			st = NewStaging(r)
			found = false
		}
	}
	if found {
		if e != nil {
			e.set(RegionLoadedFromDisk)
		}
		return st, true
	}
	if e != nil {
		e.set(RegionGenerating)
	}
	w.gen.FillRegion(st, r)
	return st, false
}

// applyEdits replays block edits made while r was not resident.
func applyEdits(st *Staging, edits map[coords.Vec3i]block.ID) {
	for p, id := range edits {
		st.SetBlock(p.X, p.Y, p.Z, id)
	}
}

// drainRegionAdds publishes finished loads into the live table.
func (w *World) drainRegionAdds() {
	defer profiling.Track("world.drainRegionAdds")()
	for _, res := range w.adds.Drain() {
		e := w.regions[res.region]
		if res.err != nil || res.staging == nil {
			w.log.Error("region load aborted", zap.Stringer("region", res.region), zap.Error(res.err))
			delete(w.regions, res.region)
			continue
		}
		if e == nil {
			continue
		}

		// edits made while the region was loading land on top of the
		// staged terrain and replace the live chunks that held them
		edits := w.edits[res.region]
		delete(w.edits, res.region)
		applyEdits(res.staging, edits)

		staged := res.staging.Chunks()
		added := 0
		for _, ch := range staged {
			if old := w.chunks.Get(ch.Pos()); old != nil {
				if edits == nil {
					continue
				}
				w.chunks.Remove(old.Pos())
				w.retire(old)
			}
			w.chunks.Add(ch)
			added++
		}
		for _, ch := range staged {
			pos := ch.Pos()
			w.queueRebuild(pos, PriorityHigh)
			for _, f := range coords.Faces {
				w.queueRebuild(pos.Add(f.Normal()), PriorityHigh)
			}
		}
		e.set(RegionResident)
		w.generated[res.region] = struct{}{}
		w.log.Debug("region resident",
			zap.Stringer("region", res.region),
			zap.Bool("from_disk", res.fromDisk),
			zap.Int("chunks", added),
			zap.Int("skipped", len(staged)-added))
	}
}

// unloadPass starts saving resident regions outside the render range, or
// every region when all is set.
func (w *World) unloadPass(center coords.Vec3i, all bool) {
	defer profiling.Track("world.unloadPass")()
	for r, e := range w.regions {
		if e.get() != RegionResident {
			continue
		}
		if !all && w.inRange(r, center) {
			continue
		}
		w.beginUnload(r, e)
	}
	if !all {
		return
	}
	// regions edited without ever becoming resident are completed from
	// disk or the generator before saving, never saved partially
	for r, edits := range w.edits {
		if _, tracked := w.regions[r]; tracked {
			continue
		}
		e := newRegionEntry(RegionPendingUnload)
		e.partial = true
		w.regions[r] = e
		if w.store == nil {
			w.removals.Push(saveResult{region: r})
			continue
		}
		r := r
		replay := maps.Clone(edits)
		if !w.pool.Go("save edited region", func() { w.saveEditedRegion(r, replay) }) {
			delete(w.regions, r)
		}
	}
}

func (w *World) beginUnload(r coords.Vec3i, e *regionEntry) {
	delete(w.generated, r)
	e.set(RegionPendingUnload)
	chunks := w.chunks.InRegion(r)
	for _, ch := range chunks {
		ch.Interrupt()
	}
	if w.store == nil {
		w.removals.Push(saveResult{region: r})
		return
	}
	if !w.pool.Go("save region", func() { w.saveRegion(r, chunks) }) {
		e.set(RegionResident)
		w.generated[r] = struct{}{}
	}
}

func (w *World) saveRegion(r coords.Vec3i, chunks []*Chunk) {
	defer func() {
		if rec := recover(); rec != nil {
			w.removals.Push(saveResult{region: r, err: fmt.Errorf("panic: %v", rec)})
			panic(rec)
		}
	}()
	err := w.store.Save(w.ctx, r, chunks)
	w.removals.Push(saveResult{region: r, err: err})
}

func (w *World) saveEditedRegion(r coords.Vec3i, edits map[coords.Vec3i]block.ID) {
	defer func() {
		if rec := recover(); rec != nil {
			w.removals.Push(saveResult{region: r, err: fmt.Errorf("panic: %v", rec)})
			panic(rec)
		}
	}()
	st, _ := w.stageRegion(r, nil)
	applyEdits(st, edits)
	err := w.store.Save(w.ctx, r, st.Chunks())
	w.removals.Push(saveResult{region: r, err: err})
}

// drainRemovals removes saved regions and returns regions whose save failed
// to Resident. It returns the save errors.
func (w *World) drainRemovals() []error {
	defer profiling.Track("world.drainRemovals")()
	var errs []error
	for _, res := range w.removals.Drain() {
		if res.err != nil {
			w.log.Warn("region save failed, keeping it resident",
				zap.Stringer("region", res.region), zap.Error(res.err))
			errs = append(errs, fmt.Errorf("save region %v: %w", res.region, res.err))
			if e := w.regions[res.region]; e != nil {
				if e.partial {
					// never resident; the next full unload completes it again
					delete(w.regions, res.region)
					continue
				}
				e.set(RegionResident)
				w.generated[res.region] = struct{}{}
				// the live chunks hold any edits made during the save
				delete(w.edits, res.region)
			}
			for _, ch := range w.chunks.InRegion(res.region) {
				w.queueRebuild(ch.Pos(), PriorityLow)
			}
			continue
		}
		w.removeRegion(res.region)
	}
	return errs
}

// removeRegion drops the region's chunks from the table and the queues.
// Chunks with a rebuild in flight are parked until it returns.
func (w *World) removeRegion(r coords.Vec3i) {
	for _, ch := range w.chunks.InRegion(r) {
		w.chunks.Remove(ch.Pos())
		w.retire(ch)
	}
	inRegion := func(c coords.Vec3i) bool { return coords.RegionOfChunk(c) == r }
	for p := range w.lanes {
		w.lanes[p].pending.RemoveFunc(inRegion)
		w.lanes[p].ready.RemoveFunc(inRegion)
	}
	// edits made while a full region was saving are replayed on reload
	if e := w.regions[r]; e == nil || e.partial {
		delete(w.edits, r)
	}
	delete(w.regions, r)
	w.log.Debug("region unloaded", zap.Stringer("region", r))
}

// retire disposes a chunk that left the table, or parks it while its
// rebuild is still running.
func (w *World) retire(ch *Chunk) {
	if ch.RebuildInFlight() {
		ch.Interrupt()
		w.retired = append(w.retired, ch)
		return
	}
	ch.Dispose(w.uploader)
}

// disposeRetired releases parked chunks whose rebuild has returned.
func (w *World) disposeRetired() {
	kept := w.retired[:0]
	for _, ch := range w.retired {
		if ch.RebuildInFlight() {
			kept = append(kept, ch)
			continue
		}
		ch.Dispose(w.uploader)
	}
	clear(w.retired[len(kept):])
	w.retired = kept
}
