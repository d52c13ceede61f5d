package world

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
	"voxelstream/internal/gen"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap/zaptest"
)

// memStore keeps serialized chunks per region in memory.
type memStore struct {
	mu      sync.Mutex
	regions map[coords.Vec3i]map[coords.Vec3i][]byte
	saves   int
	failing bool
}

func newMemStore() *memStore {
	return &memStore{regions: map[coords.Vec3i]map[coords.Vec3i][]byte{}}
}

func (s *memStore) Load(_ context.Context, r coords.Vec3i, dst *Staging) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, ok := s.regions[r]
	if !ok {
		return false, nil
	}
	for pos, data := range saved {
		ch, err := ReadChunkFrom(bytes.NewReader(data), pos)
		if err != nil {
			return false, err
		}
		dst.Put(ch)
	}
	return true, nil
}

func (s *memStore) Save(_ context.Context, r coords.Vec3i, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("disk full")
	}
	saved := map[coords.Vec3i][]byte{}
	for _, ch := range chunks {
		var buf bytes.Buffer
		if _, err := ch.WriteTo(&buf); err != nil {
			return err
		}
		saved[ch.Pos()] = buf.Bytes()
	}
	s.regions[r] = saved
	s.saves++
	return nil
}

func (s *memStore) has(r coords.Vec3i) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.regions[r]
	return ok
}

func (s *memStore) chunkCount(r coords.Vec3i) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regions[r])
}

func (s *memStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func testSettings() Settings {
	s := DefaultSettings()
	s.RenderRadius = 1
	s.HeightRegions = 2
	s.VerticalRadius = 1
	s.MaxWorkers = 3
	s.RegionLoadsPerSecond = 0
	s.SlowTick = 0
	return s
}

func flatGenerator() *gen.Generator {
	gs := gen.DefaultSettings()
	gs.Caves = false
	return gen.NewGenerator(gs)
}

// settle ticks until every wanted region around at is resident and no work
// is outstanding.
func settle(t *testing.T, w *World, at mgl32.Vec3) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for i := 0; i < 10000; i++ {
		w.Update(at)
		if err := w.WaitIdle(ctx); err != nil {
			t.Fatalf("waiting for workers: %v", err)
		}
		if !w.Stats().Idle() {
			continue
		}
		done := true
		for _, r := range w.wantedRegions(observerRegion(at)) {
			if w.RegionState(r) != RegionResident {
				done = false
				break
			}
		}
		if done {
			return
		}
	}
	t.Fatalf("world did not settle: %+v", w.Stats())
}

func TestSetBlockDedupsPendingRebuild(t *testing.T) {
	w := New(Options{Settings: testSettings(), Generator: flatGenerator(), Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())

	w.SetBlock(5, 5, 5, block.Stone)
	w.SetBlock(6, 5, 5, block.Stone)
	w.SetBlock(6, 5, 5, block.Stone)
	if st := w.Stats(); st.QueuedHigh != 1 || st.Chunks != 1 {
		t.Fatalf("queued=%d chunks=%d, want 1 and 1", st.QueuedHigh, st.Chunks)
	}
	if got := w.GetBlock(6, 5, 5); got != block.Stone {
		t.Fatalf("GetBlock = %v, want stone", got)
	}
	if got := w.GetBlock(1000, 5, 5); got != block.Air {
		t.Fatalf("unloaded GetBlock = %v, want air", got)
	}

	// clearing air in an absent chunk creates nothing
	w.SetBlock(-100, 5, 5, block.Air)
	if w.Stats().Chunks != 1 {
		t.Fatalf("air write created a chunk")
	}
}

func TestSetBlockQueuesNeighbourAcrossBoundary(t *testing.T) {
	w := New(Options{Settings: testSettings(), Generator: flatGenerator(), Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())

	w.SetBlockPriority(-1, 0, 0, block.Stone, PriorityLow) // chunk (-1,0,0), local x=15
	w.SetBlockPriority(1, 0, 0, block.Stone, PriorityLow)  // chunk (0,0,0), local x=1
	w.lanes[PriorityLow].pending.DequeueN(10)

	w.SetBlockPriority(0, 0, 0, block.Dirt, PriorityLow) // local x=0 touches chunk (-1,0,0)
	if got := w.lanes[PriorityLow].pending.Len(); got != 2 {
		t.Fatalf("queued %d chunks, want the edited chunk and its -X neighbour", got)
	}
	if w.lanes[PriorityHigh].pending.Len() != 0 {
		t.Fatalf("low priority edit landed in the high lane")
	}
}

func TestInFlightNeverExceedsWorkerCap(t *testing.T) {
	s := testSettings()
	s.HeightRegions = 0 // no streaming, edits only
	s.MaxWorkers = 2
	s.RebuildBatch = 1000
	w := New(Options{Settings: s, Generator: flatGenerator(), Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())

	stop := make(chan struct{})
	violation := make(chan int, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := w.rebuilds.InFlight(); n > s.MaxWorkers {
				select {
				case violation <- n:
				default:
				}
			}
			runtime.Gosched()
		}
	}()

	for i := 0; i < 5000; i++ {
		x, y, z := (i*7)%200-100, (i*13)%64, (i*31)%200-100
		w.SetBlock(x, y, z, block.Stone)
		if i%100 == 0 {
			w.Update(mgl32.Vec3{})
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for !w.Stats().Idle() {
		w.Update(mgl32.Vec3{})
		if err := w.WaitIdle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)

	select {
	case n := <-violation:
		t.Fatalf("observed %d rebuilds in flight, cap %d", n, s.MaxWorkers)
	default:
	}
	st := w.Stats()
	if st.PeakInFlight > s.MaxWorkers {
		t.Fatalf("peak in flight %d, cap %d", st.PeakInFlight, s.MaxWorkers)
	}
	if st.Rebuilt == 0 || st.Uploaded == 0 {
		t.Fatalf("nothing was rebuilt: %+v", st)
	}
}

func TestLoadEditUnloadReload(t *testing.T) {
	store := newMemStore()
	up := newCountingUploader()
	g := flatGenerator()
	w := New(Options{Settings: testSettings(), Generator: g, Store: store, Uploader: up, Logger: zaptest.NewLogger(t)})

	home := mgl32.Vec3{8, 40, 8}
	settle(t, w, home)

	home0 := coords.Vec3i{X: 0, Y: 1, Z: 0}
	if w.RegionState(home0) != RegionResident {
		t.Fatalf("home region state %v", w.RegionState(home0))
	}
	// every chunk of a resident region exists, even empty ones
	coords.RegionChunks(home0, func(c coords.Vec3i) {
		if w.Chunk(c) == nil {
			t.Fatalf("chunk %v missing", c)
		}
	})
	for _, p := range [][2]int{{0, 0}, {3, 3}, {-5, 9}, {20, -7}} {
		h := g.HeightAt(p[0], p[1])
		if h < 0 || h >= 2*coords.RegionSize {
			continue
		}
		if got := w.GetBlock(p[0], h, p[1]); got != block.Grass {
			t.Fatalf("surface at %v = %v, want grass", p, got)
		}
	}
	if up.uploads == 0 {
		t.Fatalf("no meshes uploaded after settling")
	}

	edit := coords.Vec3i{X: 3, Y: 40, Z: 3}
	w.SetBlock(edit.X, edit.Y, edit.Z, block.Dirt)
	removed := coords.Vec3i{X: 5, Y: g.HeightAt(5, 5), Z: 5}
	w.SetBlock(removed.X, removed.Y, removed.Z, block.Air)
	settle(t, w, home)

	far := mgl32.Vec3{100000, 40, 0}
	settle(t, w, far)
	if w.RegionState(home0) != RegionUnloaded {
		t.Fatalf("home region state %v after leaving", w.RegionState(home0))
	}
	if !store.has(home0) {
		t.Fatalf("home region was not saved")
	}
	if w.GetBlock(edit.X, edit.Y, edit.Z) != block.Air {
		t.Fatalf("unloaded edit still readable")
	}

	settle(t, w, home)
	if got := w.GetBlock(edit.X, edit.Y, edit.Z); got != block.Dirt {
		t.Fatalf("edit after reload = %v, want dirt", got)
	}
	if got := w.GetBlock(removed.X, removed.Y, removed.Z); got != block.Air {
		t.Fatalf("removed block after reload = %v, want air", got)
	}

	if err := w.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(w.Chunks()) != 0 {
		t.Fatalf("%d chunks left after Close", len(w.Chunks()))
	}
	if len(up.live) != 0 || up.double != 0 {
		t.Fatalf("live handles=%d double releases=%d after Close", len(up.live), up.double)
	}
}

func TestSaveFailureKeepsRegionResident(t *testing.T) {
	store := newMemStore()
	w := New(Options{Settings: testSettings(), Generator: flatGenerator(), Store: store, Logger: zaptest.NewLogger(t)})

	home := mgl32.Vec3{8, 40, 8}
	settle(t, w, home)
	w.SetBlock(3, 40, 3, block.Stone)

	store.setFailing(true)
	far := mgl32.Vec3{100000, 40, 0}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.Update(far)
		if err := w.WaitIdle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := w.GetBlock(3, 40, 3); got != block.Stone {
		t.Fatalf("edit lost after failed save: %v", got)
	}
	if s := w.RegionState(coords.Vec3i{X: 0, Y: 1, Z: 0}); s != RegionResident && s != RegionPendingUnload {
		t.Fatalf("region state %v after failed save", s)
	}

	if err := w.Close(ctx); err == nil {
		t.Fatalf("Close succeeded with a failing store")
	}
}

func TestEditsToUnloadedRegionSurviveRestart(t *testing.T) {
	store := newMemStore()
	g := flatGenerator()
	ctx := context.Background()
	w := New(Options{Settings: testSettings(), Generator: g, Store: store, Logger: zaptest.NewLogger(t)})
	settle(t, w, mgl32.Vec3{8, 40, 8})

	far := coords.RegionOf(1000, 5, 0)
	w.SetBlock(1000, 5, 0, block.Dirt)
	w.SetBlock(1002, 5, 0, block.Air)
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}
	perRegion := coords.ChunksPerRegion * coords.ChunksPerRegion * coords.ChunksPerRegion
	if n := store.chunkCount(far); n != perRegion {
		t.Fatalf("saved %d chunks of the edited region, want %d", n, perRegion)
	}

	w = New(Options{Settings: testSettings(), Generator: g, Store: store, Logger: zaptest.NewLogger(t)})
	defer w.Close(ctx)
	settle(t, w, mgl32.Vec3{1000, 40, 0})
	if got := w.GetBlock(1000, 5, 0); got != block.Dirt {
		t.Fatalf("edit after restart = %v, want dirt", got)
	}
	if got := w.GetBlock(1002, 5, 0); got != block.Air {
		t.Fatalf("cleared block after restart = %v, want air", got)
	}
	for _, p := range []coords.Vec3i{{X: 1001}, {X: 1001, Y: 5}, {X: 1010, Y: 5, Z: 10}, {X: 1020, Y: 20, Z: 25}} {
		if got, want := w.GetBlock(p.X, p.Y, p.Z), g.BlockAt(p.X, p.Y, p.Z); got != want {
			t.Fatalf("terrain at %v = %v, want %v", p, got, want)
		}
	}
	// the surface never drops below y=0, so the bottom layer is solid
	if w.GetBlock(1001, 0, 0) == block.Air {
		t.Fatalf("terrain next to the edit was saved as air")
	}
}

func TestEditsBeforeLoadLandOnTerrain(t *testing.T) {
	g := flatGenerator()
	w := New(Options{Settings: testSettings(), Generator: g, Store: newMemStore(), Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())

	w.SetBlock(3, 0, 3, block.Dirt)
	settle(t, w, mgl32.Vec3{8, 40, 8})
	if got := w.GetBlock(3, 0, 3); got != block.Dirt {
		t.Fatalf("edit = %v, want dirt", got)
	}
	if got, want := w.GetBlock(4, 0, 3), g.BlockAt(4, 0, 3); got != want || got == block.Air {
		t.Fatalf("terrain beside the edit = %v, want %v", got, want)
	}
	if len(w.edits) != 0 {
		t.Fatalf("%d regions still hold recorded edits", len(w.edits))
	}
}

func TestPublishQueuesResidentNeighbours(t *testing.T) {
	s := testSettings()
	s.HeightRegions = 0
	w := New(Options{Settings: s, Generator: flatGenerator(), Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())

	r := coords.Vec3i{}
	live := NewChunk(coords.Vec3i{})
	w.chunks.Add(live)
	outside := coords.Vec3i{X: coords.ChunksPerRegion}
	w.chunks.Add(NewChunk(outside))

	st := NewStaging(r)
	w.gen.FillRegion(st, r)
	w.regions[r] = newRegionEntry(RegionPendingLoad)
	w.adds.Push(loadResult{region: r, staging: st})
	version := w.ChunkVersion()
	w.drainRegionAdds()
	if w.ChunkVersion() == version {
		t.Fatalf("chunk version unchanged by publication")
	}

	if w.RegionState(r) != RegionResident {
		t.Fatalf("region state %v, want resident", w.RegionState(r))
	}
	if w.Chunk(coords.Vec3i{}) != live {
		t.Fatalf("live chunk replaced without edits")
	}
	coords.RegionChunks(r, func(c coords.Vec3i) {
		if c != (coords.Vec3i{}) && w.Chunk(c) != st.Chunk(c) {
			t.Fatalf("chunk %v not published from staging", c)
		}
	})

	queued := map[coords.Vec3i]bool{}
	for _, c := range w.lanes[PriorityHigh].pending.DequeueN(100) {
		queued[c] = true
	}
	if !queued[outside] {
		t.Fatalf("resident neighbour %v not queued", outside)
	}
	if queued[coords.Vec3i{X: -1}] {
		t.Fatalf("absent neighbour queued")
	}
	coords.RegionChunks(r, func(c coords.Vec3i) {
		if !queued[c] {
			t.Fatalf("published chunk %v not queued", c)
		}
	})
	if n := w.lanes[PriorityLow].pending.Len(); n != 0 {
		t.Fatalf("%d chunks on the low lane", n)
	}
}

func TestRegionLoadsPerTickCap(t *testing.T) {
	s := testSettings()
	s.RenderRadius = 2
	s.MaxRegionLoadsPerTick = 2
	store := newMemStore()
	w := New(Options{Settings: s, Generator: flatGenerator(), Store: store, Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())

	home := mgl32.Vec3{8, 40, 8}
	store.mu.Lock()
	w.Update(home)
	if n := w.Stats().PendingLoads; n != 2 {
		store.mu.Unlock()
		t.Fatalf("%d loads after one tick, want 2", n)
	}
	w.Update(home)
	n := w.Stats().PendingLoads
	store.mu.Unlock()
	if n != 4 {
		t.Fatalf("%d loads after two ticks, want 4", n)
	}
	settle(t, w, home)
}

func TestHighLaneDispatchedFirst(t *testing.T) {
	s := testSettings()
	s.HeightRegions = 0
	s.MaxWorkers = 1
	s.RebuildBatch = 100
	w := New(Options{Settings: s, Generator: flatGenerator(), Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())

	var order []*Chunk
	for i := 0; i < 6; i++ {
		p := PriorityLow
		if i >= 3 {
			p = PriorityHigh
		}
		w.SetBlockPriority(i*coords.ChunkSize+8, 8, 8, block.Stone, p)
		order = append(order, w.Chunk(coords.Vec3i{X: i}))
	}
	for _, ch := range order {
		ch.mu.Lock()
	}
	// high chunks 3..5 first, then low chunks 0..2, one at a time
	want := []int{3, 4, 5, 0, 1, 2}
	ctx := context.Background()
	for step, i := range want {
		w.dispatchRebuilds()
		if n := w.rebuilds.InFlight(); n != 1 {
			t.Fatalf("step %d: %d rebuilds in flight, want 1", step, n)
		}
		if !order[i].RebuildInFlight() {
			t.Fatalf("step %d: chunk %d not dispatched", step, i)
		}
		high, low := w.lanes[PriorityHigh].pending.Len(), w.lanes[PriorityLow].pending.Len()
		if step < 3 && (high != 2-step || low != 3) {
			t.Fatalf("step %d: queued high=%d low=%d", step, high, low)
		}
		order[i].mu.Unlock()
		if err := w.WaitIdle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := w.Stats().Rebuilt; got != 6 {
		t.Fatalf("rebuilt %d chunks, want 6", got)
	}
}

func TestRemovedChunkDisposedAfterRebuild(t *testing.T) {
	s := testSettings()
	s.HeightRegions = 0
	up := newCountingUploader()
	w := New(Options{Settings: s, Generator: flatGenerator(), Uploader: up, Logger: zaptest.NewLogger(t)})
	defer w.Close(context.Background())
	ctx := context.Background()

	w.SetBlock(5, 5, 5, block.Stone)
	w.dispatchRebuilds()
	if err := w.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	w.ForceUploadAll()
	ch := w.Chunk(coords.Vec3i{})
	if !ch.HasGeometry() || up.uploads != 1 {
		t.Fatalf("chunk not uploaded: uploads=%d", up.uploads)
	}

	w.SetBlock(6, 5, 5, block.Stone)
	ch.mu.Lock()
	w.dispatchRebuilds()
	if !ch.RebuildInFlight() {
		ch.mu.Unlock()
		t.Fatal("rebuild not dispatched")
	}
	w.removeRegion(coords.Vec3i{})
	w.disposeRetired()
	if w.Chunk(coords.Vec3i{}) != nil || len(w.retired) != 1 || up.releases != 0 {
		ch.mu.Unlock()
		t.Fatalf("chunk disposed during rebuild: retired=%d releases=%d", len(w.retired), up.releases)
	}

	ch.mu.Unlock()
	if err := w.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	w.disposeRetired()
	w.disposeRetired()
	ch.Dispose(up)
	if len(w.retired) != 0 || up.releases != 1 || up.double != 0 || len(up.live) != 0 {
		t.Fatalf("retired=%d releases=%d double=%d live=%d",
			len(w.retired), up.releases, up.double, len(up.live))
	}
}

func TestCloseRetriesAfterTimeout(t *testing.T) {
	s := testSettings()
	s.HeightRegions = 0
	store := newMemStore()
	w := New(Options{Settings: s, Generator: flatGenerator(), Store: store, Logger: zaptest.NewLogger(t)})

	w.SetBlock(5, 5, 5, block.Stone)
	ch := w.Chunk(coords.Vec3i{})
	ch.mu.Lock()
	w.dispatchRebuilds()

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Close(expired); !errors.Is(err, context.Canceled) {
		ch.mu.Unlock()
		t.Fatalf("Close = %v, want context.Canceled", err)
	}
	ch.mu.Unlock()
	if store.has(coords.Vec3i{}) {
		t.Fatalf("region saved by the abandoned Close")
	}

	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("retried Close = %v", err)
	}
	if !store.has(coords.Vec3i{}) {
		t.Fatalf("edited region not saved by the retried Close")
	}
	if len(w.Chunks()) != 0 {
		t.Fatalf("%d chunks left after Close", len(w.Chunks()))
	}
	if w.pool.Go("late", func() {}) {
		t.Fatalf("pool still accepts work after Close")
	}
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("third Close = %v", err)
	}
}
