package region

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
	"voxelstream/internal/gen"
	"voxelstream/internal/world"

	"go.uber.org/zap/zaptest"
)

// generated fills region r with default terrain, caves included.
func generated(r coords.Vec3i) *world.Staging {
	st := world.NewStaging(r)
	gen.NewGenerator(gen.DefaultSettings()).FillRegion(st, r)
	return st
}

func assertSameBlocks(t *testing.T, r coords.Vec3i, want, got *world.Staging) {
	t.Helper()
	if want.Len() != got.Len() {
		t.Fatalf("chunk count %d, want %d", got.Len(), want.Len())
	}
	base := r.Mul(coords.RegionSize)
	for x := 0; x < coords.RegionSize; x++ {
		for y := 0; y < coords.RegionSize; y++ {
			for z := 0; z < coords.RegionSize; z++ {
				wx, wy, wz := base.X+x, base.Y+y, base.Z+z
				if a, b := want.GetBlock(wx, wy, wz), got.GetBlock(wx, wy, wz); a != b {
					t.Fatalf("block (%d,%d,%d) = %v, want %v", wx, wy, wz, b, a)
				}
			}
		}
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	for _, r := range []coords.Vec3i{{}, {X: -3, Y: 7, Z: 12}, {X: 100000, Y: -1, Z: -99}} {
		name := FileName(r)
		got, ok := ParseFileName(name)
		if !ok || got != r {
			t.Errorf("ParseFileName(%q) = %v %v, want %v", name, got, ok, r)
		}
	}
	for _, name := range []string{"level.toml", "r.1.2.region", "r.1.2.3.region.55.tmp", "r.a.b.c.region"} {
		if _, ok := ParseFileName(name); ok {
			t.Errorf("ParseFileName(%q) accepted", name)
		}
	}
}

func TestSaveReloadRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		dir := t.TempDir()
		s, err := NewStore(dir, WithCompression(compress), WithLogger(zaptest.NewLogger(t)))
		if err != nil {
			t.Fatal(err)
		}
		r := coords.Vec3i{X: -1, Y: 0, Z: 2}
		src := generated(r)
		if err := s.Save(context.Background(), r, src.Chunks()); err != nil {
			t.Fatalf("compress=%v: Save: %v", compress, err)
		}

		// a fresh store simulates a new process
		s2, err := NewStore(dir)
		if err != nil {
			t.Fatal(err)
		}
		dst := world.NewStaging(r)
		found, err := s2.Load(context.Background(), r, dst)
		if err != nil || !found {
			t.Fatalf("compress=%v: Load = %v, %v", compress, found, err)
		}
		assertSameBlocks(t, r, src, dst)
	}
}

func TestLoadMissingRegion(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	found, err := s.Load(context.Background(), coords.Vec3i{X: 4}, world.NewStaging(coords.Vec3i{X: 4}))
	if err != nil || found {
		t.Fatalf("Load = %v, %v; want false, nil", found, err)
	}
}

func TestEmptyChunkRecord(t *testing.T) {
	r := coords.Vec3i{}
	ch := world.NewChunk(coords.Vec3i{X: 1, Y: 1, Z: 0})
	var buf bytes.Buffer
	n, err := Encode(&buf, r, []*world.Chunk{ch})
	if err != nil || n != 1 {
		t.Fatalf("Encode = %d, %v", n, err)
	}
	// count + coordinates + two corners, no payload
	if buf.Len() != 4+12+24 {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), 4+12+24)
	}
	dst := world.NewStaging(r)
	if _, err := Decode(&buf, r, dst); err != nil {
		t.Fatal(err)
	}
	got := dst.Chunk(ch.Pos())
	if got == nil || !got.IsEmpty() {
		t.Fatalf("decoded chunk %v, want empty", got)
	}
}

func TestSaveSkipsForeignChunks(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := coords.Vec3i{}
	inside := world.NewChunk(coords.Vec3i{X: 1})
	inside.SetBlock(0, 0, 0, block.Stone)
	outside := world.NewChunk(coords.Vec3i{X: 2})
	outside.SetBlock(0, 0, 0, block.Stone)
	if err := s.Save(context.Background(), r, []*world.Chunk{inside, nil, outside}); err != nil {
		t.Fatal(err)
	}
	dst := world.NewStaging(r)
	if _, err := s.Load(context.Background(), r, dst); err != nil {
		t.Fatal(err)
	}
	if dst.Len() != 1 || dst.GetBlock(coords.ChunkSize, 0, 0) != block.Stone {
		t.Fatalf("reloaded %d chunks", dst.Len())
	}
}

func TestCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	r := coords.Vec3i{X: 3, Y: 1, Z: -2}
	if err := s.Save(context.Background(), r, generated(r).Chunks()); err != nil {
		t.Fatal(err)
	}
	good, err := os.ReadFile(s.Path(r))
	if err != nil {
		t.Fatal(err)
	}

	foreign := append([]byte(nil), good...)
	foreign[4] = 0x7f // first record's chunk X

	tooMany := append([]byte(nil), good...)
	tooMany[0] = MaxRecords + 1

	cases := map[string][]byte{
		"empty":          {},
		"short count":    good[:2],
		"truncated":      good[:len(good)/2],
		"count too high": tooMany,
		"foreign chunk":  foreign,
	}
	for name, data := range cases {
		if err := os.WriteFile(s.Path(r), data, 0o644); err != nil {
			t.Fatal(err)
		}
		found, err := s.Load(context.Background(), r, world.NewStaging(r))
		if !errors.Is(err, ErrCorruptRegion) {
			t.Errorf("%s: err = %v, want ErrCorruptRegion", name, err)
		}
		if found {
			t.Errorf("%s: reported found", name)
		}
	}
}

func TestRawAndCompressedCoexist(t *testing.T) {
	dir := t.TempDir()
	raw, _ := NewStore(dir)
	packed, _ := NewStore(dir, WithCompression(true))

	a, b := coords.Vec3i{X: 0}, coords.Vec3i{X: 1}
	srcA, srcB := generated(a), generated(b)
	if err := raw.Save(context.Background(), a, srcA.Chunks()); err != nil {
		t.Fatal(err)
	}
	if err := packed.Save(context.Background(), b, srcB.Chunks()); err != nil {
		t.Fatal(err)
	}

	head, err := os.ReadFile(packed.Path(b))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(head, zstdMagic) {
		t.Fatalf("compressed file lacks zstd magic")
	}

	for _, tc := range []struct {
		r   coords.Vec3i
		src *world.Staging
	}{{a, srcA}, {b, srcB}} {
		dst := world.NewStaging(tc.r)
		if found, err := raw.Load(context.Background(), tc.r, dst); err != nil || !found {
			t.Fatalf("region %v: Load = %v, %v", tc.r, found, err)
		}
		assertSameBlocks(t, tc.r, tc.src, dst)
	}

	regions, err := raw.Regions()
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 2 || regions[0] != a || regions[1] != b {
		t.Fatalf("Regions = %v", regions)
	}
	// no temp files left behind
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left: %v", matches)
	}
}

func TestSaveHonoursCancelledContext(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, coords.Vec3i{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(s.Path(coords.Vec3i{})); !os.IsNotExist(err) {
		t.Fatalf("file written despite cancellation")
	}
}
