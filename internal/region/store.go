package region

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"voxelstream/internal/coords"
	"voxelstream/internal/world"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// zstdMagic starts every zstd frame. A raw file starts with its record
// count, at most MaxRecords, so the two never collide.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Store saves regions as files in one directory. It implements
// world.RegionStore.
type Store struct {
	dir      string
	compress bool
	index    *Index
	log      *zap.Logger
}

var _ world.RegionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithCompression wraps new files in a zstd frame. Files of either kind are
// always readable.
func WithCompression(on bool) Option {
	return func(s *Store) { s.compress = on }
}

// WithIndex records every save in idx.
func WithIndex(idx *Index) Option {
	return func(s *Store) { s.index = idx }
}

// WithLogger sets the store logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates dir if needed and returns a store writing into it.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("region: empty save dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{dir: dir, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the save directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of region r.
func (s *Store) Path(r coords.Vec3i) string {
	return filepath.Join(s.dir, FileName(r))
}

// Save writes the chunks of region r to a temporary file and renames it over
// the previous save.
func (s *Store) Save(ctx context.Context, r coords.Vec3i, chunks []*world.Chunk) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	f, err := os.CreateTemp(s.dir, FileName(r)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	var n int
	if s.compress {
		n, err = s.writeCompressed(f, r, chunks)
	} else {
		n, err = EncodeSeekable(f, r, chunks)
	}
	if err != nil {
		return fmt.Errorf("encode region %v: %w", r, err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(f.Name(), s.Path(r)); err != nil {
		return err
	}

	s.log.Debug("region saved",
		zap.Stringer("region", r),
		zap.Int("chunks", n),
		zap.Int64("bytes", size),
		zap.Bool("compressed", s.compress),
		zap.Duration("took", time.Since(start)))
	if s.index != nil {
		entry := Entry{Region: r, Chunks: n, Bytes: size, Compressed: s.compress, SavedAt: time.Now()}
		if ierr := s.index.Record(ctx, entry); ierr != nil {
			s.log.Warn("region index update failed", zap.Stringer("region", r), zap.Error(ierr))
		}
	}
	return nil
}

// writeCompressed builds the records first so the count is known before the
// frame is written.
func (s *Store) writeCompressed(w io.Writer, r coords.Vec3i, chunks []*world.Chunk) (int, error) {
	var body bytes.Buffer
	n, err := Encode(&body, r, chunks)
	if err != nil {
		return 0, err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, err
	}
	if _, err := body.WriteTo(enc); err != nil {
		enc.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return n, nil
}

// Load decodes the saved region r into dst. It returns false without error
// when nothing was saved.
func (s *Store) Load(ctx context.Context, r coords.Vec3i, dst *world.Staging) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f, err := os.Open(s.Path(r))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	var rd io.Reader = br
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return false, err
		}
		defer dec.Close()
		rd = dec
	}
	if _, err := Decode(rd, r, dst); err != nil {
		return false, fmt.Errorf("load region %v: %w", r, err)
	}
	return true, nil
}

// Remove deletes the saved file of region r and its index row.
func (s *Store) Remove(ctx context.Context, r coords.Vec3i) error {
	if err := os.Remove(s.Path(r)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if s.index != nil {
		return s.index.Forget(ctx, r)
	}
	return nil
}

// Regions lists the regions that have a file in the save directory, ordered
// by coordinate.
func (s *Store) Regions() ([]coords.Vec3i, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []coords.Vec3i
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if r, ok := ParseFileName(e.Name()); ok {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, compareRegion)
	return out, nil
}

func compareRegion(a, b coords.Vec3i) int {
	switch {
	case a.X != b.X:
		return a.X - b.X
	case a.Y != b.Y:
		return a.Y - b.Y
	default:
		return a.Z - b.Z
	}
}
