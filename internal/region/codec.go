// Package region persists regions of chunks to one binary file each.
//
// File layout, little-endian:
//
//	uint32 count
//	count x { int32 cx, cy, cz; int32 minX, minY, minZ; int32 maxX, maxY, maxZ;
//	          uint32 ids[(maxX-minX+1)*(maxY-minY+1)*(maxZ-minZ+1)] }
//
// ids are ordered x outer, y middle, z inner. A record with min > max is an
// empty chunk and has no ids. The whole file may be wrapped in a zstd frame.
package region

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"voxelstream/internal/coords"
	"voxelstream/internal/world"
)

// ErrCorruptRegion is returned when a region file cannot be decoded.
var ErrCorruptRegion = errors.New("region: corrupt region file")

// MaxRecords is the number of chunks in a region.
const MaxRecords = coords.ChunksPerRegion * coords.ChunksPerRegion * coords.ChunksPerRegion

// FileName returns the file name of region r.
func FileName(r coords.Vec3i) string {
	return fmt.Sprintf("r.%d.%d.%d.region", r.X, r.Y, r.Z)
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (coords.Vec3i, bool) {
	var r coords.Vec3i
	var tail string
	n, _ := fmt.Sscanf(name, "r.%d.%d.%d.%s", &r.X, &r.Y, &r.Z, &tail)
	if n != 4 || tail != "region" || FileName(r) != name {
		return coords.Vec3i{}, false
	}
	return r, true
}

// inRegion filters chunks to those owned by r, keeping order.
func inRegion(r coords.Vec3i, chunks []*world.Chunk) []*world.Chunk {
	out := make([]*world.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch != nil && coords.RegionOfChunk(ch.Pos()) == r {
			out = append(out, ch)
		}
	}
	return out
}

// writeRecords writes one record per chunk and returns the byte count.
func writeRecords(w io.Writer, chunks []*world.Chunk) (int64, error) {
	var total int64
	var head [12]byte
	for _, ch := range chunks {
		p := ch.Pos()
		binary.LittleEndian.PutUint32(head[0:], uint32(int32(p.X)))
		binary.LittleEndian.PutUint32(head[4:], uint32(int32(p.Y)))
		binary.LittleEndian.PutUint32(head[8:], uint32(int32(p.Z)))
		n, err := w.Write(head[:])
		total += int64(n)
		if err != nil {
			return total, err
		}
		m, err := ch.WriteTo(w)
		total += m
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Encode writes a complete region (count prefix and records) to w. Chunks
// outside r are skipped. It returns the number of records written.
func Encode(w io.Writer, r coords.Vec3i, chunks []*world.Chunk) (int, error) {
	chunks = inRegion(r, chunks)
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(chunks)))
	if _, err := w.Write(count[:]); err != nil {
		return 0, err
	}
	if _, err := writeRecords(w, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// EncodeSeekable writes the region to a seekable writer, reserving the count
// prefix and filling it in once the records are written.
func EncodeSeekable(w io.WriteSeeker, r coords.Vec3i, chunks []*world.Chunk) (int, error) {
	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	var count [4]byte
	if _, err := w.Write(count[:]); err != nil {
		return 0, err
	}
	n := 0
	for _, ch := range inRegion(r, chunks) {
		if _, err := writeRecords(w, []*world.Chunk{ch}); err != nil {
			return 0, err
		}
		n++
	}
	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(count[:], uint32(n))
	if _, err := w.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}
	if _, err := w.Write(count[:]); err != nil {
		return 0, err
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return 0, err
	}
	return n, nil
}

// Decode reads a region written by Encode into dst. Any short read,
// out-of-range count, foreign or duplicate chunk, or malformed chunk is
// reported as ErrCorruptRegion.
func Decode(rd io.Reader, r coords.Vec3i, dst *world.Staging) (int, error) {
	var count uint32
	if err := binary.Read(rd, binary.LittleEndian, &count); err != nil {
		return 0, fmt.Errorf("%w: read count: %w", ErrCorruptRegion, err)
	}
	if count > MaxRecords {
		return 0, fmt.Errorf("%w: %d records, at most %d", ErrCorruptRegion, count, MaxRecords)
	}
	for i := 0; i < int(count); i++ {
		var pos [3]int32
		if err := binary.Read(rd, binary.LittleEndian, &pos); err != nil {
			return i, fmt.Errorf("%w: record %d: %w", ErrCorruptRegion, i, err)
		}
		c := coords.Vec3i{X: int(pos[0]), Y: int(pos[1]), Z: int(pos[2])}
		if coords.RegionOfChunk(c) != r {
			return i, fmt.Errorf("%w: record %d: chunk %v outside region %v", ErrCorruptRegion, i, c, r)
		}
		if dst.Chunk(c) != nil {
			return i, fmt.Errorf("%w: record %d: duplicate chunk %v", ErrCorruptRegion, i, c)
		}
		ch, err := world.ReadChunkFrom(rd, c)
		if err != nil {
			return i, fmt.Errorf("%w: record %d: %w", ErrCorruptRegion, i, err)
		}
		dst.Put(ch)
	}
	return int(count), nil
}
