package meshing

import (
	"context"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"

	"github.com/go-gl/mathgl/mgl32"
)

// faceCorners lists the four corners of each face relative to the block
// center, counter-clockwise when viewed from outside.
var faceCorners = [6][4]mgl32.Vec3{
	coords.FaceLeft: {
		{-0.5, -0.5, -0.5}, {-0.5, -0.5, 0.5}, {-0.5, 0.5, 0.5}, {-0.5, 0.5, -0.5},
	},
	coords.FaceRight: {
		{0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {0.5, 0.5, 0.5}, {0.5, -0.5, 0.5},
	},
	coords.FaceTop: {
		{-0.5, 0.5, -0.5}, {-0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}, {0.5, 0.5, -0.5},
	},
	coords.FaceBottom: {
		{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, -0.5, 0.5}, {-0.5, -0.5, 0.5},
	},
	coords.FaceBack: {
		{-0.5, -0.5, -0.5}, {-0.5, 0.5, -0.5}, {0.5, 0.5, -0.5}, {0.5, -0.5, -0.5},
	},
	coords.FaceFront: {
		{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5},
	},
}

// Build emits one quad for every face of every solid block in snap whose
// neighbour is air. Neighbours inside the chunk come from the snapshot,
// the rest from src. ctx is checked once per x slice; on cancellation the
// partial mesh is dropped and ctx.Err() is returned.
func Build(ctx context.Context, snap *Snapshot, src BlockSource) (*Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mesh := &Mesh{Chunk: snap.Chunk}
	if snap.IsEmpty() {
		return mesh, nil
	}

	d := snap.size()
	mesh.Vertices = make([]float32, 0, d.X*d.Y*d.Z*VertexStride)
	base := snap.Chunk.Mul(coords.ChunkSize)

	for lx := snap.Min.X; lx <= snap.Max.X; lx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for ly := snap.Min.Y; ly <= snap.Max.Y; ly++ {
			for lz := snap.Min.Z; lz <= snap.Max.Z; lz++ {
				if snap.at(lx, ly, lz).IsAir() {
					continue
				}
				for _, f := range coords.Faces {
					n := f.Normal()
					if !neighbourAir(snap, src, base, lx+n.X, ly+n.Y, lz+n.Z) {
						continue
					}
					center := mgl32.Vec3{float32(base.X + lx), float32(base.Y + ly), float32(base.Z + lz)}
					mesh.Vertices = appendFace(mesh.Vertices, center, f)
				}
			}
		}
	}
	return mesh, nil
}

func neighbourAir(snap *Snapshot, src BlockSource, base coords.Vec3i, lx, ly, lz int) bool {
	if lx >= 0 && ly >= 0 && lz >= 0 && lx < coords.ChunkSize && ly < coords.ChunkSize && lz < coords.ChunkSize {
		return snap.at(lx, ly, lz).IsAir()
	}
	if src == nil {
		return true
	}
	return src.GetBlock(base.X+lx, base.Y+ly, base.Z+lz) == block.Air
}

func appendFace(dst []float32, center mgl32.Vec3, f coords.BlockFace) []float32 {
	n := f.Normal()
	normal := mgl32.Vec3{float32(n.X), float32(n.Y), float32(n.Z)}
	c := faceCorners[f]
	// two triangles: 0,1,2 and 2,3,0
	for _, i := range [VerticesPerFace]int{0, 1, 2, 2, 3, 0} {
		p := center.Add(c[i])
		dst = append(dst, p.X(), p.Y(), p.Z(), normal.X(), normal.Y(), normal.Z())
	}
	return dst
}
