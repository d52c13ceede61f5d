package physics

import (
	"math"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
	"voxelstream/internal/profiling"

	"github.com/go-gl/mathgl/mgl32"
)

// BlockSource answers block queries in absolute coordinates.
type BlockSource interface {
	GetBlock(x, y, z int) block.ID
}

// Hit describes the closest block face struck by a ray.
type Hit struct {
	Face     coords.BlockFace
	Block    coords.Vec3i
	Distance float32
	Point    mgl32.Vec3
}

// Adjacent returns the block cell in front of the struck face, where a new
// block would be placed.
func (h Hit) Adjacent() coords.Vec3i {
	return h.Block.Add(h.Face.Normal())
}

// Raytrace tests every solid block in the box enclosing the segment
// origin..origin+dir*maxRange, grown by one block, against its six faces.
// Blocks are unit cubes centered on integer coordinates. dir need not be
// normalized; distances are along the normalized direction.
func Raytrace(src BlockSource, origin, dir mgl32.Vec3, maxRange float32) (Hit, bool) {
	defer profiling.Track("physics.Raytrace")()
	if dir.Len() == 0 || maxRange < 0 {
		return Hit{}, false
	}
	dir = dir.Normalize()
	end := origin.Add(dir.Mul(maxRange))

	var lo, hi [3]int
	for a := 0; a < 3; a++ {
		lo[a] = int(math.Floor(float64(min(origin[a], end[a])))) - 1
		hi[a] = int(math.Ceil(float64(max(origin[a], end[a])))) + 1
	}

	best := Hit{Distance: float32(math.Inf(1))}
	found := false
	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for z := lo[2]; z <= hi[2]; z++ {
				if src.GetBlock(x, y, z).IsAir() {
					continue
				}
				center := mgl32.Vec3{float32(x), float32(y), float32(z)}
				for _, f := range coords.Faces {
					t, p, ok := intersectFace(origin, dir, center, f)
					if !ok || t > maxRange || t >= best.Distance {
						continue
					}
					best = Hit{Face: f, Block: coords.Vec3i{X: x, Y: y, Z: z}, Distance: t, Point: p}
					found = true
				}
			}
		}
	}
	return best, found
}

// intersectFace intersects the ray with the plane of face f of the block at
// center and checks the hit lies on the face.
func intersectFace(origin, dir, center mgl32.Vec3, f coords.BlockFace) (float32, mgl32.Vec3, bool) {
	n := f.Normal()
	normal := mgl32.Vec3{float32(n.X), float32(n.Y), float32(n.Z)}
	axis := 0
	switch {
	case n.Y != 0:
		axis = 1
	case n.Z != 0:
		axis = 2
	}
	if dir[axis] == 0 {
		return 0, mgl32.Vec3{}, false
	}
	plane := center[axis] + normal[axis]*0.5
	t := (plane - origin[axis]) / dir[axis]
	if t < 0 {
		return 0, mgl32.Vec3{}, false
	}
	p := origin.Add(dir.Mul(t))
	for a := 0; a < 3; a++ {
		if a == axis {
			continue
		}
		if p[a] < center[a]-0.5 || p[a] > center[a]+0.5 {
			return 0, mgl32.Vec3{}, false
		}
	}
	return t, p, true
}
