package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Collides reports whether an axis-aligned box centered on pos with the
// given half extents overlaps any solid block.
func Collides(src BlockSource, pos, half mgl32.Vec3) bool {
	minX := int(math.Floor(float64(pos.X() - half.X() + 0.5)))
	maxX := int(math.Floor(float64(pos.X() + half.X() + 0.5)))
	minY := int(math.Floor(float64(pos.Y() - half.Y() + 0.5)))
	maxY := int(math.Floor(float64(pos.Y() + half.Y() + 0.5)))
	minZ := int(math.Floor(float64(pos.Z() - half.Z() + 0.5)))
	maxZ := int(math.Floor(float64(pos.Z() + half.Z() + 0.5)))

	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				if src.GetBlock(x, y, z).IsAir() {
					continue
				}
				bx, by, bz := float32(x), float32(y), float32(z)
				if pos.X()-half.X() < bx+0.5 && pos.X()+half.X() > bx-0.5 &&
					pos.Y()-half.Y() < by+0.5 && pos.Y()+half.Y() > by-0.5 &&
					pos.Z()-half.Z() < bz+0.5 && pos.Z()+half.Z() > bz-0.5 {
					return true
				}
			}
		}
	}
	return false
}

// SurfaceBelow returns the top of the highest solid block in column (x, z)
// at or below fromY, scanning at most depth blocks. ok is false when the
// column is empty over that span.
func SurfaceBelow(src BlockSource, x, z, fromY, depth int) (top float32, ok bool) {
	for y := fromY; y > fromY-depth; y-- {
		if !src.GetBlock(x, y, z).IsAir() {
			return float32(y) + 0.5, true
		}
	}
	return 0, false
}
