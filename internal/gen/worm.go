package gen

import (
	"math"

	"voxelstream/internal/block"
	"voxelstream/internal/coords"
)

// WormStarts returns the deterministic tunnel start points inside region r.
// Regions entirely above the terrain get none.
func (g *Generator) WormStarts(r coords.Vec3i) []coords.Vec3i {
	s := g.settings
	if s.WormChance <= 0 || s.WormLength <= 0 {
		return nil
	}
	h := hash3(int64(r.X), int64(r.Y), int64(r.Z), s.Seed)
	if float64(h&0xFFFF)/float64(0xFFFF) >= s.WormChance {
		return nil
	}

	base := r.Mul(coords.RegionSize)
	x := base.X + int((h>>16)%coords.RegionSize)
	z := base.Z + int((h>>24)%coords.RegionSize)
	y := base.Y + int((h>>32)%coords.RegionSize)
	surface := g.HeightAt(x, z)
	if y > surface-s.WormMinDepth {
		return nil
	}
	return []coords.Vec3i{{X: x, Y: y, Z: z}}
}

// CarveTunnels walks a noise-steered path from start and clears carvable
// blocks inside a sphere around every step. It never places blocks, so
// running it twice with the same start leaves the volume unchanged.
func (g *Generator) CarveTunnels(v Volume, start coords.Vec3i) int {
	s := g.settings
	px, py, pz := float64(start.X), float64(start.Y), float64(start.Z)
	removed := 0
	for i, n := 0, s.WormLength; i < n; i++ {
		removed += g.carveSphere(v, px, py, pz)

		angleXZ := g.worm.Noise2D(px, pz) * 2 * math.Pi
		angleY := g.worm.Noise2D(py, pz) * 2 * math.Pi
		dx := math.Cos(angleXZ)
		dy := math.Sin(angleY)
		dz := math.Sin(angleXZ)
		l := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if l == 0 {
			break
		}
		px += dx / l * s.WormStep
		py += dy / l * s.WormStep
		pz += dz / l * s.WormStep
	}
	return removed
}

func (g *Generator) carveSphere(v Volume, px, py, pz float64) int {
	radius := g.settings.WormRadius
	r := int(math.Ceil(radius))
	cx, cy, cz := int(math.Floor(px)), int(math.Floor(py)), int(math.Floor(pz))
	r2 := radius * radius
	removed := 0
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				bx, by, bz := cx+x, cy+y, cz+z
				ddx, ddy, ddz := float64(bx)-px, float64(by)-py, float64(bz)-pz
				if ddx*ddx+ddy*ddy+ddz*ddz > r2 {
					continue
				}
				if !v.GetBlock(bx, by, bz).Carvable() {
					continue
				}
				v.SetBlock(bx, by, bz, block.Air)
				removed++
			}
		}
	}
	return removed
}
