package gen

import (
	"math"
)

// Seeded 2D gradient noise with fractal octaves. The permutation table is
// derived from the seed with a SplitMix64 stream, so output is stable across
// platforms and Go releases.

// fade is the quintic smoothstep 6t^5 - 15t^4 + 10t^3.
func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func splitmix64(state *uint64) uint64 {
	*state += 0x9E3779B97F4A7C15
	v := *state
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}

// hash3 mixes an integer triple with the seed.
func hash3(x, y, z int64, seed int64) uint64 {
	v := uint64(x)*0x9E3779B97F4A7C15 + uint64(y)*0x517CC1B727220A95 + uint64(z)*0x6C62272E07BB0142 + uint64(seed)
	return splitmix64(&v)
}

// Perlin is a fractal gradient noise field.
type Perlin struct {
	perm        [512]uint8
	octaves     int
	persistence float64
	frequency   float64
	amplitude   float64
}

// NewPerlin builds a noise field. Octave frequency doubles per octave and
// amplitude is scaled by persistence.
func NewPerlin(seed int64, octaves int, persistence, frequency, amplitude float64) *Perlin {
	p := &Perlin{
		octaves:     octaves,
		persistence: persistence,
		frequency:   frequency,
		amplitude:   amplitude,
	}

	var base [256]uint8
	for i := range base {
		base[i] = uint8(i)
	}
	state := uint64(seed)
	for i := len(base) - 1; i > 0; i-- {
		j := int(splitmix64(&state) % uint64(i+1))
		base[i], base[j] = base[j], base[i]
	}
	for i := range p.perm {
		p.perm[i] = base[i&255]
	}
	return p
}

// Noise2D returns the normalized fractal noise at (x, z), roughly in [-1, 1].
func (p *Perlin) Noise2D(x, z float64) float64 {
	total := 0.0
	maxValue := 0.0
	freq := p.frequency
	amp := p.amplitude
	for i, n := 0, p.octaves; i < n; i++ {
		total += p.gradient2D(x*freq, z*freq) * amp
		maxValue += amp
		amp *= p.persistence
		freq *= 2
	}
	if maxValue == 0 {
		return 0
	}
	return total / maxValue
}

func (p *Perlin) gradient2D(x, z float64) float64 {
	fx := math.Floor(x)
	fz := math.Floor(z)
	xi := int(fx) & 255
	zi := int(fz) & 255
	xf := x - fx
	zf := z - fz

	u := fade(xf)
	v := fade(zf)

	aa := p.perm[int(p.perm[xi])+zi]
	ab := p.perm[int(p.perm[xi])+zi+1]
	ba := p.perm[int(p.perm[xi+1])+zi]
	bb := p.perm[int(p.perm[xi+1])+zi+1]

	x1 := lerp(grad(aa, xf, zf), grad(ba, xf-1, zf), u)
	x2 := lerp(grad(ab, xf, zf-1), grad(bb, xf-1, zf-1), u)
	return lerp(x1, x2, v)
}

func grad(hash uint8, x, z float64) float64 {
	h := hash & 7
	u, v := x, z
	if h >= 4 {
		u, v = z, x
	}
	if h&1 != 0 {
		u = -u
	}
	if h&2 != 0 {
		v = -v
	}
	return u + v
}
