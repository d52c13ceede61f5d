package config

import (
	"fmt"

	"voxelstream/internal/gen"
)

// GeneratorConfig holds terrain generation parameters.
type GeneratorConfig struct {
	Seed        int64   `toml:"seed" yaml:"seed"`
	Octaves     int     `toml:"octaves" yaml:"octaves"`
	Persistence float64 `toml:"persistence" yaml:"persistence"`
	Frequency   float64 `toml:"frequency" yaml:"frequency"`
	Amplitude   float64 `toml:"amplitude" yaml:"amplitude"`
	BaseHeight  int     `toml:"base_height" yaml:"base_height"`
	HeightScale float64 `toml:"height_scale" yaml:"height_scale"`
	DirtDepth   int     `toml:"dirt_depth" yaml:"dirt_depth"`

	Caves         bool    `toml:"caves" yaml:"caves"`
	WormChance    float64 `toml:"worm_chance" yaml:"worm_chance"`
	WormLength    int     `toml:"worm_length" yaml:"worm_length"`
	WormStep      float64 `toml:"worm_step" yaml:"worm_step"`
	WormRadius    float64 `toml:"worm_radius" yaml:"worm_radius"`
	WormMinDepth  int     `toml:"worm_min_depth" yaml:"worm_min_depth"`
	WormFrequency float64 `toml:"worm_frequency" yaml:"worm_frequency"`
}

func defaultGenerator() GeneratorConfig {
	s := gen.DefaultSettings()
	return GeneratorConfig{
		Seed:          s.Seed,
		Octaves:       s.Octaves,
		Persistence:   s.Persistence,
		Frequency:     s.Frequency,
		Amplitude:     s.Amplitude,
		BaseHeight:    s.BaseHeight,
		HeightScale:   s.HeightScale,
		DirtDepth:     s.DirtDepth,
		Caves:         s.Caves,
		WormChance:    s.WormChance,
		WormLength:    s.WormLength,
		WormStep:      s.WormStep,
		WormRadius:    s.WormRadius,
		WormMinDepth:  s.WormMinDepth,
		WormFrequency: s.WormFrequency,
	}
}

func (g GeneratorConfig) validate() []error {
	var errs []error
	if g.Octaves < 1 {
		errs = append(errs, fmt.Errorf("generator.octaves must be >= 1, got %d", g.Octaves))
	}
	if g.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("generator.frequency must be > 0, got %g", g.Frequency))
	}
	if g.Persistence <= 0 {
		errs = append(errs, fmt.Errorf("generator.persistence must be > 0, got %g", g.Persistence))
	}
	if g.DirtDepth < 0 {
		errs = append(errs, fmt.Errorf("generator.dirt_depth must be >= 0, got %d", g.DirtDepth))
	}
	if g.Caves && (g.WormChance < 0 || g.WormChance > 1) {
		errs = append(errs, fmt.Errorf("generator.worm_chance must be in [0, 1], got %g", g.WormChance))
	}
	return errs
}

// GenSettings converts the generator section. seed overrides the
// configured seed when non-zero, so a saved world keeps its own.
func (c Config) GenSettings(seed int64) gen.Settings {
	g := c.Generator
	if seed != 0 {
		g.Seed = seed
	}
	return gen.Settings{
		Seed:          g.Seed,
		Octaves:       g.Octaves,
		Persistence:   g.Persistence,
		Frequency:     g.Frequency,
		Amplitude:     g.Amplitude,
		BaseHeight:    g.BaseHeight,
		HeightScale:   g.HeightScale,
		DirtDepth:     g.DirtDepth,
		Caves:         g.Caves,
		WormChance:    g.WormChance,
		WormLength:    g.WormLength,
		WormStep:      g.WormStep,
		WormRadius:    g.WormRadius,
		WormMinDepth:  g.WormMinDepth,
		WormFrequency: g.WormFrequency,
	}
}
