// Package config loads voxelstream settings from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"voxelstream/internal/world"
)

// Config is the full configuration file.
type Config struct {
	World     WorldConfig     `toml:"world" yaml:"world"`
	Generator GeneratorConfig `toml:"generator" yaml:"generator"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// WorldConfig mirrors world.Settings.
type WorldConfig struct {
	RenderRadius          int     `toml:"render_radius" yaml:"render_radius"`
	HeightRegions         int     `toml:"height_regions" yaml:"height_regions"`
	VerticalRadius        int     `toml:"vertical_radius" yaml:"vertical_radius"`
	MaxWorkers            int     `toml:"max_workers" yaml:"max_workers"`
	RebuildBatch          int     `toml:"rebuild_batch" yaml:"rebuild_batch"`
	UploadBatch           int     `toml:"upload_batch" yaml:"upload_batch"`
	MaxRegionLoadsPerTick int     `toml:"max_region_loads_per_tick" yaml:"max_region_loads_per_tick"`
	RegionLoadsPerSecond  float64 `toml:"region_loads_per_second" yaml:"region_loads_per_second"`
	SlowTickMS            int     `toml:"slow_tick_ms" yaml:"slow_tick_ms"`
}

// StorageConfig selects where and how regions are saved.
type StorageConfig struct {
	Dir      string `toml:"dir" yaml:"dir"`
	Compress bool   `toml:"compress" yaml:"compress"`
	Index    bool   `toml:"index" yaml:"index"`
}

// LogConfig controls the command loggers.
type LogConfig struct {
	Debug bool `toml:"debug" yaml:"debug"`
}

// NewLogger returns a development logger when debug output is enabled in
// the file or by force, and a production logger otherwise.
func (c LogConfig) NewLogger(force bool) (*zap.Logger, error) {
	if c.Debug || force {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Default returns the built-in configuration.
func Default() Config {
	ws := world.DefaultSettings()
	return Config{
		World: WorldConfig{
			RenderRadius:          ws.RenderRadius,
			HeightRegions:         ws.HeightRegions,
			VerticalRadius:        ws.VerticalRadius,
			MaxWorkers:            ws.MaxWorkers,
			RebuildBatch:          ws.RebuildBatch,
			UploadBatch:           ws.UploadBatch,
			MaxRegionLoadsPerTick: ws.MaxRegionLoadsPerTick,
			RegionLoadsPerSecond:  ws.RegionLoadsPerSecond,
			SlowTickMS:            int(ws.SlowTick / time.Millisecond),
		},
		Generator: defaultGenerator(),
		Storage: StorageConfig{
			Dir:      "saves/world",
			Compress: true,
			Index:    true,
		},
	}
}

// ErrUnknownKeys is returned when a file sets keys Config does not have.
var ErrUnknownKeys = errors.New("unknown config keys")

// Load reads path over Default. The format is chosen by extension: .toml,
// .yaml or .yml. Missing keys keep their defaults.
func Load(path string) (Config, error) {
	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &c)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("config %s: %w: [%s]", path, ErrUnknownKeys, strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			if strings.Contains(err.Error(), "not found in type") {
				return Config{}, fmt.Errorf("config %s: %w: %v", path, ErrUnknownKeys, err)
			}
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks ranges. It reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	w := c.World
	check(w.RenderRadius >= 0, "world.render_radius must be >= 0, got %d", w.RenderRadius)
	check(w.HeightRegions >= 1, "world.height_regions must be >= 1, got %d", w.HeightRegions)
	check(w.VerticalRadius >= 0, "world.vertical_radius must be >= 0, got %d", w.VerticalRadius)
	check(w.MaxWorkers >= 1, "world.max_workers must be >= 1, got %d", w.MaxWorkers)
	check(w.RebuildBatch >= 1, "world.rebuild_batch must be >= 1, got %d", w.RebuildBatch)
	check(w.UploadBatch >= 1, "world.upload_batch must be >= 1, got %d", w.UploadBatch)
	check(w.MaxRegionLoadsPerTick >= 1, "world.max_region_loads_per_tick must be >= 1, got %d", w.MaxRegionLoadsPerTick)
	check(w.RegionLoadsPerSecond >= 0, "world.region_loads_per_second must be >= 0, got %g", w.RegionLoadsPerSecond)
	check(w.SlowTickMS >= 0, "world.slow_tick_ms must be >= 0, got %d", w.SlowTickMS)
	errs = append(errs, c.Generator.validate()...)
	check(c.Storage.Dir != "", "storage.dir must be set")
	return errors.Join(errs...)
}

// WorldSettings converts the world section.
func (c Config) WorldSettings() world.Settings {
	w := c.World
	return world.Settings{
		RenderRadius:          w.RenderRadius,
		HeightRegions:         w.HeightRegions,
		VerticalRadius:        w.VerticalRadius,
		MaxWorkers:            w.MaxWorkers,
		RebuildBatch:          w.RebuildBatch,
		UploadBatch:           w.UploadBatch,
		MaxRegionLoadsPerTick: w.MaxRegionLoadsPerTick,
		RegionLoadsPerSecond:  w.RegionLoadsPerSecond,
		SlowTick:              time.Duration(w.SlowTickMS) * time.Millisecond,
	}
}
