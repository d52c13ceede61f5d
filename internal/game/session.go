// Package game wires configuration, persistence and the world scheduler
// into a running session shared by the commands.
package game

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxelstream/internal/config"
	"voxelstream/internal/gen"
	"voxelstream/internal/region"
	"voxelstream/internal/world"
)

// IndexFile is the sqlite index inside the save directory.
const IndexFile = "index.db"

// Session is an open save directory with the world streaming over it.
type Session struct {
	Config config.Config
	Level  region.Level
	Store  *region.Store
	Index  *region.Index // nil when disabled
	World  *world.World

	log *zap.Logger
}

// NewSession opens (or creates) the save directory named by cfg and starts
// a world on it. up may be nil for headless runs.
func NewSession(cfg config.Config, up world.Uploader, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := cfg.Storage.Dir
	level, created, err := region.OpenLevel(dir, cfg.Generator.Seed)
	if err != nil {
		return nil, fmt.Errorf("open level: %w", err)
	}
	log.Info("level opened",
		zap.String("dir", dir),
		zap.Stringer("world_id", level.WorldID),
		zap.Int64("seed", level.Seed),
		zap.Bool("created", created))
	if !created && level.Seed != cfg.Generator.Seed {
		log.Warn("configured seed differs from the saved world, using the saved seed",
			zap.Int64("configured", cfg.Generator.Seed),
			zap.Int64("saved", level.Seed))
	}

	s := &Session{Config: cfg, Level: level, log: log}
	opts := []region.Option{
		region.WithCompression(cfg.Storage.Compress),
		region.WithLogger(log.Named("region")),
	}
	if cfg.Storage.Index {
		if s.Index, err = region.OpenIndex(filepath.Join(dir, IndexFile)); err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		opts = append(opts, region.WithIndex(s.Index))
	}
	if s.Store, err = region.NewStore(dir, opts...); err != nil {
		s.closeIndex()
		return nil, err
	}

	s.World = world.New(world.Options{
		Settings:  cfg.WorldSettings(),
		Generator: gen.NewGenerator(cfg.GenSettings(level.Seed)),
		Store:     s.Store,
		Uploader:  up,
		Logger:    log.Named("world"),
	})
	return s, nil
}

// Spawn returns an observer position two blocks above the generated
// surface at column (x, z).
func (s *Session) Spawn(x, z int) mgl32.Vec3 {
	h := s.World.Generator().HeightAt(x, z)
	return mgl32.Vec3{float32(x), float32(h) + 2, float32(z)}
}

// Close saves every region and releases the store. When ctx expires first
// the session stays open and Close may be retried.
func (s *Session) Close(ctx context.Context) error {
	err := s.World.Close(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return errors.Join(err, s.closeIndex())
}

func (s *Session) closeIndex() error {
	if s.Index == nil {
		return nil
	}
	err := s.Index.Close()
	s.Index = nil
	return err
}
