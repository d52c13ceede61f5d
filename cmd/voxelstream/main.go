// Command voxelstream runs the world scheduler headless: an observer walks
// across generated terrain, carving and placing blocks, and every touched
// region is saved on exit.
package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"
	"go.uber.org/zap"

	"voxelstream/internal/block"
	"voxelstream/internal/config"
	"voxelstream/internal/game"
	"voxelstream/internal/physics"
	"voxelstream/internal/profiling"
)

var (
	configPath = flag.String("config", "", "config file (.toml, .yaml); built-in defaults when empty")
	isDebug    = flag.Bool("debug", false, "Enable debug log output")
	saveDir    = flag.String("dir", "", "override storage.dir")
	ticks      = flag.Int("ticks", 0, "stop after this many ticks; 0 runs until interrupted")
	tickRate   = flag.Int("tps", 20, "ticks per second")
	speed      = flag.Float64("speed", 8, "observer speed in blocks per second")
	editEvery  = flag.Int("edit-every", 10, "ticks between block edits; 0 disables edits")
)

const reach = 4.5

func main() {
	flag.Parse()

	cfg := config.Default()
	var cfgErr error
	if *configPath != "" {
		cfg, cfgErr = config.Load(*configPath)
	}
	logger, err := cfg.Log.NewLogger(*isDebug)
	if err != nil {
		panic(err)
	}

	if cfgErr != nil {
		logger.Fatal("read config", zap.Error(cfgErr))
	}
	if *saveDir != "" {
		cfg.Storage.Dir = *saveDir
	}

	sess, err := game.NewSession(cfg, nil, logger)
	if err != nil {
		logger.Fatal("open session", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-done
		closeCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := sess.Close(closeCtx); err != nil {
			logger.Error("close session", zap.Error(err))
		}
		logger.Info("exit")
		_ = logger.Sync()
	})

	go func() {
		run(ctx, sess, logger)
		close(done)
		closer.Close()
	}()
	closer.Hold()
}

func run(ctx context.Context, sess *game.Session, log *zap.Logger) {
	w := sess.World
	pos := sess.Spawn(0, 0)
	dir := mgl32.Vec3{1, 0, 0.3}.Normalize()
	step := float32(*speed) / float32(max(*tickRate, 1))
	rng := rand.New(rand.NewSource(sess.Level.Seed))
	limiter := game.NewTickLimiter(*tickRate)
	lastReport := time.Now()

	log.Info("walking", zap.Float32s("from", pos[:]), zap.Float64("speed", *speed))
	for tick := 1; *ticks == 0 || tick <= *ticks; tick++ {
		if ctx.Err() != nil {
			return
		}
		profiling.ResetFrame()

		pos = pos.Add(dir.Mul(step))
		if top, ok := physics.SurfaceBelow(w, int(pos.X()+0.5), int(pos.Z()+0.5), int(pos.Y())+8, 64); ok {
			pos[1] = top + 1.6
		}
		w.Update(pos)

		if *editEvery > 0 && tick%*editEvery == 0 {
			edit(sess, pos, rng, log)
		}

		if time.Since(lastReport) >= 5*time.Second {
			st := w.Stats()
			log.Info("stats",
				zap.Int("tick", tick),
				zap.Float32s("observer", pos[:]),
				zap.Int("chunks", st.Chunks),
				zap.Int("resident_regions", st.ResidentRegions),
				zap.Int("pending_loads", st.PendingLoads),
				zap.Int("queued_high", st.QueuedHigh),
				zap.Int("queued_low", st.QueuedLow),
				zap.Int("peak_in_flight", st.PeakInFlight),
				zap.Uint64("rebuilt", st.Rebuilt),
				zap.Uint64("interrupted", st.Interrupted),
				zap.String("top", profiling.TopN(3)))
			lastReport = time.Now()
		}
		limiter.Wait()
	}
}

// edit looks down and ahead of the observer and either breaks the block it
// hits or places stone on the face it hit.
func edit(sess *game.Session, pos mgl32.Vec3, rng *rand.Rand, log *zap.Logger) {
	look := mgl32.Vec3{rng.Float32()*2 - 1, -1, rng.Float32()*2 - 1}.Normalize()
	hit, ok := sess.World.BlockRaytrace(pos, look, reach)
	if !ok {
		return
	}
	target, id := hit.Block, block.Air
	if rng.Intn(2) == 0 {
		target, id = hit.Adjacent(), block.Stone
	}
	sess.World.SetBlock(target.X, target.Y, target.Z, id)
	log.Debug("edit",
		zap.Stringer("block", target),
		zap.Stringer("face", hit.Face),
		zap.Uint32("id", uint32(id)))
}
