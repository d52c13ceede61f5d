// Command voxelview opens a window onto a streamed world. WASD and mouse to
// fly, left click breaks, right click places stone, F toggles collision.
package main

import (
	"context"
	"flag"
	"runtime"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxelstream/internal/config"
	"voxelstream/internal/game"
	"voxelstream/internal/graphics"
	"voxelstream/internal/graphics/camera"
	"voxelstream/internal/profiling"
	"voxelstream/internal/world"
)

var (
	configPath = flag.String("config", "", "config file (.toml, .yaml); built-in defaults when empty")
	isDebug    = flag.Bool("debug", false, "Enable debug log output")
	saveDir    = flag.String("dir", "", "override storage.dir")
	fpsLimit   = flag.Int("fps", 120, "frame rate cap; 0 for uncapped")
)

var lightDir = mgl32.Vec3{-0.4, -1, -0.3}

func init() {
	runtime.LockOSThread()
}

type viewer struct {
	window   *glfw.Window
	sess     *game.Session
	uploader *graphics.GLUploader
	cam      *camera.Camera
	log      *zap.Logger

	speed      float32
	noclip     bool
	firstMouse bool
	lastX      float64
	lastY      float64
}

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
	defer logger.Sync()

	if cfgErr != nil {
		logger.Fatal("read config", zap.Error(cfgErr))
	}
	if *saveDir != "" {
		cfg.Storage.Dir = *saveDir
	}

	if err := glfw.Init(); err != nil {
		logger.Fatal("glfw init", zap.Error(err))
	}
	defer glfw.Terminate()

	window, err := setupWindow()
	if err != nil {
		logger.Fatal("create window", zap.Error(err))
	}

	shader, err := graphics.NewChunkShader()
	if err != nil {
		logger.Fatal("chunk shader", zap.Error(err))
	}
	defer shader.Delete()
	uploader := graphics.NewGLUploader(shader)

	sess, err := game.NewSession(cfg, uploader, logger)
	if err != nil {
		logger.Fatal("open session", zap.Error(err))
	}

	v := &viewer{
		window:     window,
		sess:       sess,
		uploader:   uploader,
		cam:        camera.New(windowWidth, windowHeight),
		log:        logger,
		speed:      10,
		firstMouse: true,
	}
	v.cam.Position = sess.Spawn(0, 0)
	v.setupInput()
	v.run()

	// Close releases GPU buffers, so it runs while the context is current.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		logger.Error("close session", zap.Error(err))
	}
}

func (v *viewer) run() {
	limiter := game.NewTickLimiter(*fpsLimit)
	last := time.Now()
	lastReport := last
	frames := 0
	var (
		chunks  []*world.Chunk
		version = ^uint64(0)
	)

	for !v.window.ShouldClose() {
		profiling.ResetFrame()
		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now

		glfw.PollEvents()
		v.move(dt)
		v.sess.World.Update(v.cam.Position)

		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		v.uploader.BeginFrame(v.cam, lightDir)
		if n := v.sess.World.ChunkVersion(); n != version {
			chunks, version = v.sess.World.Chunks(), n
		}
		for _, ch := range chunks {
			ch.Draw(v.uploader)
		}
		fs := v.uploader.EndFrame()
		v.window.SwapBuffers()
		frames++

		if now.Sub(lastReport) >= 2*time.Second {
			st := v.sess.World.Stats()
			v.log.Debug("frame",
				zap.Float64("fps", float64(frames)/now.Sub(lastReport).Seconds()),
				zap.Int("drawn", fs.Drawn),
				zap.Int("culled", fs.Culled),
				zap.Int("vertices", fs.Vertices),
				zap.Int("live_buffers", fs.Live),
				zap.Int("chunks", st.Chunks),
				zap.Int("queued", st.QueuedHigh+st.QueuedLow),
				zap.String("top", profiling.TopN(3)))
			frames = 0
			lastReport = now
		}
		limiter.Wait()
	}
}
