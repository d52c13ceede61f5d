package graphics

import (
	"errors"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream/internal/coords"
	"voxelstream/internal/graphics/camera"
	"voxelstream/internal/meshing"
	"voxelstream/internal/world"
)

type chunkGeometry struct {
	vao, vbo uint32
	count    int32
}

// FrameStats counts draw activity since the last BeginFrame.
type FrameStats struct {
	Drawn    int
	Culled   int
	Vertices int
	Live     int // uploaded geometries not yet released
}

// GLUploader owns one VAO/VBO pair per chunk mesh. All methods must run on
// the goroutine holding the GL context.
type GLUploader struct {
	shader  *Shader
	frustum camera.Frustum
	cull    bool
	stats   FrameStats
}

var (
	_ world.Uploader = (*GLUploader)(nil)
	_ world.Drawer   = (*GLUploader)(nil)
)

// NewGLUploader returns an uploader that draws with shader. It must be
// created and used on the thread owning the GL context.
func NewGLUploader(shader *Shader) *GLUploader {
	return &GLUploader{shader: shader}
}

// Upload copies the mesh into a new static vertex buffer.
func (u *GLUploader) Upload(m *meshing.Mesh) (world.Handle, error) {
	if m.Empty() {
		return nil, errors.New("empty mesh")
	}
	g := &chunkGeometry{count: int32(m.VertexCount())}
	gl.GenVertexArrays(1, &g.vao)
	gl.GenBuffers(1, &g.vbo)
	u.stats.Live++
	gl.BindVertexArray(g.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, g.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(m.Vertices)*4, gl.Ptr(m.Vertices), gl.STATIC_DRAW)

	stride := int32(meshing.VertexStride * 4)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, stride, gl.PtrOffset(3*4))

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	if err := gl.GetError(); err != gl.NO_ERROR {
		u.Release(g)
		return nil, glError(err)
	}
	return g, nil
}

// Release deletes the buffers behind h.
func (u *GLUploader) Release(h world.Handle) {
	g, ok := h.(*chunkGeometry)
	if !ok || g == nil {
		return
	}
	if g.vbo != 0 {
		gl.DeleteBuffers(1, &g.vbo)
		g.vbo = 0
	}
	if g.vao != 0 {
		gl.DeleteVertexArrays(1, &g.vao)
		g.vao = 0
		u.stats.Live--
	}
}

// BeginFrame binds the chunk program with the camera matrices and resets
// the per-frame counters.
func (u *GLUploader) BeginFrame(cam *camera.Camera, lightDir mgl32.Vec3) {
	live := u.stats.Live
	u.stats = FrameStats{Live: live}
	u.frustum = cam.Frustum()
	u.cull = true

	u.shader.Use()
	u.shader.SetMat4("uView", cam.View())
	u.shader.SetMat4("uProj", cam.Projection())
	u.shader.SetVec3("uLightDir", lightDir)
}

// Draw issues the draw call for one chunk unless it is outside the frustum.
func (u *GLUploader) Draw(c coords.Vec3i, h world.Handle) {
	g, ok := h.(*chunkGeometry)
	if !ok || g.vao == 0 {
		return
	}
	if u.cull && !u.frustum.ContainsChunk(c) {
		u.stats.Culled++
		return
	}
	gl.BindVertexArray(g.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, g.count)
	u.stats.Drawn++
	u.stats.Vertices += int(g.count)
}

// EndFrame unbinds the vertex array and returns the frame counters.
func (u *GLUploader) EndFrame() FrameStats {
	gl.BindVertexArray(0)
	return u.stats
}

type glError uint32

func (e glError) Error() string {
	switch uint32(e) {
	case gl.OUT_OF_MEMORY:
		return "gl: out of memory"
	case gl.INVALID_VALUE:
		return "gl: invalid value"
	case gl.INVALID_OPERATION:
		return "gl: invalid operation"
	}
	return "gl: error"
}
