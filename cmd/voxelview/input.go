package main

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream/internal/block"
	"voxelstream/internal/physics"
)

const (
	mouseSensitivity = 0.1
	reach            = 4.5
)

var playerHalf = mgl32.Vec3{0.3, 0.9, 0.3}

func (v *viewer) setupInput() {
	v.window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if v.firstMouse {
			v.lastX, v.lastY = xpos, ypos
			v.firstMouse = false
			return
		}
		dx, dy := xpos-v.lastX, v.lastY-ypos
		v.lastX, v.lastY = xpos, ypos
		v.cam.Turn(float32(dx*mouseSensitivity), float32(dy*mouseSensitivity))
	})

	v.window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		hit, ok := v.sess.World.BlockRaytrace(v.cam.Position, v.cam.Forward(), reach)
		if !ok {
			return
		}
		switch button {
		case glfw.MouseButtonLeft:
			v.sess.World.SetBlock(hit.Block.X, hit.Block.Y, hit.Block.Z, block.Air)
		case glfw.MouseButtonRight:
			p := hit.Adjacent()
			center := mgl32.Vec3{float32(p.X), float32(p.Y), float32(p.Z)}
			// refuse to place a block inside the camera box
			if boxesOverlap(center, mgl32.Vec3{0.5, 0.5, 0.5}, v.cam.Position, playerHalf) {
				return
			}
			v.sess.World.SetBlock(p.X, p.Y, p.Z, block.Stone)
		}
	})

	v.window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
		if key == glfw.KeyF && action == glfw.Press {
			v.noclip = !v.noclip
		}
	})

	v.window.SetFramebufferSizeCallback(func(w *glfw.Window, fbWidth, fbHeight int) {
		gl.Viewport(0, 0, int32(fbWidth), int32(fbHeight))
		if fbHeight > 0 {
			v.cam.AspectRatio = float32(fbWidth) / float32(fbHeight)
		}
	})
}

// move applies WASD/space/shift movement for dt seconds, one axis at a
// time so the camera slides along walls.
func (v *viewer) move(dt float32) {
	fwd := v.cam.Forward()
	fwd[1] = 0
	if fwd.Len() > 0 {
		fwd = fwd.Normalize()
	}
	right := v.cam.Right()

	var wish mgl32.Vec3
	keys := []struct {
		key glfw.Key
		dir mgl32.Vec3
	}{
		{glfw.KeyW, fwd},
		{glfw.KeyS, fwd.Mul(-1)},
		{glfw.KeyD, right},
		{glfw.KeyA, right.Mul(-1)},
		{glfw.KeySpace, mgl32.Vec3{0, 1, 0}},
		{glfw.KeyLeftShift, mgl32.Vec3{0, -1, 0}},
	}
	for _, k := range keys {
		if v.window.GetKey(k.key) == glfw.Press {
			wish = wish.Add(k.dir)
		}
	}
	if wish.Len() == 0 {
		return
	}
	delta := wish.Normalize().Mul(v.speed * dt)
	for axis := 0; axis < 3; axis++ {
		next := v.cam.Position
		next[axis] += delta[axis]
		if v.noclip || !physics.Collides(v.sess.World, next, playerHalf) {
			v.cam.Position = next
		}
	}
}

func boxesOverlap(a, ha, b, hb mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		if a[i]-ha[i] >= b[i]+hb[i] || a[i]+ha[i] <= b[i]-hb[i] {
			return false
		}
	}
	return true
}
