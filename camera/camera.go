// Package camera implements pinhole cameras satisfying [subd.Camera] for
// screen-space adaptive dicing.
package camera

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// Perspective is a pinhole camera looking from an eye point towards a target.
// Raster coordinates have their origin at the top-left corner of the image
// with Y pointing down, depth is the distance along the viewing direction.
type Perspective struct {
	eye                   ms3.Vec
	right, up, forward    ms3.Vec
	focal                 float32 // In pixels.
	width, height         float32
	halfWidth, halfHeight float32
	near                  float32
}

// PerspectiveConfig configures a [Perspective] camera.
type PerspectiveConfig struct {
	Eye, Target ms3.Vec
	// Up is the approximate up direction of the image. Defaults to +Z.
	Up ms3.Vec
	// FOV is the vertical field of view in radians.
	FOV float32
	// Width and Height of the raster in pixels.
	Width, Height int
	// Near is the minimum depth. Points closer to the camera are projected as
	// if they were at this depth. Defaults to 1e-3.
	Near float32
}

// NewPerspective returns a perspective camera from its configuration.
func NewPerspective(cfg PerspectiveConfig) (*Perspective, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("bad raster size %dx%d", cfg.Width, cfg.Height)
	} else if !(cfg.FOV > 0 && cfg.FOV < math32.Pi) {
		return nil, fmt.Errorf("field of view %v out of range (0, π)", cfg.FOV)
	} else if cfg.Near < 0 {
		return nil, errors.New("negative near depth")
	}
	if cfg.Up == (ms3.Vec{}) {
		cfg.Up = ms3.Vec{Z: 1}
	}
	if cfg.Near == 0 {
		cfg.Near = 1e-3
	}
	dir := ms3.Sub(cfg.Target, cfg.Eye)
	dist := ms3.Norm(dir)
	if dist == 0 {
		return nil, errors.New("camera eye and target coincide")
	}
	forward := ms3.Scale(1/dist, dir)
	right := ms3.Cross(forward, cfg.Up)
	rnorm := ms3.Norm(right)
	if rnorm < 1e-6 {
		return nil, errors.New("camera up direction parallel to view direction")
	}
	right = ms3.Scale(1/rnorm, right)
	up := ms3.Cross(right, forward)
	w, h := float32(cfg.Width), float32(cfg.Height)
	return &Perspective{
		eye:        cfg.Eye,
		right:      right,
		up:         up,
		forward:    forward,
		focal:      0.5 * h / math32.Tan(cfg.FOV/2),
		width:      w,
		height:     h,
		halfWidth:  w / 2,
		halfHeight: h / 2,
		near:       cfg.Near,
	}, nil
}

// Project implements [subd.Camera]. The returned Z holds the depth of world
// before clamping to the near depth.
func (c *Perspective) Project(world ms3.Vec) ms3.Vec {
	d := ms3.Sub(world, c.eye)
	x := ms3.Dot(d, c.right)
	y := ms3.Dot(d, c.up)
	depth := ms3.Dot(d, c.forward)
	z := max(depth, c.near)
	return ms3.Vec{
		X: c.halfWidth + c.focal*x/z,
		Y: c.halfHeight - c.focal*y/z,
		Z: depth,
	}
}

// Visible implements [subd.Camera].
func (c *Perspective) Visible(world ms3.Vec) bool {
	p := c.Project(world)
	return p.Z > c.near && p.X >= 0 && p.X < c.width && p.Y >= 0 && p.Y < c.height
}

// PixelSize returns the world space size a pixel covers at the given depth.
func (c *Perspective) PixelSize(depth float32) float32 {
	return max(depth, c.near) / c.focal
}
