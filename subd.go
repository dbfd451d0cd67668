// Package subd implements adaptive edge-based dicing of parametric surface
// patches into triangle meshes. Subpatches are diced with independent
// tessellation factors per edge so that neighbouring subpatches of different
// detail meet without cracks.
//
// The root package holds the capabilities consumed by the dicers ([Patch], [Camera]),
// the tessellation parameters ([Params]) and the output buffers ([Mesh]).
// Dicing itself lives in package dice and the splitting driver in package split.
package subd

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Patch is a parametric surface evaluated in vectorized form.
type Patch interface {
	// Evaluate evaluates the surface at the parametric coordinates uv and
	// stores the resulting positions in pos. uv and pos must be of same length.
	//
	// userData facilitates getting data to the evaluator, it is passed through untouched by the dicers.
	Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error
}

// NormalPatch is a [Patch] that can also provide surface normals. Dicers
// store normals in [Mesh.N] when the patch implements this interface.
type NormalPatch interface {
	Patch
	// EvaluateNormals stores the unit surface normal at each of uv in normals.
	EvaluateNormals(uv []ms2.Vec, normals []ms3.Vec, userData any) error
}

// Camera projects world space points to raster space.
type Camera interface {
	// Project returns the raster position of world in X and Y. Z holds the camera depth.
	Project(world ms3.Vec) ms3.Vec
	// Visible reports whether world lies in front of the camera and inside the raster.
	Visible(world ms3.Vec) bool
}

// Params configures a dicing pass. Params is read-only once handed to a dicer
// and may be shared between goroutines.
type Params struct {
	// TestSteps is the number of samples taken along an edge when estimating
	// its projected length. Must be at least 2.
	TestSteps int
	// SplitThreshold is the tolerated difference between the uniform and the
	// worst-case segment count of an edge before it is marked for splitting.
	SplitThreshold int
	// DicingRate is the target size of a segment: raster pixels when Camera is set,
	// object space units otherwise.
	DicingRate float32
	// MaxLevel caps the recursive subdivision depth: an edge of the unit
	// parameter domain is split in at most 2^MaxLevel segments.
	MaxLevel int
	// MaxT caps the number of segments along a single edge.
	MaxT int
	// Camera is used for projected size estimation. May be nil.
	Camera Camera
	// OffscreenDicingScale multiplies DicingRate for edges with no sample
	// visible to Camera. Values of one or less disable it.
	OffscreenDicingScale float32
	// ObjectToWorld transforms patch space positions to world space before projection.
	// The zero value is treated as the identity.
	ObjectToWorld ms3.Mat4
}

// ErrBadParams is returned by [Params.Validate] for invalid configurations.
var ErrBadParams = errors.New("invalid dicing parameters")

// DefaultParams returns the parameters most dicing passes start out with.
func DefaultParams() Params {
	return Params{
		TestSteps:      3,
		SplitThreshold: 1,
		DicingRate:     0.1,
		MaxLevel:       12,
		MaxT:           128,
	}
}

// Validate checks the parameters for configuration errors.
func (p *Params) Validate() error {
	switch {
	case p.DicingRate <= 0 || math32.IsNaN(p.DicingRate) || math32.IsInf(p.DicingRate, 0):
		return fmt.Errorf("%w: dicing rate %v must be positive", ErrBadParams, p.DicingRate)
	case p.MaxLevel < 0 || p.MaxLevel > 30:
		return fmt.Errorf("%w: max level %d out of range [0, 30]", ErrBadParams, p.MaxLevel)
	case p.MaxT < 1:
		return fmt.Errorf("%w: max edge segments %d must be at least 1", ErrBadParams, p.MaxT)
	case p.TestSteps < 2:
		return fmt.Errorf("%w: test steps %d must be at least 2", ErrBadParams, p.TestSteps)
	case p.SplitThreshold < 0:
		return fmt.Errorf("%w: negative split threshold %d", ErrBadParams, p.SplitThreshold)
	case math32.IsNaN(p.OffscreenDicingScale) || p.OffscreenDicingScale < 0:
		return fmt.Errorf("%w: bad offscreen dicing scale %v", ErrBadParams, p.OffscreenDicingScale)
	}
	return nil
}

// ToWorld transforms a patch space position to world space.
func (p *Params) ToWorld(pos ms3.Vec) ms3.Vec {
	if p.ObjectToWorld == (ms3.Mat4{}) {
		return pos
	}
	return p.ObjectToWorld.MulPosition(pos)
}

// Project transforms a patch space position to world space and, if a camera is
// set, projects it to raster space with depth discarded.
func (p *Params) Project(pos ms3.Vec) ms3.Vec {
	pos = p.ToWorld(pos)
	if p.Camera != nil {
		pos = p.Camera.Project(pos)
		pos.Z = 0
	}
	return pos
}
