package patch

import (
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Bezier is a bicubic Bézier patch. CP[j][i] is the control point of row j
// along v and column i along u, so CP[0][0], CP[0][3], CP[3][0] and CP[3][3]
// are the patch corners at (0,0), (1,0), (0,1) and (1,1).
type Bezier struct {
	CP [4][4]ms3.Vec
}

// NewBezierGrid returns the flat Bézier patch spanning the rectangle with
// corners min and max on the XY plane with Z=0. Control points are evenly
// spaced so the parametrization is uniform.
func NewBezierGrid(min, max ms2.Vec) *Bezier {
	var b Bezier
	sz := ms2.Sub(max, min)
	for j := range b.CP {
		for i := range b.CP[j] {
			b.CP[j][i] = ms3.Vec{
				X: min.X + sz.X*float32(i)/3,
				Y: min.Y + sz.Y*float32(j)/3,
			}
		}
	}
	return &b
}

// Evaluate implements [subd.Patch].
func (b *Bezier) Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(pos)); err != nil {
		return err
	}
	for k, p := range uv {
		bu := bernstein(p.X)
		bv := bernstein(p.Y)
		pos[k] = b.sum(&bu, &bv)
	}
	return nil
}

// EvaluateNormals implements [subd.NormalPatch]. Normals are the normalized
// cross product of the partial derivatives. Where the derivatives vanish or
// are parallel, such as at collapsed corners, the normal is zero.
func (b *Bezier) EvaluateNormals(uv []ms2.Vec, normals []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(normals)); err != nil {
		return err
	}
	for k, p := range uv {
		bu, bv := bernstein(p.X), bernstein(p.Y)
		du, dv := bernsteinDeriv(p.X), bernsteinDeriv(p.Y)
		Pu := b.sum(&du, &bv)
		Pv := b.sum(&bu, &dv)
		normals[k] = unitOrZero(ms3.Cross(Pu, Pv))
	}
	return nil
}

func (b *Bezier) sum(wu, wv *[4]float32) ms3.Vec {
	var p ms3.Vec
	for j := range b.CP {
		var row ms3.Vec
		for i := range b.CP[j] {
			row = ms3.Add(row, ms3.Scale(wu[i], b.CP[j][i]))
		}
		p = ms3.Add(p, ms3.Scale(wv[j], row))
	}
	return p
}

// bernstein returns the cubic Bernstein basis at t.
func bernstein(t float32) [4]float32 {
	s := 1 - t
	return [4]float32{s * s * s, 3 * t * s * s, 3 * t * t * s, t * t * t}
}

// bernsteinDeriv returns the derivative of the cubic Bernstein basis at t.
func bernsteinDeriv(t float32) [4]float32 {
	s := 1 - t
	return [4]float32{-3 * s * s, 3*s*s - 6*t*s, 6*t*s - 3*t*t, 3 * t * t}
}
