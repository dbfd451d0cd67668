// Package patch provides parametric surfaces implementing [subd.Patch] in
// vectorized form. Patches are parametrized over the unit square, or for
// [Triangle] over the unit triangle with corners (0,0), (1,0) and (0,1).
package patch

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

var (
	errEmptyBuffers         = errors.New("empty buffers")
	errMismatchBufferLength = errors.New("parameter and output buffer length mismatch")
)

func checkBuffers(uv, dst int) error {
	if uv != dst {
		return errMismatchBufferLength
	} else if uv == 0 {
		return errEmptyBuffers
	}
	return nil
}

// Bilinear is the bilinear patch interpolating four corners. (u,v)=(0,0) maps to P00 and (1,1) to P11.
type Bilinear struct {
	P00, P10, P01, P11 ms3.Vec
}

// Evaluate implements [subd.Patch].
func (b *Bilinear) Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(pos)); err != nil {
		return err
	}
	for i, p := range uv {
		pos[i] = bilerp(b.P00, b.P10, b.P01, b.P11, p.X, p.Y)
	}
	return nil
}

// EvaluateNormals implements [subd.NormalPatch].
func (b *Bilinear) EvaluateNormals(uv []ms2.Vec, normals []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(normals)); err != nil {
		return err
	}
	e0 := ms3.Sub(b.P10, b.P00)
	e1 := ms3.Sub(b.P11, b.P01)
	f0 := ms3.Sub(b.P01, b.P00)
	f1 := ms3.Sub(b.P11, b.P10)
	for i, p := range uv {
		du := ms3.Add(ms3.Scale(1-p.Y, e0), ms3.Scale(p.Y, e1))
		dv := ms3.Add(ms3.Scale(1-p.X, f0), ms3.Scale(p.X, f1))
		normals[i] = unitOrZero(ms3.Cross(du, dv))
	}
	return nil
}

// Triangle is the flat triangle mapping parametric coordinate (0,0) to A, (1,0) to B and (0,1) to C.
type Triangle struct {
	A, B, C ms3.Vec
}

// Evaluate implements [subd.Patch].
func (t *Triangle) Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(pos)); err != nil {
		return err
	}
	for i, p := range uv {
		a := ms3.Scale(1-p.X-p.Y, t.A)
		b := ms3.Scale(p.X, t.B)
		c := ms3.Scale(p.Y, t.C)
		pos[i] = ms3.Add(a, ms3.Add(b, c))
	}
	return nil
}

// EvaluateNormals implements [subd.NormalPatch].
func (t *Triangle) EvaluateNormals(uv []ms2.Vec, normals []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(normals)); err != nil {
		return err
	}
	n := unitOrZero(ms3.Cross(ms3.Sub(t.B, t.A), ms3.Sub(t.C, t.A)))
	for i := range normals {
		normals[i] = n
	}
	return nil
}

// Func adapts a function of the parametric coordinate to a [subd.Patch].
// The function must be safe for concurrent use when dicing concurrently.
type Func func(uv ms2.Vec) ms3.Vec

// Evaluate implements [subd.Patch].
func (f Func) Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(pos)); err != nil {
		return err
	}
	for i, p := range uv {
		pos[i] = f(p)
	}
	return nil
}

func bilerp(p00, p10, p01, p11 ms3.Vec, u, v float32) ms3.Vec {
	d0 := ms3.Scale((1-u)*(1-v), p00)
	d1 := ms3.Scale(u*(1-v), p10)
	d2 := ms3.Scale((1-u)*v, p01)
	d3 := ms3.Scale(u*v, p11)
	return ms3.Add(ms3.Add(d0, d1), ms3.Add(d2, d3))
}

// unitOrZero normalizes v. Degenerate vectors yield the zero vector.
func unitOrZero(v ms3.Vec) ms3.Vec {
	n := ms3.Norm(v)
	if n == 0 || math32.IsNaN(n) {
		return ms3.Vec{}
	}
	return ms3.Scale(1/n, v)
}
