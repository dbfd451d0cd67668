package dice

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// QuadArea returns the area of the quadrilateral with corners a=00, b=10,
// c=01 and d=11, walked as a, b, d, c. It is the vector area of the polygon
// which reduces to the shoelace formula for points projected onto the XY plane.
// Degenerate and self-intersecting quads yield zero or a reduced area.
func QuadArea(a, b, c, d ms3.Vec) float32 {
	s := ms3.Cross(a, b)
	s = ms3.Add(s, ms3.Cross(b, d))
	s = ms3.Add(s, ms3.Cross(d, c))
	s = ms3.Add(s, ms3.Cross(c, a))
	return 0.5 * ms3.Norm(s)
}

// TriangleArea returns the area of the triangle abc.
func TriangleArea(a, b, c ms3.Vec) float32 {
	return 0.5 * ms3.Norm(ms3.Cross(ms3.Sub(b, a), ms3.Sub(c, a)))
}

func lerp(a, b ms2.Vec, t float32) ms2.Vec {
	return ms2.Add(ms2.Scale(1-t, a), ms2.Scale(t, b))
}

// lessVec orders parametric coordinates by X then Y.
func lessVec(a, b ms2.Vec) bool {
	return a.X < b.X || (a.X == b.X && a.Y < b.Y)
}

func ceilInt(f float32) int {
	return int(math32.Ceil(f))
}
