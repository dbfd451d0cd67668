package dice

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
)

// QuadSubPatch is a rectangular region of a patch's parameter domain. Its
// corners are labeled by their position in the subpatch's local domain:
//
//	           tu1
//	    P01 --------- P11
//	    |               |
//	tv0 |               | tv1
//	    |               |
//	    P00 --------- P10
//	           tu0
type QuadSubPatch struct {
	Patch              subd.Patch
	P00, P10, P01, P11 ms2.Vec
	// Spans optionally places the vertices of each side, indexed by [QuadSide].
	Spans [4]SideSpan
}

// QuadEdgeFactors holds the number of segments each side of a [QuadSubPatch] is split into.
type QuadEdgeFactors struct {
	Tu0, Tu1, Tv0, Tv1 int
}

// QuadSide identifies a side of a [QuadSubPatch].
type QuadSide uint8

const (
	SideU0 QuadSide = iota // P00-P10, split in Tu0 segments.
	SideU1                 // P01-P11, split in Tu1 segments.
	SideV0                 // P00-P01, split in Tv0 segments.
	SideV1                 // P10-P11, split in Tv1 segments.
)

// QuadDice dices quadrilateral subpatches. It tessellates the subpatch into a
// regular Mu×Mv grid and stitches the grid border to each side's own
// tessellation.
type QuadDice struct {
	EdgeDice
	// Anisotropic enables scaling of the grid resolution by [QuadDice.ScaleFactor]
	// when the parameters have a camera set.
	Anisotropic bool

	corners [4]int
	mu, mv  int
	grid    []int
	sides   [4][]int
	inner   []int
	projUV  [9]ms2.Vec
	projP   [9]ms3.Vec
}

// NewQuadDice returns a quad dicer writing to mesh.
func NewQuadDice(params *subd.Params, mesh *subd.Mesh) *QuadDice {
	q := new(QuadDice)
	q.Reset(params, mesh)
	return q
}

// CalcSize returns the exact amount of vertices and triangles Dice emits for
// the edge factors with a Mu×Mv grid. It panics on factors below one or on a
// grid of a single segment facing a side of several segments.
func (q *QuadDice) CalcSize(ef QuadEdgeFactors, Mu, Mv int) (numVerts, numTris int) {
	checkFactor(ef.Tu0, Mu)
	checkFactor(ef.Tu1, Mu)
	checkFactor(ef.Tv0, Mv)
	checkFactor(ef.Tv1, Mv)
	// Grid corners are the subpatch corners, sides add their interior vertices.
	numVerts = (Mu+1)*(Mv+1) + (ef.Tu0 - 1) + (ef.Tu1 - 1) + (ef.Tv0 - 1) + (ef.Tv1 - 1)
	// Each stitch band joins t+1 side vertices to M-1 grid vertices.
	numTris = 2*Mu*Mv + (ef.Tu0 + Mu - 2) + (ef.Tu1 + Mu - 2) + (ef.Tv0 + Mv - 2) + (ef.Tv1 + Mv - 2)
	return numVerts, numTris
}

// GridSize returns the grid resolution Dice uses for the subpatch: the largest
// factor in each direction, scaled by ScaleFactor if Anisotropic is set and
// clamped to MaxT. The result is never below the factors themselves.
func (q *QuadDice) GridSize(sub QuadSubPatch, ef QuadEdgeFactors) (Mu, Mv int, err error) {
	tu := max(ef.Tu0, ef.Tu1)
	tv := max(ef.Tv0, ef.Tv1)
	Mu, Mv = tu, tv
	if q.Anisotropic && q.params.Camera != nil {
		S, err := q.ScaleFactor(sub, ef, Mu, Mv)
		if err != nil {
			return 0, 0, err
		}
		Mu = scaleGrid(S, Mu, q.params.MaxT)
		Mv = scaleGrid(S, Mv, q.params.MaxT)
	}
	return clampGrid(Mu, tu, q.params.MaxT), clampGrid(Mv, tv, q.params.MaxT), nil
}

// DicedSize returns the amount of vertices and triangles Dice will emit for the subpatch.
func (q *QuadDice) DicedSize(sub QuadSubPatch, ef QuadEdgeFactors) (numVerts, numTris int, err error) {
	Mu, Mv, err := q.GridSize(sub, ef)
	if err != nil {
		return 0, 0, err
	}
	numVerts, numTris = q.CalcSize(ef, Mu, Mv)
	return numVerts, numTris, nil
}

// Reserve claims mesh space for dicing with the edge factors and grid size.
func (q *QuadDice) Reserve(ef QuadEdgeFactors, Mu, Mv int) {
	numVerts, numTris := q.CalcSize(ef, Mu, Mv)
	q.EdgeDice.Reserve(numVerts, numTris)
}

// MapUV maps the local subpatch coordinate (u,v) in [0,1]² to the patch's parameter domain.
func (q *QuadDice) MapUV(sub QuadSubPatch, u, v float32) ms2.Vec {
	d0 := ms2.Scale((1-u)*(1-v), sub.P00)
	d1 := ms2.Scale(u*(1-v), sub.P10)
	d2 := ms2.Scale((1-u)*v, sub.P01)
	d3 := ms2.Scale(u*v, sub.P11)
	return ms2.Add(ms2.Add(d0, d1), ms2.Add(d2, d3))
}

// EvalProjected evaluates the subpatch at the local coordinate (u,v) and
// projects it to raster space. Only used for size estimation.
func (q *QuadDice) EvalProjected(sub QuadSubPatch, u, v float32) (ms3.Vec, error) {
	uv := [1]ms2.Vec{q.MapUV(sub, u, v)}
	var P [1]ms3.Vec
	err := q.project(sub.Patch, uv[:], P[:])
	return P[0], err
}

// AddVert adds a vertex at the local subpatch coordinate (u,v).
func (q *QuadDice) AddVert(sub QuadSubPatch, u, v float32) int {
	return q.EdgeDice.AddVert(q.MapUV(sub, u, v))
}

// AddCorners adds the four subpatch corners in order 00, 10, 01, 11. Corners
// are placed at the exact corner parameters so neighbouring subpatches share them.
func (q *QuadDice) AddCorners(sub QuadSubPatch) {
	q.corners[0] = q.EdgeDice.AddVert(sub.P00)
	q.corners[1] = q.EdgeDice.AddVert(sub.P10)
	q.corners[2] = q.EdgeDice.AddVert(sub.P01)
	q.corners[3] = q.EdgeDice.AddVert(sub.P11)
}

// AddGrid adds the (Mu+1)×(Mv+1) grid in row-major order reusing the
// corners added by AddCorners, and its 2·Mu·Mv triangles.
func (q *QuadDice) AddGrid(sub QuadSubPatch, Mu, Mv int) {
	if Mu < 1 || Mv < 1 {
		panic(fmt.Sprintf("bad grid size %dx%d", Mu, Mv))
	}
	q.mu, q.mv = Mu, Mv
	n := (Mu + 1) * (Mv + 1)
	q.grid = slices.Grow(q.grid[:0], n)[:n]
	for j := 0; j <= Mv; j++ {
		for i := 0; i <= Mu; i++ {
			idx := j*(Mu+1) + i
			switch {
			case i == 0 && j == 0:
				q.grid[idx] = q.corners[0]
			case i == Mu && j == 0:
				q.grid[idx] = q.corners[1]
			case i == 0 && j == Mv:
				q.grid[idx] = q.corners[2]
			case i == Mu && j == Mv:
				q.grid[idx] = q.corners[3]
			default:
				u, v := gridCoord(i, j, Mu, Mv)
				q.grid[idx] = q.AddVert(sub, u, v)
			}
		}
	}
	for j := 0; j < Mv; j++ {
		for i := 0; i < Mu; i++ {
			i00 := q.gridAt(i, j)
			i10 := q.gridAt(i+1, j)
			i01 := q.gridAt(i, j+1)
			i11 := q.gridAt(i+1, j+1)
			q.AddTriangle(i00, i10, i11)
			q.AddTriangle(i00, i11, i01)
		}
	}
}

// AddSideU adds the vertices of the side P00-P10 (side=0) or P01-P11
// (side=1) split in tu segments and stitches it to the grid.
func (q *QuadDice) AddSideU(sub QuadSubPatch, Mu, Mv, tu, side int) {
	q.checkGrid(Mu, Mv)
	checkFactor(tu, Mu)
	inner := q.inner[:0]
	var s QuadSide
	var outer []int
	switch side {
	case 0:
		s = SideU0
		outer = q.appendEdge(q.sides[s][:0], sub.P00, sub.P10, q.corners[0], q.corners[1], tu, sub.Spans[s])
		for i := 1; i < Mu; i++ {
			inner = append(inner, q.gridAt(i, 0))
		}
	case 1:
		s = SideU1
		outer = q.appendEdge(q.sides[s][:0], sub.P11, sub.P01, q.corners[3], q.corners[2], tu, sub.Spans[s])
		for i := Mu - 1; i > 0; i-- {
			inner = append(inner, q.gridAt(i, Mv))
		}
	default:
		panic("bad side")
	}
	q.sides[s], q.inner = outer, inner
	q.StitchTriangles(outer, inner)
}

// AddSideV adds the vertices of the side P00-P01 (side=0) or P10-P11
// (side=1) split in tv segments and stitches it to the grid.
func (q *QuadDice) AddSideV(sub QuadSubPatch, Mu, Mv, tv, side int) {
	q.checkGrid(Mu, Mv)
	checkFactor(tv, Mv)
	inner := q.inner[:0]
	var s QuadSide
	var outer []int
	switch side {
	case 0:
		s = SideV0
		outer = q.appendEdge(q.sides[s][:0], sub.P01, sub.P00, q.corners[2], q.corners[0], tv, sub.Spans[s])
		for j := Mv - 1; j > 0; j-- {
			inner = append(inner, q.gridAt(0, j))
		}
	case 1:
		s = SideV1
		outer = q.appendEdge(q.sides[s][:0], sub.P10, sub.P11, q.corners[1], q.corners[3], tv, sub.Spans[s])
		for j := 1; j < Mv; j++ {
			inner = append(inner, q.gridAt(Mu, j))
		}
	default:
		panic("bad side")
	}
	q.sides[s], q.inner = outer, inner
	q.StitchTriangles(outer, inner)
}

// ScaleFactor estimates how much the grid resolution must grow so that
// triangles keep roughly the dicing rate's size in raster space on patches
// whose parametrization is stretched. The projected area is estimated as
// four times the largest of the subpatch's quarters.
func (q *QuadDice) ScaleFactor(sub QuadSubPatch, ef QuadEdgeFactors, Mu, Mv int) (float32, error) {
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			q.projUV[j*3+i] = q.MapUV(sub, float32(i)*0.5, float32(j)*0.5)
		}
	}
	err := q.project(sub.Patch, q.projUV[:], q.projP[:])
	if err != nil {
		return 0, err
	}
	P := func(i, j int) ms3.Vec { return q.projP[j*3+i] }
	A1 := QuadArea(P(0, 0), P(1, 0), P(0, 1), P(1, 1))
	A2 := QuadArea(P(1, 0), P(2, 0), P(1, 1), P(2, 1))
	A3 := QuadArea(P(0, 1), P(1, 1), P(0, 2), P(1, 2))
	A4 := QuadArea(P(1, 1), P(2, 1), P(1, 2), P(2, 2))
	Apatch := 4 * max(A1, A2, A3, A4)

	// Solve for the scale that yields Apatch/Atri triangles.
	rate := q.params.DicingRate
	Atri := 0.5 * rate * rate
	Ntris := Apatch / Atri
	N := 0.5 * (Ntris - float32(ef.Tu0+ef.Tu1+ef.Tv0+ef.Tv1))
	mu, mv := float32(Mu), float32(Mv)
	D := 4*N*mu*mv + (mu+mv)*(mu+mv)
	S := (mu + mv + math32.Sqrt(max(D, 0))) / (2 * mu * mv)
	return S, nil
}

// Dice tessellates the subpatch into the mesh. Vertex positions are
// evaluated in a single batch once topology is complete.
// If evaluation fails the error is returned wrapped and the reserved mesh
// range keeps valid triangles and parameters with unevaluated positions.
func (q *QuadDice) Dice(sub QuadSubPatch, ef QuadEdgeFactors) error {
	if sub.Patch == nil {
		panic("nil patch")
	}
	Mu, Mv, err := q.GridSize(sub, ef)
	if err != nil {
		return err
	}
	q.Reserve(ef, Mu, Mv)
	q.AddCorners(sub)
	q.AddGrid(sub, Mu, Mv)
	q.AddSideU(sub, Mu, Mv, ef.Tu0, 0)
	q.AddSideU(sub, Mu, Mv, ef.Tu1, 1)
	q.AddSideV(sub, Mu, Mv, ef.Tv0, 0)
	q.AddSideV(sub, Mu, Mv, ef.Tv1, 1)
	q.checkDone()
	return q.Evaluate(sub.Patch)
}

// Edge returns the vertex indices of a side as emitted by the last call to
// Dice, ordered from the corner with the lexicographically smaller parameter.
// Neighbouring subpatches sharing a side with the same factor return
// sequences whose vertices have identical positions.
func (q *QuadDice) Edge(side QuadSide) []int {
	return canonicalRing(q.mesh.UV, q.sides[side])
}

func (q *QuadDice) gridAt(i, j int) int {
	return q.grid[j*(q.mu+1)+i]
}

func (q *QuadDice) checkGrid(Mu, Mv int) {
	if Mu != q.mu || Mv != q.mv {
		panic(fmt.Sprintf("side grid %dx%d does not match added grid %dx%d", Mu, Mv, q.mu, q.mv))
	}
}

// gridCoord returns the local coordinate of grid vertex (i,j). Border
// vertices other than the corners are inset a quarter cell so the stitch
// bands between grid and sides never collapse onto the side.
func gridCoord(i, j, Mu, Mv int) (u, v float32) {
	u = float32(i) / float32(Mu)
	v = float32(j) / float32(Mv)
	hu := 0.25 / float32(Mu)
	hv := 0.25 / float32(Mv)
	switch {
	case j == 0:
		v = hv
	case j == Mv:
		v = 1 - hv
	}
	switch {
	case i == 0:
		u = hu
	case i == Mu:
		u = 1 - hu
	}
	return u, v
}

func canonicalRing(uv []ms2.Vec, ring []int) []int {
	ring = slices.Clone(ring)
	if len(ring) > 1 && lessVec(uv[ring[len(ring)-1]], uv[ring[0]]) {
		slices.Reverse(ring)
	}
	return ring
}

// checkFactor panics if edge factor t can not be stitched to a grid of M segments.
func checkFactor(t, M int) {
	if t < 1 || M < 1 {
		panic(fmt.Sprintf("edge factor %d and grid size %d must be positive", t, M))
	} else if M == 1 && t > 1 {
		panic(fmt.Sprintf("edge factor %d requires grid size above one", t))
	}
}

func scaleGrid(S float32, M, maxT int) int {
	if !(S > 0) || math32.IsInf(S, 0) {
		return M
	}
	m := S * float32(M)
	if maxT > 0 && m > float32(maxT) {
		return maxT
	}
	return ceilInt(m)
}

func clampGrid(M, tmax, maxT int) int {
	if maxT > 0 {
		M = min(M, maxT)
	}
	return max(M, tmax, 1)
}
