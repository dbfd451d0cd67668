package dice

import (
	"fmt"
	"slices"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/subd"
)

// TriangleSubPatch is a triangular region of a patch's parameter domain:
//
//	      Pw
//	      /\
//	  tv /  \ tu
//	    /    \
//	   /      \
//	Pu -------- Pv
//	      tw
type TriangleSubPatch struct {
	Patch      subd.Patch
	Pu, Pv, Pw ms2.Vec
	// Spans optionally places the vertices of each side, indexed by [TriangleSide].
	Spans [3]SideSpan
}

// TriangleEdgeFactors holds the number of segments each side of a [TriangleSubPatch] is split into.
type TriangleEdgeFactors struct {
	Tu, Tv, Tw int
}

// TriangleSide identifies a side of a [TriangleSubPatch].
type TriangleSide uint8

const (
	SideU TriangleSide = iota // Pv-Pw, split in Tu segments.
	SideV                     // Pw-Pu, split in Tv segments.
	SideW                     // Pu-Pv, split in Tw segments.
)

// TriangleDice dices triangular subpatches into a triangular grid of M
// segments per side stitched to the tessellation of each side.
type TriangleDice struct {
	EdgeDice

	m     int
	grid  []int
	sides [3][]int
	inner []int
}

// NewTriangleDice returns a triangle dicer writing to mesh.
func NewTriangleDice(params *subd.Params, mesh *subd.Mesh) *TriangleDice {
	t := new(TriangleDice)
	t.Reset(params, mesh)
	return t
}

// CalcSize returns the exact amount of vertices and triangles Dice emits for
// the edge factors with a grid of M segments per side.
func (t *TriangleDice) CalcSize(ef TriangleEdgeFactors, M int) (numVerts, numTris int) {
	checkFactor(ef.Tu, M)
	checkFactor(ef.Tv, M)
	checkFactor(ef.Tw, M)
	numVerts = (M+1)*(M+2)/2 + (ef.Tu - 1) + (ef.Tv - 1) + (ef.Tw - 1)
	numTris = M*M + (ef.Tu + M - 2) + (ef.Tv + M - 2) + (ef.Tw + M - 2)
	return numVerts, numTris
}

// GridSize returns the grid resolution used by Dice: the largest edge factor clamped to MaxT.
func (t *TriangleDice) GridSize(ef TriangleEdgeFactors) int {
	tmax := max(ef.Tu, ef.Tv, ef.Tw)
	return clampGrid(tmax, tmax, t.params.MaxT)
}

// DicedSize returns the amount of vertices and triangles Dice will emit for the edge factors.
func (t *TriangleDice) DicedSize(ef TriangleEdgeFactors) (numVerts, numTris int) {
	return t.CalcSize(ef, t.GridSize(ef))
}

// Reserve claims mesh space for dicing with the edge factors and grid size.
func (t *TriangleDice) Reserve(ef TriangleEdgeFactors, M int) {
	numVerts, numTris := t.CalcSize(ef, M)
	t.EdgeDice.Reserve(numVerts, numTris)
}

// MapUV maps the barycentric weights (u,v) of Pu and Pv to the patch's
// parameter domain. The weight of Pw is 1-u-v.
func (t *TriangleDice) MapUV(sub TriangleSubPatch, u, v float32) ms2.Vec {
	d0 := ms2.Scale(u, sub.Pu)
	d1 := ms2.Scale(v, sub.Pv)
	d2 := ms2.Scale(1-u-v, sub.Pw)
	return ms2.Add(ms2.Add(d0, d1), d2)
}

// AddVert adds a vertex at the barycentric weights (u,v).
func (t *TriangleDice) AddVert(sub TriangleSubPatch, u, v float32) int {
	return t.EdgeDice.AddVert(t.MapUV(sub, u, v))
}

// AddGrid adds the triangular grid of M segments per side: M+1 rows where row r
// holds r+1 vertices starting at Pw, (M+1)(M+2)/2 vertices in total, and its M² triangles.
// The grid corners are placed at the exact subpatch corners.
func (t *TriangleDice) AddGrid(sub TriangleSubPatch, M int) {
	if M < 1 {
		panic(fmt.Sprintf("bad grid size %d", M))
	}
	t.m = M
	n := (M + 1) * (M + 2) / 2
	t.grid = slices.Grow(t.grid[:0], n)[:n]
	for r := 0; r <= M; r++ {
		for k := 0; k <= r; k++ {
			idx := r*(r+1)/2 + k
			switch {
			case r == 0:
				t.grid[idx] = t.EdgeDice.AddVert(sub.Pw)
			case r == M && k == 0:
				t.grid[idx] = t.EdgeDice.AddVert(sub.Pu)
			case r == M && k == M:
				t.grid[idx] = t.EdgeDice.AddVert(sub.Pv)
			default:
				u, v := triGridCoord(r, k, M)
				t.grid[idx] = t.AddVert(sub, u, v)
			}
		}
	}
	for r := 0; r < M; r++ {
		for k := 0; k <= r; k++ {
			t.AddTriangle(t.gridAt(r, k), t.gridAt(r+1, k), t.gridAt(r+1, k+1))
			if k < r {
				t.AddTriangle(t.gridAt(r, k), t.gridAt(r+1, k+1), t.gridAt(r, k+1))
			}
		}
	}
}

// AddSide adds the vertices of a side split in tf segments and stitches it to the grid.
func (t *TriangleDice) AddSide(sub TriangleSubPatch, M, tf int, side TriangleSide) {
	if M != t.m {
		panic(fmt.Sprintf("side grid %d does not match added grid %d", M, t.m))
	}
	checkFactor(tf, M)
	cu, cv, cw := t.gridAt(M, 0), t.gridAt(M, M), t.gridAt(0, 0)
	inner := t.inner[:0]
	var outer []int
	switch side {
	case SideW:
		outer = t.appendEdge(t.sides[side][:0], sub.Pu, sub.Pv, cu, cv, tf, sub.Spans[side])
		for k := 1; k < M; k++ {
			inner = append(inner, t.gridAt(M, k))
		}
	case SideU:
		outer = t.appendEdge(t.sides[side][:0], sub.Pv, sub.Pw, cv, cw, tf, sub.Spans[side])
		for r := M - 1; r > 0; r-- {
			inner = append(inner, t.gridAt(r, r))
		}
	case SideV:
		outer = t.appendEdge(t.sides[side][:0], sub.Pw, sub.Pu, cw, cu, tf, sub.Spans[side])
		for r := 1; r < M; r++ {
			inner = append(inner, t.gridAt(r, 0))
		}
	default:
		panic("bad side")
	}
	t.sides[side], t.inner = outer, inner
	t.StitchTriangles(outer, inner)
}

// Dice tessellates the subpatch into the mesh. See [QuadDice.Dice] for
// the state of the mesh when patch evaluation fails.
func (t *TriangleDice) Dice(sub TriangleSubPatch, ef TriangleEdgeFactors) error {
	if sub.Patch == nil {
		panic("nil patch")
	}
	M := t.GridSize(ef)
	t.Reserve(ef, M)
	t.AddGrid(sub, M)
	t.AddSide(sub, M, ef.Tw, SideW)
	t.AddSide(sub, M, ef.Tu, SideU)
	t.AddSide(sub, M, ef.Tv, SideV)
	t.checkDone()
	return t.Evaluate(sub.Patch)
}

// Edge returns the vertex indices of a side as emitted by the last call to
// Dice, ordered from the corner with the lexicographically smaller parameter.
func (t *TriangleDice) Edge(side TriangleSide) []int {
	return canonicalRing(t.mesh.UV, t.sides[side])
}

func (t *TriangleDice) gridAt(r, k int) int {
	return t.grid[r*(r+1)/2+k]
}

// triGridCoord returns the barycentric weights of Pu and Pv at grid vertex
// (r,k). Border vertices other than the corners are inset a quarter cell.
func triGridCoord(r, k, M int) (u, v float32) {
	fM := float32(M)
	u = float32(r-k) / fM
	v = float32(k) / fM
	h := 0.25 / fM
	switch {
	case r == M: // On Pu-Pv.
		u, v = (1-h)*u, (1-h)*v
	case k == 0: // On Pw-Pu.
		u, v = (1-h)*u, h
	case k == r: // On Pv-Pw.
		u, v = h, (1-h)*v
	}
	return u, v
}
