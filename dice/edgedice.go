// Package dice implements edge-based dicing of quadrilateral and triangular
// subpatches with independent tessellation factors per edge, in the manner of
// DX11 tessellation and the DiagSplit paper. A subpatch is diced into a regular
// grid which is then stitched to the true tessellation of each of its edges,
// so neighbouring subpatches that agree on the factor of a shared edge meet
// without cracks regardless of their interior resolution.
//
// Dicers are not safe for concurrent use. Use one dicer per goroutine writing
// to disjoint regions of a [subd.Mesh], see [EdgeDice.SetRegion].
package dice

import (
	"fmt"
	"slices"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
)

// EdgeDice holds the vertex and triangle bookkeeping shared by [QuadDice] and
// [TriangleDice] and implements the band stitching between a subpatch's grid
// and its edges.
type EdgeDice struct {
	params *subd.Params
	mesh   *subd.Mesh
	// UserData is passed through to every [subd.Patch] evaluation.
	UserData any

	// Write cursors and the end of the reserved range.
	vertOffset, vertEnd int
	triOffset, triEnd   int
	// Start of the current reservation. Vertices in [vertStart, vertOffset)
	// are pending evaluation.
	vertStart, triStart int

	// Optional pre-grown mesh region reservations are carved from.
	hasRegion            bool
	regionVert, regionVE int
	regionTri, regionTE  int
}

// Reset sets the parameters and output mesh of the dicer and clears its state.
func (ed *EdgeDice) Reset(params *subd.Params, mesh *subd.Mesh) {
	if params == nil || mesh == nil {
		panic("nil params or mesh")
	}
	*ed = EdgeDice{params: params, mesh: mesh, UserData: ed.UserData}
}

// Params returns the tessellation parameters the dicer was configured with.
func (ed *EdgeDice) Params() *subd.Params { return ed.params }

// Mesh returns the mesh the dicer writes to.
func (ed *EdgeDice) Mesh() *subd.Mesh { return ed.mesh }

// SetRegion restricts subsequent reservations to a region of the mesh that was
// already grown by the caller with [subd.Mesh.Grow]. Reservations are carved
// sequentially from the start of the region. This allows several dicers to
// write to the same mesh concurrently as long as their regions do not overlap.
func (ed *EdgeDice) SetRegion(vertStart, numVerts, triStart, numTris int) {
	if vertStart < 0 || numVerts < 0 || triStart < 0 || numTris < 0 {
		panic("negative mesh region")
	} else if vertStart+numVerts > len(ed.mesh.P) || triStart+numTris > len(ed.mesh.Tris) {
		panic("mesh region out of bounds, grow the mesh first")
	}
	ed.hasRegion = true
	ed.regionVert, ed.regionVE = vertStart, vertStart+numVerts
	ed.regionTri, ed.regionTE = triStart, triStart+numTris
}

// ClearRegion makes subsequent reservations grow the mesh.
func (ed *EdgeDice) ClearRegion() {
	ed.hasRegion = false
}

// Offsets returns the current vertex and triangle write cursors.
func (ed *EdgeDice) Offsets() (vertOffset, triOffset int) {
	return ed.vertOffset, ed.triOffset
}

// Reserve claims space for numVerts vertices and numTris triangles and sets the
// write cursors to its start. Space is taken from the region set with SetRegion
// or else by growing the mesh. Reserve panics on negative counts or if the
// region is exhausted.
func (ed *EdgeDice) Reserve(numVerts, numTris int) {
	if numVerts < 0 || numTris < 0 {
		panic(fmt.Sprintf("negative reserve %d verts %d tris", numVerts, numTris))
	}
	if ed.hasRegion {
		if ed.regionVert+numVerts > ed.regionVE || ed.regionTri+numTris > ed.regionTE {
			panic("reserve exceeds mesh region")
		}
		ed.vertOffset, ed.triOffset = ed.regionVert, ed.regionTri
		ed.regionVert += numVerts
		ed.regionTri += numTris
	} else {
		ed.vertOffset, ed.triOffset = ed.mesh.Grow(numVerts, numTris)
	}
	ed.vertStart, ed.triStart = ed.vertOffset, ed.triOffset
	ed.vertEnd = ed.vertOffset + numVerts
	ed.triEnd = ed.triOffset + numTris
}

// AddVert adds a vertex at the patch parametric coordinate uv and returns its
// index. The position is evaluated for all vertices of the reservation at
// once by [EdgeDice.Evaluate]. AddVert panics past the reserved capacity.
func (ed *EdgeDice) AddVert(uv ms2.Vec) int {
	if ed.vertOffset >= ed.vertEnd {
		panic("vertex added past reserved capacity")
	}
	idx := ed.vertOffset
	ed.mesh.UV[idx] = uv
	ed.vertOffset++
	return idx
}

// AddTriangle adds a triangle referencing three vertices of the current reservation.
// It panics on degenerate index triples, out of range indices or past the reserved capacity.
func (ed *EdgeDice) AddTriangle(v0, v1, v2 int) {
	if ed.triOffset >= ed.triEnd {
		panic("triangle added past reserved capacity")
	} else if v0 == v1 || v1 == v2 || v0 == v2 {
		panic(fmt.Sprintf("degenerate triangle %d %d %d", v0, v1, v2))
	}
	lo, hi := ed.vertStart, ed.vertOffset
	if v0 < lo || v0 >= hi || v1 < lo || v1 >= hi || v2 < lo || v2 >= hi {
		panic(fmt.Sprintf("triangle %d %d %d references vertex outside [%d,%d)", v0, v1, v2, lo, hi))
	}
	ed.mesh.Tris[ed.triOffset] = [3]int{v0, v1, v2}
	ed.triOffset++
}

// StitchTriangles fills the band between a subpatch side and the adjacent row
// of its grid. outer holds the side's vertices from its first to its second
// corner, both included. inner holds the grid vertices strictly between the
// two corners, in the same direction. The grid must lie to the left of the
// outer ring's direction for triangles to wind counter-clockwise.
//
// Exactly len(outer)+len(inner)-2 triangles are emitted. The band is walked
// advancing whichever ring's next segment has the smaller midpoint, measured
// as a fraction of the side; ties advance the outer ring. The resulting
// topology depends only on the two ring lengths.
//
// A single inner vertex yields a fan from it to every outer segment. An empty
// inner ring has no vertex to fan from, so it is only valid for an outer ring
// of one segment and any longer outer ring panics. QuadDice and TriangleDice
// never stitch that case since their grids have at least as many segments as
// any of their sides.
func (ed *EdgeDice) StitchTriangles(outer, inner []int) {
	m, n := len(outer), len(inner)
	if m < 2 {
		panic("outer ring must contain both corners")
	} else if n == 0 {
		if m != 2 {
			panic(fmt.Sprintf("cannot stitch side of %d segments to a grid of one segment", m-1))
		}
		return // Side coincides with the grid border.
	}
	// Outer vertex i sits at i/(m-1), inner vertex j at (j+1)/(n+1).
	// Midpoints are compared cross-multiplied to keep the walk exact.
	i, j := 0, 0
	for i < m-1 || j < n-1 {
		var advanceOuter bool
		switch {
		case i == m-1:
			advanceOuter = false
		case j == n-1:
			advanceOuter = true
		default:
			advanceOuter = (2*i+1)*(n+1) <= (2*j+3)*(m-1)
		}
		if advanceOuter {
			ed.AddTriangle(outer[i], outer[i+1], inner[j])
			i++
		} else {
			ed.AddTriangle(outer[i], inner[j+1], inner[j])
			j++
		}
	}
}

// SideSpan places the vertices of a side on a segment of a longer edge so
// that subpatches splitting the edge at different places still produce
// identical vertices. A must be lexicographically smaller than B. Counting
// from the corner nearest to A, vertex k of the side sits at
// lerp(A, B, (Start+k)/T). The zero value spaces vertices uniformly between
// the side's corners.
type SideSpan struct {
	A, B  ms2.Vec
	Start int
	T     int
}

// Root returns the span of a side between corners a and b split in t segments:
// span itself if set, otherwise the span covering the whole side.
func (span SideSpan) Root(a, b ms2.Vec, t int) SideSpan {
	if span.T > 0 {
		return span
	}
	if lessVec(b, a) {
		a, b = b, a
	}
	return SideSpan{A: a, B: b, Start: 0, T: t}
}

// At returns the parametric coordinate of the k'th vertex of the edge the span belongs to.
func (span SideSpan) At(k int) ms2.Vec {
	return lerp(span.A, span.B, float32(k)/float32(span.T))
}

// appendEdge appends the vertex indices of the side from a to b split in t
// segments to dst, corner indices ia and ib included. Interior vertices are
// placed from the lexicographically smaller endpoint so that subpatches
// sharing the side produce bit-identical parameters.
func (ed *EdgeDice) appendEdge(dst []int, a, b ms2.Vec, ia, ib, t int, span SideSpan) []int {
	if span.T > 0 && span.Start+t > span.T {
		panic(fmt.Sprintf("side of %d segments overflows span %d+%d", t, span.Start, span.T))
	}
	dst = append(dst, ia)
	start := len(dst)
	reversed := lessVec(b, a)
	span = span.Root(a, b, t)
	for k := 1; k < t; k++ {
		dst = append(dst, ed.AddVert(span.At(span.Start+k)))
	}
	if reversed {
		slices.Reverse(dst[start:])
	}
	return append(dst, ib)
}

// Evaluate evaluates patch positions, and normals if supported, for all
// vertices added since the last call to Reserve.
func (ed *EdgeDice) Evaluate(patch subd.Patch) error {
	if ed.vertOffset == ed.vertStart {
		return nil
	}
	uv := ed.mesh.UV[ed.vertStart:ed.vertOffset]
	err := patch.Evaluate(uv, ed.mesh.P[ed.vertStart:ed.vertOffset], ed.UserData)
	if err != nil {
		return fmt.Errorf("evaluating patch: %w", err)
	}
	if np, ok := patch.(subd.NormalPatch); ok {
		err = np.EvaluateNormals(uv, ed.mesh.N[ed.vertStart:ed.vertOffset], ed.UserData)
		if err != nil {
			return fmt.Errorf("evaluating patch normals: %w", err)
		}
	}
	return nil
}

// checkDone panics if the reservation was not filled exactly.
func (ed *EdgeDice) checkDone() {
	if ed.vertOffset != ed.vertEnd || ed.triOffset != ed.triEnd {
		panic(fmt.Sprintf("diced %d verts %d tris but reserved %d verts %d tris",
			ed.vertOffset-ed.vertStart, ed.triOffset-ed.triStart,
			ed.vertEnd-ed.vertStart, ed.triEnd-ed.triStart))
	}
}

// project evaluates the patch at the parametric coordinates uv and projects
// the results to raster space, or world space when no camera is set.
func (ed *EdgeDice) project(patch subd.Patch, uv []ms2.Vec, dst []ms3.Vec) error {
	err := patch.Evaluate(uv, dst, ed.UserData)
	if err != nil {
		return err
	}
	for i, p := range dst {
		dst[i] = ed.params.Project(p)
	}
	return nil
}
