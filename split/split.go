// Package split implements the DiagSplit driver feeding the dicers of package
// dice. Patches are split recursively along edges whose tessellation would be
// uneven until every edge of every subpatch has a uniform edge factor, which is
// then diced with [dice.QuadDice] or [dice.TriangleDice].
//
// Edge factors are a function of an edge's endpoints alone and split edges
// remember the lattice of their parent edge (see [dice.SideSpan]), so subpatches
// on either side of an edge always agree on its vertices.
package split

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
	"github.com/soypat/subd/dice"
)

// NonUniform is the edge factor of an edge whose tessellation would be uneven
// and must be split further.
const NonUniform = -1

// maxDepth ends recursion on pathological patches.
const maxDepth = 32

// QuadItem is a quad subpatch ready to be diced.
type QuadItem struct {
	Sub dice.QuadSubPatch
	EF  dice.QuadEdgeFactors
}

// TriangleItem is a triangle subpatch ready to be diced.
type TriangleItem struct {
	Sub dice.TriangleSubPatch
	EF  dice.TriangleEdgeFactors
}

// Splitter splits patches into subpatches with uniform edge factors and dices them.
// A Splitter is not safe for concurrent use.
type Splitter struct {
	params *subd.Params
	// UserData is passed through to every patch evaluation.
	UserData any
	// Anisotropic enables [dice.QuadDice.Anisotropic] on the quad dicers.
	Anisotropic bool

	quads []QuadItem
	tris  []TriangleItem
	// Edges longer than 1/limitScale in parameter space may hold at most
	// limitScale*length segments, which bounds recursion to MaxLevel.
	limitScale float32
	uvbuf      []ms2.Vec
	posbuf     []ms3.Vec
	stats      Stats
}

// Stats holds counters of the splits performed since the last Reset.
type Stats struct {
	// Splits is the amount of times a subpatch was split in two.
	Splits int
	// MaxDepth is the deepest recursion level reached.
	MaxDepth int
	// CappedDepth counts subpatches diced with unit factors after reaching the recursion limit.
	CappedDepth int
	// UnitEdgeSplits counts splits of edges of a single segment. These leave a
	// vertex of one subpatch in the middle of its neighbour's edge.
	UnitEdgeSplits int
}

// NewSplitter returns a Splitter using params, which must stay unmodified while in use.
func NewSplitter(params *subd.Params) (*Splitter, error) {
	s := new(Splitter)
	err := s.Reset(params)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Reset discards queued subpatches and statistics and sets new parameters, keeping buffers for reuse.
func (s *Splitter) Reset(params *subd.Params) error {
	if params == nil {
		return errors.New("nil params")
	}
	err := params.Validate()
	if err != nil {
		return err
	}
	*s = Splitter{
		params:      params,
		UserData:    s.UserData,
		Anisotropic: s.Anisotropic,
		quads:       s.quads[:0],
		tris:        s.tris[:0],
		limitScale:  math32.Exp2(float32(params.MaxLevel)),
		uvbuf:       s.uvbuf[:0],
		posbuf:      s.posbuf[:0],
	}
	return nil
}

// Quads returns the quad subpatches queued for dicing.
func (s *Splitter) Quads() []QuadItem { return s.quads }

// Triangles returns the triangle subpatches queued for dicing.
func (s *Splitter) Triangles() []TriangleItem { return s.tris }

// Stats returns the split statistics since the last Reset.
func (s *Splitter) Stats() Stats { return s.stats }

// T estimates the edge factor of the edge between parametric coordinates
// Pstart and Pend. The edge is sampled at TestSteps evenly spaced points
// projected to raster space, or world space without a camera. T returns
// [NonUniform] if the longest sampled segment calls for more than SplitThreshold
// segments over what the total length does, or if more than MaxT segments
// are needed. The result does not depend on the direction of the edge.
func (s *Splitter) T(patch subd.Patch, Pstart, Pend ms2.Vec) (int, error) {
	if lessVec(Pend, Pstart) {
		Pstart, Pend = Pend, Pstart
	}
	params := s.params
	steps := params.TestSteps
	uv := slices.Grow(s.uvbuf[:0], steps)[:steps]
	pos := slices.Grow(s.posbuf[:0], steps)[:steps]
	s.uvbuf, s.posbuf = uv, pos
	for i := range uv {
		uv[i] = lerp(Pstart, Pend, float32(i)/float32(steps-1))
	}
	err := patch.Evaluate(uv, pos, s.UserData)
	if err != nil {
		return 0, fmt.Errorf("estimating edge factor: %w", err)
	}
	visible := params.Camera == nil
	var Lsum, Lmax float32
	prev := params.Project(pos[0])
	for i, p := range pos {
		if !visible {
			visible = params.Camera.Visible(params.ToWorld(p))
		}
		if i == 0 {
			continue
		}
		P := params.Project(p)
		L := ms3.Norm(ms3.Sub(P, prev))
		Lsum += L
		Lmax = max(Lmax, L)
		prev = P
	}
	rate := params.DicingRate
	if !visible && params.OffscreenDicingScale > 1 {
		rate *= params.OffscreenDicingScale
	}
	if math32.IsNaN(Lsum) || math32.IsInf(Lsum, 0) {
		return NonUniform, nil
	}
	// Compared as floats: factors of huge edges overflow int.
	tmin := math32.Ceil(Lsum / rate)
	tmax := math32.Ceil(float32(steps-1) * Lmax / rate)
	if tmax > float32(params.MaxT) || tmax-tmin > float32(params.SplitThreshold) {
		return NonUniform, nil
	}
	return max(int(tmax), 1), nil
}

// factor returns the edge factor of the edge between a and b limited so
// that recursion terminates by MaxLevel.
func (s *Splitter) factor(patch subd.Patch, a, b ms2.Vec) (int, error) {
	t, err := s.T(patch, a, b)
	if err != nil {
		return 0, err
	}
	lim := s.limitScale * ms2.Norm(ms2.Sub(b, a))
	switch {
	case lim < 2:
		return 1, nil
	case t == NonUniform:
		return NonUniform, nil
	}
	return min(t, int(lim)), nil
}

// partition splits the edge from a to b of factor t at point P. It returns
// the factors and spans of the halves a-P and P-b. Non-uniform edges are split
// at their midpoint and uniform edges at the vertex closest to it, so the
// halves keep the vertices the whole edge would have had.
func (s *Splitter) partition(patch subd.Patch, a, b ms2.Vec, t int, span dice.SideSpan) (P ms2.Vec, t0, t1 int, s0, s1 dice.SideSpan, err error) {
	if t == NonUniform || t == 1 {
		if t == 1 {
			s.stats.UnitEdgeSplits++
		}
		lo, hi := a, b
		if lessVec(hi, lo) {
			lo, hi = hi, lo
		}
		P = lerp(lo, hi, 0.5)
		if t == 1 {
			return P, 1, 1, dice.SideSpan{}, dice.SideSpan{}, nil
		}
		t0, err = s.factor(patch, a, P)
		if err != nil {
			return P, 0, 0, s0, s1, err
		}
		t1, err = s.factor(patch, P, b)
		return P, t0, t1, s0, s1, err
	}
	root := span.Root(a, b, t)
	// Split from the low end so both subpatches sharing the edge agree on P.
	lowT := t / 2
	k := root.Start + lowT
	P = root.At(k)
	low, high := root, root
	high.Start = k
	if !lessVec(b, a) {
		return P, lowT, t - lowT, low, high, nil
	}
	return P, t - lowT, lowT, high, low, nil
}

func (s *Splitter) enter(depth int) {
	s.stats.MaxDepth = max(s.stats.MaxDepth, depth)
}

func lerp(a, b ms2.Vec, t float32) ms2.Vec {
	return ms2.Add(ms2.Scale(1-t, a), ms2.Scale(t, b))
}

// lessVec orders parametric coordinates by X then Y, matching package dice.
func lessVec(a, b ms2.Vec) bool {
	return a.X < b.X || (a.X == b.X && a.Y < b.Y)
}
