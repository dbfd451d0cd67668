package split

import (
	"fmt"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/subd"
	"github.com/soypat/subd/dice"
)

// SplitTriangle splits the triangular region sub of patch until all its
// subpatches have uniform edge factors and queues them for dicing. A nil sub
// splits the unit triangle with Pu=(0,0), Pv=(1,0) and Pw=(0,1). Spans set
// in sub are ignored.
func (s *Splitter) SplitTriangle(patch subd.Patch, sub *dice.TriangleSubPatch) error {
	if patch == nil {
		panic("nil patch")
	}
	root := dice.TriangleSubPatch{
		Pu: ms2.Vec{X: 0, Y: 0},
		Pv: ms2.Vec{X: 1, Y: 0},
		Pw: ms2.Vec{X: 0, Y: 1},
	}
	if sub != nil {
		root = *sub
		root.Spans = [3]dice.SideSpan{}
	}
	root.Patch = patch
	var ef dice.TriangleEdgeFactors
	var err error
	ef.Tu, err = s.factor(patch, root.Pv, root.Pw)
	if err != nil {
		return err
	}
	ef.Tv, err = s.factor(patch, root.Pw, root.Pu)
	if err != nil {
		return err
	}
	ef.Tw, err = s.factor(patch, root.Pu, root.Pv)
	if err != nil {
		return err
	}
	before := len(s.tris)
	err = s.splitTriangle(root, ef, 0)
	if err != nil {
		return err
	}
	subd.Logger().Debug("split triangle patch", "subpatches", len(s.tris)-before, "maxdepth", s.stats.MaxDepth)
	return nil
}

// splitTriangle bisects the longest non-uniform side of the subpatch through
// the opposite corner until all sides are uniform.
func (s *Splitter) splitTriangle(sub dice.TriangleSubPatch, ef dice.TriangleEdgeFactors, depth int) error {
	s.enter(depth)
	if depth > maxDepth {
		s.stats.CappedDepth++
		s.tris = append(s.tris, TriangleItem{Sub: sub, EF: dice.TriangleEdgeFactors{Tu: 1, Tv: 1, Tw: 1}})
		return nil
	}
	side, ok := longestNonUniform(sub, ef)
	if !ok {
		if ef.Tu < 1 || ef.Tv < 1 || ef.Tw < 1 {
			panic(fmt.Sprintf("queued triangle with bad edge factors %+v", ef))
		}
		s.tris = append(s.tris, TriangleItem{Sub: sub, EF: ef})
		return nil
	}
	s.stats.Splits++
	var sub0, sub1 dice.TriangleSubPatch
	var ef0, ef1 dice.TriangleEdgeFactors
	sub0.Patch, sub1.Patch = sub.Patch, sub.Patch
	switch side {
	case dice.SideW: // Pu-Pv, opposite Pw.
		P, t0, t1, s0, s1, err := s.partition(sub.Patch, sub.Pu, sub.Pv, ef.Tw, sub.Spans[dice.SideW])
		if err != nil {
			return err
		}
		tsplit, err := s.factor(sub.Patch, P, sub.Pw)
		if err != nil {
			return err
		}
		sub0.Pu, sub0.Pv, sub0.Pw = sub.Pu, P, sub.Pw
		sub0.Spans[dice.SideW], sub0.Spans[dice.SideV] = s0, sub.Spans[dice.SideV]
		ef0 = dice.TriangleEdgeFactors{Tw: t0, Tu: tsplit, Tv: ef.Tv}
		sub1.Pu, sub1.Pv, sub1.Pw = P, sub.Pv, sub.Pw
		sub1.Spans[dice.SideW], sub1.Spans[dice.SideU] = s1, sub.Spans[dice.SideU]
		ef1 = dice.TriangleEdgeFactors{Tw: t1, Tu: ef.Tu, Tv: tsplit}

	case dice.SideU: // Pv-Pw, opposite Pu.
		P, t0, t1, s0, s1, err := s.partition(sub.Patch, sub.Pv, sub.Pw, ef.Tu, sub.Spans[dice.SideU])
		if err != nil {
			return err
		}
		tsplit, err := s.factor(sub.Patch, P, sub.Pu)
		if err != nil {
			return err
		}
		sub0.Pu, sub0.Pv, sub0.Pw = sub.Pu, sub.Pv, P
		sub0.Spans[dice.SideW], sub0.Spans[dice.SideU] = sub.Spans[dice.SideW], s0
		ef0 = dice.TriangleEdgeFactors{Tw: ef.Tw, Tu: t0, Tv: tsplit}
		sub1.Pu, sub1.Pv, sub1.Pw = sub.Pu, P, sub.Pw
		sub1.Spans[dice.SideU], sub1.Spans[dice.SideV] = s1, sub.Spans[dice.SideV]
		ef1 = dice.TriangleEdgeFactors{Tw: tsplit, Tu: t1, Tv: ef.Tv}

	case dice.SideV: // Pw-Pu, opposite Pv.
		P, t0, t1, s0, s1, err := s.partition(sub.Patch, sub.Pw, sub.Pu, ef.Tv, sub.Spans[dice.SideV])
		if err != nil {
			return err
		}
		tsplit, err := s.factor(sub.Patch, P, sub.Pv)
		if err != nil {
			return err
		}
		sub0.Pu, sub0.Pv, sub0.Pw = P, sub.Pv, sub.Pw
		sub0.Spans[dice.SideU], sub0.Spans[dice.SideV] = sub.Spans[dice.SideU], s0
		ef0 = dice.TriangleEdgeFactors{Tw: tsplit, Tu: ef.Tu, Tv: t0}
		sub1.Pu, sub1.Pv, sub1.Pw = sub.Pu, sub.Pv, P
		sub1.Spans[dice.SideW], sub1.Spans[dice.SideV] = sub.Spans[dice.SideW], s1
		ef1 = dice.TriangleEdgeFactors{Tw: ef.Tw, Tu: tsplit, Tv: t1}
	}
	err := s.splitTriangle(sub0, ef0, depth+1)
	if err != nil {
		return err
	}
	return s.splitTriangle(sub1, ef1, depth+1)
}

// longestNonUniform returns the longest side in parameter space among those
// with a non-uniform factor.
func longestNonUniform(sub dice.TriangleSubPatch, ef dice.TriangleEdgeFactors) (side dice.TriangleSide, ok bool) {
	var best float32 = -1
	for _, e := range []struct {
		side dice.TriangleSide
		t    int
		a, b ms2.Vec
	}{
		{dice.SideW, ef.Tw, sub.Pu, sub.Pv},
		{dice.SideU, ef.Tu, sub.Pv, sub.Pw},
		{dice.SideV, ef.Tv, sub.Pw, sub.Pu},
	} {
		if e.t != NonUniform {
			continue
		}
		L := ms2.Norm(ms2.Sub(e.b, e.a))
		if L > best {
			best, side, ok = L, e.side, true
		}
	}
	return side, ok
}
