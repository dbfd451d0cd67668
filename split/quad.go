package split

import (
	"fmt"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/subd"
	"github.com/soypat/subd/dice"
)

// SplitQuad splits the quad region sub of patch until all its subpatches have
// uniform edge factors and queues them for dicing. A nil sub splits the whole
// unit square domain. Spans set in sub are ignored.
func (s *Splitter) SplitQuad(patch subd.Patch, sub *dice.QuadSubPatch) error {
	if patch == nil {
		panic("nil patch")
	}
	root := dice.QuadSubPatch{
		P00: ms2.Vec{X: 0, Y: 0},
		P10: ms2.Vec{X: 1, Y: 0},
		P01: ms2.Vec{X: 0, Y: 1},
		P11: ms2.Vec{X: 1, Y: 1},
	}
	if sub != nil {
		root = *sub
		root.Spans = [4]dice.SideSpan{}
	}
	root.Patch = patch
	var ef dice.QuadEdgeFactors
	var err error
	for _, e := range []struct {
		t    *int
		a, b ms2.Vec
	}{
		{&ef.Tu0, root.P00, root.P10},
		{&ef.Tu1, root.P01, root.P11},
		{&ef.Tv0, root.P00, root.P01},
		{&ef.Tv1, root.P10, root.P11},
	} {
		*e.t, err = s.factor(patch, e.a, e.b)
		if err != nil {
			return err
		}
	}
	before := len(s.quads)
	err = s.splitQuad(root, ef, 0)
	if err != nil {
		return err
	}
	subd.Logger().Debug("split quad patch", "subpatches", len(s.quads)-before, "maxdepth", s.stats.MaxDepth)
	return nil
}

func (s *Splitter) splitQuad(sub dice.QuadSubPatch, ef dice.QuadEdgeFactors, depth int) error {
	s.enter(depth)
	if depth > maxDepth {
		s.stats.CappedDepth++
		s.quads = append(s.quads, QuadItem{Sub: sub, EF: dice.QuadEdgeFactors{Tu0: 1, Tu1: 1, Tv0: 1, Tv1: 1}})
		return nil
	}
	splitU := ef.Tu0 == NonUniform || ef.Tu1 == NonUniform
	splitV := ef.Tv0 == NonUniform || ef.Tv1 == NonUniform
	// Limit the ratio between factors of opposite sides.
	wantV := splitV
	if !splitU && unbalanced(ef.Tu0, ef.Tu1) && min(ef.Tv0, ef.Tv1) > 1 {
		splitV = true
	}
	if !wantV && unbalanced(ef.Tv0, ef.Tv1) && min(ef.Tu0, ef.Tu1) > 1 {
		splitU = true
	}
	if splitU && splitV {
		splitU = depth%2 == 1
		splitV = !splitU
	}

	switch {
	case splitU:
		s.stats.Splits++
		Pu0, t00, t01, s00, s01, err := s.partition(sub.Patch, sub.P00, sub.P10, ef.Tu0, sub.Spans[dice.SideU0])
		if err != nil {
			return err
		}
		Pu1, t10, t11, s10, s11, err := s.partition(sub.Patch, sub.P01, sub.P11, ef.Tu1, sub.Spans[dice.SideU1])
		if err != nil {
			return err
		}
		tsplit, err := s.factor(sub.Patch, Pu0, Pu1)
		if err != nil {
			return err
		}
		sub0 := dice.QuadSubPatch{Patch: sub.Patch, P00: sub.P00, P10: Pu0, P01: sub.P01, P11: Pu1}
		sub0.Spans[dice.SideU0], sub0.Spans[dice.SideU1] = s00, s10
		sub0.Spans[dice.SideV0] = sub.Spans[dice.SideV0]
		ef0 := dice.QuadEdgeFactors{Tu0: t00, Tu1: t10, Tv0: ef.Tv0, Tv1: tsplit}

		sub1 := dice.QuadSubPatch{Patch: sub.Patch, P00: Pu0, P10: sub.P10, P01: Pu1, P11: sub.P11}
		sub1.Spans[dice.SideU0], sub1.Spans[dice.SideU1] = s01, s11
		sub1.Spans[dice.SideV1] = sub.Spans[dice.SideV1]
		ef1 := dice.QuadEdgeFactors{Tu0: t01, Tu1: t11, Tv0: tsplit, Tv1: ef.Tv1}

		err = s.splitQuad(sub0, ef0, depth+1)
		if err != nil {
			return err
		}
		return s.splitQuad(sub1, ef1, depth+1)

	case splitV:
		s.stats.Splits++
		Pv0, t00, t01, s00, s01, err := s.partition(sub.Patch, sub.P00, sub.P01, ef.Tv0, sub.Spans[dice.SideV0])
		if err != nil {
			return err
		}
		Pv1, t10, t11, s10, s11, err := s.partition(sub.Patch, sub.P10, sub.P11, ef.Tv1, sub.Spans[dice.SideV1])
		if err != nil {
			return err
		}
		tsplit, err := s.factor(sub.Patch, Pv0, Pv1)
		if err != nil {
			return err
		}
		sub0 := dice.QuadSubPatch{Patch: sub.Patch, P00: sub.P00, P10: sub.P10, P01: Pv0, P11: Pv1}
		sub0.Spans[dice.SideV0], sub0.Spans[dice.SideV1] = s00, s10
		sub0.Spans[dice.SideU0] = sub.Spans[dice.SideU0]
		ef0 := dice.QuadEdgeFactors{Tu0: ef.Tu0, Tu1: tsplit, Tv0: t00, Tv1: t10}

		sub1 := dice.QuadSubPatch{Patch: sub.Patch, P00: Pv0, P10: Pv1, P01: sub.P01, P11: sub.P11}
		sub1.Spans[dice.SideV0], sub1.Spans[dice.SideV1] = s01, s11
		sub1.Spans[dice.SideU1] = sub.Spans[dice.SideU1]
		ef1 := dice.QuadEdgeFactors{Tu0: tsplit, Tu1: ef.Tu1, Tv0: t01, Tv1: t11}

		err = s.splitQuad(sub0, ef0, depth+1)
		if err != nil {
			return err
		}
		return s.splitQuad(sub1, ef1, depth+1)
	}
	if ef.Tu0 < 1 || ef.Tu1 < 1 || ef.Tv0 < 1 || ef.Tv1 < 1 {
		panic(fmt.Sprintf("queued quad with bad edge factors %+v", ef))
	}
	s.quads = append(s.quads, QuadItem{Sub: sub, EF: ef})
	return nil
}

// unbalanced reports whether factors of opposite sides differ enough to
// over-tessellate the subpatch.
func unbalanced(t0, t1 int) bool {
	lo, hi := min(t0, t1), max(t0, t1)
	return lo > 8 && float32(lo)*1.5 < float32(hi)
}
