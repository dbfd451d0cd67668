package split_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
	"github.com/soypat/subd/camera"
	"github.com/soypat/subd/dice"
	"github.com/soypat/subd/patch"
	"github.com/soypat/subd/split"
)

const boundaryTol = 1e-5

var (
	flat   = patch.Func(func(uv ms2.Vec) ms3.Vec { return ms3.Vec{X: 10 * uv.X, Y: 10 * uv.Y} })
	squash = patch.Func(func(uv ms2.Vec) ms3.Vec { return ms3.Vec{X: 10 * uv.X * uv.X, Y: 10 * uv.Y} })
	// stretched has a parametrization that is non-uniform in both directions.
	stretched = patch.Func(func(uv ms2.Vec) ms3.Vec {
		u, v := uv.X, uv.Y
		return ms3.Vec{X: u + 0.6*u*u, Y: v + 0.6*v*v, Z: 0.2 * u * v}
	})
)

type hiddenCamera struct{}

func (hiddenCamera) Project(world ms3.Vec) ms3.Vec { return world }
func (hiddenCamera) Visible(world ms3.Vec) bool    { return false }

func TestT(t *testing.T) {
	params := subd.DefaultParams()
	params.DicingRate = 1
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	o, x, y := ms2.Vec{}, ms2.Vec{X: 1}, ms2.Vec{Y: 1}
	tests := []struct {
		name  string
		patch subd.Patch
		a, b  ms2.Vec
		want  int
	}{
		{"uniform", flat, o, x, 10},
		{"uniform reversed", flat, x, o, 10},
		{"zero length", flat, x, x, 1},
		{"stretched", squash, o, x, split.NonUniform},
		{"stretched reversed", squash, x, o, split.NonUniform},
		{"unstretched direction", squash, o, y, 10},
	}
	for _, test := range tests {
		got, err := s.T(test.patch, test.a, test.b)
		if err != nil {
			t.Fatal(err)
		}
		if got != test.want {
			t.Errorf("%s: got T=%d, want %d", test.name, got, test.want)
		}
	}

	params.MaxT = 8
	got, err := s.T(flat, o, x)
	if err != nil {
		t.Fatal(err)
	} else if got != split.NonUniform {
		t.Errorf("edge over MaxT: got %d, want non-uniform", got)
	}

	params.MaxT = 128
	// Factors beyond the range of int must still be non-uniform.
	for _, rate := range []float32{1e-19, 1e-30} {
		params.DicingRate = rate
		got, err = s.T(flat, o, x)
		if err != nil {
			t.Fatal(err)
		} else if got != split.NonUniform {
			t.Errorf("rate %g: got %d, want non-uniform", rate, got)
		}
	}
	params.DicingRate = 1

	params.Camera = hiddenCamera{}
	params.OffscreenDicingScale = 4
	got, err = s.T(flat, o, x)
	if err != nil {
		t.Fatal(err)
	} else if got != 3 {
		t.Errorf("offscreen edge: got %d, want 3", got)
	}
}

func TestSplitQuadWatertight(t *testing.T) {
	params := subd.DefaultParams()
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	err = s.SplitQuad(stretched, nil)
	if err != nil {
		t.Fatal(err)
	}
	st := s.Stats()
	if st.Splits == 0 {
		t.Fatal("expected non-uniform patch to be split")
	} else if st.UnitEdgeSplits != 0 || st.CappedDepth != 0 {
		t.Fatalf("unexpected degenerate splits: %+v", st)
	}
	if len(s.Quads()) != st.Splits+1 {
		t.Errorf("got %d subpatches from %d splits", len(s.Quads()), st.Splits)
	}
	for _, item := range s.Quads() {
		ef := item.EF
		if ef.Tu0 < 1 || ef.Tu1 < 1 || ef.Tv0 < 1 || ef.Tv1 < 1 || max(ef.Tu0, ef.Tu1, ef.Tv0, ef.Tv1) > params.MaxT {
			t.Fatalf("bad edge factors %+v", ef)
		}
	}
	var mesh subd.Mesh
	err = s.Dice(&mesh)
	if err != nil {
		t.Fatal(err)
	}
	checkBoundaryOnly(t, &mesh, func(uv ms2.Vec) [4]bool {
		return [4]bool{near(uv.X, 0), near(uv.X, 1), near(uv.Y, 0), near(uv.Y, 1)}
	})
}

func TestSplitTriangleWatertight(t *testing.T) {
	params := subd.DefaultParams()
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	err = s.SplitTriangle(stretched, nil)
	if err != nil {
		t.Fatal(err)
	}
	st := s.Stats()
	if st.Splits == 0 {
		t.Fatal("expected non-uniform patch to be split")
	} else if st.UnitEdgeSplits != 0 || st.CappedDepth != 0 {
		t.Fatalf("unexpected degenerate splits: %+v", st)
	}
	var mesh subd.Mesh
	err = s.Dice(&mesh)
	if err != nil {
		t.Fatal(err)
	}
	for i, tri := range mesh.Tris {
		a, b, c := mesh.UV[tri[0]], mesh.UV[tri[1]], mesh.UV[tri[2]]
		ab, ac := ms2.Sub(b, a), ms2.Sub(c, a)
		if ab.X*ac.Y-ab.Y*ac.X < 0 {
			t.Fatalf("triangle %d not counter-clockwise in parameter space", i)
		}
	}
	checkBoundaryOnly(t, &mesh, func(uv ms2.Vec) [4]bool {
		return [4]bool{near(uv.X, 0), near(uv.Y, 0), near(uv.X+uv.Y, 1)}
	})
}

func TestSplitPerspective(t *testing.T) {
	cam, err := camera.NewPerspective(camera.PerspectiveConfig{
		Eye:    ms3.Vec{X: 5, Y: -2, Z: 1},
		Target: ms3.Vec{X: 5, Y: 5},
		FOV:    math32.Pi / 3,
		Width:  64,
		Height: 48,
	})
	if err != nil {
		t.Fatal(err)
	}
	params := subd.DefaultParams()
	params.Camera = cam
	params.DicingRate = 4
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	err = s.SplitQuad(flat, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Quads()) < 2 {
		t.Fatalf("expected perspective foreshortening to split the plane, got %d subpatches", len(s.Quads()))
	}
	// Subpatches close to the camera cover less of the parameter domain.
	var nearArea, farArea float32 = 2, 0
	for _, item := range s.Quads() {
		sub := item.Sub
		area := (sub.P10.X - sub.P00.X) * (sub.P01.Y - sub.P00.Y)
		if sub.P00.Y == 0 {
			nearArea = min(nearArea, area)
		}
		if sub.P11.Y == 1 {
			farArea = max(farArea, area)
		}
	}
	if nearArea >= farArea {
		t.Errorf("near subpatch area %v not below far subpatch area %v", nearArea, farArea)
	}
	var mesh subd.Mesh
	err = s.Dice(&mesh)
	if err != nil {
		t.Fatal(err)
	}
	checkBoundaryOnly(t, &mesh, func(uv ms2.Vec) [4]bool {
		return [4]bool{near(uv.X, 0), near(uv.X, 1), near(uv.Y, 0), near(uv.Y, 1)}
	})
}

func TestDiceConcurrent(t *testing.T) {
	params := subd.DefaultParams()
	params.DicingRate = 0.08
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	s.Anisotropic = true
	var bez patch.Bezier
	for j := range bez.CP {
		for i := range bez.CP[j] {
			bez.CP[j][i] = ms3.Vec{X: float32(i), Y: float32(j), Z: math32.Sin(float32(i*j)) * 0.8}
		}
	}
	tri := &patch.Triangle{A: ms3.Vec{}, B: ms3.Vec{X: 2}, C: ms3.Vec{X: 0.5, Y: 1.5}}
	if err = s.SplitQuad(&bez, nil); err != nil {
		t.Fatal(err)
	}
	half := &dice.QuadSubPatch{P00: ms2.Vec{}, P10: ms2.Vec{X: 0.5}, P01: ms2.Vec{Y: 1}, P11: ms2.Vec{X: 0.5, Y: 1}}
	if err = s.SplitQuad(stretched, half); err != nil {
		t.Fatal(err)
	}
	if err = s.SplitTriangle(tri, nil); err != nil {
		t.Fatal(err)
	}
	var want, got subd.Mesh
	err = s.Dice(&want)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{1, 3, 0, 1000} {
		got.Reset()
		err = s.DiceConcurrent(context.Background(), &got, workers)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("workers=%d: concurrent dicing differs from sequential (-want +got):\n%s", workers, diff)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got.Reset()
	err = s.DiceConcurrent(ctx, &got, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

var errFail = errors.New("evaluation failed")

type failPatch struct{}

func (failPatch) Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error { return errFail }

// lateFailPatch evaluates as flat until fail is set.
type lateFailPatch struct{ fail bool }

func (p *lateFailPatch) Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error {
	if p.fail {
		return errFail
	}
	return flat.Evaluate(uv, pos, userData)
}

func TestDiceErrors(t *testing.T) {
	params := subd.DefaultParams()
	params.DicingRate = 2
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	p := new(lateFailPatch)
	if err = s.SplitQuad(p, nil); err != nil {
		t.Fatal(err)
	}
	if err = s.SplitTriangle(p, nil); err != nil {
		t.Fatal(err)
	}
	p.fail = true
	var mesh subd.Mesh
	err = s.Dice(&mesh)
	if !errors.Is(err, errFail) {
		t.Errorf("sequential: want wrapped patch error, got %v", err)
	}
	for _, workers := range []int{1, 4} {
		mesh.Reset()
		err = s.DiceConcurrent(context.Background(), &mesh, workers)
		if !errors.Is(err, errFail) {
			t.Errorf("workers=%d: want wrapped patch error, got %v", workers, err)
		}
	}
}

func TestSplitErrors(t *testing.T) {
	_, err := split.NewSplitter(nil)
	if err == nil {
		t.Error("expected error on nil params")
	}
	params := subd.DefaultParams()
	params.DicingRate = 0
	_, err = split.NewSplitter(&params)
	if !errors.Is(err, subd.ErrBadParams) {
		t.Errorf("want ErrBadParams, got %v", err)
	}
	params = subd.DefaultParams()
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	err = s.SplitQuad(failPatch{}, nil)
	if !errors.Is(err, errFail) {
		t.Errorf("quad: want wrapped patch error, got %v", err)
	}
	err = s.SplitTriangle(failPatch{}, nil)
	if !errors.Is(err, errFail) {
		t.Errorf("triangle: want wrapped patch error, got %v", err)
	}
}

func TestMaxLevel(t *testing.T) {
	params := subd.DefaultParams()
	params.MaxLevel = 0
	s, err := split.NewSplitter(&params)
	if err != nil {
		t.Fatal(err)
	}
	err = s.SplitQuad(stretched, nil)
	if err != nil {
		t.Fatal(err)
	}
	quads := s.Quads()
	if len(quads) != 1 || s.Stats().Splits != 0 {
		t.Fatalf("want a single unsplit subpatch, got %d", len(quads))
	}
	want := dice.QuadEdgeFactors{Tu0: 1, Tu1: 1, Tv0: 1, Tv1: 1}
	if quads[0].EF != want {
		t.Errorf("got edge factors %+v, want %+v", quads[0].EF, want)
	}

	// One level allows at most two segments per unit edge.
	params.MaxLevel = 1
	if err = s.Reset(&params); err != nil {
		t.Fatal(err)
	}
	err = s.SplitQuad(flat, nil)
	if err != nil {
		t.Fatal(err)
	}
	want = dice.QuadEdgeFactors{Tu0: 2, Tu1: 2, Tv0: 2, Tv1: 2}
	if quads = s.Quads(); len(quads) != 1 || quads[0].EF != want {
		t.Errorf("got %d subpatches %+v, want one with factors %+v", len(quads), quads, want)
	}
}

// checkBoundaryOnly checks that every open edge of mesh has both ends on one
// of the lines of the parametric boundary flagged by onLine.
func checkBoundaryOnly(t *testing.T, mesh *subd.Mesh, onLine func(uv ms2.Vec) [4]bool) {
	t.Helper()
	open := mesh.OpenEdges()
	if len(open) == 0 {
		t.Fatal("expected open patch boundary")
	}
	bad := 0
	for _, e := range open {
		la, lb := onLine(mesh.UV[e[0]]), onLine(mesh.UV[e[1]])
		shared := false
		for i := range la {
			shared = shared || (la[i] && lb[i])
		}
		if !shared {
			bad++
			if bad <= 5 {
				t.Errorf("interior crack along %v-%v", mesh.UV[e[0]], mesh.UV[e[1]])
			}
		}
	}
	if bad > 0 {
		t.Errorf("%d of %d open edges inside the patch", bad, len(open))
	}
}

func near(a, b float32) bool {
	return math32.Abs(a-b) < boundaryTol
}
