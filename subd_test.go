package subd_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
)

func TestParamsValidate(t *testing.T) {
	if p := subd.DefaultParams(); p.Validate() != nil {
		t.Fatal("default params invalid:", p.Validate())
	}
	tests := []struct {
		name   string
		modify func(p *subd.Params)
	}{
		{"zero rate", func(p *subd.Params) { p.DicingRate = 0 }},
		{"negative rate", func(p *subd.Params) { p.DicingRate = -1 }},
		{"nan rate", func(p *subd.Params) { p.DicingRate = math32.NaN() }},
		{"inf rate", func(p *subd.Params) { p.DicingRate = math32.Inf(1) }},
		{"negative level", func(p *subd.Params) { p.MaxLevel = -1 }},
		{"huge level", func(p *subd.Params) { p.MaxLevel = 31 }},
		{"zero max T", func(p *subd.Params) { p.MaxT = 0 }},
		{"one test step", func(p *subd.Params) { p.TestSteps = 1 }},
		{"negative threshold", func(p *subd.Params) { p.SplitThreshold = -1 }},
		{"negative offscreen scale", func(p *subd.Params) { p.OffscreenDicingScale = -2 }},
		{"nan offscreen scale", func(p *subd.Params) { p.OffscreenDicingScale = math32.NaN() }},
	}
	for _, test := range tests {
		p := subd.DefaultParams()
		test.modify(&p)
		err := p.Validate()
		if !errors.Is(err, subd.ErrBadParams) {
			t.Errorf("%s: want ErrBadParams, got %v", test.name, err)
		}
	}
}

type shiftCamera struct{ shift ms3.Vec }

func (c shiftCamera) Project(world ms3.Vec) ms3.Vec { return ms3.Add(world, c.shift) }
func (c shiftCamera) Visible(world ms3.Vec) bool    { return true }

func TestParamsProject(t *testing.T) {
	p := subd.DefaultParams()
	pos := ms3.Vec{X: 1, Y: 2, Z: 3}
	if got := p.Project(pos); got != pos {
		t.Errorf("zero transform without camera: got %v, want %v", got, pos)
	}
	p.ObjectToWorld = ms3.ScalingMat4(ms3.Vec{X: 11, Y: 1, Z: 1})
	want := ms3.Vec{X: 11, Y: 2, Z: 3}
	if got := p.ToWorld(pos); got != want {
		t.Errorf("scaled: got %v, want %v", got, want)
	}
	p.Camera = shiftCamera{shift: ms3.Vec{Y: 1, Z: 5}}
	want = ms3.Vec{X: 11, Y: 3, Z: 0}
	if got := p.Project(pos); got != want {
		t.Errorf("projected: got %v, want %v", got, want)
	}
}

func TestMeshGrow(t *testing.T) {
	var m subd.Mesh
	v0, t0 := m.Grow(4, 2)
	if v0 != 0 || t0 != 0 || m.NumVerts() != 4 || m.NumTris() != 2 {
		t.Fatalf("first grow: got start %d,%d size %d,%d", v0, t0, m.NumVerts(), m.NumTris())
	}
	m.N[3] = ms3.Vec{Z: 1}
	v0, t0 = m.Grow(3, 1)
	if v0 != 4 || t0 != 2 || len(m.P) != 7 || len(m.UV) != 7 || len(m.N) != 7 || len(m.Tris) != 3 {
		t.Fatalf("second grow: got start %d,%d lengths %d %d %d %d", v0, t0, len(m.P), len(m.UV), len(m.N), len(m.Tris))
	}
	if m.N[3] != (ms3.Vec{Z: 1}) {
		t.Error("grow lost existing normal")
	}
	m.N[5] = ms3.Vec{X: 1}
	m.Reset()
	if m.NumVerts() != 0 || m.NumTris() != 0 {
		t.Fatal("reset did not empty mesh")
	}
	m.Grow(7, 0)
	if m.N[5] != (ms3.Vec{}) {
		t.Error("grow kept stale normal after reset")
	}
}

func TestMeshOpenEdges(t *testing.T) {
	square := subd.Mesh{
		P:    []ms3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		UV:   make([]ms2.Vec, 4),
		N:    make([]ms3.Vec, 4),
		Tris: [][3]int{{0, 1, 2}, {0, 2, 3}},
	}
	if open := square.OpenEdges(); len(open) != 4 {
		t.Errorf("square: got %d open edges, want 4: %v", len(open), open)
	}
	// Same square with unshared diagonal vertices welds by position.
	split := subd.Mesh{
		P:    []ms3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {}, {X: 1, Y: 1}, {Y: 1}},
		Tris: [][3]int{{0, 1, 2}, {3, 4, 5}},
	}
	open := split.OpenEdges()
	if len(open) != 4 {
		t.Errorf("welded square: got %d open edges, want 4: %v", len(open), open)
	}
	for _, e := range open {
		if e[0] > 2 && e[0] != 5 || e[1] > 2 && e[1] != 5 {
			t.Errorf("edge %v does not reference lowest index at its position", e)
		}
	}
	// A misoriented triangle leaves its edges open.
	split.Tris[1] = [3]int{3, 5, 4}
	if open := split.OpenEdges(); len(open) != 5 {
		t.Errorf("misoriented: got %d open edges, want 5", len(open))
	}
	tetra := subd.Mesh{
		P:    []ms3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}},
		Tris: [][3]int{{0, 2, 1}, {0, 1, 3}, {1, 2, 3}, {2, 0, 3}},
	}
	if open := tetra.OpenEdges(); len(open) != 0 {
		t.Errorf("tetrahedron: got open edges %v", open)
	}
}

func TestMeshTriangles(t *testing.T) {
	m := subd.Mesh{
		P:    []ms3.Vec{{X: -1}, {X: 2, Y: 1}, {Y: 3, Z: -4}},
		Tris: [][3]int{{0, 1, 2}},
	}
	bb := m.Bounds()
	wantBox := ms3.Box{Min: ms3.Vec{X: -1, Z: -4}, Max: ms3.Vec{X: 2, Y: 3}}
	if bb != wantBox {
		t.Errorf("bounds: got %v, want %v", bb, wantBox)
	}
	if (&subd.Mesh{}).Bounds() != (ms3.Box{}) {
		t.Error("empty mesh bounds not zero")
	}
	tris := m.AppendTriangles(nil, ms3.Mat4{})
	if len(tris) != 1 || tris[0] != (ms3.Triangle{m.P[0], m.P[1], m.P[2]}) {
		t.Fatalf("untransformed: got %v", tris)
	}
	tris = m.AppendTriangles(tris, ms3.ScalingMat4(ms3.Vec{X: 1, Y: 1, Z: 0.5}))
	if len(tris) != 2 || tris[1][2] != (ms3.Vec{Y: 3, Z: -2}) {
		t.Errorf("scaled: got %v", tris)
	}
}

func TestSetLogger(t *testing.T) {
	defer subd.SetLogger(nil)
	if subd.Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("default logger should discard records")
	}
	var buf bytes.Buffer
	subd.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	subd.Logger().Debug("diced", "verts", 21)
	if !bytes.Contains(buf.Bytes(), []byte("verts=21")) {
		t.Errorf("record not written: %q", buf.String())
	}
	subd.SetLogger(nil)
	if subd.Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("nil logger should restore silent logger")
	}
}
