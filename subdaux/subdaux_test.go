package subdaux

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
	"github.com/soypat/subd/camera"
	"github.com/soypat/subd/patch"
)

func testScene() Scene {
	bez := patch.NewBezierGrid(ms2.Vec{}, ms2.Vec{X: 2, Y: 2})
	bez.CP[1][1].Z = 1
	bez.CP[2][2].Z = -0.5
	tri := &patch.Triangle{A: ms3.Vec{X: 2.5}, B: ms3.Vec{X: 4}, C: ms3.Vec{X: 2.5, Y: 1.5}}
	return Scene{Quads: []subd.Patch{bez}, Triangles: []subd.Patch{tri}}
}

func testParams() subd.Params {
	params := subd.DefaultParams()
	params.DicingRate = 0.15
	return params
}

func TestRender(t *testing.T) {
	var stl, pic bytes.Buffer
	mesh, err := Render(testScene(), RenderConfig{
		STLOutput: &stl,
		PNGOutput: &pic,
		Params:    testParams(),
		Preview:   PreviewConfig{Width: 64, Height: 48, Label: true},
		Silent:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if mesh.NumTris() == 0 {
		t.Fatal("no triangles rendered")
	}
	if stl.Len() != stlHeaderSize+4+stlTriSize*mesh.NumTris() {
		t.Errorf("STL of %d bytes for %d triangles", stl.Len(), mesh.NumTris())
	}
	tris, err := ReadBinarySTL(&stl)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(mesh.AppendTriangles(nil, ms3.Mat4{}), tris); diff != "" {
		t.Errorf("STL triangles differ from mesh (-want +got):\n%s", diff)
	}
	img, err := png.Decode(&pic)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("got preview size %v", b)
	}
}

func TestRenderDicingModes(t *testing.T) {
	var stl bytes.Buffer
	base := RenderConfig{STLOutput: &stl, Params: testParams(), Silent: true, Anisotropic: true}
	want, err := Render(testScene(), base)
	if err != nil {
		t.Fatal(err)
	}

	concurrent := base
	concurrent.Workers = 3
	got, err := Render(testScene(), concurrent)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("concurrent dicing differs (-want +got):\n%s", diff)
	}

	cached := base
	cached.EnableCaching = true
	got, err = Render(testScene(), cached)
	if err != nil {
		t.Fatal(err)
	}
	// Cached patches do not provide normals.
	if diff := cmp.Diff(want.P, got.P); diff != "" {
		t.Errorf("cached positions differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Tris, got.Tris); diff != "" {
		t.Errorf("cached triangles differ (-want +got):\n%s", diff)
	}
}

func TestRenderErrors(t *testing.T) {
	var buf bytes.Buffer
	_, err := Render(testScene(), RenderConfig{Silent: true})
	if err == nil {
		t.Error("expected error without outputs")
	}
	_, err = Render(Scene{}, RenderConfig{STLOutput: &buf, Silent: true})
	if err == nil {
		t.Error("expected error on empty scene")
	}
	params := testParams()
	params.TestSteps = 1
	_, err = Render(testScene(), RenderConfig{STLOutput: &buf, Params: params, Silent: true})
	if err == nil {
		t.Error("expected error on bad params")
	}
	_, err = RenderPreview(&subd.Mesh{}, PreviewConfig{})
	if err == nil {
		t.Error("expected error previewing empty mesh")
	}
}

func TestDefaultParams(t *testing.T) {
	cam, err := camera.NewPerspective(camera.PerspectiveConfig{
		Eye:    ms3.Vec{Z: 5},
		Target: ms3.Vec{},
		Up:     ms3.Vec{Y: 1},
		FOV:    1,
		Width:  32,
		Height: 32,
	})
	if err != nil {
		t.Fatal(err)
	}
	toWorld := ms3.ScalingMat4(ms3.Vec{X: 2, Y: 2, Z: 2})
	got := defaultParams(subd.Params{Camera: cam, ObjectToWorld: toWorld, OffscreenDicingScale: 3, MaxT: 64})
	want := subd.DefaultParams()
	want.Camera = cam
	want.ObjectToWorld = toWorld
	want.OffscreenDicingScale = 3
	want.MaxT = 64
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Error(err)
	}
	set := testParams()
	set.Camera = cam
	if got := defaultParams(set); got != set {
		t.Errorf("set params modified: got %+v, want %+v", got, set)
	}
}

func TestRenderPreview(t *testing.T) {
	square := &subd.Mesh{
		P:    []ms3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		Tris: [][3]int{{0, 1, 2}, {0, 2, 3}},
	}
	bg := color.RGBA{R: 1, G: 2, B: 3, A: 255}
	img, err := RenderPreview(square, PreviewConfig{Width: 40, Height: 40, Background: bg})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(1, 1); got != bg {
		t.Errorf("margin pixel %v, want background", got)
	}
	// Faces normal to +Z are lit by the default light.
	if got := img.RGBAAt(20, 20); got == bg {
		t.Error("center pixel not covered by mesh")
	}

	// The camera looks down on the square's corner, leaving part of it out of view.
	cam, err := camera.NewPerspective(camera.PerspectiveConfig{
		Eye:    ms3.Vec{X: 1, Y: 1, Z: 1},
		Target: ms3.Vec{X: 1, Y: 1},
		Up:     ms3.Vec{Y: 1},
		FOV:    1.2,
		Width:  40,
		Height: 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	img, err = RenderPreview(square, PreviewConfig{Width: 40, Height: 30, Camera: cam, Background: bg})
	if err != nil {
		t.Fatal(err)
	}
	// The square spans the bottom-left quadrant of the view.
	if got := img.RGBAAt(10, 22); got == bg {
		t.Error("pixel over square not covered")
	}
	if got := img.RGBAAt(30, 7); got != bg {
		t.Errorf("pixel away from square %v, want background", got)
	}
}

func TestClipPolygon(t *testing.T) {
	const w, h = 10, 5
	poly := clipPolygon([]ms2.Vec{{X: -5, Y: 1}, {X: 15, Y: 1}, {X: 5, Y: 20}}, w, h)
	if len(poly) < 3 {
		t.Fatalf("clipped to %d vertices", len(poly))
	}
	for _, p := range poly {
		if p.X < 0 || p.X > w || p.Y < 0 || p.Y > h {
			t.Errorf("vertex %v outside clip rectangle", p)
		}
	}
	poly = clipPolygon([]ms2.Vec{{X: 20, Y: 1}, {X: 30, Y: 1}, {X: 25, Y: 4}}, w, h)
	if len(poly) != 0 {
		t.Errorf("polygon outside rectangle kept %d vertices", len(poly))
	}
}

func TestShadeGradient(t *testing.T) {
	shadow := color.RGBA{R: 200, A: 255}
	lit := color.RGBA{B: 200, A: 255}
	grad := ShadeGradient(shadow, lit)
	if grad(0) != shadow || grad(-1) != shadow {
		t.Error("shade at or below zero should be shadow color")
	}
	if grad(1) != lit || grad(2) != lit {
		t.Error("shade at or above one should be lit color")
	}
	// Red to blue takes the short way around the hue circle through magenta.
	mid := grad(0.5).(color.RGBA)
	if mid.G > 10 || mid.R < 150 || mid.B < 150 {
		t.Errorf("got midpoint %v, want magenta", mid)
	}
	gray := ShadeGradient(color.Black, color.White)
	if got := gray(0.5).(color.Gray); got.Y != 127 {
		t.Errorf("got gray %v, want 127", got.Y)
	}
}

func TestPercent(t *testing.T) {
	if got := percentUint64(1, 3); got != 33.33 {
		t.Errorf("got %v", got)
	}
	if got := percentUint64(0, 0); got != 0 {
		t.Errorf("got %v", got)
	}
}
