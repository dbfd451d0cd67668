package subdaux

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"slices"
	"sync"

	math "github.com/chewxy/math32"
	"github.com/golang/freetype/truetype"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// PreviewConfig configures [RenderPreview].
type PreviewConfig struct {
	// Width and Height of the image. Default to 512. Should match the raster
	// size of Camera if set.
	Width, Height int
	// Camera projects the mesh into the image. If nil the mesh is viewed from
	// +Z with an orthographic projection fit to the image.
	Camera subd.Camera
	// ObjectToWorld transforms mesh positions before projection and shading.
	ObjectToWorld ms3.Mat4
	// Light is the direction towards the light source. Defaults to a light
	// above and behind the viewer.
	Light ms3.Vec
	// Shadow and Lit are the colors of faces facing away and towards the light.
	Shadow, Lit color.Color
	// Background defaults to white.
	Background color.Color
	// Label draws vertex and triangle counts on the image.
	Label bool
}

// previewMargin is the border in pixels left by the orthographic fit.
const previewMargin = 8

// RenderPreview draws a flat shaded image of the mesh. Triangles are sorted
// back to front by their mean depth and filled with an anti-aliasing rasterizer.
func RenderPreview(mesh *subd.Mesh, cfg PreviewConfig) (*image.RGBA, error) {
	if mesh.NumTris() == 0 {
		return nil, errors.New("no triangles to preview")
	}
	if cfg.Width == 0 {
		cfg.Width = 512
	}
	if cfg.Height == 0 {
		cfg.Height = 512
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("bad preview size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Light == (ms3.Vec{}) {
		cfg.Light = ms3.Vec{X: -0.3, Y: -0.5, Z: 0.8}
	}
	light := ms3.Scale(1/ms3.Norm(cfg.Light), cfg.Light)
	if cfg.Shadow == nil {
		cfg.Shadow = defaultShadow
	}
	if cfg.Lit == nil {
		cfg.Lit = defaultLit
	}
	if cfg.Background == nil {
		cfg.Background = color.White
	}
	shade := ShadeGradient(cfg.Shadow, cfg.Lit)
	toWorld := subd.Params{ObjectToWorld: cfg.ObjectToWorld}

	world := make([]ms3.Vec, len(mesh.P))
	for i, p := range mesh.P {
		world[i] = toWorld.ToWorld(p)
	}
	raster := projectRaster(world, cfg)

	type face struct {
		tri   [3]int
		depth float32
		col   color.Color
	}
	faces := make([]face, 0, len(mesh.Tris))
	for _, tri := range mesh.Tris {
		a, b, c := world[tri[0]], world[tri[1]], world[tri[2]]
		n := ms3.Cross(ms3.Sub(b, a), ms3.Sub(c, a))
		l := ms3.Norm(n)
		ra, rb, rc := raster[tri[0]], raster[tri[1]], raster[tri[2]]
		if !(l > 0) || cfg.Camera != nil && (ra.Z <= 0 || rb.Z <= 0 || rc.Z <= 0) {
			continue // Degenerate or behind the camera.
		}
		// Two sided lighting with some ambient.
		intensity := 0.15 + 0.85*math.Abs(ms3.Dot(n, light))/l
		faces = append(faces, face{
			tri:   tri,
			depth: (ra.Z + rb.Z + rc.Z) / 3,
			col:   shade(intensity),
		})
	}
	slices.SortStableFunc(faces, func(a, b face) int {
		return cmp.Compare(b.depth, a.depth)
	})

	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(cfg.Background), image.Point{}, draw.Src)
	var ras vector.Rasterizer
	for _, f := range faces {
		fillTriangle(img, &ras, raster[f.tri[0]], raster[f.tri[1]], raster[f.tri[2]], f.col)
	}
	if cfg.Label {
		err := drawLabel(img, fmt.Sprintf("%d vertices %d triangles", mesh.NumVerts(), mesh.NumTris()))
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

// projectRaster returns raster positions of world with depth in Z.
func projectRaster(world []ms3.Vec, cfg PreviewConfig) []ms3.Vec {
	raster := make([]ms3.Vec, len(world))
	if cfg.Camera != nil {
		for i, p := range world {
			raster[i] = cfg.Camera.Project(p)
		}
		return raster
	}
	bb := ms3.Box{Min: world[0], Max: world[0]}
	for _, p := range world[1:] {
		bb.Min = ms3.MinElem(bb.Min, p)
		bb.Max = ms3.MaxElem(bb.Max, p)
	}
	sz := bb.Size()
	w, h := float32(cfg.Width-2*previewMargin), float32(cfg.Height-2*previewMargin)
	scale := float32(1)
	if sz.X > 0 || sz.Y > 0 {
		scale = min(w/sz.X, h/sz.Y)
	}
	// Center the fit and flip Y so +Y points up in the image.
	offX := previewMargin + (w-scale*sz.X)/2
	offY := previewMargin + (h-scale*sz.Y)/2
	for i, p := range world {
		raster[i] = ms3.Vec{
			X: offX + scale*(p.X-bb.Min.X),
			Y: float32(cfg.Height) - offY - scale*(p.Y-bb.Min.Y),
			Z: bb.Max.Z - p.Z,
		}
	}
	return raster
}

func fillTriangle(dst *image.RGBA, ras *vector.Rasterizer, a, b, c ms3.Vec, col color.Color) {
	x0 := int(math.Floor(min(a.X, b.X, c.X)))
	y0 := int(math.Floor(min(a.Y, b.Y, c.Y)))
	x1 := int(math.Ceil(max(a.X, b.X, c.X)))
	y1 := int(math.Ceil(max(a.Y, b.Y, c.Y)))
	r := image.Rect(x0, y0, x1, y1).Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	// Rasterizer coordinates are relative to the clipped rectangle.
	ox, oy := float32(r.Min.X), float32(r.Min.Y)
	poly := []ms2.Vec{{X: a.X - ox, Y: a.Y - oy}, {X: b.X - ox, Y: b.Y - oy}, {X: c.X - ox, Y: c.Y - oy}}
	poly = clipPolygon(poly, float32(r.Dx()), float32(r.Dy()))
	if len(poly) < 3 {
		return
	}
	ras.Reset(r.Dx(), r.Dy())
	ras.MoveTo(poly[0].X, poly[0].Y)
	for _, p := range poly[1:] {
		ras.LineTo(p.X, p.Y)
	}
	ras.ClosePath()
	ras.Draw(dst, r, image.NewUniform(col), image.Point{})
}

// clipPolygon clips a convex polygon to the rectangle [0,w]x[0,h] one edge at
// a time (Sutherland-Hodgman).
func clipPolygon(poly []ms2.Vec, w, h float32) []ms2.Vec {
	planes := [4]struct {
		axis int // 0 for X, 1 for Y.
		lim  float32
		keep float32 // Sign of the kept side.
	}{{0, 0, 1}, {0, w, -1}, {1, 0, 1}, {1, h, -1}}
	var out []ms2.Vec
	for _, pl := range planes {
		dist := func(p ms2.Vec) float32 {
			if pl.axis == 0 {
				return pl.keep * (p.X - pl.lim)
			}
			return pl.keep * (p.Y - pl.lim)
		}
		out = out[:0:0]
		for i, cur := range poly {
			prev := poly[(i+len(poly)-1)%len(poly)]
			dc, dp := dist(cur), dist(prev)
			if (dc >= 0) != (dp >= 0) {
				t := dp / (dp - dc)
				out = append(out, ms2.Add(prev, ms2.Scale(t, ms2.Sub(cur, prev))))
			}
			if dc >= 0 {
				out = append(out, cur)
			}
		}
		poly = out
		if len(poly) == 0 {
			break
		}
	}
	return poly
}

var labelFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

func drawLabel(dst draw.Image, text string) error {
	ttf, err := labelFont()
	if err != nil {
		return fmt.Errorf("parsing label font: %w", err)
	}
	face := truetype.NewFace(ttf, &truetype.Options{Size: 12, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()
	metrics := face.Metrics()
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(previewMargin), Y: fixed.I(previewMargin) + metrics.Ascent},
	}
	d.DrawString(text)
	return nil
}

func encodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
