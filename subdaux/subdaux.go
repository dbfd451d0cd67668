// Package subdaux provides helpers for getting started with subd quickly:
// tessellating a set of patches to STL and previewing the result as a PNG.
package subdaux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	math "github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
	"github.com/soypat/subd/patch"
	"github.com/soypat/subd/split"
)

// Scene holds the patches to tessellate. Quad patches are diced over the unit
// square and triangle patches over the unit triangle.
type Scene struct {
	Quads     []subd.Patch
	Triangles []subd.Patch
}

type RenderConfig struct {
	STLOutput io.Writer
	PNGOutput io.Writer
	// Params configures tessellation. If DicingRate is zero the zero valued
	// TestSteps, SplitThreshold, DicingRate, MaxLevel and MaxT are taken from
	// [subd.DefaultParams]. Camera, ObjectToWorld and OffscreenDicingScale are kept.
	Params subd.Params
	// Anisotropic enables [dice.QuadDice.Anisotropic] grids.
	Anisotropic bool
	// Workers sets the goroutines used for dicing. Zero or one dices sequentially.
	Workers int
	// Preview configures the PNG output.
	Preview PreviewConfig
	Silent  bool
	// EnableCaching wraps every patch in a [patch.Cached] so seam vertices are only
	// evaluated once. Dicing is sequential when enabled.
	EnableCaching bool
}

// Render is an auxiliary function to aid users in getting setup in using subd quickly.
// It splits and dices all patches of the scene into a single mesh and writes
// the outputs set in cfg. Ideally users should implement their own rendering
// functions since applications may vary widely.
func Render(scene Scene, cfg RenderConfig) (*subd.Mesh, error) {
	if cfg.STLOutput == nil && cfg.PNGOutput == nil {
		return nil, errors.New("Render requires output parameter in config")
	} else if len(scene.Quads)+len(scene.Triangles) == 0 {
		return nil, errors.New("empty scene")
	}
	log := func(args ...any) {
		if !cfg.Silent {
			fmt.Println(args...)
		}
	}
	params := defaultParams(cfg.Params)
	s, err := split.NewSplitter(&params)
	if err != nil {
		return nil, err
	}
	s.Anisotropic = cfg.Anisotropic

	var caches []*patch.Cached
	wrap := func(p subd.Patch) subd.Patch {
		if !cfg.EnableCaching {
			return p
		}
		c := new(patch.Cached)
		c.Reset(p)
		caches = append(caches, c)
		return c
	}
	watch := stopwatch()
	for i, p := range scene.Quads {
		err = s.SplitQuad(wrap(p), nil)
		if err != nil {
			return nil, fmt.Errorf("splitting quad patch %d: %w", i, err)
		}
	}
	for i, p := range scene.Triangles {
		err = s.SplitTriangle(wrap(p), nil)
		if err != nil {
			return nil, fmt.Errorf("splitting triangle patch %d: %w", i, err)
		}
	}
	st := s.Stats()
	log("split patches into", len(s.Quads()), "quads and", len(s.Triangles()), "triangles in", watch(), "max depth", st.MaxDepth)
	if st.CappedDepth > 0 || st.UnitEdgeSplits > 0 {
		log("warning: mesh may have cracks,", st.CappedDepth, "subpatches hit depth limit and", st.UnitEdgeSplits, "unit edges were split")
	}

	mesh := new(subd.Mesh)
	watch = stopwatch()
	if cfg.Workers > 1 && !cfg.EnableCaching {
		err = s.DiceConcurrent(context.Background(), mesh, cfg.Workers)
	} else {
		err = s.Dice(mesh)
	}
	if err != nil {
		return nil, err
	}
	log("diced", mesh.NumVerts(), "vertices and", mesh.NumTris(), "triangles in", watch())
	if cfg.EnableCaching {
		var hits, evals uint64
		for _, c := range caches {
			hits += c.CacheHits()
			evals += c.Evaluations()
		}
		log("patch caching omitted", percentUint64(hits, evals), "percent of", evals, "patch evaluations")
	}

	if cfg.STLOutput != nil {
		watch = stopwatch()
		triangles := mesh.AppendTriangles(nil, params.ObjectToWorld)
		_, err = WriteBinarySTL(cfg.STLOutput, triangles)
		if err != nil {
			return mesh, fmt.Errorf("writing STL file: %w", err)
		}
		log("wrote", outputName(cfg.STLOutput, "STL"), "in", watch())
	}
	if cfg.PNGOutput != nil {
		watch = stopwatch()
		preview := cfg.Preview
		if preview.ObjectToWorld == (ms3.Mat4{}) {
			preview.ObjectToWorld = params.ObjectToWorld
		}
		if preview.Camera == nil {
			preview.Camera = params.Camera
		}
		img, err := RenderPreview(mesh, preview)
		if err != nil {
			return mesh, fmt.Errorf("rendering preview: %w", err)
		}
		err = encodePNG(cfg.PNGOutput, img)
		if err != nil {
			return mesh, fmt.Errorf("writing PNG file: %w", err)
		}
		log("wrote", outputName(cfg.PNGOutput, "PNG preview"), "in", watch())
	}
	return mesh, nil
}

func outputName(w io.Writer, fallback string) string {
	if fp, ok := w.(*os.File); ok {
		return fp.Name()
	}
	return fallback
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

func percentUint64(num, denom uint64) float32 {
	if denom == 0 {
		return 0
	}
	return math.Trunc(10000*float32(num)/float32(denom)) / 100
}

// defaultParams fills the unset tessellation scalars of params.
func defaultParams(params subd.Params) subd.Params {
	if params.DicingRate != 0 {
		return params
	}
	def := subd.DefaultParams()
	params.DicingRate = def.DicingRate
	if params.TestSteps == 0 {
		params.TestSteps = def.TestSteps
	}
	if params.SplitThreshold == 0 {
		params.SplitThreshold = def.SplitThreshold
	}
	if params.MaxLevel == 0 {
		params.MaxLevel = def.MaxLevel
	}
	if params.MaxT == 0 {
		params.MaxT = def.MaxT
	}
	return params
}
