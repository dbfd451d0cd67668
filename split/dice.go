package split

import (
	"context"
	"fmt"
	"runtime"

	"github.com/soypat/subd"
	"github.com/soypat/subd/dice"
	"golang.org/x/sync/errgroup"
)

// Dice dices all queued subpatches into mesh in order, quads first.
func (s *Splitter) Dice(mesh *subd.Mesh) error {
	qd, td := s.dicers(mesh)
	v0, t0 := mesh.NumVerts(), mesh.NumTris()
	for i := range s.quads {
		item := &s.quads[i]
		err := qd.Dice(item.Sub, item.EF)
		if err != nil {
			return fmt.Errorf("dicing quad subpatch %d: %w", i, err)
		}
	}
	for i := range s.tris {
		item := &s.tris[i]
		err := td.Dice(item.Sub, item.EF)
		if err != nil {
			return fmt.Errorf("dicing triangle subpatch %d: %w", i, err)
		}
	}
	subd.Logger().Info("diced subpatches", "quads", len(s.quads), "triangles", len(s.tris),
		"verts", mesh.NumVerts()-v0, "tris", mesh.NumTris()-t0)
	return nil
}

// DiceConcurrent dices all queued subpatches into mesh using up to workers
// goroutines. The mesh is grown once up front and each subpatch is diced into
// its own region, so the result is identical to that of [Splitter.Dice].
// Patches and UserData must be safe for concurrent use. A non-positive
// workers uses one goroutine per CPU. On error the mesh stays grown by the
// full amount and regions of subpatches that were not diced hold stale data.
func (s *Splitter) DiceConcurrent(ctx context.Context, mesh *subd.Mesh, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	n := len(s.quads) + len(s.tris)
	if n == 0 {
		return nil
	}
	// Region starts of every subpatch relative to the current end of mesh.
	vstart := make([]int, n+1)
	tstart := make([]int, n+1)
	qd, td := s.dicers(mesh)
	for i := 0; i < n; i++ {
		var nv, nt int
		if i < len(s.quads) {
			item := &s.quads[i]
			var err error
			nv, nt, err = qd.DicedSize(item.Sub, item.EF)
			if err != nil {
				return fmt.Errorf("sizing quad subpatch %d: %w", i, err)
			}
		} else {
			nv, nt = td.DicedSize(s.tris[i-len(s.quads)].EF)
		}
		vstart[i+1] = vstart[i] + nv
		tstart[i+1] = tstart[i] + nt
	}
	v0, t0 := mesh.Grow(vstart[n], tstart[n])

	g, ctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			qd, td := s.dicers(mesh)
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				nv, nt := vstart[i+1]-vstart[i], tstart[i+1]-tstart[i]
				if i < len(s.quads) {
					item := &s.quads[i]
					qd.SetRegion(v0+vstart[i], nv, t0+tstart[i], nt)
					err := qd.Dice(item.Sub, item.EF)
					if err != nil {
						return fmt.Errorf("dicing quad subpatch %d: %w", i, err)
					}
					continue
				}
				j := i - len(s.quads)
				item := &s.tris[j]
				td.SetRegion(v0+vstart[i], nv, t0+tstart[i], nt)
				err := td.Dice(item.Sub, item.EF)
				if err != nil {
					return fmt.Errorf("dicing triangle subpatch %d: %w", j, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		return err
	}
	subd.Logger().Info("diced subpatches concurrently", "quads", len(s.quads), "triangles", len(s.tris),
		"verts", vstart[n], "tris", tstart[n], "workers", min(workers, n))
	return nil
}

func (s *Splitter) dicers(mesh *subd.Mesh) (*dice.QuadDice, *dice.TriangleDice) {
	qd := dice.NewQuadDice(s.params, mesh)
	qd.Anisotropic = s.Anisotropic
	qd.UserData = s.UserData
	td := dice.NewTriangleDice(s.params, mesh)
	td.UserData = s.UserData
	return qd, td
}
