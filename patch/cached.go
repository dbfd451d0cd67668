package patch

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/subd"
)

// Cached memoizes the evaluations of a [subd.Patch] by exact parametric
// coordinate. Subpatches sharing an edge evaluate the same coordinates, so
// wrapping expensive patches saves the second evaluation of every seam vertex.
// Normals are not cached nor forwarded. Cached is not safe for concurrent use.
type Cached struct {
	patch  subd.Patch
	m      map[[2]uint32]ms3.Vec
	uvbuf  []ms2.Vec
	posbuf []ms3.Vec
	idxbuf []int
	hits   uint64
	evals  uint64
}

// Reset sets the patch to cache and reuses the underlying buffers. It also
// resets statistics such as evaluations and cache hits.
func (c *Cached) Reset(p subd.Patch) {
	if p == nil {
		panic("nil patch")
	}
	if c.m == nil {
		c.m = make(map[[2]uint32]ms3.Vec)
	} else {
		clear(c.m)
	}
	*c = Cached{
		patch:  p,
		m:      c.m,
		uvbuf:  c.uvbuf[:0],
		posbuf: c.posbuf[:0],
		idxbuf: c.idxbuf[:0],
	}
}

// CacheHits returns total amount of cached evaluations done since the last Reset.
func (c *Cached) CacheHits() uint64 { return c.hits }

// Evaluations returns total evaluations performed successfully since the last Reset, including cached.
func (c *Cached) Evaluations() uint64 { return c.evals }

// Evaluate implements [subd.Patch] with cached evaluation.
func (c *Cached) Evaluate(uv []ms2.Vec, pos []ms3.Vec, userData any) error {
	if err := checkBuffers(len(uv), len(pos)); err != nil {
		return err
	} else if c.patch == nil {
		panic("Cached used before Reset")
	}
	seekUV := c.uvbuf[:0]
	idx := c.idxbuf[:0]
	for i, p := range uv {
		p0, cached := c.m[uvKey(p)]
		if cached {
			pos[i] = p0
		} else {
			seekUV = append(seekUV, p)
			idx = append(idx, i)
		}
	}
	if len(idx) > 0 {
		// Renew buffers in case they were grown.
		c.idxbuf = idx
		c.uvbuf = seekUV
		c.posbuf = slices.Grow(c.posbuf[:0], len(seekUV))
		seekPos := c.posbuf[:len(seekUV)]
		err := c.patch.Evaluate(seekUV, seekPos, userData)
		if err != nil {
			return err
		}
		for i, p := range seekUV {
			c.m[uvKey(p)] = seekPos[i]
		}
		for i, p := range seekPos {
			pos[idx[i]] = p
		}
	}
	c.evals += uint64(len(pos))
	c.hits += uint64(len(pos) - len(seekUV))
	return nil
}

func uvKey(p ms2.Vec) [2]uint32 {
	return [2]uint32{math32.Float32bits(p.X), math32.Float32bits(p.Y)}
}
