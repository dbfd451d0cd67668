package subd

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Mesh holds the output of one or more dicing operations. P, UV and N are
// indexed by vertex and always share the same length. Tris index into P.
//
// Dicers never reallocate a Mesh on their own; space is claimed with [Mesh.Grow]
// before writing, which lets callers hand disjoint regions to concurrent dicers.
type Mesh struct {
	// P holds vertex positions in patch (object) space.
	P []ms3.Vec
	// UV holds the patch parametric coordinates each vertex was evaluated at.
	UV []ms2.Vec
	// N holds unit normals. Entries are zero for patches that do not implement [NormalPatch].
	N []ms3.Vec
	// Tris holds counter-clockwise (in parameter space) vertex index triples.
	Tris [][3]int
}

// Grow extends the mesh by numVerts vertices and numTris triangles and returns
// the index of the first vertex and triangle of the new region. Grow is amortized
// so it may be called once per subpatch. It panics on negative counts.
func (m *Mesh) Grow(numVerts, numTris int) (vertStart, triStart int) {
	if numVerts < 0 || numTris < 0 {
		panic("negative mesh growth")
	}
	vertStart = len(m.P)
	triStart = len(m.Tris)
	m.P = slices.Grow(m.P, numVerts)[:vertStart+numVerts]
	m.UV = slices.Grow(m.UV[:vertStart], numVerts)[:vertStart+numVerts]
	m.N = slices.Grow(m.N[:vertStart], numVerts)[:vertStart+numVerts]
	m.Tris = slices.Grow(m.Tris, numTris)[:triStart+numTris]
	clear(m.N[vertStart:]) // Reused buffers may hold stale normals.
	return vertStart, triStart
}

// Reset empties the mesh keeping the underlying buffers for reuse.
func (m *Mesh) Reset() {
	*m = Mesh{
		P:    m.P[:0],
		UV:   m.UV[:0],
		N:    m.N[:0],
		Tris: m.Tris[:0],
	}
}

// NumVerts returns the amount of vertices in the mesh.
func (m *Mesh) NumVerts() int { return len(m.P) }

// NumTris returns the amount of triangles in the mesh.
func (m *Mesh) NumTris() int { return len(m.Tris) }

// AppendTriangles appends the mesh's triangles to dst transformed by objectToWorld.
// A zero objectToWorld leaves positions in patch space.
func (m *Mesh) AppendTriangles(dst []ms3.Triangle, objectToWorld ms3.Mat4) []ms3.Triangle {
	identity := objectToWorld == (ms3.Mat4{})
	dst = slices.Grow(dst, len(m.Tris))
	for _, tri := range m.Tris {
		t := ms3.Triangle{m.P[tri[0]], m.P[tri[1]], m.P[tri[2]]}
		if !identity {
			for i := range t {
				t[i] = objectToWorld.MulPosition(t[i])
			}
		}
		dst = append(dst, t)
	}
	return dst
}

// Bounds returns the bounding box of the mesh vertices.
func (m *Mesh) Bounds() ms3.Box {
	if len(m.P) == 0 {
		return ms3.Box{}
	}
	bb := ms3.Box{Min: m.P[0], Max: m.P[0]}
	for _, p := range m.P[1:] {
		bb.Min = ms3.MinElem(bb.Min, p)
		bb.Max = ms3.MaxElem(bb.Max, p)
	}
	return bb
}

// OpenEdges returns the edges used by a single triangle once vertices with
// bit-identical positions are merged. A watertight closed surface has none.
// Returned edges reference the lowest vertex index found at each position.
func (m *Mesh) OpenEdges() [][2]int {
	type key [3]uint32
	canon := make([]int, len(m.P))
	seen := make(map[key]int, len(m.P))
	for i, p := range m.P {
		k := key{math32.Float32bits(p.X), math32.Float32bits(p.Y), math32.Float32bits(p.Z)}
		if first, ok := seen[k]; ok {
			canon[i] = first
		} else {
			seen[k] = i
			canon[i] = i
		}
	}
	// Directed edge counts: an interior edge appears once in each direction.
	edges := make(map[[2]int]int, 3*len(m.Tris))
	for _, tri := range m.Tris {
		for i := 0; i < 3; i++ {
			a, b := canon[tri[i]], canon[tri[(i+1)%3]]
			edges[[2]int{a, b}]++
		}
	}
	var open [][2]int
	for e, n := range edges {
		rev := edges[[2]int{e[1], e[0]}]
		if n != rev {
			open = append(open, e)
		}
	}
	slices.SortFunc(open, func(a, b [2]int) int {
		if a[0] != b[0] {
			return a[0] - b[0]
		}
		return a[1] - b[1]
	})
	return open
}
