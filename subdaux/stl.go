package subdaux

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/soypat/geometry/ms3"
)

const (
	stlHeaderSize = 80
	stlTriSize    = 50
)

// WriteBinarySTL writes triangles to w in the binary STL format. Facet normals
// are computed from the counter-clockwise winding of each triangle.
func WriteBinarySTL(w io.Writer, triangles []ms3.Triangle) (int, error) {
	if uint64(len(triangles)) > math.MaxUint32 {
		return 0, errors.New("too many triangles for STL")
	}
	var header [stlHeaderSize + 4]byte
	copy(header[:], "binary STL written by subd")
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(triangles)))
	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	// Batch facets to keep the amount of writes low.
	const batch = 256
	buf := make([]byte, 0, batch*stlTriSize)
	for i, t := range triangles {
		buf = appendFacet(buf, t)
		if len(buf) == cap(buf) || i == len(triangles)-1 {
			ngot, err := w.Write(buf)
			n += ngot
			if err != nil {
				return n, err
			}
			buf = buf[:0]
		}
	}
	return n, nil
}

func appendFacet(dst []byte, t ms3.Triangle) []byte {
	normal := ms3.Cross(ms3.Sub(t[1], t[0]), ms3.Sub(t[2], t[0]))
	if l := ms3.Norm(normal); l > 0 {
		normal = ms3.Scale(1/l, normal)
	}
	for _, v := range [4]ms3.Vec{normal, t[0], t[1], t[2]} {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.X))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Y))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Z))
	}
	return binary.LittleEndian.AppendUint16(dst, 0) // Attribute byte count.
}

// ReadBinarySTL reads the triangles of a binary STL. Facet normals are discarded.
func ReadBinarySTL(r io.Reader) ([]ms3.Triangle, error) {
	var header [stlHeaderSize + 4]byte
	_, err := io.ReadFull(r, header[:])
	if err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(header[stlHeaderSize:])
	triangles := make([]ms3.Triangle, 0, min(count, 1<<20))
	var facet [stlTriSize]byte
	for i := uint32(0); i < count; i++ {
		_, err = io.ReadFull(r, facet[:])
		if err != nil {
			return triangles, err
		}
		var t ms3.Triangle
		for j := range t {
			off := 12 * (j + 1)
			t[j] = ms3.Vec{
				X: math.Float32frombits(binary.LittleEndian.Uint32(facet[off:])),
				Y: math.Float32frombits(binary.LittleEndian.Uint32(facet[off+4:])),
				Z: math.Float32frombits(binary.LittleEndian.Uint32(facet[off+8:])),
			}
		}
		triangles = append(triangles, t)
	}
	return triangles, nil
}
