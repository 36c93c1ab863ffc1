// Package mesh loads and writes triangle meshes in the formats the gateway accepts.
//
// Callers see two operations, Load and Export, keyed by a lowercase format name.
// Loading always produces a welded mesh: coincident corners share one vertex and
// vertices no face references are dropped, so the counts of a mesh do not depend on
// whether it came from a facet list (STL) or an indexed list (OBJ).
package mesh

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when no codec handles the requested format.
	ErrUnsupportedFormat = errors.New("unsupported mesh format")
	// ErrEmptyMesh is returned when an input holds no faces.
	ErrEmptyMesh = errors.New("mesh has no faces")
)

// Vec3 is a point in model space.
type Vec3 [3]float64

func (v Vec3) sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }

func (v Vec3) cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Face is a triangle given as three indices into Mesh.Vertices.
type Face [3]int

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Vertices []Vec3
	Faces    []Face
}

// Triangle returns the corner positions of face i.
func (m *Mesh) Triangle(i int) [3]Vec3 {
	f := m.Faces[i]
	return [3]Vec3{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
}

// ParseError reports malformed input. Line is 0 for binary inputs.
type ParseError struct {
	Format string
	Line   int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Format, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Msg)
}

// builder accumulates triangles and welds identical positions.
type builder struct {
	index map[Vec3]int
	mesh  Mesh
}

func newBuilder() *builder {
	return &builder{index: make(map[Vec3]int)}
}

func (b *builder) vertex(v Vec3) int {
	if i, ok := b.index[v]; ok {
		return i
	}
	i := len(b.mesh.Vertices)
	b.mesh.Vertices = append(b.mesh.Vertices, v)
	b.index[v] = i
	return i
}

func (b *builder) triangle(p0, p1, p2 Vec3) {
	b.mesh.Faces = append(b.mesh.Faces, Face{b.vertex(p0), b.vertex(p1), b.vertex(p2)})
}

// polygon fan-triangulates a convex polygon.
func (b *builder) polygon(pts []Vec3) {
	for i := 1; i+1 < len(pts); i++ {
		b.triangle(pts[0], pts[i], pts[i+1])
	}
}

func (b *builder) build(format string) (*Mesh, error) {
	if len(b.mesh.Faces) == 0 {
		return nil, &ParseError{Format: format, Msg: ErrEmptyMesh.Error()}
	}
	m := b.mesh
	return &m, nil
}

func (m *Mesh) validate() error {
	n := len(m.Vertices)
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("face %d references vertex %d of %d", i, idx, n)
			}
		}
	}
	return nil
}
