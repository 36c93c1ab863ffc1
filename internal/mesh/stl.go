package mesh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	stlHeaderSize = 80
	stlFacetSize  = 50
)

var stlHeader = []byte("meshapi binary STL")

// stlCodec reads binary and ASCII STL and writes binary STL.
type stlCodec struct{}

func (stlCodec) Decode(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}
	if isBinarySTL(data) {
		return decodeBinarySTL(data)
	}
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return decodeASCIISTL(data)
	}
	if len(data) < stlHeaderSize+4 {
		return nil, &ParseError{Format: "stl", Msg: "file too short"}
	}
	return nil, &ParseError{Format: "stl", Msg: "facet count does not match file size"}
}

// isBinarySTL reports whether the size of data matches the facet count in its header.
// ASCII files may start with the word "solid" too, so the size check comes first.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) == uint64(stlHeaderSize+4)+uint64(n)*stlFacetSize
}

func decodeBinarySTL(data []byte) (*Mesh, error) {
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	b := newBuilder()
	off := stlHeaderSize + 4
	for i := 0; i < n; i++ {
		facet := data[off : off+stlFacetSize]
		// 12 bytes of normal, then three corners.
		var p [3]Vec3
		for c := 0; c < 3; c++ {
			for k := 0; k < 3; k++ {
				bits := binary.LittleEndian.Uint32(facet[12+c*12+k*4:])
				p[c][k] = float64(math.Float32frombits(bits))
			}
		}
		b.triangle(p[0], p[1], p[2])
		off += stlFacetSize
	}
	return b.build("stl")
}

func decodeASCIISTL(data []byte) (*Mesh, error) {
	b := newBuilder()
	var (
		loop   []Vec3
		inLoop bool
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "outer":
			if inLoop {
				return nil, &ParseError{Format: "stl", Line: line, Msg: "nested loop"}
			}
			inLoop, loop = true, loop[:0]
		case "vertex":
			if !inLoop {
				return nil, &ParseError{Format: "stl", Line: line, Msg: "vertex outside loop"}
			}
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, &ParseError{Format: "stl", Line: line, Msg: err.Error()}
			}
			loop = append(loop, v)
		case "endloop":
			if !inLoop {
				return nil, &ParseError{Format: "stl", Line: line, Msg: "endloop without loop"}
			}
			if len(loop) < 3 {
				return nil, &ParseError{Format: "stl", Line: line, Msg: fmt.Sprintf("facet has %d vertices", len(loop))}
			}
			b.polygon(loop)
			inLoop = false
		case "solid", "endsolid", "facet", "endfacet":
		default:
			return nil, &ParseError{Format: "stl", Line: line, Msg: fmt.Sprintf("unexpected keyword %q", fields[0])}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}
	if inLoop {
		return nil, &ParseError{Format: "stl", Line: line, Msg: "unterminated loop"}
	}
	return b.build("stl")
}

func parseVec3(fields []string) (Vec3, error) {
	var v Vec3
	if len(fields) < 3 {
		return v, fmt.Errorf("expected 3 coordinates, got %d", len(fields))
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return v, fmt.Errorf("invalid coordinate %q", fields[i])
		}
		v[i] = f
	}
	return v, nil
}

func (stlCodec) Encode(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)

	header := make([]byte, stlHeaderSize+4)
	copy(header, stlHeader)
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(m.Faces)))
	if _, err := bw.Write(header); err != nil {
		return err
	}

	facet := make([]byte, stlFacetSize)
	for i := range m.Faces {
		t := m.Triangle(i)
		n := facetNormal(t)
		putVec3(facet[0:], n)
		putVec3(facet[12:], t[0])
		putVec3(facet[24:], t[1])
		putVec3(facet[36:], t[2])
		binary.LittleEndian.PutUint16(facet[48:], 0)
		if _, err := bw.Write(facet); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func putVec3(dst []byte, v Vec3) {
	for k := 0; k < 3; k++ {
		binary.LittleEndian.PutUint32(dst[k*4:], math.Float32bits(float32(v[k])))
	}
}

// facetNormal returns the unit normal of t, or the zero vector for degenerate triangles.
func facetNormal(t [3]Vec3) Vec3 {
	n := t[1].sub(t[0]).cross(t[2].sub(t[0]))
	l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if l == 0 {
		return Vec3{}
	}
	return Vec3{n[0] / l, n[1] / l, n[2] / l}
}
