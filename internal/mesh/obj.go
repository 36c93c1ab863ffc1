package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// objCodec reads and writes Wavefront OBJ geometry. Only positions and faces are
// kept; texture coordinates, normals, groups and materials are ignored on read.
type objCodec struct{}

func (objCodec) Decode(r io.Reader) (*Mesh, error) {
	var (
		positions []Vec3
		polygons  [][]int
		line      int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, &ParseError{Format: "obj", Line: line, Msg: err.Error()}
			}
			positions = append(positions, v)
		case "f":
			if len(fields) < 4 {
				return nil, &ParseError{Format: "obj", Line: line, Msg: "face needs at least 3 vertices"}
			}
			poly := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				idx, err := resolveObjIndex(ref, len(positions))
				if err != nil {
					return nil, &ParseError{Format: "obj", Line: line, Msg: err.Error()}
				}
				poly = append(poly, idx)
			}
			polygons = append(polygons, poly)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read obj: %w", err)
	}

	b := newBuilder()
	pts := make([]Vec3, 0, 4)
	for _, poly := range polygons {
		pts = pts[:0]
		for _, idx := range poly {
			if idx >= len(positions) {
				return nil, &ParseError{Format: "obj", Msg: fmt.Sprintf("face references vertex %d of %d", idx+1, len(positions))}
			}
			pts = append(pts, positions[idx])
		}
		b.polygon(pts)
	}
	return b.build("obj")
}

// resolveObjIndex turns a face reference such as "3", "3/1", "3/1/2", "3//2" or "-1"
// into a zero-based position index. Negative references count back from the
// vertices seen so far.
func resolveObjIndex(ref string, seen int) (int, error) {
	head, _, _ := strings.Cut(ref, "/")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("invalid face reference %q", ref)
	}
	switch {
	case n > 0:
		return n - 1, nil
	case n < 0 && seen+n >= 0:
		return seen + n, nil
	default:
		return 0, fmt.Errorf("face reference %q out of range", ref)
	}
}

func (objCodec) Encode(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "# meshapi\n# vertices %d faces %d\n", len(m.Vertices), len(m.Faces)); err != nil {
		return err
	}

	buf := make([]byte, 0, 96)
	for _, v := range m.Vertices {
		buf = append(buf[:0], 'v')
		for k := 0; k < 3; k++ {
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, v[k], 'f', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	for _, f := range m.Faces {
		buf = append(buf[:0], 'f')
		for k := 0; k < 3; k++ {
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(f[k]+1), 10)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
