package mesh

import (
	"fmt"
	"io"
	"strings"
)

// Decoder reads a mesh from its serialized form.
type Decoder interface {
	Decode(r io.Reader) (*Mesh, error)
}

// Encoder writes a mesh in a serialized form.
type Encoder interface {
	Encode(w io.Writer, m *Mesh) error
}

var (
	decoders = map[string]Decoder{
		"stl": stlCodec{},
		"obj": objCodec{},
	}
	encoders = map[string]Encoder{
		"stl": stlCodec{},
		"obj": objCodec{},
	}
)

// Supports reports whether format can be both loaded and exported.
func Supports(format string) bool {
	return CanRead(format) && CanWrite(format)
}

// CanRead reports whether Load understands format.
func CanRead(format string) bool {
	_, ok := decoders[strings.ToLower(format)]
	return ok
}

// CanWrite reports whether Export can produce format.
func CanWrite(format string) bool {
	_, ok := encoders[strings.ToLower(format)]
	return ok
}

// Load parses r as format.
func Load(r io.Reader, format string) (*Mesh, error) {
	dec, ok := decoders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("load %q: %w", format, ErrUnsupportedFormat)
	}
	return dec.Decode(r)
}

// Export writes m to w as format and returns the number of bytes written.
func Export(w io.Writer, m *Mesh, format string) (int64, error) {
	enc, ok := encoders[strings.ToLower(format)]
	if !ok {
		return 0, fmt.Errorf("export %q: %w", format, ErrUnsupportedFormat)
	}
	if m == nil || len(m.Faces) == 0 {
		return 0, fmt.Errorf("export %q: %w", format, ErrEmptyMesh)
	}
	if err := m.validate(); err != nil {
		return 0, fmt.Errorf("export %q: %w", format, err)
	}
	cw := &countingWriter{w: w}
	if err := enc.Encode(cw, m); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
