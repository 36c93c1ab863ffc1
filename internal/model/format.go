package model

import (
	"path/filepath"
	"strings"
)

// Supported mesh formats.
const (
	FormatSTL = "stl"
	FormatOBJ = "obj"
)

// DefaultFormats is the allowed set used when configuration names none.
var DefaultFormats = []string{FormatSTL, FormatOBJ}

var contentTypes = map[string]string{
	FormatSTL: "model/stl",
	FormatOBJ: "model/obj",
}

// NormalizeFormat lowercases and trims a declared format name.
func NormalizeFormat(f string) string {
	return strings.ToLower(strings.TrimSpace(f))
}

// Ext returns the lowercased extension of name without the dot, or "" when name has none.
func Ext(name string) string {
	ext := filepath.Ext(name)
	if len(ext) < 2 {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// ContentType returns the media type served for a stored mesh with the given extension.
func ContentType(format string) string {
	if ct, ok := contentTypes[NormalizeFormat(format)]; ok {
		return ct
	}
	return "application/octet-stream"
}
