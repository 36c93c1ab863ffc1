package model

import "time"

// Kind tells whether a stored artifact came from an upload or a conversion.
type Kind string

const (
	KindUpload Kind = "upload"
	KindExport Kind = "export"
)

// MeshFile describes a mesh artifact held in temporary storage.
// Like the rest of this package it carries no persistence-specific tags.
type MeshFile struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	Kind      Kind      `json:"kind"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
