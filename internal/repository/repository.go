// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import (
	"context"

	"meshapi/internal/model"
)

// Noop is the index used when no database is configured: it accepts records and
// lists nothing.
type Noop struct{}

var _ ModelRepository = Noop{}

func (Noop) Create(_ context.Context, f *model.MeshFile) (*model.MeshFile, error) {
	return f, nil
}

func (Noop) List(_ context.Context, _ PageQuery) (*PageResult[model.MeshFile], error) {
	return &PageResult[model.MeshFile]{Items: []model.MeshFile{}}, nil
}
