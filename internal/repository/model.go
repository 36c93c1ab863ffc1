package repository

import (
	"context"

	"meshapi/internal/model"
)

// ModelRepository records stored mesh artifacts. It indexes artifacts; the bytes
// themselves live in storage.
type ModelRepository interface {
	// Create inserts a new record and returns it as stored.
	Create(ctx context.Context, f *model.MeshFile) (*model.MeshFile, error)

	// List returns a page of records, newest first, and the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.MeshFile], error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
