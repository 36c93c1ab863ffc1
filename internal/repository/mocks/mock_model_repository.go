package mocks

import (
	"context"

	"meshapi/internal/model"
	"meshapi/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockModelRepository struct {
	mock.Mock
}

func (m *MockModelRepository) Create(ctx context.Context, f *model.MeshFile) (*model.MeshFile, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MeshFile), args.Error(1)
}

func (m *MockModelRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.MeshFile], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.MeshFile]), args.Error(1)
}
