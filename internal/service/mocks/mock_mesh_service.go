package mocks

import (
	"context"
	"io"

	"meshapi/internal/model"
	"meshapi/internal/service"
	"meshapi/internal/storage"
	"github.com/stretchr/testify/mock"
)

type MockMeshService struct {
	mock.Mock
}

func (m *MockMeshService) Upload(ctx context.Context, r io.Reader, originalFilename string, size int64) (*model.MeshFile, error) {
	args := m.Called(ctx, r, originalFilename, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MeshFile), args.Error(1)
}

func (m *MockMeshService) Retrieve(ctx context.Context, filename string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, filename)
	rc, _ := args.Get(0).(io.ReadCloser)
	info, _ := args.Get(1).(storage.ObjectInfo)
	return rc, info, args.Error(2)
}

func (m *MockMeshService) Convert(ctx context.Context, r io.Reader, originalFilename string, size int64, from, to string) (*service.ConversionResult, error) {
	args := m.Called(ctx, r, originalFilename, size, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ConversionResult), args.Error(1)
}

func (m *MockMeshService) List(ctx context.Context, limit, offset int) (*service.ModelListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ModelListResult), args.Error(1)
}
