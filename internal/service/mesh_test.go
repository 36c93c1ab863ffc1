package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
	"testing"

	"meshapi/internal/mesh"
	"meshapi/internal/metrics"
	"meshapi/internal/model"
	"meshapi/internal/repository"
	repoMocks "meshapi/internal/repository/mocks"
	"meshapi/internal/storage"
	storeMocks "meshapi/internal/storage/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var generatedName = regexp.MustCompile(`^[0-9a-f]{32}\.(stl|obj)$`)

func cube(t *testing.T, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := mesh.Export(&buf, mesh.Box(mesh.Vec3{0, 0, 0}, mesh.Vec3{1, 1, 1}), format)
	require.NoError(t, err)
	return buf.Bytes()
}

func newLocalService(t *testing.T, opts Options) (MeshService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocal(dir)
	require.NoError(t, err)
	return NewMeshService(store, nil, opts), dir
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestMeshService_UploadThenRetrieve(t *testing.T) {
	svc, dir := newLocalService(t, Options{})
	ctx := context.Background()
	data := cube(t, "stl")

	f, err := svc.Upload(ctx, bytes.NewReader(data), "cube.stl", int64(len(data)))
	require.NoError(t, err)
	assert.Regexp(t, generatedName, f.Filename)
	assert.Equal(t, f.ID+".stl", f.Filename)
	assert.Equal(t, "stl", f.Format)
	assert.Equal(t, model.KindUpload, f.Kind)
	assert.Equal(t, int64(len(data)), f.Size)
	assert.FileExists(t, dir+"/"+f.Filename)

	rc, info, err := svc.Retrieve(ctx, f.Filename)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "model/stl", info.ContentType)
	assert.Equal(t, int64(len(data)), info.Size)
}

func TestMeshService_UploadGeneratesDistinctNames(t *testing.T) {
	svc, dir := newLocalService(t, Options{})
	data := cube(t, "obj")

	a, err := svc.Upload(context.Background(), bytes.NewReader(data), "cube.OBJ", -1)
	require.NoError(t, err)
	b, err := svc.Upload(context.Background(), bytes.NewReader(data), "cube.OBJ", -1)
	require.NoError(t, err)

	assert.NotEqual(t, a.Filename, b.Filename)
	assert.True(t, strings.HasSuffix(a.Filename, ".obj"))
	assert.Len(t, dirNames(t, dir), 2)
}

func TestMeshService_UploadDisallowedWritesNothing(t *testing.T) {
	svc, dir := newLocalService(t, Options{})

	for _, name := range []string{"model.txt", "model", "", "archive.stl.zip", "notes.stl.txt"} {
		_, err := svc.Upload(context.Background(), strings.NewReader("solid x"), name, 7)
		assert.Equal(t, KindInvalid, KindOf(err), name)
		assert.EqualError(t, err, MsgNotAllowed, name)
		assert.ErrorIs(t, err, ErrNotAllowed, name)
	}
	assert.Empty(t, dirNames(t, dir))
}

func TestMeshService_Upload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name             string
		originalFilename string
		size             int64
		opts             Options
		setupMocks       func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockModelRepository) io.Reader
		wantKind         ErrorKind
		wantErrMsg       string
	}{
		{
			name:             "happy path strips client directories",
			originalFilename: `C:\scans\..\Cube.STL`,
			size:             5,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockModelRepository) io.Reader {
				r := strings.NewReader("hello")
				mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
					return generatedName.MatchString(key) && strings.HasSuffix(key, ".stl")
				}), r, storage.PutObjectOptions{
					Size:        5,
					ContentType: "model/stl",
					Metadata:    map[string]string{"original-filename": "Cube.STL"},
				}).Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
					return storage.ObjectInfo{Key: key, Size: 5}
				}, nil)
				mRepo.On("Create", ctx, mock.MatchedBy(func(f *model.MeshFile) bool {
					return f.Kind == model.KindUpload && f.Format == "stl" && f.Size == 5
				})).Return(&model.MeshFile{}, nil)
				return r
			},
		},
		{
			name:             "index failure is not surfaced",
			originalFilename: "cube.obj",
			size:             5,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockModelRepository) io.Reader {
				r := strings.NewReader("hello")
				mStore.On("Put", ctx, mock.Anything, r, mock.Anything).
					Return(storage.ObjectInfo{Size: 5}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db down"))
				return r
			},
		},
		{
			name:             "validation error - nil reader",
			originalFilename: "cube.stl",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockModelRepository) io.Reader {
				return nil
			},
			wantKind:   KindInvalid,
			wantErrMsg: MsgNoFilePart,
		},
		{
			name:             "declared size over the cap",
			originalFilename: "cube.stl",
			size:             2048,
			opts:             Options{MaxUploadBytes: 1024},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockModelRepository) io.Reader {
				return strings.NewReader("x")
			},
			wantKind:   KindTooLarge,
			wantErrMsg: MsgTooLarge,
		},
		{
			name:             "format outside a narrowed allowed set",
			originalFilename: "cube.obj",
			opts:             Options{AllowedFormats: []string{"STL"}},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockModelRepository) io.Reader {
				return strings.NewReader("x")
			},
			wantKind:   KindInvalid,
			wantErrMsg: MsgNotAllowed,
		},
		{
			name:             "storage error",
			originalFilename: "cube.stl",
			size:             5,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockModelRepository) io.Reader {
				r := strings.NewReader("hello")
				mStore.On("Put", ctx, mock.Anything, r, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("disk full"))
				return r
			},
			wantKind:   KindInternal,
			wantErrMsg: MsgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockModelRepository)
			svc := NewMeshService(mStore, mRepo, tt.opts)

			r := tt.setupMocks(mStore, mRepo)
			f, err := svc.Upload(ctx, r, tt.originalFilename, tt.size)

			if tt.wantErrMsg != "" {
				assert.Nil(t, f)
				assert.EqualError(t, err, tt.wantErrMsg)
				assert.Equal(t, tt.wantKind, KindOf(err))
			} else {
				require.NoError(t, err)
				require.NotNil(t, f)
				assert.Regexp(t, generatedName, f.Filename)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestMeshService_RetrieveNotFound(t *testing.T) {
	svc, _ := newLocalService(t, Options{})

	names := []string{
		"0123456789abcdef0123456789abcdef.stl",
		"../etc/passwd",
		"../../secret.stl",
		"a/b.stl",
		`a\b.stl`,
		"..",
		"",
		"model.txt",
		"cube",
	}
	for _, name := range names {
		rc, _, err := svc.Retrieve(context.Background(), name)
		assert.Nil(t, rc, name)
		assert.Equal(t, KindNotFound, KindOf(err), name)
		assert.EqualError(t, err, MsgNotFound, name)
	}
}

func TestMeshService_RetrieveStorageFault(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mStore.On("Get", mock.Anything, "abc.obj").Return(nil, storage.ObjectInfo{}, errors.New("connection refused"))

	svc := NewMeshService(mStore, nil, Options{})
	_, _, err := svc.Retrieve(context.Background(), "abc.obj")

	assert.Equal(t, KindInternal, KindOf(err))
	mStore.AssertExpectations(t)
}

func TestMeshService_ConvertRoundTrips(t *testing.T) {
	pairs := []struct{ from, to string }{
		{"stl", "obj"},
		{"obj", "stl"},
		{"stl", "stl"},
		{"obj", "obj"},
	}
	for _, p := range pairs {
		t.Run(p.from+"->"+p.to, func(t *testing.T) {
			svc, dir := newLocalService(t, Options{})
			ctx := context.Background()

			res, err := svc.Convert(ctx, bytes.NewReader(cube(t, p.from)), "cube."+p.from, -1, p.from, p.to)
			require.NoError(t, err)

			assert.Equal(t, "model."+p.to, res.Filename)
			assert.Equal(t, p.to, res.Format)
			assert.Equal(t, 8, res.Vertices)
			assert.Equal(t, 12, res.Faces)

			m, err := mesh.Load(bytes.NewReader(res.Data), p.to)
			require.NoError(t, err)
			assert.Len(t, m.Vertices, 8)
			assert.Len(t, m.Faces, 12)

			assert.Equal(t, []string{res.StoredAs}, dirNames(t, dir), "only the export artifact remains")
			assert.Regexp(t, `^export_[0-9a-f]{32}\.`+p.to+`$`, res.StoredAs)

			rc, _, err := svc.Retrieve(ctx, res.StoredAs)
			require.NoError(t, err)
			defer rc.Close()
			stored, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, res.Data, stored)
		})
	}
}

func TestMeshService_ConvertRejects(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     string
	}{
		{name: "missing target", from: "stl", to: "", want: MsgMissingInfo},
		{name: "missing source", from: "  ", to: "obj", want: MsgMissingInfo},
		{name: "unknown target", from: "stl", to: "ply", want: MsgUnsupportedFormat},
		{name: "unknown source", from: "3mf", to: "stl", want: MsgUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, dir := newLocalService(t, Options{})
			res, err := svc.Convert(context.Background(), bytes.NewReader(cube(t, "stl")), "cube.stl", -1, tt.from, tt.to)
			assert.Nil(t, res)
			assert.EqualError(t, err, tt.want)
			assert.Equal(t, KindInvalid, KindOf(err))
			assert.Empty(t, dirNames(t, dir))
		})
	}
}

func TestMeshService_ConvertNormalizesFormats(t *testing.T) {
	svc, _ := newLocalService(t, Options{})
	res, err := svc.Convert(context.Background(), bytes.NewReader(cube(t, "stl")), "cube.stl", -1, " STL ", "Obj")
	require.NoError(t, err)
	assert.Equal(t, "model.obj", res.Filename)
}

func TestMeshService_ConvertParseFailureCleansUp(t *testing.T) {
	reg := prometheus.NewRegistry()
	gm, err := metrics.NewGateway(reg)
	require.NoError(t, err)

	svc, dir := newLocalService(t, Options{Metrics: gm})

	res, err := svc.Convert(context.Background(), strings.NewReader("this is not a mesh"), "junk.stl", -1, "stl", "obj")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, KindProcessing, KindOf(err))
	assert.NotEqual(t, MsgInternal, err.Error(), "parser message is surfaced")
	assert.Empty(t, dirNames(t, dir))

	count, err := testutil.GatherAndCount(reg, "mesh_conversions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMeshService_ConvertStorageFaults(t *testing.T) {
	t.Run("transient input cannot be stored", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, scratchPrefix)
		}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, errors.New("read-only file system"))

		svc := NewMeshService(mStore, nil, Options{})
		_, err := svc.Convert(context.Background(), bytes.NewReader(cube(t, "stl")), "cube.stl", -1, "stl", "obj")

		assert.Equal(t, KindInternal, KindOf(err))
		mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		mStore.AssertExpectations(t)
	})

	t.Run("export cannot be stored", func(t *testing.T) {
		data := cube(t, "stl")
		mStore := new(storeMocks.MockStorage)
		svc := NewMeshService(mStore, nil, Options{})
		svc.(*meshService).newID = func() string { return "feedface" }

		mStore.On("Put", mock.Anything, "temp_input_feedface.stl", mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{Key: "temp_input_feedface.stl"}, nil)
		mStore.On("Get", mock.Anything, "temp_input_feedface.stl").
			Return(io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{}, nil)
		mStore.On("Put", mock.Anything, "export_feedface.obj", mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{}, errors.New("quota exceeded"))
		mStore.On("Delete", mock.Anything, "temp_input_feedface.stl").Return(nil).Once()

		_, err := svc.Convert(context.Background(), bytes.NewReader(data), "cube.stl", -1, "stl", "obj")

		assert.Equal(t, KindInternal, KindOf(err))
		mStore.AssertExpectations(t)
	})
}

func TestMeshService_ConvertForwardsInputSize(t *testing.T) {
	data := cube(t, "stl")
	mStore := new(storeMocks.MockStorage)
	svc := NewMeshService(mStore, nil, Options{})
	svc.(*meshService).newID = func() string { return "c0ffee" }

	mStore.On("Put", mock.Anything, "temp_input_c0ffee.stl", mock.Anything, storage.PutObjectOptions{Size: int64(len(data))}).
		Return(storage.ObjectInfo{Key: "temp_input_c0ffee.stl"}, nil).Once()
	mStore.On("Get", mock.Anything, "temp_input_c0ffee.stl").
		Return(io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{}, nil)
	mStore.On("Put", mock.Anything, "export_c0ffee.obj", mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
		return opt.Size > 0 && opt.ContentType == "model/obj"
	})).Return(storage.ObjectInfo{}, nil).Once()
	mStore.On("Delete", mock.Anything, "temp_input_c0ffee.stl").Return(nil).Once()

	res, err := svc.Convert(context.Background(), bytes.NewReader(data), "cube.stl", int64(len(data)), "stl", "obj")
	require.NoError(t, err)
	assert.Equal(t, "export_c0ffee.obj", res.StoredAs)
	mStore.AssertExpectations(t)
}

func TestMeshService_ConvertDeclaredSizeOverCap(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	svc := NewMeshService(mStore, nil, Options{MaxUploadBytes: 64})

	res, err := svc.Convert(context.Background(), strings.NewReader("solid"), "cube.stl", 65, "stl", "obj")
	assert.Nil(t, res)
	assert.EqualError(t, err, MsgTooLarge)
	assert.Equal(t, KindTooLarge, KindOf(err))
	mStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMeshService_ConvertIndexesExport(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocal(dir)
	require.NoError(t, err)

	mRepo := new(repoMocks.MockModelRepository)
	mRepo.On("Create", mock.Anything, mock.MatchedBy(func(f *model.MeshFile) bool {
		return f.Kind == model.KindExport && f.Format == "obj" && strings.HasPrefix(f.Filename, exportPrefix)
	})).Return(&model.MeshFile{}, nil).Once()

	svc := NewMeshService(store, mRepo, Options{})
	_, err = svc.Convert(context.Background(), bytes.NewReader(cube(t, "stl")), "cube.stl", -1, "stl", "obj")
	require.NoError(t, err)
	mRepo.AssertExpectations(t)
}

func TestMeshService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults and clamping", func(t *testing.T) {
		mRepo := new(repoMocks.MockModelRepository)
		mRepo.On("List", ctx, repository.PageQuery{Limit: 10, Offset: 0}).
			Return(&repository.PageResult[model.MeshFile]{
				Items: []model.MeshFile{{Filename: "a.stl"}},
				Total: 1,
			}, nil)

		svc := NewMeshService(new(storeMocks.MockStorage), mRepo, Options{})
		res, err := svc.List(ctx, 0, -5)

		require.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		assert.Len(t, res.Items, 1)
		mRepo.AssertExpectations(t)
	})

	t.Run("repository error", func(t *testing.T) {
		mRepo := new(repoMocks.MockModelRepository)
		mRepo.On("List", ctx, repository.PageQuery{Limit: 5, Offset: 10}).Return(nil, errors.New("db fail"))

		svc := NewMeshService(new(storeMocks.MockStorage), mRepo, Options{})
		res, err := svc.List(ctx, 5, 10)

		assert.Nil(t, res)
		assert.Equal(t, KindInternal, KindOf(err))
		assert.ErrorContains(t, errors.Unwrap(err), "db fail")
	})

	t.Run("no index configured", func(t *testing.T) {
		svc, _ := newLocalService(t, Options{})
		res, err := svc.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Total)
	})
}

func TestError(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, "File not found", notFound(cause).Error())
	assert.Equal(t, "boom", (&Error{Kind: KindInternal, Err: cause}).Error())
	assert.Equal(t, "processing", (&Error{Kind: KindProcessing}).Error())
	assert.Equal(t, "boom", processing(cause).Error())
	assert.ErrorIs(t, internal(cause), cause)
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Equal(t, KindNotFound, KindOf(notFound(cause)))
}
