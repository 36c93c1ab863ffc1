package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"meshapi/internal/model"
	"meshapi/internal/repository"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "filename", "format", "kind", "size", "created_at"}

func TestModelPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewModelPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	f := &model.MeshFile{
		ID:        "0f5e0c1d2a3b4c5d6e7f8091a2b3c4d5",
		Filename:  "0f5e0c1d2a3b4c5d6e7f8091a2b3c4d5.stl",
		Format:    "stl",
		Kind:      model.KindUpload,
		Size:      684,
		CreatedAt: now,
	}

	rows := sqlmock.NewRows(columns).
		AddRow(f.ID, f.Filename, f.Format, string(f.Kind), f.Size, f.CreatedAt)

	mock.ExpectQuery("INSERT INTO mesh_files").
		WithArgs(f.ID, f.Filename, f.Format, "upload", f.Size, f.CreatedAt).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, f)

	assert.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, f.ID, result.ID)
	assert.Equal(t, model.KindUpload, result.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModelPostgres_CreateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO mesh_files").WillReturnError(errors.New("duplicate key"))

	result, err := NewModelPostgres(db).Create(context.Background(), &model.MeshFile{ID: "x", Kind: model.KindExport})
	assert.EqualError(t, err, "duplicate key")
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModelPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewModelPostgres(db)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM mesh_files").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		rows := sqlmock.NewRows(columns).
			AddRow("b", "export_b.obj", "obj", "export", 412, time.Now()).
			AddRow("a", "a.stl", "stl", "upload", 684, time.Now().Add(-time.Minute))
		mock.ExpectQuery("SELECT (.+) FROM mesh_files ORDER BY created_at DESC").
			WithArgs(10, 0).
			WillReturnRows(rows)

		res, err := repo.List(ctx, repository.PageQuery{Limit: 10, Offset: 0})

		assert.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, 2, res.Total)
		require.Len(t, res.Items, 2)
		assert.Equal(t, model.KindExport, res.Items[0].Kind)
		assert.Equal(t, "a.stl", res.Items[1].Filename)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count error", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM mesh_files").
			WillReturnError(errors.New("connection reset"))

		res, err := repo.List(ctx, repository.PageQuery{Limit: 10})

		assert.Error(t, err)
		assert.Nil(t, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty page", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM mesh_files").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT (.+) FROM mesh_files").
			WithArgs(5, 20).
			WillReturnRows(sqlmock.NewRows(columns))

		res, err := repo.List(ctx, repository.PageQuery{Limit: 5, Offset: 20})

		assert.NoError(t, err)
		require.NotNil(t, res)
		assert.Empty(t, res.Items)
		assert.NotNil(t, res.Items)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
