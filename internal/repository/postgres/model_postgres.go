package postgres

import (
	"context"
	"database/sql"

	"meshapi/internal/model"
	"meshapi/internal/repository"
)

// ModelPostgres is a PostgreSQL implementation of repository.ModelRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ModelPostgres struct {
	db *sql.DB
}

// NewModelPostgres creates a new ModelPostgres repository.
func NewModelPostgres(db *sql.DB) *ModelPostgres {
	return &ModelPostgres{db: db}
}

var _ repository.ModelRepository = (*ModelPostgres)(nil)

const modelColumns = `id, filename, format, kind, size, created_at`

// Create inserts a new mesh_files row and returns the stored record.
func (r *ModelPostgres) Create(ctx context.Context, f *model.MeshFile) (*model.MeshFile, error) {
	const q = `
		INSERT INTO mesh_files (` + modelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + modelColumns
	row := r.db.QueryRowContext(ctx, q,
		f.ID,
		f.Filename,
		f.Format,
		string(f.Kind),
		f.Size,
		f.CreatedAt,
	)
	out, err := scanMeshFile(row)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns records using LIMIT/OFFSET pagination and a total count.
func (r *ModelPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.MeshFile], error) {
	const qCount = `SELECT COUNT(*) FROM mesh_files`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + modelColumns + `
		FROM mesh_files
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.MeshFile, 0)
	for rows.Next() {
		f, err := scanMeshFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.MeshFile]{
		Items: items,
		Total: total,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeshFile(s scanner) (*model.MeshFile, error) {
	var (
		f    model.MeshFile
		kind string
	)
	if err := s.Scan(&f.ID, &f.Filename, &f.Format, &kind, &f.Size, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Kind = model.Kind(kind)
	return &f, nil
}
