package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"meshapi/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexConfig mirrors the defaults the gateway ships for its model index.
func indexConfig() config.DatabaseConfig {
	d := config.Default().Database
	d.Host = "db"
	d.User = "mesh"
	d.Password = "secret"
	d.Name = "meshapi"
	return d
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.DatabaseConfig)
		want    string
		wantErr []string
	}{
		{
			name: "gateway defaults",
			want: "postgres://mesh:secret@db:5432/meshapi?application_name=meshapi&sslmode=disable",
		},
		{
			name:   "no password",
			mutate: func(d *config.DatabaseConfig) { d.Password = "" },
			want:   "postgres://mesh@db:5432/meshapi?application_name=meshapi&sslmode=disable",
		},
		{
			name:   "sslmode left to the driver",
			mutate: func(d *config.DatabaseConfig) { d.SSLMode = "" },
			want:   "postgres://mesh:secret@db:5432/meshapi?application_name=meshapi",
		},
		{
			name: "reserved characters are escaped",
			mutate: func(d *config.DatabaseConfig) {
				d.Password = "p@ss/word"
				d.Port = "6432"
				d.SSLMode = "require"
			},
			want: "postgres://mesh:p%40ss%2Fword@db:6432/meshapi?application_name=meshapi&sslmode=require",
		},
		{
			name:    "missing fields are all reported",
			mutate:  func(d *config.DatabaseConfig) { d.Host, d.Name = "", "" },
			wantErr: []string{"database host is required", "database name is required"},
		},
		{
			name:    "unknown sslmode is rejected by pgx",
			mutate:  func(d *config.DatabaseConfig) { d.SSLMode = "sometimes" },
			wantErr: []string{"database config"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := indexConfig()
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			got, err := DSN(c)
			if len(tt.wantErr) > 0 {
				for _, msg := range tt.wantErr {
					assert.ErrorContains(t, err, msg)
				}
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen(t *testing.T) {
	withMock := func(t *testing.T) (openFunc, sqlmock.Sqlmock) {
		t.Helper()
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return func(dsn string) (*sql.DB, error) {
			assert.Contains(t, dsn, "application_name=meshapi")
			return db, nil
		}, mock
	}

	t.Run("applies the pool settings", func(t *testing.T) {
		openDB, mock := withMock(t)
		mock.ExpectPing()

		db, err := open(context.Background(), indexConfig(), openDB)
		require.NoError(t, err)
		assert.Equal(t, 10, db.Stats().MaxOpenConnections)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("open error", func(t *testing.T) {
		db, err := open(context.Background(), indexConfig(), func(string) (*sql.DB, error) {
			return nil, errors.New("open error")
		})
		assert.ErrorContains(t, err, "sql open: open error")
		assert.Nil(t, db)
	})

	t.Run("ping error", func(t *testing.T) {
		openDB, mock := withMock(t)
		mock.ExpectPing().WillReturnError(errors.New("ping failed"))

		db, err := open(context.Background(), indexConfig(), openDB)
		assert.ErrorContains(t, err, "db ping: ping failed")
		assert.Nil(t, db)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancelled context fails the ping", func(t *testing.T) {
		openDB, mock := withMock(t)
		mock.ExpectPing()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		db, err := open(ctx, indexConfig(), openDB)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("invalid config never opens", func(t *testing.T) {
		db, err := open(context.Background(), config.DatabaseConfig{}, func(string) (*sql.DB, error) {
			t.Fatal("opened with an invalid config")
			return nil, nil
		})
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}
