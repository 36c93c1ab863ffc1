package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"meshapi/internal/config"
)

const (
	applicationName = "meshapi"
	pingTimeout     = 5 * time.Second
)

type openFunc func(dsn string) (*sql.DB, error)

// otelsql.Register adds a new driver on every call.
var (
	registerOnce sync.Once
	driverName   string
	registerErr  error
)

func otelDriver() (string, error) {
	registerOnce.Do(func() {
		driverName, registerErr = otelsql.Register("pgx",
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSQLCommenter(true),
		)
	})
	return driverName, registerErr
}

// DSN renders the model index connection URL, e.g.
// postgres://mesh:secret@db:5432/meshapi?application_name=meshapi&sslmode=disable
// The result is checked with pgx's own parser so a bad value fails at startup.
func DSN(c config.DatabaseConfig) (string, error) {
	var missing []error
	for _, f := range []struct{ name, value string }{
		{"host", c.Host}, {"port", c.Port}, {"user", c.User}, {"name", c.Name},
	} {
		if f.value == "" {
			missing = append(missing, fmt.Errorf("database %s is required", f.name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return "", err
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.User(c.User),
		Host:   c.Host + ":" + c.Port,
		Path:   c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{"application_name": {applicationName}}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()

	dsn := u.String()
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("database config: %w", err)
	}
	return dsn, nil
}

// NewPostgres opens the model index through the traced pgx driver and waits
// at most pingTimeout for the server to answer.
func NewPostgres(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	name, err := otelDriver()
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}
	return open(ctx, c, func(dsn string) (*sql.DB, error) {
		return sql.Open(name, dsn)
	})
}

func open(ctx context.Context, c config.DatabaseConfig, openDB openFunc) (*sql.DB, error) {
	dsn, err := DSN(c)
	if err != nil {
		return nil, err
	}
	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	configurePool(db, c)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// configurePool leaves database/sql defaults in place for unset values.
func configurePool(db *sql.DB, c config.DatabaseConfig) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetimeSec) * time.Second)
	}
}
