// Package storage holds the artifact stores the gateway writes meshes to.
//
// Keys are flat object names such as "3f2c....stl": one path segment, no separators,
// no dot segments. Every backend validates keys with ValidateKey before touching
// the underlying store, so a key can never address anything outside it.
package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned by Get when no object exists under the key.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that are not a single safe name.
	ErrInvalidKey = errors.New("invalid object key")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the artifact store used by the gateway.
type Storage interface {
	// Put writes an object under the given key. Callers generate unique keys; the
	// local backend additionally refuses to replace an existing file.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get returns an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// PingContext reports whether the store is reachable.
	PingContext(ctx context.Context) error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9]+$`)

// ValidateKey returns ErrInvalidKey unless key is a plain "name.ext" object name.
func ValidateKey(key string) error {
	if len(key) > 255 || !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}
