package storage

import (
	"context"
	"io"
)

// Scratch is a transient object. It exists from NewScratch until Release, and
// callers pair the two with defer so the object goes away on every return path.
type Scratch struct {
	store    Storage
	key      string
	released bool
}

// NewScratch stores r under key and returns the guard owning it. size is the
// exact length of r, or -1 when unknown.
func NewScratch(ctx context.Context, store Storage, key string, r io.Reader, size int64) (*Scratch, error) {
	if _, err := store.Put(ctx, key, r, PutObjectOptions{Size: size}); err != nil {
		return nil, err
	}
	return &Scratch{store: store, key: key}, nil
}

// Key returns the object name.
func (s *Scratch) Key() string { return s.key }

// Open reads the object back.
func (s *Scratch) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, _, err := s.store.Get(ctx, s.key)
	return rc, err
}

// Release deletes the object. It runs even when ctx is already cancelled and is
// a no-op on a nil or already released guard.
func (s *Scratch) Release(ctx context.Context) error {
	if s == nil || s.released {
		return nil
	}
	s.released = true
	return s.store.Delete(context.WithoutCancel(ctx), s.key)
}
