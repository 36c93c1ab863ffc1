package service

import (
	"errors"
)

// ErrorKind classifies service failures. The HTTP layer maps each kind to one status code.
type ErrorKind string

const (
	KindInvalid    ErrorKind = "invalid"
	KindNotFound   ErrorKind = "not_found"
	KindTooLarge   ErrorKind = "too_large"
	KindProcessing ErrorKind = "processing"
	KindInternal   ErrorKind = "internal"
)

// Client-facing messages.
const (
	MsgNoFilePart        = "No file part"
	MsgNoSelectedFile    = "No selected file"
	MsgNotAllowed        = "File type not allowed"
	MsgNotFound          = "File not found"
	MsgMissingInfo       = "Missing file or format information"
	MsgUnsupportedFormat = "Unsupported file format"
	MsgTooLarge          = "File too large"
	MsgInternal          = "internal server error"
)

var (
	ErrReaderNil         = errors.New("reader is nil")
	ErrNotAllowed        = errors.New("file type not allowed")
	ErrNotFound          = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Error is the error type returned by MeshService. Message is safe to show to clients;
// Err keeps the cause for logs and errors.Is.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a service error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func invalid(msg string, err error) *Error {
	return &Error{Kind: KindInvalid, Message: msg, Err: err}
}

func notFound(err error) *Error {
	return &Error{Kind: KindNotFound, Message: MsgNotFound, Err: err}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

// processing surfaces the underlying parser or writer message.
func processing(err error) *Error {
	return &Error{Kind: KindProcessing, Message: err.Error(), Err: err}
}
