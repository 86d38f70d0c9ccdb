package peek

import (
	"errors"
	"fmt"
	"io/fs"
)

const (
	crlf                = "\r\n"
	headerBodySeparator = "\r\n\r\n"
)

var (
	// ErrMalformedRequest reports a header block that does not hold a request line.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrRequestTooLarge reports a header block longer than the configured limit.
	ErrRequestTooLarge = errors.New("request header too large")
	// ErrInvalidTarget reports a request target that cannot be resolved into a path.
	ErrInvalidTarget = errors.New("invalid request target")
	// ErrInvalidHeader reports a response token rejected by the header grammar.
	ErrInvalidHeader = errors.New("invalid response header")
)

// TransportOp names the transport primitive that failed.
type TransportOp int

const (
	OpPeek TransportOp = iota
	OpRead
	OpWrite
	OpAccept
)

func (op TransportOp) String() string {
	switch op {
	case OpPeek:
		return "peek"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpAccept:
		return "accept"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// ConnError is a transport failure on one connection.
type ConnError struct {
	Op  TransportOp
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

func transportError(op TransportOp, err error) error {
	return &ConnError{Op: op, Err: err}
}

// FileErrorKind classifies a failed static file read.
type FileErrorKind int

const (
	FileOther FileErrorKind = iota
	FileNotFound
	FilePermissionDenied
)

func (k FileErrorKind) String() string {
	switch k {
	case FileNotFound:
		return "not_found"
	case FilePermissionDenied:
		return "permission_denied"
	default:
		return "other"
	}
}

// FileError wraps a file read failure with its kind.
type FileError struct {
	Kind FileErrorKind
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("read %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func classifyFileError(path string, err error) *FileError {
	kind := FileOther
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = FileNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = FilePermissionDenied
	}
	return &FileError{Kind: kind, Path: path, Err: err}
}
