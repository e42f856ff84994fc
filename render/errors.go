package render

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
)

var (
	// ErrIllegalState is returned for misuse of the scheduler such as starting
	// it twice, scheduling after shutdown or checking an unfinished ticket.
	ErrIllegalState = errors.New("illegal state")

	// ErrChunkNotGenerated is returned by renderers when the world has no data
	// for the requested tile yet.
	ErrChunkNotGenerated = errors.New("chunk not generated")
)

// UnexpectedError carries a panic recovered while rendering a ticket.
type UnexpectedError struct {
	Value any
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected render failure: %v", e.Value)
}

func (e *UnexpectedError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type Kind int

const (
	KindNone Kind = iota
	KindIO
	KindChunkNotGenerated
	KindRenderer
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindIO:
		return "io"
	case KindChunkNotGenerated:
		return "chunk_not_generated"
	case KindRenderer:
		return "renderer"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a ticket error. It is only used for logging and metrics.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindNone
	}

	var unexpected *UnexpectedError
	if errors.As(err, &unexpected) {
		return KindUnexpected
	}
	if errors.Is(err, ErrChunkNotGenerated) {
		return KindChunkNotGenerated
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var syscallErr *os.SyscallError
	var netErr net.Error
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &syscallErr) || errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrShortWrite) {
		return KindIO
	}

	return KindRenderer
}
