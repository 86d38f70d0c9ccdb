package peek

import (
	"bytes"
	"errors"
	"io"
	"os"
	"slices"
	"time"
)

var headerSeparatorBuf = []byte(headerBodySeparator)

// Prober is a byte stream that can be observed before it is consumed.
type Prober interface {
	// Peek copies up to len(p) pending bytes into p without consuming them.
	// It blocks until at least one byte is pending; 0 with a nil error means
	// the peer closed its side.
	Peek(p []byte) (int, error)
	io.Reader
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// headerScanner holds the framing state of one request header acquisition.
// It only decides how many peeked bytes to consume; moving them is left to
// the transport driving it.
type headerScanner struct {
	probeSize int
	maxBytes  int

	buf      []byte
	scratch  []byte
	complete bool
	done     bool
}

func newHeaderScanner(probeSize, maxBytes int) *headerScanner {
	if probeSize <= 0 {
		probeSize = defaultProbeSize
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxHeaderBytes
	}
	return &headerScanner{probeSize: probeSize, maxBytes: maxBytes}
}

// accept inspects a peeked window and returns the number of its leading bytes
// to consume. Consumption stops at the end of the header terminator.
func (s *headerScanner) accept(window []byte) (int, error) {
	if s.complete || len(window) == 0 {
		// confirmation cycle, or the peer went away
		s.done = true
		return 0, nil
	}

	take := len(window)
	tail := len(s.buf) - (len(headerSeparatorBuf) - 1)
	if tail < 0 {
		tail = 0
	}
	s.scratch = append(append(s.scratch[:0], s.buf[tail:]...), window...)
	if i := bytes.Index(s.scratch, headerSeparatorBuf); i >= 0 {
		take = i + len(headerSeparatorBuf) - (len(s.buf) - tail)
		s.complete = true
	}

	if len(s.buf)+take > s.maxBytes {
		return 0, ErrRequestTooLarge
	}

	switch {
	case !s.complete:
		// short chunk without a terminator: more is still in flight
	case take < len(window), len(window) < s.probeSize:
		s.done = true
	}
	// A full window ending exactly on the terminator leaves done unset, which
	// costs one more peek to observe that the stream went quiet.
	return take, nil
}

func (s *headerScanner) commit(p []byte) {
	s.buf = append(s.buf, p...)
}

func (s *headerScanner) grow(n int) []byte {
	s.buf = slices.Grow(s.buf, n)
	s.buf = s.buf[:len(s.buf)+n]
	return s.buf[len(s.buf)-n:]
}

func (s *headerScanner) reset() {
	s.buf = nil
	s.scratch = s.scratch[:0]
	s.complete = false
	s.done = false
}

// HeaderReader acquires one request header block from a Prober.
type HeaderReader struct {
	ProbeSize      int
	MaxHeaderBytes int
	// SettleTimeout bounds the confirmation peek after a header that ends
	// exactly on a probe boundary. Zero waits as long as the transport does,
	// which on the engines means until the read timeout.
	SettleTimeout time.Duration
}

// ReadHeader peeks probe windows from src and consumes exactly the confirmed
// bytes until a header block is complete or the peer closes. It does not
// validate the collected bytes.
func (hr HeaderReader) ReadHeader(src Prober) ([]byte, error) {
	s := newHeaderScanner(hr.ProbeSize, hr.MaxHeaderBytes)
	window := make([]byte, s.probeSize)

	for !s.done {
		settling := s.complete && hr.SettleTimeout > 0
		if settling {
			if d, ok := src.(readDeadliner); ok {
				_ = d.SetReadDeadline(time.Now().Add(hr.SettleTimeout))
			}
		}

		n, err := src.Peek(window)
		if err != nil {
			if settling && errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return nil, transportError(OpPeek, err)
		}

		take, err := s.accept(window[:n])
		if err != nil {
			return nil, err
		}
		if take == 0 {
			continue
		}
		if _, err := io.ReadFull(src, s.grow(take)); err != nil {
			return nil, transportError(OpRead, err)
		}
	}
	return s.buf, nil
}
