//go:build !unix

package peek

import (
	"errors"
	"net"
	"time"
)

type connProber struct{}

func newConnProber(net.Conn) (*connProber, error) {
	return nil, errors.New("peek: socket peeking is not supported on this platform")
}

func (p *connProber) Peek([]byte) (int, error) { return 0, errors.ErrUnsupported }

func (p *connProber) Read([]byte) (int, error) { return 0, errors.ErrUnsupported }

func (p *connProber) SetReadDeadline(time.Time) error { return errors.ErrUnsupported }
