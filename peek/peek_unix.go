//go:build unix

package peek

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// connProber peeks a socket with recv(MSG_PEEK) through the runtime poller.
type connProber struct {
	conn net.Conn
	raw  syscall.RawConn
}

func newConnProber(c net.Conn) (*connProber, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("peek: %T exposes no raw socket", c)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}
	return &connProber{conn: c, raw: raw}, nil
}

func (p *connProber) Peek(b []byte) (int, error) {
	var (
		n     int
		opErr error
	)
	err := p.raw.Read(func(fd uintptr) bool {
		for {
			n, _, opErr = unix.Recvfrom(int(fd), b, unix.MSG_PEEK)
			if opErr != unix.EINTR {
				break
			}
		}
		return opErr != unix.EAGAIN
	})
	if err != nil {
		return 0, err
	}
	if opErr != nil {
		return 0, opErr
	}
	return n, nil
}

func (p *connProber) Read(b []byte) (int, error) { return p.conn.Read(b) }

func (p *connProber) SetReadDeadline(t time.Time) error { return p.conn.SetReadDeadline(t) }
