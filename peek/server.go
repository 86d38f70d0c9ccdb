package peek

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	lingerTimeout  = 500 * time.Millisecond
	lingerMaxBytes = 256 << 10
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("peek: server closed")

// Server owns a listener and the connections accepted from it.
type Server struct {
	e *Engine

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool
}

func (e *Engine) NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{e: e, conns: make(map[net.Conn]struct{}), ctx: ctx, cancel: cancel}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections on ln until Shutdown, handling each in its own
// goroutine. It always returns a non-nil error.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			if retryableAccept(err) {
				backoff = nextBackoff(backoff)
				s.e.log.Warn("accept", zap.Error(err), zap.Duration("retry_in", backoff))
				time.Sleep(backoff)
				continue
			}
			return transportError(OpAccept, err)
		}
		backoff = 0
		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go s.serveConn(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// retryableAccept reports whether an accept failure leaves the listener
// usable: descriptor exhaustion, a connection reset before accept, or a
// timeout.
func retryableAccept(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return false
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) error {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	return c.Close()
}

// Shutdown stops accepting, then waits for in-flight connections. When ctx
// ends first the remaining connections are closed and ctx's error is
// returned along with any close errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing.Store(true)
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return err
	case <-ctx.Done():
	}

	s.cancel()
	s.mu.Lock()
	for c := range s.conns {
		err = multierr.Append(err, c.Close())
	}
	s.mu.Unlock()
	<-done
	return multierr.Append(err, ctx.Err())
}

// serveConn runs one request on c and closes it.
func (s *Server) serveConn(c net.Conn) {
	defer s.wg.Done()
	remote := c.RemoteAddr().String()
	log := s.e.log.With(zap.String("remote", remote))
	defer func() {
		if err := s.untrack(c); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug("close", zap.Error(err))
		}
	}()

	resp, err := s.respond(c, remote)
	if err != nil {
		log.Info("connection dropped", zap.Error(err))
		return
	}

	buf := s.e.bufPool.Get()
	defer s.e.bufPool.Put(buf)
	if err := resp.encode(buf); err != nil {
		log.Warn("build response", zap.Error(err))
		return
	}
	if d := s.e.cfg.writeTimeout; d > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(d))
	}
	if _, err := c.Write(buf.B); err != nil {
		log.Warn("write response", zap.Error(transportError(OpWrite, err)))
		return
	}
	lingerClose(c)
}

// lingerClose half-closes c and drains what the client still sends, so
// unread request bytes do not turn the close into a reset that discards the
// response.
func lingerClose(c net.Conn) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tc.CloseWrite(); err != nil {
		return
	}
	_ = tc.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(tc, lingerMaxBytes))
}

func (s *Server) respond(c net.Conn, remote string) (*Response, error) {
	p, err := newConnProber(c)
	if err != nil {
		return nil, err
	}
	if d := s.e.cfg.readTimeout; d > 0 {
		_ = c.SetReadDeadline(time.Now().Add(d))
	}
	raw, err := s.e.headerReader().ReadHeader(p)
	if err != nil {
		if errors.Is(err, ErrRequestTooLarge) {
			return s.e.reject(err)
		}
		return nil, err
	}
	return s.e.handle(s.ctx, raw, remote)
}
