package peek

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	gnet "github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

type gnetHTTPHandler struct {
	gnet.BuiltinEventEngine

	e    *Engine
	log  *zap.Logger
	pool *ants.Pool

	engine gnet.Engine

	// pending holds connections still acquiring a header, by open time.
	mu      sync.Mutex
	pending map[gnet.Conn]time.Time
}

func newGNetHTTPHandler(e *Engine) (*gnetHTTPHandler, error) {
	pool, err := ants.NewPool(e.cfg.workerPoolSize, ants.WithLogger(printfLogger{e.log.Named("pool").Sugar()}))
	if err != nil {
		return nil, err
	}
	return &gnetHTTPHandler{
		e:       e,
		log:     e.log.Named("gnet"),
		pool:    pool,
		pending: make(map[gnet.Conn]time.Time),
	}, nil
}

func (h *gnetHTTPHandler) OnBoot(engine gnet.Engine) (action gnet.Action) {
	h.engine = engine
	if len(h.e.cfg.shutdownSignals) > 0 {
		go h.handleSignals()
	}
	return gnet.None
}

func (h *gnetHTTPHandler) OnShutdown(gnet.Engine) {
	h.pool.Release()
}

func (h *gnetHTTPHandler) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.e.cfg.shutdownSignals...)
	sig := <-sigCh
	h.log.Info("shutting down", zap.Stringer("signal", sig))
	ctx, cancel := context.WithTimeout(context.Background(), h.e.cfg.shutdownTimeout)
	defer cancel()
	if err := h.engine.Stop(ctx); err != nil {
		h.log.Warn("stop", zap.Error(err))
	}
}

func (h *gnetHTTPHandler) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	c.SetContext(newGNetConnContext(h.e.cfg.probeSize, h.e.cfg.maxHeaderBytes))
	if h.e.cfg.readTimeout > 0 {
		h.mu.Lock()
		h.pending[c] = time.Now()
		h.mu.Unlock()
	}
	return nil, gnet.None
}

func (h *gnetHTTPHandler) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	h.settled(c)
	if ctx, ok := c.Context().(*gnetConnContext); ok {
		ctx.reset()
	}
	return gnet.None
}

// settled stops the read deadline for c.
func (h *gnetHTTPHandler) settled(c gnet.Conn) {
	h.mu.Lock()
	delete(h.pending, c)
	h.mu.Unlock()
}

// OnTick closes connections that have not delivered a header within the
// read timeout.
func (h *gnetHTTPHandler) OnTick() (delay time.Duration, action gnet.Action) {
	timeout := h.e.cfg.readTimeout
	if timeout <= 0 {
		return time.Hour, gnet.None
	}
	now := time.Now()
	var expired []gnet.Conn
	h.mu.Lock()
	for c, opened := range h.pending {
		if now.Sub(opened) >= timeout {
			expired = append(expired, c)
			delete(h.pending, c)
		}
	}
	h.mu.Unlock()

	for _, c := range expired {
		h.log.Info("connection dropped", zap.String("remote", c.RemoteAddr().String()),
			zap.Error(transportError(OpRead, os.ErrDeadlineExceeded)))
		_ = c.CloseWithCallback(nil)
	}
	return tickInterval(timeout), gnet.None
}

func tickInterval(timeout time.Duration) time.Duration {
	return min(max(timeout/4, 10*time.Millisecond), time.Second)
}

// OnTraffic drives the header scanner over whatever the loop has buffered.
// Running out of buffered bytes before the header completes waits for the
// next traffic event.
func (h *gnetHTTPHandler) OnTraffic(c gnet.Conn) gnet.Action {
	ctx, _ := c.Context().(*gnetConnContext)
	if ctx == nil {
		ctx = newGNetConnContext(h.e.cfg.probeSize, h.e.cfg.maxHeaderBytes)
		c.SetContext(ctx)
	}
	if ctx.dispatched {
		// no pipelining, no bodies
		_, _ = c.Discard(-1)
		return gnet.None
	}

	s := ctx.scanner
	for !s.done {
		n := c.InboundBuffered()
		if n == 0 {
			if !s.complete {
				return gnet.None
			}
			// the confirmation peek finds the stream quiet
			_, _ = s.accept(nil)
			break
		}
		window, err := c.Peek(min(n, s.probeSize))
		if err != nil {
			h.log.Warn("peek", zap.Error(transportError(OpPeek, err)))
			return gnet.Close
		}
		take, err := s.accept(window)
		if err != nil {
			return h.rejectNow(c, err)
		}
		if take > 0 {
			s.commit(window[:take])
			if _, err := c.Discard(take); err != nil {
				h.log.Warn("discard", zap.Error(transportError(OpRead, err)))
				return gnet.Close
			}
		}
	}

	ctx.dispatched = true
	h.settled(c)
	raw := s.buf
	remote := c.RemoteAddr().String()
	if err := h.pool.Submit(func() { h.serve(c, raw, remote) }); err != nil {
		h.log.Warn("submit", zap.Error(err))
		return gnet.Close
	}
	return gnet.None
}

// serve runs on the worker pool; file reads never block an event loop.
func (h *gnetHTTPHandler) serve(c gnet.Conn, raw []byte, remote string) {
	resp, err := h.e.handle(context.Background(), raw, remote)
	if err != nil {
		h.log.Info("connection dropped", zap.String("remote", remote), zap.Error(err))
		_ = c.CloseWithCallback(nil)
		return
	}

	buf := h.e.bufPool.Get()
	if err := resp.encode(buf); err != nil {
		h.e.bufPool.Put(buf)
		h.log.Warn("build response", zap.String("remote", remote), zap.Error(err))
		_ = c.CloseWithCallback(nil)
		return
	}
	err = c.AsyncWrite(buf.B, func(c gnet.Conn, err error) error {
		h.e.bufPool.Put(buf)
		if err != nil {
			h.log.Warn("write response", zap.String("remote", remote), zap.Error(transportError(OpWrite, err)))
		}
		return c.Close()
	})
	if err != nil {
		h.e.bufPool.Put(buf)
		h.log.Warn("write response", zap.String("remote", remote), zap.Error(transportError(OpWrite, err)))
		_ = c.CloseWithCallback(nil)
	}
}

// rejectNow answers an oversized header from the event loop when rejection
// is enabled, then closes.
func (h *gnetHTTPHandler) rejectNow(c gnet.Conn, cause error) gnet.Action {
	h.settled(c)
	resp, err := h.e.reject(cause)
	if err != nil {
		if !errors.Is(err, ErrRequestTooLarge) {
			h.log.Warn("scan", zap.Error(err))
		} else {
			h.log.Info("connection dropped", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
		}
		return gnet.Close
	}
	buf := h.e.bufPool.Get()
	defer h.e.bufPool.Put(buf)
	if err := resp.encode(buf); err == nil {
		_, _ = c.Write(buf.B)
	}
	return gnet.Close
}
