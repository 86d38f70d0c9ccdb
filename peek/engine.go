package peek

import (
	"context"
	"errors"
	"net"
	"os/signal"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine serves static files over peek-framed HTTP/1.1. GET is served from
// the document root; every other method gets 501.
type Engine struct {
	R *Router

	cfg     config
	log     *zap.Logger
	files   FileSource
	bufPool bytebufferpool.Pool
}

func NewEngine(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Engine{
		R:     NewRouter(),
		cfg:   cfg,
		log:   newLogger(cfg),
		files: cfg.fileSource(),
	}
	e.R.Use(AccessLog(e.log))
	_ = e.R.Handle(MethodGet, e.serveStatic)
	e.R.Fallback(e.notImplemented)
	return e
}

func (e *Engine) Use(mw ...Middleware) { e.R.Use(mw...) }

// Logger returns the engine's logger.
func (e *Engine) Logger() *zap.Logger { return e.log }

func (e *Engine) headerReader() HeaderReader {
	return HeaderReader{
		ProbeSize:      e.cfg.probeSize,
		MaxHeaderBytes: e.cfg.maxHeaderBytes,
		SettleTimeout:  e.cfg.settleTimeout,
	}
}

// Run listens on addr with one goroutine per connection and blocks until a
// shutdown signal arrives or serving fails. An empty addr means 127.0.0.1:8080.
func (e *Engine) Run(addr string) error {
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	srv := e.NewServer()
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		e.log.Info("listening", zap.Stringer("addr", ln.Addr()))
		if err := srv.Serve(ln); !errors.Is(err, ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		waitCtx := ctx
		if len(e.cfg.shutdownSignals) > 0 {
			var stop context.CancelFunc
			waitCtx, stop = signal.NotifyContext(ctx, e.cfg.shutdownSignals...)
			defer stop()
		}
		<-waitCtx.Done()
		e.log.Info("shutting down", zap.NamedError("cause", context.Cause(waitCtx)))
		sctx, cancel := context.WithTimeout(context.Background(), e.cfg.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
