package peek

import (
	"os"
	"syscall"
	"time"

	gnet "github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

const (
	defaultAddr            = "127.0.0.1:8080"
	defaultProbeSize       = 512
	defaultMaxHeaderBytes  = 8 << 10
	defaultDocumentRoot    = "."
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultSettleTimeout   = 50 * time.Millisecond
	defaultShutdownTimeout = 5 * time.Second
	defaultWorkerPoolSize  = 256
)

type config struct {
	probeSize      int
	maxHeaderBytes int
	documentRoot   string
	files          FileSource

	readTimeout   time.Duration
	writeTimeout  time.Duration
	settleTimeout time.Duration

	shutdownSignals []os.Signal
	shutdownTimeout time.Duration

	rejectMalformed    bool
	errorContentLength bool

	workerPoolSize int
	gnetOpts       []gnet.Option

	logger  *zap.Logger
	logFile string
}

func defaultConfig() config {
	return config{
		probeSize:       defaultProbeSize,
		maxHeaderBytes:  defaultMaxHeaderBytes,
		documentRoot:    defaultDocumentRoot,
		readTimeout:     defaultReadTimeout,
		writeTimeout:    defaultWriteTimeout,
		settleTimeout:   defaultSettleTimeout,
		shutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		shutdownTimeout: defaultShutdownTimeout,
		workerPoolSize:  defaultWorkerPoolSize,
	}
}

func (c *config) fileSource() FileSource {
	if c.files != nil {
		return c.files
	}
	return OSFiles{}
}

// Option configures an Engine.
type Option func(*config)

// WithProbeSize sets the peek window size used while acquiring a request header.
func WithProbeSize(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.probeSize = n
		}
	}
}

// WithMaxHeaderBytes sets the maximum allowed header size for incoming requests.
func WithMaxHeaderBytes(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxHeaderBytes = n
		}
	}
}

// WithDocumentRoot sets the directory request paths are resolved against.
func WithDocumentRoot(dir string) Option {
	return func(cfg *config) {
		if dir != "" {
			cfg.documentRoot = dir
		}
	}
}

// WithFileSource replaces the filesystem collaborator used to serve files.
func WithFileSource(fs FileSource) Option {
	return func(cfg *config) {
		cfg.files = fs
	}
}

// WithReadTimeout bounds header acquisition. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.readTimeout = d
		}
	}
}

// WithWriteTimeout bounds the response write on the net engine. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.writeTimeout = d
		}
	}
}

// WithSettleTimeout bounds the confirmation peek that follows a header ending
// exactly on a probe boundary. Zero leaves that peek to the read timeout.
func WithSettleTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.settleTimeout = d
		}
	}
}

// WithShutdownSignals overrides the OS signals that trigger graceful shutdown.
func WithShutdownSignals(signals ...os.Signal) Option {
	return func(cfg *config) {
		cfg.shutdownSignals = signals
	}
}

// WithShutdownTimeout overrides the graceful shutdown timeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.shutdownTimeout = d
		}
	}
}

// WithRejectMalformed answers malformed requests with 400 and oversized
// headers with 431 instead of dropping the connection silently.
func WithRejectMalformed(on bool) Option {
	return func(cfg *config) {
		cfg.rejectMalformed = on
	}
}

// WithErrorContentLength adds a content-length field to 404 and 501 responses.
func WithErrorContentLength(on bool) Option {
	return func(cfg *config) {
		cfg.errorContentLength = on
	}
}

// WithWorkerPoolSize sets the goroutine pool capacity used by the gnet engine
// to run handlers off the event loops.
func WithWorkerPoolSize(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.workerPoolSize = n
		}
	}
}

// WithGNetOption forwards a gnet.Option to the underlying event engine.
func WithGNetOption(opt gnet.Option) Option {
	return func(cfg *config) {
		cfg.gnetOpts = append(cfg.gnetOpts, opt)
	}
}

// WithLogger sets the logger. It takes precedence over WithLogFile.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// WithLogFile writes JSON logs to a rotated file instead of stderr.
func WithLogFile(path string) Option {
	return func(cfg *config) {
		cfg.logFile = path
	}
}
