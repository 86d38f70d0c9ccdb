package peek

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newLogger(cfg config) *zap.Logger {
	if cfg.logger != nil {
		return cfg.logger.Named("peek")
	}
	if cfg.logFile == "" {
		enc := zap.NewDevelopmentEncoderConfig()
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
		return zap.New(core).Named("peek")
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.logFile,
		MaxSize:    64,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, zapcore.InfoLevel)
	return zap.New(core).Named("peek")
}

// printfLogger adapts zap to the Printf-style logger ants expects.
type printfLogger struct{ s *zap.SugaredLogger }

func (l printfLogger) Printf(format string, args ...any) { l.s.Infof(format, args...) }
