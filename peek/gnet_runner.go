package peek

import (
	"strings"

	gnet "github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

// RunGNet serves on gnet event loops and blocks until shutdown. An empty
// addr means 127.0.0.1:8080.
func (e *Engine) RunGNet(addr string) error {
	if addr == "" {
		addr = defaultAddr
	}
	handler, err := newGNetHTTPHandler(e)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	protoAddr := ensureProtoAddr(addr)
	opts := []gnet.Option{gnet.WithLogger(e.log.Named("gnet").Sugar())}
	if e.cfg.readTimeout > 0 {
		opts = append(opts, gnet.WithTicker(true))
	}
	opts = append(opts, e.cfg.gnetOpts...)
	e.log.Info("gnet listening", zap.String("addr", protoAddr))
	return gnet.Run(handler, protoAddr, opts...)
}

func ensureProtoAddr(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}
