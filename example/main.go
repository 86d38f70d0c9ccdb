package main

import (
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/J1407B-K/peek/peek"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	root := flag.String("root", ".", "document root")
	engine := flag.String("engine", "net", "serving engine: net or gnet")
	logFile := flag.String("log", "", "rotated JSON log file (stderr when empty)")
	handlerTimeout := flag.Duration("handler-timeout", 10*time.Second, "per-request handler deadline, 0 disables")
	flag.Parse()

	e := peek.NewEngine(
		peek.WithDocumentRoot(*root),
		peek.WithLogFile(*logFile),
	)
	if *handlerTimeout > 0 {
		e.Use(peek.Timeout(*handlerTimeout))
	}

	log := e.Logger()
	defer func() { _ = log.Sync() }()

	var err error
	switch *engine {
	case "net":
		err = e.Run(*addr)
	case "gnet":
		err = e.RunGNet(*addr)
	default:
		log.Fatal("unknown engine", zap.String("engine", *engine))
	}
	if err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}
