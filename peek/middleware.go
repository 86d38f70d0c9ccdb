package peek

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var errHandlerPanic = errors.New("handler panic")

type Middleware func(Handler) Handler

func chain(mws ...Middleware) func(Handler) Handler {
	return func(h Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// Recover turns a handler panic into a dropped connection.
func Recover() Middleware {
	return func(next Handler) Handler {
		return func(c *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					c.Log.Error("panic", zap.Any("recovered", r))
					err = fmt.Errorf("%w: %v", errHandlerPanic, r)
				}
			}()
			return next(c)
		}
	}
}

// AccessLog logs one line per dispatched request.
func AccessLog(log *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(c *Context) error {
			start := time.Now()
			err := next(c)
			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("target", c.Request.Target),
				zap.String("remote", c.RemoteAddr),
				zap.Duration("dur", time.Since(start)),
			}
			if resp := c.Response(); resp != nil && err == nil {
				fields = append(fields, zap.Int("status", resp.Head.Status), zap.Int("bytes", len(resp.Body)))
			}
			if path := c.Path(); path != "" {
				fields = append(fields, zap.String("path", path))
			}
			if fe := c.FileError(); fe != nil {
				fields = append(fields, zap.Stringer("file_error", fe.Kind))
			}
			if err != nil {
				log.Info("dropped", append(fields, zap.Error(err))...)
				return err
			}
			log.Info("served", fields...)
			return nil
		}
	}
}

// Timeout bounds a handler. On expiry the connection is dropped and any
// response the handler sets later is discarded.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(c *Context) error {
			ctx, cancel := context.WithTimeout(c.ctx, d)
			defer cancel()
			c.ctx = ctx

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				c.timedOut.Store(true)
				return fmt.Errorf("handler: %w", ctx.Err())
			}
		}
	}
}
