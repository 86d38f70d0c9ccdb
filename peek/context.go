package peek

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

// Context carries one request through the handler chain.
type Context struct {
	Request    *Request
	RemoteAddr string
	Log        *zap.Logger

	ctx      context.Context
	resp     atomic.Pointer[Response]
	timedOut atomic.Bool
	fileErr  atomic.Pointer[FileError]
	path     atomic.Pointer[string]
}

func newContext(ctx context.Context, req *Request, remote string, log *zap.Logger) *Context {
	return &Context{Request: req, RemoteAddr: remote, Log: log, ctx: ctx}
}

// Context returns the request's context.Context. Under Timeout it is
// cancelled when the handler deadline passes.
func (c *Context) Context() context.Context { return c.ctx }

// Path returns the filesystem path the target resolved to, or "" when no
// handler resolved one.
func (c *Context) Path() string {
	if p := c.path.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Context) setPath(p string) { c.path.Store(&p) }

// Respond sets the response. Fields keep the given order. A later call
// replaces an earlier one; calls after a timeout are ignored.
func (c *Context) Respond(status int, body []byte, fields ...Field) error {
	if c.timedOut.Load() {
		return context.DeadlineExceeded
	}
	c.resp.Store(newResponse(status, body, fields...))
	return nil
}

// Response returns the response set so far, or nil.
func (c *Context) Response() *Response { return c.resp.Load() }

// FileError returns the classified read failure behind a 404, if any.
func (c *Context) FileError() *FileError { return c.fileErr.Load() }

func contentLength(body []byte) Field {
	return Field{Name: "content-length", Value: strconv.Itoa(len(body))}
}
