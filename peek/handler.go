package peek

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var (
	bodyNotFound       = []byte("not found")
	bodyNotImplemented = []byte("not implemented")

	errNoResponse = errors.New("handler set no response")
)

// serveStatic answers GET: the file at the resolved target, or 404 for any
// read failure.
func (e *Engine) serveStatic(c *Context) error {
	path, err := ResolvePath(e.cfg.documentRoot, c.Request.Target)
	if err != nil {
		return err
	}
	c.setPath(path)

	body, err := e.files.ReadFile(c.Context(), path)
	if err != nil {
		fe := classifyFileError(path, err)
		c.fileErr.Store(fe)
		c.Log.Debug("static read failed", zap.Error(fe))
		return c.Respond(StatusNotFound, bodyNotFound, e.errorFields(bodyNotFound)...)
	}
	var fields Fields
	fields.Add("content-type", "text/html")
	fields = append(fields, contentLength(body))
	return c.Respond(StatusOK, body, fields...)
}

func (e *Engine) notImplemented(c *Context) error {
	return c.Respond(StatusNotImplemented, bodyNotImplemented, e.errorFields(bodyNotImplemented)...)
}

func (e *Engine) errorFields(body []byte) []Field {
	if !e.cfg.errorContentLength {
		return nil
	}
	return []Field{contentLength(body)}
}

// handle turns an acquired header block into a response. A non-nil error
// means the connection is dropped with nothing written.
func (e *Engine) handle(ctx context.Context, raw []byte, remote string) (*Response, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		return e.reject(err)
	}

	c := newContext(ctx, req, remote, e.log)
	if err := e.R.Serve(c); err != nil {
		if errors.Is(err, ErrInvalidTarget) {
			return e.reject(err)
		}
		return nil, err
	}
	resp := c.Response()
	if resp == nil {
		return nil, errNoResponse
	}
	return resp, nil
}

// reject answers a request that could not be framed, parsed or resolved.
// Unless WithRejectMalformed is set, it keeps the error so the connection
// is dropped.
func (e *Engine) reject(err error) (*Response, error) {
	if !e.cfg.rejectMalformed {
		return nil, err
	}
	status := StatusBadRequest
	if errors.Is(err, ErrRequestTooLarge) {
		status = StatusRequestHeaderFieldsTooLarge
	}
	body := []byte(strings.ToLower(StatusText(status)))
	return newResponse(status, body, contentLength(body)), nil
}
