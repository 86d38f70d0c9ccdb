package peek

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func writeDocRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func encodeResponse(t *testing.T, resp *Response) []byte {
	t.Helper()
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := resp.encode(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return append([]byte(nil), buf.B...)
}

func TestHandleServesFile(t *testing.T) {
	content := "<html><body>hi</body></html>"
	root := writeDocRoot(t, map[string]string{"docs/index.html": content})
	e := newTestEngine(t, WithDocumentRoot(root))

	resp, err := e.handle(context.Background(), []byte("GET /docs/index.html HTTP/1.1\r\nHost: x\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Head.Status != StatusOK || resp.Head.Reason != "OK" {
		t.Fatalf("unexpected status %d %q", resp.Head.Status, resp.Head.Reason)
	}
	want := Fields{{"content-type", "text/html"}, {"content-length", strconv.Itoa(len(content))}}
	if len(resp.Head.Fields) != 2 || resp.Head.Fields[0] != want[0] || resp.Head.Fields[1] != want[1] {
		t.Fatalf("unexpected fields %#v", resp.Head.Fields)
	}
	if string(resp.Body) != content {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	wire := "HTTP/1.1 200 OK\r\ncontent-type: text/html\r\ncontent-length: " + strconv.Itoa(len(content)) + "\r\n\r\n" + content
	if got := encodeResponse(t, resp); string(got) != wire {
		t.Fatalf("got %q want %q", got, wire)
	}
}

func TestHandleLabelsEveryFileAsHTML(t *testing.T) {
	root := writeDocRoot(t, map[string]string{"data.json": `{"a":1}`})
	e := newTestEngine(t, WithDocumentRoot(root))
	resp, err := e.handle(context.Background(), []byte("GET /data.json HTTP/1.1\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := resp.Head.Fields.Get("content-type"); ct != "text/html" {
		t.Fatalf("expected text/html, got %q", ct)
	}
}

func TestHandleMissingFile(t *testing.T) {
	e := newTestEngine(t, WithDocumentRoot(t.TempDir()))
	resp, err := e.handle(context.Background(), []byte("GET /nope.html HTTP/1.1\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Head.Status != StatusNotFound || resp.Head.Reason != "Not Found" {
		t.Fatalf("unexpected status %d %q", resp.Head.Status, resp.Head.Reason)
	}
	if len(resp.Head.Fields) != 0 {
		t.Fatalf("expected no fields, got %#v", resp.Head.Fields)
	}
	if got := encodeResponse(t, resp); string(got) != "HTTP/1.1 404 Not Found\r\n\r\nnot found" {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestHandleDirectoryIsNotFound(t *testing.T) {
	root := writeDocRoot(t, map[string]string{"sub/a.html": "a"})
	e := newTestEngine(t, WithDocumentRoot(root))
	resp, err := e.handle(context.Background(), []byte("GET /sub HTTP/1.1\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Head.Status != StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Head.Status)
	}
}

type errFiles struct{ err error }

func (f errFiles) ReadFile(context.Context, string) ([]byte, error) { return nil, f.err }

func TestHandlePermissionDeniedIsNotFound(t *testing.T) {
	var seen *FileError
	e := newTestEngine(t, WithFileSource(errFiles{err: fs.ErrPermission}))
	e.Use(func(next Handler) Handler {
		return func(c *Context) error {
			err := next(c)
			seen = c.FileError()
			return err
		}
	})

	resp, err := e.handle(context.Background(), []byte("GET /secret.html HTTP/1.1\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// permission failures are reported as 404 like missing files
	if resp.Head.Status != StatusNotFound || string(resp.Body) != "not found" {
		t.Fatalf("unexpected response %d %q", resp.Head.Status, resp.Body)
	}
	if seen == nil || seen.Kind != FilePermissionDenied {
		t.Fatalf("expected permission_denied file error, got %v", seen)
	}
}

func TestHandleMethodDispatchTotality(t *testing.T) {
	root := writeDocRoot(t, map[string]string{"index.html": "x"})
	e := newTestEngine(t, WithDocumentRoot(root))
	for _, m := range []string{"get", "Get", "POST", "HEAD", "", "DELETE", "G\xc3\x89T", "GET2"} {
		resp, err := e.handle(context.Background(), []byte(m+" /index.html HTTP/1.1\r\n\r\n"), "test")
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", m, err)
		}
		if resp.Head.Status != StatusNotImplemented || resp.Head.Reason != "Not Implemented" {
			t.Fatalf("%q: unexpected status %d %q", m, resp.Head.Status, resp.Head.Reason)
		}
		if string(resp.Body) != "not implemented" || len(resp.Head.Fields) != 0 {
			t.Fatalf("%q: unexpected response %#v", m, resp)
		}
	}
}

func TestHandleIdempotent(t *testing.T) {
	root := writeDocRoot(t, map[string]string{"index.html": "<p>same</p>"})
	e := newTestEngine(t, WithDocumentRoot(root))
	raw := []byte("GET /index.html HTTP/1.1\r\n\r\n")

	first, err := e.handle(context.Background(), raw, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.handle(context.Background(), raw, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(encodeResponse(t, first), encodeResponse(t, second)) {
		t.Fatalf("responses differ")
	}
}

func TestHandleDropsMalformedByDefault(t *testing.T) {
	e := newTestEngine(t)
	for _, raw := range []string{"", "garbage\r\n\r\n", "GET / HTTP/1.1\r\n"} {
		resp, err := e.handle(context.Background(), []byte(raw), "test")
		if !errors.Is(err, ErrMalformedRequest) || resp != nil {
			t.Fatalf("%q: expected a drop, got %v %v", raw, resp, err)
		}
	}
}

func TestHandleDropsInvalidTarget(t *testing.T) {
	e := newTestEngine(t)
	resp, err := e.handle(context.Background(), []byte("GET /%zz HTTP/1.1\r\n\r\n"), "test")
	if !errors.Is(err, ErrInvalidTarget) || resp != nil {
		t.Fatalf("expected a drop, got %v %v", resp, err)
	}
}

func TestHandleRejectMalformed(t *testing.T) {
	e := newTestEngine(t, WithRejectMalformed(true))
	resp, err := e.handle(context.Background(), []byte("garbage\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := encodeResponse(t, resp); string(got) != "HTTP/1.1 400 Bad Request\r\ncontent-length: 11\r\n\r\nbad request" {
		t.Fatalf("unexpected bytes %q", got)
	}

	resp, err = e.reject(ErrRequestTooLarge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Head.Status != StatusRequestHeaderFieldsTooLarge {
		t.Fatalf("expected 431, got %d", resp.Head.Status)
	}
}

func TestHandleErrorContentLength(t *testing.T) {
	e := newTestEngine(t, WithDocumentRoot(t.TempDir()), WithErrorContentLength(true))
	resp, err := e.handle(context.Background(), []byte("GET /x HTTP/1.1\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl := resp.Head.Fields.Get("content-length"); cl != "9" {
		t.Fatalf("expected content-length 9, got %q", cl)
	}
	resp, err = e.handle(context.Background(), []byte("POST /x HTTP/1.1\r\n\r\n"), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl := resp.Head.Fields.Get("content-length"); cl != "15" {
		t.Fatalf("expected content-length 15, got %q", cl)
	}
}

func TestHandlePanicDropsConnection(t *testing.T) {
	e := newTestEngine(t)
	if err := e.R.Handle("BOOM", func(*Context) error { panic("boom") }); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := e.handle(context.Background(), []byte("BOOM / HTTP/1.1\r\n\r\n"), "test")
	if !errors.Is(err, errHandlerPanic) {
		t.Fatalf("expected panic error, got %v", err)
	}
}

type slowFiles struct {
	d         time.Duration
	cancelled chan error
}

func (f slowFiles) ReadFile(ctx context.Context, _ string) ([]byte, error) {
	select {
	case <-time.After(f.d):
		return []byte("late"), nil
	case <-ctx.Done():
		f.cancelled <- ctx.Err()
		return nil, ctx.Err()
	}
}

func TestHandleTimeout(t *testing.T) {
	files := slowFiles{d: 5 * time.Second, cancelled: make(chan error, 1)}
	// the abandoned handler keeps logging after the test returns
	e := NewEngine(WithLogger(zap.NewNop()), WithFileSource(files))
	e.Use(Timeout(10 * time.Millisecond))
	resp, err := e.handle(context.Background(), []byte("GET /x HTTP/1.1\r\n\r\n"), "test")
	if !errors.Is(err, context.DeadlineExceeded) || resp != nil {
		t.Fatalf("expected a deadline drop, got %v %v", resp, err)
	}
	select {
	case err := <-files.cancelled:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("file read saw %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("file read was not cancelled by the handler deadline")
	}
}

func TestOSFilesHonoursCancelledContext(t *testing.T) {
	root := writeDocRoot(t, map[string]string{"a.html": "A"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (OSFiles{}).ReadFile(ctx, filepath.Join(root, "a.html")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAccessLogRecordsResolvedPath(t *testing.T) {
	root := writeDocRoot(t, map[string]string{"a.html": "A"})
	core, logs := observer.New(zap.InfoLevel)
	e := NewEngine(WithLogger(zap.New(core)), WithDocumentRoot(root))

	if _, err := e.handle(context.Background(), []byte("GET /a.html?q=1 HTTP/1.1\r\n\r\n"), "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.handle(context.Background(), []byte("POST /a.html HTTP/1.1\r\n\r\n"), "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := logs.FilterMessage("served").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 access log lines, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["path"]; got != filepath.Join(root, "a.html") {
		t.Fatalf("GET logged path %v", got)
	}
	if _, ok := entries[1].ContextMap()["path"]; ok {
		t.Fatalf("unresolved request logged a path")
	}
}
