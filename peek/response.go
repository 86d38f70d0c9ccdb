package peek

import (
	"fmt"
	"strconv"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http/httpguts"
)

const (
	StatusOK                          = 200
	StatusBadRequest                  = 400
	StatusNotFound                    = 404
	StatusRequestHeaderFieldsTooLarge = 431
	StatusNotImplemented              = 501
)

const protoHTTP11 = "HTTP/1.1"

// StatusText returns the reason phrase for the status codes this server emits.
func StatusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusRequestHeaderFieldsTooLarge:
		return "Request Header Fields Too Large"
	case StatusNotImplemented:
		return "Not Implemented"
	default:
		return ""
	}
}

// ResponseHead is the status line and field block of a response.
type ResponseHead struct {
	Version string
	Status  int
	Reason  string
	Fields  Fields
}

// Response is a fully assembled response, written in one piece.
type Response struct {
	Head ResponseHead
	Body []byte
}

func newResponse(status int, body []byte, fields ...Field) *Response {
	return &Response{
		Head: ResponseHead{
			Version: protoHTTP11,
			Status:  status,
			Reason:  StatusText(status),
			Fields:  fields,
		},
		Body: body,
	}
}

func (h *ResponseHead) validate() error {
	if !validHTTPVersion(h.Version) {
		return fmt.Errorf("%w: version %q", ErrInvalidHeader, h.Version)
	}
	if h.Status < 100 || h.Status > 999 {
		return fmt.Errorf("%w: status %d", ErrInvalidHeader, h.Status)
	}
	if !httpguts.ValidHeaderFieldValue(h.Reason) {
		return fmt.Errorf("%w: reason %q", ErrInvalidHeader, h.Reason)
	}
	for _, f := range h.Fields {
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return fmt.Errorf("%w: field name %q", ErrInvalidHeader, f.Name)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return fmt.Errorf("%w: value for %s", ErrInvalidHeader, f.Name)
		}
	}
	return nil
}

// writeTo serializes the head into out. Nothing is written when a token is
// rejected.
func (h *ResponseHead) writeTo(out *bytebufferpool.ByteBuffer) error {
	if err := h.validate(); err != nil {
		return err
	}
	out.WriteString(h.Version)
	out.WriteByte(' ')
	out.WriteString(strconv.Itoa(h.Status))
	out.WriteByte(' ')
	out.WriteString(h.Reason)
	out.WriteString(crlf)
	writeFieldLines(out, h.Fields)
	out.WriteString(crlf)
	return nil
}

// BuildHead serializes a response head to bytes. The body is not included.
func BuildHead(h ResponseHead) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := h.writeTo(buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// encode assembles head and body into out, ready for a single write.
func (r *Response) encode(out *bytebufferpool.ByteBuffer) error {
	out.Reset()
	if err := r.Head.writeTo(out); err != nil {
		return err
	}
	_, _ = out.Write(r.Body)
	return nil
}
