package peek

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var crlfBytes = []byte(crlf)

// RequestLine is the first line of a request. Method is kept verbatim.
type RequestLine struct {
	Method  string
	Target  string
	Version string
}

// Request is a parsed request header block.
type Request struct {
	RequestLine
	Fields Fields
	// HeaderLen is the length of the header block including its terminator.
	HeaderLen int
}

// ParseRequest interprets a header block. Any grammar failure wraps
// ErrMalformedRequest.
func ParseRequest(buf []byte) (*Request, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedRequest)
	}
	headerEnd := bytes.Index(buf, headerSeparatorBuf)
	if headerEnd == -1 {
		return nil, fmt.Errorf("%w: unterminated header", ErrMalformedRequest)
	}

	lines := bytes.Split(buf[:headerEnd], crlfBytes)
	line, err := parseRequestLine(string(lines[0]))
	if err != nil {
		return nil, err
	}

	fields := make(Fields, 0, len(lines)-1)
	for _, l := range lines[1:] {
		colon := bytes.IndexByte(l, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrMalformedRequest, l)
		}
		name := string(l[:colon])
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("%w: invalid field name %q", ErrMalformedRequest, name)
		}
		value := strings.TrimSpace(string(l[colon+1:]))
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("%w: invalid value for %s", ErrMalformedRequest, name)
		}
		fields = append(fields, Field{Name: name, Value: value})
	}

	return &Request{
		RequestLine: line,
		Fields:      fields,
		HeaderLen:   headerEnd + len(headerSeparatorBuf),
	}, nil
}

func parseRequestLine(s string) (RequestLine, error) {
	parts := strings.SplitN(s, " ", 3)
	if len(parts) != 3 {
		return RequestLine{}, fmt.Errorf("%w: invalid request line %q", ErrMalformedRequest, s)
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if strings.ContainsAny(method, "\r\n\t") {
		return RequestLine{}, fmt.Errorf("%w: invalid method %q", ErrMalformedRequest, method)
	}
	if !validHTTPVersion(proto) {
		return RequestLine{}, fmt.Errorf("%w: invalid proto %q", ErrMalformedRequest, proto)
	}
	return RequestLine{Method: method, Target: target, Version: proto}, nil
}

// validHTTPVersion accepts HTTP/1.<minor>, the minor version being one or
// more ASCII digits.
func validHTTPVersion(proto string) bool {
	version, ok := strings.CutPrefix(proto, "HTTP/")
	if !ok {
		return false
	}
	major, minor, ok := strings.Cut(version, ".")
	return ok && major == "1" && allDigits(minor)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
