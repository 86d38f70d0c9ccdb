package peek

import (
	"strings"

	"github.com/valyala/bytebufferpool"
)

// Field is one header field line.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered field list. Order is kept as inserted.
type Fields []Field

// Get returns the first value for name, compared case-insensitively.
func (f Fields) Get(name string) string {
	for _, fl := range f {
		if strings.EqualFold(fl.Name, name) {
			return fl.Value
		}
	}
	return ""
}

// Add appends a field after the existing ones.
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

func writeFieldLines(buf *bytebufferpool.ByteBuffer, fields Fields) {
	for _, f := range fields {
		buf.WriteString(f.Name)
		buf.WriteString(": ")
		buf.WriteString(f.Value)
		buf.WriteString(crlf)
	}
}
