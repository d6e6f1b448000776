// Package jsonld serializes documents as a JSON array or as newline delimited
// JSON, one compact document per line.
package jsonld

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

// Format of a Writer's output.
type Format string

// Output formats.
const (
	FormatArray  Format = "array"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat converts a format name to a Format. The empty string means
// FormatNDJSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatArray, FormatNDJSON:
		return f, nil
	case "":
		return FormatNDJSON, nil
	}
	return "", errors.Errorf("unknown output format '%s'", s)
}

// Writer is an ldk.Sink which writes documents to an io.Writer. It is safe
// for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	format Format
	indent string
	n      int
}

// Option configures a Writer.
type Option func(*Writer)

// WithFormat sets the output format. The default is FormatNDJSON.
func WithFormat(f Format) Option {
	return func(w *Writer) {
		w.format = f
	}
}

// WithIndent pretty prints array output. NDJSON is always compact.
func WithIndent(indent string) Option {
	return func(w *Writer) {
		w.indent = indent
	}
}

// NewWriter returns a Writer writing to w. If w is an io.Closer it is closed
// by Close.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	wr := &Writer{
		w:      bufio.NewWriter(w),
		format: FormatNDJSON,
	}
	if c, ok := w.(io.Closer); ok {
		wr.closer = c
	}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Create returns a Writer for the file at path, which is truncated. "-" is
// standard output, which is never closed.
func Create(path string, opts ...Option) (*Writer, error) {
	if path == "-" || path == "" {
		return NewWriter(struct{ io.Writer }{os.Stdout}, opts...), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating output file")
	}
	return NewWriter(f, opts...), nil
}

// Write implements ldk.Sink. A document which can't be serialized returns a
// *ldk.SerializationError and nothing is written for it.
func (w *Writer) Write(doc ldk.Document) error {
	data, err := w.marshal(doc)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.format == FormatArray {
		sep := ",\n"
		if w.n == 0 {
			sep = "[\n"
		}
		if _, err := w.w.WriteString(sep); err != nil {
			return errors.Wrap(err, "writing separator")
		}
	}
	if _, err := w.w.Write(data); err != nil {
		return errors.Wrap(err, "writing document")
	}
	if w.format == FormatNDJSON {
		if err := w.w.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "writing newline")
		}
	}
	w.n++
	return nil
}

func (w *Writer) marshal(doc ldk.Document) ([]byte, error) {
	if w.format == FormatArray && w.indent != "" {
		data, err := Marshal(doc)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", w.indent); err != nil {
			return nil, &ldk.SerializationError{Path: doc.ID(), Message: "indenting document", Err: err}
		}
		return buf.Bytes(), nil
	}
	return Marshal(doc)
}

// Count returns the number of documents written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Close finishes the output and closes the underlying writer. An array with
// no documents is written as "[]".
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.format == FormatArray {
		end := "\n]\n"
		if w.n == 0 {
			end = "[]\n"
		}
		if _, err := w.w.WriteString(end); err != nil {
			return errors.Wrap(err, "writing array end")
		}
	}
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "flushing")
	}
	if w.closer != nil {
		return errors.Wrap(w.closer.Close(), "closing")
	}
	return nil
}

// Marshal encodes doc as compact JSON without HTML escaping and without a
// trailing newline. NaN and infinite numbers are rejected with a
// *ldk.SerializationError naming where they are.
func Marshal(doc ldk.Document) ([]byte, error) {
	if err := CheckFinite(map[string]interface{}(doc), ""); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, &ldk.SerializationError{Path: doc.ID(), Message: "encoding document", Err: err}
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CheckFinite walks v and returns a *ldk.SerializationError for the first
// NaN or infinite number. path prefixes the reported location.
func CheckFinite(v interface{}, path string) error {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return &ldk.SerializationError{Path: path, Message: "non-finite number " + strconv.FormatFloat(x, 'g', -1, 64)}
		}
	case float32:
		return CheckFinite(float64(x), path)
	case json.Number:
		f, err := x.Float64()
		if err != nil && !isRangeErr(err) {
			return &ldk.SerializationError{Path: path, Message: "invalid number " + x.String(), Err: err}
		}
		if math.IsInf(f, 0) {
			return &ldk.SerializationError{Path: path, Message: "non-finite number " + x.String()}
		}
	case map[string]interface{}:
		for k, e := range x {
			if err := CheckFinite(e, join(path, k)); err != nil {
				return err
			}
		}
	case ldk.Document:
		return CheckFinite(map[string]interface{}(x), path)
	case []interface{}:
		for i, e := range x {
			if err := CheckFinite(e, join(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
	}
	return nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func join(path, k string) string {
	if path == "" {
		return k
	}
	return path + "." + k
}
