// Package json provides sources for streams of JSON objects.
package json

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

// Source reads a stream of JSON objects, one record per object. The objects
// may be newline delimited, simply concatenated, or the elements of one
// top-level array. Numbers are kept as json.Number so identifiers don't pass
// through float64.
type Source struct {
	r       *bufio.Reader
	dec     *json.Decoder
	inArray bool
	n       int
	done    bool
}

// NewSource returns a Source reading from r.
func NewSource(r io.Reader) *Source {
	return &Source{
		r: bufio.NewReader(r),
	}
}

func (s *Source) start() error {
	if s.dec != nil {
		return nil
	}
	// look at the first non-space byte without consuming it
	for {
		b, err := s.r.Peek(1)
		if err != nil {
			return err
		}
		if !isSpace(b[0]) {
			s.inArray = b[0] == '['
			break
		}
		if _, err := s.r.ReadByte(); err != nil {
			return err
		}
	}
	s.dec = json.NewDecoder(s.r)
	s.dec.UseNumber()
	if s.inArray {
		if _, err := s.dec.Token(); err != nil {
			return errors.Wrap(err, "reading array start")
		}
	}
	return nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// Record returns the next object. A value which isn't an object is an error
// for that record only. Malformed JSON ends the stream: the syntax error is
// returned once and io.EOF after it.
func (s *Source) Record() (ldk.Record, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := s.start(); err != nil {
		s.done = true
		return nil, err
	}
	if s.inArray && !s.dec.More() {
		if _, err := s.dec.Token(); err != nil {
			s.done = true
			return nil, errors.Wrap(err, "reading array end")
		}
		s.done = true
		return nil, io.EOF
	}
	var raw interface{}
	err := s.dec.Decode(&raw)
	if err == io.EOF {
		return nil, io.EOF
	} else if err != nil {
		s.done = true
		return nil, errors.Wrapf(err, "decoding object %d", s.n)
	}
	s.n++
	rec, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("value %d is a %T, not an object", s.n-1, raw)
	}
	return ldk.Record(rec), nil
}

type rawSourceSource struct {
	rs ldk.RawSource

	s   *Source
	cur ldk.NamedReadCloser
}

// NewSourceFromRawSource returns a Source which reads every object of every
// reader rs yields.
func NewSourceFromRawSource(rs ldk.RawSource) ldk.Source {
	return &rawSourceSource{rs: rs}
}

func (r *rawSourceSource) Record() (ldk.Record, error) {
	for {
		if r.s == nil {
			reader, err := r.rs.NextReader()
			if err == io.EOF {
				return nil, err
			} else if err != nil {
				return nil, errors.Wrap(err, "getting next reader")
			}
			r.cur = reader
			r.s = NewSource(reader)
		}
		rec, err := r.s.Record()
		if err == io.EOF {
			r.cur.Close()
			r.s, r.cur = nil, nil
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading %s", r.cur.Name())
		}
		return rec, nil
	}
}
