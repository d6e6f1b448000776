package ldk

import "io"

// Record is one raw record as produced by a Source. Values are scalars or nil
// for absent columns. Sources reading nested formats may also produce maps and
// slices, which the mapper only accepts through JSONPath sources.
type Record map[string]interface{}

// Source is the interface for getting raw records one at a time. Record
// returns io.EOF once the source is exhausted. Implementations of Source
// should be thread safe.
type Source interface {
	Record() (Record, error)
}

// BatchSource is implemented by sources which can cheaply produce several
// records per call. Records returns fewer than n records (possibly zero) along
// with io.EOF at the end.
type BatchSource interface {
	Source
	Records(n int) ([]Record, error)
}

// Counter is implemented by sources which may know how many records they hold.
// The boolean is false when the count is not cheaply available.
type Counter interface {
	Count() (int64, bool)
}

// Records drains up to n records from src, using its batch producer when it
// has one.
func Records(src Source, n int) ([]Record, error) {
	if bs, ok := src.(BatchSource); ok {
		return bs.Records(n)
	}
	recs := make([]Record, 0, n)
	for len(recs) < n {
		rec, err := src.Record()
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SliceSource is a Source over records held in memory.
type SliceSource struct {
	recs []Record
	next *Nexter
}

// NewSliceSource returns a Source which yields recs in order.
func NewSliceSource(recs []Record) *SliceSource {
	return &SliceSource{recs: recs, next: NewNexter()}
}

// Record implements Source.
func (s *SliceSource) Record() (Record, error) {
	i := s.next.Next()
	if i >= uint64(len(s.recs)) {
		return nil, io.EOF
	}
	return s.recs[i], nil
}

// Count implements Counter.
func (s *SliceSource) Count() (int64, bool) {
	return int64(len(s.recs)), true
}

// NamedReadCloser is a ReadCloser over one named raw object, e.g. a file or
// an S3 object.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
	Meta() map[string]interface{}
}

// RawSource yields raw objects one after another. NextReader returns io.EOF
// once there are none left.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}
