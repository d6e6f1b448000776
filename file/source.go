// Package file reads records from a file or from every file in a directory.
// CSV and TSV files are read with the csv package, everything else as a
// stream of JSON objects.
package file

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/csv"
	"github.com/ldkit/ldk/json"
	"github.com/pkg/errors"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
)

// Formats a Source can read.
const (
	FormatCSV  = "csv"
	FormatTSV  = "tsv"
	FormatJSON = "json"
)

// Lister yields the objects a Source reads, one after another. Each object
// may be opened more than once, so that a failing csv read can be retried.
type Lister interface {
	NextObject() (csv.OpenStringer, bool)
}

// Source is an ldk.Source over the objects of a Lister, e.g. the files of a
// RawSource in name order.
type Source struct {
	lister    Lister
	records   chan record
	subjectAt string
	format    string

	done chan struct{}
	once sync.Once
}

// SrcOption configures a Source.
type SrcOption func(s *Source) error

// OptSrcSubjectAt makes the source add key to each record holding the file
// name and the record's position in the file, e.g. "people.csv#3".
func OptSrcSubjectAt(key string) SrcOption {
	return func(s *Source) error {
		s.subjectAt = key
		return nil
	}
}

// OptSrcPath sets the file or directory to read. It may be a local path or
// any URL afs can list.
func OptSrcPath(pathname string) SrcOption {
	return func(s *Source) error {
		rs, err := NewRawSource(context.Background(), pathname)
		if err != nil {
			return errors.Wrap(err, "getting raw source")
		}
		s.lister = rs
		return nil
	}
}

// OptSrcLister reads the objects of l, e.g. an S3 bucket.
func OptSrcLister(l Lister) SrcOption {
	return func(s *Source) error {
		s.lister = l
		return nil
	}
}

// OptSrcFormat reads every file as format instead of going by extension.
func OptSrcFormat(format string) SrcOption {
	return func(s *Source) error {
		switch f := strings.ToLower(format); f {
		case "", FormatCSV, FormatTSV, FormatJSON:
			s.format = f
			return nil
		}
		return errors.Errorf("unknown file format '%s'", format)
	}
}

// NewSource returns a Source. OptSrcPath or OptSrcLister is required.
func NewSource(opts ...SrcOption) (*Source, error) {
	s := &Source{
		records: make(chan record, 100),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		err := opt(s)
		if err != nil {
			return nil, err
		}
	}
	if s.lister == nil {
		return nil, errors.New("no path to read from")
	}
	go s.run()
	return s, nil
}

// formatOf picks the format for a file name.
func (s *Source) formatOf(name string) string {
	if s.format != "" {
		return s.format
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".tsv", ".tab":
		return FormatTSV
	}
	return FormatJSON
}

func (s *Source) run() {
	defer close(s.records)
	for {
		obj, ok := s.lister.NextObject()
		if !ok || !s.readFile(obj) {
			return
		}
	}
}

// readFile sends every record of obj. It returns false once the source is
// closed.
func (s *Source) readFile(obj csv.OpenStringer) bool {
	name := obj.String()
	switch format := s.formatOf(name); format {
	case FormatCSV, FormatTSV:
		opts := []csv.Option{csv.WithOpenStringers([]csv.OpenStringer{obj})}
		if format == FormatTSV {
			opts = append(opts, csv.WithComma('\t'))
		}
		src := csv.NewSource(opts...)
		defer src.Close()
		return s.drain(name, src)
	}
	reader, err := obj.Open()
	if err != nil {
		return s.send(record{err: err})
	}
	defer reader.Close()
	return s.drain(name, json.NewSource(reader))
}

func (s *Source) drain(name string, src ldk.Source) bool {
	for i := 0; ; i++ {
		rec, err := src.Record()
		if err == io.EOF {
			return true
		}
		if err != nil {
			err = errors.Wrapf(err, "reading %s", name)
		} else if s.subjectAt != "" {
			rec[s.subjectAt] = fmt.Sprintf("%s#%d", name, i)
		}
		if !s.send(record{data: rec, err: err}) {
			return false
		}
	}
}

func (s *Source) send(r record) bool {
	select {
	case s.records <- r:
		return true
	case <-s.done:
		return false
	}
}

// Record implements ldk.Source.
func (s *Source) Record() (ldk.Record, error) {
	rec, ok := <-s.records
	if !ok {
		return nil, io.EOF
	}
	return rec.data, rec.err
}

// Close stops reading after the current record.
func (s *Source) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type record struct {
	data ldk.Record
	err  error
}

// RawSource is an ldk.RawSource over a file or the files directly inside a
// directory. Sub-directories are skipped.
type RawSource struct {
	fs      afs.Service
	files   []storage.Object
	fileIdx *uint64
}

// NewRawSource lists pathname.
func NewRawSource(ctx context.Context, pathname string) (*RawSource, error) {
	fileIdx := uint64(0)
	s := &RawSource{
		fs:      afs.New(),
		fileIdx: &fileIdx,
	}
	objects, err := s.fs.List(ctx, pathname)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", pathname)
	}
	for _, obj := range objects {
		if obj.IsDir() || strings.HasPrefix(obj.Name(), ".") {
			continue
		}
		s.files = append(s.files, obj)
	}
	sort.Slice(s.files, func(i, j int) bool { return s.files[i].URL() < s.files[j].URL() })
	return s, nil
}

func (s *RawSource) next() (storage.Object, bool) {
	idx := atomic.AddUint64(s.fileIdx, 1) - 1
	if int(idx) >= len(s.files) {
		return nil, false
	}
	return s.files[idx], true
}

func (s *RawSource) open(obj storage.Object) (*namedReader, error) {
	rc, err := s.fs.OpenURL(context.Background(), obj.URL())
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", obj.URL())
	}
	return &namedReader{ReadCloser: rc, name: obj.Name(), size: obj.Size()}, nil
}

// NextObject implements Lister.
func (s *RawSource) NextObject() (csv.OpenStringer, bool) {
	obj, ok := s.next()
	if !ok {
		return nil, false
	}
	return &objectOpener{rs: s, obj: obj}, true
}

// NextReader implements ldk.RawSource.
func (s *RawSource) NextReader() (ldk.NamedReadCloser, error) {
	obj, ok := s.next()
	if !ok {
		return nil, io.EOF
	}
	return s.open(obj)
}

type namedReader struct {
	io.ReadCloser
	name string
	size int64
}

func (n *namedReader) Name() string { return n.name }

func (n *namedReader) Meta() map[string]interface{} {
	return map[string]interface{}{"size": n.size}
}

// objectOpener lets the csv package reopen a file to retry it.
type objectOpener struct {
	rs  *RawSource
	obj storage.Object
}

func (o *objectOpener) Open() (io.ReadCloser, error) { return o.rs.open(o.obj) }

func (o *objectOpener) String() string { return o.obj.Name() }
