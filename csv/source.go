// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
	"github.com/viant/afs"
)

// Source satisfies the ldk.Source interface for CSV data. Each row of a CSV
// file is returned by a call to Record as an ldk.Record whose keys are taken
// from the first row of the file. Empty cells are left out of the record so
// they read as absent. Quoted cells may hold the delimiter. Source is safe
// for concurrent use.
//
// The Source takes care of retrying failed reads/downloads and making sure not
// to return duplicate data.
type Source struct {
	files       []*file
	maxRetries  int
	concurrency int
	comma       rune
	fs          afs.Service
	log         ldk.Logger

	records chan record
	done    chan struct{}
	once    sync.Once
}

// NewSource creates an ldk.Source for CSV data. The source of the raw data can
// be set by using Options defined in this package. e.g.
//
// src := NewSource(WithURLs([]string{"myfile1.csv", "s3://bucket/myfile2.csv", "https://example.com/myfile3.csv"}))
func NewSource(options ...Option) *Source {
	src := &Source{
		records:     make(chan record),
		done:        make(chan struct{}),
		maxRetries:  3,
		concurrency: 1,
		comma:       ',',
		fs:          afs.New(),
		log:         ldk.NopLogger{},
	}

	for _, opt := range options {
		opt(src)
	}
	go src.getRecords()
	return src
}

// Option is a functional option to pass to NewSource.
type Option func(*Source)

// WithURLs returns an Option which adds the slice of URLs to the set of data
// sources a Source will read from. Anything afs can open works: local paths,
// file://, s3://, gs:// and http(s):// URLs.
func WithURLs(urls []string) Option {
	return func(s *Source) {
		for _, url := range urls {
			s.files = append(s.files, &file{OpenStringer: &urlOpener{url: url, fs: s.fs}})
		}
	}
}

// WithOpenStringers returns an Option which adds the slice of OpenStringers to
// the set of data sources a Source will read from.
func WithOpenStringers(os []OpenStringer) Option {
	return func(s *Source) {
		for _, os := range os {
			s.files = append(s.files, &file{OpenStringer: os})
		}
	}
}

// WithMaxRetries returns an Option which sets the max number of retries per file on
// a Source.
func WithMaxRetries(maxRetries int) Option {
	return func(s *Source) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
	}
}

// WithConcurrency returns an Option which sets the number of goroutines fetching
// files simultaneously. With more than one, rows of different files are
// interleaved.
func WithConcurrency(c int) Option {
	return func(s *Source) {
		if c > 0 {
			s.concurrency = c
		}
	}
}

// WithComma sets the field delimiter, e.g. '\t' for TSV files.
func WithComma(r rune) Option {
	return func(s *Source) {
		s.comma = r
	}
}

// WithLogger sets the logger.
func WithLogger(l ldk.Logger) Option {
	return func(s *Source) {
		s.log = l
	}
}

// file tracks the use of an OpenStringer.
type file struct {
	OpenStringer
	line int // tracks how many rows of this file we've read.
}

// Opener is an interface to a resource which can be repeatedly Opened (and the
// returned ReadCloser can be subsequently read). Each call to Open should
// return a ReadCloser which reads from the beginning of the resource. In the
// case of an error while reading, Open will be called again to retry reading
// the entire resource.
type Opener interface {
	Open() (io.ReadCloser, error)
}

// OpenStringer is an Opener which also has a String method which should return
// the name of the resource being opened (e.g. a file or URL).
type OpenStringer interface {
	fmt.Stringer
	Opener
}

// urlOpener turns a URL or file into an OpenStringer.
type urlOpener struct {
	url string
	fs  afs.Service
}

func (u *urlOpener) Open() (io.ReadCloser, error) {
	rc, err := u.fs.OpenURL(context.Background(), u.url)
	if err != nil {
		return nil, errors.Wrapf(err, "opening '%s'", u.url)
	}
	return rc, nil
}

func (u *urlOpener) String() string {
	return u.url
}

// Record returns a single data row of a CSV file. io.EOF is returned once
// every file has been read.
func (c *Source) Record() (ldk.Record, error) {
	rec, ok := <-c.records
	if !ok {
		return nil, io.EOF
	}
	return rec.rec, rec.err
}

// Close stops reading. Record returns io.EOF once the rows already read have
// been consumed.
func (c *Source) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type record struct {
	rec ldk.Record
	err error
}

// send delivers r unless the source was closed.
func (c *Source) send(r record) bool {
	select {
	case c.records <- r:
		return true
	case <-c.done:
		return false
	}
}

func (c *Source) getRecords() {
	fileChan := make(chan *file, c.concurrency)
	wg := sync.WaitGroup{}
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			for file := range fileChan {
				c.getRows(file)
			}
			wg.Done()
		}()
	}
	for _, file := range c.files {
		select {
		case fileChan <- file:
		case <-c.done:
		}
	}
	close(fileChan)
	wg.Wait()
	close(c.records)
}

func (c *Source) getRows(file *file) {
	var err error
	for try := 0; try < c.maxRetries; try++ {
		err = c.getRowTry(file)
		if err == nil || err == errClosed {
			return
		}
		c.log.Printf("reading %s failed at row %d: %v", file, file.line, err)
	}
	c.send(record{err: errors.Wrapf(err, "couldn't fetch '%s' - tried %d times, latest", file, c.maxRetries)})
}

var errClosed = errors.New("source closed")

func (c *Source) getRowTry(file *file) error {
	content, err := file.Open()
	if err != nil {
		return errors.Wrap(err, "opening")
	}
	defer content.Close()

	reader := csv.NewReader(content)
	reader.Comma = c.comma
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "reading header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if err := validateHeader(header); err != nil {
		c.send(record{err: errors.Wrapf(err, "validating header of %s", file)})
		return nil // error is permanent so we don't return to getRows for retry
	}

	// catch up to previous location
	for line := 0; line < file.line; line++ {
		if _, err := reader.Read(); err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				continue
			}
			return errors.Wrapf(err, "skipping to row %d", file.line)
		}
	}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		file.line++
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				// malformed quoting can't be fixed by reading again
				if !c.send(record{err: errors.Wrapf(err, "file %s: parsing row %d", file, file.line)}) {
					return errClosed
				}
				continue
			}
			file.line--
			return errors.Wrapf(err, "reading '%s', row %d", file, file.line+1)
		}
		if blank(row) {
			continue
		}
		rec, err := c.parseRecord(header, row)
		if err != nil {
			err = errors.Wrapf(err, "file %s: parsing row %d", file, file.line)
		}
		if !c.send(record{rec: rec, err: err}) {
			return errClosed
		}
	}
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (c *Source) parseRecord(header []string, row []string) (ldk.Record, error) {
	if len(header) > len(row) {
		return nil, errors.Errorf("header/row len mismatch: %dvs%d", len(header), len(row))
	} else if len(row) > len(header) {
		for i := len(header); i < len(row); i++ {
			if strings.TrimSpace(row[i]) != "" {
				c.log.Printf("data in non headered field %d", i)
			}
		}
	}
	ret := make(ldk.Record, len(header))
	for i := 0; i < len(header); i++ {
		if row[i] == "" {
			continue
		}
		ret[header[i]] = row[i]
	}
	return ret, nil
}

func validateHeader(header []string) error {
	fields := make(map[string]int)
	for i, h := range header {
		if h == "" {
			return errors.Errorf("header contains empty string at %d: %v", i, header)
		}
		if pos, exists := fields[h]; exists {
			return errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		fields[h] = i
	}
	return nil
}
