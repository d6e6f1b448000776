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

// Package leveldb provides a document store backed by leveldb. Documents are
// keyed by their @id, so running the same input twice leaves one copy of
// each document.
package leveldb

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/jsonld"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var docPrefix = []byte("doc/")

var _ ldk.Sink = &Store{}

// Store is an ldk.Sink which stores documents in leveldb.
type Store struct {
	db   *leveldb.DB
	sync bool
}

// Option configures a Store.
type Option func(*Store)

// WithSync makes every write wait for the data to reach disk.
func WithSync(sync bool) Option {
	return func(s *Store) {
		s.sync = sync
	}
}

// Open opens or creates the store in dirname.
func Open(dirname string, opts ...Option) (*Store, error) {
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	s := &Store{}
	for _, o := range opts {
		o(s)
	}
	s.db, err = leveldb.OpenFile(dirname, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return s, nil
}

func docKey(id string) []byte {
	return append(append([]byte{}, docPrefix...), id...)
}

// Write implements ldk.Sink. A document with the same @id as a stored one
// replaces it.
func (s *Store) Write(doc ldk.Document) error {
	id := doc.ID()
	if id == "" {
		return &ldk.SerializationError{Path: ldk.KeyID, Message: "document has no @id"}
	}
	data, err := jsonld.Marshal(doc)
	if err != nil {
		return err
	}
	err = s.db.Put(docKey(id), data, &opt.WriteOptions{Sync: s.sync})
	return errors.Wrapf(err, "storing %s", id)
}

// Get returns the document stored under id.
func (s *Store) Get(id string) (ldk.Document, bool, error) {
	data, err := s.db.Get(docKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrapf(err, "getting %s", id)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decoding %s", id)
	}
	return doc, true, nil
}

// Each calls fn for every stored document in @id order, stopping at the
// first error.
func (s *Store) Each(fn func(ldk.Document) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(docPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		doc, err := decode(iter.Value())
		if err != nil {
			return errors.Wrapf(err, "decoding %s", iter.Key()[len(docPrefix):])
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "iterating")
}

// Count returns the number of stored documents.
func (s *Store) Count() (n int, err error) {
	iter := s.db.NewIterator(util.BytesPrefix(docPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		n++
	}
	return n, errors.Wrap(iter.Error(), "iterating")
}

// Close closes the underlying leveldb.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "closing leveldb")
}

func decode(data []byte) (ldk.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc ldk.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
