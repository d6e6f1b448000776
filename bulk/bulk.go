// Package bulk prepares documents for bulk loaders and uploads them in
// batches.
package bulk

import (
	"context"
	"sync"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/jsonld"
	"github.com/pkg/errors"
)

// Keys added to every uploaded document.
const (
	KeyID           = "id"
	KeyPartitionKey = "partitionKey"
)

// Item is one prepared document.
type Item struct {
	ID           string
	PartitionKey string
	Doc          ldk.Document
	// Data is the serialized Doc.
	Data []byte
}

// Uploader sends batches of items to a bulk loader.
type Uploader interface {
	Upload(ctx context.Context, items []Item) error
	Close() error
}

// Prepare returns a copy of doc carrying a flat string "id", the last
// segment of its "@id", and "partitionKey", its "@type". Values doc already
// carries under those keys are kept. doc itself is not modified.
func Prepare(doc ldk.Document) (ldk.Document, error) {
	ret := doc.Clone()
	if id, _ := ret[KeyID].(string); id == "" {
		id = ldk.LocalName(doc.ID())
		if id == "" {
			return nil, &ldk.SerializationError{Path: KeyID, Message: "document has no @id"}
		}
		ret[KeyID] = id
	}
	if pk, _ := ret[KeyPartitionKey].(string); pk == "" {
		pk = doc.Type()
		if pk == "" {
			return nil, &ldk.SerializationError{Path: KeyPartitionKey, Message: "document has no @type"}
		}
		ret[KeyPartitionKey] = pk
	}
	return ret, nil
}

// Sink is an ldk.Sink which prepares documents and hands them to an Uploader
// in batches. It is safe for concurrent use.
type Sink struct {
	up        Uploader
	size      int
	partition func(ldk.Document) string
	ctx       context.Context

	mu    sync.Mutex
	batch []Item
	sent  int
}

// Option configures a Sink.
type Option func(*Sink)

// WithBatchSize sets how many documents are uploaded at once.
func WithBatchSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithPartitionKey overrides the partition key of every document with fn's
// result, unless it is empty.
func WithPartitionKey(fn func(ldk.Document) string) Option {
	return func(s *Sink) {
		s.partition = fn
	}
}

// WithContext sets the context passed to the Uploader.
func WithContext(ctx context.Context) Option {
	return func(s *Sink) {
		s.ctx = ctx
	}
}

// NewSink returns a Sink uploading through up.
func NewSink(up Uploader, opts ...Option) *Sink {
	s := &Sink{
		up:   up,
		size: 500,
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write implements ldk.Sink. Documents that can't be prepared or serialized
// fail alone with a *ldk.SerializationError; upload failures fail the batch.
func (s *Sink) Write(doc ldk.Document) error {
	if s.partition != nil {
		if pk := s.partition(doc); pk != "" {
			doc = doc.Clone()
			doc[KeyPartitionKey] = pk
		}
	}
	prepared, err := Prepare(doc)
	if err != nil {
		return err
	}
	data, err := jsonld.Marshal(prepared)
	if err != nil {
		return err
	}
	item := Item{
		ID:           prepared[KeyID].(string),
		PartitionKey: prepared[KeyPartitionKey].(string),
		Doc:          prepared,
		Data:         data,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, item)
	if len(s.batch) >= s.size {
		return s.flush()
	}
	return nil
}

// flush uploads the pending batch. s.mu must be held.
func (s *Sink) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.up.Upload(s.ctx, s.batch); err != nil {
		return errors.Wrapf(err, "uploading batch of %d", len(s.batch))
	}
	s.sent += len(s.batch)
	s.batch = nil
	return nil
}

// Sent returns the number of documents uploaded so far.
func (s *Sink) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Close uploads what is left and closes the Uploader.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.flush()
	if cerr := s.up.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "closing uploader")
	}
	return err
}
