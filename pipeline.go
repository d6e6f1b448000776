package ldk

// Mapper is the interface for turning raw records from a Source into
// MappedRecords. Implementations must be safe for concurrent use and must
// return a fresh MappedRecord from every call.
type Mapper interface {
	Map(rec Record) (*MappedRecord, error)
}

// Builder is the interface for turning MappedRecords into JSON-LD Documents.
// Implementations must be safe for concurrent use.
type Builder interface {
	BuildOne(m *MappedRecord) (Document, error)
}

// RowValidator checks raw records before they are mapped.
type RowValidator interface {
	ValidateRow(rec Record, mode Mode) (*ValidationResult, error)
}

// DocumentValidator checks built documents against a schema.
type DocumentValidator interface {
	ValidateOne(doc Document) (*ValidationResult, error)
}

// Sink puts documents somewhere.
type Sink interface {
	Write(doc Document) error
	Close() error
}

// DeadLetter receives records which failed a stage so a run can continue.
// ordinal is the record's position in its source.
type DeadLetter interface {
	Reject(ordinal uint64, rec Record, stage Stage, err error) error
	Close() error
}

// MultiSink writes every document to each of its sinks in turn.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(doc Document) error {
	for _, s := range m {
		if err := s.Write(doc); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the first error.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
