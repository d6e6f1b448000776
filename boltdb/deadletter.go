// Package boltdb provides an ldk.DeadLetter which keeps failed records in a
// boltdb file so they can be inspected and replayed after a run.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

var entryBucket = []byte("deadletter")

// Entry is one rejected record.
type Entry struct {
	Seq     uint64     `json:"-"`
	RunID   string     `json:"run"`
	Ordinal uint64     `json:"ordinal"`
	Stage   ldk.Stage  `json:"stage"`
	Error   string     `json:"error"`
	Record  ldk.Record `json:"record"`
	Time    time.Time  `json:"time"`
}

// DeadLetter is an ldk.DeadLetter backed by boltdb. Entries from every run
// accumulate in the same file, told apart by run ID.
type DeadLetter struct {
	Db       *bolt.DB
	runID    string
	redactor *ldk.Redactor
	now      func() time.Time

	mu       sync.Mutex
	rejected int
}

// Option configures a DeadLetter.
type Option func(*DeadLetter)

// WithRunID sets the run ID stored with each entry. By default every
// DeadLetter gets a fresh random one.
func WithRunID(id string) Option {
	return func(d *DeadLetter) {
		d.runID = id
	}
}

// WithRedactor redacts records before they are stored.
func WithRedactor(r *ldk.Redactor) Option {
	return func(d *DeadLetter) {
		d.redactor = r
	}
}

// NewDeadLetter opens or creates the bolt file at filename.
func NewDeadLetter(filename string, opts ...Option) (d *DeadLetter, err error) {
	d = &DeadLetter{
		runID: uuid.New().String(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = d.Db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entryBucket)
		return errors.Wrap(err, "creating deadletter bucket")
	})
	if err != nil {
		d.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return d, nil
}

// RunID returns the ID entries are stored under.
func (d *DeadLetter) RunID() string { return d.runID }

// Reject implements ldk.DeadLetter.
func (d *DeadLetter) Reject(ordinal uint64, rec ldk.Record, stage ldk.Stage, cause error) error {
	e := Entry{
		RunID:   d.runID,
		Ordinal: ordinal,
		Stage:   stage,
		Record:  d.redactor.Redact(rec),
		Time:    d.now().UTC(),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	data, err := json.Marshal(e)
	if err != nil {
		// values such as NaN can't be encoded; keep their printed form
		e.Record = printable(e.Record)
		if data, err = json.Marshal(e); err != nil {
			return errors.Wrap(err, "encoding entry")
		}
	}
	err = d.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return errors.Wrap(err, "getting sequence")
		}
		return b.Put(key(seq), data)
	})
	if err != nil {
		return errors.Wrapf(err, "storing record %d", ordinal)
	}
	d.mu.Lock()
	d.rejected++
	d.mu.Unlock()
	return nil
}

// Rejected returns the number of records rejected through d.
func (d *DeadLetter) Rejected() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rejected
}

func printable(rec ldk.Record) ldk.Record {
	ret := make(ldk.Record, len(rec))
	for k, v := range rec {
		if _, err := json.Marshal(v); err != nil {
			ret[k] = fmt.Sprint(v)
			continue
		}
		ret[k] = v
	}
	return ret
}

func key(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Entries returns the entries of run in the order they were stored. An
// empty run returns the entries of every run.
func (d *DeadLetter) Entries(run string) ([]Entry, error) {
	return entries(d.Db, run)
}

func entries(db *bolt.DB, run string) (ret []Entry, err error) {
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrapf(err, "decoding entry %x", k)
			}
			if run != "" && e.RunID != run {
				return nil
			}
			e.Seq = binary.BigEndian.Uint64(k)
			ret = append(ret, e)
			return nil
		})
	})
	return ret, err
}

// ReadEntries opens the bolt file at filename read only and returns the
// entries of run, or of every run if run is empty.
func ReadEntries(filename, run string) ([]Entry, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	defer db.Close()
	return entries(db, run)
}

// Close syncs and closes the underlying boltdb.
func (d *DeadLetter) Close() error {
	err := d.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return d.Db.Close()
}
