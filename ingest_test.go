package ldk_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/test"
	"github.com/pkg/errors"
)

type fakeMapper struct{}

func (fakeMapper) Map(rec ldk.Record) (*ldk.MappedRecord, error) {
	id, _ := rec["id"].(string)
	if rec["fail"] == "map" {
		return nil, &ldk.MappingError{RecordID: id, Message: "bad value"}
	}
	// uneven work so that concurrent records finish out of order.
	time.Sleep(time.Duration(len(id)%3) * time.Millisecond)
	return ldk.NewMappedRecord(id), nil
}

type fakeBuilder struct{}

func (fakeBuilder) BuildOne(m *ldk.MappedRecord) (ldk.Document, error) {
	if m.ID == "" {
		return nil, &ldk.BuildError{Message: "identifier is missing"}
	}
	return ldk.Document{"@id": "http://example.org/persons/" + m.ID, "@type": "Person"}, nil
}

type memSink struct {
	docs   []ldk.Document
	closed bool
	// fail maps an @id to the error writing it returns.
	fail map[string]error
}

func (s *memSink) Write(doc ldk.Document) error {
	if err, ok := s.fail[doc.ID()]; ok {
		return err
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func (s *memSink) ids() []string {
	var ids []string
	for _, d := range s.docs {
		ids = append(ids, ldk.LocalName(d.ID()))
	}
	return ids
}

type rejected struct {
	ordinal uint64
	stage   ldk.Stage
}

type memDeadLetter struct {
	mu      sync.Mutex
	entries []rejected
	closed  bool
}

func (d *memDeadLetter) Reject(ordinal uint64, rec ldk.Record, stage ldk.Stage, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, rejected{ordinal, stage})
	return nil
}

func (d *memDeadLetter) Close() error {
	d.closed = true
	return nil
}

type rowValidator struct{ calls int64 }

func (v *rowValidator) ValidateRow(rec ldk.Record, mode ldk.Mode) (*ldk.ValidationResult, error) {
	atomic.AddInt64(&v.calls, 1)
	res := ldk.NewValidationResult()
	res.Records = 1
	id, _ := rec["id"].(string)
	if rec["fail"] == "preflight" {
		issue := ldk.FieldIssue{Path: "id", Message: "bad", Severity: ldk.SeverityError}
		res.Add(id, issue)
		if mode == ldk.ModeStrict {
			return res, &ldk.ValidationError{RecordID: id, Issue: issue}
		}
	}
	return res, nil
}

type docValidator struct {
	mu  sync.Mutex
	ids []string
}

func (v *docValidator) ValidateOne(doc ldk.Document) (*ldk.ValidationResult, error) {
	v.mu.Lock()
	v.ids = append(v.ids, doc.ID())
	v.mu.Unlock()
	res := ldk.NewValidationResult()
	res.Records = 1
	return res, nil
}

// errSource yields records, returning err in place of any record with an
// "err" key.
type errSource struct {
	src ldk.Source
}

func (s errSource) Record() (ldk.Record, error) {
	rec, err := s.src.Record()
	if err != nil {
		return nil, err
	}
	if msg, ok := rec["err"].(string); ok {
		return nil, errors.New(msg)
	}
	return rec, nil
}

func people(n int) []ldk.Record {
	recs := make([]ldk.Record, n)
	for i := range recs {
		recs[i] = ldk.Record{"id": fmt.Sprintf("%d", i)}
	}
	return recs
}

func TestIngesterKeepsOrder(t *testing.T) {
	for _, concurrency := range []int{1, 2, 8} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			sink := &memSink{}
			ing := ldk.NewIngester(ldk.NewSliceSource(people(200)), fakeMapper{}, fakeBuilder{}, sink)
			ing.Concurrency = concurrency
			stats, err := ing.Run(context.Background())
			test.ErrNil(t, err, "Run")
			test.MustBe(t, uint64(200), stats.Records)
			test.MustBe(t, uint64(200), stats.Written)
			test.MustBe(t, true, sink.closed)
			for i, id := range sink.ids() {
				if id != fmt.Sprintf("%d", i) {
					t.Fatalf("document %d is %s", i, id)
				}
			}
		})
	}
}

func TestIngesterDeadLetter(t *testing.T) {
	recs := []ldk.Record{
		{"id": "0"},
		{"id": "1", "fail": "map"},
		{"err": "unreadable row"},
		{"id": "3", "fail": "preflight"},
		{"id": ""},
		{"id": "5"},
		{"id": "6"},
	}
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			sink := &memSink{fail: map[string]error{
				"http://example.org/persons/6": &ldk.SerializationError{Path: "Score", Message: "non-finite value"},
			}}
			dl := &memDeadLetter{}
			rv := &rowValidator{}
			ing := ldk.NewIngester(errSource{ldk.NewSliceSource(recs)}, fakeMapper{}, fakeBuilder{}, sink)
			ing.Concurrency = concurrency
			ing.DeadLetter = dl
			ing.Preflight = rv
			ing.PreflightMode = ldk.ModeStrict

			stats, err := ing.Run(context.Background())
			test.ErrNil(t, err, "Run")
			test.MustBe(t, []string{"0", "5"}, sink.ids())
			test.MustBe(t, []rejected{
				{1, ldk.StageMap},
				{2, ldk.StageSource},
				{3, ldk.StagePreflight},
				{4, ldk.StageBuild},
				{6, ldk.StageSink},
			}, dl.entries)
			test.MustBe(t, true, dl.closed)
			test.MustBe(t, uint64(7), stats.Records)
			test.MustBe(t, stats.Records, stats.Written+stats.DeadLettered)
			test.MustBe(t, []uint64{1, 2, 3, 4, 6}, stats.Failed.ToArray())
			test.MustBe(t, int64(6), atomic.LoadInt64(&rv.calls), "source errors aren't preflighted")
			test.MustBe(t, 6, stats.Preflight.Records)
			test.MustBe(t, 1, stats.Preflight.ErrorCount())
		})
	}
}

func TestIngesterAbortsWithoutDeadLetter(t *testing.T) {
	recs := people(50)
	recs[17]["fail"] = "map"
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			sink := &memSink{}
			ing := ldk.NewIngester(ldk.NewSliceSource(recs), fakeMapper{}, fakeBuilder{}, sink)
			ing.Concurrency = concurrency
			stats, err := ing.Run(context.Background())
			if err == nil || !strings.Contains(err.Error(), "record 17 failed at map") {
				t.Fatalf("unexpected error: %v", err)
			}
			var merr *ldk.MappingError
			if !errors.As(err, &merr) {
				t.Fatalf("expected a MappingError in %v", err)
			}
			test.MustBe(t, uint64(17), stats.Written, "everything before the failure is written")
			test.MustBe(t, true, sink.closed)
		})
	}
}

func TestIngesterSinkFailure(t *testing.T) {
	sink := &memSink{fail: map[string]error{"http://example.org/persons/2": io.ErrShortWrite}}
	ing := ldk.NewIngester(ldk.NewSliceSource(people(5)), fakeMapper{}, fakeBuilder{}, sink)
	ing.DeadLetter = &memDeadLetter{}
	stats, err := ing.Run(context.Background())
	if errors.Cause(err) != io.ErrShortWrite {
		t.Fatalf("unexpected error: %v", err)
	}
	test.MustBe(t, uint64(2), stats.Written)
	test.MustBe(t, uint64(0), stats.DeadLettered)
}

func TestIngesterCancel(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sink := &memSink{}
		ing := ldk.NewIngester(ldk.NewSliceSource(people(10)), fakeMapper{}, fakeBuilder{}, sink)
		ing.Concurrency = concurrency
		stats, err := ing.Run(ctx)
		if errors.Cause(err) != context.Canceled {
			t.Fatalf("concurrency %d: unexpected error: %v", concurrency, err)
		}
		test.MustBe(t, uint64(0), stats.Written)
		test.MustBe(t, true, sink.closed)
	}
}

func TestIngesterSampling(t *testing.T) {
	run := func(concurrency int, seed int64) ([]string, int64) {
		dv := &docValidator{}
		rv := &rowValidator{}
		ing := ldk.NewIngester(ldk.NewSliceSource(people(100)), fakeMapper{}, fakeBuilder{}, &memSink{})
		ing.Concurrency = concurrency
		ing.Seed = seed
		ing.Schema = dv
		ing.SchemaSampleRate = 0.3
		ing.Preflight = rv
		ing.PreflightMode = ldk.ModeSample
		ing.PreflightSampleRate = 0.5
		stats, err := ing.Run(context.Background())
		test.ErrNil(t, err, "Run")
		test.MustBe(t, len(dv.ids), stats.Schema.Records)
		test.MustBe(t, int(rv.calls), stats.Preflight.Records)
		dv.mu.Lock()
		defer dv.mu.Unlock()
		ids := append([]string(nil), dv.ids...)
		sort.Strings(ids)
		return ids, rv.calls
	}

	a, pa := run(1, 42)
	b, pb := run(4, 42)
	test.MustBe(t, a, b, "sample doesn't depend on concurrency")
	test.MustBe(t, pa, pb)
	if len(a) == 0 || len(a) == 100 {
		t.Fatalf("schema sample of %d documents", len(a))
	}
	if pa == 0 || pa == 100 {
		t.Fatalf("preflight sample of %d records", pa)
	}
	c, _ := run(1, 7)
	if fmt.Sprint(a) == fmt.Sprint(c) {
		t.Fatal("different seeds picked the same sample")
	}
}

func TestIngesterPreflightOff(t *testing.T) {
	rv := &rowValidator{}
	ing := ldk.NewIngester(ldk.NewSliceSource(people(10)), fakeMapper{}, fakeBuilder{}, &memSink{})
	ing.Preflight = rv
	ing.PreflightMode = ldk.ModeSample
	ing.PreflightSampleRate = 0
	_, err := ing.Run(context.Background())
	test.ErrNil(t, err, "Run")
	test.MustBe(t, int64(0), rv.calls)

	ing = ldk.NewIngester(ldk.NewSliceSource(people(10)), fakeMapper{}, fakeBuilder{}, &memSink{})
	ing.Preflight = rv
	stats, err := ing.Run(context.Background())
	test.ErrNil(t, err, "Run")
	test.MustBe(t, int64(10), rv.calls, "report mode checks every record")
	test.MustBe(t, true, stats.Preflight.Conforms())
}
