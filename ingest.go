package ldk

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Ingester reads records from a Source, maps and builds them into documents,
// optionally validates them, and writes them to a Sink. Documents reach the
// sink in source order regardless of Concurrency.
type Ingester struct {
	// Concurrency is the number of records mapped and built at once.
	Concurrency int

	// Preflight, when set, checks each raw record in PreflightMode before it
	// is mapped. Only an error from the validator (strict mode) fails a
	// record; issues found in report mode are collected in RunStats. In
	// sample mode a PreflightSampleRate fraction of records is checked.
	Preflight           RowValidator
	PreflightMode       Mode
	PreflightSampleRate float64

	// Schema, when set, checks a SchemaSampleRate fraction of built
	// documents. The sample is drawn from a math/rand source seeded with
	// Seed so runs are reproducible.
	Schema           DocumentValidator
	SchemaSampleRate float64
	Seed             int64

	// DeadLetter receives records which fail any stage. Without one, the
	// first failure aborts the run.
	DeadLetter DeadLetter

	Stats    Statter
	Log      Logger
	Redactor *Redactor

	src     Source
	mapper  Mapper
	builder Builder
	sink    Sink
}

// NewIngester gets a new Ingester.
func NewIngester(source Source, mapper Mapper, builder Builder, sink Sink) *Ingester {
	return &Ingester{
		Concurrency:         1,
		PreflightMode:       ModeReport,
		PreflightSampleRate: 1,
		SchemaSampleRate:    1,
		Stats:               NopStatter{},
		Log:                 NopLogger{},
		src:                 source,
		mapper:              mapper,
		builder:             builder,
		sink:                sink,
	}
}

// RunStats describes a finished run.
type RunStats struct {
	Records      uint64
	Written      uint64
	DeadLettered uint64
	// Failed holds the ordinals of records which failed a stage.
	Failed    *roaring64.Bitmap
	Preflight *ValidationResult
	Schema    *ValidationResult
	Duration  time.Duration
}

func newRunStats() *RunStats {
	return &RunStats{
		Failed:    roaring64.New(),
		Preflight: NewValidationResult(),
		Schema:    NewValidationResult(),
	}
}

type job struct {
	ordinal uint64
	rec     Record
	check   bool
	sample  bool
	srcErr  error
}

type outcome struct {
	job
	doc       Document
	stage     Stage
	err       error
	preflight *ValidationResult
	schema    *ValidationResult
}

// Run runs the pipeline until the source is exhausted, a record fails without
// a dead letter to catch it, or ctx is done. Cancellation is checked between
// records. The sink and dead letter are closed before Run returns.
func (n *Ingester) Run(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	stats := newRunStats()
	if c, ok := n.src.(Counter); ok {
		if total, known := c.Count(); known {
			n.Log.Printf("ingesting %d records", total)
		}
	}
	var err error
	if n.Concurrency > 1 {
		err = n.runConcurrent(ctx, stats)
	} else {
		err = n.runSequential(ctx, stats)
	}
	if cerr := n.sink.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "closing sink")
	}
	if n.DeadLetter != nil {
		if cerr := n.DeadLetter.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing dead letter")
		}
	}
	stats.Duration = time.Since(start)
	n.Log.Printf("ingested %d records in %v: %d written, %d dead-lettered", stats.Records, stats.Duration, stats.Written, stats.DeadLettered)
	return stats, err
}

// samplers returns the preflight and schema samplers. Each draws from its
// own source seeded with Seed, so the records picked don't depend on
// Concurrency.
func (n *Ingester) samplers() (preflight, schema func() bool) {
	preflight = always
	if n.Preflight == nil {
		preflight = never
	} else if n.PreflightMode == ModeSample {
		preflight = sampler(n.PreflightSampleRate, n.Seed)
	}
	schema = never
	if n.Schema != nil {
		schema = sampler(n.SchemaSampleRate, n.Seed+1)
	}
	return preflight, schema
}

func always() bool { return true }
func never() bool  { return false }

func sampler(rate float64, seed int64) func() bool {
	switch {
	case rate <= 0:
		return never
	case rate >= 1:
		return always
	}
	rng := rand.New(rand.NewSource(seed))
	return func() bool { return rng.Float64() < rate }
}

func (n *Ingester) newJob(ordinal uint64, rec Record, err error, preflight, schema func() bool) job {
	j := job{ordinal: ordinal, rec: rec, srcErr: err}
	if err == nil {
		j.check = preflight()
		j.sample = schema()
	}
	return j
}

func (n *Ingester) runSequential(ctx context.Context, stats *RunStats) error {
	preflight, schema := n.samplers()
	var ordinal uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := n.src.Record()
		if err == io.EOF {
			return nil
		}
		o := n.process(n.newJob(ordinal, rec, err, preflight, schema))
		ordinal++
		if err := n.finish(o, stats); err != nil {
			return err
		}
	}
}

// runConcurrent reads records on one goroutine, processes them on
// Concurrency workers and finishes them on one goroutine in ordinal order.
// At most 4*Concurrency records are in flight.
func (n *Ingester) runConcurrent(ctx context.Context, stats *RunStats) error {
	eg, ctx := errgroup.WithContext(ctx)
	window := make(chan struct{}, n.Concurrency*4)
	jobs := make(chan job, n.Concurrency)
	outcomes := make(chan outcome, n.Concurrency)
	preflight, schema := n.samplers()

	eg.Go(func() error {
		defer close(jobs)
		var ordinal uint64
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			rec, err := n.src.Record()
			if err == io.EOF {
				return nil
			}
			j := n.newJob(ordinal, rec, err, preflight, schema)
			ordinal++
			select {
			case jobs <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	wg := sync.WaitGroup{}
	for i := 0; i < n.Concurrency; i++ {
		wg.Add(1)
		eg.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				select {
				case outcomes <- n.process(j):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	eg.Go(func() error {
		pending := make(map[uint64]outcome)
		var next uint64
		for o := range outcomes {
			pending[o.ordinal] = o
			for {
				p, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if err := n.finish(p, stats); err != nil {
					return err
				}
				<-window
			}
		}
		return nil
	})
	return eg.Wait()
}

// process runs the CPU bound stages for one record. It touches no shared
// state.
func (n *Ingester) process(j job) outcome {
	o := outcome{job: j}
	if j.srcErr != nil {
		o.stage, o.err = StageSource, j.srcErr
		return o
	}
	if j.check {
		res, err := n.Preflight.ValidateRow(j.rec, n.PreflightMode)
		o.preflight = res
		if err != nil {
			o.stage, o.err = StagePreflight, err
			return o
		}
	}
	mapped, err := n.mapper.Map(j.rec)
	if err != nil {
		o.stage, o.err = StageMap, err
		return o
	}
	doc, err := n.builder.BuildOne(mapped)
	if err != nil {
		o.stage, o.err = StageBuild, err
		return o
	}
	if j.sample && n.Schema != nil {
		res, err := n.Schema.ValidateOne(doc)
		o.schema = res
		if err != nil {
			o.stage, o.err = StageSchema, err
			return o
		}
	}
	o.doc = doc
	return o
}

// finish writes a processed record or routes it to the dead letter. It is
// only ever called from one goroutine at a time.
func (n *Ingester) finish(o outcome, stats *RunStats) error {
	stats.Records++
	n.Stats.Count("ingest.records", 1, 1)
	stats.Preflight.Merge(o.preflight)
	stats.Schema.Merge(o.schema)
	if o.err == nil {
		o.err = n.sink.Write(o.doc)
		if o.err == nil {
			stats.Written++
			n.Stats.Count("ingest.written", 1, 1)
			return nil
		}
		if _, ok := errors.Cause(o.err).(*SerializationError); !ok {
			return errors.Wrapf(o.err, "writing document for record %d", o.ordinal)
		}
		o.stage = StageSink
	}
	stats.Failed.Add(o.ordinal)
	n.Stats.Count("ingest.failed."+string(o.stage), 1, 1)
	if n.DeadLetter == nil {
		return errors.Wrapf(o.err, "record %d failed at %s", o.ordinal, o.stage)
	}
	n.Log.Printf("record %d failed at %s: %v", o.ordinal, o.stage, o.err)
	n.Log.Debugf("failed record %d: %v", o.ordinal, n.Redactor.Redact(o.rec))
	if err := n.DeadLetter.Reject(o.ordinal, o.rec, o.stage, o.err); err != nil {
		return errors.Wrapf(err, "dead-lettering record %d", o.ordinal)
	}
	stats.DeadLettered++
	n.Stats.Count("ingest.deadletter", 1, 1)
	return nil
}
