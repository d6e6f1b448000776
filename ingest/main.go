// Package ingest holds the configuration shared by every ingest command and
// wires the engines, sinks and dead letter into an ldk.Ingester.
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/boltdb"
	"github.com/ldkit/ldk/build"
	"github.com/ldkit/ldk/bulk"
	"github.com/ldkit/ldk/jsonld"
	"github.com/ldkit/ldk/leveldb"
	"github.com/ldkit/ldk/mapper"
	"github.com/ldkit/ldk/mapping"
	"github.com/ldkit/ldk/preflight"
	"github.com/ldkit/ldk/shacl"
	"github.com/ldkit/ldk/shape"
	"github.com/ldkit/ldk/termstat"
	"github.com/pkg/errors"
)

// Main holds all config for general ingest.
type Main struct {
	Mapping       string   `help:"Mapping configuration (YAML). A local path or any URL afs understands."`
	Shape         string   `help:"SHACL shape schema (Turtle). Enables allowed-value preflight checks and schema validation."`
	Names         string   `help:"YAML lookup from IRI to human readable name."`
	ContextFile   string   `help:"Local copy of the mapping's JSON-LD context. Schema validation never fetches it."`
	Output        string   `help:"File to write documents to. '-' is stdout, empty writes no file."`
	Format        string   `help:"Output format: ndjson or array."`
	Store         string   `help:"LevelDB directory to also store documents in, keyed by @id."`
	BulkHosts     []string `help:"Kafka hosts to bulk upload documents to."`
	BulkTopic     string   `help:"Kafka topic for bulk upload."`
	BatchSize     int      `help:"Documents per bulk upload."`
	DeadLetter    string   `help:"Bolt file for records which fail a stage. Empty aborts the run on the first failure."`
	Preflight     string   `help:"Preflight mode: off, report, strict or sample."`
	PreflightRate float64  `help:"Fraction of records preflight checks in sample mode."`
	SchemaRate    float64  `help:"Fraction of documents validated against the shape schema. 0 disables schema validation."`
	Seed          int64    `help:"Seed for sampling."`
	Concurrency   int      `help:"Number of records mapped and built at once."`
	Report        string   `help:"File to write preflight and schema validation results to as JSON."`
	Redact        []string `help:"Record keys whose values are never logged or dead-lettered."`
	LogPath       string   `help:"Log file to write to. Empty means stderr."`
	Verbose       bool     `help:"Enable verbose logging."`
	Stats         bool     `help:"Print running counts to stderr."`

	NewSource  func() (ldk.Source, error)       `flag:"-"`
	Transforms map[string]mapping.TransformFunc `flag:"-"`

	log   ldk.Logger
	stats ldk.Statter
}

// NewMain returns a Main with the defaults.
func NewMain() *Main {
	return &Main{
		Output:        "-",
		Format:        string(jsonld.FormatNDJSON),
		BulkTopic:     "documents",
		BatchSize:     500,
		Preflight:     string(ldk.ModeReport),
		PreflightRate: preflight.DefaultSampleRate,
		Concurrency:   1,
	}
}

// Log returns the logger set up by Run.
func (m *Main) Log() ldk.Logger { return m.log }

// Run runs the ingest until the source is exhausted or the process is
// interrupted.
func (m *Main) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	stats, err := m.RunContext(ctx)
	if stats != nil {
		m.log.Printf("records: %d, written: %d, dead-lettered: %d, preflight errors: %d, preflight warnings: %d, schema errors: %d, schema warnings: %d, duration: %v",
			stats.Records, stats.Written, stats.DeadLettered,
			stats.Preflight.ErrorCount(), stats.Preflight.WarningCount(),
			stats.Schema.ErrorCount(), stats.Schema.WarningCount(), stats.Duration)
	}
	return err
}

func (m *Main) validate() error {
	if m.NewSource == nil {
		return errors.New("no source configured")
	}
	if m.Mapping == "" {
		return errors.New("a mapping configuration is required")
	}
	if m.SchemaRate < 0 || m.SchemaRate > 1 {
		return errors.Errorf("schema rate %v is not between 0 and 1", m.SchemaRate)
	}
	if m.SchemaRate > 0 && m.Shape == "" {
		return errors.New("schema validation needs a shape schema")
	}
	if m.Output == "" && m.Store == "" && len(m.BulkHosts) == 0 {
		return errors.New("no output configured")
	}
	if m.Concurrency < 1 {
		return errors.Errorf("concurrency must be at least 1, got %d", m.Concurrency)
	}
	return nil
}

func (m *Main) setupLog() error {
	var logOut io.Writer = os.Stderr
	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		logOut = f
	}
	if m.Verbose {
		m.log = ldk.VerboseLogger{Logger: log.New(logOut, "", log.LstdFlags)}
	} else {
		m.log = ldk.StdLogger{Logger: log.New(logOut, "", log.LstdFlags)}
	}
	return nil
}

// Engines are the loaded mapping, shape and the engines built from them.
type Engines struct {
	Config    *mapping.Config
	Model     *shape.Model
	Mapper    *mapper.Mapper
	Builder   *build.Builder
	Preflight *preflight.Validator
	Schema    *shacl.Validator
}

// LoadEngines loads the mapping, names and shape and builds every engine the
// configuration asks for. It is done once per run.
func (m *Main) LoadEngines(ctx context.Context) (*Engines, error) {
	if m.log == nil {
		m.log = ldk.NopLogger{}
	}
	if m.stats == nil {
		m.stats = ldk.NopStatter{}
	}
	e := &Engines{}
	var err error
	e.Config, err = mapping.Load(ctx, m.Mapping)
	if err != nil {
		return nil, errors.Wrap(err, "loading mapping")
	}
	if m.Shape != "" {
		var opts []shape.Option
		if m.Names != "" {
			names, err := mapping.LoadNames(ctx, m.Names)
			if err != nil {
				return nil, errors.Wrap(err, "loading names")
			}
			opts = append(opts, shape.WithNames(names))
		}
		e.Model, err = shape.Load(ctx, m.Shape, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "loading shape")
		}
		issues, err := e.Model.CheckMapping(e.Config)
		if err != nil {
			return nil, errors.Wrap(err, "checking mapping against shape")
		}
		var bad int
		for _, issue := range issues {
			m.log.Printf("mapping: %v", issue)
			if issue.Severity == ldk.SeverityError {
				bad++
			}
		}
		if bad > 0 {
			return nil, errors.Errorf("mapping does not fit the shape: %d errors", bad)
		}
	}

	e.Mapper, err = mapper.New(e.Config,
		mapper.WithTransforms(m.Transforms),
		mapper.WithLogger(m.log),
		mapper.WithStats(m.stats),
	)
	if err != nil {
		return nil, errors.Wrap(err, "getting mapper")
	}
	e.Builder, err = build.New(e.Config)
	if err != nil {
		return nil, errors.Wrap(err, "getting builder")
	}

	mode, err := m.preflightMode()
	if err != nil {
		return nil, err
	}
	if mode != "" {
		opts := []preflight.Option{
			preflight.WithTransforms(m.Transforms),
			preflight.WithSampleRate(m.PreflightRate),
			preflight.WithSeed(m.Seed),
			preflight.WithLogger(m.log),
		}
		if e.Model != nil {
			opts = append(opts, preflight.WithShape(e.Model))
		}
		e.Preflight, err = preflight.New(e.Config, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "getting preflight validator")
		}
	}

	if m.SchemaRate > 0 {
		opts := []shacl.Option{shacl.WithSeed(m.Seed), shacl.WithLogger(m.log)}
		if m.ContextFile != "" {
			opts = append(opts, shacl.WithContextFile(e.Config.ContextURL, m.ContextFile))
		}
		e.Schema, err = shacl.New(e.Model, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "getting schema validator")
		}
	}
	return e, nil
}

// preflightMode returns "" when preflight is off.
func (m *Main) preflightMode() (ldk.Mode, error) {
	if m.Preflight == "off" {
		return "", nil
	}
	mode, err := ldk.ParseMode(m.Preflight)
	return mode, errors.Wrap(err, "parsing preflight mode")
}

func (m *Main) sink(ctx context.Context) (ldk.Sink, error) {
	var sinks ldk.MultiSink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	if m.Output != "" {
		format, err := jsonld.ParseFormat(m.Format)
		if err != nil {
			return nil, err
		}
		w, err := jsonld.Create(m.Output, jsonld.WithFormat(format))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	}
	if m.Store != "" {
		store, err := leveldb.Open(m.Store)
		if err != nil {
			closeAll()
			return nil, errors.Wrap(err, "opening document store")
		}
		sinks = append(sinks, store)
	}
	if len(m.BulkHosts) > 0 {
		up, err := bulk.NewKafkaUploader(m.BulkHosts, m.BulkTopic)
		if err != nil {
			closeAll()
			return nil, errors.Wrap(err, "getting bulk uploader")
		}
		sinks = append(sinks, bulk.NewSink(up, bulk.WithBatchSize(m.BatchSize), bulk.WithContext(ctx)))
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// RunContext sets up and runs one ingest. It returns the run's stats even
// when the run fails part way.
func (m *Main) RunContext(ctx context.Context) (*ldk.RunStats, error) {
	if err := m.validate(); err != nil {
		return nil, errors.Wrap(err, "validating configuration")
	}
	if err := m.setupLog(); err != nil {
		return nil, err
	}
	m.stats = ldk.NopStatter{}
	if m.Stats {
		collector := termstat.NewCollector(os.Stderr, 2*time.Second)
		defer collector.Stop()
		m.stats = collector
	}
	engines, err := m.LoadEngines(ctx)
	if err != nil {
		return nil, err
	}
	redactor := ldk.NewRedactor(m.Redact...)

	src, err := m.NewSource()
	if err != nil {
		return nil, errors.Wrap(err, "getting source")
	}
	if c, ok := src.(io.Closer); ok {
		// Closing unblocks sources which wait for input, e.g. a listener.
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer func() {
			stop()
			c.Close()
		}()
	}
	sink, err := m.sink(ctx)
	if err != nil {
		return nil, err
	}

	ingester := ldk.NewIngester(src, engines.Mapper, engines.Builder, sink)
	ingester.Concurrency = m.Concurrency
	ingester.Seed = m.Seed
	ingester.Log = m.log
	ingester.Stats = m.stats
	ingester.Redactor = redactor
	if engines.Preflight != nil {
		ingester.Preflight = engines.Preflight
		ingester.PreflightMode, _ = m.preflightMode()
		ingester.PreflightSampleRate = m.PreflightRate
	}
	if engines.Schema != nil {
		ingester.Schema = engines.Schema
		ingester.SchemaSampleRate = m.SchemaRate
	}
	if m.DeadLetter != "" {
		dl, err := boltdb.NewDeadLetter(m.DeadLetter, boltdb.WithRedactor(redactor))
		if err != nil {
			sink.Close()
			return nil, errors.Wrap(err, "opening dead letter")
		}
		m.log.Printf("dead-lettering failed records to %s as run %s", m.DeadLetter, dl.RunID())
		ingester.DeadLetter = dl
	}
	stats, err := ingester.Run(ctx)
	if m.Report != "" {
		if rerr := writeReport(m.Report, stats); rerr != nil && err == nil {
			err = rerr
		}
	}
	return stats, err
}

func writeReport(path string, stats *ldk.RunStats) error {
	data, err := json.MarshalIndent(struct {
		Preflight *ldk.ValidationResult `json:"preflight"`
		Schema    *ldk.ValidationResult `json:"schema"`
	}{stats.Preflight, stats.Schema}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding report")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "writing report")
}
