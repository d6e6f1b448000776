// Package shacl validates built JSON-LD documents against a shape schema.
//
// Documents are expanded to RDF with json-gold and the resulting graph is
// checked against every constraint the shape model knows. This is far more
// expensive than preflight validation and is meant for sampled use.
package shacl

import (
	"encoding/json"
	"math/rand"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/shape"
	"github.com/piprate/json-gold/ld"
	"github.com/pkg/errors"
)

const defaultGraph = "@default"

// Validator checks documents against a shape model. It holds only read-only
// state and may be shared between goroutines.
type Validator struct {
	model        *shape.Model
	loader       *localLoader
	contextFiles map[string]string
	seed         int64
	log          ldk.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithContext registers a local copy of the JSON-LD context published at
// url. doc is either the context document, {"@context": ...}, or the
// context itself.
func WithContext(url string, doc interface{}) Option {
	return func(v *Validator) {
		v.loader.docs[url] = doc
	}
}

// WithContextFile registers a JSON file as the local copy of the context
// published at url.
func WithContextFile(url, path string) Option {
	return func(v *Validator) {
		v.contextFiles[url] = path
	}
}

// WithSeed seeds the random source used by ValidateBatch in sample mode.
func WithSeed(seed int64) Option {
	return func(v *Validator) {
		v.seed = seed
	}
}

// WithLogger sets the logger.
func WithLogger(l ldk.Logger) Option {
	return func(v *Validator) {
		v.log = l
	}
}

// New returns a Validator for model.
func New(model *shape.Model, opts ...Option) (*Validator, error) {
	if model == nil {
		return nil, errors.New("nil shape model")
	}
	v := &Validator{
		model:        model,
		loader:       &localLoader{docs: make(map[string]interface{})},
		contextFiles: make(map[string]string),
		log:          ldk.NopLogger{},
	}
	for _, opt := range opts {
		opt(v)
	}
	for url, path := range v.contextFiles {
		doc, err := readContextFile(path)
		if err != nil {
			return nil, &ldk.ShapeLoadError{Source: path, Err: err}
		}
		v.loader.docs[url] = doc
	}
	return v, nil
}

// ValidateOne checks doc. Constraint violations are reported in the result;
// an error means doc couldn't be turned into RDF at all.
func (v *Validator) ValidateOne(doc ldk.Document) (*ldk.ValidationResult, error) {
	res := ldk.NewValidationResult()
	res.Records = 1
	g, err := v.graph(doc)
	if err != nil {
		return res, err
	}
	id := doc.ID()
	for _, r := range newRun(v.model, g).validate() {
		res.Add(id, ldk.FieldIssue{
			Path:     ldk.LocalName(r.path),
			Message:  r.message,
			Severity: shape.IssueSeverity(r.severity),
			Expected: r.expected,
			Actual:   r.value,
		})
	}
	return res, nil
}

// graph expands doc to RDF. A remote @context is replaced by its local copy
// first.
func (v *Validator) graph(doc ldk.Document) (*shape.Graph, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &ldk.SerializationError{Path: doc.ID(), Message: "encoding document", Err: err}
	}
	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, &ldk.SerializationError{Path: doc.ID(), Message: "decoding document", Err: err}
	}
	if url, ok := input[ldk.KeyContext].(string); ok {
		ctx, ok := v.loader.contextOf(url)
		if !ok {
			return nil, errors.Errorf("no local copy of context %s", url)
		}
		input[ldk.KeyContext] = ctx
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = v.loader
	out, err := proc.ToRDF(input, opts)
	if err != nil {
		return nil, errors.Wrap(err, "converting document to RDF")
	}
	dataset, ok := out.(*ld.RDFDataset)
	if !ok {
		return nil, errors.Errorf("unexpected RDF output %T", out)
	}
	g := shape.NewGraph()
	for _, q := range dataset.Graphs[defaultGraph] {
		g.Add(term(q.Subject), q.Predicate.GetValue(), term(q.Object))
	}
	return g, nil
}

func term(n ld.Node) shape.Term {
	switch t := n.(type) {
	case *ld.IRI:
		return shape.IRI(t.Value)
	case *ld.BlankNode:
		return shape.Blank(t.Attribute)
	case *ld.Literal:
		lit := shape.Literal(t.Value, t.Datatype)
		lit.Lang = t.Language
		return lit
	}
	return shape.Literal(n.GetValue(), "")
}

// ValidateBatch checks docs. In sample mode each document is checked with
// probability sampleRate, drawn from a source seeded by WithSeed, so the same
// batch gives the same sample. In strict mode the first issue stops the
// batch and is returned as a *ldk.ValidationError. A document that can't be
// converted to RDF is reported as an error issue.
func (v *Validator) ValidateBatch(docs []ldk.Document, mode ldk.Mode, sampleRate float64) (*ldk.ValidationResult, error) {
	if sampleRate < 0 || sampleRate > 1 {
		return nil, errors.Errorf("sample rate %v is not between 0 and 1", sampleRate)
	}
	res := ldk.NewValidationResult()
	rng := rand.New(rand.NewSource(v.seed))
	for _, doc := range docs {
		if mode == ldk.ModeSample && rng.Float64() >= sampleRate {
			continue
		}
		one, err := v.ValidateOne(doc)
		if err != nil {
			v.log.Printf("schema validation of %s failed: %v", doc.ID(), err)
			one.Add(doc.ID(), ldk.FieldIssue{
				Message:  err.Error(),
				Severity: ldk.SeverityError,
			})
		}
		res.Merge(one)
		if mode == ldk.ModeStrict {
			if all := one.All(); len(all) > 0 {
				return res, &ldk.ValidationError{RecordID: doc.ID(), Issue: all[0]}
			}
		}
	}
	return res, nil
}
