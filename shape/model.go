// Package shape reads SHACL shape schemas in Turtle and answers questions
// about them: which shape is the root, how shapes nest, what values a field
// allows, and whether a mapping configuration agrees with the schema.
package shape

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
	"github.com/viant/afs"
)

// Shape is one node shape.
type Shape struct {
	ID          string
	Name        string
	TargetClass string
	Closed      bool
	Ignored     []string
	Properties  []Property
}

// Property is one property shape. Node is the ID of the nested shape, if any.
type Property struct {
	Path      string
	Name      string
	HumanName string
	Datatype  string
	Node      string
	Class     string
	NodeKind  string
	MinCount  int
	MaxCount  *int
	In        []Term
	// Severity is the local name of sh:severity: Violation, Warning or
	// Info.
	Severity string
	Closed   bool
}

// Required reports whether the property has a positive minCount.
func (p Property) Required() bool { return p.MinCount > 0 }

// Unbounded reports whether the property has no maxCount.
func (p Property) Unbounded() bool { return p.MaxCount == nil }

// SHACL severities.
const (
	Violation = "Violation"
	Warning   = "Warning"
	Info      = "Info"
)

// IssueSeverity maps the SHACL severity to an issue severity. Only
// violations are errors.
func IssueSeverity(severity string) ldk.Severity {
	if severity == Violation || severity == "" {
		return ldk.SeverityError
	}
	return ldk.SeverityWarning
}

// Model is a parsed shape schema. Shapes are held in one table keyed by ID
// and refer to each other by ID. A Model is read-only once parsed; callers
// must not modify the shapes it returns.
type Model struct {
	source string
	names  map[string]string
	shapes map[string]*Shape
	ids    []string
}

// Option configures Parse.
type Option func(*Model)

// WithNames sets an IRI to human name lookup.
func WithNames(names map[string]string) Option {
	return func(m *Model) {
		m.names = names
	}
}

// WithSource names the schema in errors.
func WithSource(name string) Option {
	return func(m *Model) {
		m.source = name
	}
}

// Load fetches a Turtle schema from any location afs understands and parses
// it.
func Load(ctx context.Context, URL string, opts ...Option) (*Model, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, &ldk.ShapeLoadError{Source: URL, Err: err}
	}
	return Parse(bytes.NewReader(data), append([]Option{WithSource(URL)}, opts...)...)
}

// Parse reads a Turtle schema. It returns a *ldk.ShapeLoadError if the input
// isn't valid Turtle or holds no shapes.
func Parse(r io.Reader, opts ...Option) (*Model, error) {
	m := &Model{shapes: make(map[string]*Shape)}
	for _, opt := range opts {
		opt(m)
	}
	g, err := DecodeTurtle(r)
	if err != nil {
		return nil, &ldk.ShapeLoadError{Source: m.source, Err: err}
	}
	for _, s := range g.Subjects() {
		if !isShape(g, s) {
			continue
		}
		shape, err := m.readShape(g, s)
		if err != nil {
			return nil, &ldk.ShapeLoadError{Source: m.source, Err: err}
		}
		m.shapes[shape.ID] = shape
		m.ids = append(m.ids, shape.ID)
	}
	if len(m.ids) == 0 {
		return nil, &ldk.ShapeLoadError{Source: m.source, Err: errors.New("no node shapes found")}
	}
	sort.Strings(m.ids)
	return m, nil
}

func isShape(g *Graph, s Term) bool {
	if g.Has(s, SHProperty) {
		return true
	}
	for _, t := range g.Objects(s, RDFType) {
		if t == IRI(SHNodeShape) {
			return true
		}
	}
	return false
}

func (m *Model) readShape(g *Graph, s Term) (*Shape, error) {
	shape := &Shape{
		ID:          s.Value,
		Name:        ldk.LocalName(s.Value),
		TargetClass: iriOf(g, s, SHTargetClass),
		Closed:      boolOf(g, s, SHClosed),
	}
	if head, ok := g.Object(s, SHIgnoredProperties); ok {
		for _, t := range g.List(head) {
			shape.Ignored = append(shape.Ignored, t.Value)
		}
	}
	for _, ps := range g.Objects(s, SHProperty) {
		path, ok := g.Object(ps, SHPath)
		if !ok || path.Kind != KindIRI {
			// only predicate paths are supported
			continue
		}
		p := Property{
			Path:     path.Value,
			Name:     ldk.LocalName(path.Value),
			Datatype: iriOf(g, ps, SHDatatype),
			Node:     valueOf(g, ps, SHNode),
			Class:    iriOf(g, ps, SHClass),
			NodeKind: ldk.LocalName(iriOf(g, ps, SHNodeKind)),
			Severity: Violation,
			Closed:   shape.Closed,
		}
		p.HumanName = m.names[p.Path]
		if p.HumanName == "" {
			if name, ok := g.Object(ps, SHName); ok && name.Kind == KindLiteral {
				p.HumanName = name.Value
			}
		}
		var err error
		if p.MinCount, err = intOf(g, ps, SHMinCount); err != nil {
			return nil, errors.Wrapf(err, "shape '%s' property '%s'", shape.ID, p.Path)
		}
		if _, ok := g.Object(ps, SHMaxCount); ok {
			n, err := intOf(g, ps, SHMaxCount)
			if err != nil {
				return nil, errors.Wrapf(err, "shape '%s' property '%s'", shape.ID, p.Path)
			}
			p.MaxCount = &n
		}
		if head, ok := g.Object(ps, SHIn); ok {
			p.In = g.List(head)
		}
		switch sev := ldk.LocalName(iriOf(g, ps, SHSeverity)); sev {
		case Warning, Info:
			p.Severity = sev
		}
		shape.Properties = append(shape.Properties, p)
	}
	sort.SliceStable(shape.Properties, func(i, j int) bool {
		return shape.Properties[i].Path < shape.Properties[j].Path
	})
	return shape, nil
}

func valueOf(g *Graph, s Term, p string) string {
	if t, ok := g.Object(s, p); ok {
		return t.Value
	}
	return ""
}

func iriOf(g *Graph, s Term, p string) string {
	if t, ok := g.Object(s, p); ok && t.Kind == KindIRI {
		return t.Value
	}
	return ""
}

func boolOf(g *Graph, s Term, p string) bool {
	t, ok := g.Object(s, p)
	return ok && t.Kind == KindLiteral && (t.Value == "true" || t.Value == "1")
}

func intOf(g *Graph, s Term, p string) (int, error) {
	t, ok := g.Object(s, p)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(t.Value)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", ldk.LocalName(p))
	}
	return n, nil
}

// Len returns the number of shapes.
func (m *Model) Len() int { return len(m.ids) }

// Shape returns the shape with the given ID.
func (m *Model) Shape(id string) (*Shape, bool) {
	s, ok := m.shapes[id]
	return s, ok
}

// Shapes returns every shape ordered by ID.
func (m *Model) Shapes() []*Shape {
	shapes := make([]*Shape, len(m.ids))
	for i, id := range m.ids {
		shapes[i] = m.shapes[id]
	}
	return shapes
}

// HumanName returns the lookup name of iri, or its local name.
func (m *Model) HumanName(iri string) string {
	if n, ok := m.names[iri]; ok && n != "" {
		return n
	}
	return ldk.LocalName(iri)
}

// Children returns the nested shapes of the shape id keyed by the name of
// the property which references them. Properties whose nested shape isn't
// in the schema are left out.
func (m *Model) Children(id string) map[string]*Shape {
	s, ok := m.shapes[id]
	if !ok {
		return nil
	}
	children := make(map[string]*Shape)
	for _, p := range s.Properties {
		if c, ok := m.shapes[p.Node]; ok && p.Node != "" {
			children[p.Name] = c
		}
	}
	return children
}

// nested returns the nested shape of p.
func (m *Model) nested(p Property) (*Shape, bool) {
	if p.Node == "" {
		return nil, false
	}
	s, ok := m.shapes[p.Node]
	return s, ok
}
