package shacl

import (
	"fmt"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/shape"
)

// result is one entry of a validation report.
type result struct {
	focus    shape.Term
	path     string
	severity string
	message  string
	expected string
	value    string
}

type key struct {
	shape string
	node  shape.Term
}

// run validates one data graph. Every (shape, node) pair is checked once;
// a pair already being checked higher up counts as conforming, which ends
// cycles.
type run struct {
	model   *shape.Model
	data    *shape.Graph
	results map[key][]result
	order   []key
}

func newRun(model *shape.Model, data *shape.Graph) *run {
	return &run{
		model:   model,
		data:    data,
		results: make(map[key][]result),
	}
}

// validate checks every node whose rdf:type is a target class.
func (r *run) validate() []result {
	for _, s := range r.model.Shapes() {
		if s.TargetClass == "" {
			continue
		}
		for _, n := range r.data.SubjectsOf(shape.RDFType, shape.IRI(s.TargetClass)) {
			r.node(n, s)
		}
	}
	var report []result
	for _, k := range r.order {
		report = append(report, r.results[k]...)
	}
	return report
}

// node checks n against s and returns whether it has any violation.
func (r *run) node(n shape.Term, s *shape.Shape) bool {
	k := key{shape: s.ID, node: n}
	if _, ok := r.results[k]; ok {
		return hasViolation(r.results[k])
	}
	r.results[k] = nil
	r.order = append(r.order, k)

	var res []result
	add := func(p shape.Property, msg, expected, value string) {
		res = append(res, result{
			focus:    n,
			path:     p.Path,
			severity: p.Severity,
			message:  msg,
			expected: expected,
			value:    value,
		})
	}
	for _, p := range s.Properties {
		vals := r.data.Objects(n, p.Path)
		if len(vals) < p.MinCount {
			add(p, fmt.Sprintf("fewer than %d values", p.MinCount), fmt.Sprint(p.MinCount), fmt.Sprint(len(vals)))
		}
		if p.MaxCount != nil && len(vals) > *p.MaxCount {
			add(p, fmt.Sprintf("more than %d values", *p.MaxCount), fmt.Sprint(*p.MaxCount), fmt.Sprint(len(vals)))
		}
		for _, v := range vals {
			if p.Datatype != "" && (v.Kind != shape.KindLiteral || v.Datatype != p.Datatype) {
				add(p, "value does not have datatype "+shape.CompactDatatype(p.Datatype), shape.CompactDatatype(p.Datatype), v.Value)
			}
			if p.Class != "" && !r.instanceOf(v, p.Class) {
				add(p, "value is not an instance of "+ldk.LocalName(p.Class), p.Class, v.Value)
			}
			if p.NodeKind != "" && !nodeKindMatches(p.NodeKind, v.Kind) {
				add(p, "value is not of node kind "+p.NodeKind, p.NodeKind, v.Kind.String())
			}
			if len(p.In) > 0 && !contains(p.In, v) {
				add(p, "value is not in the allowed list", "", v.Value)
			}
			if p.Node != "" {
				nested, ok := r.model.Shape(p.Node)
				if ok && r.node(v, nested) {
					add(p, "value does not conform to "+nested.Name, nested.Name, v.Value)
				}
			}
		}
	}
	if s.Closed {
		allowed := make(map[string]bool, len(s.Properties)+len(s.Ignored))
		for _, p := range s.Properties {
			allowed[p.Path] = true
		}
		for _, ig := range s.Ignored {
			allowed[ig] = true
		}
		for _, pred := range r.data.Predicates(n) {
			if allowed[pred] {
				continue
			}
			res = append(res, result{
				focus:    n,
				path:     pred,
				severity: shape.Violation,
				message:  "predicate is not allowed by closed shape " + s.Name,
			})
		}
	}
	r.results[k] = res
	return hasViolation(res)
}

func hasViolation(res []result) bool {
	for _, x := range res {
		if x.severity == shape.Violation {
			return true
		}
	}
	return false
}

func (r *run) instanceOf(v shape.Term, class string) bool {
	if v.Kind == shape.KindLiteral {
		return false
	}
	for _, t := range r.data.Objects(v, shape.RDFType) {
		if t == shape.IRI(class) {
			return true
		}
	}
	return false
}

func nodeKindMatches(kind string, k shape.Kind) bool {
	switch kind {
	case "IRI":
		return k == shape.KindIRI
	case "BlankNode":
		return k == shape.KindBlank
	case "Literal":
		return k == shape.KindLiteral
	case "BlankNodeOrIRI":
		return k != shape.KindLiteral
	case "BlankNodeOrLiteral":
		return k != shape.KindIRI
	case "IRIOrLiteral":
		return k != shape.KindBlank
	}
	return true
}

func contains(in []shape.Term, v shape.Term) bool {
	for _, t := range in {
		if t.Kind != v.Kind || t.Value != v.Value {
			continue
		}
		if t.Kind != shape.KindLiteral || t.Datatype == v.Datatype {
			return true
		}
	}
	return false
}
