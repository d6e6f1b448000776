package shape

import (
	"bytes"
	"io"
	"sort"

	"github.com/knakk/rdf"
	"github.com/pkg/errors"
)

// Kind of an RDF term.
type Kind uint8

// Term kinds.
const (
	KindIRI Kind = iota + 1
	KindBlank
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindIRI:
		return "IRI"
	case KindBlank:
		return "BlankNode"
	case KindLiteral:
		return "Literal"
	}
	return "unknown"
}

// Term is an RDF term. It is comparable and used as a map key.
type Term struct {
	Kind     Kind
	Value    string
	Datatype string
	Lang     string
}

// IRI returns an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank returns a blank node term.
func Blank(id string) Term { return Term{Kind: KindBlank, Value: id} }

// Literal returns a literal term. An empty datatype means xsd:string.
func Literal(v, datatype string) Term {
	if datatype == "" {
		datatype = XSDString
	}
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	}
	return `"` + t.Value + `"^^<` + t.Datatype + ">"
}

// Graph is an in memory triple index. Objects are kept in insertion order.
type Graph struct {
	out      map[Term]map[string][]Term
	in       map[Term]map[string][]Term
	subjects []Term
	n        int
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		out: make(map[Term]map[string][]Term),
		in:  make(map[Term]map[string][]Term),
	}
}

// Add adds a triple. Duplicates are ignored.
func (g *Graph) Add(s Term, p string, o Term) {
	preds, ok := g.out[s]
	if !ok {
		preds = make(map[string][]Term)
		g.out[s] = preds
		g.subjects = append(g.subjects, s)
	}
	for _, e := range preds[p] {
		if e == o {
			return
		}
	}
	preds[p] = append(preds[p], o)
	rev, ok := g.in[o]
	if !ok {
		rev = make(map[string][]Term)
		g.in[o] = rev
	}
	rev[p] = append(rev[p], s)
	g.n++
}

// Len returns the number of triples.
func (g *Graph) Len() int { return g.n }

// Subjects returns every subject in insertion order.
func (g *Graph) Subjects() []Term {
	return append([]Term(nil), g.subjects...)
}

// Objects returns the objects of s p.
func (g *Graph) Objects(s Term, p string) []Term {
	return g.out[s][p]
}

// Object returns the first object of s p.
func (g *Graph) Object(s Term, p string) (Term, bool) {
	objs := g.out[s][p]
	if len(objs) == 0 {
		return Term{}, false
	}
	return objs[0], true
}

// Has reports whether s has any p.
func (g *Graph) Has(s Term, p string) bool {
	return len(g.out[s][p]) > 0
}

// SubjectsOf returns the subjects of triples "? p o".
func (g *Graph) SubjectsOf(p string, o Term) []Term {
	return g.in[o][p]
}

// Predicates returns the sorted predicates used with subject s.
func (g *Graph) Predicates(s Term) []string {
	preds := make([]string, 0, len(g.out[s]))
	for p := range g.out[s] {
		preds = append(preds, p)
	}
	sort.Strings(preds)
	return preds
}

// List returns the members of the RDF collection starting at head. A
// malformed or cyclic list ends at the first node already seen.
func (g *Graph) List(head Term) []Term {
	var items []Term
	seen := make(map[Term]bool)
	for head != IRI(RDFNil) && !seen[head] {
		seen[head] = true
		first, ok := g.Object(head, RDFFirst)
		if !ok {
			break
		}
		items = append(items, first)
		if head, ok = g.Object(head, RDFRest); !ok {
			break
		}
	}
	return items
}

// DecodeTurtle reads a Turtle document into a new Graph. Semicolons
// closing a predicate list ("; ]", "; .", ";;") are accepted.
func DecodeTurtle(r io.Reader) (*Graph, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading turtle")
	}
	g := NewGraph()
	dec := rdf.NewTripleDecoder(bytes.NewReader(trimDanglingSemicolons(src)), rdf.Turtle)
	for {
		tr, err := dec.Decode()
		if err == io.EOF {
			return g, nil
		} else if err != nil {
			return nil, errors.Wrap(err, "decoding turtle")
		}
		g.Add(fromRDF(tr.Subj), tr.Pred.String(), fromRDF(tr.Obj))
	}
}

func fromRDF(t rdf.Term) Term {
	switch v := t.(type) {
	case rdf.IRI:
		return IRI(v.String())
	case rdf.Blank:
		return Blank(v.String())
	case rdf.Literal:
		lit := Literal(v.String(), v.DataType.String())
		lit.Lang = v.Lang()
		return lit
	}
	return Literal(t.String(), "")
}

// trimDanglingSemicolons drops each ';' whose next token ends the
// predicate list or is another ';'. IRIs, strings and comments are
// copied untouched.
func trimDanglingSemicolons(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '<':
			j := bytes.IndexByte(src[i:], '>')
			if j < 0 {
				return append(out, src[i:]...)
			}
			out = append(out, src[i:i+j+1]...)
			i += j
		case '"', '\'':
			j := skipString(src, i)
			out = append(out, src[i:j]...)
			i = j - 1
		case '#':
			j := bytes.IndexByte(src[i:], '\n')
			if j < 0 {
				return append(out, src[i:]...)
			}
			out = append(out, src[i:i+j]...)
			i += j - 1
		case '\\':
			out = append(out, c)
			if i+1 < len(src) {
				i++
				out = append(out, src[i])
			}
		case ';':
			switch nextToken(src, i+1) {
			case ']', '.', ';', '}', 0:
				continue
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

// skipString returns the index just past the string literal opening
// at src[i], short or long form.
func skipString(src []byte, i int) int {
	q := src[i]
	long := bytes.HasPrefix(src[i:], []byte{q, q, q})
	j := i + 1
	if long {
		j = i + 3
	}
	for j < len(src) {
		switch {
		case src[j] == '\\':
			j += 2
			continue
		case long && bytes.HasPrefix(src[j:], []byte{q, q, q}):
			return j + 3
		case !long && (src[j] == q || src[j] == '\n'):
			return j + 1
		}
		j++
	}
	return len(src)
}

// nextToken returns the first byte at or after i that is neither
// whitespace nor inside a comment, or 0 at the end of src.
func nextToken(src []byte, i int) byte {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\r', '\n':
			i++
		case '#':
			j := bytes.IndexByte(src[i:], '\n')
			if j < 0 {
				return 0
			}
			i += j
		default:
			return src[i]
		}
	}
	return 0
}
