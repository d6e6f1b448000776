package shape

import (
	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

// Root returns the shape at the top of the nesting hierarchy. Candidates are
// shapes no property refers to; the one with the most nested shapes wins. If
// no candidate nests anything the shape with the most properties is used.
// Ties go to the lowest shape ID.
func (m *Model) Root() (*Shape, error) {
	if len(m.ids) == 0 {
		return nil, &ldk.ShapeLoadError{Source: m.source, Err: errors.New("no node shapes found")}
	}
	referenced := make(map[string]bool)
	for _, id := range m.ids {
		for _, p := range m.shapes[id].Properties {
			if p.Node != "" {
				referenced[p.Node] = true
			}
		}
	}
	var best *Shape
	bestLinks := 0
	for _, id := range m.ids {
		if referenced[id] {
			continue
		}
		if links := len(m.Children(id)); links > bestLinks {
			best, bestLinks = m.shapes[id], links
		}
	}
	if best != nil {
		return best, nil
	}
	best = m.shapes[m.ids[0]]
	for _, id := range m.ids[1:] {
		if s := m.shapes[id]; len(s.Properties) > len(best.Properties) {
			best = s
		}
	}
	return best, nil
}

// TreeNode is one shape in the exported nesting tree.
type TreeNode struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	TargetClass string         `json:"targetClass,omitempty"`
	Closed      bool           `json:"closed,omitempty"`
	Ignored     []string       `json:"ignoredProperties,omitempty"`
	Properties  []TreeProperty `json:"properties,omitempty"`
	// Ref is set when the shape already appears higher up the same branch.
	// Its properties are then left out.
	Ref bool `json:"ref,omitempty"`
}

// TreeProperty is one property in the exported nesting tree.
type TreeProperty struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	HumanName string    `json:"humanName,omitempty"`
	Datatype  string    `json:"datatype,omitempty"`
	Class     string    `json:"class,omitempty"`
	NodeKind  string    `json:"nodeKind,omitempty"`
	MinCount  int       `json:"minCount,omitempty"`
	MaxCount  *int      `json:"maxCount,omitempty"`
	In        []string  `json:"in,omitempty"`
	Severity  string    `json:"severity"`
	Node      string    `json:"node,omitempty"`
	Shape     *TreeNode `json:"shape,omitempty"`
}

// Tree exports the whole schema as a tree starting at Root.
func (m *Model) Tree() (*TreeNode, error) {
	root, err := m.Root()
	if err != nil {
		return nil, err
	}
	return m.tree(root, make(map[string]bool)), nil
}

func (m *Model) tree(s *Shape, path map[string]bool) *TreeNode {
	n := &TreeNode{
		ID:          s.ID,
		Name:        s.Name,
		TargetClass: s.TargetClass,
		Closed:      s.Closed,
		Ignored:     append([]string(nil), s.Ignored...),
	}
	if path[s.ID] {
		n.Ref = true
		return n
	}
	path[s.ID] = true
	defer delete(path, s.ID)
	for _, p := range s.Properties {
		tp := TreeProperty{
			Path:      p.Path,
			Name:      p.Name,
			HumanName: p.HumanName,
			Datatype:  p.Datatype,
			Class:     p.Class,
			NodeKind:  p.NodeKind,
			MinCount:  p.MinCount,
			MaxCount:  copyInt(p.MaxCount),
			Severity:  p.Severity,
			Node:      p.Node,
		}
		for _, t := range p.In {
			tp.In = append(tp.In, t.Value)
		}
		if c, ok := m.nested(p); ok {
			tp.Shape = m.tree(c, path)
		}
		n.Properties = append(n.Properties, tp)
	}
	return n
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
