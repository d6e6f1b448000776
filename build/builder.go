// Package build turns MappedRecords into JSON-LD documents.
package build

import (
	"fmt"
	"strings"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/mapping"
	"github.com/pkg/errors"
)

// Builder builds documents for one mapping configuration. Boilerplate
// templates and per-property datatype lookups are prepared by New; BuildOne
// only reads them, so a Builder may be shared between goroutines.
type Builder struct {
	context string
	baseURI string
	typ     string
	props   map[string]*plan
}

type plan struct {
	typ       string
	datatypes map[string]string
	inject    []injection
}

type injection struct {
	key      string
	template map[string]interface{}
}

// New prepares a Builder for cfg.
func New(cfg *mapping.Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid mapping")
	}
	b := &Builder{
		context: cfg.ContextURL,
		baseURI: cfg.BaseURI,
		typ:     cfg.Type,
		props:   make(map[string]*plan, cfg.Properties.Len()),
	}
	var recordStatus, dataCollection *injection
	if cfg.RecordStatusDefaults != nil {
		recordStatus = newInjection(cfg.RecordStatusDefaults, mapping.RecordStatusProperty)
	}
	if cfg.DataCollectionDefaults != nil {
		dataCollection = newInjection(cfg.DataCollectionDefaults, mapping.DataCollectionProperty)
	}
	for _, name := range cfg.Properties.Keys() {
		pm, _ := cfg.Properties.Get(name)
		p := &plan{typ: pm.Type, datatypes: make(map[string]string)}
		for _, key := range pm.Fields.Keys() {
			f, _ := pm.Fields.Get(key)
			if f.Datatype != "" {
				p.datatypes[f.Target] = f.Datatype
			}
		}
		if pm.WantsRecordStatus() {
			if recordStatus == nil {
				return nil, errors.Errorf("property '%s' includes record status but record_status_defaults is not set", name)
			}
			p.inject = append(p.inject, *recordStatus)
		}
		if pm.WantsDataCollection() {
			if dataCollection == nil {
				return nil, errors.Errorf("property '%s' includes data collection but data_collection_defaults is not set", name)
			}
			p.inject = append(p.inject, *dataCollection)
		}
		b.props[name] = p
	}
	return b, nil
}

func newInjection(bp *mapping.Boilerplate, defaultKey string) *injection {
	node := make(map[string]interface{})
	if bp.ID != "" {
		node[ldk.KeyID] = bp.ID
	}
	if bp.Type != "" {
		node[ldk.KeyType] = bp.Type
	}
	for _, key := range bp.Fields.Keys() {
		f, _ := bp.Fields.Get(key)
		switch {
		case f.ID != "":
			node[key] = map[string]interface{}{ldk.KeyID: f.ID}
		case f.Datatype != "":
			if lit, ok := TypedLiteral(f.Value, f.Datatype); ok {
				node[key] = lit
			}
		case f.Value != "":
			node[key] = f.Value
		}
	}
	key := bp.Property
	if key == "" {
		key = defaultKey
	}
	return &injection{key: key, template: node}
}

// BuildOne builds the document for m. It returns a *ldk.BuildError if m has
// no identifier or holds a property the configuration doesn't know.
func (b *Builder) BuildOne(m *ldk.MappedRecord) (ldk.Document, error) {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return nil, &ldk.BuildError{Message: "mapped record has no identifier"}
	}
	doc := ldk.Document{
		ldk.KeyID:   b.baseURI + SanitizeID(m.ID),
		ldk.KeyType: b.typ,
	}
	if b.context != "" {
		doc[ldk.KeyContext] = b.context
	}
	for name, insts := range m.Properties {
		p, ok := b.props[name]
		if !ok {
			return nil, &ldk.BuildError{RecordID: m.ID, Message: fmt.Sprintf("unknown property '%s'", name)}
		}
		nodes := make([]interface{}, 0, len(insts))
		for _, inst := range insts {
			if node := p.node(inst); node != nil {
				nodes = append(nodes, node)
			}
		}
		switch len(nodes) {
		case 0:
		case 1:
			doc[name] = nodes[0]
		default:
			doc[name] = nodes
		}
	}
	return doc, nil
}

// node builds one sub-node, or returns nil if no field has a usable value.
func (p *plan) node(inst ldk.Instance) map[string]interface{} {
	node := make(map[string]interface{}, len(inst)+len(p.inject)+1)
	for target, val := range inst {
		if v, ok := fieldValue(val, p.datatypes[target]); ok {
			node[target] = v
		}
	}
	if len(node) == 0 {
		return nil
	}
	if p.typ != "" {
		node[ldk.KeyType] = p.typ
	}
	for _, in := range p.inject {
		node[in.key] = ldk.DeepCopy(in.template)
	}
	return node
}

// fieldValue renders a mapped value. Lists of one collapse to a scalar and
// datatyped values become typed literals, dropping those which aren't
// usable.
func fieldValue(val ldk.Value, datatype string) (interface{}, bool) {
	vals := make([]interface{}, 0, 1)
	for _, s := range val.Strings() {
		if datatype == "" {
			if s != "" {
				vals = append(vals, s)
			}
			continue
		}
		if lit, ok := TypedLiteral(s, datatype); ok {
			vals = append(vals, lit)
		}
	}
	switch len(vals) {
	case 0:
		return nil, false
	case 1:
		return vals[0], true
	}
	return vals, true
}
