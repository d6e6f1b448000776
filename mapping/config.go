// Package mapping holds the declarative configuration which tells the mapper
// how to pull values out of a raw record and the builder how to shape them.
//
// A Config is loaded once per shape and is read-only afterwards. Compose,
// ApplyOverrides and Clone all return new values.
package mapping

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultSplitOn is the delimiter used by multiple-cardinality properties
// which don't set split_on.
const DefaultSplitOn = "|"

// Default keys under which boilerplate is injected into sub-nodes.
const (
	RecordStatusProperty   = "hasRecordStatus"
	DataCollectionProperty = "hasDataCollection"
)

// Cardinality says whether a property produces one sub-node or a delimiter
// encoded sequence of them.
type Cardinality string

// Cardinalities. The empty value means Single.
const (
	Single   Cardinality = "single"
	Multiple Cardinality = "multiple"
)

func (c Cardinality) valid() bool {
	switch c {
	case "", Single, Multiple:
		return true
	}
	return false
}

// Config is one mapping configuration.
type Config struct {
	IDSource               string                   `yaml:"id_source"`
	IDTransform            string                   `yaml:"id_transform,omitempty"`
	Type                   string                   `yaml:"type"`
	BaseURI                string                   `yaml:"base_uri"`
	ContextURL             string                   `yaml:"context_url"`
	Properties             Ordered[PropertyMapping] `yaml:"properties"`
	RecordStatusDefaults   *Boilerplate             `yaml:"record_status_defaults,omitempty"`
	DataCollectionDefaults *Boilerplate             `yaml:"data_collection_defaults,omitempty"`
}

// PropertyMapping maps columns of a raw record to the sub-nodes of one
// property. The first field of a Multiple property is its primary field: its
// segments decide how many sub-nodes there are.
type PropertyMapping struct {
	Cardinality           Cardinality           `yaml:"cardinality,omitempty"`
	SplitOn               string                `yaml:"split_on,omitempty"`
	Type                  string                `yaml:"type,omitempty"`
	Fields                Ordered[FieldMapping] `yaml:"fields"`
	IncludeRecordStatus   *bool                 `yaml:"include_record_status,omitempty"`
	IncludeDataCollection *bool                 `yaml:"include_data_collection,omitempty"`
}

// IsMultiple reports whether p has Multiple cardinality.
func (p PropertyMapping) IsMultiple() bool { return p.Cardinality == Multiple }

// Delimiter returns SplitOn or the default delimiter.
func (p PropertyMapping) Delimiter() string {
	if p.SplitOn == "" {
		return DefaultSplitOn
	}
	return p.SplitOn
}

// WantsRecordStatus reports whether record status boilerplate is injected.
func (p PropertyMapping) WantsRecordStatus() bool {
	return p.IncludeRecordStatus != nil && *p.IncludeRecordStatus
}

// WantsDataCollection reports whether data collection boilerplate is
// injected.
func (p PropertyMapping) WantsDataCollection() bool {
	return p.IncludeDataCollection != nil && *p.IncludeDataCollection
}

// FieldMapping maps one source column to one target field.
type FieldMapping struct {
	Source          string `yaml:"source"`
	Target          string `yaml:"target"`
	Transform       string `yaml:"transform,omitempty"`
	Datatype        string `yaml:"datatype,omitempty"`
	Optional        *bool  `yaml:"optional,omitempty"`
	MultiValueSplit string `yaml:"multi_value_split,omitempty"`
}

// IsOptional reports whether the field may be missing.
func (f FieldMapping) IsOptional() bool {
	return f.Optional != nil && *f.Optional
}

// Boilerplate describes a sub-structure injected into every qualifying
// sub-node, e.g. a record status.
type Boilerplate struct {
	// Property is the key the structure is injected under. It defaults to
	// hasRecordStatus or hasDataCollection.
	Property string                    `yaml:"property,omitempty"`
	ID       string                    `yaml:"id,omitempty"`
	Type     string                    `yaml:"type,omitempty"`
	Fields   Ordered[BoilerplateField] `yaml:"fields,omitempty"`
}

// BoilerplateField is either a literal, with an optional datatype, or a
// reference to another node by ID.
type BoilerplateField struct {
	Value    string `yaml:"value,omitempty"`
	Datatype string `yaml:"datatype,omitempty"`
	ID       string `yaml:"id,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Validate checks that c is complete enough to map and build with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil mapping config")
	}
	if c.IDSource == "" {
		return errors.New("id_source is required")
	}
	if c.Type == "" {
		return errors.New("type is required")
	}
	for _, name := range c.Properties.Keys() {
		p, _ := c.Properties.Get(name)
		if !p.Cardinality.valid() {
			return errors.Errorf("property '%s': unknown cardinality '%s'", name, p.Cardinality)
		}
		if p.Fields.Len() == 0 {
			return errors.Errorf("property '%s': no fields", name)
		}
		for _, key := range p.Fields.Keys() {
			f, _ := p.Fields.Get(key)
			if f.Source == "" {
				return errors.Errorf("property '%s' field '%s': source is required", name, key)
			}
			if f.Target == "" {
				return errors.Errorf("property '%s' field '%s': target is required", name, key)
			}
		}
	}
	return nil
}

// Ordered is a string keyed map which remembers insertion order. It decodes
// from and encodes to a YAML mapping in document order.
type Ordered[V any] struct {
	keys []string
	vals map[string]V
}

// Set sets k to v, appending k if it is new.
func (o *Ordered[V]) Set(k string, v V) {
	if o.vals == nil {
		o.vals = make(map[string]V)
	}
	if _, ok := o.vals[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.vals[k] = v
}

// Get returns the value for k.
func (o Ordered[V]) Get(k string) (V, bool) {
	v, ok := o.vals[k]
	return v, ok
}

// Keys returns a copy of the keys in order.
func (o Ordered[V]) Keys() []string {
	ret := make([]string, len(o.keys))
	copy(ret, o.keys)
	return ret
}

// Len returns the number of keys.
func (o Ordered[V]) Len() int { return len(o.keys) }

// IsZero reports whether o has no keys. yaml.v3 consults it for omitempty.
func (o Ordered[V]) IsZero() bool { return len(o.keys) == 0 }

// Map returns a copy of o with every value passed through fn.
func (o Ordered[V]) Map(fn func(V) V) Ordered[V] {
	r := Ordered[V]{}
	for _, k := range o.keys {
		r.Set(k, fn(o.vals[k]))
	}
	return r
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Ordered[V]) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: expected a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var k string
		if err := n.Content[i].Decode(&k); err != nil {
			return errors.Wrapf(err, "line %d: decoding key", n.Content[i].Line)
		}
		var v V
		if err := n.Content[i+1].Decode(&v); err != nil {
			return errors.Wrapf(err, "decoding '%s'", k)
		}
		o.Set(k, v)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (o Ordered[V]) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range o.keys {
		var vn yaml.Node
		if err := vn.Encode(o.vals[k]); err != nil {
			return nil, errors.Wrapf(err, "encoding '%s'", k)
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &vn)
	}
	return n, nil
}
