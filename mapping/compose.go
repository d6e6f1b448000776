package mapping

import (
	"github.com/pkg/errors"
)

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	ret := *c
	ret.Properties = c.Properties.Map(clonePropertyMapping)
	ret.RecordStatusDefaults = c.RecordStatusDefaults.clone()
	ret.DataCollectionDefaults = c.DataCollectionDefaults.clone()
	return &ret
}

func clonePropertyMapping(p PropertyMapping) PropertyMapping {
	p.Fields = p.Fields.Map(cloneFieldMapping)
	p.IncludeRecordStatus = cloneBool(p.IncludeRecordStatus)
	p.IncludeDataCollection = cloneBool(p.IncludeDataCollection)
	return p
}

func cloneFieldMapping(f FieldMapping) FieldMapping {
	f.Optional = cloneBool(f.Optional)
	return f
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	return Bool(*b)
}

func (b *Boilerplate) clone() *Boilerplate {
	if b == nil {
		return nil
	}
	ret := *b
	ret.Fields = b.Fields.Map(func(f BoilerplateField) BoilerplateField { return f })
	return &ret
}

// Compose deep-merges overlay onto base and returns the result. Neither input
// is modified. Scalar settings of the overlay win when they are set.
// Properties are merged by name and fields by key, so an overlay only needs to
// name what differs from the base; new properties and fields are appended
// after the base's.
func Compose(base, overlay *Config) *Config {
	if base == nil {
		return overlay.Clone()
	}
	ret := base.Clone()
	if overlay == nil {
		return ret
	}
	ret.IDSource = pick(ret.IDSource, overlay.IDSource)
	ret.IDTransform = pick(ret.IDTransform, overlay.IDTransform)
	ret.Type = pick(ret.Type, overlay.Type)
	ret.BaseURI = pick(ret.BaseURI, overlay.BaseURI)
	ret.ContextURL = pick(ret.ContextURL, overlay.ContextURL)
	for _, name := range overlay.Properties.Keys() {
		op, _ := overlay.Properties.Get(name)
		bp, ok := ret.Properties.Get(name)
		if !ok {
			ret.Properties.Set(name, clonePropertyMapping(op))
			continue
		}
		ret.Properties.Set(name, composeProperty(bp, op))
	}
	ret.RecordStatusDefaults = composeBoilerplate(ret.RecordStatusDefaults, overlay.RecordStatusDefaults)
	ret.DataCollectionDefaults = composeBoilerplate(ret.DataCollectionDefaults, overlay.DataCollectionDefaults)
	return ret
}

func composeProperty(base, overlay PropertyMapping) PropertyMapping {
	if overlay.Cardinality != "" {
		base.Cardinality = overlay.Cardinality
	}
	base.SplitOn = pick(base.SplitOn, overlay.SplitOn)
	base.Type = pick(base.Type, overlay.Type)
	if overlay.IncludeRecordStatus != nil {
		base.IncludeRecordStatus = Bool(*overlay.IncludeRecordStatus)
	}
	if overlay.IncludeDataCollection != nil {
		base.IncludeDataCollection = Bool(*overlay.IncludeDataCollection)
	}
	for _, key := range overlay.Fields.Keys() {
		of, _ := overlay.Fields.Get(key)
		bf, ok := base.Fields.Get(key)
		if !ok {
			base.Fields.Set(key, cloneFieldMapping(of))
			continue
		}
		bf.Source = pick(bf.Source, of.Source)
		bf.Target = pick(bf.Target, of.Target)
		bf.Transform = pick(bf.Transform, of.Transform)
		bf.Datatype = pick(bf.Datatype, of.Datatype)
		bf.MultiValueSplit = pick(bf.MultiValueSplit, of.MultiValueSplit)
		if of.Optional != nil {
			bf.Optional = Bool(*of.Optional)
		}
		base.Fields.Set(key, bf)
	}
	return base
}

func composeBoilerplate(base, overlay *Boilerplate) *Boilerplate {
	if overlay == nil {
		return base
	}
	if base == nil {
		return overlay.clone()
	}
	base.Property = pick(base.Property, overlay.Property)
	base.ID = pick(base.ID, overlay.ID)
	base.Type = pick(base.Type, overlay.Type)
	for _, key := range overlay.Fields.Keys() {
		f, _ := overlay.Fields.Get(key)
		base.Fields.Set(key, f)
	}
	return base
}

func pick(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// Override replaces the source column and/or transform of one field.
// Empty Source or Transform leaves that setting alone.
type Override struct {
	Property  string
	Field     string
	Source    string
	Transform string
}

// ApplyOverrides returns a copy of cfg with overrides applied. It fails if an
// override names a property or field cfg doesn't have.
func ApplyOverrides(cfg *Config, overrides ...Override) (*Config, error) {
	if cfg == nil {
		return nil, errors.New("nil mapping config")
	}
	ret := cfg.Clone()
	for _, o := range overrides {
		p, ok := ret.Properties.Get(o.Property)
		if !ok {
			return nil, errors.Errorf("override: no property '%s'", o.Property)
		}
		f, ok := p.Fields.Get(o.Field)
		if !ok {
			return nil, errors.Errorf("override: property '%s' has no field '%s'", o.Property, o.Field)
		}
		f.Source = pick(f.Source, o.Source)
		f.Transform = pick(f.Transform, o.Transform)
		p.Fields.Set(o.Field, f)
		ret.Properties.Set(o.Property, p)
	}
	return ret, nil
}
