// Package mapper applies a mapping configuration to raw records.
//
// A Mapper is built once per configuration and then shared: Map reads only
// the compiled configuration and the record it is given, so it is safe to
// call from many goroutines.
package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/mapping"
	"github.com/ohler55/ojg/jp"
	"github.com/pkg/errors"
)

// Mapper turns raw records into MappedRecords.
type Mapper struct {
	cfg    *mapping.Config
	custom map[string]mapping.TransformFunc
	reg    *mapping.Registry

	idTransform mapping.TransformFunc
	props       []property

	log   ldk.Logger
	stats ldk.Statter
}

type property struct {
	name     string
	multiple bool
	delim    string
	fields   []field
}

type field struct {
	key           string
	source        string
	path          jp.Expr
	target        string
	transformName string
	transform     mapping.TransformFunc
	optional      bool
	multi         string
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithTransforms adds custom transforms. They take precedence over built-ins
// of the same name.
func WithTransforms(custom map[string]mapping.TransformFunc) Option {
	return func(m *Mapper) {
		for name, fn := range custom {
			m.custom[name] = fn
		}
	}
}

// WithLogger sets the logger warnings are written to.
func WithLogger(l ldk.Logger) Option {
	return func(m *Mapper) {
		m.log = l
	}
}

// WithStats sets the Statter.
func WithStats(s ldk.Statter) Option {
	return func(m *Mapper) {
		m.stats = s
	}
}

// New compiles cfg into a Mapper. It fails if cfg is invalid or names a
// transform which doesn't exist. cfg is cloned, so later changes by the caller
// don't affect the Mapper.
func New(cfg *mapping.Config, opts ...Option) (*Mapper, error) {
	m := &Mapper{
		custom: make(map[string]mapping.TransformFunc),
		log:    ldk.NopLogger{},
		stats:  ldk.NopStatter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.compile(cfg.Clone()); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mapper) compile(cfg *mapping.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid mapping")
	}
	m.reg = mapping.NewRegistry(m.custom)
	if err := m.reg.Check(cfg); err != nil {
		return err
	}
	m.cfg = cfg
	if cfg.IDTransform != "" {
		m.idTransform, _ = m.reg.Lookup(cfg.IDTransform)
	}
	m.props = m.props[:0]
	for _, name := range cfg.Properties.Keys() {
		pm, _ := cfg.Properties.Get(name)
		p := property{
			name:     name,
			multiple: pm.IsMultiple(),
			delim:    pm.Delimiter(),
		}
		for _, key := range pm.Fields.Keys() {
			fm, _ := pm.Fields.Get(key)
			f := field{
				key:           key,
				source:        fm.Source,
				target:        fm.Target,
				transformName: fm.Transform,
				optional:      fm.IsOptional(),
				multi:         fm.MultiValueSplit,
			}
			if fm.Transform != "" {
				f.transform, _ = m.reg.Lookup(fm.Transform)
			}
			if strings.HasPrefix(fm.Source, "$") {
				x, err := jp.ParseString(fm.Source)
				if err != nil {
					return errors.Wrapf(err, "property '%s' field '%s': parsing JSONPath source", name, key)
				}
				f.path = x
			}
			p.fields = append(p.fields, f)
		}
		m.props = append(m.props, p)
	}
	return nil
}

// Config returns a copy of the configuration m was built from.
func (m *Mapper) Config() *mapping.Config {
	return m.cfg.Clone()
}

// Derive returns a new Mapper with overrides applied to m's configuration. m
// is unchanged.
func (m *Mapper) Derive(overrides ...mapping.Override) (*Mapper, error) {
	cfg, err := mapping.ApplyOverrides(m.cfg, overrides...)
	if err != nil {
		return nil, err
	}
	return m.derive(cfg)
}

// Compose returns a new Mapper whose configuration is m's deep-merged with
// overlay. m is unchanged.
func (m *Mapper) Compose(overlay *mapping.Config) (*Mapper, error) {
	return m.derive(mapping.Compose(m.cfg, overlay))
}

func (m *Mapper) derive(cfg *mapping.Config) (*Mapper, error) {
	n := &Mapper{
		custom: m.custom,
		log:    m.log,
		stats:  m.stats,
	}
	if err := n.compile(cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// Map maps one raw record. The returned MappedRecord is freshly allocated.
// Errors are *ldk.MappingError.
func (m *Mapper) Map(rec ldk.Record) (*ldk.MappedRecord, error) {
	id, err := m.identifier(rec)
	if err != nil {
		return nil, err
	}
	ret := ldk.NewMappedRecord(id)
	for i := range m.props {
		p := &m.props[i]
		var insts []ldk.Instance
		if p.multiple {
			insts, err = m.mapMultiple(rec, id, p)
		} else {
			insts, err = m.mapSingle(rec, id, p)
		}
		if err != nil {
			return nil, err
		}
		if len(insts) > 0 {
			ret.Properties[p.name] = insts
		}
	}
	return ret, nil
}

func (m *Mapper) identifier(rec ldk.Record) (string, error) {
	src := m.cfg.IDSource
	fail := func(format string, args ...interface{}) (string, error) {
		return "", &ldk.MappingError{Field: src, Message: fmt.Sprintf(format, args...)}
	}
	raw, ok := rec[src]
	if !ok || raw == nil {
		return fail("identifier column is missing")
	}
	if msg := ldk.IdentifierProblem(raw); msg != "" {
		return fail("%s", msg)
	}
	s, missing, err := ldk.FormatScalar(raw)
	if err != nil {
		return fail("%v", err)
	}
	s = strings.TrimSpace(ldk.StripControl(s))
	if missing || s == "" {
		return fail("identifier is empty")
	}
	if m.idTransform == nil {
		return s, nil
	}
	res, err := m.idTransform(s)
	if err != nil {
		return "", &ldk.MappingError{Field: src, Transform: m.cfg.IDTransform, Message: "id transform failed", Err: err}
	}
	out, ok, err := m.result(res, "", src, m.cfg.IDTransform, "")
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if !ok || out == "" {
		return "", &ldk.MappingError{Field: src, Transform: m.cfg.IDTransform, Message: "id transform produced no value"}
	}
	return out, nil
}

func (m *Mapper) mapSingle(rec ldk.Record, id string, p *property) ([]ldk.Instance, error) {
	inst := ldk.Instance{}
	for i := range p.fields {
		f := &p.fields[i]
		s, missing, err := m.read(rec, id, p, f)
		if err != nil {
			return nil, err
		}
		if missing {
			if !f.optional {
				return nil, &ldk.MappingError{RecordID: id, Property: p.name, Field: f.key, Message: fmt.Sprintf("required column '%s' is empty", f.source)}
			}
			continue
		}
		val, ok, err := m.value(s, id, p, f)
		if err != nil {
			return nil, err
		}
		if ok {
			inst[f.target] = val
		}
	}
	if len(inst) == 0 {
		return nil, nil
	}
	return []ldk.Instance{inst}, nil
}

// mapMultiple builds one instance per non-empty segment of the primary
// field. Other fields contribute the segment at the same index, or nothing
// when they have fewer segments.
func (m *Mapper) mapMultiple(rec ldk.Record, id string, p *property) ([]ldk.Instance, error) {
	primary := &p.fields[0]
	s, missing, err := m.read(rec, id, p, primary)
	if err != nil {
		return nil, err
	}
	if missing {
		if !primary.optional {
			return nil, &ldk.MappingError{RecordID: id, Property: p.name, Field: primary.key, Message: fmt.Sprintf("required column '%s' is empty", primary.source)}
		}
		return nil, nil
	}
	segs := strings.Split(s, p.delim)

	secondary := make([][]string, len(p.fields))
	for j := 1; j < len(p.fields); j++ {
		f := &p.fields[j]
		fs, fmissing, err := m.read(rec, id, p, f)
		if err != nil {
			return nil, err
		}
		if fmissing {
			if !f.optional {
				return nil, &ldk.MappingError{RecordID: id, Property: p.name, Field: f.key, Message: fmt.Sprintf("required column '%s' is empty", f.source)}
			}
			continue
		}
		secondary[j] = strings.Split(fs, p.delim)
		if len(secondary[j]) != len(segs) {
			m.stats.Count("mapper.misaligned", 1, 1)
			m.log.Printf("record %s: property %s: field %s has %d segments, %s has %d", id, p.name, f.key, len(secondary[j]), primary.key, len(segs))
		}
	}

	var insts []ldk.Instance
	for i, seg := range segs {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		inst := ldk.Instance{}
		val, ok, err := m.value(seg, id, p, primary)
		if err != nil {
			return nil, err
		}
		if ok {
			inst[primary.target] = val
		}
		for j := 1; j < len(p.fields); j++ {
			if secondary[j] == nil {
				continue
			}
			f := &p.fields[j]
			if i >= len(secondary[j]) {
				m.log.Printf("record %s: property %s: field %s has no segment %d, leaving it out", id, p.name, f.key, i)
				continue
			}
			sv := strings.TrimSpace(secondary[j][i])
			if sv == "" {
				continue
			}
			val, ok, err := m.value(sv, id, p, f)
			if err != nil {
				return nil, err
			}
			if ok {
				inst[f.target] = val
			}
		}
		if len(inst) > 0 {
			insts = append(insts, inst)
		}
	}
	return insts, nil
}

// read returns the sanitized string form of a field's source value.
func (m *Mapper) read(rec ldk.Record, id string, p *property, f *field) (string, bool, error) {
	var raw interface{}
	if f.path != nil {
		res := f.path.Get(map[string]interface{}(rec))
		switch len(res) {
		case 0:
		case 1:
			raw = res[0]
		default:
			parts := make([]string, 0, len(res))
			for _, r := range res {
				s, missing, err := ldk.FormatScalar(r)
				if err != nil {
					return "", false, &ldk.MappingError{RecordID: id, Property: p.name, Field: f.key, Message: err.Error()}
				}
				if !missing {
					parts = append(parts, s)
				}
			}
			raw = strings.Join(parts, p.delim)
		}
	} else {
		raw = rec[f.source]
	}
	s, missing, err := ldk.FormatScalar(raw)
	if err != nil {
		return "", false, &ldk.MappingError{RecordID: id, Property: p.name, Field: f.key, Message: err.Error()}
	}
	if missing {
		return "", true, nil
	}
	s = ldk.StripControl(s)
	if strings.TrimSpace(s) == "" {
		return "", true, nil
	}
	return s, false, nil
}

// value transforms one segment, honouring multi_value_split.
func (m *Mapper) value(s, id string, p *property, f *field) (ldk.Value, bool, error) {
	if f.multi == "" {
		out, ok, err := m.apply(strings.TrimSpace(s), id, p, f)
		if err != nil || !ok || out == "" {
			return ldk.Value{}, false, err
		}
		return ldk.Scalar(out), true, nil
	}
	var vals []string
	for _, sub := range strings.Split(s, f.multi) {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		out, ok, err := m.apply(sub, id, p, f)
		if err != nil {
			return ldk.Value{}, false, err
		}
		if ok && out != "" {
			vals = append(vals, out)
		}
	}
	if len(vals) == 0 {
		return ldk.Value{}, false, nil
	}
	return ldk.List(vals...), true, nil
}

func (m *Mapper) apply(s, id string, p *property, f *field) (string, bool, error) {
	if f.transform == nil {
		return s, true, nil
	}
	res, err := f.transform(s)
	if err != nil {
		return "", false, &ldk.MappingError{RecordID: id, Property: p.name, Field: f.key, Transform: f.transformName, Message: "transform failed", Err: err}
	}
	return m.result(res, id, f.key, f.transformName, p.name)
}

// result checks what a transform returned. Strings are used as is and nil
// means no value. Other scalars are stringified with a warning; maps,
// collections and booleans are errors.
func (m *Mapper) result(res interface{}, id, fieldKey, transform, prop string) (string, bool, error) {
	fail := func(format string, args ...interface{}) (string, bool, error) {
		return "", false, &ldk.MappingError{RecordID: id, Property: prop, Field: fieldKey, Transform: transform, Message: fmt.Sprintf(format, args...)}
	}
	switch v := res.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case bool:
		return fail("transform returned a boolean (%v), want a string", v)
	case json.Number:
		return v.String(), true, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("transform returned non-finite number %v", v)
		}
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fail("transform returned non-finite number %v", v)
		}
	}
	switch reflect.ValueOf(res).Kind() {
	case reflect.Map:
		return fail("transform returned a mapping (%T), want a string", res)
	case reflect.Slice, reflect.Array, reflect.Chan:
		return fail("transform returned a collection (%T), want a string", res)
	case reflect.Struct, reflect.Ptr, reflect.Func, reflect.Interface:
		return fail("transform returned %T, want a string", res)
	}
	s, _, err := ldk.FormatScalar(res)
	if err != nil {
		return fail("%v", err)
	}
	m.stats.Count("mapper.coerced", 1, 1)
	m.log.Printf("record %s: property %s: transform %s returned %T for field %s, using '%s'", id, prop, transform, res, fieldKey, s)
	return s, true, nil
}
