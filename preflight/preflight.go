// Package preflight validates raw records against a mapping configuration,
// and optionally the allowed values of a shape schema, before they are
// mapped. It is cheap enough to run on every record.
package preflight

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/mapping"
	"github.com/ldkit/ldk/shape"
	"github.com/ohler55/ojg/jp"
	"github.com/pkg/errors"
)

// DefaultSampleRate is the fraction of records checked in sample mode.
const DefaultSampleRate = 0.1

// Validator checks raw records. Rules are compiled by New; validating only
// reads them, so a Validator may be shared between goroutines.
type Validator struct {
	idSource string
	rules    []rule

	model  *shape.Model
	custom map[string]mapping.TransformFunc
	rate   float64
	seed   int64
	log    ldk.Logger
}

type rule struct {
	property string
	path     string
	source   string
	expr     jp.Expr
	optional bool
	multiple bool
	primary  bool
	delim    string
	split    string

	transformName string
	transform     mapping.TransformFunc

	datatype string
	check    checkFunc

	allowed     map[string]bool
	allowedList string
}

// Option configures a Validator.
type Option func(*Validator)

// WithShape adds the allowed values of the schema's sh:in constraints, and
// datatypes for fields the mapping leaves untyped.
func WithShape(m *shape.Model) Option {
	return func(v *Validator) {
		v.model = m
	}
}

// WithTransforms adds custom transforms. They take precedence over built-ins
// of the same name.
func WithTransforms(custom map[string]mapping.TransformFunc) Option {
	return func(v *Validator) {
		v.custom = custom
	}
}

// WithSampleRate sets the fraction, between 0 and 1, of records checked in
// sample mode.
func WithSampleRate(rate float64) Option {
	return func(v *Validator) {
		v.rate = rate
	}
}

// WithSeed seeds the sample mode random source.
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

// New compiles the rules for cfg.
func New(cfg *mapping.Config, opts ...Option) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid mapping")
	}
	v := &Validator{
		idSource: cfg.IDSource,
		rate:     DefaultSampleRate,
		log:      ldk.NopLogger{},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.rate < 0 || v.rate > 1 {
		return nil, errors.Errorf("sample rate %v is not between 0 and 1", v.rate)
	}
	reg := mapping.NewRegistry(v.custom)
	if err := reg.Check(cfg); err != nil {
		return nil, err
	}
	for _, name := range cfg.Properties.Keys() {
		pm, _ := cfg.Properties.Get(name)
		for i, key := range pm.Fields.Keys() {
			f, _ := pm.Fields.Get(key)
			r := rule{
				property: name,
				path:     name + "." + f.Target,
				source:   f.Source,
				optional: f.IsOptional(),
				multiple: pm.IsMultiple(),
				primary:  i == 0,
				delim:    pm.Delimiter(),
				split:    f.MultiValueSplit,
				datatype: f.Datatype,
			}
			if strings.HasPrefix(f.Source, "$") {
				x, err := jp.ParseString(f.Source)
				if err != nil {
					return nil, errors.Wrapf(err, "property '%s' field '%s': parsing JSONPath source", name, key)
				}
				r.expr = x
			}
			if f.Transform != "" {
				r.transformName = f.Transform
				r.transform, _ = reg.Lookup(f.Transform)
			}
			if v.model != nil {
				if sp, ok := v.model.Field(name, f.Target); ok {
					if r.datatype == "" && sp.Datatype != shape.XSDString {
						r.datatype = sp.Datatype
					}
					if vals := v.model.AllowedValues(name, f.Target); len(vals) > 0 {
						r.allowed = make(map[string]bool, len(vals))
						for _, val := range vals {
							r.allowed[val] = true
						}
						r.allowedList = strings.Join(vals, ", ")
					}
				}
			}
			if r.datatype != "" {
				r.check = datatypeCheck(r.datatype)
			}
			v.rules = append(v.rules, r)
		}
	}
	return v, nil
}

// rowCheck collects the issues of one record, stopping at the first one in
// strict mode.
type rowCheck struct {
	res    *ldk.ValidationResult
	id     string
	strict bool
	err    error
}

func (c *rowCheck) add(sev ldk.Severity, path, msg, expected, actual string) bool {
	issue := ldk.FieldIssue{
		Path:     path,
		Message:  msg,
		Severity: sev,
		Expected: expected,
		Actual:   actual,
	}
	c.res.Add(c.id, issue)
	if c.strict {
		c.err = &ldk.ValidationError{RecordID: c.id, Issue: issue}
		return false
	}
	return true
}

// ValidateRow checks one raw record. In strict mode the first issue is also
// returned as a *ldk.ValidationError. Sample mode behaves like report mode
// for a single record.
func (v *Validator) ValidateRow(rec ldk.Record, mode ldk.Mode) (*ldk.ValidationResult, error) {
	c := &rowCheck{res: ldk.NewValidationResult(), strict: mode == ldk.ModeStrict}
	c.res.Records = 1
	raw := rec[v.idSource]
	id, missing, err := ldk.FormatScalar(raw)
	id = strings.TrimSpace(ldk.StripControl(id))
	switch {
	case raw != nil && ldk.IdentifierProblem(raw) != "":
		id = ""
		if !c.add(ldk.SeverityError, v.idSource, ldk.IdentifierProblem(raw), "", "") {
			return c.res, c.err
		}
	case err != nil:
		if !c.add(ldk.SeverityError, v.idSource, "identifier is not usable: "+err.Error(), "", "") {
			return c.res, c.err
		}
	case missing || id == "":
		if !c.add(ldk.SeverityError, v.idSource, "identifier is missing", "", "") {
			return c.res, c.err
		}
	}
	c.id = id
	primarySegments := make(map[string]int)
	for i := range v.rules {
		if !v.checkRule(c, rec, &v.rules[i], primarySegments) {
			return c.res, c.err
		}
	}
	return c.res, nil
}

// checkRule returns false once a strict check has failed.
func (v *Validator) checkRule(c *rowCheck, rec ldk.Record, r *rule, primarySegments map[string]int) bool {
	raw, err := v.read(rec, r)
	if err != nil {
		return c.add(ldk.SeverityError, r.path, err.Error(), "", "")
	}
	if raw == "" {
		if r.optional {
			return true
		}
		return c.add(ldk.SeverityError, r.path, "required field is missing", r.source, "")
	}
	segments := []string{raw}
	if r.multiple {
		all := strings.Split(raw, r.delim)
		if r.primary {
			primarySegments[r.property] = len(all)
		} else if n, ok := primarySegments[r.property]; ok && len(all) != n {
			if !c.add(ldk.SeverityWarning, r.path, "segment count differs from primary field", fmt.Sprint(n), fmt.Sprint(len(all))) {
				return false
			}
		}
		segments = nonEmpty(all)
	}
	for _, seg := range segments {
		vals := []string{seg}
		if r.split != "" {
			vals = nonEmpty(strings.Split(seg, r.split))
		}
		for _, val := range vals {
			if !v.checkValue(c, r, val) {
				return false
			}
		}
	}
	return true
}

func (v *Validator) checkValue(c *rowCheck, r *rule, val string) bool {
	val = strings.TrimSpace(val)
	if r.transform != nil {
		out, err := r.transform(val)
		if err != nil {
			return c.add(ldk.SeverityError, r.path, fmt.Sprintf("transform '%s' failed: %v", r.transformName, err), "", val)
		}
		s, missing, err := ldk.FormatScalar(out)
		if err != nil {
			return c.add(ldk.SeverityError, r.path, fmt.Sprintf("transform '%s' returned an unusable value: %v", r.transformName, err), "", val)
		}
		if missing {
			return true
		}
		val = s
	}
	if r.check != nil && !r.check(val) {
		if !c.add(ldk.SeverityWarning, r.path, "value is not a plausible "+shape.CompactDatatype(shape.ExpandDatatype(r.datatype)), r.datatype, val) {
			return false
		}
	}
	if r.allowed != nil && !r.allowed[val] {
		return c.add(ldk.SeverityError, r.path, "value is not allowed", r.allowedList, val)
	}
	return true
}

func (v *Validator) read(rec ldk.Record, r *rule) (string, error) {
	var raw interface{}
	if r.expr != nil {
		res := r.expr.Get(map[string]interface{}(rec))
		parts := make([]string, 0, len(res))
		for _, x := range res {
			s, missing, err := ldk.FormatScalar(x)
			if err != nil {
				return "", err
			}
			if !missing {
				parts = append(parts, s)
			}
		}
		raw = strings.Join(parts, r.delim)
	} else {
		raw = rec[r.source]
	}
	s, missing, err := ldk.FormatScalar(raw)
	if err != nil || missing {
		return "", err
	}
	return strings.TrimSpace(ldk.StripControl(s)), nil
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// sampler decides which records sample mode checks. A new sampler, with the
// same seed, makes the same choices.
type sampler struct {
	rng  *rand.Rand
	rate float64
	on   bool
}

func (v *Validator) sampler(mode ldk.Mode) *sampler {
	return &sampler{
		rng:  rand.New(rand.NewSource(v.seed)),
		rate: v.rate,
		on:   mode == ldk.ModeSample,
	}
}

func (s *sampler) take() bool {
	return !s.on || s.rng.Float64() < s.rate
}

// ValidateBatch checks records and merges the results. In strict mode it
// stops at the first issue.
func (v *Validator) ValidateBatch(records []ldk.Record, mode ldk.Mode) (*ldk.ValidationResult, error) {
	res := ldk.NewValidationResult()
	s := v.sampler(mode)
	for _, rec := range records {
		if !s.take() {
			continue
		}
		row, err := v.ValidateRow(rec, mode)
		res.Merge(row)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// ValidateSource streams records from src until io.EOF, checking for
// cancellation between records.
func (v *Validator) ValidateSource(ctx context.Context, src ldk.Source, mode ldk.Mode) (*ldk.ValidationResult, error) {
	res := ldk.NewValidationResult()
	s := v.sampler(mode)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, err := src.Record()
		if err == io.EOF {
			return res, nil
		} else if err != nil {
			return res, errors.Wrap(err, "reading record")
		}
		if !s.take() {
			continue
		}
		row, err := v.ValidateRow(rec, mode)
		res.Merge(row)
		if err != nil {
			return res, err
		}
		if res.Records%10000 == 0 {
			v.log.Printf("preflight: %d records checked, %d errors, %d warnings", res.Records, res.ErrorCount(), res.WarningCount())
		}
	}
}
