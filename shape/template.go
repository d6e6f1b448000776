package shape

import (
	"strconv"
	"strings"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/mapping"
	"github.com/pkg/errors"
)

// Names of the shapes and classes which stand for boilerplate the builder
// injects rather than values the mapper extracts.
const (
	recordStatusMarker   = "RecordStatus"
	dataCollectionMarker = "DataCollection"
)

func refersTo(p Property, marker string) bool {
	return strings.Contains(ldk.LocalName(p.Node), marker) ||
		strings.Contains(ldk.LocalName(p.Class), marker)
}

// classOf returns the local name of the target class of s, falling back to
// the shape's own name.
func classOf(s *Shape) string {
	if s.TargetClass != "" {
		return ldk.LocalName(s.TargetClass)
	}
	return s.Name
}

// MappingTemplate generates a skeleton mapping configuration from the root
// shape. Every root property with a nested shape becomes a property mapping;
// its fields are the nested shape's own properties. Sources are placeholders
// named after the field. Settings in base, which may be nil, take precedence
// over the generated ones.
func (m *Model) MappingTemplate(base *mapping.Config) (*mapping.Config, error) {
	root, err := m.Root()
	if err != nil {
		return nil, err
	}
	tmpl := &mapping.Config{Type: classOf(root)}
	for _, p := range root.Properties {
		nested, ok := m.nested(p)
		if !ok {
			continue
		}
		pm := mapping.PropertyMapping{
			Cardinality: mapping.Single,
			Type:        classOf(nested),
		}
		if p.Unbounded() {
			pm.Cardinality = mapping.Multiple
		}
		var optional []Property
		for _, np := range nested.Properties {
			switch {
			case refersTo(np, recordStatusMarker):
				pm.IncludeRecordStatus = mapping.Bool(true)
			case refersTo(np, dataCollectionMarker):
				pm.IncludeDataCollection = mapping.Bool(true)
			case np.Required():
				pm.Fields.Set(np.Name, m.templateField(np))
			default:
				optional = append(optional, np)
			}
		}
		// required fields first so a multiple property's primary field is one
		// the schema insists on
		for _, np := range optional {
			pm.Fields.Set(np.Name, m.templateField(np))
		}
		if pm.Fields.Len() == 0 {
			continue
		}
		tmpl.Properties.Set(p.Name, pm)
	}
	if base != nil {
		tmpl = mapping.Compose(tmpl, base)
	}
	return tmpl, nil
}

func (m *Model) templateField(p Property) mapping.FieldMapping {
	f := mapping.FieldMapping{
		Source: p.HumanName,
		Target: p.Name,
	}
	if f.Source == "" {
		f.Source = p.Name
	}
	if p.Datatype != "" && p.Datatype != XSDString {
		f.Datatype = CompactDatatype(p.Datatype)
	}
	if !p.Required() {
		f.Optional = mapping.Bool(true)
	}
	return f
}

// CheckMapping compares cfg with the schema. Missing required properties or
// fields and sub-node type mismatches are errors; everything else that
// disagrees is a warning. Only a nil cfg or an empty schema makes it fail.
func (m *Model) CheckMapping(cfg *mapping.Config) ([]ldk.FieldIssue, error) {
	if cfg == nil {
		return nil, errors.New("nil mapping config")
	}
	root, err := m.Root()
	if err != nil {
		return nil, err
	}
	var issues []ldk.FieldIssue
	add := func(sev ldk.Severity, path, msg, expected, actual string) {
		issues = append(issues, ldk.FieldIssue{
			Path:     path,
			Message:  msg,
			Severity: sev,
			Expected: expected,
			Actual:   actual,
		})
	}
	if cfg.Type != "" && root.TargetClass != "" && cfg.Type != classOf(root) {
		add(ldk.SeverityError, "", "document type does not match root shape", classOf(root), cfg.Type)
	}
	known := make(map[string]bool)
	for _, p := range root.Properties {
		nested, ok := m.nested(p)
		if !ok {
			continue
		}
		known[p.Name] = true
		pm, ok := cfg.Properties.Get(p.Name)
		if !ok {
			if p.Required() {
				add(ldk.SeverityError, p.Name, "required property is not mapped", "", "")
			} else {
				add(ldk.SeverityWarning, p.Name, "optional property is not mapped", "", "")
			}
			continue
		}
		if pm.Type != "" && nested.TargetClass != "" && pm.Type != classOf(nested) {
			add(ldk.SeverityError, p.Name, "sub-node type does not match shape", classOf(nested), pm.Type)
		}
		switch {
		case pm.IsMultiple() && p.MaxCount != nil && *p.MaxCount <= 1:
			add(ldk.SeverityWarning, p.Name, "multiple cardinality on a single valued property", string(mapping.Single), string(mapping.Multiple))
		case !pm.IsMultiple() && p.Unbounded():
			add(ldk.SeverityWarning, p.Name, "single cardinality on an unbounded property", string(mapping.Multiple), string(mapping.Single))
		}
		issues = append(issues, m.checkFields(p.Name, nested, pm)...)
	}
	for _, name := range cfg.Properties.Keys() {
		if !known[name] {
			add(ldk.SeverityWarning, name, "mapped property is not in the schema", "", "")
		}
	}
	return issues, nil
}

func (m *Model) checkFields(prop string, nested *Shape, pm mapping.PropertyMapping) []ldk.FieldIssue {
	var issues []ldk.FieldIssue
	add := func(sev ldk.Severity, field, msg, expected, actual string) {
		issues = append(issues, ldk.FieldIssue{
			Path:     prop + "." + field,
			Message:  msg,
			Severity: sev,
			Expected: expected,
			Actual:   actual,
		})
	}
	byTarget := make(map[string]mapping.FieldMapping, pm.Fields.Len())
	for _, key := range pm.Fields.Keys() {
		f, _ := pm.Fields.Get(key)
		byTarget[f.Target] = f
	}
	var recordStatus, dataCollection bool
	known := make(map[string]bool)
	for _, np := range nested.Properties {
		if refersTo(np, recordStatusMarker) {
			recordStatus = true
			continue
		}
		if refersTo(np, dataCollectionMarker) {
			dataCollection = true
			continue
		}
		known[np.Name] = true
		f, ok := byTarget[np.Name]
		if !ok {
			if np.Required() {
				add(ldk.SeverityError, np.Name, "required field is not mapped", "", "")
			} else {
				add(ldk.SeverityWarning, np.Name, "optional field is not mapped", "", "")
			}
			continue
		}
		if np.Datatype != "" {
			want, got := CompactDatatype(np.Datatype), f.Datatype
			if got == "" {
				got = CompactDatatype(XSDString)
			}
			if ExpandDatatype(got) != np.Datatype {
				add(ldk.SeverityWarning, np.Name, "datatype does not match shape", want, got)
			}
		}
	}
	if recordStatus != pm.WantsRecordStatus() {
		add(ldk.SeverityWarning, mapping.RecordStatusProperty, "include_record_status disagrees with shape", strconv.FormatBool(recordStatus), strconv.FormatBool(pm.WantsRecordStatus()))
	}
	if dataCollection != pm.WantsDataCollection() {
		add(ldk.SeverityWarning, mapping.DataCollectionProperty, "include_data_collection disagrees with shape", strconv.FormatBool(dataCollection), strconv.FormatBool(pm.WantsDataCollection()))
	}
	for _, key := range pm.Fields.Keys() {
		f, _ := pm.Fields.Get(key)
		if known[f.Target] {
			continue
		}
		if nested.Closed {
			add(ldk.SeverityError, f.Target, "field is not allowed by closed shape", "", "")
		} else {
			add(ldk.SeverityWarning, f.Target, "mapped field is not in the schema", "", "")
		}
	}
	return issues
}

// Field returns the property shape for field of the sub-node under property.
func (m *Model) Field(property, field string) (Property, bool) {
	root, err := m.Root()
	if err != nil {
		return Property{}, false
	}
	for _, p := range root.Properties {
		if p.Name != property {
			continue
		}
		nested, ok := m.nested(p)
		if !ok {
			return Property{}, false
		}
		for _, np := range nested.Properties {
			if np.Name == field {
				return np, true
			}
		}
	}
	return Property{}, false
}

// AllowedValues returns the values the schema allows for field of the
// sub-node under property, or nil if it doesn't restrict them. IRIs are
// returned both by local name and, when the lookup has one, by human name.
func (m *Model) AllowedValues(property, field string) []string {
	p, ok := m.Field(property, field)
	if !ok {
		return nil
	}
	return m.allowed(p.In)
}

func (m *Model) allowed(in []Term) []string {
	var vals []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			vals = append(vals, s)
		}
	}
	for _, t := range in {
		if t.Kind != KindIRI {
			add(t.Value)
			continue
		}
		add(ldk.LocalName(t.Value))
		add(m.names[t.Value])
	}
	return vals
}
