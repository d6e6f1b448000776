package ldk

import (
	"encoding/json"
	"reflect"
	"strings"
)

// JSON-LD keywords used in documents.
const (
	KeyContext = "@context"
	KeyID      = "@id"
	KeyType    = "@type"
	KeyValue   = "@value"
)

// Value is a mapped field value. It is either a scalar string or, for fields
// which declare a multi-value delimiter, a list of strings.
type Value struct {
	scalar string
	list   []string
	isList bool
}

// Scalar returns a scalar Value.
func Scalar(s string) Value {
	return Value{scalar: s}
}

// List returns a list Value holding a copy of vals.
func List(vals ...string) Value {
	l := make([]string, len(vals))
	copy(l, vals)
	return Value{list: l, isList: true}
}

// IsList reports whether v was produced by a multi-value split.
func (v Value) IsList() bool { return v.isList }

// String returns the scalar value, or the list elements joined by "|".
func (v Value) String() string {
	if v.isList {
		return strings.Join(v.list, "|")
	}
	return v.scalar
}

// Strings returns the list elements, or a one element slice holding the
// scalar. The returned slice is a copy.
func (v Value) Strings() []string {
	if !v.isList {
		return []string{v.scalar}
	}
	l := make([]string, len(v.list))
	copy(l, v.list)
	return l
}

// MarshalJSON encodes v as a JSON string or array of strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isList {
		return json.Marshal(v.list)
	}
	return json.Marshal(v.scalar)
}

// Instance is one sub-node's worth of mapped fields keyed by target name.
type Instance map[string]Value

// MappedRecord is the intermediate representation between mapping and
// building. Mappers return a fresh MappedRecord for every call; it shares no
// memory with any other record.
type MappedRecord struct {
	ID         string                `json:"id"`
	Properties map[string][]Instance `json:"properties"`
}

// NewMappedRecord returns an empty MappedRecord for id.
func NewMappedRecord(id string) *MappedRecord {
	return &MappedRecord{ID: id, Properties: make(map[string][]Instance)}
}

// Equal reports whether m and o hold the same identifier and values.
func (m *MappedRecord) Equal(o *MappedRecord) bool {
	if m == nil || o == nil {
		return m == o
	}
	return reflect.DeepEqual(m, o)
}

// Document is a JSON-LD document. encoding/json writes map keys in sorted
// order, so "@context", "@id" and "@type" always precede the properties.
type Document map[string]interface{}

// ID returns the document's "@id", or "" if it has none.
func (d Document) ID() string {
	id, _ := d[KeyID].(string)
	return id
}

// Type returns the document's "@type", or "" if it has none.
func (d Document) Type() string {
	typ, _ := d[KeyType].(string)
	return typ
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(DeepCopy(map[string]interface{}(d)).(map[string]interface{}))
}

// DeepCopy copies the maps and slices of a JSON-like value. Other values are
// returned as they are.
func DeepCopy(v interface{}) interface{} {
	switch vt := v.(type) {
	case map[string]interface{}:
		ret := make(map[string]interface{}, len(vt))
		for k, val := range vt {
			ret[k] = DeepCopy(val)
		}
		return ret
	case Document:
		return vt.Clone()
	case []interface{}:
		ret := make([]interface{}, len(vt))
		for i, val := range vt {
			ret[i] = DeepCopy(val)
		}
		return ret
	case []map[string]interface{}:
		ret := make([]map[string]interface{}, len(vt))
		for i, val := range vt {
			ret[i] = DeepCopy(val).(map[string]interface{})
		}
		return ret
	case []string:
		ret := make([]string, len(vt))
		copy(ret, vt)
		return ret
	default:
		return v
	}
}

// LocalName returns the part of an IRI after the last '#', '/' or ':'.
func LocalName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/:"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}
