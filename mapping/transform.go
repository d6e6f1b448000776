package mapping

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TransformFunc converts one raw string value. It returns a string, or nil to
// signal that the field should be omitted. Returning any other type is
// allowed by the signature but the mapper treats maps, slices and booleans as
// errors and stringifies other scalars.
type TransformFunc func(string) (interface{}, error)

// Registry resolves transform names. Custom transforms are consulted before
// the built-ins, so they can replace them.
type Registry struct {
	custom map[string]TransformFunc
}

// NewRegistry returns a Registry with the given custom transforms. The map is
// copied.
func NewRegistry(custom map[string]TransformFunc) *Registry {
	r := &Registry{custom: make(map[string]TransformFunc, len(custom))}
	for name, fn := range custom {
		r.custom[name] = fn
	}
	return r
}

// Lookup returns the transform called name.
func (r *Registry) Lookup(name string) (TransformFunc, bool) {
	if r != nil {
		if fn, ok := r.custom[name]; ok {
			return fn, true
		}
	}
	fn, ok := builtins[name]
	return fn, ok
}

// Check returns an error naming the first transform in cfg which r can't
// resolve.
func (r *Registry) Check(cfg *Config) error {
	if cfg.IDTransform != "" {
		if _, ok := r.Lookup(cfg.IDTransform); !ok {
			return errors.Errorf("id_transform: unknown transform '%s'", cfg.IDTransform)
		}
	}
	for _, name := range cfg.Properties.Keys() {
		p, _ := cfg.Properties.Get(name)
		for _, key := range p.Fields.Keys() {
			f, _ := p.Fields.Get(key)
			if f.Transform == "" {
				continue
			}
			if _, ok := r.Lookup(f.Transform); !ok {
				return errors.Errorf("property '%s' field '%s': unknown transform '%s'", name, key, f.Transform)
			}
		}
	}
	return nil
}

// Builtins returns the names of the built-in transforms, sorted.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtins = map[string]TransformFunc{
	"strip":           strip,
	"upper":           upper,
	"lower":           lower,
	"title":           title,
	"int_clean":       intClean,
	"first_token":     firstToken,
	"last_token":      lastToken,
	"date_format":     dateFormat,
	"datetime_format": dateTimeFormat,
	"bool_yes_no":     boolYesNo,
	"sex_prefix":      prefixer("Sex_"),
	"race_prefix":     prefixer("RaceAndEthnicity_"),
	"grade_prefix":    prefixer("GradeLevel_"),
}

func strip(s string) (interface{}, error) { return strings.TrimSpace(s), nil }

func upper(s string) (interface{}, error) { return strings.ToUpper(strings.TrimSpace(s)), nil }

func lower(s string) (interface{}, error) { return strings.ToLower(strings.TrimSpace(s)), nil }

func title(s string) (interface{}, error) {
	return cases.Title(language.Und).String(strings.TrimSpace(s)), nil
}

// intClean turns "42", "42.0" and " 42 " into "42".
func intClean(s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Errorf("'%s' is not a number", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, errors.Errorf("'%s' is not a whole number", s)
	}
	return strconv.FormatFloat(f, 'f', 0, 64), nil
}

func firstToken(s string) (interface{}, error) {
	toks := strings.Fields(s)
	if len(toks) == 0 {
		return nil, nil
	}
	return toks[0], nil
}

func lastToken(s string) (interface{}, error) {
	toks := strings.Fields(s)
	if len(toks) == 0 {
		return nil, nil
	}
	return toks[len(toks)-1], nil
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"01-02-2006",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized date '%s'", s)
}

func dateFormat(s string) (interface{}, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return t.Format("2006-01-02"), nil
}

func dateTimeFormat(s string) (interface{}, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return t.Format("2006-01-02T15:04:05"), nil
}

func boolYesNo(s string) (interface{}, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "y", "yes", "true", "t", "1":
		return "true", nil
	case "n", "no", "false", "f", "0":
		return "false", nil
	}
	return nil, errors.Errorf("'%s' is not yes or no", s)
}

// prefixer returns a transform which prefixes non-empty values. Empty values
// produce no value rather than a bare prefix.
func prefixer(prefix string) TransformFunc {
	return func(s string) (interface{}, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		return prefix + strings.ReplaceAll(s, " ", ""), nil
	}
}
