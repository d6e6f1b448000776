package preflight

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ldkit/ldk/shape"
)

// checkFunc reports whether s is a plausible lexical form of a datatype.
type checkFunc func(s string) bool

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// checks is keyed by local datatype name.
var checks = map[string]checkFunc{
	"date":               validDate,
	"dateTime":           validDateTime,
	"integer":            wholeNumber(nil),
	"int":                wholeNumber(nil),
	"long":               wholeNumber(nil),
	"short":              wholeNumber(nil),
	"byte":               wholeNumber(nil),
	"nonNegativeInteger": wholeNumber(func(f float64) bool { return f >= 0 }),
	"positiveInteger":    wholeNumber(func(f float64) bool { return f > 0 }),
	"nonPositiveInteger": wholeNumber(func(f float64) bool { return f <= 0 }),
	"negativeInteger":    wholeNumber(func(f float64) bool { return f < 0 }),
	"unsignedInt":        wholeNumber(func(f float64) bool { return f >= 0 }),
	"unsignedLong":       wholeNumber(func(f float64) bool { return f >= 0 }),
	"decimal":            finiteNumber,
	"double":             finiteNumber,
	"float":              finiteNumber,
	"boolean":            validBoolean,
}

// datatypeCheck returns the check for an xsd datatype, in compact or full
// form, or nil if there is none.
func datatypeCheck(datatype string) checkFunc {
	full := shape.ExpandDatatype(datatype)
	if !strings.HasPrefix(full, shape.XSD) {
		return nil
	}
	return checks[strings.TrimPrefix(full, shape.XSD)]
}

// validDate accepts zero padded YYYY-MM-DD forming a real calendar date.
func validDate(s string) bool {
	if !isoDate.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// validDateTime requires a "T" separating a valid date from a time.
func validDateTime(s string) bool {
	i := strings.IndexByte(s, 'T')
	if i < 0 || i == len(s)-1 {
		return false
	}
	return validDate(s[:i])
}

func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func finiteNumber(s string) bool {
	_, ok := parseFinite(s)
	return ok
}

func wholeNumber(sign func(float64) bool) checkFunc {
	return func(s string) bool {
		f, ok := parseFinite(s)
		if !ok || f != math.Trunc(f) {
			return false
		}
		return sign == nil || sign(f)
	}
}

func validBoolean(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "false", "1", "0":
		return true
	}
	return false
}
