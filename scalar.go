package ldk

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// FormatScalar converts a raw value to a string. missing is true for nil, blank
// strings and NaN. Booleans, non-finite numbers and collections are errors.
func FormatScalar(raw interface{}) (s string, missing bool, err error) {
	switch v := raw.(type) {
	case nil:
		return "", true, nil
	case string:
		return v, strings.TrimSpace(v) == "", nil
	case json.Number:
		return v.String(), false, nil
	case float64:
		return formatFloat(v, 64)
	case float32:
		return formatFloat(float64(v), 32)
	case int:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int8:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int16:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int32:
		return strconv.FormatInt(int64(v), 10), false, nil
	case int64:
		return strconv.FormatInt(v, 10), false, nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), false, nil
	case uint64:
		return strconv.FormatUint(v, 10), false, nil
	case bool:
		return "", false, errors.Errorf("boolean value %v is not allowed", v)
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Map:
		return "", false, errors.Errorf("mapping value %T is not allowed", raw)
	case reflect.Slice, reflect.Array:
		return "", false, errors.Errorf("collection value %T is not allowed", raw)
	case reflect.String:
		s := reflect.ValueOf(raw).String()
		return s, strings.TrimSpace(s) == "", nil
	}
	return "", false, errors.Errorf("unsupported value type %T", raw)
}

// IdentifierProblem returns why raw cannot identify a record, or "" when
// its type and value are acceptable. Booleans, NaN and numeric zero are
// rejected.
func IdentifierProblem(raw interface{}) string {
	switch v := raw.(type) {
	case bool:
		return fmt.Sprintf("boolean %v is not a valid identifier", v)
	case float64:
		if math.IsNaN(v) {
			return "identifier is NaN"
		}
	case float32:
		if math.IsNaN(float64(v)) {
			return "identifier is NaN"
		}
	}
	if isZeroNumber(raw) {
		return "identifier is zero"
	}
	return ""
}

func isZeroNumber(raw interface{}) bool {
	switch v := raw.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return reflect.ValueOf(v).IsZero()
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	}
	return false
}

func formatFloat(f float64, bits int) (string, bool, error) {
	if math.IsNaN(f) {
		return "", true, nil
	}
	if math.IsInf(f, 0) {
		return "", false, errors.Errorf("non-finite value %v is not allowed", f)
	}
	return strconv.FormatFloat(f, 'f', -1, bits), false, nil
}

// StripControl removes control characters from s.
func StripControl(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
