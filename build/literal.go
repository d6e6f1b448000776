package build

import (
	"math"
	"strings"

	"github.com/ldkit/ldk"
)

// nullMarkers are strings that stand for a missing or non-finite value.
var nullMarkers = map[string]struct{}{
	"none":      {},
	"null":      {},
	"nan":       {},
	"inf":       {},
	"+inf":      {},
	"-inf":      {},
	"infinity":  {},
	"+infinity": {},
	"-infinity": {},
}

// TypedLiteral wraps v as a JSON-LD typed literal of datatype. It returns
// false, and no literal, for nil, NaN, infinities, blank strings and strings
// like "None" or "nan" which only ever stand for a missing value.
func TypedLiteral(v interface{}, datatype string) (map[string]interface{}, bool) {
	if !usable(v) {
		return nil, false
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	return map[string]interface{}{
		ldk.KeyType:  datatype,
		ldk.KeyValue: v,
	}, true
}

func usable(v interface{}) bool {
	switch vt := v.(type) {
	case nil:
		return false
	case float64:
		return !math.IsNaN(vt) && !math.IsInf(vt, 0)
	case float32:
		return !math.IsNaN(float64(vt)) && !math.IsInf(float64(vt), 0)
	case string:
		s := strings.ToLower(strings.TrimSpace(vt))
		if s == "" {
			return false
		}
		_, null := nullMarkers[s]
		return !null
	}
	return true
}
