package scenario

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// extraction copies one value out of a JSON response body into an object variable.
type extraction struct {
	variable string
	path     string // gjson syntax
	source   string // as configured, for diagnostics
}

// newExtraction compiles a JSONPath expression such as $.users[0].name.
func newExtraction(variable, jsonPath string) (extraction, error) {
	if jsonPath == "" {
		return extraction{}, fmt.Errorf("empty JSONPath expression for %s", variable)
	}
	return extraction{variable: variable, path: toGjsonPath(jsonPath), source: jsonPath}, nil
}

// lookup returns the value at the extraction path. Strings, numbers, booleans
// and null map to their Go values; objects and arrays are kept as raw JSON.
func (e extraction) lookup(body []byte) (any, bool) {
	result := gjson.GetBytes(body, e.path)
	if !result.Exists() {
		return nil, false
	}
	switch result.Type {
	case gjson.JSON:
		return result.Raw, true
	case gjson.Null:
		return nil, true
	default:
		return result.Value(), true
	}
}

// toGjsonPath converts the JSONPath subset used in benchmark files:
//
//	$            -> @this
//	$.a.b        -> a.b
//	$['a']["b"]  -> a.b
//	$[0].a[1]    -> 0.a.1
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				sb.WriteString(path[i:])
				return sb.String()
			}
			key := strings.Trim(path[i+1:i+end], `'"`)
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(key)
			i += end
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
