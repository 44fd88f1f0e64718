package proptable

import (
	"encoding/json"
	"strconv"
)

// Stringify converts a value to its lossless string form. Nil is returned
// unchanged, arrays are converted per element, objects become JSON text, and
// other scalars their string form. Numbers decoded as json.Number keep their
// original text.
func Stringify(v interface{}) interface{} {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return v
	case json.Number:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case []interface{}:
		r := make([]interface{}, len(v))
		for i, e := range v {
			r[i] = Stringify(e)
		}
		return r
	case []float64:
		r := make([]interface{}, len(v))
		for i, e := range v {
			r[i] = Stringify(e)
		}
		return r
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

// stringRow returns the single string of a row of a non-array STRING
// property. Arrays are stored as JSON text, and nil as an empty string.
func stringRow(v interface{}) string {
	switch s := Stringify(v).(type) {
	case string:
		return s
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
