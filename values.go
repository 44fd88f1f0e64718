package tiles

import (
	"encoding/json"
	"math"
	"strconv"
)

// IsNumber returns whether v is a numeric value as produced by decoding JSON
// or by the binary table accessor.
func IsNumber(v interface{}) bool {
	switch v := v.(type) {
	case json.Number:
		_, err := strconv.ParseFloat(string(v), 64)
		return err == nil
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// AsFloat64 converts a numeric value to float64. 64-bit integers may lose
// precision.
func AsFloat64(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// AsInt64 converts an integral numeric value to int64. ok is false if the value
// is not integral or does not fit.
func AsInt64(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	}
	return 0, false
}

// AsUint64 converts a non-negative integral numeric value to uint64.
func AsUint64(v interface{}) (uint64, bool) {
	switch v := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(string(v), 10, 64); err == nil {
			return u, true
		}
	case uint:
		return uint64(v), true
	case uint64:
		return v, true
	case float64:
		if v >= 0 && v < 1<<64 && v == math.Trunc(v) {
			return uint64(v), true
		}
		return 0, false
	}
	i, ok := AsInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

// IsIntegral returns whether a numeric value has no fractional part.
func IsIntegral(v interface{}) bool {
	if _, ok := AsInt64(v); ok {
		return true
	}
	if _, ok := AsUint64(v); ok {
		return true
	}
	return false
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
