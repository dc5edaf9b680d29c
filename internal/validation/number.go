package validation

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

var int64Type = reflect.TypeOf(int64(0))

// Int is an integer body field that also takes integral numbers written
// with a fraction or exponent (10.0, 1e1) and numeric strings ("10").
// Anything else fails with a *json.UnmarshalTypeError so binding reports it
// against the field. Use *Int to keep a missing value distinct from zero.
type Int int64

func IntOf(v int64) *Int {
	n := Int(v)
	return &n
}

func (n *Int) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	kind := "number"

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		kind = "string"
	}

	v, ok := parseIntegral(raw)
	if !ok {
		return &json.UnmarshalTypeError{Value: kind + " " + raw, Type: int64Type}
	}

	*n = Int(v)
	return nil
}

func parseIntegral(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, true
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
