package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce converts an input value to the kind of the property. Crypto
// configurations are returned unchanged; their structure is checked when
// they are merged.
func Coerce(s Spec, value interface{}) (interface{}, error) {
	if value == nil {
		if s.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("property %s does not accept a null value", s.InputName())
	}

	var (
		out interface{}
		err error
	)
	switch s.Kind {
	case KindString:
		out, err = ToString(value)
	case KindInt:
		out, err = ToInt(value)
	case KindFloat:
		out, err = ToFloat(value)
	case KindBool:
		out, err = ToBool(value)
	case KindStringList:
		out, err = ToStringList(value)
	case KindCrypto:
		return value, nil
	default:
		return nil, fmt.Errorf("property %s has unsupported kind %s", s.InputName(), s.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", s.InputName(), err)
	}
	return out, nil
}

// ToString accepts strings and scalar values rendered as decimal text.
func ToString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("value %v (%T) is not a string", value, value)
	}
}

// ToInt accepts integers, integral floats and numeric strings.
func ToInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d is out of range", v)
		}
		return int(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		return ToInt(v.String())
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not an integer", value, value)
	}
}

func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("value %v is not an integer", f)
	}
	return int(f), nil
}

// ToFloat accepts numbers and numeric strings.
func ToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", v)
		}
		return f, nil
	default:
		n, err := ToInt(value)
		if err != nil {
			return 0, fmt.Errorf("value %v (%T) is not a number", value, value)
		}
		return float64(n), nil
	}
}

// ToBool accepts booleans and the strings "true" and "false".
func ToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("value %q is not a boolean", v)
	default:
		return false, fmt.Errorf("value %v (%T) is not a boolean", value, value)
	}
}

// ToStringList accepts a list whose items are all strings.
func ToStringList(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d (%v) is not a string", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value %v (%T) is not a list", value, value)
	}
}
