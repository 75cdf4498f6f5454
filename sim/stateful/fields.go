package stateful

import (
	"fmt"
	"math"
)

// Bool reads a boolean field from a serialized state.
func Bool(data map[string]any, key string) (bool, error) {
	raw, ok := data[key]
	if !ok {
		return false, fmt.Errorf("missing field %q", key)
	}

	v, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("field %q: expect bool, got %T", key, raw)
	}

	return v, nil
}

// Uint reads an unsigned integer field that must not exceed max. Numbers may
// arrive as any Go integer type or as float64, depending on the codec.
func Uint(data map[string]any, key string, max uint64) (uint64, error) {
	raw, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}

	return toUint(key, raw, max)
}

func toUint(key string, raw any, max uint64) (uint64, error) {
	var v uint64

	switch n := raw.(type) {
	case uint8:
		v = uint64(n)
	case uint16:
		v = uint64(n)
	case uint32:
		v = uint64(n)
	case uint64:
		v = n
	case uint:
		v = uint64(n)
	case int:
		if n < 0 {
			return 0, fmt.Errorf("field %q: negative value %d", key, n)
		}

		v = uint64(n)
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("field %q: negative value %d", key, n)
		}

		v = uint64(n)
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, fmt.Errorf("field %q: %v is not a whole number", key, n)
		}

		v = uint64(n)
	default:
		return 0, fmt.Errorf("field %q: expect number, got %T", key, raw)
	}

	if v > max {
		return 0, fmt.Errorf("field %q: %d exceeds %d", key, v, max)
	}

	return v, nil
}

// String reads a string field.
func String(data map[string]any, key string) (string, error) {
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}

	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expect string, got %T", key, raw)
	}

	return v, nil
}

// Uints reads a list of unsigned integers, none of which may exceed max.
func Uints(data map[string]any, key string, max uint64) ([]uint64, error) {
	raw, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}

	switch list := raw.(type) {
	case []uint64:
		for _, v := range list {
			if v > max {
				return nil, fmt.Errorf("field %q: %d exceeds %d", key, v, max)
			}
		}

		return append([]uint64(nil), list...), nil
	case []any:
		out := make([]uint64, 0, len(list))

		for _, item := range list {
			v, err := toUint(key, item, max)
			if err != nil {
				return nil, err
			}

			out = append(out, v)
		}

		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("field %q: expect list, got %T", key, raw)
	}
}

// Strings reads a list of strings.
func Strings(data map[string]any, key string) ([]string, error) {
	raw, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}

	switch list := raw.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))

		for _, item := range list {
			v, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %q: expect string, got %T",
					key, item)
			}

			out = append(out, v)
		}

		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("field %q: expect list, got %T", key, raw)
	}
}
