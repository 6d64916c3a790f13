package materialize

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/annoframe/materialize-go/errors"
)

// Request bodies carry user-supplied filter values: annotation IDs as
// uint64 slices, positions as fixed-size float arrays, timestamps as
// time.Time. The service only accepts plain JSON forms, so every value is
// normalized before marshalling: times become ISO-8601 strings, numeric
// arrays become number arrays, nested maps are normalized recursively.

// encodeBody normalizes v and marshals it to JSON
func encodeBody(v any) ([]byte, error) {
	normalized, err := normalizeValue(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request body")
	}
	return data, nil
}

// normalizeValue converts a filter value into a JSON-safe form
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case json.RawMessage:
		return t, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, errors.Newf("unsupported filter map key type %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem, err := normalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = elem
		}
		return out, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeValue(rv.Elem().Interface())
	case reflect.Struct:
		// Structs with their own JSON representation pass through
		return v, nil
	default:
		return nil, errors.Newf("unsupported filter value type %T", v)
	}
}
