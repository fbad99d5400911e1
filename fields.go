package ddd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrFieldType = errors.New("value does not fit field type")

// Field is a named, settable slot on a record.
type Field interface {
	Get() any
	Set(value any) error
}

// Fields exposes a record's fields by name. Names are matched case-sensitively.
type Fields map[string]Field

// CopyFields copies every field present in both src and dst, by name.
func CopyFields(dst, src Fields) error {
	var errs []error
	for name, from := range src {
		to, ok := dst[name]
		if !ok {
			continue
		}
		if err := to.Set(cloneValue(from.Get())); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

type fieldFunc struct {
	get func() any
	set func(any) error
}

func (f fieldFunc) Get() any            { return f.get() }
func (f fieldFunc) Set(value any) error { return f.set(value) }

func StringField(target *string) Field {
	return fieldFunc{
		get: func() any { return *target },
		set: func(value any) error {
			switch v := value.(type) {
			case nil:
				*target = ""
			case string:
				*target = v
			default:
				return typeError(value, "string")
			}
			return nil
		},
	}
}

func StringsField(target *[]string) Field {
	return fieldFunc{
		get: func() any {
			if *target == nil {
				return []string(nil)
			}
			return append([]string(nil), (*target)...)
		},
		set: func(value any) error {
			switch v := value.(type) {
			case nil:
				*target = nil
			case []string:
				*target = append([]string(nil), v...)
			case []any:
				out := make([]string, 0, len(v))
				for _, item := range v {
					s, ok := item.(string)
					if !ok {
						return typeError(item, "string")
					}
					out = append(out, s)
				}
				*target = out
			default:
				return typeError(value, "[]string")
			}
			return nil
		},
	}
}

func IntField(target *int) Field {
	return fieldFunc{
		get: func() any { return *target },
		set: func(value any) error {
			if value == nil {
				*target = 0
				return nil
			}
			f, ok := asFloat(value)
			if !ok || f != math.Trunc(f) {
				return typeError(value, "int")
			}
			*target = int(f)
			return nil
		},
	}
}

func FloatField(target *float64) Field {
	return fieldFunc{
		get: func() any { return *target },
		set: func(value any) error {
			if value == nil {
				*target = 0
				return nil
			}
			f, ok := asFloat(value)
			if !ok {
				return typeError(value, "float64")
			}
			*target = f
			return nil
		},
	}
}

func BoolField(target *bool) Field {
	return fieldFunc{
		get: func() any { return *target },
		set: func(value any) error {
			switch v := value.(type) {
			case nil:
				*target = false
			case bool:
				*target = v
			default:
				return typeError(value, "bool")
			}
			return nil
		},
	}
}

// TimeField accepts time values and RFC3339 strings.
func TimeField(target *time.Time) Field {
	return fieldFunc{
		get: func() any { return *target },
		set: func(value any) error {
			switch v := value.(type) {
			case nil:
				*target = time.Time{}
			case time.Time:
				*target = v.UTC()
			case string:
				t, err := time.Parse(time.RFC3339Nano, v)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrFieldType, err)
				}
				*target = t.UTC()
			default:
				return typeError(value, "time.Time")
			}
			return nil
		},
	}
}

// AnyField stores whatever value it is given.
func AnyField(target *any) Field {
	return fieldFunc{
		get: func() any { return cloneValue(*target) },
		set: func(value any) error {
			*target = cloneValue(value)
			return nil
		},
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func typeError(value any, want string) error {
	return fmt.Errorf("%w: got %T, want %s", ErrFieldType, value, want)
}

// cloneValue deep copies the container shapes payloads are decoded into.
func cloneValue(value any) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case *Payload:
		return v.Clone()
	default:
		return v
	}
}
