package request

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// ToFormBody converts a JSON like map to form body map.
// Slices of strings and string maps are flattened, nested structures are encoded as JSON,
// any other type is mapped to string.
func ToFormBody(in map[string]any) (out map[string]string) {
	out = make(map[string]string)
	for k, v := range in {
		if v == nil {
			out[k] = ""
			continue
		}
		switch v := v.(type) {
		case []string:
			for i, s := range v {
				out[fmt.Sprintf("%s[%d]", k, i)] = s
			}
		case map[string]string:
			for i, s := range v {
				out[fmt.Sprintf("%s[%s]", k, i)] = s
			}
		default:
			out[k] = castToString(v)
		}
	}
	return out
}

func castToString(v any) string {
	// Structured values
	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if v, err := json.Marshal(v); err != nil {
			panic(fmt.Errorf(`cannot cast %T to string %w`, v, err))
		} else {
			return string(v)
		}
	default:
	}

	// Other types
	if v, err := cast.ToStringE(v); err != nil {
		panic(fmt.Errorf(`cannot cast %T to string %w`, v, err))
	} else {
		return v
	}
}
