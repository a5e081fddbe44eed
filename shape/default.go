package shape

import (
	"reflect"
	"strconv"
)

// parseDefaultLiteral converts a member tag's default-value literal into a
// reflect.Value of the target type. Only scalar kinds are supported (the
// tag carries a single string token, never a composite literal); an
// unparsable or unsupported literal yields the zero Value, which callers
// treat the same as "no constructor/attribute default" and fall through to
// the platform default.
func parseDefaultLiteral(literal string, t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(literal).Convert(t)
	case reflect.Bool:
		b, err := strconv.ParseBool(literal)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(b).Convert(t)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return reflect.Value{}
		}
		v := reflect.New(t).Elem()
		v.SetInt(n)
		return v
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(literal, 10, 64)
		if err != nil {
			return reflect.Value{}
		}
		v := reflect.New(t).Elem()
		v.SetUint(n)
		return v
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return reflect.Value{}
		}
		v := reflect.New(t).Elem()
		v.SetFloat(f)
		return v
	default:
		// Pointers, slices, maps, structs: the tag only ever carries a
		// scalar literal, so these fall back to the platform (zero-value)
		// default rather than attempting to parse one.
		return reflect.Value{}
	}
}
