package starlark

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ConvertToStarlark converts a Go value from a render context to a Starlark
// value. Maps become dicts, slices become lists and structs become structs
// with one field per exported Go field. Values with no Starlark counterpart
// are converted to their string form.
func ConvertToStarlark(val any) starlark.Value {
	if val == nil {
		return starlark.None
	}

	switch v := val.(type) {
	case starlark.Value:
		return v
	case string:
		return starlark.String(v)
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return starlark.MakeInt64(i)
		}
		if f, err := v.Float64(); err == nil {
			return starlark.Float(f)
		}
		return starlark.String(v.String())
	case []any:
		items := make([]starlark.Value, len(v))
		for i, item := range v {
			items[i] = ConvertToStarlark(item)
		}
		return starlark.NewList(items)
	case map[string]any:
		dict := starlark.NewDict(len(v))
		for _, key := range sortedKeys(v) {
			_ = dict.SetKey(starlark.String(key), ConvertToStarlark(v[key]))
		}
		return dict
	case fmt.Stringer:
		return starlark.String(v.String())
	}
	return reflectToStarlark(reflect.ValueOf(val))
}

func reflectToStarlark(rv reflect.Value) starlark.Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return starlark.None
		}
		return ConvertToStarlark(rv.Elem().Interface())
	case reflect.String:
		return starlark.String(rv.String())
	case reflect.Bool:
		return starlark.Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float())
	case reflect.Slice, reflect.Array:
		items := make([]starlark.Value, rv.Len())
		for i := range items {
			items[i] = ConvertToStarlark(rv.Index(i).Interface())
		}
		return starlark.NewList(items)
	case reflect.Map:
		dict := starlark.NewDict(rv.Len())
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			_ = dict.SetKey(ConvertToStarlark(k.Interface()), ConvertToStarlark(rv.MapIndex(k).Interface()))
		}
		return dict
	case reflect.Struct:
		fields := make(starlark.StringDict)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			fields[fieldName(f)] = ConvertToStarlark(rv.Field(i).Interface())
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, fields)
	}
	return starlark.String(fmt.Sprint(rv.Interface()))
}

// fieldName uses the json tag name when there is one, so templates see the
// same keys as serialized data.
func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ConvertFromStarlark converts a Starlark value back to plain Go values.
func ConvertFromStarlark(val starlark.Value) any {
	if val == nil || val == starlark.None {
		return nil
	}

	switch v := val.(type) {
	case starlark.String:
		return string(v)
	case Markup:
		return string(v)
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i
		}
		// For very large integers, convert to string
		return v.String()
	case starlark.Float:
		return float64(v)
	case starlark.Bool:
		return bool(v)
	case *starlark.List:
		items := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			items[i] = ConvertFromStarlark(v.Index(i))
		}
		return items
	case starlark.Tuple:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = ConvertFromStarlark(item)
		}
		return items
	case *starlark.Dict:
		dict := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			if keyStr, ok := item[0].(starlark.String); ok {
				dict[string(keyStr)] = ConvertFromStarlark(item[1])
			} else {
				dict[item[0].String()] = ConvertFromStarlark(item[1])
			}
		}
		return dict
	default:
		return val.String()
	}
}

// WrapContext converts a render context into Starlark globals.
func WrapContext(ctx map[string]any) starlark.StringDict {
	wrapped := make(starlark.StringDict, len(ctx))
	for key, value := range ctx {
		wrapped[key] = ConvertToStarlark(value)
	}
	return wrapped
}
