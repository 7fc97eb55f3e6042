package cli

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// jsonName is the field's key in the submitted document, or "" when the
// field is not submitted.
func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// lookup finds the field named seg in struct v, descending into embedded
// structs.
func lookup(v reflect.Value, seg string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Tag.Get("json") == "" {
			if fv, ok := lookup(v.Field(i), seg); ok {
				return fv, true
			}
			continue
		}
		if n := jsonName(sf); n != "" && n == seg {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setField assigns raw to the field at the dotted key path of form, for
// example "model.acres". Nil nested structs are allocated on the way.
func setField(form any, key, raw string) error {
	v := reflect.ValueOf(form)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("form is not a struct pointer")
	}
	v = v.Elem()

	segs := strings.Split(key, ".")
	for i, seg := range segs {
		fv, ok := lookup(v, seg)
		if !ok {
			return fmt.Errorf("unknown field %q", strings.Join(segs[:i+1], "."))
		}
		if fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct {
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			fv = fv.Elem()
		}
		if i < len(segs)-1 {
			if fv.Kind() != reflect.Struct {
				return fmt.Errorf("field %q has no subfields", strings.Join(segs[:i+1], "."))
			}
			v = fv
			continue
		}
		return assign(fv, key, raw)
	}
	return nil
}

func assign(fv reflect.Value, key, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %q is not true or false", key, raw)
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64, reflect.Int32:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a whole number", key, raw)
		}
		fv.SetInt(n)
	case reflect.Float64, reflect.Float32:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", key, raw)
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("%s cannot be set from the command line", key)
	}
	return nil
}

// fieldKeys lists the settable dotted keys of form, sorted.
func fieldKeys(form any) []string {
	var out []string
	collectKeys(reflect.TypeOf(form).Elem(), "", &out)
	sort.Strings(out)
	return out
}

func collectKeys(t reflect.Type, prefix string, out *[]string) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Tag.Get("json") == "" {
			collectKeys(sf.Type, prefix, out)
			continue
		}
		name := jsonName(sf)
		if name == "" {
			continue
		}
		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		switch ft.Kind() {
		case reflect.Struct:
			collectKeys(ft, prefix+name+".", out)
		case reflect.String, reflect.Bool, reflect.Int, reflect.Int32, reflect.Int64, reflect.Float32, reflect.Float64:
			*out = append(*out, prefix+name)
		}
	}
}
