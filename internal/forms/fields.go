package forms

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/security"
)

// FieldErrors maps a field's JSON name to the message shown next to it.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + fe[k]
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) Unwrap() error { return common.ErrorValidation }

func (fe FieldErrors) merge(other FieldErrors) {
	for k, v := range other {
		if _, ok := fe[k]; !ok {
			fe[k] = v
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return security.ValidatePhone(fl.Field().String()) == nil
	})
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// Structural validates f against its struct tags.
func Structural(f Form) FieldErrors {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": err.Error()}
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		key := fieldKey(fe.Namespace())
		if _, ok := out[key]; !ok {
			out[key] = message(fe)
		}
	}
	return out
}

// fieldKey turns a validator namespace such as
// "ServiceRequest.Contact.email" into "email". Go type and embedded field
// names are capitalized and JSON names are not.
func fieldKey(ns string) string {
	parts := strings.Split(ns, ".")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" && !unicode.IsUpper([]rune(p)[0]) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

func message(fe validator.FieldError) string {
	name := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required", "required_if":
		return name + " is required"
	case "email":
		return "enter a valid email address"
	case "phone":
		return "enter a valid phone number"
	case "http_url":
		return "enter a valid web address"
	case "datetime":
		return "enter a date as YYYY-MM-DD"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	}
	return name + " is not valid"
}

// textField is one string field reached by walkText.
type textField struct {
	key      string
	value    reflect.Value
	required bool
	maxLen   int
}

// walkText visits every string field of f, including those of embedded
// and non-nil nested structs. Keys are dotted JSON names.
func walkText(f Form) []textField {
	var out []textField
	walkStruct(reflect.ValueOf(f).Elem(), "", &out)
	return out
}

func walkStruct(v reflect.Value, prefix string, out *[]textField) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := v.Field(i)
		name := jsonName(sf)
		if name == "" {
			continue
		}

		switch {
		case sf.Anonymous && fv.Kind() == reflect.Struct:
			walkStruct(fv, prefix, out)
		case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
			if !fv.IsNil() {
				walkStruct(fv.Elem(), prefix+name+".", out)
			}
		case fv.Kind() == reflect.Struct:
			walkStruct(fv, prefix+name+".", out)
		case fv.Kind() == reflect.String:
			tag := sf.Tag.Get("validate")
			*out = append(*out, textField{
				key:      prefix + name,
				value:    fv,
				required: hasRule(tag, "required"),
				maxLen:   maxRule(tag),
			})
		}
	}
}

func hasRule(tag, rule string) bool {
	for _, r := range strings.Split(tag, ",") {
		if r == rule {
			return true
		}
	}
	return false
}

func maxRule(tag string) int {
	for _, r := range strings.Split(tag, ",") {
		if v, ok := strings.CutPrefix(r, "max="); ok {
			n, err := strconv.Atoi(v)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// TextValues returns every string field of f keyed by its dotted JSON name.
func TextValues(f Form) map[string]string {
	out := map[string]string{}
	for _, tf := range walkText(f) {
		out[tf.key] = tf.value.String()
	}
	return out
}

// OptionalKeys lists the string fields of f that are not required.
func OptionalKeys(f Form) []string {
	var out []string
	for _, tf := range walkText(f) {
		if !tf.required {
			out = append(out, tf.key)
		}
	}
	return out
}

// Sanitize cleans every string field of f in place. Email fields are
// normalized as addresses; the rest keep their tag's length limit.
func Sanitize(f Form) {
	for _, tf := range walkText(f) {
		if tf.key == "email" || strings.HasSuffix(tf.key, ".email") {
			tf.value.SetString(security.SanitizeEmail(tf.value.String()))
			continue
		}
		tf.value.SetString(security.SanitizeString(tf.value.String(), tf.maxLen))
	}
}
