package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates structs using `validate` tags.
//
// Supported rules: required, min=N, max=N (length for strings, slices and
// maps) and oneof=a|b|c (strings).
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return fmt.Errorf("validate expects a struct, got nil")
		}
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			if err := v.Validate(field.Interface()); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("validate")
		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldName(fieldType), err)
		}
	}

	return nil
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) error {
	for _, rule := range strings.Split(tag, ",") {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]
		arg := ""
		if len(parts) == 2 {
			arg = parts[1]
		}

		switch ruleName {
		case "required":
			if field.IsZero() || (hasLen(field) && field.Len() == 0) {
				return fmt.Errorf("field is required")
			}

		case "min", "max":
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("bad %s rule %q", ruleName, arg)
			}
			if !hasLen(field) {
				continue
			}
			if ruleName == "min" && field.Len() < n {
				return fmt.Errorf("minimum length is %d", n)
			}
			if ruleName == "max" && field.Len() > n {
				return fmt.Errorf("maximum length is %d", n)
			}

		case "oneof":
			if field.Kind() != reflect.String || field.String() == "" {
				continue
			}
			allowed := strings.Split(arg, "|")
			found := false
			for _, a := range allowed {
				if field.String() == a {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
			}
		}
	}

	return nil
}

func hasLen(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return true
	}
	return false
}

// fieldName prefers the JSON name so errors match the request body.
func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}
