package modrefresh

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/golobby/cast"
)

const tagDefault = "default"

// ConfigValidator is implemented by configuration structs with custom checks.
// LoadConfig calls Validate after defaults are applied.
type ConfigValidator interface {
	Validate() error
}

// ProcessConfigDefaults applies `default:"value"` struct tags to fields that
// still hold their zero value. Scalars are converted with golobby/cast,
// durations with time.ParseDuration and slices of strings from a JSON array:
//
//	type Config struct {
//	    Workers int           `default:"2"`
//	    Timeout time.Duration `default:"90s"`
//	    Caps    []string      `default:"[\"net/http\"]"`
//	}
func ProcessConfigDefaults(cfg any) error {
	if cfg == nil {
		return ErrConfigNil
	}

	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrConfigNotPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrConfigNotStruct
	}

	return processStructDefaults(v)
}

func processStructDefaults(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}

		defaultVal, hasDefault := fieldType.Tag.Lookup(tagDefault)
		if !hasDefault || !field.IsZero() {
			continue
		}

		if err := setDefaultValue(field, defaultVal); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setDefaultValue(field reflect.Value, defaultVal string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(defaultVal)
		if err != nil {
			return fmt.Errorf("failed to parse duration value: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: slice of %s", ErrUnsupportedTypeForDefault, field.Type().Elem().Kind())
		}
		var strs []string
		if err := json.Unmarshal([]byte(defaultVal), &strs); err != nil {
			return fmt.Errorf("failed to unmarshal JSON array: %w", err)
		}
		slice := reflect.MakeSlice(field.Type(), len(strs), len(strs))
		for i, s := range strs {
			slice.Index(i).SetString(s)
		}
		field.Set(slice)
		return nil
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		converted, err := cast.FromType(defaultVal, field.Type())
		if err != nil {
			return fmt.Errorf("cannot convert %q to %v: %w", defaultVal, field.Type(), err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
}

// ValidateConfig applies defaults and runs the struct's own Validate method.
func ValidateConfig(cfg any) error {
	if err := ProcessConfigDefaults(cfg); err != nil {
		return fmt.Errorf("failed to process defaults: %w", err)
	}
	if validator, ok := cfg.(ConfigValidator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
