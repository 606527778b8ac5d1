// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagBinder is a flag group that registers its own flags, such as the
// network flags every register command shares. [BindFlags] calls
// AddFlags on any exported struct field whose pointer implements it.
type FlagBinder interface {
	AddFlags(flagSet *pflag.FlagSet)
}

// FlagsFromParams returns a flag set bound to the tagged fields of
// params, a pointer to a struct. It panics when params cannot be
// bound, which is a bug in the command definition.
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers a flag for every tagged field of params, which
// must be a pointer to a struct. A field is bound when it carries
// flag:"name" or flag:"name,n" (with a one-letter shorthand); desc
// gives its help text and default its initial value. Supported field
// types are string, []string, bool, uint64 and time.Duration.
// Exported embedded structs are walked recursively; unexported fields
// are never bound.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindStruct(value.Elem(), flagSet)
}

// flagSpec is a field's flag tag set.
type flagSpec struct {
	name, shorthand, usage, initial string
}

func specOf(field reflect.StructField) (flagSpec, bool) {
	tag := field.Tag.Get("flag")
	if tag == "" {
		return flagSpec{}, false
	}
	name, shorthand, _ := strings.Cut(tag, ",")
	return flagSpec{name: name, shorthand: shorthand, usage: field.Tag.Get("desc"), initial: field.Tag.Get("default")}, true
}

func bindStruct(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	structType := structValue.Type()
	for i := range structType.NumField() {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldValue := structValue.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if binder, ok := fieldValue.Addr().Interface().(FlagBinder); ok {
				binder.AddFlags(flagSet)
				continue
			}
			if field.Anonymous {
				if err := bindStruct(fieldValue, flagSet); err != nil {
					return fmt.Errorf("embedded %s: %w", field.Name, err)
				}
				continue
			}
		}
		spec, ok := specOf(field)
		if !ok {
			continue
		}
		if err := bindField(fieldValue, flagSet, spec); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

func bindField(fieldValue reflect.Value, flagSet *pflag.FlagSet, spec flagSpec) error {
	switch target := fieldValue.Addr().Interface().(type) {
	case *string:
		flagSet.StringVarP(target, spec.name, spec.shorthand, spec.initial, spec.usage)
		return nil
	case *[]string:
		var initial []string
		if spec.initial != "" {
			initial = strings.Split(spec.initial, ",")
		}
		flagSet.StringSliceVarP(target, spec.name, spec.shorthand, initial, spec.usage)
		return nil
	case *bool:
		return bindParsed(target, spec, strconv.ParseBool, flagSet.BoolVarP)
	case *uint64:
		return bindParsed(target, spec, func(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }, flagSet.Uint64VarP)
	case *time.Duration:
		return bindParsed(target, spec, time.ParseDuration, flagSet.DurationVarP)
	default:
		return fmt.Errorf("unsupported type %s for flag --%s", fieldValue.Type(), spec.name)
	}
}

// bindParsed binds target with its default tag parsed by parse; an
// empty tag leaves the zero value.
func bindParsed[T any](target *T, spec flagSpec, parse func(string) (T, error), bind func(*T, string, string, T, string)) error {
	var initial T
	if spec.initial != "" {
		parsed, err := parse(spec.initial)
		if err != nil {
			return fmt.Errorf("default for --%s: %w", spec.name, err)
		}
		initial = parsed
	}
	bind(target, spec.name, spec.shorthand, initial, spec.usage)
	return nil
}
