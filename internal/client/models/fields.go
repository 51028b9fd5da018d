package models

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/techtrack/internal/common"
)

var ErrIncorrectAssignment = errors.New("field must be name=value")

// FieldsFromArgs builds a body from name=value pairs as typed in the CLI.
// Values are converted to the JSON type the payload of t expects, so
// "year=2019" becomes a number and "title=Calibrate MLC" stays a string.
func FieldsFromArgs(t EntityType, args []string) (Fields, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	kinds := fieldKinds(p)

	f := make(Fields, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrIncorrectAssignment, arg)
		}
		kind, known := kinds[name]
		if !known {
			return nil, fmt.Errorf("%w: unknown field %q for %s", common.ErrInvalidPayload, name, t)
		}
		v, err := convertArg(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidPayload, name, err)
		}
		f[name] = v
	}
	return f, nil
}

// FieldNames lists the JSON field names accepted for t.
func FieldNames(t EntityType) []string {
	p, err := NewPayload(t)
	if err != nil {
		return nil
	}
	typ := reflect.TypeOf(p).Elem()
	names := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		names = append(names, jsonName(typ.Field(i)))
	}
	return names
}

func fieldKinds(p Payload) map[string]reflect.Kind {
	typ := reflect.TypeOf(p).Elem()
	out := make(map[string]reflect.Kind, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		out[jsonName(sf)] = sf.Type.Elem().Kind()
	}
	return out
}

func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	return name
}

func convertArg(kind reflect.Kind, raw string) (any, error) {
	switch kind {
	case reflect.Int64:
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case reflect.Float64:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	default:
		return raw, nil
	}
}
