package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ToMap converts a record into its camelCase field map.
func ToMap(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("models: encode record: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("models: encode record: %w", err)
	}
	return out, nil
}

// Decode builds a T from a camelCase field map. Values are converted weakly so
// rows read back from SQL drivers (int64 numbers, JSON text columns, timestamp
// strings) decode into the same shapes as in-process records.
func Decode[T any](fields map[string]any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToTimeHook,
			jsonTextHook,
		),
		Result: &out,
	})
	if err != nil {
		return out, fmt.Errorf("models: build decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return out, fmt.Errorf("models: decode %T: %w", out, err)
	}
	return out, nil
}

// Merge overlays fields onto the map form of base and decodes the result.
func Merge[T any](base T, fields map[string]any) (T, error) {
	current, err := ToMap(base)
	if err != nil {
		return base, err
	}
	for k, v := range fields {
		current[k] = v
	}
	return Decode[T](current)
}

var timeType = reflect.TypeOf(time.Time{})

func stringToTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != timeType {
		return data, nil
	}
	value := strings.TrimSpace(data.(string))
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", value)
}

// jsonTextHook decodes JSON text columns into slices, maps and structs.
func jsonTextHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	var raw []byte
	switch v := data.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return data, nil
	}
	switch to.Kind() {
	case reflect.Slice, reflect.Map, reflect.Struct:
	default:
		return data, nil
	}
	if to == timeType || (to.Kind() == reflect.Slice && to.Elem().Kind() == reflect.Uint8) {
		return data, nil
	}
	if len(raw) == 0 {
		return reflect.Zero(to).Interface(), nil
	}
	target := reflect.New(to)
	if err := json.Unmarshal(raw, target.Interface()); err != nil {
		return nil, fmt.Errorf("decode json column: %w", err)
	}
	return target.Elem().Interface(), nil
}
