package easyserial

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// findFieldConfig looks up a field configuration by its split index,
// mirroring _find_field_cfg.
func findFieldConfig(fields []FieldConfig, index int) (FieldConfig, bool) {
	for _, f := range fields {
		if f.Index == index {
			return f, true
		}
	}
	return FieldConfig{}, false
}

// coerceValue converts a raw string to the type named by cfg, mirroring
// _coerce_value. Supported types: string, int, float, datetime/date/time
// (which require Format, translated from Python strptime to Go's
// reference-time layout by the caller's configuration).
func coerceValue(raw string, cfg FieldConfig, hasCfg bool) (any, error) {
	if !hasCfg {
		return raw, nil
	}

	t := strings.ToLower(cfg.Type)
	if t == "" {
		t = "string"
	}

	switch t {
	case "string":
		return raw, nil
	case "int":
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "float":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "datetime", "date", "time":
		if cfg.Format == "" {
			return nil, fmt.Errorf("field %d: format is required for %s", cfg.Index, t)
		}
		return time.Parse(cfg.Format, raw)
	default:
		return raw, nil
	}
}

// ParsePayloadText splits payloadText by settings.Separator and
// extracts/coerces each configured field into a named value, mirroring
// parse_payload_text.
func ParsePayloadText(payloadText string, settings ParserSettings) (map[string]any, error) {
	parts := strings.Split(payloadText, settings.Separator)
	result := make(map[string]any, len(settings.Fields))

	for _, field := range settings.Fields {
		if field.Index < 0 || field.Index >= len(parts) {
			return nil, fmt.Errorf("variable %q refers to index %d, but only %d fields present",
				field.Name, field.Index, len(parts))
		}

		rawValue := strings.TrimSpace(parts[field.Index])
		fieldCfg, ok := findFieldConfig(settings.Fields, field.Index)
		value, err := coerceValue(rawValue, fieldCfg, ok)
		if err != nil {
			return nil, err
		}
		result[field.Name] = value
	}

	return result, nil
}
