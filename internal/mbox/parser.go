package mbox

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
)

// LabelRecord is a parsed scale/label frame.
// Field order mirrors MboxLabelRecord.
type LabelRecord struct {
	DT         time.Time
	FishType   string
	Size       string
	NWeight    float64
	RWeight    float64
	SNumber    string
}

// ParseLabelFrame decodes and validates a label payload, mirroring
// loggers/mbox/parser.py parse_label_frame. It requires at least 11
// comma-separated columns (stricter than the original's off-by-one
// "< 10" check, which could panic on a 10-column line while still
// indexing column 10 — see DESIGN.md Open Question decisions).
func ParseLabelFrame(payload []byte, encoding string) (LabelRecord, error) {
	text, err := decodeText(payload, encoding)
	if err != nil {
		return LabelRecord{}, fmt.Errorf("decode error: %w", err)
	}
	text = strings.TrimSpace(text)

	parts := strings.Split(text, ",")
	if len(parts) < 11 {
		return LabelRecord{}, fmt.Errorf("mbox: expected at least 11 fields, got %d", len(parts))
	}

	dt, err := parseTimestamp(parts[0])
	if err != nil {
		return LabelRecord{}, fmt.Errorf("invalid datetime '%s'", parts[0])
	}

	nWeight, err := strconv.ParseFloat(strings.TrimSpace(parts[9]), 64)
	if err != nil {
		return LabelRecord{}, fmt.Errorf("invalid weight value")
	}
	rWeight, err := strconv.ParseFloat(strings.TrimSpace(parts[10]), 64)
	if err != nil {
		return LabelRecord{}, fmt.Errorf("invalid weight value")
	}

	return LabelRecord{
		DT:       dt,
		FishType: strings.TrimSpace(parts[6]),
		Size:     strings.TrimSpace(parts[8]),
		NWeight:  nWeight,
		RWeight:  rWeight,
		SNumber:  strings.TrimSpace(parts[7]),
	}, nil
}

// decodeText decodes raw bytes using the named text encoding, mirroring
// payload.decode(encoding).strip() — invalid bytes are a hard error,
// not substituted, matching the original's default "ascii" codec.
func decodeText(payload []byte, encName string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(encName))
	if name == "" {
		name = "ascii"
	}

	switch name {
	case "ascii", "us-ascii":
		for _, b := range payload {
			if b > 0x7F {
				return "", fmt.Errorf("invalid ascii byte %#x", b)
			}
		}
		return string(payload), nil
	case "utf-8", "utf8":
		if !utf8.Valid(payload) {
			return "", fmt.Errorf("invalid utf-8 byte sequence")
		}
		return string(payload), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", fmt.Errorf("unknown encoding %q", encName)
	}
	decoded, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		return "", fmt.Errorf("invalid %s byte sequence: %w", encName, err)
	}
	return string(decoded), nil
}

// parseTimestamp parses the "%Y%m%d%H%M%S%f" layout used by the
// original label format: 14 fixed digits of date/time followed by a
// variable-length fractional-second component (Python's strptime %f
// accepts 1-6 digits).
func parseTimestamp(raw string) (time.Time, error) {
	if len(raw) < 14 {
		return time.Time{}, fmt.Errorf("timestamp too short: %q", raw)
	}

	datePart := raw[:14]
	fracPart := raw[14:]

	base, err := time.Parse("20060102150405", datePart)
	if err != nil {
		return time.Time{}, err
	}

	if fracPart == "" {
		return base, nil
	}

	for len(fracPart) < 6 {
		fracPart += "0"
	}
	fracPart = fracPart[:6]

	micros, err := strconv.Atoi(fracPart)
	if err != nil {
		return time.Time{}, err
	}

	return base.Add(time.Duration(micros) * time.Microsecond), nil
}
