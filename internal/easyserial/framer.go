package easyserial

import (
	"bytes"
	"fmt"
	"strconv"
)

// DecodeEscapedBytes converts a pattern string containing escape
// sequences (\n \r \t \0 \b \f \v \a \\, \xHH, \uXXXX) into raw bytes.
// Mirrors decode_escaped_bytes. An empty pattern decodes to an empty,
// non-nil byte slice; present says whether a pattern was configured at
// all, and when it is false the result is nil (callers use this to
// distinguish "no preamble configured" from "").
func DecodeEscapedBytes(pattern string, present bool) []byte {
	if !present {
		return nil
	}

	result := make([]byte, 0, len(pattern))
	runes := []rune(pattern)
	n := len(runes)
	i := 0

	for i < n {
		ch := runes[i]
		if ch != '\\' {
			result = append(result, byte(ch))
			i++
			continue
		}

		if i+1 >= n {
			result = append(result, '\\')
			i++
			continue
		}

		nxt := runes[i+1]
		switch nxt {
		case 'n':
			result = append(result, 0x0A)
			i += 2
			continue
		case 'r':
			result = append(result, 0x0D)
			i += 2
			continue
		case 't':
			result = append(result, 0x09)
			i += 2
			continue
		case '0':
			result = append(result, 0x00)
			i += 2
			continue
		case 'b':
			result = append(result, 0x08)
			i += 2
			continue
		case 'f':
			result = append(result, 0x0C)
			i += 2
			continue
		case 'v':
			result = append(result, 0x0B)
			i += 2
			continue
		case 'a':
			result = append(result, 0x07)
			i += 2
			continue
		case '\\':
			result = append(result, '\\')
			i += 2
			continue
		}

		if nxt == 'x' && i+3 < n {
			hexPart := string(runes[i+2 : i+4])
			if value, err := strconv.ParseUint(hexPart, 16, 8); err == nil {
				result = append(result, byte(value))
				i += 4
				continue
			}
			result = append(result, '\\')
			i++
			continue
		}

		if nxt == 'u' && i+5 < n {
			hexPart := string(runes[i+2 : i+6])
			if code, err := strconv.ParseUint(hexPart, 16, 32); err == nil {
				if code <= 255 {
					result = append(result, byte(code))
				} else {
					result = append(result, byte(code&0xFF))
				}
				i += 6
				continue
			}
			result = append(result, '\\')
			i++
			continue
		}

		result = append(result, '\\')
		i++
	}

	return result
}

// Framer extracts payload frames from a byte stream using
// [preamble] PAYLOAD [terminator]. Mirrors EasySerialFramer.
type Framer struct {
	preamble    []byte
	hasPreamble bool
	terminator  []byte
	buf         []byte
}

// NewFramer constructs a Framer. terminator must be non-empty once
// decoded.
func NewFramer(preamble string, hasPreamble bool, terminator string) (*Framer, error) {
	term := DecodeEscapedBytes(terminator, true)
	if len(term) == 0 {
		return nil, fmt.Errorf("terminator must be non-empty string")
	}
	return &Framer{
		preamble:    DecodeEscapedBytes(preamble, hasPreamble),
		hasPreamble: hasPreamble,
		terminator:  term,
	}, nil
}

// Feed appends data to the internal buffer and returns any complete
// payload frames now extractable.
func (f *Framer) Feed(data []byte) [][]byte {
	var frames [][]byte
	if len(data) == 0 {
		return frames
	}

	f.buf = append(f.buf, data...)

	for {
		startIndex := 0

		if f.hasPreamble {
			idx := bytes.Index(f.buf, f.preamble)
			if idx == -1 {
				maxKeep := len(f.preamble) - 1
				if maxKeep > 0 && len(f.buf) > maxKeep {
					f.buf = f.buf[len(f.buf)-maxKeep:]
				}
				return frames
			}
			if idx > 0 {
				f.buf = f.buf[idx:]
			}
			startIndex = len(f.preamble)
		}

		termIdx := indexFrom(f.buf, f.terminator, startIndex)
		if termIdx == -1 {
			return frames
		}

		payload := make([]byte, termIdx-startIndex)
		copy(payload, f.buf[startIndex:termIdx])
		frames = append(frames, payload)

		f.buf = f.buf[termIdx+len(f.terminator):]
	}
}

func indexFrom(buf, sub []byte, from int) int {
	if from > len(buf) {
		return -1
	}
	idx := bytes.Index(buf[from:], sub)
	if idx == -1 {
		return -1
	}
	return idx + from
}
