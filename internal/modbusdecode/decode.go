// Package modbusdecode decodes raw Modbus register words into typed,
// scaled values. It is shared by internal/modbusrtu and
// internal/modbustcp, which duplicate this logic nearly verbatim in
// the original service (loggers/modbus_rtu/worker.py and
// loggers/modbus_tcp/worker.py _decode_registers).
package modbusdecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoding identifies how a variable's register(s) should be
// interpreted, matching the 16-way ModbusValueEncoding enum shared by
// the RTU and TCP logger configs.
type Encoding string

const (
	U16            Encoding = "u16"
	S16            Encoding = "s16"
	U16Scaled      Encoding = "u16_scaled"
	S16Scaled      Encoding = "s16_scaled"
	U32ABCD        Encoding = "u32_abcd"
	U32CDAB        Encoding = "u32_cdab"
	S32ABCD        Encoding = "s32_abcd"
	S32CDAB        Encoding = "s32_cdab"
	U32ScaledABCD  Encoding = "u32_scaled_abcd"
	U32ScaledCDAB  Encoding = "u32_scaled_cdab"
	S32ScaledABCD  Encoding = "s32_scaled_abcd"
	S32ScaledCDAB  Encoding = "s32_scaled_cdab"
	F32ABCD        Encoding = "f32_abcd"
	F32CDAB        Encoding = "f32_cdab"
	F32ScaledABCD  Encoding = "f32_scaled_abcd"
	F32ScaledCDAB  Encoding = "f32_scaled_cdab"
)

// RegisterCount returns how many 16-bit registers an encoding spans:
// 1 for the u16/s16 variants, 2 for everything 32-bit wide.
func RegisterCount(enc Encoding) int {
	switch enc {
	case U16, S16, U16Scaled, S16Scaled:
		return 1
	default:
		return 2
	}
}

func makeU32ABCD(hi, lo uint16) uint32 {
	return (uint32(hi) << 16) | uint32(lo)
}

// Decode converts the registers read for one variable into a float64,
// applying the encoding's sign/width/byte-order interpretation and, for
// "_scaled" encodings, the linear transform y = k*x + b.
func Decode(enc Encoding, registers []uint16, k, b float64) (float64, error) {
	switch enc {
	case U16:
		return float64(registers[0]), nil
	case S16:
		return float64(int16(registers[0])), nil
	case U16Scaled:
		return k*float64(registers[0]) + b, nil
	case S16Scaled:
		return k*float64(int16(registers[0])) + b, nil
	}

	if len(registers) < 2 {
		return 0, fmt.Errorf("modbusdecode: encoding %s requires 2 registers, got %d", enc, len(registers))
	}
	hi, lo := registers[0], registers[1]

	switch enc {
	case U32ABCD:
		return float64(makeU32ABCD(hi, lo)), nil
	case U32CDAB:
		return float64(makeU32ABCD(lo, hi)), nil
	case S32ABCD:
		return float64(int32(makeU32ABCD(hi, lo))), nil
	case S32CDAB:
		return float64(int32(makeU32ABCD(lo, hi))), nil
	case U32ScaledABCD:
		return k*float64(makeU32ABCD(hi, lo)) + b, nil
	case U32ScaledCDAB:
		return k*float64(makeU32ABCD(lo, hi)) + b, nil
	case S32ScaledABCD:
		return k*float64(int32(makeU32ABCD(hi, lo))) + b, nil
	case S32ScaledCDAB:
		return k*float64(int32(makeU32ABCD(lo, hi))) + b, nil
	case F32ABCD:
		return float64(math.Float32frombits(makeU32ABCD(hi, lo))), nil
	case F32CDAB:
		return float64(math.Float32frombits(makeU32ABCD(lo, hi))), nil
	case F32ScaledABCD:
		return k*float64(math.Float32frombits(makeU32ABCD(hi, lo))) + b, nil
	case F32ScaledCDAB:
		return k*float64(math.Float32frombits(makeU32ABCD(lo, hi))) + b, nil
	}

	return 0, fmt.Errorf("modbusdecode: unknown encoding %q", enc)
}

// RegistersToBytes is a convenience used by callers that need the raw
// big-endian wire bytes for a register slice (e.g. for logging).
func RegistersToBytes(registers []uint16) []byte {
	out := make([]byte, len(registers)*2)
	for i, r := range registers {
		binary.BigEndian.PutUint16(out[i*2:i*2+2], r)
	}
	return out
}
