package modbusdecode

import (
	"math"
	"testing"
)

func TestRegisterCount(t *testing.T) {
	cases := []struct {
		enc  Encoding
		want int
	}{
		{U16, 1},
		{S16, 1},
		{U16Scaled, 1},
		{S16Scaled, 1},
		{U32ABCD, 2},
		{F32ScaledCDAB, 2},
	}
	for _, c := range cases {
		if got := RegisterCount(c.enc); got != c.want {
			t.Errorf("RegisterCount(%s) = %d, want %d", c.enc, got, c.want)
		}
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		enc  Encoding
		regs []uint16
		k, b float64
		want float64
	}{
		{"u16", U16, []uint16{1234}, 0, 0, 1234},
		{"s16 negative", S16, []uint16{0xFFFF}, 0, 0, -1},
		{"u16 scaled", U16Scaled, []uint16{100}, 0.1, 5, 15},
		{"s16 scaled negative", S16Scaled, []uint16{0xFFFE}, 2, 1, -3},
		{"u32 abcd", U32ABCD, []uint16{0x0001, 0x0000}, 0, 0, 65536},
		{"u32 cdab", U32CDAB, []uint16{0x0000, 0x0001}, 0, 0, 65536},
		{"s32 abcd negative", S32ABCD, []uint16{0xFFFF, 0xFFFF}, 0, 0, -1},
		{"u32 scaled abcd", U32ScaledABCD, []uint16{0x0000, 0x0064}, 0.01, 0, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Decode(c.enc, c.regs, c.k, c.b)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if got != c.want {
				t.Errorf("Decode() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestDecodeFloat32(t *testing.T) {
	bits := math.Float32bits(3.5)
	hi := uint16(bits >> 16)
	lo := uint16(bits & 0xFFFF)

	got, err := Decode(F32ABCD, []uint16{hi, lo}, 0, 0)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got != 3.5 {
		t.Errorf("Decode(F32ABCD) = %v, want 3.5", got)
	}

	got, err = Decode(F32CDAB, []uint16{lo, hi}, 0, 0)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got != 3.5 {
		t.Errorf("Decode(F32CDAB) = %v, want 3.5", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(U32ABCD, []uint16{1}, 0, 0); err == nil {
		t.Error("expected error for short register slice")
	}
	if _, err := Decode(Encoding("bogus"), []uint16{1, 2}, 0, 0); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestRegistersToBytes(t *testing.T) {
	got := RegistersToBytes([]uint16{0x1234, 0xABCD})
	want := []byte{0x12, 0x34, 0xAB, 0xCD}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}
