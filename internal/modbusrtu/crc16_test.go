package modbusrtu

import "testing"

// A correctly CRC-appended Modbus RTU frame has CRC16 == 0 when
// recomputed over the frame including its own checksum bytes
// (low byte first, then high byte) — the standard self-check used to
// validate a CRC-16/MODBUS implementation without a fixed vector.
func TestCRC16SelfCheck(t *testing.T) {
	frames := [][]byte{
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A},
		{0x11, 0x06, 0x00, 0x01, 0x00, 0x17},
		{0x01},
		{},
	}

	for _, frame := range frames {
		crc := CRC16(frame)
		appended := append(append([]byte{}, frame...), byte(crc&0xFF), byte(crc>>8))
		if check := CRC16(appended); check != 0 {
			t.Errorf("CRC16 self-check failed for %v: got %#04x, want 0", frame, check)
		}
	}
}

func TestCRC16Deterministic(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	a := CRC16(data)
	b := CRC16(data)
	if a != b {
		t.Errorf("CRC16 not deterministic: %#04x != %#04x", a, b)
	}
}
