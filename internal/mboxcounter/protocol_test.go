package mboxcounter

import "testing"

func TestCRC8E5(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"data addr", DataAddr},
		{"single byte", []byte{0x00}},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// CRC8E5 must be deterministic: the same input always
			// yields the same checksum.
			crc1 := CRC8E5(tt.data)
			crc2 := CRC8E5(tt.data)
			if crc1 != crc2 {
				t.Fatalf("CRC8E5 not deterministic: %x != %x", crc1, crc2)
			}
		})
	}
}

func TestBuildAndParseRoundTrip(t *testing.T) {
	req, err := BuildReadRequest(1234)
	if err != nil {
		t.Fatalf("BuildReadRequest: %v", err)
	}
	if req[0] != Preamble {
		t.Fatalf("expected preamble 0x%02X, got 0x%02X", Preamble, req[0])
	}
	if req[2] != CReadReq {
		t.Fatalf("expected command 0x%02X, got 0x%02X", CReadReq, req[2])
	}

	// Build a synthetic response frame for the same serial and verify
	// ParseResponseFrame accepts it.
	data := []byte{0x2A, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00} // total=42, size_dir=1, flags=0
	header := []byte{byte(3 + len(data)), CReadResp, 0xD2, 0x04} // serial 1234 little-endian = D2 04
	hdrCRC := CRC8E5(header)
	dataCRC := CRC8E5(data)

	frame := []byte{Preamble}
	frame = append(frame, header...)
	frame = append(frame, hdrCRC)
	frame = append(frame, data...)
	frame = append(frame, dataCRC)

	parsed, err := ParseResponseFrame(frame)
	if err != nil {
		t.Fatalf("ParseResponseFrame: %v", err)
	}
	if parsed.Serial != 1234 {
		t.Errorf("expected serial 1234, got %d", parsed.Serial)
	}
	if parsed.TotalCount != 42 {
		t.Errorf("expected total 42, got %d", parsed.TotalCount)
	}
}

func TestParseResponseFrameRejectsBadCRC(t *testing.T) {
	data := []byte{0x2A, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}
	header := []byte{byte(3 + len(data)), CReadResp, 0xD2, 0x04}
	hdrCRC := CRC8E5(header)

	frame := []byte{Preamble}
	frame = append(frame, header...)
	frame = append(frame, hdrCRC)
	frame = append(frame, data...)
	frame = append(frame, 0x00) // wrong data CRC

	if _, err := ParseResponseFrame(frame); err == nil {
		t.Fatal("expected error for corrupted data CRC")
	}
}

func TestFramerExtractsMultipleFrames(t *testing.T) {
	f := &Framer{}
	frame1 := []byte{Preamble, 0x01, 0xAA, 0xAB, 0xAC}
	frame2 := []byte{Preamble, 0x02, 0xBB, 0xCC, 0xCD, 0xCE}

	var stream []byte
	stream = append(stream, frame1...)
	stream = append(stream, frame2...)

	frames := f.Feed(stream)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}

func TestFramerClearsOnMissingPreamble(t *testing.T) {
	f := &Framer{}
	f.Feed([]byte{0x01, 0x02, 0x03})
	if len(f.buf) != 0 {
		t.Fatalf("expected buffer cleared when no preamble found, got %d bytes", len(f.buf))
	}
}
