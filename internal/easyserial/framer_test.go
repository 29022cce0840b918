package easyserial

import (
	"bytes"
	"testing"
)

func TestDecodeEscapedBytes(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{`\n`, []byte{0x0A}},
		{`\r\n`, []byte{0x0D, 0x0A}},
		{`\x02`, []byte{0x02}},
		{`AB`, []byte("AB")},
	}
	for _, c := range cases {
		got := DecodeEscapedBytes(c.in, true)
		if !bytes.Equal(got, c.want) {
			t.Errorf("DecodeEscapedBytes(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDecodeEscapedBytesAbsent(t *testing.T) {
	if got := DecodeEscapedBytes("anything", false); got != nil {
		t.Errorf("expected nil for absent pattern, got %v", got)
	}
}

func TestFramerFeedSingleFrame(t *testing.T) {
	framer, err := NewFramer("", false, `\n`)
	if err != nil {
		t.Fatalf("NewFramer returned error: %v", err)
	}

	frames := framer.Feed([]byte("hello;1;2\n"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if string(frames[0]) != "hello;1;2" {
		t.Errorf("frame = %q", frames[0])
	}
}

func TestFramerFeedWithPreamble(t *testing.T) {
	framer, err := NewFramer(`\x02`, true, `\x03`)
	if err != nil {
		t.Fatalf("NewFramer returned error: %v", err)
	}

	data := append([]byte{0x02}, []byte("payload")...)
	data = append(data, 0x03)

	frames := framer.Feed(data)
	if len(frames) != 1 || string(frames[0]) != "payload" {
		t.Fatalf("unexpected frames: %v", frames)
	}
}

func TestFramerFeedIncomplete(t *testing.T) {
	framer, err := NewFramer("", false, `\n`)
	if err != nil {
		t.Fatalf("NewFramer returned error: %v", err)
	}

	if frames := framer.Feed([]byte("no terminator yet")); len(frames) != 0 {
		t.Errorf("expected no frames before a terminator arrives, got %v", frames)
	}

	frames := framer.Feed([]byte("\n"))
	if len(frames) != 1 || string(frames[0]) != "no terminator yet" {
		t.Fatalf("unexpected frames after terminator arrived: %v", frames)
	}
}

func TestNewFramerRejectsEmptyTerminator(t *testing.T) {
	if _, err := NewFramer("", false, ""); err == nil {
		t.Error("expected error for empty terminator")
	}
}
