package mboxcounter

// Preamble is the single marker byte that opens every frame.
const Preamble = 0x27

// Framer extracts preamble+length-prefixed frames from a byte stream.
// Ported from loggers/mbox_counter/framer.py.
type Framer struct {
	buf []byte
}

// Feed appends data to the internal buffer and returns any complete
// frames extracted from it (including the preamble and length byte).
func (f *Framer) Feed(data []byte) [][]byte {
	f.buf = append(f.buf, data...)

	var frames [][]byte
	for {
		idx := indexOf(f.buf, Preamble)
		if idx == -1 {
			f.buf = f.buf[:0]
			return frames
		}
		if idx > 0 {
			f.buf = f.buf[idx:]
		}

		if len(f.buf) < 2 {
			return frames
		}

		length := int(f.buf[1])
		frameLen := 4 + length
		if frameLen <= 0 {
			f.buf = f.buf[1:]
			continue
		}
		if len(f.buf) < frameLen {
			return frames
		}

		frame := make([]byte, frameLen)
		copy(frame, f.buf[:frameLen])
		frames = append(frames, frame)
		f.buf = f.buf[frameLen:]
	}
}

func indexOf(buf []byte, b byte) int {
	for i, v := range buf {
		if v == b {
			return i
		}
	}
	return -1
}
