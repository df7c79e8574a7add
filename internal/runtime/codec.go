package runtime

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// Stream identifies which output stream a frame belongs to.
type Stream byte

const (
	Stdout Stream = 1
	Stderr Stream = 2
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// headerLen is the fixed size of the multiplexed stream header:
// byte 0 is the stream type, bytes 1-3 are reserved, bytes 4-7 carry the
// big-endian payload length.
const headerLen = 8

// Frame is one decoded unit of container output.
type Frame struct {
	Stream  Stream
	Payload []byte
}

// Text decodes the payload as UTF-8, substituting the replacement character
// for invalid sequences. Untrusted program output must never take the
// bridge down, so decoding is total.
func (f Frame) Text() string {
	if utf8.Valid(f.Payload) {
		return string(f.Payload)
	}
	var b strings.Builder
	b.Grow(len(f.Payload))
	for len(f.Payload) > 0 {
		r, size := utf8.DecodeRune(f.Payload)
		b.WriteRune(r)
		f.Payload = f.Payload[size:]
	}
	return b.String()
}

// Demux incrementally parses the container engine's multiplexed attach
// stream. Feed it raw socket reads with Write; pop complete frames with
// Next. Partial frames stay buffered across writes and are never emitted
// twice.
type Demux struct {
	buf []byte
}

// Write appends raw bytes from the attach socket.
func (d *Demux) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame, or ok=false when the buffer holds
// less than a full header plus payload.
func (d *Demux) Next() (Frame, bool) {
	if len(d.buf) < headerLen {
		return Frame{}, false
	}
	payloadLen := int(binary.BigEndian.Uint32(d.buf[4:headerLen]))
	if len(d.buf) < headerLen+payloadLen {
		return Frame{}, false
	}
	frame := Frame{
		Stream:  Stream(d.buf[0]),
		Payload: append([]byte(nil), d.buf[headerLen:headerLen+payloadLen]...),
	}
	d.buf = d.buf[headerLen+payloadLen:]
	return frame, true
}

// Drain pops every complete frame currently buffered.
func (d *Demux) Drain() []Frame {
	var frames []Frame
	for {
		f, ok := d.Next()
		if !ok {
			return frames
		}
		frames = append(frames, f)
	}
}
