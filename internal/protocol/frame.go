// Package protocol implements the wire frame codec — a 9-byte type+id
// header wrapping a protocol-encoded payload — and the two pluggable
// application-level protocols, SimpleText and MsgPack, that decode that
// payload into a method name and opaque bytes.
package protocol

import "encoding/binary"

// FrameType is the first byte of every wire frame.
type FrameType uint8

const (
	FrameData        FrameType = 0
	FrameAck         FrameType = 1
	FramePrepare     FrameType = 2
	FramePrepareAck  FrameType = 3
	FrameCommit      FrameType = 4
	FrameComplete    FrameType = 5
)

// HeaderSize is the fixed 1 (type) + 8 (id, big-endian) byte frame header.
const HeaderSize = 9

// Frame is a decoded wire frame: type, id (u64 big-endian on the wire), and
// an opaque payload. For FrameData, payload is a protocol-encoded message;
// for the ACK/PREPARE/COMMIT family, payload is unused (empty).
type Frame struct {
	Type    FrameType
	ID      uint64
	Payload []byte
}

// Encode serializes a Frame into its 9-byte-header wire form.
func Encode(f Frame) []byte {
	out := make([]byte, HeaderSize+len(f.Payload))
	out[0] = byte(f.Type)
	binary.BigEndian.PutUint64(out[1:HeaderSize], f.ID)
	copy(out[HeaderSize:], f.Payload)
	return out
}

// DecodeFrame parses the 9-byte header. Frames shorter than HeaderSize are
// rejected with ok false; callers must check it.
func DecodeFrame(data []byte) (Frame, bool) {
	if len(data) < HeaderSize {
		return Frame{}, false
	}
	f := Frame{
		Type: FrameType(data[0]),
		ID:   binary.BigEndian.Uint64(data[1:HeaderSize]),
	}
	if len(data) > HeaderSize {
		f.Payload = data[HeaderSize:]
	}
	return f, true
}
