package protocol

import "testing"

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Type: FrameData, ID: 42, Payload: []byte("hello")}
	encoded := Encode(f)

	got, ok := DecodeFrame(encoded)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if got.Type != f.Type || got.ID != f.ID || string(got.Payload) != string(f.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestFrameDecodeShortIsIgnored(t *testing.T) {
	_, ok := DecodeFrame([]byte{0, 1, 2})
	if ok {
		t.Fatal("expected decode of short frame to fail")
	}
}

func TestFrameDecodeExactHeaderNoPayload(t *testing.T) {
	f := Frame{Type: FrameAck, ID: 7}
	encoded := Encode(f)
	got, ok := DecodeFrame(encoded)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected empty payload, got %v", got.Payload)
	}
	if got.ID != 7 || got.Type != FrameAck {
		t.Fatalf("unexpected frame: %+v", got)
	}
}
