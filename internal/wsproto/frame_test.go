// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0

package wsproto

import "testing"

func TestEncodeDecodeRoundTripUnmasked(t *testing.T) {
	encoded, err := Encode(OpText, []byte("hi"), false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, n, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("expected to consume %d bytes, got %d", len(encoded), n)
	}
	if !frame.Fin || frame.Opcode != OpText || string(frame.Payload) != "hi" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestDecodeMaskedClientFrame(t *testing.T) {
	// FIN + text opcode, masked, length 5, mask key 37 fa 21 3d, masked payload
	// 7f 9f 4d 51 58 decodes to "Hello".
	raw := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	frame, n, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("expected to consume %d bytes, got %d", len(raw), n)
	}
	if string(frame.Payload) != "Hello" {
		t.Fatalf("expected payload %q, got %q", "Hello", frame.Payload)
	}
	if !frame.Masked {
		t.Fatal("expected frame to be reported as masked")
	}
}

func TestDecodeIncompleteFrameReturnsNil(t *testing.T) {
	frame, n, err := Decode([]byte{0x81})
	if frame != nil || n != 0 || err != nil {
		t.Fatalf("expected incomplete-frame sentinel, got %+v %d %v", frame, n, err)
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	raw := make([]byte, 10)
	raw[0] = 0x82
	raw[1] = 127
	// length field set larger than MaxFramePayload
	for i := 2; i < 10; i++ {
		raw[i] = 0xFF
	}
	if _, _, err := Decode(raw); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestEncodeLongPayloadUsesExtendedLength(t *testing.T) {
	payload := make([]byte, 70000)
	encoded, err := Encode(OpBinary, payload, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, n, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(encoded) || len(frame.Payload) != len(payload) {
		t.Fatalf("round trip mismatch: consumed=%d payload=%d", n, len(frame.Payload))
	}
}
