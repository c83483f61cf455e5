// File: internal/h2proto/frame.go
// Package h2proto implements the HTTP/2 cleartext session, stream table,
// flow control, and server push described by the spec's HTTP/2 subsystem.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/http2_handler.cpp's nghttp2-callback
// session, reimplemented as an explicit frame reader/writer since no
// nghttp2 binding is available in the pack; HPACK itself is delegated to
// golang.org/x/net/http2/hpack per spec.md §1's own instruction not to
// hand-roll it.

package h2proto

import (
	"encoding/binary"
	"errors"
	"io"
)

// Preface is the fixed 24-byte connection preface every HTTP/2 cleartext
// client sends before any frame.
const Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

type frameType byte

const (
	frameData         frameType = 0x0
	frameHeaders      frameType = 0x1
	framePriority     frameType = 0x2
	frameRSTStream    frameType = 0x3
	frameSettings     frameType = 0x4
	framePushPromise  frameType = 0x5
	framePing         frameType = 0x6
	frameGoAway       frameType = 0x7
	frameWindowUpdate frameType = 0x8
	frameContinuation frameType = 0x9
)

const (
	flagEndStream  byte = 0x1
	flagEndHeaders byte = 0x4
	flagAck        byte = 0x1
	flagPadded     byte = 0x8
	flagPriority   byte = 0x20
)

// frameHeader is the fixed 9-byte prefix of every HTTP/2 frame.
type frameHeader struct {
	Length   uint32 // 24 bits
	Type     frameType
	Flags    byte
	StreamID uint32 // 31 bits
}

var ErrFrameSizeExceeded = errors.New("h2proto: frame exceeds configured max frame size")

// RST_STREAM error codes this package emits, per RFC 7540 §7.
const (
	errCodeRefusedStream uint32 = 0x7
)

func readFrameHeader(r io.Reader) (frameHeader, error) {
	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return frameHeader{}, err
	}
	length := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
	streamID := binary.BigEndian.Uint32(buf[5:9]) &^ (1 << 31)
	return frameHeader{
		Length:   length,
		Type:     frameType(buf[3]),
		Flags:    buf[4],
		StreamID: streamID,
	}, nil
}

func writeFrameHeader(w io.Writer, h frameHeader) error {
	var buf [9]byte
	buf[0] = byte(h.Length >> 16)
	buf[1] = byte(h.Length >> 8)
	buf[2] = byte(h.Length)
	buf[3] = byte(h.Type)
	buf[4] = h.Flags
	binary.BigEndian.PutUint32(buf[5:9], h.StreamID)
	_, err := w.Write(buf[:])
	return err
}

// settingsParam identifiers per RFC 7540 section 6.5.2.
const (
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingInitialWindowSize    uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
)

func parseSettingsPayload(payload []byte) map[uint16]uint32 {
	out := make(map[uint16]uint32)
	for i := 0; i+6 <= len(payload); i += 6 {
		id := binary.BigEndian.Uint16(payload[i : i+2])
		val := binary.BigEndian.Uint32(payload[i+2 : i+6])
		out[id] = val
	}
	return out
}

func encodeSettingsPayload(settings map[uint16]uint32) []byte {
	out := make([]byte, 0, 6*len(settings))
	for id, val := range settings {
		var entry [6]byte
		binary.BigEndian.PutUint16(entry[0:2], id)
		binary.BigEndian.PutUint32(entry[2:6], val)
		out = append(out, entry[:]...)
	}
	return out
}
