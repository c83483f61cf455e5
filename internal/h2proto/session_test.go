// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0

package h2proto

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
)

func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	clientCh := make(chan net.Conn, 1)
	go func() {
		c, _ := net.Dial("tcp", ln.Addr().String())
		clientCh <- c
	}()
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return server, <-clientCh
}

func buildDataFrame(streamID uint32, payload []byte) []byte {
	var buf bytes.Buffer
	_ = writeFrameHeader(&buf, frameHeader{
		Length:   uint32(len(payload)),
		Type:     frameData,
		Flags:    0,
		StreamID: streamID,
	})
	buf.Write(payload)
	return buf.Bytes()
}

func TestDataFrameTriggersWindowUpdateOnStreamAndConnection(t *testing.T) {
	server, client := tcpPair(t)
	defer server.Close()
	defer client.Close()

	sess := NewSession(server, nil, nil, nil, true)

	payload := make([]byte, 4096)
	if err := sess.Feed(buildDataFrame(1, payload)); err != nil {
		t.Fatalf("feed: %v", err)
	}

	streamIncrement := uint32(0)
	connIncrement := uint32(0)

	br := io.Reader(client)
	for i := 0; i < 3; i++ { // initial SETTINGS + two WINDOW_UPDATE frames
		var hdrBuf [9]byte
		if _, err := io.ReadFull(br, hdrBuf[:]); err != nil {
			t.Fatalf("read frame header %d: %v", i, err)
		}
		hdr, _ := readFrameHeader(bytes.NewReader(hdrBuf[:]))
		payload := make([]byte, hdr.Length)
		if hdr.Length > 0 {
			if _, err := io.ReadFull(br, payload); err != nil {
				t.Fatalf("read frame payload %d: %v", i, err)
			}
		}
		if hdr.Type != frameWindowUpdate {
			continue
		}
		increment := binary.BigEndian.Uint32(payload) &^ (1 << 31)
		if hdr.StreamID == 1 {
			streamIncrement += increment
		} else if hdr.StreamID == 0 {
			connIncrement += increment
		}
	}

	if streamIncrement != 4096 {
		t.Fatalf("expected stream 1 window update total 4096, got %d", streamIncrement)
	}
	if connIncrement != 4096 {
		t.Fatalf("expected connection window update total 4096, got %d", connIncrement)
	}
}

func TestHeadersEndStreamMarksRequestComplete(t *testing.T) {
	server, client := tcpPair(t)
	defer server.Close()
	defer client.Close()

	handler := &recordingHandler{}
	sess := NewSession(server, handler, nil, nil, true)

	block := sess.encodeHeaderBlock(map[string]string{":method": "GET", ":path": "/"})
	var buf bytes.Buffer
	_ = writeFrameHeader(&buf, frameHeader{
		Length:   uint32(len(block)),
		Type:     frameHeaders,
		Flags:    flagEndHeaders | flagEndStream,
		StreamID: 1,
	})
	buf.Write(block)

	if err := sess.Feed(buf.Bytes()); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !handler.called {
		t.Fatal("expected request handler to be invoked once headers completed the request")
	}
}

func TestRSTStreamRemovesAndRecyclesStream(t *testing.T) {
	server, client := tcpPair(t)
	defer server.Close()
	defer client.Close()

	sess := NewSession(server, nil, nil, nil, true)
	sess.Feed(buildDataFrame(3, []byte("x")))
	if _, ok := sess.streams[3]; !ok {
		t.Fatal("expected stream 3 to be tracked after a DATA frame")
	}

	var buf bytes.Buffer
	_ = writeFrameHeader(&buf, frameHeader{Length: 4, Type: frameRSTStream, StreamID: 3})
	buf.Write([]byte{0, 0, 0, 0})
	if err := sess.Feed(buf.Bytes()); err != nil {
		t.Fatalf("feed: %v", err)
	}

	if _, ok := sess.streams[3]; ok {
		t.Fatal("expected stream 3 to be removed after RST_STREAM")
	}
}

type recordingHandler struct {
	called bool
}

func (h *recordingHandler) HandleH2(method, path string, headers map[string]string, body []byte) (int, map[string]string, []byte, []string) {
	h.called = true
	return 200, map[string]string{"content-type": "text/plain"}, []byte("ok"), nil
}

type pushingHandler struct{}

func (h *pushingHandler) HandleH2(method, path string, headers map[string]string, body []byte) (int, map[string]string, []byte, []string) {
	return 200, map[string]string{"content-type": "text/html"}, []byte("<html></html>"), []string{"/style.css"}
}

type alwaysExists struct{}

func (alwaysExists) Exists(path string) bool { return true }

func buildSettingsFrame(settings map[uint16]uint32) []byte {
	var buf bytes.Buffer
	payload := encodeSettingsPayload(settings)
	_ = writeFrameHeader(&buf, frameHeader{Length: uint32(len(payload)), Type: frameSettings})
	buf.Write(payload)
	return buf.Bytes()
}

func requestFrames(t *testing.T, sess *Session) []byte {
	t.Helper()
	block := sess.encodeHeaderBlock(map[string]string{":method": "GET", ":path": "/"})
	var buf bytes.Buffer
	_ = writeFrameHeader(&buf, frameHeader{
		Length:   uint32(len(block)),
		Type:     frameHeaders,
		Flags:    flagEndHeaders | flagEndStream,
		StreamID: 1,
	})
	buf.Write(block)
	return buf.Bytes()
}

func readFramesUntilClose(t *testing.T, client net.Conn) []frameHeader {
	t.Helper()
	var headers []frameHeader
	br := bufio.NewReader(client)
	for {
		var hdrBuf [9]byte
		if _, err := io.ReadFull(br, hdrBuf[:]); err != nil {
			return headers
		}
		hdr, _ := readFrameHeader(bytes.NewReader(hdrBuf[:]))
		headers = append(headers, hdr)
		if hdr.Length > 0 {
			payload := make([]byte, hdr.Length)
			if _, err := io.ReadFull(br, payload); err != nil {
				return headers
			}
		}
	}
}

func TestPushSuppressedWhenServerPushDisabled(t *testing.T) {
	server, client := tcpPair(t)
	defer server.Close()
	defer client.Close()

	sess := NewSession(server, &pushingHandler{}, alwaysExists{}, nil, false)

	if err := sess.Feed(buildSettingsFrame(map[uint16]uint32{settingEnablePush: 1})); err != nil {
		t.Fatalf("feed settings: %v", err)
	}
	if err := sess.Feed(requestFrames(t, sess)); err != nil {
		t.Fatalf("feed request: %v", err)
	}
	_ = server.Close()

	for _, hdr := range readFramesUntilClose(t, client) {
		if hdr.Type == framePushPromise {
			t.Fatal("expected no PUSH_PROMISE frame when the session's pushEnabled is false")
		}
	}
}

func TestPushSentWhenServerPushEnabledAndPeerAccepts(t *testing.T) {
	server, client := tcpPair(t)
	defer server.Close()
	defer client.Close()

	sess := NewSession(server, &pushingHandler{}, alwaysExists{}, nil, true)

	if err := sess.Feed(buildSettingsFrame(map[uint16]uint32{settingEnablePush: 1})); err != nil {
		t.Fatalf("feed settings: %v", err)
	}
	if err := sess.Feed(requestFrames(t, sess)); err != nil {
		t.Fatalf("feed request: %v", err)
	}
	_ = server.Close()

	sawPush := false
	for _, hdr := range readFramesUntilClose(t, client) {
		if hdr.Type == framePushPromise {
			sawPush = true
		}
	}
	if !sawPush {
		t.Fatal("expected a PUSH_PROMISE frame when pushEnabled is true and the peer advertises support")
	}
}

func TestConcurrentStreamsBeyondLimitAreRefused(t *testing.T) {
	server, client := tcpPair(t)
	defer server.Close()
	defer client.Close()

	sess := NewSession(server, &recordingHandler{}, nil, nil, true)

	// Open defaultMaxConcurrentStreams+1 streams, each with END_HEADERS
	// but no END_STREAM, so none of them complete and free their slot.
	var buf bytes.Buffer
	for i := 0; i < defaultMaxConcurrentStreams+1; i++ {
		streamID := uint32(2*i + 1)
		block := sess.encodeHeaderBlock(map[string]string{":method": "GET", ":path": "/"})
		_ = writeFrameHeader(&buf, frameHeader{
			Length:   uint32(len(block)),
			Type:     frameHeaders,
			Flags:    flagEndHeaders,
			StreamID: streamID,
		})
		buf.Write(block)
	}
	if err := sess.Feed(buf.Bytes()); err != nil {
		t.Fatalf("feed: %v", err)
	}

	if len(sess.streams) != defaultMaxConcurrentStreams {
		t.Fatalf("expected exactly %d open streams, got %d", defaultMaxConcurrentStreams, len(sess.streams))
	}

	refusedStreamID := uint32(2*defaultMaxConcurrentStreams + 1)
	if _, open := sess.streams[refusedStreamID]; open {
		t.Fatalf("stream %d should have been refused, not registered", refusedStreamID)
	}

	_ = server.Close()
	sawRefusal := false
	br := bufio.NewReader(client)
	for {
		var hdrBuf [9]byte
		if _, err := io.ReadFull(br, hdrBuf[:]); err != nil {
			break
		}
		hdr, _ := readFrameHeader(bytes.NewReader(hdrBuf[:]))
		payload := make([]byte, hdr.Length)
		if hdr.Length > 0 {
			if _, err := io.ReadFull(br, payload); err != nil {
				break
			}
		}
		if hdr.Type == frameRSTStream && hdr.StreamID == refusedStreamID {
			if binary.BigEndian.Uint32(payload) == errCodeRefusedStream {
				sawRefusal = true
			}
		}
	}
	if !sawRefusal {
		t.Fatal("expected an RST_STREAM with REFUSED_STREAM for the stream beyond the concurrency limit")
	}
}
