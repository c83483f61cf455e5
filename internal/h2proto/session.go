// File: internal/h2proto/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/http2_handler.cpp's process_data /
// flush_output shape (feed inbound bytes, react per frame, flush an
// outbound buffer) with the preface-skip phase and frame decoding kept
// separate, per spec.md §9's explicit redesign guidance.

package h2proto

import (
	"bytes"
	"encoding/binary"
	"net"
	"sort"
	"sync"

	"golang.org/x/net/http2/hpack"
)

const (
	defaultMaxConcurrentStreams = 100
	defaultInitialWindowSize    = 65536
	defaultMaxFrameSize         = 16384
	defaultEnablePush           = 1
	defaultMaxHeaderListSize    = 8192
)

// RequestHandler produces a response for a completed HTTP/2 request. It
// returns the response status, headers, body, and the set of companion
// paths the session should attempt to push alongside an HTML response.
type RequestHandler interface {
	HandleH2(method, path string, headers map[string]string, body []byte) (status int, headers2 map[string]string, respBody []byte, pushPaths []string)
}

// ResourceProbe reports whether a path resolves to a servable resource,
// used to decide whether a PUSH_PROMISE should be suppressed.
type ResourceProbe interface {
	Exists(path string) bool
}

// Session is one HTTP/2 cleartext connection's frame decoder, stream
// table, and flow-control state.
type Session struct {
	mu   sync.Mutex
	conn net.Conn

	streams        map[uint32]*Stream
	lastClientID   uint32
	nextPushID     uint32
	connRecvWindow int32
	connSendWindow int32
	peerSettings   map[uint16]uint32
	pushEnabled    bool
	draining       bool

	hpackDecoder *hpack.Decoder
	headerBlock  bytes.Buffer
	headerStream uint32

	handler RequestHandler
	probe   ResourceProbe

	recvBuf []byte
}

// NewSession constructs a Session bound to conn. buffered carries any
// bytes read past the 24-byte preface by the acceptor's protocol
// detector; they are fed into the decoder as the first inbound chunk.
// pushEnabled mirrors the server's own --push toggle: even a peer that
// advertises SETTINGS_ENABLE_PUSH=1 gets no PUSH_PROMISE frames when the
// server has pushing turned off.
func NewSession(conn net.Conn, handler RequestHandler, probe ResourceProbe, buffered []byte, pushEnabled bool) *Session {
	s := &Session{
		conn:           conn,
		streams:        make(map[uint32]*Stream),
		nextPushID:     2,
		connRecvWindow: defaultInitialWindowSize,
		connSendWindow: defaultInitialWindowSize,
		peerSettings:   make(map[uint16]uint32),
		pushEnabled:    pushEnabled,
		handler:        handler,
		probe:          probe,
	}
	s.hpackDecoder = hpack.NewDecoder(4096, nil)
	s.sendInitialSettings()
	if len(buffered) > 0 {
		_ = s.Feed(buffered)
	}
	return s
}

func (s *Session) sendInitialSettings() {
	settings := map[uint16]uint32{
		settingMaxConcurrentStreams: defaultMaxConcurrentStreams,
		settingInitialWindowSize:    defaultInitialWindowSize,
		settingMaxFrameSize:         defaultMaxFrameSize,
		settingEnablePush:           defaultEnablePush,
		settingMaxHeaderListSize:    defaultMaxHeaderListSize,
	}
	payload := encodeSettingsPayload(settings)
	s.writeFrame(frameSettings, 0, 0, payload)
}

// Feed decodes as many complete frames as raw contains, updating session
// and stream state per frame type. Unconsumed trailing bytes (a partial
// frame) are retained for the next call.
func (s *Session) Feed(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recvBuf = append(s.recvBuf, raw...)
	for {
		if len(s.recvBuf) < 9 {
			return nil
		}
		hdr, _ := readFrameHeader(bytes.NewReader(s.recvBuf[:9]))
		total := 9 + int(hdr.Length)
		if len(s.recvBuf) < total {
			return nil
		}
		payload := s.recvBuf[9:total]
		s.recvBuf = s.recvBuf[total:]

		if err := s.handleFrame(hdr, payload); err != nil {
			return err
		}
	}
}

func (s *Session) handleFrame(hdr frameHeader, payload []byte) error {
	switch hdr.Type {
	case frameHeaders:
		return s.onHeaders(hdr, payload)
	case frameContinuation:
		return s.onContinuation(hdr, payload)
	case frameData:
		return s.onData(hdr, payload)
	case framePriority:
		s.onPriority(hdr, payload)
	case frameSettings:
		s.onSettings(hdr, payload)
	case frameWindowUpdate:
		s.onWindowUpdate(hdr, payload)
	case frameGoAway:
		s.draining = true
	case frameRSTStream:
		if st, ok := s.streams[hdr.StreamID]; ok {
			delete(s.streams, hdr.StreamID)
			releaseStream(st)
		}
	case framePing:
		if hdr.Flags&flagAck == 0 {
			s.writeFrame(framePing, flagAck, hdr.StreamID, payload)
		}
	}
	return nil
}

func (s *Session) streamFor(id uint32) *Stream {
	st, ok := s.streams[id]
	if !ok {
		st = newStream(id, s.connSendWindow)
		s.streams[id] = st
		if id > s.lastClientID {
			s.lastClientID = id
		}
	}
	return st
}

func (s *Session) onHeaders(hdr frameHeader, payload []byte) error {
	if _, open := s.streams[hdr.StreamID]; !open && len(s.streams) >= defaultMaxConcurrentStreams {
		s.writeFrame(frameRSTStream, 0, hdr.StreamID, rstStreamPayload(errCodeRefusedStream))
		return nil
	}
	st := s.streamFor(hdr.StreamID)

	body := payload
	if hdr.Flags&flagPadded != 0 && len(body) > 0 {
		padLen := int(body[0])
		body = body[1:]
		if padLen <= len(body) {
			body = body[:len(body)-padLen]
		}
	}
	if hdr.Flags&flagPriority != 0 && len(body) >= 5 {
		dep := binary.BigEndian.Uint32(body[0:4])
		st.Priority = Priority{
			Dependency: dep &^ (1 << 31),
			Weight:     body[4] + 1,
			Exclusive:  dep&(1<<31) != 0,
		}
		body = body[5:]
	}

	s.headerBlock.Reset()
	s.headerBlock.Write(body)
	s.headerStream = hdr.StreamID

	if hdr.Flags&flagEndHeaders != 0 {
		if err := s.finishHeaderBlock(st); err != nil {
			return err
		}
	}
	if hdr.Flags&flagEndStream != 0 {
		st.RequestComplete = true
		s.processRequest(st)
	}
	return nil
}

func (s *Session) onContinuation(hdr frameHeader, payload []byte) error {
	st, ok := s.streams[s.headerStream]
	if !ok {
		return nil
	}
	s.headerBlock.Write(payload)
	if hdr.Flags&flagEndHeaders != 0 {
		if err := s.finishHeaderBlock(st); err != nil {
			return err
		}
		if st.RequestComplete {
			s.processRequest(st)
		}
	}
	return nil
}

func (s *Session) finishHeaderBlock(st *Stream) error {
	fields, err := s.hpackDecoder.DecodeFull(s.headerBlock.Bytes())
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Name {
		case ":method":
			st.Method = f.Value
		case ":path":
			st.Path = f.Value
		default:
			st.Headers[f.Name] = f.Value
		}
	}
	st.HeadersComplete = true
	return nil
}

func (s *Session) onData(hdr frameHeader, payload []byte) error {
	st := s.streamFor(hdr.StreamID)
	body := payload
	if hdr.Flags&flagPadded != 0 && len(body) > 0 {
		padLen := int(body[0])
		body = body[1:]
		if padLen <= len(body) {
			body = body[:len(body)-padLen]
		}
	}
	st.Body = append(st.Body, body...)

	if hdr.Flags&flagEndStream != 0 {
		st.RequestComplete = true
		s.processRequest(st)
		return nil
	}
	// Simple replenishment: credit back exactly what was consumed, on
	// both the stream and connection windows, per spec.md §4.3.
	n := uint32(len(payload))
	if n > 0 {
		s.writeFrame(frameWindowUpdate, 0, hdr.StreamID, windowUpdatePayload(n))
		s.writeFrame(frameWindowUpdate, 0, 0, windowUpdatePayload(n))
	}
	return nil
}

func windowUpdatePayload(increment uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], increment&^(1<<31))
	return buf[:]
}

func rstStreamPayload(errCode uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], errCode)
	return buf[:]
}

func (s *Session) onPriority(hdr frameHeader, payload []byte) {
	if len(payload) < 5 {
		return
	}
	st := s.streamFor(hdr.StreamID)
	dep := binary.BigEndian.Uint32(payload[0:4])
	st.Priority = Priority{
		Dependency: dep &^ (1 << 31),
		Weight:     payload[4] + 1,
		Exclusive:  dep&(1<<31) != 0,
	}
}

func (s *Session) onSettings(hdr frameHeader, payload []byte) {
	if hdr.Flags&flagAck != 0 {
		return
	}
	for id, val := range parseSettingsPayload(payload) {
		s.peerSettings[id] = val
	}
	s.writeFrame(frameSettings, flagAck, 0, nil)
}

func (s *Session) onWindowUpdate(hdr frameHeader, payload []byte) {
	if len(payload) < 4 {
		return
	}
	increment := int32(binary.BigEndian.Uint32(payload) &^ (1 << 31))
	if hdr.StreamID == 0 {
		s.connSendWindow += increment
		return
	}
	if st, ok := s.streams[hdr.StreamID]; ok {
		st.sendWindow += increment
	}
}

func (s *Session) processRequest(st *Stream) {
	if s.handler == nil {
		return
	}
	status, headers, body, pushPaths := s.handler.HandleH2(st.Method, st.Path, st.Headers, st.Body)
	st.ResponseStatus = status
	st.ResponseHeaders = headers
	st.ResponseBody = body

	isHTML := headers["content-type"] == "text/html"
	if isHTML && s.pushEnabled && s.peerSettings[settingEnablePush] != 0 {
		for _, p := range pushPaths {
			s.pushResource(st, p)
		}
	}
	s.writeResponse(st)
}

// pushResource issues PUSH_PROMISE for path on a new server-initiated
// stream, unless the resource does not exist on disk, per the Open
// Question resolution: suppress the promise for missing resources.
func (s *Session) pushResource(parent *Stream, path string) {
	if s.probe != nil && !s.probe.Exists(path) {
		return
	}
	pushID := s.nextPushID
	s.nextPushID += 2

	block := s.encodeHeaderBlock(map[string]string{":method": "GET", ":path": path})
	var promisePayload bytes.Buffer
	var streamIDBuf [4]byte
	binary.BigEndian.PutUint32(streamIDBuf[:], pushID)
	promisePayload.Write(streamIDBuf[:])
	promisePayload.Write(block)
	s.writeFrame(framePushPromise, flagEndHeaders, parent.ID, promisePayload.Bytes())

	if s.handler == nil {
		return
	}
	status, headers, body, _ := s.handler.HandleH2("GET", path, map[string]string{}, nil)
	pushed := newStream(pushID, s.connSendWindow)
	pushed.ResponseStatus = status
	pushed.ResponseHeaders = headers
	pushed.ResponseBody = body
	pushed.RequestComplete = true
	s.streams[pushID] = pushed
	s.writeResponse(pushed)
}

func (s *Session) encodeHeaderBlock(headers map[string]string) []byte {
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	order := make([]string, 0, len(headers))
	for k := range headers {
		order = append(order, k)
	}
	sort.Strings(order)
	for _, k := range order {
		_ = enc.WriteField(hpack.HeaderField{Name: k, Value: headers[k]})
	}
	return buf.Bytes()
}

// writeResponse emits HEADERS followed by as many DATA frames as needed
// to drain st.ResponseBody, respecting both the stream and connection
// send windows and splitting each DATA frame at defaultMaxFrameSize.
func (s *Session) writeResponse(st *Stream) {
	headers := map[string]string{":status": statusString(st.ResponseStatus)}
	for k, v := range st.ResponseHeaders {
		headers[k] = v
	}
	block := s.encodeHeaderBlock(headers)

	endStream := len(st.ResponseBody) == 0
	flags := flagEndHeaders
	if endStream {
		flags |= flagEndStream
	}
	s.writeFrame(frameHeaders, flags, st.ID, block)
	if endStream {
		s.closeStream(st)
		return
	}

	for st.sentBytes < len(st.ResponseBody) {
		remaining := len(st.ResponseBody) - st.sentBytes
		if st.sendWindow <= 0 || s.connSendWindow <= 0 {
			return // stalled until a WINDOW_UPDATE arrives
		}
		chunk := remaining
		if chunk > defaultMaxFrameSize {
			chunk = defaultMaxFrameSize
		}
		if chunk > int(st.sendWindow) {
			chunk = int(st.sendWindow)
		}
		if chunk > int(s.connSendWindow) {
			chunk = int(s.connSendWindow)
		}
		data := st.ResponseBody[st.sentBytes : st.sentBytes+chunk]
		last := st.sentBytes+chunk == len(st.ResponseBody)
		var dataFlags byte
		if last {
			dataFlags = flagEndStream
		}
		s.writeFrame(frameData, dataFlags, st.ID, data)
		st.sentBytes += chunk
		st.sendWindow -= int32(chunk)
		s.connSendWindow -= int32(chunk)
		if last {
			s.closeStream(st)
		}
	}
}

// closeStream drops st from the open-stream table and returns it to the
// pool once both sides have sent END_STREAM, keeping s.streams an
// accurate count of concurrently open streams for the
// defaultMaxConcurrentStreams gate in onHeaders.
func (s *Session) closeStream(st *Stream) {
	delete(s.streams, st.ID)
	releaseStream(st)
}

func statusString(status int) string {
	if status == 0 {
		status = 200
	}
	return itoa(status)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *Session) writeFrame(t frameType, flags byte, streamID uint32, payload []byte) {
	hdr := frameHeader{Length: uint32(len(payload)), Type: t, Flags: flags, StreamID: streamID}
	_ = writeFrameHeader(s.conn, hdr)
	if len(payload) > 0 {
		_, _ = s.conn.Write(payload)
	}
}

// Draining reports whether a GOAWAY has been received and no new streams
// should be accepted.
func (s *Session) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}
