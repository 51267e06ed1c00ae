// Package rtptransport implements the two destination kinds a session's
// Destinations record can address: a UDP sink wrapping one bound UDP socket
// that a stream shares across its clients (each send names the client's
// address), and a TCP-interleaved sink that frames RTP/RTCP onto the
// client's own control connection per RFC 2326 §10.12.
package rtptransport

import (
	"encoding/binary"
	"fmt"
	"io"
)

const interleavedFrameMagicByte = 0x24

// InterleavedFrame is one RFC 2326 §10.12 "$"-framed chunk carried over an
// RTSP TCP connection: magic byte, one-byte channel id, 2-byte big-endian
// payload length, payload.
type InterleavedFrame struct {
	Channel int
	Payload []byte
}

// ReadInterleavedFrame reads one frame from r, failing if its magic byte
// does not match or its payload exceeds maxPayloadSize.
func ReadInterleavedFrame(r io.Reader, maxPayloadSize int) (InterleavedFrame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return InterleavedFrame{}, err
	}
	if header[0] != interleavedFrameMagicByte {
		return InterleavedFrame{}, fmt.Errorf("rtptransport: invalid magic byte (0x%.2x)", header[0])
	}

	payloadLen := int(binary.BigEndian.Uint16(header[2:]))
	if payloadLen > maxPayloadSize {
		return InterleavedFrame{}, fmt.Errorf("rtptransport: payload size (%d) greater than maximum allowed (%d)",
			payloadLen, maxPayloadSize)
	}

	f := InterleavedFrame{Channel: int(header[1]), Payload: make([]byte, payloadLen)}
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return InterleavedFrame{}, err
	}
	return f, nil
}

// Write writes f to w as a single framed chunk.
func (f InterleavedFrame) Write(w io.Writer) error {
	var header [4]byte
	header[0] = interleavedFrameMagicByte
	header[1] = byte(f.Channel)
	binary.BigEndian.PutUint16(header[2:], uint16(len(f.Payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// TCPInterleavedSink sends RTP or RTCP packets as interleaved frames over a
// shared control connection, one sink per (connection, channel) pair. It
// never reads; a control connection's read loop owns framing on the receive
// side.
type TCPInterleavedSink struct {
	w       io.Writer
	channel int
}

// NewTCPInterleavedSink wraps w, tagging every frame written through this
// sink with channel (conventionally even for RTP, channel+1 for the paired
// RTCP sink).
func NewTCPInterleavedSink(w io.Writer, channel int) *TCPInterleavedSink {
	return &TCPInterleavedSink{w: w, channel: channel}
}

// Send frames payload and writes it to the underlying connection.
func (s *TCPInterleavedSink) Send(payload []byte) error {
	return InterleavedFrame{Channel: s.channel, Payload: payload}.Write(s.w)
}

// Channel reports the interleaved channel this sink writes on.
func (s *TCPInterleavedSink) Channel() int { return s.channel }
