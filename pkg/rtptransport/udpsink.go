package rtptransport

import (
	"net"
	"time"

	"github.com/rtspond/rtspond/pkg/liberrors"
)

// DefaultWriteTimeout bounds how long a single UDP write may block the
// caller.
const DefaultWriteTimeout = 10 * time.Second

// MinSendBufferSize is the floor enforced on a stream's send buffer
// regardless of bitrate: at least 50 KB.
const MinSendBufferSize = 50 * 1024

// SendBufferSize computes the send buffer size for a stream of the given
// bitrate: at least 0.1 second of specified bandwidth and at least 50 KB:
// max(50 KiB, bitrateBps * 0.1 / 8).
func SendBufferSize(bitrateBps int) int {
	n := bitrateBps / 80 // bitrateBps * 0.1 / 8
	if n < MinSendBufferSize {
		return MinSendBufferSize
	}
	return n
}

// UDPSink wraps a bound UDP socket shared by all clients of one RTP or RTCP
// stream; each client's packets are addressed individually via Send, rather
// than a listener dispatching to per-client callbacks on read. This sink
// only transmits, so no client registration or read dispatch is needed.
type UDPSink struct {
	conn         *net.UDPConn
	writeTimeout time.Duration
}

// NewUDPSink wraps conn. writeTimeout of zero uses DefaultWriteTimeout.
func NewUDPSink(conn *net.UDPConn, writeTimeout time.Duration) *UDPSink {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &UDPSink{conn: conn, writeTimeout: writeTimeout}
}

// Send transmits payload to addr. It never blocks the caller beyond
// writeTimeout; a blocked OS send buffer surfaces as an error rather than
// stalling the single loop thread.
func (s *UDPSink) Send(payload []byte, addr *net.UDPAddr) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_, err := s.conn.WriteTo(payload, addr)
	return err
}

// SetSendBufferSize grows the socket's kernel send buffer.
func (s *UDPSink) SetSendBufferSize(bytes int) error {
	return s.conn.SetWriteBuffer(bytes)
}

// Port reports the locally-bound UDP port.
func (s *UDPSink) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the underlying socket.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying connection, e.g. to register it with the
// scheduler's handler set for RTCP receiver-report reads.
func (s *UDPSink) Conn() *net.UDPConn { return s.conn }

// ListenRTPRTCPPair binds an (RTP, RTCP) UDP socket pair starting the search
// at base, incrementing by 2 on bind conflict so the RTP port always stays
// even and the RTCP port is always RTP+1. It gives up after maxTries
// attempts.
func ListenRTPRTCPPair(base, maxTries int) (rtp, rtcp *net.UDPConn, port int, err error) {
	if base%2 != 0 {
		base++
	}
	for i := 0; i < maxTries; i++ {
		candidate := base + 2*i

		rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: candidate})
		if err != nil {
			continue
		}

		rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: candidate + 1})
		if err != nil {
			rtpConn.Close()
			continue
		}

		return rtpConn, rtcpConn, candidate, nil
	}
	return nil, nil, 0, liberrors.ErrPortRangeExhausted{Base: base, Tries: maxTries}
}
