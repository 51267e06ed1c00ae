// Package session implements the on-demand session lifecycle: StreamState
// (per-stream-instance source/sink/RTCP ownership), Destinations (per-client
// send endpoints), and Subsession (the lookup-or-create, reuse-first-source-
// aware factory a registry entry wraps).
package session

import (
	"net"

	"github.com/rtspond/rtspond/pkg/rtptransport"
)

// ClientSessionID identifies one RTSP client session.
type ClientSessionID uint32

// Destination is one client's RTP/RTCP delivery endpoint: either a UDP
// (ip, rtp_port, rtcp_port) triple or a TCP-interleaved
// (tcp_socket, rtp_channel, rtcp_channel) triple. Both shapes reduce to a
// pair of blocking-free send functions, so StreamState and its fanout
// transport don't need to know which transport a client negotiated.
type Destination struct {
	sendRTP  func(payload []byte) error
	sendRTCP func(payload []byte) error
}

// SendRTP delivers one RTP packet to this destination.
func (d Destination) SendRTP(payload []byte) error { return d.sendRTP(payload) }

// SendRTCP delivers one RTCP packet to this destination.
func (d Destination) SendRTCP(payload []byte) error { return d.sendRTCP(payload) }

// NewUDPDestination builds a Destination that sends through the StreamState's
// shared RTP/RTCP UDP sockets to one client's negotiated port pair.
func NewUDPDestination(rtpSink, rtcpSink *rtptransport.UDPSink, ip net.IP, rtpPort, rtcpPort int) Destination {
	rtpAddr := &net.UDPAddr{IP: ip, Port: rtpPort}
	rtcpAddr := &net.UDPAddr{IP: ip, Port: rtcpPort}
	return Destination{
		sendRTP:  func(payload []byte) error { return rtpSink.Send(payload, rtpAddr) },
		sendRTCP: func(payload []byte) error { return rtcpSink.Send(payload, rtcpAddr) },
	}
}

// NewTCPDestination builds a Destination over the client's own control
// connection, tagged with the negotiated interleaved channel numbers.
func NewTCPDestination(rtpSink, rtcpSink *rtptransport.TCPInterleavedSink) Destination {
	return Destination{
		sendRTP:  rtpSink.Send,
		sendRTCP: rtcpSink.Send,
	}
}
