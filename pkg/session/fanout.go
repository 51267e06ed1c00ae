package session

import (
	"github.com/pion/rtp"

	"github.com/rtspond/rtspond/pkg/packetizer"
)

// fanoutTransport is the session layer's answer to packetizer.Transport
// being single-destination: the packetizer only knows Send([]byte) error on
// one collaborator. A StreamState shared under reuse_first_source may have many
// Destinations, so its packetizer is wired to a fanoutTransport instead of
// any one Destination directly; non-shared StreamStates go through the same
// path with exactly one Destination registered.
type fanoutTransport struct {
	st *StreamState
}

var _ packetizer.Transport = (*fanoutTransport)(nil)

// Send delivers packet to every currently-registered destination and feeds
// it to the stream's RTCP sender for sender-report accounting. It returns
// the first send error encountered, if any, but always attempts every
// destination rather than aborting the fan-out on the first failure.
func (t *fanoutTransport) Send(packet []byte) error {
	var firstErr error
	for _, d := range t.st.destinations {
		if err := d.sendRTP(packet); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if t.st.rtcpSender != nil {
		var pkt rtp.Packet
		if err := pkt.Unmarshal(packet); err == nil {
			t.st.rtcpSender.ProcessPacket(&pkt, t.st.now(), true)
		}
	}

	return firstErr
}

// sendRTCPToAll broadcasts one RTCP packet (SR, SDES, or BYE) to every
// destination currently registered on st.
func sendRTCPToAll(st *StreamState, payload []byte) {
	for _, d := range st.destinations {
		_ = d.sendRTCP(payload)
	}
}
