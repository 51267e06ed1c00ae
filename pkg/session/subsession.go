package session

import (
	"math/rand"
	"net"
	"time"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/liberrors"
	"github.com/rtspond/rtspond/pkg/packetizer"
	"github.com/rtspond/rtspond/pkg/rtptransport"
)

// maxPortSearchTries bounds the even-port scan ListenRTPRTCPPair performs
// before giving up: a port-in-use failure should only fail session creation
// after exhausting the search range.
const maxPortSearchTries = 1000

// defaultRTCPPeriod is the default RTCP report interval for a
// single-source session (RFC 3550 recommends ~5s for small sessions).
const defaultRTCPPeriod = 5 * time.Second

// Subsession is the on-demand, per-media-track factory: resolving a
// client's setup into a StreamState, either freshly allocated or (under
// ReuseFirstSource) shared with every other client.
type Subsession struct {
	// ReuseFirstSource forbids Pause/Seek/SetScale and makes every client
	// share the first StreamState ever created.
	ReuseFirstSource bool

	// PortBase is the first RTP port candidate a fresh StreamState's
	// ListenRTPRTCPPair search tries.
	PortBase int

	// NewSource opens a fresh packetizer.Source for a non-shared
	// StreamState. Never called again once ReuseFirstSource's shared
	// StreamState exists.
	NewSource func() (packetizer.Source, error)

	Format      packetizer.Format
	PayloadType uint8
	ClockRate   uint32
	BitrateBps  int

	PreferredPacketSize int
	MaxPacketSize       int
	MaxFrameSize        int

	CNAME string

	Timers *delayqueue.Queue
	Now    func() time.Time

	shared   *StreamState
	byClient map[ClientSessionID]*StreamState
}

// Initialize resets the per-client bookkeeping. Call once before use.
func (s *Subsession) Initialize() {
	s.byClient = map[ClientSessionID]*StreamState{}
	s.shared = nil
}

// GetStreamParameters resolves a client's stream parameters: under
// ReuseFirstSource with an existing shared StreamState, it increments that
// state's reference count and returns its already-bound ports. Otherwise it
// allocates a fresh even RTP/RTCP port pair, opens a new source, and builds
// a new StreamState whose UDP send buffer is sized from BitrateBps.
func (s *Subsession) GetStreamParameters(client ClientSessionID) (*StreamState, error) {
	if s.ReuseFirstSource && s.shared != nil {
		s.shared.refCount++
		s.byClient[client] = s.shared
		return s.shared, nil
	}

	rtpConn, rtcpConn, port, err := rtptransport.ListenRTPRTCPPair(s.PortBase, maxPortSearchTries)
	if err != nil {
		return nil, err
	}

	src, err := s.NewSource()
	if err != nil {
		rtpConn.Close()
		rtcpConn.Close()
		return nil, err
	}

	st := newStreamState(streamStateConfig{
		RTPPort:     port,
		RTCPPort:    port + 1,
		RTPUDPSink:  rtptransport.NewUDPSink(rtpConn, 0),
		RTCPUDPSink: rtptransport.NewUDPSink(rtcpConn, 0),
		Source:      src,
		Format:      s.Format,
		PacketizerCfg: packetizer.Config{
			PayloadType:           s.PayloadType,
			SSRC:                  rand.Uint32(),
			InitialSequenceNumber: uint16(rand.Uint32()),
			ClockRate:             s.ClockRate,
			PreferredPacketSize:   s.PreferredPacketSize,
			MaxPacketSize:         s.MaxPacketSize,
			MaxFrameSize:          s.MaxFrameSize,
		},
		BitrateBps: s.BitrateBps,
		CNAME:      s.CNAME,
		RTCPPeriod: defaultRTCPPeriod,
		Timers:     s.Timers,
		Now:        s.Now,
	})
	st.refCount = 1

	s.byClient[client] = st
	if s.ReuseFirstSource {
		s.shared = st
	}
	return st, nil
}

// AddDestinationUDP registers client's UDP endpoint on its StreamState.
func (s *Subsession) AddDestinationUDP(client ClientSessionID, ip net.IP, rtpPort, rtcpPort int) error {
	st, err := s.lookup(client)
	if err != nil {
		return err
	}
	st.addDestination(client, NewUDPDestination(st.rtpSink, st.rtcpSink, ip, rtpPort, rtcpPort))
	return nil
}

// AddDestinationTCP registers client's TCP-interleaved endpoint.
func (s *Subsession) AddDestinationTCP(client ClientSessionID, rtpSink, rtcpSink *rtptransport.TCPInterleavedSink) error {
	st, err := s.lookup(client)
	if err != nil {
		return err
	}
	st.addDestination(client, NewTCPDestination(rtpSink, rtcpSink))
	return nil
}

// Start begins delivery to client, lazily starting the underlying
// StreamState's packetizer exactly once even if other clients already share
// it.
func (s *Subsession) Start(client ClientSessionID) error {
	st, err := s.lookup(client)
	if err != nil {
		return err
	}
	st.start()
	return nil
}

// Pause, Seek, and SetScale are rejected outright when ReuseFirstSource is
// set: mutating shared-source state on behalf of one client would affect
// every other client sharing it.

func (s *Subsession) Pause(client ClientSessionID) error {
	if s.ReuseFirstSource {
		return liberrors.ErrReuseFirstSourceImmutable{}
	}
	st, err := s.lookup(client)
	if err != nil {
		return err
	}
	st.pause()
	return nil
}

func (s *Subsession) Seek(client ClientSessionID, nptSeconds float64) error {
	if s.ReuseFirstSource {
		return liberrors.ErrReuseFirstSourceImmutable{}
	}
	st, err := s.lookup(client)
	if err != nil {
		return err
	}
	return st.seek(nptSeconds)
}

func (s *Subsession) SetScale(client ClientSessionID, scale float64) error {
	if s.ReuseFirstSource {
		return liberrors.ErrReuseFirstSourceImmutable{}
	}
	st, err := s.lookup(client)
	if err != nil {
		return err
	}
	return st.setScale(scale)
}

// Teardown removes client's destination, decrements its StreamState's
// reference count, and reclaims the StreamState once the count reaches
// zero.
func (s *Subsession) Teardown(client ClientSessionID) error {
	st, err := s.lookup(client)
	if err != nil {
		return err
	}
	delete(s.byClient, client)
	st.removeDestination(client)

	st.refCount--
	if st.refCount > 0 {
		return nil
	}

	st.reclaim()
	if s.shared == st {
		s.shared = nil
	}
	return nil
}

// ClientCount reports how many clients currently hold stream parameters for
// this subsession, used by the registry's idle-session reaper to decide
// whether a cached session is safe to evict.
func (s *Subsession) ClientCount() int { return len(s.byClient) }

func (s *Subsession) lookup(client ClientSessionID) (*StreamState, error) {
	st, ok := s.byClient[client]
	if !ok {
		return nil, liberrors.ErrDestinationNotFound{ClientSessionID: uint32(client)}
	}
	return st, nil
}
