package session

import (
	"time"

	"github.com/pion/rtcp"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/liberrors"
	"github.com/rtspond/rtspond/pkg/packetizer"
	"github.com/rtspond/rtspond/pkg/rtcpsender"
	"github.com/rtspond/rtspond/pkg/rtptransport"
)

// Seeker is implemented by frame sources that support NPT-based seeking.
// Sources that don't implement it simply reject Seek.
type Seeker interface {
	Seek(nptSeconds float64) error
}

// StreamState is the per-(subsession, stream-instance) record: server
// ports, RTP sink, optional RTCP instance, media source, bitrate, reference
// count, start NPT, currently-playing flag. reclaim() tears it down in a
// fixed order (RTCP, then sinks, then source, then transports).
type StreamState struct {
	RTPPort  int
	RTCPPort int

	rtpSink  *rtptransport.UDPSink
	rtcpSink *rtptransport.UDPSink

	packetizer packetizer.Packetizer
	rtcpSender *rtcpsender.Sender
	source     packetizer.Source
	ssrc       uint32

	bitrateBps int
	refCount   int
	startNPT   float64
	playing    bool

	destinations map[ClientSessionID]Destination

	timers *delayqueue.Queue
	now    func() time.Time
}

// streamStateConfig carries everything newStreamState needs to wire a fresh
// StreamState's packetizer and (if UDP ports were allocated) RTCP sender.
type streamStateConfig struct {
	RTPPort, RTCPPort int
	RTPUDPSink        *rtptransport.UDPSink
	RTCPUDPSink       *rtptransport.UDPSink
	Source            packetizer.Source
	Format            packetizer.Format
	PacketizerCfg     packetizer.Config
	BitrateBps        int
	CNAME             string
	RTCPPeriod        time.Duration
	Timers            *delayqueue.Queue
	Now               func() time.Time
}

func newStreamState(cfg streamStateConfig) *StreamState {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	st := &StreamState{
		RTPPort:      cfg.RTPPort,
		RTCPPort:     cfg.RTCPPort,
		rtpSink:      cfg.RTPUDPSink,
		rtcpSink:     cfg.RTCPUDPSink,
		source:       cfg.Source,
		ssrc:         cfg.PacketizerCfg.SSRC,
		bitrateBps:   cfg.BitrateBps,
		destinations: map[ClientSessionID]Destination{},
		timers:       cfg.Timers,
		now:          cfg.Now,
	}

	st.packetizer.Initialize(cfg.PacketizerCfg, cfg.Source, cfg.Format, &fanoutTransport{st: st}, cfg.Timers, cfg.Now, nil, nil)

	if cfg.RTPUDPSink != nil {
		sendBufSize := rtptransport.SendBufferSize(cfg.BitrateBps)
		_ = cfg.RTPUDPSink.SetSendBufferSize(sendBufSize)
	}

	if cfg.RTCPPeriod > 0 {
		st.rtcpSender = &rtcpsender.Sender{
			ClockRate:       int(cfg.PacketizerCfg.ClockRate),
			Period:          cfg.RTCPPeriod,
			CNAME:           cfg.CNAME,
			TimeNow:         cfg.Now,
			WritePacketRTCP: st.writeRTCP,
		}
		st.rtcpSender.Initialize(cfg.Timers)
	}

	return st
}

// writeRTCP marshals and broadcasts one RTCP packet to every destination.
func (st *StreamState) writeRTCP(pkt rtcp.Packet) {
	buf, err := pkt.Marshal()
	if err != nil {
		return
	}
	sendRTCPToAll(st, buf)
}

// addDestination registers client's delivery endpoint.
func (st *StreamState) addDestination(client ClientSessionID, d Destination) {
	st.destinations[client] = d
}

// removeDestination drops client's delivery endpoint, if any.
func (st *StreamState) removeDestination(client ClientSessionID) {
	delete(st.destinations, client)
}

// start lazily sends the initial RTCP SR hack (so receivers get
// RTCP-synchronized presentation times before the first RTP packet ever
// arrives) and starts the packetizer exactly once, even when multiple
// clients share this StreamState under reuse_first_source.
func (st *StreamState) start() {
	if st.playing {
		return
	}
	st.playing = true

	if st.rtcpSender != nil {
		if buf := marshalOrNil(rtcpsender.InitialSenderReport(st.ssrc, st.now())); buf != nil {
			sendRTCPToAll(st, buf)
		}
		if buf := marshalOrNil(st.rtcpSender.SourceDescription()); buf != nil {
			sendRTCPToAll(st, buf)
		}
	}

	st.packetizer.Start()
}

func marshalOrNil(pkt rtcp.Packet) []byte {
	buf, err := pkt.Marshal()
	if err != nil {
		return nil
	}
	return buf
}

// pause, seek, and setScale are only ever called by Subsession after it has
// already rejected reuse_first_source streams.

func (st *StreamState) pause() {
	st.packetizer.Close()
	st.playing = false
}

func (st *StreamState) seek(nptSeconds float64) error {
	seeker, ok := st.source.(Seeker)
	if !ok {
		return liberrors.ErrSeekUnsupported{}
	}
	if err := seeker.Seek(nptSeconds); err != nil {
		return err
	}
	st.startNPT = nptSeconds
	st.packetizer.ResetAnchors()
	return nil
}

// setScale records the requested play rate. No bundled frame source supports
// variable-rate delivery, so this only validates the gate (rejected under
// reuse_first_source, handled by the caller); the scale itself is accepted
// but has no effect on pacing.
func (st *StreamState) setScale(float64) error {
	return nil
}

// reclaim tears StreamState down in a fixed order: RTCP first (so it can
// emit a BYE), then sinks, then source, then transports.
func (st *StreamState) reclaim() {
	if st.rtcpSender != nil {
		if buf := marshalOrNil(&rtcp.Goodbye{Sources: []uint32{st.ssrc}}); buf != nil {
			sendRTCPToAll(st, buf)
		}
		st.rtcpSender.Close()
	}

	st.packetizer.Close()

	if closer, ok := st.source.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	if st.rtpSink != nil {
		_ = st.rtpSink.Close()
	}
	if st.rtcpSink != nil {
		_ = st.rtcpSink.Close()
	}
}
