// Package rtcpsender generates periodic RTCP sender reports for an RTP
// stream. Rather than drive itself with a goroutine parked on a
// time.Ticker, it self-reschedules on a delta-queue, since this server
// forbids any thread beyond the scheduler's own epoll-wait goroutine.
package rtcpsender

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/ntp"
)

// Sender builds and dispatches RTCP sender reports at a fixed period. It
// also builds, on request, a source description carrying a process-wide
// CNAME (SourceDescription); the periodic reports are written on their own,
// not bundled with it into a compound packet.
type Sender struct {
	ClockRate       int
	Period          time.Duration
	CNAME           string
	TimeNow         func() time.Time
	WritePacketRTCP func(pkt rtcp.Packet)

	timers *delayqueue.Queue
	token  delayqueue.Token

	firstRTPPacketSent bool
	lastTimeRTP        uint32
	lastTimeNTP        time.Time
	lastTimeSystem     time.Time
	localSSRC          uint32
	lastSequenceNumber uint16
	packetCount        uint32
	octetCount         uint32
}

// Initialize schedules the first report and arms self-rescheduling on
// timers. timers must outlive the Sender.
func (rs *Sender) Initialize(timers *delayqueue.Queue) {
	if rs.TimeNow == nil {
		rs.TimeNow = time.Now
	}
	rs.timers = timers
	rs.token = rs.timers.Schedule(rs.Period, rs.tick)
}

// Close cancels the pending report tick. It does not emit a final report;
// callers that want an RTCP BYE send one explicitly via WritePacketRTCP
// before tearing the transport down.
func (rs *Sender) Close() {
	rs.timers.Cancel(rs.token)
}

func (rs *Sender) tick() {
	if report := rs.report(); report != nil {
		rs.WritePacketRTCP(report)
	}
	rs.token = rs.timers.Schedule(rs.Period, rs.tick)
}

func (rs *Sender) report() rtcp.Packet {
	if !rs.firstRTPPacketSent || rs.ClockRate == 0 {
		return nil
	}

	systemTimeDiff := rs.TimeNow().Sub(rs.lastTimeSystem)
	ntpTime := rs.lastTimeNTP.Add(systemTimeDiff)
	rtpTime := rs.lastTimeRTP + uint32(systemTimeDiff.Seconds()*float64(rs.ClockRate))

	return &rtcp.SenderReport{
		SSRC:        rs.localSSRC,
		NTPTime:     ntp.Encode(ntpTime),
		RTPTime:     rtpTime,
		PacketCount: rs.packetCount,
		OctetCount:  rs.octetCount,
	}
}

// SourceDescription returns the SDES packet identifying localSSRC by CNAME,
// sent once alongside the first sender report so receivers can associate
// the stream's RTP and RTCP sources.
func (rs *Sender) SourceDescription() rtcp.Packet {
	return &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{
			{
				Source: rs.localSSRC,
				Items: []rtcp.SourceDescriptionItem{
					{Type: rtcp.SDESCNAME, Text: rs.CNAME},
				},
			},
		},
	}
}

// ProcessPacket extracts sender-report source data from an outbound RTP
// packet as it is sent. ptsEqualsDTS marks the packet whose timestamp is
// eligible to anchor the RTP/NTP timestamp pairing (true for every packet in
// this system, since there is no B-frame reordering).
func (rs *Sender) ProcessPacket(pkt *rtp.Packet, wallClock time.Time, ptsEqualsDTS bool) {
	if ptsEqualsDTS {
		rs.firstRTPPacketSent = true
		rs.lastTimeRTP = pkt.Timestamp
		rs.lastTimeNTP = wallClock
		rs.lastTimeSystem = rs.TimeNow()
		rs.localSSRC = pkt.SSRC
	}

	rs.lastSequenceNumber = pkt.SequenceNumber
	rs.packetCount++
	rs.octetCount += uint32(len(pkt.Payload))
}

// Stats are the most recently observed RTP stream identifiers, or nil before
// the first packet has been processed.
type Stats struct {
	LastSequenceNumber uint16
	LastRTP            uint32
	LastNTP            time.Time
}

// Stats returns the Sender's current statistics.
func (rs *Sender) Stats() *Stats {
	if !rs.firstRTPPacketSent {
		return nil
	}
	return &Stats{
		LastSequenceNumber: rs.lastSequenceNumber,
		LastRTP:            rs.lastTimeRTP,
		LastNTP:            rs.lastTimeNTP,
	}
}

// InitialSenderReport builds a zero-packet-count SR sent before the very
// first RTP packet, so receivers get RTCP-synchronized presentation times
// immediately instead
// of waiting a full Period for the first real report. It reports zero
// packets and octets sent, anchored at ssrc and now.
func InitialSenderReport(ssrc uint32, now time.Time) rtcp.Packet {
	return &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     ntp.Encode(now),
		RTPTime:     0,
		PacketCount: 0,
		OctetCount:  0,
	}
}
