package packetizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// oneFramePerPacketFormat models an H.264-style payload: fragmentation is
// allowed once the packet already has content, no other frame may follow a
// fragmented frame's last piece, and the timestamp is set once per packet
// from whichever frame is first.
type oneFramePerPacketFormat struct {
	markerOnLastFragment bool
}

func (f *oneFramePerPacketFormat) SpecialHeaderSize() int       { return 0 }
func (f *oneFramePerPacketFormat) FrameSpecificHeaderSize() int { return 0 }
func (f *oneFramePerPacketFormat) FrameCanAppearAfterPacketStart([]byte, int) bool {
	return false
}
func (f *oneFramePerPacketFormat) AllowFragmentationAfterStart() bool        { return true }
func (f *oneFramePerPacketFormat) AllowOtherFramesAfterLastFragment() bool   { return false }
func (f *oneFramePerPacketFormat) DoSpecialFrameHandling(p *Packetizer, fragOffset int, frame []byte, numBytes int, ptsMicros int64, remaining int) {
	if p.NumFramesUsedSoFar() == 0 {
		p.SetTimestamp(ptsMicros)
	}
	if remaining == 0 {
		p.SetMarkerBit()
	}
}

// multiFrameFormat allows several small frames per packet (e.g. AAC AUs),
// never fragments, and sets the timestamp from the first frame.
type multiFrameFormat struct{}

func (multiFrameFormat) SpecialHeaderSize() int       { return 0 }
func (multiFrameFormat) FrameSpecificHeaderSize() int { return 0 }
func (multiFrameFormat) FrameCanAppearAfterPacketStart([]byte, int) bool {
	return true
}
func (multiFrameFormat) AllowFragmentationAfterStart() bool      { return false }
func (multiFrameFormat) AllowOtherFramesAfterLastFragment() bool { return true }
func (f multiFrameFormat) DoSpecialFrameHandling(p *Packetizer, fragOffset int, frame []byte, numBytes int, ptsMicros int64, remaining int) {
	if p.NumFramesUsedSoFar() == 0 {
		p.SetTimestamp(ptsMicros)
	}
}

type fakeTransport struct {
	sent [][]byte
}

func (t *fakeTransport) Send(packet []byte) error {
	cp := make([]byte, len(packet))
	copy(cp, packet)
	t.sent = append(t.sent, cp)
	return nil
}

func queueSource(frames ...Frame) *queuedSource {
	return &queuedSource{frames: frames}
}

// queuedSource serves a fixed list of frames synchronously, then closes.
type queuedSource struct {
	frames []Frame
	i      int
	data   [][]byte // payload bytes per frame, parallel to frames
}

func (s *queuedSource) GetNextFrame(buf []byte, onFrame func(Frame), onClose func()) {
	if s.i >= len(s.frames) {
		onClose()
		return
	}
	f := s.frames[s.i]
	if s.i < len(s.data) {
		copy(buf, s.data[s.i])
	} else {
		for j := 0; j < f.Size && j < len(buf); j++ {
			buf[j] = byte('A' + s.i)
		}
	}
	s.i++
	onFrame(f)
}

func TestTwoFramesOnePacket(t *testing.T) {
	src := queueSource(
		Frame{Size: 400, PTSMicros: 1_000_000, DurationMicros: 20_000},
		Frame{Size: 400, PTSMicros: 1_020_000, DurationMicros: 20_000},
	)
	transport := &fakeTransport{}
	timers := newQueue(t)

	var p Packetizer
	p.Initialize(Config{
		PayloadType:         96,
		SSRC:                0x11223344,
		ClockRate:            90000,
		PreferredPacketSize: 1000,
		MaxPacketSize:       1500,
	}, src, multiFrameFormat{}, transport, timers.Queue, fixedNow(0), nil, nil)

	p.Start()

	require.Len(t, transport.sent, 1)
	pkt := transport.sent[0]
	// 12-byte RTP header + 400 + 400
	require.Len(t, pkt, 12+400+400)
	ts := uint32(pkt[4])<<24 | uint32(pkt[5])<<16 | uint32(pkt[6])<<8 | uint32(pkt[7])
	require.Equal(t, p.ConvertToRTPTimestamp(1_000_000), ts)
	require.Equal(t, uint16(1), p.SequenceNumber())
}

func TestOversizedFrameFragmented(t *testing.T) {
	// 2000 bytes, 1436-byte packets (1424 usable payload bytes after the
	// 12-byte RTP header): splits into a 1424-byte first fragment that fills
	// the packet exactly, and a 576-byte trailing fragment.
	src := queueSource(
		Frame{Size: 2000, PTSMicros: 500_000, DurationMicros: 33_000},
	)
	transport := &fakeTransport{}
	timers := newQueue(t)

	format := &oneFramePerPacketFormat{}
	var p Packetizer
	p.Initialize(Config{
		PayloadType:         97,
		SSRC:                1,
		ClockRate:            90000,
		PreferredPacketSize: 1436,
		MaxPacketSize:       1436,
		MaxFrameSize:        4096,
	}, src, format, transport, timers.Queue, fixedNow(0), nil, nil)

	p.Start()
	require.Len(t, transport.sent, 1)
	timers.fireNext()

	require.Len(t, transport.sent, 2)
	require.Len(t, transport.sent[0], 1436)
	require.Len(t, transport.sent[1], 12+576)

	ts0 := extractTS(transport.sent[0])
	ts1 := extractTS(transport.sent[1])
	require.Equal(t, ts0, ts1)

	// Only the last fragment's packet may have the marker bit set.
	require.Zero(t, transport.sent[0][1]&0x80)
	require.NotZero(t, transport.sent[1][1]&0x80)
}

// After the 600-byte frame, another frame of that size would not fit in
// the 1000-byte packet, so the packet is sent before the 500-byte frame is
// read; that frame then starts the next packet.
func TestFrameThatWouldOverflowStartsNextPacket(t *testing.T) {
	src := queueSource(
		Frame{Size: 600, PTSMicros: 0, DurationMicros: 10_000},
		Frame{Size: 500, PTSMicros: 10_000, DurationMicros: 10_000},
	)
	transport := &fakeTransport{}
	timers := newQueue(t)

	var p Packetizer
	p.Initialize(Config{
		PayloadType:         96,
		SSRC:                1,
		ClockRate:            90000,
		PreferredPacketSize: 1000,
		MaxPacketSize:       1000,
	}, src, multiFrameFormat{}, transport, timers.Queue, fixedNow(0), nil, nil)

	p.Start()
	require.Len(t, transport.sent, 1)
	require.Len(t, transport.sent[0], 12+600)

	timers.fireNext()
	require.Len(t, transport.sent, 2)
	require.Len(t, transport.sent[1], 12+500)
}

func TestSequenceNumberIncrementsOnlyOnSend(t *testing.T) {
	src := queueSource(Frame{Size: 10, PTSMicros: 0, DurationMicros: 1000})
	transport := &fakeTransport{}
	timers := newQueue(t)

	var p Packetizer
	p.Initialize(Config{PreferredPacketSize: 1000, MaxPacketSize: 1000, ClockRate: 8000, InitialSequenceNumber: 5}, src, multiFrameFormat{}, transport, timers.Queue, fixedNow(0), nil, nil)
	p.Start()

	require.Equal(t, uint16(6), p.SequenceNumber())
	require.Len(t, transport.sent, 1)
}

func TestClosureFlushesPartialPacket(t *testing.T) {
	src := queueSource(Frame{Size: 10, PTSMicros: 0, DurationMicros: 1000})
	transport := &fakeTransport{}
	timers := newQueue(t)

	closed := false
	var p Packetizer
	p.Initialize(Config{PreferredPacketSize: 10_000, MaxPacketSize: 10_000, ClockRate: 8000}, src, multiFrameFormat{}, transport, timers.Queue, fixedNow(0), nil, func() { closed = true })
	p.Start()

	require.Len(t, transport.sent, 1)
	require.True(t, closed)
	require.Equal(t, StateClosing, p.StateNow())
}

func extractTS(pkt []byte) uint32 {
	return uint32(pkt[4])<<24 | uint32(pkt[5])<<16 | uint32(pkt[6])<<8 | uint32(pkt[7])
}
