// Package packetizer implements the stateful multi-framed RTP packetizer:
// it packs zero or more complete codec frames (or fragments of one oversized
// frame) into successive outbound RTP packets, paced by each frame's nominal
// duration rather than wall-clock measurement.
//
// Follows the classic build-and-send-packet / pack-frame / after-getting-
// frame / send-if-necessary pipeline, re-expressed with the frame-specific
// decision hooks as a Format interface instead of C++
// virtual methods, and driven by pkg/delayqueue instead of a task scheduler
// callback registered directly on an environment object.
package packetizer

import (
	"fmt"
	"time"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/liberrors"
	"github.com/rtspond/rtspond/pkg/outbuf"
)

const rtpHeaderSize = 12

// State is the per-packet lifecycle state of the packetizer.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateSendPending
	StateClosing
)

// Transport delivers one complete RTP packet. Errors are reported to the
// onError callback passed to Initialize and otherwise ignored: the packetizer always advances
// (sequence number, counters, buffer reset) regardless of send failure.
type Transport interface {
	Send(packet []byte) error
}

// Config carries the fixed, per-stream RTP parameters.
type Config struct {
	PayloadType           uint8
	SSRC                  uint32
	ClockRate             uint32
	InitialSequenceNumber uint16
	PreferredPacketSize   int
	MaxPacketSize         int

	// MaxFrameSize is the largest single frame the Source will ever hand
	// back in one GetNextFrame call. It defaults to MaxPacketSize, which is
	// only adequate for formats that never need AllowFragmentationAfterStart;
	// fragmenting formats (H.264, JPEG) must set this to their codec's real
	// worst-case frame size.
	MaxFrameSize int
}

// Packetizer is the multi-framed RTP packet builder. Zero value, then
// Initialize.
type Packetizer struct {
	buf       *outbuf.Buffer
	source    Source
	format    Format
	transport Transport
	timers    *delayqueue.Queue
	now       func() time.Time
	onError   func(error)
	onClosed  func()

	cfg   Config
	seq   uint16
	state State

	timestampPosition              int
	specialHeaderPosition          int
	curFrameSpecificHeaderPosition int
	totalFrameSpecificHeaderSizes  int

	curFragmentationOffset           int
	previousFrameEndedFragmentation  bool
	numFramesUsedSoFar               int
	noFramesLeft                     bool

	sendTimeAnchored bool
	nextSendTime     time.Time
	mostRecentPTS   int64
	initialPTS      int64
	havePTS         bool
	currentTimestamp uint32

	packetCount        uint64
	totalOctetCount    uint64
	payloadOctetCount  uint64

	sendTimerToken delayqueue.Token
}

// Initialize wires the packetizer's collaborators and resets all state.
// now defaults to time.Now if nil.
func (p *Packetizer) Initialize(cfg Config, source Source, format Format, transport Transport, timers *delayqueue.Queue, now func() time.Time, onError func(error), onClosed func()) {
	if now == nil {
		now = time.Now
	}
	*p = Packetizer{
		buf:       outbuf.New(cfg.PreferredPacketSize, cfg.MaxPacketSize, cfg.MaxFrameSize),
		source:    source,
		format:    format,
		transport: transport,
		timers:    timers,
		now:       now,
		onError:   onError,
		onClosed:  onClosed,
		cfg:       cfg,
		seq:       cfg.InitialSequenceNumber,
		state:     StateIdle,
	}
}

// Start begins playing: builds and sends the first packet, anchoring
// next_send_time to the arrival of its first frame.
func (p *Packetizer) Start() {
	p.buildAndSendPacket()
}

// ResetAnchors clears the pacing anchors (send-time origin and the PTS
// bookkeeping derived from it) without touching sequence numbers or packet
// statistics. A seek jumps the source to a new presentation time, so the
// next frame after a seek must re-anchor nextSendTime to its own arrival
// rather than pace off a presentation time that is no longer contiguous
// with the last one sent.
func (p *Packetizer) ResetAnchors() {
	p.sendTimeAnchored = false
	p.nextSendTime = time.Time{}
	p.mostRecentPTS = 0
	p.initialPTS = 0
	p.havePTS = false
}

// Close abandons any in-flight packet build and cancels the pending send
// timer.
func (p *Packetizer) Close() {
	if p.sendTimerToken != 0 {
		p.timers.Cancel(p.sendTimerToken)
		p.sendTimerToken = 0
	}
	p.buf.ResetPacketStart()
	p.buf.ResetOffset()
	p.state = StateIdle
}

// StateNow reports the current per-packet state.
func (p *Packetizer) StateNow() State { return p.state }

// SequenceNumber reports the sequence number that will be used for the next
// packet sent.
func (p *Packetizer) SequenceNumber() uint16 { return p.seq }

// NumFramesUsedSoFar reports how many frames (or fragments) have already
// been packed into the packet currently being built. A Format's
// DoSpecialFrameHandling hook uses this to recognize the first frame of a
// packet (the one whose presentation time sets the RTP timestamp).
func (p *Packetizer) NumFramesUsedSoFar() int { return p.numFramesUsedSoFar }

// PacketCount, TotalOctetCount, and PayloadOctetCount report cumulative
// stream statistics for RTCP sender reports.
func (p *Packetizer) PacketCount() uint64       { return p.packetCount }
func (p *Packetizer) TotalOctetCount() uint64   { return p.totalOctetCount }
func (p *Packetizer) PayloadOctetCount() uint64 { return p.payloadOctetCount }

func (p *Packetizer) buildAndSendPacket() {
	hdr := uint32(0x80000000)
	hdr |= uint32(p.cfg.PayloadType&0x7f) << 16
	hdr |= uint32(p.seq)
	p.buf.EnqueueWord(hdr)

	p.timestampPosition = p.buf.CurPacketSize()
	p.buf.SkipBytes(4)

	p.buf.EnqueueWord(p.cfg.SSRC)

	p.specialHeaderPosition = p.buf.CurPacketSize()
	p.buf.SkipBytes(p.format.SpecialHeaderSize())

	p.totalFrameSpecificHeaderSizes = 0
	p.noFramesLeft = false
	p.numFramesUsedSoFar = 0
	p.state = StateBuilding
	p.packFrame()
}

func (p *Packetizer) packFrame() {
	if p.buf.HaveOverflow() {
		ov := p.buf.OverflowData()
		size, pts, dur := ov.Size, ov.PTSMicros, ov.DurationMics
		p.buf.UseOverflow()
		p.afterGettingFrame1(size, 0, pts, dur)
		return
	}

	if p.source == nil {
		return
	}

	headerSize := p.format.FrameSpecificHeaderSize()
	p.curFrameSpecificHeaderPosition = p.buf.CurPacketSize()
	p.buf.SkipBytes(headerSize)
	p.totalFrameSpecificHeaderSizes += headerSize

	p.source.GetNextFrame(p.buf.CurPtr(),
		func(f Frame) { p.afterGettingFrame1(f.Size, f.Truncated, f.PTSMicros, f.DurationMicros) },
		p.handleClosure)
}

func (p *Packetizer) isTooBigForAPacket(frameSize int) bool {
	total := frameSize + rtpHeaderSize + p.format.SpecialHeaderSize() + p.format.FrameSpecificHeaderSize()
	return p.buf.IsTooBigForAPacket(total)
}

func (p *Packetizer) afterGettingFrame1(frameSize, truncated int, ptsMicros, durationMicros int64) {
	if !p.sendTimeAnchored {
		p.nextSendTime = p.now()
		p.sendTimeAnchored = true
	}

	p.mostRecentPTS = ptsMicros
	if !p.havePTS {
		p.initialPTS = ptsMicros
		p.havePTS = true
	}

	if truncated > 0 && p.onError != nil {
		p.onError(liberrors.ErrBufferTooSmall{Needed: frameSize + truncated, Max: p.buf.MaxSize()})
	}

	numFrameBytesToUse := frameSize
	overflowBytes := 0

	if p.numFramesUsedSoFar > 0 {
		if (p.previousFrameEndedFragmentation && !p.format.AllowOtherFramesAfterLastFragment()) ||
			!p.format.FrameCanAppearAfterPacketStart(p.buf.CurPtr(), frameSize) {
			numFrameBytesToUse = 0
			p.buf.SetOverflow(p.buf.CurPacketSize(), frameSize, ptsMicros, durationMicros)
		}
	}
	p.previousFrameEndedFragmentation = false

	if numFrameBytesToUse > 0 {
		if p.buf.WouldOverflow(frameSize) {
			if p.isTooBigForAPacket(frameSize) && (p.numFramesUsedSoFar == 0 || p.format.AllowFragmentationAfterStart()) {
				overflowBytes = p.buf.NumOverflowFor(frameSize)
				numFrameBytesToUse -= overflowBytes
				p.curFragmentationOffset += numFrameBytesToUse
			} else {
				overflowBytes = frameSize
				numFrameBytesToUse = 0
			}
			p.buf.SetOverflow(p.buf.CurPacketSize()+numFrameBytesToUse, overflowBytes, ptsMicros, durationMicros)
		} else if p.curFragmentationOffset > 0 {
			p.curFragmentationOffset = 0
			p.previousFrameEndedFragmentation = true
		}
	}

	if numFrameBytesToUse == 0 && frameSize > 0 {
		p.sendPacketIfNecessary()
		return
	}

	frameStart := p.buf.CurPtr()
	p.buf.Increment(numFrameBytesToUse)

	p.format.DoSpecialFrameHandling(p, p.curFragmentationOffset, frameStart, numFrameBytesToUse, ptsMicros, overflowBytes)
	p.numFramesUsedSoFar++

	if overflowBytes == 0 {
		p.nextSendTime = p.nextSendTime.Add(time.Duration(durationMicros) * time.Microsecond)
	}

	usedFrame := frameStart[:numFrameBytesToUse]
	if p.buf.IsPreferredSize() ||
		p.buf.WouldOverflow(numFrameBytesToUse) ||
		(p.previousFrameEndedFragmentation && !p.format.AllowOtherFramesAfterLastFragment()) ||
		!p.format.FrameCanAppearAfterPacketStart(usedFrame, numFrameBytesToUse) {
		p.sendPacketIfNecessary()
	} else {
		p.packFrame()
	}
}

func (p *Packetizer) handleClosure() {
	p.noFramesLeft = true
	p.sendPacketIfNecessary()
}

func (p *Packetizer) sendPacketIfNecessary() {
	if p.numFramesUsedSoFar > 0 {
		if err := p.transport.Send(p.buf.Packet()); err != nil && p.onError != nil {
			p.onError(fmt.Errorf("packetizer: send failed: %w", err))
		}
		p.packetCount++
		p.totalOctetCount += uint64(p.buf.CurPacketSize())
		p.payloadOctetCount += uint64(p.buf.CurPacketSize() - rtpHeaderSize - p.format.SpecialHeaderSize() - p.totalFrameSpecificHeaderSizes)
		p.seq++
	}

	headerSizes := rtpHeaderSize + p.format.SpecialHeaderSize() + p.format.FrameSpecificHeaderSize()
	if p.buf.HaveOverflow() && p.buf.TotalBytesAvailable() > p.buf.TotalBufferSize()/2 {
		p.buf.AdjustPacketStart(p.buf.CurPacketSize() - headerSizes)
	} else {
		p.buf.ResetPacketStartKeepingOverflow(headerSizes)
	}
	p.buf.ResetOffset()
	p.numFramesUsedSoFar = 0

	if p.noFramesLeft {
		p.state = StateClosing
		if p.onClosed != nil {
			p.onClosed()
		}
		return
	}

	delay := p.nextSendTime.Sub(p.now())
	if delay < 0 {
		delay = 0
	}
	p.state = StateSendPending
	p.sendTimerToken = p.timers.Schedule(delay, p.buildAndSendPacket)
}

// ConvertToRTPTimestamp maps an absolute presentation time (microseconds
// since an arbitrary but fixed epoch shared with the frame source) to a
// 32-bit RTP timestamp at the stream's clock rate.
func (p *Packetizer) ConvertToRTPTimestamp(ptsMicros int64) uint32 {
	return uint32(ptsMicros * int64(p.cfg.ClockRate) / 1_000_000)
}

// SetTimestamp sets the RTP header's timestamp field from a presentation
// time. Format.DoSpecialFrameHandling calls this on the first frame packed
// into a packet; later frames in the same packet inherit it implicitly.
func (p *Packetizer) SetTimestamp(ptsMicros int64) {
	p.currentTimestamp = p.ConvertToRTPTimestamp(ptsMicros)
	p.buf.InsertWord(p.currentTimestamp, p.timestampPosition)
}

// SetMarkerBit sets the RTP header's marker bit.
func (p *Packetizer) SetMarkerBit() {
	hdr := p.buf.ExtractWord(0)
	hdr |= 0x00800000
	p.buf.InsertWord(hdr, 0)
}

// SetSpecialHeaderWord writes a 32-bit word into the packet's once-per-packet
// special header region, reserved via Format.SpecialHeaderSize.
func (p *Packetizer) SetSpecialHeaderWord(word uint32, wordPosition int) {
	p.buf.InsertWord(word, p.specialHeaderPosition+4*wordPosition)
}

// SetSpecialHeaderBytes writes arbitrary bytes into the special header
// region.
func (p *Packetizer) SetSpecialHeaderBytes(data []byte, bytePosition int) {
	p.buf.Insert(data, p.specialHeaderPosition+bytePosition)
}

// SetFrameSpecificHeaderWord writes a 32-bit word into the current frame's
// per-frame header region, reserved via Format.FrameSpecificHeaderSize.
func (p *Packetizer) SetFrameSpecificHeaderWord(word uint32, wordPosition int) {
	p.buf.InsertWord(word, p.curFrameSpecificHeaderPosition+4*wordPosition)
}

// SetFrameSpecificHeaderBytes writes arbitrary bytes into the current
// frame's per-frame header region.
func (p *Packetizer) SetFrameSpecificHeaderBytes(data []byte, bytePosition int) {
	p.buf.Insert(data, p.curFrameSpecificHeaderPosition+bytePosition)
}

// SetFramePadding appends n RTP padding bytes (last byte = n) and sets the
// RTP header's padding bit.
func (p *Packetizer) SetFramePadding(n int) {
	if n <= 0 {
		return
	}
	pad := make([]byte, n)
	pad[n-1] = byte(n)
	p.buf.Enqueue(pad)

	hdr := p.buf.ExtractWord(0)
	hdr |= 0x20000000
	p.buf.InsertWord(hdr, 0)
}
