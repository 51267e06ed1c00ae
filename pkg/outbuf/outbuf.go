// Package outbuf implements the packetizer's reusable output buffer: a
// single byte slice addressed relative to a movable packet_start, with
// enqueue/word-access helpers and a carry-over slot for a frame that was
// already read from the source but didn't fit in the packet being built.
//
// Mirrors the classic enqueue/insert/extract/skip/wouldOverflow/
// isPreferredSize/setOverflowData/adjustPacketStart operation set
// re-expressed as explicit byte-offset methods on a plain Go slice instead of
// a pointer-arithmetic C buffer.
package outbuf

import "encoding/binary"

// Overflow records a frame that has already been consumed from the source
// but could not fit in the packet currently being built, so it carries over
// to the next one.
type Overflow struct {
	Valid        bool
	SrcOffset    int // offset within buf where the overflow bytes start
	Size         int
	PTSMicros    int64
	DurationMics int64
}

// Buffer is the packetizer's reusable output buffer.
type Buffer struct {
	buf []byte

	packetStart int // start of the packet currently being built
	curOffset   int // bytes written so far, relative to packetStart

	preferredSize int
	maxSize       int

	overflow Overflow
}

// New allocates a Buffer. preferredSize is the size at which a packet is
// considered ready to send; maxSize is the hard ceiling a single RTP packet
// must not exceed. maxFrameSize is the largest single frame the backing
// array must accommodate before it gets fragmented across packets; for
// codecs whose frames can vastly exceed one packet (H.264 keyframes, JPEG
// scans) callers pass a much larger value here; a value below maxSize is
// raised to it. The backing array is sized to hold two such frames, matching
// OutPacketBuffer's fLimit = 2*maxSize policy of always having room for both
// the packet being built and whatever overflowed from the last one.
func New(preferredSize, maxSize, maxFrameSize int) *Buffer {
	if maxFrameSize < maxSize {
		maxFrameSize = maxSize
	}
	return &Buffer{
		buf:           make([]byte, maxFrameSize*2),
		preferredSize: preferredSize,
		maxSize:       maxSize,
	}
}

// SetMaxSize changes the per-packet ceiling used by WouldOverflow,
// IsTooBigForAPacket, and IsPreferredSize. If the new ceiling no longer fits
// twice over in the backing array, the array is grown to match; use New's
// maxFrameSize instead when the buffer needs to hold frames larger than a
// single packet.
func (b *Buffer) SetMaxSize(maxSize int) {
	b.maxSize = maxSize
	if need := maxSize * 2; need > len(b.buf) {
		grown := make([]byte, need)
		copy(grown, b.buf)
		b.buf = grown
	}
}

// MaxSize reports the current ceiling.
func (b *Buffer) MaxSize() int { return b.maxSize }

// TotalBufferSize reports the full backing capacity (two maximum-size
// frames' worth, as sized by New or grown by SetMaxSize),
// used by the cheap-vs-full reset decision.
func (b *Buffer) TotalBufferSize() int { return len(b.buf) }

// CurPacketSize reports how many bytes have been written to the current
// packet so far.
func (b *Buffer) CurPacketSize() int { return b.curOffset }

// TotalBytesAvailable reports how much room is left in the backing array
// past the current write position, the ceiling a single getNextFrame call
// may write into.
func (b *Buffer) TotalBytesAvailable() int { return len(b.buf) - (b.packetStart + b.curOffset) }

// CurPtr returns the slice starting at the current write position, sized to
// whatever remains of the backing array. Callers must not retain it past the
// next mutating call.
func (b *Buffer) CurPtr() []byte { return b.buf[b.packetStart+b.curOffset:] }

// Packet returns the bytes of the packet built so far.
func (b *Buffer) Packet() []byte { return b.buf[b.packetStart : b.packetStart+b.curOffset] }

// Enqueue appends bytes at the current write position and advances it.
func (b *Buffer) Enqueue(data []byte) {
	n := copy(b.buf[b.packetStart+b.curOffset:], data)
	b.curOffset += n
}

// EnqueueWord appends a 32-bit big-endian word and advances past it.
func (b *Buffer) EnqueueWord(w uint32) {
	binary.BigEndian.PutUint32(b.buf[b.packetStart+b.curOffset:], w)
	b.curOffset += 4
}

// SkipBytes reserves n bytes at the current position without writing to
// them (a hole to be filled in later via InsertWord/Insert).
func (b *Buffer) SkipBytes(n int) { b.curOffset += n }

// Increment advances the write position by n bytes already written directly
// via CurPtr (e.g. by an async frame-source read).
func (b *Buffer) Increment(n int) { b.curOffset += n }

// InsertWord writes a 32-bit big-endian word at packetStart+offset without
// moving the current write position. Used to backfill reserved holes (RTP
// timestamp, special headers).
func (b *Buffer) InsertWord(w uint32, offset int) {
	binary.BigEndian.PutUint32(b.buf[b.packetStart+offset:], w)
}

// ExtractWord reads a 32-bit big-endian word at packetStart+offset.
func (b *Buffer) ExtractWord(offset int) uint32 {
	return binary.BigEndian.Uint32(b.buf[b.packetStart+offset:])
}

// Insert writes data at packetStart+offset without moving the current write
// position.
func (b *Buffer) Insert(data []byte, offset int) {
	copy(b.buf[b.packetStart+offset:], data)
}

// WouldOverflow reports whether appending n more bytes would exceed maxSize.
func (b *Buffer) WouldOverflow(n int) bool {
	return b.curOffset+n > b.maxSize
}

// IsTooBigForAPacket reports whether n bytes alone could never fit in a
// packet, even an otherwise-empty one.
func (b *Buffer) IsTooBigForAPacket(n int) bool {
	return n > b.maxSize
}

// IsPreferredSize reports whether the packet has reached its preferred send
// size.
func (b *Buffer) IsPreferredSize() bool {
	return b.curOffset >= b.preferredSize
}

// NumOverflowFor returns how many bytes of an n-byte frame would not fit if
// appended now.
func (b *Buffer) NumOverflowFor(n int) int {
	avail := b.maxSize - b.curOffset
	if n <= avail {
		return 0
	}
	return n - avail
}

// SetOverflow records a frame already read from the source that didn't fit
// in the current packet, to be consumed first on the next packet build.
// srcOffset is relative to the current packetStart, matching how callers
// already have it in hand (typically curPacketSize() at the time the
// decision was made).
func (b *Buffer) SetOverflow(srcOffset, size int, ptsMicros, durationMicros int64) {
	b.overflow = Overflow{
		Valid:        true,
		SrcOffset:    srcOffset,
		Size:         size,
		PTSMicros:    ptsMicros,
		DurationMics: durationMicros,
	}
}

// HaveOverflow reports whether a carried-over frame is pending.
func (b *Buffer) HaveOverflow() bool { return b.overflow.Valid }

// OverflowData returns the pending overflow record.
func (b *Buffer) OverflowData() Overflow { return b.overflow }

// UseOverflow moves the overflow bytes to the current write position and
// clears the overflow record, returning how many bytes were copied.
func (b *Buffer) UseOverflow() int {
	ov := b.overflow
	b.overflow = Overflow{}
	if !ov.Valid {
		return 0
	}
	src := b.packetStart + ov.SrcOffset
	n := copy(b.buf[b.packetStart+b.curOffset:], b.buf[src:src+ov.Size])
	b.curOffset += n
	return n
}

// ResetOffset rewinds the write position to the start of the (now-sent)
// packet, without touching packetStart.
func (b *Buffer) ResetOffset() { b.curOffset = 0 }

// ResetPacketStart rewinds packetStart to zero and discards any pending
// overflow, for use when no further packet will reuse it (e.g. on Close).
func (b *Buffer) ResetPacketStart() {
	b.overflow = Overflow{}
	b.packetStart = 0
}

// ResetPacketStartKeepingOverflow is the full-reset path: it rewinds
// packetStart to zero and, if overflow data is pending, memmoves it down to
// sit at reserveHeader bytes from the new origin, leaving exactly enough
// room for the next packet's header to be written in front of it without
// clobbering the overflow bytes the header write would otherwise race with.
func (b *Buffer) ResetPacketStartKeepingOverflow(reserveHeader int) {
	if b.overflow.Valid {
		src := b.packetStart + b.overflow.SrcOffset
		copy(b.buf[reserveHeader:reserveHeader+b.overflow.Size], b.buf[src:src+b.overflow.Size])
		b.overflow.SrcOffset = reserveHeader
	}
	b.packetStart = 0
}

// AdjustPacketStart advances packetStart by delta bytes: the cheap reset
// path, valid only when the overflow bytes' absolute position still falls
// at or after the new packetStart (i.e. there is room to build the next
// packet without overrunning the backing array). Pending overflow data keeps
// its absolute position: its offset, now relative to the moved packetStart,
// shrinks by delta.
func (b *Buffer) AdjustPacketStart(delta int) {
	b.packetStart += delta
	if b.overflow.Valid {
		b.overflow.SrcOffset -= delta
	}
}
