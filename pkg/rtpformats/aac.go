package rtpformats

import "github.com/rtspond/rtspond/pkg/packetizer"

// maxAUSize bounds a single AAC access unit generously above anything a
// real encoder produces.
const maxAUSize = 5 * 1024

// auHeaderSize is the size in bytes of one RFC 3640 AU-header: a 13-bit
// AU-size followed by a 3-bit AU-index(-delta), packed big-endian into two
// bytes. This implementation always encodes AU-index-delta as zero: access
// units are sent in order, never interleaved across packets.
const auHeaderSize = 2

// AACFormat implements RFC 3640's MPEG4-GENERIC payload with AU-headers:
// a 2-byte AU-headers-length field (in bits) once per packet, followed by
// one 2-byte AU-header per access unit packed into it. Unlike H264Format,
// several small AAC access units may share one RTP packet.
type AACFormat struct{}

// SpecialHeaderSize reserves the AU-headers-length field.
func (AACFormat) SpecialHeaderSize() int { return 2 }

// FrameSpecificHeaderSize reserves one AU-header per access unit.
func (AACFormat) FrameSpecificHeaderSize() int { return auHeaderSize }

// FrameCanAppearAfterPacketStart allows batching multiple AUs per packet,
// as long as each still fits the reserved AU-header accounting.
func (AACFormat) FrameCanAppearAfterPacketStart(_ []byte, frameSize int) bool {
	return frameSize <= maxAUSize
}

func (AACFormat) AllowFragmentationAfterStart() bool      { return false }
func (AACFormat) AllowOtherFramesAfterLastFragment() bool { return true }

// DoSpecialFrameHandling writes this AU's header entry, grows the
// AU-headers-length field to cover every AU packed so far, sets the RTP
// timestamp from the first AU's presentation time, and sets the marker bit
// (every packet here ends on a complete AU boundary, so it is always set).
func (f AACFormat) DoSpecialFrameHandling(p *packetizer.Packetizer, _ int, _ []byte, numBytes int, ptsMicros int64, _ int) {
	if p.NumFramesUsedSoFar() == 0 {
		p.SetTimestamp(ptsMicros)
	}

	auHeader := uint16(numBytes&0x1FFF) << 3 // AU-index-delta = 0
	p.SetFrameSpecificHeaderBytes([]byte{byte(auHeader >> 8), byte(auHeader)}, 0)

	headerLengthBits := uint16(p.NumFramesUsedSoFar()+1) * 16
	p.SetSpecialHeaderBytes([]byte{byte(headerLengthBits >> 8), byte(headerLengthBits)}, 0)

	p.SetMarkerBit()
}
