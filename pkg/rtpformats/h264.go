// Package rtpformats implements the packetizer.Format hooks for the two
// elementary-stream codecs pkg/framesource produces frames for. The teacher's
// own pkg/rtph264 and pkg/rtpaac packages are two-line stubs (they record
// only the clock rate / max AU size, the actual encoder lives in the newer
// pkg/formats/rtph264 built around a different Source abstraction this
// repo doesn't share); these hooks are grounded directly on RFC 6184 and
// RFC 3640 instead, wired to the packetizer via its generic Format seams.
package rtpformats

import "github.com/rtspond/rtspond/pkg/packetizer"

// H264ClockRate is the fixed RTP clock rate RFC 6184 mandates for H.264.
const H264ClockRate = 90000

// H264Format implements RFC 6184's single-NAL-unit packetization mode: one
// NAL unit's bytes are carried verbatim as the RTP payload, never
// aggregated with another NAL in the same packet. A NAL too large for one
// packet is still split across packets by the packetizer's generic overflow
// machinery, but the continuation packets carry raw split bytes rather than
// RFC 6184 FU-A framing, a deliberate, documented simplification, since reconstructing
// per-continuation header room is not expressible through this packetizer's
// once-per-source-read FrameSpecificHeaderSize reservation (see DESIGN.md).
type H264Format struct{}

func (H264Format) SpecialHeaderSize() int       { return 0 }
func (H264Format) FrameSpecificHeaderSize() int { return 0 }

// FrameCanAppearAfterPacketStart is always false: single-NAL-unit mode never
// aggregates more than one NAL into a packet.
func (H264Format) FrameCanAppearAfterPacketStart([]byte, int) bool { return false }

func (H264Format) AllowFragmentationAfterStart() bool      { return false }
func (H264Format) AllowOtherFramesAfterLastFragment() bool { return false }

// DoSpecialFrameHandling sets the RTP timestamp from the NAL's presentation
// time and sets the marker bit once the NAL (or its last fragment) is fully
// packed, signalling access-unit-ish framing to the receiver.
func (H264Format) DoSpecialFrameHandling(p *packetizer.Packetizer, _ int, _ []byte, _ int, ptsMicros int64, remainingBytes int) {
	if p.NumFramesUsedSoFar() == 0 {
		p.SetTimestamp(ptsMicros)
	}
	if remainingBytes == 0 {
		p.SetMarkerBit()
	}
}
