package packetizer

// Format is the payload-format-specific hook set a concrete RTP payload
// (H.264, AAC, ...) implements, mirroring a classic RTP-sink virtual seam
// set (specialHeaderSize, frameSpecificHeaderSize, doSpecialFrameHandling,
// frameCanAppearAfterPacketStart, allowFragmentationAfterStart,
// allowOtherFramesAfterLastFragment).
type Format interface {
	// SpecialHeaderSize is the number of bytes reserved once per packet,
	// right after the fixed RTP header, for a payload-specific header
	// (e.g. the AAC AU-header section). Zero if none.
	SpecialHeaderSize() int

	// FrameSpecificHeaderSize is the number of bytes reserved before each
	// individual frame packed into the packet. Zero if none.
	FrameSpecificHeaderSize() int

	// FrameCanAppearAfterPacketStart reports whether frameStart (the first
	// frameSize bytes of which are frame, already written into the
	// buffer) is allowed to follow frames already packed into this
	// packet. Most formats always return true; formats requiring exactly
	// one frame per packet (H.264 in this server's default mode) return
	// false. The packetizer asks only once the packet already holds a
	// frame, and again right after packing one.
	FrameCanAppearAfterPacketStart(frame []byte, frameSize int) bool

	// AllowFragmentationAfterStart reports whether a frame that is too
	// big for one packet may still be fragmented when it isn't the first
	// frame in the packet.
	AllowFragmentationAfterStart() bool

	// AllowOtherFramesAfterLastFragment reports whether another frame may
	// be packed into the same packet that just carried the last fragment
	// of a fragmented frame.
	AllowOtherFramesAfterLastFragment() bool

	// DoSpecialFrameHandling is invoked once per frame (or fragment)
	// packed into the buffer, after its bytes are already written. It is
	// the hook's only chance to set the RTP timestamp (via p.SetTimestamp,
	// on the first frame of a packet) and the marker bit (via
	// p.SetMarkerBit, typically on the last fragment of a frame).
	DoSpecialFrameHandling(p *Packetizer, fragmentOffset int, frame []byte, numBytes int, ptsMicros int64, remainingBytes int)
}
