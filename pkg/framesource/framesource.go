// Package framesource implements file-backed frame producers, treated as an
// out-of-scope "frame source" boundary: each producer reads a local
// container/elementary-stream file once at open time and serves
// packetizer.Frame-shaped (bytes, pts, duration) tuples from memory.
//
// Built on ADTS header parsing and
// github.com/bluenviron/mediacommon/v2/pkg/codecs/h264 (Annex-B NAL
// splitting), re-expressed as packetizer.Source implementations rather
// than an RTP-encoder pipeline (this repo packetizes with its own
// pkg/packetizer).
package framesource

import "github.com/rtspond/rtspond/pkg/packetizer"

// frame pairs raw payload bytes with the presentation time and duration the
// packetizer needs; both in-memory sources below reduce to a slice of these.
type frame struct {
	data           []byte
	ptsMicros      int64
	durationMicros int64
}

// sliceSource serves a precomputed list of frames in order, then closes.
// Both ADTSSource and H264Source decode their whole file up front and hand
// the result to this shared cursor, since the source-asynchrony contract
// (the source promises to call back; it may itself be driven by a socket
// handler or a timer) is about not blocking the loop, not about on-disk
// I/O shape, and memory-resident files never need to block at all.
type sliceSource struct {
	frames []frame
	i      int
}

// GetNextFrame implements packetizer.Source.
func (s *sliceSource) GetNextFrame(buf []byte, onFrame func(packetizer.Frame), onClose func()) {
	if s.i >= len(s.frames) {
		onClose()
		return
	}
	f := s.frames[s.i]
	s.i++

	n := copy(buf, f.data)
	truncated := len(f.data) - n
	onFrame(packetizer.Frame{
		Size:           n,
		Truncated:      truncated,
		PTSMicros:      f.ptsMicros,
		DurationMicros: f.durationMicros,
	})
}

// Remaining reports how many frames are left to serve, for diagnostics.
func (s *sliceSource) Remaining() int { return len(s.frames) - s.i }
