package framesource

import (
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// DefaultH264FrameRate is the pacing used when a file carries no explicit
// frame rate out-of-band (the common case for a bare Annex-B elementary
// stream): 25 fps, a reasonable default for an unmarked stream when no SPS
// VUI timing is parsed.
const DefaultH264FrameRate = 25

// nalTypeMask isolates the NAL unit type from the first header byte.
const nalTypeMask = 0x1F

const (
	nalTypeNonIDRSlice = 1
	nalTypeIDRSlice    = 5
)

func isVCLNAL(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	t := nal[0] & nalTypeMask
	return t == nalTypeNonIDRSlice || t == nalTypeIDRSlice
}

// H264Source serves the NAL units of an Annex-B H.264 elementary stream
// file, one NAL per GetNextFrame call (H264Format sends each NAL in its own
// packet, or split raw across packets when too big), paced by frameRate.
// Parameter-set and SEI NALs preceding a slice inherit that slice's
// timestamp with zero duration; only the slice NAL that closes an access
// unit carries the frame's duration, so next_send_time advances once per
// picture rather than once per NAL.
//
// Built on mediacommon/v2/pkg/codecs/h264.AnnexBUnmarshal, re-expressed
// as a packetizer.Source rather than an RTP encoder.
type H264Source struct {
	sliceSource
}

// NewH264Source reads path in full, splits it into NAL units, and groups
// them into access units (one VCL NAL closes each group) paced at frameRate
// frames per second.
func NewH264Source(path string, frameRate int) (*H264Source, error) {
	if frameRate <= 0 {
		frameRate = DefaultH264FrameRate
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	nalus, err := h264.AnnexBUnmarshal(data)
	if err != nil {
		return nil, err
	}

	frameDuration := int64(time.Second) / int64(frameRate) / int64(time.Microsecond)

	var frames []frame
	auIndex := int64(0)

	for _, nalu := range nalus {
		pts := auIndex * frameDuration
		if isVCLNAL(nalu) {
			frames = append(frames, frame{data: nalu, ptsMicros: pts, durationMicros: frameDuration})
			auIndex++
		} else {
			frames = append(frames, frame{data: nalu, ptsMicros: pts, durationMicros: 0})
		}
	}

	return &H264Source{sliceSource{frames: frames}}, nil
}
