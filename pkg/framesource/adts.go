package framesource

import (
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// samplesPerAACFrame is the access-unit size for AAC-LC, the only MPEG-4
// audio object type the extension table's .aac entry targets.
const samplesPerAACFrame = 1024

// ADTSSource serves the access units of an ADTS-framed AAC file, one per
// GetNextFrame call, paced at the stream's own sample rate. Grounded on the
// teacher's pkg/aac.DecodeADTS, re-expressed against
// mediacommon/v2/pkg/codecs/mpeg4audio.ADTSPackets.
type ADTSSource struct {
	sliceSource

	SampleRate   int
	ChannelCount int
}

// NewADTSSource reads path in full and decodes it into an ADTSSource ready
// to serve frames starting at presentation time zero.
func NewADTSSource(path string) (*ADTSSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(data); err != nil {
		return nil, err
	}

	s := &ADTSSource{}
	if len(pkts) > 0 {
		s.SampleRate = pkts[0].SampleRate
		s.ChannelCount = pkts[0].ChannelCount
	}

	frameDuration := int64(time.Second) * samplesPerAACFrame / int64(max(s.SampleRate, 1)) / int64(time.Microsecond)

	frames := make([]frame, len(pkts))
	for i, pkt := range pkts {
		frames[i] = frame{
			data:           pkt.AU,
			ptsMicros:      int64(i) * frameDuration,
			durationMicros: frameDuration,
		}
	}
	s.frames = frames
	return s, nil
}
