package registry

import (
	"github.com/rtspond/rtspond/pkg/framesource"
	"github.com/rtspond/rtspond/pkg/packetizer"
	"github.com/rtspond/rtspond/pkg/rtpformats"
	"github.com/rtspond/rtspond/pkg/session"
)

// Dynamic RTP payload type assignments (RFC 3551 §6 reserves 96-127 for
// dynamic use); picked once per codec and kept stable across sessions.
const (
	payloadTypeH264 = 96
	payloadTypeAAC  = 97
)

// aacDefaultBitrateBps and h264DefaultBitrateBps size each StreamState's UDP
// send buffer (rtptransport.SendBufferSize) when no better estimate is
// available: fixed per-codec guesses rather than measuring the file.
const (
	aacDefaultBitrateBps  = 128_000
	h264DefaultBitrateBps = 500_000
)

// aacMaxFrameSize and h264MaxFrameSize raise the packetizer's frame-size
// ceiling ahead of constructing a subsession for formats whose access
// units can exceed the packetizer's ordinary default.
const (
	aacMaxFrameSize  = 8 * 1024
	h264MaxFrameSize = 100_000
)

// extensionEntry is one row of the extension dispatch table: a
// human-readable description plus, when this server actually wires that
// format end to end, a Subsession factory. build is nil for extensions the
// table documents but does not implement.
type extensionEntry struct {
	description string
	build       func(name string, cfg Config) (*session.Subsession, error)
}

// extensionTable is a complete extension-to-codec map. Only the two
// bundled frame sources (pkg/framesource's ADTS and Annex-B H.264 readers)
// are wired; the remaining entries document the full mapping this server
// does not implement, since no demultiplexer or additional decoder exists
// in this codebase for them (container demultiplexing is an explicit
// external collaborator, not something this repository owns).
var extensionTable = map[string]extensionEntry{
	".aac": {description: "AAC Audio (ADTS)", build: buildADTSSubsession},
	".264": {description: "H.264 Video (Annex B)", build: buildH264Subsession},

	".amr":  {description: "AMR Audio"},
	".ac3":  {description: "AC3 Audio"},
	".m4e":  {description: "MPEG-4 Video (ES)"},
	".mp3":  {description: "MP3 Audio"},
	".mpg":  {description: "MPEG-1/2 Program Stream"},
	".vob":  {description: "MPEG-2 Program Stream (VOB)"},
	".ts":   {description: "MPEG-2 Transport Stream"},
	".wav":  {description: "WAV Audio"},
	".dv":   {description: "DV Video"},
	".mkv":  {description: "Matroska"},
	".webm": {description: "WebM"},
}

func buildADTSSubsession(name string, cfg Config) (*session.Subsession, error) {
	probe, err := framesource.NewADTSSource(name)
	if err != nil {
		return nil, err
	}

	sub := &session.Subsession{
		PortBase: cfg.PortBase,
		NewSource: func() (packetizer.Source, error) {
			return framesource.NewADTSSource(name)
		},
		Format:              rtpformats.AACFormat{},
		PayloadType:         payloadTypeAAC,
		ClockRate:           uint32(probe.SampleRate),
		BitrateBps:          aacDefaultBitrateBps,
		PreferredPacketSize: cfg.PreferredPacketSize,
		MaxPacketSize:       cfg.MaxPacketSize,
		MaxFrameSize:        aacMaxFrameSize,
		CNAME:               cfg.CNAME,
		Timers:              cfg.Timers,
		Now:                 cfg.Now,
	}
	return sub, nil
}

func buildH264Subsession(name string, cfg Config) (*session.Subsession, error) {
	if _, err := framesource.NewH264Source(name, framesource.DefaultH264FrameRate); err != nil {
		return nil, err
	}

	sub := &session.Subsession{
		PortBase: cfg.PortBase,
		NewSource: func() (packetizer.Source, error) {
			return framesource.NewH264Source(name, framesource.DefaultH264FrameRate)
		},
		Format:              rtpformats.H264Format{},
		PayloadType:         payloadTypeH264,
		ClockRate:           rtpformats.H264ClockRate,
		BitrateBps:          h264DefaultBitrateBps,
		PreferredPacketSize: cfg.PreferredPacketSize,
		MaxPacketSize:       cfg.MaxPacketSize,
		MaxFrameSize:        h264MaxFrameSize,
		CNAME:               cfg.CNAME,
		Timers:              cfg.Timers,
		Now:                 cfg.Now,
	}
	return sub, nil
}
