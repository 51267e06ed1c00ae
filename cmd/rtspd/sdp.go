package main

import (
	"path/filepath"
	"strconv"
	"time"

	psdp "github.com/pion/sdp/v3"

	"github.com/rtspond/rtspond/pkg/registry"
	"github.com/rtspond/rtspond/pkg/rtpformats"
)

// describeSDP builds the SDP answer for a DESCRIBE, one m= block per
// subsession (currently always exactly one, since the extension table only
// wires single-track formats), built with pion/sdp/v3 rather than
// hand-templated strings.
func (srv *server) describeSDP(sess *registry.Session) []byte {
	sub := sess.Subsessions[0]
	typ := strconv.Itoa(int(sub.PayloadType))

	var media psdp.MediaDescription
	switch sub.Format.(type) {
	case rtpformats.H264Format:
		media = psdp.MediaDescription{
			MediaName: psdp.MediaName{Media: "video", Protos: []string{"RTP", "AVP"}, Formats: []string{typ}},
			Attributes: []psdp.Attribute{
				{Key: "rtpmap", Value: typ + " H264/90000"},
				{Key: "control", Value: "trackID=0"},
			},
		}
	case rtpformats.AACFormat:
		media = psdp.MediaDescription{
			MediaName: psdp.MediaName{Media: "audio", Protos: []string{"RTP", "AVP"}, Formats: []string{typ}},
			Attributes: []psdp.Attribute{
				{Key: "rtpmap", Value: typ + " MPEG4-GENERIC/" + strconv.Itoa(int(sub.ClockRate))},
				{Key: "fmtp", Value: typ + " streamtype=5; profile-level-id=1; mode=AAC-hbr; sizelength=13; indexlength=3; indexdeltalength=3"},
				{Key: "control", Value: "trackID=0"},
			},
		}
	}

	desc := psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().Unix()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: psdp.SessionName(filepath.Base(sess.Name)),
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*psdp.MediaDescription{&media},
	}

	buf, err := desc.Marshal()
	if err != nil {
		return nil
	}
	return buf
}
