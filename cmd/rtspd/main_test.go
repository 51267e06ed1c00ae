package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/stretchr/testify/require"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/registry"
	"github.com/rtspond/rtspond/pkg/rtspbase"
)

func writeH264File(t *testing.T, dir string) string {
	t.Helper()
	enc, err := h264.AnnexBMarshal([][]byte{{0x65, 0x01, 0x02}})
	require.NoError(t, err)
	p := filepath.Join(dir, "stream.264")
	require.NoError(t, os.WriteFile(p, enc, 0o644))
	return p
}

func newTestServer(t *testing.T) (*server, string) {
	t.Helper()
	root := t.TempDir()
	now := func() time.Time { return time.Unix(2000, 0) }
	reg := registry.New(registry.Config{
		PortBase:            19000,
		PreferredPacketSize: 1000,
		MaxPacketSize:       1400,
		CNAME:               "test-cname",
		Timers:              delayqueue.New(now),
		Now:                 now,
	})
	return &server{registry: reg, mediaRoot: root, conns: map[int]*conn{}}, root
}

func TestServerLookupResolvesStreamPath(t *testing.T) {
	srv, root := newTestServer(t)
	writeH264File(t, root)

	u, err := rtspbase.ParseURL("rtsp://127.0.0.1:8554/stream.264")
	require.NoError(t, err)

	sess, err := srv.lookup(u)
	require.NoError(t, err)
	require.Len(t, sess.Subsessions, 1)
}

func TestServerLookupMissingFileFails(t *testing.T) {
	srv, _ := newTestServer(t)

	u, err := rtspbase.ParseURL("rtsp://127.0.0.1:8554/missing.264")
	require.NoError(t, err)

	_, err = srv.lookup(u)
	require.Error(t, err)
}

func TestDescribeSDPProducesH264MediaBlock(t *testing.T) {
	srv, root := newTestServer(t)
	path := writeH264File(t, root)

	u, err := rtspbase.ParseURL("rtsp://127.0.0.1:8554/stream.264")
	require.NoError(t, err)
	sess, err := srv.lookup(u)
	require.NoError(t, err)
	require.Equal(t, path, sess.Name)

	sdp := srv.describeSDP(sess)
	require.Contains(t, string(sdp), "m=video")
	require.Contains(t, string(sdp), "H264/90000")
}

func TestConnDispatchOptionsReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &conn{srv: srv}

	req := &rtspbase.Request{Method: rtspbase.Options}
	res := c.dispatch(req)
	require.Equal(t, rtspbase.StatusOK, res.StatusCode)
}

func TestConnDispatchDescribeMissingStreamReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &conn{srv: srv}

	u, err := rtspbase.ParseURL("rtsp://127.0.0.1:8554/missing.264")
	require.NoError(t, err)
	req := &rtspbase.Request{Method: rtspbase.Describe, URL: u}

	res := c.dispatch(req)
	require.Equal(t, rtspbase.StatusNotFound, res.StatusCode)
}

func TestConnDispatchUnknownMethodReturnsMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &conn{srv: srv}

	req := &rtspbase.Request{Method: rtspbase.Method("ANNOUNCE")}
	res := c.dispatch(req)
	require.Equal(t, rtspbase.StatusMethodNotAllowed, res.StatusCode)
}

func TestConnDispatchPlayBeforeSetupReturnsMethodNotValid(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &conn{srv: srv}

	res := c.dispatch(&rtspbase.Request{Method: rtspbase.Play})
	require.Equal(t, rtspbase.StatusMethodNotValidInThisState, res.StatusCode)
}

func TestConnDispatchSetupWithoutTransportHeaderReturnsBadRequest(t *testing.T) {
	srv, root := newTestServer(t)
	writeH264File(t, root)
	c := &conn{srv: srv}

	u, err := rtspbase.ParseURL("rtsp://127.0.0.1:8554/stream.264")
	require.NoError(t, err)
	req := &rtspbase.Request{Method: rtspbase.Setup, URL: u}

	res := c.dispatch(req)
	require.Equal(t, rtspbase.StatusBadRequest, res.StatusCode)
}

func TestConnDispatchSetupWithInterleavedTransportIsUnsupported(t *testing.T) {
	srv, root := newTestServer(t)
	writeH264File(t, root)
	c := &conn{srv: srv}

	u, err := rtspbase.ParseURL("rtsp://127.0.0.1:8554/stream.264")
	require.NoError(t, err)
	req := &rtspbase.Request{
		Method: rtspbase.Setup,
		URL:    u,
		Header: rtspbase.Header{"Transport": rtspbase.HeaderValue{"RTP/AVP/TCP;interleaved=0-1"}},
	}

	res := c.dispatch(req)
	require.Equal(t, rtspbase.StatusUnsupportedTransport, res.StatusCode)
}

func TestResponseBodyRoundTripsThroughWrite(t *testing.T) {
	srv, root := newTestServer(t)
	path := writeH264File(t, root)
	u, err := rtspbase.ParseURL("rtsp://127.0.0.1:8554/stream.264")
	require.NoError(t, err)
	sess, err := srv.lookup(u)
	require.NoError(t, err)
	require.Equal(t, path, sess.Name)

	res := rtspbase.Response{StatusCode: rtspbase.StatusOK, Body: srv.describeSDP(sess)}

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	require.NoError(t, res.Write(bw))
	require.Contains(t, buf.String(), "m=video")
}
