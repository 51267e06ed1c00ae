package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"regexp"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/rtspond/rtspond/pkg/registry"
	"github.com/rtspond/rtspond/pkg/rtspbase"
	"github.com/rtspond/rtspond/pkg/scheduler"
	"github.com/rtspond/rtspond/pkg/session"
)

// fdConn adapts a raw, blocking socket descriptor to io.Reader/io.Writer so
// it can sit behind a bufio.Reader/Writer pair. Per-connection sockets are
// intentionally left in blocking mode (see listenTCP's doc comment): the
// scheduler only guarantees a connection's first byte has arrived when its
// handler fires, so parsing one full RTSP request here may still block the
// single loop thread waiting for the rest of a slow client's request. This
// assumes a control connection's request arrives effectively as one read,
// and is documented as a known simplification rather than a full
// incremental request parser.
type fdConn struct {
	fd int
}

func (c *fdConn) Read(p []byte) (int, error)  { return unix.Read(c.fd, p) }
func (c *fdConn) Write(p []byte) (int, error) { return unix.Write(c.fd, p) }
func (c *fdConn) Close() error                { return unix.Close(c.fd) }

var transportClientPortRe = regexp.MustCompile(`client_port=(\d+)-(\d+)`)

// conn is one RTSP control connection. It owns at most one active
// registry.Session (this server's extension table only ever builds
// single-subsession sessions, so Subsessions[0] is always "the track").
type conn struct {
	fd  int
	raw *fdConn
	rb  *bufio.Reader
	wb  *bufio.Writer

	srv *server

	clientIP net.IP
	clientID session.ClientSessionID
	sess     *registry.Session
	torn     bool
}

func newConn(srv *server, fd int, peer *unix.SockaddrInet4) *conn {
	raw := &fdConn{fd: fd}
	return &conn{
		fd:       fd,
		raw:      raw,
		rb:       bufio.NewReader(raw),
		wb:       bufio.NewWriter(raw),
		srv:      srv,
		clientIP: net.IP(peer.Addr[:]),
		clientID: srv.nextClientID(),
	}
}

// handleReadable is this connection's scheduler.HandlerFunc: read and
// dispatch exactly one RTSP request, then write its response.
func (c *conn) handleReadable(scheduler.Condition) {
	var req rtspbase.Request
	if err := req.Read(c.rb); err != nil {
		c.close()
		return
	}

	res := c.dispatch(&req)
	if cseq, ok := req.Header["CSeq"]; ok {
		if res.Header == nil {
			res.Header = rtspbase.Header{}
		}
		res.Header["CSeq"] = cseq
	}

	if err := res.Write(c.wb); err != nil {
		c.close()
		return
	}

	if c.torn {
		c.close()
	}
}

func (c *conn) close() {
	c.srv.loop.ClearSocketHandler(scheduler.SocketID(c.fd)) //nolint:errcheck
	if c.sess != nil && !c.torn {
		for _, sub := range c.sess.Subsessions {
			sub.Teardown(c.clientID) //nolint:errcheck
		}
	}
	c.raw.Close() //nolint:errcheck
	delete(c.srv.conns, c.fd)
}

func (c *conn) dispatch(req *rtspbase.Request) rtspbase.Response {
	switch req.Method {
	case rtspbase.Options:
		return rtspbase.Response{StatusCode: rtspbase.StatusOK}

	case rtspbase.Describe:
		return c.handleDescribe(req)

	case rtspbase.Setup:
		return c.handleSetup(req)

	case rtspbase.Play:
		return c.handlePlayOrPause(req, true)

	case rtspbase.Pause:
		return c.handlePlayOrPause(req, false)

	case rtspbase.Teardown:
		return c.handleTeardown()

	default:
		return rtspbase.Response{StatusCode: rtspbase.StatusMethodNotAllowed}
	}
}

func (c *conn) handleDescribe(req *rtspbase.Request) rtspbase.Response {
	sess, err := c.srv.lookup(req.URL)
	if err != nil {
		log.Printf("describe %s: %v", req.URL, err)
		return rtspbase.Response{StatusCode: rtspbase.StatusNotFound}
	}

	sdp := c.srv.describeSDP(sess)
	return rtspbase.Response{
		StatusCode: rtspbase.StatusOK,
		Header:     rtspbase.Header{"Content-Type": rtspbase.HeaderValue{"application/sdp"}},
		Body:       sdp,
	}
}

func (c *conn) handleSetup(req *rtspbase.Request) rtspbase.Response {
	sess, err := c.srv.lookup(req.URL)
	if err != nil {
		return rtspbase.Response{StatusCode: rtspbase.StatusNotFound}
	}
	if len(sess.Subsessions) == 0 {
		return rtspbase.Response{StatusCode: rtspbase.StatusInternalServerError}
	}
	sub := sess.Subsessions[0]

	transport := req.Header["Transport"]
	if len(transport) == 0 {
		return rtspbase.Response{StatusCode: rtspbase.StatusBadRequest}
	}
	m := transportClientPortRe.FindStringSubmatch(transport[0])
	if m == nil {
		// TCP-interleaved transport is supported by pkg/session
		// (Subsession.AddDestinationTCP) but not wired into this CLI.
		return rtspbase.Response{StatusCode: rtspbase.StatusUnsupportedTransport}
	}
	rtpPort, _ := strconv.Atoi(m[1])
	rtcpPort, _ := strconv.Atoi(m[2])

	st, err := sub.GetStreamParameters(c.clientID)
	if err != nil {
		log.Printf("setup %s: %v", req.URL, err)
		return rtspbase.Response{StatusCode: rtspbase.StatusInternalServerError}
	}
	if err := sub.AddDestinationUDP(c.clientID, c.clientIP, rtpPort, rtcpPort); err != nil {
		return rtspbase.Response{StatusCode: rtspbase.StatusInternalServerError}
	}

	c.sess = sess

	return rtspbase.Response{
		StatusCode: rtspbase.StatusOK,
		Header: rtspbase.Header{
			"Session": rtspbase.HeaderValue{fmt.Sprintf("%08X", c.clientID)},
			"Transport": rtspbase.HeaderValue{fmt.Sprintf(
				"RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d",
				rtpPort, rtcpPort, st.RTPPort, st.RTCPPort,
			)},
		},
	}
}

func (c *conn) handlePlayOrPause(req *rtspbase.Request, play bool) rtspbase.Response {
	if c.sess == nil {
		return rtspbase.Response{StatusCode: rtspbase.StatusMethodNotValidInThisState}
	}
	sub := c.sess.Subsessions[0]

	var err error
	if play {
		err = sub.Start(c.clientID)
	} else {
		err = sub.Pause(c.clientID)
	}
	if err != nil {
		log.Printf("play/pause %s: %v", req.URL, err)
		return rtspbase.Response{StatusCode: rtspbase.StatusInternalServerError}
	}

	return rtspbase.Response{
		StatusCode: rtspbase.StatusOK,
		Header:     rtspbase.Header{"Session": rtspbase.HeaderValue{fmt.Sprintf("%08X", c.clientID)}},
	}
}

func (c *conn) handleTeardown() rtspbase.Response {
	if c.sess == nil {
		return rtspbase.Response{StatusCode: rtspbase.StatusMethodNotValidInThisState}
	}
	for _, sub := range c.sess.Subsessions {
		sub.Teardown(c.clientID) //nolint:errcheck
	}
	c.torn = true
	return rtspbase.Response{StatusCode: rtspbase.StatusOK}
}
