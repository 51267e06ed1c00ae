// Command rtspd is an on-demand RTSP/RTP media server: CLI glue that wires
// the scheduler, session registry, and RTSP control plane together. It
// keeps the wiring deliberately simple: flags, one listener, one blocking
// Run call, with no config-file layer.
package main

import (
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rtspond/rtspond/pkg/registry"
	"github.com/rtspond/rtspond/pkg/rtspbase"
	"github.com/rtspond/rtspond/pkg/scheduler"
	"github.com/rtspond/rtspond/pkg/session"
)

// idleReapInterval and idleSessionMaxAge drive the registry's
// ReapIdleSessions timer.
const (
	idleReapInterval  = 30 * time.Second
	idleSessionMaxAge = 5 * time.Minute
)

// server holds everything cmd/rtspd wires together: the event loop, the
// session registry, and the accepted control connections.
type server struct {
	loop      *scheduler.Loop
	registry  *registry.Registry
	mediaRoot string
	listenFD  int
	conns     map[int]*conn

	nextClient uint32
}

// nextClientID hands out a fresh ClientSessionID for each accepted
// connection, matching this server's one-connection-per-client model.
func (srv *server) nextClientID() session.ClientSessionID {
	srv.nextClient++
	return session.ClientSessionID(srv.nextClient)
}

func main() {
	addr := flag.String("addr", ":8554", "RTSP listen address")
	mediaRoot := flag.String("media-root", ".", "directory served RTSP stream paths are resolved against")
	portBase := flag.Int("rtp-port-base", 6970, "first RTP port candidate for new streams")
	flag.Parse()

	poller, err := scheduler.NewEpollPoller()
	if err != nil {
		log.Fatalf("rtspd: %v", err)
	}
	loop := scheduler.NewLoop(poller, time.Now)

	reg := registry.New(registry.Config{
		PortBase:            *portBase,
		PreferredPacketSize: 1400,
		MaxPacketSize:       1460,
		CNAME:               uuid.New().String(),
		Timers:              loop.Timers(),
		Now:                 time.Now,
	})
	reg.StartReaper(idleReapInterval, idleSessionMaxAge)

	listenFD, err := listenTCP(*addr)
	if err != nil {
		log.Fatalf("rtspd: %v", err)
	}

	srv := &server{
		loop:      loop,
		registry:  reg,
		mediaRoot: *mediaRoot,
		listenFD:  listenFD,
		conns:     map[int]*conn{},
	}

	err = loop.SetSocketHandler(scheduler.SocketID(listenFD), scheduler.Readable, func(scheduler.Condition) {
		srv.acceptOne()
	})
	if err != nil {
		log.Fatalf("rtspd: %v", err)
	}

	log.Printf("rtspd: listening on %s, serving %s", *addr, *mediaRoot)
	if err := loop.Run(func() bool { return false }); err != nil {
		log.Fatalf("rtspd: %v", err)
	}
}

func (srv *server) acceptOne() {
	fd, peer, err := acceptOne(srv.listenFD)
	if err != nil {
		log.Printf("rtspd: accept: %v", err)
		return
	}

	c := newConn(srv, fd, peer)
	srv.conns[fd] = c

	err = srv.loop.SetSocketHandler(scheduler.SocketID(fd), scheduler.Readable, c.handleReadable)
	if err != nil {
		log.Printf("rtspd: register conn: %v", err)
		c.raw.Close() //nolint:errcheck
		delete(srv.conns, fd)
	}
}

// lookup resolves an RTSP URL's path against mediaRoot and looks it up in
// the registry, building the backing Subsession on first access.
func (srv *server) lookup(url *rtspbase.URL) (*registry.Session, error) {
	return srv.registry.LookupOrCreate(filepath.Join(srv.mediaRoot, url.StreamPath()))
}

