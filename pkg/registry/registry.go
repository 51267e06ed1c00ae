// Package registry implements the lookup-or-create session registry:
// resolving a stream name to a cached Session, or constructing one from the
// backing file's extension via the table in extensions.go.
package registry

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/liberrors"
	"github.com/rtspond/rtspond/pkg/session"
)

// Session is one cached, lazily-created media session: a stream name mapped
// onto the Subsession(s) serving it. This server's extension table only
// wires single-subsession formats end to end; Subsessions has room for more than
// one entry so a future demuxing format (.mpg/.vob/.ts) can add both an
// audio and a video track without changing this type.
type Session struct {
	Name        string
	Description string
	Subsessions []*session.Subsession

	lastAccess time.Time
}

// touch records this session as accessed now, for the idle reaper.
func (sess *Session) touch(now time.Time) { sess.lastAccess = now }

// idle reports whether sess has had no client activity for at least maxAge
// and currently serves no client on any of its subsessions.
func (sess *Session) idle(now time.Time, maxAge time.Duration) bool {
	if now.Sub(sess.lastAccess) < maxAge {
		return false
	}
	for _, sub := range sess.Subsessions {
		if sub.ClientCount() > 0 {
			return false
		}
	}
	return true
}

// Config carries the fixed parameters every Subsession a Registry builds is
// given.
type Config struct {
	PortBase            int
	PreferredPacketSize int
	MaxPacketSize       int
	CNAME               string
	Timers              *delayqueue.Queue
	Now                 func() time.Time
}

// Registry is the lookup-or-create session cache, keyed by stream name
// (normally a filesystem path relative to the server's media root).
type Registry struct {
	cfg      Config
	sessions map[string]*Session

	reapTimer delayqueue.Token
}

// New builds an empty Registry. cfg.Now defaults to time.Now if nil.
func New(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:      cfg,
		sessions: map[string]*Session{},
	}
}

// LookupOrCreate implements the four-case lookup:
//   - no file, cached session exists: evict it, report not found.
//   - no file, no cached session: report not found.
//   - file exists, no cached session: build one from the extension table.
//   - file exists, cached session exists: return the cached session.
func (r *Registry) LookupOrCreate(name string) (*Session, error) {
	_, statErr := os.Stat(name)
	fileExists := statErr == nil

	cached, cachedExists := r.sessions[name]

	if !fileExists {
		if cachedExists {
			delete(r.sessions, name)
		}
		return nil, liberrors.ErrSessionNotFound{Name: name}
	}

	if cachedExists {
		cached.touch(r.cfg.Now())
		return cached, nil
	}

	sess, err := r.create(name)
	if err != nil {
		return nil, err
	}
	sess.touch(r.cfg.Now())
	r.sessions[name] = sess
	return sess, nil
}

func (r *Registry) create(name string) (*Session, error) {
	ext := filepath.Ext(name)
	entry, ok := extensionTable[ext]
	if !ok || entry.build == nil {
		return nil, liberrors.ErrUnknownExtension{Name: name, Ext: ext}
	}

	sub, err := entry.build(name, r.cfg)
	if err != nil {
		return nil, err
	}
	sub.Initialize()

	return &Session{
		Name:        name,
		Description: entry.description,
		Subsessions: []*session.Subsession{sub},
	}, nil
}

// Remove evicts name from the cache unconditionally, e.g. after an explicit
// administrative teardown.
func (r *Registry) Remove(name string) {
	delete(r.sessions, name)
}

// Len reports how many sessions are currently cached.
func (r *Registry) Len() int { return len(r.sessions) }

// ReapIdleSessions evicts every cached session idle for at least maxAge.
func (r *Registry) ReapIdleSessions(maxAge time.Duration) {
	now := r.cfg.Now()
	for name, sess := range r.sessions {
		if sess.idle(now, maxAge) {
			delete(r.sessions, name)
		}
	}
}

// StartReaper arms a self-rescheduling delta-queue timer that calls
// ReapIdleSessions every interval. Call StopReaper to cancel it.
func (r *Registry) StartReaper(interval, maxAge time.Duration) {
	var tick func()
	tick = func() {
		r.ReapIdleSessions(maxAge)
		r.reapTimer = r.cfg.Timers.Schedule(interval, tick)
	}
	r.reapTimer = r.cfg.Timers.Schedule(interval, tick)
}

// StopReaper cancels a reaper armed by StartReaper, if any.
func (r *Registry) StopReaper() {
	if r.reapTimer != 0 {
		r.cfg.Timers.Cancel(r.reapTimer)
		r.reapTimer = 0
	}
}
