// Package scheduler implements the single-threaded cooperative event loop:
// a handler set for socket readiness, an edge-triggered trigger table for
// cross-goroutine wakeups, and a delta-queue of timers, combined so that
// each step of the loop dispatches at most one of each kind, in a fixed
// order (socket, then trigger, then timer). This is the direct re-expression
// of a classic single-threaded select-loop media scheduler for a single Go
// goroutine, which also makes the blocking epoll_wait call itself.
package scheduler

import (
	"errors"
	"time"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/liberrors"
)

// MaxWait caps the computed I/O deadline, mirroring the original scheduler's
// refusal to block longer than roughly a million seconds in one wait call.
const MaxWait = 1_000_000 * time.Second

// Loop owns one Poller, one HandlerSet, one TriggerTable, and one timer
// queue. It is not safe for concurrent use except through TriggerTable.Fire.
type Loop struct {
	poller   Poller
	handlers *HandlerSet
	triggers *TriggerTable
	timers   *delayqueue.Queue

	lastHandled SocketID
	events      []Event

	now func() time.Time
}

// NewLoop creates a Loop backed by poller. now defaults to time.Now.
func NewLoop(poller Poller, now func() time.Time) *Loop {
	if now == nil {
		now = time.Now
	}
	return &Loop{
		poller:   poller,
		handlers: NewHandlerSet(),
		triggers: NewTriggerTable(),
		timers:   delayqueue.New(now),
		now:      now,
		events:   make([]Event, 0, 64),
	}
}

// Handlers exposes the socket handler set for registration.
func (l *Loop) Handlers() *HandlerSet { return l.handlers }

// Triggers exposes the trigger table for registration and firing.
func (l *Loop) Triggers() *TriggerTable { return l.triggers }

// Timers exposes the delta-queue for scheduling delayed callbacks.
func (l *Loop) Timers() *delayqueue.Queue { return l.timers }

// SetSocketHandler registers socket with mask and cb, and tells the poller
// to watch it. This is the Go analogue of setBackgroundHandling.
func (l *Loop) SetSocketHandler(socket SocketID, mask Condition, cb HandlerFunc) error {
	existing := l.handlers.Mask(socket)
	l.handlers.Assign(socket, mask, cb)
	if existing == 0 {
		return l.poller.Add(socket, mask)
	}
	return l.poller.Modify(socket, mask)
}

// ClearSocketHandler removes socket's handler and stops watching it.
func (l *Loop) ClearSocketHandler(socket SocketID) error {
	if l.handlers.Mask(socket) == 0 {
		return nil
	}
	l.handlers.Clear(socket)
	if l.lastHandled == socket {
		l.lastHandled = 0
	}
	return l.poller.Remove(socket)
}

// MoveSocketHandler re-keys a handler from oldID to newID, e.g. after
// dup()'ing a descriptor, updating the poller registration to match.
func (l *Loop) MoveSocketHandler(oldID, newID SocketID) error {
	mask := l.handlers.Mask(oldID)
	if mask == 0 {
		return nil
	}
	l.handlers.Move(oldID, newID)
	if err := l.poller.Remove(oldID); err != nil {
		return err
	}
	return l.poller.Add(newID, mask)
}

// Step executes exactly one iteration of the event loop algorithm: compute
// the I/O deadline, wait for readiness, dispatch at most one socket handler,
// then at most one trigger, then fire at most one timer.
func (l *Loop) Step(callerMaxDelay time.Duration) error {
	deadline := l.timers.TimeUntilNext()
	if callerMaxDelay >= 0 && callerMaxDelay < deadline {
		deadline = callerMaxDelay
	}
	if deadline > MaxWait {
		deadline = MaxWait
	}

	l.events = l.events[:0]
	events, err := l.poller.Wait(deadline, l.events)
	if err != nil {
		var errno interface{ Temporary() bool }
		if errors.As(err, &errno) && errno.Temporary() {
			// spurious wake; continue on to dispatch whatever is
			// already pending rather than re-waiting immediately.
		} else {
			return liberrors.ErrFatalWait{Registered: l.handlers.Len(), Err: err}
		}
	}
	l.events = events

	if len(l.events) > 0 {
		ready := make(map[SocketID]Condition, len(l.events))
		for _, ev := range l.events {
			ready[ev.Socket] |= ev.Conditions
		}
		if s, ok := l.handlers.dispatchOne(ready, l.lastHandled); ok {
			l.lastHandled = s
		}
	}

	l.triggers.DispatchOne()

	l.timers.HandleAlarm()

	return nil
}

// Run repeatedly steps the loop until stop reports true. stop is checked
// between steps only, matching the original run_loop(stop_flag) contract.
func (l *Loop) Run(stop func() bool) error {
	for !stop() {
		if err := l.Step(-1); err != nil {
			return err
		}
	}
	return nil
}
