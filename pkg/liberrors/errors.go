// Package liberrors defines one error type per failure mode raised by this
// repository's core packages: a bare struct per kind, an Error() string
// method, no wrapping boilerplate.
package liberrors

import "fmt"

// ErrTriggerTableFull describes a trigger table with every slot already
// allocated. TriggerTable.CreateTrigger itself reports that case by
// returning the zero TriggerID, not this error.
type ErrTriggerTableFull struct{}

// Error implements the error interface.
func (e ErrTriggerTableFull) Error() string {
	return "trigger table is full"
}

// ErrPortRangeExhausted is returned by session setup when no RTP/RTCP port
// pair could be bound within the configured search range.
type ErrPortRangeExhausted struct {
	Base  int
	Tries int
}

// Error implements the error interface.
func (e ErrPortRangeExhausted) Error() string {
	return fmt.Sprintf("no free RTP/RTCP port pair found starting at %d after %d tries", e.Base, e.Tries)
}

// ErrSessionNotFound is returned by the registry when a stream name has no
// backing file and no cached session.
type ErrSessionNotFound struct {
	Name string
}

// Error implements the error interface.
func (e ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.Name)
}

// ErrBufferTooSmall is reported (not fatal) when a frame source hands back a
// frame larger than the output buffer's max size; the frame is truncated.
type ErrBufferTooSmall struct {
	Needed int
	Max    int
}

// Error implements the error interface.
func (e ErrBufferTooSmall) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds buffer max size %d, truncating", e.Needed, e.Max)
}

// ErrUnknownExtension is returned by the registry when a stream name's file
// extension has no registered subsession factory.
type ErrUnknownExtension struct {
	Name string
	Ext  string
}

// Error implements the error interface.
func (e ErrUnknownExtension) Error() string {
	return fmt.Sprintf("no subsession factory registered for extension %q (stream %s)", e.Ext, e.Name)
}

// ErrReuseFirstSourceImmutable is returned by Pause/Seek/SetScale on a
// subsession configured to reuse its first source: mutating shared-source
// state on behalf of one client would affect every other client sharing it.
type ErrReuseFirstSourceImmutable struct{}

// Error implements the error interface.
func (e ErrReuseFirstSourceImmutable) Error() string {
	return "cannot pause, seek, or change scale: subsession reuses its first source"
}

// ErrDestinationNotFound is returned when a teardown or per-client operation
// references a client session id with no registered Destinations entry.
type ErrDestinationNotFound struct {
	ClientSessionID uint32
}

// Error implements the error interface.
func (e ErrDestinationNotFound) Error() string {
	return fmt.Sprintf("no destination registered for client session %d", e.ClientSessionID)
}

// ErrFatalWait is returned when the scheduler's readiness wait fails with an
// error that is not a transient interrupt; the caller should treat this as a
// program invariant violation, not a retryable condition.
type ErrFatalWait struct {
	Registered int
	Err        error
}

// Error implements the error interface.
func (e ErrFatalWait) Error() string {
	return fmt.Sprintf("readiness wait failed with %d handlers registered: %v", e.Registered, e.Err)
}

// Unwrap allows errors.Is/As to reach the underlying wait error.
func (e ErrFatalWait) Unwrap() error { return e.Err }

// ErrStreamNotPlaying describes a StreamState that was never started. No
// function in this repository returns it; Subsession.Pause on a stream
// that is not playing returns nil.
type ErrStreamNotPlaying struct{}

// Error implements the error interface.
func (e ErrStreamNotPlaying) Error() string {
	return "stream is not currently playing"
}

// ErrNoFramesLeft marks a source that has reported EOF; further
// GetNextFrame calls are programming errors.
type ErrNoFramesLeft struct{}

// Error implements the error interface.
func (e ErrNoFramesLeft) Error() string {
	return "source has no frames left"
}

// ErrSeekUnsupported is returned by Subsession.Seek when the underlying
// frame source implements no seek hook.
type ErrSeekUnsupported struct{}

// Error implements the error interface.
func (e ErrSeekUnsupported) Error() string {
	return "source does not support seeking"
}
