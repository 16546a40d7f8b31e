// Package api defines the shared value types that cross the boundary
// between the event loop core and its pluggable backend: the Rearm
// decision, fd event/watch masks, and the SigInfo contract.
//
// Author: momentics <momentics@gmail.com>
package api

// Rearm is the post-dispatch decision returned by fd and signal
// handlers, selecting what happens to the watcher after the handler
// returns.
type Rearm int

const (
	// Rearm re-arms the watcher so it receives further matching events.
	Rearm_REARM Rearm = iota
	// Disarm leaves the backend registration unchanged. An fd watch
	// registered with ONESHOT is already disabled once it has fired, so
	// it stays quiet until explicitly re-enabled or re-registered; an fd
	// watch without ONESHOT, and a signal watch, still fire on later
	// events.
	Rearm_DISARM
	// Remove removes the watcher and calls its owner's OnRemoved
	// callback.
	Rearm_REMOVE
)

func (r Rearm) String() string {
	switch r {
	case Rearm_REARM:
		return "Rearm"
	case Rearm_DISARM:
		return "Disarm"
	case Rearm_REMOVE:
		return "Remove"
	default:
		return "Rearm(?)"
	}
}

// EventMask is a bitmask of fd readiness/watch flags.
type EventMask int

const (
	// IN indicates read-readiness, either as a watch flag or an observed
	// event flag.
	IN EventMask = 1 << iota
	// OUT indicates write-readiness.
	OUT
	// ERR indicates an error condition was observed (only ever set on
	// event_flags, never accepted as a watch flag).
	ERR
	// HUP indicates the peer hung up (only ever set on event_flags).
	HUP
	// ONESHOT requests that the watch fire at most once before it must
	// be re-armed explicitly.
	ONESHOT
)

// Has reports whether m contains all bits of other.
func (m EventMask) Has(other EventMask) bool {
	return m&other == other
}

// SigInfo is the delivery record for a captured signal: a Go-idiomatic
// stand-in for POSIX siginfo_t, implemented by whatever concrete
// backend captured the signal (see reactor.linuxSigInfo). It is
// constructed at delivery time and consumed by the handler; it must not
// be retained past the handler call, since the concrete backend may
// reuse or overwrite the storage backing it.
type SigInfo interface {
	// Signo is the signal number.
	Signo() int
	// Code is the si_code delivered with the signal.
	Code() int
	// SenderPID is the pid of the process that sent the signal, if
	// available.
	SenderPID() int
	// SenderUID is the uid of the process that sent the signal, if
	// available.
	SenderUID() int
	// Addr is the faulting address, for signals that carry one (e.g.
	// SIGSEGV); zero otherwise.
	Addr() uintptr
	// Status is the exit/trap status carried by the signal, if any.
	Status() int
	// Value is the sigval integer payload delivered via sigqueue(3).
	Value() int
	// Errno is the si_errno delivered with the signal.
	Errno() int
}
