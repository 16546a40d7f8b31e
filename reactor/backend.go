// Package reactor defines the Backend contract (spec §4.4): the
// pluggable kernel-notification mechanism that the core dispatch engine
// polls from one worker goroutine while other goroutines register,
// rearm, or remove watches concurrently. This file holds the
// OS-independent contract; epoll_linux.go holds the concrete Linux
// implementation.
//
// Grounded on the select_traits / select_events method surface of
// original_source/dasynq-select.h, translated from a C++ traits
// template into a plain Go interface plus concrete parameter types.
//
// Author: momentics <momentics@gmail.com>
package reactor

import "github.com/concatime/dasynq/api"

// Receiver is implemented by (an adapter over) the dispatch queue. A
// backend must bracket a batch of receive calls within Lock/Unlock
// before invoking any Receive* method, per spec §4.3's "all callbacks
// invoked by the backend under L already held by the poll thread".
type Receiver interface {
	Lock()
	Unlock()
	ReceiveFdEvent(userdata any, flags api.EventMask)
	ReceiveSignal(userdata any, info api.SigInfo)
	ReceiveChildStat(userdata any, status int)
}

// Backend is the contract a concrete OS polling mechanism must
// implement. Every *_nolock variant must be called only while the
// DispatchQueue's lock is already held by the caller (see spec §4.4).
// A backend has no handle on that lock outside PullEvents, so the
// variants without the suffix take no lock either; loop.EventLoop
// holds the DispatchQueue's lock around those calls as well.
type Backend interface {
	// AddFdWatch registers one direction (IN or OUT, never both) on fd.
	// If softFail is true and fd's type is unsupported for polling,
	// AddFdWatch returns (false, nil) instead of an error.
	AddFdWatch(fd int, userdata any, flags api.EventMask, enabled bool, softFail bool) (bool, error)
	// AddBidiFdWatch registers both directions on fd in one call. It
	// returns which direction (if any) the backend cannot support
	// natively and must have emulated by the caller.
	AddBidiFdWatch(fd int, userdata any, flags api.EventMask, emulate bool) (emulated api.EventMask, err error)
	RemoveFdWatch(fd int, flags api.EventMask)
	RemoveFdWatchNolock(fd int, flags api.EventMask)
	RemoveBidiFdWatch(fd int)
	EnableFdWatch(fd int, userdata any, flags api.EventMask)
	EnableFdWatchNolock(fd int, userdata any, flags api.EventMask)
	DisableFdWatch(fd int, flags api.EventMask)
	DisableFdWatchNolock(fd int, flags api.EventMask)

	// AddSignalWatch installs delivery of signo, routing it away from
	// default disposition and into the backend's capture mechanism.
	AddSignalWatch(signo int, userdata any) error
	RearmSignalWatchNolock(signo int, userdata any)
	RemoveSignalWatch(signo int)
	RemoveSignalWatchNolock(signo int)

	// ReserveChildWatch preallocates capacity for one child watch outside
	// any critical region, so that AddReservedChildWatch cannot fail
	// after fork().
	ReserveChildWatch() (token int, err error)
	AddChildWatch(pid int, userdata any) error
	AddReservedChildWatch(token int, pid int, userdata any)

	// InterruptWait causes any in-progress PullEvents(true) call to
	// return promptly.
	InterruptWait()

	// PullEvents performs a single poll step. If doWait is true it
	// blocks until at least one event is observed or InterruptWait is
	// called; otherwise it returns immediately if nothing is pending.
	// A wait interrupted by a signal (EINTR) returns nil with nothing
	// delivered; EventLoop.Run simply polls again.
	// Observed events are delivered to recv before PullEvents returns.
	PullEvents(recv Receiver, doWait bool) error

	// Close releases the backend's kernel resources.
	Close() error
}
