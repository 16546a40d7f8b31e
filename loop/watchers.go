// File: loop/watchers.go
// Author: momentics <momentics@gmail.com>
//
// The three user-facing watcher wrapper types (spec §4.6/§6). Each is a
// thin struct that forwards register/deregister calls into EventLoop
// and prefills the fd/signo/pid fields the dispatch layer reads; the
// actual queued state lives in the embedded internal dispatch.Watcher.
package loop

import (
	"github.com/concatime/dasynq/api"
	"github.com/concatime/dasynq/internal/dispatch"
)

// FdWatcher watches one direction of readiness on a file descriptor.
//
// OnEvent must be set before calling Register and must not be changed
// while registered. Per spec §6, OnEvent must never call Deregister on
// this same FdWatcher; return api.Rearm_REMOVE instead.
type FdWatcher struct {
	OnEvent api.FdHandlerFunc
	// OnRemoved, if set, is called exactly once after this watcher has
	// been fully removed and it is safe for the owner to reuse or
	// discard it (spec §3 lifecycle step 5).
	OnRemoved func()

	watcher dispatch.Watcher
	loop    *EventLoop
}

func (w *FdWatcher) dispatchEvent(fd int, events api.EventMask) api.Rearm {
	return w.OnEvent(fd, events)
}

func (w *FdWatcher) fireRemoved() {
	if w.OnRemoved != nil {
		w.OnRemoved()
	}
}

// Register registers w on l for fd with the given watch flags (api.IN
// or api.OUT, optionally with api.ONESHOT; if both IN and OUT are set,
// only read readiness is watched).
func (w *FdWatcher) Register(l *EventLoop, fd int, flags api.EventMask) error {
	return l.RegisterFd(w, fd, flags)
}

// Deregister removes w from its loop. No-op if not registered.
func (w *FdWatcher) Deregister() {
	if w.loop == nil {
		return
	}
	l := w.loop
	w.loop = nil
	l.DeregisterFd(w)
}

// Fd returns the file descriptor this watcher was registered with.
func (w *FdWatcher) Fd() int { return w.watcher.Fd }

// SignalWatcher watches delivery of one signal number.
//
// OnSignal must be set before calling Register. Per spec §6, OnSignal
// must never call Deregister on this same SignalWatcher; return
// api.Rearm_REMOVE instead.
type SignalWatcher struct {
	OnSignal  api.SignalHandlerFunc
	OnRemoved func()

	watcher dispatch.Watcher
	loop    *EventLoop
}

func (w *SignalWatcher) dispatchSignal(signo int, info api.SigInfo) api.Rearm {
	return w.OnSignal(signo, info)
}

func (w *SignalWatcher) fireRemoved() {
	if w.OnRemoved != nil {
		w.OnRemoved()
	}
}

// Register registers w on l for signo.
func (w *SignalWatcher) Register(l *EventLoop, signo int) error {
	return l.RegisterSignal(w, signo)
}

// Deregister removes w from its loop. No-op if not registered.
func (w *SignalWatcher) Deregister() {
	if w.loop == nil {
		return
	}
	l := w.loop
	w.loop = nil
	l.DeregisterSignal(w)
}

// Signo returns the signal number this watcher was registered with.
func (w *SignalWatcher) Signo() int { return w.watcher.Signo }

// ChildWatcher watches termination of one child process. It fires
// exactly once and then removes itself; there is no Rearm decision.
type ChildWatcher struct {
	OnExit    api.ChildHandlerFunc
	OnRemoved func()

	watcher dispatch.Watcher
	loop    *EventLoop
}

func (w *ChildWatcher) dispatchExit(pid int, status int) {
	w.OnExit(pid, status)
}

func (w *ChildWatcher) fireRemoved() {
	if w.OnRemoved != nil {
		w.OnRemoved()
	}
}

// Reserve preallocates registration capacity on l, returning a token to
// pass to RegisterReserved. Call this before fork() so that the
// post-fork registration (RegisterReserved) cannot fail.
func (w *ChildWatcher) Reserve(l *EventLoop) (int, error) {
	return l.ReserveChildWatch()
}

// Register registers w on l to watch pid, reserving capacity itself.
func (w *ChildWatcher) Register(l *EventLoop, pid int) error {
	return l.RegisterChild(w, pid)
}

// RegisterReserved registers w on l to watch pid using a token
// previously returned by Reserve. It never fails.
func (w *ChildWatcher) RegisterReserved(l *EventLoop, token int, pid int) {
	l.RegisterReservedChild(w, token, pid)
}

// Pid returns the process ID this watcher was registered with.
func (w *ChildWatcher) Pid() int { return w.watcher.Pid }
