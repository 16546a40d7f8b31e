// Package dispatch implements the pending-event queue and the watcher
// bookkeeping shared by all three watch kinds (fd, signal, child): the
// active/deleteme flag protocol and the intrusive, allocation-free
// pending list described in spec §4.3.
//
// Grounded on dprivate::BaseWatcher / BaseFdWatcher / BaseSignalWatcher /
// BaseChildWatcher and dprivate::EventDispatch in
// original_source/dasync.h (lines 82-336). Go has no tagged union, so
// the three watcher variants are folded into one flat struct behind a
// Kind tag rather than a class hierarchy — the "typed enum over watcher
// variants" spec §9 calls for.
//
// Author: momentics <momentics@gmail.com>
package dispatch

import "github.com/concatime/dasynq/api"

// Kind tags which payload fields of Watcher are meaningful.
type Kind int

const (
	KindFd Kind = iota
	KindSignal
	KindChild
)

// Watcher is the internal representation shared by all three public
// wrapper types (loop.FdWatcher, loop.SignalWatcher, loop.ChildWatcher).
// It is never exposed directly outside this module; each wrapper holds
// one by value and forwards handler calls into it.
type Watcher struct {
	Kind Kind

	// active is true from the moment an event for this watcher has been
	// received until its handler has returned and any rearm decision has
	// been applied. It doubles as "queued or currently dispatching",
	// per spec §4.3/§9 — a single flag deliberately serving both roles,
	// inherited unchanged from the source design.
	active bool
	// deleteme is set when removal is requested while active; it
	// overrides any handler-returned Rearm once dispatch completes.
	deleteme bool

	// next links this watcher into the intrusive pending list. Valid
	// only while linked (i.e. while active, from receive to detach).
	next *Watcher

	// Fd fields.
	Fd         int
	WatchFlags api.EventMask
	EventFlags api.EventMask
	OnEvent    func(fd int, events api.EventMask) api.Rearm

	// Signal fields.
	Signo   int
	SigInfo api.SigInfo
	OnSignal func(signo int, info api.SigInfo) api.Rearm

	// Child fields.
	Pid    int
	Status int
	OnExit func(pid int, status int)

	// Removed is called exactly once, after the loop guarantees no
	// dispatch of this watcher is running and none will ever run again.
	// It releases ownership of the Watcher back to its creator (see
	// spec §3 lifecycle step 5). It must not block or fail.
	Removed func()
}

// FireRemoved invokes the owner's teardown callback, if any. Callers
// must hold the owning Queue's lock and must guarantee (per spec §3
// lifecycle step 5) that no dispatch of w is running and none ever will
// be again.
func (w *Watcher) FireRemoved() {
	if w.Removed != nil {
		w.Removed()
	}
}

// Active reports whether w is currently queued or dispatching. Callers
// must hold the owning Queue's lock.
func (w *Watcher) Active() bool { return w.active }

// SetActive sets the active flag. Callers must hold the owning Queue's
// lock.
func (w *Watcher) SetActive(v bool) { w.active = v }

// Deleteme reports whether removal was requested while w was active.
// Callers must hold the owning Queue's lock.
func (w *Watcher) Deleteme() bool { return w.deleteme }

// Next returns the next watcher in a detached pending list, for callers
// walking the list returned by Queue.Detach.
func (w *Watcher) Next() *Watcher {
	return w.next
}

