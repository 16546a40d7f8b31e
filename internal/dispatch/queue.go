package dispatch

import (
	"sync"

	"github.com/concatime/dasynq/api"
)

// Queue is the DispatchQueue of spec §4.3: it owns the mutex that
// protects the pending list and every watcher's active/deleteme flags,
// and it is the callback target the backend invokes (with its own
// receive-path lock held) when it observes a fd/signal/child event.
type Queue struct {
	mu    sync.Mutex
	first *Watcher
}

// Lock and Unlock expose Queue's mutex directly for the small number of
// operations (the *_nolock backend calls made from EventLoop.processEvents)
// that spec §4.4 requires to run "under L already held by the caller".
func (q *Queue) Lock()   { q.mu.Lock() }
func (q *Queue) Unlock() { q.mu.Unlock() }

func (q *Queue) push(w *Watcher) {
	w.next = q.first
	q.first = w
}

// ReceiveFdEvent is called by the backend (with Queue.mu already held by
// the polling goroutine) when fd readiness for w is observed.
func (q *Queue) ReceiveFdEvent(w *Watcher, flags api.EventMask) {
	w.EventFlags = flags
	w.active = true
	q.push(w)
}

// ReceiveSignal is called by the backend when a watched signal is
// delivered.
func (q *Queue) ReceiveSignal(w *Watcher, info api.SigInfo) {
	w.SigInfo = info
	w.active = true
	q.push(w)
}

// ReceiveChildStat is called by the backend when a watched child
// terminates.
func (q *Queue) ReceiveChildStat(w *Watcher, status int) {
	w.Status = status
	w.active = true
	q.push(w)
}

// IssueDelete must be called while the AttentionLock is held (so no
// poll can queue a new event for w concurrently). If w is active
// (queued, or its handler is running on another goroutine), deletion is
// deferred until that dispatch drains; otherwise Removed fires
// immediately.
func (q *Queue) IssueDelete(w *Watcher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w.active {
		w.deleteme = true
		return
	}
	w.FireRemoved()
}

// Detach atomically takes the whole pending list, marks non-deleteme
// entries reaffirmed active (they already are; this mirrors the source
// exactly, see spec §4.5 step 1), unlinks and finalizes deleteme
// entries in place, and reports whether any work remains to dispatch.
// Must be called without Queue.mu held; it acquires and releases it
// itself.
func (q *Queue) Detach() (pending *Watcher, hadWork bool) {
	q.mu.Lock()
	pqueue := q.first
	q.first = nil

	var prev *Watcher
	for w := pqueue; w != nil; {
		next := w.next
		if w.deleteme {
			w.FireRemoved()
			if prev != nil {
				prev.next = next
			} else {
				pqueue = next
			}
		} else {
			w.active = true
			hadWork = true
			prev = w
		}
		w = next
	}
	q.mu.Unlock()
	return pqueue, hadWork
}

// Len reports the current length of the pending list, for introspection
// (control.DebugProbes' "pending_list_len").
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for w := q.first; w != nil; w = w.next {
		n++
	}
	return n
}
