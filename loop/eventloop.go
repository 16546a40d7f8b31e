// File: loop/eventloop.go
// Author: momentics <momentics@gmail.com>
//
// EventLoop is the orchestrator described in spec §4.5: it exposes the
// public register/deregister operations, runs the poll-then-dispatch
// cycle, and serializes handler rearm decisions against backend state.
// Control flow (run/processEvents, the rearm tie-break rules) follows
// original_source/dasync.h's EventLoop<T_Mutex> (lines 340-693)
// one-to-one; the AttentionLock/DispatchQueue plumbing is provided by
// internal/attn and internal/dispatch.
//
// AttentionLock (attn.Lock) gives priority to mutators over the poller
// and excludes its holders from one another, so a register/deregister
// call never overlaps a PullEvents call. processEvents runs without it,
// though, and its *_nolock rearm calls can overlap either. The
// backend's registration tables (fds, sigUserdata, activeSigmask,
// children in reactor.linuxBackend) are read by PullEvents and written
// by every Add/Remove/Enable/Disable* call, so every call into the
// backend — from the register/deregister paths below and from
// processEvents's *_nolock rearm calls alike — is made with
// EventLoop.queue's mutex held, matching the receive-path locking
// reactor.Receiver.Lock/Unlock already provides around PullEvents.
package loop

import (
	"log"
	"sync"

	"github.com/concatime/dasynq/api"
	"github.com/concatime/dasynq/control"
	"github.com/concatime/dasynq/internal/attn"
	"github.com/concatime/dasynq/internal/dispatch"
	"github.com/concatime/dasynq/reactor"
)

// EventLoop dispatches fd, signal, and child events to registered
// watchers. The zero value is not usable; construct with New.
type EventLoop struct {
	cfg     *Config
	backend reactor.Backend
	queue   dispatch.Queue
	attn    attn.Lock
	recv    *queueReceiver

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs an EventLoop. If no backend is supplied via
// WithBackend, the platform's reference backend is used (see
// reactor.NewLinuxBackend).
func New(opts ...Option) (*EventLoop, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	backend := cfg.Backend
	if backend == nil {
		b, err := reactor.NewLinuxBackend()
		if err != nil {
			return nil, err
		}
		backend = b
	}

	l := &EventLoop{
		cfg:     cfg,
		backend: backend,
		stopCh:  make(chan struct{}),
	}
	l.recv = &queueReceiver{q: &l.queue}
	l.attn.Interrupt = l.interruptWait
	if cfg.Debug != nil {
		cfg.Debug.RegisterProbe("pending_list_len", func() any { return l.queue.Len() })
	}
	return l, nil
}

// Close releases the loop's backend resources. It does not stop any
// goroutine currently in Run; call Stop first.
func (l *EventLoop) Close() error {
	return l.backend.Close()
}

// Stop causes every goroutine currently blocked in Run to return. Safe
// to call more than once and safe to call from any goroutine.
func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.interruptWait()
}

// interruptWait wakes an in-progress PullEvents(true) call, counting the
// interruption in control.KeyPollInterrupts when metrics are attached.
// Bound to attn.Lock.Interrupt so every attention waiter queued behind a
// poll goes through this path, not just Stop.
func (l *EventLoop) interruptWait() {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.Incr(control.KeyPollInterrupts, 1)
	}
	l.backend.InterruptWait()
}

func (l *EventLoop) incrWatchersActive() {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.Incr(control.KeyWatchersActive, 1)
	}
}

func (l *EventLoop) decrWatchersActive() {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.Incr(control.KeyWatchersActive, -1)
	}
}

// Run executes the poll-then-dispatch cycle described in spec §4.5
// until Stop is called. Any number of goroutines may call Run
// concurrently; they serialize on the poll side of the attention lock,
// so at most one goroutine polls the backend at a time while others
// dispatch already-queued events in parallel.
func (l *EventLoop) Run() error {
	for {
		select {
		case <-l.stopCh:
			return nil
		default:
		}

		if l.processEvents() {
			continue
		}

		select {
		case <-l.stopCh:
			return nil
		default:
		}

		tok := l.attn.AcquirePoll()
		select {
		case <-l.stopCh:
			l.attn.Release(tok)
			return nil
		default:
		}
		err := l.backend.PullEvents(l.recv, true)
		l.attn.Release(tok)
		if err != nil {
			l.cfg.Logger.Printf("dasynq: poll error: %v", err)
		}
	}
}

// processEvents detaches the pending list and dispatches every watcher
// on it, applying each one's rearm decision. It returns true iff at
// least one handler ran, per spec §4.5 step semantics.
func (l *EventLoop) processEvents() bool {
	pending, hadWork := l.queue.Detach()

	dispatched := 0
	for w := pending; w != nil; {
		next := w.Next()
		dispatched++

		var rearm api.Rearm
		switch w.Kind {
		case dispatch.KindFd:
			rearm = w.OnEvent(w.Fd, w.EventFlags)
		case dispatch.KindSignal:
			rearm = w.OnSignal(w.Signo, w.SigInfo)
		case dispatch.KindChild:
			w.OnExit(w.Pid, w.Status)
			rearm = api.Rearm_REMOVE
		}

		l.queue.Lock()
		w.SetActive(false)
		if w.Deleteme() {
			rearm = api.Rearm_REMOVE
		}
		switch w.Kind {
		case dispatch.KindFd:
			switch rearm {
			case api.Rearm_REARM:
				l.backend.EnableFdWatchNolock(w.Fd, w, w.WatchFlags)
			case api.Rearm_REMOVE:
				l.backend.RemoveFdWatchNolock(w.Fd, w.WatchFlags)
			}
		case dispatch.KindSignal:
			switch rearm {
			case api.Rearm_REARM:
				l.backend.RearmSignalWatchNolock(w.Signo, w)
			case api.Rearm_REMOVE:
				l.backend.RemoveSignalWatchNolock(w.Signo)
			}
		}
		if rearm == api.Rearm_REMOVE {
			w.FireRemoved()
		}
		l.queue.Unlock()

		w = next
	}

	if l.cfg.Metrics != nil && dispatched > 0 {
		l.cfg.Metrics.Incr(control.KeyEventsDispatched, int64(dispatched))
	}
	return hadWork
}

// removeCallback wraps a watcher wrapper's fireRemoved so removal also
// keeps control.KeyWatchersActive accurate.
func (l *EventLoop) removeCallback(fireRemoved func()) func() {
	return func() {
		l.decrWatchersActive()
		fireRemoved()
	}
}

// RegisterFd registers w for readiness on fd per flags (api.IN or
// api.OUT, optionally with api.ONESHOT). One direction is watched: if
// both IN and OUT are set, only read readiness is registered.
func (l *EventLoop) RegisterFd(w *FdWatcher, fd int, flags api.EventMask) error {
	tok := l.attn.AcquireAttention()
	defer l.attn.Release(tok)

	dw := &w.watcher
	dw.Kind = dispatch.KindFd
	dw.Fd = fd
	dw.WatchFlags = flags
	dw.OnEvent = w.dispatchEvent
	dw.Removed = l.removeCallback(w.fireRemoved)

	l.queue.Lock()
	ok, err := l.backend.AddFdWatch(fd, dw, flags, true, false)
	l.queue.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return api.ErrUnsupportedFDType
	}
	w.loop = l
	l.incrWatchersActive()
	return nil
}

// DeregisterFd removes w. When it returns, w's handler will never be
// called for another event. If the handler is running on another
// goroutine at that moment, that call is not waited for: it completes,
// its Rearm decision is overridden with Remove, and OnRemoved fires
// after it returns.
func (l *EventLoop) DeregisterFd(w *FdWatcher) {
	tok := l.attn.AcquireAttention()
	defer l.attn.Release(tok)

	l.queue.Lock()
	l.backend.RemoveFdWatch(w.watcher.Fd, w.watcher.WatchFlags)
	l.queue.Unlock()
	l.queue.IssueDelete(&w.watcher)
}

// RegisterSignal registers w to receive deliveries of signo.
func (l *EventLoop) RegisterSignal(w *SignalWatcher, signo int) error {
	tok := l.attn.AcquireAttention()
	defer l.attn.Release(tok)

	dw := &w.watcher
	dw.Kind = dispatch.KindSignal
	dw.Signo = signo
	dw.OnSignal = w.dispatchSignal
	dw.Removed = l.removeCallback(w.fireRemoved)

	l.queue.Lock()
	err := l.backend.AddSignalWatch(signo, dw)
	l.queue.Unlock()
	if err != nil {
		return err
	}
	w.loop = l
	l.incrWatchersActive()
	return nil
}

// DeregisterSignal removes w.
func (l *EventLoop) DeregisterSignal(w *SignalWatcher) {
	tok := l.attn.AcquireAttention()
	defer l.attn.Release(tok)

	l.queue.Lock()
	l.backend.RemoveSignalWatch(w.watcher.Signo)
	l.queue.Unlock()
	l.queue.IssueDelete(&w.watcher)
}

// ReserveChildWatch preallocates capacity for one child watch, so that
// RegisterReservedChild can be called after fork() without risk of
// allocation failure.
func (l *EventLoop) ReserveChildWatch() (int, error) {
	tok := l.attn.AcquireAttention()
	defer l.attn.Release(tok)

	l.queue.Lock()
	defer l.queue.Unlock()
	return l.backend.ReserveChildWatch()
}

// RegisterChild registers w to watch pid, reserving capacity itself
// first. Use ReserveChildWatch + RegisterReservedChild instead when
// registration must happen after fork().
func (l *EventLoop) RegisterChild(w *ChildWatcher, pid int) error {
	tok := l.attn.AcquireAttention()
	defer l.attn.Release(tok)

	dw := &w.watcher
	dw.Kind = dispatch.KindChild
	dw.Pid = pid
	dw.OnExit = w.dispatchExit
	dw.Removed = l.removeCallback(w.fireRemoved)

	l.queue.Lock()
	err := l.backend.AddChildWatch(pid, dw)
	l.queue.Unlock()
	if err != nil {
		return err
	}
	w.loop = l
	l.incrWatchersActive()
	return nil
}

// RegisterReservedChild registers w to watch pid using a token
// previously returned by ReserveChildWatch. It never fails.
func (l *EventLoop) RegisterReservedChild(w *ChildWatcher, token int, pid int) {
	tok := l.attn.AcquireAttention()
	defer l.attn.Release(tok)

	dw := &w.watcher
	dw.Kind = dispatch.KindChild
	dw.Pid = pid
	dw.OnExit = w.dispatchExit
	dw.Removed = l.removeCallback(w.fireRemoved)

	l.queue.Lock()
	l.backend.AddReservedChildWatch(token, pid, dw)
	l.queue.Unlock()
	w.loop = l
	l.incrWatchersActive()
}
