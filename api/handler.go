// File: api/handler.go
// Author: momentics <momentics@gmail.com>
//
// The three user handler signatures (spec §6): FdHandlerFunc,
// SignalHandlerFunc, ChildHandlerFunc.
package api

// FdHandlerFunc is invoked when readiness fires for a registered
// FdWatcher. It must not call back into the owning EventLoop to
// deregister itself; return Rearm_REMOVE instead.
type FdHandlerFunc func(fd int, events EventMask) Rearm

// SignalHandlerFunc is invoked when a watched signal is delivered. info
// is only valid for the duration of the call.
type SignalHandlerFunc func(signo int, info SigInfo) Rearm

// ChildHandlerFunc is invoked exactly once, when the watched child
// terminates. Child watches have no Rearm decision: they always remove
// themselves after firing.
type ChildHandlerFunc func(pid int, status int)
