// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for a running EventLoop. Part
// of the ambient stack carried over from hioload-ws's control package:
// concurrent-safe counters and named debug probes, re-themed to this
// event loop's own bookkeeping (events dispatched, active watchers,
// poll interrupts, pending list depth) rather than a WebSocket
// transport's.
package control
