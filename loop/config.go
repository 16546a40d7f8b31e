// File: loop/config.go
// Package loop implements the EventLoop orchestrator: the public
// register/deregister surface, the run()/processEvents() dispatch
// protocol of spec §4.5, and the functional-options configuration
// pattern used throughout hioload-ws (see server/options.go,
// server/types.go, facade/hioload.go).
//
// Author: momentics <momentics@gmail.com>
package loop

import (
	"log"

	"github.com/concatime/dasynq/control"
	"github.com/concatime/dasynq/reactor"
)

// Config holds parameters used to construct an EventLoop.
type Config struct {
	// Backend is the kernel polling mechanism. If nil, New selects the
	// platform's reference backend (reactor.NewLinuxBackend on Linux).
	Backend reactor.Backend
	// Logger receives poll errors (registration failures are returned
	// to the caller, not logged). Defaults to log.Default(), matching the stdlib
	// log.Printf convention hioload-ws's server/facade packages use.
	Logger *log.Logger
	// Metrics, if set, is updated by the loop after each dispatch pass.
	Metrics *control.MetricsRegistry
	// Debug, if set, gains a "pending_list_len" probe backed by the
	// loop's own dispatch queue, registered once during New.
	Debug *control.DebugProbes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.Default(),
	}
}

// Option customizes an EventLoop at construction time.
type Option func(*Config)

// WithBackend overrides the default platform backend.
func WithBackend(b reactor.Backend) Option {
	return func(c *Config) { c.Backend = b }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics attaches a metrics registry the loop will update.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithDebug attaches a probe registry; New registers a
// "pending_list_len" probe on it backed by the loop's dispatch queue.
func WithDebug(d *control.DebugProbes) Option {
	return func(c *Config) { c.Debug = d }
}
