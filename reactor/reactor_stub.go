//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub backend for unsupported platforms. Grounded on
// hioload-ws/reactor/reactor_stub.go's build-tag-gated
// "no backend available" constructor.
package reactor

import "github.com/concatime/dasynq/api"

// NewLinuxBackend returns ErrBackendUnavailable on non-Linux platforms.
// A real port would add an equivalent NewKqueueBackend/NewIOCPBackend
// here, mirroring hioload-ws's per-OS reactor split.
func NewLinuxBackend() (Backend, error) {
	return nil, api.ErrBackendUnavailable
}
