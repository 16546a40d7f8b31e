//go:build linux
// +build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// linuxSigInfo adapts a captured unix.SignalfdSiginfo to the api.SigInfo
// contract. It is a value copy taken at delivery time (see
// newLinuxSigInfo), so it remains valid after the backend's read buffer
// is reused by a later PullEvents call — round-trippable per spec §3.
type linuxSigInfo struct {
	raw unix.SignalfdSiginfo
}

func newLinuxSigInfo(raw *unix.SignalfdSiginfo) *linuxSigInfo {
	return &linuxSigInfo{raw: *raw}
}

func (s *linuxSigInfo) Signo() int      { return int(s.raw.Signo) }
func (s *linuxSigInfo) Code() int       { return int(s.raw.Code) }
func (s *linuxSigInfo) SenderPID() int  { return int(s.raw.Pid) }
func (s *linuxSigInfo) SenderUID() int  { return int(s.raw.Uid) }
func (s *linuxSigInfo) Addr() uintptr   { return uintptr(s.raw.Addr) }
func (s *linuxSigInfo) Status() int     { return int(s.raw.Status) }
func (s *linuxSigInfo) Value() int      { return int(s.raw.Int) }
func (s *linuxSigInfo) Errno() int      { return int(s.raw.Errno) }
