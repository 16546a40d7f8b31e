//go:build linux
// +build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux backend: epoll(7) for fd readiness, signalfd(2) for signal
// delivery, wait4(2) for child reaping, and an eventfd(2) as the
// interrupt-wait mechanism.
//
// Grounded on hioload-ws/reactor/epoll_linux.go and
// hioload-ws/reactor/reactor_linux.go for the epoll wiring style, and
// on mistaker-sixsocket/poller/epoll.go for the eventfd wake idiom
// (there raised with the raw SYS_EVENTFD2 syscall; here via the wrapped
// unix.Eventfd, to stay consistent with the rest of this file's
// golang.org/x/sys/unix usage).
package reactor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/concatime/dasynq/api"
)

const maxEpollEvents = 128

// fdEntry tracks the registration state of one watched file descriptor.
// Read and write are tracked independently, matching
// select_traits.has_separate_rw_fd_watches = true from
// original_source/dasynq-select.h.
type fdEntry struct {
	rdUserdata any
	wrUserdata any
	rdFlags    api.EventMask
	wrFlags    api.EventMask
	rdEnabled  bool
	wrEnabled  bool
	epolled    bool
}

// childSlot is a preallocated reservation slot for a child watch. Fields
// are written in place by AddReservedChildWatch, which therefore never
// grows the backing slice and cannot fail after fork().
type childSlot struct {
	inUse    bool
	pid      int
	userdata any
}

// linuxBackend implements Backend using epoll/signalfd/wait4/eventfd.
//
// linuxBackend has no lock of its own. Its registration tables (fds,
// sigUserdata, activeSigmask, children) are read by PullEvents and
// written by every Add/Remove/Enable/Disable* call and by the
// *_nolock rearm variants; every one of those call sites is only ever
// reached with loop.EventLoop's dispatch queue mutex held by the
// caller (see loop/eventloop.go). AttentionLock keeps register and
// deregister calls apart from PullEvents, but the *_nolock rearm calls
// from EventLoop.processEvents are made without it, so it is not what
// protects these fields.
type linuxBackend struct {
	epfd      int
	sigfd     int
	eventfd   int
	closed    bool

	fds map[int]*fdEntry

	activeSigmask unix.Sigset_t
	sigUserdata   map[int]any
	childSigOn    bool

	children     []childSlot
	events       []unix.EpollEvent
	sigReadBuf   []byte
}

// NewLinuxBackend constructs the reference Linux Backend.
func NewLinuxBackend() (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("dasynq: epoll_create1: %w", err)
	}

	var emptyMask unix.Sigset_t
	sigfd, err := unix.Signalfd(-1, &emptyMask, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("dasynq: signalfd: %w", err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		unix.Close(sigfd)
		return nil, fmt.Errorf("dasynq: eventfd: %w", err)
	}

	b := &linuxBackend{
		epfd:        epfd,
		sigfd:       sigfd,
		eventfd:     efd,
		fds:         make(map[int]*fdEntry),
		sigUserdata: make(map[int]any),
		events:      make([]unix.EpollEvent, maxEpollEvents),
		sigReadBuf:  make([]byte, 16*int(unsafe.Sizeof(unix.SignalfdSiginfo{}))),
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, sigfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(sigfd)}); err != nil {
		b.Close()
		return nil, fmt.Errorf("dasynq: epoll_ctl add signalfd: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}); err != nil {
		b.Close()
		return nil, fmt.Errorf("dasynq: epoll_ctl add eventfd: %w", err)
	}

	return b, nil
}

func (b *linuxBackend) entry(fd int) *fdEntry {
	e := b.fds[fd]
	if e == nil {
		e = &fdEntry{}
		b.fds[fd] = e
	}
	return e
}

func (b *linuxBackend) applyInterest(fd int, e *fdEntry) error {
	var events uint32
	if e.rdEnabled {
		events |= unix.EPOLLIN
	}
	if e.wrEnabled {
		events |= unix.EPOLLOUT
	}
	op := unix.EPOLL_CTL_ADD
	if e.epolled {
		op = unix.EPOLL_CTL_MOD
	}
	err := unix.EpollCtl(b.epfd, op, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
	if err != nil && op == unix.EPOLL_CTL_MOD {
		// Racing removal/re-add: fall back to ADD.
		err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
	}
	if err == nil {
		e.epolled = true
	}
	return err
}

func (b *linuxBackend) AddFdWatch(fd int, userdata any, flags api.EventMask, enabled bool, softFail bool) (bool, error) {
	if !isPollableFd(fd) {
		if softFail {
			return false, nil
		}
		return false, api.NewError(api.ErrCodeUnsupportedFDType, "dasynq: unsupported fd type").WithContext("fd", fd)
	}
	e := b.entry(fd)
	if flags.Has(api.IN) {
		e.rdUserdata = userdata
		e.rdFlags = flags
		e.rdEnabled = enabled
	} else {
		e.wrUserdata = userdata
		e.wrFlags = flags
		e.wrEnabled = enabled
	}
	err := b.applyInterest(fd, e)
	if err != nil {
		return false, fmt.Errorf("dasynq: add fd watch: %w", err)
	}
	b.fds[fd] = e
	return true, nil
}

func (b *linuxBackend) AddBidiFdWatch(fd int, userdata any, flags api.EventMask, emulate bool) (api.EventMask, error) {
	e := b.entry(fd)
	if flags.Has(api.IN) {
		e.rdUserdata = userdata
		e.rdFlags = flags
		e.rdEnabled = true
	}
	if flags.Has(api.OUT) {
		e.wrUserdata = userdata
		e.wrFlags = flags
		e.wrEnabled = true
	}
	if err := b.applyInterest(fd, e); err != nil {
		return 0, fmt.Errorf("dasynq: add bidi fd watch: %w", err)
	}
	b.fds[fd] = e
	// epoll natively supports independent read/write interest bits on
	// one fd, so no direction needs emulation.
	return 0, nil
}

func (b *linuxBackend) removeDirection(fd int, flags api.EventMask) {
	e := b.fds[fd]
	if e == nil {
		return
	}
	if flags.Has(api.IN) {
		e.rdUserdata = nil
		e.rdEnabled = false
	}
	if flags.Has(api.OUT) {
		e.wrUserdata = nil
		e.wrEnabled = false
	}
	if e.rdUserdata == nil && e.wrUserdata == nil {
		unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(b.fds, fd)
		return
	}
	b.applyInterest(fd, e)
}

func (b *linuxBackend) RemoveFdWatch(fd int, flags api.EventMask)       { b.removeDirection(fd, flags) }
func (b *linuxBackend) RemoveFdWatchNolock(fd int, flags api.EventMask) { b.removeDirection(fd, flags) }

func (b *linuxBackend) RemoveBidiFdWatch(fd int) {
	unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(b.fds, fd)
}

func (b *linuxBackend) enableDirection(fd int, userdata any, flags api.EventMask) {
	e := b.entry(fd)
	if flags.Has(api.IN) {
		e.rdUserdata = userdata
		e.rdFlags = flags
		e.rdEnabled = true
	} else {
		e.wrUserdata = userdata
		e.wrFlags = flags
		e.wrEnabled = true
	}
	b.applyInterest(fd, e)
}

func (b *linuxBackend) EnableFdWatch(fd int, userdata any, flags api.EventMask)       { b.enableDirection(fd, userdata, flags) }
func (b *linuxBackend) EnableFdWatchNolock(fd int, userdata any, flags api.EventMask) { b.enableDirection(fd, userdata, flags) }

func (b *linuxBackend) disableDirection(fd int, flags api.EventMask) {
	e := b.fds[fd]
	if e == nil {
		return
	}
	if flags.Has(api.IN) {
		e.rdEnabled = false
	} else {
		e.wrEnabled = false
	}
	b.applyInterest(fd, e)
}

func (b *linuxBackend) DisableFdWatch(fd int, flags api.EventMask)       { b.disableDirection(fd, flags) }
func (b *linuxBackend) DisableFdWatchNolock(fd int, flags api.EventMask) { b.disableDirection(fd, flags) }

func (b *linuxBackend) syncSignalfd() error {
	if _, err := unix.Signalfd(b.sigfd, &b.activeSigmask, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK); err != nil {
		return fmt.Errorf("dasynq: signalfd update: %w", err)
	}
	return nil
}

func addSigset(set *unix.Sigset_t, signo int) {
	// unix.Sigset_t.Val is a [16]uint64 word array on linux/amd64 and
	// most other linux ports; index/shift by word size mirrors sigaddset.
	word := (signo - 1) / 64
	bit := uint((signo - 1) % 64)
	set.Val[word] |= 1 << bit
}

func delSigset(set *unix.Sigset_t, signo int) {
	word := (signo - 1) / 64
	bit := uint((signo - 1) % 64)
	set.Val[word] &^= 1 << bit
}

func (b *linuxBackend) AddSignalWatch(signo int, userdata any) error {
	b.sigUserdata[signo] = userdata
	addSigset(&b.activeSigmask, signo)

	var blockSet unix.Sigset_t
	addSigset(&blockSet, signo)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &blockSet, nil); err != nil {
		// best effort: continue even if the calling OS thread's mask
		// could not be updated, the signalfd mask update below still
		// lets this backend observe the signal on the OS threads that
		// do have it blocked.
		_ = err
	}
	return b.syncSignalfd()
}

func (b *linuxBackend) RearmSignalWatchNolock(signo int, userdata any) {
	b.sigUserdata[signo] = userdata
	addSigset(&b.activeSigmask, signo)
	b.syncSignalfd()
}

func (b *linuxBackend) removeSignal(signo int) {
	delSigset(&b.activeSigmask, signo)
	delete(b.sigUserdata, signo)
	b.syncSignalfd()
}

func (b *linuxBackend) RemoveSignalWatch(signo int)       { b.removeSignal(signo) }
func (b *linuxBackend) RemoveSignalWatchNolock(signo int) { b.removeSignal(signo) }

func (b *linuxBackend) ensureChildSignal() error {
	if b.childSigOn {
		return nil
	}
	b.childSigOn = true
	addSigset(&b.activeSigmask, int(unix.SIGCHLD))
	return b.syncSignalfd()
}

func (b *linuxBackend) ReserveChildWatch() (int, error) {
	if err := b.ensureChildSignal(); err != nil {
		return 0, err
	}
	token := len(b.children)
	b.children = append(b.children, childSlot{})
	return token, nil
}

func (b *linuxBackend) AddChildWatch(pid int, userdata any) error {
	token, err := b.ReserveChildWatch()
	if err != nil {
		return err
	}
	b.AddReservedChildWatch(token, pid, userdata)
	return nil
}

func (b *linuxBackend) AddReservedChildWatch(token int, pid int, userdata any) {
	b.children[token] = childSlot{inUse: true, pid: pid, userdata: userdata}
}

func (b *linuxBackend) InterruptWait() {
	var buf [8]byte
	buf[0] = 1
	unix.Write(b.eventfd, buf[:])
}

func (b *linuxBackend) drainEventfd() {
	var buf [8]byte
	for {
		_, err := unix.Read(b.eventfd, buf[:])
		if err != nil {
			return
		}
	}
}

func (b *linuxBackend) reapChildren(recv Receiver) {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		for i := range b.children {
			slot := &b.children[i]
			if slot.inUse && slot.pid == pid {
				slot.inUse = false
				recv.ReceiveChildStat(slot.userdata, int(status))
				break
			}
		}
	}
}

func (b *linuxBackend) processSignalfd(recv Receiver) {
	sz := int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	for {
		n, err := unix.Read(b.sigfd, b.sigReadBuf)
		if err != nil || n < sz {
			return
		}
		count := n / sz
		for i := 0; i < count; i++ {
			raw := (*unix.SignalfdSiginfo)(unsafe.Pointer(&b.sigReadBuf[i*sz]))
			if int(raw.Signo) == int(unix.SIGCHLD) && b.sigUserdata[int(unix.SIGCHLD)] == nil {
				b.reapChildren(recv)
				continue
			}
			ud, ok := b.sigUserdata[int(raw.Signo)]
			if !ok || ud == nil {
				continue
			}
			recv.ReceiveSignal(ud, newLinuxSigInfo(raw))
		}
	}
}

func (b *linuxBackend) processFdEvent(recv Receiver, fd int, mask uint32) {
	e := b.fds[fd]
	if e == nil {
		return
	}
	errhup := mask&(unix.EPOLLERR|unix.EPOLLHUP) != 0
	if e.rdEnabled && (mask&unix.EPOLLIN != 0 || errhup) {
		var flags api.EventMask = api.IN
		if mask&unix.EPOLLERR != 0 {
			flags |= api.ERR
		}
		if mask&unix.EPOLLHUP != 0 {
			flags |= api.HUP
		}
		recv.ReceiveFdEvent(e.rdUserdata, flags)
		if e.rdFlags.Has(api.ONESHOT) {
			e.rdEnabled = false
			b.applyInterest(fd, e)
		}
	}
	if e.wrEnabled && (mask&unix.EPOLLOUT != 0 || errhup) {
		var flags api.EventMask = api.OUT
		if mask&unix.EPOLLERR != 0 {
			flags |= api.ERR
		}
		if mask&unix.EPOLLHUP != 0 {
			flags |= api.HUP
		}
		recv.ReceiveFdEvent(e.wrUserdata, flags)
		if e.wrFlags.Has(api.ONESHOT) {
			e.wrEnabled = false
			b.applyInterest(fd, e)
		}
	}
}

func (b *linuxBackend) PullEvents(recv Receiver, doWait bool) error {
	timeout := 0
	if doWait {
		timeout = -1
	}

	n, err := unix.EpollWait(b.epfd, b.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("dasynq: epoll_wait: %w", err)
	}
	if n == 0 {
		return nil
	}

	recv.Lock()
	defer recv.Unlock()

	for i := 0; i < n; i++ {
		ev := b.events[i]
		fd := int(ev.Fd)
		switch fd {
		case b.eventfd:
			b.drainEventfd()
		case b.sigfd:
			b.processSignalfd(recv)
		default:
			b.processFdEvent(recv, fd, ev.Events)
		}
	}
	return nil
}

func (b *linuxBackend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	unix.Close(b.eventfd)
	unix.Close(b.sigfd)
	return unix.Close(b.epfd)
}

// isPollableFd reports whether fd is a socket, pipe, fifo, char device
// or other type epoll can watch. Regular files cannot be watched by
// epoll and are rejected the way spec §4.4/§7 requires (soft-fail or
// raise depending on the caller's request).
func isPollableFd(fd int) bool {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return false
	}
	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFREG, unix.S_IFDIR:
		return false
	default:
		return true
	}
}
