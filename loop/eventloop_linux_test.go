//go:build linux
// +build linux

package loop

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/concatime/dasynq/api"
	"github.com/concatime/dasynq/control"
)

// runFor runs l in a goroutine and fails the test if it has not returned
// (via Stop) within timeout.
func runFor(t *testing.T, l *EventLoop, timeout time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(timeout):
		l.Stop()
		<-done
		t.Fatal("Run did not stop within timeout")
	}
}

// TestPipeFdWatcherDeliversData exercises scenario S1: a pipe write
// wakes a registered FdWatcher, which reads the data and requests
// removal.
func TestPipeFdWatcherDeliversData(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	got := make(chan []byte, 1)
	fw := &FdWatcher{
		OnEvent: func(fd int, events api.EventMask) api.Rearm {
			buf := make([]byte, 64)
			n, _ := unix.Read(fd, buf)
			got <- buf[:n]
			return api.Rearm_REMOVE
		},
	}
	if err := fw.Register(l, int(r.Fd()), api.IN); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	go func() {
		data := <-got
		// Hand the data back so the check below sees it.
		got <- data
		l.Stop()
	}()
	runFor(t, l, 2*time.Second)

	select {
	case data := <-got:
		if string(data) != "hello" {
			t.Errorf("got %q, want %q", data, "hello")
		}
	default:
	}
}

// TestDeregisterFdGuaranteesNoFurtherDispatch exercises the ordering
// guarantee of spec §5: once DeregisterFd returns, the watcher's
// handler is guaranteed never to run.
func TestDeregisterFdGuaranteesNoFurtherDispatch(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	fired := false
	removed := make(chan struct{}, 1)
	fw := &FdWatcher{
		OnEvent: func(fd int, events api.EventMask) api.Rearm {
			fired = true
			return api.Rearm_REARM
		},
		OnRemoved: func() { removed <- struct{}{} },
	}
	if err := fw.Register(l, int(r.Fd()), api.IN); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fw.Deregister()

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-removed:
	default:
		t.Error("OnRemoved should fire synchronously for an inactive watcher")
	}

	// Run briefly; the deregistered watcher must never fire even though
	// data is sitting in the pipe.
	go l.Run()
	time.Sleep(100 * time.Millisecond)
	l.Stop()

	if fired {
		t.Error("handler fired after Deregister returned")
	}
}

// TestSignalWatcherReceivesSelfSignal exercises scenario S6: signalfd
// delivery carries sender pid/uid fidelity that os/signal cannot.
func TestSignalWatcherReceivesSelfSignal(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	info := make(chan api.SigInfo, 1)
	sw := &SignalWatcher{
		OnSignal: func(signo int, si api.SigInfo) api.Rearm {
			info <- si
			return api.Rearm_REMOVE
		},
	}
	if err := sw.Register(l, int(unix.SIGUSR2)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		unix.Kill(os.Getpid(), unix.SIGUSR2)
	}()

	go func() {
		si := <-info
		if si.SenderPID() != os.Getpid() {
			t.Errorf("SenderPID() = %d, want %d", si.SenderPID(), os.Getpid())
		}
		l.Stop()
	}()
	runFor(t, l, 2*time.Second)
}

// TestChildWatcherReservedRegistration exercises scenario S5: the
// reserve-then-register-after-fork path never fails and observes the
// child's exit.
func TestChildWatcherReservedRegistration(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	exited := make(chan int, 1)
	cw := &ChildWatcher{
		OnExit: func(pid int, status int) {
			exited <- pid
		},
	}

	token, err := cw.Reserve(l)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start subprocess in this environment: %v", err)
	}
	cw.RegisterReserved(l, token, cmd.Process.Pid)

	go func() {
		pid := <-exited
		if pid != cmd.Process.Pid {
			t.Errorf("reaped pid %d, want %d", pid, cmd.Process.Pid)
		}
		l.Stop()
	}()
	runFor(t, l, 2*time.Second)
}

// TestPendingListLenProbeIsWired verifies WithDebug registers a real
// "pending_list_len" probe backed by the loop's own dispatch queue,
// rather than requiring callers to wire it up by hand.
func TestPendingListLenProbeIsWired(t *testing.T) {
	dbg := control.NewDebugProbes()
	l, err := New(WithDebug(dbg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	before := dbg.DumpState()
	if _, ok := before["pending_list_len"]; !ok {
		t.Fatal("expected New(WithDebug(...)) to register a pending_list_len probe")
	}
	if before["pending_list_len"] != 0 {
		t.Errorf("pending_list_len = %v, want 0 on an idle loop", before["pending_list_len"])
	}
}

// TestWatchersActiveMetricTracksRegistration verifies
// control.KeyWatchersActive is incremented on registration and
// decremented once removal completes, rather than sitting unused.
func TestWatchersActiveMetricTracksRegistration(t *testing.T) {
	m := control.NewMetricsRegistry()
	l, err := New(WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	fw := &FdWatcher{OnEvent: func(fd int, events api.EventMask) api.Rearm { return api.Rearm_REARM }}
	if err := fw.Register(l, int(r.Fd()), api.IN); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := m.GetSnapshot()[control.KeyWatchersActive]; got != int64(1) {
		t.Errorf("watchers_active after Register = %v, want 1", got)
	}

	fw.Deregister()

	if got := m.GetSnapshot()[control.KeyWatchersActive]; got != int64(0) {
		t.Errorf("watchers_active after Deregister = %v, want 0", got)
	}
}

// TestPollInterruptsMetricCountsStop verifies control.KeyPollInterrupts
// is incremented whenever the backend's wait is interrupted, including
// via Stop.
func TestPollInterruptsMetricCountsStop(t *testing.T) {
	m := control.NewMetricsRegistry()
	l, err := New(WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Stop()

	if got := m.GetSnapshot()[control.KeyPollInterrupts]; got != int64(1) {
		t.Errorf("poll_interrupts after Stop = %v, want 1", got)
	}
}
