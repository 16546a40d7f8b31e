//go:build linux
// +build linux

package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/concatime/dasynq/api"
)

type recorder struct {
	fdEvents []api.EventMask
}

func (r *recorder) Lock()   {}
func (r *recorder) Unlock() {}
func (r *recorder) ReceiveFdEvent(userdata any, flags api.EventMask) {
	r.fdEvents = append(r.fdEvents, flags)
}
func (r *recorder) ReceiveSignal(userdata any, info api.SigInfo) {}
func (r *recorder) ReceiveChildStat(userdata any, status int)    {}

// TestAddFdWatchFirstRegistrationUsesAdd is a regression test: the very
// first AddFdWatch call for a fd must issue EPOLL_CTL_ADD, not MOD (a
// MOD on an fd epoll has never seen fails with ENOENT).
func TestAddFdWatchFirstRegistrationUsesAdd(t *testing.T) {
	b, err := NewLinuxBackend()
	if err != nil {
		t.Fatalf("NewLinuxBackend: %v", err)
	}
	defer b.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	ok, err := b.AddFdWatch(int(r.Fd()), "read-side", api.IN, true, false)
	if err != nil {
		t.Fatalf("AddFdWatch: %v", err)
	}
	if !ok {
		t.Fatal("AddFdWatch returned ok=false for a pollable pipe fd")
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec := &recorder{}
	if err := b.PullEvents(rec, false); err != nil {
		t.Fatalf("PullEvents: %v", err)
	}
	if len(rec.fdEvents) == 0 {
		t.Fatal("expected at least one fd event after writing to the pipe")
	}
	if !rec.fdEvents[0].Has(api.IN) {
		t.Errorf("expected IN flag, got %v", rec.fdEvents[0])
	}
}

func TestIsPollableFdRejectsRegularFile(t *testing.T) {
	f, err := os.CreateTemp("", "dasynq-test-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if isPollableFd(int(f.Fd())) {
		t.Error("regular files must not be reported as pollable")
	}
}

func TestIsPollableFdAcceptsPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if !isPollableFd(int(r.Fd())) {
		t.Error("pipe fds must be reported as pollable")
	}
}

// TestInterruptWaitUnblocksPullEvents verifies the eventfd wake path
// used by the AttentionLock to preempt an in-progress poll.
func TestInterruptWaitUnblocksPullEvents(t *testing.T) {
	b, err := NewLinuxBackend()
	if err != nil {
		t.Fatalf("NewLinuxBackend: %v", err)
	}
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		done <- b.PullEvents(&recorder{}, true)
	}()

	time.Sleep(20 * time.Millisecond)
	b.InterruptWait()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("PullEvents returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("InterruptWait did not unblock PullEvents")
	}
}
