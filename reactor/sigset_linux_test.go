//go:build linux
// +build linux

package reactor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestAddDelSigsetBitPlacement(t *testing.T) {
	cases := []int{1, 2, 32, 63, 64, 65, 128, 256}
	for _, signo := range cases {
		var set unix.Sigset_t
		addSigset(&set, signo)

		word := (signo - 1) / 64
		bit := uint((signo - 1) % 64)
		if word >= len(set.Val) {
			continue
		}
		if set.Val[word]&(1<<bit) == 0 {
			t.Errorf("addSigset(%d): expected bit set in word %d", signo, word)
		}

		delSigset(&set, signo)
		if set.Val[word]&(1<<bit) != 0 {
			t.Errorf("delSigset(%d): expected bit cleared in word %d", signo, word)
		}
	}
}

func TestAddSigsetDoesNotDisturbOtherBits(t *testing.T) {
	var set unix.Sigset_t
	addSigset(&set, 1)
	addSigset(&set, 65)

	if set.Val[0]&1 == 0 {
		t.Error("expected signal 1's bit set in word 0")
	}
	if set.Val[1]&1 == 0 {
		t.Error("expected signal 65's bit set in word 1")
	}

	delSigset(&set, 1)
	if set.Val[1]&1 == 0 {
		t.Error("delSigset(1) must not clear signal 65's bit in word 1")
	}
}
