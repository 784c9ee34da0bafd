//go:build unix

package lock

import (
	"os"
	"os/exec"
	"testing"

	"github.com/tagrade/tagrade/internal/errors"
)

func TestDescriptor_CheckLiveness(t *testing.T) {
	host, err := os.Hostname()
	if err != nil {
		t.Skipf("no hostname: %v", err)
	}

	t.Run("live process", func(t *testing.T) {
		d := Descriptor{Slot: "grading~Lab3~42.lock", Host: host, PID: os.Getpid()}
		if err := d.CheckLiveness(); err != nil {
			t.Errorf("CheckLiveness() = %v, want nil", err)
		}
	})

	t.Run("exited process", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Run(); err != nil {
			t.Skipf("cannot run true: %v", err)
		}
		d := Descriptor{Slot: "grading~Lab3~42.lock", Host: host, PID: cmd.Process.Pid}

		err := d.CheckLiveness()
		if !errors.Is(err, errors.ErrStaleArtifact) {
			t.Fatalf("CheckLiveness() = %v, want ErrStaleArtifact", err)
		}
		var stale *errors.StaleArtifactError
		if !errors.As(err, &stale) || stale.PID != cmd.Process.Pid {
			t.Errorf("CheckLiveness() = %#v", err)
		}
	})

	t.Run("other host is never judged", func(t *testing.T) {
		d := Descriptor{Host: host + "-elsewhere", PID: 1 << 30}
		if err := d.CheckLiveness(); err != nil {
			t.Errorf("CheckLiveness() = %v, want nil", err)
		}
	})

	t.Run("stale lock from a store", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Run(); err != nil {
			t.Skipf("cannot run true: %v", err)
		}
		s := NewStore(t.TempDir(), WithOrigin(host, cmd.Process.Pid))
		h, err := s.Lock("42", "Lab3", "alice")
		if err != nil {
			t.Fatal(err)
		}

		locks, err := s.List()
		if err != nil || len(locks) != 1 {
			t.Fatalf("List() = %v, %v", locks, err)
		}
		if err := locks[0].CheckLiveness(); !errors.Is(err, errors.ErrStaleArtifact) {
			t.Errorf("CheckLiveness() = %v, want ErrStaleArtifact", err)
		}
		if locks[0].Slot != h.Descriptor().Slot {
			t.Errorf("Slot = %q, want %q", locks[0].Slot, h.Descriptor().Slot)
		}
	})
}
