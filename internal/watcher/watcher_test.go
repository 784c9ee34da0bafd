package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/event"
)

func symlink(t *testing.T, dir, name, target string) {
	t.Helper()
	if err := os.Symlink(target, filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func TestDigest(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	empty := t.TempDir()

	dMissing, err := Digest(missing)
	if err != nil {
		t.Fatalf("Digest(missing) error = %v", err)
	}
	dEmpty, _ := Digest(empty)
	if dMissing != dEmpty {
		t.Error("missing and empty directories should hash alike")
	}
	again, _ := Digest(missing)
	if again != dMissing {
		t.Error("digest of a missing directory is not stable")
	}

	symlink(t, empty, "grading~Lab3~42.lock", "Lab3~42~alice~grading~h+1+n1")
	d1, _ := Digest(empty)
	if d1 == dEmpty {
		t.Error("adding an entry did not change the digest")
	}

	// Same name, different target: a release followed by someone else's
	// relock within one poll.
	if err := os.Remove(filepath.Join(empty, "grading~Lab3~42.lock")); err != nil {
		t.Fatal(err)
	}
	symlink(t, empty, "grading~Lab3~42.lock", "Lab3~42~bob~grading~h+2+n2")
	d2, _ := Digest(empty)
	if d2 == d1 {
		t.Error("changing a symlink target did not change the digest")
	}
}

func TestPoll_OneCallbackPerChangedWatch(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	w := New(time.Hour)

	var calls, otherCalls int
	if err := w.Register("locks", dir, func(id string) {
		if id != "locks" {
			t.Errorf("callback id = %q", id)
		}
		calls++
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Register("other", other, func(string) { otherCalls++ }); err != nil {
		t.Fatal(err)
	}

	w.Poll()
	if calls != 0 {
		t.Fatalf("callback fired without a change")
	}

	// Several changes between two polls batch into one callback.
	symlink(t, dir, "a.lock", "1")
	symlink(t, dir, "b.lock", "2")
	symlink(t, dir, "c.lock", "3")
	w.Poll()
	w.Poll()

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if otherCalls != 0 {
		t.Errorf("unchanged watch fired %d times", otherCalls)
	}

	if err := os.Remove(filepath.Join(dir, "b.lock")); err != nil {
		t.Fatal(err)
	}
	w.Poll()
	if calls != 2 {
		t.Errorf("calls after removal = %d, want 2", calls)
	}
}

func TestPoll_MissingDirectoryAppears(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	w := New(time.Hour)

	calls := 0
	if err := w.Register("locks", dir, func(string) { calls++ }); err != nil {
		t.Fatalf("Register on a missing directory error = %v", err)
	}
	w.Poll()
	if calls != 0 {
		t.Fatal("missing directory reported a change")
	}

	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	w.Poll()
	if calls != 0 {
		t.Error("creating an empty directory should not count as a change")
	}

	symlink(t, dir, "x.lock", "y")
	w.Poll()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRegister_Validation(t *testing.T) {
	w := New(0)
	if w.interval != DefaultInterval {
		t.Errorf("interval = %v, want default", w.interval)
	}

	tests := []struct {
		name string
		id   string
		cb   Callback
	}{
		{"empty id", "", func(string) {}},
		{"nil callback", "locks", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Register(tt.id, t.TempDir(), tt.cb)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestUnregister(t *testing.T) {
	dir := t.TempDir()
	w := New(time.Hour)

	calls := 0
	_ = w.Register("locks", dir, func(string) { calls++ })
	if !w.Unregister("locks") {
		t.Fatal("Unregister() = false")
	}
	if w.Unregister("locks") {
		t.Error("second Unregister() = true")
	}

	symlink(t, dir, "a.lock", "1")
	w.Poll()
	if calls != 0 {
		t.Errorf("unregistered watch fired")
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d", w.Len())
	}
}

func TestRegister_ReplacesBaseline(t *testing.T) {
	dir := t.TempDir()
	w := New(time.Hour)

	first, second := 0, 0
	_ = w.Register("locks", dir, func(string) { first++ })
	symlink(t, dir, "a.lock", "1")
	_ = w.Register("locks", dir, func(string) { second++ })

	w.Poll()
	if first != 0 || second != 0 {
		t.Errorf("first=%d second=%d, re-registering should reset the baseline", first, second)
	}
}

func TestRun_DetectsExternalChange(t *testing.T) {
	dir := t.TempDir()
	bus := event.NewBus(nil)
	var published atomic.Int32
	bus.Subscribe(event.TypeLocksChanged, func(event.Event) { published.Add(1) })

	w := New(20*time.Millisecond, WithBus(bus))
	fired := make(chan string, 10)
	if err := w.Register("locks", dir, func(id string) { fired <- id }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	symlink(t, dir, "grading~Lab3~42.lock", "Lab3~42~alice~grading~h+1+n")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not fire")
	}

	// No further change, no further callback.
	time.Sleep(100 * time.Millisecond)
	if n := len(fired); n != 0 {
		t.Errorf("extra callbacks = %d", n)
	}
	if published.Load() != 1 {
		t.Errorf("locks.changed events = %d, want 1", published.Load())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v", err)
	}
}

func TestRun_RegisterWhileRunning(t *testing.T) {
	w := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			dir := t.TempDir()
			for j := 0; j < 50; j++ {
				_ = w.Register(id, dir, func(string) {})
				w.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0", w.Len())
	}
}

func TestRun_NotifySchedulesEarlyPoll(t *testing.T) {
	dir := t.TempDir()
	// The ticker alone would never fire within the test.
	w := New(time.Hour, WithNotify())
	fired := make(chan string, 10)
	if err := w.Register("locks", dir, func(id string) { fired <- id }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Give Run a moment to attach the notifier.
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; ; i++ {
		symlink(t, dir, "n"+string(rune('a'+i))+".lock", "x")
		select {
		case <-fired:
			return
		case <-time.After(200 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("notification did not trigger a poll")
		}
	}
}
