package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/tagrade/tagrade/internal/config"
	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/grading"
	"github.com/tagrade/tagrade/internal/logging"
	"github.com/tagrade/tagrade/internal/roster"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Shared.Root = t.TempDir()
	cfg.Class.Code = "CS1400"
	cfg.Locks.Holder = "alice"
	cfg.Signals.GraceMs = 2000
	cfg.Fetch.RetryDelayMs = 1
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithLogger(logging.NopLogger())}, opts...)
	a, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// fakeSignals replaces signal.Notify; the returned channel yields the
// channel Run registered.
func fakeSignals(a *App) <-chan chan<- os.Signal {
	registered := make(chan chan<- os.Signal, 1)
	a.notify = func(c chan<- os.Signal, _ ...os.Signal) { registered <- c }
	return registered
}

func TestNew_WiresComponents(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	if a.Holder != "alice" || a.Workflow.Holder() != "alice" {
		t.Errorf("holder = %q / %q", a.Holder, a.Workflow.Holder())
	}
	if want := filepath.Join(cfg.Shared.Root, "CS1400", "locks"); a.Store.Dir() != want {
		t.Errorf("Store.Dir() = %q, want %q", a.Store.Dir(), want)
	}
	if a.Fetcher() != nil {
		t.Error("no base URL configured, Fetcher() should be nil")
	}
	if a.Bus.SubscriptionCount() == 0 {
		t.Error("metrics collector is not attached to the bus")
	}
}

func TestNew_Errors(t *testing.T) {
	t.Run("missing class", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Class.Code = ""
		if _, err := New(cfg); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("error = %v", err)
		}
	})
	t.Run("bad base url", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Fetch.BaseURL = "ftp://example.edu"
		if _, err := New(cfg, WithLogger(logging.NopLogger())); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("error = %v", err)
		}
	})
}

func TestNew_HolderDefaultsToCurrentUser(t *testing.T) {
	cfg := testConfig(t)
	cfg.Locks.Holder = ""
	want, err := CurrentUser()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	if a := newTestApp(t, cfg); a.Holder != want {
		t.Errorf("Holder = %q, want %q", a.Holder, want)
	}
}

func TestNew_LogsToSharedDirectory(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Store.Lock("42", "Lab3", a.Holder); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(a.Layout.LogsDir, "alice.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "lock acquired") {
		t.Errorf("log = %s", data)
	}
}

func TestRun_NormalCompletionKeepsOtherLocks(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	fakeSignals(a)

	// Held by alice from another terminal.
	if _, err := a.Store.Lock("43", "Lab3", "alice"); err != nil {
		t.Fatal(err)
	}
	want := errors.New("done")
	if err := a.Run(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("Run() error = %v", err)
	}
	if locked, _ := a.Store.IsLocked("43", "Lab3"); !locked {
		t.Error("normal completion must not release other locks")
	}
}

func TestRun_SignalCancelsAndRecovers(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	registered := fakeSignals(a)

	if _, err := a.Store.Lock("43", "Lab3", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Store.Lock("44", "Lab3", "bob"); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		result <- a.Run(context.Background(), func(ctx context.Context) error {
			_, err := a.Workflow.WithLock(ctx, "42", "Lab3", func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			})
			return err
		})
	}()

	sigCh := <-registered
	<-started
	sigCh <- syscall.SIGINT

	select {
	case err := <-result:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("Run() error = %v, want ErrInterrupted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the signal")
	}

	for _, student := range []string{"42", "43"} {
		if locked, _ := a.Store.IsLocked(student, "Lab3"); locked {
			t.Errorf("alice's lock on %s survived the interrupt", student)
		}
	}
	if holder, _, _ := a.Store.Holder("44", "Lab3"); holder != "bob" {
		t.Errorf("bob's lock was touched: holder = %q", holder)
	}
}

func TestRun_GracePeriodExpires(t *testing.T) {
	cfg := testConfig(t)
	cfg.Signals.GraceMs = 20
	a := newTestApp(t, cfg)
	registered := fakeSignals(a)

	stuck := make(chan struct{})
	defer close(stuck)
	acquired := make(chan struct{})

	result := make(chan error, 1)
	go func() {
		result <- a.Run(context.Background(), func(context.Context) error {
			// Ignores cancellation and never releases.
			if _, err := a.Store.Lock("42", "Lab3", "alice"); err != nil {
				return err
			}
			close(acquired)
			<-stuck
			return nil
		})
	}()

	sigCh := <-registered
	<-acquired
	sigCh <- syscall.SIGHUP

	select {
	case err := <-result:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run waited past the grace period")
	}
	if locked, _ := a.Store.IsLocked("42", "Lab3"); locked {
		t.Error("lock survived the grace-period recovery")
	}
}

func TestClose_WritesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "tagrade.prom")
	fetcher := grading.FetcherFunc(func(context.Context, roster.Student, roster.Lab) (grading.Result, error) {
		return grading.Result{Status: grading.StatusOK}, nil
	})
	a := newTestApp(t, cfg, WithFetcher(fetcher))

	student := roster.Student{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.edu", ID: 42}
	if _, err := a.Workflow.Fetch(context.Background(), student, roster.Lab{Name: "Lab3"}); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`tagrade_locks_acquired_total{kind="grading"} 1`,
		`tagrade_fetch_completed_total{status="ok"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %q:\n%s", want, data)
		}
	}
}

func TestRoster(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	if _, err := a.Roster(); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Roster() without a file error = %v, want ErrNotFound", err)
	}

	// Loaded once: a file written later is not picked up.
	path := cfg.RosterPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("class_code: CS1400\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Roster(); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second Roster() error = %v, want the cached error", err)
	}

	r, err := newTestApp(t, cfg).Roster()
	if err != nil {
		t.Fatalf("Roster() error = %v", err)
	}
	if r.ClassCode != "CS1400" {
		t.Errorf("ClassCode = %q", r.ClassCode)
	}
}
