// Package testutil provides testing utilities for tagrade tests: a
// throwaway shared class directory, a sample roster and a scripted
// submission fetcher.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tagrade/tagrade/internal/config"
	"github.com/tagrade/tagrade/internal/grading"
	"github.com/tagrade/tagrade/internal/roster"
)

// ClassCode is the class every helper configures.
const ClassCode = "CS1400"

// Roster is a small roster snapshot: two students in section 1, one in
// section 2, and Lab3 with two parts.
const Roster = `class_code: CS1400
term: Fall 2026
sections:
  - number: 1
    ta: alice
    meets: Mon 10:00
  - number: 2
    ta: bob
    meets: Wed 14:00
students:
  - first_name: Ada
    last_name: Lovelace
    email: alovelace@example.edu
    id: 42
    section: 1
  - first_name: Charles
    last_name: Babbage
    email: cbabbage@example.edu
    id: 43
    section: 1
  - first_name: Alan
    last_name: Turing
    email: aturing@example.edu
    section: 2
labs:
  - name: Lab3
    parts:
      - name: Part A
        part_id: p-100
      - name: Part B
        part_id: p-101
`

// Config returns a valid configuration rooted in a fresh temporary
// directory, with holder alice, fast retries and Roster written to the
// class directory.
func Config(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Shared.Root = t.TempDir()
	cfg.Class.Code = ClassCode
	cfg.Locks.Holder = "alice"
	cfg.Fetch.RetryDelayMs = 1
	cfg.Signals.GraceMs = 2000

	WriteFile(t, cfg.RosterPath(), Roster)
	return cfg
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// WriteConfigFile writes the settings of cfg that tests vary to a YAML
// config file and returns its path.
func WriteConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	content := fmt.Sprintf(`class:
  code: %s
shared:
  root: %s
locks:
  holder: %s
fetch:
  base_url: %q
  max_attempts: %d
  retry_delay_ms: %d
logging:
  enabled: %t
  level: %s
signals:
  grace_ms: %d
`,
		cfg.Class.Code, cfg.Shared.Root, cfg.Locks.Holder,
		cfg.Fetch.BaseURL, cfg.Fetch.MaxAttempts, cfg.Fetch.RetryDelayMs,
		cfg.Logging.Enabled, cfg.Logging.Level, cfg.Signals.GraceMs,
	)
	return WriteFile(t, filepath.Join(t.TempDir(), "config.yaml"), content)
}

// Fetcher is a scripted grading.Fetcher. Results are keyed by student key;
// unknown students get StatusNoSubmission. It is safe for concurrent use.
type Fetcher struct {
	mu      sync.Mutex
	results map[string][]grading.Result
	calls   []string
}

// NewFetcher returns an empty Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{results: make(map[string][]grading.Result)}
}

// Script queues results for a student, returned one per call; the last one
// repeats.
func (f *Fetcher) Script(student string, results ...grading.Result) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[student] = append(f.results[student], results...)
	return f
}

// Fetch implements grading.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, s roster.Student, lab roster.Lab) (grading.Result, error) {
	if err := ctx.Err(); err != nil {
		return grading.Result{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := s.Key()
	f.calls = append(f.calls, lab.Name+"/"+key)

	queue := f.results[key]
	switch len(queue) {
	case 0:
		return grading.Result{Status: grading.StatusNoSubmission}, nil
	case 1:
		return queue[0], nil
	}
	f.results[key] = queue[1:]
	return queue[0], nil
}

// Calls returns "lab/student" for every Fetch so far.
func (f *Fetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
