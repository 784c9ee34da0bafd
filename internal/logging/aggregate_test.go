package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHistory(t *testing.T) {
	t.Run("merges every holder's log file", func(t *testing.T) {
		dir := t.TempDir()

		alice, err := NewLogger(dir, "alice", LevelDebug, RotationConfig{})
		if err != nil {
			t.Fatalf("NewLogger(alice, RotationConfig{}) failed: %v", err)
		}
		bob, err := NewLogger(dir, "bob", LevelDebug, RotationConfig{})
		if err != nil {
			t.Fatalf("NewLogger(bob, RotationConfig{}) failed: %v", err)
		}

		alice.WithHolder("alice").WithLab("Lab3").WithStudent("42").Info("lock acquired", "nonce", "n1")
		bob.WithHolder("bob").WithLab("Lab3").WithStudent("7").Info("lock acquired")
		alice.WithHolder("alice").WithLab("Lab3").WithStudent("42").Info("lock released")

		_ = alice.Close()
		_ = bob.Close()

		entries, err := History(dir)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("len(entries) = %d, want 3", len(entries))
		}

		for i := 1; i < len(entries); i++ {
			if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
				t.Errorf("entries not sorted at index %d", i)
			}
		}

		var found bool
		for _, e := range entries {
			if e.Holder == "alice" && e.Message == "lock acquired" {
				found = true
				if e.Lab != "Lab3" || e.Student != "42" {
					t.Errorf("entry = %+v, want lab Lab3 student 42", e)
				}
				if e.Source != "alice" {
					t.Errorf("Source = %q, want %q", e.Source, "alice")
				}
				if e.Attrs["nonce"] != "n1" {
					t.Errorf("Attrs[nonce] = %v, want n1", e.Attrs["nonce"])
				}
			}
		}
		if !found {
			t.Error("alice's acquire entry missing from history")
		}
	})

	t.Run("missing directory yields no entries", func(t *testing.T) {
		entries, err := History(filepath.Join(t.TempDir(), "absent"))
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("len(entries) = %d, want 0", len(entries))
		}
	})

	t.Run("skips lines that are not JSON", func(t *testing.T) {
		dir := t.TempDir()
		content := "not json\n" +
			`{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"ok","holder":"carol"}` + "\n\n"
		if err := os.WriteFile(filepath.Join(dir, "carol.log"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		entries, err := History(dir)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("len(entries) = %d, want 1", len(entries))
		}
		if entries[0].Holder != "carol" {
			t.Errorf("Holder = %q, want %q", entries[0].Holder, "carol")
		}
	})
}

func TestFilterEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Timestamp: base, Level: LevelDebug, Message: "tick", Holder: "alice", Lab: "Lab1", Student: "1"},
		{Timestamp: base.Add(time.Minute), Level: LevelInfo, Message: "Lock acquired", Holder: "alice", Lab: "Lab3", Student: "42"},
		{Timestamp: base.Add(2 * time.Minute), Level: LevelWarn, Message: "fetch retry", Holder: "bob", Lab: "Lab3", Student: "7"},
		{Timestamp: base.Add(3 * time.Minute), Level: LevelError, Message: "release failed", Holder: "bob", Lab: "Lab2", Student: "7"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"empty filter", Filter{}, 4},
		{"level warn and above", Filter{Level: "warn"}, 2},
		{"holder", Filter{Holder: "alice"}, 2},
		{"lab is case insensitive", Filter{Lab: "lab3"}, 2},
		{"student", Filter{Student: "7"}, 2},
		{"start time", Filter{StartTime: base.Add(2 * time.Minute)}, 2},
		{"end time", Filter{EndTime: base.Add(time.Minute)}, 2},
		{"message substring", Filter{MessageContains: "lock"}, 1},
		{"combined", Filter{Holder: "bob", Level: LevelError}, 1},
		{"unknown level ignored", Filter{Level: "TRACE"}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterEntries(entries, tt.filter)
			if len(got) != tt.want {
				t.Errorf("FilterEntries() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}
}
