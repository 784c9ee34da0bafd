package testutil

import (
	"context"
	"testing"

	"github.com/tagrade/tagrade/internal/grading"
	"github.com/tagrade/tagrade/internal/roster"
)

func TestConfig_WritesValidRoster(t *testing.T) {
	cfg := Config(t)
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("Validate() = %v", errs)
	}

	r, err := roster.Load(cfg.RosterPath())
	if err != nil {
		t.Fatalf("roster.Load() error = %v", err)
	}
	if len(r.Students) != 3 || len(r.Labs) != 1 {
		t.Errorf("roster has %d students and %d labs", len(r.Students), len(r.Labs))
	}
}

func TestFetcher_Script(t *testing.T) {
	f := NewFetcher().Script("42",
		grading.Result{Status: grading.StatusTransientError},
		grading.Result{Status: grading.StatusOK},
	)
	ada := roster.Student{FirstName: "Ada", Email: "alovelace@example.edu", ID: 42}
	turing := roster.Student{FirstName: "Alan", Email: "aturing@example.edu"}
	lab := roster.Lab{Name: "Lab3"}
	ctx := context.Background()

	want := []grading.Status{grading.StatusTransientError, grading.StatusOK, grading.StatusOK}
	for i, w := range want {
		res, err := f.Fetch(ctx, ada, lab)
		if err != nil || res.Status != w {
			t.Errorf("call %d = %v, %v; want %v", i, res.Status, err, w)
		}
	}

	if res, _ := f.Fetch(ctx, turing, lab); res.Status != grading.StatusNoSubmission {
		t.Errorf("unscripted student status = %v, want no_submission", res.Status)
	}

	calls := f.Calls()
	if len(calls) != 4 || calls[3] != "Lab3/aturing" {
		t.Errorf("Calls() = %v", calls)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := f.Fetch(cancelled, ada, lab); err == nil {
		t.Error("Fetch with a cancelled context should fail")
	}
}
