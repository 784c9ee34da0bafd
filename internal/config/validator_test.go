package config

import (
	"strings"
	"testing"

	"github.com/tagrade/tagrade/internal/logging"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string // empty means no error expected
	}{
		{"class code ok", func(c *Config) { c.Class.Code = "CS1400" }, ""},
		{"class code with dot and dash", func(c *Config) { c.Class.Code = "cs-2420.f26" }, ""},
		{"class code with slash", func(c *Config) { c.Class.Code = "CS/1400" }, "class.code"},
		{"class code leading dot", func(c *Config) { c.Class.Code = ".hidden" }, "class.code"},
		{"empty shared root", func(c *Config) { c.Shared.Root = "" }, "shared.root"},
		{"locks dir nested", func(c *Config) { c.Shared.LocksDir = "a/b" }, "shared.locks_dir"},
		{"submissions dir parent", func(c *Config) { c.Shared.SubmissionsDir = ".." }, "shared.submissions_dir"},
		{"interval too small", func(c *Config) { c.Watch.IntervalMs = 10 }, "watch.interval_ms"},
		{"interval at minimum", func(c *Config) { c.Watch.IntervalMs = 50 }, ""},
		{"base url https", func(c *Config) { c.Fetch.BaseURL = "https://grading.example.edu/api" }, ""},
		{"base url without scheme", func(c *Config) { c.Fetch.BaseURL = "grading.example.edu" }, "fetch.base_url"},
		{"base url ftp", func(c *Config) { c.Fetch.BaseURL = "ftp://example.edu" }, "fetch.base_url"},
		{"zero attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }, "fetch.max_attempts"},
		{"too many attempts", func(c *Config) { c.Fetch.MaxAttempts = 21 }, "fetch.max_attempts"},
		{"negative retry delay", func(c *Config) { c.Fetch.RetryDelayMs = -1 }, "fetch.retry_delay_ms"},
		{"zero retry delay", func(c *Config) { c.Fetch.RetryDelayMs = 0 }, ""},
		{"zero timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, "fetch.timeout_seconds"},
		{"uppercase log level", func(c *Config) { c.Logging.Level = "INFO" }, "logging.level"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, ""},
		{"rotation disabled", func(c *Config) { c.Logging.MaxSizeMB = 0 }, ""},
		{"negative rotation size", func(c *Config) { c.Logging.MaxSizeMB = -1 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
		{"negative grace", func(c *Config) { c.Signals.GraceMs = -5 }, "signals.grace_ms"},
		{"mono theme", func(c *Config) { c.TUI.Theme = "mono" }, ""},
		{"unknown theme", func(c *Config) { c.TUI.Theme = "dracula" }, "tui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()

			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("Validate() = %v, want no errors", errs)
				}
				return
			}
			if !hasFieldError(errs, tt.wantField) {
				t.Errorf("Validate() = %v, want an error for %s", errs, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Watch.IntervalMs = 0
	cfg.Fetch.MaxAttempts = -1
	cfg.TUI.Theme = "neon"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}

func TestValidLists(t *testing.T) {
	if got := ValidLogLevels(); len(got) != 4 {
		t.Errorf("ValidLogLevels() = %v", got)
	}
	// Every level the config accepts is one the logger understands.
	for _, l := range ValidLogLevels() {
		if got := logging.ParseLevel(l); got != strings.ToUpper(l) {
			t.Errorf("ParseLevel(%q) = %q", l, got)
		}
	}
	if got := ValidThemes(); len(got) != 2 {
		t.Errorf("ValidThemes() = %v", got)
	}
}
