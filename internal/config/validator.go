package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/tagrade/tagrade/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "watch.interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// classCodeRegex keeps the class code usable as a single path element
var classCodeRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	levels := logging.ValidLevels()
	for i, l := range levels {
		levels[i] = strings.ToLower(l)
	}
	return levels
}

// ValidThemes returns the list of valid TUI themes
func ValidThemes() []string {
	return []string{"default", "mono"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateClass()...)
	errors = append(errors, c.validateShared()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateFetch()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateSignals()...)
	errors = append(errors, c.validateTUI()...)

	return errors
}

// validateClass validates the ClassConfig. An empty code is allowed here;
// commands that touch the shared tree reject it when they resolve the layout.
func (c *Config) validateClass() []ValidationError {
	var errors []ValidationError

	if c.Class.Code != "" && !classCodeRegex.MatchString(c.Class.Code) {
		errors = append(errors, ValidationError{
			Field:   "class.code",
			Value:   c.Class.Code,
			Message: "must start with a letter or digit and contain only letters, digits, '.', '_' or '-'",
		})
	}

	return errors
}

func (c *Config) validateShared() []ValidationError {
	var errors []ValidationError

	if c.Shared.Root == "" {
		errors = append(errors, ValidationError{
			Field:   "shared.root",
			Value:   c.Shared.Root,
			Message: "must be set",
		})
	}

	dirs := []struct{ field, name string }{
		{"shared.locks_dir", c.Shared.LocksDir},
		{"shared.submissions_dir", c.Shared.SubmissionsDir},
	}
	for _, d := range dirs {
		field, name := d.field, d.name
		if name == "" {
			continue
		}
		if strings.ContainsRune(name, filepath.Separator) || name == "." || name == ".." {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "must be a single directory name",
			})
		}
	}

	return errors
}

func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	const minIntervalMs = 50
	if c.Watch.IntervalMs < minIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "watch.interval_ms",
			Value:   c.Watch.IntervalMs,
			Message: fmt.Sprintf("must be at least %d", minIntervalMs),
		})
	}

	return errors
}

func (c *Config) validateFetch() []ValidationError {
	var errors []ValidationError

	if c.Fetch.BaseURL != "" {
		u, err := url.Parse(c.Fetch.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "fetch.base_url",
				Value:   c.Fetch.BaseURL,
				Message: "must be an absolute http or https URL",
			})
		}
	}

	if c.Fetch.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "fetch.max_attempts",
			Value:   c.Fetch.MaxAttempts,
			Message: "must be at least 1",
		})
	}

	const maxAttemptsLimit = 20
	if c.Fetch.MaxAttempts > maxAttemptsLimit {
		errors = append(errors, ValidationError{
			Field:   "fetch.max_attempts",
			Value:   c.Fetch.MaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxAttemptsLimit),
		})
	}

	if c.Fetch.RetryDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "fetch.retry_delay_ms",
			Value:   c.Fetch.RetryDelayMs,
			Message: "must be non-negative",
		})
	}

	if c.Fetch.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetch.timeout_seconds",
			Value:   c.Fetch.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateSignals() []ValidationError {
	var errors []ValidationError

	if c.Signals.GraceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "signals.grace_ms",
			Value:   c.Signals.GraceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	if c.TUI.Theme != "" && !slices.Contains(ValidThemes(), c.TUI.Theme) {
		errors = append(errors, ValidationError{
			Field:   "tui.theme",
			Value:   c.TUI.Theme,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidThemes(), ", ")),
		})
	}

	return errors
}
