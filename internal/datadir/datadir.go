// Package datadir resolves the shared, per-class directory tree that every
// grader's process coordinates through:
//
//	<root>/<class>/
//	├── locks/         lock artifacts
//	├── submissions/   downloaded submissions, <lab>/<student>/
//	└── logs/          one JSON log per holder
//
// Directories are created on demand with mode 0o2775 (group writable,
// setgid) so that files created by one TA stay accessible to the course group.
package datadir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tagrade/tagrade/internal/config"
	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/util"
)

// DirMode is the permission used for every shared directory (0o2775).
const DirMode = os.ModeDir | os.ModeSetgid | 0o775

// Default directory names inside the class directory.
const (
	DefaultLocksDir       = "locks"
	DefaultSubmissionsDir = "submissions"
	LogsDir               = "logs"
)

// Layout holds the resolved paths for one class.
type Layout struct {
	ClassCode      string
	Root           string
	ClassDir       string
	LocksDir       string
	SubmissionsDir string
	LogsDir        string
}

// Resolve computes the layout for the configured class. It does not touch
// the filesystem.
func Resolve(cfg *config.Config) (Layout, error) {
	if cfg.Class.Code == "" {
		return Layout{}, errors.NewValidationError("class code is not configured").WithField("class.code")
	}
	if cfg.Shared.Root == "" {
		return Layout{}, errors.NewValidationError("shared root is not configured").WithField("shared.root")
	}

	root, err := filepath.Abs(cfg.Shared.Root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve shared root: %w", err)
	}
	return New(root, cfg.Class.Code, cfg.Shared.LocksDir, cfg.Shared.SubmissionsDir), nil
}

// New builds a layout from explicit parts. Empty directory names fall back
// to the defaults.
func New(root, classCode, locksDir, submissionsDir string) Layout {
	if locksDir == "" {
		locksDir = DefaultLocksDir
	}
	if submissionsDir == "" {
		submissionsDir = DefaultSubmissionsDir
	}
	classDir := filepath.Join(root, classCode)
	return Layout{
		ClassCode:      classCode,
		Root:           root,
		ClassDir:       classDir,
		LocksDir:       filepath.Join(classDir, locksDir),
		SubmissionsDir: filepath.Join(classDir, submissionsDir),
		LogsDir:        filepath.Join(classDir, LogsDir),
	}
}

// Ensure creates the class directory and its subdirectories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.ClassDir, l.LocksDir, l.SubmissionsDir, l.LogsDir} {
		if err := EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// SubmissionDir returns <submissions>/<lab>/<student>, escaping both names.
func (l Layout) SubmissionDir(lab, student string) string {
	return filepath.Join(l.SubmissionsDir, util.EscapeName(lab), util.EscapeName(student))
}

// EnsureDir creates dir and any missing parents with DirMode. The mode is
// applied explicitly because MkdirAll is subject to the process umask.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.NewFilesystemError("mkdir", dir, fmt.Errorf("%s exists and is not a directory", dir))
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.NewFilesystemError("stat", dir, err)
	}

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return errors.NewFilesystemError("mkdir", dir, err)
	}
	if err := os.Chmod(dir, DirMode); err != nil {
		return errors.NewFilesystemError("chmod", dir, err)
	}
	return nil
}
