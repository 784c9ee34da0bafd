package lock

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tagrade/tagrade/internal/datadir"
	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/logging"
)

// Handle is returned by a successful Lock and is the only way for workflow
// code to release what it acquired.
type Handle struct {
	desc Descriptor
	path string
}

// Descriptor returns what the handle locked.
func (h *Handle) Descriptor() Descriptor {
	return h.desc
}

// Store reads and writes lock artifacts in one directory. The filesystem is
// the single source of truth: nothing is cached and no in-process mutex is
// involved, so a Store is safe for concurrent use by any number of
// goroutines and processes.
type Store struct {
	dir    string
	host   string
	pid    int
	nonce  func() (string, error)
	logger *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for lock activity.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOrigin overrides the host and PID recorded in new artifacts.
func WithOrigin(host string, pid int) Option {
	return func(s *Store) {
		s.host = host
		s.pid = pid
	}
}

// WithNonce overrides the nonce generator.
func WithNonce(fn func() (string, error)) Option {
	return func(s *Store) {
		s.nonce = fn
	}
}

// NewStore returns a store over dir. The directory is created on the first
// Lock if it does not exist.
func NewStore(dir string, opts ...Option) *Store {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	s := &Store{
		dir:    dir,
		host:   host,
		pid:    os.Getpid(),
		nonce:  newNonce,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the locks directory.
func (s *Store) Dir() string {
	return s.dir
}

// IsLocked reports whether a grading lock exists for the pair. A missing
// locks directory means not locked.
func (s *Store) IsLocked(student, lab string) (bool, error) {
	return s.exists(slotName(KindGrading, lab, student))
}

// IsEmailLocked reports whether the student's e-mail lock exists.
func (s *Store) IsEmailLocked(student string) (bool, error) {
	return s.exists(slotName(KindEmail, "", student))
}

// Lock acquires the grading lock for the pair. When the slot is taken it
// returns an *errors.AlreadyLockedError naming the current holder; it never
// waits or retries.
func (s *Store) Lock(student, lab, holder string) (*Handle, error) {
	if lab == "" {
		return nil, errors.NewValidationError("lab is required for a grading lock").WithField("lab")
	}
	return s.acquire(KindGrading, lab, student, holder)
}

// LockEmail acquires the student's e-mail lock.
func (s *Store) LockEmail(student, holder string) (*Handle, error) {
	return s.acquire(KindEmail, "", student, holder)
}

// Holder returns who holds the grading lock for the pair.
func (s *Store) Holder(student, lab string) (string, bool, error) {
	return s.holder(slotName(KindGrading, lab, student))
}

// EmailHolder returns who holds the student's e-mail lock.
func (s *Store) EmailHolder(student string) (string, bool, error) {
	return s.holder(slotName(KindEmail, "", student))
}

// Unlock releases h. It is idempotent: an absent artifact is not an error,
// and an artifact that now points elsewhere (someone re-locked the pair after
// an administrator removed ours) is left in place.
func (s *Store) Unlock(h *Handle) error {
	if h == nil {
		return nil
	}

	removed, err := s.removeIfTarget(h.path, h.desc.Target)
	if err != nil {
		return err
	}
	if removed {
		s.logger.Info("lock released",
			logging.KeyHolder, h.desc.Holder,
			logging.KeyLab, h.desc.Lab,
			logging.KeyStudent, h.desc.Student,
			"kind", string(h.desc.Kind),
			"nonce", h.desc.Nonce,
		)
	} else {
		s.logger.Debug("lock already gone",
			logging.KeyLab, h.desc.Lab,
			logging.KeyStudent, h.desc.Student,
			"nonce", h.desc.Nonce,
		)
	}
	return nil
}

// List returns every lock artifact, oldest first. Entries that do not decode
// are skipped and logged.
func (s *Store) List() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewFilesystemError("list", s.dir, err)
	}

	var locks []Descriptor
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, slotExt) {
			continue
		}
		if entry.Type()&fs.ModeSymlink == 0 {
			s.logger.Warn("skipping lock entry that is not a symlink", "slot", name)
			continue
		}

		d, err := s.describe(name)
		if err != nil {
			if os.IsNotExist(err) {
				// Released between ReadDir and Readlink.
				continue
			}
			s.logger.Warn("skipping unreadable lock", "slot", name, "error", err)
			continue
		}
		locks = append(locks, d)
	}

	sort.Slice(locks, func(i, j int) bool {
		if !locks[i].CreatedAt.Equal(locks[j].CreatedAt) {
			return locks[i].CreatedAt.Before(locks[j].CreatedAt)
		}
		return locks[i].Slot < locks[j].Slot
	})
	return locks, nil
}

// Remove deletes the artifact d describes, whoever holds it. It is
// idempotent, but refuses with ErrNotOwner when the slot now points at a
// different acquisition than d.
func (s *Store) Remove(d Descriptor) error {
	if d.Slot == "" || strings.ContainsRune(d.Slot, filepath.Separator) {
		return errors.NewValidationError("descriptor has no valid slot").WithValue(d.Slot)
	}
	path := filepath.Join(s.dir, d.Slot)

	removed, err := s.removeIfTarget(path, d.Target)
	if err != nil {
		return err
	}
	if !removed {
		current, err := os.Readlink(path)
		if err == nil && current != d.Target {
			return fmt.Errorf("%s: %w", d.Slot, errors.ErrNotOwner)
		}
		return nil
	}

	s.logger.Warn("lock removed",
		logging.KeyHolder, d.Holder,
		logging.KeyLab, d.Lab,
		logging.KeyStudent, d.Student,
		"kind", string(d.Kind),
		"nonce", d.Nonce,
	)
	return nil
}

// UnlockAllByHolder removes every artifact recorded for holder. It keeps
// going past failures and returns how many were removed together with the
// joined errors.
func (s *Store) UnlockAllByHolder(holder string) (int, error) {
	locks, err := s.List()
	if err != nil {
		return 0, err
	}

	var errs []error
	removed := 0
	for _, d := range locks {
		if d.Holder != holder {
			continue
		}
		if err := s.Remove(d); err != nil {
			if errors.Is(err, errors.ErrNotOwner) {
				// Someone else re-locked the slot in the meantime.
				continue
			}
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("released all locks for holder", logging.KeyHolder, holder, "count", removed)
	}
	return removed, errors.Join(errs...)
}

func (s *Store) acquire(kind Kind, lab, student, holder string) (*Handle, error) {
	if student == "" {
		return nil, errors.NewValidationError("student is required").WithField("student")
	}
	if holder == "" {
		return nil, errors.NewValidationError("holder is required").WithField("holder")
	}

	nonce, err := s.nonce()
	if err != nil {
		return nil, err
	}

	d := Descriptor{
		Kind:    kind,
		Lab:     lab,
		Student: student,
		Holder:  holder,
		Host:    s.host,
		PID:     s.pid,
		Nonce:   nonce,
		Slot:    slotName(kind, lab, student),
	}
	d.Target = encodeTarget(d)
	d.CreatedAt = nonceTime(nonce)
	path := filepath.Join(s.dir, d.Slot)

	err = os.Symlink(d.Target, path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		if mkErr := datadir.EnsureDir(s.dir); mkErr != nil {
			return nil, mkErr
		}
		err = os.Symlink(d.Target, path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			// The slot existed at create time, so it counts as locked even
			// when the holder can no longer be read.
			current, _, herr := s.holder(d.Slot)
			if herr != nil {
				s.logger.Warn("failed to read holder of contended lock",
					logging.KeyLab, lab,
					logging.KeyStudent, student,
					"error", herr,
				)
			}
			s.logger.Info("lock contended",
				logging.KeyHolder, holder,
				logging.KeyLab, lab,
				logging.KeyStudent, student,
				"kind", string(kind),
				"held_by", current,
			)
			return nil, errors.NewAlreadyLockedError(lab, student, current)
		}
		return nil, errors.NewFilesystemError("lock", path, err)
	}

	s.logger.Info("lock acquired",
		logging.KeyHolder, holder,
		logging.KeyLab, lab,
		logging.KeyStudent, student,
		"kind", string(kind),
		"nonce", nonce,
	)
	return &Handle{desc: d, path: path}, nil
}

func (s *Store) exists(slot string) (bool, error) {
	path := filepath.Join(s.dir, slot)
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewFilesystemError("stat", path, err)
	}
	return true, nil
}

func (s *Store) holder(slot string) (string, bool, error) {
	d, err := s.describe(slot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", true, err
	}
	return d.Holder, true, nil
}

// describe reads and decodes one slot. Not-exist errors are returned as is.
func (s *Store) describe(slot string) (Descriptor, error) {
	path := filepath.Join(s.dir, slot)
	target, err := os.Readlink(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, err
		}
		return Descriptor{}, errors.NewFilesystemError("readlink", path, err)
	}

	d, err := parseTarget(target)
	if err != nil {
		return Descriptor{}, err
	}
	d.Slot = slot
	if want := slotName(d.Kind, d.Lab, d.Student); want != slot {
		return Descriptor{}, fmt.Errorf("%w: target %q belongs in slot %q", errors.ErrMalformedArtifact, target, want)
	}
	if d.CreatedAt.IsZero() {
		if info, err := os.Lstat(path); err == nil {
			d.CreatedAt = info.ModTime()
		}
	}
	return d, nil
}

// removeIfTarget unlinks path when it still points at target. It reports
// whether this call removed it.
func (s *Store) removeIfTarget(path, target string) (bool, error) {
	current, err := os.Readlink(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewFilesystemError("readlink", path, err)
	}
	if current != target {
		return false, nil
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewFilesystemError("unlock", path, err)
	}
	return true, nil
}
