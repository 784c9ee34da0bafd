package lock

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/util"
)

// Kind distinguishes grading locks from e-mail locks.
type Kind string

const (
	// KindGrading scopes a lock to one (student, lab) pair.
	KindGrading Kind = "grading"
	// KindEmail scopes a lock to one student's e-mail thread.
	KindEmail Kind = "email"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindGrading || k == KindEmail
}

const (
	fieldSep  = "~"
	originSep = "+"
	slotExt   = ".lock"
)

// Descriptor describes one lock artifact as found on disk.
type Descriptor struct {
	Kind    Kind
	Lab     string // empty for e-mail locks
	Student string
	Holder  string
	Host    string
	PID     int
	Nonce   string

	// CreatedAt comes from the nonce when it is a UUIDv7, otherwise from the
	// artifact's modification time.
	CreatedAt time.Time

	// Slot is the artifact's file name; Target is its raw link target.
	Slot   string
	Target string
}

// String renders the descriptor for humans.
func (d Descriptor) String() string {
	what := d.Lab + "/" + d.Student
	if d.Kind == KindEmail {
		what = "email/" + d.Student
	}
	return fmt.Sprintf("%s held by %s (%s pid %d)", what, d.Holder, d.Host, d.PID)
}

// slotName returns the artifact name for a lock target.
func slotName(kind Kind, lab, student string) string {
	if kind == KindEmail {
		lab = ""
	}
	return string(kind) + fieldSep + util.EscapeName(lab) + fieldSep + util.EscapeName(student) + slotExt
}

// encodeTarget builds the link target for d. Slot, Target and CreatedAt are
// ignored.
func encodeTarget(d Descriptor) string {
	origin := strings.Join([]string{
		util.EscapeName(d.Host),
		strconv.Itoa(d.PID),
		util.EscapeName(d.Nonce),
	}, originSep)

	return strings.Join([]string{
		util.EscapeName(d.Lab),
		util.EscapeName(d.Student),
		util.EscapeName(d.Holder),
		string(d.Kind),
		origin,
	}, fieldSep)
}

// parseTarget decodes a link target. The returned descriptor has Slot unset.
func parseTarget(target string) (Descriptor, error) {
	malformed := func(reason string) error {
		return fmt.Errorf("%w: %s: %q", errors.ErrMalformedArtifact, reason, target)
	}

	fields := strings.Split(target, fieldSep)
	if len(fields) != 5 {
		return Descriptor{}, malformed(fmt.Sprintf("want 5 fields, got %d", len(fields)))
	}
	origin := strings.Split(fields[4], originSep)
	if len(origin) != 3 {
		return Descriptor{}, malformed("want host+pid+nonce")
	}

	d := Descriptor{Kind: Kind(fields[3]), Target: target}
	if !d.Kind.Valid() {
		return Descriptor{}, malformed("unknown kind " + fields[3])
	}

	var err error
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&d.Lab, fields[0]},
		{&d.Student, fields[1]},
		{&d.Holder, fields[2]},
		{&d.Host, origin[0]},
		{&d.Nonce, origin[2]},
	} {
		if *f.dst, err = util.UnescapeName(f.src); err != nil {
			return Descriptor{}, malformed(err.Error())
		}
	}

	if d.PID, err = strconv.Atoi(origin[1]); err != nil {
		return Descriptor{}, malformed("bad pid")
	}
	if d.Student == "" || d.Holder == "" {
		return Descriptor{}, malformed("empty student or holder")
	}
	if d.Kind == KindGrading && d.Lab == "" {
		return Descriptor{}, malformed("grading lock without lab")
	}
	if d.Kind == KindEmail && d.Lab != "" {
		return Descriptor{}, malformed("email lock with lab")
	}

	d.CreatedAt = nonceTime(d.Nonce)
	return d, nil
}

// nonceTime extracts the millisecond timestamp of a UUIDv7 nonce.
func nonceTime(nonce string) time.Time {
	id, err := uuid.Parse(nonce)
	if err != nil || id.Version() != 7 {
		return time.Time{}
	}
	ms := int64(binary.BigEndian.Uint64(id[:8]) >> 16)
	return time.UnixMilli(ms)
}

func newNonce() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate lock nonce: %w", err)
	}
	return id.String(), nil
}
