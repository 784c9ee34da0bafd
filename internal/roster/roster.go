// Package roster holds the course entities the lock core operates on:
// students, labs with their parts, and sections.
//
// Entities are immutable once loaded. A re-sync replaces the whole [Roster]
// rather than mutating it, so a *Roster may be shared freely between
// goroutines.
package roster

import (
	"strconv"
	"strings"
	"time"
)

// Student is one enrolled student.
type Student struct {
	FirstName string `yaml:"first_name" toml:"first_name" json:"first_name" validate:"required"`
	LastName  string `yaml:"last_name" toml:"last_name" json:"last_name" validate:"required"`
	Email     string `yaml:"email" toml:"email" json:"email" validate:"required,email"`
	// ID is the numeric platform ID. Zero when the platform has not assigned one.
	ID      int64 `yaml:"id" toml:"id" json:"id" validate:"gte=0"`
	Section int   `yaml:"section" toml:"section" json:"section" validate:"gte=0"`
}

// FullName returns "First Last".
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// NetID returns the local part of the student's e-mail address.
func (s Student) NetID() string {
	local, _, _ := strings.Cut(s.Email, "@")
	return local
}

// Key is the identity used in lock names: the decimal platform ID when set,
// otherwise the NetID.
func (s Student) Key() string {
	if s.ID != 0 {
		return strconv.FormatInt(s.ID, 10)
	}
	return s.NetID()
}

func (s Student) String() string {
	return s.FullName() + " <" + s.Email + ">"
}

// Part is one gradable piece of a lab as the platform knows it.
type Part struct {
	Name   string `yaml:"name" toml:"name" json:"name" validate:"required"`
	PartID string `yaml:"part_id" toml:"part_id" json:"part_id" validate:"required"`
}

// LabOptions tunes how submissions for a lab are collected.
type LabOptions struct {
	// HighestScoreOnly keeps only the best-scoring submission per part.
	HighestScoreOnly bool `yaml:"highest_score_only" toml:"highest_score_only" json:"highest_score_only"`
	// DueDate discards submissions made after it when set.
	DueDate *time.Time `yaml:"due_date,omitempty" toml:"due_date,omitempty" json:"due_date,omitempty"`
}

// Lab is an assignment with ordered parts. Names are unique within a term.
type Lab struct {
	Name    string     `yaml:"name" toml:"name" json:"name" validate:"required"`
	Parts   []Part     `yaml:"parts" toml:"parts" json:"parts" validate:"required,min=1,dive"`
	Options LabOptions `yaml:"options" toml:"options" json:"options"`
}

// IsLate reports whether a submission made at t is past the due date.
func (l Lab) IsLate(t time.Time) bool {
	return l.Options.DueDate != nil && t.After(*l.Options.DueDate)
}

// Section is a lab section and the TA who runs it.
type Section struct {
	Number int    `yaml:"number" toml:"number" json:"number" validate:"gt=0"`
	TA     string `yaml:"ta" toml:"ta" json:"ta"`
	Meets  string `yaml:"meets" toml:"meets" json:"meets"`
}

// Roster is a loaded snapshot of one class.
type Roster struct {
	ClassCode string    `yaml:"class_code" toml:"class_code" json:"class_code" validate:"required"`
	Term      string    `yaml:"term" toml:"term" json:"term"`
	Sections  []Section `yaml:"sections" toml:"sections" json:"sections" validate:"unique=Number,dive"`
	Students  []Student `yaml:"students" toml:"students" json:"students" validate:"unique=Email,dive"`
	Labs      []Lab     `yaml:"labs" toml:"labs" json:"labs" validate:"unique=Name,dive"`
}

// Student returns the student whose Key matches key.
func (r *Roster) Student(key string) (Student, bool) {
	for _, s := range r.Students {
		if s.Key() == key {
			return s, true
		}
	}
	return Student{}, false
}

// Lab returns the lab with the given name, compared case-insensitively.
func (r *Roster) Lab(name string) (Lab, bool) {
	for _, l := range r.Labs {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Lab{}, false
}

// FindStudents returns every student matching query: an exact platform ID,
// e-mail or NetID, or a case-insensitive substring of the full name.
// Results keep roster order.
func (r *Roster) FindStudents(query string) []Student {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	lower := strings.ToLower(query)

	var matches []Student
	for _, s := range r.Students {
		if matchesStudent(s, query, lower) {
			matches = append(matches, s)
		}
	}
	return matches
}

func matchesStudent(s Student, query, lower string) bool {
	if s.ID != 0 && strconv.FormatInt(s.ID, 10) == query {
		return true
	}
	if strings.EqualFold(s.Email, query) || strings.EqualFold(s.NetID(), query) {
		return true
	}
	return strings.Contains(strings.ToLower(s.FullName()), lower)
}

// StudentsInSection returns the students enrolled in section n.
func (r *Roster) StudentsInSection(n int) []Student {
	var out []Student
	for _, s := range r.Students {
		if s.Section == n {
			out = append(out, s)
		}
	}
	return out
}

// SectionsForTA returns the sections run by the named TA.
func (r *Roster) SectionsForTA(ta string) []Section {
	var out []Section
	for _, sec := range r.Sections {
		if strings.EqualFold(sec.TA, ta) {
			out = append(out, sec)
		}
	}
	return out
}
