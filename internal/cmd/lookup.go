package cmd

import (
	"fmt"
	"strings"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/roster"
)

// findStudent resolves a command-line student reference: a lock key first,
// then an ID, e-mail, NetID or name fragment that matches one student.
func findStudent(r *roster.Roster, query string) (roster.Student, error) {
	if s, ok := r.Student(query); ok {
		return s, nil
	}

	matches := r.FindStudents(query)
	switch len(matches) {
	case 0:
		return roster.Student{}, errors.NewNotFoundError("student", query)
	case 1:
		return matches[0], nil
	}

	names := make([]string, len(matches))
	for i, s := range matches {
		names[i] = s.String()
	}
	return roster.Student{}, errors.NewValidationError(
		fmt.Sprintf("%q matches %d students: %s", query, len(matches), strings.Join(names, ", ")),
	).WithField("student").WithValue(query)
}

func findLab(r *roster.Roster, name string) (roster.Lab, error) {
	if lab, ok := r.Lab(name); ok {
		return lab, nil
	}
	return roster.Lab{}, errors.NewNotFoundError("lab", name)
}
