package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tagrade/tagrade/internal/errors"
)

const yamlRoster = `class_code: CS1400
term: Fall 2026
sections:
  - number: 1
    ta: alice
    meets: Mon 10:00
students:
  - first_name: Ada
    last_name: Lovelace
    email: alovelace@example.edu
    id: 42
    section: 1
  - first_name: Alan
    last_name: Turing
    email: aturing@example.edu
    section: 1
labs:
  - name: Lab3
    parts:
      - name: Part A
        part_id: p-100
      - name: Part B
        part_id: p-101
    options:
      highest_score_only: true
      due_date: 2026-03-01T23:59:00Z
`

const tomlRoster = `class_code = "CS1400"
term = "Fall 2026"

[[sections]]
number = 1
ta = "alice"
meets = "Mon 10:00"

[[students]]
first_name = "Ada"
last_name = "Lovelace"
email = "alovelace@example.edu"
id = 42
section = 1

[[students]]
first_name = "Alan"
last_name = "Turing"
email = "aturing@example.edu"
section = 1

[[labs]]
name = "Lab3"

[[labs.parts]]
name = "Part A"
part_id = "p-100"

[[labs.parts]]
name = "Part B"
part_id = "p-101"

[labs.options]
highest_score_only = true
due_date = 2026-03-01T23:59:00Z
`

const jsonRoster = `{
  "class_code": "CS1400",
  "term": "Fall 2026",
  "sections": [{"number": 1, "ta": "alice", "meets": "Mon 10:00"}],
  "students": [
    {"first_name": "Ada", "last_name": "Lovelace", "email": "alovelace@example.edu", "id": 42, "section": 1},
    {"first_name": "Alan", "last_name": "Turing", "email": "aturing@example.edu", "section": 1}
  ],
  "labs": [{
    "name": "Lab3",
    "parts": [{"name": "Part A", "part_id": "p-100"}, {"name": "Part B", "part_id": "p-101"}],
    "options": {"highest_score_only": true, "due_date": "2026-03-01T23:59:00Z"}
  }]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_AllFormatsAgree(t *testing.T) {
	wantDue := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		file    string
		content string
	}{
		{"roster.yaml", yamlRoster},
		{"roster.yml", yamlRoster},
		{"roster.toml", tomlRoster},
		{"roster.json", jsonRoster},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			r, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if r.ClassCode != "CS1400" || r.Term != "Fall 2026" {
				t.Errorf("class = %q %q", r.ClassCode, r.Term)
			}
			if len(r.Students) != 2 {
				t.Fatalf("len(Students) = %d, want 2", len(r.Students))
			}
			if r.Students[0].Key() != "42" || r.Students[1].Key() != "aturing" {
				t.Errorf("keys = %q, %q", r.Students[0].Key(), r.Students[1].Key())
			}
			if len(r.Sections) != 1 || r.Sections[0].TA != "alice" {
				t.Errorf("Sections = %+v", r.Sections)
			}

			lab, ok := r.Lab("Lab3")
			if !ok {
				t.Fatal("Lab3 missing")
			}
			if len(lab.Parts) != 2 || lab.Parts[1].PartID != "p-101" {
				t.Errorf("Parts = %+v", lab.Parts)
			}
			if !lab.Options.HighestScoreOnly {
				t.Error("HighestScoreOnly = false, want true")
			}
			if lab.Options.DueDate == nil || !lab.Options.DueDate.Equal(wantDue) {
				t.Errorf("DueDate = %v, want %v", lab.Options.DueDate, wantDue)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "roster.csv", "a,b\n"))
		if !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("Load(.csv) error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "roster.yaml"))
		if !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "roster.yaml", "students: [unterminated"))
		if err == nil || !strings.Contains(err.Error(), "decode yaml") {
			t.Errorf("Load(malformed) error = %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Roster)
		wantField string
	}{
		{
			name:      "missing class code",
			mutate:    func(r *Roster) { r.ClassCode = "" },
			wantField: "Roster.ClassCode",
		},
		{
			name:      "bad email",
			mutate:    func(r *Roster) { r.Students[0].Email = "not-an-address" },
			wantField: "Roster.Students[0].Email",
		},
		{
			name:      "missing last name",
			mutate:    func(r *Roster) { r.Students[1].LastName = "" },
			wantField: "Roster.Students[1].LastName",
		},
		{
			name: "duplicate lab names",
			mutate: func(r *Roster) {
				r.Labs = append(r.Labs, Lab{Name: "Lab3", Parts: []Part{{Name: "x", PartID: "y"}}})
			},
			wantField: "Roster.Labs",
		},
		{
			name:      "lab without parts",
			mutate:    func(r *Roster) { r.Labs[0].Parts = nil },
			wantField: "Roster.Labs[0].Parts",
		},
		{
			name:      "unknown section",
			mutate:    func(r *Roster) { r.Students[0].Section = 9 },
			wantField: "Roster.Students[0].Section",
		},
		{
			name:      "duplicate student key",
			mutate:    func(r *Roster) { r.Students[2].ID = 42 },
			wantField: "Roster.Students[2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRoster()
			tt.mutate(r)

			err := Validate(r)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Validate() error should match ErrInvalidInput: %v", err)
			}
			if !strings.Contains(err.Error(), "[field="+tt.wantField) {
				t.Errorf("Validate() = %q, want mention of field %s", err.Error(), tt.wantField)
			}
		})
	}

	t.Run("sample roster is valid", func(t *testing.T) {
		if err := Validate(sampleRoster()); err != nil {
			t.Errorf("Validate(sample) = %v", err)
		}
	})
}
