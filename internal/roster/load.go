package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/tagrade/tagrade/internal/errors"
)

// Format identifies a snapshot encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the decoder from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.NewValidationError("unsupported roster format, want .yaml, .yml, .toml or .json").
			WithField("roster.path").
			WithValue(path)
	}
}

// Load reads and validates the roster snapshot at path.
func Load(path string) (*Roster, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("roster", path)
		}
		return nil, errors.NewFilesystemError("read roster", path, err)
	}

	r, err := Decode(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "roster %s", path)
	}
	return r, nil
}

// Decode parses a snapshot in the given format and validates it.
func Decode(data []byte, format Format) (*Roster, error) {
	var r Roster

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrap(err, "decode yaml")
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrap(err, "decode toml")
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrap(err, "decode json")
		}
	default:
		return nil, errors.NewValidationError("unknown roster format").WithValue(format)
	}

	if err := Validate(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the cross references between
// students and sections. Every problem is reported, joined.
func Validate(r *Roster) error {
	var errs []error

	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, errors.NewValidationError(describe(fe)).
				WithField(fe.Namespace()).
				WithValue(fe.Value()))
		}
	}

	if len(r.Sections) > 0 {
		known := make(map[int]bool, len(r.Sections))
		for _, sec := range r.Sections {
			known[sec.Number] = true
		}
		for i, s := range r.Students {
			if s.Section != 0 && !known[s.Section] {
				errs = append(errs, errors.NewValidationError("section is not listed in the roster").
					WithField(fmt.Sprintf("Roster.Students[%d].Section", i)).
					WithValue(s.Section))
			}
		}
	}

	keys := make(map[string]int, len(r.Students))
	for i, s := range r.Students {
		key := s.Key()
		if prev, dup := keys[key]; dup {
			errs = append(errs, errors.NewValidationError(fmt.Sprintf("duplicate student key, also used by Students[%d]", prev)).
				WithField(fmt.Sprintf("Roster.Students[%d]", i)).
				WithValue(key))
			continue
		}
		keys[key] = i
	}

	return errors.Join(errs...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be an e-mail address"
	case "unique":
		return fmt.Sprintf("must be unique by %s", fe.Param())
	case "min":
		return fmt.Sprintf("needs at least %s entries", fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("must be %s %s", map[string]string{"gt": ">", "gte": ">="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
