package registry

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bioextract/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadSchemaFromFile reads an ExtractionSchema from a YAML or JSON file.
// The format is chosen by extension; anything other than .json is YAML.
func LoadSchemaFromFile(path string) (*model.ExtractionSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read schema file")
	}

	var schema model.ExtractionSchema
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &schema)
	} else {
		err = yaml.Unmarshal(data, &schema)
	}
	if err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal schema file")
	}

	if err := Validate(&schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// Resolve returns the schema from file when path is set, otherwise the
// named builtin.
func Resolve(name, path string) (*model.ExtractionSchema, error) {
	if path != "" {
		return LoadSchemaFromFile(path)
	}
	s, ok := Builtin(name)
	if !ok {
		return nil, eris.Errorf("registry: unknown schema %q (builtin: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return s, nil
}

// Validate checks a schema for structural problems that would make the
// prompt and parser disagree.
func Validate(s *model.ExtractionSchema) error {
	if err := validate.Struct(s); err != nil {
		return eris.Wrap(err, "registry: invalid schema")
	}
	if err := checkTemplates(s); err != nil {
		return err
	}

	seen := make(map[string]bool, len(s.Fields)*2)
	for _, f := range s.Fields {
		if !f.Shape.Valid() {
			return eris.Errorf("registry: field %q has unknown shape %q", f.Key, f.Shape)
		}
		for _, name := range []string{f.Key, f.Label} {
			k := strings.ToLower(name)
			if seen[k] && !(name == f.Label && strings.EqualFold(f.Key, f.Label)) {
				return eris.Errorf("registry: duplicate field name %q", name)
			}
			seen[k] = true
		}
		if f.Shape == model.ShapeEnum && len(f.Allowed) == 0 {
			return eris.Errorf("registry: enum field %q has no allowed values", f.Key)
		}
		if f.Shape == model.ShapeInteger {
			for _, a := range f.Allowed {
				if _, err := strconv.ParseInt(a, 10, 64); err != nil {
					return eris.Errorf("registry: integer field %q allows non-integer %q", f.Key, a)
				}
			}
		}
		if slices.Contains(f.Allowed, model.Unknown) {
			return eris.Errorf("registry: field %q lists the reserved value %q", f.Key, model.Unknown)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return eris.Errorf("registry: field %q has min above max", f.Key)
		}
	}
	return nil
}

// sampleCandidate exercises every field a subject or instruction template
// may reference.
var sampleCandidate = model.Candidate{
	ID: "sample", Name: "Jane Doe", Office: "State Senate", Year: 2020, Jurisdiction: "Ohio",
}

func checkTemplates(s *model.ExtractionSchema) error {
	for part, text := range map[string]string{"subject": s.Subject, "instructions": s.Instructions} {
		t, err := template.New(part).Parse(text)
		if err != nil {
			return eris.Wrapf(err, "registry: schema %s template", part)
		}
		if err := t.Execute(io.Discard, sampleCandidate); err != nil {
			return eris.Wrapf(err, "registry: schema %s template", part)
		}
	}
	return nil
}
