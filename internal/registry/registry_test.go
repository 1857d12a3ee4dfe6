package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioextract/internal/model"
)

func TestBuiltins_AreValid(t *testing.T) {
	t.Parallel()

	for _, name := range BuiltinNames() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s, ok := Builtin(name)
			require.True(t, ok)
			assert.Equal(t, name, s.Name)
			assert.NoError(t, Validate(s))
		})
	}
}

func TestBuiltin_CandidateBio(t *testing.T) {
	t.Parallel()

	s, ok := Builtin(SchemaCandidateBio)
	require.True(t, ok)
	assert.Equal(t, []string{
		"college_major",
		"undergraduate_institution",
		"highest_degree_and_institution",
		"work_history",
		"confidence_level",
	}, s.Keys())
	assert.Equal(t, model.ShapeList, s.Field("work_history").Shape)
	conf := s.Field("confidence_level")
	require.NotNil(t, conf.Min)
	assert.Equal(t, int64(1), *conf.Min)
	assert.Equal(t, int64(100), *conf.Max)
}

func TestBuiltin_Violation(t *testing.T) {
	t.Parallel()

	s, ok := Builtin(SchemaViolation)
	require.True(t, ok)
	assert.Len(t, s.Fields, 13)
	for _, f := range s.Fields {
		assert.Equal(t, model.ShapeInteger, f.Shape, f.Key)
		assert.Equal(t, []string{"1", "0", "-1"}, f.Allowed, f.Key)
	}
}

func TestBuiltin_ReturnsCopies(t *testing.T) {
	t.Parallel()

	a, _ := Builtin(SchemaSummary)
	a.Fields[0].Key = "mutated"
	b, _ := Builtin(SchemaSummary)
	assert.Equal(t, "trouble_summary", b.Fields[0].Key)

	_, ok := Builtin("nope")
	assert.False(t, ok)
}

func TestBuiltinNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"candidate_bio", "summary", "violation"}, BuiltinNames())
}

func TestLoadSchemaFromFile_YAML(t *testing.T) {
	t.Parallel()

	content := `
name: committee
subject: "{{.Name}}, a city council candidate"
fields:
  - key: committees
    label: Committees
    shape: list
  - key: party
    label: Party
    shape: enum
    allowed: [democrat, republican, independent]
`
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadSchemaFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "committee", s.Name)
	assert.Equal(t, []string{"committees", "party"}, s.Keys())
	assert.Equal(t, []string{"democrat", "republican", "independent"}, s.Field("party").Allowed)
}

func TestLoadSchemaFromFile_JSON(t *testing.T) {
	t.Parallel()

	content := `{"name":"j","fields":[{"key":"a","label":"A","shape":"text"}]}`
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadSchemaFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "j", s.Name)
}

func TestLoadSchemaFromFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadSchemaFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry: read schema file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [oops"), 0o644))
	_, err = LoadSchemaFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		schema model.ExtractionSchema
		errMsg string
	}{
		{
			name:   "no fields",
			schema: model.ExtractionSchema{Name: "x"},
			errMsg: "invalid schema",
		},
		{
			name: "unparseable subject",
			schema: model.ExtractionSchema{Name: "x", Subject: "{{.Name", Fields: []model.Field{
				{Key: "a", Label: "A", Shape: model.ShapeText},
			}},
			errMsg: "subject template",
		},
		{
			name: "instructions reference unknown field",
			schema: model.ExtractionSchema{Name: "x", Instructions: "{{.Party}}", Fields: []model.Field{
				{Key: "a", Label: "A", Shape: model.ShapeText},
			}},
			errMsg: "instructions template",
		},
		{
			name: "bad shape",
			schema: model.ExtractionSchema{Name: "x", Fields: []model.Field{
				{Key: "a", Label: "A", Shape: "blob"},
			}},
			errMsg: "unknown shape",
		},
		{
			name: "duplicate key",
			schema: model.ExtractionSchema{Name: "x", Fields: []model.Field{
				{Key: "a", Label: "A1", Shape: model.ShapeText},
				{Key: "a", Label: "A2", Shape: model.ShapeText},
			}},
			errMsg: "duplicate",
		},
		{
			name: "label collides with key",
			schema: model.ExtractionSchema{Name: "x", Fields: []model.Field{
				{Key: "major", Label: "Major", Shape: model.ShapeText},
				{Key: "minor", Label: "major", Shape: model.ShapeText},
			}},
			errMsg: "duplicate",
		},
		{
			name: "enum without values",
			schema: model.ExtractionSchema{Name: "x", Fields: []model.Field{
				{Key: "a", Label: "A", Shape: model.ShapeEnum},
			}},
			errMsg: "no allowed values",
		},
		{
			name: "integer with text value",
			schema: model.ExtractionSchema{Name: "x", Fields: []model.Field{
				{Key: "a", Label: "A", Shape: model.ShapeInteger, Allowed: []string{"yes"}},
			}},
			errMsg: "non-integer",
		},
		{
			name: "reserved unknown",
			schema: model.ExtractionSchema{Name: "x", Fields: []model.Field{
				{Key: "a", Label: "A", Shape: model.ShapeEnum, Allowed: []string{"unknown"}},
			}},
			errMsg: "reserved",
		},
		{
			name: "min above max",
			schema: model.ExtractionSchema{Name: "x", Fields: []model.Field{
				{Key: "a", Label: "A", Shape: model.ShapeInteger, Min: bound(5), Max: bound(1)},
			}},
			errMsg: "min above max",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tt.schema)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	s, err := Resolve("violation", "")
	require.NoError(t, err)
	assert.Equal(t, "violation", s.Name)

	_, err = Resolve("bogus", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candidate_bio")
}
