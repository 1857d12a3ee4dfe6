package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/registry"
)

func bioSchema(t *testing.T) *model.ExtractionSchema {
	t.Helper()
	s, ok := registry.Builtin(registry.SchemaCandidateBio)
	require.True(t, ok)
	return s
}

const bioAnswer = `{
  "college_major": "Economics",
  "undergraduate_institution": "Ohio State University",
  "highest_degree_and_institution": "JD, Harvard Law School",
  "work_history": ["Attorney", " City Council member "],
  "confidence_level": 85
}`

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	rec, err := Parse(bioAnswer, bioSchema(t))
	require.NoError(t, err)

	assert.Equal(t, registry.SchemaCandidateBio, rec.Schema)
	assert.True(t, rec.Complete(bioSchema(t)))
	assert.Equal(t, "Economics", rec.Values["college_major"].Text)
	assert.Equal(t, []string{"Attorney", "City Council member"}, rec.Values["work_history"].Items)
	assert.Equal(t, int64(85), rec.Values["confidence_level"].Number)
	assert.Equal(t, 5, rec.KnownCount())
}

func TestParse_UnknownMarkers(t *testing.T) {
	t.Parallel()

	raw := `{"college_major": "N/A", "undergraduate_institution": "", "highest_degree_and_institution": null,
	"work_history": "unknown", "confidence_level": "Unknown"}`
	rec, err := Parse(raw, bioSchema(t))
	require.NoError(t, err)

	for _, k := range bioSchema(t).Keys() {
		assert.True(t, rec.Values[k].Unknown, k)
	}
	assert.Equal(t, 0, rec.KnownCount())
}

func TestParse_Fenced(t *testing.T) {
	t.Parallel()

	rec, err := Parse("```json\n"+bioAnswer+"\n```", bioSchema(t))
	require.NoError(t, err)
	assert.Equal(t, "Economics", rec.Values["college_major"].Text)

	rec, err = Parse("```\n"+bioAnswer+"\n```", bioSchema(t))
	require.NoError(t, err)
	assert.Equal(t, int64(85), rec.Values["confidence_level"].Number)
}

func TestParse_LabelAliases(t *testing.T) {
	t.Parallel()

	raw := `{"College Major": "History", "Undergraduate Institution": "unknown",
	"Highest Degree and Institution": "unknown", "Work History": [], "Confidence Level": 40}`
	rec, err := Parse(raw, bioSchema(t))
	require.NoError(t, err)
	assert.Equal(t, "History", rec.Values["college_major"].Text)
	assert.Empty(t, rec.Values["work_history"].Items)
	assert.False(t, rec.Values["work_history"].Unknown)
	assert.Equal(t, int64(40), rec.Values["confidence_level"].Number)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"prose", "I could not find anything about this candidate."},
		{"leading prose", "Here is the JSON: " + bioAnswer},
		{"trailing prose", bioAnswer + " Let me know if you need more."},
		{"two objects", bioAnswer + bioAnswer},
		{"array", `[` + bioAnswer + `]`},
		{"fence with prose", "Sure!\n```json\n" + bioAnswer + "\n```"},
		{"missing key", `{"college_major": "Economics", "undergraduate_institution": "x",
			"highest_degree_and_institution": "x", "work_history": []}`},
		{"extra key", `{"college_major": "a", "undergraduate_institution": "b",
			"highest_degree_and_institution": "c", "work_history": [], "confidence_level": 5, "party": "x"}`},
		{"flattened list", `{"college_major": "a", "undergraduate_institution": "b",
			"highest_degree_and_institution": "c", "work_history": "Attorney, Teacher", "confidence_level": 5}`},
		{"string integer", `{"college_major": "a", "undergraduate_institution": "b",
			"highest_degree_and_institution": "c", "work_history": [], "confidence_level": "85"}`},
		{"out of range", `{"college_major": "a", "undergraduate_institution": "b",
			"highest_degree_and_institution": "c", "work_history": [], "confidence_level": 150}`},
		{"key and label", `{"college_major": "a", "College Major": "a", "undergraduate_institution": "b",
			"highest_degree_and_institution": "c", "work_history": [], "confidence_level": 5}`},
		{"repeated key", `{"college_major": "a", "college_major": "b", "undergraduate_institution": "b",
			"highest_degree_and_institution": "c", "work_history": [], "confidence_level": 5}`},
		{"list of numbers", `{"college_major": "a", "undergraduate_institution": "b",
			"highest_degree_and_institution": "c", "work_history": [1, 2], "confidence_level": 5}`},
		{"truncated", `{"college_major": "a", "undergraduate_institution": "b"`},
	}

	s := bioSchema(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, err := Parse(tt.raw, s)
			require.Error(t, err)
			assert.Nil(t, rec)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %T", err)
			assert.Equal(t, model.FailParse, pe.Kind())
		})
	}
}

func TestParse_TriStateIntegers(t *testing.T) {
	t.Parallel()

	s := &model.ExtractionSchema{
		Name: "tri",
		Fields: []model.Field{
			{Key: "fraud_case", Label: "Fraud Case", Shape: model.ShapeInteger, Allowed: []string{"1", "0", "-1"}},
			{Key: "dea_case", Label: "DEA Case", Shape: model.ShapeInteger, Allowed: []string{"1", "0", "-1"}},
		},
	}

	rec, err := Parse(`{"fraud_case": -1, "dea_case": 1.0}`, s)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), rec.Values["fraud_case"].Number)
	assert.Equal(t, int64(1), rec.Values["dea_case"].Number)

	_, err = Parse(`{"fraud_case": 2, "dea_case": 0}`, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestParse_IntegerOutOfRange(t *testing.T) {
	t.Parallel()

	s := &model.ExtractionSchema{
		Name:   "count",
		Fields: []model.Field{{Key: "n", Label: "N", Shape: model.ShapeInteger}},
	}

	for _, raw := range []string{
		`{"n": 1e30}`,
		`{"n": -1e30}`,
		`{"n": 99999999999999999999}`,
		`{"n": 9223372036854775808}`,
	} {
		rec, err := Parse(raw, s)
		require.Error(t, err, raw)
		assert.Nil(t, rec)

		var pe *ParseError
		require.True(t, errors.As(err, &pe), "got %T", err)
		assert.Equal(t, model.FailParse, pe.Kind())
	}

	rec, err := Parse(`{"n": 9223372036854775807}`, s)
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), rec.Values["n"].Number)

	rec, err = Parse(`{"n": 1e3}`, s)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.Values["n"].Number)
}

func TestParse_Enum(t *testing.T) {
	t.Parallel()

	s := &model.ExtractionSchema{
		Name:   "enum",
		Fields: []model.Field{{Key: "party", Label: "Party", Shape: model.ShapeEnum, Allowed: []string{"D", "R", "I"}}},
	}

	rec, err := Parse(`{"party": "R"}`, s)
	require.NoError(t, err)
	assert.Equal(t, "R", rec.Values["party"].Text)

	rec, err = Parse(`{"party": "n/a"}`, s)
	require.NoError(t, err)
	assert.True(t, rec.Values["party"].Unknown)

	_, err = Parse(`{"party": "Green"}`, s)
	require.Error(t, err)
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	p, err := NewParser(bioSchema(t))
	require.NoError(t, err)

	a, err := p.Parse(bioAnswer)
	require.NoError(t, err)
	b, err := p.Parse(bioAnswer)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, registry.SchemaCandidateBio, p.Schema().Name)
}

func TestUnfence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```JSON\n{}\n```", "{}"},
		{"```{}```", "{}"},
		{"{}", "{}"},
		{"```json\n{}\n``` and ```x```", "```json\n{}\n``` and ```x```"},
		{"```python\n{}\n```", "python\n{}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unfence(tt.in), tt.in)
	}
}

func TestJSONSchema(t *testing.T) {
	t.Parallel()

	js := JSONSchema(bioSchema(t))
	assert.Equal(t, false, js["additionalProperties"])
	assert.Len(t, js["required"], 5)

	props := js["properties"].(map[string]any)
	conf := props["confidence_level"].(map[string]any)["anyOf"].([]any)
	typed := conf[0].(map[string]any)
	assert.Equal(t, "integer", typed["type"])
	assert.Equal(t, int64(1), typed["minimum"])
	assert.Equal(t, int64(100), typed["maximum"])
}
