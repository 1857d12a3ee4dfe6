package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/bioextract/internal/model"
)

// ParseError reports a model answer that does not match the schema.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind returns the failure kind reported for parse errors.
func (e *ParseError) Kind() model.FailureKind { return model.FailParse }

// unknownMarkers normalize to model.Unknown, compared case-insensitively.
var unknownMarkers = []string{"", model.Unknown, "n/a"}

// Parser validates answers against one schema. It is safe for concurrent use.
type Parser struct {
	schema  *model.ExtractionSchema
	json    *gojsonschema.Schema
	aliases map[string]string
}

// NewParser compiles the JSON Schema for s.
func NewParser(s *model.ExtractionSchema) (*Parser, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(JSONSchema(s)))
	if err != nil {
		return nil, eris.Wrapf(err, "parse: compile schema %s", s.Name)
	}

	aliases := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		aliases[strings.ToLower(f.Label)] = f.Key
	}
	return &Parser{schema: s, json: compiled, aliases: aliases}, nil
}

// Parse is a one-shot NewParser(s).Parse(raw).
func Parse(raw string, s *model.ExtractionSchema) (*model.ExtractionRecord, error) {
	p, err := NewParser(s)
	if err != nil {
		return nil, err
	}
	return p.Parse(raw)
}

// Schema returns the schema the parser validates against.
func (p *Parser) Schema() *model.ExtractionSchema { return p.schema }

// Parse converts a raw answer into a record holding every schema key.
// Every error is a *ParseError.
func (p *Parser) Parse(raw string) (*model.ExtractionRecord, error) {
	body := unfence(strings.TrimSpace(raw))
	if body == "" {
		return nil, &ParseError{Reason: "empty answer"}
	}

	members, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	doc, err := p.canonicalize(members)
	if err != nil {
		return nil, err
	}

	result, err := p.json.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, &ParseError{Reason: "validate", Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, &ParseError{Reason: "schema mismatch: " + strings.Join(msgs, "; ")}
	}

	values := make(map[string]model.Value, len(p.schema.Fields))
	for _, f := range p.schema.Fields {
		v, err := toValue(f, doc[f.Key])
		if err != nil {
			return nil, err
		}
		values[f.Key] = v
	}

	return &model.ExtractionRecord{Schema: p.schema.Name, Values: values}, nil
}

type member struct {
	key   string
	value any
}

// decodeObject reads exactly one JSON object, keeping member order and
// rejecting repeated keys and trailing tokens.
func decodeObject(body string) ([]member, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, &ParseError{Reason: "not json", Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &ParseError{Reason: "answer is not a json object"}
	}

	var out []member
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &ParseError{Reason: "malformed object", Err: err}
		}
		key, _ := tok.(string)
		if seen[key] {
			return nil, &ParseError{Reason: fmt.Sprintf("key %q repeated", key)}
		}
		seen[key] = true

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("malformed value for %q", key), Err: err}
		}
		out = append(out, member{key: key, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, &ParseError{Reason: "malformed object", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Reason: "trailing content after object"}
	}
	return out, nil
}

// canonicalize maps label aliases onto field keys and normalizes unknown
// markers. Unrecognized names pass through for the schema to reject.
func (p *Parser) canonicalize(members []member) (map[string]any, error) {
	doc := make(map[string]any, len(members))
	for _, m := range members {
		key := m.key
		if p.schema.Field(key) == nil {
			if alias, ok := p.aliases[strings.ToLower(strings.TrimSpace(key))]; ok {
				key = alias
			}
		}
		if _, dup := doc[key]; dup {
			return nil, &ParseError{Reason: fmt.Sprintf("field %q given twice", key)}
		}
		if p.schema.Field(key) != nil && isUnknown(m.value) {
			doc[key] = model.Unknown
			continue
		}
		doc[key] = m.value
	}
	return doc, nil
}

func isUnknown(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range unknownMarkers {
		if s == m {
			return true
		}
	}
	return false
}

func toValue(f model.Field, v any) (model.Value, error) {
	if s, ok := v.(string); ok && s == model.Unknown {
		return model.UnknownValue(f.Shape), nil
	}

	switch f.Shape {
	case model.ShapeList:
		raw, _ := v.([]any)
		items := make([]string, 0, len(raw))
		for _, it := range raw {
			if s := strings.TrimSpace(it.(string)); s != "" {
				items = append(items, s)
			}
		}
		return model.ListValue(items), nil

	case model.ShapeInteger:
		num, _ := v.(json.Number)
		n, err := strconv.ParseInt(num.String(), 10, 64)
		if err != nil {
			// Integral floats such as 3.0 pass the schema. Values outside
			// int64 are rejected rather than wrapped.
			fl, ferr := num.Float64()
			if ferr != nil || fl != math.Trunc(fl) || fl < math.MinInt64 || fl >= math.MaxInt64 {
				return model.Value{}, &ParseError{Reason: fmt.Sprintf("field %q is not a 64-bit integer", f.Key), Err: err}
			}
			n = int64(fl)
		}
		if len(f.Allowed) > 0 && !allows(f.Allowed, n) {
			return model.Value{}, &ParseError{Reason: fmt.Sprintf("field %q value %d not allowed", f.Key, n)}
		}
		return model.IntValue(n), nil

	default:
		s, _ := v.(string)
		return model.TextValue(f.Shape, strings.TrimSpace(s)), nil
	}
}

func allows(allowed []string, n int64) bool {
	want := strconv.FormatInt(n, 10)
	for _, a := range allowed {
		if strings.TrimSpace(a) == want {
			return true
		}
	}
	return false
}

// unfence strips a markdown code fence that wraps the whole answer.
func unfence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if strings.Contains(inner, "```") {
		return s
	}
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		tag := strings.TrimSpace(inner[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}

// JSONSchema renders the draft-07 JSON Schema for answers to s. Every field
// is required and also accepts the unknown marker.
func JSONSchema(s *model.ExtractionSchema) map[string]any {
	unknown := map[string]any{"enum": []any{model.Unknown}}
	props := make(map[string]any, len(s.Fields))
	required := make([]any, 0, len(s.Fields))

	for _, f := range s.Fields {
		var typed map[string]any
		switch f.Shape {
		case model.ShapeList:
			typed = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		case model.ShapeInteger:
			typed = map[string]any{"type": "integer"}
			if f.Min != nil {
				typed["minimum"] = *f.Min
			}
			if f.Max != nil {
				typed["maximum"] = *f.Max
			}
		case model.ShapeEnum:
			allowed := make([]any, 0, len(f.Allowed))
			for _, a := range f.Allowed {
				allowed = append(allowed, a)
			}
			typed = map[string]any{"type": "string", "enum": allowed}
		default:
			typed = map[string]any{"type": "string"}
		}
		props[f.Key] = map[string]any{"anyOf": []any{typed, unknown}}
		required = append(required, f.Key)
	}

	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
