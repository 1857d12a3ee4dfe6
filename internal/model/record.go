package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Unknown marks a schema field the source did not support.
const Unknown = "unknown"

// Value is a single field value. Exactly one representation is meaningful,
// selected by Shape; Unknown overrides all of them.
type Value struct {
	Shape   FieldShape
	Unknown bool
	Text    string
	Items   []string
	Number  int64
}

// UnknownValue returns the explicit unknown marker for a field shape.
func UnknownValue(shape FieldShape) Value {
	return Value{Shape: shape, Unknown: true}
}

// TextValue returns a text or enum value.
func TextValue(shape FieldShape, s string) Value {
	return Value{Shape: shape, Text: s}
}

// ListValue returns a list value.
func ListValue(items []string) Value {
	return Value{Shape: ShapeList, Items: items}
}

// IntValue returns an integer value.
func IntValue(n int64) Value {
	return Value{Shape: ShapeInteger, Number: n}
}

// String renders the value as a single cell for tabular export.
func (v Value) String() string {
	if v.Unknown {
		return Unknown
	}
	switch v.Shape {
	case ShapeList:
		return strings.Join(v.Items, "; ")
	case ShapeInteger:
		return strconv.FormatInt(v.Number, 10)
	default:
		return v.Text
	}
}

// MarshalJSON encodes unknown values as the marker string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Unknown {
		return json.Marshal(Unknown)
	}
	switch v.Shape {
	case ShapeList:
		items := v.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	case ShapeInteger:
		return json.Marshal(v.Number)
	default:
		return json.Marshal(v.Text)
	}
}

// UnmarshalJSON decodes a stored value. The shape is inferred from the JSON
// type, so callers that need the schema shape should set it afterwards.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: decode value")
	}
	switch t := raw.(type) {
	case string:
		if t == Unknown {
			*v = Value{Shape: ShapeText, Unknown: true}
			return nil
		}
		*v = Value{Shape: ShapeText, Text: t}
	case float64:
		*v = Value{Shape: ShapeInteger, Number: int64(t)}
	case []any:
		items := make([]string, 0, len(t))
		for _, it := range t {
			s, ok := it.(string)
			if !ok {
				return eris.Errorf("model: list item %v is not a string", it)
			}
			items = append(items, s)
		}
		*v = Value{Shape: ShapeList, Items: items}
	default:
		return eris.Errorf("model: unsupported value %s", string(data))
	}
	return nil
}

// ExtractionRecord is the structured output for one candidate.
type ExtractionRecord struct {
	CandidateID string           `json:"candidate_id"`
	Schema      string           `json:"schema"`
	Values      map[string]Value `json:"values"`
	SourceURL   string           `json:"source_url"`
	SourceRank  int              `json:"source_rank"`
	Attempts    int              `json:"attempts"`
	Usage       TokenUsage       `json:"usage"`
}

// Complete reports whether every schema field has a value or the unknown
// marker.
func (r *ExtractionRecord) Complete(schema *ExtractionSchema) bool {
	for _, f := range schema.Fields {
		if _, ok := r.Values[f.Key]; !ok {
			return false
		}
	}
	return true
}

// KnownCount returns the number of fields that are not unknown.
func (r *ExtractionRecord) KnownCount() int {
	n := 0
	for _, v := range r.Values {
		if !v.Unknown {
			n++
		}
	}
	return n
}

// TokenUsage tracks LLM token consumption and its priced cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}
