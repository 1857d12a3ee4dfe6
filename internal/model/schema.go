package model

// FieldShape is the expected value shape of a schema field.
type FieldShape string

const (
	ShapeText    FieldShape = "text"
	ShapeEnum    FieldShape = "enum"
	ShapeList    FieldShape = "list"
	ShapeInteger FieldShape = "integer"
)

// Valid reports whether s is a known shape.
func (s FieldShape) Valid() bool {
	switch s {
	case ShapeText, ShapeEnum, ShapeList, ShapeInteger:
		return true
	}
	return false
}

// Field is one target field of an ExtractionSchema.
type Field struct {
	Key         string     `json:"key" yaml:"key" validate:"required"`
	Label       string     `json:"label" yaml:"label" validate:"required"`
	Shape       FieldShape `json:"shape" yaml:"shape" validate:"required"`
	Allowed     []string   `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Min         *int64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *int64     `json:"max,omitempty" yaml:"max,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// ExtractionSchema is the fixed set of fields shared by prompt construction
// and response parsing.
type ExtractionSchema struct {
	Name         string  `json:"name" yaml:"name" validate:"required"`
	Subject      string  `json:"subject" yaml:"subject"`
	Instructions string  `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Fields       []Field `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
}

// Keys returns field keys in schema order.
func (s *ExtractionSchema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Field returns the field with the given key, or nil.
func (s *ExtractionSchema) Field(key string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Key == key {
			return &s.Fields[i]
		}
	}
	return nil
}
