// Package prompt renders extraction prompts and enforces the prompt length
// budget before any model call is made.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/bioextract/internal/model"
)

// DefaultMaxLength is the default prompt budget in runes.
const DefaultMaxLength = 12000

// ErrPromptTooLong matches every *TooLongError via errors.Is.
var ErrPromptTooLong = eris.New("prompt too long")

// TooLongError reports a prompt over budget. Prompts are never truncated.
type TooLongError struct {
	Length int
	Limit  int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("prompt too long: %d > %d", e.Length, e.Limit)
}

// Is makes errors.Is(err, ErrPromptTooLong) hold.
func (e *TooLongError) Is(target error) bool { return target == ErrPromptTooLong }

// Kind returns the failure kind reported for over-budget prompts.
func (e *TooLongError) Kind() model.FailureKind { return model.FailPromptTooLong }

// Prompt is a rendered prompt. Text is Header followed by Content and
// Length is its rune count.
type Prompt struct {
	System  string
	Header  string
	Content string
	Text    string
	Length  int
}

const headerText = `Read the text below about {{.Subject}}.
{{with .Instructions}}{{.}}
{{end}}
Respond with a single JSON object and no other text. Use exactly these keys:
{{range .Fields}}- "{{.Key}}" ({{.Label}}): {{hint .}}{{with .Description}}; {{.}}{{end}}
{{end}}
If the text does not state a value, write "unknown" for that key instead of guessing.

Text:
`

var header = template.Must(template.New("header").Funcs(template.FuncMap{"hint": hint}).Parse(headerText))

// Builder renders prompts for one model configuration.
type Builder struct {
	maxLength int
	system    string
}

// NewBuilder creates a Builder. maxLength below 1 uses DefaultMaxLength.
func NewBuilder(maxLength int, system string) *Builder {
	if maxLength < 1 {
		maxLength = DefaultMaxLength
	}
	return &Builder{maxLength: maxLength, system: system}
}

// MaxLength returns the prompt budget in runes.
func (b *Builder) MaxLength() int { return b.maxLength }

// Build renders the prompt for a candidate and fetched content. A prompt
// whose length exceeds the budget yields a *TooLongError; a prompt exactly
// at the budget is accepted.
func (b *Builder) Build(c model.Candidate, content *model.NormalizedContent, schema *model.ExtractionSchema) (*Prompt, error) {
	hdr, err := b.Header(c, schema)
	if err != nil {
		return nil, err
	}

	var text string
	if content != nil {
		text = content.Text
	}
	length := model.TextLength(hdr) + model.TextLength(text)
	if length > b.maxLength {
		return nil, &TooLongError{Length: length, Limit: b.maxLength}
	}

	return &Prompt{
		System:  b.system,
		Header:  hdr,
		Content: text,
		Text:    hdr + text,
		Length:  length,
	}, nil
}

// HeaderLength returns the rune count of the header for a candidate, i.e.
// the length of a prompt with empty content.
func (b *Builder) HeaderLength(c model.Candidate, schema *model.ExtractionSchema) (int, error) {
	hdr, err := b.Header(c, schema)
	if err != nil {
		return 0, err
	}
	return model.TextLength(hdr), nil
}

// Header renders the instruction part of the prompt.
func (b *Builder) Header(c model.Candidate, schema *model.ExtractionSchema) (string, error) {
	data := templateCandidate(c)

	subject, err := render("subject", schema.Subject, data)
	if err != nil {
		return "", err
	}
	instructions, err := render("instructions", schema.Instructions, data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	err = header.Execute(&sb, struct {
		Subject      string
		Instructions string
		Fields       []model.Field
	}{
		Subject:      strings.TrimSpace(subject),
		Instructions: strings.TrimSpace(instructions),
		Fields:       schema.Fields,
	})
	if err != nil {
		return "", eris.Wrap(err, "prompt: render header")
	}
	return sb.String(), nil
}

func render(name, text string, data model.Candidate) (string, error) {
	if text == "" {
		return "", nil
	}
	t, err := template.New(name).Parse(text)
	if err != nil {
		return "", eris.Wrapf(err, "prompt: parse %s", name)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", eris.Wrapf(err, "prompt: render %s", name)
	}
	return sb.String(), nil
}

// templateCandidate prepares the candidate for interpolation: the name is
// title-cased and document rosters fall back to the candidate id.
func templateCandidate(c model.Candidate) model.Candidate {
	name := strings.Join(strings.Fields(c.Name), " ")
	if name == "" {
		name = c.ID
	}
	c.Name = cases.Title(language.English).String(strings.ToLower(name))
	c.Document = ""
	return c
}

// hint describes the expected JSON value of a field.
func hint(f model.Field) string {
	switch f.Shape {
	case model.ShapeList:
		return "array of strings"
	case model.ShapeEnum:
		quoted := make([]string, len(f.Allowed))
		for i, a := range f.Allowed {
			quoted[i] = strconv.Quote(a)
		}
		return "one of " + strings.Join(quoted, ", ")
	case model.ShapeInteger:
		switch {
		case len(f.Allowed) > 0:
			return "integer, one of " + strings.Join(f.Allowed, ", ")
		case f.Min != nil && f.Max != nil:
			return fmt.Sprintf("integer from %d to %d", *f.Min, *f.Max)
		default:
			return "integer"
		}
	default:
		return "string"
	}
}
