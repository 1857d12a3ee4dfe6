// Package export writes pipeline outcomes as JSONL or CSV.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bioextract/internal/model"
)

// Format names an export encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts "jsonl", "json" and "csv", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jsonl", "json", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", eris.Errorf("export: unknown format %q (want jsonl or csv)", s)
}

// FormatFor picks a format from a file extension, defaulting to JSONL.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatJSONL
}

// Writer is an outcome sink that must be closed to flush buffered output.
type Writer interface {
	Put(ctx context.Context, o *model.PipelineOutcome) error
	Close() error
}

// New returns a writer for format over w. Closing it does not close w.
func New(w io.Writer, format Format, schema *model.ExtractionSchema) (Writer, error) {
	switch format {
	case FormatJSONL:
		return NewJSONL(w, schema), nil
	case FormatCSV:
		return NewCSV(w, schema), nil
	}
	return nil, eris.Errorf("export: unknown format %q", format)
}

// Create opens path for writing and returns a writer that closes the file
// on Close.
func Create(path string, format Format, schema *model.ExtractionSchema) (Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: create %s", path)
	}
	w, err := New(f, format, schema)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	return &fileWriter{Writer: w, f: f}, nil
}

type fileWriter struct {
	Writer
	f *os.File
}

func (w *fileWriter) Close() error {
	if err := w.Writer.Close(); err != nil {
		w.f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(w.f.Close(), "export: close file")
}

// WriteAll puts every outcome into w and closes it.
func WriteAll(ctx context.Context, w Writer, outcomes []model.PipelineOutcome) error {
	for i := range outcomes {
		if err := w.Put(ctx, &outcomes[i]); err != nil {
			w.Close() //nolint:errcheck
			return err
		}
	}
	return w.Close()
}

// Line is one exported outcome. Failed outcomes carry no values.
type Line struct {
	CandidateID    string                 `json:"candidate_id"`
	Name           string                 `json:"name,omitempty"`
	Office         string                 `json:"office,omitempty"`
	Year           int                    `json:"year,omitempty"`
	Jurisdiction   string                 `json:"jurisdiction,omitempty"`
	Values         map[string]model.Value `json:"values,omitempty"`
	SourceURL      string                 `json:"source_url,omitempty"`
	SourceRank     int                    `json:"source_rank,omitempty"`
	FailureStage   model.Stage            `json:"failure_stage,omitempty"`
	FailureKind    model.FailureKind      `json:"failure_kind,omitempty"`
	FailureMessage string                 `json:"failure_message,omitempty"`
	Attempts       int                    `json:"attempts"`
	Cost           float64                `json:"cost,omitempty"`
}

// NewLine flattens an outcome.
func NewLine(o *model.PipelineOutcome) Line {
	l := Line{
		CandidateID:  o.Candidate.ID,
		Name:         o.Candidate.Name,
		Office:       o.Candidate.Office,
		Year:         o.Candidate.Year,
		Jurisdiction: o.Candidate.Jurisdiction,
		Attempts:     len(o.Attempts),
	}
	if r := o.Record; r != nil {
		l.Values = r.Values
		l.SourceURL = r.SourceURL
		l.SourceRank = r.SourceRank
		l.Cost = r.Usage.Cost
	}
	if f := o.Failure; f != nil {
		l.SourceURL = f.URL
		l.SourceRank = f.Rank
		l.FailureStage = f.Stage
		l.FailureKind = f.Kind
		l.FailureMessage = f.Message
	}
	return l
}

// JSONLWriter writes one JSON object per outcome.
type JSONLWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONL returns a JSONL writer. Values are keyed by field key.
func NewJSONL(w io.Writer, _ *model.ExtractionSchema) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

func (w *JSONLWriter) Put(_ context.Context, o *model.PipelineOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return eris.Wrapf(w.enc.Encode(NewLine(o)), "export: write jsonl line for %s", o.Candidate.ID)
}

func (w *JSONLWriter) Close() error { return nil }

// CSVWriter writes one row per outcome: candidate identity, the schema
// fields in order, then provenance and failure columns. Rows are flushed as
// they are written.
type CSVWriter struct {
	mu     sync.Mutex
	cw     *csv.Writer
	keys   []string
	header bool
}

// NewCSV returns a CSV writer for schema.
func NewCSV(w io.Writer, schema *model.ExtractionSchema) *CSVWriter {
	return &CSVWriter{cw: csv.NewWriter(w), keys: schema.Keys()}
}

// Header returns the column names for the schema.
func (w *CSVWriter) Header() []string {
	h := []string{"candidate_id", "name", "office", "year", "jurisdiction"}
	h = append(h, w.keys...)
	return append(h, "source_url", "source_rank", "failure_stage", "failure_kind")
}

func (w *CSVWriter) Put(_ context.Context, o *model.PipelineOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.header {
		if err := w.cw.Write(w.Header()); err != nil {
			return eris.Wrap(err, "export: write csv header")
		}
		w.header = true
	}

	l := NewLine(o)
	row := []string{l.CandidateID, l.Name, l.Office, itoa(l.Year), l.Jurisdiction}
	for _, k := range w.keys {
		v, ok := l.Values[k]
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, v.String())
	}
	row = append(row, l.SourceURL, itoa(l.SourceRank), string(l.FailureStage), string(l.FailureKind))

	if err := w.cw.Write(row); err != nil {
		return eris.Wrapf(err, "export: write csv row for %s", o.Candidate.ID)
	}
	w.cw.Flush()
	return eris.Wrap(w.cw.Error(), "export: flush csv")
}

// Close writes the header if no rows were written and flushes.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.header {
		if err := w.cw.Write(w.Header()); err != nil {
			return eris.Wrap(err, "export: write csv header")
		}
		w.header = true
	}
	w.cw.Flush()
	return eris.Wrap(w.cw.Error(), "export: flush csv")
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
