// Package roster loads candidates from CSV rosters. Name rosters carry
// first/middle/last/suffix parts, a minimum election year and a state
// abbreviation; document rosters carry inline case text instead.
package roster

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/bioextract/internal/model"
)

// Options select which roster rows become candidates.
type Options struct {
	// Limit caps the number of candidates; zero keeps all.
	Limit int
	// Random shuffles before applying Limit, seeded by Seed.
	Random bool
	Seed   uint64
}

// Stats describes what a load kept and dropped.
type Stats struct {
	Rows       int
	Invalid    int
	Duplicates int
}

const (
	colID       = "id"
	colFirst    = "first"
	colMiddle   = "middle"
	colLast     = "last"
	colSuffix   = "suffix"
	colName     = "name"
	colYear     = "year"
	colState    = "state"
	colOffice   = "office"
	colDocument = "document"
)

// headerAliases maps accepted header names onto columns.
var headerAliases = map[string]string{
	"candid": colID, "id": colID, "candidate_id": colID, "case_id": colID,
	"first": colFirst, "first_name": colFirst,
	"middle": colMiddle, "middle_name": colMiddle,
	"last": colLast, "last_name": colLast,
	"suffix": colSuffix,
	"name": colName, "full_name": colName,
	"min_year": colYear, "year": colYear,
	"sab": colState, "state": colState,
	"office": colOffice,
	"textdata": colDocument, "document": colDocument, "text": colDocument,
}

var validate = validator.New()

// LoadFile reads a roster from disk.
func LoadFile(ctx context.Context, path string, opts Options) ([]model.Candidate, Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "roster: read file")
	}
	return Load(ctx, data, opts)
}

// Load parses roster bytes. Input that is not valid UTF-8 is decoded as
// Latin-1. Rows that fail validation are skipped and counted.
func Load(ctx context.Context, data []byte, opts Options) ([]model.Candidate, Stats, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, Stats{}, eris.Wrap(err, "roster: decode latin-1")
		}
		data = decoded
	}

	rowCh, errCh := streamRows(ctx, bytes.NewReader(data))

	var (
		stats  Stats
		cols   map[string]int
		out    []model.Candidate
		seen   = make(map[string]bool)
		header = true
	)
	for r := range rowCh {
		if header {
			header = false
			var err error
			if cols, err = mapHeader(r.fields); err != nil {
				drain(rowCh)
				return nil, stats, err
			}
			continue
		}
		stats.Rows++

		c, err := candidateFromRow(cols, r)
		if err != nil {
			stats.Invalid++
			zap.L().Warn("roster: skipping row", zap.Int("line", r.line), zap.Error(err))
			continue
		}
		// Named rows without an id dedupe on name, office, state and year.
		key := c.Key()
		if c.ID == "" {
			c.ID = "row-" + strconv.Itoa(r.line)
			if c.Name == "" {
				key = c.ID
			}
		}
		if seen[key] {
			stats.Duplicates++
			zap.L().Debug("roster: duplicate candidate", zap.Int("line", r.line), zap.String("key", key))
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	if err := <-errCh; err != nil {
		return nil, stats, err
	}
	if cols == nil {
		return nil, stats, eris.New("roster: empty file")
	}

	return Select(out, opts), stats, nil
}

// Select applies the shuffle and limit options.
func Select(cands []model.Candidate, opts Options) []model.Candidate {
	if opts.Random {
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
		rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	}
	if opts.Limit > 0 && len(cands) > opts.Limit {
		cands = cands[:opts.Limit]
	}
	return cands
}

func drain(ch <-chan row) {
	for range ch {
	}
}

func mapHeader(fields []string) (map[string]int, error) {
	cols := make(map[string]int, len(fields))
	for i, f := range fields {
		name, ok := headerAliases[strings.ToLower(strings.TrimSpace(f))]
		if !ok {
			continue
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	_, hasLast := cols[colLast]
	_, hasName := cols[colName]
	_, hasDoc := cols[colDocument]
	if !hasLast && !hasName && !hasDoc {
		return nil, eris.Errorf("roster: header %q has no name or document column", strings.Join(fields, ","))
	}
	return cols, nil
}

// cell returns a trimmed value, treating dataframe placeholders as empty.
func cell(cols map[string]int, fields []string, col string) string {
	i, ok := cols[col]
	if !ok || i >= len(fields) {
		return ""
	}
	v := strings.TrimSpace(fields[i])
	switch strings.ToLower(v) {
	case "nan", "null", "none", "na":
		return ""
	}
	return v
}

func candidateFromRow(cols map[string]int, r row) (model.Candidate, error) {
	get := func(col string) string { return cell(cols, r.fields, col) }

	c := model.Candidate{
		ID:         get(colID),
		FirstName:  get(colFirst),
		MiddleName: get(colMiddle),
		LastName:   get(colLast),
		Suffix:     get(colSuffix),
		Office:     get(colOffice),
		Document:   get(colDocument),
	}
	c.Jurisdiction, c.JurisdictionCode = StateName(get(colState))

	c.Name = strings.Join(strings.Fields(get(colName)), " ")
	if c.Name == "" {
		var parts []string
		for _, p := range []string{c.FirstName, c.MiddleName, c.LastName, c.Suffix} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		c.Name = strings.Join(parts, " ")
	}

	if y := get(colYear); y != "" {
		f, err := strconv.ParseFloat(y, 64)
		if err != nil {
			return model.Candidate{}, eris.Errorf("roster: year %q is not a number", y)
		}
		c.Year = int(f)
	}

	if strings.Contains(c.ID, ".") {
		// Numeric ids exported as floats ("126073.0").
		if f, err := strconv.ParseFloat(c.ID, 64); err == nil && f == float64(int64(f)) {
			c.ID = strconv.FormatInt(int64(f), 10)
		}
	}

	if err := validate.Struct(c); err != nil {
		return model.Candidate{}, eris.Wrap(err, "roster: invalid row")
	}
	return c, nil
}
