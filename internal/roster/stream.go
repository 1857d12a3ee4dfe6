package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// row is one parsed CSV record with its 1-based line number.
type row struct {
	line   int
	fields []string
}

// streamRows parses CSV records on a goroutine. Both channels are closed
// when the input ends, fails, or ctx is done.
func streamRows(ctx context.Context, r io.Reader) (<-chan row, <-chan error) {
	rowCh := make(chan row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "roster: context cancelled")
				return
			}

			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "roster: read csv")
				return
			}
			line, _ := reader.FieldPos(0)
			for i, f := range record {
				record[i] = strings.TrimSpace(f)
			}

			select {
			case rowCh <- row{line: line, fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "roster: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
