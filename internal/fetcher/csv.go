package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter  rune // default ','
	Encoding   Encoding
	SkipRows   int // lines dropped before the first row
	LazyQuotes bool
	TrimSpace  bool
}

// Record is a data row keyed by header name.
type Record map[string]string

// Get returns the trimmed value of col, or "" when absent.
func (r Record) Get(col string) string {
	return strings.TrimSpace(r[col])
}

// StreamCSV decodes r and sends every row, header included, to the row
// channel. Both channels close when reading stops; at most one error is sent.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(Decode(r, opts.Encoding))
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		for line := 0; ; line++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if line < opts.SkipRows {
				continue
			}
			if opts.TrimSpace {
				for i := range record {
					record[i] = strings.TrimSpace(record[i])
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// StreamCSVRecords is StreamCSV with the first row used as the header.
func StreamCSVRecords(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Record, <-chan error) {
	rows, errs := StreamCSV(ctx, r, opts)
	return keyed(ctx, rows, errs)
}

// keyed turns a raw row stream into Records. Blank rows are dropped and short
// rows leave the missing columns empty.
func keyed(ctx context.Context, rows <-chan []string, errs <-chan error) (<-chan Record, <-chan error) {
	out := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var header []string
		for row := range rows {
			if header == nil {
				header = make([]string, len(row))
				for i, h := range row {
					header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
				}
				continue
			}
			if blank(row) {
				continue
			}

			rec := make(Record, len(header))
			for i, h := range header {
				if h == "" {
					continue
				}
				if i < len(row) {
					rec[h] = row[i]
				} else {
					rec[h] = ""
				}
			}

			select {
			case out <- rec:
			case <-ctx.Done():
				for range rows {
				}
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
		if err := <-errs; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Header reads just the first row of a CSV source.
func Header(r io.Reader, opts CSVOptions) ([]string, error) {
	reader := csv.NewReader(Decode(r, opts.Encoding))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1
	row, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i := range row {
		row[i] = strings.TrimSpace(strings.TrimPrefix(row[i], "\ufeff"))
	}
	return row, nil
}
