package dataset

import (
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/fetcher"
)

// recordStream is an open tabular source. close must be called once the
// record channel is drained.
type recordStream struct {
	records <-chan fetcher.Record
	errs    <-chan error
	close   func()
}

func formatOf(src, format string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(path.Ext(src)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	}
	return "csv"
}

// openRecords streams the rows of a CSV or XLSX source keyed by header.
// Workbooks need random access, so remote ones are copied into tempDir.
func openRecords(ctx context.Context, f fetcher.Fetcher, src, tempDir string, m *Mapping) (*recordStream, error) {
	if formatOf(src, m.Format) == "xlsx" {
		p, err := fetcher.LocalCopy(ctx, f, src, tempDir)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: fetch %s", m.Name, src)
		}
		recs, errs := fetcher.StreamXLSXRecords(ctx, p, fetcher.XLSXOptions{SheetName: m.Sheet})
		return &recordStream{records: recs, errs: errs, close: func() {}}, nil
	}

	enc, err := fetcher.ParseEncoding(m.Encoding)
	if err != nil {
		return nil, err
	}
	rc, err := f.Download(ctx, src)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: open %s", m.Name, src)
	}
	recs, errs := fetcher.StreamCSVRecords(ctx, rc, fetcher.CSVOptions{Encoding: enc, LazyQuotes: true})
	return &recordStream{records: recs, errs: errs, close: func() { _ = rc.Close() }}, nil
}

// readRows converts every record of s with m. It returns the rows, how many
// records were read and how many were dropped.
func readRows(ctx context.Context, s *recordStream, m *Mapping, lookups map[string]map[string]string, set map[string]any) ([][]any, int, int, error) {
	defer s.close()

	var (
		rows          [][]any
		read, dropped int
	)
	for rec := range s.records {
		read++
		row, ok := m.Row(rec, lookups, set)
		if !ok {
			dropped++
			continue
		}
		rows = append(rows, row)
	}
	if err := <-s.errs; err != nil {
		return nil, read, dropped, eris.Wrapf(err, "%s: read source", m.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, read, dropped, err
	}
	return rows, read, dropped, nil
}
