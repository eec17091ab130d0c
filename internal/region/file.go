package region

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/fetcher"
)

// FileSource reads records from a CSV or JSON file. JSON may be an array of
// records or an object holding them under "regions".
type FileSource struct {
	Path     string
	Label    string
	Encoding fetcher.Encoding
	Fetcher  fetcher.Fetcher // defaults to the local filesystem
}

// Name returns Label or the file name without extension.
func (s FileSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load implements Source.
func (s FileSource) Load(ctx context.Context) ([]Record, error) {
	f := s.Fetcher
	if f == nil {
		f = fetcher.NewFileFetcher("")
	}
	rc, err := f.Download(ctx, s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open %s", s.Path)
	}
	defer rc.Close() //nolint:errcheck

	r := fetcher.Decode(rc, s.Encoding)
	var recs []Record
	if strings.EqualFold(filepath.Ext(s.Path), ".csv") {
		recs, err = readCSV(r)
	} else {
		recs, err = readJSON(ctx, r)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "region: read %s", s.Path)
	}
	return recs, nil
}

type csvRow struct {
	Name      string   `csv:"name"`
	Accidents float64  `csv:"totalAccident"`
	Code      string   `csv:"EMD_CD,omitempty"`
	Latitude  *float64 `csv:"latitude,omitempty"`
	Longitude *float64 `csv:"longitude,omitempty"`
}

func readCSV(r io.Reader) ([]Record, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "region: read csv header")
	}
	header := dec.Header()
	if !slices.Contains(header, keyAccidents) {
		return nil, eris.Errorf("region: csv has no %s column", keyAccidents)
	}

	var out []Record
	for {
		var row csvRow
		if err := dec.Decode(&row); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "region: csv row %d", len(out)+1)
		}
		if row.Accidents != math.Trunc(row.Accidents) {
			return nil, eris.Errorf("region: csv row %d: accident count %v is not a whole number", len(out)+1, row.Accidents)
		}

		rec := Record{
			Name:          row.Name,
			AccidentCount: int(row.Accidents),
			Code:          row.Code,
			Latitude:      row.Latitude,
			Longitude:     row.Longitude,
		}
		for _, i := range dec.Unused() {
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[header[i]] = csvValue(dec.Record()[i])
		}
		out = append(out, rec)
	}
	return out, nil
}

func csvValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func readJSON(ctx context.Context, r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var (
		ch   <-chan Record
		errc <-chan error
	)
	if first == '[' {
		ch, errc = fetcher.DecodeJSONArray[Record](ctx, br)
	} else {
		ch, errc = fetcher.DecodeJSONField[Record](ctx, br, "regions")
	}

	var out []Record
	for rec := range ch {
		out = append(out, rec)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return out, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.Discard(1)
			continue
		}
		return b[0], nil
	}
}
