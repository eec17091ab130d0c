package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/yys/safewalk-cli/internal/fetcher"
	"github.com/yys/safewalk-cli/internal/region"
	"github.com/yys/safewalk-cli/internal/resilience"
)

// sourceOpts selects where an analysis reads its regions from.
type sourceOpts struct {
	Kind     string // file | api | db
	File     string
	Encoding string
	Label    string
	Sidos    []string
	Bounds   string
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "region source: file, api or db (default file when --file is set, else api)")
	cmd.Flags().String("file", "", "CSV or JSON file of regions")
	cmd.Flags().String("encoding", "auto", "file encoding: auto, utf-8, utf-8-sig, cp949")
	cmd.Flags().String("name", "", "region set name used in reports")
	cmd.Flags().StringSlice("sido", nil, "4-digit sido code, repeatable (api and db sources)")
	cmd.Flags().String("bounds", "", "swLat,swLng,neLat,neLng viewport (api and db sources, default all of Korea)")
}

func readSourceOpts(cmd *cobra.Command) sourceOpts {
	var o sourceOpts
	o.Kind, _ = cmd.Flags().GetString("source")
	o.File, _ = cmd.Flags().GetString("file")
	o.Encoding, _ = cmd.Flags().GetString("encoding")
	o.Label, _ = cmd.Flags().GetString("name")
	o.Sidos, _ = cmd.Flags().GetStringSlice("sido")
	o.Bounds, _ = cmd.Flags().GetString("bounds")
	if o.Kind == "" {
		o.Kind = "api"
		if o.File != "" {
			o.Kind = "file"
		}
	}
	return o
}

// parseBounds reads "swLat,swLng,neLat,neLng".
func parseBounds(s string) (region.Bounds, error) {
	if strings.TrimSpace(s) == "" {
		return region.KoreaBounds, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return region.Bounds{}, eris.Errorf("bounds: want swLat,swLng,neLat,neLng, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return region.Bounds{}, eris.Wrapf(err, "bounds: parse %q", p)
		}
		v[i] = f
	}
	b := region.Bounds{SWLat: v[0], SWLng: v[1], NELat: v[2], NELng: v[3]}
	return b, b.Validate()
}

// lookupSources turns sido codes, or else the bounds, into one source each.
func lookupSources(l region.Lookup, o sourceOpts) ([]region.Source, error) {
	if len(o.Sidos) == 0 {
		b, err := parseBounds(o.Bounds)
		if err != nil {
			return nil, err
		}
		q := region.Query{Bounds: b, Label: o.Label}
		return []region.Source{region.LookupSource{Lookup: l, Query: q}}, nil
	}

	srcs := make([]region.Source, 0, len(o.Sidos))
	for _, code := range o.Sidos {
		if err := region.ValidateSidoCode(code); err != nil {
			return nil, err
		}
		q := region.Query{SidoCode: code}
		if len(o.Sidos) == 1 {
			q.Label = o.Label
		}
		srcs = append(srcs, region.LookupSource{Lookup: l, Query: q})
	}
	return srcs, nil
}

// buildSources opens the selected source. The returned cleanup is never nil.
func buildSources(ctx context.Context, o sourceOpts) ([]region.Source, func(), error) {
	noop := func() {}
	switch o.Kind {
	case "file":
		if o.File == "" {
			return nil, noop, eris.New("source: --file is required for the file source")
		}
		enc, err := fetcher.ParseEncoding(o.Encoding)
		if err != nil {
			return nil, noop, err
		}
		return []region.Source{region.FileSource{Path: o.File, Label: o.Label, Encoding: enc}}, noop, nil

	case "api":
		opts := []region.APIOption{
			region.WithPolicy(resilience.PolicyFromConfig(cfg.Resilience).WithLogging("region-api")),
			region.WithBreaker(resilience.BreakerFromConfig("region-api", cfg.Resilience)),
		}
		if cfg.API.TimeoutSecs > 0 {
			opts = append(opts, region.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.API.TimeoutSecs) * time.Second}))
		}
		srcs, err := lookupSources(region.NewAPIClient(cfg.API.BaseURL, opts...), o)
		return srcs, noop, err

	case "db":
		pool, err := dataPool(ctx)
		if err != nil {
			return nil, noop, err
		}
		srcs, err := lookupSources(region.NewStore(pool), o)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		return srcs, pool.Close, nil
	}
	return nil, noop, eris.Errorf("source: unknown source %q (valid: file, api, db)", o.Kind)
}
