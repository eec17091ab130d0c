package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yys/safewalk-cli/internal/config"
	"github.com/yys/safewalk-cli/internal/region"
)

func TestParseBounds(t *testing.T) {
	b, err := parseBounds("")
	require.NoError(t, err)
	assert.Equal(t, region.KoreaBounds, b)

	b, err = parseBounds("35.7, 129.1,35.9,129.4")
	require.NoError(t, err)
	assert.Equal(t, region.Bounds{SWLat: 35.7, SWLng: 129.1, NELat: 35.9, NELng: 129.4}, b)

	_, err = parseBounds("35.7,129.1,35.9")
	assert.ErrorContains(t, err, "want swLat,swLng,neLat,neLng")

	_, err = parseBounds("35.7,abc,35.9,129.4")
	assert.ErrorContains(t, err, `bounds: parse "abc"`)

	_, err = parseBounds("36,129,35,130")
	assert.Error(t, err)
}

func TestLookupSources_Bounds(t *testing.T) {
	lookup := &fakeLookup{recs: skewedRecords()}
	srcs, err := lookupSources(lookup, sourceOpts{})
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, region.KoreaName, srcs[0].Name())

	recs, err := srcs[0].Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, len(skewedCounts))
	assert.Equal(t, region.KoreaBounds, lookup.bounds)
}

func TestLookupSources_Sidos(t *testing.T) {
	srcs, err := lookupSources(&fakeLookup{}, sourceOpts{Sidos: []string{"4713", "1168"}, Label: "ignored"})
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "시도코드_4713", srcs[0].Name())
	assert.Equal(t, "시도코드_1168", srcs[1].Name())

	srcs, err = lookupSources(&fakeLookup{}, sourceOpts{Sidos: []string{"4713"}, Label: "경주시"})
	require.NoError(t, err)
	assert.Equal(t, "경주시", srcs[0].Name())

	_, err = lookupSources(&fakeLookup{}, sourceOpts{Sidos: []string{"47"}})
	assert.Error(t, err)
}

func TestBuildSources_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gyeongju.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,totalAccident\n황오동,58\n성건동,53\n"), 0o644))

	srcs, cleanup, err := buildSources(context.Background(), sourceOpts{Kind: "file", File: path, Encoding: "auto"})
	require.NoError(t, err)
	defer cleanup()
	require.Len(t, srcs, 1)
	assert.Equal(t, "gyeongju", srcs[0].Name())

	recs, err := srcs[0].Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 58, recs[0].AccidentCount)
}

func TestBuildSources_Errors(t *testing.T) {
	_, cleanup, err := buildSources(context.Background(), sourceOpts{Kind: "file"})
	assert.ErrorContains(t, err, "--file is required")
	assert.NotNil(t, cleanup)

	_, _, err = buildSources(context.Background(), sourceOpts{Kind: "file", File: "x.csv", Encoding: "latin1"})
	assert.ErrorContains(t, err, "unsupported encoding")

	_, _, err = buildSources(context.Background(), sourceOpts{Kind: "ftp"})
	assert.ErrorContains(t, err, `unknown source "ftp"`)

	withConfig(t, &config.Config{})
	_, _, err = buildSources(context.Background(), sourceOpts{Kind: "db"})
	assert.ErrorContains(t, err, "no database_url configured")
}

func TestBuildSources_API(t *testing.T) {
	withConfig(t, &config.Config{API: config.APIConfig{BaseURL: "http://127.0.0.1:1/api/v1", TimeoutSecs: 1}})
	srcs, cleanup, err := buildSources(context.Background(), sourceOpts{Kind: "api", Sidos: []string{"4713"}})
	require.NoError(t, err)
	defer cleanup()
	require.Len(t, srcs, 1)
	assert.Equal(t, "시도코드_4713", srcs[0].Name())
}
