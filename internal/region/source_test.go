package region

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	bounds []Bounds
	sidos  []string
	recs   []Record
	err    error
}

func (f *fakeLookup) InBounds(_ context.Context, b Bounds) ([]Record, error) {
	f.bounds = append(f.bounds, b)
	return f.recs, f.err
}

func (f *fakeLookup) InSido(_ context.Context, code string) ([]Record, error) {
	f.sidos = append(f.sidos, code)
	return f.recs, f.err
}

func TestBounds_Validate(t *testing.T) {
	assert.NoError(t, KoreaBounds.Validate())
	assert.Error(t, Bounds{SWLat: 38, SWLng: 124, NELat: 33, NELng: 132}.Validate())
	assert.Error(t, Bounds{SWLat: 33, SWLng: 132, NELat: 38, NELng: 132}.Validate())
	assert.Error(t, Bounds{SWLat: -100, SWLng: 0, NELat: 10, NELng: 10}.Validate())
}

func TestValidateSidoCode(t *testing.T) {
	assert.NoError(t, ValidateSidoCode("4713"))
	for _, bad := range []string{"", "471", "47130", "47a3"} {
		assert.Error(t, ValidateSidoCode(bad), bad)
	}
}

func TestQuery_Name(t *testing.T) {
	assert.Equal(t, "경주시", Query{SidoCode: "4713", Label: "경주시"}.Name())
	assert.Equal(t, "시도코드_4713", Query{SidoCode: "4713"}.Name())
	assert.Equal(t, KoreaName, Query{Bounds: KoreaBounds}.Name())
	assert.Equal(t, "사용자 지정 영역", Query{Bounds: Bounds{SWLat: 35, SWLng: 129, NELat: 36, NELng: 130}}.Name())
}

func TestLookupSource_Sido(t *testing.T) {
	lk := &fakeLookup{recs: []Record{
		{Name: "황오동", AccidentCount: 38, Code: "47130115"},
		{Name: "황오동", AccidentCount: 38, Code: "47130115"},
		{Name: "성건동", AccidentCount: 58, Code: "47130120"},
	}}
	src := LookupSource{Lookup: lk, Query: Query{SidoCode: "4713"}}

	recs, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, []string{"4713"}, lk.sidos)
	assert.Empty(t, lk.bounds)
}

func TestLookupSource_Bounds(t *testing.T) {
	lk := &fakeLookup{}
	src := LookupSource{Lookup: lk, Query: Query{Bounds: KoreaBounds}}

	_, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Bounds{KoreaBounds}, lk.bounds)
	assert.Equal(t, KoreaName, src.Name())
}

func TestLookupSource_Errors(t *testing.T) {
	lk := &fakeLookup{err: errors.New("down")}

	_, err := LookupSource{Lookup: lk, Query: Query{SidoCode: "47"}}.Load(context.Background())
	assert.ErrorContains(t, err, "4 digits")
	assert.Empty(t, lk.sidos)

	_, err = LookupSource{Lookup: lk, Query: Query{SidoCode: "4713"}}.Load(context.Background())
	assert.ErrorContains(t, err, "down")
}
