package fetcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, v := range rowData {
				row.AddCell().SetString(v)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestStreamXLSXRecords(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"법정동": {
			{"코드", "시도", "시군구", "읍면동"},
			{"4713010100", "경상북도", "경주시", "동부동"},
			{"4713010200", "경상북도", "경주시", "서부동"},
		},
	})

	recCh, errCh := StreamXLSXRecords(context.Background(), path, XLSXOptions{SheetName: "법정동"})
	recs, err := collectRecords(t, recCh, errCh)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "4713010100", recs[0].Get("코드"))
	assert.Equal(t, "서부동", recs[1].Get("읍면동"))
}

func TestStreamXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"title"}, {"a", "b"}, {"1", "2"}},
	})
	rowCh, errCh := StreamXLSX(context.Background(), path, XLSXOptions{SkipRows: 1})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamXLSX_MissingSheet(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, errCh := StreamXLSX(context.Background(), path, XLSXOptions{SheetName: "nope"})
	assert.ErrorContains(t, <-errCh, `sheet "nope" not found`)

	_, errCh = StreamXLSX(context.Background(), path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, <-errCh, "out of range")
}

func TestStreamXLSX_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	writeTestFile(t, path, "not a workbook")
	_, errCh := StreamXLSX(context.Background(), path, XLSXOptions{})
	assert.ErrorContains(t, <-errCh, "xlsx: open")
}
