package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string, nonUTF8 bool) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, NonUTF8: nonUTF8})
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestUnzip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"emd/emd.shp": "shp",
		"emd/emd.dbf": "dbf",
		"readme.txt":  "hi",
	}, false)

	dest := t.TempDir()
	paths, err := Unzip(zipPath, dest)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	shp, ok := FindExt(paths, ".SHP")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dest, "emd", "emd.shp"), shp)

	_, ok = FindExt(paths, ".prj")
	assert.False(t, ok)
}

func TestUnzip_CP949Names(t *testing.T) {
	name := string(toCP949(t, "읍면동.shp"))
	zipPath := createTestZIP(t, map[string]string{name: "x"}, true)

	paths, err := Unzip(zipPath, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "읍면동.shp", filepath.Base(paths[0]))
}

func TestUnzip_RejectsEscape(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"../evil.txt": "x"}, false)
	_, err := Unzip(zipPath, t.TempDir())
	assert.Error(t, err)
}

func TestUnzip_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.zip")
	writeTestFile(t, p, "nope")
	_, err := Unzip(p, t.TempDir())
	assert.ErrorContains(t, err, "zip: open archive")
}
