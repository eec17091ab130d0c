package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Unzip extracts the files of a ZIP archive into destDir and returns their
// paths. Entry names flagged as non-UTF-8 are decoded as CP949.
func Unzip(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var out []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p, err := extract(f, destDir)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FindExt returns the first path with extension ext (case-insensitive).
func FindExt(paths []string, ext string) (string, bool) {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ext) {
			return p, true
		}
	}
	return "", false
}

func entryName(f *zip.File) string {
	if f.NonUTF8 {
		return DecodeString(f.Name, EncodingCP949)
	}
	return f.Name
}

func extract(f *zip.File, destDir string) (string, error) {
	name := entryName(f)
	dest := filepath.Join(destDir, name)
	if !strings.HasPrefix(filepath.Clean(dest), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: entry %q escapes destination", name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open %s", name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrapf(err, "zip: write %s", name)
	}
	return dest, nil
}
