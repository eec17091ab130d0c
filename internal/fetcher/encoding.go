package fetcher

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names a text encoding of a source file.
type Encoding string

const (
	EncodingAuto    Encoding = "auto"
	EncodingUTF8    Encoding = "utf-8"
	EncodingUTF8BOM Encoding = "utf-8-sig"
	EncodingCP949   Encoding = "cp949"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const sniffSize = 64 << 10

// ParseEncoding accepts the usual spellings of the supported encodings.
// An empty string means EncodingAuto.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "utf-8-sig", "utf8-sig", "utf-8-bom":
		return EncodingUTF8BOM, nil
	case "cp949", "euc-kr", "euckr", "ms949", "uhc":
		return EncodingCP949, nil
	}
	return "", eris.Errorf("fetcher: unsupported encoding %q", s)
}

// Decode returns a UTF-8 reader over r. EncodingAuto drops a UTF-8 BOM and
// falls back to CP949 when the leading bytes are not valid UTF-8.
func Decode(r io.Reader, enc Encoding) io.Reader {
	switch enc {
	case EncodingUTF8:
		return r
	case EncodingUTF8BOM:
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	case EncodingCP949:
		return transform.NewReader(r, korean.EUCKR.NewDecoder())
	}

	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if bytes.HasPrefix(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
		return br
	}
	if looksUTF8(head, err == nil) {
		return br
	}
	return transform.NewReader(br, korean.EUCKR.NewDecoder())
}

// looksUTF8 validates b, ignoring a rune cut off at the end of a partial
// buffer.
func looksUTF8(b []byte, truncated bool) bool {
	if truncated {
		for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
			if utf8.RuneStart(b[i]) {
				if !utf8.FullRune(b[i:]) {
					b = b[:i]
				}
				break
			}
		}
	}
	return utf8.Valid(b)
}

// DecodeString converts s from enc to UTF-8. Invalid input is returned
// unchanged.
func DecodeString(s string, enc Encoding) string {
	switch enc {
	case EncodingCP949:
		out, _, err := transform.String(korean.EUCKR.NewDecoder(), s)
		if err != nil {
			return s
		}
		return out
	case EncodingAuto:
		if utf8.ValidString(s) {
			return strings.TrimPrefix(s, "\ufeff")
		}
		return DecodeString(s, EncodingCP949)
	}
	return strings.TrimPrefix(s, "\ufeff")
}
