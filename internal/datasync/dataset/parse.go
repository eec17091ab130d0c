package dataset

import (
	"encoding/json"
	"strconv"
	"strings"
)

// cleanNumber strips thousands separators and blanks out the markers the
// Korean open-data exports use for missing values.
func cleanNumber(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	switch s {
	case "-", "NaN", "nan", "null", "NULL", "*":
		return ""
	}
	return s
}

// parseInt64 parses an integer, accepting float spellings such as "12.0".
func parseInt64(s string) (int64, bool) {
	s = cleanNumber(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// parseFloat parses a float.
func parseFloat(s string) (float64, bool) {
	s = cleanNumber(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseYear takes the leading four digits, so "2023", "2023.0" and
// "2023년" all give 2023.
func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0, false
	}
	v, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, false
	}
	return v, true
}

// validJSON returns s when it holds a JSON document, otherwise nil.
func validJSON(s string) any {
	s = strings.TrimSpace(s)
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return s
}

// nullable maps "" to nil.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
