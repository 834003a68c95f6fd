package registry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"mfetl/internal/provider"
)

// ErrEmptyRegistry is returned when a registry file holds no scheme lines.
var ErrEmptyRegistry = errors.New("registry file contains no schemes")

const navAllFields = 6

// ParseNAVAll reads AMFI's NAVAll.txt layout:
//
//	Scheme Code;ISIN Div Payout/ ISIN Growth;ISIN Div Reinvestment;Scheme Name;Net Asset Value;Date
//
// Headers, fund-house and category headings and blank lines are skipped.
// Lines are kept in file order and the first occurrence of a code wins.
func ParseNAVAll(r io.Reader, fetchedAt time.Time) (*Snapshot, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var quotes []NAVQuote
	for sc.Scan() {
		q, ok := parseNAVLine(sc.Text())
		if ok {
			quotes = append(quotes, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	if len(quotes) == 0 {
		return nil, ErrEmptyRegistry
	}
	return NewSnapshot(quotes, fetchedAt), nil
}

func parseNAVLine(line string) (NAVQuote, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	if line == "" {
		return NAVQuote{}, false
	}
	fields := strings.Split(line, ";")
	if len(fields) != navAllFields {
		return NAVQuote{}, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	code := fields[0]
	if !isDigits(code) || fields[3] == "" {
		return NAVQuote{}, false
	}
	return NAVQuote{
		SchemeCode:   code,
		ISINGrowth:   cleanISIN(fields[1]),
		ISINReinvest: cleanISIN(fields[2]),
		SchemeName:   fields[3],
		NAV:          provider.FloatPtr(fields[4]),
		Date:         fields[5],
	}, true
}

func cleanISIN(s string) string {
	if s == "-" || strings.EqualFold(s, "N.A.") {
		return ""
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
