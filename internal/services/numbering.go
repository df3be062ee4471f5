// internal/services/numbering.go
package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// License numbers follow LIC-YYYY-NNNNNN. Two legacy shapes survive in
// historical data and on printed certificates: CL-YYYY-NNNNNN (old prefix)
// and LIC-N (unpadded sequence, no year). The canonical shape is a durable
// external contract; legacy shapes are migrated toward it.
var (
	canonicalNumberPattern = regexp.MustCompile(`^LIC-\d{4}-\d{6}$`)
	clNumberPattern        = regexp.MustCompile(`(?i)^CL-(\d{4})-(\d{6})$`)
	bareNumberPattern      = regexp.MustCompile(`(?i)^LIC-(\d+)$`)

	// Every Unicode dash variant seen in pasted verification queries.
	dashVariantPattern = regexp.MustCompile("[‐‑‒–—―−﹘﹣－]")

	leadingIntPattern = regexp.MustCompile(`(\d+)`)
)

func formatLicenseNumber(year, seq int) string {
	return fmt.Sprintf("LIC-%04d-%06d", year, seq)
}

func isCanonicalNumber(number string) bool {
	return canonicalNumberPattern.MatchString(number)
}

// canonicalizeLegacy rewrites a legacy license number to canonical form.
// CL-YYYY-NNNNNN keeps year and sequence verbatim; LIC-N pads the sequence
// and takes the year from issuedDate when known, else the current year.
// Returns false for anything already canonical or unrecognized.
func canonicalizeLegacy(number string, issuedDate *time.Time) (string, bool) {
	if isCanonicalNumber(number) {
		return "", false
	}

	if m := clNumberPattern.FindStringSubmatch(number); m != nil {
		return fmt.Sprintf("LIC-%s-%s", m[1], m[2]), true
	}

	if m := bareNumberPattern.FindStringSubmatch(number); m != nil {
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			return "", false
		}
		year := time.Now().UTC().Year()
		if issuedDate != nil {
			year = issuedDate.Year()
		}
		return formatLicenseNumber(year, seq), true
	}

	return "", false
}

// clToCanonical is the prefix-only rewrite used when searching: the query
// may carry the old CL- prefix while the stored number already migrated.
func clToCanonical(number string) (string, bool) {
	if m := clNumberPattern.FindStringSubmatch(number); m != nil {
		return fmt.Sprintf("LIC-%s-%s", m[1], m[2]), true
	}
	return "", false
}

func normalizeDashes(s string) string {
	return dashVariantPattern.ReplaceAllString(s, "-")
}

// normalizeNumber reduces a number to its comparison form: trimmed, dash
// variants unified, spaces removed, uppercased.
func normalizeNumber(s string) string {
	s = normalizeDashes(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ToUpper(s)
}

// parseRenewalYears pulls a year count out of the renewalPeriod attribute,
// which arrives as a number or as a string with a leading integer ("2 years").
// Defaults to 1 when absent or unparsable.
func parseRenewalYears(v interface{}) int {
	years := 1
	switch rp := v.(type) {
	case int:
		if rp > 0 {
			years = rp
		}
	case float64:
		if rp > 0 {
			years = int(rp)
		}
	case string:
		if m := leadingIntPattern.FindStringSubmatch(rp); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				years = n
			}
		}
	}
	if years < 1 {
		years = 1
	}
	return years
}
