// internal/services/numbering_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatLicenseNumber(t *testing.T) {
	assert.Equal(t, "LIC-2025-000042", formatLicenseNumber(2025, 42))
	assert.Equal(t, "LIC-2025-123456", formatLicenseNumber(2025, 123456))
}

func TestIsCanonicalNumber(t *testing.T) {
	assert.True(t, isCanonicalNumber("LIC-2025-000001"))
	assert.False(t, isCanonicalNumber("CL-2025-000001"))
	assert.False(t, isCanonicalNumber("LIC-17"))
	assert.False(t, isCanonicalNumber("lic-2025-000001"))
	assert.False(t, isCanonicalNumber("LIC-2025-1"))
}

func TestCanonicalizeLegacy(t *testing.T) {
	issued := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		number string
		issued *time.Time
		want   string
		ok     bool
	}{
		{"cl prefix", "CL-2020-000123", nil, "LIC-2020-000123", true},
		{"cl prefix lowercase", "cl-2020-000123", nil, "LIC-2020-000123", true},
		{"bare sequence with issue date", "LIC-17", &issued, "LIC-2019-000017", true},
		{"already canonical", "LIC-2025-000001", nil, "", false},
		{"unrecognized", "ABC-123", nil, "", false},
		{"empty", "", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := canonicalizeLegacy(tt.number, tt.issued)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeLegacyBareWithoutIssueDate(t *testing.T) {
	got, ok := canonicalizeLegacy("LIC-5", nil)
	assert.True(t, ok)
	assert.Equal(t, formatLicenseNumber(time.Now().UTC().Year(), 5), got)
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, "LIC-2025-000001", normalizeNumber("  lic–2025—000001 "))
	assert.Equal(t, "LIC-2025-000001", normalizeNumber("LIC - 2025 - 000001"))
	assert.Equal(t, "CL-2020-000123", normalizeNumber("cl‑ 2020-000123"))
}

func TestCLToCanonical(t *testing.T) {
	got, ok := clToCanonical("CL-2021-000007")
	assert.True(t, ok)
	assert.Equal(t, "LIC-2021-000007", got)

	_, ok = clToCanonical("LIC-2021-000007")
	assert.False(t, ok)
}

func TestParseRenewalYears(t *testing.T) {
	assert.Equal(t, 1, parseRenewalYears(nil))
	assert.Equal(t, 2, parseRenewalYears(2))
	assert.Equal(t, 3, parseRenewalYears(3.0))
	assert.Equal(t, 2, parseRenewalYears("2 years"))
	assert.Equal(t, 5, parseRenewalYears("5"))
	assert.Equal(t, 1, parseRenewalYears("soon"))
	assert.Equal(t, 1, parseRenewalYears(-4))
	assert.Equal(t, 1, parseRenewalYears(0))
}
