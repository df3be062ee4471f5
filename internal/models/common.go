// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB is the open attribute bag carried alongside typed fields on
// License and Application rows. Canonical keys (licenseNumber, issueDate,
// expiryDate) are kept in sync with the typed columns by model hooks.
type JSONB map[string]interface{}

// Value serializes to a string so the column holds TEXT-compatible JSON on
// every dialect; SQLite's json functions reject blobs.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported type for JSONB: %T", value)
	}
}

// GetString returns a trimmed string value for the first key that holds a
// non-empty string.
func (j JSONB) GetString(keys ...string) string {
	for _, key := range keys {
		if v, ok := j[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Enums

type LicenseType string

const (
	LicenseTypeContractor   LicenseType = "Contractor License"
	LicenseTypeProfessional LicenseType = "Professional License"
	LicenseTypeImportExport LicenseType = "Import/Export License"
)

func (t LicenseType) Valid() bool {
	switch t {
	case LicenseTypeContractor, LicenseTypeProfessional, LicenseTypeImportExport:
		return true
	}
	return false
}

type LicenseStatus string

const (
	LicenseStatusPending  LicenseStatus = "pending"
	LicenseStatusApproved LicenseStatus = "approved"
	LicenseStatusActive   LicenseStatus = "active"
	LicenseStatusRejected LicenseStatus = "rejected"
	LicenseStatusRevoked  LicenseStatus = "revoked"
	LicenseStatusExpired  LicenseStatus = "expired"
	LicenseStatusRenewed  LicenseStatus = "renewed"
)

type ApplicationStatus string

const (
	ApplicationStatusPending       ApplicationStatus = "pending"
	ApplicationStatusApproved      ApplicationStatus = "approved"
	ApplicationStatusRejected      ApplicationStatus = "rejected"
	ApplicationStatusInfoRequested ApplicationStatus = "info_requested"
	ApplicationStatusResubmitted   ApplicationStatus = "resubmitted"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type DocumentVerdict string

const (
	DocumentVerdictPending      DocumentVerdict = "pending"
	DocumentVerdictVerifiedTrue DocumentVerdict = "verified_true"
	DocumentVerdictVerifiedFake DocumentVerdict = "verified_fake"
	DocumentVerdictInconclusive DocumentVerdict = "inconclusive"
	DocumentVerdictError        DocumentVerdict = "error"
)
