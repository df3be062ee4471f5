// internal/models/license.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// License is the issued credential. At most one License exists per
// (owner, license_type); renewals update the row in place to preserve that
// constraint. license_number and qr_code_data are unique when present but
// may be null transiently.
type License struct {
	BaseModel
	OwnerID       uuid.UUID     `json:"owner_id" gorm:"type:uuid;not null;uniqueIndex:idx_owner_license_type"`
	LicenseType   LicenseType   `json:"license_type" gorm:"type:varchar(50);not null;uniqueIndex:idx_owner_license_type"`
	LicenseNumber *string       `json:"license_number" gorm:"size:50;uniqueIndex"`
	IssuedByID    *uuid.UUID    `json:"issued_by" gorm:"type:uuid"`
	IssuedDate    *time.Time    `json:"issued_date" gorm:"type:date"`
	ExpiryDate    *time.Time    `json:"expiry_date" gorm:"type:date"`
	Data          JSONB         `json:"data" gorm:"type:jsonb"`
	Status        LicenseStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PhotoKey      string        `json:"photo_key" gorm:"size:255"`
	QRCodeData    *string       `json:"qr_code_data" gorm:"size:255;uniqueIndex"`

	// Renewal back-reference to the predecessor row. Weak link, never cascades.
	PreviousLicenseID *uuid.UUID `json:"previous_license_id" gorm:"type:uuid"`

	// Relationships
	Owner           User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	IssuedBy        *User    `json:"issued_by_user,omitempty" gorm:"foreignKey:IssuedByID"`
	PreviousLicense *License `json:"previous_license,omitempty" gorm:"foreignKey:PreviousLicenseID"`
}

// NumberOrEmpty returns the canonical license number, or "" when unset.
func (l *License) NumberOrEmpty() string {
	if l.LicenseNumber == nil {
		return ""
	}
	return *l.LicenseNumber
}

// IsActive reports whether the license is currently usable: status active
// or approved, and not past its expiry date.
func (l *License) IsActive() bool {
	if l.Status != LicenseStatusActive && l.Status != LicenseStatusApproved {
		return false
	}
	if l.ExpiryDate != nil && l.ExpiryDate.Before(Today()) {
		return false
	}
	return true
}

// BeforeSave flips past-expiry active/approved licenses to expired and keeps
// the canonical data keys in sync with the typed columns.
func (l *License) BeforeSave(tx *gorm.DB) error {
	if l.ExpiryDate != nil && l.ExpiryDate.Before(Today()) &&
		(l.Status == LicenseStatusActive || l.Status == LicenseStatusApproved) {
		l.Status = LicenseStatusExpired
	}

	if l.Data != nil {
		if l.IssuedDate != nil && l.Data.GetString("issueDate") == "" {
			l.Data["issueDate"] = l.IssuedDate.Format("2006-01-02")
		}
		if l.ExpiryDate != nil && l.Data.GetString("expiryDate") == "" {
			l.Data["expiryDate"] = l.ExpiryDate.Format("2006-01-02")
		}
		if l.NumberOrEmpty() != "" &&
			l.Data.GetString("licenseNumber") == "" && l.Data.GetString("registrationNumber") == "" {
			l.Data["licenseNumber"] = *l.LicenseNumber
		}
	}
	return nil
}

// Today returns the current date truncated to midnight UTC. Validity windows
// are date-granular, so all expiry comparisons go through this.
func Today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
