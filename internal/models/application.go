// internal/models/application.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Application is a citizen's request for a license. Status moves
// pending -> {approved, rejected, info_requested}; info_requested may be
// answered with a resubmission which re-enters review. Applications are
// never deleted.
type Application struct {
	BaseModel
	ApplicantID uuid.UUID         `json:"applicant_id" gorm:"type:uuid;not null;index"`
	LicenseType LicenseType       `json:"license_type" gorm:"type:varchar(50);not null;index"`
	Subtype     string            `json:"subtype" gorm:"size:50"`
	Data        JSONB             `json:"data" gorm:"type:jsonb"`
	Status      ApplicationStatus `json:"status" gorm:"type:varchar(30);default:'pending';index"`

	// Uploaded photos, one per license type. Storage keys, not live references.
	ProfilePhotoKey               string `json:"profile_photo_key" gorm:"size:255"`
	ProfessionalPhotoKey          string `json:"professional_photo_key" gorm:"size:255"`
	CompanyRepresentativePhotoKey string `json:"company_representative_photo_key" gorm:"size:255"`

	IsRenewal         bool       `json:"is_renewal" gorm:"default:false"`
	PreviousLicenseID *uuid.UUID `json:"previous_license_id" gorm:"type:uuid"`

	// Relationships
	Applicant       User             `json:"applicant,omitempty" gorm:"foreignKey:ApplicantID"`
	PreviousLicense *License         `json:"previous_license,omitempty" gorm:"foreignKey:PreviousLicenseID"`
	Documents       []Document       `json:"documents,omitempty" gorm:"foreignKey:ApplicationID"`
	Logs            []ApplicationLog `json:"logs,omitempty" gorm:"foreignKey:ApplicationID"`
}

// PaymentVerified reports whether the attribute bag carries a truthy
// paymentVerified flag. Renewal approval is gated on it.
func (a *Application) PaymentVerified() bool {
	if a.Data == nil {
		return false
	}
	switch v := a.Data["paymentVerified"].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	}
	return false
}

// ApplicationLog is the append-only audit trail: one row per state
// transition or significant action, newest first when listed.
type ApplicationLog struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ApplicationID uuid.UUID  `json:"application_id" gorm:"type:uuid;not null;index"`
	ActorID       *uuid.UUID `json:"actor_id" gorm:"type:uuid"`
	Action        string     `json:"action" gorm:"size:50;not null"`
	Details       string     `json:"details" gorm:"type:text"`
	Timestamp     time.Time  `json:"timestamp" gorm:"autoCreateTime;index"`

	Actor *User `json:"actor,omitempty" gorm:"foreignKey:ActorID"`
}

func (l *ApplicationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
