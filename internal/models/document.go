// internal/models/document.go
package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded supporting file attached to an application.
// Authenticity scoring is performed by an external collaborator; only the
// verdict is recorded here.
type Document struct {
	BaseModel
	UploaderID    uuid.UUID  `json:"uploader_id" gorm:"type:uuid;not null;index"`
	ApplicationID *uuid.UUID `json:"application_id" gorm:"type:uuid;index"`
	Name          string     `json:"name" gorm:"size:255"`
	FileKey       string     `json:"file_key" gorm:"size:255;not null"`
	MimeType      string     `json:"mime_type" gorm:"size:100"`

	VerificationStatus  DocumentVerdict `json:"verification_status" gorm:"type:varchar(20);default:'pending'"`
	VerificationScore   *float64        `json:"verification_score"`
	VerificationDetails string          `json:"verification_details" gorm:"type:text"`
	VerifiedAt          *time.Time      `json:"verified_at"`

	Uploader User `json:"uploader,omitempty" gorm:"foreignKey:UploaderID"`
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// IsImage reports whether the stored file looks like an image, by extension.
func (d *Document) IsImage() bool {
	return imageExtensions[strings.ToLower(path.Ext(d.FileKey))]
}
