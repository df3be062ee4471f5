// internal/services/license_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
	"github.com/addislicensing/backend/internal/utils"
)

// Generation probes at most this many candidate sequence numbers before
// giving up. The unique index on license_number is the real safety net; the
// probe loop is a best-effort fast path.
const maxNumberProbes = 10000

// Attempts to commit a row before treating a persistent uniqueness conflict
// as an internal error.
const maxCreateRetries = 3

type LicenseService struct {
	db                  *gorm.DB
	config              *config.Config
	notificationService *NotificationService
}

type CreateLicenseRequest struct {
	LicenseType models.LicenseType     `json:"license_type" validate:"required"`
	Subtype     string                 `json:"subtype,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type RenewLicenseRequest struct {
	Data map[string]interface{} `json:"data,omitempty"`
}

func NewLicenseService(db *gorm.DB, config *config.Config, notificationService *NotificationService) *LicenseService {
	return &LicenseService{
		db:                  db,
		config:              config,
		notificationService: notificationService,
	}
}

// GenerateUniqueNumber produces a free LIC-YYYY-NNNNNN candidate. The
// sequence starts at count+1 and probes upward until an unused slot is
// found. Two concurrent callers can race to the same candidate; the unique
// constraint rejects the loser, who must regenerate.
func (s *LicenseService) GenerateUniqueNumber(tx *gorm.DB, year int) (string, error) {
	var count int64
	if err := tx.Model(&models.License{}).Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to count licenses: %w", err)
	}

	seq := int(count) + 1
	for i := 0; i < maxNumberProbes; i++ {
		candidate := formatLicenseNumber(year, seq)

		var existing int64
		if err := tx.Model(&models.License{}).Where("license_number = ?", candidate).Count(&existing).Error; err != nil {
			return "", fmt.Errorf("failed to probe license number: %w", err)
		}
		if existing == 0 {
			return candidate, nil
		}
		seq++
	}

	return "", ErrNumberSpaceExhausted
}

// CreateLicense is the authenticated self-service path: the license is
// issued immediately with a generated number and the default validity
// window, status active.
func (s *LicenseService) CreateLicense(ownerID uuid.UUID, req *CreateLicenseRequest) (*models.License, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if !req.LicenseType.Valid() {
		return nil, fmt.Errorf("unknown license type %q", req.LicenseType)
	}

	var existing int64
	if err := s.db.Model(&models.License{}).
		Where("owner_id = ? AND license_type = ?", ownerID, req.LicenseType).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateLicense
	}

	today := models.Today()
	expiry := addYears(today, s.config.Licensing.ValidityYears)

	var license *models.License
	// The generator and the insert race against concurrent issuance; retry
	// with a fresh number when the unique constraint rejects the candidate.
	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		number, err := s.GenerateUniqueNumber(s.db, today.Year())
		if err != nil {
			return nil, err
		}

		data := models.JSONB{}
		for k, v := range req.Data {
			data[k] = v
		}
		if req.Subtype != "" {
			data["subtype"] = req.Subtype
		}
		data["licenseNumber"] = number
		data["issueDate"] = today.Format("2006-01-02")
		data["expiryDate"] = expiry.Format("2006-01-02")

		issued := today
		exp := expiry
		license = &models.License{
			OwnerID:       ownerID,
			LicenseType:   req.LicenseType,
			LicenseNumber: &number,
			IssuedDate:    &issued,
			ExpiryDate:    &exp,
			Data:          data,
			Status:        models.LicenseStatusActive,
		}

		err = s.db.Create(license).Error
		if err == nil {
			return license, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to create license: %w", err)
		}
		// A duplicate owner+type row appearing mid-flight is a business
		// conflict, not a number collision.
		if err := s.db.Model(&models.License{}).
			Where("owner_id = ? AND license_type = ?", ownerID, req.LicenseType).
			Count(&existing).Error; err == nil && existing > 0 {
			return nil, ErrDuplicateLicense
		}
	}

	return nil, fmt.Errorf("license creation kept conflicting: %w", ErrNumberSpaceExhausted)
}

// ListLicenses returns the licenses visible to the caller, flipping any
// past-expiry active/approved rows to expired first.
func (s *LicenseService) ListLicenses(userID uuid.UUID, isStaff bool, params utils.PaginationParams) ([]models.License, int64, error) {
	s.sweepExpired()

	query := s.db.Model(&models.License{}).Preload("Owner")
	if !isStaff {
		query = query.Where("owner_id = ?", userID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	allowedSortFields := []string{"created_at", "issued_date", "expiry_date", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var licenses []models.License
	if err := query.Find(&licenses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch licenses: %w", err)
	}

	return licenses, total, nil
}

func (s *LicenseService) sweepExpired() {
	bestEffort("expiry sweep", func() error {
		return s.db.Model(&models.License{}).
			Where("expiry_date < ? AND status IN ?", models.Today(),
				[]models.LicenseStatus{models.LicenseStatusActive, models.LicenseStatusApproved}).
			Update("status", models.LicenseStatusExpired).Error
	})
}

func (s *LicenseService) GetLicense(id uuid.UUID, userID uuid.UUID, isStaff bool) (*models.License, error) {
	var license models.License
	if err := s.db.Preload("Owner").First(&license, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if license.OwnerID != userID && !isStaff {
		return nil, ErrPermissionDenied
	}
	return &license, nil
}

// Activate lets the owner bring a freshly issued license into force. New
// licenses are issued as pending until the holder confirms receipt.
func (s *LicenseService) Activate(id uuid.UUID, ownerID uuid.UUID) (*models.License, error) {
	var license models.License
	if err := s.db.First(&license, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if license.OwnerID != ownerID {
		return nil, ErrPermissionDenied
	}
	if license.Status != models.LicenseStatusPending && license.Status != models.LicenseStatusApproved {
		return nil, ErrInvalidTransition
	}

	license.Status = models.LicenseStatusActive
	if err := s.db.Save(&license).Error; err != nil {
		return nil, fmt.Errorf("failed to activate license: %w", err)
	}
	return &license, nil
}

// Renew opens a renewal application linked to the license, pre-filled from
// its attribute bag. Renewals are allowed even though the holder already
// has a license of this type; approval updates the same row in place.
func (s *LicenseService) Renew(licenseID uuid.UUID, userID uuid.UUID, req *RenewLicenseRequest) (*models.Application, error) {
	var license models.License
	if err := s.db.First(&license, "id = ?", licenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if license.OwnerID != userID {
		return nil, ErrPermissionDenied
	}

	renewData := models.JSONB{}
	for k, v := range license.Data {
		renewData[k] = v
	}
	renewData["renewal"] = map[string]interface{}{
		"fromLicenseId":     license.ID.String(),
		"fromLicenseNumber": firstNonEmpty(license.NumberOrEmpty(), license.Data.GetString("licenseNumber")),
	}
	// Incoming data (payment info, uploaded docs) wins over the snapshot
	if req != nil {
		for k, v := range req.Data {
			renewData[k] = v
		}
	}

	prevID := license.ID
	app := &models.Application{
		ApplicantID:       userID,
		LicenseType:       license.LicenseType,
		Subtype:           license.Data.GetString("subtype"),
		Data:              renewData,
		Status:            models.ApplicationStatusPending,
		IsRenewal:         true,
		PreviousLicenseID: &prevID,
	}

	if err := s.db.Create(app).Error; err != nil {
		return nil, fmt.Errorf("failed to create renewal application: %w", err)
	}
	return app, nil
}

// qrTokenClaims wraps a license reference in a signed, expiring token for
// verification URLs.
type qrTokenClaims struct {
	LicenseNumber string `json:"license_number,omitempty"`
	jwt.RegisteredClaims
}

// GenerateQRCode signs a time-limited verification token for the license
// and persists the resulting URL onto the row. Only the owner may request
// one.
func (s *LicenseService) GenerateQRCode(licenseID uuid.UUID, requesterID uuid.UUID, frontendURL string) (*models.License, error) {
	var license models.License
	if err := s.db.First(&license, "id = ?", licenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if license.OwnerID != requesterID {
		return nil, ErrPermissionDenied
	}

	if frontendURL == "" {
		frontendURL = s.config.Frontend.BaseURL
	}

	maxAge := time.Duration(s.config.Licensing.QRTokenMaxAge) * time.Second
	now := time.Now()
	claims := qrTokenClaims{
		LicenseNumber: license.NumberOrEmpty(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   license.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
			Issuer:    "licensing-authority",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWT.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to sign verification token: %w", err)
	}

	verificationURL := fmt.Sprintf("%s/verify?token=%s", frontendURL, token)
	license.QRCodeData = &verificationURL
	if err := s.db.Save(&license).Error; err != nil {
		return nil, fmt.Errorf("failed to save QR code data: %w", err)
	}

	return &license, nil
}

// Download gates access to the full license payload: owner or staff only,
// and only once the license has been approved or activated. A download
// entry is appended to the source application's audit log.
func (s *LicenseService) Download(licenseID uuid.UUID, userID uuid.UUID, isStaff bool) (*models.License, error) {
	var license models.License
	if err := s.db.Preload("Owner").First(&license, "id = ?", licenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if license.OwnerID != userID && !isStaff {
		return nil, ErrPermissionDenied
	}
	if license.Status != models.LicenseStatusApproved && license.Status != models.LicenseStatusActive {
		return nil, ErrApprovalRequired
	}

	bestEffort("download audit entry", func() error {
		appID, ok := license.Data["application_id"].(string)
		if !ok {
			return nil
		}
		parsed, err := uuid.Parse(appID)
		if err != nil {
			return nil
		}
		actor := userID
		return s.db.Create(&models.ApplicationLog{
			ApplicationID: parsed,
			ActorID:       &actor,
			Action:        "download",
			Details:       "License data downloaded",
		}).Error
	})

	return &license, nil
}

// GetLicenseForApplication resolves the license issued for an application,
// by owner and type since licenses carry no direct application key.
func (s *LicenseService) GetLicenseForApplication(appID uuid.UUID, userID uuid.UUID, isStaff bool) (*models.License, error) {
	var app models.Application
	if err := s.db.First(&app, "id = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.ApplicantID != userID && !isStaff {
		return nil, ErrPermissionDenied
	}

	var license models.License
	err := s.db.Where("owner_id = ? AND license_type = ?", app.ApplicantID, app.LicenseType).
		Order("created_at DESC").First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &license, nil
}

func addYears(t time.Time, years int) time.Time {
	return time.Date(t.Year()+years, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
