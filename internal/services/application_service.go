// internal/services/application_service.go
package services

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
	"github.com/addislicensing/backend/internal/utils"
)

type ApplicationService struct {
	db                  *gorm.DB
	config              *config.Config
	licenseService      *LicenseService
	storageService      *StorageService
	notificationService *NotificationService
	scorer              DocumentScorer
}

type CreateApplicationRequest struct {
	LicenseType models.LicenseType     `json:"license_type" validate:"required"`
	Subtype     string                 `json:"subtype,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type DecisionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ApplicationStats struct {
	Pending       int64 `json:"pending"`
	InfoRequested int64 `json:"info_requested"`
	ApprovedToday int64 `json:"approved_today"`
}

func NewApplicationService(db *gorm.DB, config *config.Config, licenseService *LicenseService,
	storageService *StorageService, notificationService *NotificationService, scorer DocumentScorer) *ApplicationService {
	if scorer == nil {
		scorer = NoopScorer{}
	}
	return &ApplicationService{
		db:                  db,
		config:              config,
		licenseService:      licenseService,
		storageService:      storageService,
		notificationService: notificationService,
		scorer:              scorer,
	}
}

// Create opens a fresh application. Applicants who already hold a license
// of the type, or have another open application for it, are turned away;
// renewals enter through LicenseService.Renew and bypass both guards.
func (s *ApplicationService) Create(applicantID uuid.UUID, req *CreateApplicationRequest) (*models.Application, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if !req.LicenseType.Valid() {
		return nil, fmt.Errorf("unknown license type %q", req.LicenseType)
	}

	var held int64
	if err := s.db.Model(&models.License{}).
		Where("owner_id = ? AND license_type = ? AND status NOT IN ?", applicantID, req.LicenseType,
			[]models.LicenseStatus{models.LicenseStatusRejected, models.LicenseStatusRevoked}).
		Count(&held).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if held > 0 {
		return nil, ErrDuplicateLicense
	}

	var open int64
	if err := s.db.Model(&models.Application{}).
		Where("applicant_id = ? AND license_type = ? AND is_renewal = ? AND status NOT IN ?",
			applicantID, req.LicenseType, false,
			[]models.ApplicationStatus{models.ApplicationStatusRejected}).
		Count(&open).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if open > 0 {
		return nil, ErrDuplicateApplication
	}

	data := models.JSONB{}
	for k, v := range req.Data {
		data[k] = v
	}

	app := &models.Application{
		ApplicantID: applicantID,
		LicenseType: req.LicenseType,
		Subtype:     strings.TrimSpace(req.Subtype),
		Data:        data,
		Status:      models.ApplicationStatusPending,
	}

	if err := s.db.Create(app).Error; err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	s.log(app.ID, &applicantID, "submit", "Application submitted")
	return app, nil
}

func (s *ApplicationService) List(userID uuid.UUID, isStaff bool, status string, params utils.PaginationParams) ([]models.Application, int64, error) {
	query := s.db.Model(&models.Application{}).Preload("Applicant").Preload("Documents")
	if !isStaff {
		query = query.Where("applicant_id = ?", userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "status", "license_type"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var apps []models.Application
	if err := query.Find(&apps).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch applications: %w", err)
	}
	return apps, total, nil
}

func (s *ApplicationService) Get(id uuid.UUID, userID uuid.UUID, isStaff bool) (*models.Application, error) {
	var app models.Application
	err := s.db.Preload("Applicant").Preload("Documents").
		Preload("Logs", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp DESC")
		}).
		First(&app, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.ApplicantID != userID && !isStaff {
		return nil, ErrPermissionDenied
	}
	return &app, nil
}

// Approve is the staff decision path. Approving an already-approved
// application is a no-op so a double-submitted review form cannot issue
// twice. Renewals must have a verified payment first.
func (s *ApplicationService) Approve(id uuid.UUID, actorID uuid.UUID, isStaff bool) (*models.Application, error) {
	if !isStaff {
		return nil, ErrPermissionDenied
	}
	return s.approve(id, &actorID)
}

// ApproveFromPayment is the automatic issuance path taken when a renewal
// payment completes and auto approval is enabled. No staff actor.
func (s *ApplicationService) ApproveFromPayment(id uuid.UUID) (*models.Application, error) {
	return s.approve(id, nil)
}

func (s *ApplicationService) approve(id uuid.UUID, actorID *uuid.UUID) (*models.Application, error) {
	var app models.Application
	if err := s.db.Preload("Applicant").Preload("Documents").First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.Status == models.ApplicationStatusApproved {
		return &app, nil
	}
	if app.Status == models.ApplicationStatusRejected {
		return nil, ErrInvalidTransition
	}
	if app.IsRenewal && !app.PaymentVerified() {
		return nil, ErrPaymentRequired
	}

	var license *models.License
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		license, err = s.issueLicense(tx, &app, actorID)
		if err != nil {
			return err
		}

		app.Status = models.ApplicationStatusApproved
		if err := tx.Save(&app).Error; err != nil {
			return fmt.Errorf("failed to update application: %w", err)
		}

		actor := actorID
		return tx.Create(&models.ApplicationLog{
			ApplicationID: app.ID,
			ActorID:       actor,
			Action:        "approved",
			Details:       fmt.Sprintf("Application approved, license %s issued", license.NumberOrEmpty()),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	bestEffort("decision notification", func() error {
		s.notificationService.SendLicenseIssued(&app.Applicant, license)
		return nil
	})

	return &app, nil
}

// issueLicense materializes the approved application as a license row,
// inside the caller's transaction. Fresh approvals create a pending row the
// holder activates on receipt; renewals update the predecessor in place and
// go straight to active.
func (s *ApplicationService) issueLicense(tx *gorm.DB, app *models.Application, actorID *uuid.UUID) (*models.License, error) {
	today := models.Today()

	var license models.License
	err := tx.Where("owner_id = ? AND license_type = ?", app.ApplicantID, app.LicenseType).
		First(&license).Error
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// A fresh application cannot overwrite a live license; renewals do
	// exactly that, in place.
	if !app.IsRenewal && exists && license.IsActive() {
		return nil, ErrDuplicateLicense
	}

	number := license.NumberOrEmpty()
	if number == "" {
		number = strings.TrimSpace(app.Data.GetString("licenseNumber", "registrationNumber"))
	}
	if number == "" {
		var genErr error
		number, genErr = s.licenseService.GenerateUniqueNumber(tx, today.Year())
		if genErr != nil {
			return nil, genErr
		}
	}

	var expiry time.Time
	var status models.LicenseStatus
	issued := today
	if app.IsRenewal {
		// The new window continues from the previous expiry even when it
		// has already lapsed; only an absent expiry starts from today.
		base := today
		if exists && license.ExpiryDate != nil {
			base = *license.ExpiryDate
		}
		period := app.Data["renewalPeriod"]
		if period == nil {
			period = app.Data["renewal_period"]
		}
		expiry = addYears(base, parseRenewalYears(period))
		status = models.LicenseStatusActive
		issued = base
	} else {
		expiry = addYears(today, s.config.Licensing.ValidityYears)
		status = models.LicenseStatusPending
	}

	license.OwnerID = app.ApplicantID
	license.LicenseType = app.LicenseType
	license.LicenseNumber = &number
	license.IssuedByID = actorID
	license.IssuedDate = &issued
	license.ExpiryDate = &expiry
	license.Status = status
	license.Data = mergeLicenseData(license.Data, app.Data)
	license.Data["licenseNumber"] = number
	license.Data["issueDate"] = issued.Format("2006-01-02")
	license.Data["expiryDate"] = expiry.Format("2006-01-02")
	license.Data["application_id"] = app.ID.String()
	if app.Subtype != "" {
		license.Data["subtype"] = app.Subtype
	}
	if app.IsRenewal && app.PreviousLicenseID != nil {
		license.PreviousLicenseID = app.PreviousLicenseID
	}

	if key := photoForLicense(app); key != "" {
		bestEffort("license photo copy", func() error {
			copied, err := s.storageService.CopyObject(key, "licenses")
			if err != nil {
				return err
			}
			license.PhotoKey = copied
			return nil
		})
	}

	if exists {
		if err := tx.Save(&license).Error; err != nil {
			return nil, fmt.Errorf("failed to update license: %w", err)
		}
	} else {
		if err := tx.Create(&license).Error; err != nil {
			return nil, fmt.Errorf("failed to create license: %w", err)
		}
	}

	// Write the number back so the applicant's copy of the form shows it.
	if app.Data == nil {
		app.Data = models.JSONB{}
	}
	app.Data["licenseNumber"] = number

	return &license, nil
}

// mergeLicenseData overlays the application's attribute bag onto the
// existing license data. A companyName already on the license survives a
// renewal form that omitted it; registered business names do not disappear
// between cycles.
func mergeLicenseData(existing models.JSONB, incoming models.JSONB) models.JSONB {
	merged := models.JSONB{}
	for k, v := range existing {
		merged[k] = v
	}
	companyName := merged.GetString("companyName")
	for k, v := range incoming {
		merged[k] = v
	}
	if companyName != "" && merged.GetString("companyName") == "" {
		merged["companyName"] = companyName
	}
	return merged
}

// photoForLicense picks the photo that goes on the issued license. Each
// license type has its own slot preference; when no slot was filled, fall
// back to the first uploaded image, preferring a representative photo for
// import/export licenses.
func photoForLicense(app *models.Application) string {
	var order []string
	switch app.LicenseType {
	case models.LicenseTypeProfessional:
		order = []string{app.ProfessionalPhotoKey, app.ProfilePhotoKey, app.CompanyRepresentativePhotoKey}
	case models.LicenseTypeImportExport:
		order = []string{app.CompanyRepresentativePhotoKey, app.ProfilePhotoKey, app.ProfessionalPhotoKey}
	default:
		order = []string{app.ProfilePhotoKey, app.ProfessionalPhotoKey, app.CompanyRepresentativePhotoKey}
	}
	for _, key := range order {
		if key != "" {
			return key
		}
	}

	var fallback string
	for i := range app.Documents {
		doc := &app.Documents[i]
		if !doc.IsImage() {
			continue
		}
		if app.LicenseType == models.LicenseTypeImportExport &&
			strings.Contains(strings.ToLower(doc.Name), "representative") {
			return doc.FileKey
		}
		if fallback == "" {
			fallback = doc.FileKey
		}
	}
	return fallback
}

func (s *ApplicationService) Reject(id uuid.UUID, actorID uuid.UUID, isStaff bool, reason string) (*models.Application, error) {
	if !isStaff {
		return nil, ErrPermissionDenied
	}

	var app models.Application
	if err := s.db.Preload("Applicant").First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.Status == models.ApplicationStatusRejected {
		return &app, nil
	}
	if app.Status == models.ApplicationStatusApproved {
		return nil, ErrInvalidTransition
	}

	app.Status = models.ApplicationStatusRejected
	if err := s.db.Save(&app).Error; err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	s.log(app.ID, &actorID, "reject", reason)

	bestEffort("decision notification", func() error {
		s.notificationService.SendApplicationDecision(&app.Applicant, &app, "rejected", reason)
		return nil
	})
	return &app, nil
}

func (s *ApplicationService) RequestInfo(id uuid.UUID, actorID uuid.UUID, isStaff bool, message string) (*models.Application, error) {
	if !isStaff {
		return nil, ErrPermissionDenied
	}

	var app models.Application
	if err := s.db.Preload("Applicant").First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.Status != models.ApplicationStatusPending && app.Status != models.ApplicationStatusResubmitted {
		return nil, ErrInvalidTransition
	}

	app.Status = models.ApplicationStatusInfoRequested
	if err := s.db.Save(&app).Error; err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	s.log(app.ID, &actorID, "request_info", message)

	bestEffort("decision notification", func() error {
		s.notificationService.SendApplicationDecision(&app.Applicant, &app, "returned for more information", message)
		return nil
	})
	return &app, nil
}

// Resubmit lets the applicant answer an information request: the payload is
// merged over the stored form and the application re-enters review.
func (s *ApplicationService) Resubmit(id uuid.UUID, applicantID uuid.UUID, data map[string]interface{}) (*models.Application, error) {
	var app models.Application
	if err := s.db.First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.ApplicantID != applicantID {
		return nil, ErrPermissionDenied
	}
	if app.Status != models.ApplicationStatusInfoRequested {
		return nil, ErrInvalidTransition
	}

	if app.Data == nil {
		app.Data = models.JSONB{}
	}
	for k, v := range data {
		app.Data[k] = v
	}
	app.Status = models.ApplicationStatusResubmitted

	if err := s.db.Save(&app).Error; err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	s.log(app.ID, &applicantID, "resubmit", "Application resubmitted with additional information")
	return &app, nil
}

// SetPhoto attaches an uploaded photo to one of the application's slots.
func (s *ApplicationService) SetPhoto(id uuid.UUID, applicantID uuid.UUID, slot string, file multipart.File, header *multipart.FileHeader) (*models.Application, error) {
	var app models.Application
	if err := s.db.First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.ApplicantID != applicantID {
		return nil, ErrPermissionDenied
	}
	if app.Status == models.ApplicationStatusApproved || app.Status == models.ApplicationStatusRejected {
		return nil, ErrInvalidTransition
	}

	if err := s.storageService.ValidateImage(file); err != nil {
		return nil, fmt.Errorf("invalid image: %w", err)
	}

	result, err := s.storageService.UploadFile(file, header, s.storageService.GetDefaultUploadOptions("photos"))
	if err != nil {
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}

	switch slot {
	case "profile":
		app.ProfilePhotoKey = result.Key
	case "professional":
		app.ProfessionalPhotoKey = result.Key
	case "company_representative":
		app.CompanyRepresentativePhotoKey = result.Key
	default:
		return nil, fmt.Errorf("unknown photo slot %q", slot)
	}

	if err := s.db.Save(&app).Error; err != nil {
		return nil, fmt.Errorf("failed to save application: %w", err)
	}
	return &app, nil
}

// AddDocument stores a supporting document and runs it through the
// configured scorer. Scoring failures leave the document pending; they
// never fail the upload.
func (s *ApplicationService) AddDocument(id uuid.UUID, applicantID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.Document, error) {
	var app models.Application
	if err := s.db.First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.ApplicantID != applicantID {
		return nil, ErrPermissionDenied
	}

	result, err := s.storageService.UploadFile(file, header, s.storageService.GetDefaultUploadOptions("documents"))
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}

	doc := &models.Document{
		UploaderID:         applicantID,
		ApplicationID:      &app.ID,
		Name:               header.Filename,
		FileKey:            result.Key,
		MimeType:           header.Header.Get("Content-Type"),
		VerificationStatus: models.DocumentVerdictPending,
	}
	if err := s.db.Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	bestEffort("document scoring", func() error {
		verdict, score, details, err := s.scorer.Score(doc)
		if err != nil {
			return err
		}
		now := time.Now()
		doc.VerificationStatus = verdict
		doc.VerificationScore = score
		doc.VerificationDetails = details
		doc.VerifiedAt = &now
		return s.db.Save(doc).Error
	})

	s.log(app.ID, &applicantID, "document_upload", header.Filename)
	return doc, nil
}

// Stats powers the review dashboard.
func (s *ApplicationService) Stats() (*ApplicationStats, error) {
	stats := &ApplicationStats{}

	err := s.db.Model(&models.Application{}).
		Where("status IN ?", []models.ApplicationStatus{models.ApplicationStatusPending, models.ApplicationStatusResubmitted}).
		Count(&stats.Pending).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	err = s.db.Model(&models.Application{}).
		Where("status = ?", models.ApplicationStatusInfoRequested).
		Count(&stats.InfoRequested).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	err = s.db.Model(&models.Application{}).
		Where("status = ? AND updated_at >= ?", models.ApplicationStatusApproved, models.Today()).
		Count(&stats.ApprovedToday).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return stats, nil
}

func (s *ApplicationService) log(appID uuid.UUID, actorID *uuid.UUID, action, details string) {
	bestEffort("audit log entry", func() error {
		return s.db.Create(&models.ApplicationLog{
			ApplicationID: appID,
			ActorID:       actorID,
			Action:        action,
			Details:       details,
		}).Error
	})
}
