// internal/services/application_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addislicensing/backend/internal/models"
)

func TestCreateApplication(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{
		LicenseType: models.LicenseTypeContractor,
		Subtype:     "  Grade 2  ",
		Data:        map[string]interface{}{"companyName": "Habesha Builders"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, "Grade 2", app.Subtype)
	assert.False(t, app.IsRenewal)

	var logs []models.ApplicationLog
	require.NoError(t, db.Where("application_id = ?", app.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "submit", logs[0].Action)
}

func TestCreateApplicationGuards(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)

	// Holding a license of the type blocks a fresh application
	createTestLicense(t, db, applicant, "LIC-2024-000001", models.LicenseStatusActive)
	_, err := apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeContractor})
	assert.ErrorIs(t, err, ErrDuplicateLicense)

	// A different type is allowed; a second open application of it is not
	_, err = apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeProfessional})
	require.NoError(t, err)
	_, err = apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeProfessional})
	assert.ErrorIs(t, err, ErrDuplicateApplication)
}

func TestCreateApplicationAllowedAfterRejection(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeContractor})
	require.NoError(t, err)

	_, err = apps.Reject(app.ID, staff.ID, true, "incomplete documents")
	require.NoError(t, err)

	_, err = apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeContractor})
	assert.NoError(t, err)
}

func TestApproveIssuesPendingLicense(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{
		LicenseType: models.LicenseTypeContractor,
		Data:        map[string]interface{}{"companyName": "Habesha Builders"},
	})
	require.NoError(t, err)

	approved, err := apps.Approve(app.ID, staff.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusApproved, approved.Status)

	var license models.License
	require.NoError(t, db.Where("owner_id = ?", applicant.ID).First(&license).Error)
	assert.Equal(t, models.LicenseStatusPending, license.Status)
	assert.NotEmpty(t, license.NumberOrEmpty())
	assert.Equal(t, "Habesha Builders", license.Data.GetString("companyName"))
	assert.Equal(t, license.NumberOrEmpty(), license.Data.GetString("licenseNumber"))
	require.NotNil(t, license.IssuedByID)
	assert.Equal(t, staff.ID, *license.IssuedByID)
	require.NotNil(t, license.ExpiryDate)
	assert.Equal(t, models.Today().Year()+5, license.ExpiryDate.Year())
}

func TestApproveRequiresStaff(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeContractor})
	require.NoError(t, err)

	_, err = apps.Approve(app.ID, applicant.ID, false)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestApproveIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeContractor})
	require.NoError(t, err)

	_, err = apps.Approve(app.ID, staff.ID, true)
	require.NoError(t, err)
	_, err = apps.Approve(app.ID, staff.ID, true)
	require.NoError(t, err)

	// One license, one approve log entry
	var licenseCount int64
	require.NoError(t, db.Model(&models.License{}).Where("owner_id = ?", applicant.ID).Count(&licenseCount).Error)
	assert.EqualValues(t, 1, licenseCount)

	var approveLogs int64
	require.NoError(t, db.Model(&models.ApplicationLog{}).
		Where("application_id = ? AND action = ?", app.ID, "approved").Count(&approveLogs).Error)
	assert.EqualValues(t, 1, approveLogs)
}

func TestApproveRenewalRequiresPayment(t *testing.T) {
	db := setupTestDB(t)
	licenses, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	license := createTestLicense(t, db, applicant, "LIC-2021-000003", models.LicenseStatusActive)
	renewal, err := licenses.Renew(license.ID, applicant.ID, nil)
	require.NoError(t, err)

	_, err = apps.Approve(renewal.ID, staff.ID, true)
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestApproveRenewalUpdatesLicenseInPlace(t *testing.T) {
	db := setupTestDB(t)
	licenses, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	license := createTestLicense(t, db, applicant, "LIC-2021-000004", models.LicenseStatusActive)
	prevExpiry := *license.ExpiryDate

	renewal, err := licenses.Renew(license.ID, applicant.ID, &RenewLicenseRequest{
		Data: map[string]interface{}{
			"paymentVerified": true,
			"renewalPeriod":   "2 years",
		},
	})
	require.NoError(t, err)

	_, err = apps.Approve(renewal.ID, staff.ID, true)
	require.NoError(t, err)

	var updated models.License
	require.NoError(t, db.First(&updated, "id = ?", license.ID).Error)
	assert.Equal(t, "LIC-2021-000004", updated.NumberOrEmpty())
	assert.Equal(t, models.LicenseStatusActive, updated.Status)
	require.NotNil(t, updated.ExpiryDate)
	assert.Equal(t, prevExpiry.AddDate(2, 0, 0).Format("2006-01-02"), updated.ExpiryDate.Format("2006-01-02"))

	// Still a single row per owner and type
	var count int64
	require.NoError(t, db.Model(&models.License{}).Where("owner_id = ?", applicant.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestApproveRenewalBasesExpiryOnLapsedLicense(t *testing.T) {
	db := setupTestDB(t)
	licenses, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	license := createTestLicense(t, db, applicant, "LIC-2020-000011", models.LicenseStatusExpired)
	prevExpiry := models.Today().AddDate(-2, 0, 0)
	require.NoError(t, db.Model(&models.License{}).Where("id = ?", license.ID).
		Update("expiry_date", prevExpiry).Error)

	renewal, err := licenses.Renew(license.ID, applicant.ID, &RenewLicenseRequest{
		Data: map[string]interface{}{"paymentVerified": true},
	})
	require.NoError(t, err)

	_, err = apps.Approve(renewal.ID, staff.ID, true)
	require.NoError(t, err)

	// The new window continues from the lapsed expiry, not from today, so
	// a one-year default period here still leaves the license expired.
	var updated models.License
	require.NoError(t, db.First(&updated, "id = ?", license.ID).Error)
	require.NotNil(t, updated.ExpiryDate)
	assert.Equal(t, prevExpiry.AddDate(1, 0, 0).Format("2006-01-02"), updated.ExpiryDate.Format("2006-01-02"))
	assert.Equal(t, models.LicenseStatusExpired, updated.Status)
}

func TestApproveRenewalReadsSnakeCasePeriodKey(t *testing.T) {
	db := setupTestDB(t)
	licenses, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	license := createTestLicense(t, db, applicant, "LIC-2022-000012", models.LicenseStatusActive)
	prevExpiry := *license.ExpiryDate

	renewal, err := licenses.Renew(license.ID, applicant.ID, &RenewLicenseRequest{
		Data: map[string]interface{}{
			"paymentVerified": true,
			"renewal_period":  "3 years",
		},
	})
	require.NoError(t, err)

	_, err = apps.Approve(renewal.ID, staff.ID, true)
	require.NoError(t, err)

	var updated models.License
	require.NoError(t, db.First(&updated, "id = ?", license.ID).Error)
	require.NotNil(t, updated.ExpiryDate)
	assert.Equal(t, prevExpiry.AddDate(3, 0, 0).Format("2006-01-02"), updated.ExpiryDate.Format("2006-01-02"))
	// Re-issuance dates the new term from the end of the previous one.
	require.NotNil(t, updated.IssuedDate)
	assert.Equal(t, prevExpiry.Format("2006-01-02"), updated.IssuedDate.Format("2006-01-02"))
}

func TestApproveRenewalKeepsCompanyName(t *testing.T) {
	db := setupTestDB(t)
	licenses, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	license := createTestLicense(t, db, applicant, "LIC-2021-000008", models.LicenseStatusActive)
	license.Data["companyName"] = "Habesha Builders"
	require.NoError(t, db.Save(license).Error)

	renewal, err := licenses.Renew(license.ID, applicant.ID, &RenewLicenseRequest{
		Data: map[string]interface{}{"paymentVerified": true},
	})
	require.NoError(t, err)

	// The renewal form wipes the company name
	require.NoError(t, db.Model(&models.Application{}).Where("id = ?", renewal.ID).
		Update("data", models.JSONB{"paymentVerified": true, "companyName": ""}).Error)

	_, err = apps.Approve(renewal.ID, staff.ID, true)
	require.NoError(t, err)

	var updated models.License
	require.NoError(t, db.First(&updated, "id = ?", license.ID).Error)
	assert.Equal(t, "Habesha Builders", updated.Data.GetString("companyName"))
}

func TestRejectAndReview(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)
	staff := createTestUser(t, db, "reviewer", true)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeProfessional})
	require.NoError(t, err)

	returned, err := apps.RequestInfo(app.ID, staff.ID, true, "missing degree certificate")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusInfoRequested, returned.Status)

	resubmitted, err := apps.Resubmit(app.ID, applicant.ID, map[string]interface{}{"degree": "BSc"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusResubmitted, resubmitted.Status)
	assert.Equal(t, "BSc", resubmitted.Data.GetString("degree"))

	rejected, err := apps.Reject(app.ID, staff.ID, true, "forged certificate")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, rejected.Status)

	// Rejected applications cannot be approved afterwards
	_, err = apps.Approve(app.ID, staff.ID, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResubmitOnlyWhenRequested(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "applicant", false)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeProfessional})
	require.NoError(t, err)

	_, err = apps.Resubmit(app.ID, applicant.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPhotoForLicense(t *testing.T) {
	app := &models.Application{
		LicenseType:          models.LicenseTypeProfessional,
		ProfilePhotoKey:      "photos/profile.jpg",
		ProfessionalPhotoKey: "photos/professional.jpg",
	}
	assert.Equal(t, "photos/professional.jpg", photoForLicense(app))

	app.LicenseType = models.LicenseTypeContractor
	assert.Equal(t, "photos/profile.jpg", photoForLicense(app))

	app.LicenseType = models.LicenseTypeImportExport
	app.CompanyRepresentativePhotoKey = "photos/rep.jpg"
	assert.Equal(t, "photos/rep.jpg", photoForLicense(app))
}

func TestPhotoForLicenseDocumentFallback(t *testing.T) {
	app := &models.Application{
		LicenseType: models.LicenseTypeImportExport,
		Documents: []models.Document{
			{Name: "trade-registration.pdf", FileKey: "documents/trade.pdf"},
			{Name: "office.png", FileKey: "documents/office.png"},
			{Name: "representative-id.jpg", FileKey: "documents/rep.jpg"},
		},
	}
	assert.Equal(t, "documents/rep.jpg", photoForLicense(app))

	app.LicenseType = models.LicenseTypeContractor
	assert.Equal(t, "documents/office.png", photoForLicense(app))
}

// End to end: submit, approve, verify before and after owner activation.
func TestApplicationToVerificationFlow(t *testing.T) {
	db := setupTestDB(t)
	licenses, apps, verify, _ := newTestServices(t, db)
	applicant := createTestUser(t, db, "megabuild", false)
	staff := createTestUser(t, db, "reviewer", true)

	app, err := apps.Create(applicant.ID, &CreateApplicationRequest{
		LicenseType: models.LicenseTypeContractor,
		Data:        map[string]interface{}{"companyName": "MegaBuild Ltd"},
	})
	require.NoError(t, err)

	_, err = apps.Approve(app.ID, staff.ID, true)
	require.NoError(t, err)

	var license models.License
	require.NoError(t, db.Where("owner_id = ?", applicant.ID).First(&license).Error)
	number := license.NumberOrEmpty()
	assert.Regexp(t, `^LIC-\d{4}-\d{6}$`, number)

	result, err := verify.VerifyByNumber(number)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Detail, "not approved")

	_, err = licenses.Activate(license.ID, applicant.ID)
	require.NoError(t, err)

	result, err = verify.VerifyByNumber(number)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "MegaBuild Ltd", result.CompanyName)
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	_, apps, _, _ := newTestServices(t, db)
	a := createTestUser(t, db, "a", false)
	b := createTestUser(t, db, "b", false)
	staff := createTestUser(t, db, "reviewer", true)

	_, err := apps.Create(a.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeContractor})
	require.NoError(t, err)
	appB, err := apps.Create(b.ID, &CreateApplicationRequest{LicenseType: models.LicenseTypeProfessional})
	require.NoError(t, err)

	_, err = apps.Approve(appB.ID, staff.ID, true)
	require.NoError(t, err)

	stats, err := apps.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)
	assert.EqualValues(t, 1, stats.ApprovedToday)
}
