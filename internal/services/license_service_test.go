// internal/services/license_service_test.go
package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addislicensing/backend/internal/models"
)

func TestGenerateUniqueNumber(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)

	number, err := licenses.GenerateUniqueNumber(db, 2025)
	require.NoError(t, err)
	assert.Equal(t, "LIC-2025-000001", number)
}

func TestGenerateUniqueNumberSkipsTaken(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)

	// One row exists, so the probe starts at sequence 2; occupy that slot
	// to force a second probe.
	createTestLicense(t, db, owner, "LIC-2025-000002", models.LicenseStatusActive)

	number, err := licenses.GenerateUniqueNumber(db, 2025)
	require.NoError(t, err)
	assert.Equal(t, "LIC-2025-000003", number)
}

func TestCreateLicense(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)

	license, err := licenses.CreateLicense(owner.ID, &CreateLicenseRequest{
		LicenseType: models.LicenseTypeContractor,
		Subtype:     "Grade 1",
		Data:        map[string]interface{}{"companyName": "Habesha Builders"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.LicenseStatusActive, license.Status)
	assert.True(t, strings.HasPrefix(license.NumberOrEmpty(), fmt.Sprintf("LIC-%d-", time.Now().UTC().Year())))
	assert.Equal(t, "Habesha Builders", license.Data.GetString("companyName"))
	assert.Equal(t, "Grade 1", license.Data.GetString("subtype"))

	require.NotNil(t, license.ExpiryDate)
	assert.Equal(t, models.Today().Year()+5, license.ExpiryDate.Year())
	assert.Equal(t, license.ExpiryDate.Format("2006-01-02"), license.Data.GetString("expiryDate"))
}

func TestCreateLicenseDuplicateType(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)

	_, err := licenses.CreateLicense(owner.ID, &CreateLicenseRequest{LicenseType: models.LicenseTypeContractor})
	require.NoError(t, err)

	_, err = licenses.CreateLicense(owner.ID, &CreateLicenseRequest{LicenseType: models.LicenseTypeContractor})
	assert.ErrorIs(t, err, ErrDuplicateLicense)

	// A different type is fine
	_, err = licenses.CreateLicense(owner.ID, &CreateLicenseRequest{LicenseType: models.LicenseTypeProfessional})
	assert.NoError(t, err)
}

func TestCreateLicenseUnknownType(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)

	_, err := licenses.CreateLicense(owner.ID, &CreateLicenseRequest{LicenseType: "Fishing License"})
	assert.Error(t, err)
}

func TestActivateLicense(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)
	other := createTestUser(t, db, "other", false)

	license := createTestLicense(t, db, owner, "LIC-2025-000010", models.LicenseStatusPending)

	_, err := licenses.Activate(license.ID, other.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	activated, err := licenses.Activate(license.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusActive, activated.Status)

	// Already active rows cannot be re-activated
	_, err = licenses.Activate(license.ID, owner.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListLicensesSweepsExpired(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)

	license := createTestLicense(t, db, owner, "LIC-2020-000001", models.LicenseStatusActive)
	past := daysAgo(30)
	require.NoError(t, db.Model(&models.License{}).Where("id = ?", license.ID).
		Update("expiry_date", past).Error)

	listed, total, err := licenses.ListLicenses(owner.ID, false, testPagination())
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, models.LicenseStatusExpired, listed[0].Status)
}

func TestListLicensesVisibility(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)
	staff := createTestUser(t, db, "reviewer", true)

	createTestLicense(t, db, owner, "LIC-2025-000020", models.LicenseStatusActive)

	_, total, err := licenses.ListLicenses(staff.ID, false, testPagination())
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	_, total, err = licenses.ListLicenses(staff.ID, true, testPagination())
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestRenewCreatesRenewalApplication(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)

	license := createTestLicense(t, db, owner, "LIC-2023-000005", models.LicenseStatusActive)
	license.Data["companyName"] = "Habesha Builders"
	require.NoError(t, db.Save(license).Error)

	app, err := licenses.Renew(license.ID, owner.ID, &RenewLicenseRequest{
		Data: map[string]interface{}{"renewalPeriod": "2 years"},
	})
	require.NoError(t, err)

	assert.True(t, app.IsRenewal)
	require.NotNil(t, app.PreviousLicenseID)
	assert.Equal(t, license.ID, *app.PreviousLicenseID)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, "Habesha Builders", app.Data.GetString("companyName"))
	assert.Equal(t, "2 years", app.Data.GetString("renewalPeriod"))

	renewal, ok := app.Data["renewal"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, license.ID.String(), renewal["fromLicenseId"])
	assert.Equal(t, "LIC-2023-000005", renewal["fromLicenseNumber"])
}

func TestRenewRequiresOwnership(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)
	other := createTestUser(t, db, "other", false)

	license := createTestLicense(t, db, owner, "LIC-2023-000006", models.LicenseStatusActive)

	_, err := licenses.Renew(license.ID, other.ID, nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestGenerateQRCode(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)

	license := createTestLicense(t, db, owner, "LIC-2025-000030", models.LicenseStatusActive)

	updated, err := licenses.GenerateQRCode(license.ID, owner.ID, "")
	require.NoError(t, err)
	require.NotNil(t, updated.QRCodeData)
	assert.True(t, strings.HasPrefix(*updated.QRCodeData, "http://localhost:3000/verify?token="))
}

func TestGenerateQRCodeOwnerOnly(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)
	staff := createTestUser(t, db, "reviewer", true)

	license := createTestLicense(t, db, owner, "LIC-2025-000031", models.LicenseStatusActive)

	_, err := licenses.GenerateQRCode(license.ID, staff.ID, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDownloadGatedOnApproval(t *testing.T) {
	db := setupTestDB(t)
	licenses, _, _, _ := newTestServices(t, db)
	owner := createTestUser(t, db, "holder", false)
	staff := createTestUser(t, db, "reviewer", true)
	other := createTestUser(t, db, "other", false)

	pending := createTestLicense(t, db, owner, "LIC-2025-000040", models.LicenseStatusPending)

	_, err := licenses.Download(pending.ID, owner.ID, false)
	assert.ErrorIs(t, err, ErrApprovalRequired)

	require.NoError(t, db.Model(&models.License{}).Where("id = ?", pending.ID).
		Update("status", models.LicenseStatusActive).Error)

	_, err = licenses.Download(pending.ID, owner.ID, false)
	assert.NoError(t, err)

	_, err = licenses.Download(pending.ID, staff.ID, true)
	assert.NoError(t, err)

	_, err = licenses.Download(pending.ID, other.ID, false)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
