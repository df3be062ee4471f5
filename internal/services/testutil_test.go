// internal/services/testutil_test.go
package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
	"github.com/addislicensing/backend/internal/utils"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache database keeps the schema alive across pooled
	// connections while isolating each test.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.License{},
		&models.Application{},
		&models.ApplicationLog{},
		&models.Document{},
		&models.Payment{},
	)
	require.NoError(t, err)

	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT: config.JWTConfig{
			SecretKey:      "test-secret",
			AccessTokenTTL: 1,
		},
		Licensing: config.LicensingConfig{
			AutoApproval:  false,
			QRTokenMaxAge: 3600,
			ValidityYears: 5,
		},
		Frontend: config.FrontendConfig{
			BaseURL: "http://localhost:3000",
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, isStaff bool) *models.User {
	t.Helper()

	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: "Test",
		LastName:  username,
		IsStaff:   isStaff,
	}
	require.NoError(t, user.SetPassword("TestPass123!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestLicense(t *testing.T, db *gorm.DB, owner *models.User, number string, status models.LicenseStatus) *models.License {
	t.Helper()

	issued := models.Today()
	expiry := issued.AddDate(5, 0, 0)
	license := &models.License{
		OwnerID:     owner.ID,
		LicenseType: models.LicenseTypeContractor,
		IssuedDate:  &issued,
		ExpiryDate:  &expiry,
		Status:      status,
		Data:        models.JSONB{},
	}
	if number != "" {
		license.LicenseNumber = &number
	}
	require.NoError(t, db.Create(license).Error)
	return license
}

func newTestServices(t *testing.T, db *gorm.DB) (*LicenseService, *ApplicationService, *VerificationService, *MigrationService) {
	t.Helper()

	cfg := testConfig()
	notification := NewNotificationService(cfg)
	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	licenses := NewLicenseService(db, cfg, notification)
	applications := NewApplicationService(db, cfg, licenses, storage, notification, nil)
	migrations := NewMigrationService(db)
	verifications := NewVerificationService(db, cfg, migrations)
	return licenses, applications, verifications, migrations
}

func testPagination() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
}

func daysAgo(n int) time.Time {
	return models.Today().AddDate(0, 0, -n)
}
