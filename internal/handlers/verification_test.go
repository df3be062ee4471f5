// internal/handlers/verification_test.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
	"github.com/addislicensing/backend/internal/services"
)

func setupVerificationRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.License{}, &models.Application{},
		&models.ApplicationLog{}, &models.Document{}, &models.Payment{},
	))

	cfg := &config.Config{
		JWT:       config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1},
		Licensing: config.LicensingConfig{QRTokenMaxAge: 3600, ValidityYears: 5},
		Frontend:  config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}

	migrations := services.NewMigrationService(db)
	verifications := services.NewVerificationService(db, cfg, migrations)
	handler := NewVerificationHandler(verifications)

	r := gin.New()
	r.GET("/v1/verify", handler.VerifyLicense)
	return r, db
}

func seedLicense(t *testing.T, db *gorm.DB, number string, status models.LicenseStatus) {
	t.Helper()

	user := &models.User{Username: "holder-" + uuid.NewString()[:8], Email: uuid.NewString() + "@example.com", FirstName: "Abebe", LastName: "Kebede"}
	require.NoError(t, user.SetPassword("TestPass123!"))
	require.NoError(t, db.Create(user).Error)

	issued := models.Today().AddDate(-1, 0, 0)
	expiry := issued.AddDate(5, 0, 0)
	license := &models.License{
		OwnerID:       user.ID,
		LicenseType:   models.LicenseTypeContractor,
		LicenseNumber: &number,
		IssuedDate:    &issued,
		ExpiryDate:    &expiry,
		Status:        status,
		Data:          models.JSONB{},
	}
	require.NoError(t, db.Create(license).Error)
}

func getVerify(t *testing.T, r *gin.Engine, query string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req, _ := http.NewRequest("GET", "/v1/verify?"+query, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestVerifyEndpointFound(t *testing.T) {
	r, db := setupVerificationRouter(t)
	seedLicense(t, db, "LIC-2025-000001", models.LicenseStatusActive)

	w, body := getVerify(t, r, "licenseNumber=LIC-2025-000001")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body["valid"].(bool))
	assert.Equal(t, "LIC-2025-000001", body["license_number"])
	assert.Equal(t, "Abebe Kebede", body["holder_name"])
}

func TestVerifyEndpointSnakeCaseParam(t *testing.T) {
	r, db := setupVerificationRouter(t)
	seedLicense(t, db, "LIC-2025-000002", models.LicenseStatusActive)

	w, _ := getVerify(t, r, "license_number=LIC-2025-000002")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifyEndpointNotFound(t *testing.T) {
	r, _ := setupVerificationRouter(t)

	w, body := getVerify(t, r, "licenseNumber=LIC-2025-999999")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, body["valid"].(bool))
	assert.NotEmpty(t, body["detail"])
}

func TestVerifyEndpointRevokedIsOKButInvalid(t *testing.T) {
	r, db := setupVerificationRouter(t)
	seedLicense(t, db, "LIC-2025-000003", models.LicenseStatusRevoked)

	w, body := getVerify(t, r, "licenseNumber=LIC-2025-000003")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, body["valid"].(bool))
	assert.Equal(t, "revoked", body["status"])
}

func TestVerifyEndpointBadToken(t *testing.T) {
	r, _ := setupVerificationRouter(t)

	w, body := getVerify(t, r, "token=garbage")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, body["valid"].(bool))
	assert.NotEmpty(t, body["detail"])
}

func TestVerifyEndpointMissingParams(t *testing.T) {
	r, _ := setupVerificationRouter(t)

	w, body := getVerify(t, r, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, body["valid"].(bool))
}
