// internal/services/verification_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
)

// Number lookups that miss the indexed column fall back to scanning a
// bounded window of recent usable licenses.
const fuzzyScanWindow = 200

// VerificationService resolves public verification queries. Numbers arrive
// retyped from printed certificates, with legacy prefixes, unicode dashes,
// stray spaces and case drift, and older rows may carry the number only
// inside their attribute bag, so resolution cascades from exact match to
// progressively looser lookups.
type VerificationService struct {
	db               *gorm.DB
	config           *config.Config
	migrationService *MigrationService
}

// VerificationResult is the public payload: enough to confirm the license,
// nothing a competitor could mine. Detail carries the human-readable reason
// when valid is false.
type VerificationResult struct {
	Valid           bool   `json:"valid"`
	Status          string `json:"status"`
	Detail          string `json:"detail,omitempty"`
	LicenseNumber   string `json:"license_number"`
	HolderName      string `json:"holder_name"`
	CompanyName     string `json:"company_name,omitempty"`
	LicenseType     string `json:"license_type"`
	Subtype         string `json:"subtype,omitempty"`
	AuthorizedScope string `json:"authorized_scope,omitempty"`
	QRCodeData      string `json:"qr_code_data,omitempty"`
	IssuedDate      string `json:"issued_date,omitempty"`
	ExpiryDate      string `json:"expiry_date,omitempty"`
}

func NewVerificationService(db *gorm.DB, config *config.Config, migrationService *MigrationService) *VerificationService {
	return &VerificationService{
		db:               db,
		config:           config,
		migrationService: migrationService,
	}
}

// VerifyByToken resolves a signed QR token. Expired and malformed tokens
// are distinct failures; the caller maps them to distinct responses.
func (s *VerificationService) VerifyByToken(tokenString string) (*VerificationResult, error) {
	var claims qrTokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.JWT.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if id, parseErr := uuid.Parse(claims.Subject); parseErr == nil {
		var license models.License
		err := s.db.Preload("Owner").First(&license, "id = ?", id).Error
		if err == nil {
			return s.result(&license), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}

	if claims.LicenseNumber != "" {
		return s.VerifyByNumber(claims.LicenseNumber)
	}
	return nil, ErrNotFound
}

// VerifyByNumber resolves a license number through a cascade of
// progressively looser matches: indexed exact match, attribute-bag exact
// match, application-data match, substring match and finally a normalized
// scan of recent usable licenses. The first hit wins.
func (s *VerificationService) VerifyByNumber(query string) (*VerificationResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNotFound
	}

	steps := []func(string) (*models.License, error){
		s.matchExact,
		s.matchDataKeys,
		s.matchApplicationData,
		s.matchSubstring,
		s.matchNormalizedScan,
	}

	for _, step := range steps {
		license, err := step(query)
		if err != nil {
			return nil, err
		}
		if license != nil {
			s.afterMatch(license, query)
			return s.result(license), nil
		}
	}
	return nil, ErrNotFound
}

// afterMatch repairs what the lookup exposed: a row found only through its
// attribute bag gets the number promoted to the indexed column, and a
// legacy-numbered row gets migrated. Both writes are opportunistic.
func (s *VerificationService) afterMatch(license *models.License, query string) {
	if license.LicenseNumber == nil || *license.LicenseNumber == "" {
		number := license.Data.GetString("licenseNumber", "license_number", "registrationNumber", "registration_number")
		if number == "" {
			number = strings.ToUpper(normalizeDashes(query))
		}
		bestEffort("license number backfill", func() error {
			var taken int64
			if err := s.db.Model(&models.License{}).
				Where("license_number = ? AND id <> ?", number, license.ID).
				Count(&taken).Error; err != nil || taken > 0 {
				return err
			}
			license.LicenseNumber = &number
			return s.db.Save(license).Error
		})
	}

	if !isCanonicalNumber(license.NumberOrEmpty()) {
		s.migrationService.MigrateOne(license)
	}
}

// queryVariants expands the raw query into the spellings worth matching
// exactly: dash-normalized, case-folded, and the legacy CL prefix rewritten.
func queryVariants(query string) []string {
	base := []string{query, normalizeDashes(query)}
	if rewritten, ok := clToCanonical(normalizeDashes(query)); ok {
		base = append(base, rewritten)
	}

	seen := make(map[string]bool)
	var variants []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}
	for _, v := range base {
		add(v)
		add(strings.ToUpper(v))
		add(strings.ToLower(v))
	}
	return variants
}

func (s *VerificationService) matchExact(query string) (*models.License, error) {
	for _, variant := range queryVariants(query) {
		var license models.License
		err := s.db.Preload("Owner").
			Where("UPPER(license_number) = ?", strings.ToUpper(variant)).
			First(&license).Error
		if err == nil {
			return &license, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}
	return nil, nil
}

var numberDataKeys = []string{"licenseNumber", "license_number", "registrationNumber", "registration_number"}

func (s *VerificationService) matchDataKeys(query string) (*models.License, error) {
	for _, key := range numberDataKeys {
		for _, variant := range queryVariants(query) {
			var license models.License
			err := s.db.Preload("Owner").
				Where(datatypes.JSONQuery("data").Equals(variant, key)).
				First(&license).Error
			if err == nil {
				return &license, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("database error: %w", err)
			}
		}
	}
	return nil, nil
}

// matchApplicationData covers rows issued before the number was copied onto
// the license: the approved application's form still carries it, and the
// license is findable through the applicant and type.
func (s *VerificationService) matchApplicationData(query string) (*models.License, error) {
	for _, key := range numberDataKeys {
		for _, variant := range queryVariants(query) {
			var app models.Application
			err := s.db.Where("status = ?", models.ApplicationStatusApproved).
				Where(datatypes.JSONQuery("data").Equals(variant, key)).
				First(&app).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("database error: %w", err)
			}

			var license models.License
			err = s.db.Preload("Owner").
				Where("owner_id = ? AND license_type = ?", app.ApplicantID, app.LicenseType).
				First(&license).Error
			if err == nil {
				return &license, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("database error: %w", err)
			}
		}
	}
	return nil, nil
}

func (s *VerificationService) matchSubstring(query string) (*models.License, error) {
	needle := strings.ToUpper(normalizeDashes(strings.TrimSpace(query)))
	if len(needle) < 4 {
		return nil, nil
	}

	var license models.License
	err := s.db.Preload("Owner").
		Where("UPPER(license_number) LIKE ?", "%"+needle+"%").
		First(&license).Error
	if err == nil {
		return &license, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// The fragment may live only in the attribute bag.
	for _, key := range numberDataKeys {
		var bagged models.License
		err := s.db.Preload("Owner").
			Where(datatypes.JSONQuery("data").Likes("%"+needle+"%", key)).
			First(&bagged).Error
		if err == nil {
			return &bagged, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}
	return nil, nil
}

// matchNormalizedScan is the last resort: pull the most recent usable
// licenses and compare fully normalized numbers in memory, catching spacing
// and dash damage the indexed lookups cannot express.
func (s *VerificationService) matchNormalizedScan(query string) (*models.License, error) {
	normalized := normalizeNumber(query)
	if normalized == "" {
		return nil, nil
	}

	var candidates []models.License
	err := s.db.Preload("Owner").
		Where("status IN ?", []models.LicenseStatus{models.LicenseStatusActive, models.LicenseStatusApproved}).
		Order("created_at DESC").
		Limit(fuzzyScanWindow).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	for i := range candidates {
		license := &candidates[i]
		stored := []string{license.NumberOrEmpty()}
		for _, key := range numberDataKeys {
			stored = append(stored, license.Data.GetString(key))
		}
		for _, candidate := range stored {
			if candidate == "" {
				continue
			}
			if normalizeNumber(candidate) == normalized {
				return license, nil
			}
		}
	}
	return nil, nil
}

func (s *VerificationService) result(license *models.License) *VerificationResult {
	res := &VerificationResult{
		Valid:         license.IsActive(),
		Status:        string(license.Status),
		LicenseNumber: license.NumberOrEmpty(),
		HolderName:    holderName(license),
		CompanyName:   license.Data.GetString("companyName", "company_name"),
		LicenseType:   licenseTypeDisplay(license),
		Subtype:       license.Data.GetString("subtype"),
	}
	if res.LicenseNumber == "" {
		res.LicenseNumber = license.Data.GetString(numberDataKeys...)
	}
	if license.QRCodeData != nil {
		res.QRCodeData = *license.QRCodeData
	}
	if license.IssuedDate != nil {
		res.IssuedDate = license.IssuedDate.Format("2006-01-02")
	}
	if license.ExpiryDate != nil {
		res.ExpiryDate = license.ExpiryDate.Format("2006-01-02")
	}
	res.AuthorizedScope = authorizedScope(license)

	if !res.Valid {
		switch {
		case license.Status != models.LicenseStatusActive && license.Status != models.LicenseStatusApproved &&
			license.Status != models.LicenseStatusExpired:
			res.Detail = fmt.Sprintf("License is not approved; current status is %s", license.Status)
		case license.ExpiryDate != nil && license.ExpiryDate.Before(models.Today()):
			res.Detail = fmt.Sprintf("License expired on %s", license.ExpiryDate.Format("2006-01-02"))
		default:
			res.Detail = fmt.Sprintf("License is not currently valid; status is %s", license.Status)
		}
	}
	return res
}

// holderName prefers the registered person, then the registered business,
// then whatever contact identity is on file.
func holderName(license *models.License) string {
	name := strings.TrimSpace(strings.TrimSpace(license.Owner.FirstName) + " " + strings.TrimSpace(license.Owner.LastName))
	if name != "" {
		return name
	}
	if company := license.Data.GetString("companyName", "company_name"); company != "" {
		return company
	}
	if license.Owner.Email != "" {
		return license.Owner.Email
	}
	return license.Owner.Username
}

// licenseTypeDisplay renders the type with its grade when one is recorded,
// e.g. "Contractor License - Grade 1".
func licenseTypeDisplay(license *models.License) string {
	display := string(license.LicenseType)
	grade := license.Data.GetString("grade", "subtype")
	if grade == "" {
		return display
	}
	if !strings.HasPrefix(strings.ToLower(grade), "grade") {
		grade = "Grade " + grade
	}
	return display + " - " + grade
}

// authorizedScope summarizes what the holder may do: an explicit scope
// field wins, then declared work scopes, then the subtype, then the bare type.
func authorizedScope(license *models.License) string {
	if scope := license.Data.GetString("authorizedScope", "scope", "businessScope"); scope != "" {
		return scope
	}

	if raw, ok := license.Data["workScopes"]; ok {
		var scopes []string
		switch v := raw.(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					scopes = append(scopes, s)
				}
			}
		case []string:
			scopes = v
		case string:
			if v != "" {
				scopes = []string{v}
			}
		}
		if len(scopes) > 0 {
			for i, scope := range scopes {
				if !strings.Contains(strings.ToLower(scope), "construction") {
					scopes[i] = scope + " Construction"
				}
			}
			return strings.Join(scopes, ", ")
		}
	}

	if subtype := license.Data.GetString("subtype"); subtype != "" {
		return subtype
	}
	return string(license.LicenseType)
}
