// internal/services/migration_service.go
package services

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/addislicensing/backend/internal/models"
)

// MigrationService rewrites legacy license numbers (CL-YYYY-NNNNNN and
// unpadded LIC-N) to the canonical shape. It is run from the admin CLI and
// opportunistically from verification lookups.
type MigrationService struct {
	db *gorm.DB
}

type MigrationOptions struct {
	// DryRun reports what would change without writing anything.
	DryRun bool
	// UpdateData also rewrites the licenseNumber key inside the attribute bag.
	UpdateData bool
}

type MigrationEntry struct {
	LicenseID string `json:"license_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
}

type MigrationReport struct {
	Total    int              `json:"total"`
	Migrated int              `json:"migrated"`
	Skipped  int              `json:"skipped"`
	Entries  []MigrationEntry `json:"entries"`
}

func NewMigrationService(db *gorm.DB) *MigrationService {
	return &MigrationService{db: db}
}

// MigrateLicenseNumbers walks every numbered license and canonicalizes the
// legacy ones. A legacy number whose canonical form is already taken by
// another row is skipped, never overwritten; re-running the migration is
// always safe.
func (s *MigrationService) MigrateLicenseNumbers(opts MigrationOptions) (*MigrationReport, error) {
	var licenses []models.License
	if err := s.db.Where("license_number IS NOT NULL").Order("created_at").Find(&licenses).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch licenses: %w", err)
	}

	report := &MigrationReport{Total: len(licenses)}
	for i := range licenses {
		license := &licenses[i]
		number := license.NumberOrEmpty()

		canonical, ok := canonicalizeLegacy(number, license.IssuedDate)
		if !ok {
			continue
		}

		entry := MigrationEntry{
			LicenseID: license.ID.String(),
			From:      number,
			To:        canonical,
		}

		var taken int64
		err := s.db.Model(&models.License{}).
			Where("license_number = ? AND id <> ?", canonical, license.ID).
			Count(&taken).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check conflict: %w", err)
		}
		if taken > 0 {
			entry.Skipped = true
			entry.Reason = "canonical number already in use"
			report.Skipped++
			report.Entries = append(report.Entries, entry)
			logrus.WithFields(logrus.Fields{
				"license_id": license.ID,
				"from":       number,
				"to":         canonical,
			}).Warn("Skipping license number migration, target in use")
			continue
		}

		if !opts.DryRun {
			if err := s.migrateOne(license, canonical, opts.UpdateData); err != nil {
				return report, err
			}
		}

		report.Migrated++
		report.Entries = append(report.Entries, entry)
	}

	return report, nil
}

// MigrateOne canonicalizes a single license in place. Used by the
// verification path when a lookup lands on a legacy-numbered row. Returns
// false when the number is already canonical or the target is taken.
func (s *MigrationService) MigrateOne(license *models.License) bool {
	canonical, ok := canonicalizeLegacy(license.NumberOrEmpty(), license.IssuedDate)
	if !ok {
		return false
	}

	var taken int64
	if err := s.db.Model(&models.License{}).
		Where("license_number = ? AND id <> ?", canonical, license.ID).
		Count(&taken).Error; err != nil || taken > 0 {
		return false
	}

	if err := s.migrateOne(license, canonical, true); err != nil {
		logrus.WithError(err).WithField("license_id", license.ID).Warn("Opportunistic migration failed")
		return false
	}
	return true
}

func (s *MigrationService) migrateOne(license *models.License, canonical string, updateData bool) error {
	previous := license.NumberOrEmpty()
	license.LicenseNumber = &canonical

	if license.Data == nil {
		license.Data = models.JSONB{}
	}
	// Keep the pre-migration number recoverable; printed certificates still
	// carry it.
	license.Data["previousLicenseNumber"] = previous
	if updateData {
		for _, key := range []string{"licenseNumber", "license_number", "registrationNumber", "registration_number"} {
			if license.Data.GetString(key) != "" {
				license.Data[key] = canonical
			}
		}
	}

	if err := s.db.Save(license).Error; err != nil {
		return fmt.Errorf("failed to migrate license %s: %w", license.ID, err)
	}
	return nil
}
