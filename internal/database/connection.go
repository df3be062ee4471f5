// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormConfig *gorm.Config

	// Configure GORM logger. TranslateError maps driver-level unique
	// violations to gorm.ErrDuplicatedKey, which the issuance retry loop
	// depends on.
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		}
	} else {
		gormConfig = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Info),
			TranslateError: true,
		}
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Run auto-migrations. The owner+license_type and license_number unique
	// indexes declared on the models are the correctness backstop for
	// issuance races; AutoMigrate creates them.
	err := db.AutoMigrate(
		&models.User{},
		&models.License{},
		&models.Application{},
		&models.ApplicationLog{},
		&models.Document{},
		&models.Payment{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create supporting indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)",
		"CREATE INDEX IF NOT EXISTS idx_users_is_staff ON users(is_staff)",

		// License indexes
		"CREATE INDEX IF NOT EXISTS idx_licenses_owner ON licenses(owner_id)",
		"CREATE INDEX IF NOT EXISTS idx_licenses_status_created ON licenses(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_licenses_expiry ON licenses(expiry_date)",

		// Application indexes
		"CREATE INDEX IF NOT EXISTS idx_applications_applicant_type ON applications(applicant_id, license_type)",
		"CREATE INDEX IF NOT EXISTS idx_applications_renewal ON applications(is_renewal, status)",
		"CREATE INDEX IF NOT EXISTS idx_application_logs_app_ts ON application_logs(application_id, timestamp DESC)",

		// Payment indexes
		"CREATE INDEX IF NOT EXISTS idx_payments_payer_status ON payments(payer_id, status)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}
