// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/handlers"
	"github.com/addislicensing/backend/internal/middleware"
	"github.com/addislicensing/backend/internal/services"
	"github.com/addislicensing/backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	notificationService := services.NewNotificationService(cfg)
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}

	authService := services.NewAuthService(db, cfg)
	licenseService := services.NewLicenseService(db, cfg, notificationService)
	applicationService := services.NewApplicationService(db, cfg, licenseService, storageService, notificationService, nil)
	paymentService := services.NewPaymentService(db, cfg, applicationService)
	migrationService := services.NewMigrationService(db)
	verificationService := services.NewVerificationService(db, cfg, migrationService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	licenseHandler := handlers.NewLicenseHandler(licenseService, storageService)
	applicationHandler := handlers.NewApplicationHandler(applicationService, licenseService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	verificationHandler := handlers.NewVerificationHandler(verificationService)
	adminHandler := handlers.NewAdminHandler(migrationService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Public verification. Rate limited, auth optional.
		v1.GET("/verify", middleware.VerificationRateLimit(), middleware.OptionalAuth(), verificationHandler.VerifyLicense)

		// License routes
		licenses := v1.Group("/licenses")
		licenses.Use(middleware.AuthRequired())
		{
			licenses.GET("", licenseHandler.GetLicenses)
			licenses.POST("", licenseHandler.CreateLicense)
			licenses.GET("/:id", licenseHandler.GetLicense)
			licenses.POST("/:id/activate", licenseHandler.ActivateLicense)
			licenses.POST("/:id/renew", licenseHandler.RenewLicense)
			licenses.POST("/:id/qr-code", licenseHandler.GenerateQRCode)
			licenses.GET("/:id/download", licenseHandler.DownloadLicense)
		}

		// Application routes
		applications := v1.Group("/applications")
		applications.Use(middleware.AuthRequired())
		{
			applications.GET("", applicationHandler.GetApplications)
			applications.POST("", applicationHandler.CreateApplication)
			applications.GET("/:id", applicationHandler.GetApplication)
			applications.POST("/:id/resubmit", applicationHandler.ResubmitApplication)
			applications.POST("/:id/photo", middleware.UploadRateLimit(), applicationHandler.UploadPhoto)
			applications.POST("/:id/documents", middleware.UploadRateLimit(), applicationHandler.UploadDocument)
			applications.GET("/:id/license", applicationHandler.GetApplicationLicense)

			// Staff review actions
			staff := applications.Group("")
			staff.Use(middleware.StaffRequired())
			{
				staff.POST("/:id/approve", applicationHandler.ApproveApplication)
				staff.POST("/:id/reject", applicationHandler.RejectApplication)
				staff.POST("/:id/request-info", applicationHandler.RequestInfo)
				staff.GET("/stats", applicationHandler.GetStats)
			}
		}

		// Payment routes
		payments := v1.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.GET("", paymentHandler.GetPayments)
			payments.POST("/intent", paymentHandler.CreatePaymentIntent)
			payments.POST("/confirm", paymentHandler.ConfirmPayment)
			payments.POST("/:id/record", middleware.StaffRequired(), paymentHandler.RecordPayment)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.StaffRequired())
		{
			admin.POST("/migrate-license-numbers", adminHandler.MigrateLicenseNumbers)
		}
	}

	return r
}
