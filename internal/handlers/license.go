// internal/handlers/license.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/addislicensing/backend/internal/services"
	"github.com/addislicensing/backend/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
	storageService *services.StorageService
}

func NewLicenseHandler(licenseService *services.LicenseService, storageService *services.StorageService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
		storageService: storageService,
	}
}

func (h *LicenseHandler) CreateLicense(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req services.CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	license, err := h.licenseService.CreateLicense(userID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, license)
}

func (h *LicenseHandler) GetLicenses(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	licenses, total, err := h.licenseService.ListLicenses(userID, utils.IsStaffFromContext(c), params)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(licenses, total, params))
}

func (h *LicenseHandler) GetLicense(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	license, err := h.licenseService.GetLicense(id, userID, utils.IsStaffFromContext(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, license)
}

func (h *LicenseHandler) ActivateLicense(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	license, err := h.licenseService.Activate(id, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, license)
}

func (h *LicenseHandler) RenewLicense(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.RenewLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	app, err := h.licenseService.Renew(id, userID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, app)
}

func (h *LicenseHandler) GenerateQRCode(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	license, err := h.licenseService.GenerateQRCode(id, userID, c.Query("frontend_url"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"license_id":   license.ID,
		"qr_code_data": license.QRCodeData,
	})
}

func (h *LicenseHandler) DownloadLicense(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	license, err := h.licenseService.Download(id, userID, utils.IsStaffFromContext(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	payload := gin.H{
		"license": license,
	}
	if license.PhotoKey != "" {
		payload["photo_url"] = h.storageService.PublicURL(license.PhotoKey)
	}
	utils.SuccessResponse(c, payload)
}
