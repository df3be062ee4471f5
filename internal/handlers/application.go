// internal/handlers/application.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/addislicensing/backend/internal/services"
	"github.com/addislicensing/backend/internal/utils"
)

type ApplicationHandler struct {
	applicationService *services.ApplicationService
	licenseService     *services.LicenseService
}

func NewApplicationHandler(applicationService *services.ApplicationService, licenseService *services.LicenseService) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
		licenseService:     licenseService,
	}
}

func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req services.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	app, err := h.applicationService.Create(userID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, app)
}

func (h *ApplicationHandler) GetApplications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	apps, total, err := h.applicationService.List(userID, utils.IsStaffFromContext(c), c.Query("status"), params)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(apps, total, params))
}

func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	app, err := h.applicationService.Get(id, userID, utils.IsStaffFromContext(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, app)
}

func (h *ApplicationHandler) ApproveApplication(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	app, err := h.applicationService.Approve(id, userID, utils.IsStaffFromContext(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, app)
}

func (h *ApplicationHandler) RejectApplication(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	app, err := h.applicationService.Reject(id, userID, utils.IsStaffFromContext(c), req.Reason)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, app)
}

func (h *ApplicationHandler) RequestInfo(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	app, err := h.applicationService.RequestInfo(id, userID, utils.IsStaffFromContext(c), req.Reason)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, app)
}

func (h *ApplicationHandler) ResubmitApplication(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	app, err := h.applicationService.Resubmit(id, userID, body)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, app)
}

func (h *ApplicationHandler) UploadPhoto(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	slot := c.PostForm("slot")
	if slot == "" {
		slot = "profile"
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "No file provided", nil)
		return
	}
	defer file.Close()

	app, err := h.applicationService.SetPhoto(id, userID, slot, file, header)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, app)
}

func (h *ApplicationHandler) UploadDocument(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "No file provided", nil)
		return
	}
	defer file.Close()

	doc, err := h.applicationService.AddDocument(id, userID, file, header)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, doc)
}

func (h *ApplicationHandler) GetApplicationLicense(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	license, err := h.licenseService.GetLicenseForApplication(id, userID, utils.IsStaffFromContext(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, license)
}

func (h *ApplicationHandler) GetStats(c *gin.Context) {
	stats, err := h.applicationService.Stats()
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, stats)
}
