// internal/handlers/admin.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/addislicensing/backend/internal/services"
	"github.com/addislicensing/backend/internal/utils"
)

type AdminHandler struct {
	migrationService *services.MigrationService
}

func NewAdminHandler(migrationService *services.MigrationService) *AdminHandler {
	return &AdminHandler{migrationService: migrationService}
}

// MigrateLicenseNumbers runs the legacy number migration. dry_run=true
// previews without writing.
func (h *AdminHandler) MigrateLicenseNumbers(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.Query("dry_run"))
	updateData := true
	if v := c.Query("update_data"); v != "" {
		updateData, _ = strconv.ParseBool(v)
	}

	report, err := h.migrationService.MigrateLicenseNumbers(services.MigrationOptions{
		DryRun:     dryRun,
		UpdateData: updateData,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, report)
}
