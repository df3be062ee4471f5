// internal/handlers/errors.go
package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/addislicensing/backend/internal/services"
	"github.com/addislicensing/backend/internal/utils"
)

// handleServiceError maps domain errors to HTTP responses. Anything not in
// the taxonomy is a 500; validation wrapping is a 400.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "Resource")
	case errors.Is(err, services.ErrPermissionDenied):
		utils.ForbiddenResponse(c, "You do not have access to this resource")
	case errors.Is(err, services.ErrDuplicateLicense):
		utils.ConflictResponse(c, "A license of this type already exists for this account")
	case errors.Is(err, services.ErrDuplicateApplication):
		utils.ConflictResponse(c, "An open application of this type already exists")
	case errors.Is(err, services.ErrPaymentRequired):
		utils.ErrorResponse(c, 402, "PAYMENT_REQUIRED", "Payment must be verified before approval", nil)
	case errors.Is(err, services.ErrInvalidTransition):
		utils.ConflictResponse(c, "The requested state change is not allowed")
	case errors.Is(err, services.ErrApprovalRequired):
		utils.ForbiddenResponse(c, "License is not yet approved")
	case strings.Contains(err.Error(), "validation failed"),
		strings.Contains(err.Error(), "invalid image"),
		strings.Contains(err.Error(), "unknown"):
		utils.BadRequestResponse(c, err.Error(), nil)
	default:
		utils.InternalErrorResponse(c, "Internal server error")
	}
}

// requireUser pulls the authenticated user id out of the context.
func requireUser(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		utils.UnauthorizedResponse(c, "Invalid authentication context")
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a :id style path parameter.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid identifier", nil)
		return uuid.Nil, false
	}
	return id, true
}
