// internal/handlers/verification.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/addislicensing/backend/internal/services"
)

// VerificationHandler serves the public, unauthenticated lookup endpoint.
type VerificationHandler struct {
	verificationService *services.VerificationService
}

func NewVerificationHandler(verificationService *services.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: verificationService}
}

// VerifyLicense resolves a license by signed token or by number. The body
// always carries a top-level valid flag, even on failure statuses, so
// third-party integrations get one shape to parse. A license that exists
// but is not currently usable still returns 200 with valid: false; the
// caller is told the truth about the record, not an error.
func (h *VerificationHandler) VerifyLicense(c *gin.Context) {
	token := c.Query("token")
	number := c.Query("licenseNumber")
	if number == "" {
		number = c.Query("license_number")
	}

	var result *services.VerificationResult
	var err error
	switch {
	case token != "":
		result, err = h.verificationService.VerifyByToken(token)
	case number != "":
		result, err = h.verificationService.VerifyByNumber(number)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "detail": "Provide a license number or a verification token"})
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "detail": "Verification token has expired"})
		case errors.Is(err, services.ErrTokenInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "detail": "Verification token is invalid"})
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"valid": false, "detail": "No license matches the supplied identifier"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "detail": "Verification failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
