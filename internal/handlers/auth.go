// internal/handlers/auth.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/addislicensing/backend/internal/services"
	"github.com/addislicensing/backend/internal/utils"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	resp, err := h.authService.Register(&req)
	if err != nil {
		if strings.Contains(err.Error(), "validation failed") {
			utils.BadRequestResponse(c, "Validation failed", err.Error())
			return
		}
		if strings.Contains(err.Error(), "already") {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.InternalErrorResponse(c, "Registration failed")
		return
	}

	utils.CreatedResponse(c, resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		utils.UnauthorizedResponse(c, "Invalid email or password")
		return
	}

	utils.SuccessResponse(c, resp)
}
