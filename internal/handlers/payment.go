// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/addislicensing/backend/internal/services"
	"github.com/addislicensing/backend/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req services.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	resp, err := h.paymentService.CreatePaymentIntent(userID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, resp)
}

func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req services.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format", err.Error())
		return
	}

	payment, err := h.paymentService.ConfirmPayment(userID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, payment)
}

func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	payment, err := h.paymentService.RecordCompletedPayment(userID, utils.IsStaffFromContext(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, payment)
}

func (h *PaymentHandler) GetPayments(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	payments, total, err := h.paymentService.ListPayments(userID, utils.IsStaffFromContext(c), params)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(payments, total, params))
}
