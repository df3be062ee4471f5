// internal/services/payment_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"gorm.io/gorm"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
	"github.com/addislicensing/backend/internal/utils"
)

type PaymentService struct {
	db                 *gorm.DB
	config             *config.Config
	applicationService *ApplicationService
}

type CreatePaymentIntentRequest struct {
	Amount        float64   `json:"amount" validate:"required,min=0.01"`
	Currency      string    `json:"currency,omitempty"`
	ApplicationID uuid.UUID `json:"application_id" validate:"required"`
}

type PaymentIntentResponse struct {
	ClientSecret string    `json:"client_secret"`
	PaymentID    uuid.UUID `json:"payment_id"`
	Status       string    `json:"status"`
}

type ConfirmPaymentRequest struct {
	PaymentID uuid.UUID `json:"payment_id" validate:"required"`
}

func NewPaymentService(db *gorm.DB, config *config.Config, applicationService *ApplicationService) *PaymentService {
	// Initialize Stripe
	stripe.Key = config.Payment.StripeSecretKey

	return &PaymentService{
		db:                 db,
		config:             config,
		applicationService: applicationService,
	}
}

// CreatePaymentIntent opens a Stripe payment for an application fee and
// records the pending Payment row that the confirmation step will settle.
func (s *PaymentService) CreatePaymentIntent(userID uuid.UUID, req *CreatePaymentIntentRequest) (*PaymentIntentResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var app models.Application
	if err := s.db.First(&app, "id = ?", req.ApplicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if app.ApplicantID != userID {
		return nil, ErrPermissionDenied
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	// Stripe amounts are in the smallest currency unit
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(req.Amount * 100)),
		Currency: stripe.String(currency),
	}
	params.AddMetadata("user_id", userID.String())
	params.AddMetadata("application_id", req.ApplicationID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	payment := &models.Payment{
		PayerID:  userID,
		Amount:   req.Amount,
		Currency: currency,
		Status:   models.PaymentStatusPending,
		Metadata: models.JSONB{
			"application_id": req.ApplicationID.String(),
		},
		ProviderRef: pi.ID,
	}
	if err := s.db.Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	return &PaymentIntentResponse{
		ClientSecret: pi.ClientSecret,
		PaymentID:    payment.ID,
		Status:       string(pi.Status),
	}, nil
}

// ConfirmPayment checks the provider's view of the payment and settles the
// local row. A succeeded payment triggers the payment-gated flow on the
// linked application.
func (s *PaymentService) ConfirmPayment(userID uuid.UUID, req *ConfirmPaymentRequest) (*models.Payment, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var payment models.Payment
	if err := s.db.First(&payment, "id = ?", req.PaymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if payment.PayerID != userID {
		return nil, ErrPermissionDenied
	}
	if payment.Status == models.PaymentStatusCompleted {
		return &payment, nil
	}

	pi, err := paymentintent.Get(payment.ProviderRef, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		payment.Status = models.PaymentStatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		payment.Status = models.PaymentStatusFailed
	default:
		return &payment, nil
	}

	if err := s.db.Save(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	if payment.Status == models.PaymentStatusCompleted {
		if err := s.HandleCompletedPayment(&payment); err != nil {
			return nil, err
		}
	}
	return &payment, nil
}

// RecordCompletedPayment settles a payment confirmed out of band (bank
// transfer, cashier desk). Staff only.
func (s *PaymentService) RecordCompletedPayment(actorID uuid.UUID, isStaff bool, paymentID uuid.UUID) (*models.Payment, error) {
	if !isStaff {
		return nil, ErrPermissionDenied
	}

	var payment models.Payment
	if err := s.db.First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if payment.Status == models.PaymentStatusCompleted {
		return &payment, nil
	}

	payment.Status = models.PaymentStatusCompleted
	if err := s.db.Save(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if err := s.HandleCompletedPayment(&payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// HandleCompletedPayment marks the linked application as payment-verified
// and, when auto approval is on, issues the renewal immediately. Safe to
// call more than once for the same payment.
func (s *PaymentService) HandleCompletedPayment(payment *models.Payment) error {
	appIDRaw := payment.Metadata.GetString("application_id")
	if appIDRaw == "" {
		return nil
	}
	appID, err := uuid.Parse(appIDRaw)
	if err != nil {
		return nil
	}

	var app models.Application
	if err := s.db.First(&app, "id = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("database error: %w", err)
	}

	if !app.PaymentVerified() {
		if app.Data == nil {
			app.Data = models.JSONB{}
		}
		app.Data["paymentVerified"] = true
		if err := s.db.Save(&app).Error; err != nil {
			return fmt.Errorf("failed to flag payment on application: %w", err)
		}
		actor := payment.PayerID
		s.applicationService.log(app.ID, &actor, "payment_verified",
			fmt.Sprintf("Payment of %.2f %s confirmed", payment.Amount, payment.Currency))
	}

	if s.config.Licensing.AutoApproval && app.IsRenewal && app.Status != models.ApplicationStatusApproved {
		if _, err := s.applicationService.ApproveFromPayment(app.ID); err != nil {
			return fmt.Errorf("auto approval failed: %w", err)
		}
	}
	return nil
}

func (s *PaymentService) ListPayments(userID uuid.UUID, isStaff bool, params utils.PaginationParams) ([]models.Payment, int64, error) {
	query := s.db.Model(&models.Payment{})
	if !isStaff {
		query = query.Where("payer_id = ?", userID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "amount", "status"})
	query = utils.ApplyPagination(query, params)

	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payments: %w", err)
	}
	return payments, total, nil
}
