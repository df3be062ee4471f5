// internal/models/payment.go
package models

import "github.com/google/uuid"

// Payment records a fee payment. When a completed payment references an
// application_id in its metadata, the payment-gated approval flow runs.
type Payment struct {
	BaseModel
	PayerID  uuid.UUID     `json:"payer_id" gorm:"type:uuid;not null;index"`
	Amount   float64       `json:"amount" gorm:"not null"`
	Currency string        `json:"currency" gorm:"size:10;default:'USD'"`
	Status   PaymentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Metadata JSONB         `json:"metadata" gorm:"type:jsonb"`

	// Stripe payment intent reference, empty for manually recorded payments.
	ProviderRef string `json:"provider_ref" gorm:"size:255"`

	Payer User `json:"payer,omitempty" gorm:"foreignKey:PayerID"`
}
