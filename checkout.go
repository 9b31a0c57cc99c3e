package airtime

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutStatus string

func (s CheckoutStatus) Match(in CheckoutStatus) bool {
	return s == in
}

const (
	NEW_CS              CheckoutStatus = "new"
	PRODUCTS_LISTED_CS  CheckoutStatus = "products_listed"
	PRODUCT_SELECTED_CS CheckoutStatus = "product_selected"
	AWAITING_PAYMENT_CS CheckoutStatus = "awaiting_approval"
	PAYMENT_EXECUTED_CS CheckoutStatus = "payment_executed"

	// terminal
	PURCHASED_CS                     CheckoutStatus = "purchased"
	PAYMENT_FAILED_CS                CheckoutStatus = "payment_failed"
	PURCHASE_FAILED_AFTER_PAYMENT_CS CheckoutStatus = "purchase_failed_after_payment"
	CANCELLED_CS                     CheckoutStatus = "cancelled"
)

func (s CheckoutStatus) Terminal() bool {
	switch s {
	case PURCHASED_CS, PAYMENT_FAILED_CS, PURCHASE_FAILED_AFTER_PAYMENT_CS, CANCELLED_CS:
		return true
	}
	return false
}

// CheckoutSession state of one checkout between page loads, addressed by an opaque token.
type CheckoutSession struct {
	Token         string         `json:"token"`
	PhoneNumber   string         `json:"phone_number"`
	Email         string         `json:"email,omitempty"`
	CarrierID     *CarrierID     `json:"carrier_id,omitempty"`
	Products      []Product      `json:"products,omitempty"`
	ProductID     ProductID      `json:"product_id,omitempty"`
	PaymentID     string         `json:"payment_id,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Status        CheckoutStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

func (s *CheckoutSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SelectedProduct returns the selected product from the listed ones.
func (s *CheckoutSession) SelectedProduct() (*Product, bool) {
	if s.ProductID == "" {
		return nil, false
	}
	return FindProduct(s.Products, s.ProductID)
}

// PaymentAuthorization in-flight external payment waiting for the user approval.
type PaymentAuthorization struct {
	PaymentID   string
	ApprovalURL string
}

type PaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	PhoneNumber string
	Description string
	ReturnURL   string
	CancelURL   string
}

type PurchaseRequest struct {
	TransactionID string
	ProductID     ProductID
	PhoneNumber   string
}
