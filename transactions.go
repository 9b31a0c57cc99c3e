package airtime

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate reform

// NewTransactionID idempotency key of a purchase attempt: millisecond epoch and 10 random hex chars.
func NewTransactionID() string {
	return NewTransactionIDAt(time.Now())
}

func NewTransactionIDAt(t time.Time) string {
	token := strings.Replace(uuid.New().String(), "-", "", -1)
	return strconv.FormatInt(t.UnixNano()/int64(time.Millisecond), 10) + token[:10]
}

//reform:transactions
type TransactionRecord struct {
	TransactionID      string          `reform:"transaction_id,pk"`
	UpstreamID         int64           `reform:"upstream_id"`
	ProductID          ProductID       `reform:"product_id"`
	PhoneNumber        string          `reform:"phone_number"`
	PaymentID          string          `reform:"payment_id"`
	StatusID           int64           `reform:"status_id"`
	StatusMessage      string          `reform:"status_message"`
	StatusClass        string          `reform:"status_class"`
	OperatorName       string          `reform:"operator_name"`
	ProductDescription string          `reform:"product_description"`
	RetailPrice        decimal.Decimal `reform:"retail_price"`
	WholesalePrice     decimal.Decimal `reform:"wholesale_price"`
	ConfirmedAt        *time.Time      `reform:"confirmed_at"`
	CreatedAt          time.Time       `reform:"created_at"`
}

func (r *TransactionRecord) BeforeInsert() error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

type EscalationStatus string

const (
	OPEN_ES     EscalationStatus = "open"
	RESOLVED_ES EscalationStatus = "resolved"
)

// Escalation paid checkout whose airtime was not delivered. Waits for reconciliation.
//reform:escalations
type Escalation struct {
	TransactionID string           `reform:"transaction_id,pk"`
	PaymentID     string           `reform:"payment_id"`
	PhoneNumber   string           `reform:"phone_number"`
	ProductID     ProductID        `reform:"product_id"`
	Amount        decimal.Decimal  `reform:"amount"`
	Currency      string           `reform:"currency"`
	Reason        string           `reform:"reason"`
	Status        EscalationStatus `reform:"status"`
	Attempts      int64            `reform:"attempts"`
	CreatedAt     time.Time        `reform:"created_at"`
	UpdatedAt     time.Time        `reform:"updated_at"`
}

func (e *Escalation) BeforeInsert() error {
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	return nil
}

func (e *Escalation) BeforeUpdate() error {
	e.UpdatedAt = time.Now().UTC()
	return nil
}
