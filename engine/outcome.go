package engine

import (
	"github.com/gebv/airtime"
)

type OutcomeStatus string

const (
	PRODUCTS_LISTED               OutcomeStatus = "PRODUCTS_LISTED"
	PRODUCT_SELECTED              OutcomeStatus = "PRODUCT_SELECTED"
	NUMBER_NOT_RECOGNIZED         OutcomeStatus = "NUMBER_NOT_RECOGNIZED"
	DIRECTORY_UNAVAILABLE         OutcomeStatus = "DIRECTORY_UNAVAILABLE"
	NO_PRODUCTS                   OutcomeStatus = "NO_PRODUCTS"
	PURCHASED                     OutcomeStatus = "PURCHASED"
	PURCHASE_FAILED               OutcomeStatus = "PURCHASE_FAILED"
	REDIRECT                      OutcomeStatus = "REDIRECT"
	PAYMENT_CREATION_FAILED       OutcomeStatus = "PAYMENT_CREATION_FAILED"
	SESSION_EXPIRED               OutcomeStatus = "SESSION_EXPIRED"
	PAYMENT_FAILED                OutcomeStatus = "PAYMENT_FAILED"
	PAYMENT_PENDING               OutcomeStatus = "PAYMENT_PENDING"
	PURCHASE_FAILED_AFTER_PAYMENT OutcomeStatus = "PURCHASE_FAILED_AFTER_PAYMENT"
	CANCELLED                     OutcomeStatus = "CANCELLED"
	INVALID_REQUEST               OutcomeStatus = "INVALID_REQUEST"
)

// NextAction page the buyer is sent to after an outcome.
type NextAction string

const (
	NEXT_HOME              NextAction = "home"
	NEXT_PRODUCT_SELECTION NextAction = "product_selection"
	NEXT_REDIRECT          NextAction = "redirect"
	NEXT_CONTACT_SUPPORT   NextAction = "contact_support"
	NEXT_RECEIPT           NextAction = "receipt"
)

var outcomeNextActions = map[OutcomeStatus]NextAction{
	PRODUCTS_LISTED:               NEXT_PRODUCT_SELECTION,
	PRODUCT_SELECTED:              NEXT_PRODUCT_SELECTION,
	NUMBER_NOT_RECOGNIZED:         NEXT_HOME,
	DIRECTORY_UNAVAILABLE:         NEXT_HOME,
	NO_PRODUCTS:                   NEXT_HOME,
	PAYMENT_FAILED:                NEXT_HOME,
	SESSION_EXPIRED:               NEXT_HOME,
	CANCELLED:                     NEXT_HOME,
	INVALID_REQUEST:               NEXT_HOME,
	PAYMENT_CREATION_FAILED:       NEXT_PRODUCT_SELECTION,
	PURCHASE_FAILED:               NEXT_PRODUCT_SELECTION,
	REDIRECT:                      NEXT_REDIRECT,
	PURCHASE_FAILED_AFTER_PAYMENT: NEXT_CONTACT_SUPPORT,
	PAYMENT_PENDING:               NEXT_CONTACT_SUPPORT,
	PURCHASED:                     NEXT_RECEIPT,
}

var outcomeMessages = map[OutcomeStatus]string{
	PRODUCTS_LISTED:               "Choose the top-up you want to send.",
	PRODUCT_SELECTED:              "Confirm the top-up.",
	NUMBER_NOT_RECOGNIZED:         "We could not recognize this mobile number. Check the country code and try again.",
	DIRECTORY_UNAVAILABLE:         "The operator directory is not available right now. Please try again in a few minutes.",
	NO_PRODUCTS:                   "There are no top-ups available for this number yet.",
	PURCHASED:                     "Your top-up was sent.",
	PURCHASE_FAILED:               "The top-up could not be completed. You were not charged. Choose another product or try again.",
	REDIRECT:                      "Redirecting to the payment page.",
	PAYMENT_CREATION_FAILED:       "We could not start the payment. You were not charged. Please try again.",
	SESSION_EXPIRED:               "Your checkout has expired. You were not charged. Please start again.",
	PAYMENT_FAILED:                "The payment was not completed. You were not charged.",
	PURCHASE_FAILED_AFTER_PAYMENT: "Your payment was received but the top-up could not be delivered. Please contact support with the reference below, we will deliver it or refund you.",
	CANCELLED:                     "The payment was cancelled. You were not charged.",
	PAYMENT_PENDING:               "Your payment is being processed. Do not pay again. If the top-up does not arrive shortly, contact support with the reference below.",
	INVALID_REQUEST:               "Enter a mobile number with the country code, for example +15551234567.",
}

// Outcome result of one checkout step, rendered by the web surface.
type Outcome struct {
	Status      OutcomeStatus
	Message     string
	Next        NextAction
	Token       string
	PhoneNumber string
	RedirectURL string
	Products    []airtime.Product
	Product     *airtime.Product
	Transaction *airtime.TransactionRecord
	// Reference the buyer quotes to support.
	TransactionID string
	PaymentID     string
	// Upstream message shown next to Message, if any.
	Detail string
	Err    error
}

func newOutcome(status OutcomeStatus) *Outcome {
	return &Outcome{
		Status:  status,
		Message: outcomeMessages[status],
		Next:    outcomeNextActions[status],
	}
}

func (o *Outcome) withErr(err error) *Outcome {
	o.Err = err
	o.Detail = upstreamDetail(err)
	return o
}

// Terminal reports whether the checkout ended with this outcome.
func (o *Outcome) Terminal() bool {
	switch o.Status {
	case PURCHASED, PURCHASE_FAILED, PURCHASE_FAILED_AFTER_PAYMENT, PAYMENT_FAILED, PAYMENT_PENDING, CANCELLED, SESSION_EXPIRED:
		return true
	}
	return false
}
