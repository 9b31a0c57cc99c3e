package dtone

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gebv/airtime"
)

type lookupRequest struct {
	MobileNumber string `json:"mobile_number"`
	Page         int    `json:"page"`
	PerPage      int    `json:"per_page"`
}

// lookupCandidate operator returned by the mobile number lookup.
type lookupCandidate struct {
	ID         airtime.CarrierID `json:"id"`
	Name       string            `json:"name"`
	Identified bool              `json:"identified"`
}

type creditPartyIdentifier struct {
	MobileNumber string `json:"mobile_number"`
}

type transactionRequest struct {
	ExternalID            string                `json:"external_id"`
	ProductID             airtime.ProductID     `json:"product_id"`
	AutoConfirm           bool                  `json:"auto_confirm"`
	CreditPartyIdentifier creditPartyIdentifier `json:"credit_party_identifier"`
}

type statusClass struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type transactionStatus struct {
	ID      int64       `json:"id"`
	Message string      `json:"message"`
	Class   statusClass `json:"class"`
}

type transactionResponse struct {
	ID                    int64                 `json:"id"`
	ExternalID            string                `json:"external_id"`
	CreationDate          string                `json:"creation_date"`
	ConfirmationDate      string                `json:"confirmation_date"`
	Status                transactionStatus     `json:"status"`
	Product               airtime.Product       `json:"product"`
	Prices                airtime.Prices        `json:"prices"`
	CreditPartyIdentifier creditPartyIdentifier `json:"credit_party_identifier"`
}

// Status classes that end a transaction without delivery.
const (
	REJECTED  = "REJECTED"
	CANCELLED = "CANCELLED"
	DECLINED  = "DECLINED"
	REVERSED  = "REVERSED"
)

func (t *transactionResponse) rejected() bool {
	switch strings.ToUpper(t.Status.Class.Message) {
	case REJECTED, CANCELLED, DECLINED, REVERSED:
		return true
	}
	return false
}

type apiError struct {
	Code    interface{} `json:"code"`
	Message string      `json:"message"`
}

type errorsResponse struct {
	Errors []apiError `json:"errors"`
}

// parseAPIError extracts the first upstream error from a response body.
func parseAPIError(body []byte) (code, message string) {
	var er errorsResponse
	if err := json.Unmarshal(body, &er); err != nil || len(er.Errors) == 0 {
		return "", ""
	}
	if er.Errors[0].Code != nil {
		code = fmt.Sprint(er.Errors[0].Code)
	}
	return code, er.Errors[0].Message
}
