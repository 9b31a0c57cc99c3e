package airtime

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CarrierID identifier of a mobile network operator in the upstream directory.
type CarrierID int64

func (id CarrierID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ProductID opaque identifier of a product. Upstream sends it as a number or a string.
type ProductID string

func (id *ProductID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.Wrap(err, "Failed unmarshal product id")
		}
		*id = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "Failed unmarshal product id")
	}
	*id = ProductID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers, as the upstream expects.
func (id ProductID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Amount is an optional decimal. JSON null, "" and a missing field are all absent.
type Amount struct {
	Decimal decimal.Decimal
	Valid   bool
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d, Valid: true}
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		a.Valid = false
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return errors.Wrap(err, "Failed unmarshal amount")
	}
	a.Decimal = d
	a.Valid = true
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return a.Decimal.MarshalJSON()
}

// OrZero returns the amount or zero when absent.
func (a Amount) OrZero() decimal.Decimal {
	if !a.Valid {
		return decimal.Zero
	}
	return a.Decimal
}

type Price struct {
	Amount Amount `json:"amount"`
	Fee    Amount `json:"fee"`
	Unit   string `json:"unit"`
}

type Prices struct {
	Retail    Price `json:"retail"`
	Wholesale Price `json:"wholesale"`
}

type Destination struct {
	Amount Amount `json:"amount"`
	Unit   string `json:"unit"`
}

type Operator struct {
	ID   CarrierID `json:"id"`
	Name string    `json:"name"`
}

// Product purchasable airtime denomination. Read-only, sourced from the directory.
type Product struct {
	ID          ProductID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Operator    Operator    `json:"operator"`
	Prices      Prices      `json:"prices"`
	Destination Destination `json:"destination"`
}

// TotalPayable retail price plus the transaction fee when the fee is present.
func (p Product) TotalPayable() decimal.Decimal {
	total := p.Prices.Retail.Amount.OrZero()
	if p.Prices.Retail.Fee.Valid {
		total = total.Add(p.Prices.Retail.Fee.Decimal)
	}
	return total
}

// Charge the total payable in cents, the amount a payment gateway is asked for.
func (p Product) Charge() decimal.Decimal {
	return p.TotalPayable().Round(2)
}

// Currency unit of the retail price, USD when upstream omits it.
func (p Product) Currency() string {
	if p.Prices.Retail.Unit == "" {
		return "USD"
	}
	return p.Prices.Retail.Unit
}

// FindProduct returns the product with the given id from list.
func FindProduct(list []Product, id ProductID) (*Product, bool) {
	for i := range list {
		if list[i].ID == id {
			return &list[i], true
		}
	}
	return nil, false
}
