package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/reform.v1"

	"github.com/gebv/airtime"
)

// PaymentStatus local state of an external payment.
type PaymentStatus string

func (s PaymentStatus) Match(in PaymentStatus) bool {
	return s == in
}

const (
	CREATED_PS           PaymentStatus = "CREATED"
	AWAITING_APPROVAL_PS PaymentStatus = "AWAITING_APPROVAL"
	EXECUTING_PS         PaymentStatus = "EXECUTING"
	EXECUTED_PS          PaymentStatus = "EXECUTED"
	FAILED_PS            PaymentStatus = "FAILED"
	CANCELLED_PS         PaymentStatus = "CANCELLED"
)

var paymentStatusTransitionChart = PaymentStatusTransitionChart{
	CREATED_PS:           {AWAITING_APPROVAL_PS, FAILED_PS},
	AWAITING_APPROVAL_PS: {EXECUTING_PS, FAILED_PS, CANCELLED_PS},
	// EXECUTING_PS -> AWAITING_APPROVAL_PS only when the execute request was never sent
	EXECUTING_PS: {EXECUTED_PS, FAILED_PS, AWAITING_APPROVAL_PS},
}

type PaymentStatusTransitionChart map[PaymentStatus][]PaymentStatus

func (s PaymentStatusTransitionChart) Allowed(from, to PaymentStatus) bool {
	list, exists := s[from]
	if !exists {
		return false
	}
	for _, status := range list {
		if status.Match(to) {
			return true
		}
	}
	return false
}

type Store struct {
	DB *reform.DB
}

const (
	prefixOrderId = "airtime"
)

func (s *Store) NewOrder(ctx context.Context, o *PaymentOrder) error {
	o.OrderNumber = formatOrderID(o.PaymentSystemName, o.OrderNumber)
	if o.RawOrderStatus == "" {
		o.RawOrderStatus = CREATED_PS
	}
	if err := s.DB.WithContext(ctx).Insert(o); err != nil {
		return errors.Wrap(err, "Failed insert payment order")
	}
	return nil
}

func (s *Store) GetByOrderID(ctx context.Context, ordID string, providerName Provider) (*PaymentOrder, error) {
	so := &PaymentOrder{OrderNumber: formatOrderID(providerName, ordID)}
	err := s.DB.WithContext(ctx).Reload(so)
	if err != nil {
		if err == reform.ErrNoRows {
			return nil, airtime.ErrNotFound
		}
		return nil, errors.Wrap(err, "Failed get payment order")
	}
	return so, nil
}

// SetStatus moves the order to newStatus if the transition chart allows it
// and nobody changed the order in between.
func (s *Store) SetStatus(ctx context.Context, ordID string, providerName Provider, newStatus PaymentStatus) error {
	o, err := s.GetByOrderID(ctx, ordID, providerName)
	if err != nil {
		return err
	}
	if !paymentStatusTransitionChart.Allowed(o.RawOrderStatus, newStatus) {
		return errors.Wrapf(airtime.ErrTransitionNotAllowed, "payment %s: %s -> %s", ordID, o.RawOrderStatus, newStatus)
	}
	q := s.DB.WithContext(ctx)
	res, err := q.Exec(
		fmt.Sprintf(
			"UPDATE %s SET raw_order_status = %s, updated_at = %s WHERE order_number = %s AND raw_order_status = %s",
			q.QuoteIdentifier(PaymentOrderTable.Name()),
			q.Placeholder(1), q.Placeholder(2), q.Placeholder(3), q.Placeholder(4),
		),
		newStatus, time.Now().UTC(), o.OrderNumber, o.RawOrderStatus,
	)
	if err != nil {
		return errors.Wrap(err, "Failed update payment order status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "Failed update payment order status")
	}
	if n == 0 {
		return errors.Wrapf(airtime.ErrTransitionNotAllowed, "payment %s changed concurrently", ordID)
	}
	return nil
}

//go:generate reform

//reform:payment_orders
type PaymentOrder struct {
	OrderNumber       string          `reform:"order_number,pk"`
	PaymentSystemName Provider        `reform:"payment_system_name"`
	RawOrderStatus    PaymentStatus   `reform:"raw_order_status"`
	Amount            decimal.Decimal `reform:"amount"`
	Currency          string          `reform:"currency"`
	PhoneNumber       string          `reform:"phone_number"`
	CreatedAt         time.Time       `reform:"created_at"`
	UpdatedAt         time.Time       `reform:"updated_at"`
}

func (o *PaymentOrder) BeforeInsert() error {
	o.UpdatedAt = time.Now().UTC()
	o.CreatedAt = o.UpdatedAt
	return nil
}

func (o *PaymentOrder) BeforeUpdate() error {
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func formatOrderID(p Provider, extOrderID string) string {
	return prefixOrderId + fmt.Sprintf("-%s-%s", p, extOrderID)
}
