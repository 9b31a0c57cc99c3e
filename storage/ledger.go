package storage

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/reform.v1"

	"github.com/gebv/airtime"
)

// Ledger keeps the local copy of purchase results and the escalations
// of paid checkouts that were not delivered.
type Ledger struct {
	DB *reform.DB
	l  *zap.Logger
}

func NewLedger(db *reform.DB) *Ledger {
	return &Ledger{
		DB: db,
		l:  zap.L().Named("ledger"),
	}
}

func (s *Ledger) RecordTransaction(ctx context.Context, rec *airtime.TransactionRecord) error {
	if err := s.DB.WithContext(ctx).Save(rec); err != nil {
		return errors.Wrap(err, "Failed save transaction record")
	}
	return nil
}

func (s *Ledger) GetTransaction(ctx context.Context, transactionID string) (*airtime.TransactionRecord, error) {
	rec := &airtime.TransactionRecord{TransactionID: transactionID}
	if err := s.DB.WithContext(ctx).Reload(rec); err != nil {
		if err == reform.ErrNoRows {
			return nil, airtime.ErrNotFound
		}
		return nil, errors.Wrap(err, "Failed get transaction record")
	}
	return rec, nil
}

// Escalate stores the escalation once. Repeated calls for the same transaction are no-ops.
func (s *Ledger) Escalate(ctx context.Context, esc *airtime.Escalation) error {
	q := s.DB.WithContext(ctx)
	exists := &airtime.Escalation{TransactionID: esc.TransactionID}
	err := q.Reload(exists)
	switch err {
	case nil:
		s.l.Debug("escalation already recorded", zap.String("transaction_id", esc.TransactionID))
		return nil
	case reform.ErrNoRows:
	default:
		return errors.Wrap(err, "Failed get escalation")
	}
	if esc.Status == "" {
		esc.Status = airtime.OPEN_ES
	}
	if err := q.Insert(esc); err != nil {
		return errors.Wrap(err, "Failed insert escalation")
	}
	s.l.Warn("escalation recorded",
		zap.String("transaction_id", esc.TransactionID),
		zap.String("payment_id", esc.PaymentID),
		zap.String("reason", esc.Reason),
	)
	return nil
}

func (s *Ledger) GetEscalation(ctx context.Context, transactionID string) (*airtime.Escalation, error) {
	esc := &airtime.Escalation{TransactionID: transactionID}
	if err := s.DB.WithContext(ctx).Reload(esc); err != nil {
		if err == reform.ErrNoRows {
			return nil, airtime.ErrNotFound
		}
		return nil, errors.Wrap(err, "Failed get escalation")
	}
	return esc, nil
}

func (s *Ledger) ListEscalations(ctx context.Context, status airtime.EscalationStatus) ([]*airtime.Escalation, error) {
	q := s.DB.WithContext(ctx)
	list, err := q.SelectAllFrom(
		airtime.EscalationTable,
		"WHERE status = "+q.Placeholder(1)+" ORDER BY created_at",
		status,
	)
	if err != nil {
		return nil, errors.Wrap(err, "Failed list escalations")
	}
	res := make([]*airtime.Escalation, 0, len(list))
	for _, item := range list {
		res = append(res, item.(*airtime.Escalation))
	}
	return res, nil
}

func (s *Ledger) UpdateEscalation(ctx context.Context, esc *airtime.Escalation) error {
	if err := s.DB.WithContext(ctx).Update(esc); err != nil {
		if err == reform.ErrNoRows {
			return airtime.ErrNotFound
		}
		return errors.Wrap(err, "Failed update escalation")
	}
	return nil
}
