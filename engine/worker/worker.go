package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/zap"

	"github.com/gebv/airtime"
)

const (
	ESCALATIONS_SUBJECT = "airtime.escalations"

	queueName    = "reconciler"
	flushTimeout = 2 * time.Second
)

// MessageEscalation paid checkout whose purchase was not delivered.
type MessageEscalation struct {
	TransactionID string            `json:"transaction_id"`
	PaymentID     string            `json:"payment_id"`
	PhoneNumber   string            `json:"phone_number"`
	ProductID     airtime.ProductID `json:"product_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Reason        string            `json:"reason"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func newMessageEscalation(esc *airtime.Escalation) *MessageEscalation {
	return &MessageEscalation{
		TransactionID: esc.TransactionID,
		PaymentID:     esc.PaymentID,
		PhoneNumber:   esc.PhoneNumber,
		ProductID:     esc.ProductID,
		Amount:        esc.Amount.String(),
		Currency:      esc.Currency,
		Reason:        esc.Reason,
		OccurredAt:    time.Now().UTC(),
	}
}

func (m *MessageEscalation) escalation() (*airtime.Escalation, error) {
	if m.TransactionID == "" {
		return nil, errors.New("empty transaction id")
	}
	esc := &airtime.Escalation{
		TransactionID: m.TransactionID,
		PaymentID:     m.PaymentID,
		PhoneNumber:   m.PhoneNumber,
		ProductID:     m.ProductID,
		Currency:      m.Currency,
		Reason:        m.Reason,
		Status:        airtime.OPEN_ES,
	}
	if m.Amount != "" {
		if err := esc.Amount.UnmarshalText([]byte(m.Amount)); err != nil {
			return nil, errors.Wrap(err, "Failed parse amount")
		}
	}
	return esc, nil
}

// Publisher notifies the reconciler of escalations over NATS.
// Core NATS drops messages nobody listens to, the ledger keeps the record.
type Publisher struct {
	nc *nats.Conn
	l  *zap.Logger
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{
		nc: nc,
		l:  zap.L().Named("escalation_publisher"),
	}
}

func (p *Publisher) Escalate(ctx context.Context, esc *airtime.Escalation) error {
	b, err := json.Marshal(newMessageEscalation(esc))
	if err != nil {
		return errors.Wrap(err, "Failed marshal escalation")
	}
	if err := p.nc.Publish(ESCALATIONS_SUBJECT, b); err != nil {
		return errors.Wrap(err, "Failed publish escalation")
	}
	if err := p.nc.FlushTimeout(flushTimeout); err != nil {
		return errors.Wrap(err, "Failed flush escalation")
	}
	p.l.Debug("escalation published", zap.String("transaction_id", esc.TransactionID))
	return nil
}

// EscalationStore persists escalations received from NATS.
type EscalationStore interface {
	Escalate(ctx context.Context, esc *airtime.Escalation) error
}

// SubToNATS stores every published escalation. Instances share the work through a queue group.
func SubToNATS(nc *nats.Conn, store EscalationStore) (*nats.Subscription, error) {
	h := escalationHandler(store, zap.L().Named("escalation_worker"))
	sub, err := nc.QueueSubscribe(ESCALATIONS_SUBJECT, queueName, func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed subscribe escalations")
	}
	return sub, nil
}

func escalationHandler(store EscalationStore, l *zap.Logger) func(data []byte) error {
	return func(data []byte) error {
		var m MessageEscalation
		if err := json.Unmarshal(data, &m); err != nil {
			l.Error("Failed unmarshal msg", zap.ByteString("data", data), zap.Error(err))
			return err
		}
		esc, err := m.escalation()
		if err != nil {
			l.Error("Invalid escalation msg", zap.ByteString("data", data), zap.Error(err))
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ctx, span := trace.StartSpan(ctx, "async.fromQueue.store."+ESCALATIONS_SUBJECT)
		defer span.End()
		span.AddAttributes(
			trace.StringAttribute("transaction_id", esc.TransactionID),
			trace.StringAttribute("payment_id", esc.PaymentID),
		)
		if err := store.Escalate(ctx, esc); err != nil {
			span.SetStatus(trace.Status{Code: trace.StatusCodeInternal, Message: err.Error()})
			l.Error("Failed store escalation",
				zap.String("transaction_id", esc.TransactionID),
				zap.String("payment_id", esc.PaymentID),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}
