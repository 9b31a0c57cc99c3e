package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/reform.v1"

	"github.com/gebv/airtime"
	"github.com/gebv/airtime/provider"
)

const (
	SANDBOX = "sandbox"
	LIVE    = "live"

	DefaultTimeout = 15 * time.Second
)

// BaseURL REST entrypoint of the mode.
func BaseURL(mode string) (string, error) {
	switch mode {
	case SANDBOX:
		return "https://api.sandbox.paypal.com", nil
	case LIVE:
		return "https://api.paypal.com", nil
	}
	return "", errors.Errorf("unknown paypal mode %q", mode)
}

type Config struct {
	EntrypointURL string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
}

// NewProvider payment gateway client. Payment states are kept in db.
func NewProvider(db *reform.DB, cfg Config, audit provider.Auditor, breaker *provider.Breaker) *Provider {
	cfg.EntrypointURL = strings.TrimRight(cfg.EntrypointURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if audit == nil {
		audit = provider.NopAuditor
	}
	return &Provider{
		cfg: cfg,
		c:   newClient(cfg, audit, breaker),
		s: &provider.Store{
			DB: db,
		},
		l: zap.L().Named("paypal_provider"),
	}
}

type Provider struct {
	cfg Config
	c   *client
	s   *provider.Store
	l   *zap.Logger
}

// CreatePayment registers a sale on the gateway and returns the url the buyer approves it on.
func (p *Provider) CreatePayment(ctx context.Context, req airtime.PaymentRequest) (*airtime.PaymentAuthorization, error) {
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	in := &paymentRequest{
		Intent: "sale",
		Payer:  payer{PaymentMethod: "paypal"},
		Transactions: []transaction{{
			Amount: amount{
				Total:    req.Amount.StringFixed(2),
				Currency: currency,
			},
			Description: req.Description,
			Custom:      req.PhoneNumber,
		}},
		RedirectURLs: redirectURLs{
			ReturnURL: req.ReturnURL,
			CancelURL: req.CancelURL,
		},
	}
	var out paymentResponse
	if err := p.c.POSTAndUnmarshalJson(ctx, "v1/payments/payment", in, &out); err != nil {
		p.l.Warn("create payment",
			zap.String("amount", in.Transactions[0].Amount.Total),
			zap.String("mobile_number", req.PhoneNumber),
			zap.Error(err),
		)
		return nil, p.upstreamError(airtime.ErrPaymentCreationFailed, err)
	}
	if out.ID == "" {
		return nil, &airtime.UpstreamError{
			Kind:    airtime.ErrPaymentCreationFailed,
			Vendor:  string(provider.PAYPAL),
			Message: "gateway returned no payment id",
		}
	}

	err := p.s.NewOrder(ctx, &provider.PaymentOrder{
		OrderNumber:       out.ID,
		PaymentSystemName: provider.PAYPAL,
		RawOrderStatus:    provider.CREATED_PS,
		Amount:            req.Amount,
		Currency:          currency,
		PhoneNumber:       req.PhoneNumber,
	})
	if err != nil {
		p.l.Error("create payment: save order", zap.String("payment_id", out.ID), zap.Error(err))
		return nil, errors.Wrap(airtime.ErrPaymentCreationFailed, err.Error())
	}

	approval := out.approvalURL()
	if approval == "" {
		p.l.Warn("create payment: no approval link", zap.String("payment_id", out.ID), zap.Any("links", out.Links))
		if err := p.s.SetStatus(ctx, out.ID, provider.PAYPAL, provider.FAILED_PS); err != nil {
			p.l.Warn("create payment: save failed status", zap.String("payment_id", out.ID), zap.Error(err))
		}
		return nil, &airtime.UpstreamError{
			Kind:    airtime.ErrPaymentCreationFailed,
			Vendor:  string(provider.PAYPAL),
			Message: "gateway returned no approval link",
		}
	}
	if err := p.s.SetStatus(ctx, out.ID, provider.PAYPAL, provider.AWAITING_APPROVAL_PS); err != nil {
		return nil, errors.Wrap(airtime.ErrPaymentCreationFailed, err.Error())
	}

	p.l.Debug("payment created", zap.String("payment_id", out.ID), zap.String("state", out.State))
	return &airtime.PaymentAuthorization{
		PaymentID:   out.ID,
		ApprovalURL: approval,
	}, nil
}

// ExecutePayment captures an approved payment. Only a payment awaiting approval is executed,
// and only by the request that claimed it.
//
// A payment another request is executing, or has executed, yields airtime.ErrPaymentInProgress.
// When the gateway cannot tell whether the funds were captured the order stays EXECUTING
// and airtime.ErrPaymentStateUnknown is returned.
func (p *Provider) ExecutePayment(ctx context.Context, paymentID, payerID string) error {
	o, err := p.s.GetByOrderID(ctx, paymentID, provider.PAYPAL)
	if err != nil {
		p.l.Warn("execute payment: get order", zap.String("payment_id", paymentID), zap.Error(err))
		return errors.Wrapf(airtime.ErrPaymentExecutionFailed, "payment %s: %s", paymentID, err)
	}
	// a token failure must not leave a claimed order behind
	if _, err := p.c.accessToken(ctx); err != nil {
		p.l.Warn("execute payment: access token", zap.String("payment_id", paymentID), zap.Error(err))
		return p.upstreamError(airtime.ErrPaymentExecutionFailed, err)
	}
	if err := p.claim(ctx, paymentID, o); err != nil {
		return err
	}

	var out paymentResponse
	err = p.c.POSTAndUnmarshalJson(ctx, "v1/payments/payment/"+paymentID+"/execute", &executeRequest{PayerID: payerID}, &out)
	// the request may have reached the gateway, so the buyer leaving does not stop the bookkeeping
	ctx = context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, provider.ErrCircuitOpen):
		// never sent
		p.setStatus(ctx, paymentID, provider.AWAITING_APPROVAL_PS)
		return p.upstreamError(airtime.ErrPaymentExecutionFailed, err)
	case provider.IsTransient(err), errors.Is(err, context.Canceled):
		p.l.Warn("execute payment: no answer, looking the payment up", zap.String("payment_id", paymentID), zap.Error(err))
		state, lerr := p.paymentState(ctx, paymentID)
		if lerr != nil {
			p.l.Error("execute payment: state unknown", zap.String("payment_id", paymentID), zap.Error(lerr))
			return p.upstreamError(airtime.ErrPaymentStateUnknown, err)
		}
		out.State = state
	case err != nil:
		p.l.Warn("execute payment", zap.String("payment_id", paymentID), zap.Error(err))
		p.setStatus(ctx, paymentID, provider.FAILED_PS)
		return p.upstreamError(airtime.ErrPaymentExecutionFailed, err)
	}

	switch out.State {
	case STATE_APPROVED:
	case STATE_FAILED:
		p.l.Warn("execute payment: failed", zap.String("payment_id", paymentID))
		p.setStatus(ctx, paymentID, provider.FAILED_PS)
		return &airtime.UpstreamError{
			Kind:       airtime.ErrPaymentExecutionFailed,
			Vendor:     string(provider.PAYPAL),
			StatusCode: http.StatusOK,
			Message:    "payment state " + out.State,
		}
	default:
		p.l.Error("execute payment: unexpected state", zap.String("payment_id", paymentID), zap.String("state", out.State))
		return &airtime.UpstreamError{
			Kind:       airtime.ErrPaymentStateUnknown,
			Vendor:     string(provider.PAYPAL),
			StatusCode: http.StatusOK,
			Message:    "payment state " + out.State,
		}
	}

	if err := p.s.SetStatus(ctx, paymentID, provider.PAYPAL, provider.EXECUTED_PS); err != nil {
		// the gateway has captured the funds, its answer wins
		p.l.Error("execute payment: save executed status", zap.String("payment_id", paymentID), zap.Error(err))
	}
	return nil
}

// claim moves the order to EXECUTING. Exactly one request wins the claim.
func (p *Provider) claim(ctx context.Context, paymentID string, o *provider.PaymentOrder) error {
	if o.RawOrderStatus == provider.AWAITING_APPROVAL_PS {
		err := p.s.SetStatus(ctx, paymentID, provider.PAYPAL, provider.EXECUTING_PS)
		if err == nil {
			return nil
		}
		if !errors.Is(err, airtime.ErrTransitionNotAllowed) {
			return errors.Wrapf(airtime.ErrPaymentExecutionFailed, "payment %s: %s", paymentID, err)
		}
		if o, err = p.s.GetByOrderID(ctx, paymentID, provider.PAYPAL); err != nil {
			return errors.Wrapf(airtime.ErrPaymentExecutionFailed, "payment %s: %s", paymentID, err)
		}
	}

	p.l.Warn("execute payment: not awaiting approval",
		zap.String("payment_id", paymentID),
		zap.String("status", string(o.RawOrderStatus)),
	)
	switch o.RawOrderStatus {
	case provider.EXECUTING_PS, provider.EXECUTED_PS:
		return errors.Wrapf(airtime.ErrPaymentInProgress, "payment %s is %s", paymentID, o.RawOrderStatus)
	}
	return errors.Wrapf(airtime.ErrPaymentExecutionFailed, "payment %s is %s", paymentID, o.RawOrderStatus)
}

// paymentState asks the gateway for the state of the payment.
func (p *Provider) paymentState(ctx context.Context, paymentID string) (string, error) {
	var out paymentResponse
	if err := p.c.GETAndUnmarshalJson(ctx, "v1/payments/payment/"+paymentID, &out); err != nil {
		return "", err
	}
	if out.State == "" {
		return "", errors.Errorf("payment %s: empty state", paymentID)
	}
	return out.State, nil
}

// PaymentTaken reports whether the buyer's funds are, or may be, captured for the payment.
func (p *Provider) PaymentTaken(ctx context.Context, paymentID string) (bool, error) {
	if paymentID == "" {
		return false, nil
	}
	o, err := p.s.GetByOrderID(ctx, paymentID, provider.PAYPAL)
	if err != nil {
		if errors.Is(err, airtime.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	switch o.RawOrderStatus {
	case provider.EXECUTING_PS, provider.EXECUTED_PS:
		return true, nil
	}
	return false, nil
}

// CancelPayment closes a payment the buyer declined. Unapproved payments expire on the gateway by themselves.
func (p *Provider) CancelPayment(ctx context.Context, paymentID string) error {
	if err := p.s.SetStatus(ctx, paymentID, provider.PAYPAL, provider.CANCELLED_PS); err != nil {
		p.l.Warn("cancel payment", zap.String("payment_id", paymentID), zap.Error(err))
		return err
	}
	return nil
}

func (p *Provider) setStatus(ctx context.Context, paymentID string, status provider.PaymentStatus) {
	if err := p.s.SetStatus(ctx, paymentID, provider.PAYPAL, status); err != nil {
		p.l.Warn("save payment status",
			zap.String("payment_id", paymentID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (p *Provider) upstreamError(kind, err error) error {
	ue := &airtime.UpstreamError{
		Kind:       kind,
		Vendor:     string(provider.PAYPAL),
		StatusCode: provider.StatusCode(err),
		Err:        err,
	}
	var he *provider.HTTPError
	if errors.As(err, &he) {
		var ae apiError
		if json.Unmarshal(he.Body, &ae) == nil {
			ue.Code, ue.Message = ae.Name, ae.Message
		}
	}
	return ue
}
