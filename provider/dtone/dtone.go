package dtone

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gebv/airtime"
	"github.com/gebv/airtime/provider"
)

const (
	lookupPerPage = 50

	DefaultTimeout = 15 * time.Second
)

type Config struct {
	EntrypointURL string
	UserName      string
	Password      string
	Timeout       time.Duration
}

// NewProvider client of the airtime directory and transaction API.
// audit and breaker may be nil.
func NewProvider(cfg Config, audit provider.Auditor, breaker *provider.Breaker) *Provider {
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
		l:   zap.L().Named("dtone_provider"),
	}
}

type Provider struct {
	cfg Config
	c   *client
	l   *zap.Logger
}

// LookupCarrier resolves a phone number to the first identified operator.
func (p *Provider) LookupCarrier(ctx context.Context, phoneNumber string) (airtime.CarrierID, error) {
	var candidates []lookupCandidate
	err := p.c.do(ctx, http.MethodPost, "lookup/mobile-number", nil, &lookupRequest{
		MobileNumber: phoneNumber,
		Page:         1,
		PerPage:      lookupPerPage,
	}, &candidates)
	if err != nil {
		switch provider.StatusCode(err) {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			p.l.Debug("lookup: number rejected", zap.String("mobile_number", phoneNumber), zap.Error(err))
			return 0, p.upstreamError(airtime.ErrLookupNotFound, err)
		}
		p.l.Warn("lookup: request failed", zap.String("mobile_number", phoneNumber), zap.Error(err))
		return 0, p.upstreamError(airtime.ErrDirectoryUnavailable, err)
	}

	var identified []airtime.CarrierID
	for _, c := range candidates {
		if c.Identified {
			identified = append(identified, c.ID)
		}
	}
	if len(identified) == 0 {
		return 0, airtime.ErrLookupNotFound
	}
	if len(identified) > 1 {
		ids := make([]int64, 0, len(identified))
		for _, id := range identified {
			ids = append(ids, int64(id))
		}
		p.l.Warn("lookup: several identified operators, first one is used",
			zap.String("mobile_number", phoneNumber),
			zap.Int64s("operator_ids", ids),
		)
	}
	return identified[0], nil
}

// ListProducts returns the catalog of the carrier. A nil carrier gives an empty list without a request.
func (p *Provider) ListProducts(ctx context.Context, carrierID *airtime.CarrierID) ([]airtime.Product, error) {
	if carrierID == nil {
		return nil, nil
	}
	q := url.Values{}
	q.Set("operator_id", carrierID.String())
	var products []airtime.Product
	if err := p.c.do(ctx, http.MethodGet, "products", q, nil, &products); err != nil {
		p.l.Warn("products: request failed", zap.Int64("operator_id", int64(*carrierID)), zap.Error(err))
		return nil, p.upstreamError(airtime.ErrDirectoryUnavailable, err)
	}
	return products, nil
}

// SubmitTransaction buys the product for the phone number, confirmed right away.
func (p *Provider) SubmitTransaction(ctx context.Context, req airtime.PurchaseRequest) (*airtime.TransactionRecord, error) {
	var tr transactionResponse
	err := p.c.do(ctx, http.MethodPost, "async/transactions", nil, &transactionRequest{
		ExternalID:  req.TransactionID,
		ProductID:   req.ProductID,
		AutoConfirm: true,
		CreditPartyIdentifier: creditPartyIdentifier{
			MobileNumber: req.PhoneNumber,
		},
	}, &tr)
	if err != nil {
		p.l.Warn("transaction: request failed",
			zap.String("external_id", req.TransactionID),
			zap.String("product_id", string(req.ProductID)),
			zap.Error(err),
		)
		return nil, p.upstreamError(airtime.ErrPurchaseRejectedUpstream, err)
	}
	if tr.rejected() {
		p.l.Warn("transaction: rejected",
			zap.String("external_id", req.TransactionID),
			zap.Int64("id", tr.ID),
			zap.String("status", tr.Status.Message),
		)
		return nil, &airtime.UpstreamError{
			Kind:       airtime.ErrPurchaseRejectedUpstream,
			Vendor:     string(provider.DTONE),
			StatusCode: http.StatusOK,
			Code:       tr.Status.Class.Message,
			Message:    tr.Status.Message,
		}
	}

	rec := &airtime.TransactionRecord{
		TransactionID:      req.TransactionID,
		UpstreamID:         tr.ID,
		ProductID:          req.ProductID,
		PhoneNumber:        req.PhoneNumber,
		StatusID:           tr.Status.ID,
		StatusMessage:      tr.Status.Message,
		StatusClass:        tr.Status.Class.Message,
		OperatorName:       tr.Product.Operator.Name,
		ProductDescription: tr.Product.Description,
		RetailPrice:        tr.Prices.Retail.Amount.OrZero(),
		WholesalePrice:     tr.Prices.Wholesale.Amount.OrZero(),
	}
	if tm, err := time.Parse(time.RFC3339Nano, tr.ConfirmationDate); err == nil {
		rec.ConfirmedAt = &tm
	}
	return rec, nil
}

func (p *Provider) upstreamError(kind, err error) error {
	ue := &airtime.UpstreamError{
		Kind:       kind,
		Vendor:     string(provider.DTONE),
		StatusCode: provider.StatusCode(err),
		Err:        err,
	}
	var he *provider.HTTPError
	if errors.As(err, &he) {
		ue.Code, ue.Message = parseAPIError(he.Body)
	}
	return ue
}
