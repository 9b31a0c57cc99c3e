package engine

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gebv/airtime"
	"github.com/gebv/airtime/sessions"
	"github.com/gebv/airtime/storage"
	"github.com/gebv/airtime/storage/storagetest"
)

type fakeDirectory struct {
	carrier     airtime.CarrierID
	lookupErr   error
	products    []airtime.Product
	productsErr error

	lookups      int
	productCalls int
}

func (d *fakeDirectory) LookupCarrier(ctx context.Context, phoneNumber string) (airtime.CarrierID, error) {
	d.lookups++
	return d.carrier, d.lookupErr
}

func (d *fakeDirectory) ListProducts(ctx context.Context, carrierID *airtime.CarrierID) ([]airtime.Product, error) {
	d.productCalls++
	return d.products, d.productsErr
}

type fakeGateway struct {
	createErr  error
	executeErr error
	cancelErr  error
	takenErr   error

	created   []airtime.PaymentRequest
	executed  []string
	cancelled []string
	taken     map[string]bool
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req airtime.PaymentRequest) (*airtime.PaymentAuthorization, error) {
	g.created = append(g.created, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &airtime.PaymentAuthorization{
		PaymentID:   "PAY-1",
		ApprovalURL: "https://gw/checkoutnow?token=EC-1",
	}, nil
}

func (g *fakeGateway) ExecutePayment(ctx context.Context, paymentID, payerID string) error {
	g.executed = append(g.executed, paymentID+"/"+payerID)
	if g.executeErr == nil || errors.Is(g.executeErr, airtime.ErrPaymentStateUnknown) {
		g.take(paymentID)
	}
	return g.executeErr
}

func (g *fakeGateway) CancelPayment(ctx context.Context, paymentID string) error {
	g.cancelled = append(g.cancelled, paymentID)
	return g.cancelErr
}

func (g *fakeGateway) PaymentTaken(ctx context.Context, paymentID string) (bool, error) {
	return g.taken[paymentID], g.takenErr
}

func (g *fakeGateway) take(paymentID string) {
	if g.taken == nil {
		g.taken = map[string]bool{}
	}
	g.taken[paymentID] = true
}

type fakeSubmitter struct {
	errs  []error
	calls []airtime.PurchaseRequest
}

func (s *fakeSubmitter) SubmitTransaction(ctx context.Context, req airtime.PurchaseRequest) (*airtime.TransactionRecord, error) {
	s.calls = append(s.calls, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &airtime.TransactionRecord{
		TransactionID:  req.TransactionID,
		UpstreamID:     int64(len(s.calls)),
		ProductID:      req.ProductID,
		PhoneNumber:    req.PhoneNumber,
		StatusMessage:  "CONFIRMED",
		StatusClass:    "CONFIRMED",
		RetailPrice:    decimal.RequireFromString("10"),
		WholesalePrice: decimal.RequireFromString("9"),
	}, nil
}

type fakePublisher struct {
	err       error
	published []*airtime.Escalation
}

func (p *fakePublisher) Escalate(ctx context.Context, esc *airtime.Escalation) error {
	p.published = append(p.published, esc)
	return p.err
}

type fakeReceipts struct {
	mu   sync.Mutex
	sent map[string]string
}

func (r *fakeReceipts) SendReceipt(ctx context.Context, to string, rec *airtime.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string]string{}
	}
	r.sent[to] = rec.TransactionID
	return nil
}

var productFixtures = []airtime.Product{
	{
		ID:   "11",
		Name: "5 USD",
		Prices: airtime.Prices{Retail: airtime.Price{
			Amount: airtime.NewAmount(decimal.RequireFromString("10")),
			Fee:    airtime.NewAmount(decimal.RequireFromString("0.5")),
			Unit:   "USD",
		}},
	},
	{
		ID:   "12",
		Name: "10 USD",
		Prices: airtime.Prices{Retail: airtime.Price{
			Amount: airtime.NewAmount(decimal.RequireFromString("19.99")),
			Unit:   "USD",
		}},
	},
}

type testEnv struct {
	svc       *Service
	dir       *fakeDirectory
	gw        *fakeGateway
	sub       *fakeSubmitter
	pub       *fakePublisher
	receipts  *fakeReceipts
	sessions  *sessions.Store
	ledger    *storage.Ledger
	txCounter int
}

func newTestEnv(t *testing.T, mode Mode) *testEnv {
	t.Helper()
	ss, err := sessions.Open(filepath.Join(t.TempDir(), "sessions.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	env := &testEnv{
		dir:      &fakeDirectory{carrier: 42, products: productFixtures},
		gw:       &fakeGateway{},
		sub:      &fakeSubmitter{},
		pub:      &fakePublisher{},
		receipts: &fakeReceipts{},
		sessions: ss,
		ledger:   storage.NewLedger(storagetest.NewDB(t)),
	}
	env.svc, err = NewService(Options{
		Mode:        mode,
		Directory:   env.dir,
		Gateway:     env.gw,
		Submitter:   env.sub,
		Sessions:    env.sessions,
		Ledger:      env.ledger,
		Escalations: env.pub,
		Receipts:    env.receipts,
	})
	require.NoError(t, err)
	env.svc.newTxID = func() string {
		env.txCounter++
		return "tx-" + string(rune('0'+env.txCounter))
	}
	return env
}

func (e *testEnv) lookup(t *testing.T) string {
	t.Helper()
	o, err := e.svc.Lookup(context.Background(), "", "+1 555 123-4567")
	require.NoError(t, err)
	require.Equal(t, PRODUCTS_LISTED, o.Status, "%v", o.Err)
	return o.Token
}

func TestNewService(t *testing.T) {
	_, err := NewService(Options{Mode: GATEWAY_MODE, Directory: &fakeDirectory{}, Submitter: &fakeSubmitter{}, Sessions: &sessions.Store{}, Ledger: &storage.Ledger{}})
	assert.Error(t, err)

	_, err = NewService(Options{Directory: &fakeDirectory{}})
	assert.Error(t, err)

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, DIRECT_MODE, m)
	_, err = ParseMode("paypal")
	assert.Error(t, err)
}

func TestNormalizePhoneNumber(t *testing.T) {
	cases := map[string]string{
		"+15551234567":       "+15551234567",
		" +1 (555) 123-4567 ": "+15551234567",
		"0044 20 7946 0958":  "+442079460958",
		"2348031234567":      "+2348031234567",
	}
	for in, want := range cases {
		got, err := NormalizePhoneNumber(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "+", "abc", "+0123456", "+1234", "+1234567890123456"} {
		_, err := NormalizePhoneNumber(in)
		assert.True(t, errors.Is(err, airtime.ErrInvalidPhoneNumber), in)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("products listed", func(t *testing.T) {
		env := newTestEnv(t, DIRECT_MODE)
		o, err := env.svc.Lookup(ctx, "", "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, PRODUCTS_LISTED, o.Status)
		assert.Equal(t, NEXT_PRODUCT_SELECTION, o.Next)
		assert.Len(t, o.Products, 2)

		sess, err := env.sessions.Get(ctx, o.Token)
		require.NoError(t, err)
		assert.Equal(t, airtime.PRODUCTS_LISTED_CS, sess.Status)
		require.NotNil(t, sess.CarrierID)
		assert.EqualValues(t, 42, *sess.CarrierID)

		// same number keeps the token, another number starts over
		again, err := env.svc.Lookup(ctx, o.Token, "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, o.Token, again.Token)
		other, err := env.svc.Lookup(ctx, o.Token, "+15550000000")
		require.NoError(t, err)
		assert.NotEqual(t, o.Token, other.Token)
		_, err = env.sessions.Get(ctx, o.Token)
		assert.Equal(t, airtime.ErrSessionNotFound, err)
	})

	t.Run("number not recognized", func(t *testing.T) {
		env := newTestEnv(t, DIRECT_MODE)
		env.dir.lookupErr = airtime.ErrLookupNotFound
		o, err := env.svc.Lookup(ctx, "", "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, NUMBER_NOT_RECOGNIZED, o.Status)
		assert.Equal(t, NEXT_HOME, o.Next)
		assert.Empty(t, o.Token)
		assert.Equal(t, 0, env.dir.productCalls)
	})

	t.Run("directory unavailable", func(t *testing.T) {
		env := newTestEnv(t, DIRECT_MODE)
		env.dir.lookupErr = &airtime.UpstreamError{Kind: airtime.ErrDirectoryUnavailable, Vendor: "dtone", StatusCode: 503}
		o, err := env.svc.Lookup(ctx, "", "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, DIRECTORY_UNAVAILABLE, o.Status)
		assert.Equal(t, 0, env.dir.productCalls)

		env.dir.lookupErr = nil
		env.dir.productsErr = &airtime.UpstreamError{Kind: airtime.ErrDirectoryUnavailable, Vendor: "dtone"}
		o, err = env.svc.Lookup(ctx, "", "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, DIRECTORY_UNAVAILABLE, o.Status)
	})

	t.Run("no products", func(t *testing.T) {
		env := newTestEnv(t, DIRECT_MODE)
		env.dir.products = nil
		o, err := env.svc.Lookup(ctx, "", "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, NO_PRODUCTS, o.Status)
		assert.True(t, errors.Is(o.Err, airtime.ErrNoProductsAvailable))
	})

	t.Run("invalid number", func(t *testing.T) {
		env := newTestEnv(t, DIRECT_MODE)
		o, err := env.svc.Lookup(ctx, "", "call me")
		require.NoError(t, err)
		assert.Equal(t, INVALID_REQUEST, o.Status)
		assert.Equal(t, 0, env.dir.lookups)
	})
}

func TestSelectProduct(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DIRECT_MODE)
	token := env.lookup(t)

	o, err := env.svc.SelectProduct(ctx, token, "404")
	require.NoError(t, err)
	assert.Equal(t, PRODUCTS_LISTED, o.Status)
	assert.True(t, errors.Is(o.Err, airtime.ErrProductNotListed))

	o, err = env.svc.SelectProduct(ctx, token, "12")
	require.NoError(t, err)
	assert.Equal(t, PRODUCT_SELECTED, o.Status)
	require.NotNil(t, o.Product)
	assert.Equal(t, "10 USD", o.Product.Name)

	o, err = env.svc.SelectProduct(ctx, "gone", "12")
	require.NoError(t, err)
	assert.Equal(t, SESSION_EXPIRED, o.Status)
}

func TestPurchaseDirect_Purchased(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DIRECT_MODE)
	token := env.lookup(t)

	_, err := env.svc.SelectProduct(ctx, token, "11")
	require.NoError(t, err)
	o, err := env.svc.PurchaseDirect(ctx, token, "", "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, PURCHASED, o.Status)
	assert.Equal(t, NEXT_RECEIPT, o.Next)
	assert.Equal(t, "tx-1", o.TransactionID)
	require.NotNil(t, o.Transaction)

	require.Len(t, env.sub.calls, 1)
	assert.Equal(t, airtime.PurchaseRequest{TransactionID: "tx-1", ProductID: "11", PhoneNumber: "+15551234567"}, env.sub.calls[0])

	rec, err := env.ledger.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", rec.PhoneNumber)
	assert.Equal(t, "tx-1", env.receipts.sent["buyer@example.com"])

	_, err = env.sessions.Get(ctx, token)
	assert.Equal(t, airtime.ErrSessionNotFound, err)

	assert.EqualValues(t, 1, testutil.ToFloat64(env.svc.m.outcomes.WithLabelValues("direct", "PURCHASED")))
}

func TestPurchaseDirect_Failed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DIRECT_MODE)
	token := env.lookup(t)
	env.sub.errs = []error{&airtime.UpstreamError{
		Kind:       airtime.ErrPurchaseRejectedUpstream,
		Vendor:     "dtone",
		StatusCode: 400,
		Message:    "Insufficient balance",
	}}

	o, err := env.svc.PurchaseDirect(ctx, token, "11", "")
	require.NoError(t, err)
	assert.Equal(t, PURCHASE_FAILED, o.Status)
	assert.Equal(t, NEXT_PRODUCT_SELECTION, o.Next)
	assert.Equal(t, "Insufficient balance", o.Detail)
	assert.Len(t, o.Products, 2)
	assert.True(t, errors.Is(o.Err, airtime.ErrPurchaseRejectedUpstream))

	// buyer picks again, a new attempt gets a new transaction id
	o, err = env.svc.PurchaseDirect(ctx, token, "12", "")
	require.NoError(t, err)
	assert.Equal(t, PURCHASED, o.Status)
	require.Len(t, env.sub.calls, 2)
	assert.NotEqual(t, env.sub.calls[0].TransactionID, env.sub.calls[1].TransactionID)

	_, err = env.ledger.GetTransaction(ctx, env.sub.calls[0].TransactionID)
	assert.Equal(t, airtime.ErrNotFound, err)
}

func TestPurchaseDirect_GatewayMode(t *testing.T) {
	env := newTestEnv(t, GATEWAY_MODE)
	token := env.lookup(t)
	_, err := env.svc.PurchaseDirect(context.Background(), token, "11", "")
	assert.True(t, errors.Is(err, airtime.ErrNotSupported))
	assert.Empty(t, env.sub.calls)
}

func startPayment(t *testing.T, env *testEnv) (string, *url.URL) {
	t.Helper()
	token := env.lookup(t)
	o, err := env.svc.StartPayment(context.Background(), token, "11", "buyer@example.com", "https://shop.example/")
	require.NoError(t, err)
	require.Equal(t, REDIRECT, o.Status, "%v", o.Err)
	assert.Equal(t, "https://gw/checkoutnow?token=EC-1", o.RedirectURL)

	require.Len(t, env.gw.created, 1)
	req := env.gw.created[0]
	assert.True(t, decimal.RequireFromString("10.5").Equal(req.Amount))
	assert.Equal(t, "USD", req.Currency)
	u, err := url.Parse(req.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "shop.example", u.Host)
	assert.Equal(t, "/execute_payment", u.Path)
	assert.Equal(t, "+15551234567", u.Query().Get("customer_msisdn"))
	assert.Equal(t, "10.50", u.Query().Get("amount"))
	assert.Equal(t, token, u.Query().Get("checkout"))
	assert.True(t, strings.HasPrefix(req.CancelURL, "https://shop.example/cancel_payment?checkout="))
	return token, u
}

func callbackOf(u *url.URL) Callback {
	q := u.Query()
	return Callback{
		Token:       q.Get("checkout"),
		PaymentID:   "PAY-1",
		PayerID:     "PAYER-9",
		PhoneNumber: q.Get("customer_msisdn"),
		Amount:      q.Get("amount"),
	}
}

func TestGateway_Purchased(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	token, u := startPayment(t, env)

	sess, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, airtime.AWAITING_PAYMENT_CS, sess.Status)
	assert.Equal(t, "PAY-1", sess.PaymentID)

	o, err := env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PURCHASED, o.Status)
	assert.Equal(t, []string{"PAY-1/PAYER-9"}, env.gw.executed)
	require.Len(t, env.sub.calls, 1)

	rec, err := env.ledger.GetTransaction(ctx, o.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "PAY-1", rec.PaymentID)
	assert.Equal(t, o.TransactionID, env.receipts.sent["buyer@example.com"])

	// replayed callback finds no checkout and executes nothing
	o, err = env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PAYMENT_PENDING, o.Status)
	assert.Equal(t, NEXT_CONTACT_SUPPORT, o.Next)
	assert.NotContains(t, o.Message, "not charged")
	assert.Equal(t, "PAY-1", o.PaymentID)
	assert.Len(t, env.gw.executed, 1)
	assert.Len(t, env.sub.calls, 1)
}

func TestGateway_PaymentCreationFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	token := env.lookup(t)
	env.gw.createErr = &airtime.UpstreamError{Kind: airtime.ErrPaymentCreationFailed, Vendor: "paypal", StatusCode: 400}

	o, err := env.svc.StartPayment(ctx, token, "11", "", "https://shop.example")
	require.NoError(t, err)
	assert.Equal(t, PAYMENT_CREATION_FAILED, o.Status)
	assert.Equal(t, NEXT_PRODUCT_SELECTION, o.Next)
	assert.Len(t, o.Products, 2)

	sess, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, airtime.PRODUCT_SELECTED_CS, sess.Status)
}

func TestGateway_PaymentFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	token, u := startPayment(t, env)
	env.gw.executeErr = &airtime.UpstreamError{
		Kind:    airtime.ErrPaymentExecutionFailed,
		Vendor:  "paypal",
		Code:    "INSTRUMENT_DECLINED",
		Message: "The instrument was declined",
	}

	o, err := env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PAYMENT_FAILED, o.Status)
	assert.Equal(t, NEXT_HOME, o.Next)
	assert.Equal(t, "The instrument was declined", o.Detail)
	assert.Empty(t, env.sub.calls)

	_, err = env.sessions.Get(ctx, token)
	assert.Equal(t, airtime.ErrSessionNotFound, err)
}

func TestGateway_CallbackMismatch(t *testing.T) {
	cases := map[string]func(cb *Callback){
		"payment id": func(cb *Callback) { cb.PaymentID = "PAY-2" },
		"amount":     func(cb *Callback) { cb.Amount = "0.01" },
		"msisdn":     func(cb *Callback) { cb.PhoneNumber = "+15550000000" },
	}
	for name, tamper := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, GATEWAY_MODE)
			_, u := startPayment(t, env)
			cb := callbackOf(u)
			tamper(&cb)

			o, err := env.svc.CompletePayment(context.Background(), cb)
			require.NoError(t, err)
			assert.Equal(t, PAYMENT_FAILED, o.Status)
			assert.Empty(t, env.gw.executed)
			assert.Empty(t, env.sub.calls)
		})
	}
}

func TestGateway_SessionExpired(t *testing.T) {
	env := newTestEnv(t, GATEWAY_MODE)
	_, u := startPayment(t, env)
	cb := callbackOf(u)
	cb.Token = "unknown"

	o, err := env.svc.CompletePayment(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, SESSION_EXPIRED, o.Status)
	assert.Equal(t, NEXT_HOME, o.Next)
	assert.Empty(t, env.gw.executed)
	assert.Empty(t, env.sub.calls)
}

func TestGateway_PurchaseFailedAfterPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	_, u := startPayment(t, env)
	env.sub.errs = []error{&airtime.UpstreamError{
		Kind:    airtime.ErrPurchaseRejectedUpstream,
		Vendor:  "dtone",
		Message: "Operator is down",
	}}

	o, err := env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PURCHASE_FAILED_AFTER_PAYMENT, o.Status)
	assert.NotEqual(t, PURCHASE_FAILED, o.Status)
	assert.Equal(t, NEXT_CONTACT_SUPPORT, o.Next)
	assert.True(t, errors.Is(o.Err, airtime.ErrPurchaseFailedAfterPayment))
	assert.Equal(t, "Operator is down", o.Detail)
	assert.NotEmpty(t, o.TransactionID)

	require.Len(t, env.pub.published, 1)
	esc := env.pub.published[0]
	assert.Equal(t, o.TransactionID, esc.TransactionID)
	assert.Equal(t, "PAY-1", esc.PaymentID)
	assert.EqualValues(t, "11", esc.ProductID)
	assert.True(t, decimal.RequireFromString("10.5").Equal(esc.Amount))

	// the ledger row does not depend on anyone listening
	stored, err := env.ledger.GetEscalation(ctx, o.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, airtime.OPEN_ES, stored.Status)
	assert.Equal(t, "PAY-1", stored.PaymentID)
}

func TestGateway_EscalationRecordedWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	_, u := startPayment(t, env)
	env.sub.errs = []error{errors.New("boom")}
	env.pub.err = errors.New("nats: connection closed")

	o, err := env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PURCHASE_FAILED_AFTER_PAYMENT, o.Status)

	esc, err := env.ledger.GetEscalation(ctx, o.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, airtime.OPEN_ES, esc.Status)
	assert.Equal(t, "PAY-1", esc.PaymentID)
}

func TestGateway_Cancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	token, _ := startPayment(t, env)

	o, err := env.svc.CancelPayment(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, CANCELLED, o.Status)
	assert.Equal(t, []string{"PAY-1"}, env.gw.cancelled)
	_, err = env.sessions.Get(ctx, token)
	assert.Equal(t, airtime.ErrSessionNotFound, err)

	o, err = env.svc.CancelPayment(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, CANCELLED, o.Status)
	assert.Len(t, env.gw.cancelled, 1)
}

func TestRetryEscalation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	require.NoError(t, env.ledger.Escalate(ctx, &airtime.Escalation{
		TransactionID: "1709287200123abcdef0123",
		PaymentID:     "PAY-1",
		PhoneNumber:   "+15551234567",
		ProductID:     "11",
		Amount:        decimal.RequireFromString("10.5"),
		Currency:      "USD",
		Reason:        "timeout",
	}))
	env.sub.errs = []error{&airtime.UpstreamError{Kind: airtime.ErrPurchaseRejectedUpstream, Vendor: "dtone", Message: "still down"}}

	o, err := env.svc.RetryEscalation(ctx, "1709287200123abcdef0123")
	require.NoError(t, err)
	assert.Equal(t, PURCHASE_FAILED_AFTER_PAYMENT, o.Status)
	esc, err := env.ledger.GetEscalation(ctx, "1709287200123abcdef0123")
	require.NoError(t, err)
	assert.Equal(t, airtime.OPEN_ES, esc.Status)
	assert.EqualValues(t, 1, esc.Attempts)
	assert.Contains(t, esc.Reason, "still down")

	o, err = env.svc.RetryEscalation(ctx, "1709287200123abcdef0123")
	require.NoError(t, err)
	assert.Equal(t, PURCHASED, o.Status)
	require.Len(t, env.sub.calls, 2)
	for _, c := range env.sub.calls {
		assert.Equal(t, "1709287200123abcdef0123", c.TransactionID)
	}

	esc, err = env.ledger.GetEscalation(ctx, "1709287200123abcdef0123")
	require.NoError(t, err)
	assert.Equal(t, airtime.RESOLVED_ES, esc.Status)
	assert.EqualValues(t, 2, esc.Attempts)
	rec, err := env.ledger.GetTransaction(ctx, "1709287200123abcdef0123")
	require.NoError(t, err)
	assert.Equal(t, "PAY-1", rec.PaymentID)

	open, err := env.svc.OpenEscalations(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = env.svc.RetryEscalation(ctx, "1709287200123abcdef0123")
	assert.True(t, errors.Is(err, airtime.ErrTransitionNotAllowed))
	_, err = env.svc.RetryEscalation(ctx, "missing")
	assert.Equal(t, airtime.ErrNotFound, err)
}

func TestCheckoutStatusTransitionChart(t *testing.T) {
	assert.True(t, checkoutStatusTransitionChart.Allowed(airtime.NEW_CS, airtime.PRODUCTS_LISTED_CS))
	assert.True(t, checkoutStatusTransitionChart.Allowed(airtime.PAYMENT_EXECUTED_CS, airtime.PURCHASE_FAILED_AFTER_PAYMENT_CS))
	assert.False(t, checkoutStatusTransitionChart.Allowed(airtime.AWAITING_PAYMENT_CS, airtime.PURCHASED_CS))
	assert.False(t, checkoutStatusTransitionChart.Allowed(airtime.PURCHASED_CS, airtime.PRODUCTS_LISTED_CS))
	assert.False(t, checkoutStatusTransitionChart.Allowed(airtime.NEW_CS, airtime.PAYMENT_EXECUTED_CS))
}

func TestGateway_SubCentCharge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	env.dir.products = []airtime.Product{{
		ID:   "21",
		Name: "1 USD",
		Prices: airtime.Prices{Retail: airtime.Price{
			Amount: airtime.NewAmount(decimal.RequireFromString("1.005")),
			Fee:    airtime.NewAmount(decimal.RequireFromString("0.10")),
			Unit:   "USD",
		}},
	}}
	token := env.lookup(t)

	o, err := env.svc.StartPayment(ctx, token, "21", "", "https://shop.example")
	require.NoError(t, err)
	require.Equal(t, REDIRECT, o.Status, "%v", o.Err)
	require.Len(t, env.gw.created, 1)
	assert.Equal(t, "1.11", env.gw.created[0].Amount.String())
	u, err := url.Parse(env.gw.created[0].ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "1.11", u.Query().Get("amount"))

	o, err = env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PURCHASED, o.Status, "%v", o.Err)
	assert.Len(t, env.gw.executed, 1)
	assert.Len(t, env.sub.calls, 1)
}

func TestGateway_PaymentStateUnknown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	token, u := startPayment(t, env)
	env.gw.executeErr = &airtime.UpstreamError{
		Kind:   airtime.ErrPaymentStateUnknown,
		Vendor: "paypal",
		Err:    errors.New("context deadline exceeded"),
	}

	o, err := env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PAYMENT_PENDING, o.Status)
	assert.Equal(t, NEXT_CONTACT_SUPPORT, o.Next)
	assert.NotContains(t, o.Message, "not charged")
	assert.Equal(t, "PAY-1", o.PaymentID)
	require.NotEmpty(t, o.TransactionID)
	assert.Empty(t, env.sub.calls, "nothing is delivered before the payment is confirmed")

	esc, err := env.ledger.GetEscalation(ctx, o.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, airtime.OPEN_ES, esc.Status)
	assert.Equal(t, "PAY-1", esc.PaymentID)
	assert.True(t, decimal.RequireFromString("10.5").Equal(esc.Amount))
	assert.Contains(t, esc.Reason, "verify the payment")
	require.Len(t, env.pub.published, 1)

	_, err = env.sessions.Get(ctx, token)
	assert.Equal(t, airtime.ErrSessionNotFound, err)
}

func TestGateway_DoubleCallback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	token, u := startPayment(t, env)

	// the other callback of the checkout has claimed the payment
	env.gw.executeErr = errors.Wrap(airtime.ErrPaymentInProgress, "payment PAY-1 is EXECUTING")
	env.gw.take("PAY-1")
	o, err := env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PAYMENT_PENDING, o.Status)
	assert.NotContains(t, o.Message, "not charged")
	assert.Empty(t, env.sub.calls)
	assert.Empty(t, env.pub.published)

	// the session stays with the request that executes the payment
	sess, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, airtime.AWAITING_PAYMENT_CS, sess.Status)

	// the executing request has moved on
	sess.Status = airtime.PAYMENT_EXECUTED_CS
	sess.TransactionID = "tx-9"
	require.NoError(t, env.sessions.Save(ctx, sess))
	o, err = env.svc.CompletePayment(ctx, callbackOf(u))
	require.NoError(t, err)
	assert.Equal(t, PAYMENT_PENDING, o.Status)
	assert.Equal(t, "tx-9", o.TransactionID)
	_, err = env.sessions.Get(ctx, token)
	assert.NoError(t, err)
}

func TestGateway_ReplayedCallbackMessages(t *testing.T) {
	cases := map[string]struct {
		taken    bool
		takenErr error
		status   OutcomeStatus
	}{
		"not paid":     {status: SESSION_EXPIRED},
		"paid":         {taken: true, status: PAYMENT_PENDING},
		"state failed": {takenErr: errors.New("database is locked"), status: PAYMENT_PENDING},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, GATEWAY_MODE)
			_, u := startPayment(t, env)
			if tc.taken {
				env.gw.take("PAY-1")
			}
			env.gw.takenErr = tc.takenErr
			cb := callbackOf(u)
			cb.Token = "gone"

			o, err := env.svc.CompletePayment(context.Background(), cb)
			require.NoError(t, err)
			assert.Equal(t, tc.status, o.Status)
			if tc.status == PAYMENT_PENDING {
				assert.NotContains(t, o.Message, "not charged")
			}
			assert.Empty(t, env.gw.executed)
		})
	}
}

func TestGateway_CancelAfterPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GATEWAY_MODE)
	token, _ := startPayment(t, env)
	env.gw.take("PAY-1")
	env.gw.cancelErr = errors.Wrap(airtime.ErrTransitionNotAllowed, "payment PAY-1: EXECUTED -> CANCELLED")

	o, err := env.svc.CancelPayment(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, PAYMENT_PENDING, o.Status)
	assert.NotContains(t, o.Message, "not charged")
}
