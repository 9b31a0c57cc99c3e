package engine

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opencensus.io/trace"
	"go.uber.org/zap"

	"github.com/gebv/airtime"
)

type Mode string

const (
	DIRECT_MODE  Mode = "direct"
	GATEWAY_MODE Mode = "gateway"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", DIRECT_MODE:
		return DIRECT_MODE, nil
	case GATEWAY_MODE:
		return GATEWAY_MODE, nil
	}
	return "", errors.Errorf("unknown checkout mode %q", s)
}

type Directory interface {
	LookupCarrier(ctx context.Context, phoneNumber string) (airtime.CarrierID, error)
	ListProducts(ctx context.Context, carrierID *airtime.CarrierID) ([]airtime.Product, error)
}

type Gateway interface {
	CreatePayment(ctx context.Context, req airtime.PaymentRequest) (*airtime.PaymentAuthorization, error)
	ExecutePayment(ctx context.Context, paymentID, payerID string) error
	CancelPayment(ctx context.Context, paymentID string) error
	// PaymentTaken reports whether the buyer's funds are, or may be, captured.
	PaymentTaken(ctx context.Context, paymentID string) (bool, error)
}

type Submitter interface {
	SubmitTransaction(ctx context.Context, req airtime.PurchaseRequest) (*airtime.TransactionRecord, error)
}

type Sessions interface {
	Create(ctx context.Context, phoneNumber string) (*airtime.CheckoutSession, error)
	Get(ctx context.Context, token string) (*airtime.CheckoutSession, error)
	Save(ctx context.Context, sess *airtime.CheckoutSession) error
	Delete(ctx context.Context, token string) error
}

// Escalator hands a paid but undelivered checkout over to reconciliation.
type Escalator interface {
	Escalate(ctx context.Context, esc *airtime.Escalation) error
}

type Ledger interface {
	Escalator
	RecordTransaction(ctx context.Context, rec *airtime.TransactionRecord) error
	GetEscalation(ctx context.Context, transactionID string) (*airtime.Escalation, error)
	ListEscalations(ctx context.Context, status airtime.EscalationStatus) ([]*airtime.Escalation, error)
	UpdateEscalation(ctx context.Context, esc *airtime.Escalation) error
}

type Receipts interface {
	SendReceipt(ctx context.Context, to string, rec *airtime.TransactionRecord) error
}

type Options struct {
	Mode      Mode
	Directory Directory
	Gateway   Gateway
	Submitter Submitter
	Sessions  Sessions
	Ledger    Ledger
	// Escalations defaults to Ledger.
	Escalations Escalator
	// Receipts may be nil.
	Receipts Receipts
}

func NewService(opts Options) (*Service, error) {
	if opts.Mode == "" {
		opts.Mode = DIRECT_MODE
	}
	if opts.Directory == nil || opts.Submitter == nil || opts.Sessions == nil || opts.Ledger == nil {
		return nil, errors.New("checkout service: directory, submitter, sessions and ledger are required")
	}
	if opts.Mode == GATEWAY_MODE && opts.Gateway == nil {
		return nil, errors.New("checkout service: gateway mode without payment gateway")
	}
	if opts.Escalations == nil {
		opts.Escalations = opts.Ledger
	}
	return &Service{
		mode:        opts.Mode,
		dir:         opts.Directory,
		gw:          opts.Gateway,
		sub:         opts.Submitter,
		sessions:    opts.Sessions,
		ledger:      opts.Ledger,
		escalations: opts.Escalations,
		receipts:    opts.Receipts,
		newTxID:     airtime.NewTransactionID,
		l:           zap.L().Named("checkout"),
		m:           newServiceMetrics(),
	}, nil
}

// Service drives a checkout through lookup, product selection, payment and purchase.
type Service struct {
	mode        Mode
	dir         Directory
	gw          Gateway
	sub         Submitter
	sessions    Sessions
	ledger      Ledger
	escalations Escalator
	receipts    Receipts
	newTxID     func() string
	l           *zap.Logger
	m           *serviceMetrics
}

func (s *Service) Mode() Mode {
	return s.mode
}

var (
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	phoneRe         = regexp.MustCompile(`^\+[1-9][0-9]{5,14}$`)
)

// NormalizePhoneNumber returns the number in +<digits> form.
func NormalizePhoneNumber(in string) (string, error) {
	phone := phoneSeparators.Replace(strings.TrimSpace(in))
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	} else if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	if !phoneRe.MatchString(phone) {
		return "", errors.Wrapf(airtime.ErrInvalidPhoneNumber, "%q", in)
	}
	return phone, nil
}

// Lookup starts (or restarts) the checkout of a phone number and lists the products of its carrier.
func (s *Service) Lookup(ctx context.Context, token, phoneNumber string) (out *Outcome, err error) {
	ctx, span := trace.StartSpan(ctx, "Checkout.Lookup")
	defer func() { endStep(span, out, err) }()

	phone, err := NormalizePhoneNumber(phoneNumber)
	if err != nil {
		return s.done(newOutcome(INVALID_REQUEST).withErr(err)), nil
	}

	sess, err := s.resetSession(ctx, token, phone)
	if err != nil {
		return nil, err
	}

	carrierID, err := s.dir.LookupCarrier(ctx, phone)
	if err != nil {
		s.clear(ctx, sess)
		if errors.Is(err, airtime.ErrLookupNotFound) {
			return s.done(newOutcome(NUMBER_NOT_RECOGNIZED).withErr(err)), nil
		}
		return s.done(newOutcome(DIRECTORY_UNAVAILABLE).withErr(err)), nil
	}

	products, err := s.dir.ListProducts(ctx, &carrierID)
	if err != nil {
		s.clear(ctx, sess)
		return s.done(newOutcome(DIRECTORY_UNAVAILABLE).withErr(err)), nil
	}
	if len(products) == 0 {
		s.clear(ctx, sess)
		return s.done(newOutcome(NO_PRODUCTS).withErr(airtime.ErrNoProductsAvailable)), nil
	}

	sess.CarrierID = &carrierID
	sess.Products = products
	if err := s.transition(sess, airtime.PRODUCTS_LISTED_CS); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	o := newOutcome(PRODUCTS_LISTED)
	o.Token = sess.Token
	o.PhoneNumber = sess.PhoneNumber
	o.Products = products
	return s.done(o), nil
}

// SelectProduct remembers the buyer's choice among the listed products.
func (s *Service) SelectProduct(ctx context.Context, token string, productID airtime.ProductID) (out *Outcome, err error) {
	ctx, span := trace.StartSpan(ctx, "Checkout.SelectProduct")
	defer func() { endStep(span, out, err) }()

	sess, o, err := s.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if o != nil {
		return s.done(o), nil
	}
	product, o := s.pickProduct(sess, productID)
	if o != nil {
		return s.done(o), nil
	}
	if err := s.transition(sess, airtime.PRODUCT_SELECTED_CS); err != nil {
		return s.done(s.stepNotAllowed(ctx, sess, err)), nil
	}
	sess.ProductID = product.ID
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	o = newOutcome(PRODUCT_SELECTED)
	s.describe(o, sess)
	o.Product = product
	return s.done(o), nil
}

// PurchaseDirect buys the product right away, without a payment step.
func (s *Service) PurchaseDirect(ctx context.Context, token string, productID airtime.ProductID, email string) (out *Outcome, err error) {
	ctx, span := trace.StartSpan(ctx, "Checkout.PurchaseDirect")
	defer func() { endStep(span, out, err) }()

	if s.mode != DIRECT_MODE {
		return nil, errors.Wrap(airtime.ErrNotSupported, "direct purchase in gateway mode")
	}
	sess, o, err := s.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if o != nil {
		return s.done(o), nil
	}
	product, o := s.pickProduct(sess, productID)
	if o != nil {
		return s.done(o), nil
	}
	if !checkoutStatusTransitionChart.Allowed(sess.Status, airtime.PURCHASED_CS) {
		return s.done(s.stepNotAllowed(ctx, sess, errors.Wrapf(airtime.ErrTransitionNotAllowed, "%s -> %s", sess.Status, airtime.PURCHASED_CS))), nil
	}

	txID := s.newTxID()
	sess.ProductID = product.ID
	sess.TransactionID = txID
	if email != "" {
		sess.Email = email
	}

	rec, err := s.sub.SubmitTransaction(ctx, airtime.PurchaseRequest{
		TransactionID: txID,
		ProductID:     product.ID,
		PhoneNumber:   sess.PhoneNumber,
	})
	if err != nil {
		s.l.Warn("direct purchase failed",
			zap.String("transaction_id", txID),
			zap.String("mobile_number", sess.PhoneNumber),
			zap.String("product_id", string(product.ID)),
			zap.Error(err),
		)
		sess.TransactionID = ""
		if sess.Status.Match(airtime.PRODUCTS_LISTED_CS) {
			sess.Status = airtime.PRODUCT_SELECTED_CS
		}
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.l.Warn("save session after failed purchase", zap.String("token", sess.Token), zap.Error(err))
		}
		o := newOutcome(PURCHASE_FAILED).withErr(err)
		s.describe(o, sess)
		o.Product = product
		o.TransactionID = txID
		return s.done(o), nil
	}

	return s.done(s.purchased(ctx, sess, product, rec)), nil
}

// StartPayment creates the external payment of the product and returns where the buyer approves it.
// callbackBase is the public address of the storefront.
func (s *Service) StartPayment(ctx context.Context, token string, productID airtime.ProductID, email, callbackBase string) (out *Outcome, err error) {
	ctx, span := trace.StartSpan(ctx, "Checkout.StartPayment")
	defer func() { endStep(span, out, err) }()

	if s.mode != GATEWAY_MODE {
		return nil, errors.Wrap(airtime.ErrNotSupported, "payment in direct mode")
	}
	sess, o, err := s.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if o != nil {
		return s.done(o), nil
	}
	product, o := s.pickProduct(sess, productID)
	if o != nil {
		return s.done(o), nil
	}
	if !checkoutStatusTransitionChart.Allowed(sess.Status, airtime.AWAITING_PAYMENT_CS) {
		return s.done(s.stepNotAllowed(ctx, sess, errors.Wrapf(airtime.ErrTransitionNotAllowed, "%s -> %s", sess.Status, airtime.AWAITING_PAYMENT_CS))), nil
	}

	charge := product.Charge()
	callbackBase = strings.TrimRight(callbackBase, "/")
	returnQuery := url.Values{}
	returnQuery.Set("customer_msisdn", sess.PhoneNumber)
	returnQuery.Set("amount", charge.StringFixed(2))
	returnQuery.Set("checkout", sess.Token)
	cancelQuery := url.Values{}
	cancelQuery.Set("checkout", sess.Token)

	sess.ProductID = product.ID
	if email != "" {
		sess.Email = email
	}

	auth, err := s.gw.CreatePayment(ctx, airtime.PaymentRequest{
		Amount:      charge,
		Currency:    product.Currency(),
		PhoneNumber: sess.PhoneNumber,
		Description: productDescription(product),
		ReturnURL:   callbackBase + "/execute_payment?" + returnQuery.Encode(),
		CancelURL:   callbackBase + "/cancel_payment?" + cancelQuery.Encode(),
	})
	if err != nil {
		if sess.Status.Match(airtime.PRODUCTS_LISTED_CS) {
			sess.Status = airtime.PRODUCT_SELECTED_CS
		}
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.l.Warn("save session after failed payment creation", zap.String("token", sess.Token), zap.Error(err))
		}
		o := newOutcome(PAYMENT_CREATION_FAILED).withErr(err)
		s.describe(o, sess)
		o.Product = product
		return s.done(o), nil
	}

	sess.PaymentID = auth.PaymentID
	if err := s.transition(sess, airtime.AWAITING_PAYMENT_CS); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	o = newOutcome(REDIRECT)
	s.describe(o, sess)
	o.Product = product
	o.RedirectURL = auth.ApprovalURL
	return s.done(o), nil
}

// Callback what the buyer's browser brings back from the payment gateway.
type Callback struct {
	Token       string
	PaymentID   string
	PayerID     string
	PhoneNumber string
	Amount      string
}

// CompletePayment executes the approved payment and then buys the product.
// The purchase is never submitted unless the payment was executed.
func (s *Service) CompletePayment(ctx context.Context, cb Callback) (out *Outcome, err error) {
	ctx, span := trace.StartSpan(ctx, "Checkout.CompletePayment")
	defer func() { endStep(span, out, err) }()
	span.AddAttributes(trace.StringAttribute("payment_id", cb.PaymentID))

	if s.mode != GATEWAY_MODE {
		return nil, errors.Wrap(airtime.ErrNotSupported, "payment in direct mode")
	}
	sess, o, err := s.loadSession(ctx, cb.Token)
	if err != nil {
		return nil, err
	}
	if o != nil {
		s.l.Warn("payment callback without live checkout", zap.String("payment_id", cb.PaymentID))
		if s.paymentTaken(ctx, cb.PaymentID) {
			o := newOutcome(PAYMENT_PENDING).withErr(errors.Wrapf(airtime.ErrPaymentInProgress, "payment %s", cb.PaymentID))
			o.PaymentID = cb.PaymentID
			return s.done(o), nil
		}
		return s.done(o), nil
	}

	product, ok := sess.SelectedProduct()
	if !ok || !sess.Status.Match(airtime.AWAITING_PAYMENT_CS) {
		err := errors.Wrapf(airtime.ErrPaymentExecutionFailed, "checkout is %s", sess.Status)
		if s.paymentTaken(ctx, sess.PaymentID) {
			return s.done(s.paymentPending(sess, errors.Wrap(airtime.ErrPaymentInProgress, err.Error()))), nil
		}
		return s.done(s.paymentFailed(ctx, sess, err)), nil
	}
	charge := product.Charge()
	if err := matchCallback(cb, sess, charge); err != nil {
		s.l.Warn("payment callback does not match checkout",
			zap.String("token", sess.Token),
			zap.String("payment_id", cb.PaymentID),
			zap.Error(err),
		)
		return s.done(s.paymentFailed(ctx, sess, err)), nil
	}

	if err := s.gw.ExecutePayment(ctx, sess.PaymentID, cb.PayerID); err != nil {
		switch {
		case errors.Is(err, airtime.ErrPaymentInProgress):
			s.l.Warn("payment executed by another request", zap.String("token", sess.Token), zap.String("payment_id", sess.PaymentID))
			return s.done(s.paymentPending(sess, err)), nil
		case errors.Is(err, airtime.ErrPaymentStateUnknown):
			return s.done(s.paymentInDoubt(ctx, sess, product, err)), nil
		}
		return s.done(s.paymentFailed(ctx, sess, err)), nil
	}

	if err := s.transition(sess, airtime.PAYMENT_EXECUTED_CS); err != nil {
		return nil, err
	}
	txID := s.newTxID()
	sess.TransactionID = txID
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.l.Error("save session after payment", zap.String("token", sess.Token), zap.String("payment_id", sess.PaymentID), zap.Error(err))
	}

	rec, err := s.sub.SubmitTransaction(ctx, airtime.PurchaseRequest{
		TransactionID: txID,
		ProductID:     product.ID,
		PhoneNumber:   sess.PhoneNumber,
	})
	if err != nil {
		s.l.Error("purchase failed after payment",
			zap.String("transaction_id", txID),
			zap.String("payment_id", sess.PaymentID),
			zap.String("mobile_number", sess.PhoneNumber),
			zap.String("product_id", string(product.ID)),
			zap.Error(err),
		)
		s.escalate(ctx, &airtime.Escalation{
			TransactionID: txID,
			PaymentID:     sess.PaymentID,
			PhoneNumber:   sess.PhoneNumber,
			ProductID:     product.ID,
			Amount:        charge,
			Currency:      product.Currency(),
			Reason:        err.Error(),
		})
		if err := s.transition(sess, airtime.PURCHASE_FAILED_AFTER_PAYMENT_CS); err != nil {
			return nil, err
		}
		s.clear(ctx, sess)

		o := newOutcome(PURCHASE_FAILED_AFTER_PAYMENT).withErr(errors.Wrap(airtime.ErrPurchaseFailedAfterPayment, err.Error()))
		o.Detail = upstreamDetail(err)
		o.PhoneNumber = sess.PhoneNumber
		o.Product = product
		o.TransactionID = txID
		return s.done(o), nil
	}

	rec.PaymentID = sess.PaymentID
	return s.done(s.purchased(ctx, sess, product, rec)), nil
}

// CancelPayment closes the checkout the buyer abandoned on the payment page.
func (s *Service) CancelPayment(ctx context.Context, token string) (out *Outcome, err error) {
	ctx, span := trace.StartSpan(ctx, "Checkout.CancelPayment")
	defer func() { endStep(span, out, err) }()

	sess, o, err := s.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if o != nil {
		return s.done(newOutcome(CANCELLED)), nil
	}
	if sess.PaymentID != "" && s.gw != nil {
		if err := s.gw.CancelPayment(ctx, sess.PaymentID); err != nil {
			s.l.Warn("cancel payment", zap.String("payment_id", sess.PaymentID), zap.Error(err))
			if s.paymentTaken(ctx, sess.PaymentID) {
				return s.done(s.paymentPending(sess, errors.Wrap(airtime.ErrPaymentInProgress, err.Error()))), nil
			}
		}
	}
	if err := s.transition(sess, airtime.CANCELLED_CS); err != nil {
		s.l.Debug("cancel checkout", zap.String("token", sess.Token), zap.Error(err))
	}
	s.clear(ctx, sess)
	o = newOutcome(CANCELLED)
	o.PhoneNumber = sess.PhoneNumber
	return s.done(o), nil
}

// OpenEscalations paid checkouts still waiting for delivery, oldest first.
func (s *Service) OpenEscalations(ctx context.Context) ([]*airtime.Escalation, error) {
	return s.ledger.ListEscalations(ctx, airtime.OPEN_ES)
}

// RetryEscalation submits the purchase of an open escalation again under its original transaction id.
func (s *Service) RetryEscalation(ctx context.Context, transactionID string) (out *Outcome, err error) {
	ctx, span := trace.StartSpan(ctx, "Checkout.RetryEscalation")
	defer func() { endStep(span, out, err) }()
	span.AddAttributes(trace.StringAttribute("transaction_id", transactionID))

	esc, err := s.ledger.GetEscalation(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if esc.Status != airtime.OPEN_ES {
		return nil, errors.Wrapf(airtime.ErrTransitionNotAllowed, "escalation %s is %s", transactionID, esc.Status)
	}

	rec, err := s.sub.SubmitTransaction(ctx, airtime.PurchaseRequest{
		TransactionID: esc.TransactionID,
		ProductID:     esc.ProductID,
		PhoneNumber:   esc.PhoneNumber,
	})
	esc.Attempts++
	if err != nil {
		s.l.Warn("escalation retry failed",
			zap.String("transaction_id", esc.TransactionID),
			zap.Int64("attempts", esc.Attempts),
			zap.Error(err),
		)
		esc.Reason = err.Error()
		if err := s.ledger.UpdateEscalation(ctx, esc); err != nil {
			return nil, err
		}
		o := newOutcome(PURCHASE_FAILED_AFTER_PAYMENT).withErr(errors.Wrap(airtime.ErrPurchaseFailedAfterPayment, err.Error()))
		o.Detail = upstreamDetail(err)
		o.PhoneNumber = esc.PhoneNumber
		o.TransactionID = esc.TransactionID
		return s.done(o), nil
	}

	rec.PaymentID = esc.PaymentID
	if err := s.ledger.RecordTransaction(ctx, rec); err != nil {
		s.l.Error("record transaction", zap.String("transaction_id", rec.TransactionID), zap.Error(err))
	}
	esc.Status = airtime.RESOLVED_ES
	if err := s.ledger.UpdateEscalation(ctx, esc); err != nil {
		return nil, err
	}
	s.l.Info("escalation resolved", zap.String("transaction_id", esc.TransactionID), zap.Int64("attempts", esc.Attempts))

	o := newOutcome(PURCHASED)
	o.PhoneNumber = esc.PhoneNumber
	o.Transaction = rec
	o.TransactionID = rec.TransactionID
	return s.done(o), nil
}

func (s *Service) purchased(ctx context.Context, sess *airtime.CheckoutSession, product *airtime.Product, rec *airtime.TransactionRecord) *Outcome {
	if err := s.ledger.RecordTransaction(ctx, rec); err != nil {
		s.l.Error("record transaction", zap.String("transaction_id", rec.TransactionID), zap.Error(err))
	}
	if sess.Email != "" && s.receipts != nil {
		if err := s.receipts.SendReceipt(ctx, sess.Email, rec); err != nil {
			s.l.Warn("send receipt", zap.String("transaction_id", rec.TransactionID), zap.Error(err))
		}
	}
	if err := s.transition(sess, airtime.PURCHASED_CS); err != nil {
		s.l.Warn("purchased checkout", zap.String("token", sess.Token), zap.Error(err))
	}
	s.clear(ctx, sess)

	o := newOutcome(PURCHASED)
	o.PhoneNumber = sess.PhoneNumber
	o.Product = product
	o.Transaction = rec
	o.TransactionID = rec.TransactionID
	return o
}

func (s *Service) paymentFailed(ctx context.Context, sess *airtime.CheckoutSession, err error) *Outcome {
	if terr := s.transition(sess, airtime.PAYMENT_FAILED_CS); terr != nil {
		s.l.Debug("payment failed checkout", zap.String("token", sess.Token), zap.Error(terr))
	}
	s.clear(ctx, sess)
	o := newOutcome(PAYMENT_FAILED).withErr(err)
	o.PhoneNumber = sess.PhoneNumber
	return o
}

// paymentPending answers a callback whose payment another request owns. The session is left to that request.
func (s *Service) paymentPending(sess *airtime.CheckoutSession, err error) *Outcome {
	o := newOutcome(PAYMENT_PENDING).withErr(err)
	o.PhoneNumber = sess.PhoneNumber
	o.PaymentID = sess.PaymentID
	o.TransactionID = sess.TransactionID
	return o
}

// paymentInDoubt hands a payment the gateway could not confirm over to reconciliation.
func (s *Service) paymentInDoubt(ctx context.Context, sess *airtime.CheckoutSession, product *airtime.Product, err error) *Outcome {
	txID := s.newTxID()
	s.l.Error("payment state unknown",
		zap.String("transaction_id", txID),
		zap.String("payment_id", sess.PaymentID),
		zap.String("mobile_number", sess.PhoneNumber),
		zap.Error(err),
	)
	s.escalate(ctx, &airtime.Escalation{
		TransactionID: txID,
		PaymentID:     sess.PaymentID,
		PhoneNumber:   sess.PhoneNumber,
		ProductID:     product.ID,
		Amount:        product.Charge(),
		Currency:      product.Currency(),
		Reason:        "verify the payment before delivery: " + err.Error(),
	})
	s.clear(ctx, sess)

	o := newOutcome(PAYMENT_PENDING).withErr(err)
	o.PhoneNumber = sess.PhoneNumber
	o.Product = product
	o.PaymentID = sess.PaymentID
	o.TransactionID = txID
	return o
}

// paymentTaken reports whether the funds of the payment are, or may be, captured.
// A failed check counts as taken.
func (s *Service) paymentTaken(ctx context.Context, paymentID string) bool {
	if s.gw == nil || paymentID == "" {
		return false
	}
	taken, err := s.gw.PaymentTaken(ctx, paymentID)
	if err != nil {
		s.l.Error("check payment state", zap.String("payment_id", paymentID), zap.Error(err))
		return true
	}
	return taken
}

// escalate records the escalation in the ledger and then notifies the reconciler.
// The ledger row is the durable one, the notification may be lost.
func (s *Service) escalate(ctx context.Context, esc *airtime.Escalation) {
	if err := s.ledger.Escalate(ctx, esc); err != nil {
		s.l.Error("record escalation",
			zap.String("transaction_id", esc.TransactionID),
			zap.String("payment_id", esc.PaymentID),
			zap.String("mobile_number", esc.PhoneNumber),
			zap.Error(err),
		)
	}
	if s.escalations == Escalator(s.ledger) {
		return
	}
	if err := s.escalations.Escalate(ctx, esc); err != nil {
		s.l.Warn("publish escalation", zap.String("transaction_id", esc.TransactionID), zap.Error(err))
	}
}

func (s *Service) resetSession(ctx context.Context, token, phone string) (*airtime.CheckoutSession, error) {
	if token != "" {
		sess, err := s.sessions.Get(ctx, token)
		switch {
		case err == nil && sess.PhoneNumber == phone:
			sess.CarrierID = nil
			sess.Products = nil
			sess.ProductID = ""
			sess.PaymentID = ""
			sess.TransactionID = ""
			sess.Status = airtime.NEW_CS
			return sess, nil
		case err == nil:
			s.clear(ctx, sess)
		case errors.Is(err, airtime.ErrSessionNotFound), errors.Is(err, airtime.ErrSessionExpired):
		default:
			return nil, err
		}
	}
	return s.sessions.Create(ctx, phone)
}

// loadSession returns either the live session or the SESSION_EXPIRED outcome.
func (s *Service) loadSession(ctx context.Context, token string) (*airtime.CheckoutSession, *Outcome, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, airtime.ErrSessionNotFound) || errors.Is(err, airtime.ErrSessionExpired) {
			if errors.Is(err, airtime.ErrSessionExpired) {
				s.clear(ctx, &airtime.CheckoutSession{Token: token})
			}
			return nil, newOutcome(SESSION_EXPIRED).withErr(err), nil
		}
		return nil, nil, err
	}
	return sess, nil, nil
}

// pickProduct finds the product among the listed ones, the selected one when id is empty.
func (s *Service) pickProduct(sess *airtime.CheckoutSession, id airtime.ProductID) (*airtime.Product, *Outcome) {
	if id == "" {
		id = sess.ProductID
	}
	if product, ok := airtime.FindProduct(sess.Products, id); ok {
		return product, nil
	}
	o := newOutcome(PRODUCTS_LISTED).withErr(errors.Wrapf(airtime.ErrProductNotListed, "%q", id))
	o.Message = "Choose one of the listed products."
	s.describe(o, sess)
	return nil, o
}

func (s *Service) stepNotAllowed(ctx context.Context, sess *airtime.CheckoutSession, err error) *Outcome {
	s.l.Warn("checkout step not allowed", zap.String("token", sess.Token), zap.String("status", string(sess.Status)), zap.Error(err))
	s.clear(ctx, sess)
	return newOutcome(SESSION_EXPIRED).withErr(err)
}

func (s *Service) transition(sess *airtime.CheckoutSession, to airtime.CheckoutStatus) error {
	if !checkoutStatusTransitionChart.Allowed(sess.Status, to) {
		return errors.Wrapf(airtime.ErrTransitionNotAllowed, "checkout %s: %s -> %s", sess.Token, sess.Status, to)
	}
	sess.Status = to
	return nil
}

func (s *Service) clear(ctx context.Context, sess *airtime.CheckoutSession) {
	if err := s.sessions.Delete(ctx, sess.Token); err != nil {
		s.l.Warn("delete session", zap.String("token", sess.Token), zap.Error(err))
	}
}

func (s *Service) describe(o *Outcome, sess *airtime.CheckoutSession) {
	o.Token = sess.Token
	o.PhoneNumber = sess.PhoneNumber
	o.Products = sess.Products
}

func (s *Service) done(o *Outcome) *Outcome {
	s.m.outcomes.WithLabelValues(string(s.mode), string(o.Status)).Inc()
	fields := []zap.Field{
		zap.String("status", string(o.Status)),
		zap.String("mobile_number", o.PhoneNumber),
	}
	if o.TransactionID != "" {
		fields = append(fields, zap.String("transaction_id", o.TransactionID))
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}
	s.l.Debug("checkout outcome", fields...)
	return o
}

func matchCallback(cb Callback, sess *airtime.CheckoutSession, charge decimal.Decimal) error {
	if cb.PaymentID == "" || cb.PaymentID != sess.PaymentID {
		return errors.Wrapf(airtime.ErrPaymentExecutionFailed, "payment id %q", cb.PaymentID)
	}
	if cb.PhoneNumber != sess.PhoneNumber {
		return errors.Wrapf(airtime.ErrPaymentExecutionFailed, "mobile number %q", cb.PhoneNumber)
	}
	amount, err := decimal.NewFromString(cb.Amount)
	if err != nil || !amount.Equal(charge) {
		return errors.Wrapf(airtime.ErrPaymentExecutionFailed, "amount %q", cb.Amount)
	}
	return nil
}

func productDescription(p *airtime.Product) string {
	if p.Description != "" {
		return p.Description
	}
	return p.Name
}

// upstreamDetail vendor message worth showing to the buyer.
func upstreamDetail(err error) string {
	var ue *airtime.UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return ""
}
