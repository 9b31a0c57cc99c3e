// Package storefront serves the buyer facing web pages and the payment gateway callbacks.
package storefront

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo"
	echo_middleware "github.com/labstack/echo/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gebv/airtime"
	"github.com/gebv/airtime/engine"
	"github.com/gebv/airtime/httputils"
)

// CookieName cookie carrying the checkout session token.
const CookieName = "checkout"

// Checkout the checkout operations the storefront drives.
type Checkout interface {
	Mode() engine.Mode
	Lookup(ctx context.Context, token, phoneNumber string) (*engine.Outcome, error)
	PurchaseDirect(ctx context.Context, token string, productID airtime.ProductID, email string) (*engine.Outcome, error)
	StartPayment(ctx context.Context, token string, productID airtime.ProductID, email, callbackBase string) (*engine.Outcome, error)
	CompletePayment(ctx context.Context, cb engine.Callback) (*engine.Outcome, error)
	CancelPayment(ctx context.Context, token string) (*engine.Outcome, error)
	OpenEscalations(ctx context.Context) ([]*airtime.Escalation, error)
	RetryEscalation(ctx context.Context, transactionID string) (*engine.Outcome, error)
}

type Config struct {
	// PublicURL callback base handed to the payment gateway.
	// Empty means http(s)://{request host}.
	PublicURL string
	// Admin routes are disabled without AdminUser.
	AdminUser     string
	AdminPassword string
	AppVersion    string
}

type Server struct {
	checkout Checkout
	cfg      Config
	secure   bool
	l        *zap.Logger
}

func NewServer(checkout Checkout, cfg Config) *Server {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Server{
		checkout: checkout,
		cfg:      cfg,
		secure:   strings.HasPrefix(cfg.PublicURL, "https://"),
		l:        zap.L().Named("storefront"),
	}
}

// Echo returns the configured echo instance with all storefront routes.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Renderer = newRenderer()
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(echo_middleware.Recover())
	e.Use(httputils.RequestInfoMiddleware(s.cfg.AppVersion))
	e.Use(echo_middleware.Logger())
	e.Use(echo_middleware.BodyLimit("64K"))

	e.GET("/", s.home)
	e.GET("/buy_global_airtime", s.home)
	e.POST("/buy_global_airtime", s.lookup)
	e.POST("/purchase", s.purchase)
	e.POST("/create_payment", s.createPayment)
	e.GET("/execute_payment", s.executePayment)
	e.GET("/cancel_payment", s.cancelPayment)
	e.GET("/-/live", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if s.cfg.AdminUser != "" {
		g := e.Group("/admin", echo_middleware.BasicAuth(s.adminAuth))
		g.GET("/escalations", s.listEscalations)
		g.POST("/escalations/:id/retry", s.retryEscalation)
	}

	return e
}

func (s *Server) home(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", s.page("Buy airtime", nil))
}

func (s *Server) lookup(c echo.Context) error {
	o, err := s.checkout.Lookup(c.Request().Context(), s.token(c), c.FormValue("Phone_number"))
	if err != nil {
		return err
	}
	return s.renderOutcome(c, o)
}

func (s *Server) purchase(c echo.Context) error {
	email, err := formEmail(c)
	if err != nil {
		return err
	}
	o, err := s.checkout.PurchaseDirect(c.Request().Context(), s.token(c), airtime.ProductID(c.FormValue("product_id")), email)
	if err != nil {
		return err
	}
	return s.renderOutcome(c, o)
}

func (s *Server) createPayment(c echo.Context) error {
	email, err := formEmail(c)
	if err != nil {
		return err
	}
	o, err := s.checkout.StartPayment(c.Request().Context(), s.token(c), airtime.ProductID(c.FormValue("product_id")), email, s.callbackBase(c))
	if err != nil {
		return err
	}
	return s.renderOutcome(c, o)
}

func (s *Server) executePayment(c echo.Context) error {
	token := c.QueryParam("checkout")
	if token == "" {
		token = s.token(c)
	}
	o, err := s.checkout.CompletePayment(c.Request().Context(), engine.Callback{
		Token:       token,
		PaymentID:   c.QueryParam("paymentId"),
		PayerID:     c.QueryParam("PayerID"),
		PhoneNumber: c.QueryParam("customer_msisdn"),
		Amount:      c.QueryParam("amount"),
	})
	if err != nil {
		return err
	}
	return s.renderOutcome(c, o)
}

func (s *Server) cancelPayment(c echo.Context) error {
	token := c.QueryParam("checkout")
	if token == "" {
		token = s.token(c)
	}
	o, err := s.checkout.CancelPayment(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return s.renderOutcome(c, o)
}

func (s *Server) renderOutcome(c echo.Context, o *engine.Outcome) error {
	code := http.StatusOK
	if o.Status == engine.INVALID_REQUEST {
		code = http.StatusBadRequest
	} else {
		s.setToken(c, o.Token)
	}

	switch o.Next {
	case engine.NEXT_REDIRECT:
		return c.Redirect(http.StatusSeeOther, o.RedirectURL)
	case engine.NEXT_PRODUCT_SELECTION:
		return c.Render(code, "products.html", s.page("Choose a top-up", o))
	case engine.NEXT_RECEIPT:
		return c.Render(code, "result.html", s.page("Top-up sent", o))
	case engine.NEXT_CONTACT_SUPPORT:
		return c.Render(code, "result.html", s.page("Contact support", o))
	default:
		return c.Render(code, "index.html", s.page("Buy airtime", o))
	}
}

func (s *Server) page(title string, o *engine.Outcome) page {
	return page{
		Title:   title,
		Mode:    s.checkout.Mode(),
		Outcome: o,
	}
}

func (s *Server) token(c echo.Context) string {
	ck, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

// setToken stores the token in the cookie, an empty token removes it.
func (s *Server) setToken(c echo.Context, token string) {
	ck := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		ck.MaxAge = -1
	}
	c.SetCookie(ck)
}

func (s *Server) callbackBase(c echo.Context) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	return c.Scheme() + "://" + c.Request().Host
}

func formEmail(c echo.Context) (string, error) {
	email := strings.TrimSpace(c.FormValue("email"))
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid e-mail address.")
	}
	return addr.Address, nil
}

func (s *Server) adminAuth(user, password string, c echo.Context) (bool, error) {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AdminUser)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) == 1
	return userOK && passwordOK, nil
}

type escalationView struct {
	TransactionID string            `json:"transaction_id"`
	PaymentID     string            `json:"payment_id"`
	PhoneNumber   string            `json:"mobile_number"`
	ProductID     airtime.ProductID `json:"product_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Reason        string            `json:"reason"`
	Attempts      int64             `json:"attempts"`
	CreatedAt     time.Time         `json:"created_at"`
}

type retryView struct {
	Status        engine.OutcomeStatus `json:"status"`
	TransactionID string               `json:"transaction_id"`
	Message       string               `json:"message"`
	Detail        string               `json:"detail,omitempty"`
}

func (s *Server) listEscalations(c echo.Context) error {
	list, err := s.checkout.OpenEscalations(c.Request().Context())
	if err != nil {
		return err
	}
	res := make([]escalationView, 0, len(list))
	for _, esc := range list {
		res = append(res, escalationView{
			TransactionID: esc.TransactionID,
			PaymentID:     esc.PaymentID,
			PhoneNumber:   esc.PhoneNumber,
			ProductID:     esc.ProductID,
			Amount:        esc.Amount.StringFixed(2),
			Currency:      esc.Currency,
			Reason:        esc.Reason,
			Attempts:      esc.Attempts,
			CreatedAt:     esc.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) retryEscalation(c echo.Context) error {
	txID := c.Param("id")
	o, err := s.checkout.RetryEscalation(c.Request().Context(), txID)
	if err != nil {
		return err
	}
	s.l.Info("Escalation retried.",
		zap.String("transaction_id", txID),
		zap.String("status", string(o.Status)),
		zap.String("request_id", httputils.GetRequestInfo(c.Request().Context()).RequestID),
	)
	code := http.StatusOK
	if o.Status != engine.PURCHASED {
		code = http.StatusBadGateway
	}
	return c.JSON(code, retryView{
		Status:        o.Status,
		TransactionID: o.TransactionID,
		Message:       o.Message,
		Detail:        o.Detail,
	})
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		msg = http.StatusText(code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	case errors.Is(err, airtime.ErrNotFound), errors.Is(err, airtime.ErrNotSupported):
		code = http.StatusNotFound
		msg = http.StatusText(code)
	case errors.Is(err, airtime.ErrTransitionNotAllowed):
		code = http.StatusConflict
		msg = http.StatusText(code)
	}

	if code >= http.StatusInternalServerError {
		s.l.Error("Request failed.",
			zap.String("path", c.Request().URL.Path),
			zap.String("request_id", httputils.GetRequestInfo(c.Request().Context()).RequestID),
			zap.Error(err),
		)
	}
	if c.Response().Committed {
		return
	}

	if strings.HasPrefix(c.Request().URL.Path, "/admin/") {
		err = c.JSON(code, map[string]string{"error": msg})
	} else {
		err = c.Render(code, "error.html", page{Title: msg, Mode: s.checkout.Mode()})
	}
	if err != nil {
		s.l.Warn("Failed write error response.", zap.Error(err))
	}
}
