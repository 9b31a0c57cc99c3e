// Package notify sends purchase receipts by e-mail.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"html/template"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/gebv/airtime"
)

const (
	receiptSubject = "Receipt for your recent purchase"

	DefaultTimeout = 10 * time.Second
	sslPort        = 465
)

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head><title>Transaction Confirmation</title></head>
<body>
<h1>Transaction Confirmation</h1>
<p>Dear Customer,</p>
<p>Your top-up has been successfully processed.</p>
<h2>Transaction Details:</h2>
<ul>
<li><strong>Reference:</strong> {{ .TransactionID }}</li>
<li><strong>Confirmation Date:</strong> {{ .ConfirmationDate }}</li>
<li><strong>Credit Party Mobile Number:</strong> {{ .PhoneNumber }}</li>
<li><strong>Retail Price:</strong> {{ .RetailPrice }}</li>
<li><strong>Wholesale Price:</strong> {{ .WholesalePrice }}</li>
<li><strong>Operator Name:</strong> {{ .OperatorName }}</li>
<li><strong>Product Description:</strong> {{ .ProductDescription }}</li>
<li><strong>Status Message:</strong> {{ .StatusMessage }}</li>
</ul>
<p>Thank you for choosing our service.</p>
</body>
</html>
`))

type Config struct {
	// host:port of the SMTP server.
	Addr     string
	User     string
	Password string
	From     string
	// SSL connects with implicit TLS. Port 465 implies it.
	SSL bool
	// Timeout bounds one delivery, DefaultTimeout when zero.
	Timeout time.Duration
}

type sendFunc func(ctx context.Context, msg *gomail.Msg) error

// Mailer sends receipts through an SMTP relay.
type Mailer struct {
	cfg  Config
	host string
	port int
	send sendFunc
	l    *zap.Logger
}

func NewMailer(cfg Config) (*Mailer, error) {
	host, p, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid smtp address %q", cfg.Addr)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return nil, errors.Errorf("invalid smtp port %q", p)
	}
	if err := gomail.NewMsg().From(cfg.From); err != nil {
		return nil, errors.Wrapf(err, "invalid sender %q", cfg.From)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if port == sslPort {
		cfg.SSL = true
	}
	m := &Mailer{
		cfg:  cfg,
		host: host,
		port: port,
		l:    zap.L().Named("mailer"),
	}
	m.send = m.dialAndSend
	return m, nil
}

type receiptView struct {
	TransactionID      string
	ConfirmationDate   string
	PhoneNumber        string
	RetailPrice        string
	WholesalePrice     string
	OperatorName       string
	ProductDescription string
	StatusMessage      string
}

// SendReceipt mails the confirmation of rec to the buyer. It gives up when ctx is done or the timeout passes.
func (m *Mailer) SendReceipt(ctx context.Context, to string, rec *airtime.TransactionRecord) error {
	view := receiptView{
		TransactionID:      rec.TransactionID,
		PhoneNumber:        rec.PhoneNumber,
		RetailPrice:        rec.RetailPrice.StringFixed(2),
		WholesalePrice:     rec.WholesalePrice.StringFixed(2),
		OperatorName:       rec.OperatorName,
		ProductDescription: rec.ProductDescription,
		StatusMessage:      rec.StatusMessage,
	}
	if rec.ConfirmedAt != nil {
		view.ConfirmationDate = rec.ConfirmedAt.UTC().Format("2006-01-02 15:04:05 MST")
	}

	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, view); err != nil {
		return errors.Wrap(err, "Failed render receipt")
	}

	msg := gomail.NewMsg(gomail.WithEncoding(gomail.NoEncoding), gomail.WithCharset(gomail.CharsetUTF8))
	if err := msg.From(m.cfg.From); err != nil {
		return errors.Wrapf(err, "invalid sender %q", m.cfg.From)
	}
	if err := msg.To(to); err != nil {
		return errors.Wrapf(err, "invalid recipient %q", to)
	}
	msg.Subject(receiptSubject)
	msg.SetDate()
	msg.SetBodyString(gomail.TypeTextHTML, body.String())

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := m.send(ctx, msg); err != nil {
		return errors.Wrap(err, "Failed send receipt")
	}
	m.l.Debug("receipt sent", zap.String("transaction_id", rec.TransactionID))
	return nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(m.port),
		gomail.WithTimeout(m.cfg.Timeout),
		gomail.WithDialContextFunc(m.dial),
	}
	if m.cfg.SSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if m.cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.User),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	c, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return errors.Wrap(err, "Failed create smtp client")
	}
	return c.DialAndSendWithContext(ctx, msg)
}

// dial bounds the whole SMTP conversation by the deadline of ctx.
func (m *Mailer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: m.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if m.cfg.SSL {
		conn, err = (&tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}}).DialContext(ctx, network, addr)
	} else {
		conn, err = d.DialContext(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.cfg.Timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
