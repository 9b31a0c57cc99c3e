package main

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/gebv/airtime/engine"
	"github.com/gebv/airtime/provider/paypal"
	"github.com/gebv/airtime/sessions"
	"github.com/gebv/airtime/storage"
)

type config struct {
	Mode engine.Mode

	DTOneURL      string
	DTOneUserName string
	DTOnePassword string

	PayPalMode         string
	PayPalURL          string
	PayPalClientID     string
	PayPalClientSecret string

	PublicURL string
	WebAddr   string
	DebugAddr string

	DBDriver string
	DBConn   string

	SessionsPath string
	SessionTTL   time.Duration
	HTTPTimeout  time.Duration

	TraceSampling float64

	NATSURL string

	AdminUser     string
	AdminPassword string

	SMTPAddr     string
	SMTPUser     string
	SMTPPassword string
	SMTPSSL      bool
	ReceiptFrom  string
}

// loadConfig reads the environment. Any missing or malformed required value is an error.
func loadConfig(getenv func(string) string) (*config, error) {
	cfg := &config{
		DTOneURL:      getenv("BASE_URL"),
		DTOneUserName: getenv("services_username"),
		DTOnePassword: getenv("services_password"),

		PayPalMode:         getenv("PAYPAL_MODE"),
		PayPalURL:          getenv("PAYPAL_ENTRYPOINT_URL"),
		PayPalClientID:     getenv("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: getenv("PAYPAL_CLIENT_SECRET"),

		PublicURL: getenv("PUBLIC_URL"),
		DebugAddr: getenv("DEBUG_ADDR"),

		DBDriver: getenv("DB_DRIVER"),

		SessionsPath: getenv("SESSIONS_PATH"),
		NATSURL:      getenv("NATS_URL"),

		AdminUser:     getenv("ADMIN_USER"),
		AdminPassword: getenv("ADMIN_PASSWORD"),

		SMTPAddr:     getenv("SMTP_ADDR"),
		SMTPUser:     getenv("SMTP_USER"),
		SMTPPassword: getenv("SMTP_PASSWORD"),
		ReceiptFrom:  getenv("RECEIPT_FROM"),
	}

	var err error
	if cfg.Mode, err = engine.ParseMode(getenv("CHECKOUT_MODE")); err != nil {
		return nil, err
	}

	if cfg.DTOneURL == "" || cfg.DTOneUserName == "" || cfg.DTOnePassword == "" {
		return nil, errors.New("BASE_URL, services_username and services_password are required")
	}
	if err := checkURL("BASE_URL", cfg.DTOneURL); err != nil {
		return nil, err
	}

	if cfg.Mode == engine.GATEWAY_MODE {
		if cfg.PayPalClientID == "" || cfg.PayPalClientSecret == "" {
			return nil, errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required in gateway mode")
		}
		base, err := paypal.BaseURL(cfg.PayPalMode)
		if err != nil {
			return nil, errors.Wrap(err, "PAYPAL_MODE")
		}
		if cfg.PayPalURL == "" {
			cfg.PayPalURL = base
		} else if err := checkURL("PAYPAL_ENTRYPOINT_URL", cfg.PayPalURL); err != nil {
			return nil, err
		}
	}

	if cfg.PublicURL != "" {
		if err := checkURL("PUBLIC_URL", cfg.PublicURL); err != nil {
			return nil, err
		}
	}

	port := getenv("PORT")
	if port == "" {
		port = getenv("WEB_PORT")
		if port == "" {
			port = "8081"
		}
	}
	cfg.WebAddr = ":" + port
	if cfg.DebugAddr == "" {
		cfg.DebugAddr = "127.0.0.1:9091"
	}
	if _, _, err := net.SplitHostPort(cfg.DebugAddr); err != nil {
		return nil, errors.Wrap(err, "DEBUG_ADDR")
	}

	switch cfg.DBDriver {
	case "", storage.SQLite:
		cfg.DBDriver = storage.SQLite
		cfg.DBConn = getenv("SQLITE_PATH")
		if cfg.DBConn == "" {
			cfg.DBConn = "airtime.db"
		}
	case storage.Postgres:
		cfg.DBConn = getenv("PG_CONN")
		if cfg.DBConn == "" {
			return nil, errors.New("PG_CONN is required with DB_DRIVER=postgres")
		}
	default:
		return nil, errors.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	if cfg.SessionsPath == "" {
		cfg.SessionsPath = "sessions.db"
	}
	if cfg.SessionTTL, err = durationEnv(getenv, "SESSION_TTL", sessions.DefaultTTL); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = durationEnv(getenv, "HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	cfg.TraceSampling = 1
	if v := getenv("TRACE_SAMPLING"); v != "" {
		if cfg.TraceSampling, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, errors.Wrap(err, "TRACE_SAMPLING")
		}
		if cfg.TraceSampling < 0 || cfg.TraceSampling > 1 {
			return nil, errors.New("TRACE_SAMPLING must be within [0, 1]")
		}
	}

	if (cfg.AdminUser == "") != (cfg.AdminPassword == "") {
		return nil, errors.New("ADMIN_USER and ADMIN_PASSWORD must be set together")
	}

	if cfg.SMTPAddr != "" && cfg.ReceiptFrom == "" {
		return nil, errors.New("RECEIPT_FROM is required with SMTP_ADDR")
	}
	if v := getenv("SMTP_SSL"); v != "" {
		if cfg.SMTPSSL, err = strconv.ParseBool(v); err != nil {
			return nil, errors.Wrap(err, "SMTP_SSL")
		}
	}

	return cfg, nil
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, name)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("%s: absolute http(s) url expected, got %q", name, raw)
	}
	return nil
}

func durationEnv(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrap(err, name)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive", name)
	}
	return d, nil
}
