package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gebv/airtime/engine"
	"github.com/gebv/airtime/provider/paypal"
	"github.com/gebv/airtime/storage"
)

func env(m map[string]string) func(string) string {
	return func(k string) string {
		return m[k]
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"BASE_URL":          "https://preprod-dvs-api.dtone.com/v1",
		"services_username": "user",
		"services_password": "pass",
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(env(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, engine.DIRECT_MODE, cfg.Mode)
	assert.Equal(t, ":8081", cfg.WebAddr)
	assert.Equal(t, "127.0.0.1:9091", cfg.DebugAddr)
	assert.Equal(t, storage.SQLite, cfg.DBDriver)
	assert.Equal(t, "airtime.db", cfg.DBConn)
	assert.Equal(t, "sessions.db", cfg.SessionsPath)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Empty(t, cfg.PayPalURL)
	assert.Equal(t, 1.0, cfg.TraceSampling)
}

func TestLoadConfig_Gateway(t *testing.T) {
	m := baseEnv()
	m["CHECKOUT_MODE"] = "gateway"
	m["PAYPAL_MODE"] = "sandbox"
	m["PAYPAL_CLIENT_ID"] = "client"
	m["PAYPAL_CLIENT_SECRET"] = "secret"
	m["PORT"] = "8080"
	m["WEB_PORT"] = "9000"
	m["DB_DRIVER"] = "postgres"
	m["PG_CONN"] = "postgres://airtime@127.0.0.1/airtime?sslmode=disable"
	m["SESSION_TTL"] = "10m"
	m["TRACE_SAMPLING"] = "0.25"
	m["SMTP_ADDR"] = "smtp.example.com:465"
	m["RECEIPT_FROM"] = "payment@example.com"
	m["SMTP_SSL"] = "true"

	cfg, err := loadConfig(env(m))
	require.NoError(t, err)
	assert.Equal(t, engine.GATEWAY_MODE, cfg.Mode)
	assert.Equal(t, "https://api.sandbox.paypal.com", cfg.PayPalURL)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, storage.Postgres, cfg.DBDriver)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 0.25, cfg.TraceSampling)
	assert.True(t, cfg.SMTPSSL)

	m["PAYPAL_ENTRYPOINT_URL"] = "http://127.0.0.1:8089"
	cfg, err = loadConfig(env(m))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8089", cfg.PayPalURL)
	assert.Equal(t, paypal.SANDBOX, cfg.PayPalMode)

	// entrypoint override does not make the mode optional
	m["PAYPAL_MODE"] = ""
	_, err = loadConfig(env(m))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	for name, patch := range map[string]map[string]string{
		"NoBaseURL":          {"BASE_URL": ""},
		"NoCredentials":      {"services_password": ""},
		"RelativeBaseURL":    {"BASE_URL": "dtone/v1"},
		"UnknownMode":        {"CHECKOUT_MODE": "crypto"},
		"GatewayNoSecret":    {"CHECKOUT_MODE": "gateway", "PAYPAL_MODE": "sandbox", "PAYPAL_CLIENT_ID": "client"},
		"GatewayBadMode":     {"CHECKOUT_MODE": "gateway", "PAYPAL_MODE": "prod", "PAYPAL_CLIENT_ID": "client", "PAYPAL_CLIENT_SECRET": "secret"},
		"GatewayURLBadMode":  {"CHECKOUT_MODE": "gateway", "PAYPAL_MODE": "prod", "PAYPAL_ENTRYPOINT_URL": "http://127.0.0.1:8089", "PAYPAL_CLIENT_ID": "client", "PAYPAL_CLIENT_SECRET": "secret"},
		"BadPublicURL":       {"PUBLIC_URL": "airtime.example.org"},
		"BadDebugAddr":       {"DEBUG_ADDR": "9091"},
		"UnknownDriver":      {"DB_DRIVER": "mysql"},
		"PostgresNoConn":     {"DB_DRIVER": "postgres"},
		"BadTTL":             {"SESSION_TTL": "soon"},
		"NegativeTimeout":    {"HTTP_TIMEOUT": "-1s"},
		"AdminUserOnly":      {"ADMIN_USER": "ops"},
		"AdminPasswordOnly":  {"ADMIN_PASSWORD": "secret"},
		"SMTPWithoutFromAdd": {"SMTP_ADDR": "smtp.example.com:587"},
		"BadTraceSampling":   {"TRACE_SAMPLING": "all"},
		"BadSMTPSSL":         {"SMTP_ADDR": "smtp.example.com:465", "RECEIPT_FROM": "payment@example.com", "SMTP_SSL": "maybe"},
		"TraceSamplingAbove": {"TRACE_SAMPLING": "1.5"},
	} {
		t.Run(name, func(t *testing.T) {
			m := baseEnv()
			for k, v := range patch {
				m[k] = v
			}
			_, err := loadConfig(env(m))
			assert.Error(t, err)
		})
	}
}
