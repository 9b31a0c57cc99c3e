package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gebv/airtime/provider"
)

const tokenRefreshMargin = time.Minute

type client struct {
	httpClient   *http.Client
	base         string
	clientID     string
	clientSecret string
	audit        provider.Auditor
	breaker      *provider.Breaker
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newClient(cfg Config, audit provider.Auditor, breaker *provider.Breaker) *client {
	return &client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		base:         cfg.EntrypointURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		audit:        audit,
		breaker:      breaker,
		now:          time.Now,
	}
}

// accessToken returns the cached OAuth2 token, requesting a new one when it is about to expire.
func (c *client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	var out tokenResponse
	err := c.send(ctx, http.MethodPost, "v1/oauth2/token", []byte(form.Encode()), "application/x-www-form-urlencoded", func(req *http.Request) {
		req.SetBasicAuth(c.clientID, c.clientSecret)
	}, &out)
	if err != nil {
		return "", errors.Wrap(err, "Failed get access token")
	}
	if out.AccessToken == "" {
		return "", errors.New("empty access token")
	}
	c.token = out.AccessToken
	c.expiresAt = c.now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenRefreshMargin)
	return c.token, nil
}

func (c *client) POSTAndUnmarshalJson(ctx context.Context, path string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "Failed marshal")
	}
	return c.authorized(ctx, http.MethodPost, path, b, out)
}

func (c *client) GETAndUnmarshalJson(ctx context.Context, path string, out interface{}) error {
	return c.authorized(ctx, http.MethodGet, path, nil, out)
}

func (c *client) authorized(ctx context.Context, method, path string, body []byte, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	err = c.send(ctx, method, path, body, "application/json", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}, out)
	if provider.StatusCode(err) == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
	}
	return err
}

func (c *client) send(
	ctx context.Context,
	method, path string,
	body []byte,
	contentType string,
	auth func(req *http.Request),
	out interface{},
) error {
	call := provider.Call{Vendor: provider.PAYPAL, Method: method, Path: callPath(path)}
	ctx, span := provider.StartCallSpan(ctx, call)
	start := time.Now()
	defer func() {
		call.Duration = time.Since(start)
		provider.EndCallSpan(span, call)
		c.audit.LogCall(ctx, call)
	}()

	call.Err = c.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequest(method, c.base+"/"+path, bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, "Failed new request")
		}
		req = req.WithContext(ctx)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		auth(req)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "Failed do request")
		}
		defer resp.Body.Close()
		call.StatusCode = resp.StatusCode
		b, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "Failed read all body")
		}
		if resp.StatusCode/100 != 2 {
			return &provider.HTTPError{StatusCode: resp.StatusCode, Body: b}
		}
		if err := json.Unmarshal(b, out); err != nil {
			return errors.Wrap(err, "Failed unmarshal")
		}
		return nil
	})
	return call.Err
}

// callPath hides payment ids from the audit path.
func callPath(path string) string {
	const prefix = "v1/payments/payment/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	if strings.HasSuffix(path, "/execute") {
		return prefix + "{id}/execute"
	}
	return prefix + "{id}"
}
