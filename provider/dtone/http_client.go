package dtone

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/gebv/airtime/provider"
)

type client struct {
	httpClient *http.Client
	base       string
	userName   string
	password   string
	audit      provider.Auditor
	breaker    *provider.Breaker
}

func newClient(cfg Config, audit provider.Auditor, breaker *provider.Breaker) *client {
	return &client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		base:       cfg.EntrypointURL,
		userName:   cfg.UserName,
		password:   cfg.Password,
		audit:      audit,
		breaker:    breaker,
	}
}

// do sends in as JSON and decodes a 2xx answer into out.
// Non-2xx answers are returned as *provider.HTTPError.
func (c *client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	link, err := url.Parse(c.base + "/" + path)
	if err != nil {
		return errors.Wrap(err, "Failed parse url")
	}
	if query != nil {
		link.RawQuery = query.Encode()
	}

	var body []byte
	if in != nil {
		body, err = json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "Failed marshal")
		}
	}

	call := provider.Call{Vendor: provider.DTONE, Method: method, Path: path}
	ctx, span := provider.StartCallSpan(ctx, call)
	start := time.Now()
	defer func() {
		call.Duration = time.Since(start)
		provider.EndCallSpan(span, call)
		c.audit.LogCall(ctx, call)
	}()

	call.Err = c.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequest(method, link.String(), bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, "Failed new request")
		}
		req = req.WithContext(ctx)
		req.SetBasicAuth(c.userName, c.password)
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
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
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(b, out); err != nil {
			return errors.Wrap(err, "Failed unmarshal")
		}
		return nil
	})
	return call.Err
}
