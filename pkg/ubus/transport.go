package ubus

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request/response exchange.
const DefaultTimeout = 15 * time.Second

// Transport performs one blocking request/response exchange.
type Transport interface {
	Post(ctx context.Context, url string, body []byte) (status int, respBody []byte, err error)
}

// HTTPTransport posts JSON-RPC payloads over HTTP(S).
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with a per-exchange timeout.
// With verifyTLS false the device certificate is not checked, which is the
// common case for self-signed router certificates.
func NewHTTPTransport(timeout time.Duration, verifyTLS bool) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPTransport{
		client: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
	}
}

// Post sends body to url and returns the raw status and response body.
func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, data, nil
}
