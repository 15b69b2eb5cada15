package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// PayPalClient is a thin REST client; the bearer token comes from the
// client-credentials flow and is refreshed by the oauth2 transport.
type PayPalClient struct {
	baseURL string
	client  *http.Client
}

// NewPayPalClient builds a client whose requests carry a cached access token.
// base may be nil; it is used for the token request and the API calls.
func NewPayPalClient(baseURL, clientID, clientSecret string, timeout time.Duration, base *http.Client) *PayPalClient {
	baseURL = strings.TrimRight(baseURL, "/")
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := cc.Client(ctx)
	hc.Timeout = base.Timeout
	return &PayPalClient{baseURL: baseURL, client: hc}
}

// PayPalAPIError is a non-2xx answer from PayPal.
type PayPalAPIError struct {
	Status int
	Body   string
}

func (e *PayPalAPIError) Error() string {
	return fmt.Sprintf("paypal: status %d: %s", e.Status, e.Body)
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func (c *PayPalClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &PayPalAPIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
