// Package inspection talks to the damage classifier behind the AI service.
package inspection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cycle-rental-payments/internal/domain/ports/adapter"
)

var _ adapter.DamageInspector = (*HTTPInspector)(nil)

// HTTPInspector posts {cycleId} and reads back {status}; true means undamaged.
type HTTPInspector struct {
	url     string
	client  *http.Client
	retries uint64
}

func NewHTTPInspector(url string, timeout time.Duration, client *http.Client) *HTTPInspector {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPInspector{url: url, client: client, retries: 2}
}

func (i *HTTPInspector) Inspect(ctx context.Context, cycleID string) (bool, error) {
	body, err := json.Marshal(map[string]string{"cycleId": cycleID})
	if err != nil {
		return false, err
	}
	var undamaged bool
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := i.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("inspection service status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("inspection service status %d: %s", resp.StatusCode, raw))
		}
		var out struct {
			Status *bool `json:"status"`
		}
		if err := json.Unmarshal(raw, &out); err != nil || out.Status == nil {
			return backoff.Permanent(fmt.Errorf("inspection service: unexpected body %q", raw))
		}
		undamaged = *out.Status
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), i.retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return false, err
	}
	return undamaged, nil
}
