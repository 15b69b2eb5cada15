// Package notify pushes payment outcomes to the services that own them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/config"
	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/infra/logging"
	"cycle-rental-payments/internal/infra/metrics"
)

var _ adapter.ServiceNotifier = (*HTTPNotifier)(nil)

const (
	TargetSubscription = "subscription"
	TargetCycle        = "cycle"
)

// StatusError is a non-2xx answer from a downstream service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream status %d: %s", e.Code, e.Body)
}

// retryable is false for client errors except timeouts and throttling.
func (e *StatusError) retryable() bool {
	if e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests {
		return true
	}
	return e.Code >= 500
}

// HTTPNotifier posts JSON updates and forwards the caller's auth context so the
// receiver can re-authorize the original user. Delivery is at-least-once; the
// receivers are idempotent on (userId, status[, rentalId]).
type HTTPNotifier struct {
	client          *http.Client
	subscriptionURL string
	cycleURL        string
	cookieName      string
	cfg             config.NotifierConfig
	log             *zerolog.Logger
}

func NewHTTPNotifier(cfg config.NotifierConfig, cookieName string, client *http.Client, logger *zerolog.Logger) *HTTPNotifier {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPNotifier{
		client:          client,
		subscriptionURL: cfg.SubscriptionURL,
		cycleURL:        cfg.CycleURL,
		cookieName:      cookieName,
		cfg:             cfg,
		log:             logger,
	}
}

func (n *HTTPNotifier) NotifySubscription(ctx context.Context, u adapter.SubscriptionUpdate, authContext string) error {
	return n.Notify(ctx, TargetSubscription, n.subscriptionURL, u, authContext)
}

func (n *HTTPNotifier) NotifyRental(ctx context.Context, u adapter.RentalUpdate, authContext string) error {
	return n.Notify(ctx, TargetCycle, n.cycleURL, u, authContext)
}

func (n *HTTPNotifier) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.cfg.InitialInterval
	b.MaxInterval = n.cfg.MaxInterval
	b.MaxElapsedTime = n.cfg.MaxElapsed
	b.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(b, n.cfg.MaxRetries), ctx)
}

// Notify posts payload to url, retrying network errors and 5xx with exponential
// backoff. A 4xx is returned after the first attempt. The final error wraps
// domain.ErrDownstreamNotify.
func (n *HTTPNotifier) Notify(ctx context.Context, target, url string, payload interface{}, authContext string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %s: marshal: %v", domain.ErrDownstreamNotify, target, err)
	}
	log := logging.With(ctx, n.log).With().Str("target", target).Logger()

	attempt := 0
	op := func() error {
		attempt++
		err := n.post(ctx, url, body, authContext)
		if err == nil {
			metrics.IncNotify(target, "ok")
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			metrics.IncNotify(target, "rejected")
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		metrics.IncNotify(target, "retry")
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("notify failed, retrying")
	}

	if err := backoff.RetryNotify(op, n.policy(ctx), onRetry); err != nil {
		metrics.IncNotify(target, "gave_up")
		return fmt.Errorf("%w: %s after %d attempt(s): %v", domain.ErrDownstreamNotify, target, attempt, err)
	}
	if attempt > 1 {
		log.Info().Int("attempts", attempt).Msg("notify delivered after retry")
	}
	return nil
}

func (n *HTTPNotifier) post(ctx context.Context, url string, body []byte, authContext string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authContext != "" {
		req.AddCookie(&http.Cookie{Name: n.cookieName, Value: authContext})
		req.Header.Set("Authorization", "Bearer "+authContext)
	}
	if id := logging.TraceID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(b)}
}
