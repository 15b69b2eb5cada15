package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/usecase"
)

// maxWebhookBody bounds provider payloads; both providers stay far below it.
const maxWebhookBody = 1 << 20

type Server struct {
	webhookUC usecase.WebhookUseCase
	paymentUC usecase.PaymentUseCase
	returnUC  usecase.RentalReturnUseCase
	auth      *AuthManager
	limiter   RateLimiter
	rateLimit int
	timeout   time.Duration
	log       *zerolog.Logger
}

type ServerOption func(*Server)

// WithRateLimiter caps authenticated calls per user and route per minute.
func WithRateLimiter(rl RateLimiter, perMinute int) ServerOption {
	return func(s *Server) {
		s.limiter = rl
		s.rateLimit = perMinute
	}
}

// WithRequestTimeout bounds the context handed to use cases.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.timeout = d }
}

func NewServer(
	webhookUC usecase.WebhookUseCase,
	paymentUC usecase.PaymentUseCase,
	returnUC usecase.RentalReturnUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		webhookUC: webhookUC,
		paymentUC: paymentUC,
		returnUC:  returnUC,
		auth:      auth,
		timeout:   25 * time.Second,
		log:       logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(traceID, requestLog(s.log), recoverer(s.log), timeout(s.timeout))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhooks authenticate by signature, not by session.
	r.Post("/webhooks/stripe", s.stripeWebhook)
	r.Post("/webhooks/paypal", s.paypalWebhook)

	// PayPal redirects the buyer here after approval; no session is available.
	r.Get("/api/payments/capture", s.capturePayPal)

	r.Group(func(r chi.Router) {
		r.Use(requireUser(s.auth), rateLimit(s.limiter, s.rateLimit, s.log))
		r.Post("/api/payments", s.createPayment)
		r.Post("/api/payments/refund", s.refundPayment)
		r.Get("/api/payments/{referenceId}", s.getPayment)
		r.Post("/api/rentals/{rentalId}/return", s.returnRental)
	})
	return r
}
