// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/config"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/infra/adapters/inspection"
	payAdapters "cycle-rental-payments/internal/infra/adapters/payment"
	tele "cycle-rental-payments/internal/infra/adapters/telegram"
	pg "cycle-rental-payments/internal/infra/db/postgres"
	"cycle-rental-payments/internal/infra/logging"
	"cycle-rental-payments/internal/infra/metrics"
	"cycle-rental-payments/internal/infra/notify"
	red "cycle-rental-payments/internal/infra/redis"
	"cycle-rental-payments/internal/infra/sched"
	"cycle-rental-payments/internal/infra/web"
	"cycle-rental-payments/internal/infra/worker"
	"cycle-rental-payments/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (in-memory payment providers)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled: payment providers are simulated")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	payRepo := pg.NewPaymentRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	rentalRepo := pg.NewRentalRepo(pool)
	txm := pg.NewTxManager(pool)

	// ---- Redis (optional: delivery lock + rate limit) ----
	var (
		locker  adapter.Locker
		limiter web.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient, cfg.Redis.LockTTL)
		limiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis.url not set; delivery lock and rate limiting disabled")
	}

	// ---- Payment providers ----
	strategies, verifiers := providers(cfg, logger)

	// ---- Operator alerts ----
	var alerter adapter.OperatorAlerter = tele.NewNoopAlerter(logger)
	if cfg.Alert.TelegramToken != "" {
		tg, err := tele.NewAlerter(cfg.Alert.TelegramToken, cfg.Alert.ChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram alerter")
		}
		alerter = tg
	}
	alertPool := worker.NewPool(cfg.Alert.Workers, logger)
	alertPool.Start(ctx)
	defer alertPool.Stop()
	alerter = worker.NewAsyncAlerter(alertPool, alerter, logger)

	// ---- Use cases ----
	notifier := notify.NewHTTPNotifier(cfg.Notifier, cfg.Security.CookieName, nil, logger)
	ledger := usecase.NewLedgerUseCase(payRepo, refundRepo, txm, logger)
	bus := usecase.NewEventBus(logger,
		usecase.NewSubscriptionConsumer(ledger, notifier, alerter, logger),
		usecase.NewRentalChargeConsumer(ledger, notifier, alerter, logger),
		usecase.NewDepositRefundConsumer(ledger, notifier, alerter, logger),
	)
	paymentUC := usecase.NewPaymentUseCase(ledger, cfg.Payment.Currency, logger, strategies...)
	webhookUC := usecase.NewWebhookUseCase(bus, locker, logger, verifiers...)
	inspector := inspection.NewHTTPInspector(cfg.Inspection.URL, cfg.Inspection.Timeout, nil)
	returnUC := usecase.NewRentalReturnUseCase(rentalRepo, inspector, paymentUC, alerter, logger)

	// ---- Reconciler ----
	reconciler := sched.NewPaymentReconciler(paymentUC, payRepo, bus, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
	go func() {
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("payment reconciler stopped")
		}
	}()

	// ---- HTTP ----
	auth, err := web.NewAuthManager(cfg.Security.JWTSecret, cfg.Security.CookieName)
	if err != nil {
		logger.Fatal().Err(err).Msg("auth")
	}
	srv := web.NewServer(webhookUC, paymentUC, returnUC, auth, logger,
		web.WithRateLimiter(limiter, cfg.Security.RateLimit),
		web.WithRequestTimeout(cfg.Server.WriteTimeout-time.Second),
	)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}

// providers builds the charge strategies and webhook verifiers. Dev mode swaps the
// real gateways for in-memory ones but keeps real signature checks when secrets exist.
func providers(cfg *config.Config, logger *zerolog.Logger) ([]adapter.PaymentStrategy, []adapter.WebhookVerifier) {
	var (
		strategies []adapter.PaymentStrategy
		verifiers  []adapter.WebhookVerifier
	)
	pp := cfg.Payment.PayPal
	var paypalAPI *payAdapters.PayPalClient
	if pp.ClientID != "" {
		paypalAPI = payAdapters.NewPayPalClient(pp.BaseURL, pp.ClientID, pp.ClientSecret, 15*time.Second, nil)
	}

	if cfg.Runtime.Dev {
		strategies = append(strategies,
			payAdapters.NewNoopStrategy(model.MethodStripe),
			payAdapters.NewNoopStrategy(model.MethodPayPal),
		)
	} else {
		if cfg.Payment.Stripe.SecretKey != "" {
			strategies = append(strategies, payAdapters.NewStripeGateway(cfg.Payment.Stripe.SecretKey, nil))
		}
		if paypalAPI != nil {
			strategies = append(strategies, payAdapters.NewPayPalGateway(paypalAPI, pp.ReturnURL, pp.CancelURL, logger))
		}
	}

	if cfg.Payment.Stripe.WebhookSecret != "" {
		verifiers = append(verifiers, payAdapters.NewStripeWebhook(cfg.Payment.Stripe.WebhookSecret))
	}
	if paypalAPI != nil && pp.WebhookID != "" {
		verifiers = append(verifiers, payAdapters.NewPayPalWebhook(paypalAPI, pp.WebhookID))
	}
	if len(strategies) == 0 {
		logger.Warn().Msg("no payment provider credentials configured; charges will be rejected")
	}
	return strategies, verifiers
}
