package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tagstack/billingcore/ledger"
	"github.com/tagstack/billingcore/pkg/config"
	"github.com/tagstack/billingcore/pkg/httpserver"
	"github.com/tagstack/billingcore/pkg/logger"
	"github.com/tagstack/billingcore/pkg/pg"
	"github.com/tagstack/billingcore/pkg/redis"
	"github.com/tagstack/billingcore/reconciler"
	"github.com/tagstack/billingcore/tier"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`

	TierDefaultsPath string `env:"TIER_DEFAULTS_PATH"` // optional YAML override for quota defaults

	HTTP  httpserver.Config
	PG    pg.Config
	Redis redis.Config
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("billingd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	config.MustLoad(&cfg)

	logOpts := []logger.Option{logger.WithService("billingd")}
	if cfg.Environment == "development" {
		logOpts = append(logOpts, logger.WithDevelopment())
	}
	log := logger.New(logOpts...)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// The YAML override replaces the compiled-in quota table when present.
	if cfg.TierDefaultsPath != "" {
		table, err := (tier.FileSource{Path: cfg.TierDefaultsPath}).Load(ctx)
		if err != nil {
			return err
		}
		tier.Override(table)
	}

	quotaCache := ledger.NewQuotaCache(redisClient, ledger.DefaultQuotaTTL)
	ledgerSvc := ledger.NewService(ledger.NewPGStore(pool),
		ledger.WithCache(quotaCache),
		ledger.WithLogger(log))

	rec := reconciler.New(reconciler.NewPGStore(pool), ledgerSvc,
		reconciler.WithSubscriptionFetcher(reconciler.NewStripeFetcher(cfg.StripeSecretKey)),
		reconciler.WithQuotaCache(quotaCache),
		reconciler.WithLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/webhooks/stripe", reconciler.Handler(cfg.StripeWebhookSecret, rec, log))

	r.Get("/api/quota/{feature}", quotaHandler(ledgerSvc, log))

	r.Get("/healthz", healthHandler(
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))

	return httpserver.New(cfg.HTTP, log).Run(ctx, r)
}

// quotaHandler reports remaining capacity for one feature axis. The user id
// comes from the X-User-ID header set by the authenticating proxy in front of
// this service.
func quotaHandler(svc *ledger.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			http.Error(w, "missing or invalid user id", http.StatusUnauthorized)
			return
		}

		op := ledger.Operation(r.URL.Query().Get("operation"))
		if op == "" {
			op = ledger.OpCreate
		}

		feature := tier.Feature(chi.URLParam(r, "feature"))
		quota, err := svc.CheckLimit(r.Context(), userID, feature, op)
		if err != nil {
			log.ErrorContext(r.Context(), "quota check failed",
				logger.UserID(userID), logger.Feature(feature), logger.Error(err))
			http.Error(w, "quota check failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quota)
	}
}

func healthHandler(checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
