package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/launchkit/modules/billing"
	"github.com/dmitrymomot/launchkit/pkg/audit"
	billingpkg "github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/pkg/config"
	"github.com/dmitrymomot/launchkit/pkg/email"
	"github.com/dmitrymomot/launchkit/pkg/feature"
	"github.com/dmitrymomot/launchkit/pkg/httpserver"
	"github.com/dmitrymomot/launchkit/pkg/idempotency"
	"github.com/dmitrymomot/launchkit/pkg/linktoken"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/mongo"
	"github.com/dmitrymomot/launchkit/pkg/pg"
	redisconn "github.com/dmitrymomot/launchkit/pkg/redis"
	"github.com/dmitrymomot/launchkit/svc/guest"
	"github.com/dmitrymomot/launchkit/svc/profile"
	"github.com/dmitrymomot/launchkit/svc/reconcile"
	"github.com/dmitrymomot/launchkit/svc/subscription"
)

type appConfig struct {
	AppEnv          string        `env:"APP_ENV" envDefault:"development"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"launchkit"`
	AuditBackend    string        `env:"AUDIT_BACKEND" envDefault:"postgres"` // postgres or mongo
	MongoDatabase   string        `env:"AUDIT_MONGO_DATABASE" envDefault:"launchkit"`
	FlagsPath       string        `env:"FEATURE_FLAGS_PATH"`
	LinkTokenSecret string        `env:"LINK_TOKEN_SECRET,required"`
	LinkTokenTTL    time.Duration `env:"LINK_TOKEN_TTL" envDefault:"15m"`
}

func main() {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	var log *slog.Logger
	if appCfg.AppEnv == "production" {
		log = logger.New(logger.WithProduction(appCfg.ServiceName))
	} else {
		log = logger.New(logger.WithDevelopment(appCfg.ServiceName))
	}
	logger.SetAsDefault(log)

	ctx := context.Background()

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		log.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	var redisCfg redisconn.Config
	config.MustLoad(&redisCfg)
	redisClient, err := redisconn.Connect(ctx, redisCfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	var auditStorage audit.Storage
	if appCfg.AuditBackend == "mongo" {
		var mongoCfg mongo.Config
		config.MustLoad(&mongoCfg)
		db, err := mongo.NewWithDatabase(ctx, mongoCfg, appCfg.MongoDatabase)
		if err != nil {
			log.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		auditStorage = audit.NewMongoStorage(db, "reconciliation_log")
	} else {
		auditStorage = audit.NewPostgresStorage(pool)
	}
	auditLog := audit.NewLogger(auditStorage)

	var stripeCfg billingpkg.Config
	config.MustLoad(&stripeCfg)
	gateway := billingpkg.MustNewStripeGateway(stripeCfg)

	profileStore := profile.NewPGStore(pool)
	profileSvc := profile.NewService(profileStore, gateway, log)

	subStore := subscription.NewPGStore(pool)
	syncer := subscription.NewSyncer(subStore, gateway, log)

	guestStore := guest.NewPGStore(pool)
	tracker := guest.NewTracker(guestStore, gateway, profileStore, log)

	deduper := idempotency.NewRedisDeduper(redisClient, "billing:events", idempotency.DefaultDedupeTTL)
	locker := idempotency.NewRedisLocker(redisClient, "billing:locks")

	// Without Postmark credentials notifications go to the log.
	var sender email.Sender
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err == nil && emailCfg.PostmarkServerToken != "" {
		sender, err = email.NewPostmarkSender(emailCfg)
		if err != nil {
			log.Warn("postmark sender unavailable, falling back to log sender", "error", err)
			sender = email.NewLogSender(log)
		}
	} else {
		sender = email.NewLogSender(log)
	}

	reconciler := reconcile.NewService(
		tracker, profileStore, gateway, syncer, locker, auditLog, log,
		reconcile.WithEmailSender(sender),
	)

	tokens, err := linktoken.NewIssuer(appCfg.LinkTokenSecret, appCfg.LinkTokenTTL)
	if err != nil {
		log.Error("failed to create link token issuer", "error", err)
		os.Exit(1)
	}

	linkOpts := []billing.LinkOption{}
	if appCfg.FlagsPath != "" {
		flags, err := feature.LoadFlags(appCfg.FlagsPath, nil, func(context.Context) string {
			return appCfg.AppEnv
		})
		if err != nil {
			log.Error("failed to load feature flags", "path", appCfg.FlagsPath, "error", err)
			os.Exit(1)
		}
		provider, err := feature.NewMemoryProvider(flags...)
		if err != nil {
			log.Error("failed to build feature provider", "error", err)
			os.Exit(1)
		}
		linkOpts = append(linkOpts, billing.WithFeatureGate(provider, "guest-checkout-linking"))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Mount("/", billing.Router(billing.RouterOptions{
		Webhook:   billing.NewWebhookService(gateway, deduper, tracker, profileStore, syncer, log),
		Link:      billing.NewLinkService(reconciler, tokens, log, linkOpts...),
		Customers: billing.NewCustomerService(profileSvc, log),
		Billing:   billing.NewAccountService(gateway, profileStore, log),
	}))

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)
	if err := httpserver.New(httpCfg, log).Run(ctx, r); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
