// Command twofactord serves the two-factor authentication API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/twofactor/handler"
	"github.com/dmitrymomot/twofactor/modules/account"
	"github.com/dmitrymomot/twofactor/pkg/audit"
	"github.com/dmitrymomot/twofactor/pkg/broadcast"
	"github.com/dmitrymomot/twofactor/pkg/config"
	"github.com/dmitrymomot/twofactor/pkg/email"
	"github.com/dmitrymomot/twofactor/pkg/httpserver"
	"github.com/dmitrymomot/twofactor/pkg/lockout"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/pg"
	"github.com/dmitrymomot/twofactor/pkg/ratelimiter"
	"github.com/dmitrymomot/twofactor/pkg/redis"
	"github.com/dmitrymomot/twofactor/pkg/secrets"
	"github.com/dmitrymomot/twofactor/svc/auth"
	"github.com/dmitrymomot/twofactor/svc/twofactor"
	"github.com/dmitrymomot/twofactor/svc/twofactor/pgstore"
)

type appConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	Service       string `env:"APP_SERVICE" envDefault:"twofactord"`
	AccountsTable string `env:"ACCOUNTS_TABLE" envDefault:"accounts"`
	EventBuffer   int    `env:"EVENT_BUFFER" envDefault:"64"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("twofactord stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	appCfg, err := config.Load[appConfig]()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(appCfg.Env, appCfg.Service),
		logger.WithContextExtractors(handler.RequestIDExtractor(), handler.ClientIPExtractor()),
		logger.WithRedactedKeys("code", "secret", "backup_codes"),
	)
	logger.SetAsDefault(log)

	pgCfg, err := config.Load[pg.Config]()
	if err != nil {
		return err
	}
	redisCfg, err := config.Load[redis.Config]()
	if err != nil {
		return err
	}
	httpCfg, err := config.Load[httpserver.Config]()
	if err != nil {
		return err
	}
	emailCfg, err := config.Load[email.Config]()
	if err != nil {
		return err
	}
	limitCfg, err := config.Load[ratelimiter.Config](config.WithPrefix("TWOFACTOR_"))
	if err != nil {
		return err
	}
	tfCfg, err := config.Load[twofactor.Config](config.WithPrefix("TWOFACTOR_"))
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), pgCfg, log); err != nil {
		pool.Close()
		return err
	}

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		pool.Close()
		return err
	}

	keyring, err := secrets.NewKeyringFromBase64(tfCfg.MasterKey)
	if err != nil {
		pool.Close()
		return errors.Join(err, rdb.Close())
	}

	guard, err := lockout.NewGuard(lockout.NewRedisStore(rdb, lockout.WithKeyPrefix("twofactor:lockout:")), tfCfg.Lockout)
	if err != nil {
		pool.Close()
		return errors.Join(err, rdb.Close())
	}

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb), limitCfg)
	if err != nil {
		pool.Close()
		return errors.Join(err, rdb.Close())
	}

	sender, err := email.NewSender(emailCfg)
	if err != nil {
		pool.Close()
		return errors.Join(err, rdb.Close())
	}

	accounts := pgstore.NewAccounts(pool, appCfg.AccountsTable)

	trail, err := audit.NewLogger(pgstore.NewAuditStorage(pool),
		audit.WithRequestIDExtractor(handler.RequestIDFromContext),
		audit.WithIPExtractor(handler.ClientIPFromContext),
	)
	if err != nil {
		pool.Close()
		return errors.Join(err, rdb.Close())
	}

	hub := broadcast.NewMemoryBroadcaster[twofactor.SecurityEvent](appCfg.EventBuffer,
		broadcast.WithDropHandler(func(topic string) {
			log.Warn("security event subscriber dropped", logger.Event(topic), logger.Component("broadcast"))
		}),
	)

	svc, err := twofactor.NewService(tfCfg, pgstore.New(pool), accounts, guard, keyring,
		twofactor.WithLogger(log),
		twofactor.WithEventPublisher(twofactor.MultiPublisher{
			twofactor.NewAuditPublisher(trail),
			twofactor.NewBroadcastPublisher(hub),
		}),
	)
	if err != nil {
		pool.Close()
		return errors.Join(err, rdb.Close(), hub.Close())
	}

	notifyCtx, stopNotifier := context.WithCancel(ctx)
	defer stopNotifier()
	notifier := twofactor.NewNotifier(sender, accounts, log)
	go notifier.Run(notifyCtx, hub.Subscribe(notifyCtx))

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, handler.ClientIP, middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, map[string]httpserver.Check{
		"postgres": pg.Healthcheck(pool),
		"redis":    redis.Healthcheck(rdb),
	}))

	r.Mount("/", account.Router(account.RouterOptions{
		TwoFactor: account.NewTwoFactorService(svc,
			handler.NewErrorHandler(log, handler.WithErrorMapper(account.MapTwoFactorError)),
			account.WithRateLimiter(limiter),
			account.WithActivity(trail),
		),
		Middlewares: []func(http.Handler) http.Handler{
			auth.Middleware(auth.HeaderResolver(), log),
		},
	}))

	// Closers run in reverse order: the hub stops first, the pool last.
	srv := httpserver.New(httpCfg, r,
		httpserver.WithLogger(log),
		httpserver.WithCloser("postgres", func(context.Context) error {
			pool.Close()
			return nil
		}),
		httpserver.WithCloser("redis", func(context.Context) error {
			return rdb.Close()
		}),
		httpserver.WithCloser("events", func(context.Context) error {
			stopNotifier()
			return hub.Close()
		}),
	)

	return srv.Run(ctx)
}
