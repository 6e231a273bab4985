// Package auth собирает HTTP приложение сервиса авторизации: хранилище,
// кэш кодов, брокер, сервисы, маршруты и сервер.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/auth-service/internal/cache"
	"github.com/magabrotheeeer/auth-service/internal/config"
	"github.com/magabrotheeeer/auth-service/internal/http/routepolicy"
	"github.com/magabrotheeeer/auth-service/internal/lib/jwt"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	"github.com/magabrotheeeer/auth-service/internal/metrics"
	"github.com/magabrotheeeer/auth-service/internal/migrations"
	"github.com/magabrotheeeer/auth-service/internal/rabbitmq"
	services "github.com/magabrotheeeer/auth-service/internal/services/auth"
	healthsvc "github.com/magabrotheeeer/auth-service/internal/services/health"
	"github.com/magabrotheeeer/auth-service/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP приложение сервиса авторизации.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New создает все зависимости, применяет миграции и создает администратора.
// При ошибке уже открытые соединения закрываются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	const op = "app.auth.New"

	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.db, err = repository.New(ctx, cfg.StorageConnectionString); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(a.db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if a.cache, err = cache.InitServer(ctx, cfg.Redis); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if a.conn, err = rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	topology := rabbitmq.Topology{
		EventsExchange:        cfg.RabbitMQ.EventsExchange,
		NotificationsExchange: cfg.RabbitMQ.NotificationsExchange,
		Queues:                rabbitmq.GetNotificationQueues(cfg.RabbitMQ.RecoveryQueue),
	}
	if a.ch, err = rabbitmq.SetupChannel(a.conn, topology); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	go rabbitmq.WatchReturns(a.ch.NotifyReturn(make(chan amqp.Return, 16)), logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	maker, err := jwt.NewJWTMaker(jwt.Settings{
		SecretKey: cfg.JWTSecretKey,
		Issuer:    cfg.Issuer,
		TTL:       cfg.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	publisher := rabbitmq.NewPublisher(a.ch, topology.EventsExchange, topology.NotificationsExchange, logger, m)
	authService := services.NewAuthService(a.db, maker, a.cache, publisher, logger, m, cfg.Recovery.CodeTTL)

	if cfg.AdminSeed.Username != "" {
		if err = authService.EnsureAdmin(ctx, cfg.AdminSeed.Username, cfg.AdminSeed.Email, cfg.AdminSeed.Password); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	fallback := routepolicy.Public
	if cfg.RoutePolicy.Unmatched == config.UnmatchedDeny {
		fallback = routepolicy.Denied
	}

	router := chi.NewRouter()
	RegisterRoutes(router, Routes{
		Log:       logger,
		Users:     authService,
		Health:    healthsvc.NewService(logger, "auth-service", a.db, a.cache, a.conn),
		Policy:    routepolicy.Default(fallback),
		Tokens:    maker,
		Issuer:    maker.Issuer(),
		Metrics:   m,
		Gatherer:  reg,
		RateLimit: cfg.RateLimit,
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

// Run запускает HTTP сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", sl.Err(err))
		}
	}
}
