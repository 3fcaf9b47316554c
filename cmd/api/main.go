package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/travel-notifications/internal/config"
	"github.com/jwalitptl/travel-notifications/internal/handler/health"
	notificationHandler "github.com/jwalitptl/travel-notifications/internal/handler/notification"
	promHandler "github.com/jwalitptl/travel-notifications/internal/handler/prometheus"
	"github.com/jwalitptl/travel-notifications/internal/middleware"
	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/repository"
	"github.com/jwalitptl/travel-notifications/internal/repository/memory"
	"github.com/jwalitptl/travel-notifications/internal/repository/sqlstore"
	"github.com/jwalitptl/travel-notifications/internal/router"
	notificationService "github.com/jwalitptl/travel-notifications/internal/service/notification"
	"github.com/jwalitptl/travel-notifications/internal/viewmodel"
	"github.com/jwalitptl/travel-notifications/internal/worker"
	"github.com/jwalitptl/travel-notifications/pkg/auth"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
	changefeedRedis "github.com/jwalitptl/travel-notifications/pkg/changefeed/redis"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
)

// backend is the storage and feed wiring for one database driver.
type backend struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	feed          changefeed.Source
	ready         map[string]health.Pinger
	close         func()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.Format == "json",
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, "notifications", "")

	be, err := newBackend(cfg, log)
	if err != nil {
		log.Fatal(err, "failed to initialize storage", "driver", cfg.Database.Driver)
	}
	defer be.close()

	sessions := notificationService.NewService(viewmodel.Deps{
		Users:         be.users,
		Notifications: be.notifications,
		Feed:          be.feed,
		Logger:        log,
		Metrics:       m,
	}, viewmodel.Options{
		HistoryLimit: cfg.Notifications.HistoryLimit,
		AdminRoles:   model.NewRoleSet(cfg.Notifications.AdminRoles...),
		TimeFormat:   cfg.Notifications.TimeFormat,
	}, notificationService.Config{
		SessionTTL:     cfg.Notifications.SessionTTL,
		SessionCleanup: cfg.Notifications.SessionCleanup,
		ToastBuffer:    cfg.Notifications.ToastBuffer,
	})
	defer sessions.Close()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if cfg.Notifications.Retention > 0 {
		// Writes go through be.notifications so embedded modes publish the deletes.
		go worker.NewRetentionWorker(be.notifications, cfg.Notifications.Retention, cfg.Notifications.RetentionInterval, log).Start(workerCtx)
	}

	gin.SetMode(gin.ReleaseMode)
	jwt := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	routerConfig := router.RouterConfig{
		RateLimit:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:  cfg.RateLimit.Burst,
		CORSConfig: middleware.DefaultCORSConfig(),
		Logger:     log,
		Metrics:    m,
	}
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwt),
		notificationHandler.NewHandler(sessions),
		health.NewHandler(be.ready),
		promHandler.New(reg),
		routerConfig,
	)
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.TimeoutSeconds > 0 {
		srv.WriteTimeout = time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}

func newBackend(cfg *config.Config, log *logger.Logger) (*backend, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := sqlstore.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		broker, err := changefeedRedis.NewBroker(redisConfig(cfg.Redis), log)
		if err != nil {
			db.Close()
			return nil, err
		}
		// Triggers feed the relay, which publishes to redis; writes here stay plain.
		base := sqlstore.NewBaseRepository(db)
		return &backend{
			users:         sqlstore.NewUserRepository(base),
			notifications: sqlstore.NewNotificationRepository(base),
			feed:          broker,
			ready:         map[string]health.Pinger{"database": db, "redis": broker},
			close: func() {
				broker.Close()
				db.Close()
			},
		}, nil

	case config.DriverSQLite:
		db, err := sqlstore.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sqlstore.Migrate(ctx, db, config.DriverSQLite); err != nil {
			db.Close()
			return nil, err
		}
		hub := changefeed.NewHub(0)
		base := sqlstore.NewBaseRepository(db)
		return &backend{
			users:         sqlstore.NewUserRepository(base),
			notifications: repository.NewPublishingNotificationRepository(sqlstore.NewNotificationRepository(base), hub, log),
			feed:          hub,
			ready:         map[string]health.Pinger{"database": db},
			close:         func() { db.Close() },
		}, nil

	case config.DriverMemory:
		hub := changefeed.NewHub(0)
		return &backend{
			users:         memory.NewUserRepository(),
			notifications: repository.NewPublishingNotificationRepository(memory.NewNotificationRepository(), hub, log),
			feed:          hub,
			ready:         map[string]health.Pinger{},
			close:         func() {},
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

func redisConfig(c config.RedisConfig) changefeedRedis.Config {
	return changefeedRedis.Config{
		URL:           c.URL,
		MaxRetries:    c.MaxRetries,
		RetryBackoff:  c.RetryBackoff,
		PoolSize:      c.PoolSize,
		MinIdleConns:  c.MinIdleConns,
		ChannelPrefix: c.ChannelPrefix,
	}
}
