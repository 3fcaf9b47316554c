package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/travel-notifications/internal/config"
	promHandler "github.com/jwalitptl/travel-notifications/internal/handler/prometheus"
	"github.com/jwalitptl/travel-notifications/internal/repository/sqlstore"
	changefeedRedis "github.com/jwalitptl/travel-notifications/pkg/changefeed/redis"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
)

// The relay turns postgres trigger notifications into redis change events for
// the API instances.
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
	}).WithFields(map[string]interface{}{"component": "relay"})

	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatal(errors.New("relay requires the postgres driver"), "invalid configuration", "driver", cfg.Database.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Relay.Migrate {
		db, err := sqlstore.NewDB(cfg.Database)
		if err != nil {
			log.Fatal(err, "failed to connect to database")
		}
		if err := sqlstore.Migrate(ctx, db, config.DriverPostgres); err != nil {
			log.Fatal(err, "failed to apply schema")
		}
		db.Close()
	}

	broker, err := changefeedRedis.NewBroker(changefeedRedis.Config{
		URL:           cfg.Redis.URL,
		MaxRetries:    cfg.Redis.MaxRetries,
		RetryBackoff:  cfg.Redis.RetryBackoff,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		ChannelPrefix: cfg.Redis.ChannelPrefix,
	}, log)
	if err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "notifications", "relay")

	var srv *http.Server
	if cfg.Relay.MetricsPort > 0 {
		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.GET("/metrics", promHandler.New(reg).Handler())
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Relay.MetricsPort),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(err, "metrics server stopped")
			}
		}()
	}

	relay := sqlstore.NewRelay(cfg.Database.DSN(), broker, log, m)
	if err := relay.Run(ctx); err != nil {
		log.Error(err, "relay stopped")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	log.Info("relay exited")
}
