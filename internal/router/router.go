package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/travel-notifications/internal/middleware"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	notifications Handler
	health        Handler
	prometheus    Handler
	config        RouterConfig
}

type RouterConfig struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	notifications Handler,
	health Handler,
	prometheus Handler,
	config RouterConfig,
) *Router {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		notifications: notifications,
		health:        health,
		prometheus:    prometheus,
		config:        config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
	)
	if config.Metrics != nil {
		engine.Use(middleware.Metrics(config.Metrics))
	}
	engine.Use(middleware.CORS(config.CORSConfig))

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.health.RegisterRoutes(api)
	r.prometheus.RegisterRoutes(api)

	// Authenticate first so the limiter can key on the viewer.
	protected := api.Group("")
	protected.Use(
		r.auth.Authenticate(),
		middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		}).RateLimit(),
	)
	r.notifications.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
