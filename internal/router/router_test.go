package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/travel-notifications/internal/handler/health"
	notificationHandler "github.com/jwalitptl/travel-notifications/internal/handler/notification"
	promHandler "github.com/jwalitptl/travel-notifications/internal/handler/prometheus"
	"github.com/jwalitptl/travel-notifications/internal/middleware"
	"github.com/jwalitptl/travel-notifications/internal/repository/memory"
	"github.com/jwalitptl/travel-notifications/internal/service/notification"
	"github.com/jwalitptl/travel-notifications/internal/viewmodel"
	"github.com/jwalitptl/travel-notifications/pkg/auth"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
)

func newTestRouter(t *testing.T, ready error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "test", "")
	hub := changefeed.NewHub(4)
	svc := notification.NewService(viewmodel.Deps{
		Users:         memory.NewUserRepository(),
		Notifications: memory.NewNotificationRepository(),
		Feed:          hub,
		Metrics:       m,
	}, viewmodel.Options{}, notification.Config{})
	t.Cleanup(svc.Close)

	config := RouterConfig{RateLimit: 100, RateBurst: 100, CORSConfig: middleware.DefaultCORSConfig(), Metrics: m}
	r := NewRouter(
		middleware.NewAuthMiddleware(auth.NewJWTService("router-secret-0123456", "travel", time.Hour)),
		notificationHandler.NewHandler(svc),
		health.NewHandler(map[string]health.Pinger{
			"database": health.PingFunc(func(context.Context) error { return ready }),
		}),
		promHandler.New(reg),
		config,
	)
	r.Setup()
	return r.Engine()
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthRoutes(t *testing.T) {
	engine := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, get(engine, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusOK, get(engine, "/api/v1/health/ready").Code)

	down := newTestRouter(t, errors.New("connection refused"))
	w := get(down, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database connection failed")
}

func TestNotificationsAreProtected(t *testing.T) {
	engine := newTestRouter(t, nil)
	w := get(engine, "/api/v1/notifications")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	engine := newTestRouter(t, nil)
	get(engine, "/api/v1/health/live")

	w := get(engine, "/api/v1/health/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/api/v1/health/live"`)
}
