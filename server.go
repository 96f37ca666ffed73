package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/middlewares"
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/ordering"
	"bitbucket.org/mmdatafocus/menu_backend/tenant"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("menu_backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client func() *redis.Client
	limit  int64
	window time.Duration
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// newRouter wires every route onto a. Until ready reports true, everything except /healthz
// answers 503.
func newRouter(a *api, ready *atomic.Bool, limiter *RateLimiter) *gin.Engine {
	if a.logger == nil {
		a.logger = config.GetLogger()
	}
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if !ready.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.Use(cors.New(corsConfig()))
	r.Use(middlewares.AuthMiddleware(config.IdentitySecret(), a.superAdminId))
	r.Use(middlewares.LoaderMiddleware(a))
	r.Use(customErrorLogger(a.logger))
	r.Use(gin.Recovery())

	r.GET("/api/view", a.view)

	public := r.Group("/public/menu/:identifier")
	public.GET("", a.publicMenu)
	if limiter != nil {
		public.POST("/orders", limiter.RateLimitMiddleware, a.submitOrder)
	} else {
		public.POST("/orders", a.submitOrder)
	}

	private := r.Group("/api", middlewares.RequireIdentity())
	private.GET("/businesses", a.listBusinesses)
	private.POST("/businesses", a.createBusiness)
	private.PATCH("/businesses/:id", a.updateBusiness)
	private.GET("/businesses/:id/products", a.listProducts)
	private.POST("/businesses/:id/products", a.createProduct)
	private.GET("/businesses/:id/tables", a.listTables)
	private.POST("/businesses/:id/tables", a.createTable)
	private.GET("/businesses/:id/orders", a.listOrders)
	private.GET("/businesses/:id/orders/export", a.exportOrders)
	private.PATCH("/businesses/:id/orders/:orderId/status", a.updateOrderStatus)
	private.GET("/admin/businesses", a.adminBusinesses)

	r.NoRoute(customNotFoundHandler)
	return r
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// In production the allowlist comes from CORS_ALLOWED_ORIGINS (comma-separated); empty denies all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		if allowedOrigins == "" {
			// An empty AllowOrigins fails cors validation.
			config.GetLogger().WithFields(logrus.Fields{"field": "cors"}).Warn("CORS_ALLOWED_ORIGINS is empty; cross-origin requests are denied")
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PATCH", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	corsConfig.AllowCredentials = true
	return corsConfig
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	a := &api{
		superAdminId: config.SuperAdminAccountId(),
		param:        config.PublicMenuParam(),
		viewWait:     config.PublicMenuTimeout,
		logger:       logger,
		tracer:       tracer,
	}

	var limiter *RateLimiter
	if config.RateLimitEnabled() {
		limiter = NewRateLimiter(config.GetRedisDB,
			int64(envInt("RATE_LIMIT_MAX_REQUESTS", 30)),
			time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60))*time.Second)
	}

	// Start the HTTP server ASAP; app endpoints answer 503 until the store is ready.
	var ready atomic.Bool
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(a, &ready, limiter),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	var cache tenant.Cache
	switch config.StoreDriver() {
	case config.StoreDriverMemory:
		logger.WithFields(logrus.Fields{"field": "store"}).Warn("STORE_DRIVER=memory; data is lost on restart")
		a.setStore(models.NewMemoryStore(), nil)
	default:
		// Connect dependencies after the port is open.
		config.ConnectDatabaseWithRetry()
		config.ConnectRedisWithRetry()

		db := config.GetDB()
		sqlDB, _ := db.DB()
		defer func() {
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		}()
		// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
		if !config.SkipMigrations() {
			models.MigrateTable()
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
		if ttl := config.ResolverCacheTTL(); ttl > 0 {
			cache = tenant.NewRedisCache(ttl)
		}
		a.setStore(models.NewGormStore(db, config.GetRedisLock()), cache)
	}
	ready.Store(true)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// setStore installs the store and everything built on it. Call before the router reports ready.
func (a *api) setStore(store models.Store, cache tenant.Cache) {
	a.store = store
	a.resolver = tenant.NewResolver(store, cache, a.logger)
	a.submitter = ordering.NewSubmitter(ordering.Options{
		Store:         store,
		MessagingHost: config.MessagingHost(),
		CountryCode:   config.DefaultCountryCode(),
		Logger:        a.logger,
		Tracer:        a.tracer,
	})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance. client is looked up per request so the limiter can
// be installed before Redis connects; without a client requests pass.
func NewRateLimiter(client func() *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.client()
	if client == nil {
		c.Next()
		return
	}
	key := "ratelimit:" + c.FullPath() + ":" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
