package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"workplacemapping/internal/cache"
	"workplacemapping/internal/config"
	"workplacemapping/internal/database"
	"workplacemapping/internal/delivery"
	"workplacemapping/internal/delivery/channels"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/metrics"
	"workplacemapping/internal/moderation"
	"workplacemapping/internal/repository"
	"workplacemapping/internal/services"
	"workplacemapping/internal/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/http/middleware"
	goamiddleware "goa.design/goa/v3/middleware"
)

const (
	shutdownTimeout = 30 * time.Second
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 60 * time.Second

	rateLimitWindow = time.Minute
)

var log = logging.For("api")

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"version": cfg.App.Version,
		"debug":   cfg.App.Debug,
		"port":    cfg.App.Port,
		"host":    cfg.App.Host,
	}).Infof("Starting %s", cfg.App.Name)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	db := database.GetDB()
	defer func() {
		log.Info("Closing database connections...")
		if sqlDB, err := db.DB(); err == nil {
			if closeErr := sqlDB.Close(); closeErr != nil {
				log.WithError(closeErr).Error("Error closing database")
			}
		}
	}()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		log.Info("redis connected")
	} else {
		log.Info("REDIS_URL not set, using in-process cache and rate limits")
	}

	// Repositories
	inquiries := repository.NewInquiryRepository(db)
	comments := repository.NewCommentRepository(db)
	posts := repository.NewPostRepository(db)
	users := repository.NewUserRepository(db)

	// Inquiry delivery
	chain, err := channels.FromConfig(&cfg.Delivery, channels.NewHTTPClient())
	if err != nil {
		log.Fatalf("Invalid channel configuration: %v", err)
	}
	orchestrator := delivery.NewOrchestrator(inquiries, chain, delivery.Options{
		ChannelTimeout: cfg.Delivery.ChannelTimeout(),
		Copy: delivery.Copy{
			ContactEmail: cfg.Delivery.ContactEmail,
			BookingURL:   cfg.Delivery.BookingURL,
		},
	})
	log.WithField("channels", orchestrator.Channels()).Info("notification channels ready")

	// Comment moderation
	mailer := services.NewEmailService(&cfg.Email)
	notifier := moderation.NewEmailNotifier(mailer, cfg.Comments.ModeratorEmail, cfg.App.SiteURL)
	var threads moderation.ThreadCache
	var contactLimiter, commentLimiter services.RateLimiter
	if rdb != nil {
		threads = cache.NewRedisThreadCache(rdb, cfg.Redis.TTL())
		contactLimiter = cache.NewRedisRateLimiter(rdb, "contact", cfg.Delivery.RateLimitPerMinute, rateLimitWindow)
		commentLimiter = cache.NewRedisRateLimiter(rdb, "comments", cfg.Comments.RateLimitPerMinute, rateLimitWindow)
	} else {
		threads = cache.NewMemoryThreadCache(cfg.Redis.TTL())
		contactMem := util.NewSlidingWindowLimiter(cfg.Delivery.RateLimitPerMinute, rateLimitWindow)
		commentMem := util.NewSlidingWindowLimiter(cfg.Comments.RateLimitPerMinute, rateLimitWindow)
		go contactMem.Run(ctx, rateLimitWindow)
		go commentMem.Run(ctx, rateLimitWindow)
		contactLimiter, commentLimiter = contactMem, commentMem
	}
	moderator := moderation.NewService(comments, posts, notifier, threads)

	// HTTP services
	signer := util.NewTokenSigner(cfg.Auth.SecretKey, time.Duration(cfg.Auth.TokenExpiryMinutes)*time.Minute)
	auth := services.NewAuthenticator(signer, users)

	clientIPs, err := services.NewClientIPs(cfg.App.TrustedProxies)
	if err != nil {
		log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
	}

	mux := goahttp.NewMuxer()
	services.NewHealthService(cfg.App.Name, database.HealthCheck, database.GetStats).Mount(mux)
	services.NewAuthService(users, signer).Mount(mux)
	services.NewContactService(orchestrator, inquiries, services.NewThrottle(contactLimiter, clientIPs), auth).Mount(mux)
	services.NewCommentService(moderator, services.NewThrottle(commentLimiter, clientIPs)).Mount(mux)
	services.NewAdminService(moderator, auth).Mount(mux)

	rootHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			promhttp.Handler().ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Security -> CORS -> RequestID -> Logging -> Prometheus -> Handler
	var handler http.Handler = metrics.PrometheusMiddleware(rootHandler)
	handler = requestLogging(handler)
	handler = middleware.PopulateRequestContext()(handler)
	handler = middleware.RequestID(middleware.UseXRequestIDHeaderOption(true))(handler)
	handler = setupCORS(handler, cfg)
	handler = setupSecurityHeaders(handler, cfg)

	addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server error: %w", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatalf("Server failed to start: %v", err)
	case sig := <-shutdown:
		log.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during graceful shutdown")
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("Shutdown timeout exceeded, forcing close...")
			_ = httpServer.Close()
		}
	}
	stop()

	log.Info("Server shutdown complete")
}

// validateConfig validates critical configuration values
func validateConfig(cfg *config.Config) error {
	if cfg.Auth.SecretKey == "" || cfg.Auth.SecretKey == "your-secret-key-change-in-production" {
		return fmt.Errorf("SECRET_KEY must be set and changed from default value")
	}
	if len(cfg.Auth.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters for security")
	}
	return nil
}

// setupSecurityHeaders adds security headers to responses
func setupSecurityHeaders(handler http.Handler, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		// HSTS only when served over TLS outside debug
		if !cfg.App.Debug && r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		handler.ServeHTTP(w, r)
	})
}

// setupCORS configures CORS based on environment
func setupCORS(handler http.Handler, cfg *config.Config) http.Handler {
	allowAll := len(cfg.CORS.AllowedOrigins) == 0 || cfg.CORS.AllowedOrigins[0] == "*"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if !cfg.App.Debug && !allowAll && origin != "" {
			allowed := false
			for _, allowedOrigin := range cfg.CORS.AllowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
		}

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		} else if cfg.App.Debug {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.CORS.AllowedMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.CORS.AllowedHeaders, ", "))
		w.Header().Set("Access-Control-Expose-Headers", "Content-Type, Authorization, X-Request-ID, Retry-After")
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", cfg.CORS.MaxAge))
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogging logs all incoming requests and their responses
func requestLogging(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			handler.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(wrapped, r)

		reqID, _ := r.Context().Value(goamiddleware.RequestIDKey).(string)
		entry := log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     wrapped.statusCode,
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
			"request_id": reqID,
		})
		if wrapped.statusCode >= http.StatusInternalServerError {
			entry.Warn("request completed with server error")
			return
		}
		entry.Info("request completed")
	})
}
