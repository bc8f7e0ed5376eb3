package main

import (
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/crowdvest/backend/src/config"
	"github.com/username/crowdvest/backend/src/database"
	"github.com/username/crowdvest/backend/src/handlers"
	"github.com/username/crowdvest/backend/src/logger"
	"github.com/username/crowdvest/backend/src/security"
	"github.com/username/crowdvest/backend/src/services"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("CrowdVest backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret)
	settlementGateway := services.NewSettlementGateway(config.Cfg.SettlementAPIBaseURL, config.Cfg.SettlementAPIKey)
	settlementPoller := services.NewSettlementPoller(
		settlementGateway,
		config.Cfg.SettlementPollInterval,
		config.Cfg.SettlementPollMaxAttempt,
		nil,
	)
	portfolioService := services.NewPortfolioService(database.DB, reportCache)
	settlementService := services.NewSettlementService(
		database.DB,
		settlementGateway,
		settlementPoller,
		portfolioService,
		config.Cfg.InvestSessionTTL,
	)

	userHandler := handlers.NewUserHandler(authService, reportCache)
	campaignHandler := handlers.NewCampaignHandler()
	investmentHandler := handlers.NewInvestmentHandler(settlementService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
	payoutHandler := handlers.NewPayoutHandler(portfolioService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "CrowdVest Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Get("/auth/csrf", handlers.GetCSRFToken)
			r.Get("/campaigns", campaignHandler.HandleListCampaigns)
			r.Get("/campaigns/{slug}", campaignHandler.HandleGetCampaign)
		})

		// Authentication routes (CSRF protected)
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Post("/auth/login", userHandler.LoginUserHandler)
			r.Post("/auth/register", userHandler.RegisterUserHandler)
			r.Post("/auth/refresh", userHandler.RefreshTokenHandler)
			r.With(userHandler.AuthMiddleware).Post("/auth/logout", userHandler.LogoutUserHandler)
		})

		// Protected routes (authentication plus CSRF)
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Use(userHandler.AuthMiddleware)

			r.Get("/user/profile", userHandler.HandleGetProfile)

			r.Post("/campaigns/{slug}/invest-sessions", investmentHandler.HandleStartSession)
			r.Get("/invest-sessions/{sessionID}", investmentHandler.HandleGetSession)
			r.Delete("/invest-sessions/{sessionID}", investmentHandler.HandleCancelSession)
			r.Post("/invest-sessions/{sessionID}/amount", investmentHandler.HandleSetAmount)
			r.Post("/invest-sessions/{sessionID}/confirm-risk", investmentHandler.HandleConfirmRisk)
			r.Post("/invest-sessions/{sessionID}/submit", investmentHandler.HandleSubmit)
			r.Post("/invest-sessions/{sessionID}/retry", investmentHandler.HandleRetry)

			r.Get("/investments", investmentHandler.HandleListInvestments)
			r.Get("/payouts", investmentHandler.HandleListPayouts)
			r.Get("/portfolio/performance", portfolioHandler.HandleGetPerformance)

			// Administration routes
			r.Group(func(r chi.Router) {
				r.Use(userHandler.AdminMiddleware)
				r.Post("/admin/payouts", payoutHandler.HandleCreatePayout)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
