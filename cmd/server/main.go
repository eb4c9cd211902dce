package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/config"
	"github.com/beaverapp/beaver-server-go/internal/database"
	"github.com/beaverapp/beaver-server-go/internal/handler"
	"github.com/beaverapp/beaver-server-go/internal/jobs"
	"github.com/beaverapp/beaver-server-go/internal/middleware"
	"github.com/beaverapp/beaver-server-go/internal/notify"
	"github.com/beaverapp/beaver-server-go/internal/redis"
	"github.com/beaverapp/beaver-server-go/internal/relay"
	"github.com/beaverapp/beaver-server-go/internal/repository"
	"github.com/beaverapp/beaver-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	gpsRepo := repository.NewGpsRepository(db.DB)
	alertRepo := repository.NewAlertRepository(db.DB)

	sessionService := service.NewSessionService(sessionRepo, gpsRepo)
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	broker := relay.NewBroker(redisClient, sessionService)
	defer broker.Close()

	provider := notify.NewTwilioProvider(
		cfg.TwilioAccountSID, cfg.TwilioAuthToken,
		cfg.TwilioWhatsAppNumber, cfg.TwilioPhoneNumber,
		cfg.WhatsAppTemplateSID,
	)
	dispatcher := notify.NewDispatcher(provider, alertRepo, sessionRepo, cfg.TrackingURL)

	generalLimit := middleware.NewIPRateLimitMiddleware(rateLimiter, config.GeneralLimit, config.GeneralWindow, "general")
	sessionCreateLimit := middleware.NewIPRateLimitMiddleware(rateLimiter, config.SessionCreateLimit, config.SessionCreateWindow, "session")
	alertSendLimit := middleware.NewIPRateLimitMiddleware(rateLimiter, config.AlertSendLimit, config.AlertSendWindow, "alert")
	bodyLimit := middleware.NewBodyLimitMiddleware(0)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(isProduction)

	sessionHandler := handler.NewSessionHandler(sessionService, broker, cfg)
	alertHandler := handler.NewAlertHandler(sessionService, dispatcher)
	realtimeHandler := handler.NewRealtimeHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	// The websocket endpoint stays outside the request timeout and body
	// limit; connections are long-lived.
	r.Get("/ws", realtimeHandler.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimit.Handler)
		r.Use(generalLimit.Handler)

		r.Route("/session", func(r chi.Router) {
			r.With(sessionCreateLimit.Handler).Post("/", sessionHandler.CreateSession)
			r.Get("/{sessionID}", sessionHandler.GetSession)
			r.Get("/{sessionID}/track", sessionHandler.GetTrack)
			r.Post("/{sessionID}/deactivate", sessionHandler.Deactivate)
		})

		r.Route("/alert", func(r chi.Router) {
			r.Use(alertSendLimit.Handler)
			r.Mount("/", alertHandler.Routes())
		})
	})

	sweepJob := jobs.NewSweepJob(sessionService, config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
