package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studylink/internal/auth"
	"studylink/internal/httpapi"
	"studylink/internal/monitoring"
	"studylink/internal/relay"
	"studylink/internal/storage"
	"studylink/internal/storage/local"
	"studylink/pkg/config"
	"studylink/pkg/logger"
	"studylink/pkg/tracing"

	"github.com/gin-gonic/gin"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/studylink/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.Endpoint,
		Environment: "production",
		SampleRate:  1.0,
	})
	if err != nil {
		log.Fatalw("failed to init tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(shutdownCtx)
	}()

	repo, closeRepo, err := storage.NewMeetingRepository(cfg, log)
	if err != nil {
		log.Fatalw("failed to create meeting repository", "error", err)
	}
	defer closeRepo()

	recordings, err := local.NewRecordingStore(cfg.Storage.RecordingsDir, log)
	if err != nil {
		log.Fatalw("failed to create recording store", "error", err)
	}

	apiTokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	var tokens *auth.TokenManager
	if cfg.Auth.Enabled {
		tokens = apiTokens
	}

	collector := monitoring.NewCollector()

	// Relay server
	relayCfg := relay.DefaultConfig()
	relayCfg.PingInterval = cfg.Relay.PingInterval
	relayCfg.PongTimeout = cfg.Relay.PongTimeout
	relayCfg.WriteTimeout = cfg.Relay.WriteTimeout
	if cfg.RateLimiting.Enabled {
		relayCfg.MessagesPerSecond = cfg.RateLimiting.MessagesPerSecond
		relayCfg.Burst = cfg.RateLimiting.Burst
		relayCfg.MaxMessageSize = cfg.RateLimiting.MaxMessageSizeBytes
	}
	relayServer := relay.NewServer(repo, tokens, collector, relayCfg, log)

	relayMux := http.NewServeMux()
	relayMux.HandleFunc("/ws", relayServer.HandleWebSocket)
	relaySrv := &http.Server{
		Addr:    cfg.Relay.Address,
		Handler: relayMux,
	}

	// HTTP API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.TracingMiddleware())
	router.Use(httpapi.ErrorMiddleware(log))

	handler := httpapi.NewMeetingHandler(repo, recordings, apiTokens, log)
	handler.OnRecordingStored(collector.RecordingStored)
	if cfg.Auth.Enabled {
		handler.SetupRoutes(router, httpapi.AuthMiddleware(apiTokens))
	} else {
		handler.SetupRoutes(router)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(collector.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting StudyLink API server on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		log.Infof("Starting StudyLink relay on %s", cfg.Relay.Address)
		if err := relaySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("relay server: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("api server shutdown failed", "error", err)
		apiSrv.Close()
	}
	if err := relaySrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("relay shutdown failed", "error", err)
		relaySrv.Close()
	}
	log.Info("shutdown complete")
}
