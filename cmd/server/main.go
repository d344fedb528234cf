package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"blackhole/internal/agents"
	"blackhole/internal/config"
	"blackhole/internal/database"
	"blackhole/internal/handlers"
	"blackhole/internal/livedata"
	"blackhole/internal/logging"
	"blackhole/internal/metrics"
)

func main() {
	// Load .env file (ignore error if file doesn't exist)
	envErr := godotenv.Load()

	cfg := config.Load()
	if path := os.Getenv("BLACKHOLE_CONFIG"); path != "" {
		overlaid, err := config.LoadFile(path, cfg)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load config file")
		}
		cfg = overlaid
	}

	logging.Init(cfg.Environment, cfg.LogLevel)
	log := logging.Component("server")
	if envErr != nil {
		log.WithError(envErr).Debug("No .env file loaded")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	log.WithFields(logrus.Fields{"port": cfg.Port, "environment": cfg.Environment}).Info("Starting blackhole agents server")

	// The gauge reads the manager lazily, so it can be registered first
	var conn *database.ConnectionManager
	m := metrics.New(prometheus.DefaultRegisterer, func() int { return conn.Status().ReadyState })

	conn = database.NewConnectionManager(dialerFor(cfg), database.Options{
		URI:            cfg.MongoURI,
		DatabaseName:   cfg.MongoDBName,
		ConnectTimeout: cfg.ConnectTimeout,
		PollInterval:   cfg.PollInterval,
		PollAttempts:   cfg.PollAttempts,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logging.Component("database"),
		Observer:       m,
	})

	// Warm the connection; a failure leaves the fallback store in place
	warmCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	if conn.Connect(warmCtx).IsFallback() {
		log.Warn("Database unavailable at startup, serving from fallback store")
	}
	cancel()

	fetcher := livedata.NewFetcher(livedata.FetcherOptions{
		Client:        &http.Client{Timeout: 30 * time.Second},
		UserAgent:     cfg.UserAgent,
		RatePerSecond: cfg.LiveDataRate,
	})
	cache := liveDataCache(cfg, log)
	defer cache.Close()

	manager := agents.NewDefaultManager(agents.Deps{
		Store:   conn,
		Logger:  logging.Component("agents"),
		Metrics: m,
		OCR:     ocrEngine(log),
		Fetcher: fetcher,
		Sources: livedata.NewSources(
			livedata.NewWeatherSource(fetcher, cfg.WeatherURL),
			livedata.NewWebSource(fetcher),
		),
		Cache:         cache,
		Languages:     cfg.OCRLanguages,
		LiveDataTTL:   cfg.LiveDataTTL,
		EmbeddingDims: cfg.EmbeddingDimensions,
		MaxFileBytes:  int64(cfg.MaxUploadBytes),
	})
	for _, a := range manager.Agents() {
		log.WithFields(logrus.Fields{"type": a.Type, "agent": a.Name, "agent_id": a.ID}).Info("Agent registered")
	}

	app := fiber.New(fiber.Config{
		AppName:      "blackhole agents",
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
		// multipart overhead on top of the largest accepted file
		BodyLimit: cfg.MaxUploadBytes + 1<<20,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("blackhole")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	handlers.Setup(app,
		handlers.NewHealthHandler(conn, manager),
		handlers.NewProcessHandler(manager, int64(cfg.MaxUploadBytes)),
	)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down server")
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Warn("Error shutting down server")
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Error("Failed to start server")
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelClose()
	if err := conn.Close(closeCtx); err != nil {
		log.WithError(err).Warn("Error closing database connection")
	}
}

func dialerFor(cfg *config.Config) database.Dialer {
	if strings.HasPrefix(cfg.MongoURI, "memory://") {
		return database.NewMemoryDialer(cfg.MongoURI)
	}
	return database.NewMongoDialer(cfg.MongoDBName)
}

// liveDataCache uses Redis when configured and reachable, the in-process cache otherwise
func liveDataCache(cfg *config.Config, log *logrus.Entry) livedata.Cache {
	if cfg.RedisURL != "" {
		redisCache, err := livedata.NewRedisCache(context.Background(), cfg.RedisURL)
		if err == nil {
			log.Info("Live data cache: redis")
			return redisCache
		}
		log.WithError(err).Warn("Redis unavailable, using in-memory live data cache")
	}
	return livedata.NewMemoryCache(cfg.LiveDataTTL)
}
