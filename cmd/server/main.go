package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/httpapi"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/maps"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/rides"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// The claim primitive's correctness depends on the backing store, so a
	// broken store is fatal here rather than silently degraded.
	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("postgres", cfg.PGDSN)
		if err == nil {
			err = db.Ping()
		}
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			if err := runMigrations(db); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
	}

	var dir directory.Store
	var rideStore rides.Store
	if db != nil {
		dir = directory.NewPostgresStore(db)
		rideStore = rides.NewPostgresStore(db)
	} else {
		logger.Warn("PG_DSN unset, using in-memory stores")
		dir = directory.NewMemoryStore()
		rideStore = rides.NewMemoryStore()
	}

	var g geo.Geo
	if cfg.RedisAddr != "" {
		g = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		logger.Warn("REDIS_ADDR unset, using in-memory geo index")
		g = geo.NewIndex()
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic, cfg.KafkaRideTopic)
		defer producer.Close()
	}

	var geocoder maps.Geocoder
	if cfg.GoogleMapsKey != "" {
		geocoder, err = maps.NewService(cfg.GoogleMapsKey)
		if err != nil {
			logger.Error("maps client init failed", "error", err)
			os.Exit(1)
		}
	}

	var routes fare.RouteClient
	if cfg.OSRMEndpoint != "" {
		routes = fare.NewOSRMClient(cfg.OSRMEndpoint)
	}
	quoter := &fare.Calculator{
		Routes:          routes,
		Cache:           fare.NewCache(5 * time.Minute),
		DefaultSpeedMps: cfg.DefaultSpeedMps,
	}

	registry := presence.NewRegistry(dir, g, logger)
	notifier := notify.NewNotifier(registry, logger)
	broadcaster := dispatch.NewBroadcaster(g, notifier, cfg.DispatchRadiusM, cfg.DispatchLimit, logger)

	rideSvc := &rides.Service{
		Store:     rideStore,
		Dir:       dir,
		Notif:     notifier,
		Offers:    broadcaster,
		Quote:     quoter,
		OTPDigits: cfg.OTPDigits,
		Log:       logger,
	}
	if producer != nil {
		rideSvc.Events = producer
	}

	var stripeClient *payments.StripeClient
	if os.Getenv("STRIPE_API_KEY") != "" {
		stripeClient = payments.NewStripeClient(cfg.StripeWebhookSecret)
	}

	srv := httpapi.NewServer(httpapi.Options{
		Logger:      logger,
		Registry:    registry,
		Notifier:    notifier,
		Rides:       rideSvc,
		Broadcaster: broadcaster,
		Geo:         g,
		Directory:   dir,
		Geocoder:    geocoder,
		Payments:    stripeClient,
		Producer:    producer,
		Verifier:    auth.NewVerifier(cfg.JWTSecret),
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func runMigrations(db *sql.DB) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
