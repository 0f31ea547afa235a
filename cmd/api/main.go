package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carrental/internal/api"
	"carrental/internal/config"
	"carrental/internal/database"
	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/google"
	"carrental/internal/logging"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/repository"
	"carrental/internal/service"
	"carrental/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cars, err := loadCars(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(ctx, cfg, cars, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	cache := initCache(redisClient, &logger)

	syncWorker := worker.NewSyncWorker(db, redisClient, worker.PolicyFromConfig(cfg.Worker), logging.Component(&logger, "worker"))
	if publisher := initAMQP(cfg, &logger); publisher != nil {
		defer publisher.Close()
		syncWorker.WithEventSink(publisher)
	}
	if mirror := initGoogleSheets(ctx, cfg, &logger); mirror != nil {
		syncWorker.WithSheets(mirror)
	}

	eventBus := events.NewEventBus()
	bindEvents(ctx, eventBus, syncWorker, &logger)

	svc := api.Services{
		Cars: service.NewCarService(db, eventBus, syncWorker, logging.Component(&logger, "cars")),
		Bookings: service.NewBookingService(db, cache, eventBus, syncWorker, service.BookingLimits{
			MaxBookingDays: cfg.Booking.MaxBookingDays,
			Attempts:       cfg.Booking.RateLimitAttempts,
			Window:         time.Duration(cfg.Booking.RateLimitWindow) * time.Second,
		}, logging.Component(&logger, "bookings")),
		Payments:  service.NewPaymentService(db, eventBus, logging.Component(&logger, "payments")),
		Dashboard: service.NewDashboardService(db, logging.Component(&logger, "dashboard")),
		Rates: service.NewRatesService(
			service.NewHTTPRateProvider(cfg.Rates.BaseURL, cfg.Rates.Timeout),
			cache, cfg.Rates.TTL, logging.Component(&logger, "rates"),
		),
	}

	handler := api.NewHandler(svc, cfg.Auth, cfg.API.RateLimit, db, logging.Component(&logger, "http"))
	httpServer := api.NewHTTPServer(cfg.API, handler.Routes(), &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, api.NewCatalogService(svc.Cars, svc.Bookings), &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	go syncWorker.Start(ctx)
	go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadCars merges the catalog seed file with cars declared inline in the
// config. A missing seed file is not an error.
func loadCars(cfg *config.Config, logger *zerolog.Logger) ([]models.Car, error) {
	carsPath := os.Getenv("CARS_PATH")
	if carsPath == "" {
		carsPath = "configs/cars.yaml"
	}

	cars := append([]models.Car(nil), cfg.Cars...)
	data, err := os.ReadFile(carsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info().Str("cars_path", carsPath).Msg("no car seed file")
		return cars, nil
	case err != nil:
		logger.Error().Err(err).Str("cars_path", carsPath).Msg("read cars")
		return nil, err
	}

	var seed struct {
		Cars []models.Car `yaml:"cars"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("cars_path", carsPath).Msg("parse cars")
		return nil, err
	}

	cars = append(cars, seed.Cars...)
	if err := config.ValidateCars(cars); err != nil {
		return nil, fmt.Errorf("invalid car seed: %w", err)
	}
	return cars, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, cars []models.Car, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	for i := range cars {
		if err := db.UpsertCar(ctx, &cars[i]); err != nil {
			db.Close()
			return nil, err
		}
	}
	if len(cars) > 0 {
		logger.Info().Int("cars", len(cars)).Msg("car catalog seeded")
	}
	if failed, err := db.GetFailedSyncTasks(ctx); err == nil && len(failed) > 0 {
		logger.Warn().Int("failed_tasks", len(failed)).Msg("sync queue holds dead tasks")
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initCache prefers redis and falls back to process memory when redis is
// absent or failing.
func initCache(client *redis.Client, logger *zerolog.Logger) domain.CacheRepository {
	memory := repository.NewMemoryCacheRepository(time.Now)
	if client == nil {
		return memory
	}
	return repository.NewFailoverCacheRepository(
		repository.NewRedisCacheRepository(client), memory, logging.Component(logger, "cache"),
	)
}

func initAMQP(cfg *config.Config, logger *zerolog.Logger) *events.AMQPPublisher {
	if cfg.Events.AMQPURL == "" {
		return nil
	}

	publisher, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp init failed, continuing without event publishing")
		return nil
	}

	logger.Info().Str("exchange", cfg.Events.Exchange).Msg("amqp connected")
	return publisher
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsMirror {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	mirror, err := google.NewSheetsMirror(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID,
		logging.Component(logger, "sheets"))
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := mirror.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header check failed, continuing without sheets")
		return nil
	}
	if err := mirror.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return mirror
}

// bindEvents forwards every domain event to the worker, which delivers it to
// the broker with retries.
func bindEvents(ctx context.Context, bus *events.EventBus, w *worker.SyncWorker, logger *zerolog.Logger) {
	bus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})
	if !w.Accepts(models.TaskPublishEvent) {
		return
	}

	forward := func(event *events.Event) error {
		var ref struct {
			BookingID int64 `json:"booking_id"`
		}
		_ = json.Unmarshal(event.Payload, &ref)
		return w.EnqueueTask(ctx, models.TaskPublishEvent, ref.BookingID, event)
	}
	for _, eventType := range events.AllEventTypes {
		bus.Subscribe(eventType, forward)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
