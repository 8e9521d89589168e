package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"agendamento/internal/api"
	"agendamento/internal/booking"
	"agendamento/internal/config"
	"agendamento/internal/database"
	"agendamento/internal/domain"
	"agendamento/internal/events"
	"agendamento/internal/export"
	"agendamento/internal/google"
	"agendamento/internal/logging"
	"agendamento/internal/metrics"
	"agendamento/internal/models"
	"agendamento/internal/repository"
	"agendamento/internal/service"
	"agendamento/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(args []string) error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	catalog, err := loadCatalog(cfg, &logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger,
		database.WithCatalog(catalog),
		database.WithBusyTimeout(cfg.Database.BusyTimeoutMS),
	)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if len(args) > 0 && args[0] == "export" {
		return exportToFile(cfg, catalog, db, args[1:], &logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	draftTTL := time.Duration(models.DefaultRedisTTL) * time.Second
	var primary domain.DraftRepository = repository.NewMemoryDraftRepository(draftTTL)
	if redisClient != nil {
		primary = repository.NewRedisDraftRepository(redisClient, draftTTL)
	}
	drafts := repository.NewFailoverDraftRepository(primary, repository.NewMemoryDraftRepository(draftTTL), &logger)
	draftService := service.NewDraftService(drafts, cfg.Booking, &logger)

	eventBus := events.NewEventBus()
	eventBus.OnError(func(ev *events.Event, err error) {
		logger.Error().Err(err).Str("event", ev.Type).Msg("event handler failed")
	})
	if forwarder := initEventForwarder(cfg, eventBus, &logger); forwarder != nil {
		defer func() { _ = forwarder.Close() }()
	}

	syncWorker := initSheetsSync(ctx, cfg, db, redisClient, &logger)
	notifier := initNotifier(cfg, catalog, db, &logger)

	reservationService := service.NewReservationService(
		db, booking.NewValidator(catalog), draftService, eventBus,
		syncWorker, notifier, cfg.Booking, &logger,
	)
	userService := service.NewUserService(db, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Reservations: reservationService,
		Drafts:       draftService,
		Users:        userService,
		Exporter:     export.NewExporter(catalog, cfg.Exports.Path, &logger),
		Health:       db,
		TimeSlots:    cfg.Booking.TimeSlots,
	}, &logger)

	return serve(ctx, httpServer, cfg, &logger)
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

// loadCatalog applies resource overrides from RESOURCES_PATH on top of the
// ones in the main config. A missing file is not an error.
func loadCatalog(cfg *config.Config, logger *zerolog.Logger) (*models.Catalog, error) {
	resourcesPath := os.Getenv("RESOURCES_PATH")
	if resourcesPath == "" {
		resourcesPath = "configs/resources.yaml"
	}

	data, err := os.ReadFile(resourcesPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info().Str("resources_path", resourcesPath).Msg("no resources file, using configured catalog")
	case err != nil:
		logger.Error().Err(err).Str("resources_path", resourcesPath).Msg("read resources")
		return nil, err
	default:
		var resourcesConfig struct {
			Resources []models.Resource `yaml:"resources"`
		}
		if err := yaml.Unmarshal(data, &resourcesConfig); err != nil {
			logger.Error().Err(err).Str("resources_path", resourcesPath).Msg("parse resources")
			return nil, err
		}
		if len(resourcesConfig.Resources) > 0 {
			cfg.Resources = resourcesConfig.Resources
		}
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		logger.Error().Err(err).Msg("resources validation failed")
		return nil, err
	}
	return catalog, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("create database directory")
			return err
		}
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create export directory")
		return err
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, drafts fall back to memory")
		return redisClient
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initEventForwarder(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.AMQPForwarder {
	if cfg.Events.AMQPURL == "" {
		return nil
	}
	forwarder, err := events.NewAMQPForwarder(cfg.Events.AMQPURL, cfg.Events.Queue, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, events stay in process")
		return nil
	}
	forwarder.Attach(bus)
	logger.Info().Str("queue", cfg.Events.Queue).Msg("forwarding reservation events to rabbitmq")
	return forwarder
}

// initSheetsSync starts the spreadsheet mirror. The returned interface is nil
// when sheets are not configured.
func initSheetsSync(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) domain.SyncWorker {
	if !cfg.Google.Enabled() {
		logger.Info().Msg("google sheets not configured, mirror disabled")
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}
	go sheetsService.RefreshCache(ctx, time.Duration(models.SheetsCacheTTL)*time.Second)

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, logger).WithSource(db)
	go sheetsWorker.Start(ctx)

	// the sheet may have drifted while the service was down
	if err := sheetsWorker.EnqueueResync(ctx); err != nil {
		logger.Error().Err(err).Msg("enqueue sheets resync")
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsWorker
}

func initNotifier(cfg *config.Config, catalog *models.Catalog, db *database.DB, logger *zerolog.Logger) domain.Notifier {
	if !cfg.Telegram.Enabled() {
		logger.Info().Msg("telegram bot token not set, notifications disabled")
		return nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notifications disabled")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug

	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram notifications enabled")
	return service.NewTelegramNotifier(botAPI, db, catalog, cfg.Telegram.AdminChatID, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

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
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

// exportToFile writes the workbook for a date range into the export
// directory: `api export 2024-05-01 2024-05-31`.
func exportToFile(cfg *config.Config, catalog *models.Catalog, db *database.DB, args []string, logger *zerolog.Logger) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: export FROM TO (YYYY-MM-DD)")
	}
	from, err := models.ParseDate(args[0])
	if err != nil {
		return err
	}
	to, err := models.ParseDate(args[1])
	if err != nil {
		return err
	}

	list, err := db.ListReservationsBetween(context.Background(), from, to)
	if err != nil {
		return err
	}
	path, err := export.NewExporter(catalog, cfg.Exports.Path, logger).SaveFile(from, to, list)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
