package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"apptchat/internal/agent"
	"apptchat/internal/bot"
	"apptchat/internal/config"
	"apptchat/internal/database"
	"apptchat/internal/domain"
	"apptchat/internal/events"
	"apptchat/internal/google"
	"apptchat/internal/llm"
	"apptchat/internal/logging"
	"apptchat/internal/metrics"
	"apptchat/internal/models"
	"apptchat/internal/repository"
	"apptchat/internal/service"
	"apptchat/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, sessions := initSessions(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sheetsService := initGoogleSheets(ctx, cfg, logger)

	var sheetsWorker *worker.SheetsWorker
	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		workerLogger := logging.Component(logger, "sheets-worker")
		sheetsWorker = worker.NewSheetsWorker(db, sheetsService, redisClient, worker.DefaultRetryPolicy(), workerLogger)
		syncWorker = sheetsWorker
		go sheetsWorker.Start(ctx)
	}

	eventBus := events.NewEventBus()
	subscribeBookingEvents(eventBus)

	bookingService := service.NewBookingService(db, eventBus, syncWorker, cfg.Business, cfg.Services, logger)

	provider, err := llm.NewGeminiProvider(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации LLM провайдера")
		return err
	}
	defer provider.Close()

	dispatcher := agent.New(provider, bookingService, sessions, cfg, logging.Component(logger, "agent"))

	if cfg.Database.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Database.Backup, logger)
		go backupService.Start(ctx)
	}

	telegramBot, err := bot.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug, dispatcher, sessions, cfg, logging.Component(logger, "bot"))
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closer, nil
}

func initSessions(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.SessionRepository) {
	ttl := time.Duration(cfg.Agent.SessionTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = models.DefaultSessionTTL * time.Second
	}

	fallback := repository.NewMemorySessionRepository(ttl)

	if cfg.Redis.Address == "" {
		return nil, fallback
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}
	primary := repository.NewRedisSessionRepository(redisClient, ttl)
	return redisClient, repository.NewFailoverSessionRepository(primary, fallback, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingsSpreadsheetID == "" {
		logger.Info().Msg("Google Sheets is not configured, mirror disabled")
		return nil
	}

	sheetsSvc, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}

	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsSvc
}

func subscribeBookingEvents(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventBookingCreated, func(_ *events.Event) error {
		metrics.IncBooking(models.StatusConfirmed)
		return nil
	})
	eventBus.Subscribe(events.EventBookingCancelled, func(_ *events.Event) error {
		metrics.IncBooking(models.StatusCancelled)
		return nil
	})
}
