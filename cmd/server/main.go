package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sevlyar/go-daemon"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"students-timetable/internal/adapters/exporter"
	"students-timetable/internal/adapters/parser"
	"students-timetable/internal/adapters/source"
	"students-timetable/internal/antispam"
	"students-timetable/internal/bot"
	"students-timetable/internal/core/services"
	"students-timetable/internal/log"
	"students-timetable/internal/pkg/config"
	"students-timetable/internal/ports"
	"students-timetable/internal/render"
	"students-timetable/internal/server"
	"students-timetable/internal/snapshot"
	"students-timetable/internal/subscribers"
	"students-timetable/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	configPath := flag.String("config", "config.yml", "путь к файлу конфигурации")
	asDaemon := flag.Bool("daemon", false, "запустить в фоне")
	flag.Parse()

	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Отделение от терминала. Родительский процесс завершается здесь.
	if *asDaemon {
		dctx := &daemon.Context{
			PidFileName: cfg.Daemon.PIDFile,
			PidFilePerm: 0o644,
			LogFileName: cfg.Daemon.LogFile,
			LogFilePerm: 0o640,
			WorkDir:     cfg.Daemon.WorkDir,
			Umask:       0o27,
		}
		child, err := dctx.Reborn()
		if err != nil {
			return fmt.Errorf("failed to daemonize: %w", err)
		}
		if child != nil {
			return nil
		}
		defer func() { _ = dctx.Release() }()
	}

	// 3. Инициализация логгера с маскировкой токенов
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	_ = tgbotapi.SetLogger(log.NewTGBotAPIAdapter(logger))

	// 4. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 5. Хранилища
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	directory, err := subscribers.Open(filepath.Join(cfg.Storage.DataDir, "subscribers"), logger.With(slog.String("component", "subscribers")))
	if err != nil {
		return fmt.Errorf("failed to open subscribers: %w", err)
	}
	defer func() {
		if err := directory.Close(); err != nil {
			slog.Error("failed to close subscribers", "error", err)
		}
	}()

	snapshots := snapshot.NewStore(
		snapshot.WithStateFile(cfg.Refresh.StateFile),
		snapshot.WithLogger(logger.With(slog.String("component", "snapshot"))),
	)
	if err := snapshots.Load(); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	// 6. Telegram
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}
	slog.Info("Authorized in telegram", slog.String("bot", api.Self.UserName))

	transport := telegramTransport(api, cfg.Telegram, logger)
	admin := telegramAdmin(api, cfg.Telegram, logger)

	// 7. Конвейер обновления
	baseRenderer := render.NewMarkdownRenderer()
	renderer, err := render.NewCachedRenderer(baseRenderer, cfg.Dispatch.RenderCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create renderer cache: %w", err)
	}

	spamList := antispam.NewSpamList(cfg.Antispam.BanDuration)
	detector := antispam.NewDetector(spamList, cfg.Antispam.MaxUpdates, cfg.Antispam.Window)

	dispatcher := services.NewDispatcher(directory, transport, renderer,
		services.WithWorkers(cfg.Dispatch.Workers),
		services.WithSendLimiter(sendLimiter(cfg.Telegram)),
		services.WithAbuseFilter(spamList),
		services.WithDispatcherAdmin(admin),
		services.WithDispatcherLogger(logger.With(slog.String("component", "dispatcher"))),
	)
	normalizer := services.NewNormalizer(
		services.WithAllowedGroups(cfg.Refresh.Groups),
		services.WithNormalizerAdmin(admin),
		services.WithNormalizerLogger(logger.With(slog.String("component", "normalizer"))),
	)
	extractor := source.NewExtractor(dataSource(cfg.Source, logger), parser.NewJSONParser())
	coordinator := services.NewCoordinator(extractor, normalizer, snapshots, dispatcher, renderer,
		services.WithInterval(cfg.Refresh.Interval),
		services.WithRunOnStart(cfg.Refresh.RunOnStart),
		services.WithRetainDays(cfg.Refresh.RetainDays),
		services.WithWeekSource(cfg.Source.WeekEnabled()),
		services.WithCoordinatorAdmin(admin),
		services.WithCoordinatorLogger(logger.With(slog.String("component", "coordinator"))),
	)

	// 8. Бот и HTTP-сервер
	tgBot := bot.NewBot(api, cfg.Telegram, cfg.Refresh.Groups, bot.Deps{
		Subscribers: directory,
		Snapshots:   snapshots,
		Renderer:    renderer,
		Refresher:   coordinator,
		Exporter:    exporter.NewExcelExporter(logger),
		Guard:       detector,
	}, logger.With(slog.String("component", "bot")))

	srv, err := server.New(cfg, coordinator, snapshots, server.NewCycleStore(cfg.Server.CycleTTL), logger.With(slog.String("component", "server")))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// 9. Запуск и graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	detector.StartCleanupTicker(gctx, cfg.Antispam.CleanupInterval)

	g.Go(func() error {
		coordinator.Run(gctx)
		return nil
	})
	g.Go(func() error {
		tgBot.Start(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("Starting server", "addr", cfg.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Signal received, shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("Application exited gracefully")
	return nil
}

func newLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return log.NewMaskedLogger(handler)
}

func dataSource(cfg config.Source, logger *slog.Logger) ports.DataSource {
	if cfg.Kind == config.SourceKindFile {
		return source.NewFileSource(cfg.DayPath, cfg.WeekPath)
	}
	return source.NewHTTPSource(cfg.DayURL, cfg.WeekURL,
		source.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		source.WithMaxRetries(cfg.MaxRetries),
		source.WithHTTPLogger(logger.With(slog.String("component", "source"))),
	)
}

func telegramTransport(api ports.BotSender, cfg config.Telegram, logger *slog.Logger) ports.Transport {
	return telegram.NewTransport(api,
		telegram.WithParseMode(cfg.ParseMode),
		telegram.WithLogger(logger.With(slog.String("component", "transport"))),
	)
}

func telegramAdmin(api ports.BotSender, cfg config.Telegram, logger *slog.Logger) ports.AdminChannel {
	return telegram.NewAdminChannel(api, cfg.AdminIDs, logger.With(slog.String("component", "admin")))
}

func sendLimiter(cfg config.Telegram) *rate.Limiter {
	if cfg.SendRate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
}
