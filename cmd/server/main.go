package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jessevdk/go-flags"
	"github.com/lmittmann/tint"

	"github.com/iconidentify/threadgrabba/internal/analysis"
	"github.com/iconidentify/threadgrabba/internal/api"
	"github.com/iconidentify/threadgrabba/internal/api/handler"
	"github.com/iconidentify/threadgrabba/internal/bot"
	"github.com/iconidentify/threadgrabba/internal/config"
	"github.com/iconidentify/threadgrabba/internal/dedup"
	"github.com/iconidentify/threadgrabba/internal/downloader"
	"github.com/iconidentify/threadgrabba/internal/extract"
	"github.com/iconidentify/threadgrabba/internal/links"
	"github.com/iconidentify/threadgrabba/internal/media"
	"github.com/iconidentify/threadgrabba/internal/publish"
	"github.com/iconidentify/threadgrabba/internal/repository"
	"github.com/iconidentify/threadgrabba/internal/scheduler"
	"github.com/iconidentify/threadgrabba/internal/service"
	"github.com/iconidentify/threadgrabba/internal/summarizer"
	"github.com/iconidentify/threadgrabba/internal/worker"
	"github.com/iconidentify/threadgrabba/pkg/ffmpeg"
	"github.com/iconidentify/threadgrabba/pkg/grok"
	"github.com/iconidentify/threadgrabba/pkg/instagram"
	"github.com/iconidentify/threadgrabba/pkg/threads"
	"github.com/iconidentify/threadgrabba/pkg/whisper"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	Config  string `short:"c" long:"config" env:"THREADGRABBA_CONFIG" description:"Path to YAML config file"`
	EnvFile string `long:"env-file" default:".env" description:"Path to .env file loaded before config"`
	Version bool   `short:"v" long:"version" description:"Show version and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.Version {
		fmt.Printf("threadgrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting threadgrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ensure storage directories exist
	for _, dir := range []string{cfg.Storage.TempPath, cfg.Publish.OutputDir, filepath.Dir(cfg.Database.Path)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	db, err := repository.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	taskRepo := repository.NewSQLiteTaskRepository(db)
	processedRepo := repository.NewSQLiteProcessedURLRepository(db)
	jobRepo := repository.NewInMemoryJobRepository()

	recent, err := newRecentFilter(ctx, cfg.Dedup, logger)
	if err != nil {
		return err
	}

	// Extraction
	threadsClient := threads.NewClient(threads.Config{
		APIBaseURL:        cfg.Threads.APIBaseURL,
		WebBaseURL:        cfg.Threads.WebBaseURL,
		CookiesPath:       cfg.Threads.CookiesPath,
		CookiesPassphrase: cfg.Threads.CookiesPassphrase,
		Timeout:           cfg.Threads.Timeout,
		MaxReplies:        cfg.Threads.MaxReplies,
	}, logger)
	apiTier := threads.NewAPITier(threadsClient)
	threadsDispatcher := extract.NewDispatcher(
		[]extract.Tier{apiTier, threads.NewCrawlerTier(threadsClient), threads.NewScrapeTier(threadsClient)},
		apiTier,
		extract.Config{
			FetchReplies:       cfg.Threads.FetchReplies,
			PreferRicherThread: cfg.Threads.PreferRicherThread,
		},
		logger,
	)
	reels := instagram.NewExtractor(instagram.Config{
		WebBaseURL: cfg.Instagram.WebBaseURL,
		YtDlpPath:  cfg.Instagram.YtDlpPath,
		Timeout:    cfg.Instagram.Timeout,
	}, logger)
	router := extract.NewRouter().
		Handle(links.PlatformThreads, threadsDispatcher).
		Handle(links.PlatformInstagram, reels)

	// Media
	dl := downloader.NewHTTPDownloader(cfg.Download, cfg.Threads.WebBaseURL+"/", logger)
	activity := media.NewActivityLog(cfg.Download.ActivityLogPath, cfg.Download.ActivityLogEntries)

	var audio media.AudioProcessor
	var frames analysis.FrameExtractor
	videoProc, err := ffmpeg.NewVideoProcessor()
	if err != nil {
		logger.Warn("ffmpeg unavailable, audio and video frames disabled", "error", err)
	} else {
		version, _ := videoProc.Version(ctx)
		logger.Info("ffmpeg available", "version", version)
		audio = videoProc
		frames = videoProc
	}
	acquirer := media.NewAcquirer(dl, audio, media.ConfigFrom(cfg.Storage, cfg.Download), activity, logger)

	// Analysis
	var transcriber service.Transcriber
	if cfg.Whisper.APIKey != "" {
		transcriber = whisper.NewClient(whisper.Config{
			APIKey:   cfg.Whisper.APIKey,
			BaseURL:  cfg.Whisper.BaseURL,
			Model:    cfg.Whisper.Model,
			Language: cfg.Whisper.Language,
			Timeout:  cfg.Whisper.Timeout,
		})
	} else {
		logger.Warn("whisper api key not set, transcription disabled")
	}

	var visual service.VisualDescriber
	if cfg.Analysis.Enabled && cfg.Grok.APIKey != "" {
		visual = analysis.NewVisualAnalyzer(grok.NewClient(cfg.Grok), frames, cfg.Analysis.Concurrency, cfg.Storage.TempPath, logger)
	} else {
		logger.Info("visual analysis disabled")
	}

	summ, err := summarizer.New(ctx, cfg.Summarizer, cfg.Grok, logger)
	if err != nil {
		return err
	}

	pipeline := service.NewPipeline(service.PipelineDeps{
		Extractor:   router,
		Acquirer:    acquirer,
		Transcriber: transcriber,
		Visual:      visual,
		Summarizer:  summ,
		Publisher:   publish.NewFilesystemPublisher(cfg.Publish, logger),
	}, logger)

	// Chat front end
	var botAPI *tgbotapi.BotAPI
	var notifier service.Notifier
	var tgNotifier *bot.Notifier
	if cfg.Telegram.Enabled() {
		botAPI, err = bot.NewAPI(cfg.Telegram.Token, cfg.Telegram.Debug)
		if err != nil {
			return err
		}
		logger.Info("telegram bot authorized", "username", botAPI.Self.UserName)
		tgNotifier = bot.NewNotifier(bot.NewTelegramSender(botAPI))
		notifier = tgNotifier
	} else {
		logger.Warn("telegram token not set, chat front end disabled")
	}

	ingest := service.NewIngestService(pipeline, jobRepo, taskRepo, processedRepo, recent, notifier, logger)

	sched := scheduler.New(scheduler.Config{
		Interval:   cfg.Scheduler.Interval,
		MaxRetries: cfg.Scheduler.MaxRetries,
	}, taskRepo, processedRepo, pipeline, notifier, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		ingest,
		logger,
	)
	pool.Start()

	pollDone := make(chan struct{})
	if botAPI != nil {
		b := bot.New(tgNotifier, ingest, sched, cfg.Telegram.AllowedChatIDs, logger)
		go func() {
			defer close(pollDone)
			bot.NewPoller(botAPI, b, logger).Run(ctx)
		}()
	} else {
		close(pollDone)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(jobRepo, taskRepo, db, sched, cfg.Publish.OutputDir)
	submissionHandler := handler.NewSubmissionHandler(ingest, logger)
	taskHandler := handler.NewTaskHandler(taskRepo, sched, logger)
	jobHandler := handler.NewJobHandler(jobRepo, logger)

	if cfg.Server.APIKey == "" {
		logger.Warn("api key not set, only health endpoints are served")
	}
	httpRouter := api.NewRouter(healthHandler, submissionHandler, taskHandler, jobHandler, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	<-pollDone
	sched.Stop(shutdownCtx)

	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

func newRecentFilter(ctx context.Context, cfg config.DedupConfig, logger *slog.Logger) (dedup.Filter, error) {
	if cfg.ValkeyAddr == "" {
		return dedup.NewRecentSet(cfg.Capacity), nil
	}
	client, err := dedup.NewValkeyClient(ctx, cfg.ValkeyAddr, cfg.ValkeyPassword)
	if err != nil {
		return nil, err
	}
	logger.Info("using valkey for duplicate suppression", "addr", cfg.ValkeyAddr)
	return dedup.NewValkeyRecentSet(client, cfg.TTL), nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
