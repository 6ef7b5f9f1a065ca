package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/marktplatz-bot/internal/bot"
	"github.com/raine/marktplatz-bot/internal/config"
	"github.com/raine/marktplatz-bot/internal/llm"
	"github.com/raine/marktplatz-bot/internal/pipeline"
	"github.com/raine/marktplatz-bot/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "marktplatz-bot.log"

func fatal(format string, a ...any) {
	log.Error().Msg(fmt.Sprintf(format, a...))
	os.Exit(1)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd, journald handles it.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration: %v", err)
	}
	if missing := cfg.MissingForBot(); len(missing) > 0 {
		fatal("missing required config: %s", strings.Join(missing, ", "))
	}

	tables, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		fatal("failed to load tables: %v", err)
	}
	log.Info().Int("version", tables.Version).Str("path", cfg.TablesPath).Msg("tables loaded")

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fatal("failed to initialize store: %v", err)
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var categories pipeline.CategorySource = store
	if cfg.CategoryStoreDSN != "" {
		pg, err := storage.OpenPostgresCategorySource(ctx, cfg.CategoryStoreDSN)
		if err != nil {
			fatal("failed to open category store: %v", err)
		}
		defer pg.Close()
		categories = pg
	}

	geminiAnalyzer, err := llm.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey)
	if err != nil {
		fatal("failed to initialize gemini vision analyzer: %v", err)
	}
	visionAnalyzer := llm.NewCachedAnalyzer(geminiAnalyzer, store)
	log.Info().Msg("vision analysis caching enabled")

	p := pipeline.New(visionAnalyzer, categories, pipeline.Options{
		Scorer:         tables.Scorer(),
		Facts:          tables.FactExtractor(),
		CategoryTables: tables.CategoryTables(),
		Locale:         cfg.Locale,
		MaxParallel:    cfg.MaxParallelAnalyses,
	})

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		fatal("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	bot.RegisterCommands(tg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runBot(ctx, tg, bot.NewBot(tg, p, store, categories))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup
	defer b.Shutdown()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
