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
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/knolqueue/internal/config"
	"github.com/conorfennell/knolqueue/internal/deck"
	"github.com/conorfennell/knolqueue/internal/domain"
	"github.com/conorfennell/knolqueue/internal/gitsource"
	"github.com/conorfennell/knolqueue/internal/logging"
	"github.com/conorfennell/knolqueue/internal/policy"
	"github.com/conorfennell/knolqueue/internal/scheduler"
	"github.com/conorfennell/knolqueue/internal/stats"
	"github.com/conorfennell/knolqueue/internal/storage"
	"github.com/conorfennell/knolqueue/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.New("knolqueue", cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}

type openDeck struct {
	name      string
	scheduler *scheduler.Scheduler
	session   *stats.MemoryRecorder
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pol, err := buildPolicy(cfg.Scheduler)
	if err != nil {
		return err
	}

	var db *storage.DB
	if cfg.Store.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = storage.Open(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("Database opened successfully", "path", cfg.Store.SQLitePath)
	}

	var counters *stats.RedisRecorder
	if cfg.Stats.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is unreachable; rating counters will be retried per event", "addr", cfg.Stats.RedisAddr, "error", err)
		}
		counters = stats.NewRedisRecorder(rdb, stats.WithPrefix(cfg.Stats.Prefix), stats.WithTTL(cfg.Stats.TTL))
	}

	cards, err := loadDecks(ctx, cfg, logger)
	if err != nil {
		return err
	}

	decks := make([]openDeck, 0, len(cards))
	defer func() { closeDecks(decks, logger) }()
	handlers := make(map[string]web.Deck, len(cards))
	for _, name := range cfg.DeckNames() {
		session := stats.NewMemoryRecorder()
		recorders := stats.Multi{session}
		if counters != nil {
			recorders = append(recorders, counters)
		}

		var store storage.Store = storage.NewFileStore(cfg.Decks[name].StateFile)
		if db != nil {
			store = db.Snapshots(name)
			recorders = append(recorders, stats.Journal{Appender: db})
		}

		s, err := scheduler.New(ctx, cards[name], store,
			scheduler.WithName(name),
			scheduler.WithPolicy(pol),
			scheduler.WithFreshThreshold(cfg.Scheduler.FreshThreshold),
			scheduler.WithRecorder(recorders),
			scheduler.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to open deck %s: %w", name, err)
		}
		decks = append(decks, openDeck{name: name, scheduler: s, session: session})
		handlers[name] = s
	}

	var opts []web.Option
	var limiter *web.Limiter
	if cfg.RateLimit.Enabled {
		limiter = web.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, web.WithIdleTTL(cfg.RateLimit.IdleTTL))
		opts = append(opts, web.WithLimiter(limiter))
	}
	srv, err := web.NewServer(handlers, cfg.DefaultDeck, append(opts, web.WithLogger(logger))...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Flashcards server running", "addr", cfg.ListenAddr, "decks", cfg.DeckNames(), "default_deck", cfg.DefaultDeck)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	if limiter != nil {
		g.Go(func() error { return limiter.Run(gctx) })
	}
	return g.Wait()
}

// loadDecks syncs git-hosted decks and reads every deck concurrently.
func loadDecks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[string][]domain.Card, error) {
	names := cfg.DeckNames()
	loaded := make([][]domain.Card, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		dc := cfg.Decks[name]
		g.Go(func() error {
			log := logger.With("deck", name)
			if dc.GitURL != "" {
				res, err := gitsource.Sync(gctx, log, dc.GitURL, dc.GitDir)
				if err != nil {
					return err
				}
				log.Info("Deck repository synced", "result", res)
			}
			cards, err := deck.Load(dc.Source())
			if err != nil {
				return err
			}
			log.Info("Deck loaded", "path", dc.Source(), "cards", len(cards))
			loaded[i] = cards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]domain.Card, len(names))
	for i, name := range names {
		out[name] = loaded[i]
	}
	return out, nil
}

func buildPolicy(cfg config.SchedulerConfig) (policy.Policy, error) {
	easy, err := policy.ParseEasyRule(cfg.EasyRule)
	if err != nil {
		return nil, err
	}
	normal, err := policy.ParseNormalRule(cfg.NormalRule)
	if err != nil {
		return nil, err
	}
	return policy.Reinsertion{Easy: easy, Normal: normal}, nil
}

// closeDecks waits for pending saves and logs what each deck saw this run.
func closeDecks(decks []openDeck, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, d := range decks {
		if err := d.scheduler.Close(ctx); err != nil {
			logger.Error("Pending saves did not finish", "deck", d.name, "error", err)
		}
		logger.Info("Session summary", "deck", d.name, "ratings", d.session.Events(), "by_rating", d.session.Total())
	}
}
