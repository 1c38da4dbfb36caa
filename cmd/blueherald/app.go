package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/blueherald/blueherald/internal/agent"
	"github.com/blueherald/blueherald/internal/alerts"
	"github.com/blueherald/blueherald/internal/archive"
	"github.com/blueherald/blueherald/internal/config"
	"github.com/blueherald/blueherald/internal/filter"
	"github.com/blueherald/blueherald/internal/generate"
	"github.com/blueherald/blueherald/internal/metrics"
	"github.com/blueherald/blueherald/internal/mgmt"
	"github.com/blueherald/blueherald/internal/models"
	"github.com/blueherald/blueherald/internal/news"
	"github.com/blueherald/blueherald/internal/optimize"
	"github.com/blueherald/blueherald/internal/publish"
	"github.com/blueherald/blueherald/internal/scheduler"
)

// app wires every component together from a loaded configuration.
type app struct {
	config    config.Config
	agent     *agent.Agent
	optimizer *optimize.Service
	scheduler *scheduler.Scheduler
	server    *mgmt.Server
	store     *archive.Archive
	cache     news.Cache
}

func setupLogging(logConfig config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(logConfig.Level))
	if err != nil || logConfig.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := logConfig.Format == "console"
	if logConfig.Format == "" {
		console = term.IsTerminal(int(os.Stderr.Fd()))
	}
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// buildApp constructs the full agent stack. publisher may be nil, in
// which case the real Bluesky client is used.
func buildApp(cfg config.Config, publisher agent.Publisher) (*app, error) {
	store, err := archive.Open(cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var cache news.Cache
	if cfg.Redis.Addr != "" {
		cache = news.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using Redis news cache")
	} else {
		cache = news.NewMemoryCache()
	}

	if publisher == nil {
		publisher = publish.NewClient(cfg.Bluesky)
	}

	registry := metrics.NewRegistry()
	alertMgr := alerts.NewManager()
	optimizer := optimize.NewService()
	optimizer.SetMetrics(registry)

	ag := agent.New(cfg.Agent, agent.Deps{
		News:      news.NewClient(cfg.News, cache),
		Generator: generate.NewGenerator(cfg.Generate),
		Publisher: publisher,
		Optimizer: optimizer,
		Filter:    filter.New(cfg.Filter),
		Metrics:   registry,
		Alerts:    alertMgr,
		Archive:   store,
	})

	sched, err := scheduler.NewScheduler(cfg.Scheduler, func(ctx context.Context) error {
		_, werr := ag.ExecuteWorkflow(ctx)
		return werr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build scheduler: %w", err)
	}

	server := mgmt.NewServer(cfg.Server, mgmt.Deps{
		Agent:      ag,
		Optimizer:  optimizer,
		Scheduler:  sched,
		Metrics:    registry,
		Alerts:     alertMgr,
		Archive:    store,
		ConfigView: cfg.View(),
	})

	return &app{
		config:    cfg,
		agent:     ag,
		optimizer: optimizer,
		scheduler: sched,
		server:    server,
		store:     store,
		cache:     cache,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("archive close failed")
	}
	if closer, ok := a.cache.(*news.RedisCache); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
}

// dryRunPublisher prints generated content instead of posting it.
type dryRunPublisher struct{}

func (dryRunPublisher) Publish(_ context.Context, content models.GeneratedContent) models.PostResult {
	fmt.Println("---- dry run: post not sent ----")
	fmt.Println(content.FullText())
	fmt.Printf("---- %d characters, engagement score %.2f ----\n",
		len([]rune(content.FullText())), content.EngagementScore)
	return models.PostResult{
		Success:   true,
		PostID:    "dry-run",
		Content:   content,
		Timestamp: time.Now(),
	}
}
