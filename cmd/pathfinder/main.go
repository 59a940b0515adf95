// Package main wires together the pathfinder service: a crawler that indexes
// a site's pages and an HTTP API that answers questions against the index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/api"
	"github.com/tchan1002/pathfinder/internal/config"
	"github.com/tchan1002/pathfinder/internal/crawler"
	"github.com/tchan1002/pathfinder/internal/indexer"
	"github.com/tchan1002/pathfinder/internal/jobs"
	"github.com/tchan1002/pathfinder/internal/llm"
	"github.com/tchan1002/pathfinder/internal/logging"
	"github.com/tchan1002/pathfinder/internal/search"
	"github.com/tchan1002/pathfinder/internal/storage"
	"github.com/tchan1002/pathfinder/internal/storage/memory"
	"github.com/tchan1002/pathfinder/internal/storage/postgres"
	"github.com/tchan1002/pathfinder/internal/storage/snapshots"
)

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "serve":
		runServe(args)
	case "crawl":
		runCrawlOnce(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q: expected serve or crawl\n", command)
		os.Exit(2)
	}
}

// app holds the shared wiring both commands need.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	store      storage.Store
	closeStore func()
	crawler    *crawler.Crawler
	provider   llm.Provider
	snapDir    string
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.shutdown()
	logger := a.logger

	runner := jobs.NewRunner(a.store, a.crawler, logger.Named("jobs"))
	if err := runner.Reap(ctx); err != nil {
		logger.Warn("orphaned job sweep failed", zap.Error(err))
	}

	pipeline := search.New(a.store, a.provider, logger.Named("search"))
	apiServer := api.NewServer(a.store, a.crawler, runner, pipeline, a.snapDir, a.cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	runner.Shutdown()
	logger.Info("shutdown complete")
}

// runCrawlOnce crawls a single site from the command line and prints the
// per-page outcomes.
func runCrawlOnce(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	startURL := fs.String("url", "", "Start URL to crawl")
	_ = fs.Parse(args)

	if *startURL == "" {
		fmt.Fprintln(os.Stderr, "crawl: -url is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.shutdown()

	normalized, err := crawler.NormalizeURL(*startURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawl: %v\n", err)
		os.Exit(2)
	}
	domain, err := crawler.ExtractDomain(normalized)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawl: %v\n", err)
		os.Exit(2)
	}

	site, err := a.store.GetSiteByDomain(ctx, domain)
	if errors.Is(err, storage.ErrNotFound) {
		site = storage.Site{ID: uuid.NewString(), Domain: domain, StartURL: normalized}
		err = a.store.CreateSite(ctx, site)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawl: prepare site: %v\n", err)
		os.Exit(1)
	}

	outcomes, err := a.crawler.Run(ctx, site.ID, normalized, 0, func(ev crawler.Event) {
		if ev.Type == crawler.EventStatus {
			a.logger.Info(ev.Message)
		}
	})
	for _, o := range outcomes {
		if o.OK {
			fmt.Printf("ok    %s\n", o.URL)
		} else {
			fmt.Printf("fail  %s (%s)\n", o.URL, o.Reason)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawl: %v\n", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	snapStore, err := snapshots.New(cfg.Snapshots)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}

	provider := newProvider(cfg, logger)
	idx := indexer.New(store, provider, snapStore, cfg.LLM.ChatModel, logger.Named("indexer"))
	crawl := crawler.New(crawler.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		PageBudget:    cfg.Crawler.MaxPagesDefault,
		NavTimeout:    cfg.Crawler.NavTimeout(),
		Delay:         cfg.Crawler.Delay(),
		RenderEnabled: cfg.Crawler.RenderEnabled,
	}, store, idx, logger.Named("crawler"))

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		closeStore: closeStore,
		crawler:    crawl,
		provider:   provider,
		snapDir:    snapStore.Dir(),
	}, nil
}

func (a *app) shutdown() {
	a.closeStore()
	if err := a.logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
	}
}

// newStore selects postgres when a DSN is configured and otherwise falls back
// to the in-memory store, which keeps local runs dependency-free.
func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("no database configured, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}
	pg, err := postgres.New(ctx, cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pg, pg.Close, nil
}

// newProvider builds the model client. Without an API key the deterministic
// local provider serves summaries, embeddings, and answers on its own.
func newProvider(cfg config.Config, logger *zap.Logger) llm.Provider {
	if cfg.LLM.APIKey == "" {
		logger.Info("no LLM API key configured, using local provider")
		return llm.NewLocal()
	}
	client, err := llm.NewClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		APIURL:     cfg.LLM.APIURL,
		ChatModel:  cfg.LLM.ChatModel,
		EmbedModel: cfg.LLM.EmbedModel,
	})
	if err != nil {
		logger.Warn("LLM client init failed, using local provider", zap.Error(err))
		return llm.NewLocal()
	}
	return llm.NewResilient(client, logger.Named("llm"))
}
