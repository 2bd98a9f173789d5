package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cbwinslow/CloudCommerce/internal/config"
	"github.com/cbwinslow/CloudCommerce/internal/credit"
	"github.com/cbwinslow/CloudCommerce/internal/llm"
	"github.com/cbwinslow/CloudCommerce/internal/metrics"
	"github.com/cbwinslow/CloudCommerce/internal/pipeline"
	"github.com/cbwinslow/CloudCommerce/internal/scraper"
	"github.com/cbwinslow/CloudCommerce/internal/server"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger, err := credit.NewSQLiteLedger(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credit ledger")
	}
	defer ledger.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("credit ledger initialized")

	gateway, err := llm.NewGeminiGateway(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gemini gateway")
	}
	log.Info().Msg("gemini model gateway initialized")

	var sites []scraper.Site
	for name, baseURL := range cfg.SiteEndpoints {
		sites = append(sites, scraper.NewJSONSite(scraper.SiteOpts{
			Name:    name,
			BaseURL: baseURL,
			Delay:   cfg.ScrapeDelay,
			Timeout: cfg.ScrapeTimeout,
		}))
	}
	research := scraper.New(sites, cfg.MaxResultsPerSite)
	log.Info().Int("sites", len(sites)).Msg("market research scraper initialized")

	m := metrics.New()
	orchestrator := pipeline.NewOrchestrator(ledger, research, gateway, pipeline.Options{
		Marketplaces:       cfg.Marketplaces,
		ArbitrageThreshold: decimal.NewFromFloat(cfg.ArbitrageThreshold),
		Budget:             cfg.PipelineBudget,
	}, m)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(orchestrator, m).Router(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
