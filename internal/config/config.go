package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/cbwinslow/CloudCommerce/internal/market"
)

// Config is the process configuration, read from the environment. The
// marketplace set and the arbitrage threshold are configuration, not
// literals, so the pipeline stays retargetable.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"DB_PATH" envDefault:"cloudcommerce.db"`

	GeminiAPIKey string `env:"GEMINI_API_KEY,required,notEmpty"`

	// SiteEndpoints maps a site label to its search endpoint base URL, e.g.
	// SCRAPER_SITES="ebay=https://ebay.example/api,amazon=https://amazon.example/api"
	SiteEndpoints     map[string]string `env:"SCRAPER_SITES,required,notEmpty" envSeparator:"," envKeyValSeparator:"="`
	MaxResultsPerSite int               `env:"MAX_RESULTS_PER_SITE" envDefault:"5"`
	ScrapeDelay       time.Duration     `env:"SCRAPE_DELAY" envDefault:"1s"`
	ScrapeTimeout     time.Duration     `env:"SCRAPE_TIMEOUT" envDefault:"5s"`

	MarketplaceNames   []string      `env:"MARKETPLACES" envDefault:"ebay,amazon,facebook" envSeparator:","`
	ArbitrageThreshold float64       `env:"ARBITRAGE_THRESHOLD" envDefault:"0.70"`
	PipelineBudget     time.Duration `env:"PIPELINE_BUDGET" envDefault:"2m"`

	// ImageURITTL documents the expiry of the externally-managed transient
	// image storage. Dereference failures past it are analysis-invalid.
	ImageURITTL time.Duration `env:"IMAGE_URI_TTL" envDefault:"1h"`

	Marketplaces []market.Marketplace `env:"-"`
}

// Load reads the environment, after loading a .env file when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}

	marketplaces, err := market.ParseList(cfg.MarketplaceNames)
	if err != nil {
		return Config{}, err
	}
	cfg.Marketplaces = marketplaces

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ArbitrageThreshold <= 0 || c.ArbitrageThreshold > 1 {
		return fmt.Errorf("ARBITRAGE_THRESHOLD must be in (0, 1], got %v", c.ArbitrageThreshold)
	}
	if c.ScrapeDelay < time.Second {
		return fmt.Errorf("SCRAPE_DELAY must be at least 1s, got %v", c.ScrapeDelay)
	}
	if c.MaxResultsPerSite <= 0 {
		return fmt.Errorf("MAX_RESULTS_PER_SITE must be positive, got %d", c.MaxResultsPerSite)
	}
	if len(c.SiteEndpoints) == 0 {
		return fmt.Errorf("SCRAPER_SITES must name at least one site")
	}
	return nil
}
