package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-harvest/models"
)

// Config holds harvest engine configuration.
type Config struct {
	SourceName string

	SaveRawCache    bool
	SaveLocal       bool
	CacheDir        string
	CacheCategories []string
	MemoryCacheSize int

	UseRemoteRenderer bool
	RendererKey       string
	RendererURL       string

	// VariantEndpoint enables variant pricing through a GraphQL endpoint.
	VariantEndpoint string

	Workers          int
	HardWorkerCap    int
	MinDelay         time.Duration
	MaxDelay         time.Duration
	Timeout          time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	RetryBackoffMax  time.Duration
	ProgressInterval time.Duration

	TestLimit          int
	ProductsOnly       bool
	FollowSitemapIndex bool
	Deduplicate        bool

	OutputDir     string
	OutputFile    string
	PostgresDSN   string
	PostgresTable string

	MetricsAddr string
	LogFile     string
	Verbose     bool
}

// DefaultConfig returns conservative defaults tuned for polite harvesting.
func DefaultConfig() *Config {
	return &Config{
		SourceName:        "generic",
		SaveRawCache:      true,
		SaveLocal:         true,
		CacheDir:          "data",
		CacheCategories:   []string{"sitemap", "category", "product"},
		MemoryCacheSize:   256,
		UseRemoteRenderer: false,
		RendererURL:       "https://app.scrapingbee.com/api/v1/",
		Workers:           3,
		HardWorkerCap:     3,
		MinDelay:          1 * time.Second,
		MaxDelay:          3 * time.Second,
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		BackoffBase:       1 * time.Second,
		RetryBackoffMax:   30 * time.Second,
		ProgressInterval:  500 * time.Millisecond,
		Deduplicate:       true,
		OutputDir:         filepath.Join("data", "outputs"),
		OutputFile:        "products.csv",
		PostgresTable:     "harvest_records",
		LogFile:           filepath.Join("logs", "harvest.log"),
	}
}

// CachesCategory reports whether raw bodies of category are read from and
// written to the on-disk cache.
func (c *Config) CachesCategory(category models.Category) bool {
	if !c.SaveRawCache || !c.SaveLocal {
		return false
	}
	for _, name := range c.CacheCategories {
		if models.ParseCategory(name) == category {
			return true
		}
	}
	return false
}

// EffectiveWorkers clamps the requested concurrency to the hard cap.
func (c *Config) EffectiveWorkers(requested int) int {
	n := requested
	if c.HardWorkerCap > 0 && n > c.HardWorkerCap {
		n = c.HardWorkerCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// RemoteRendererEnabled reports whether fetches go through the rendering proxy.
func (c *Config) RemoteRendererEnabled() bool {
	return c.UseRemoteRenderer && c.RendererKey != ""
}

// OutputPath returns the tabular output file location.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.OutputFile) {
		return c.OutputFile
	}
	return filepath.Join(c.OutputDir, c.OutputFile)
}

// DelimitedPath returns the dated pipe-delimited output file for day.
func (c *Config) DelimitedPath(day time.Time) string {
	return filepath.Join(c.OutputDir, fmt.Sprintf("output_%s.txt", day.Format("2006_01_02")))
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SourceName == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.HardWorkerCap < 0 {
		return fmt.Errorf("hard worker cap cannot be negative")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay cannot be negative")
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("max delay (%s) cannot be below min delay (%s)", c.MaxDelay, c.MinDelay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("backoff base cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.BackoffBase > c.RetryBackoffMax {
		return fmt.Errorf("backoff base (%s) cannot exceed retry backoff max (%s)", c.BackoffBase, c.RetryBackoffMax)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}
	if c.TestLimit < 0 {
		return fmt.Errorf("test limit cannot be negative")
	}
	if c.MemoryCacheSize < 0 {
		return fmt.Errorf("memory cache size cannot be negative")
	}
	if c.SaveLocal && c.CacheDir == "" {
		return fmt.Errorf("cache dir cannot be empty when saving locally")
	}
	for _, name := range c.CacheCategories {
		if name != string(models.ParseCategory(name)) {
			return fmt.Errorf("unknown cache category %q", name)
		}
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.UseRemoteRenderer {
		if c.RendererKey == "" {
			return fmt.Errorf("renderer key is required when the remote renderer is enabled")
		}
		parsed, err := url.Parse(c.RendererURL)
		if err != nil {
			return fmt.Errorf("invalid renderer URL: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("renderer URL must include a host")
		}
	}
	if c.VariantEndpoint != "" {
		parsed, err := url.Parse(c.VariantEndpoint)
		if err != nil {
			return fmt.Errorf("invalid variant endpoint: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("variant endpoint must include a host")
		}
	}
	if c.PostgresDSN != "" && c.PostgresTable == "" {
		return fmt.Errorf("postgres table cannot be empty when a DSN is set")
	}

	return nil
}
