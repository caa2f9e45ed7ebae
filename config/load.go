package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys understood by Load. Durations are expressed in seconds.
const (
	KeySourceName         = "source_name"
	KeySaveRawCache       = "save_raw_cache"
	KeySaveLocal          = "save_local"
	KeyCacheDir           = "cache_dir"
	KeyCacheCategories    = "cache_categories"
	KeyMemoryCacheSize    = "memory_cache_size"
	KeyUseRemoteRenderer  = "use_remote_renderer"
	KeyRendererKey        = "renderer_key"
	KeyRendererURL        = "renderer_url"
	KeyVariantEndpoint    = "variant_endpoint"
	KeyWorkers            = "workers"
	KeyHardWorkerCap      = "hard_worker_cap"
	KeyMinDelaySeconds    = "min_delay_seconds"
	KeyMaxDelaySeconds    = "max_delay_seconds"
	KeyTimeoutSeconds     = "timeout"
	KeyMaxRetries         = "max_retries"
	KeyBackoffBaseSeconds = "backoff_base"
	KeyBackoffMaxSeconds  = "retry_backoff_max"
	KeyProgressInterval   = "progress_interval"
	KeyTestLimit          = "test_limit"
	KeyProductsOnly       = "products_only"
	KeyFollowIndex        = "follow_sitemap_index"
	KeyDeduplicate        = "deduplicate"
	KeyOutputDir          = "output_dir"
	KeyOutputFile         = "output_file"
	KeyPostgresDSN        = "postgres_dsn"
	KeyPostgresTable      = "postgres_table"
	KeyMetricsAddr        = "metrics_addr"
	KeyLogFile            = "log_file"
	KeyVerbose            = "verbose"
)

// EnvPrefix namespaces environment overrides, e.g. HARVEST_WORKERS.
const EnvPrefix = "HARVEST"

// NewViper returns a viper instance seeded with DefaultConfig and wired to
// HARVEST_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every value of cfg as a viper default.
func SetDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault(KeySourceName, cfg.SourceName)
	v.SetDefault(KeySaveRawCache, cfg.SaveRawCache)
	v.SetDefault(KeySaveLocal, cfg.SaveLocal)
	v.SetDefault(KeyCacheDir, cfg.CacheDir)
	v.SetDefault(KeyCacheCategories, cfg.CacheCategories)
	v.SetDefault(KeyMemoryCacheSize, cfg.MemoryCacheSize)
	v.SetDefault(KeyUseRemoteRenderer, cfg.UseRemoteRenderer)
	v.SetDefault(KeyRendererKey, cfg.RendererKey)
	v.SetDefault(KeyRendererURL, cfg.RendererURL)
	v.SetDefault(KeyVariantEndpoint, cfg.VariantEndpoint)
	v.SetDefault(KeyWorkers, cfg.Workers)
	v.SetDefault(KeyHardWorkerCap, cfg.HardWorkerCap)
	v.SetDefault(KeyMinDelaySeconds, cfg.MinDelay.Seconds())
	v.SetDefault(KeyMaxDelaySeconds, cfg.MaxDelay.Seconds())
	v.SetDefault(KeyTimeoutSeconds, cfg.Timeout.Seconds())
	v.SetDefault(KeyMaxRetries, cfg.MaxRetries)
	v.SetDefault(KeyBackoffBaseSeconds, cfg.BackoffBase.Seconds())
	v.SetDefault(KeyBackoffMaxSeconds, cfg.RetryBackoffMax.Seconds())
	v.SetDefault(KeyProgressInterval, cfg.ProgressInterval.Seconds())
	v.SetDefault(KeyTestLimit, cfg.TestLimit)
	v.SetDefault(KeyProductsOnly, cfg.ProductsOnly)
	v.SetDefault(KeyFollowIndex, cfg.FollowSitemapIndex)
	v.SetDefault(KeyDeduplicate, cfg.Deduplicate)
	v.SetDefault(KeyOutputDir, cfg.OutputDir)
	v.SetDefault(KeyOutputFile, cfg.OutputFile)
	v.SetDefault(KeyPostgresDSN, cfg.PostgresDSN)
	v.SetDefault(KeyPostgresTable, cfg.PostgresTable)
	v.SetDefault(KeyMetricsAddr, cfg.MetricsAddr)
	v.SetDefault(KeyLogFile, cfg.LogFile)
	v.SetDefault(KeyVerbose, cfg.Verbose)
}

// ReadFile loads an optional YAML config file. An empty path searches for
// harvest.yaml in the working directory and ./configs; a missing file is
// not an error in that case.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %q: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("harvest")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// FromViper materialises a Config from the resolved viper values.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		SourceName:         v.GetString(KeySourceName),
		SaveRawCache:       v.GetBool(KeySaveRawCache),
		SaveLocal:          v.GetBool(KeySaveLocal),
		CacheDir:           v.GetString(KeyCacheDir),
		CacheCategories:    stringList(v, KeyCacheCategories),
		MemoryCacheSize:    v.GetInt(KeyMemoryCacheSize),
		UseRemoteRenderer:  v.GetBool(KeyUseRemoteRenderer),
		RendererKey:        v.GetString(KeyRendererKey),
		RendererURL:        v.GetString(KeyRendererURL),
		VariantEndpoint:    v.GetString(KeyVariantEndpoint),
		Workers:            v.GetInt(KeyWorkers),
		HardWorkerCap:      v.GetInt(KeyHardWorkerCap),
		MinDelay:           seconds(v.GetFloat64(KeyMinDelaySeconds)),
		MaxDelay:           seconds(v.GetFloat64(KeyMaxDelaySeconds)),
		Timeout:            seconds(v.GetFloat64(KeyTimeoutSeconds)),
		MaxRetries:         v.GetInt(KeyMaxRetries),
		BackoffBase:        seconds(v.GetFloat64(KeyBackoffBaseSeconds)),
		RetryBackoffMax:    seconds(v.GetFloat64(KeyBackoffMaxSeconds)),
		ProgressInterval:   seconds(v.GetFloat64(KeyProgressInterval)),
		TestLimit:          v.GetInt(KeyTestLimit),
		ProductsOnly:       v.GetBool(KeyProductsOnly),
		FollowSitemapIndex: v.GetBool(KeyFollowIndex),
		Deduplicate:        v.GetBool(KeyDeduplicate),
		OutputDir:          v.GetString(KeyOutputDir),
		OutputFile:         v.GetString(KeyOutputFile),
		PostgresDSN:        v.GetString(KeyPostgresDSN),
		PostgresTable:      v.GetString(KeyPostgresTable),
		MetricsAddr:        v.GetString(KeyMetricsAddr),
		LogFile:            v.GetString(KeyLogFile),
		Verbose:            v.GetBool(KeyVerbose),
	}
}

// Load resolves defaults, the optional config file and the environment into
// a validated Config.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil)
}

// LoadWithFlags is Load with command-line flags layered on top of the
// environment. A flag named "test-limit" overrides the key "test_limit";
// only flags the user actually set take effect.
func LoadWithFlags(path string, flags *pflag.FlagSet) (*Config, error) {
	v := NewViper()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if bindErr == nil && v.IsSet(key) {
				bindErr = v.BindPFlag(key, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}
	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// stringList reads a list value. Environment variables arrive as one string
// and may separate items with commas or whitespace.
func stringList(v *viper.Viper, key string) []string {
	raw, ok := v.Get(key).(string)
	if !ok {
		return v.GetStringSlice(key)
	}
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
