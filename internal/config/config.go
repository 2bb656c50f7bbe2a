package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Whitepages WhitepagesConfig `yaml:"whitepages" mapstructure:"whitepages"`
	PDL        PDLConfig        `yaml:"pdl" mapstructure:"pdl"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig bounds the in-memory enrichment cache.
type CacheConfig struct {
	Size int `yaml:"size" mapstructure:"size"`
}

// EnrichmentConfig tunes the orchestrator.
type EnrichmentConfig struct {
	ProvidersFile       string  `yaml:"providers_file" mapstructure:"providers_file"`
	CooldownMinutes     int     `yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
	MatchThreshold      float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
	ProviderTimeoutSecs int     `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
}

// Cooldown returns the related-party cooldown window.
func (e EnrichmentConfig) Cooldown() time.Duration {
	return time.Duration(e.CooldownMinutes) * time.Minute
}

// ProviderTimeout returns the per-call provider timeout.
func (e EnrichmentConfig) ProviderTimeout() time.Duration {
	return time.Duration(e.ProviderTimeoutSecs) * time.Second
}

// WhitepagesConfig holds Whitepages Pro API settings.
type WhitepagesConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// PDLConfig holds People Data Labs API settings.
type PDLConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SKIPTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "skiptrace.db")
	v.SetDefault("cache.size", 8192)
	v.SetDefault("enrichment.providers_file", "providers.yaml")
	v.SetDefault("enrichment.cooldown_minutes", 15)
	v.SetDefault("enrichment.match_threshold", 0.85)
	v.SetDefault("enrichment.provider_timeout_secs", 30)
	v.SetDefault("whitepages.base_url", "https://proapi.whitepages.com/3.0")
	v.SetDefault("whitepages.rps", 5)
	v.SetDefault("pdl.base_url", "https://api.peopledatalabs.com/v5")
	v.SetDefault("pdl.rps", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given mode depends on. Modes map to
// command entry points: "enrich" needs at least one provider credential,
// "serve" additionally needs a listen port.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkCommon := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Enrichment.MatchThreshold < 0 || c.Enrichment.MatchThreshold > 1 {
			problems = append(problems, "enrichment.match_threshold must be in [0,1]")
		}
		if c.Enrichment.CooldownMinutes < 0 {
			problems = append(problems, "enrichment.cooldown_minutes must be >= 0")
		}
		if c.Whitepages.Key == "" && c.PDL.Key == "" {
			problems = append(problems, "at least one provider key is required (whitepages.key or pdl.key)")
		}
	}

	switch mode {
	case "enrich":
		checkCommon()
	case "serve":
		checkCommon()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
