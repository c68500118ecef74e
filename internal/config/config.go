package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/noah-isme/gema-webgrader/internal/checker"
	"github.com/noah-isme/gema-webgrader/internal/grading"
)

// Config holds runtime configuration values for the grader.
type Config struct {
	InputDir          string        `validate:"required"`
	Ignored           []string      `validate:"dive,required"`
	ScoreCap          int           `validate:"gte=1"`
	LogoHref          string        `validate:"required,url"`
	MaxUncompressedMB int           `validate:"gte=1"`
	StoreDriver       string        `validate:"omitempty,oneof=sqlite postgres"`
	StoreDSN          string        `validate:"required_with=StoreDriver"`
	RedisURL          string        `validate:"omitempty,url"`
	CacheTTL          time.Duration `validate:"gte=0"`
	MetricsTextfile   string
	LogLevel          string `validate:"oneof=trace debug info warn error"`
	LogFormat         string `validate:"oneof=console json"`
}

// MaxUncompressedBytes converts the archive size limit to bytes.
func (c Config) MaxUncompressedBytes() int64 {
	return int64(c.MaxUncompressedMB) * 1024 * 1024
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"input":            "input.dir",
	"cap":              "score.cap",
	"logo-href":        "html.logo_href",
	"store-driver":     "store.driver",
	"store-dsn":        "store.dsn",
	"redis-url":        "redis.url",
	"metrics-textfile": "metrics.textfile",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags is Load with command line flags taking precedence over the
// environment when they were set explicitly.
func LoadWithFlags(flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("WEBGRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("input.dir", "src")
	v.SetDefault("input.ignore", "")
	v.SetDefault("score.cap", 10)
	v.SetDefault("html.logo_href", checker.DefaultLogoHref)
	v.SetDefault("archive.max_uncompressed_mb", 200)
	v.SetDefault("store.driver", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	ttlString := v.GetString("cache.ttl")
	if ttlString == "" {
		ttlString = "24h"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid cache ttl: %w", err)
	}

	cfg := Config{
		InputDir:          v.GetString("input.dir"),
		Ignored:           parseList(v.GetString("input.ignore")),
		ScoreCap:          v.GetInt("score.cap"),
		LogoHref:          v.GetString("html.logo_href"),
		MaxUncompressedMB: v.GetInt("archive.max_uncompressed_mb"),
		StoreDriver:       strings.ToLower(v.GetString("store.driver")),
		StoreDSN:          v.GetString("store.dsn"),
		RedisURL:          v.GetString("redis.url"),
		CacheTTL:          ttl,
		MetricsTextfile:   v.GetString("metrics.textfile"),
		LogLevel:          strings.ToLower(v.GetString("log.level")),
		LogFormat:         strings.ToLower(v.GetString("log.format")),
	}

	if len(cfg.Ignored) == 0 {
		cfg.Ignored = slices.Clone(grading.DefaultIgnored)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func parseList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
