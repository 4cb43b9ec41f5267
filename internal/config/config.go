package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipeline
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Taxonomy TaxonomyConfig `mapstructure:"taxonomy"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Search   SearchConfig   `mapstructure:"search"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PipelineConfig controls extraction, merging and taxonomy counting
type PipelineConfig struct {
	InputDir       string      `mapstructure:"input_dir"`
	BaseURL        string      `mapstructure:"base_url"`
	Workers        int         `mapstructure:"workers"`
	Version        string      `mapstructure:"version"`
	FeaturedBrands int         `mapstructure:"featured_brands"`
	CountPolicy    string      `mapstructure:"count_policy"`
	Merge          MergeConfig `mapstructure:"merge"`
}

// MergeConfig selects which observation wins when two records disagree
type MergeConfig struct {
	TextPolicy    string `mapstructure:"text_policy"`
	NumericPolicy string `mapstructure:"numeric_policy"`
}

type TaxonomyConfig struct {
	File string `mapstructure:"file"`
}

type OutputConfig struct {
	Root      string `mapstructure:"root"`
	ReportDir string `mapstructure:"report_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SearchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	IndexDir string `mapstructure:"index_dir"`
}

// DatabaseConfig holds the optional Postgres document mirror
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds Redis connection details for the run lock and run events
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	Database     int    `mapstructure:"database"`
	LockTTL      int    `mapstructure:"lock_ttl"`
	StreamPrefix string `mapstructure:"stream_prefix"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

// Load loads configuration from config.yaml in the working directory with environment variable overrides
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads config.yaml from dir
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in %s", dir)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Pipeline.CountPolicy {
	case "rollup", "direct":
	default:
		return fmt.Errorf("invalid pipeline.count_policy %q: want rollup or direct", c.Pipeline.CountPolicy)
	}
	for key, value := range map[string]string{
		"pipeline.merge.text_policy":    c.Pipeline.Merge.TextPolicy,
		"pipeline.merge.numeric_policy": c.Pipeline.Merge.NumericPolicy,
	} {
		if value != "latest" && value != "first" {
			return fmt.Errorf("invalid %s %q: want latest or first", key, value)
		}
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.FeaturedBrands < 0 {
		return fmt.Errorf("pipeline.featured_brands must not be negative, got %d", c.Pipeline.FeaturedBrands)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.input_dir", "./data/raw")
	v.SetDefault("pipeline.base_url", "https://www.homedepot.com")
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.version", "1.0")
	v.SetDefault("pipeline.featured_brands", 5)
	v.SetDefault("pipeline.count_policy", "rollup")
	v.SetDefault("pipeline.merge.text_policy", "latest")
	v.SetDefault("pipeline.merge.numeric_policy", "latest")

	v.SetDefault("taxonomy.file", "./taxonomy.yaml")

	v.SetDefault("output.root", "./data/production")
	v.SetDefault("output.report_dir", "./reports")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("search.enabled", false)
	v.SetDefault("search.index_dir", "./search/products.bleve")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "catalog")
	v.SetDefault("database.user", "catalog_user")
	v.SetDefault("database.password", "catalog_pass")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.lock_ttl", 1800)
	v.SetDefault("redis.stream_prefix", "catalog:stream:")
	v.SetDefault("redis.stream_max_len", 1000)
}
