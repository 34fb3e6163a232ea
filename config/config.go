package config

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"regexp"
	"strings"
	"time"
)

type Config struct {
	Pricefuse PricefuseConfig `yaml:"pricefuse"`
	Engine    EngineConfig    `yaml:"engine"`
	Venues    []VenueConfig   `yaml:"venues"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Bars      BarsConfig      `yaml:"bars"`
	Composite CompositeConfig `yaml:"composite"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	API       APIConfig       `yaml:"api"`
	Publish   PublishConfig   `yaml:"publish"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Storage   StorageConfig   `yaml:"storage"`
	Soak      SoakConfig      `yaml:"soak"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PricefuseConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type EngineConfig struct {
	Asset             string         `yaml:"asset"`
	Quote             string         `yaml:"quote"`
	RecomputeInterval time.Duration  `yaml:"recompute_interval"`
	MaxFutureSkew     time.Duration  `yaml:"max_future_skew"`
	MaxEventAge       time.Duration  `yaml:"max_event_age"`
	Backfill          BackfillConfig `yaml:"backfill"`
}

type BackfillConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Bars              int           `yaml:"bars"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ChannelsConfig struct {
	TradeBuffer int `yaml:"trade_buffer"`
	EventBuffer int `yaml:"event_buffer"`
}

type BarsConfig struct {
	HistoryCap int `yaml:"history_cap"`
	TradeCap   int `yaml:"trade_cap"`
}

type CompositeConfig struct {
	OutlierThresholdBps float64 `yaml:"outlier_threshold_bps"`
	QuorumProfile       string  `yaml:"quorum_profile"`
}

type MetricsConfig struct {
	ChannelSize bool   `yaml:"channel_size"`
	VenueEvents bool   `yaml:"venue_events"`
	Listen      string `yaml:"listen"`
}

type APIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	WSBuffer int    `yaml:"ws_buffer"`
}

type PublishConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compression   string        `yaml:"compression"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type SoakConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	S3Prefix       string        `yaml:"s3_prefix"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
	CloudWatch    CloudWatchConfig       `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	config.Engine.Asset = strings.ToUpper(strings.TrimSpace(config.Engine.Asset))
	config.Engine.Quote = strings.ToUpper(strings.TrimSpace(config.Engine.Quote))

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Default returns the built-in configuration: all reference venues enabled,
// permissive quorum, outputs disabled until switched on explicitly.
func Default() *Config {
	return &Config{
		Pricefuse: PricefuseConfig{
			Name:    "pricefuse",
			Version: "dev",
		},
		Engine: EngineConfig{
			Asset:             "BTC",
			Quote:             "USDT",
			RecomputeInterval: time.Second,
			MaxFutureSkew:     5 * time.Second,
			MaxEventAge:       5 * time.Minute,
			Backfill: BackfillConfig{
				Enabled:           true,
				Bars:              120,
				RequestsPerSecond: 4,
				Timeout:           30 * time.Second,
			},
		},
		Venues: DefaultVenues(),
		Channels: ChannelsConfig{
			TradeBuffer: 10000,
			EventBuffer: 64,
		},
		Bars: BarsConfig{
			HistoryCap: 1000,
			TradeCap:   5000,
		},
		Composite: CompositeConfig{
			OutlierThresholdBps: 100,
			QuorumProfile:       "permissive",
		},
		Metrics: MetricsConfig{
			ChannelSize: true,
			VenueEvents: true,
			Listen:      ":2112",
		},
		API: APIConfig{
			Enabled:  true,
			Address:  ":8090",
			WSBuffer: 256,
		},
		Publish: PublishConfig{
			Kafka: KafkaConfig{
				Topic: "pricefuse.composite",
			},
		},
		Archive: ArchiveConfig{
			FlushInterval: 5 * time.Minute,
			Compression:   "snappy",
			KeyPrefix:     "composite",
		},
		Soak: SoakConfig{
			SampleInterval: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			MaxAge: 7,
		},
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PRICEFUSE_ASSET"); v != "" {
		config.Engine.Asset = strings.TrimSpace(v)
	}
	if v := os.Getenv("PRICEFUSE_QUORUM_PROFILE"); v != "" {
		config.Composite.QuorumProfile = strings.TrimSpace(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		config.Publish.Kafka.Brokers = splitAndTrim(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if cfg.Pricefuse.Name == "" {
		return fmt.Errorf("pricefuse.name is required")
	}

	if cfg.Pricefuse.Version == "" {
		return fmt.Errorf("pricefuse.version is required")
	}

	if cfg.Engine.Asset == "" {
		return fmt.Errorf("engine.asset is required")
	}
	if cfg.Engine.Quote == "" {
		return fmt.Errorf("engine.quote is required")
	}
	if cfg.Engine.RecomputeInterval <= 0 {
		return fmt.Errorf("engine.recompute_interval must be greater than 0")
	}
	if cfg.Engine.Backfill.Enabled {
		if cfg.Engine.Backfill.Bars <= 0 {
			return fmt.Errorf("engine.backfill.bars must be greater than 0")
		}
		if cfg.Engine.Backfill.RequestsPerSecond <= 0 {
			return fmt.Errorf("engine.backfill.requests_per_second must be greater than 0")
		}
	}

	if err := validateVenues(cfg.Venues); err != nil {
		return err
	}

	if cfg.Channels.TradeBuffer <= 0 {
		return fmt.Errorf("channels.trade_buffer must be greater than 0")
	}
	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be greater than 0")
	}

	if cfg.Bars.HistoryCap <= 0 {
		return fmt.Errorf("bars.history_cap must be greater than 0")
	}
	if cfg.Bars.TradeCap <= 0 {
		return fmt.Errorf("bars.trade_cap must be greater than 0")
	}

	if cfg.Composite.OutlierThresholdBps <= 0 {
		return fmt.Errorf("composite.outlier_threshold_bps must be greater than 0")
	}
	switch cfg.Composite.QuorumProfile {
	case "permissive", "strict":
	default:
		return fmt.Errorf("composite.quorum_profile '%s' is invalid (want permissive or strict)", cfg.Composite.QuorumProfile)
	}

	if cfg.API.Enabled {
		if cfg.API.Address == "" {
			return fmt.Errorf("api.address is required when the API is enabled")
		}
		if cfg.API.WSBuffer <= 0 {
			return fmt.Errorf("api.ws_buffer must be greater than 0")
		}
	}

	if cfg.Publish.Kafka.Enabled {
		if len(cfg.Publish.Kafka.Brokers) == 0 {
			return fmt.Errorf("publish.kafka.brokers is required when kafka publishing is enabled")
		}
		if cfg.Publish.Kafka.Topic == "" {
			return fmt.Errorf("publish.kafka.topic is required when kafka publishing is enabled")
		}
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.FlushInterval <= 0 {
			return fmt.Errorf("archive.flush_interval must be greater than 0")
		}
		if !cfg.Storage.S3.Enabled {
			return fmt.Errorf("archive requires storage.s3.enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if (cfg.Storage.S3.AccessKeyID == "") != (cfg.Storage.S3.SecretAccessKey == "") {
			return fmt.Errorf("storage.s3 needs both access_key_id and secret_access_key or neither")
		}
		// Development falls back to the default AWS credential chain;
		// production-like environments must configure static credentials.
		if cfg.Storage.S3.AccessKeyID == "" && IsProductionLike(AppEnvironment()) {
			return fmt.Errorf("storage.s3 static credentials are required in %s", AppEnvironment())
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Soak.SampleInterval <= 0 {
		return fmt.Errorf("soak.sample_interval must be greater than 0")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
