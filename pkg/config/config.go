package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	App         struct {
		Name    string `yaml:"name" default:"price-server"`
		Version string `yaml:"version" default:"0.1.0"`
	} `yaml:"app"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"5m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Storage struct {
		Series      string `yaml:"series" default:"memory"`      // memory | clickhouse
		Instruments string `yaml:"instruments" default:"memory"` // memory | postgres
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"prices"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"10s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"60s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"120s"`
		InsertBatchSize  int           `yaml:"insert_batch_size" default:"5000"`
	} `yaml:"clickhouse"`
	Postgres struct {
		URL             string        `yaml:"url"`
		Host            string        `yaml:"host" default:"localhost"`
		Port            int           `yaml:"port" default:"5432"`
		User            string        `yaml:"user" default:"postgres"`
		Password        string        `yaml:"password"`
		Database        string        `yaml:"database" default:"prices"`
		SSLMode         string        `yaml:"ssl_mode" default:"disable"`
		MaxConns        int32         `yaml:"max_conns" default:"10"`
		MinConns        int32         `yaml:"min_conns" default:"1"`
		MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"1h"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic" default:"prices.ticks"`
		EventsTopic  string   `yaml:"events_topic" default:"prices.export-events"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"price-server"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Jobs struct {
		Registry  string        `yaml:"registry" default:"memory"` // memory | redis
		KeyPrefix string        `yaml:"key_prefix" default:"export:job:"`
		TTL       time.Duration `yaml:"ttl" default:"168h"`
	} `yaml:"jobs"`
	Export struct {
		Dir       string  `yaml:"dir" default:"exports"`
		Workers   int     `yaml:"workers" default:"4"`
		MaxRows   int64   `yaml:"max_rows" default:"1000000"`
		ChunkSize int     `yaml:"chunk_size" default:"10000"`
		RateLimit float64 `yaml:"rate_limit" default:"2"` // submissions per second per client
		Burst     int     `yaml:"burst" default:"5"`
	} `yaml:"export"`
	Query struct {
		MaxLimit int           `yaml:"max_limit" default:"50000"`
		Timeout  time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"query"`
	Upload struct {
		MaxSizeMB int `yaml:"max_size_mb" default:"100"`
		BatchSize int `yaml:"batch_size" default:"5000"`
	} `yaml:"upload"`
	Cache struct {
		Type string        `yaml:"type" default:"memory"` // memory | redis | none
		TTL  time.Duration `yaml:"ttl" default:"5m"`
	} `yaml:"cache"`
}

// Default returns a configuration populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A missing file falls back to defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		c, err = Load(path)
	} else {
		c, err = Default()
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
		c.Storage.Instruments = "postgres"
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.Storage.Series = "clickhouse"
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Storage.Series {
	case "memory", "clickhouse":
	default:
		return fmt.Errorf("storage.series must be 'memory' or 'clickhouse', got '%s'", c.Storage.Series)
	}
	switch c.Storage.Instruments {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage.instruments must be 'memory' or 'postgres', got '%s'", c.Storage.Instruments)
	}
	switch c.Jobs.Registry {
	case "memory", "redis":
	default:
		return fmt.Errorf("jobs.registry must be 'memory' or 'redis', got '%s'", c.Jobs.Registry)
	}
	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'none', got '%s'", c.Cache.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export.dir is required")
	}
	if c.Export.Workers <= 0 {
		return fmt.Errorf("export.workers must be positive")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be positive")
	}
	if c.Export.ChunkSize <= 0 {
		return fmt.Errorf("export.chunk_size must be positive")
	}
	if c.Query.MaxLimit <= 0 {
		return fmt.Errorf("query.max_limit must be positive")
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload.max_size_mb must be positive")
	}
	return nil
}
