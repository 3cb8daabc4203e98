package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|stage|prod
	Service   string `yaml:"service"` // collab-service
	Version   string `yaml:"version"` // v0.1.0
	Backend   string `yaml:"backend"` // std|zap
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

type Postgres struct {
	DSN string `yaml:"dsn"` // пусто — in-memory demo-хранилище
}

type Redis struct {
	Addr string `yaml:"addr"` // пусто — без межинстансового relay
}

type Collab struct {
	PingIntervalRaw   string `yaml:"ping_interval"`
	WriteTimeoutRaw   string `yaml:"write_timeout"`
	StaleThresholdRaw string `yaml:"stale_threshold"`
	EvictIntervalRaw  string `yaml:"evict_interval"`
	MaxMessageBytes   int64  `yaml:"max_message_bytes"`

	// разобранные значения, заполняются в validate()
	PingInterval   time.Duration `yaml:"-"`
	WriteTimeout   time.Duration `yaml:"-"`
	StaleThreshold time.Duration `yaml:"-"`
	EvictInterval  time.Duration `yaml:"-"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Collab   Collab   `yaml:"collab"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return LoadConfigFile(path)
}

func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "collab-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	var err error
	if c.Collab.PingInterval, err = parseDurationOr(30*time.Second, c.Collab.PingIntervalRaw); err != nil {
		return fmt.Errorf("collab.ping_interval: %w", err)
	}
	if c.Collab.WriteTimeout, err = parseDurationOr(5*time.Second, c.Collab.WriteTimeoutRaw); err != nil {
		return fmt.Errorf("collab.write_timeout: %w", err)
	}
	if c.Collab.StaleThreshold, err = parseDurationOr(2*time.Minute, c.Collab.StaleThresholdRaw); err != nil {
		return fmt.Errorf("collab.stale_threshold: %w", err)
	}
	if c.Collab.EvictInterval, err = parseDurationOr(30*time.Second, c.Collab.EvictIntervalRaw); err != nil {
		return fmt.Errorf("collab.evict_interval: %w", err)
	}
	if c.Collab.MaxMessageBytes <= 0 {
		c.Collab.MaxMessageBytes = 1 << 20
	}
	return nil
}

// helper для парсинга timeout-ов: пустое значение — дефолт, опечатка
// или неположительная длительность — ошибка конфигурации.
func parseDurationOr(def time.Duration, s string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}
