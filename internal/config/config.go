package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Checks      ChecksConfig
	Thresholds  ThresholdsConfig
	Notify      NotifyConfig
	RemoteWrite RemoteWriteConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend     string
	Path        string
	DatabaseURL string
}

type ChecksConfig struct {
	Interval     time.Duration
	WorkerCount  int
	PassTimeout  time.Duration
	HTTPTimeout  time.Duration
	HTTPAttempts int
	TLSTimeout   time.Duration
	WHOISTimeout time.Duration
	WHOISRecheck time.Duration
	DNSTimeout   time.Duration
}

type ThresholdsConfig struct {
	// Days before expiry at which to alert, descending.
	Domain []int
	SSL    []int
}

type NotifyConfig struct {
	WebhookURL string
}

type RemoteWriteConfig struct {
	URL           string
	FlushInterval time.Duration
	BatchSize     int
	AuthToken     string
}

type LogConfig struct {
	Dir   string
	Level string
}

func Load() (*Config, error) {
	// .env is a convenience for local runs; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("SITESENTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("store.backend", "file")
	viper.SetDefault("store.path", "data/targets.json")
	viper.SetDefault("checks.interval", "3600s")
	viper.SetDefault("checks.workercount", 10)
	viper.SetDefault("checks.passtimeout", "120s")
	viper.SetDefault("checks.httptimeout", "10s")
	viper.SetDefault("checks.httpattempts", 3)
	viper.SetDefault("checks.tlstimeout", "10s")
	viper.SetDefault("checks.whoistimeout", "15s")
	viper.SetDefault("checks.whoisrecheck", "24h")
	viper.SetDefault("checks.dnstimeout", "5s")
	viper.SetDefault("thresholds.domain", "30,15,7,1")
	viper.SetDefault("thresholds.ssl", "30,15,7,1")
	viper.SetDefault("remotewrite.flushinterval", "10s")
	viper.SetDefault("remotewrite.batchsize", 1000)
	viper.SetDefault("log.dir", "logs")
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Mode: viper.GetString("server.mode"),
		},
		Store: StoreConfig{
			Backend:     viper.GetString("store.backend"),
			Path:        viper.GetString("store.path"),
			DatabaseURL: viper.GetString("store.databaseurl"),
		},
		Checks: ChecksConfig{
			Interval:     viper.GetDuration("checks.interval"),
			WorkerCount:  viper.GetInt("checks.workercount"),
			PassTimeout:  viper.GetDuration("checks.passtimeout"),
			HTTPTimeout:  viper.GetDuration("checks.httptimeout"),
			HTTPAttempts: viper.GetInt("checks.httpattempts"),
			TLSTimeout:   viper.GetDuration("checks.tlstimeout"),
			WHOISTimeout: viper.GetDuration("checks.whoistimeout"),
			WHOISRecheck: viper.GetDuration("checks.whoisrecheck"),
			DNSTimeout:   viper.GetDuration("checks.dnstimeout"),
		},
		Notify: NotifyConfig{
			WebhookURL: viper.GetString("notify.webhookurl"),
		},
		RemoteWrite: RemoteWriteConfig{
			URL:           viper.GetString("remotewrite.url"),
			FlushInterval: viper.GetDuration("remotewrite.flushinterval"),
			BatchSize:     viper.GetInt("remotewrite.batchsize"),
			AuthToken:     viper.GetString("remotewrite.authtoken"),
		},
		Log: LogConfig{
			Dir:   viper.GetString("log.dir"),
			Level: viper.GetString("log.level"),
		},
	}

	var err error
	if cfg.Thresholds.Domain, err = ParseThresholds(viper.GetString("thresholds.domain")); err != nil {
		return nil, fmt.Errorf("thresholds.domain: %w", err)
	}
	if cfg.Thresholds.SSL, err = ParseThresholds(viper.GetString("thresholds.ssl")); err != nil {
		return nil, fmt.Errorf("thresholds.ssl: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Checks.Interval <= 0 {
		return fmt.Errorf("checks.interval must be positive, got %s", c.Checks.Interval)
	}
	if c.Checks.WorkerCount <= 0 {
		return fmt.Errorf("checks.workercount must be positive, got %d", c.Checks.WorkerCount)
	}
	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the file backend")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.databaseurl is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be file or postgres, got %q", c.Store.Backend)
	}
	return nil
}

// ParseThresholds parses a comma-separated day list and normalizes it to
// descending order, the order the threshold tracker walks it in.
func ParseThresholds(s string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("must be comma-separated integers, got %q", s)
		}
		if d < 0 {
			return nil, fmt.Errorf("threshold days must be non-negative, got %d", d)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one threshold is required, got %q", s)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(days)))
	return days, nil
}
