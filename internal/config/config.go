// Package config loads the archiver configuration from a YAML file
// with environment-variable overrides.
//
// Precedence, highest first: process environment (MAILARCH_ prefix), a
// .env file in the working directory, the YAML config file, built-in
// defaults. Credentials belong in the environment, not the YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nhle/mail-archiver/internal/logger"
)

// AccountConfig describes one IMAP account and the folders to archive
// from it.
type AccountConfig struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Host     string   `mapstructure:"host" yaml:"host"`
	Port     int      `mapstructure:"port" yaml:"port"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	TLS      bool     `mapstructure:"tls" yaml:"tls"`
	Folders  []string `mapstructure:"folders" yaml:"folders"`
}

// WebConfig holds the HTTP API listen settings.
type WebConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// MetricsConfig controls the optional Prometheus outputs. Empty values
// disable the corresponding output.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
	PushURL      string `mapstructure:"push_url" yaml:"push_url"`
	PushJob      string `mapstructure:"push_job" yaml:"push_job"`
	PushInstance string `mapstructure:"push_instance" yaml:"push_instance"`
}

// Config is the top-level archiver configuration.
type Config struct {
	ArchiveRoot string          `mapstructure:"archive_root" yaml:"archive_root"`
	IndexPath   string          `mapstructure:"index_path" yaml:"index_path"`
	MaxMessages int             `mapstructure:"max_messages" yaml:"max_messages"`
	Accounts    []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Log         logger.Config   `mapstructure:"log" yaml:"log"`
	Web         WebConfig       `mapstructure:"web" yaml:"web"`
	Metrics     MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultConfigPath returns ~/.config/mailarch/config.yaml, falling
// back to the working directory when the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailarch", "config.yaml")
}

func defaultConfig() *Config {
	return &Config{
		ArchiveRoot: "archive",
		IndexPath:   filepath.Join("archive", "mail_index.db"),
		Log: logger.Config{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Metrics: MetricsConfig{
			PushJob: "mailarch",
		},
	}
}

// Load reads configuration from the YAML file at path, then applies
// environment overrides. A missing file is not an error; the defaults
// plus environment are enough to run.
func Load(path string) (*Config, error) {
	// Optional; credentials often live here during development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("mailarch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("archive_root", "archive")
	v.SetDefault("index_path", filepath.Join("archive", "mail_index.db"))
	v.SetDefault("max_messages", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("web.host", "127.0.0.1")
	v.SetDefault("web.port", 8080)
	v.SetDefault("metrics.push_job", "mailarch")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return applyEnvAccounts(defaultConfigFrom(v)), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return applyEnvAccounts(defaultConfigFrom(v)), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyAccountDefaults(cfg)
	return applyEnvAccounts(cfg), nil
}

// defaultConfigFrom builds a config from defaults plus whatever the
// environment overrides, with no YAML file involved.
func defaultConfigFrom(v *viper.Viper) *Config {
	cfg := defaultConfig()
	cfg.ArchiveRoot = v.GetString("archive_root")
	cfg.IndexPath = v.GetString("index_path")
	cfg.MaxMessages = v.GetInt("max_messages")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Development = v.GetBool("log.development")
	cfg.Log.File = v.GetString("log.file")
	cfg.Web.Host = v.GetString("web.host")
	cfg.Web.Port = v.GetInt("web.port")
	cfg.Metrics.TextfilePath = v.GetString("metrics.textfile_path")
	cfg.Metrics.PushURL = v.GetString("metrics.push_url")
	cfg.Metrics.PushJob = v.GetString("metrics.push_job")
	cfg.Metrics.PushInstance = v.GetString("metrics.push_instance")
	return cfg
}

// applyAccountDefaults fills in per-account values that are almost
// always the same.
func applyAccountDefaults(cfg *Config) {
	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if a.Port == 0 {
			if a.TLS {
				a.Port = 993
			} else {
				a.Port = 143
			}
		}
		if a.Name == "" {
			a.Name = a.Username
		}
		if len(a.Folders) == 0 {
			a.Folders = []string{"INBOX"}
		}
	}
}

// applyEnvAccounts resolves per-account password references of the
// form "env:VAR_NAME" against the environment, so the YAML file never
// needs to hold a secret.
func applyEnvAccounts(cfg *Config) *Config {
	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if name, ok := strings.CutPrefix(a.Password, "env:"); ok {
			a.Password = os.Getenv(name)
		}
	}
	return cfg
}

// Validate checks the parts of the configuration that a sync run
// cannot do without.
func (c *Config) Validate() error {
	if c.ArchiveRoot == "" {
		return fmt.Errorf("archive_root must not be empty")
	}
	if c.IndexPath == "" {
		return fmt.Errorf("index_path must not be empty")
	}
	for _, a := range c.Accounts {
		if a.Host == "" {
			return fmt.Errorf("account %q: host must not be empty", a.Name)
		}
		if a.Username == "" {
			return fmt.Errorf("account %q: username must not be empty", a.Name)
		}
	}
	return nil
}
