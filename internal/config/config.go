// Package config loads batabung settings from defaults, an optional
// batabung.yaml, a .env file and BATABUNG_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. BATABUNG_REMOTE_URL.
const EnvPrefix = "BATABUNG"

// FileName is the config file name without extension.
const FileName = "batabung"

// Config is the full configuration of the device CLI and the backend.
type Config struct {
	// Owner is the signed-in user. Derived from Remote.Token when empty.
	Owner string `mapstructure:"owner" yaml:"owner"`
	// DataDir holds the local database and the inbox.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
	Backend   BackendConfig   `mapstructure:"backend" yaml:"backend"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`

	// Catalog is an optional TOML file replacing the built-in institutions.
	Catalog string `mapstructure:"catalog" yaml:"catalog,omitempty"`

	// file is the config file that was read, if any.
	file string
}

type RemoteConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	MinBackoff    time.Duration `mapstructure:"min_backoff" yaml:"min_backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	ResetAfter    time.Duration `mapstructure:"reset_after" yaml:"reset_after"`
	DeleteTimeout time.Duration `mapstructure:"delete_timeout" yaml:"delete_timeout"`
	WatchInbox    bool          `mapstructure:"watch_inbox" yaml:"watch_inbox"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File enables rotating file output next to the console.
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// RedisConfig enables the cross-process sync lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr,omitempty"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

type DashboardConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// BackendConfig is read by ledgerd only.
type BackendConfig struct {
	Addr      string   `mapstructure:"addr" yaml:"addr"`
	JWTSecret string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Origins   []string `mapstructure:"origins" yaml:"origins"`
}

// DatabaseConfig is the backend's Postgres connection.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            string        `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	SSLMode         string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DBPath is the local SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// InboxDir is where record files are dropped for import.
func (c *Config) InboxDir() string {
	return filepath.Join(c.DataDir, "inbox")
}

// File returns the config file that was read, or "" if none.
func (c *Config) File() string {
	return c.file
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".batabung"
	}
	return filepath.Join(home, ".batabung")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("owner", "")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("catalog", "")

	v.SetDefault("remote.url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 20*time.Second)

	v.SetDefault("sync.interval", 15*time.Minute)
	v.SetDefault("sync.min_backoff", 10*time.Second)
	v.SetDefault("sync.max_backoff", 5*time.Minute)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.reset_after", 3*time.Second)
	v.SetDefault("sync.delete_timeout", 30*time.Second)
	v.SetDefault("sync.watch_inbox", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 10*time.Minute)

	v.SetDefault("dashboard.addr", "127.0.0.1:8765")

	v.SetDefault("backend.addr", ":8080")
	v.SetDefault("backend.jwt_secret", "")
	v.SetDefault("backend.origins", []string{"https://*", "http://*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "batabung")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
}

// Default returns the configuration with nothing but defaults applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration. If path is empty, batabung.yaml is looked
// up in the working directory and then $HOME/.config/batabung; a missing
// file is not an error. A .env file in the working directory is loaded
// into the environment first without overriding variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "batabung"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive (got %s)", c.Sync.Interval)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1 (got %d)", c.Sync.MaxAttempts)
	}
	if c.Sync.MinBackoff > c.Sync.MaxBackoff {
		return fmt.Errorf("sync.min_backoff %s exceeds sync.max_backoff %s", c.Sync.MinBackoff, c.Sync.MaxBackoff)
	}
	return nil
}

// WriteTemplate writes cfg as YAML to path. It refuses to overwrite an
// existing file unless force is set.
func WriteTemplate(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	header := []byte("# batabung configuration. Every key can also be set as BATABUNG_<KEY>,\n" +
		"# with dots replaced by underscores, e.g. BATABUNG_REMOTE_URL.\n")
	return os.WriteFile(path, append(header, data...), 0o600)
}
