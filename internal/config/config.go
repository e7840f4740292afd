// Package config resolves proz settings from defaults, an optional config
// file in the proz home directory and PROZ_* environment variables, in that
// order. CLI flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"proz/pkg/protocol"
)

// Defaults.
const (
	DefaultBaseURL      = "http://localhost:8000"
	DefaultTimeout      = 15 * time.Second
	DefaultRankLimit    = 5
	DefaultPollInterval = 30 * time.Second
	DefaultLogLevel     = "warn"
)

// Config file names tried in order inside the home directory.
var fileNames = []string{"config.toml", "config.yaml", "config.yml"} //nolint:gochecknoglobals // lookup table

// Config holds resolved proz settings.
type Config struct {
	Home         string   `toml:"-" yaml:"-"`
	File         string   `toml:"-" yaml:"-"` // config file that was read, "" if none
	DBPath       string   `toml:"db_path,omitempty" yaml:"db_path,omitempty"`
	BaseURL      string   `toml:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token        string   `toml:"token,omitempty" yaml:"token,omitempty"`
	TokenFile    string   `toml:"token_file,omitempty" yaml:"token_file,omitempty"`
	Timeout      Duration `toml:"timeout,omitempty" yaml:"timeout,omitempty"`
	RankLimit    int      `toml:"rank_limit,omitempty" yaml:"rank_limit,omitempty"`
	PollInterval Duration `toml:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	Namespace    string   `toml:"namespace,omitempty" yaml:"namespace,omitempty"`
	LogLevel     string   `toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	Phrases      Phrases  `toml:"phrases,omitempty" yaml:"phrases,omitempty"`
}

// Phrases lists backend messages recognised in addition to the built-in
// ones.
type Phrases struct {
	Conflict []string `toml:"conflict,omitempty" yaml:"conflict,omitempty"`
	Auth     []string `toml:"auth,omitempty" yaml:"auth,omitempty"`
}

// Load resolves the proz home directory and returns the merged config.
// Environment variables:
//   - PROZ_HOME: base directory for all proz state (default: ~/.proz)
//   - PROZ_DB_PATH: state database (default: $PROZ_HOME/state.db)
//   - PROZ_BASE_URL: backend base URL
//   - PROZ_TOKEN: bearer token; overrides the token file
//   - PROZ_TOKEN_FILE: token file (default: $PROZ_HOME/token)
//   - PROZ_NAMESPACE: offline queue namespace
//   - PROZ_LOG_LEVEL: debug, info, warn or error
func Load() (*Config, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}
	return LoadFrom(home, "")
}

// LoadFrom builds the config for home. A non-empty file is read instead of
// the config files in home and must exist.
func LoadFrom(home, file string) (*Config, error) {
	cfg := &Config{Home: home}

	if file == "" {
		file = findFile(home)
	}
	if file != "" {
		if err := cfg.readFile(file); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Override applies non-empty CLI flag values and re-validates.
func (c *Config) Override(baseURL, logLevel string) error {
	if baseURL != "" {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	return c.Validate()
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base_url %q: scheme must be http or https", c.BaseURL)
	}
	if c.Timeout.Duration() <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.PollInterval.Duration() <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.RankLimit < 0 {
		return errors.New("rank_limit must not be negative")
	}
	return nil
}

// QueueDir is the directory holding the state database.
func (c *Config) QueueDir() string {
	return filepath.Dir(c.DBPath)
}

func (c *Config) readFile(path string) error {
	//nolint:gosec // path comes from the proz home or an explicit flag
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("config %s: unsupported format", path)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DBPath, "PROZ_DB_PATH")
	setString(&c.BaseURL, "PROZ_BASE_URL")
	setString(&c.Token, "PROZ_TOKEN")
	setString(&c.TokenFile, "PROZ_TOKEN_FILE")
	setString(&c.Namespace, "PROZ_NAMESPACE")
	setString(&c.LogLevel, "PROZ_LOG_LEVEL")

	if v := os.Getenv("PROZ_RANK_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROZ_RANK_LIMIT: %w", err)
		}
		c.RankLimit = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.Home, "state.db")
	}
	if c.TokenFile == "" {
		c.TokenFile = filepath.Join(c.Home, "token")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
	if c.RankLimit == 0 {
		c.RankLimit = DefaultRankLimit
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Namespace == "" {
		c.Namespace = protocol.DefaultNamespace
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Home returns PROZ_HOME or ~/.proz.
func Home() (string, error) {
	if v := os.Getenv("PROZ_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.ProzDir), nil
}

func findFile(home string) string {
	for _, name := range fileNames {
		p := filepath.Join(home, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
