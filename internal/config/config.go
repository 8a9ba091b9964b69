// Package config handles the XDG configuration directory, config.yaml and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// AppName is the application directory name.
	AppName = "nexustodo"

	// ConfigFile is the settings filename.
	ConfigFile = "config.yaml"

	// StateFile is the local state database filename.
	StateFile = "state.db"

	// EnvFile is the dotenv filename looked up in the working directory and
	// the config directory.
	EnvFile = ".env"
)

// Defaults.
const (
	DefaultBaseURL    = "http://localhost:8080/api"
	DefaultToken      = "default-token"
	DefaultTimeout    = 10 * time.Second
	DefaultReviewTime = "18:00"
)

// Environment overrides.
const (
	EnvBaseURL      = "NEXUSTODO_BASE_URL"
	EnvAgentBaseURL = "NEXUSTODO_AGENT_BASE_URL"
	EnvToken        = "NEXUSTODO_TOKEN"
	EnvBridgeURL    = "NEXUSTODO_BRIDGE_URL"
	EnvTimeout      = "NEXUSTODO_TIMEOUT"
	EnvReviewTime   = "NEXUSTODO_REVIEW_TIME"
)

// Settings are the user-editable options stored in config.yaml.
type Settings struct {
	// BaseURL is the task service base, e.g. http://host/api.
	BaseURL string `yaml:"base_url"`

	// AgentBaseURL, when set, is used for agent calls and disables
	// fallback discovery.
	AgentBaseURL string `yaml:"agent_base_url,omitempty"`

	// Token is the bearer token.
	Token string `yaml:"token,omitempty"`

	// BridgeURL, when set, routes every request through a host bridge
	// listening on this websocket address.
	BridgeURL string `yaml:"bridge_url,omitempty"`

	// Timeout bounds one-shot requests.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// ReviewTime is the HH:MM time after which the daily review is due.
	ReviewTime string `yaml:"review_time,omitempty"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		BaseURL:    DefaultBaseURL,
		Token:      DefaultToken,
		Timeout:    DefaultTimeout,
		ReviewTime: DefaultReviewTime,
	}
}

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Settings are the effective settings: file values with environment
	// overrides applied.
	Settings Settings

	// file holds what config.yaml contains, without overrides.
	file Settings
}

// New creates a new Config with the default or specified config directory
// and loads its settings.
// If configDir is empty, uses XDG_CONFIG_HOME/nexustodo or $HOME/.config/nexustodo.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	c := &Config{Dir: dir}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Path returns the path to config.yaml.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, ConfigFile)
}

// StatePath returns the path to the local state database.
func (c *Config) StatePath() string {
	return filepath.Join(c.Dir, StateFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// Load reads config.yaml (a missing file means defaults), loads .env files
// into the environment without replacing variables already set, and applies
// environment overrides.
func (c *Config) Load() error {
	file := Defaults()
	data, err := os.ReadFile(c.Path())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", ConfigFile, err)
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("invalid %s: %w", ConfigFile, err)
		}
	}
	c.file = normalize(file)

	loadDotEnv(EnvFile, filepath.Join(c.Dir, EnvFile))

	effective, err := applyEnv(c.file)
	if err != nil {
		return err
	}
	c.Settings = normalize(effective)
	return nil
}

// Update applies fn to the stored settings, writes config.yaml and
// recomputes the effective settings.
func (c *Config) Update(fn func(*Settings)) error {
	file := c.file
	fn(&file)
	file = normalize(file)

	if err := c.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(c.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", ConfigFile, err)
	}

	c.file = file
	effective, err := applyEnv(file)
	if err != nil {
		return err
	}
	c.Settings = normalize(effective)
	return nil
}

// Stored returns the settings as written in config.yaml.
func (c *Config) Stored() Settings {
	return c.file
}

func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// Already-set variables win over .env values.
		_ = godotenv.Load(p)
	}
}

func applyEnv(s Settings) (Settings, error) {
	if v, ok := os.LookupEnv(EnvBaseURL); ok && v != "" {
		s.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvAgentBaseURL); ok {
		s.AgentBaseURL = v
	}
	if v, ok := os.LookupEnv(EnvToken); ok && v != "" {
		s.Token = v
	}
	if v, ok := os.LookupEnv(EnvBridgeURL); ok {
		s.BridgeURL = v
	}
	if v, ok := os.LookupEnv(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return s, fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		s.Timeout = d
	}
	if v, ok := os.LookupEnv(EnvReviewTime); ok && v != "" {
		s.ReviewTime = v
	}
	return s, nil
}

// normalize trims URLs and fills empty values with defaults.
func normalize(s Settings) Settings {
	d := Defaults()
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.BaseURL == "" {
		s.BaseURL = d.BaseURL
	}
	s.AgentBaseURL = strings.TrimRight(strings.TrimSpace(s.AgentBaseURL), "/")
	s.BridgeURL = strings.TrimSpace(s.BridgeURL)
	if strings.TrimSpace(s.Token) == "" {
		s.Token = d.Token
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if strings.TrimSpace(s.ReviewTime) == "" {
		s.ReviewTime = d.ReviewTime
	}
	return s
}
