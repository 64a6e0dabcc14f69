package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFilename is read from the home directory when present.
const ConfigFilename = "config.yaml"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home       string // config directory, e.g. $HOME/.privmsg
	User       string // local user id
	Passphrase string // unlocks the keyring; never read from the config file
	KeydirURL  string // key directory and mailbox base URL

	KeyLookupTimeout time.Duration
	KeyRetention     int // retired key pairs and peer keys kept; 0 keeps all
	LookupRetries    int

	Mixnet MixnetConfig

	LogFormat string // "text" or "json"
	LogLevel  string // debug, info, warn or error

	HTTP      *http.Client // optional; defaults to a client with a timeout
	LogWriter io.Writer    // optional; defaults to stderr
}

// MixnetConfig configures the anonymizing transport.
type MixnetConfig struct {
	Enabled       bool
	DefinitionURL string
	DaemonNetwork string // "tcp" or "unix"
	DaemonAddress string
	InitTimeout   time.Duration
	SendTimeout   time.Duration
}

// fileConfig mirrors config.yaml. Pointers distinguish unset from zero.
type fileConfig struct {
	User             string        `yaml:"user"`
	KeydirURL        string        `yaml:"keydirURL"`
	KeyLookupTimeout time.Duration `yaml:"keyLookupTimeout"`
	KeyRetention     *int          `yaml:"keyRetention"`
	LookupRetries    *int          `yaml:"lookupRetries"`
	Mixnet           struct {
		Enabled       *bool         `yaml:"enabled"`
		DefinitionURL string        `yaml:"definitionURL"`
		DaemonNetwork string        `yaml:"daemonNetwork"`
		DaemonAddress string        `yaml:"daemonAddress"`
		InitTimeout   time.Duration `yaml:"initTimeout"`
		SendTimeout   time.Duration `yaml:"sendTimeout"`
	} `yaml:"mixnet"`
	Log struct {
		Format string `yaml:"format"`
		Level  string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig returns the built-in settings for home.
func DefaultConfig(home string) Config {
	return Config{
		Home:             home,
		KeydirURL:        "http://127.0.0.1:8080",
		KeyLookupTimeout: 3 * time.Second,
		LookupRetries:    2,
		Mixnet: MixnetConfig{
			DaemonNetwork: "tcp",
			DaemonAddress: "127.0.0.1:64331",
			InitTimeout:   20 * time.Second,
			SendTimeout:   10 * time.Second,
		},
		LogFormat: "text",
		LogLevel:  "info",
	}
}

// LoadConfig builds the config for home: defaults, then config.yaml if it
// exists, then environment overrides read through getenv.
func LoadConfig(home string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig(home)

	data, err := os.ReadFile(filepath.Join(home, ConfigFilename))
	switch {
	case err == nil:
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", ConfigFilename, err)
		}
		merge(&cfg, parsed)
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, err
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := ApplyEnvOverrides(&cfg, getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// merge copies the set fields of src over dst.
func merge(dst *Config, src fileConfig) {
	if src.User != "" {
		dst.User = src.User
	}
	if src.KeydirURL != "" {
		dst.KeydirURL = src.KeydirURL
	}
	if src.KeyLookupTimeout != 0 {
		dst.KeyLookupTimeout = src.KeyLookupTimeout
	}
	if src.KeyRetention != nil {
		dst.KeyRetention = *src.KeyRetention
	}
	if src.LookupRetries != nil {
		dst.LookupRetries = *src.LookupRetries
	}
	if src.Mixnet.Enabled != nil {
		dst.Mixnet.Enabled = *src.Mixnet.Enabled
	}
	if src.Mixnet.DefinitionURL != "" {
		dst.Mixnet.DefinitionURL = src.Mixnet.DefinitionURL
	}
	if src.Mixnet.DaemonNetwork != "" {
		dst.Mixnet.DaemonNetwork = src.Mixnet.DaemonNetwork
	}
	if src.Mixnet.DaemonAddress != "" {
		dst.Mixnet.DaemonAddress = src.Mixnet.DaemonAddress
	}
	if src.Mixnet.InitTimeout != 0 {
		dst.Mixnet.InitTimeout = src.Mixnet.InitTimeout
	}
	if src.Mixnet.SendTimeout != 0 {
		dst.Mixnet.SendTimeout = src.Mixnet.SendTimeout
	}
	if src.Log.Format != "" {
		dst.LogFormat = src.Log.Format
	}
	if src.Log.Level != "" {
		dst.LogLevel = src.Log.Level
	}
}

// ApplyEnvOverrides applies PRIVMSG_* variables. Malformed values are errors.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) error {
	env := func(name string) string { return strings.TrimSpace(getenv("PRIVMSG_" + name)) }

	if v := env("USER"); v != "" {
		cfg.User = v
	}
	if v := getenv("PRIVMSG_PASSPHRASE"); v != "" {
		cfg.Passphrase = v
	}
	if v := env("KEYDIR_URL"); v != "" {
		cfg.KeydirURL = v
	}
	if v := env("MIXNET_DEFINITION_URL"); v != "" {
		cfg.Mixnet.DefinitionURL = v
	}
	if v := env("MIXNET_DAEMON"); v != "" {
		network, addr, ok := strings.Cut(v, "://")
		if !ok {
			network, addr = "tcp", v
		}
		cfg.Mixnet.DaemonNetwork, cfg.Mixnet.DaemonAddress = network, addr
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"KEY_LOOKUP_TIMEOUT", &cfg.KeyLookupTimeout},
		{"MIXNET_INIT_TIMEOUT", &cfg.Mixnet.InitTimeout},
		{"MIXNET_SEND_TIMEOUT", &cfg.Mixnet.SendTimeout},
	}
	for _, d := range durations {
		raw := env(d.name)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("PRIVMSG_%s: %w", d.name, err)
		}
		*d.dst = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"KEY_RETENTION", &cfg.KeyRetention},
		{"LOOKUP_RETRIES", &cfg.LookupRetries},
	}
	for _, n := range ints {
		raw := env(n.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("PRIVMSG_%s: %w", n.name, err)
		}
		*n.dst = v
	}

	if raw := env("MIXNET_ENABLED"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("PRIVMSG_MIXNET_ENABLED: %w", err)
		}
		cfg.Mixnet.Enabled = v
	}
	return nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Home == "":
		return errors.New("config: home directory is required")
	case c.KeyRetention < 0:
		return errors.New("config: keyRetention must not be negative")
	case c.KeyLookupTimeout <= 0:
		return errors.New("config: keyLookupTimeout must be positive")
	case c.Mixnet.Enabled && c.Mixnet.DefinitionURL == "":
		return errors.New("config: mixnet.definitionURL is required when the mixnet is enabled")
	case c.Mixnet.DaemonNetwork != "tcp" && c.Mixnet.DaemonNetwork != "unix":
		return fmt.Errorf("config: unsupported mixnet.daemonNetwork %q", c.Mixnet.DaemonNetwork)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("config: unsupported log format %q", c.LogFormat)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
