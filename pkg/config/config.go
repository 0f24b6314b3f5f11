package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/saamerm/particle/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the list of all supported configuration key names
// in the order of the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"cloud.api_url",
		"cloud.client_id",
		"cloud.client_secret",
		"cloud.app_name",
		"stream.prefix",
		"stream.reconnect_delay",
		"forward.kafka_brokers",
		"forward.kafka_topic",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"worker.count",
		"worker.queue_size",
	}

	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	extra := make([]string, 0)
	for k := range configKeys {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	return append(result, extra...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .particle/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Cloud.APIURL == "" {
		cfg.Cloud.APIURL = defaults.Cloud.APIURL
	}
	if cfg.Cloud.ClientID == "" {
		cfg.Cloud.ClientID = defaults.Cloud.ClientID
	}
	if cfg.Cloud.ClientSecret == "" {
		cfg.Cloud.ClientSecret = defaults.Cloud.ClientSecret
	}
	if cfg.Cloud.AppName == "" {
		cfg.Cloud.AppName = defaults.Cloud.AppName
	}

	if cfg.Stream.ReconnectDelay == "" {
		cfg.Stream.ReconnectDelay = defaults.Stream.ReconnectDelay
	}

	if cfg.Forward.KafkaTopic == "" {
		cfg.Forward.KafkaTopic = defaults.Forward.KafkaTopic
	}

	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = defaults.Worker.Count
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = defaults.Worker.QueueSize
	}
}

// SaveConfig persists the configuration to config.toml in the target .particle/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
