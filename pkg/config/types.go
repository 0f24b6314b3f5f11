package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent particle configuration stored as config.toml
// in the .particle/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Cloud   CloudConfig   `toml:"cloud"`
	Stream  StreamConfig  `toml:"stream"`
	Forward ForwardConfig `toml:"forward"`
	Storage StorageConfig `toml:"storage"`
	Worker  WorkerConfig  `toml:"worker"`
}

// CloudConfig holds the cloud endpoint and OAuth client settings.
type CloudConfig struct {
	APIURL       string `toml:"api_url,omitempty"`
	ClientID     string `toml:"client_id,omitempty"`
	ClientSecret string `toml:"client_secret,omitempty"`
	AppName      string `toml:"app_name,omitempty"`
}

// StreamConfig holds event stream settings for "particle listen".
type StreamConfig struct {
	Prefix string `toml:"prefix,omitempty"`

	// ReconnectDelay is a Go duration string, e.g. "5s".
	ReconnectDelay string `toml:"reconnect_delay,omitempty"`
}

// ForwardConfig holds settings for forwarding received events to Kafka.
// KafkaBrokers is a comma separated list of host:port pairs.
type ForwardConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// StorageConfig holds settings for the local event log.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// WorkerConfig sizes the pool that stores and forwards received events.
type WorkerConfig struct {
	Count     uint `toml:"count,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"cloud.api_url": {
		get: func(c *Config) string { return c.Cloud.APIURL },
		set: func(c *Config, v string) error { c.Cloud.APIURL = v; return nil },
	},
	"cloud.client_id": {
		get: func(c *Config) string { return c.Cloud.ClientID },
		set: func(c *Config, v string) error { c.Cloud.ClientID = v; return nil },
	},
	"cloud.client_secret": {
		get: func(c *Config) string { return c.Cloud.ClientSecret },
		set: func(c *Config, v string) error { c.Cloud.ClientSecret = v; return nil },
	},
	"cloud.app_name": {
		get: func(c *Config) string { return c.Cloud.AppName },
		set: func(c *Config, v string) error { c.Cloud.AppName = v; return nil },
	},
	"stream.prefix": {
		get: func(c *Config) string { return c.Stream.Prefix },
		set: func(c *Config, v string) error { c.Stream.Prefix = v; return nil },
	},
	"stream.reconnect_delay": {
		get: func(c *Config) string { return c.Stream.ReconnectDelay },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for stream.reconnect_delay: %w", err)
			}
			if d < 0 {
				return fmt.Errorf("invalid value for stream.reconnect_delay: %q is negative", v)
			}
			c.Stream.ReconnectDelay = v
			return nil
		},
	},
	"forward.kafka_brokers": {
		get: func(c *Config) string { return c.Forward.KafkaBrokers },
		set: func(c *Config, v string) error { c.Forward.KafkaBrokers = v; return nil },
	},
	"forward.kafka_topic": {
		get: func(c *Config) string { return c.Forward.KafkaTopic },
		set: func(c *Config, v string) error { c.Forward.KafkaTopic = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"worker.count": {
		get: func(c *Config) string { return formatUint(c.Worker.Count) },
		set: func(c *Config, v string) error { return parseUint("worker.count", v, &c.Worker.Count) },
	},
	"worker.queue_size": {
		get: func(c *Config) string { return formatUint(c.Worker.QueueSize) },
		set: func(c *Config, v string) error { return parseUint("worker.queue_size", v, &c.Worker.QueueSize) },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string, target *uint) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = uint(n)
	return nil
}

// SplitList splits a comma separated config value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
